package models

import (
	"encoding/json"
	"time"
)

// Checkpoint is an immutable snapshot of a workflow's graph taken during a copilot chat.
// WorkflowID is a weak reference: the workflow may be deleted while the checkpoint remains.
type Checkpoint struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	WorkflowID    string          `json:"workflowId"`
	ChatID        string          `json:"chatId"`
	MessageID     string          `json:"messageId,omitempty"`
	WorkflowState json.RawMessage `json:"workflowState,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}
