// Package events defines the realtime notifications sent to connected collaborators.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every realtime notification on the broker.
const Topic = "blockflow.realtime"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// WorkflowRevertedEvent tells clients to reload a workflow restored from a checkpoint.
	WorkflowRevertedEvent EventType = "workflow-reverted"
	// WorkflowLayoutAppliedEvent tells clients that block positions changed server-side.
	WorkflowLayoutAppliedEvent EventType = "workflow-layout-applied"
	// WorkflowsSyncedEvent tells the other members of a scope that a sync was applied.
	WorkflowsSyncedEvent EventType = "workflows-synced"
)

// Event is the payload delivered to the realtime collaborator.
type Event struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkflowID  string         `json:"workflowId,omitempty"`
	WorkspaceID string         `json:"workspaceId,omitempty"`
	UserID      string         `json:"userId,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (e Event) GetType() EventType {
	return e.Type
}

// Key is the partition key of the event: the workflow it concerns, or its scope.
func (e Event) Key() string {
	switch {
	case e.WorkflowID != "":
		return e.WorkflowID
	case e.WorkspaceID != "":
		return e.WorkspaceID
	default:
		return e.UserID
	}
}

func newEvent(eventType EventType, userID string) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		UserID:    userID,
	}
}

func NewWorkflowReverted(workflowID, userID, checkpointID string) Event {
	event := newEvent(WorkflowRevertedEvent, userID)
	event.WorkflowID = workflowID
	event.Metadata = map[string]any{"checkpointId": checkpointID}

	return event
}

func NewWorkflowLayoutApplied(workflowID, userID string, blockCount int) Event {
	event := newEvent(WorkflowLayoutAppliedEvent, userID)
	event.WorkflowID = workflowID
	event.Metadata = map[string]any{"blockCount": blockCount}

	return event
}

func NewWorkflowsSynced(workspaceID, userID string, created, updated, deleted int) Event {
	event := newEvent(WorkflowsSyncedEvent, userID)
	event.WorkspaceID = workspaceID
	event.Metadata = map[string]any{
		"created": created,
		"updated": updated,
		"deleted": deleted,
	}

	return event
}
