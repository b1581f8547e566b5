// Package web exposes the workflow graph services over HTTP.
package web

import (
	"github.com/dukex/blockflow/pkg/models"
)

// SyncReadResponse lists the workflows of a scope.
type SyncReadResponse struct {
	Workflows []*models.Workflow `json:"workflows"`
}

type ListCheckpointsResponse struct {
	Checkpoints []*models.Checkpoint `json:"checkpoints"`
}

type RevertCheckpointRequest struct {
	CheckpointID string `json:"checkpointId"`
}

// HealthResponse is the body of the aggregated health endpoint.
type HealthResponse struct {
	Status   string            `json:"status"`
	Message  string            `json:"message"`
	Checkers map[string]string `json:"checkers"`
}
