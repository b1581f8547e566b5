// Package models defines the core domain models for collaboratively edited workflow graphs.
package models

import "time"

// MarketplaceStatus is the publication status of a workflow.
type MarketplaceStatus string

const (
	MarketplaceStatusOwner MarketplaceStatus = "owner" // Published by the workflow's owner
	MarketplaceStatusTemp  MarketplaceStatus = "temp"  // Temporary copy imported from the marketplace
)

// MarketplaceData records how a workflow relates to the marketplace.
type MarketplaceData struct {
	ID     string            `json:"id"`
	Status MarketplaceStatus `json:"status" validate:"omitempty,oneof=owner temp"`
}

// DeploymentStatus describes a deployment of a workflow to one environment.
type DeploymentStatus struct {
	IsDeployed bool       `json:"isDeployed"`
	DeployedAt *time.Time `json:"deployedAt,omitempty"`
}

// WorkflowState is the graph of a workflow: blocks, edges and container configuration
// together with its deployment flags.
type WorkflowState struct {
	Blocks             map[string]*Block            `json:"blocks"`
	Edges              []*Edge                      `json:"edges"`
	Loops              map[string]*Loop             `json:"loops"`
	Parallels          map[string]*Parallel         `json:"parallels"`
	LastSaved          int64                        `json:"lastSaved,omitempty"` // Unix milliseconds
	IsDeployed         bool                         `json:"isDeployed"`
	DeployedAt         *time.Time                   `json:"deployedAt,omitempty"`
	DeploymentStatuses map[string]*DeploymentStatus `json:"deploymentStatuses"`
	HasActiveWebhook   bool                         `json:"hasActiveWebhook"`
	IsPublished        bool                         `json:"isPublished,omitempty"`
}

// Workflow is the aggregate root: metadata plus the graph it owns.
type Workflow struct {
	ID              string           `json:"id"`
	UserID          string           `json:"userId"`
	WorkspaceID     string           `json:"workspaceId,omitempty"`
	FolderID        string           `json:"folderId,omitempty"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	Color           string           `json:"color"`
	State           *WorkflowState   `json:"state"`
	MarketplaceData *MarketplaceData `json:"marketplaceData,omitempty"`
	LastSynced      time.Time        `json:"lastSynced"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
	DeletedAt       *time.Time       `json:"deletedAt,omitempty"`
}

// NewWorkflowState returns a state with every structural field initialized to its empty form.
func NewWorkflowState() *WorkflowState {
	return &WorkflowState{
		Blocks:             map[string]*Block{},
		Edges:              []*Edge{},
		Loops:              map[string]*Loop{},
		Parallels:          map[string]*Parallel{},
		DeploymentStatuses: map[string]*DeploymentStatus{},
	}
}

// EnsureDefaults replaces nil structural fields with their empty form.
func (s *WorkflowState) EnsureDefaults() {
	if s.Blocks == nil {
		s.Blocks = map[string]*Block{}
	}

	if s.Edges == nil {
		s.Edges = []*Edge{}
	}

	if s.Loops == nil {
		s.Loops = map[string]*Loop{}
	}

	if s.Parallels == nil {
		s.Parallels = map[string]*Parallel{}
	}

	if s.DeploymentStatuses == nil {
		s.DeploymentStatuses = map[string]*DeploymentStatus{}
	}
}
