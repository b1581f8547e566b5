// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowAlreadyExists indicates a workflow with the same identifier already exists.
	ErrWorkflowAlreadyExists = errors.New("workflow already exists")

	// ErrWorkspaceNotFound indicates a workspace was not found by the given identifier.
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrCheckpointNotFound indicates a checkpoint was not found for the requesting user.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrCorruptGraph indicates a stored graph row could not be decoded.
	ErrCorruptGraph = errors.New("corrupt workflow graph")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	WorkflowID string // Workflow ID if applicable
	Err        error  // Underlying error
	Message    string // Additional context message
}

func (e *WorkflowError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s operation failed for workflow %s: %s (%v)", e.Op, e.WorkflowID, e.Message, e.Err)
	}

	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for workflow errors.
func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// WorkspaceError wraps workspace-related errors with additional context.
type WorkspaceError struct {
	Op          string // Operation being performed
	WorkspaceID string // Workspace ID
	UserID      string // Member user ID if applicable
	Err         error  // Underlying error
}

func (e *WorkspaceError) Error() string {
	if e.UserID != "" {
		return fmt.Sprintf("%s operation failed for member %s of workspace %s: %v", e.Op, e.UserID, e.WorkspaceID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for workspace %s: %v", e.Op, e.WorkspaceID, e.Err)
}

func (e *WorkspaceError) Unwrap() error {
	return e.Err
}

func (e *WorkspaceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// CheckpointError wraps checkpoint-related errors with additional context.
type CheckpointError struct {
	Op           string // Operation being performed
	CheckpointID string // Checkpoint ID
	Err          error  // Underlying error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("%s operation failed for checkpoint %s: %v", e.Op, e.CheckpointID, e.Err)
}

func (e *CheckpointError) Unwrap() error {
	return e.Err
}

func (e *CheckpointError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsWorkflowAlreadyExists checks if an error indicates a workflow id collision.
func IsWorkflowAlreadyExists(err error) bool {
	return errors.Is(err, ErrWorkflowAlreadyExists)
}

// IsWorkspaceNotFound checks if an error indicates a workspace was not found.
func IsWorkspaceNotFound(err error) bool {
	return errors.Is(err, ErrWorkspaceNotFound)
}

// IsCheckpointNotFound checks if an error indicates a checkpoint was not found.
func IsCheckpointNotFound(err error) bool {
	return errors.Is(err, ErrCheckpointNotFound)
}
