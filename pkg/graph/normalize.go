package graph

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dukex/blockflow/pkg/models"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

// snapshot is the permissive shape of a stored checkpoint state: structural fields
// are typed, flags are decoded loosely and coerced afterwards.
type snapshot struct {
	Blocks             map[string]*models.Block    `json:"blocks"`
	Edges              []*models.Edge              `json:"edges"`
	Loops              map[string]*models.Loop     `json:"loops"`
	Parallels          map[string]*models.Parallel `json:"parallels"`
	IsDeployed         any                         `json:"isDeployed"`
	DeployedAt         any                         `json:"deployedAt"`
	DeploymentStatuses map[string]json.RawMessage  `json:"deploymentStatuses"`
	HasActiveWebhook   any                         `json:"hasActiveWebhook"`
	IsPublished        any                         `json:"isPublished"`
}

// NormalizeSnapshot decodes a checkpoint state and fills in the gaps a partial
// snapshot may have: missing collections become empty, missing or non-boolean
// flags become false, and deployedAt is kept only when it parses as a timestamp.
// Null entries inside collections are dropped.
func NormalizeSnapshot(raw json.RawMessage) (*models.WorkflowState, error) {
	state, _, err := normalizeSnapshot(raw)

	return state, err
}

// RestoreSnapshot normalizes a checkpoint state for writing over live. Flags the
// snapshot does not carry as booleans, currently isPublished, keep the live value.
func RestoreSnapshot(raw json.RawMessage, live *models.WorkflowState) (*models.WorkflowState, error) {
	state, snap, err := normalizeSnapshot(raw)
	if err != nil {
		return nil, err
	}

	if published, ok := snap.IsPublished.(bool); ok {
		state.IsPublished = published
	} else if live != nil {
		state.IsPublished = live.IsPublished
	}

	return state, nil
}

func normalizeSnapshot(raw json.RawMessage) (*models.WorkflowState, *snapshot, error) {
	var snap snapshot

	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, nil, fmt.Errorf("malformed workflow state: %w", err)
		}
	}

	state := models.NewWorkflowState()

	for id, block := range snap.Blocks {
		if block != nil {
			state.Blocks[id] = block
		}
	}

	for _, edge := range snap.Edges {
		if edge != nil {
			state.Edges = append(state.Edges, edge)
		}
	}

	for id, loop := range snap.Loops {
		if loop != nil {
			state.Loops[id] = loop
		}
	}

	for id, parallel := range snap.Parallels {
		if parallel != nil {
			state.Parallels[id] = parallel
		}
	}

	for env, rawStatus := range snap.DeploymentStatuses {
		if status, ok := normalizeDeploymentStatus(rawStatus); ok {
			state.DeploymentStatuses[env] = status
		}
	}

	state.IsDeployed, _ = snap.IsDeployed.(bool)
	state.HasActiveWebhook, _ = snap.HasActiveWebhook.(bool)

	if deployedAt, ok := ParseTimestamp(snap.DeployedAt); ok {
		state.DeployedAt = &deployedAt
	}

	state.IsPublished, _ = snap.IsPublished.(bool)

	return state, &snap, nil
}

func normalizeDeploymentStatus(raw json.RawMessage) (*models.DeploymentStatus, bool) {
	var loose struct {
		IsDeployed any `json:"isDeployed"`
		DeployedAt any `json:"deployedAt"`
	}

	if err := json.Unmarshal(raw, &loose); err != nil {
		return nil, false
	}

	status := &models.DeploymentStatus{}
	status.IsDeployed, _ = loose.IsDeployed.(bool)

	if deployedAt, ok := ParseTimestamp(loose.DeployedAt); ok {
		status.DeployedAt = &deployedAt
	}

	return status, true
}

// ParseTimestamp accepts a decoded JSON value holding a timestamp either as a
// string in one of the common layouts or as a number of Unix milliseconds.
func ParseTimestamp(value any) (time.Time, bool) {
	switch v := value.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false
		}

		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}

		return time.Time{}, false
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return time.Time{}, false
		}

		return time.UnixMilli(int64(v)).UTC(), true
	default:
		return time.Time{}, false
	}
}
