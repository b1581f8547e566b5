package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var ErrMalformedState = errors.New("malformed workflow state")

// stateSchema describes the minimal shape a captured workflow state must have.
// Blocks and subflows stay open so snapshots from older editors still validate.
var stateSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"blocks": map[string]any{
			"type": []any{"object", "null"},
			"additionalProperties": map[string]any{
				"type":     []any{"object", "null"},
				"required": []any{"id", "type"},
				"properties": map[string]any{
					"id":       map[string]any{"type": "string"},
					"type":     map[string]any{"type": "string"},
					"parentId": map[string]any{"type": []any{"string", "null"}},
					"position": map[string]any{
						"type": []any{"object", "null"},
						"properties": map[string]any{
							"x": map[string]any{"type": "number"},
							"y": map[string]any{"type": "number"},
						},
					},
				},
			},
		},
		"edges": map[string]any{
			"type": []any{"array", "null"},
			"items": map[string]any{
				"type":     []any{"object", "null"},
				"required": []any{"source", "target"},
				"properties": map[string]any{
					"id":     map[string]any{"type": "string"},
					"source": map[string]any{"type": "string"},
					"target": map[string]any{"type": "string"},
				},
			},
		},
		"loops":     map[string]any{"type": []any{"object", "null"}},
		"parallels": map[string]any{"type": []any{"object", "null"}},
	},
}

// CheckStateShape verifies that raw is a JSON object shaped like a workflow state.
func CheckStateShape(raw json.RawMessage) error {
	var document any
	if err := json.Unmarshal(raw, &document); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedState, err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(stateSchema), gojsonschema.NewGoLoader(document))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedState, err)
	}

	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrMalformedState, strings.Join(details, "; "))
	}

	return nil
}
