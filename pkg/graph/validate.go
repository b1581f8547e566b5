package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dukex/blockflow/pkg/models"
)

// Violation is a single broken graph invariant, addressed by a JSON-path-like field.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every invariant a state breaks.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	messages := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		messages = append(messages, v.Field+": "+v.Message)
	}

	return "invalid workflow graph: " + strings.Join(messages, "; ")
}

type violations []Violation

func (vs *violations) add(field, format string, args ...any) {
	*vs = append(*vs, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks the structural invariants of a workflow state and returns a
// *ValidationError listing every violation, or nil when the state is consistent.
func Validate(state *models.WorkflowState) error {
	if state == nil {
		return nil
	}

	var vs violations

	validateBlocks(state.Blocks, &vs)
	validateEdges(state, &vs)
	validateLoops(state, &vs)
	validateParallels(state, &vs)

	if len(vs) == 0 {
		return nil
	}

	return &ValidationError{Violations: vs}
}

func validateBlocks(blocks map[string]*models.Block, vs *violations) {
	for _, id := range sortedKeys(blocks) {
		block := blocks[id]
		field := "blocks." + id

		if block == nil {
			vs.add(field, "block is null")

			continue
		}

		if block.ID != id {
			vs.add(field+".id", "id %q does not match its key", block.ID)
		}

		if !block.Type.Valid() {
			vs.add(field+".type", "unknown block type %q", block.Type)
		}

		if block.Extent != "" && block.Extent != models.ExtentParent {
			vs.add(field+".extent", "extent must be %q", models.ExtentParent)
		}

		if dataParent, ok := block.DataParentID(); ok && dataParent != block.ParentID {
			vs.add(field+".data.parentId", "data parentId %q disagrees with parentId %q", dataParent, block.ParentID)
		}

		if block.ParentID == "" {
			continue
		}

		if block.Extent != models.ExtentParent {
			vs.add(field+".extent", "nested block must have extent %q", models.ExtentParent)
		}

		parent, ok := blocks[block.ParentID]

		switch {
		case block.ParentID == id:
			vs.add(field+".parentId", "block cannot contain itself")
		case !ok || parent == nil:
			vs.add(field+".parentId", "parent %q does not exist", block.ParentID)
		case !parent.Type.IsContainer():
			vs.add(field+".parentId", "parent %q is a %s block, not a container", block.ParentID, parent.Type)
		}
	}

	for _, id := range parentCycles(blocks) {
		vs.add("blocks."+id+".parentId", "parent chain forms a cycle")
	}
}

// parentCycles returns, sorted, the ids of blocks whose parent chain leads back to themselves.
func parentCycles(blocks map[string]*models.Block) []string {
	var cyclic []string

	for id := range blocks {
		seen := map[string]bool{}
		current := id

		for {
			block, ok := blocks[current]
			if !ok || block == nil || block.ParentID == "" {
				break
			}

			if seen[current] {
				break
			}

			seen[current] = true
			current = block.ParentID

			if current == id {
				cyclic = append(cyclic, id)

				break
			}
		}
	}

	slices.Sort(cyclic)

	return cyclic
}

func validateEdges(state *models.WorkflowState, vs *violations) {
	seen := make(map[string]bool, len(state.Edges))

	for i, edge := range state.Edges {
		field := fmt.Sprintf("edges[%d]", i)

		if edge == nil {
			vs.add(field, "edge is null")

			continue
		}

		if edge.ID == "" {
			vs.add(field+".id", "edge id is required")
		} else if seen[edge.ID] {
			vs.add(field+".id", "duplicate edge id %q", edge.ID)
		}

		seen[edge.ID] = true

		if _, ok := state.Blocks[edge.Source]; !ok {
			vs.add(field+".source", "source block %q does not exist", edge.Source)
		}

		if _, ok := state.Blocks[edge.Target]; !ok {
			vs.add(field+".target", "target block %q does not exist", edge.Target)
		}
	}
}

func validateLoops(state *models.WorkflowState, vs *violations) {
	for _, id := range sortedKeys(state.Loops) {
		loop := state.Loops[id]
		if loop == nil {
			vs.add("loops."+id, "loop is null")

			continue
		}

		validateSubflow("loops."+id, id, loop.ID, loop.Nodes, models.BlockTypeLoop, state.Blocks, vs)
	}
}

func validateParallels(state *models.WorkflowState, vs *violations) {
	for _, id := range sortedKeys(state.Parallels) {
		parallel := state.Parallels[id]
		if parallel == nil {
			vs.add("parallels."+id, "parallel is null")

			continue
		}

		validateSubflow("parallels."+id, id, parallel.ID, parallel.Nodes, models.BlockTypeParallel, state.Blocks, vs)
	}
}

func validateSubflow(
	field, key, configID string,
	nodes []string,
	kind models.BlockType,
	blocks map[string]*models.Block,
	vs *violations,
) {
	if configID != key {
		vs.add(field+".id", "id %q does not match its key", configID)
	}

	container, ok := blocks[key]
	if !ok || container == nil {
		vs.add(field, "container block %q does not exist", key)

		return
	}

	if container.Type != kind {
		vs.add(field, "block %q is a %s block, not a %s", key, container.Type, kind)
	}

	for i, node := range nodes {
		member, ok := blocks[node]
		if !ok || member == nil {
			vs.add(fmt.Sprintf("%s.nodes[%d]", field, i), "member block %q does not exist", node)

			continue
		}

		if member.ParentID != key {
			vs.add(fmt.Sprintf("%s.nodes[%d]", field, i), "member block %q is not nested in %q", node, key)
		}
	}
}
