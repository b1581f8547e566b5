// Package layout assigns canvas positions to the blocks of a workflow graph.
//
// Every container is laid out on its own first, producing a size for it; the container
// is then an opaque node of its parent's graph. Containers of the same depth are
// independent and are laid out concurrently. Output is a pure function of the graph
// and the configuration.
package layout

import (
	"cmp"
	"context"
	"maps"
	"slices"

	"github.com/dukex/blockflow/pkg/graph"
	"github.com/dukex/blockflow/pkg/models"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBlockWidth    = 350
	DefaultBlockHeight   = 100
	WideBlockWidth       = 450
	EmptyContainerWidth  = 500
	EmptyContainerHeight = 300

	// containerHeader is the title bar above a container's members.
	containerHeader = 30
)

// Placement is the computed position and size of one block. Nested blocks are
// positioned relative to their container.
type Placement struct {
	Position models.Position `json:"position"`
	Width    float64         `json:"width"`
	Height   float64         `json:"height"`
}

// Result maps block ids to their placement.
type Result struct {
	Placements map[string]Placement
	// Direction is the direction used for the top-level graph.
	Direction Direction
}

type size struct {
	width, height float64
}

type edge struct {
	source, target string
}

// level is one graph to arrange: the top level, or the members of one container.
type level struct {
	container string
	members   []string
	edges     []edge
}

type levelResult struct {
	positions map[string]models.Position
	bounds    size
	direction Direction
}

// Compute lays out state without modifying it. cfg is validated first; nothing is
// computed for an invalid configuration.
func Compute(ctx context.Context, state *models.WorkflowState, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg = cfg.WithDefaults()

	blocks := map[string]*models.Block{}
	if state != nil && state.Blocks != nil {
		blocks = state.Blocks
	}

	idx := graph.NewIndex(blocks)

	var allEdges []*models.Edge
	if state != nil {
		allEdges = state.Edges
	}

	sizes := make(map[string]size, len(blocks))

	for id, block := range blocks {
		if !block.Type.IsContainer() {
			sizes[id] = blockSize(block)
		}
	}

	result := &Result{Placements: make(map[string]Placement, len(blocks))}

	interiorOrigin := models.Position{X: cfg.Padding.X, Y: cfg.Padding.Y + containerHeader}

	for _, group := range depthGroups(idx) {
		results := make([]levelResult, len(group))
		g, gctx := errgroup.WithContext(ctx)

		for i, containerID := range group {
			lvl := buildLevel(idx, allEdges, containerID, idx.Children(containerID))

			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}

				results[i] = arrange(lvl, sizes, cfg, interiorOrigin)

				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}

		for i, containerID := range group {
			res := results[i]

			containerSize := size{width: EmptyContainerWidth, height: EmptyContainerHeight}
			if len(res.positions) > 0 {
				containerSize = size{
					width:  res.bounds.width + cfg.Padding.X,
					height: res.bounds.height + cfg.Padding.Y,
				}
			}

			sizes[containerID] = containerSize

			for id, pos := range res.positions {
				result.Placements[id] = Placement{Position: pos, Width: sizes[id].width, Height: sizes[id].height}
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	top := arrange(buildLevel(idx, allEdges, "", idx.Roots()), sizes, cfg, models.Position{X: cfg.Padding.X, Y: cfg.Padding.Y})

	for id, pos := range top.positions {
		result.Placements[id] = Placement{Position: pos, Width: sizes[id].width, Height: sizes[id].height}
	}

	result.Direction = top.direction

	return result, nil
}

// ApplyTo writes the placements into state: positions for every block and, for
// containers, the width and height hints read by the editor.
func (r *Result) ApplyTo(state *models.WorkflowState) {
	for id, placement := range r.Placements {
		block, ok := state.Blocks[id]
		if !ok {
			continue
		}

		block.Position = placement.Position

		if block.Type.IsContainer() {
			if block.Data == nil {
				block.Data = map[string]any{}
			}

			block.Data["width"] = placement.Width
			block.Data["height"] = placement.Height
		}
	}
}

func blockSize(block *models.Block) size {
	s := size{width: DefaultBlockWidth, height: DefaultBlockHeight}

	if block.IsWide {
		s.width = WideBlockWidth
	}

	if block.Height > 0 {
		s.height = block.Height
	}

	return s
}

// depthGroups returns the containers grouped by depth, deepest group first.
func depthGroups(idx *graph.Index) [][]string {
	var (
		groups  [][]string
		current = -1
	)

	for _, id := range idx.Containers() {
		depth := idx.Depth(id)
		if depth != current {
			groups = append(groups, nil)
			current = depth
		}

		groups[len(groups)-1] = append(groups[len(groups)-1], id)
	}

	return groups
}

// buildLevel collects the edges of one level. An edge belongs to the level when both
// of its endpoints are, or are nested inside, two different members of it.
func buildLevel(idx *graph.Index, edges []*models.Edge, container string, members []string) level {
	seen := map[edge]bool{}

	for _, e := range edges {
		if e == nil {
			continue
		}

		source, ok := liftTo(idx, e.Source, container)
		if !ok {
			continue
		}

		target, ok := liftTo(idx, e.Target, container)
		if !ok || source == target {
			continue
		}

		seen[edge{source: source, target: target}] = true
	}

	lifted := slices.Collect(maps.Keys(seen))
	slices.SortFunc(lifted, func(a, b edge) int {
		if a.source != b.source {
			return cmp.Compare(a.source, b.source)
		}

		return cmp.Compare(a.target, b.target)
	})

	return level{container: container, members: members, edges: lifted}
}

// liftTo maps a block to the member of container ("" for the top level) that holds it.
func liftTo(idx *graph.Index, id, container string) (string, bool) {
	if _, ok := idx.Block(id); !ok {
		return "", false
	}

	for {
		parent, ok := idx.Parent(id)

		switch {
		case container == "" && !ok:
			return id, true
		case !ok:
			return "", false
		case parent == container:
			return id, true
		}

		id = parent
	}
}
