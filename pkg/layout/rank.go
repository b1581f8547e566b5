package layout

import (
	"cmp"
	"slices"

	"github.com/dukex/blockflow/pkg/models"
)

// digraph is the acyclic view of a level: back edges found by a depth-first walk in id
// order are dropped so that ranks are well defined.
type digraph struct {
	nodes []string
	succ  map[string][]string
	pred  map[string][]string
}

func newDigraph(lvl level) *digraph {
	members := make(map[string]bool, len(lvl.members))
	for _, id := range lvl.members {
		members[id] = true
	}

	out := map[string][]string{}

	for _, e := range lvl.edges {
		if members[e.source] && members[e.target] {
			out[e.source] = append(out[e.source], e.target)
		}
	}

	g := &digraph{
		nodes: slices.Sorted(slices.Values(lvl.members)),
		succ:  map[string][]string{},
		pred:  map[string][]string{},
	}

	const (
		unvisited = iota
		onStack
		done
	)

	state := map[string]int{}

	var visit func(id string)
	visit = func(id string) {
		state[id] = onStack

		for _, next := range out[id] {
			switch state[next] {
			case onStack:
				continue
			case unvisited:
				visit(next)
			}

			g.succ[id] = append(g.succ[id], next)
			g.pred[next] = append(g.pred[next], id)
		}

		state[id] = done
	}

	for _, id := range g.nodes {
		if state[id] == unvisited {
			visit(id)
		}
	}

	for id := range g.pred {
		slices.Sort(g.pred[id])
	}

	return g
}

// topological returns the nodes in Kahn order, always taking the smallest ready id.
func (g *digraph) topological() []string {
	indegree := make(map[string]int, len(g.nodes))
	for _, id := range g.nodes {
		indegree[id] = len(g.pred[id])
	}

	var ready []string

	for _, id := range g.nodes {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]string, 0, len(g.nodes))

	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, next := range g.succ[id] {
			indegree[next]--
			if indegree[next] == 0 {
				at, _ := slices.BinarySearch(ready, next)
				ready = slices.Insert(ready, at, next)
			}
		}
	}

	return order
}

// longestPathRanks puts every node one rank after its furthest predecessor.
func (g *digraph) longestPathRanks(order []string) map[string]int {
	ranks := make(map[string]int, len(order))

	for _, id := range order {
		for _, prev := range g.pred[id] {
			ranks[id] = max(ranks[id], ranks[prev]+1)
		}
	}

	return ranks
}

// shortestPathRanks puts every node one rank after its closest predecessor.
func (g *digraph) shortestPathRanks(order []string) map[string]int {
	ranks := make(map[string]int, len(order))

	for _, id := range order {
		if len(g.pred[id]) == 0 {
			ranks[id] = 0

			continue
		}

		best := -1
		for _, prev := range g.pred[id] {
			if best < 0 || ranks[prev]+1 < best {
				best = ranks[prev] + 1
			}
		}

		ranks[id] = best
	}

	return ranks
}

// layers groups nodes by rank, each layer in topological order.
func layers(order []string, ranks map[string]int) [][]string {
	var out [][]string

	for _, id := range order {
		r := ranks[id]
		for len(out) <= r {
			out = append(out, nil)
		}

		out[r] = append(out[r], id)
	}

	return out
}

// reorder runs barycenter sweeps, alternating downward and upward, to reduce crossings.
func (g *digraph) reorder(ls [][]string, sweeps int) {
	for sweep := range sweeps {
		if sweep%2 == 0 {
			for r := 1; r < len(ls); r++ {
				sortByBarycenter(ls[r], g.pred, position(ls))
			}
		} else {
			for r := len(ls) - 2; r >= 0; r-- {
				sortByBarycenter(ls[r], g.succ, position(ls))
			}
		}
	}
}

func position(ls [][]string) map[string]int {
	pos := map[string]int{}

	for _, layer := range ls {
		for i, id := range layer {
			pos[id] = i
		}
	}

	return pos
}

func sortByBarycenter(layer []string, neighbours map[string][]string, pos map[string]int) {
	bary := make(map[string]float64, len(layer))

	for i, id := range layer {
		ns := neighbours[id]
		if len(ns) == 0 {
			bary[id] = float64(i)

			continue
		}

		sum := 0.0
		for _, n := range ns {
			sum += float64(pos[n])
		}

		bary[id] = sum / float64(len(ns))
	}

	slices.SortStableFunc(layer, func(a, b string) int {
		return cmp.Compare(bary[a], bary[b])
	})
}

// rank assigns layers according to the strategy.
func rank(g *digraph, strategy Strategy) [][]string {
	order := g.topological()

	switch strategy {
	case StrategyLayered:
		ls := layers(order, g.shortestPathRanks(order))
		g.reorder(ls, 2)

		return ls
	case StrategyHierarchical:
		ls := layers(order, g.longestPathRanks(order))
		g.reorder(ls, 1)

		return ls
	default:
		ls := layers(order, g.longestPathRanks(order))
		g.reorder(ls, 4)

		return ls
	}
}

// resolveDirection picks horizontal for graphs at least as deep as they are wide.
func resolveDirection(requested Direction, ls [][]string) Direction {
	if requested != DirectionAuto {
		return requested
	}

	widest := 0
	for _, layer := range ls {
		widest = max(widest, len(layer))
	}

	if len(ls) >= widest {
		return DirectionHorizontal
	}

	return DirectionVertical
}

// arrange positions the members of one level, with the top-left corner of the
// arrangement at origin.
func arrange(lvl level, sizes map[string]size, cfg Config, origin models.Position) levelResult {
	res := levelResult{positions: make(map[string]models.Position, len(lvl.members))}

	if len(lvl.members) == 0 {
		res.direction = cfg.Direction
		if res.direction == DirectionAuto {
			res.direction = DirectionHorizontal
		}

		return res
	}

	g := newDigraph(lvl)
	ls := rank(g, cfg.Strategy)
	dir := resolveDirection(cfg.Direction, ls)
	res.direction = dir

	flowExtent := func(id string) float64 {
		if dir == DirectionHorizontal {
			return sizes[id].width
		}

		return sizes[id].height
	}

	crossExtent := func(id string) float64 {
		if dir == DirectionHorizontal {
			return sizes[id].height
		}

		return sizes[id].width
	}

	crossGap := cfg.Spacing.Vertical
	if dir == DirectionVertical {
		crossGap = cfg.Spacing.Horizontal
	}

	layerExtents := make([]float64, len(ls))
	widest := 0.0

	for r, layer := range ls {
		for i, id := range layer {
			if i > 0 {
				layerExtents[r] += crossGap
			}

			layerExtents[r] += crossExtent(id)
		}

		widest = max(widest, layerExtents[r])
	}

	flow := 0.0

	for r, layer := range ls {
		thickness := 0.0
		cross := 0.0

		switch cfg.Alignment {
		case AlignmentCenter:
			cross = (widest - layerExtents[r]) / 2
		case AlignmentEnd:
			cross = widest - layerExtents[r]
		}

		for _, id := range layer {
			if dir == DirectionHorizontal {
				res.positions[id] = models.Position{X: flow, Y: cross}
			} else {
				res.positions[id] = models.Position{X: cross, Y: flow}
			}

			cross += crossExtent(id) + crossGap
			thickness = max(thickness, flowExtent(id))
		}

		flow += thickness + cfg.Spacing.Layer
	}

	if cfg.Strategy == StrategyForceDirected {
		relax(res.positions, g, sizes, cfg, crossGap)
	}

	translate(res.positions, origin)
	res.bounds = bounds(res.positions, sizes)

	return res
}

// translate moves the arrangement so its top-left corner sits at origin.
func translate(positions map[string]models.Position, origin models.Position) {
	if len(positions) == 0 {
		return
	}

	first := true
	minX, minY := 0.0, 0.0

	for _, pos := range positions {
		if first {
			minX, minY = pos.X, pos.Y
			first = false

			continue
		}

		minX = min(minX, pos.X)
		minY = min(minY, pos.Y)
	}

	for id, pos := range positions {
		positions[id] = models.Position{X: pos.X - minX + origin.X, Y: pos.Y - minY + origin.Y}
	}
}

// bounds returns the bottom-right corner of the arrangement.
func bounds(positions map[string]models.Position, sizes map[string]size) size {
	var b size

	for id, pos := range positions {
		b.width = max(b.width, pos.X+sizes[id].width)
		b.height = max(b.height, pos.Y+sizes[id].height)
	}

	return b
}
