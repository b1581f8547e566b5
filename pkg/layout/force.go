package layout

import (
	"cmp"
	"math"
	"slices"

	"github.com/dukex/blockflow/pkg/models"
)

const forceIterations = 60

type vector struct {
	x, y float64
}

// relax refines a ranked arrangement with a spring embedder: every pair of nodes repels,
// connected nodes attract. Iterations run in id order with a fixed cooling schedule so
// the result only depends on the input. Overlaps left by the simulation are removed
// afterwards by pushing nodes down.
func relax(positions map[string]models.Position, g *digraph, sizes map[string]size, cfg Config, gap float64) {
	ids := g.nodes
	if len(ids) < 2 {
		return
	}

	k := cfg.Spacing.Layer + DefaultBlockWidth/2
	temperature := k

	centers := make(map[string]vector, len(ids))
	for _, id := range ids {
		pos := positions[id]
		centers[id] = vector{x: pos.X + sizes[id].width/2, y: pos.Y + sizes[id].height/2}
	}

	for iter := range forceIterations {
		disp := make(map[string]vector, len(ids))

		for i, a := range ids {
			for j := i + 1; j < len(ids); j++ {
				b := ids[j]
				dx, dy := centers[a].x-centers[b].x, centers[a].y-centers[b].y

				dist := math.Hypot(dx, dy)
				if dist < 1 {
					dx, dy, dist = float64(j-i), 1, math.Hypot(float64(j-i), 1)
				}

				force := k * k / dist
				disp[a] = vector{disp[a].x + dx/dist*force, disp[a].y + dy/dist*force}
				disp[b] = vector{disp[b].x - dx/dist*force, disp[b].y - dy/dist*force}
			}
		}

		for _, source := range ids {
			for _, target := range g.succ[source] {
				dx, dy := centers[source].x-centers[target].x, centers[source].y-centers[target].y

				dist := math.Hypot(dx, dy)
				if dist < 1 {
					continue
				}

				force := dist * dist / k
				disp[source] = vector{disp[source].x - dx/dist*force, disp[source].y - dy/dist*force}
				disp[target] = vector{disp[target].x + dx/dist*force, disp[target].y + dy/dist*force}
			}
		}

		step := temperature * (1 - float64(iter)/forceIterations)

		for _, id := range ids {
			d := disp[id]

			length := math.Hypot(d.x, d.y)
			if length < 1e-9 {
				continue
			}

			move := min(length, step)
			centers[id] = vector{centers[id].x + d.x/length*move, centers[id].y + d.y/length*move}
		}
	}

	for _, id := range ids {
		positions[id] = models.Position{
			X: math.Round(centers[id].x - sizes[id].width/2),
			Y: math.Round(centers[id].y - sizes[id].height/2),
		}
	}

	separate(positions, ids, sizes, gap)
}

// separate pushes nodes down until no two rectangles overlap, visiting nodes from left
// to right.
func separate(positions map[string]models.Position, ids []string, sizes map[string]size, gap float64) {
	order := slices.Clone(ids)
	slices.SortFunc(order, func(a, b string) int {
		pa, pb := positions[a], positions[b]

		switch {
		case pa.X != pb.X:
			return cmp.Compare(pa.X, pb.X)
		case pa.Y != pb.Y:
			return cmp.Compare(pa.Y, pb.Y)
		default:
			return cmp.Compare(a, b)
		}
	})

	placed := make([]string, 0, len(order))

	for _, id := range order {
		for moved := true; moved; {
			moved = false

			for _, other := range placed {
				if overlaps(positions[id], sizes[id], positions[other], sizes[other], gap) {
					pos := positions[id]
					pos.Y = positions[other].Y + sizes[other].height + gap
					positions[id] = pos
					moved = true
				}
			}
		}

		placed = append(placed, id)
	}
}

func overlaps(a models.Position, as size, b models.Position, bs size, gap float64) bool {
	return a.X < b.X+bs.width+gap && b.X < a.X+as.width+gap &&
		a.Y < b.Y+bs.height+gap && b.Y < a.Y+as.height+gap
}
