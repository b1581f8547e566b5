package graph

import (
	"slices"

	"github.com/dukex/blockflow/pkg/models"
)

// Index is a read-only view of a block map with parent and children lookups.
// Blocks whose parent is missing or is not a container are treated as top-level.
type Index struct {
	blocks   map[string]*models.Block
	parent   map[string]string
	children map[string][]string
	roots    []string
}

// NewIndex builds the containment index for blocks. Child and root lists are sorted by id.
func NewIndex(blocks map[string]*models.Block) *Index {
	idx := &Index{
		blocks:   blocks,
		parent:   make(map[string]string, len(blocks)),
		children: make(map[string][]string),
	}

	for id, block := range blocks {
		parentID := block.ParentID

		parent, ok := blocks[parentID]
		if parentID == "" || parentID == id || !ok || !parent.Type.IsContainer() {
			idx.roots = append(idx.roots, id)

			continue
		}

		idx.parent[id] = parentID
		idx.children[parentID] = append(idx.children[parentID], id)
	}

	// A parent chain that loops back on itself has no root; cut the cycle at its smallest id.
	for _, id := range sortedKeys(blocks) {
		if cycle := idx.cycleFrom(id); len(cycle) > 0 {
			cut := slices.Min(cycle)
			idx.detach(cut)
		}
	}

	slices.Sort(idx.roots)

	for parentID := range idx.children {
		slices.Sort(idx.children[parentID])
	}

	return idx
}

// Block returns the block with the given id.
func (idx *Index) Block(id string) (*models.Block, bool) {
	block, ok := idx.blocks[id]

	return block, ok
}

// Parent returns the effective container of id.
func (idx *Index) Parent(id string) (string, bool) {
	parentID, ok := idx.parent[id]

	return parentID, ok
}

// Children returns the direct members of a container, sorted by id.
func (idx *Index) Children(id string) []string {
	return idx.children[id]
}

// Roots returns the ids of top-level blocks, sorted.
func (idx *Index) Roots() []string {
	return idx.roots
}

// Depth returns the nesting depth of id; top-level blocks have depth 0.
func (idx *Index) Depth(id string) int {
	depth := 0

	for {
		parentID, ok := idx.parent[id]
		if !ok {
			return depth
		}

		depth++
		id = parentID
	}
}

// Containers returns every container block id, deepest first, ties broken by id.
func (idx *Index) Containers() []string {
	var containers []string

	for id, block := range idx.blocks {
		if block.Type.IsContainer() {
			containers = append(containers, id)
		}
	}

	slices.SortFunc(containers, func(a, b string) int {
		da, db := idx.Depth(a), idx.Depth(b)
		if da != db {
			return db - da
		}

		if a < b {
			return -1
		}

		if a > b {
			return 1
		}

		return 0
	})

	return containers
}

// IsDescendant reports whether id is nested, at any depth, inside ancestorID.
func (idx *Index) IsDescendant(id, ancestorID string) bool {
	for {
		parentID, ok := idx.parent[id]
		if !ok {
			return false
		}

		if parentID == ancestorID {
			return true
		}

		id = parentID
	}
}

func (idx *Index) cycleFrom(start string) []string {
	seen := map[string]bool{}
	path := []string{}
	id := start

	for {
		if seen[id] {
			at := slices.Index(path, id)

			return path[at:]
		}

		parentID, ok := idx.parent[id]
		if !ok {
			return nil
		}

		seen[id] = true
		path = append(path, id)
		id = parentID
	}
}

func (idx *Index) detach(id string) {
	parentID, ok := idx.parent[id]
	if !ok {
		return
	}

	delete(idx.parent, id)
	idx.children[parentID] = slices.DeleteFunc(idx.children[parentID], func(child string) bool {
		return child == id
	})
	idx.roots = append(idx.roots, id)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}
