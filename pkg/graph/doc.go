// Package graph holds the structural rules of a workflow graph.
//
// Blocks are kept in one flat map keyed by id; containment is an id reference
// (Block.ParentID) rather than a nested tree. Algorithms that need to walk the
// containment forest build an Index once per call and navigate it through the
// explicit parent and children lookups.
//
// The package validates graph invariants, converts between the editor-facing
// loops/parallels maps and persisted subflow rows, and normalizes snapshots
// captured by copilot checkpoints before they are applied to a live workflow.
package graph
