package models

// BlockType is the closed set of block kinds a workflow graph may contain.
type BlockType string

const (
	BlockTypeStarter   BlockType = "starter"
	BlockTypeAgent     BlockType = "agent"
	BlockTypeAPI       BlockType = "api"
	BlockTypeCondition BlockType = "condition"
	BlockTypeRouter    BlockType = "router"
	BlockTypeFunction  BlockType = "function"
	BlockTypeEvaluator BlockType = "evaluator"
	BlockTypeResponse  BlockType = "response"
	BlockTypeWebhook   BlockType = "webhook"
	BlockTypeSchedule  BlockType = "schedule"
	BlockTypeKnowledge BlockType = "knowledge"
	BlockTypeWorkflow  BlockType = "workflow"
	BlockTypeNote      BlockType = "note"
	BlockTypeLoop      BlockType = "loop"     // Container
	BlockTypeParallel  BlockType = "parallel" // Container
)

// ExtentParent is the only legal extent value; it marks a block positioned inside its parent.
const ExtentParent = "parent"

var knownBlockTypes = map[BlockType]struct{}{
	BlockTypeStarter:   {},
	BlockTypeAgent:     {},
	BlockTypeAPI:       {},
	BlockTypeCondition: {},
	BlockTypeRouter:    {},
	BlockTypeFunction:  {},
	BlockTypeEvaluator: {},
	BlockTypeResponse:  {},
	BlockTypeWebhook:   {},
	BlockTypeSchedule:  {},
	BlockTypeKnowledge: {},
	BlockTypeWorkflow:  {},
	BlockTypeNote:      {},
	BlockTypeLoop:      {},
	BlockTypeParallel:  {},
}

// Valid reports whether t is one of the known block kinds.
func (t BlockType) Valid() bool {
	_, ok := knownBlockTypes[t]

	return ok
}

// IsContainer reports whether blocks of this kind own a nested sub-graph.
func (t BlockType) IsContainer() bool {
	return t == BlockTypeLoop || t == BlockTypeParallel
}

// Position is a 2D canvas coordinate. Nested blocks are positioned relative to their parent.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SubBlock is one editable field inside a block.
type SubBlock struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// Block is a single node of a workflow graph.
type Block struct {
	ID               string               `json:"id"                validate:"required"`
	Type             BlockType            `json:"type"              validate:"required"`
	Name             string               `json:"name"`
	Position         Position             `json:"position"`
	ParentID         string               `json:"parentId,omitempty"`
	Extent           string               `json:"extent,omitempty"  validate:"omitempty,eq=parent"`
	Enabled          bool                 `json:"enabled"`
	HorizontalHandle bool                 `json:"horizontalHandles"`
	IsWide           bool                 `json:"isWide"`
	Height           float64              `json:"height"`
	Data             map[string]any       `json:"data,omitempty"`
	SubBlocks        map[string]*SubBlock `json:"subBlocks"`
	Outputs          map[string]any       `json:"outputs"`
}

// DataParentID returns the parent id mirrored into the editor data, if any.
func (b *Block) DataParentID() (string, bool) {
	if b.Data == nil {
		return "", false
	}

	parentID, ok := b.Data["parentId"].(string)

	return parentID, ok && parentID != ""
}

// DataDimension returns a numeric size hint stored in the editor data (width or height).
func (b *Block) DataDimension(key string) (float64, bool) {
	if b.Data == nil {
		return 0, false
	}

	switch v := b.Data[key].(type) {
	case float64:
		return v, v > 0
	case int:
		return float64(v), v > 0
	default:
		return 0, false
	}
}

// Edge connects two blocks of the same workflow.
type Edge struct {
	ID           string `json:"id"                     validate:"required"`
	Source       string `json:"source"                 validate:"required"`
	Target       string `json:"target"                 validate:"required"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
	Type         string `json:"type,omitempty"`
}
