package models

// SubflowType is the kind of container a subflow configures.
type SubflowType string

const (
	SubflowTypeLoop     SubflowType = "loop"
	SubflowTypeParallel SubflowType = "parallel"
)

// Loop is the editor-facing configuration of a loop container.
type Loop struct {
	ID           string   `json:"id"`
	Nodes        []string `json:"nodes"`
	Iterations   int      `json:"iterations"`
	LoopType     string   `json:"loopType,omitempty"` // "for" or "forEach"
	ForEachItems any      `json:"forEachItems,omitempty"`
}

// Parallel is the editor-facing configuration of a parallel container.
type Parallel struct {
	ID           string   `json:"id"`
	Nodes        []string `json:"nodes"`
	Distribution any      `json:"distribution,omitempty"`
	Count        int      `json:"count,omitempty"`
	ParallelType string   `json:"parallelType,omitempty"` // "count" or "collection"
}

// SubflowConfig is the persisted configuration of a container: iteration or branch settings
// plus the ids of its member blocks.
type SubflowConfig struct {
	ID           string   `json:"id"`
	Nodes        []string `json:"nodes"`
	Iterations   int      `json:"iterations,omitempty"`
	LoopType     string   `json:"loopType,omitempty"`
	ForEachItems any      `json:"forEachItems,omitempty"`
	Distribution any      `json:"distribution,omitempty"`
	Count        int      `json:"count,omitempty"`
	ParallelType string   `json:"parallelType,omitempty"`
}

// Subflow is the configuration record of a container block. Its ID equals the container's block ID.
type Subflow struct {
	ID         string        `json:"id"`
	WorkflowID string        `json:"workflowId"`
	Type       SubflowType   `json:"type"`
	Config     SubflowConfig `json:"config"`
}
