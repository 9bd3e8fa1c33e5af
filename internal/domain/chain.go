package domain

// ChainStep is one entry of a configured tool chain: the tool to run and the
// minimum post-execution success rate required to continue past it.
type ChainStep struct {
	Tool      string  `json:"tool"`
	Threshold float64 `json:"threshold"`
}

// ExecutedStep pairs a chain step with its outcome.
type ExecutedStep struct {
	Tool   string     `json:"tool"`
	Result ToolResult `json:"result"`
}

// ChainOutcome is the result of running a tool chain. A stopped chain is not
// an error: the steps that did run are returned, with the stop reason.
type ChainOutcome struct {
	Intent     string         `json:"intent"`
	Steps      []ExecutedStep `json:"steps"`
	Stopped    bool           `json:"stopped"`
	StopReason string         `json:"stop_reason,omitempty"`
}

// ToolSelection is the winner of one selection round.
type ToolSelection struct {
	Name       string  `json:"name"`
	Raw        float64 `json:"raw"`        // the tool's own CanHandle score
	Confidence float64 `json:"confidence"` // raw scaled by historical reliability
}
