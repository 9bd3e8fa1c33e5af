package domain

import "time"

// InteractionKind classifies interaction log entries.
type InteractionKind string

const (
	InteractionRouting InteractionKind = "routing"
	InteractionTool    InteractionKind = "tool"
)

// InteractionRecord is one routing decision or tool execution, kept for
// offline analysis. Writing these is best-effort: the log is a sink and its
// failures never surface to the routed operation.
type InteractionRecord struct {
	ID         string          `json:"id"` // ULID
	Kind       InteractionKind `json:"kind"`
	SessionID  string          `json:"session_id,omitempty"`
	Intent     string          `json:"intent"` // capability for routing entries
	Target     string          `json:"target"` // selected agent or tool name
	Success    bool            `json:"success"`
	DurationMS float64         `json:"duration_ms"`
	Detail     map[string]any  `json:"detail,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// InteractionSummary aggregates outcomes for one intent.
type InteractionSummary struct {
	Intent    string  `json:"intent"`
	Total     int64   `json:"total"`
	Succeeded int64   `json:"succeeded"`
	AvgMS     float64 `json:"avg_ms"`
}
