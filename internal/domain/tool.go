package domain

import (
	"context"
	"encoding/json"
	"sort"
	"time"
)

// ToolInfo is the static description a tool supplies at registration.
type ToolInfo struct {
	Name           string   `json:"name"`
	Version        string   `json:"version"`
	Description    string   `json:"description,omitempty"`
	RequiredParams []string `json:"required_params,omitempty"`
}

// Tool is a pluggable capability handler. Implementations are registered with
// the tool catalog by value (factory registration); the catalog owns metrics
// and version history, the tool owns only its own logic.
//
// CanHandle returns a confidence in [0,1] that the tool suits the context.
// Run performs the work; the executor converts its errors (and panics) into
// failed ToolResults, so Run never needs to defend the caller.
type Tool interface {
	Info() ToolInfo
	CanHandle(ctx context.Context, tc ToolContext) (float64, error)
	Run(ctx context.Context, params map[string]any, tc ToolContext) (map[string]any, error)
}

// SchemaProvider is an optional Tool extension. A tool returning a JSON
// Schema gets its params validated against it before Run.
type SchemaProvider interface {
	ParamSchema() json.RawMessage
}

// ToolContext carries the per-invocation routing inputs. The core treats
// intent and entity strings as opaque keys. Not persisted.
type ToolContext struct {
	Intent       string              `json:"intent"`
	Confidence   float64             `json:"confidence"`
	Entities     map[string][]string `json:"entities,omitempty"`
	Metadata     map[string]any      `json:"metadata,omitempty"`
	ChainContext map[string]any      `json:"chain_context,omitempty"`
}

// EntityKeys returns the entity keys present, sorted for stable output.
func (tc ToolContext) EntityKeys() []string {
	keys := make([]string, 0, len(tc.Entities))
	for k := range tc.Entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ToolResult is the explicit outcome of one tool execution. Failures are
// data, not errors: Error is set and Success is false.
type ToolResult struct {
	Success       bool           `json:"success"`
	Data          map[string]any `json:"data,omitempty"`
	Error         string         `json:"error,omitempty"`
	NextTools     []string       `json:"next_tools,omitempty"`
	ExecutionTime float64        `json:"execution_time"` // seconds
}

// ToolMetrics is a point-in-time copy of a tool's execution counters.
type ToolMetrics struct {
	ExecutionTimeAvg float64   `json:"execution_time_avg"` // seconds, online average
	SuccessRate      float64   `json:"success_rate"`
	TotalExecutions  int64     `json:"total_executions"`
	FailedExecutions int64     `json:"failed_executions"`
	LastExecution    time.Time `json:"last_execution"`
}

// ToolRecord is a catalog snapshot of one registered tool: its info, version
// history, and current metrics.
type ToolRecord struct {
	ToolInfo
	CompatibleVersions []string    `json:"compatible_versions,omitempty"`
	Metrics            ToolMetrics `json:"metrics"`
}

// ToolPattern is a learned association between a tool and the contexts
// it succeeded in. Patterns are unique on (tool, intent, entity-key
// set); learning the same combination again is a silent no-op.
type ToolPattern struct {
	ToolName        string    `json:"tool_name"`
	Intent          string    `json:"intent"`
	EntitiesPresent []string  `json:"entities_present"`
	LearnedAt       time.Time `json:"learned_at"`
}

// MatchesKeySet reports whether the pattern covers the same tool,
// intent and entity-key set.
func (p ToolPattern) MatchesKeySet(toolName, intent string, entityKeys []string) bool {
	if p.ToolName != toolName || p.Intent != intent {
		return false
	}
	if len(p.EntitiesPresent) != len(entityKeys) {
		return false
	}
	present := make(map[string]bool, len(p.EntitiesPresent))
	for _, k := range p.EntitiesPresent {
		present[k] = true
	}
	for _, k := range entityKeys {
		if !present[k] {
			return false
		}
	}
	return true
}
