package domain

import "time"

// AgentStatus is the lifecycle state of a registered agent.
type AgentStatus string

const (
	StatusInitializing AgentStatus = "initializing"
	StatusActive       AgentStatus = "active"
	StatusInactive     AgentStatus = "inactive"
	StatusError        AgentStatus = "error"
)

// ValidStatus reports whether s is one of the known lifecycle states.
func ValidStatus(s AgentStatus) bool {
	switch s {
	case StatusInitializing, StatusActive, StatusInactive, StatusError:
		return true
	}
	return false
}

// Performance holds the reported performance counters of an agent.
// Fields are pointers because agents report them incrementally; scoring
// distinguishes "not reported yet" from a zero value.
type Performance struct {
	SuccessRate    *float64 `json:"success_rate,omitempty"`
	ResponseTimeMS *float64 `json:"response_time_ms,omitempty"`
	RequestCount   *int64   `json:"request_count,omitempty"`
}

// Clone returns a deep copy.
func (p *Performance) Clone() *Performance {
	if p == nil {
		return nil
	}
	cp := &Performance{}
	if p.SuccessRate != nil {
		v := *p.SuccessRate
		cp.SuccessRate = &v
	}
	if p.ResponseTimeMS != nil {
		v := *p.ResponseTimeMS
		cp.ResponseTimeMS = &v
	}
	if p.RequestCount != nil {
		v := *p.RequestCount
		cp.RequestCount = &v
	}
	return cp
}

// AgentRecord is a catalog entry for one agent. The catalog owns these
// exclusively: callers receive copies and mutate only through catalog
// operations.
type AgentRecord struct {
	ID           string         `json:"id"`
	Capabilities []string       `json:"capabilities"`
	Status       AgentStatus    `json:"status"`
	Performance  *Performance   `json:"performance,omitempty"`
	Load         *float64       `json:"load,omitempty"`
	CurrentTask  string         `json:"current_task,omitempty"`
	LastSelected *time.Time     `json:"last_selected,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	RegisteredAt time.Time      `json:"registered_at"`
	LastUpdated  time.Time      `json:"last_updated"`
}

// HasCapability reports whether the record declares the capability.
// Capabilities are opaque strings with exact-match semantics.
func (r *AgentRecord) HasCapability(capability string) bool {
	for _, c := range r.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the record.
func (r *AgentRecord) Clone() *AgentRecord {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Capabilities = append([]string(nil), r.Capabilities...)
	cp.Performance = r.Performance.Clone()
	if r.Load != nil {
		v := *r.Load
		cp.Load = &v
	}
	if r.LastSelected != nil {
		t := *r.LastSelected
		cp.LastSelected = &t
	}
	if r.Metadata != nil {
		cp.Metadata = DeepCopyMap(r.Metadata)
	}
	return &cp
}

// AgentRegistration is the payload for registering a new agent.
// Status defaults to StatusInitializing when empty.
type AgentRegistration struct {
	Capabilities []string       `json:"capabilities"`
	Status       AgentStatus    `json:"status,omitempty"`
	Performance  *Performance   `json:"performance,omitempty"`
	Load         *float64       `json:"load,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// AgentUpdate is a partial update to an existing record. Nil fields are left
// untouched; non-nil fields replace the stored value wholesale (a provided
// Performance block replaces the whole block, it is not merged field-wise).
type AgentUpdate struct {
	Capabilities []string       `json:"capabilities,omitempty"`
	Status       *AgentStatus   `json:"status,omitempty"`
	Performance  *Performance   `json:"performance,omitempty"`
	Load         *float64       `json:"load,omitempty"`
	CurrentTask  *string        `json:"current_task,omitempty"`
	LastSelected *time.Time     `json:"last_selected,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}
