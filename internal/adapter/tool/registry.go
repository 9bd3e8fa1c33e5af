package tool

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"switchboard/internal/domain"
	"switchboard/internal/infra/config"
	"switchboard/internal/infra/metrics"
)

// entry is one registered tool plus the state the registry owns for it:
// version history and execution metrics. Metrics are a read-modify-write
// hot spot, so each entry carries its own lock, independent of the
// registry lock that guards the map.
type entry struct {
	tool   domain.Tool
	info   domain.ToolInfo
	compat []string

	mu      sync.Mutex
	metrics domain.ToolMetrics
}

// successRate returns the entry's current success rate.
func (e *entry) successRate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics.SuccessRate
}

func (e *entry) record() domain.ToolRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.ToolRecord{
		ToolInfo:           e.info,
		CompatibleVersions: append([]string(nil), e.compat...),
		Metrics:            e.metrics,
	}
}

// Registry is the tool catalog: named tools, their version history, their
// execution metrics, and the chain definitions per intent. Selection,
// execution and chaining live in selector.go, executor.go and chain.go.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*entry
	chains map[string][]domain.ChainStep

	rateLimit *config.RateLimitConfig // nil = unlimited
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewRegistry creates an empty tool registry. When rateLimit is non-nil,
// every registered tool is wrapped with a per-tool rate limiter.
func NewRegistry(rateLimit *config.RateLimitConfig, m *metrics.Metrics, logger *slog.Logger) *Registry {
	return &Registry{
		tools:     make(map[string]*entry),
		chains:    make(map[string][]domain.ChainStep),
		rateLimit: rateLimit,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Register adds a tool under its declared name. Re-registering a name with a
// different version archives the old version into the compatible list before
// the new tool takes over; the same version replaces in place. Metrics
// survive re-registration: execution history belongs to the name, not the
// instance.
func (r *Registry) Register(t domain.Tool) error {
	info := t.Info()
	if info.Name == "" {
		return domain.NewSubSystemError("tool", "registry.register", domain.ErrInvalidInput, "tool name must not be empty")
	}

	wrapped, err := WithSchemaValidation(t)
	if err != nil {
		r.logger.Warn("schema validation disabled for tool", "tool", info.Name, "error", err)
		wrapped = t
	}
	if r.rateLimit != nil && r.rateLimit.PerSecond > 0 {
		wrapped = WithRateLimit(wrapped, rate.NewLimiter(rate.Limit(r.rateLimit.PerSecond), r.rateLimit.Burst))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e := &entry{tool: wrapped, info: info}
	if prev, exists := r.tools[info.Name]; exists {
		e.compat = append([]string(nil), prev.compat...)
		if prev.info.Version != info.Version && !contains(e.compat, prev.info.Version) {
			e.compat = append(e.compat, prev.info.Version)
		}
		prev.mu.Lock()
		e.metrics = prev.metrics
		prev.mu.Unlock()
		r.logger.Info("tool re-registered",
			"tool", info.Name,
			"version", info.Version,
			"compatible_versions", e.compat,
		)
	} else {
		r.logger.Info("tool registered", "tool", info.Name, "version", info.Version)
	}

	r.tools[info.Name] = e
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tools[name]
	if !ok {
		return nil, domain.NewSubSystemError("tool", "registry.get", domain.ErrNotFound, name)
	}
	return e.tool, nil
}

// Record returns the catalog snapshot for one tool: info, version history
// and a copy of the current metrics.
func (r *Registry) Record(name string) (domain.ToolRecord, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return domain.ToolRecord{}, domain.NewSubSystemError("tool", "registry.record", domain.ErrNotFound, name)
	}
	return e.record(), nil
}

// Records returns snapshots for every registered tool, sorted by name.
func (r *Registry) Records() []domain.ToolRecord {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.tools))
	for _, e := range r.tools {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]domain.ToolRecord, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.record())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// lookup returns the entry for name.
func (r *Registry) lookup(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e, ok
}

// sortedEntries returns every entry in name order, for deterministic
// selection sweeps.
func (r *Registry) sortedEntries() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*entry, 0, len(r.tools))
	for _, e := range r.tools {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].info.Name < entries[j].info.Name })
	return entries
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
