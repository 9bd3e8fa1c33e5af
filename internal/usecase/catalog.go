package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"switchboard/internal/domain"
	"switchboard/internal/infra/metrics"
)

// Catalog is the registry of known agents. All mutations are serialized
// under one mutex and written through to a JSON snapshot, so a restart
// reloads the exact registered state. Iteration order is registration
// order.
type Catalog struct {
	mu     sync.Mutex
	agents map[string]*domain.AgentRecord
	order  []string // registration order, the iteration contract

	path    string // empty disables persistence
	bus     domain.EventBus
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewCatalog creates a catalog persisting to path. An empty path keeps
// the catalog purely in memory. An existing snapshot is loaded; a
// corrupt one is an error rather than a silent empty catalog.
func NewCatalog(path string, bus domain.EventBus, m *metrics.Metrics, logger *slog.Logger) (*Catalog, error) {
	c := &Catalog{
		agents:  make(map[string]*domain.AgentRecord),
		path:    path,
		bus:     bus,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}

	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("catalog: create dir: %w", err)
		}
		if err := c.load(); err != nil {
			return nil, fmt.Errorf("catalog: load: %w", err)
		}
	}

	return c, nil
}

// Register adds a new agent. The id must be unused; registering a known
// id fails with ErrAlreadyRegistered. An empty status defaults to
// initializing.
func (c *Catalog) Register(ctx context.Context, id string, reg domain.AgentRegistration) error {
	if id == "" {
		return domain.NewDomainError("catalog.register", domain.ErrInvalidInput, "agent id must not be empty")
	}
	status := reg.Status
	if status == "" {
		status = domain.StatusInitializing
	}
	if !domain.ValidStatus(status) {
		return domain.NewDomainError("catalog.register", domain.ErrInvalidInput, fmt.Sprintf("unknown status %q", status))
	}

	c.mu.Lock()
	if _, exists := c.agents[id]; exists {
		c.mu.Unlock()
		return domain.NewDomainError("catalog.register", domain.ErrAlreadyRegistered, id)
	}

	now := c.now()
	rec := &domain.AgentRecord{
		ID:           id,
		Capabilities: append([]string(nil), reg.Capabilities...),
		Status:       status,
		Performance:  reg.Performance.Clone(),
		Metadata:     domain.DeepCopyMap(reg.Metadata),
		RegisteredAt: now,
		LastUpdated:  now,
	}
	if reg.Load != nil {
		v := *reg.Load
		rec.Load = &v
	}

	c.agents[id] = rec
	c.order = append(c.order, id)
	c.save()
	active := c.activeCountLocked()
	capabilities := append([]string(nil), rec.Capabilities...)
	c.mu.Unlock()

	c.metrics.ObserveRegistration()
	c.metrics.SetActiveAgents(active)
	c.publish(ctx, domain.EventAgentRegistered, map[string]any{
		"agent_id":     id,
		"capabilities": capabilities,
		"status":       string(status),
	})
	c.logger.Info("agent registered", "agent_id", id, "capabilities", capabilities, "status", status)
	return nil
}

// Update applies a partial update to a registered agent. Nil fields are
// left alone; non-nil fields replace the stored value wholesale. The
// record's last_updated is refreshed on every successful update.
func (c *Catalog) Update(ctx context.Context, id string, upd domain.AgentUpdate) error {
	if upd.Status != nil && !domain.ValidStatus(*upd.Status) {
		return domain.NewDomainError("catalog.update", domain.ErrInvalidInput, fmt.Sprintf("unknown status %q", *upd.Status))
	}

	c.mu.Lock()
	rec, exists := c.agents[id]
	if !exists {
		c.mu.Unlock()
		return domain.NewDomainError("catalog.update", domain.ErrNotRegistered, id)
	}

	if upd.Capabilities != nil {
		rec.Capabilities = append([]string(nil), upd.Capabilities...)
	}
	if upd.Status != nil {
		rec.Status = *upd.Status
	}
	if upd.Performance != nil {
		rec.Performance = upd.Performance.Clone()
	}
	if upd.Load != nil {
		v := *upd.Load
		rec.Load = &v
	}
	if upd.CurrentTask != nil {
		rec.CurrentTask = *upd.CurrentTask
	}
	if upd.LastSelected != nil {
		t := *upd.LastSelected
		rec.LastSelected = &t
	}
	if upd.Metadata != nil {
		rec.Metadata = domain.DeepCopyMap(upd.Metadata)
	}
	rec.LastUpdated = c.now()
	c.save()
	active := c.activeCountLocked()
	status := rec.Status
	c.mu.Unlock()

	c.metrics.SetActiveAgents(active)
	c.publish(ctx, domain.EventAgentUpdated, map[string]any{
		"agent_id": id,
		"status":   string(status),
	})
	return nil
}

// Unregister removes an agent from the catalog.
func (c *Catalog) Unregister(ctx context.Context, id string) error {
	c.mu.Lock()
	if _, exists := c.agents[id]; !exists {
		c.mu.Unlock()
		return domain.NewDomainError("catalog.unregister", domain.ErrNotRegistered, id)
	}

	delete(c.agents, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.save()
	active := c.activeCountLocked()
	c.mu.Unlock()

	c.metrics.SetActiveAgents(active)
	c.publish(ctx, domain.EventAgentUnregistered, map[string]any{"agent_id": id})
	c.logger.Info("agent unregistered", "agent_id", id)
	return nil
}

// Get returns a copy of the agent record.
func (c *Catalog) Get(id string) (*domain.AgentRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, exists := c.agents[id]
	if !exists {
		return nil, domain.NewDomainError("catalog.get", domain.ErrNotRegistered, id)
	}
	return rec.Clone(), nil
}

// GetAll returns copies of every record in registration order.
func (c *Catalog) GetAll() []*domain.AgentRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*domain.AgentRecord, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.agents[id].Clone())
	}
	return out
}

// GetByCapability returns copies of the records declaring capability,
// in registration order.
func (c *Catalog) GetByCapability(capability string) []*domain.AgentRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*domain.AgentRecord
	for _, id := range c.order {
		if rec := c.agents[id]; rec.HasCapability(capability) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// GetActive returns copies of the records with active status, in
// registration order.
func (c *Catalog) GetActive() []*domain.AgentRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*domain.AgentRecord
	for _, id := range c.order {
		if rec := c.agents[id]; rec.Status == domain.StatusActive {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// Len returns the number of registered agents.
func (c *Catalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.agents)
}

func (c *Catalog) activeCountLocked() int {
	n := 0
	for _, rec := range c.agents {
		if rec.Status == domain.StatusActive {
			n++
		}
	}
	return n
}

func (c *Catalog) publish(ctx context.Context, t domain.EventType, payload map[string]any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(ctx, domain.Event{Type: t, Timestamp: c.now(), Payload: payload})
}

// load reads the snapshot and rebuilds registration order from the
// recorded timestamps (ids break ties).
func (c *Catalog) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var snapshot map[string]*domain.AgentRecord
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(c.path), err)
	}

	c.agents = make(map[string]*domain.AgentRecord, len(snapshot))
	c.order = make([]string, 0, len(snapshot))
	for id, rec := range snapshot {
		if rec == nil {
			continue
		}
		rec.ID = id
		c.agents[id] = rec
		c.order = append(c.order, id)
	}
	sort.Slice(c.order, func(i, j int) bool {
		a, b := c.agents[c.order[i]], c.agents[c.order[j]]
		if !a.RegisteredAt.Equal(b.RegisteredAt) {
			return a.RegisteredAt.Before(b.RegisteredAt)
		}
		return a.ID < b.ID
	})

	c.logger.Info("agent catalog loaded", "agents", len(c.agents), "path", c.path)
	return nil
}

// save writes the full snapshot atomically. Persistence failures are
// logged, not returned: the in-memory state is authoritative and a
// transient disk error must not fail the mutation that already
// happened.
func (c *Catalog) save() {
	if c.path == "" {
		return
	}
	if err := writeJSON(c.path, c.agents); err != nil {
		c.logger.Error("agent catalog save failed", "path", c.path, "error", err)
	}
}

// writeJSON atomically writes v as indented JSON to path.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return domain.WrapOp("marshal", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return domain.WrapOp("write", err)
	}
	return os.Rename(tmp, path)
}
