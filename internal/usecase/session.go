package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"switchboard/internal/domain"
	"switchboard/internal/infra/metrics"
	"switchboard/internal/infra/tracer"
)

// SessionBackend persists session state. Load returns (nil, nil) for an
// unknown id; Delete reports whether anything was removed. The manager
// serializes all calls, so implementations need no locking of their own.
type SessionBackend interface {
	Load(ctx context.Context, id string) (*domain.SessionState, error)
	Save(ctx context.Context, state *domain.SessionState) error
	Delete(ctx context.Context, id string) (bool, error)
}

// sweepable marks backends without native expiry. The Redis backend
// expires sessions itself and deliberately does not implement this.
type sweepable interface {
	ExpiredIDs(now time.Time, ttl time.Duration) []string
	Count() int
}

// SessionManager is the shared per-session state store. One mutex
// serializes every operation, sweeps included; listeners observe
// events synchronously after the state change is committed.
type SessionManager struct {
	mu      sync.Mutex
	backend SessionBackend

	ttl     time.Duration
	bus     domain.EventBus
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewSessionManager creates a manager over backend with the given TTL.
func NewSessionManager(backend SessionBackend, ttl time.Duration, bus domain.EventBus, m *metrics.Metrics, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		backend: backend,
		ttl:     ttl,
		bus:     bus,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// SetTTL replaces the expiration window for subsequent sweeps.
func (m *SessionManager) SetTTL(ttl time.Duration) {
	m.mu.Lock()
	m.ttl = ttl
	m.mu.Unlock()
	m.logger.Info("session ttl updated", "ttl", ttl)
}

// TTL returns the expiration window in effect.
func (m *SessionManager) TTL() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttl
}

// Create makes an empty session. Creating an existing session is a
// no-op: no timestamp bump, no event.
func (m *SessionManager) Create(ctx context.Context, id string) error {
	m.mu.Lock()
	existing, err := m.backend.Load(ctx, id)
	if err != nil {
		m.mu.Unlock()
		return domain.NewSubSystemError("session", "session.create", domain.ErrUnavailable, err.Error())
	}
	if existing != nil {
		m.mu.Unlock()
		return nil
	}
	state := &domain.SessionState{ID: id, Data: map[string]any{}, Timestamp: m.now()}
	if err := m.backend.Save(ctx, state); err != nil {
		m.mu.Unlock()
		return domain.NewSubSystemError("session", "session.create", domain.ErrUnavailable, err.Error())
	}
	m.updateGaugeLocked()
	m.mu.Unlock()

	m.logger.Debug("session created", "session_id", id)
	m.publish(ctx, domain.EventSessionCreated, id, nil)
	return nil
}

// Set stores one key. A missing session is created implicitly; every
// write refreshes the session timestamp.
func (m *SessionManager) Set(ctx context.Context, id, key string, value any) error {
	m.mu.Lock()
	state, err := m.loadOrInitLocked(ctx, id)
	if err != nil {
		m.mu.Unlock()
		return domain.NewSubSystemError("session", "session.set", domain.ErrUnavailable, err.Error())
	}
	state.Data[key] = domain.DeepCopyValue(value)
	state.Timestamp = m.now()
	if err := m.backend.Save(ctx, state); err != nil {
		m.mu.Unlock()
		return domain.NewSubSystemError("session", "session.set", domain.ErrUnavailable, err.Error())
	}
	m.updateGaugeLocked()
	m.mu.Unlock()

	m.publish(ctx, domain.EventSessionSet, id, map[string]any{key: value})
	return nil
}

// UpdatePartial deep-merges partial into the session state: nested maps
// merge recursively, everything else replaces wholesale. A missing
// session is created implicitly.
func (m *SessionManager) UpdatePartial(ctx context.Context, id string, partial map[string]any) error {
	m.mu.Lock()
	state, err := m.loadOrInitLocked(ctx, id)
	if err != nil {
		m.mu.Unlock()
		return domain.NewSubSystemError("session", "session.update", domain.ErrUnavailable, err.Error())
	}
	state.Data = domain.DeepMerge(state.Data, partial)
	state.Timestamp = m.now()
	if err := m.backend.Save(ctx, state); err != nil {
		m.mu.Unlock()
		return domain.NewSubSystemError("session", "session.update", domain.ErrUnavailable, err.Error())
	}
	m.updateGaugeLocked()
	m.mu.Unlock()

	m.publish(ctx, domain.EventSessionUpdated, id, domain.DeepCopyMap(partial))
	return nil
}

// GetAll returns a deep copy of the session's state. An unknown session
// yields an empty map, not an error.
func (m *SessionManager) GetAll(ctx context.Context, id string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.backend.Load(ctx, id)
	if err != nil {
		return nil, domain.NewSubSystemError("session", "session.get", domain.ErrUnavailable, err.Error())
	}
	if state == nil {
		return map[string]any{}, nil
	}
	return domain.DeepCopyMap(state.Data), nil
}

// Delete removes a session. Deleting an unknown session is a no-op and
// fires no event.
func (m *SessionManager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	deleted, err := m.backend.Delete(ctx, id)
	if err != nil {
		m.mu.Unlock()
		return domain.NewSubSystemError("session", "session.delete", domain.ErrUnavailable, err.Error())
	}
	m.updateGaugeLocked()
	m.mu.Unlock()

	if deleted {
		m.logger.Debug("session deleted", "session_id", id)
		m.publish(ctx, domain.EventSessionDeleted, id, nil)
	}
	return nil
}

// Sweep removes every session whose timestamp is older than the TTL
// and fires one gc event per removed session. Backends with native
// expiry are not swept; the call is a no-op for them.
func (m *SessionManager) Sweep(ctx context.Context) (int, error) {
	ctx, span := tracer.StartSpan(ctx, "session.sweep")
	defer span.End()

	m.mu.Lock()
	sw, ok := m.backend.(sweepable)
	if !ok {
		m.mu.Unlock()
		return 0, nil
	}

	expired := sw.ExpiredIDs(m.now(), m.ttl)
	reaped := make([]string, 0, len(expired))
	for _, id := range expired {
		deleted, err := m.backend.Delete(ctx, id)
		if err != nil {
			m.mu.Unlock()
			return len(reaped), domain.NewSubSystemError("session", "session.sweep", domain.ErrUnavailable, err.Error())
		}
		if deleted {
			reaped = append(reaped, id)
		}
	}
	m.updateGaugeLocked()
	m.mu.Unlock()

	for _, id := range reaped {
		m.publish(ctx, domain.EventSessionGC, id, nil)
	}

	m.metrics.ObserveSweep(len(reaped))
	span.SetAttributes(tracer.IntAttr("reaped", len(reaped)))
	tracer.SetOK(span)
	if len(reaped) > 0 {
		m.logger.Info("session sweep", "reaped", len(reaped))
	}
	return len(reaped), nil
}

// loadOrInitLocked fetches the session or initializes a fresh one.
// Caller holds the mutex.
func (m *SessionManager) loadOrInitLocked(ctx context.Context, id string) (*domain.SessionState, error) {
	state, err := m.backend.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = &domain.SessionState{ID: id, Data: map[string]any{}}
	}
	return state, nil
}

func (m *SessionManager) updateGaugeLocked() {
	if sw, ok := m.backend.(sweepable); ok {
		m.metrics.SetActiveSessions(sw.Count())
	}
}

func (m *SessionManager) publish(ctx context.Context, t domain.EventType, sessionID string, payload map[string]any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(ctx, domain.Event{
		Type:      t,
		Timestamp: m.now(),
		SessionID: sessionID,
		Payload:   payload,
	})
}

// MemoryBackend is the in-process session store: a plain map, no
// locking (the manager serializes), swept by the manager's GC.
type MemoryBackend struct {
	sessions map[string]*domain.SessionState
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{sessions: make(map[string]*domain.SessionState)}
}

func (b *MemoryBackend) Load(_ context.Context, id string) (*domain.SessionState, error) {
	return b.sessions[id].Clone(), nil
}

func (b *MemoryBackend) Save(_ context.Context, state *domain.SessionState) error {
	b.sessions[state.ID] = state.Clone()
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, id string) (bool, error) {
	if _, ok := b.sessions[id]; !ok {
		return false, nil
	}
	delete(b.sessions, id)
	return true, nil
}

// ExpiredIDs returns the ids past their TTL at now.
func (b *MemoryBackend) ExpiredIDs(now time.Time, ttl time.Duration) []string {
	var ids []string
	for id, state := range b.sessions {
		if state.Expired(now, ttl) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Count returns the number of stored sessions.
func (b *MemoryBackend) Count() int {
	return len(b.sessions)
}
