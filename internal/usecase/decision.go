package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"switchboard/internal/domain"
	"switchboard/internal/infra/metrics"
	"switchboard/internal/infra/tracer"
)

// Weights are the scoring coefficients for agent selection.
type Weights struct {
	Performance float64
	Load        float64
}

// DefaultWeights favor proven performance over current idleness.
func DefaultWeights() Weights {
	return Weights{Performance: 0.6, Load: 0.4}
}

// Decision is the outcome of routing one capability request.
type Decision struct {
	AgentID string  `json:"agent_id"`
	Score   float64 `json:"score"`
}

// Engine scores capable agents and picks the best one for a task.
// It is stateless apart from the weights, which can be swapped at
// runtime (config reload); a swap applies to subsequent calls only.
type Engine struct {
	catalog *Catalog
	weights atomic.Pointer[Weights]
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewEngine creates an engine over catalog. Zero weights fall back to
// the defaults.
func NewEngine(catalog *Catalog, w Weights, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if w.Performance == 0 && w.Load == 0 {
		w = DefaultWeights()
	}
	e := &Engine{
		catalog: catalog,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
	e.weights.Store(&w)
	return e
}

// SetWeights replaces the scoring weights for subsequent routes.
func (e *Engine) SetWeights(w Weights) {
	if w.Performance == 0 && w.Load == 0 {
		w = DefaultWeights()
	}
	e.weights.Store(&w)
	e.logger.Info("routing weights updated", "performance", w.Performance, "load", w.Load)
}

// CurrentWeights returns the weights in effect.
func (e *Engine) CurrentWeights() Weights {
	return *e.weights.Load()
}

// Candidates returns the active agents declaring capability, in
// registration order. No capable agents at all and capable-but-none-
// active are distinct failures.
func (e *Engine) Candidates(capability string) ([]*domain.AgentRecord, error) {
	capable := e.catalog.GetByCapability(capability)
	if len(capable) == 0 {
		return nil, domain.NewDomainError("engine.candidates", domain.ErrNoCapableAgents, capability)
	}

	active := capable[:0]
	for _, rec := range capable {
		if rec.Status == domain.StatusActive {
			active = append(active, rec)
		}
	}
	if len(active) == 0 {
		return nil, domain.NewDomainError("engine.candidates", domain.ErrNoActiveAgents, capability)
	}
	return active, nil
}

// Score computes the weighted suitability of one agent:
// performance weight * success rate + load weight * (1 - load).
// An agent that has reported neither an explicit load nor the counters
// to derive one, or no success rate, cannot be scored.
func (e *Engine) Score(rec *domain.AgentRecord) (float64, error) {
	perf, err := performanceOf(rec)
	if err != nil {
		return 0, err
	}
	load, err := loadOf(rec)
	if err != nil {
		return 0, err
	}
	w := e.weights.Load()
	return w.Performance*perf + w.Load*(1-load), nil
}

// Route picks the highest-scoring active agent for capability and
// records the selection on the winner (last_selected, current_task).
// Scoring is all or nothing: one unscorable candidate fails the whole
// call rather than silently skewing the comparison. Ties keep the
// earliest-registered candidate.
func (e *Engine) Route(ctx context.Context, capability string) (Decision, error) {
	ctx, span := tracer.StartSpan(ctx, "engine.route")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("capability", capability))

	decision, err := e.route(ctx, capability)
	e.metrics.ObserveRoutingDecision(capability, err)
	if err != nil {
		tracer.RecordError(span, err)
		return Decision{}, err
	}

	span.SetAttributes(
		tracer.StringAttr("agent_id", decision.AgentID),
		tracer.Float64Attr("score", decision.Score),
	)
	tracer.SetOK(span)
	return decision, nil
}

func (e *Engine) route(ctx context.Context, capability string) (Decision, error) {
	candidates, err := e.Candidates(capability)
	if err != nil {
		return Decision{}, err
	}

	scores := make([]float64, len(candidates))
	for i, rec := range candidates {
		s, err := e.Score(rec)
		if err != nil {
			return Decision{}, err
		}
		scores[i] = s
	}

	best := 0
	for i := 1; i < len(candidates); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	winner := candidates[best]

	now := e.now()
	task := capability
	if err := e.catalog.Update(ctx, winner.ID, domain.AgentUpdate{
		LastSelected: &now,
		CurrentTask:  &task,
	}); err != nil {
		return Decision{}, domain.WrapOp("engine.route", err)
	}

	e.logger.Info("task routed",
		"capability", capability,
		"agent_id", winner.ID,
		"score", scores[best],
		"candidates", len(candidates),
	)
	return Decision{AgentID: winner.ID, Score: scores[best]}, nil
}

// performanceOf extracts the success-rate signal.
func performanceOf(rec *domain.AgentRecord) (float64, error) {
	if rec.Performance != nil && rec.Performance.SuccessRate != nil {
		return *rec.Performance.SuccessRate, nil
	}
	return 0, domain.NewDomainError("engine.score", domain.ErrInvalidMetrics,
		fmt.Sprintf("agent %s: no success rate", rec.ID))
}

// loadOf extracts the load signal: the explicitly reported load when
// present, otherwise request_count * response_time_ms / 10000 capped
// at 1.0.
func loadOf(rec *domain.AgentRecord) (float64, error) {
	if rec.Load != nil {
		return *rec.Load, nil
	}
	if p := rec.Performance; p != nil && p.RequestCount != nil && p.ResponseTimeMS != nil {
		derived := float64(*p.RequestCount) * *p.ResponseTimeMS / 10000.0
		if derived > 1.0 {
			derived = 1.0
		}
		return derived, nil
	}
	return 0, domain.NewDomainError("engine.score", domain.ErrInvalidMetrics,
		fmt.Sprintf("agent %s: no load signal", rec.ID))
}
