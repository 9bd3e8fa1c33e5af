package usecase

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"switchboard/internal/domain"
	"switchboard/internal/infra/tracer"
)

// ToolRunner is the tool catalog surface the router drives: selection,
// execution, and chaining.
type ToolRunner interface {
	SelectTool(ctx context.Context, tc domain.ToolContext, minConfidence float64) (domain.ToolSelection, bool)
	Execute(ctx context.Context, name string, params map[string]any, tc domain.ToolContext) (domain.ToolResult, error)
	ExecuteChain(ctx context.Context, params map[string]any, tc domain.ToolContext) (domain.ChainOutcome, error)
	Chain(intent string) ([]domain.ChainStep, bool)
}

// InteractionSink records routing and execution outcomes for later analysis.
// It is best-effort: the router logs its failures and moves on.
type InteractionSink interface {
	Record(ctx context.Context, rec domain.InteractionRecord) error
}

// TaskRequest asks for the best agent for a capability.
type TaskRequest struct {
	SessionID  string `json:"session_id,omitempty"` // generated when empty
	Capability string `json:"capability"`
}

// RouteDecision is the outcome of one RouteTask call.
type RouteDecision struct {
	SessionID string  `json:"session_id"`
	AgentID   string  `json:"agent_id"`
	Score     float64 `json:"score"`
}

// IntentRequest asks for an intent to be executed by the tool catalog.
// Intent, confidence and entities come from an upstream NLU stage; the
// router treats them as opaque.
type IntentRequest struct {
	SessionID  string              `json:"session_id,omitempty"`
	Intent     string              `json:"intent"`
	Confidence float64             `json:"confidence"`
	Entities   map[string][]string `json:"entities,omitempty"`
	Params     map[string]any      `json:"params,omitempty"`
	Metadata   map[string]any      `json:"metadata,omitempty"`
}

// IntentOutcome reports what the tool catalog did for an intent. Handled is
// false when no chain was configured and no tool cleared the confidence
// floor — a routing miss, not an error.
type IntentOutcome struct {
	SessionID  string                `json:"session_id"`
	Intent     string                `json:"intent"`
	Handled    bool                  `json:"handled"`
	Chained    bool                  `json:"chained"`
	Selected   string                `json:"selected,omitempty"`
	Confidence float64               `json:"confidence,omitempty"` // adjusted selection score
	Steps      []domain.ExecutedStep `json:"steps,omitempty"`
	Stopped    bool                  `json:"stopped,omitempty"`
	StopReason string                `json:"stop_reason,omitempty"`
}

// Router is the orchestration facade: it ties the session store, the
// decision engine, the tool catalog and the discovery learner into the two
// top-level flows, RouteTask and ExecuteIntent. Everything downstream of
// the decision itself — session write-back, interaction logging, events —
// is best-effort and never fails the routed operation.
type Router struct {
	engine       *Engine
	sessions     *SessionManager
	tools        ToolRunner
	discovery    *Discovery
	interactions InteractionSink // nil disables the log
	bus          domain.EventBus
	logger       *slog.Logger
	now          func() time.Time

	minConfidence atomic.Uint64 // float64 bits
}

// NewRouter wires the routing facade. interactions may be nil.
func NewRouter(
	engine *Engine,
	sessions *SessionManager,
	tools ToolRunner,
	discovery *Discovery,
	interactions InteractionSink,
	bus domain.EventBus,
	minConfidence float64,
	logger *slog.Logger,
) *Router {
	r := &Router{
		engine:       engine,
		sessions:     sessions,
		tools:        tools,
		discovery:    discovery,
		interactions: interactions,
		bus:          bus,
		logger:       logger,
		now:          time.Now,
	}
	r.SetMinConfidence(minConfidence)
	return r
}

// SetMinConfidence replaces the selection floor for subsequent intents.
func (r *Router) SetMinConfidence(v float64) {
	r.minConfidence.Store(math.Float64bits(v))
}

// MinConfidence returns the selection floor in effect.
func (r *Router) MinConfidence() float64 {
	return math.Float64frombits(r.minConfidence.Load())
}

// RouteTask picks the best agent for the request's capability, records the
// decision in the session under "routing", and publishes task.routed.
func (r *Router) RouteTask(ctx context.Context, req TaskRequest) (RouteDecision, error) {
	ctx, span := tracer.StartSpan(ctx, "router.route_task")
	defer span.End()

	sessionID := r.touchSession(ctx, req.SessionID)
	ctx = domain.ContextWithSessionID(ctx, sessionID)
	span.SetAttributes(
		tracer.StringAttr("capability", req.Capability),
		tracer.StringAttr("session_id", sessionID),
	)

	start := r.now()
	decision, err := r.engine.Route(ctx, req.Capability)
	elapsed := r.now().Sub(start)

	r.recordInteraction(ctx, domain.InteractionRecord{
		Kind:       domain.InteractionRouting,
		SessionID:  sessionID,
		Intent:     req.Capability,
		Target:     decision.AgentID,
		Success:    err == nil,
		DurationMS: float64(elapsed.Milliseconds()),
	})
	if err != nil {
		tracer.RecordError(span, err)
		return RouteDecision{}, err
	}

	r.mergeSession(ctx, sessionID, map[string]any{
		"routing": map[string]any{
			"last_capability": req.Capability,
			"last_agent":      decision.AgentID,
			"last_score":      decision.Score,
			"routed_at":       r.now().UTC().Format(time.RFC3339Nano),
		},
	})
	r.publish(ctx, domain.EventTaskRouted, sessionID, map[string]any{
		"capability": req.Capability,
		"agent_id":   decision.AgentID,
		"score":      decision.Score,
	})

	tracer.SetOK(span)
	return RouteDecision{SessionID: sessionID, AgentID: decision.AgentID, Score: decision.Score}, nil
}

// ExecuteIntent resolves the intent to a configured chain or the single
// best tool, executes it, feeds every execution to the discovery learner,
// and merges result data back into the session.
func (r *Router) ExecuteIntent(ctx context.Context, req IntentRequest) (IntentOutcome, error) {
	ctx, span := tracer.StartSpan(ctx, "router.execute_intent")
	defer span.End()

	sessionID := r.touchSession(ctx, req.SessionID)
	ctx = domain.ContextWithSessionID(ctx, sessionID)
	span.SetAttributes(
		tracer.StringAttr("intent", req.Intent),
		tracer.StringAttr("session_id", sessionID),
	)

	tc := r.buildToolContext(ctx, sessionID, req)
	outcome := IntentOutcome{SessionID: sessionID, Intent: req.Intent}

	if _, ok := r.tools.Chain(req.Intent); ok {
		chain, err := r.tools.ExecuteChain(ctx, req.Params, tc)
		if err != nil {
			tracer.RecordError(span, err)
			return outcome, err
		}
		outcome.Handled = len(chain.Steps) > 0
		outcome.Chained = true
		outcome.Steps = chain.Steps
		outcome.Stopped = chain.Stopped
		outcome.StopReason = chain.StopReason

		for _, step := range chain.Steps {
			r.afterExecution(ctx, sessionID, req.Intent, tc, step)
		}
		r.publish(ctx, domain.EventChainCompleted, sessionID, map[string]any{
			"intent":      req.Intent,
			"executed":    len(chain.Steps),
			"stopped":     chain.Stopped,
			"stop_reason": chain.StopReason,
		})
		tracer.SetOK(span)
		return outcome, nil
	}

	sel, ok := r.tools.SelectTool(ctx, tc, r.MinConfidence())
	if !ok {
		r.logger.Info("no tool selected for intent", "intent", req.Intent, "session_id", sessionID)
		tracer.SetOK(span)
		return outcome, nil
	}
	outcome.Selected = sel.Name
	outcome.Confidence = sel.Confidence

	result, err := r.tools.Execute(ctx, sel.Name, req.Params, tc)
	if err != nil {
		tracer.RecordError(span, err)
		return outcome, err
	}
	outcome.Handled = true
	outcome.Steps = []domain.ExecutedStep{{Tool: sel.Name, Result: result}}

	r.afterExecution(ctx, sessionID, req.Intent, tc, outcome.Steps[0])
	tracer.SetOK(span)
	return outcome, nil
}

// buildToolContext assembles the per-invocation context, exposing current
// session state to tools under metadata["session"].
func (r *Router) buildToolContext(ctx context.Context, sessionID string, req IntentRequest) domain.ToolContext {
	metadata := domain.DeepCopyMap(req.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	if data, err := r.sessions.GetAll(ctx, sessionID); err != nil {
		r.logger.Warn("session state unavailable, continuing without it",
			"session_id", sessionID, "error", err)
	} else if len(data) > 0 {
		metadata["session"] = data
	}

	return domain.ToolContext{
		Intent:     req.Intent,
		Confidence: req.Confidence,
		Entities:   req.Entities,
		Metadata:   metadata,
	}
}

// afterExecution handles the write-backs one executed step owes: discovery
// learning, the interaction log, session history, and the tool event.
func (r *Router) afterExecution(ctx context.Context, sessionID, intent string, tc domain.ToolContext, step domain.ExecutedStep) {
	r.discovery.RecordExecution(step.Tool, tc, step.Result.Success, step.Result.ExecutionTime)

	r.recordInteraction(ctx, domain.InteractionRecord{
		Kind:       domain.InteractionTool,
		SessionID:  sessionID,
		Intent:     intent,
		Target:     step.Tool,
		Success:    step.Result.Success,
		DurationMS: step.Result.ExecutionTime * 1000,
		Detail:     map[string]any{"error": step.Result.Error},
	})

	history := map[string]any{
		"intent_history": map[string]any{
			"latest": intent,
			"tool":   step.Tool,
		},
	}
	if step.Result.Success && step.Result.Data != nil {
		history["results"] = map[string]any{intent: step.Result.Data}
	}
	r.mergeSession(ctx, sessionID, history)

	r.publish(ctx, domain.EventToolExecuted, sessionID, map[string]any{
		"intent":  intent,
		"tool":    step.Tool,
		"success": step.Result.Success,
	})
}

// touchSession ensures the session exists, generating an id when the caller
// has none. Session store failures are logged, not surfaced: routing still
// works without conversational state, just without memory.
func (r *Router) touchSession(ctx context.Context, id string) string {
	if id == "" {
		id = domain.NewID()
	}
	if err := r.sessions.Create(ctx, id); err != nil {
		r.logger.Warn("session create failed, continuing stateless", "session_id", id, "error", err)
	}
	return id
}

func (r *Router) mergeSession(ctx context.Context, id string, partial map[string]any) {
	if err := r.sessions.UpdatePartial(ctx, id, partial); err != nil {
		r.logger.Warn("session write-back failed", "session_id", id, "error", err)
	}
}

func (r *Router) recordInteraction(ctx context.Context, rec domain.InteractionRecord) {
	if r.interactions == nil {
		return
	}
	rec.CreatedAt = r.now()
	if err := r.interactions.Record(ctx, rec); err != nil {
		r.logger.Warn("interaction log write failed", "kind", string(rec.Kind), "error", err)
	}
}

func (r *Router) publish(ctx context.Context, t domain.EventType, sessionID string, payload map[string]any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(ctx, domain.Event{
		Type:      t,
		Timestamp: r.now(),
		SessionID: sessionID,
		Payload:   payload,
	})
}
