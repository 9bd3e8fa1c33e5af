package tool

import (
	"context"
	"fmt"

	"switchboard/internal/domain"
	"switchboard/internal/infra/tracer"
)

// DefineChain installs the ordered steps to run for an intent, replacing
// any previous definition. An empty step list removes the chain.
func (r *Registry) DefineChain(intent string, steps []domain.ChainStep) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(steps) == 0 {
		delete(r.chains, intent)
		return
	}
	r.chains[intent] = append([]domain.ChainStep(nil), steps...)
	r.logger.Info("tool chain defined", "intent", intent, "steps", len(steps))
}

// Chain returns the configured steps for an intent, if any.
func (r *Registry) Chain(intent string) ([]domain.ChainStep, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	steps, ok := r.chains[intent]
	if !ok {
		return nil, false
	}
	return append([]domain.ChainStep(nil), steps...), true
}

// ExecuteChain runs the chain configured for tc's intent. Each step sees the
// previous step's result data merged into its chain context. A step whose
// tool is not registered is skipped. The chain stops, without erroring, when
// a step fails or when the tool's post-execution success rate sits below the
// step's threshold; the steps that did run are returned either way. Only an
// intent with no chain at all is an error.
func (r *Registry) ExecuteChain(ctx context.Context, params map[string]any, tc domain.ToolContext) (domain.ChainOutcome, error) {
	steps, ok := r.Chain(tc.Intent)
	if !ok {
		return domain.ChainOutcome{}, domain.NewSubSystemError("tool", "registry.execute_chain", domain.ErrNotFound,
			fmt.Sprintf("no chain for intent %q", tc.Intent))
	}

	ctx, span := tracer.StartSpan(ctx, "tool.execute_chain")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("intent", tc.Intent),
		tracer.IntAttr("steps", len(steps)),
	)

	outcome := domain.ChainOutcome{Intent: tc.Intent}
	chainCtx := domain.DeepCopyMap(tc.ChainContext)

	for _, step := range steps {
		e, found := r.lookup(step.Tool)
		if !found {
			// An unregistered step is skipped, not a stop signal; only
			// a failed run or a weak success rate ends the chain.
			r.logger.Warn("chain step skipped, tool not registered", "intent", tc.Intent, "tool", step.Tool)
			continue
		}

		stepTC := tc
		stepTC.ChainContext = chainCtx

		result, err := r.Execute(ctx, step.Tool, params, stepTC)
		if err != nil {
			// Execute only errors on unknown names, checked above; treat a
			// race with re-registration as a stop, not a failure.
			outcome.Stopped = true
			outcome.StopReason = err.Error()
			break
		}
		outcome.Steps = append(outcome.Steps, domain.ExecutedStep{Tool: step.Tool, Result: result})

		if !result.Success {
			outcome.Stopped = true
			outcome.StopReason = fmt.Sprintf("tool %q failed: %s", step.Tool, result.Error)
			r.logger.Info("chain stopped on failed step", "intent", tc.Intent, "tool", step.Tool)
			break
		}
		if sr := e.successRate(); sr < step.Threshold {
			outcome.Stopped = true
			outcome.StopReason = fmt.Sprintf("tool %q success rate %.2f below threshold %.2f", step.Tool, sr, step.Threshold)
			r.logger.Info("chain stopped on success-rate threshold",
				"intent", tc.Intent, "tool", step.Tool, "success_rate", sr, "threshold", step.Threshold)
			break
		}

		chainCtx = domain.DeepMerge(chainCtx, result.Data)
	}

	span.SetAttributes(tracer.IntAttr("executed", len(outcome.Steps)))
	tracer.SetOK(span)
	return outcome, nil
}
