package tool

import (
	"context"
	"fmt"
	"time"

	"switchboard/internal/domain"
	"switchboard/internal/infra/tracer"
)

// Execute runs the named tool. An unknown name is a catalog error; every
// other failure mode — missing required params, a Run error, a Run panic —
// is converted into a failed ToolResult, never propagated. Each call folds
// its outcome into the tool's running metrics.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any, tc domain.ToolContext) (domain.ToolResult, error) {
	e, ok := r.lookup(name)
	if !ok {
		return domain.ToolResult{}, domain.NewSubSystemError("tool", "registry.execute", domain.ErrNotFound, name)
	}

	ctx, span := tracer.StartSpan(ctx, "tool.execute")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("tool", name),
		tracer.StringAttr("intent", tc.Intent),
	)

	start := r.now()
	result := r.run(ctx, e, params, tc)
	elapsed := r.now().Sub(start)
	result.ExecutionTime = elapsed.Seconds()

	e.recordExecution(result.Success, elapsed.Seconds(), start)
	r.metrics.ObserveToolExecution(name, result.Success, elapsed)

	if result.Success {
		tracer.SetOK(span)
	} else {
		tracer.RecordError(span, fmt.Errorf("%s", result.Error))
		r.logger.Warn("tool execution failed", "tool", name, "intent", tc.Intent, "error", result.Error)
	}
	return result, nil
}

// run validates params and invokes the tool, containing panics.
func (r *Registry) run(ctx context.Context, e *entry, params map[string]any, tc domain.ToolContext) (result domain.ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = domain.ToolResult{Error: fmt.Sprintf("tool panicked: %v", rec)}
		}
	}()

	for _, p := range e.info.RequiredParams {
		if _, ok := params[p]; !ok {
			return domain.ToolResult{Error: fmt.Sprintf("missing required parameter %q", p)}
		}
	}

	data, err := e.tool.Run(ctx, params, tc)
	if err != nil {
		return domain.ToolResult{Error: err.Error()}
	}
	return domain.ToolResult{
		Success:   true,
		Data:      data,
		NextTools: popNextTools(data),
	}
}

// popNextTools lifts a "next_tools" hint out of the result data into the
// structured field. Tools built elsewhere report it as []any.
func popNextTools(data map[string]any) []string {
	if data == nil {
		return nil
	}
	raw, ok := data["next_tools"]
	if !ok {
		return nil
	}
	delete(data, "next_tools")

	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// recordExecution updates the entry's counters under its own lock:
// online average execution time, failure count, success rate.
func (e *entry) recordExecution(success bool, seconds float64, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m := &e.metrics
	m.TotalExecutions++
	if !success {
		m.FailedExecutions++
	}
	n := float64(m.TotalExecutions)
	m.ExecutionTimeAvg = (m.ExecutionTimeAvg*(n-1) + seconds) / n
	m.SuccessRate = float64(m.TotalExecutions-m.FailedExecutions) / n
	m.LastExecution = at
}
