package tool

import (
	"context"
	"fmt"

	"switchboard/internal/domain"
	"switchboard/internal/infra/tracer"
)

// reliabilityFloor keeps a tool's adjusted confidence at 80% of its raw
// score even with zero historical success; a perfect record restores the
// full raw score. History biases selection, it never vetoes a tool.
const reliabilityFloor = 0.8

// SelectTool asks every registered tool for its confidence in the context
// and returns the one with the highest reliability-adjusted score at or
// above minConfidence. The second return is false when no tool clears the
// bar. A tool whose CanHandle errors or panics is skipped with a log line;
// one broken tool never aborts the round for the others. Ties keep the
// first tool in name order.
func (r *Registry) SelectTool(ctx context.Context, tc domain.ToolContext, minConfidence float64) (domain.ToolSelection, bool) {
	ctx, span := tracer.StartSpan(ctx, "tool.select")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("intent", tc.Intent))

	var best domain.ToolSelection
	found := false

	for _, e := range r.sortedEntries() {
		raw, err := r.safeCanHandle(ctx, e, tc)
		if err != nil {
			r.logger.Warn("tool confidence check failed, skipping",
				"tool", e.info.Name, "intent", tc.Intent, "error", err)
			r.metrics.ObserveSelectionMiss()
			continue
		}
		raw = clamp01(raw)

		adjusted := raw * (reliabilityFloor + (1-reliabilityFloor)*e.successRate())
		// Zero confidence means the tool declared itself unsuitable;
		// even a zero floor never selects it.
		if adjusted <= 0 || adjusted < minConfidence {
			continue
		}
		if !found || adjusted > best.Confidence {
			best = domain.ToolSelection{Name: e.info.Name, Raw: raw, Confidence: adjusted}
			found = true
		}
	}

	if !found {
		r.metrics.ObserveSelectionMiss()
		span.SetAttributes(tracer.StringAttr("outcome", "none"))
		tracer.SetOK(span)
		r.logger.Debug("no tool cleared the confidence floor",
			"intent", tc.Intent, "min_confidence", minConfidence)
		return domain.ToolSelection{}, false
	}

	r.metrics.ObserveToolSelection(best.Name)
	span.SetAttributes(
		tracer.StringAttr("tool", best.Name),
		tracer.Float64Attr("confidence", best.Confidence),
	)
	tracer.SetOK(span)
	return best, true
}

// safeCanHandle invokes CanHandle with panic containment.
func (r *Registry) safeCanHandle(ctx context.Context, e *entry, tc domain.ToolContext) (raw float64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("can_handle panicked: %v", rec)
		}
	}()
	return e.tool.CanHandle(ctx, tc)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
