package tool

import (
	"context"
	"fmt"

	"github.com/kaptinlin/jsonschema"
	"golang.org/x/time/rate"

	"switchboard/internal/domain"
)

// schemaValidatingTool wraps a Tool so Run validates params against the
// tool's declared JSON Schema first. A violation is an error out of Run,
// which the executor converts into a failed ToolResult — the inner tool
// never sees malformed params.
type schemaValidatingTool struct {
	domain.Tool
	schema *jsonschema.Schema
}

// WithSchemaValidation wraps t when it provides a param schema; tools
// without one are returned unchanged. A schema that fails to compile is
// an error so the caller can decide (the registry logs and registers the
// tool unvalidated).
func WithSchemaValidation(t domain.Tool) (domain.Tool, error) {
	sp, ok := t.(domain.SchemaProvider)
	if !ok {
		return t, nil
	}
	raw := sp.ParamSchema()
	if len(raw) == 0 || string(raw) == "null" {
		return t, nil
	}

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", t.Info().Name, err)
	}
	return &schemaValidatingTool{Tool: t, schema: schema}, nil
}

func (s *schemaValidatingTool) Run(ctx context.Context, params map[string]any, tc domain.ToolContext) (map[string]any, error) {
	if result := s.schema.Validate(params); !result.IsValid() {
		return nil, fmt.Errorf("schema validation failed: %s", result.Error())
	}
	return s.Tool.Run(ctx, params, tc)
}

// rateLimitedTool rejects Run calls beyond the configured rate. A rejected
// call is an error out of Run (a failed ToolResult after conversion), not
// a blocked caller: execution sits on the request path and must not stall.
type rateLimitedTool struct {
	domain.Tool
	limiter *rate.Limiter
}

// WithRateLimit wraps t with a token-bucket limiter.
func WithRateLimit(t domain.Tool, limiter *rate.Limiter) domain.Tool {
	return &rateLimitedTool{Tool: t, limiter: limiter}
}

func (r *rateLimitedTool) Run(ctx context.Context, params map[string]any, tc domain.ToolContext) (map[string]any, error) {
	if !r.limiter.Allow() {
		return nil, fmt.Errorf("tool %q rate limited", r.Info().Name)
	}
	return r.Tool.Run(ctx, params, tc)
}
