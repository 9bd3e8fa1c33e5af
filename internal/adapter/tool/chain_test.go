package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/domain"
)

func TestDefineChain(t *testing.T) {
	r := newTestRegistry(t)

	r.DefineChain("book_flight", []domain.ChainStep{{Tool: "search"}, {Tool: "booking", Threshold: 0.7}})
	steps, ok := r.Chain("book_flight")
	require.True(t, ok)
	require.Len(t, steps, 2)
	assert.Equal(t, "booking", steps[1].Tool)

	// empty definition removes the chain
	r.DefineChain("book_flight", nil)
	_, ok = r.Chain("book_flight")
	assert.False(t, ok)
}

func TestExecuteChainUndefinedIntent(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.ExecuteChain(context.Background(), nil, domain.ToolContext{Intent: "mystery"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExecuteChainCarriesResultData(t *testing.T) {
	r := newTestRegistry(t)

	first := newStub("first", "1.0.0")
	first.run = func(map[string]any, domain.ToolContext) (map[string]any, error) {
		return map[string]any{"search_results": []any{"rome"}}, nil
	}
	var secondCtx map[string]any
	second := newStub("second", "1.0.0")
	second.run = func(_ map[string]any, tc domain.ToolContext) (map[string]any, error) {
		secondCtx = tc.ChainContext
		return map[string]any{"status": "confirmed"}, nil
	}
	require.NoError(t, r.Register(first))
	require.NoError(t, r.Register(second))
	r.DefineChain("travel", []domain.ChainStep{{Tool: "first"}, {Tool: "second"}})

	out, err := r.ExecuteChain(context.Background(), nil, domain.ToolContext{Intent: "travel"})
	require.NoError(t, err)
	assert.False(t, out.Stopped)
	require.Len(t, out.Steps, 2)

	require.NotNil(t, secondCtx)
	assert.Equal(t, []any{"rome"}, secondCtx["search_results"])
}

func TestExecuteChainStopsOnFailedStep(t *testing.T) {
	r := newTestRegistry(t)

	failing := newStub("failing", "1.0.0")
	failing.run = func(map[string]any, domain.ToolContext) (map[string]any, error) {
		return nil, errors.New("no results")
	}
	var ran bool
	next := newStub("next", "1.0.0")
	next.run = func(map[string]any, domain.ToolContext) (map[string]any, error) {
		ran = true
		return nil, nil
	}
	require.NoError(t, r.Register(failing))
	require.NoError(t, r.Register(next))
	r.DefineChain("travel", []domain.ChainStep{{Tool: "failing"}, {Tool: "next"}})

	out, err := r.ExecuteChain(context.Background(), nil, domain.ToolContext{Intent: "travel"})
	require.NoError(t, err)
	assert.True(t, out.Stopped)
	assert.Contains(t, out.StopReason, `"failing" failed`)
	// partial results still come back
	require.Len(t, out.Steps, 1)
	assert.False(t, out.Steps[0].Result.Success)
	assert.False(t, ran)
}

func TestExecuteChainStopsBelowThreshold(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	fail := true
	shaky := newStub("shaky", "1.0.0")
	shaky.run = func(map[string]any, domain.ToolContext) (map[string]any, error) {
		if fail {
			return nil, errors.New("warming up")
		}
		return map[string]any{"status": "completed"}, nil
	}
	var ran bool
	next := newStub("next", "1.0.0")
	next.run = func(map[string]any, domain.ToolContext) (map[string]any, error) {
		ran = true
		return nil, nil
	}
	require.NoError(t, r.Register(shaky))
	require.NoError(t, r.Register(next))

	// history: one failure, then the chain's own success → rate 0.5
	_, err := r.Execute(ctx, "shaky", nil, domain.ToolContext{})
	require.NoError(t, err)
	fail = false

	r.DefineChain("travel", []domain.ChainStep{{Tool: "shaky", Threshold: 0.9}, {Tool: "next"}})
	out, err := r.ExecuteChain(ctx, nil, domain.ToolContext{Intent: "travel"})
	require.NoError(t, err)

	assert.True(t, out.Stopped)
	assert.Contains(t, out.StopReason, "below threshold")
	require.Len(t, out.Steps, 1)
	assert.True(t, out.Steps[0].Result.Success)
	assert.False(t, ran)
}

func TestExecuteChainSkipsUnregisteredStep(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(newStub("first", "1.0.0")))
	require.NoError(t, r.Register(newStub("last", "1.0.0")))
	r.DefineChain("travel", []domain.ChainStep{{Tool: "first"}, {Tool: "ghost"}, {Tool: "last"}})

	out, err := r.ExecuteChain(context.Background(), nil, domain.ToolContext{Intent: "travel"})
	require.NoError(t, err)
	assert.False(t, out.Stopped)
	assert.Empty(t, out.StopReason)
	require.Len(t, out.Steps, 2)
	assert.Equal(t, "first", out.Steps[0].Tool)
	assert.Equal(t, "last", out.Steps[1].Tool)
}

func TestExecuteChainPreservesCallerChainContext(t *testing.T) {
	r := newTestRegistry(t)

	var seen map[string]any
	s := newStub("only", "1.0.0")
	s.run = func(_ map[string]any, tc domain.ToolContext) (map[string]any, error) {
		seen = tc.ChainContext
		return nil, nil
	}
	require.NoError(t, r.Register(s))
	r.DefineChain("travel", []domain.ChainStep{{Tool: "only"}})

	tc := domain.ToolContext{
		Intent:       "travel",
		ChainContext: map[string]any{"origin": "upstream"},
	}
	_, err := r.ExecuteChain(context.Background(), nil, tc)
	require.NoError(t, err)
	assert.Equal(t, "upstream", seen["origin"])
}
