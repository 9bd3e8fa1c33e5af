package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/domain"
	"switchboard/internal/infra/logger"
)

func newTestInteractionStore(t *testing.T) *InteractionStore {
	t.Helper()
	s, err := NewInteractionStore(filepath.Join(t.TempDir(), "interactions.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInteractionRecordAndRecent(t *testing.T) {
	s := newTestInteractionStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, domain.InteractionRecord{
		Kind:       domain.InteractionRouting,
		SessionID:  "sess-1",
		Intent:     "summarize",
		Target:     "agent-a",
		Success:    true,
		DurationMS: 12.5,
		Detail:     map[string]any{"score": 0.82},
	}))
	require.NoError(t, s.Record(ctx, domain.InteractionRecord{
		Kind:    domain.InteractionRouting,
		Intent:  "translate",
		Target:  "agent-b",
		Success: false,
	}))
	require.NoError(t, s.Record(ctx, domain.InteractionRecord{
		Kind:   domain.InteractionTool,
		Intent: "search",
		Target: "search",
	}))

	recent, err := s.Recent(ctx, domain.InteractionRouting, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	// ULID ids sort by creation time, so newest first
	assert.Equal(t, "translate", recent[0].Intent)
	assert.Equal(t, "summarize", recent[1].Intent)
	assert.True(t, recent[1].Success)
	assert.Equal(t, "sess-1", recent[1].SessionID)
	assert.InDelta(t, 12.5, recent[1].DurationMS, 1e-9)
	assert.InDelta(t, 0.82, recent[1].Detail["score"].(float64), 1e-9)
	assert.NotEmpty(t, recent[1].ID)
	assert.False(t, recent[1].CreatedAt.IsZero())
}

func TestInteractionSessionIDFromContext(t *testing.T) {
	s := newTestInteractionStore(t)
	ctx := domain.ContextWithSessionID(context.Background(), "ctx-sess")

	require.NoError(t, s.Record(ctx, domain.InteractionRecord{
		Kind: domain.InteractionTool, Intent: "search", Target: "search",
	}))

	recent, err := s.Recent(ctx, domain.InteractionTool, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "ctx-sess", recent[0].SessionID)
}

func TestInteractionRecentLimit(t *testing.T) {
	s := newTestInteractionStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, domain.InteractionRecord{
			Kind: domain.InteractionTool, Intent: "search", Target: "search",
		}))
	}

	recent, err := s.Recent(ctx, domain.InteractionTool, 3)
	require.NoError(t, err)
	assert.Len(t, recent, 3)
}

func TestInteractionSummarizeByIntent(t *testing.T) {
	s := newTestInteractionStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Record(ctx, domain.InteractionRecord{
			Kind: domain.InteractionTool, Intent: "search", Target: "search",
			Success: i < 2, DurationMS: 10,
		}))
	}
	require.NoError(t, s.Record(ctx, domain.InteractionRecord{
		Kind: domain.InteractionTool, Intent: "booking", Target: "booking",
		Success: true, DurationMS: 30,
	}))

	summaries, err := s.SummarizeByIntent(ctx, domain.InteractionTool)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, "search", summaries[0].Intent)
	assert.Equal(t, int64(3), summaries[0].Total)
	assert.Equal(t, int64(2), summaries[0].Succeeded)
	assert.InDelta(t, 10, summaries[0].AvgMS, 1e-9)

	assert.Equal(t, "booking", summaries[1].Intent)
	assert.Equal(t, int64(1), summaries[1].Total)
}

func TestInteractionPrune(t *testing.T) {
	s := newTestInteractionStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, s.Record(ctx, domain.InteractionRecord{
		ID: domain.NewID(), Kind: domain.InteractionTool,
		Intent: "search", Target: "search", CreatedAt: old,
	}))
	require.NoError(t, s.Record(ctx, domain.InteractionRecord{
		Kind: domain.InteractionTool, Intent: "search", Target: "search",
	}))

	removed, err := s.Prune(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	recent, err := s.Recent(ctx, domain.InteractionTool, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestInteractionPruneSubSecondCutoff(t *testing.T) {
	s := newTestInteractionStore(t)
	ctx := context.Background()

	// A record on a whole second must still sort before a fractional
	// cutoff within that second; timestamps are stored fixed-width so
	// the lexical comparison holds.
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Record(ctx, domain.InteractionRecord{
		ID: domain.NewID(), Kind: domain.InteractionTool,
		Intent: "search", Target: "search", CreatedAt: base,
	}))
	require.NoError(t, s.Record(ctx, domain.InteractionRecord{
		ID: domain.NewID(), Kind: domain.InteractionTool,
		Intent: "search", Target: "search",
		CreatedAt: base.Add(700 * time.Millisecond),
	}))

	removed, err := s.Prune(ctx, base.Add(500*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	recent, err := s.Recent(ctx, domain.InteractionTool, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.True(t, recent[0].CreatedAt.After(base))
}
