package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/domain"
	"switchboard/internal/infra/logger"
)

// stubTool is a scriptable Tool for registry tests.
type stubTool struct {
	info      domain.ToolInfo
	canHandle func(tc domain.ToolContext) (float64, error)
	run       func(params map[string]any, tc domain.ToolContext) (map[string]any, error)
}

func (s *stubTool) Info() domain.ToolInfo { return s.info }

func (s *stubTool) CanHandle(_ context.Context, tc domain.ToolContext) (float64, error) {
	if s.canHandle == nil {
		return 0, nil
	}
	return s.canHandle(tc)
}

func (s *stubTool) Run(_ context.Context, params map[string]any, tc domain.ToolContext) (map[string]any, error) {
	if s.run == nil {
		return map[string]any{"status": "completed"}, nil
	}
	return s.run(params, tc)
}

func newStub(name, version string, required ...string) *stubTool {
	return &stubTool{info: domain.ToolInfo{Name: name, Version: version, RequiredParams: required}}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(nil, nil, logger.Discard())
}

func TestRegisterAndGet(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(newStub("search", "1.0.0")))

	got, err := r.Get("search")
	require.NoError(t, err)
	assert.Equal(t, "search", got.Info().Name)

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegisterEmptyName(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Register(newStub("", "1.0.0"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRegisterArchivesOldVersion(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(newStub("search", "1.0.0")))
	require.NoError(t, r.Register(newStub("search", "1.1.0")))

	rec, err := r.Record("search")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", rec.Version)
	assert.Equal(t, []string{"1.0.0"}, rec.CompatibleVersions)

	// same version again replaces in place, no duplicate archive entry
	require.NoError(t, r.Register(newStub("search", "1.1.0")))
	rec, err = r.Record("search")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0.0"}, rec.CompatibleVersions)
}

func TestMetricsSurviveReRegistration(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(newStub("search", "1.0.0")))

	_, err := r.Execute(context.Background(), "search", nil, domain.ToolContext{})
	require.NoError(t, err)

	require.NoError(t, r.Register(newStub("search", "2.0.0")))
	rec, err := r.Record("search")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Metrics.TotalExecutions)
}

func TestRecordsAndNamesSorted(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(newStub("zeta", "1.0.0")))
	require.NoError(t, r.Register(newStub("alpha", "1.0.0")))
	require.NoError(t, r.Register(newStub("mid", "1.0.0")))

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.Names())

	records := r.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "alpha", records[0].Name)
	assert.Equal(t, "zeta", records[2].Name)
}

func TestRecordUnknownTool(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Record("ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var de *domain.DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "tool", de.SubSystem)
}
