package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDefaults(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestValidateRoutingWeights(t *testing.T) {
	cfg := Defaults()
	cfg.Routing.PerformanceWeight = 1.5
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "performance_weight")

	cfg = Defaults()
	cfg.Routing.PerformanceWeight = 0
	cfg.Routing.LoadWeight = 0
	err = Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both be zero")
}

func TestValidateRedisBackendRequiresURL(t *testing.T) {
	cfg := Defaults()
	cfg.Session.Backend = "redis"
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis_url")

	cfg.Session.RedisURL = "redis://localhost:6379"
	require.NoError(t, Validate(cfg))
}

func TestValidateUnknownBackend(t *testing.T) {
	cfg := Defaults()
	cfg.Session.Backend = "dynamo"
	require.Error(t, Validate(cfg))
}

func TestValidateChainSteps(t *testing.T) {
	cfg := Defaults()
	cfg.Tools.Chains = map[string][]ChainStep{
		"travel": {{Tool: "", Threshold: 0.5}},
	}
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool must not be empty")

	cfg.Tools.Chains = map[string][]ChainStep{
		"travel": {{Tool: "search", Threshold: 1.2}},
	}
	err = Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threshold")
}

func TestValidateSchedulerTasks(t *testing.T) {
	cfg := Defaults()
	cfg.Scheduler.Tasks = []ScheduledTaskConfig{
		{Name: "sweep", Schedule: "30s", Action: "session_sweep"},
		{Name: "sweep", Schedule: "1m", Action: "session_sweep"},
	}
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicates name")

	cfg.Scheduler.Tasks = []ScheduledTaskConfig{
		{Name: "mystery", Schedule: "30s", Action: "reticulate_splines"},
	}
	err = Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown")

	// Disabled scheduler skips task validation entirely.
	cfg.Scheduler.Enabled = false
	require.NoError(t, Validate(cfg))
}

func TestValidSchedule(t *testing.T) {
	assert.True(t, validSchedule("30s"))
	assert.True(t, validSchedule("5m"))
	assert.True(t, validSchedule("0 3 * * *"))
	assert.True(t, validSchedule("@hourly"))
	assert.False(t, validSchedule(""))
	assert.False(t, validSchedule("whenever"))
	assert.False(t, validSchedule("-10s"))
}

func TestValidateAgentSeeds(t *testing.T) {
	cfg := Defaults()
	cfg.Agents = []AgentSeed{
		{ID: "a1", Capabilities: []string{"nlp"}},
		{ID: "a1", Capabilities: []string{"vision"}},
	}
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicates id")

	cfg.Agents = []AgentSeed{{ID: "a2"}}
	err = Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capabilities")
}

func TestValidateMCPServers(t *testing.T) {
	cfg := Defaults()
	cfg.MCP = &MCPConfig{Servers: []MCPServer{
		{Name: "files", Transport: "stdio"},
	}}
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command is required")

	cfg.MCP.Servers[0].Command = "mcp-files"
	require.NoError(t, Validate(cfg))

	cfg.MCP.Servers = append(cfg.MCP.Servers, MCPServer{Name: "web", Transport: "carrier-pigeon"})
	err = Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport")
}
