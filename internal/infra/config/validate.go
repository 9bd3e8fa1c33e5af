package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateRouting(cfg, ve)
	validateSession(cfg, ve)
	validateTools(cfg, ve)
	validateScheduler(cfg, ve)
	validateAgents(cfg, ve)
	validateMCP(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if cfg.Logger.Level != "" && !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is not one of debug, info, warn, error", cfg.Logger.Level)
	}
	switch cfg.Logger.Format {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is not one of text, json", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "stdout", "noop":
	default:
		ve.Add("tracer.exporter %q is not one of stdout, noop", cfg.Tracer.Exporter)
	}
}

func validateRouting(cfg *Config, ve *ValidationError) {
	if cfg.Routing.PerformanceWeight < 0 || cfg.Routing.PerformanceWeight > 1 {
		ve.Add("routing.performance_weight must be in [0, 1]")
	}
	if cfg.Routing.LoadWeight < 0 || cfg.Routing.LoadWeight > 1 {
		ve.Add("routing.load_weight must be in [0, 1]")
	}
	if cfg.Routing.PerformanceWeight+cfg.Routing.LoadWeight <= 0 {
		ve.Add("routing weights must not both be zero")
	}
}

func validateSession(cfg *Config, ve *ValidationError) {
	switch cfg.Session.Backend {
	case "", "memory":
	case "redis":
		if cfg.Session.RedisURL == "" {
			ve.Add("session.redis_url is required when session.backend is redis")
		}
	default:
		ve.Add("session.backend %q is not one of memory, redis", cfg.Session.Backend)
	}
	if cfg.Session.TTL != "" {
		if d, err := time.ParseDuration(cfg.Session.TTL); err != nil || d <= 0 {
			ve.Add("session.ttl %q is not a positive duration", cfg.Session.TTL)
		}
	}
	if cfg.Session.SweepInterval != "" {
		if d, err := time.ParseDuration(cfg.Session.SweepInterval); err != nil || d <= 0 {
			ve.Add("session.sweep_interval %q is not a positive duration", cfg.Session.SweepInterval)
		}
	}
}

func validateTools(cfg *Config, ve *ValidationError) {
	if cfg.Tools.MinConfidence < 0 || cfg.Tools.MinConfidence > 1 {
		ve.Add("tools.min_confidence must be in [0, 1]")
	}
	if rl := cfg.Tools.RateLimit; rl != nil {
		if rl.PerSecond <= 0 {
			ve.Add("tools.rate_limit.per_second must be > 0")
		}
		if rl.Burst <= 0 {
			ve.Add("tools.rate_limit.burst must be > 0")
		}
	}
	for intent, steps := range cfg.Tools.Chains {
		if intent == "" {
			ve.Add("tools.chains contains an empty intent key")
		}
		if len(steps) == 0 {
			ve.Add("tools.chains[%s] has no steps", intent)
		}
		for i, step := range steps {
			if step.Tool == "" {
				ve.Add("tools.chains[%s][%d].tool must not be empty", intent, i)
			}
			if step.Threshold < 0 || step.Threshold > 1 {
				ve.Add("tools.chains[%s][%d].threshold must be in [0, 1]", intent, i)
			}
		}
	}
}

var validActions = map[string]bool{
	"session_sweep":     true,
	"interaction_prune": true,
}

func validateScheduler(cfg *Config, ve *ValidationError) {
	if !cfg.Scheduler.Enabled {
		return
	}
	seen := map[string]bool{}
	for i, task := range cfg.Scheduler.Tasks {
		if task.Name == "" {
			ve.Add("scheduler.tasks[%d].name must not be empty", i)
			continue
		}
		if seen[task.Name] {
			ve.Add("scheduler.tasks[%d] duplicates name %q", i, task.Name)
		}
		seen[task.Name] = true
		if !validActions[task.Action] {
			ve.Add("scheduler.tasks[%s].action %q is unknown", task.Name, task.Action)
		}
		if !validSchedule(task.Schedule) {
			ve.Add("scheduler.tasks[%s].schedule %q is neither a cron expression nor a duration", task.Name, task.Schedule)
		}
	}
}

func validSchedule(expr string) bool {
	if expr == "" {
		return false
	}
	if d, err := time.ParseDuration(expr); err == nil {
		return d > 0
	}
	_, err := cron.ParseStandard(expr)
	return err == nil
}

func validateAgents(cfg *Config, ve *ValidationError) {
	seen := map[string]bool{}
	for i, seed := range cfg.Agents {
		if seed.ID == "" {
			ve.Add("agents[%d].id must not be empty", i)
			continue
		}
		if seen[seed.ID] {
			ve.Add("agents[%d] duplicates id %q", i, seed.ID)
		}
		seen[seed.ID] = true
		if len(seed.Capabilities) == 0 {
			ve.Add("agents[%s].capabilities must not be empty", seed.ID)
		}
	}
}

func validateMCP(cfg *Config, ve *ValidationError) {
	if cfg.MCP == nil {
		return
	}
	for i, srv := range cfg.MCP.Servers {
		if srv.Name == "" {
			ve.Add("mcp.servers[%d].name must not be empty", i)
			continue
		}
		switch srv.Transport {
		case "stdio":
			if srv.Command == "" {
				ve.Add("mcp.servers[%s].command is required for stdio transport", srv.Name)
			}
		case "http":
			if srv.URL == "" {
				ve.Add("mcp.servers[%s].url is required for http transport", srv.Name)
			}
		default:
			ve.Add("mcp.servers[%s].transport %q is not one of stdio, http", srv.Name, srv.Transport)
		}
		if srv.Confidence < 0 || srv.Confidence > 1 {
			ve.Add("mcp.servers[%s].confidence must be in [0, 1]", srv.Name)
		}
	}
}
