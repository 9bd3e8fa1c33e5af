package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Logger       LoggerConfig       `yaml:"logger"`
	Tracer       TracerConfig       `yaml:"tracer"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Catalog      CatalogConfig      `yaml:"catalog"`
	Routing      RoutingConfig      `yaml:"routing"`
	Session      SessionConfig      `yaml:"session"`
	Tools        ToolsConfig        `yaml:"tools"`
	Discovery    DiscoveryConfig    `yaml:"discovery"`
	Interactions InteractionsConfig `yaml:"interactions"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Agents       []AgentSeed        `yaml:"agents,omitempty"`
	MCP          *MCPConfig         `yaml:"mcp,omitempty"` // nil = no MCP bridge
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// CatalogConfig holds agent catalog persistence settings.
type CatalogConfig struct {
	Path string `yaml:"path"` // empty disables persistence
}

// RoutingConfig holds the scoring weights for agent selection.
type RoutingConfig struct {
	PerformanceWeight float64 `yaml:"performance_weight"`
	LoadWeight        float64 `yaml:"load_weight"`
}

// SessionConfig holds session store settings.
type SessionConfig struct {
	Backend       string        `yaml:"backend"` // "memory" or "redis"
	TTL           string        `yaml:"ttl"`     // duration string (default: 1h)
	SweepInterval string        `yaml:"sweep_interval"`
	RedisURL      string        `yaml:"redis_url,omitempty"` // e.g. "redis://localhost:6379"
	Breaker       BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker guarding the Redis backend.
type BreakerConfig struct {
	MaxFailures uint32 `yaml:"max_failures"`
	Timeout     string `yaml:"timeout"`  // open -> half-open delay
	Interval    string `yaml:"interval"` // closed-state counter reset
}

// ToolsConfig holds tool selection and execution settings.
type ToolsConfig struct {
	MinConfidence float64                `yaml:"min_confidence"`
	RateLimit     *RateLimitConfig       `yaml:"rate_limit,omitempty"` // nil = unlimited
	Chains        map[string][]ChainStep `yaml:"chains,omitempty"`     // intent -> ordered steps
}

// RateLimitConfig bounds per-tool execution rates.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// ChainStep is one entry of a configured tool chain.
type ChainStep struct {
	Tool      string  `yaml:"tool"`
	Threshold float64 `yaml:"threshold"` // minimum post-execution success rate to continue
}

// DiscoveryConfig holds tool discovery ledger paths.
type DiscoveryConfig struct {
	PerformancePath string `yaml:"performance_path"`
	PatternsPath    string `yaml:"patterns_path"`
}

// InteractionsConfig holds interaction log settings.
type InteractionsConfig struct {
	Path      string `yaml:"path"`      // empty disables the log
	Retention string `yaml:"retention"` // duration string (default: 720h)
}

// SchedulerConfig holds background task settings.
type SchedulerConfig struct {
	Enabled bool                  `yaml:"enabled"`
	Tasks   []ScheduledTaskConfig `yaml:"tasks"`
}

// ScheduledTaskConfig defines a single scheduled task.
type ScheduledTaskConfig struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"` // cron expression or duration string
	Action   string `yaml:"action"`
}

// AgentSeed registers an agent at startup.
type AgentSeed struct {
	ID           string         `yaml:"id"`
	Capabilities []string       `yaml:"capabilities"`
	Status       string         `yaml:"status,omitempty"`
	Metadata     map[string]any `yaml:"metadata,omitempty"`
}

// MCPConfig holds MCP server connections for the tool bridge.
type MCPConfig struct {
	Servers []MCPServer `yaml:"servers"`
}

// MCPServer configures an MCP server connection.
type MCPServer struct {
	Name       string              `yaml:"name"`
	Transport  string              `yaml:"transport"` // "stdio" or "http"
	Command    string              `yaml:"command,omitempty"`
	Args       []string            `yaml:"args,omitempty"`
	URL        string              `yaml:"url,omitempty"`
	Env        map[string]string   `yaml:"env,omitempty"`
	Intents    map[string][]string `yaml:"intents,omitempty"` // tool name -> intents it handles
	Confidence float64             `yaml:"confidence,omitempty"`
}

// defaultDataDir returns the persistent data directory under $HOME/.switchboard/data.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".switchboard", "data")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":2112",
		},
		Catalog: CatalogConfig{
			Path: filepath.Join(dataDir, "agents.json"),
		},
		Routing: RoutingConfig{
			PerformanceWeight: 0.6,
			LoadWeight:        0.4,
		},
		Session: SessionConfig{
			Backend:       "memory",
			TTL:           "1h",
			SweepInterval: "30s",
			Breaker: BreakerConfig{
				MaxFailures: 5,
				Timeout:     "30s",
				Interval:    "60s",
			},
		},
		Tools: ToolsConfig{
			MinConfidence: 0.5,
		},
		Discovery: DiscoveryConfig{
			PerformancePath: filepath.Join(dataDir, "tool_performance.json"),
			PatternsPath:    filepath.Join(dataDir, "tool_patterns.json"),
		},
		Interactions: InteractionsConfig{
			Path:      filepath.Join(dataDir, "interactions.db"),
			Retention: "720h",
		},
		Scheduler: SchedulerConfig{
			Enabled: true,
			Tasks: []ScheduledTaskConfig{
				{Name: "session-sweep", Schedule: "30s", Action: "session_sweep"},
				{Name: "interaction-prune", Schedule: "0 3 * * *", Action: "interaction_prune"},
			},
		},
	}
}

// Load reads the YAML config at path, applies defaults, env overrides
// and validation. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps SWITCHBOARD_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SWITCHBOARD_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("SWITCHBOARD_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("SWITCHBOARD_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("SWITCHBOARD_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("SWITCHBOARD_METRICS_ADDR"); v != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("SWITCHBOARD_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("SWITCHBOARD_SESSION_BACKEND"); v != "" {
		cfg.Session.Backend = v
	}
	if v := os.Getenv("SWITCHBOARD_SESSION_REDIS_URL"); v != "" {
		cfg.Session.RedisURL = v
	}
	if v := os.Getenv("SWITCHBOARD_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Session.TTL = v
		}
	}
	if v := os.Getenv("SWITCHBOARD_TOOLS_MIN_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Tools.MinConfidence = f
		}
	}
}

// Duration parses s, returning fallback when s is empty or malformed.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
