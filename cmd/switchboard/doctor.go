package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"switchboard/internal/adapter/store"
	"switchboard/internal/infra/config"
	"switchboard/internal/infra/logger"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes all health checks and reports results.
func runDoctor() error {
	cfgPath := configPath()
	cfg, cfgErr := config.Load(cfgPath)
	if cfg == nil {
		cfg = config.Defaults()
	}

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Data directory", Fn: checkDataDir},
		{Name: "Agent catalog", Fn: checkCatalogSnapshot},
		{Name: "Discovery ledgers", Fn: checkDiscoveryLedgers},
		{Name: "Interaction log", Fn: checkInteractionLog},
		{Name: "Session backend", Fn: checkSessionBackend},
	}

	fmt.Println("switchboard doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Println("\nFix the FAIL issues above to ensure switchboard runs correctly.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Println("\nswitchboard should work, but consider addressing the warnings.")
	} else {
		fmt.Println("\nAll checks passed! switchboard is ready to run.")
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile verifies the config file exists and parses correctly.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, running on defaults", cfgPath),
				Fix:     "Create config.yaml to customize routing, sessions and tools",
			}
		}
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config parse error: %v", cfgErr),
				Fix:     "Check config.yaml syntax",
			}
		}
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("config loaded from %s", cfgPath)}
	}
}

// checkDataDir verifies the catalog's data directory is writable.
func checkDataDir(cfg *config.Config) CheckResult {
	if cfg.Catalog.Path == "" {
		return CheckResult{Status: StatusWarn, Message: "catalog persistence disabled"}
	}
	dir := filepath.Dir(cfg.Catalog.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot create data dir %s: %v", dir, err),
		}
	}
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("data dir %s not writable: %v", dir, err),
			Fix:     "Check directory permissions",
		}
	}
	os.Remove(probe)
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("data dir %s writable", dir)}
}

// checkCatalogSnapshot verifies a persisted agent catalog parses.
func checkCatalogSnapshot(cfg *config.Config) CheckResult {
	if cfg.Catalog.Path == "" {
		return CheckResult{Status: StatusWarn, Message: "catalog persistence disabled"}
	}
	data, err := os.ReadFile(cfg.Catalog.Path)
	if os.IsNotExist(err) {
		return CheckResult{Status: StatusPass, Message: "no snapshot yet (fresh install)"}
	}
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("cannot read snapshot: %v", err)}
	}
	var snapshot map[string]json.RawMessage
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("snapshot corrupt: %v", err),
			Fix:     fmt.Sprintf("Remove %s to start with an empty catalog", cfg.Catalog.Path),
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%d agent(s) in snapshot", len(snapshot))}
}

// checkDiscoveryLedgers verifies the tool discovery ledgers parse.
func checkDiscoveryLedgers(cfg *config.Config) CheckResult {
	for _, path := range []string{cfg.Discovery.PerformancePath, cfg.Discovery.PatternsPath} {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return CheckResult{Status: StatusFail, Message: fmt.Sprintf("cannot read ledger %s: %v", path, err)}
		}
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("ledger %s corrupt: %v", path, err),
				Fix:     fmt.Sprintf("Remove %s; discovery relearns from scratch", path),
			}
		}
	}
	return CheckResult{Status: StatusPass, Message: "ledgers parse"}
}

// checkInteractionLog verifies the SQLite interaction log opens.
func checkInteractionLog(cfg *config.Config) CheckResult {
	if cfg.Interactions.Path == "" {
		return CheckResult{Status: StatusWarn, Message: "interaction log disabled"}
	}
	s, err := store.NewInteractionStore(cfg.Interactions.Path, logger.Discard())
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot open %s: %v", cfg.Interactions.Path, err),
		}
	}
	s.Close()
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("database opens at %s", cfg.Interactions.Path)}
}

// checkSessionBackend pings Redis when it is the configured backend.
func checkSessionBackend(cfg *config.Config) CheckResult {
	if cfg.Session.Backend != "redis" {
		return CheckResult{Status: StatusPass, Message: "in-memory backend, nothing to check"}
	}
	opts, err := redis.ParseURL(cfg.Session.RedisURL)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("invalid redis url: %v", err),
			Fix:     "Set session.redis_url, e.g. redis://localhost:6379",
		}
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("redis unreachable at %s: %v", opts.Addr, err),
			Fix:     "Start Redis or switch session.backend to memory",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("redis reachable at %s", opts.Addr)}
}
