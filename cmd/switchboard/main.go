package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"switchboard/internal/adapter/store"
	"switchboard/internal/adapter/tool"
	"switchboard/internal/domain"
	"switchboard/internal/infra/config"
	"switchboard/internal/infra/logger"
	"switchboard/internal/infra/metrics"
	"switchboard/internal/infra/tracer"
	"switchboard/internal/usecase"
	"switchboard/internal/usecase/eventbus"
	"switchboard/internal/usecase/scheduling"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	switch os.Args[1] {
	case "doctor":
		if err := runDoctor(); err != nil {
			fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'switchboard --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`switchboard - Task routing and state management core

USAGE:
    switchboard [COMMAND] [FLAGS]

COMMANDS:
    doctor      Run health checks on the configured data stores

    (no command) - Run the routing daemon with existing config

FLAGS:
    -h, --help         Show this help message
    --config PATH      Specify config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: SWITCHBOARD_* variables override config

EXAMPLES:
    switchboard                              # Run with config.yaml
    switchboard --config /etc/switchboard.yaml
    switchboard doctor                       # Check data store health`)
}

// configPath returns the --config flag value or the default.
func configPath() string {
	for i := 1; i < len(os.Args); i++ {
		switch {
		case os.Args[i] == "--config" && i+1 < len(os.Args):
			return os.Args[i+1]
		case strings.HasPrefix(os.Args[i], "--config="):
			return strings.TrimPrefix(os.Args[i], "--config=")
		}
	}
	return "./config.yaml"
}

func run() error {
	// 1. Config
	cfgPath := configPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 3. Metrics
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, prometheus.DefaultGatherer, log); err != nil {
				log.Error("metrics server error", "error", err)
			}
		}()
	}

	// 4. Event bus
	bus := eventbus.New(log)
	defer bus.Close()

	// 5. Agent catalog & decision engine
	catalog, err := usecase.NewCatalog(cfg.Catalog.Path, bus, m, logger.Component(log, "catalog"))
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	engine := usecase.NewEngine(catalog, usecase.Weights{
		Performance: cfg.Routing.PerformanceWeight,
		Load:        cfg.Routing.LoadWeight,
	}, m, logger.Component(log, "engine"))

	// 6. Session store
	ttl := config.Duration(cfg.Session.TTL, time.Hour)
	backend, backendCloser, err := buildSessionBackend(cfg.Session, ttl, log)
	if err != nil {
		return fmt.Errorf("session backend: %w", err)
	}
	if backendCloser != nil {
		defer backendCloser()
	}
	sessions := usecase.NewSessionManager(backend, ttl, bus, m, logger.Component(log, "session"))

	// 7. Discovery ledgers
	discovery := usecase.NewDiscovery(
		cfg.Discovery.PerformancePath,
		cfg.Discovery.PatternsPath,
		logger.Component(log, "discovery"),
	)

	// 8. Interaction log
	var sink usecase.InteractionSink
	var interactions *store.InteractionStore
	if cfg.Interactions.Path != "" {
		interactions, err = store.NewInteractionStore(cfg.Interactions.Path, logger.Component(log, "interactions"))
		if err != nil {
			return fmt.Errorf("interactions: %w", err)
		}
		defer interactions.Close()
		sink = interactions
	}

	// 9. Tool catalog
	registry := tool.NewRegistry(cfg.Tools.RateLimit, m, logger.Component(log, "tool"))
	toolsCleanup, err := registerTools(ctx, cfg, registry, log)
	if err != nil {
		return fmt.Errorf("tools: %w", err)
	}
	if toolsCleanup != nil {
		defer toolsCleanup()
	}
	for intent, steps := range cfg.Tools.Chains {
		registry.DefineChain(intent, chainSteps(steps))
	}

	// 10. Router
	router := usecase.NewRouter(engine, sessions, registry, discovery, sink, bus,
		cfg.Tools.MinConfidence, logger.Component(log, "router"))

	// 11. Seed agents
	if err := seedAgents(ctx, cfg.Agents, catalog, log); err != nil {
		return fmt.Errorf("seed agents: %w", err)
	}

	// 12. Scheduler
	if cfg.Scheduler.Enabled {
		sched := scheduling.New(logger.Component(log, "scheduler"))
		sched.RegisterAction(scheduling.ActionSessionSweep, func(ctx context.Context) error {
			_, err := sessions.Sweep(ctx)
			return err
		})
		retention := config.Duration(cfg.Interactions.Retention, 720*time.Hour)
		sched.RegisterAction(scheduling.ActionInteractionPrune, func(ctx context.Context) error {
			if interactions == nil {
				return nil
			}
			_, err := interactions.Prune(ctx, time.Now().Add(-retention))
			return err
		})
		for _, task := range cfg.Scheduler.Tasks {
			if err := sched.AddTask(scheduling.Task{
				Name:     task.Name,
				Schedule: task.Schedule,
				Action:   scheduling.Action(task.Action),
			}); err != nil {
				return fmt.Errorf("scheduler: %w", err)
			}
		}
		sched.Start(ctx)
		defer sched.Stop()
	}

	// 13. Config hot reload: weights, TTL and confidence floor apply live.
	watcher, err := config.NewWatcher(cfgPath, logger.Component(log, "config"), func(next *config.Config) {
		engine.SetWeights(usecase.Weights{
			Performance: next.Routing.PerformanceWeight,
			Load:        next.Routing.LoadWeight,
		})
		sessions.SetTTL(config.Duration(next.Session.TTL, ttl))
		router.SetMinConfidence(next.Tools.MinConfidence)
		log.Info("configuration reloaded",
			"performance_weight", next.Routing.PerformanceWeight,
			"load_weight", next.Routing.LoadWeight,
			"min_confidence", next.Tools.MinConfidence,
		)
	})
	if err != nil {
		log.Warn("config watcher disabled", "error", err)
	} else {
		defer watcher.Stop()
	}

	log.Info("switchboard ready",
		"agents", catalog.Len(),
		"tools", registry.Names(),
		"session_backend", cfg.Session.Backend,
	)

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

// buildSessionBackend picks the configured session backend. Redis gets a
// circuit breaker; everything else runs on the in-process store.
func buildSessionBackend(cfg config.SessionConfig, ttl time.Duration, log *slog.Logger) (usecase.SessionBackend, func() error, error) {
	switch cfg.Backend {
	case "", "memory":
		return usecase.NewMemoryBackend(), nil, nil
	case "redis":
		redis, err := store.NewRedisBackend(cfg.RedisURL, ttl, logger.Component(log, "redis"))
		if err != nil {
			return nil, nil, err
		}
		breaker := store.NewBreakerBackend(redis, store.BreakerSettings{
			MaxFailures: cfg.Breaker.MaxFailures,
			Timeout:     config.Duration(cfg.Breaker.Timeout, 0),
			Interval:    config.Duration(cfg.Breaker.Interval, 0),
		}, logger.Component(log, "breaker"))
		return breaker, redis.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

// registerTools installs the built-in tools and any MCP-bridged ones. The
// returned cleanup closes the MCP connections, when there are any.
func registerTools(ctx context.Context, cfg *config.Config, registry *tool.Registry, log *slog.Logger) (func(), error) {
	toolLog := logger.Component(log, "tool")
	if err := registry.Register(tool.NewSearchTool(toolLog)); err != nil {
		return nil, err
	}
	if err := registry.Register(tool.NewBookingTool(toolLog)); err != nil {
		return nil, err
	}

	if cfg.MCP == nil || len(cfg.MCP.Servers) == 0 {
		return nil, nil
	}
	bridge, err := tool.NewMCPBridge(ctx, cfg.MCP.Servers, logger.Component(log, "mcp"))
	if err != nil {
		// MCP servers are optional capability extensions, not a reason to
		// refuse to start.
		log.Warn("mcp bridge unavailable", "error", err)
		return nil, nil
	}
	for _, t := range bridge.Tools() {
		if err := registry.Register(t); err != nil {
			log.Warn("mcp tool registration failed", "tool", t.Info().Name, "error", err)
		}
	}
	return bridge.Close, nil
}

// chainSteps converts config chain steps to domain steps.
func chainSteps(steps []config.ChainStep) []domain.ChainStep {
	out := make([]domain.ChainStep, 0, len(steps))
	for _, s := range steps {
		out = append(out, domain.ChainStep{Tool: s.Tool, Threshold: s.Threshold})
	}
	return out
}

// seedAgents registers the configured agents, tolerating ones already in
// the persisted catalog.
func seedAgents(ctx context.Context, seeds []config.AgentSeed, catalog *usecase.Catalog, log *slog.Logger) error {
	for _, seed := range seeds {
		status := domain.AgentStatus(seed.Status)
		if seed.Status == "" {
			status = domain.StatusActive
		}
		err := catalog.Register(ctx, seed.ID, domain.AgentRegistration{
			Capabilities: seed.Capabilities,
			Status:       status,
			Metadata:     seed.Metadata,
		})
		if errors.Is(err, domain.ErrAlreadyRegistered) {
			log.Debug("seed agent already registered", "agent", seed.ID)
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}
