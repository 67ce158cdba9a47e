package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/toolflow/internal/config"
	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
	"github.com/hugo-lorenzo-mato/toolflow/internal/events"
	"github.com/hugo-lorenzo-mato/toolflow/internal/invoker"
	"github.com/hugo-lorenzo-mato/toolflow/internal/logging"
	"github.com/hugo-lorenzo-mato/toolflow/internal/metrics"
	"github.com/hugo-lorenzo-mato/toolflow/internal/service"
	"github.com/hugo-lorenzo-mato/toolflow/internal/service/workflow"
	"github.com/hugo-lorenzo-mato/toolflow/internal/spec"
	"github.com/hugo-lorenzo-mato/toolflow/internal/tracing"
)

const eventBufferSize = 256

// loadConfig loads and validates the configuration. Flags are bound to a
// fresh viper instance on every call so repeated invocations in one process
// never see each other's state.
func loadConfig() (*config.Config, error) {
	v := viper.New()
	// Bind flags to viper (errors are nil when flag exists)
	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	loader := config.NewLoaderWithViper(v)
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// App holds the dependencies shared by the workflow commands.
type App struct {
	Config   *config.Config
	Logger   *logging.Logger
	Specs    *spec.Loader
	Plans    *service.PlanCache
	Registry *invoker.Registry
	Bus      *events.EventBus
	// Metrics is nil when metrics are disabled.
	Metrics *metrics.Collector
	Runner  *workflow.Runner

	tracing *tracing.Provider
}

// newApp loads the configuration and wires the runner with its invokers,
// event bus, metrics and tracer.
func newApp(ctx context.Context) (*App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.LoggingConfig())

	defaults, err := cfg.SpecDefaults()
	if err != nil {
		return nil, err
	}
	policy, err := cfg.RetryPolicy()
	if err != nil {
		return nil, err
	}

	tp, err := tracing.Setup(ctx, cfg.TracingConfig())
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	tracer := tracing.Tracer(tp.TracerProvider())

	registry, err := invoker.Build(cfg.ToolConfigs(), invoker.BuildDeps{
		Tracer:  tracer,
		Logger:  logger,
		Gateway: cfg.Gateway,
	})
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	var recorder metrics.Recorder = metrics.Nop{}
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		recorder = collector
	}

	bus := events.New(eventBufferSize)
	plans := service.NewPlanCache()
	executor := workflow.NewExecutor(
		workflow.WithRetryPolicy(policy),
		workflow.WithOptimizer(workflow.NewOptimizer(cfg.OptimizerConfig())),
		workflow.WithEventBus(bus),
		workflow.WithMetrics(recorder),
		workflow.WithTracer(tracer),
		workflow.WithLogger(logger),
	)
	runner, err := workflow.NewRunner(workflow.RunnerDeps{
		Config:   cfg.RunnerConfig(),
		Executor: executor,
		Binder:   registry,
		Plans:    plans,
		Bus:      bus,
		Metrics:  recorder,
		Logger:   logger,
	})
	if err != nil {
		bus.Close()
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("creating runner: %w", err)
	}

	logger.Debug("toolflow initialized",
		"tools", registry.Names(),
		"gateway", cfg.Gateway != "",
		"metrics", cfg.Metrics.Enabled,
		"tracing", cfg.Tracing.Enabled,
	)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Specs:    spec.NewLoader(defaults),
		Plans:    plans,
		Registry: registry,
		Bus:      bus,
		Metrics:  collector,
		Runner:   runner,
		tracing:  tp,
	}, nil
}

// LoadSpec reads a workflow file with the configured defaults.
func (a *App) LoadSpec(path string) (*core.WorkflowSpec, error) {
	return a.Specs.LoadFile(path)
}

// Close flushes spans and stops the event bus.
func (a *App) Close(ctx context.Context) error {
	a.Bus.Close()
	return a.tracing.Shutdown(ctx)
}
