package config

import (
	"fmt"
	"time"

	"github.com/hugo-lorenzo-mato/toolflow/internal/invoker"
	"github.com/hugo-lorenzo-mato/toolflow/internal/logging"
	"github.com/hugo-lorenzo-mato/toolflow/internal/service"
	"github.com/hugo-lorenzo-mato/toolflow/internal/service/workflow"
	"github.com/hugo-lorenzo-mato/toolflow/internal/spec"
	"github.com/hugo-lorenzo-mato/toolflow/internal/tracing"
)

// The conversions below assume a validated config. Duration fields that fail
// to parse still return an error rather than a silent zero.

// LoggingConfig returns the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = c.Log.Level
	lc.Format = c.Log.Format
	return lc
}

// SpecDefaults returns the defaults applied to workflow documents.
func (c *Config) SpecDefaults() (spec.Defaults, error) {
	timeout, err := parseDuration("workflow.timeout", c.Workflow.Timeout)
	if err != nil {
		return spec.Defaults{}, err
	}
	toolTimeout, err := parseDuration("workflow.tool_timeout", c.Workflow.ToolTimeout)
	if err != nil {
		return spec.Defaults{}, err
	}
	return spec.Defaults{
		Timeout:        timeout,
		ToolTimeout:    toolTimeout,
		MaxRetries:     c.Workflow.MaxRetries,
		AllowParallel:  c.Workflow.AllowParallel,
		MaxParallelism: c.Workflow.MaxParallelism,
	}, nil
}

// RetryPolicy returns the base retry policy. Each tool still applies its own
// retry budget on top of it.
func (c *Config) RetryPolicy() (*service.RetryPolicy, error) {
	base, err := parseDuration("workflow.retry_base_delay", c.Workflow.RetryBaseDelay)
	if err != nil {
		return nil, err
	}
	limit, err := parseDuration("workflow.retry_max_delay", c.Workflow.RetryMaxDelay)
	if err != nil {
		return nil, err
	}
	return service.NewRetryPolicy(
		service.WithMaxRetries(c.Workflow.MaxRetries),
		service.WithBaseDelay(base),
		service.WithMaxDelay(limit),
	), nil
}

// OptimizerConfig returns the optimizer configuration.
func (c *Config) OptimizerConfig() workflow.OptimizerConfig {
	return workflow.OptimizerConfig{
		Enabled:              c.Optimizer.Enabled,
		MaxIterations:        c.Optimizer.MaxIterations,
		ConvergenceThreshold: c.Optimizer.ConvergenceThreshold,
		MinImprovement:       c.Optimizer.MinImprovement,
		ConfidenceThreshold:  c.Optimizer.ConfidenceThreshold,
		MinOutputLength:      c.Optimizer.MinOutputLength,
	}
}

// RunnerConfig returns the run manager configuration.
func (c *Config) RunnerConfig() workflow.RunnerConfig {
	return workflow.RunnerConfig{
		MaxConcurrentRuns: int64(c.Server.MaxConcurrentRuns),
		MaxRetainedRuns:   c.Server.MaxRetainedRuns,
	}
}

// ToolConfigs returns the per-tool invoker configuration.
func (c *Config) ToolConfigs() map[string]invoker.ToolConfig {
	out := make(map[string]invoker.ToolConfig, len(c.Tools))
	for name, tool := range c.Tools {
		out[name] = tool.toInvoker()
	}
	return out
}

// TracingConfig returns the tracing configuration.
func (c *Config) TracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:     c.Tracing.Enabled,
		Endpoint:    c.Tracing.Endpoint,
		ServiceName: c.Tracing.ServiceName,
	}
}

// ShutdownTimeout returns how long the server waits for active runs.
func (c *Config) ShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

func (t ToolConfig) toInvoker() invoker.ToolConfig {
	return invoker.ToolConfig{
		Transport: t.Transport,
		Endpoint:  t.Endpoint,
		Headers:   t.Headers,
		Command:   t.Command,
		Args:      t.Args,
		Env:       t.Env,
		Dir:       t.Dir,
		RateLimit: t.RateLimit,
		Burst:     t.Burst,
	}
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}
