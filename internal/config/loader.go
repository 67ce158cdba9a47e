package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/toolflow/internal/service"
	"github.com/hugo-lorenzo-mato/toolflow/internal/service/workflow"
	"github.com/hugo-lorenzo-mato/toolflow/internal/spec"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "TOOLFLOW",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (TOOLFLOW_*)
// 3. Project config (.toolflow.yaml in current directory)
// 4. User config (~/.config/toolflow/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else if err := l.readSearchPaths(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// readSearchPaths reads the first config file found, project before user.
// No file at all is not an error.
func (l *Loader) readSearchPaths() error {
	candidates := []string{".toolflow.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "toolflow", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", path, err)
		}
		return nil
	}
	return nil
}

// setDefaults configures default values. Durations and limits come from the
// packages that own them so a zero config behaves like no config.
func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	wf := spec.DefaultDefaults()
	retry := service.DefaultRetryPolicy()
	l.v.SetDefault("workflow.timeout", wf.Timeout.String())
	l.v.SetDefault("workflow.tool_timeout", wf.ToolTimeout.String())
	l.v.SetDefault("workflow.max_retries", wf.MaxRetries)
	l.v.SetDefault("workflow.retry_base_delay", retry.BaseDelay.String())
	l.v.SetDefault("workflow.retry_max_delay", retry.MaxDelay.String())
	l.v.SetDefault("workflow.allow_parallel", wf.AllowParallel)
	l.v.SetDefault("workflow.max_parallelism", wf.MaxParallelism)

	opt := workflow.DefaultOptimizerConfig()
	l.v.SetDefault("optimizer.enabled", opt.Enabled)
	l.v.SetDefault("optimizer.max_iterations", opt.MaxIterations)
	l.v.SetDefault("optimizer.convergence_threshold", opt.ConvergenceThreshold)
	l.v.SetDefault("optimizer.min_improvement", opt.MinImprovement)
	l.v.SetDefault("optimizer.confidence_threshold", opt.ConfidenceThreshold)
	l.v.SetDefault("optimizer.min_output_length", opt.MinOutputLength)

	l.v.SetDefault("gateway", "")

	runner := workflow.DefaultRunnerConfig()
	l.v.SetDefault("server.addr", "127.0.0.1:8080")
	l.v.SetDefault("server.max_concurrent_runs", runner.MaxConcurrentRuns)
	l.v.SetDefault("server.max_retained_runs", runner.MaxRetainedRuns)
	l.v.SetDefault("server.watch_dir", "")
	l.v.SetDefault("server.cors_origins", []string{})
	l.v.SetDefault("server.shutdown_timeout", "30s")

	l.v.SetDefault("metrics.enabled", true)
	l.v.SetDefault("metrics.path", "/metrics")

	l.v.SetDefault("tracing.enabled", false)
	l.v.SetDefault("tracing.endpoint", "")
	l.v.SetDefault("tracing.service_name", "toolflow")
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}
