package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate keeps the loader away from config files on the host.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	return dir
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("creating config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
}

func TestLoader_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "auto" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "auto")
	}
	if cfg.Workflow.Timeout != "30m0s" {
		t.Errorf("Workflow.Timeout = %q, want %q", cfg.Workflow.Timeout, "30m0s")
	}
	if cfg.Workflow.MaxRetries != 2 {
		t.Errorf("Workflow.MaxRetries = %d, want %d", cfg.Workflow.MaxRetries, 2)
	}
	if !cfg.Workflow.AllowParallel {
		t.Error("Workflow.AllowParallel = false, want true")
	}
	if !cfg.Optimizer.Enabled || cfg.Optimizer.MaxIterations != 3 {
		t.Errorf("Optimizer = %+v, want enabled with 3 iterations", cfg.Optimizer)
	}
	if cfg.Server.MaxConcurrentRuns != 8 {
		t.Errorf("Server.MaxConcurrentRuns = %d, want %d", cfg.Server.MaxConcurrentRuns, 8)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
	if cfg.Tracing.Enabled {
		t.Error("Tracing.Enabled = true, want false")
	}

	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoader_EnvOverride(t *testing.T) {
	isolate(t)
	t.Setenv("TOOLFLOW_LOG_LEVEL", "debug")
	t.Setenv("TOOLFLOW_WORKFLOW_MAX_RETRIES", "5")
	t.Setenv("TOOLFLOW_WORKFLOW_TOOL_TIMEOUT", "45s")
	t.Setenv("TOOLFLOW_SERVER_ADDR", ":9090")

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Workflow.MaxRetries != 5 {
		t.Errorf("Workflow.MaxRetries = %d, want %d", cfg.Workflow.MaxRetries, 5)
	}
	if cfg.Workflow.ToolTimeout != "45s" {
		t.Errorf("Workflow.ToolTimeout = %q, want %q", cfg.Workflow.ToolTimeout, "45s")
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":9090")
	}
}

func TestLoader_ConfigFileOverride(t *testing.T) {
	dir := isolate(t)
	configPath := filepath.Join(dir, "toolflow.yaml")
	writeConfig(t, configPath, `
log:
  level: warn
  format: json
workflow:
  timeout: 4h
  max_parallelism: 2
tools:
  fetch:
    endpoint: http://localhost:9000/tools/fetch
    rate_limit: 5
    burst: 2
    headers:
      Authorization: Bearer t0ken
  lint:
    command: golangci-lint run
    args: ["--out-format", "json"]
    env:
      GOFLAGS: -mod=mod
`)

	loader := NewLoader().WithConfigFile(configPath)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loader.ConfigFile() != configPath {
		t.Errorf("ConfigFile() = %q, want %q", loader.ConfigFile(), configPath)
	}
	if cfg.Log.Level != "warn" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v, want warn/json", cfg.Log)
	}
	if cfg.Workflow.Timeout != "4h" {
		t.Errorf("Workflow.Timeout = %q, want %q", cfg.Workflow.Timeout, "4h")
	}
	if cfg.Workflow.MaxParallelism != 2 {
		t.Errorf("Workflow.MaxParallelism = %d, want %d", cfg.Workflow.MaxParallelism, 2)
	}
	// Untouched keys keep their defaults.
	if cfg.Workflow.MaxRetries != 2 {
		t.Errorf("Workflow.MaxRetries = %d, want default %d", cfg.Workflow.MaxRetries, 2)
	}

	fetch, ok := cfg.Tools["fetch"]
	if !ok {
		t.Fatalf("Tools = %v, want fetch", cfg.Tools)
	}
	if fetch.RateLimit != 5 || fetch.Burst != 2 {
		t.Errorf("fetch rate limit = %v/%d, want 5/2", fetch.RateLimit, fetch.Burst)
	}
	// Viper lowercases map keys.
	if fetch.Headers["authorization"] != "Bearer t0ken" {
		t.Errorf("fetch headers = %v", fetch.Headers)
	}
	lint := cfg.Tools["lint"]
	if lint.Command != "golangci-lint run" || len(lint.Args) != 2 {
		t.Errorf("lint = %+v", lint)
	}

	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("ValidateConfig() error = %v", err)
	}
}

func TestLoader_ProjectConfigBeatsUserConfig(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, filepath.Join(dir, ".config", "toolflow", "config.yaml"), "log:\n  level: error\n")
	writeConfig(t, filepath.Join(dir, ".toolflow.yaml"), "log:\n  level: warn\n")

	loader := NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q from project config", cfg.Log.Level, "warn")
	}
	if filepath.Base(loader.ConfigFile()) != ".toolflow.yaml" {
		t.Errorf("ConfigFile() = %q, want the project config", loader.ConfigFile())
	}
}

func TestLoader_UserConfig(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, filepath.Join(dir, ".config", "toolflow", "config.yaml"), "log:\n  level: error\n")

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, want %q from user config", cfg.Log.Level, "error")
	}
}

func TestLoader_Precedence(t *testing.T) {
	dir := isolate(t)
	configPath := filepath.Join(dir, "toolflow.yaml")
	writeConfig(t, configPath, "log:\n  level: warn\n")
	t.Setenv("TOOLFLOW_LOG_LEVEL", "debug")

	cfg, err := NewLoader().WithConfigFile(configPath).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (env should override file)", cfg.Log.Level, "debug")
	}
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	isolate(t)
	t.Setenv("FLOW_LOG_LEVEL", "error")

	cfg, err := NewLoader().WithEnvPrefix("FLOW").Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "error")
	}
}

func TestLoader_InvalidConfigFile(t *testing.T) {
	dir := isolate(t)
	configPath := filepath.Join(dir, "invalid.yaml")
	writeConfig(t, configPath, "log:\n  level: [invalid yaml\n")

	if _, err := NewLoader().WithConfigFile(configPath).Load(); err == nil {
		t.Error("Load() error = nil, want error for invalid YAML")
	}
}

func TestLoader_ExplicitFileMustExist(t *testing.T) {
	dir := isolate(t)

	if _, err := NewLoader().WithConfigFile(filepath.Join(dir, "missing.yaml")).Load(); err == nil {
		t.Error("Load() error = nil, want error for missing explicit config")
	}
}

func TestConfig_Conversions(t *testing.T) {
	isolate(t)
	t.Setenv("TOOLFLOW_WORKFLOW_RETRY_BASE_DELAY", "250ms")

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.Tools = map[string]ToolConfig{
		"fetch": {Endpoint: "http://localhost:9000", RateLimit: 2},
	}

	defaults, err := cfg.SpecDefaults()
	if err != nil {
		t.Fatalf("SpecDefaults() error = %v", err)
	}
	if defaults.Timeout != 30*time.Minute || defaults.ToolTimeout != 2*time.Minute {
		t.Errorf("SpecDefaults() = %+v", defaults)
	}

	policy, err := cfg.RetryPolicy()
	if err != nil {
		t.Fatalf("RetryPolicy() error = %v", err)
	}
	if policy.BaseDelay != 250*time.Millisecond || policy.MaxRetries != 2 {
		t.Errorf("RetryPolicy() = %+v", policy)
	}

	if got := cfg.RunnerConfig().MaxConcurrentRuns; got != 8 {
		t.Errorf("RunnerConfig().MaxConcurrentRuns = %d, want 8", got)
	}
	if got := cfg.OptimizerConfig().ConvergenceThreshold; got != 0.85 {
		t.Errorf("OptimizerConfig().ConvergenceThreshold = %v, want 0.85", got)
	}
	if got := cfg.ToolConfigs()["fetch"]; got.TransportName() != "http" || got.RateLimit != 2 {
		t.Errorf("ToolConfigs()[fetch] = %+v", got)
	}
	if got := cfg.TracingConfig().ServiceName; got != "toolflow" {
		t.Errorf("TracingConfig().ServiceName = %q", got)
	}
	if got := cfg.ShutdownTimeout(); got != 30*time.Second {
		t.Errorf("ShutdownTimeout() = %v", got)
	}
	if got := cfg.LoggingConfig().Level; got != "info" {
		t.Errorf("LoggingConfig().Level = %q", got)
	}

	cfg.Workflow.Timeout = "soon"
	if _, err := cfg.SpecDefaults(); err == nil {
		t.Error("SpecDefaults() error = nil, want error for bad duration")
	}
}
