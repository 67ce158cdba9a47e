package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/toolflow/internal/invoker"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Fields returns the names of the offending fields in order.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, len(e))
	for i, err := range e {
		fields[i] = err.Field
	}
	return fields
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateWorkflow(&cfg.Workflow)
	v.validateOptimizer(&cfg.Optimizer)
	v.validateTools(cfg.Tools)
	v.validateGateway(cfg.Gateway)
	v.validateServer(&cfg.Server)
	v.validateMetrics(&cfg.Metrics)
	v.validateTracing(&cfg.Tracing)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

func (v *Validator) validateWorkflow(cfg *WorkflowConfig) {
	v.positiveDuration("workflow.timeout", cfg.Timeout)
	v.positiveDuration("workflow.tool_timeout", cfg.ToolTimeout)
	base := v.positiveDuration("workflow.retry_base_delay", cfg.RetryBaseDelay)
	limit := v.positiveDuration("workflow.retry_max_delay", cfg.RetryMaxDelay)
	if base > 0 && limit > 0 && limit < base {
		v.addError("workflow.retry_max_delay", cfg.RetryMaxDelay, "must be >= workflow.retry_base_delay")
	}

	if cfg.MaxRetries < 0 || cfg.MaxRetries > 10 {
		v.addError("workflow.max_retries", cfg.MaxRetries, "must be between 0 and 10")
	}

	if cfg.MaxParallelism < 1 {
		v.addError("workflow.max_parallelism", cfg.MaxParallelism, "must be at least 1")
	}
}

func (v *Validator) validateOptimizer(cfg *OptimizerConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.MaxIterations < 1 || cfg.MaxIterations > 10 {
		v.addError("optimizer.max_iterations", cfg.MaxIterations, "must be between 1 and 10")
	}
	for field, value := range map[string]float64{
		"optimizer.convergence_threshold": cfg.ConvergenceThreshold,
		"optimizer.min_improvement":       cfg.MinImprovement,
		"optimizer.confidence_threshold":  cfg.ConfidenceThreshold,
	} {
		if value < 0 || value > 1 {
			v.addError(field, value, "must be between 0 and 1")
		}
	}
	if cfg.MinOutputLength < 0 {
		v.addError("optimizer.min_output_length", cfg.MinOutputLength, "must be non-negative")
	}
}

func (v *Validator) validateTools(tools map[string]ToolConfig) {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		tool := tools[name]
		prefix := "tools." + name
		switch tool.toInvoker().TransportName() {
		case invoker.TransportHTTP:
			if tool.Endpoint == "" {
				v.addError(prefix+".endpoint", tool.Endpoint, "endpoint required for http transport")
			} else if !isHTTPURL(tool.Endpoint) {
				v.addError(prefix+".endpoint", tool.Endpoint, "must be an http(s) URL")
			}
		case invoker.TransportCommand:
			if strings.TrimSpace(tool.Command) == "" {
				v.addError(prefix+".command", tool.Command, "command required for command transport")
			}
			if tool.Dir != "" && !isDir(tool.Dir) {
				v.addError(prefix+".dir", tool.Dir, "directory does not exist")
			}
		case "":
			v.addError(prefix, name, "either endpoint or command is required")
		default:
			v.addError(prefix+".transport", tool.Transport, "must be one of: http, command")
		}

		if tool.RateLimit < 0 {
			v.addError(prefix+".rate_limit", tool.RateLimit, "must be non-negative")
		}
		if tool.Burst < 0 {
			v.addError(prefix+".burst", tool.Burst, "must be non-negative")
		}
	}
}

func (v *Validator) validateGateway(gateway string) {
	if gateway != "" && !isHTTPURL(gateway) {
		v.addError("gateway", gateway, "must be an http(s) URL")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Addr == "" {
		v.addError("server.addr", cfg.Addr, "address required")
	}
	if cfg.MaxConcurrentRuns < 0 {
		v.addError("server.max_concurrent_runs", cfg.MaxConcurrentRuns, "must be non-negative")
	}
	if cfg.MaxRetainedRuns < 0 {
		v.addError("server.max_retained_runs", cfg.MaxRetainedRuns, "must be non-negative")
	}
	if cfg.WatchDir != "" && !isDir(cfg.WatchDir) {
		v.addError("server.watch_dir", cfg.WatchDir, "directory does not exist")
	}
	v.positiveDuration("server.shutdown_timeout", cfg.ShutdownTimeout)
}

func (v *Validator) validateMetrics(cfg *MetricsConfig) {
	if cfg.Enabled && !strings.HasPrefix(cfg.Path, "/") {
		v.addError("metrics.path", cfg.Path, "must start with /")
	}
}

func (v *Validator) validateTracing(cfg *TracingConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.ServiceName == "" {
		v.addError("tracing.service_name", cfg.ServiceName, "service name required when tracing is enabled")
	}
}

// positiveDuration records an error unless value parses to a positive
// duration, and returns the parsed value.
func (v *Validator) positiveDuration(field, value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		v.addError(field, value, "invalid duration format")
		return 0
	}
	if d <= 0 {
		v.addError(field, value, "must be positive")
		return 0
	}
	return d
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ValidateConfig is a convenience function that creates a validator and validates config.
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	return v.Validate(cfg)
}
