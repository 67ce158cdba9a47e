package config

// Config holds all application configuration.
type Config struct {
	Log       LogConfig             `mapstructure:"log"`
	Workflow  WorkflowConfig        `mapstructure:"workflow"`
	Optimizer OptimizerConfig       `mapstructure:"optimizer"`
	Tools     map[string]ToolConfig `mapstructure:"tools"`
	// Gateway is an HTTP endpoint serving every tool not listed in Tools.
	Gateway string        `mapstructure:"gateway"`
	Server  ServerConfig  `mapstructure:"server"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WorkflowConfig holds the defaults applied to workflow documents that leave
// a field unset.
type WorkflowConfig struct {
	Timeout        string `mapstructure:"timeout"`
	ToolTimeout    string `mapstructure:"tool_timeout"`
	MaxRetries     int    `mapstructure:"max_retries"`
	RetryBaseDelay string `mapstructure:"retry_base_delay"`
	RetryMaxDelay  string `mapstructure:"retry_max_delay"`
	AllowParallel  bool   `mapstructure:"allow_parallel"`
	MaxParallelism int    `mapstructure:"max_parallelism"`
}

// OptimizerConfig configures input optimization and corrective passes.
type OptimizerConfig struct {
	Enabled              bool    `mapstructure:"enabled"`
	MaxIterations        int     `mapstructure:"max_iterations"`
	ConvergenceThreshold float64 `mapstructure:"convergence_threshold"`
	MinImprovement       float64 `mapstructure:"min_improvement"`
	ConfidenceThreshold  float64 `mapstructure:"confidence_threshold"`
	MinOutputLength      int     `mapstructure:"min_output_length"`
}

// ToolConfig configures how a single tool is invoked.
type ToolConfig struct {
	Transport string            `mapstructure:"transport"`
	Endpoint  string            `mapstructure:"endpoint"`
	Headers   map[string]string `mapstructure:"headers"`
	Command   string            `mapstructure:"command"`
	Args      []string          `mapstructure:"args"`
	Env       map[string]string `mapstructure:"env"`
	Dir       string            `mapstructure:"dir"`
	RateLimit float64           `mapstructure:"rate_limit"`
	Burst     int               `mapstructure:"burst"`
}

// ServerConfig configures the control API.
type ServerConfig struct {
	Addr              string   `mapstructure:"addr"`
	MaxConcurrentRuns int      `mapstructure:"max_concurrent_runs"`
	MaxRetainedRuns   int      `mapstructure:"max_retained_runs"`
	WatchDir          string   `mapstructure:"watch_dir"`
	CORSOrigins       []string `mapstructure:"cors_origins"`
	ShutdownTimeout   string   `mapstructure:"shutdown_timeout"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}
