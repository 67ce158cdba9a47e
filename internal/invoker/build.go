package invoker

import (
	"fmt"
	"net/http"
	"sort"

	"go.opentelemetry.io/otel/trace"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
	"github.com/hugo-lorenzo-mato/toolflow/internal/logging"
)

// Transports.
const (
	TransportHTTP    = "http"
	TransportCommand = "command"
)

// ToolConfig describes how one tool is reached.
type ToolConfig struct {
	// Transport is "http" or "command". Empty infers it from Endpoint or
	// Command.
	Transport string
	Endpoint  string
	Headers   map[string]string
	Command   string
	Args      []string
	Env       map[string]string
	Dir       string
	// RateLimit is in calls per second; zero disables limiting.
	RateLimit float64
	Burst     int
}

// TransportName returns the effective transport.
func (c ToolConfig) TransportName() string {
	switch {
	case c.Transport != "":
		return c.Transport
	case c.Endpoint != "":
		return TransportHTTP
	case c.Command != "":
		return TransportCommand
	}
	return ""
}

// BuildDeps holds what Build needs besides the tool configs.
type BuildDeps struct {
	Tracer     trace.Tracer
	Logger     *logging.Logger
	HTTPClient *http.Client
	// Gateway, when set, is an HTTP endpoint serving every tool not listed
	// in the configs.
	Gateway string
}

// Build creates a registry with one invoker per configured tool. Each
// invoker is rate limited when configured and traced.
func Build(tools map[string]ToolConfig, deps BuildDeps) (*Registry, error) {
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	reg := NewRegistry()
	limiters := NewLimiters(RateLimitConfig{})

	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cfg := tools[name]
		base, err := newTransport(name, cfg, deps)
		if err != nil {
			return nil, err
		}
		var inv core.Invoker = base
		if cfg.RateLimit > 0 {
			limiters.SetConfig(name, RateLimitConfig{Rate: cfg.RateLimit, Burst: cfg.Burst})
			inv = limiters.Wrap(name, inv)
		}
		reg.Register(name, NewTraced(inv, deps.Tracer, cfg.TransportName()))
	}

	if deps.Gateway != "" {
		gw := NewHTTPInvoker(deps.Gateway, httpOptions(ToolConfig{}, deps)...)
		reg.SetFallback(NewTraced(gw, deps.Tracer, TransportHTTP))
	}
	return reg, nil
}

func newTransport(name string, cfg ToolConfig, deps BuildDeps) (core.Invoker, error) {
	switch cfg.TransportName() {
	case TransportHTTP:
		if cfg.Endpoint == "" {
			return nil, configError(name, "http transport requires an endpoint")
		}
		return NewHTTPInvoker(cfg.Endpoint, httpOptions(cfg, deps)...), nil
	case TransportCommand:
		if cfg.Command == "" {
			return nil, configError(name, "command transport requires a command")
		}
		inv, err := NewCommandInvoker(cfg.Command,
			WithArgs(cfg.Args...),
			WithEnv(cfg.Env),
			WithDir(cfg.Dir),
			WithCommandLogger(deps.Logger),
		)
		if err != nil {
			return nil, err
		}
		return inv, nil
	case "":
		return nil, configError(name, "either endpoint or command is required")
	default:
		return nil, configError(name, fmt.Sprintf("unknown transport %q", cfg.Transport))
	}
}

func httpOptions(cfg ToolConfig, deps BuildDeps) []HTTPOption {
	opts := []HTTPOption{WithHeaders(cfg.Headers), WithHTTPLogger(deps.Logger)}
	if deps.HTTPClient != nil {
		opts = append(opts, WithHTTPClient(deps.HTTPClient))
	}
	return opts
}

func configError(tool, msg string) error {
	return core.ErrPlanning(core.CodeInvalidSpec, fmt.Sprintf("tool %q: %s", tool, msg)).WithDetail("tool", tool)
}
