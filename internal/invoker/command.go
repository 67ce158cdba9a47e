package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
	"github.com/hugo-lorenzo-mato/toolflow/internal/logging"
)

// CommandInvoker runs an executable per call. The Request JSON is written to
// stdin and the output record is read from stdout.
type CommandInvoker struct {
	path   string
	args   []string
	env    map[string]string
	dir    string
	grace  time.Duration
	logger *logging.Logger
}

// CommandOption configures a CommandInvoker.
type CommandOption func(*CommandInvoker)

// WithArgs appends arguments to the command.
func WithArgs(args ...string) CommandOption {
	return func(c *CommandInvoker) {
		c.args = append(c.args, args...)
	}
}

// WithEnv adds environment variables to the process.
func WithEnv(env map[string]string) CommandOption {
	return func(c *CommandInvoker) {
		for k, v := range env {
			c.env[k] = v
		}
	}
}

// WithDir sets the working directory.
func WithDir(dir string) CommandOption {
	return func(c *CommandInvoker) {
		c.dir = dir
	}
}

// WithCommandLogger sets the logger.
func WithCommandLogger(l *logging.Logger) CommandOption {
	return func(c *CommandInvoker) {
		c.logger = l
	}
}

// NewCommandInvoker creates an invoker for command. Multi-word commands such
// as "python3 tools/lint.py" are split into path and leading arguments.
func NewCommandInvoker(command string, opts ...CommandOption) (*CommandInvoker, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, core.ErrPlanning(core.CodeInvalidSpec, "tool command is empty")
	}
	c := &CommandInvoker{
		path:   parts[0],
		args:   parts[1:],
		env:    make(map[string]string),
		grace:  5 * time.Second,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Invoke implements core.Invoker. A non-zero exit is retryable; a missing
// executable or a malformed output record is not.
func (c *CommandInvoker) Invoke(ctx context.Context, tool string, input, config map[string]any) (map[string]any, error) {
	req, err := json.Marshal(Request{Tool: tool, Input: input, Config: config})
	if err != nil {
		return nil, core.ErrToolFatal(tool, fmt.Errorf("encoding request: %w", err))
	}

	// #nosec G204 -- command path and args come from validated config
	cmd := exec.CommandContext(ctx, c.path, c.args...)
	cmd.Dir = c.dir
	cmd.Stdin = bytes.NewReader(req)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(), "TOOLFLOW_MANAGED=true", "TOOLFLOW_TOOL="+tool)
	for _, k := range sortedEnvKeys(c.env) {
		cmd.Env = append(cmd.Env, k+"="+c.env[k])
	}
	configureProcess(cmd, c.grace)

	logger := c.logger.WithTool(tool)
	logger.Debug("command: executing", "path", c.path, "args", c.args, "stdin_length", len(req))

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, core.ErrToolFatal(tool, fmt.Errorf("starting %s: %w", c.path, err))
	}
	err = cmd.Wait()
	duration := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Warn("command: interrupted", "path", c.path, "duration", duration, "error", ctxErr)
		return nil, fmt.Errorf("running %s: %w", c.path, ctxErr)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := commandMessage(stderr.String(), stdout.String())
			logger.Error("command: failed",
				"path", c.path,
				"exit_code", exitErr.ExitCode(),
				"duration", duration,
				"stderr", logger.Sanitizer().Sanitize(truncate(stderr.String(), 2000)),
			)
			return nil, classifyExit(tool, exitErr.ExitCode(), msg)
		}
		return nil, fmt.Errorf("running %s: %w", c.path, err)
	}

	logger.Debug("command: completed", "path", c.path, "duration", duration, "stdout_length", stdout.Len())
	return parseCommandOutput(tool, stdout.Bytes())
}

func classifyExit(tool string, code int, msg string) error {
	lower := strings.ToLower(msg)
	for _, marker := range []string{"rate limit", "too many requests", "429", "quota"} {
		if strings.Contains(lower, marker) {
			return core.ErrRateLimit(fmt.Sprintf("tool %q is rate limited", tool)).
				WithCause(errors.New(msg))
		}
	}
	return core.ErrToolInvocation(tool, fmt.Errorf("exit code %d: %s", code, msg))
}

// commandMessage prefers stderr, then the last non-JSON line of stdout.
func commandMessage(stderr, stdout string) string {
	if s := strings.TrimSpace(stderr); s != "" {
		return truncate(lastLine(s), 500)
	}
	lines := strings.Split(stdout, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" && !strings.HasPrefix(l, "{") {
			return truncate(l, 200)
		}
	}
	return "(no error message captured)"
}

// parseCommandOutput decodes stdout as one JSON object. Tools that print
// progress before their result are accepted: the last line holding a JSON
// object wins.
func parseCommandOutput(tool string, stdout []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) == 0 {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(trimmed, &out); err == nil && out != nil {
		return out, nil
	}
	lines := bytes.Split(trimmed, []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if !bytes.HasPrefix(line, []byte("{")) {
			continue
		}
		if err := json.Unmarshal(line, &out); err == nil && out != nil {
			return out, nil
		}
	}
	return nil, core.ErrToolFatal(tool, fmt.Errorf("stdout holds no JSON object: %s", truncate(string(trimmed), 200)))
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "... [truncated]"
	}
	return s
}

func sortedEnvKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
