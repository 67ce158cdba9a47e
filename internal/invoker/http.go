package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
	"github.com/hugo-lorenzo-mato/toolflow/internal/logging"
)

// maxResponseBytes bounds the output record read from a tool.
const maxResponseBytes = 16 << 20

// Request is the JSON document sent to HTTP and command tools.
type Request struct {
	Tool   string         `json:"tool"`
	Input  map[string]any `json:"input"`
	Config map[string]any `json:"config,omitempty"`
}

// HTTPInvoker POSTs a Request to an endpoint and decodes the response body
// as the output record.
type HTTPInvoker struct {
	endpoint string
	client   *http.Client
	headers  map[string]string
	logger   *logging.Logger
}

// HTTPOption configures an HTTPInvoker.
type HTTPOption func(*HTTPInvoker)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPInvoker) {
		h.client = c
	}
}

// WithHeaders adds headers to every request.
func WithHeaders(headers map[string]string) HTTPOption {
	return func(h *HTTPInvoker) {
		for k, v := range headers {
			h.headers[k] = v
		}
	}
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(l *logging.Logger) HTTPOption {
	return func(h *HTTPInvoker) {
		h.logger = l
	}
}

// NewHTTPInvoker creates an invoker for endpoint.
func NewHTTPInvoker(endpoint string, opts ...HTTPOption) *HTTPInvoker {
	h := &HTTPInvoker{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Minute},
		headers:  make(map[string]string),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Invoke implements core.Invoker. 429 and 5xx responses are retryable,
// other 4xx responses are not.
func (h *HTTPInvoker) Invoke(ctx context.Context, tool string, input, config map[string]any) (map[string]any, error) {
	body, err := json.Marshal(Request{Tool: tool, Input: input, Config: config})
	if err != nil {
		return nil, core.ErrToolFatal(tool, fmt.Errorf("encoding request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, core.ErrToolFatal(tool, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Toolflow-Tool", tool)
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", h.endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	h.logger.Debug("http: tool responded",
		"tool", tool,
		"status", resp.StatusCode,
		"bytes", len(data),
		"duration", time.Since(start),
	)

	if resp.StatusCode >= 300 {
		return nil, statusError(tool, resp.StatusCode, data)
	}
	return decodeOutput(tool, data)
}

func statusError(tool string, status int, body []byte) error {
	msg := errorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	cause := fmt.Errorf("status %d: %s", status, msg)
	switch {
	case status == http.StatusTooManyRequests:
		return core.ErrRateLimit(fmt.Sprintf("tool %q is rate limited", tool)).WithCause(cause)
	case status >= 500:
		return core.ErrToolInvocation(tool, cause)
	default:
		return core.ErrToolFatal(tool, cause)
	}
}

// errorMessage extracts {"error": "..."} or {"error": {"message": "..."}}
// from a response, falling back to the first line of the body.
func errorMessage(body []byte) string {
	var obj map[string]any
	if json.Unmarshal(body, &obj) == nil {
		switch e := obj["error"].(type) {
		case string:
			return e
		case map[string]any:
			if m, ok := e["message"].(string); ok {
				return m
			}
		}
		if m, ok := obj["message"].(string); ok {
			return m
		}
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(body)), "\n")
	if len(line) > 200 {
		line = line[:200] + "..."
	}
	return line
}

// decodeOutput parses an output record. An empty body is an empty record.
func decodeOutput(tool string, data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, core.ErrToolFatal(tool, fmt.Errorf("output is not a JSON object: %w", err))
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
