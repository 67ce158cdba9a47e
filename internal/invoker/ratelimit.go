package invoker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
)

// RateLimitConfig configures a token bucket.
type RateLimitConfig struct {
	Rate  float64 // tokens per second
	Burst int     // bucket capacity
}

// DefaultRateLimitConfig returns default configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Rate:  1,
		Burst: 10,
	}
}

func (c RateLimitConfig) limiter() *rate.Limiter {
	burst := c.Burst
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(c.Rate)
	if c.Rate <= 0 {
		limit = rate.Inf
	}
	return rate.NewLimiter(limit, burst)
}

// RateLimited waits for a token before every call to the wrapped invoker.
type RateLimited struct {
	next    core.Invoker
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a token bucket.
func NewRateLimited(next core.Invoker, cfg RateLimitConfig) *RateLimited {
	return &RateLimited{next: next, limiter: cfg.limiter()}
}

// Invoke implements core.Invoker. A wait cut short by ctx is reported as a
// retryable rate-limit error.
func (r *RateLimited) Invoke(ctx context.Context, tool string, input, config map[string]any) (map[string]any, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, core.ErrRateLimit(fmt.Sprintf("tool %q: waiting for rate limit", tool)).WithCause(err)
	}
	return r.next.Invoke(ctx, tool, input, config)
}

// Tokens returns the tokens currently available.
func (r *RateLimited) Tokens() float64 {
	return r.limiter.Tokens()
}

// RateLimiterStatus reports the state of one tool's limiter.
type RateLimiterStatus struct {
	Tokens float64 `json:"tokens"`
	Rate   float64 `json:"rate"`
	Burst  int     `json:"burst"`
}

// Limiters keeps one token bucket per tool so that every run, and every
// invoker wrapping the same tool, draws from the same bucket.
type Limiters struct {
	mu       sync.Mutex
	defaults RateLimitConfig
	configs  map[string]RateLimitConfig
	buckets  map[string]*rate.Limiter
}

// NewLimiters creates a limiter set using defaults for unconfigured tools.
func NewLimiters(defaults RateLimitConfig) *Limiters {
	return &Limiters{
		defaults: defaults,
		configs:  make(map[string]RateLimitConfig),
		buckets:  make(map[string]*rate.Limiter),
	}
}

// SetConfig sets a tool's bucket, replacing any bucket already in use.
func (l *Limiters) SetConfig(tool string, cfg RateLimitConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.configs[tool] = cfg
	delete(l.buckets, tool)
}

// Wrap returns next guarded by the tool's bucket.
func (l *Limiters) Wrap(tool string, next core.Invoker) *RateLimited {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[tool]
	if !ok {
		cfg, ok := l.configs[tool]
		if !ok {
			cfg = l.defaults
		}
		b = cfg.limiter()
		l.buckets[tool] = b
	}
	return &RateLimited{next: next, limiter: b}
}

// Status returns the bucket state of every tool wrapped so far.
func (l *Limiters) Status() map[string]RateLimiterStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]RateLimiterStatus, len(l.buckets))
	for tool, b := range l.buckets {
		out[tool] = RateLimiterStatus{
			Tokens: b.Tokens(),
			Rate:   float64(b.Limit()),
			Burst:  b.Burst(),
		}
	}
	return out
}

// Tools returns the names of wrapped tools, sorted.
func (l *Limiters) Tools() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.buckets))
	for name := range l.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
