// Package ratelimit implements the per-host sliding-window rate limiter
// described in spec §5: a 60 second window capping each host key at 60
// requests. Unlike a token-bucket limiter, an over-budget request fails
// immediately with ErrRateLimitExceeded rather than queueing or backing
// off — the caller (the resource loader's HTTP fetches) decides what
// "RateLimited" means for it. Requests made through pkg/githost, including
// the registry's remote-tree enumeration, do not go through a Limiter.
//
// A Limiter is owned by a single dispatch run, not global state:
// bootstrap.Build constructs one per run and hands it to the resource loader
// (C1), so two concurrent dispatches never share a window.
package ratelimit

import (
	"errors"
	"sync"
	"time"

	"github.com/a5c-ai/agentdispatch/pkg/logger"
)

var log = logger.New("ratelimit:limiter")

// ErrRateLimitExceeded is returned when a host exceeds its request budget
// within the current window.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// Config configures the sliding window for a Limiter.
type Config struct {
	// Window is the duration of the sliding window. Defaults to 60s.
	Window time.Duration
	// MaxRequests is the maximum number of requests allowed per host within Window.
	MaxRequests int
}

// DefaultConfig matches spec §5: 60 requests per 60 second sliding window.
var DefaultConfig = Config{Window: 60 * time.Second, MaxRequests: 60}

// hostWindow tracks request timestamps for a single host key.
type hostWindow struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// Limiter is a per-host sliding-window rate limiter, scoped to one dispatch run.
type Limiter struct {
	cfg   Config
	mu    sync.Mutex
	hosts map[string]*hostWindow
	now   func() time.Time // overridable for tests
}

// New creates a Limiter with the given configuration. A zero Config uses DefaultConfig.
func New(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig.Window
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = DefaultConfig.MaxRequests
	}
	return &Limiter{
		cfg:   cfg,
		hosts: make(map[string]*hostWindow),
		now:   time.Now,
	}
}

func (l *Limiter) windowFor(hostKey string) *hostWindow {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.hosts[hostKey]
	if !ok {
		w = &hostWindow{}
		l.hosts[hostKey] = w
	}
	return w
}

// Allow reports whether a request to hostKey is within budget, and if so
// consumes one slot. When the budget is exhausted it returns false without
// consuming a slot; the caller should treat this as RateLimited.
func (l *Limiter) Allow(hostKey string) bool {
	w := l.windowFor(hostKey)
	now := l.now()
	cutoff := now.Add(-l.cfg.Window)

	w.mu.Lock()
	defer w.mu.Unlock()

	kept := w.timestamps[:0]
	for _, t := range w.timestamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.timestamps = kept

	if len(w.timestamps) >= l.cfg.MaxRequests {
		log.Printf("rate limit exceeded for host=%s requests=%d window=%v", hostKey, len(w.timestamps), l.cfg.Window)
		return false
	}

	w.timestamps = append(w.timestamps, now)
	return true
}

// Execute runs fn if hostKey is within budget, else returns ErrRateLimitExceeded
// without calling fn.
func (l *Limiter) Execute(hostKey string, fn func() error) error {
	if !l.Allow(hostKey) {
		return ErrRateLimitExceeded
	}
	return fn()
}

// InUse returns the number of requests currently counted against hostKey's window.
func (l *Limiter) InUse(hostKey string) int {
	w := l.windowFor(hostKey)
	now := l.now()
	cutoff := now.Add(-l.cfg.Window)

	w.mu.Lock()
	defer w.mu.Unlock()

	count := 0
	for _, t := range w.timestamps {
		if t.After(cutoff) {
			count++
		}
	}
	return count
}
