package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestAllowWithinBudget(t *testing.T) {
	l := New(Config{Window: time.Minute, MaxRequests: 3})
	for i := 0; i < 3; i++ {
		if !l.Allow("github.com") {
			t.Fatalf("request %d should have been allowed", i)
		}
	}
	if l.Allow("github.com") {
		t.Fatal("4th request should have been denied")
	}
}

func TestAllowIsPerHost(t *testing.T) {
	l := New(Config{Window: time.Minute, MaxRequests: 1})
	if !l.Allow("github.com") {
		t.Fatal("first request to github.com should be allowed")
	}
	if !l.Allow("api.github.com") {
		t.Fatal("a different host key should have its own budget")
	}
	if l.Allow("github.com") {
		t.Fatal("github.com budget should already be exhausted")
	}
}

func TestAllowSlidesWindow(t *testing.T) {
	l := New(Config{Window: time.Minute, MaxRequests: 1})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	l.now = func() time.Time { return now }

	if !l.Allow("host") {
		t.Fatal("first request should be allowed")
	}
	if l.Allow("host") {
		t.Fatal("second immediate request should be denied")
	}

	now = base.Add(61 * time.Second)
	if !l.Allow("host") {
		t.Fatal("request after window elapsed should be allowed")
	}
}

func TestExecute(t *testing.T) {
	l := New(Config{Window: time.Minute, MaxRequests: 1})

	called := false
	if err := l.Execute("host", func() error { called = true; return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("fn should have been called when within budget")
	}

	called = false
	err := l.Execute("host", func() error { called = true; return nil })
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
	if called {
		t.Fatal("fn must not be called once the budget is exhausted")
	}
}

func TestInUse(t *testing.T) {
	l := New(Config{Window: time.Minute, MaxRequests: 5})
	l.Allow("host")
	l.Allow("host")
	if got := l.InUse("host"); got != 2 {
		t.Errorf("InUse = %d, want 2", got)
	}
	if got := l.InUse("other"); got != 0 {
		t.Errorf("InUse(unused host) = %d, want 0", got)
	}
}

func TestNewDefaultsZeroConfig(t *testing.T) {
	l := New(Config{})
	if l.cfg.Window != DefaultConfig.Window || l.cfg.MaxRequests != DefaultConfig.MaxRequests {
		t.Errorf("zero Config should fall back to DefaultConfig, got %+v", l.cfg)
	}
}

func TestDefaultConfigMatchesSixtyPerSixty(t *testing.T) {
	if DefaultConfig.Window != 60*time.Second || DefaultConfig.MaxRequests != 60 {
		t.Errorf("DefaultConfig = %+v, want 60s/60req", DefaultConfig)
	}
}
