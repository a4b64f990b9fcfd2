package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/pledgesync/internal/config"
)

func TestNilLockerRunsJob(t *testing.T) {
	var l *Locker
	called := false
	err := l.WithJobLock(context.Background(), "abandoned_sweep", "gocardless", func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("expected job to run without a lock, called=%v err=%v", called, err)
	}

	boom := errors.New("boom")
	err = l.WithJobLock(context.Background(), "import", "1", func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected job error to pass through, got %v", err)
	}
}

func TestJobLockKey(t *testing.T) {
	if got := JobLockKey("import", " 42 "); got != "pledgesync:job:import:42" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := JobLockKey("abandoned_sweep", ""); got != "pledgesync:job:abandoned_sweep:all" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestNewLockerWithoutClient(t *testing.T) {
	if l := NewLocker(nil, time.Minute); l != nil {
		t.Fatalf("expected nil locker without a redis client")
	}
}

func TestWebhookLimiterDisabledAllowsAll(t *testing.T) {
	l := NewWebhookLimiter(config.Config{WebhookRate: 10, WebhookBurst: 10}, nil)
	if l.Enabled() {
		t.Fatalf("expected limiter disabled without redis")
	}
	res, err := l.Allow(context.Background(), "123")
	if err != nil || !res.Allowed {
		t.Fatalf("expected allowed, got %+v %v", res, err)
	}
}

func TestParseTokens(t *testing.T) {
	if got := parseTokens("2.5"); got != 2.5 {
		t.Fatalf("expected 2.5, got %v", got)
	}
	if got := parseTokens(int64(3)); got != 3 {
		t.Fatalf("expected 3, got %v", got)
	}
	if got := parseTokens(nil); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}
