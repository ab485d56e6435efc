package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLimiter(client), mr
}

func TestAllow_WithinAndOverLimit(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	rule := CreateRule(3, time.Minute)

	for i := 1; i <= 3; i++ {
		ok, err := l.Allow(ctx, "10.0.0.1", rule)
		if err != nil {
			t.Fatalf("Allow() #%d error: %v", i, err)
		}
		if !ok {
			t.Fatalf("Allow() #%d: expected allowed", i)
		}
	}

	ok, err := l.Allow(ctx, "10.0.0.1", rule)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if ok {
		t.Error("expected 4th request to be limited")
	}

	// Other identifiers are unaffected.
	if ok, _ := l.Allow(ctx, "10.0.0.2", rule); !ok {
		t.Error("expected a different identifier to be allowed")
	}
}

func TestAllow_WindowResets(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()
	rule := SubmitRule(1, 10*time.Second)

	l.Allow(ctx, "ip", rule)
	if ok, _ := l.Allow(ctx, "ip", rule); ok {
		t.Fatal("expected limit to apply inside the window")
	}

	if ttl := mr.TTL(KeySubmit + "ip"); ttl != 10*time.Second {
		t.Errorf("expected window ttl 10s, got %v", ttl)
	}
	if d := l.RetryAfter(ctx, "ip", rule); d != 10*time.Second {
		t.Errorf("expected RetryAfter 10s, got %v", d)
	}

	mr.FastForward(11 * time.Second)
	if ok, _ := l.Allow(ctx, "ip", rule); !ok {
		t.Error("expected request to be allowed in a new window")
	}
}

func TestAllow_DisabledRule(t *testing.T) {
	l, mr := newTestLimiter(t)
	if ok, err := l.Allow(context.Background(), "ip", CreateRule(0, time.Minute)); !ok || err != nil {
		t.Errorf("expected disabled rule to allow, got ok=%v err=%v", ok, err)
	}
	if mr.Exists(KeyCreate + "ip") {
		t.Error("disabled rule must not touch Redis")
	}
}

func TestAllow_FailsOpen(t *testing.T) {
	l, mr := newTestLimiter(t)
	mr.Close()

	ok, err := l.Allow(context.Background(), "ip", CreateRule(1, time.Minute))
	if err == nil {
		t.Error("expected the Redis error to be returned")
	}
	if !ok {
		t.Error("expected fail-open when Redis is down")
	}
}

func TestRetryAfter_NoWindow(t *testing.T) {
	l, _ := newTestLimiter(t)
	if d := l.RetryAfter(context.Background(), "fresh", CreateRule(1, time.Minute)); d != 0 {
		t.Errorf("expected 0 without an open window, got %v", d)
	}
}

func TestRuleName(t *testing.T) {
	if got := CreateRule(1, time.Second).Name(); got != "create" {
		t.Errorf("expected create, got %q", got)
	}
	if got := SubmitRule(1, time.Second).Name(); got != "submit" {
		t.Errorf("expected submit, got %q", got)
	}
}
