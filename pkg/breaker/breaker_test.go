package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func cfg() *Config {
	return &Config{FailureThreshold: 3, OpenTimeout: 1, SuccessThreshold: 2}
}

func TestOpensAfterFailureThreshold(t *testing.T) {
	b := New(cfg())
	want := errors.New("boom")

	for i := 0; i < 3; i++ {
		err := b.CallThrough(context.Background(), func(context.Context) error { return want })
		if !errors.Is(err, want) {
			t.Fatalf("call %d: expected passthrough error, got %v", i, err)
		}
	}

	if b.State() != OPEN {
		t.Fatalf("expected OPEN after %d failures, got %s", 3, b.State())
	}

	err := b.CallThrough(context.Background(), func(context.Context) error {
		t.Fatal("fn must not be invoked while breaker is OPEN")
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
}

func TestHalfOpenAfterTimeoutThenCloses(t *testing.T) {
	c := cfg()
	c.OpenTimeout = 0
	c.OpenTimeout = 1 // seconds; shortest non-zero unit available on Config
	b := New(c)

	for i := 0; i < 3; i++ {
		_ = b.CallThrough(context.Background(), func(context.Context) error { return errors.New("x") })
	}
	if b.State() != OPEN {
		t.Fatalf("expected OPEN, got %s", b.State())
	}

	time.Sleep(1100 * time.Millisecond)
	if b.State() != HALF_OPEN {
		t.Fatalf("expected HALF_OPEN after timeout, got %s", b.State())
	}

	for i := 0; i < 2; i++ {
		err := b.CallThrough(context.Background(), func(context.Context) error { return nil })
		if err != nil {
			t.Fatalf("expected admitted call to succeed, got %v", err)
		}
	}
	if b.State() != CLOSED {
		t.Fatalf("expected CLOSED after success threshold, got %s", b.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	c := cfg()
	c.OpenTimeout = 1
	b := New(c)

	for i := 0; i < 3; i++ {
		_ = b.CallThrough(context.Background(), func(context.Context) error { return errors.New("x") })
	}
	time.Sleep(1100 * time.Millisecond)
	if b.State() != HALF_OPEN {
		t.Fatalf("expected HALF_OPEN, got %s", b.State())
	}

	_ = b.CallThrough(context.Background(), func(context.Context) error { return errors.New("still broken") })
	if b.State() != OPEN {
		t.Fatalf("expected single HALF_OPEN failure to reopen, got %s", b.State())
	}
}

func TestSuccessResetsFailureCounterInClosed(t *testing.T) {
	b := New(cfg())

	_ = b.CallThrough(context.Background(), func(context.Context) error { return errors.New("x") })
	_ = b.CallThrough(context.Background(), func(context.Context) error { return errors.New("x") })
	_ = b.CallThrough(context.Background(), func(context.Context) error { return nil })
	_ = b.CallThrough(context.Background(), func(context.Context) error { return errors.New("x") })
	_ = b.CallThrough(context.Background(), func(context.Context) error { return errors.New("x") })

	if b.State() != CLOSED {
		t.Fatalf("expected breaker to remain CLOSED after interleaved success, got %s", b.State())
	}
}

func TestRegistryLazilyCreatesPerAgent(t *testing.T) {
	reg := NewRegistry(cfg())
	a := reg.Get("agent-a")
	b := reg.Get("agent-a")
	c := reg.Get("agent-b")

	if a != b {
		t.Fatal("expected the same breaker instance for repeated lookups of the same agent")
	}
	if a == c {
		t.Fatal("expected distinct breakers for distinct agent ids")
	}
}
