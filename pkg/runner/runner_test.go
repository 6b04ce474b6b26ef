package runner

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestLifecycleRunsHooksAndDrains(t *testing.T) {
	var started, stopped, drained bool
	r := NewLifecycleRunner(Options{
		Hooks: Hooks{
			OnStart: func(context.Context) error { started = true; return nil },
			OnStop:  func() { stopped = true },
		},
		Drainer: DrainFunc(func(context.Context) error { drained = true; return nil }),
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for r.State() != StateRunning && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if r.State() != StateRunning {
		t.Fatalf("expected running, got %s", r.State())
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if !started || !stopped || !drained {
		t.Fatalf("hooks not run: started=%v stopped=%v drained=%v", started, stopped, drained)
	}
	if r.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", r.State())
	}
	if err := r.Run(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestStartupFailureAborts(t *testing.T) {
	r := NewLifecycleRunner(Options{Hooks: Hooks{OnStart: func(context.Context) error {
		return errors.New("address already in use")
	}}})
	if err := r.Run(context.Background()); err == nil {
		t.Fatalf("expected startup error")
	}
	if r.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", r.State())
	}
}

func TestDrainTimeout(t *testing.T) {
	r := NewLifecycleRunner(Options{
		DrainTimeout: 20 * time.Millisecond,
		Drainer: DrainFunc(func(ctx context.Context) error {
			time.Sleep(time.Second)
			return nil
		}),
	})
	if err := r.Stop(); err == nil {
		t.Fatalf("expected drain timeout")
	}
}

func TestBannerWritesTitle(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	if buf.Len() == 0 {
		t.Fatalf("expected banner output")
	}
	PrintBanner(nil)
}
