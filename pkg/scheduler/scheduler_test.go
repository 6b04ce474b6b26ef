package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harunnryd/clinirelay/pkg/metrics"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRunOnceSkipsWhileBusy(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var concurrent, maxConcurrent atomic.Int32
	obs := metrics.NewMemoryObserver()

	s := New("voice", time.Second, func(ctx context.Context) error {
		n := concurrent.Add(1)
		if n > maxConcurrent.Load() {
			maxConcurrent.Store(n)
		}
		close(started)
		<-release
		concurrent.Add(-1)
		return nil
	}, WithObserver(obs))

	done := make(chan bool)
	go func() {
		ran, _ := s.RunOnce(context.Background())
		done <- ran
	}()
	<-started

	ran, err := s.RunOnce(context.Background())
	if ran || err != nil {
		t.Fatalf("expected second invocation to be skipped, ran=%v err=%v", ran, err)
	}
	close(release)
	if !<-done {
		t.Fatalf("first invocation should have run")
	}
	if maxConcurrent.Load() != 1 {
		t.Fatalf("stage ran concurrently: %d", maxConcurrent.Load())
	}
	if obs.Count(metrics.EventStageSkipped) != 1 {
		t.Fatalf("expected skip event")
	}
	runs, skipped, _ := s.Stats()
	if runs != 1 || skipped != 1 {
		t.Fatalf("unexpected stats runs=%d skipped=%d", runs, skipped)
	}
}

func TestSharedGuardBlocksOtherScheduler(t *testing.T) {
	g := &Guard{}
	if !g.TryAcquire() {
		t.Fatalf("fresh guard should be free")
	}
	called := false
	s := New("diagnosis", time.Second, func(context.Context) error {
		called = true
		return nil
	}, WithGuard(g))
	if ran, _ := s.RunOnce(context.Background()); ran || called {
		t.Fatalf("stage must not run while guard is held")
	}
	g.Release()
	if ran, _ := s.RunOnce(context.Background()); !ran || !called {
		t.Fatalf("stage should run once the guard is free")
	}
	if g.Busy() {
		t.Fatalf("guard must be released after invocation")
	}
}

func TestRunWaitsIntervalAfterInvocationEnds(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	var calls atomic.Int32
	release := make(chan struct{}, 4)

	s := New("text", 5*time.Second, func(context.Context) error {
		calls.Add(1)
		<-release
		return nil
	}, WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	waitFor(t, "first invocation", func() bool { return calls.Load() == 1 })
	// The invocation is still running: advancing time must not start another.
	clock.Advance(10 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if calls.Load() != 1 {
		t.Fatalf("expected no overlapping invocation, got %d", calls.Load())
	}

	release <- struct{}{}
	waitFor(t, "interval timer", func() bool { return clock.Waiters() == 1 })
	clock.Advance(4 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if calls.Load() != 1 {
		t.Fatalf("interval is measured from the end of the run; got %d calls", calls.Load())
	}
	clock.Advance(time.Second)
	waitFor(t, "second invocation", func() bool { return calls.Load() == 2 })
	release <- struct{}{}
}

func TestRunSurvivesErrorsAndPanics(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	var calls atomic.Int32
	s := New("flaky", time.Second, func(context.Context) error {
		switch calls.Add(1) {
		case 1:
			return errors.New("collaborator down")
		case 2:
			panic("decoder exploded")
		default:
			return nil
		}
	}, WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- s.Run(ctx) }()

	for want := int32(1); want <= 3; want++ {
		waitFor(t, "invocation", func() bool { return calls.Load() == want && clock.Waiters() == 1 })
		clock.Advance(time.Second)
	}
	waitFor(t, "fourth invocation", func() bool { return calls.Load() >= 4 })
	cancel()
	if err := <-stopped; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	_, _, failed := s.Stats()
	if failed != 2 {
		t.Fatalf("expected 2 failed invocations, got %d", failed)
	}
}

func TestServeLetsInFlightInvocationFinishAfterStop(t *testing.T) {
	stop, cancelStop := context.WithCancel(context.Background())
	work, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()

	entered := make(chan struct{})
	release := make(chan struct{})
	var sawCancel atomic.Bool
	s := New("diagnosis", time.Hour, func(ctx context.Context) error {
		close(entered)
		<-release
		sawCancel.Store(ctx.Err() != nil)
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- s.Serve(stop, work) }()
	<-entered
	cancelStop()
	close(release)

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not return after stop")
	}
	if sawCancel.Load() {
		t.Fatalf("work context must survive stop")
	}
	if runs, _, _ := s.Stats(); runs != 1 {
		t.Fatalf("expected one invocation, got %d", runs)
	}
}
