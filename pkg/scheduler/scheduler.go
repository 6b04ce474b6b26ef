// Package scheduler runs pipeline stages on a fixed interval with
// single-flight protection.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/harunnryd/clinirelay/pkg/errorsx"
	"github.com/harunnryd/clinirelay/pkg/logging"
	"github.com/harunnryd/clinirelay/pkg/metrics"
)

// StageFunc is one invocation of a stage. It decides what to consume.
type StageFunc func(ctx context.Context) error

// Scheduler invokes a StageFunc repeatedly, waiting Interval between the end
// of one invocation and the start of the next. Missed ticks are not queued.
type Scheduler struct {
	name     string
	interval time.Duration
	fn       StageFunc
	guard    *Guard
	clock    Clock
	logger   *slog.Logger
	obs      metrics.Observer

	runs    atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
}

type Option func(*Scheduler)

func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithGuard shares a guard between schedulers or external triggers.
func WithGuard(g *Guard) Option {
	return func(s *Scheduler) {
		if g != nil {
			s.guard = g
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithObserver(obs metrics.Observer) Option {
	return func(s *Scheduler) {
		if obs != nil {
			s.obs = obs
		}
	}
}

func New(name string, interval time.Duration, fn StageFunc, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	s := &Scheduler{
		name:     name,
		interval: interval,
		fn:       fn,
		guard:    &Guard{},
		clock:    RealClock(),
		obs:      metrics.NoopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewComponentLogger(slog.Default(), "scheduler")
	}
	s.logger = s.logger.With(slog.String("stage", name))
	return s
}

func (s *Scheduler) Name() string { return s.name }

// Run loops until ctx is cancelled. The first invocation starts immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	return s.Serve(ctx, ctx)
}

// Serve loops until stop is cancelled, handing work to each invocation.
// Cancelling stop alone lets the current invocation finish; cancelling
// work aborts it.
func (s *Scheduler) Serve(stop, work context.Context) error {
	s.logger.Info("stage_scheduler_started", slog.Duration("interval", s.interval))
	for {
		if stop.Err() != nil {
			s.logger.Info("stage_scheduler_stopped")
			return stop.Err()
		}
		_, _ = s.RunOnce(work)
		select {
		case <-stop.Done():
			s.logger.Info("stage_scheduler_stopped")
			return stop.Err()
		case <-s.clock.After(s.interval):
		}
	}
}

// RunOnce invokes the stage unless another invocation holds the guard, in
// which case it returns ran=false without waiting. Errors and panics are
// logged and returned; they never escape as panics.
func (s *Scheduler) RunOnce(ctx context.Context) (ran bool, err error) {
	if !s.guard.TryAcquire() {
		s.skipped.Add(1)
		s.logger.Debug("stage_already_running_skipped")
		metrics.Record(s.obs, metrics.EventStageSkipped, map[string]string{"stage": s.name})
		return false, nil
	}
	defer s.guard.Release()

	s.runs.Add(1)
	start := s.clock.Now()
	var pc panics.Catcher
	pc.Try(func() { err = s.fn(ctx) })
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
		s.logger.Error("stage_panic_recovered", slog.String("error", err.Error()))
	}
	if err != nil {
		s.failed.Add(1)
		s.logger.Warn("stage_failed",
			slog.String("error", err.Error()),
			slog.String("reason_code", string(errorsx.Reason(err))),
			slog.Duration("elapsed", s.clock.Now().Sub(start)))
		metrics.Record(s.obs, metrics.EventStageFailed, map[string]string{"stage": s.name})
	}
	return true, err
}

// Stats reports invocation counters.
func (s *Scheduler) Stats() (runs, skipped, failed int64) {
	return s.runs.Load(), s.skipped.Load(), s.failed.Load()
}
