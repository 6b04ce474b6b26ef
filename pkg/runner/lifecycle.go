package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var ErrInvalidTransition = errors.New("invalid state transition")

type Options struct {
	Drainer      Drainer
	Hooks        Hooks
	DrainTimeout time.Duration
	// Banner receives the startup banner. Nil disables it.
	Banner io.Writer
}

// LifecycleRunner moves New -> Starting -> Running -> Draining -> Stopped.
type LifecycleRunner struct {
	state    int32
	ctx      context.Context
	cancel   context.CancelFunc
	onceStop sync.Once
	opts     Options
	stopErr  error
}

func NewLifecycleRunner(opts Options) *LifecycleRunner {
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LifecycleRunner{
		state:  int32(StateNew),
		ctx:    ctx,
		cancel: cancel,
		opts:   opts,
	}
}

// Run starts the process and blocks until ctx ends or Stop is called.
func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.casState(StateNew, StateStarting) {
		return ErrInvalidTransition
	}
	PrintBanner(r.opts.Banner)
	if ctx != nil {
		r.ctx, r.cancel = context.WithCancel(ctx)
	}
	if r.opts.Hooks.OnStart != nil {
		if err := r.opts.Hooks.OnStart(r.ctx); err != nil {
			r.cancel()
			r.setState(StateStopped)
			return fmt.Errorf("startup: %w", err)
		}
	}
	r.setState(StateRunning)
	<-r.ctx.Done()
	return r.stop()
}

func (r *LifecycleRunner) Stop() error {
	r.cancel()
	return r.stop()
}

func (r *LifecycleRunner) State() State {
	return State(atomic.LoadInt32(&r.state))
}

func (r *LifecycleRunner) stop() error {
	r.onceStop.Do(func() {
		r.setState(StateDraining)
		if r.opts.Drainer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), r.opts.DrainTimeout)
			done := make(chan error, 1)
			go func() { done <- r.opts.Drainer.Drain(ctx) }()
			select {
			case err := <-done:
				r.stopErr = err
			case <-ctx.Done():
				r.stopErr = errors.New("drain timeout")
			}
			cancel()
		}
		if r.opts.Hooks.OnStop != nil {
			r.opts.Hooks.OnStop()
		}
		r.setState(StateStopped)
	})
	return r.stopErr
}

func (r *LifecycleRunner) casState(from, to State) bool {
	return atomic.CompareAndSwapInt32(&r.state, int32(from), int32(to))
}

func (r *LifecycleRunner) setState(s State) {
	atomic.StoreInt32(&r.state, int32(s))
}
