package coord

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Shell convention for signal-driven exits: 128 + signal number.
const (
	exitCodeInterrupt = 130
	exitCodeTerminate = 143
)

// Scope is one cancellable unit of work: a whole agent execution or a
// single tool call. Cancellation flows one way, from scope to the work
// running under its [Scope.Context]; concurrent scopes react to OS signals
// independently because each registers its own channel.
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc

	sigCh chan os.Signal
	stop  chan struct{}

	exitOnSignal bool
	exitFn       func(code int)

	release sync.Once
}

// ScopeOption configures [NewScope].
type ScopeOption func(*scopeOptions)

type scopeOptions struct {
	timeout      time.Duration
	watchSignals bool
	exitOnSignal bool
	exitFn       func(code int)
}

// WithTimeout bounds the scope: its context expires after d.
func WithTimeout(d time.Duration) ScopeOption {
	return func(o *scopeOptions) { o.timeout = d }
}

// WithSignals makes the scope cancel itself when the process receives
// SIGINT or SIGTERM. The process keeps running; pair with [WithSignalExit]
// for the scope that owns process lifetime.
func WithSignals() ScopeOption {
	return func(o *scopeOptions) { o.watchSignals = true }
}

// WithSignalExit makes the scope own process lifetime: SIGINT cancels the
// scope and exits after [InterruptExitDelay] with code 130, SIGTERM cancels
// and exits after [KillGrace] with code 143. The delay is the cleanup
// window for deferred work and child termination.
func WithSignalExit() ScopeOption {
	return func(o *scopeOptions) {
		o.watchSignals = true
		o.exitOnSignal = true
	}
}

// WithExitFunc replaces os.Exit for signal-driven exits, for embedding
// runtimes and tests.
func WithExitFunc(fn func(code int)) ScopeOption {
	return func(o *scopeOptions) { o.exitFn = fn }
}

// NewScope creates a scope under parent. Release must be called when the
// scope's work is finished.
func NewScope(parent context.Context, opts ...ScopeOption) *Scope {
	o := scopeOptions{exitFn: os.Exit}
	for _, opt := range opts {
		opt(&o)
	}
	if parent == nil {
		parent = context.Background()
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if o.timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, o.timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}

	s := &Scope{
		ctx:          ctx,
		cancel:       cancel,
		exitOnSignal: o.exitOnSignal,
		exitFn:       o.exitFn,
	}
	if o.watchSignals {
		s.sigCh = make(chan os.Signal, 1)
		s.stop = make(chan struct{})
		signal.Notify(s.sigCh, syscall.SIGINT, syscall.SIGTERM)
		go s.watch()
	}
	return s
}

// Context returns the context work under this scope must run with.
func (s *Scope) Context() context.Context { return s.ctx }

// Done returns a channel closed when the scope is cancelled, times out, or
// is released.
func (s *Scope) Done() <-chan struct{} { return s.ctx.Done() }

// Err returns nil while the scope is live, context.Canceled after
// cancellation, or context.DeadlineExceeded after a timeout.
func (s *Scope) Err() error { return s.ctx.Err() }

// TimedOut reports whether the scope ended because its deadline passed.
func (s *Scope) TimedOut() bool { return s.ctx.Err() == context.DeadlineExceeded }

// Cancel cancels the scope's context. Safe to call any number of times.
func (s *Scope) Cancel() { s.cancel() }

// Release cancels the scope and detaches its signal registration.
// Idempotent.
func (s *Scope) Release() {
	s.release.Do(func() {
		if s.sigCh != nil {
			signal.Stop(s.sigCh)
			close(s.stop)
		}
		s.cancel()
	})
}

func (s *Scope) watch() {
	for {
		select {
		case sig := <-s.sigCh:
			s.cancel()
			if s.exitOnSignal {
				delay, code := InterruptExitDelay, exitCodeInterrupt
				if sig == syscall.SIGTERM {
					delay, code = KillGrace, exitCodeTerminate
				}
				go func() {
					time.Sleep(delay)
					s.exitFn(code)
				}()
			}
		case <-s.stop:
			return
		}
	}
}
