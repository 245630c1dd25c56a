// Package invoke spawns other agents as subprocesses under derived safety
// state: guardrail checks before anything touches the OS, a filtered child
// environment, timeout escalation, and a live-process registry for
// shutdown.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	coord "github.com/karthala/agentline"
)

// Sentinel errors for the invoke package.
var (
	ErrUnknownTarget = errors.New("invoke: unknown target")
	ErrNoResolver    = errors.New("invoke: no resolver configured")
)

// Target is a launchable agent: its name plus the argv and working
// directory that start it.
type Target struct {
	Name string
	Argv []string
	Dir  string
}

// Resolver maps an agent name to a launchable target.
type Resolver interface {
	Resolve(name string) (*Target, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(name string) (*Target, error)

// Resolve implements [Resolver].
func (f ResolverFunc) Resolve(name string) (*Target, error) { return f(name) }

// ExecFunc runs a resolved target to completion. The default is [Exec];
// tests substitute their own to avoid real processes.
type ExecFunc func(ctx context.Context, t *Target, req ExecRequest) (*coord.InvokeResult, error)

// Invoker runs other agents as child processes. Every invocation passes
// the depth and loop guardrails first; a refused invocation has no side
// effects at all.
type Invoker struct {
	safety   *coord.SafetyState
	resolver Resolver
	logger   *slog.Logger
	pty      bool
	execFn   ExecFunc
	deadline time.Time
}

var _ coord.Invoker = (*Invoker)(nil)

// Option configures an Invoker.
type Option func(*options)

type options struct {
	budget time.Duration
	logger *slog.Logger
	pty    bool
	execFn ExecFunc
}

// WithBudget gives the invoker a total time budget. Calls without an
// explicit timeout are bounded by what remains of it.
func WithBudget(d time.Duration) Option {
	return func(o *options) { o.budget = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPTY runs children under a pseudo-terminal, merging their output.
func WithPTY() Option {
	return func(o *options) { o.pty = true }
}

// WithExecFunc replaces the process engine, for tests.
func WithExecFunc(fn ExecFunc) Option {
	return func(o *options) { o.execFn = fn }
}

// New creates an Invoker bound to this process's safety state. safety must
// not be nil.
func New(safety *coord.SafetyState, resolver Resolver, opts ...Option) *Invoker {
	o := options{logger: slog.Default(), execFn: Exec}
	for _, opt := range opts {
		opt(&o)
	}

	inv := &Invoker{
		safety:   safety,
		resolver: resolver,
		logger:   o.logger.With("component", "invoke"),
		pty:      o.pty,
		execFn:   o.execFn,
	}
	if o.budget > 0 {
		inv.deadline = time.Now().Add(o.budget)
	}
	return inv
}

// Invoke runs the named agent and waits for its outcome.
//
// The depth and loop checks run before resolution or spawning; a refusal
// returns the guardrail error and nothing else happens. A child that
// cannot be started returns an error wrapping [coord.ErrSpawnFailed]; a
// child that runs and fails is a result, not an error. A timed-out child
// reports [coord.ExitTimeout].
func (inv *Invoker) Invoke(ctx context.Context, req coord.InvokeRequest) (*coord.InvokeResult, error) {
	if err := inv.safety.CheckDepthLimit(); err != nil {
		inv.logger.Warn("invocation refused", "target", req.Target, "error", err)
		return nil, err
	}
	if err := inv.safety.CheckLoop(req.Target); err != nil {
		inv.logger.Warn("invocation refused", "target", req.Target, "error", err)
		return nil, err
	}

	if inv.resolver == nil {
		return nil, ErrNoResolver
	}
	target, err := inv.resolver.Resolve(req.Target)
	if err != nil {
		return nil, err
	}

	timeout, err := inv.effectiveTimeout(req)
	if err != nil {
		inv.logger.Warn("invocation refused", "target", req.Target, "error", err)
		return nil, err
	}

	child := inv.safety.DeriveChild()
	execReq := ExecRequest{
		Stdin:   req.Context,
		Args:    req.Args,
		Env:     BuildChildEnv(child, os.Environ()),
		Timeout: timeout,
		PTY:     inv.pty,
	}

	inv.logger.Info("invoking agent",
		"target", target.Name, "depth", child.Depth, "timeout", timeout)

	start := time.Now()
	res, err := inv.execFn(ctx, target, execReq)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		inv.logger.Warn("invocation failed",
			"target", target.Name, "error", err, "elapsed", elapsed)
	case res.ExitCode == coord.ExitTimeout:
		inv.logger.Warn("invocation timed out",
			"target", target.Name, "elapsed", elapsed)
	default:
		inv.logger.Info("invocation finished",
			"target", target.Name, "exit_code", res.ExitCode, "elapsed", elapsed)
	}
	return res, err
}

// effectiveTimeout picks the bound for one call: the explicit override if
// present, otherwise what remains of the invoker's budget, otherwise none.
func (inv *Invoker) effectiveTimeout(req coord.InvokeRequest) (time.Duration, error) {
	if req.Timeout > 0 {
		return req.Timeout, nil
	}
	if inv.deadline.IsZero() {
		return 0, nil
	}
	remaining := time.Until(inv.deadline)
	if remaining <= 0 {
		return 0, fmt.Errorf("invoke %s: budget exhausted: %w", req.Target, coord.ErrTimeout)
	}
	return remaining, nil
}
