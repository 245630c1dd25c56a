package coord

import (
	"context"
	"time"
)

// InvokeRequest names a target agent and the work to hand it.
type InvokeRequest struct {
	// Target is the name of the agent to invoke.
	Target string

	// Context is free-form text delivered to the child on stdin.
	Context string

	// Args are extra command-line arguments appended to the target's argv.
	Args []string

	// Timeout overrides the remaining-budget default for this invocation.
	// Zero means no explicit override.
	Timeout time.Duration
}

// InvokeResult is the observed outcome of a child process that ran to
// completion. Failing to start at all is a Go error, not a result.
type InvokeResult struct {
	OK       bool   `json:"ok"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Invoker starts another agent as a subprocess under derived safety state
// and waits for its outcome. The canonical implementation lives in the
// invoke package.
type Invoker interface {
	Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, error)
}

// CallContext is the upward API available to business logic during one
// execution: reach the shared safety state, invoke another agent under
// guardrails, emit progress.
type CallContext struct {
	agent    string
	safety   *SafetyState
	invoker  Invoker
	progress Progress
}

// NewCallContext bundles the upward API for one execution. invoker and
// progress may be nil when the capability is not wired.
func NewCallContext(agentName string, safety *SafetyState, invoker Invoker, progress Progress) *CallContext {
	return &CallContext{
		agent:    agentName,
		safety:   safety,
		invoker:  invoker,
		progress: progress,
	}
}

// AgentName returns the name of the agent this execution belongs to.
func (c *CallContext) AgentName() string { return c.agent }

// Safety returns the guardrail state shared by every execution in this
// process.
func (c *CallContext) Safety() *SafetyState { return c.safety }

// Invoke runs another agent and waits for its outcome.
func (c *CallContext) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, error) {
	if c.invoker == nil {
		return nil, ErrNoInvoker
	}
	return c.invoker.Invoke(ctx, req)
}

// Progress emits a live status line. Fire-and-forget.
func (c *CallContext) Progress(message string) {
	if c.progress == nil {
		return
	}
	c.progress.Emit(c.agent, message)
}

type contextKey int

const (
	ctxKeyCall contextKey = iota
)

// WithCallContext returns a context carrying the call's upward API.
func WithCallContext(ctx context.Context, call *CallContext) context.Context {
	return context.WithValue(ctx, ctxKeyCall, call)
}

// CallFrom returns the CallContext carried by ctx, or nil when the
// execution was started without one.
func CallFrom(ctx context.Context) *CallContext {
	if v, ok := ctx.Value(ctxKeyCall).(*CallContext); ok {
		return v
	}
	return nil
}
