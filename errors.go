package coord

import "errors"

// Sentinel errors returned by the coordination layer. Callers should test
// with errors.Is; the wrapped messages carry the offending detail (chain,
// depth, target).
var (
	// ErrLoopDetected indicates the target agent already appears in the
	// call chain, so invoking it would create a cycle.
	ErrLoopDetected = errors.New("coord: call loop detected")

	// ErrDepthExceeded indicates the invocation would reach or exceed the
	// maximum call tree depth.
	ErrDepthExceeded = errors.New("coord: max call depth exceeded")

	// ErrTimeout indicates an execution exceeded its time budget.
	ErrTimeout = errors.New("coord: execution timed out")

	// ErrSpawnFailed indicates a subprocess could not be started at all,
	// as opposed to starting and exiting non-zero.
	ErrSpawnFailed = errors.New("coord: process spawn failed")

	// ErrInvalidName indicates an agent name that does not match the
	// required form (lowercase letters, digits, '-' and '_').
	ErrInvalidName = errors.New("coord: invalid agent name")

	// ErrNoHandler indicates an agent was asked to execute its primary
	// capability but no handler was configured.
	ErrNoHandler = errors.New("coord: agent has no handler")

	// ErrNoInvoker indicates business logic tried to invoke a subagent in
	// an execution that was wired without an invoker.
	ErrNoInvoker = errors.New("coord: no invoker configured")
)
