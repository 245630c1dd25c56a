package coord

import "time"

// Guardrail and lifecycle defaults.
const (
	// DefaultMaxDepth is the maximum call tree depth applied when neither
	// the environment nor the agent configuration overrides it.
	DefaultMaxDepth = 5

	// KillGrace is how long a terminated process gets to exit cleanly
	// before it is killed, and how long a draining server waits for
	// in-flight calls.
	KillGrace = 5 * time.Second

	// InterruptExitDelay is the cleanup window granted after an OS
	// interrupt before the process exits.
	InterruptExitDelay = 100 * time.Millisecond

	// DefaultCallTimeout bounds a single tool call when no explicit
	// timeout or budget applies.
	DefaultCallTimeout = 2 * time.Minute
)

// Process exit codes. Invocation results and the CLI use these to keep
// failure classes distinguishable across process boundaries.
const (
	// ExitOK signals successful completion.
	ExitOK = 0

	// ExitHandlerErr signals the agent ran but its work failed.
	ExitHandlerErr = 1

	// ExitUsage signals invalid arguments or configuration.
	ExitUsage = 2

	// ExitInternal signals an infrastructure failure such as a spawn error.
	ExitInternal = 3

	// ExitGuardrail signals a refused execution: loop detected or depth
	// exceeded.
	ExitGuardrail = 4

	// ExitTimeout is the sentinel exit code for a timed-out execution,
	// following the coreutils timeout(1) convention.
	ExitTimeout = 124
)
