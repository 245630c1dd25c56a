// Package coord implements the coordination layer that lets independent,
// single-purpose executables ("agents") compose into safe call trees.
//
// It provides recursion guardrails that hold across process boundaries,
// cancellation scopes wired to OS signals, and the building blocks shared by
// the subprocess invoker and the stdio tool server:
//
//   - [SafetyState] tracks invocation depth, the call chain, and the session
//     identity, and performs the loop and depth guardrail checks.
//   - [Scope] is a cancellable, optionally time-bounded unit of work.
//   - [Agent] describes one agent: name, version, declared inputs, the
//     primary handler, and auxiliary tools.
//   - [CallContext] is the upward API handed to business logic: invoke a
//     subagent, emit progress.
//
// # Quick Start
//
//	a, _ := coord.NewAgent("summarizer",
//	    coord.WithVersion("1.2.0"),
//	    coord.WithHandler(func(ctx context.Context, args json.RawMessage) (string, error) {
//	        return "done", nil
//	    }))
//	safety, err := coord.InitSafety(a.Name())
//	if err != nil {
//	    // loop detected: this agent already appears in the inherited chain
//	}
//
// # Sub-packages
//
//   - [github.com/karthala/agentline/invoke] spawns other agents as
//     subprocesses under derived safety state.
//   - [github.com/karthala/agentline/mcp] serves an agent over line-delimited
//     JSON-RPC on stdin/stdout.
//   - [github.com/karthala/agentline/manifest] loads agent manifests and
//     environment declarations.
//   - [github.com/karthala/agentline/record] appends execution records.
package coord
