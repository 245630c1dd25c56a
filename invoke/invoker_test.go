package invoke

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coord "github.com/karthala/agentline"
)

// --- Test doubles ---

// countingResolver resolves every name to a fixed target and counts calls.
type countingResolver struct {
	calls  int
	target *Target
	err    error
}

func (r *countingResolver) Resolve(name string) (*Target, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	if r.target != nil {
		return r.target, nil
	}
	return &Target{Name: name, Argv: []string{"/bin/true"}}, nil
}

// captureExec records the request it was handed and returns a canned
// result without spawning anything.
type captureExec struct {
	calls  int
	target *Target
	req    ExecRequest
	result *coord.InvokeResult
	err    error
}

func (c *captureExec) fn(_ context.Context, t *Target, req ExecRequest) (*coord.InvokeResult, error) {
	c.calls++
	c.target = t
	c.req = req
	if c.result == nil && c.err == nil {
		return &coord.InvokeResult{OK: true}, nil
	}
	return c.result, c.err
}

func testSafety() *coord.SafetyState {
	return &coord.SafetyState{
		Depth:     1,
		MaxDepth:  5,
		CallChain: []string{"root", "parent"},
		SessionID: "sess-test",
	}
}

// --- Tests for guardrail refusals ---

func TestInvoke_DepthRefusalHasNoSideEffects(t *testing.T) {
	safety := &coord.SafetyState{Depth: 4, MaxDepth: 5, CallChain: []string{"a"}}
	resolver := &countingResolver{}
	engine := &captureExec{}
	inv := New(safety, resolver, WithExecFunc(engine.fn))

	_, err := inv.Invoke(context.Background(), coord.InvokeRequest{Target: "child"})
	require.ErrorIs(t, err, coord.ErrDepthExceeded)

	assert.Zero(t, resolver.calls, "refusal must not resolve")
	assert.Zero(t, engine.calls, "refusal must not spawn")
}

func TestInvoke_LoopRefusalHasNoSideEffects(t *testing.T) {
	resolver := &countingResolver{}
	engine := &captureExec{}
	inv := New(testSafety(), resolver, WithExecFunc(engine.fn))

	_, err := inv.Invoke(context.Background(), coord.InvokeRequest{Target: "parent"})
	require.ErrorIs(t, err, coord.ErrLoopDetected)
	assert.Contains(t, err.Error(), "root -> parent -> parent")

	assert.Zero(t, resolver.calls)
	assert.Zero(t, engine.calls)
}

// --- Tests for resolution and state derivation ---

func TestInvoke_UnknownTarget(t *testing.T) {
	resolver := &countingResolver{err: ErrUnknownTarget}
	engine := &captureExec{}
	inv := New(testSafety(), resolver, WithExecFunc(engine.fn))

	_, err := inv.Invoke(context.Background(), coord.InvokeRequest{Target: "ghost"})
	assert.ErrorIs(t, err, ErrUnknownTarget)
	assert.Zero(t, engine.calls)
}

func TestInvoke_NoResolver(t *testing.T) {
	inv := New(testSafety(), nil, WithExecFunc((&captureExec{}).fn))

	_, err := inv.Invoke(context.Background(), coord.InvokeRequest{Target: "child"})
	assert.ErrorIs(t, err, ErrNoResolver)
}

func TestInvoke_PassesDerivedStateToChild(t *testing.T) {
	t.Setenv("SECRET_TOKEN", "must-not-leak")

	engine := &captureExec{}
	inv := New(testSafety(), &countingResolver{}, WithExecFunc(engine.fn))

	_, err := inv.Invoke(context.Background(), coord.InvokeRequest{
		Target:  "child",
		Context: "do the work",
		Args:    []string{"--fast"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, engine.calls)

	assert.Equal(t, "do the work", engine.req.Stdin)
	assert.Equal(t, []string{"--fast"}, engine.req.Args)

	env := strings.Join(engine.req.Env, "\n")
	assert.Contains(t, env, coord.EnvDepth+"=2", "child runs one level deeper")
	assert.Contains(t, env, coord.EnvCallChain+"=root,parent")
	assert.Contains(t, env, coord.EnvSessionID+"=sess-test")
	assert.Contains(t, env, "PATH=")
	assert.NotContains(t, env, "SECRET_TOKEN", "unlisted variables are stripped")
}

// --- Tests for timeout selection ---

func TestInvoke_ExplicitTimeoutWins(t *testing.T) {
	engine := &captureExec{}
	inv := New(testSafety(), &countingResolver{},
		WithExecFunc(engine.fn), WithBudget(10*time.Minute))

	_, err := inv.Invoke(context.Background(), coord.InvokeRequest{
		Target:  "child",
		Timeout: 3 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, engine.req.Timeout)
}

func TestInvoke_BudgetBoundsTheCall(t *testing.T) {
	engine := &captureExec{}
	inv := New(testSafety(), &countingResolver{},
		WithExecFunc(engine.fn), WithBudget(10*time.Second))

	_, err := inv.Invoke(context.Background(), coord.InvokeRequest{Target: "child"})
	require.NoError(t, err)
	assert.InDelta(t, float64(10*time.Second), float64(engine.req.Timeout), float64(time.Second))
}

func TestInvoke_NoBoundWithoutBudget(t *testing.T) {
	engine := &captureExec{}
	inv := New(testSafety(), &countingResolver{}, WithExecFunc(engine.fn))

	_, err := inv.Invoke(context.Background(), coord.InvokeRequest{Target: "child"})
	require.NoError(t, err)
	assert.Zero(t, engine.req.Timeout)
}

func TestInvoke_ExhaustedBudget(t *testing.T) {
	engine := &captureExec{}
	inv := New(testSafety(), &countingResolver{},
		WithExecFunc(engine.fn), WithBudget(time.Millisecond))

	time.Sleep(5 * time.Millisecond)

	_, err := inv.Invoke(context.Background(), coord.InvokeRequest{Target: "child"})
	assert.ErrorIs(t, err, coord.ErrTimeout)
	assert.Zero(t, engine.calls)
}

// --- Tests for result passthrough ---

func TestInvoke_ResultPassthrough(t *testing.T) {
	engine := &captureExec{result: &coord.InvokeResult{
		OK:       false,
		ExitCode: 7,
		Stdout:   "partial",
		Stderr:   "boom",
	}}
	inv := New(testSafety(), &countingResolver{}, WithExecFunc(engine.fn))

	res, err := inv.Invoke(context.Background(), coord.InvokeRequest{Target: "child"})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, 7, res.ExitCode)
	assert.Equal(t, "partial", res.Stdout)
	assert.Equal(t, "boom", res.Stderr)
}

func TestInvoke_SpawnFailurePropagates(t *testing.T) {
	engine := &captureExec{err: coord.ErrSpawnFailed}
	inv := New(testSafety(), &countingResolver{}, WithExecFunc(engine.fn))

	_, err := inv.Invoke(context.Background(), coord.InvokeRequest{Target: "child"})
	assert.ErrorIs(t, err, coord.ErrSpawnFailed)
}

// --- Tests for BuildChildEnv ---

func TestBuildChildEnv(t *testing.T) {
	child := &coord.SafetyState{
		Depth:     2,
		MaxDepth:  5,
		CallChain: []string{"a", "b", "c"},
		SessionID: "sess-1",
	}
	environ := []string{
		"PATH=/usr/bin",
		"HOME=/home/u",
		"AWS_SECRET_ACCESS_KEY=leaky",
		"AGENTLINE_LOG_DIR=/var/log/agents",
		"AGENTLINE_DEPTH=1",
		"malformed-entry",
	}

	env := BuildChildEnv(child, environ)
	joined := strings.Join(env, "\n")

	assert.Contains(t, joined, "PATH=/usr/bin")
	assert.Contains(t, joined, "HOME=/home/u")
	assert.NotContains(t, joined, "AWS_SECRET_ACCESS_KEY")
	assert.NotContains(t, joined, "malformed-entry")

	// Namespace variables pass through, but the derived state wins.
	assert.Contains(t, joined, "AGENTLINE_LOG_DIR=/var/log/agents")
	assert.Contains(t, joined, "AGENTLINE_DEPTH=2")
	assert.NotContains(t, joined, "AGENTLINE_DEPTH=1")
	assert.Contains(t, joined, "AGENTLINE_CALL_CHAIN=a,b,c")
	assert.Contains(t, joined, "AGENTLINE_SESSION_ID=sess-1")
}

func TestSetEnvVar(t *testing.T) {
	env := []string{"A=1", "B=2"}
	env = setEnvVar(env, "A", "9")
	env = setEnvVar(env, "C", "3")
	assert.Equal(t, []string{"A=9", "B=2", "C=3"}, env)
}
