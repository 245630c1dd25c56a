package coord

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEnv stands in for the process environment so tests never touch the
// real one.
type fakeEnv struct {
	vars map[string]string
}

func newFakeEnv(vars map[string]string) *fakeEnv {
	if vars == nil {
		vars = make(map[string]string)
	}
	return &fakeEnv{vars: vars}
}

func (e *fakeEnv) lookup(key string) (string, bool) {
	v, ok := e.vars[key]
	return v, ok
}

func (e *fakeEnv) set(key, value string) error {
	e.vars[key] = value
	return nil
}

func initWith(t *testing.T, name string, env *fakeEnv, opts ...SafetyOption) (*SafetyState, error) {
	t.Helper()
	opts = append(opts, withEnviron(env.lookup, env.set))
	return InitSafety(name, opts...)
}

// --- Tests for InitSafety ---

func TestInitSafety_FreshEnvironment(t *testing.T) {
	env := newFakeEnv(nil)

	s, err := initWith(t, "rootagent", env)
	require.NoError(t, err)

	assert.Equal(t, 0, s.Depth)
	assert.Equal(t, DefaultMaxDepth, s.MaxDepth)
	assert.Equal(t, []string{"rootagent"}, s.CallChain)
	assert.NotEmpty(t, s.SessionID)

	// The state must be republished for descendants.
	assert.Equal(t, "0", env.vars[EnvDepth], "depth")
	assert.Equal(t, "5", env.vars[EnvMaxDepth], "max depth")
	assert.Equal(t, "rootagent", env.vars[EnvCallChain], "chain")
	assert.Equal(t, s.SessionID, env.vars[EnvSessionID], "session")
}

func TestInitSafety_InheritedState(t *testing.T) {
	env := newFakeEnv(map[string]string{
		EnvDepth:     "2",
		EnvMaxDepth:  "8",
		EnvCallChain: "alpha,beta",
		EnvSessionID: "sess-fixed",
	})

	s, err := initWith(t, "gamma", env)
	require.NoError(t, err)

	assert.Equal(t, 2, s.Depth)
	assert.Equal(t, 8, s.MaxDepth)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, s.CallChain)
	assert.Equal(t, "sess-fixed", s.SessionID)
	assert.Equal(t, "alpha,beta,gamma", env.vars[EnvCallChain])
}

func TestInitSafety_SelfLoopRefused(t *testing.T) {
	env := newFakeEnv(map[string]string{
		EnvCallChain: "alpha,beta",
	})

	s, err := initWith(t, "alpha", env)
	require.Error(t, err)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrLoopDetected)
	assert.Contains(t, err.Error(), "alpha -> beta -> alpha")

	// A refused init must not republish anything.
	_, published := env.vars[EnvDepth]
	assert.False(t, published)
}

func TestInitSafety_MalformedCountersFallBack(t *testing.T) {
	env := newFakeEnv(map[string]string{
		EnvDepth:    "banana",
		EnvMaxDepth: "-3",
	})

	s, err := initWith(t, "worker", env)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Depth)
	assert.Equal(t, DefaultMaxDepth, s.MaxDepth)
}

func TestInitSafety_MaxDepthOverride(t *testing.T) {
	env := newFakeEnv(map[string]string{
		EnvMaxDepth: "8",
	})

	s, err := initWith(t, "worker", env, WithMaxDepth(3))
	require.NoError(t, err)
	assert.Equal(t, 3, s.MaxDepth)
}

func TestInitSafety_InvalidName(t *testing.T) {
	env := newFakeEnv(nil)

	_, err := initWith(t, "Bad Name", env)
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestInitSafety_FreshSessionPerTree(t *testing.T) {
	a, err := initWith(t, "one", newFakeEnv(nil))
	require.NoError(t, err)
	b, err := initWith(t, "two", newFakeEnv(nil))
	require.NoError(t, err)

	assert.NotEqual(t, a.SessionID, b.SessionID)
}

// --- Tests for guardrail checks ---

func TestCheckDepthLimit(t *testing.T) {
	tests := []struct {
		depth, max int
		wantErr    bool
	}{
		{depth: 0, max: 5, wantErr: false},
		{depth: 3, max: 5, wantErr: false},
		{depth: 4, max: 5, wantErr: true},
		{depth: 9, max: 5, wantErr: true},
		{depth: 0, max: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("depth=%d,max=%d", tt.depth, tt.max), func(t *testing.T) {
			s := &SafetyState{Depth: tt.depth, MaxDepth: tt.max}
			err := s.CheckDepthLimit()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDepthExceeded)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckLoop(t *testing.T) {
	s := &SafetyState{CallChain: []string{"alpha", "beta"}}

	require.NoError(t, s.CheckLoop("gamma"))

	err := s.CheckLoop("alpha")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoopDetected)
	assert.Contains(t, err.Error(), "alpha -> beta -> alpha")
}

func TestDeriveChild(t *testing.T) {
	s := &SafetyState{
		Depth:     1,
		MaxDepth:  5,
		CallChain: []string{"alpha", "beta"},
		SessionID: "sess-fixed",
	}

	child := s.DeriveChild()
	assert.Equal(t, 2, child.Depth)
	assert.Equal(t, 5, child.MaxDepth)
	assert.Equal(t, s.CallChain, child.CallChain)
	assert.Equal(t, "sess-fixed", child.SessionID)

	// Chains never share a backing array across derivations.
	child.CallChain[0] = "mutated"
	assert.Equal(t, "alpha", s.CallChain[0])
}

func TestEnvVars(t *testing.T) {
	s := &SafetyState{
		Depth:     2,
		MaxDepth:  7,
		CallChain: []string{"alpha", "beta"},
		SessionID: "sess-fixed",
	}

	vars := s.EnvVars()
	assert.Equal(t, "2", vars[EnvDepth])
	assert.Equal(t, "7", vars[EnvMaxDepth])
	assert.Equal(t, "alpha,beta", vars[EnvCallChain])
	assert.Equal(t, "sess-fixed", vars[EnvSessionID])
}

// --- Tests for name and chain parsing ---

func TestValidateName(t *testing.T) {
	valid := []string{"a", "summarizer", "web-search", "agent_2", "0ops"}
	for _, name := range valid {
		assert.NoError(t, ValidateName(name), name)
	}

	invalid := []string{"", "Upper", "has space", "comma,name", "-lead", "über"}
	for _, name := range invalid {
		assert.ErrorIs(t, ValidateName(name), ErrInvalidName, name)
	}
}

func TestParseChain(t *testing.T) {
	assert.Nil(t, parseChain(""))
	assert.Nil(t, parseChain("  "))
	assert.Equal(t, []string{"a", "b"}, parseChain("a,b"))
	assert.Equal(t, []string{"a", "b"}, parseChain(" a , ,b ,"))
}
