package coord

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Environment variables that carry coordination state across process
// boundaries. Children inherit them from the invoker; [InitSafety]
// republishes them so further descendants see this process's view.
const (
	// EnvDepth holds the current invocation depth as a decimal integer.
	EnvDepth = "AGENTLINE_DEPTH"

	// EnvMaxDepth holds the maximum call tree depth.
	EnvMaxDepth = "AGENTLINE_MAX_DEPTH"

	// EnvCallChain holds the comma-joined list of agent names from the
	// root of the call tree to the current process.
	EnvCallChain = "AGENTLINE_CALL_CHAIN"

	// EnvSessionID holds the identifier shared by every execution in a
	// call tree.
	EnvSessionID = "AGENTLINE_SESSION_ID"
)

// EnvPrefix is the namespace shared by every coordination variable. The
// invoker forwards variables under this prefix to children and strips
// everything else not on the system allow-list.
const EnvPrefix = "AGENTLINE_"

// Agent names appear in the call chain encoding, so the charset excludes
// the separator and anything shell-hostile.
var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

const maxNameLen = 64

// ValidateName reports whether name is usable as an agent name: lowercase
// letters, digits, '-' and '_', starting with a letter or digit, at most
// 64 characters.
func ValidateName(name string) error {
	if len(name) > maxNameLen || !nameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// SafetyState is the recursion guardrail state of one running agent
// process. It is established once at startup by [InitSafety] and shared by
// every execution in the process; derive per-invocation state with
// [SafetyState.DeriveChild].
type SafetyState struct {
	// Depth is how many invocation hops separate this process from the
	// root of the call tree. The root runs at depth 0.
	Depth int

	// MaxDepth is the depth limit for the whole tree.
	MaxDepth int

	// CallChain lists agent names from the root to this process,
	// inclusive.
	CallChain []string

	// SessionID groups every record written by this call tree.
	SessionID string
}

// SafetyOption configures [InitSafety].
type SafetyOption func(*safetyOptions)

type safetyOptions struct {
	maxDepth int
	lookup   func(string) (string, bool)
	setenv   func(string, string) error
}

// WithMaxDepth overrides the maximum call depth for this process and its
// descendants. It takes precedence over an inherited limit.
func WithMaxDepth(n int) SafetyOption {
	return func(o *safetyOptions) { o.maxDepth = n }
}

// withEnviron redirects environment access, for tests.
func withEnviron(lookup func(string) (string, bool), setenv func(string, string) error) SafetyOption {
	return func(o *safetyOptions) {
		o.lookup = lookup
		o.setenv = setenv
	}
}

// InitSafety establishes the process-wide safety state. It reads the
// inherited coordination variables (absent or malformed values fall back to
// defaults), refuses to start if agentName already appears in the inherited
// chain, appends agentName to the chain, and republishes the state into the
// process environment for descendants.
//
// A refusal returns an error wrapping [ErrLoopDetected] that reports the
// would-be chain.
func InitSafety(agentName string, opts ...SafetyOption) (*SafetyState, error) {
	o := safetyOptions{lookup: os.LookupEnv, setenv: os.Setenv}
	for _, opt := range opts {
		opt(&o)
	}
	if err := ValidateName(agentName); err != nil {
		return nil, err
	}

	depth := intFromEnv(o.lookup, EnvDepth, 0)
	maxDepth := intFromEnv(o.lookup, EnvMaxDepth, DefaultMaxDepth)
	if o.maxDepth > 0 {
		maxDepth = o.maxDepth
	}

	inherited := ""
	if raw, ok := o.lookup(EnvCallChain); ok {
		inherited = raw
	}
	chain := parseChain(inherited)
	for _, name := range chain {
		if name == agentName {
			return nil, fmt.Errorf("%w: %s -> %s",
				ErrLoopDetected, strings.Join(chain, " -> "), agentName)
		}
	}

	session := ""
	if raw, ok := o.lookup(EnvSessionID); ok {
		session = strings.TrimSpace(raw)
	}
	if session == "" {
		session = NewSessionID()
	}

	full := make([]string, 0, len(chain)+1)
	full = append(full, chain...)
	full = append(full, agentName)

	s := &SafetyState{
		Depth:     depth,
		MaxDepth:  maxDepth,
		CallChain: full,
		SessionID: session,
	}
	for k, v := range s.EnvVars() {
		if err := o.setenv(k, v); err != nil {
			return nil, fmt.Errorf("coord: publish %s: %w", k, err)
		}
	}
	return s, nil
}

// CheckDepthLimit reports whether one more invocation hop is allowed. It
// fails when the child would run at a depth equal to or beyond MaxDepth,
// with an error wrapping [ErrDepthExceeded].
func (s *SafetyState) CheckDepthLimit() error {
	if s.Depth+1 >= s.MaxDepth {
		return fmt.Errorf("%w: depth %d with limit %d", ErrDepthExceeded, s.Depth, s.MaxDepth)
	}
	return nil
}

// CheckLoop reports whether invoking target would create a cycle, with an
// error wrapping [ErrLoopDetected] that shows the would-be chain.
func (s *SafetyState) CheckLoop(target string) error {
	for _, name := range s.CallChain {
		if name == target {
			return fmt.Errorf("%w: %s -> %s",
				ErrLoopDetected, strings.Join(s.CallChain, " -> "), target)
		}
	}
	return nil
}

// DeriveChild returns the state a child invocation starts from: depth one
// deeper, same limit, same session, and a copy of the chain so concurrent
// invocations never share a backing array.
func (s *SafetyState) DeriveChild() *SafetyState {
	chain := make([]string, len(s.CallChain))
	copy(chain, s.CallChain)
	return &SafetyState{
		Depth:     s.Depth + 1,
		MaxDepth:  s.MaxDepth,
		CallChain: chain,
		SessionID: s.SessionID,
	}
}

// EnvVars returns the coordination variables that encode s, ready to be
// placed in a child's environment or republished into this process's.
func (s *SafetyState) EnvVars() map[string]string {
	return map[string]string{
		EnvDepth:     strconv.Itoa(s.Depth),
		EnvMaxDepth:  strconv.Itoa(s.MaxDepth),
		EnvCallChain: strings.Join(s.CallChain, ","),
		EnvSessionID: s.SessionID,
	}
}

// intFromEnv reads a non-negative integer from the environment. Absent or
// malformed values fall back rather than poison the whole tree.
func intFromEnv(lookup func(string) (string, bool), key string, fallback int) int {
	raw, ok := lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// parseChain splits a comma-joined chain, dropping empty segments.
func parseChain(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	chain := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			chain = append(chain, p)
		}
	}
	return chain
}
