package invoke

import (
	"sort"
	"strings"

	coord "github.com/karthala/agentline"
)

// systemAllowList names the parent variables a child keeps. Everything
// else outside the coordination namespace is stripped, so ambient secrets
// never leak across agent boundaries.
var systemAllowList = []string{
	"PATH",
	"HOME",
	"USER",
	"SHELL",
	"TERM",
	"LANG",
	"LC_ALL",
}

// BuildChildEnv filters a parent environment down to what a child agent
// receives: the allow-listed system variables, every variable in the
// coordination namespace, and the child's derived safety state overriding
// any inherited coordination values.
func BuildChildEnv(child *coord.SafetyState, environ []string) []string {
	allowed := make(map[string]bool, len(systemAllowList))
	for _, k := range systemAllowList {
		allowed[k] = true
	}

	env := make([]string, 0, len(systemAllowList)+8)
	for _, kv := range environ {
		key, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if allowed[key] || strings.HasPrefix(key, coord.EnvPrefix) {
			env = append(env, kv)
		}
	}

	vars := child.EnvVars()
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = setEnvVar(env, k, vars[k])
	}
	return env
}

// setEnvVar replaces key's entry in env or appends one.
func setEnvVar(env []string, key, value string) []string {
	prefix := key + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}
