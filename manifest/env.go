package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/joho/godotenv"
)

// ResolvedVar is one environment variable ready to apply to the current
// process. Secret values must never reach records, logs, or child
// environments outside the declared mechanism.
type ResolvedVar struct {
	Name   string
	Value  string
	Secret bool
}

// ResolveEnv materializes the manifest's environment declarations for this
// process's startup. Values from env_file come first (everything in a file
// is treated as secret); explicit declarations follow and therefore win
// when applied in order. Declarations using from_env read the current
// process environment; an unset source resolves to empty.
func (m *Manifest) ResolveEnv() ([]ResolvedVar, error) {
	var out []ResolvedVar

	if m.EnvFile != "" {
		path := m.EnvFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(m.BaseDir, path)
		}
		fileVars, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("agent %q: read env file: %w", m.Name, err)
		}
		keys := make([]string, 0, len(fileVars))
		for k := range fileVars {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, ResolvedVar{Name: k, Value: fileVars[k], Secret: true})
		}
	}

	for _, d := range m.Env {
		value := d.Value
		if d.FromEnv != "" {
			value = os.Getenv(d.FromEnv)
		}
		out = append(out, ResolvedVar{Name: d.Name, Value: value, Secret: d.Secret})
	}
	return out, nil
}

// Apply sets the resolved variables on the current process, in order.
func Apply(vars []ResolvedVar) error {
	for _, v := range vars {
		if err := os.Setenv(v.Name, v.Value); err != nil {
			return fmt.Errorf("set %s: %w", v.Name, err)
		}
	}
	return nil
}
