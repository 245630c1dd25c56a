package manifest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/karthala/agentline/invoke"
)

// manifestGlob matches manifest files one directory below the agents root:
// {agents-dir}/{anything}/agent.yaml.
const manifestGlob = "*/agent.{yaml,yml}"

// Registry indexes the manifests found under one agents directory and
// resolves agent names to launchable targets.
type Registry struct {
	dir    string
	byName map[string]*Manifest
	names  []string
	logger *slog.Logger
}

var _ invoke.Resolver = (*Registry)(nil)

// LoadRegistry discovers every agent manifest under dir. A manifest that
// fails to load or validate is skipped with a warning; a duplicate name is
// skipped too, keeping the first occurrence. A missing directory yields an
// empty registry.
func LoadRegistry(dir string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "manifest")

	r := &Registry{
		dir:    dir,
		byName: make(map[string]*Manifest),
		logger: logger,
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return r, nil
	}

	matches, err := doublestar.Glob(os.DirFS(dir), manifestGlob)
	if err != nil {
		return nil, fmt.Errorf("scan agents dir %s: %w", dir, err)
	}
	sort.Strings(matches)

	for _, rel := range matches {
		path := filepath.Join(dir, rel)
		m, err := Load(path)
		if err != nil {
			logger.Warn("skipping manifest", "path", path, "error", err)
			continue
		}
		if _, exists := r.byName[m.Name]; exists {
			logger.Warn("skipping duplicate agent name", "name", m.Name, "path", path)
			continue
		}
		r.byName[m.Name] = m
		r.names = append(r.names, m.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Get returns the manifest for an agent name.
func (r *Registry) Get(name string) (*Manifest, bool) {
	m, ok := r.byName[name]
	return m, ok
}

// Names returns every registered agent name, sorted.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int { return len(r.byName) }

// Resolve implements [invoke.Resolver].
func (r *Registry) Resolve(name string) (*invoke.Target, error) {
	m, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", invoke.ErrUnknownTarget, name)
	}
	return m.Target(), nil
}

// Target converts the manifest to a launchable target. A command whose
// first element is a relative path containing a separator resolves against
// BaseDir; bare names resolve through PATH as usual.
func (m *Manifest) Target() *invoke.Target {
	argv := make([]string, len(m.Command))
	copy(argv, m.Command)

	if prog := argv[0]; !filepath.IsAbs(prog) && filepath.Base(prog) != prog {
		argv[0] = filepath.Join(m.BaseDir, prog)
	}

	dir := m.Dir
	switch {
	case dir == "":
		dir = m.BaseDir
	case !filepath.IsAbs(dir):
		dir = filepath.Join(m.BaseDir, dir)
	}

	return &invoke.Target{Name: m.Name, Argv: argv, Dir: dir}
}
