// Package manifest loads agent manifests: the on-disk descriptors that let
// the runtime discover, describe, and launch agents it did not compile in.
//
// A manifest is a YAML file named agent.yaml (or agent.yml):
//
//	name: summarizer
//	version: 1.2.0
//	description: Summarizes text from stdin
//	command: ["./bin/summarizer"]
//	max_depth: 4
//	timeout_seconds: 120
//	inputs:
//	  - name: topic
//	    type: string
//	    description: The topic to focus on
//	    required: true
//	env:
//	  - name: SUMMARIZER_MODE
//	    value: fast
//	  - name: API_TOKEN
//	    from_env: SUMMARIZER_API_TOKEN
//	    secret: true
//	env_file: .env
package manifest

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"

	coord "github.com/karthala/agentline"
)

// Input declares one named input of the agent's primary capability.
type Input struct {
	Name        string `mapstructure:"name"`
	Type        string `mapstructure:"type"`
	Description string `mapstructure:"description"`
	Required    bool   `mapstructure:"required"`
}

// EnvDecl declares one environment variable the agent needs at startup.
// Exactly one of Value and FromEnv may be set; FromEnv reads the launching
// process's environment at resolution time. Secret values are applied but
// never recorded or echoed.
type EnvDecl struct {
	Name    string `mapstructure:"name"`
	Value   string `mapstructure:"value"`
	FromEnv string `mapstructure:"from_env"`
	Secret  bool   `mapstructure:"secret"`
}

// Manifest describes one agent on disk.
type Manifest struct {
	Name           string    `mapstructure:"name"`
	Version        string    `mapstructure:"version"`
	Description    string    `mapstructure:"description"`
	Command        []string  `mapstructure:"command"`
	Dir            string    `mapstructure:"dir"`
	MaxDepth       int       `mapstructure:"max_depth"`
	TimeoutSeconds int       `mapstructure:"timeout_seconds"`
	Inputs         []Input   `mapstructure:"inputs"`
	Env            []EnvDecl `mapstructure:"env"`
	EnvFile        string    `mapstructure:"env_file"`

	// BaseDir is the directory containing the manifest file. Relative
	// command and env_file paths resolve against it. Set by Load.
	BaseDir string `mapstructure:"-"`
}

// Load reads and validates one manifest file.
func Load(path string) (*Manifest, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest path: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(abs)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := v.Unmarshal(&m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	m.BaseDir = filepath.Dir(abs)

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return &m, nil
}

var schemaTypes = map[string]bool{
	"":        true,
	"string":  true,
	"integer": true,
	"number":  true,
	"boolean": true,
	"array":   true,
	"object":  true,
}

// Validate checks the manifest for structural problems.
func (m *Manifest) Validate() error {
	if err := coord.ValidateName(m.Name); err != nil {
		return err
	}
	if len(m.Command) == 0 || m.Command[0] == "" {
		return fmt.Errorf("agent %q: command is required", m.Name)
	}
	if m.MaxDepth < 0 {
		return fmt.Errorf("agent %q: max_depth must not be negative", m.Name)
	}
	if m.TimeoutSeconds < 0 {
		return fmt.Errorf("agent %q: timeout_seconds must not be negative", m.Name)
	}
	for _, in := range m.Inputs {
		if in.Name == "" {
			return fmt.Errorf("agent %q: input with empty name", m.Name)
		}
		if !schemaTypes[in.Type] {
			return fmt.Errorf("agent %q: input %q has unknown type %q", m.Name, in.Name, in.Type)
		}
	}
	for _, d := range m.Env {
		if d.Name == "" {
			return fmt.Errorf("agent %q: env declaration with empty name", m.Name)
		}
		if d.Value != "" && d.FromEnv != "" {
			return fmt.Errorf("agent %q: env %q sets both value and from_env", m.Name, d.Name)
		}
	}
	return nil
}

// InputDefs converts the declared inputs to the descriptor form.
func (m *Manifest) InputDefs() []coord.InputDef {
	defs := make([]coord.InputDef, 0, len(m.Inputs))
	for _, in := range m.Inputs {
		defs = append(defs, coord.InputDef{
			Name:        in.Name,
			Type:        in.Type,
			Description: in.Description,
			Required:    in.Required,
		})
	}
	return defs
}
