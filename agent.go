package coord

import (
	"context"
	"encoding/json"
	"time"
)

// Handler is an agent's primary capability. It receives the raw JSON
// arguments object of the call and returns the textual result. Use
// [CallFrom] on ctx to reach the upward API (invoke, progress).
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

// InputDef declares one named input of an agent's primary capability.
// Declared inputs drive the synthesized input schema.
type InputDef struct {
	Name        string
	Type        string // JSON Schema type; empty means "string"
	Description string
	Required    bool
}

// Agent describes one coordinated agent: identity, declared inputs, the
// primary handler, and auxiliary tools. Build one with [NewAgent]; the
// zero value is not usable.
type Agent struct {
	name           string
	version        string
	description    string
	inputs         []InputDef
	inputSchema    map[string]any
	handler        Handler
	tools          *ToolRegistry
	defaultTimeout time.Duration
}

// NewAgent builds an agent descriptor. The name is the agent's identity in
// call chains and tool listings and must satisfy [ValidateName].
func NewAgent(name string, opts ...AgentOption) (*Agent, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	o := resolveOptions(opts)
	return &Agent{
		name:           name,
		version:        o.version,
		description:    o.description,
		inputs:         o.inputs,
		inputSchema:    o.inputSchema,
		handler:        o.handler,
		tools:          o.tools,
		defaultTimeout: o.defaultTimeout,
	}, nil
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// Version returns the agent's version string.
func (a *Agent) Version() string { return a.version }

// Description returns the agent's human-readable description.
func (a *Agent) Description() string { return a.description }

// DefaultTimeout returns the per-call timeout applied when a call carries
// no explicit override.
func (a *Agent) DefaultTimeout() time.Duration { return a.defaultTimeout }

// Tools returns the agent's auxiliary tool registry. Never nil.
func (a *Agent) Tools() *ToolRegistry { return a.tools }

// Inputs returns a copy of the declared inputs.
func (a *Agent) Inputs() []InputDef {
	out := make([]InputDef, len(a.inputs))
	copy(out, a.inputs)
	return out
}

// Execute runs the primary handler. It returns [ErrNoHandler] when the
// agent was built without one.
func (a *Agent) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	if a.handler == nil {
		return "", ErrNoHandler
	}
	return a.handler(ctx, args)
}

// InputSchema returns the JSON Schema of the primary capability's
// arguments. An explicit [WithInputSchema] wins; otherwise the schema is
// synthesized from the declared inputs plus the standard "context" input
// every agent accepts.
func (a *Agent) InputSchema() map[string]any {
	if a.inputSchema != nil {
		return a.inputSchema
	}

	props := map[string]any{
		"context": map[string]any{
			"type":        "string",
			"description": "Context handed to the agent",
		},
	}
	var required []string
	for _, in := range a.inputs {
		typ := in.Type
		if typ == "" {
			typ = "string"
		}
		p := map[string]any{"type": typ}
		if in.Description != "" {
			p["description"] = in.Description
		}
		props[in.Name] = p
		if in.Required {
			required = append(required, in.Name)
		}
	}

	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}
