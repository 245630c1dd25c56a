package coord

import "time"

// AgentOption configures an Agent via the functional options pattern.
type AgentOption func(*agentOptions)

// agentOptions holds all configurable fields set via AgentOption functions.
type agentOptions struct {
	version        string
	description    string
	inputs         []InputDef
	inputSchema    map[string]any
	handler        Handler
	tools          *ToolRegistry
	defaultTimeout time.Duration
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (o *agentOptions) applyDefaults() {
	if o.version == "" {
		o.version = "0.0.0"
	}
	if o.tools == nil {
		o.tools = NewToolRegistry()
	}
	if o.defaultTimeout == 0 {
		o.defaultTimeout = DefaultCallTimeout
	}
}

// resolveOptions applies all option functions and fills defaults.
func resolveOptions(opts []AgentOption) agentOptions {
	var o agentOptions
	for _, fn := range opts {
		fn(&o)
	}
	o.applyDefaults()
	return o
}

// --- Identity ---

// WithVersion sets the agent's version string.
func WithVersion(version string) AgentOption {
	return func(o *agentOptions) { o.version = version }
}

// WithDescription sets the agent's human-readable description.
func WithDescription(description string) AgentOption {
	return func(o *agentOptions) { o.description = description }
}

// --- Inputs ---

// WithInput declares one input of the primary capability. typ is a JSON
// Schema type name; pass "" for "string".
func WithInput(name, typ, description string, required bool) AgentOption {
	return func(o *agentOptions) {
		o.inputs = append(o.inputs, InputDef{
			Name:        name,
			Type:        typ,
			Description: description,
			Required:    required,
		})
	}
}

// WithInputSchema sets the full input schema explicitly, replacing the one
// synthesized from declared inputs.
func WithInputSchema(schema map[string]any) AgentOption {
	return func(o *agentOptions) { o.inputSchema = schema }
}

// --- Execution ---

// WithHandler sets the primary capability handler.
func WithHandler(h Handler) AgentOption {
	return func(o *agentOptions) { o.handler = h }
}

// WithTools attaches a pre-built auxiliary tool registry.
func WithTools(r *ToolRegistry) AgentOption {
	return func(o *agentOptions) { o.tools = r }
}

// WithDefaultTimeout sets the per-call timeout applied when a call carries
// no explicit override.
func WithDefaultTimeout(d time.Duration) AgentOption {
	return func(o *agentOptions) { o.defaultTimeout = d }
}
