package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	coord "github.com/karthala/agentline"
	"github.com/karthala/agentline/invoke"
	"github.com/karthala/agentline/manifest"
	"github.com/karthala/agentline/mcp"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <agent>",
		Short: "Serve an agent as a long-lived tool server",
		Long: `Expose a manifest-defined agent as a tool server speaking
line-delimited JSON-RPC 2.0 on stdin/stdout. Each tools/call runs the
agent's command once: the context argument feeds its stdin, every
other declared input becomes a --name value argument pair.

The server drains in-flight calls on end-of-input or SIGINT/SIGTERM
before terminating.

Examples:
  agentline serve summarizer
  agentline serve fetcher --call-timeout 30s`,
		Args: cobra.ExactArgs(1),
		RunE: runServe,
	}

	cmd.Flags().Duration("call-timeout", 0, "per-call timeout (overrides the manifest)")
	cmd.Flags().Bool("pty", false, "run the agent's command under a pseudo-terminal")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	st, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(st)

	reg, err := manifest.LoadRegistry(st.AgentsDir, logger)
	if err != nil {
		return err
	}
	m, ok := reg.Get(args[0])
	if !ok {
		return &exitError{code: coord.ExitUsage,
			msg: fmt.Sprintf("unknown agent %q (agents dir %s)", args[0], st.AgentsDir)}
	}

	safety, err := coord.InitSafety(m.Name, safetyOpts(m)...)
	if err != nil {
		return err
	}

	vars, err := m.ResolveEnv()
	if err != nil {
		return &exitError{code: coord.ExitInternal, msg: err.Error()}
	}
	if err := manifest.Apply(vars); err != nil {
		return &exitError{code: coord.ExitInternal, msg: err.Error()}
	}

	pty, _ := cmd.Flags().GetBool("pty")
	agent, err := manifestAgent(m, pty)
	if err != nil {
		return err
	}

	defer invoke.ShutdownAll()

	opts := []mcp.ServerOption{
		mcp.WithSafety(safety),
		mcp.WithInvoker(invoke.New(safety, reg, invoke.WithLogger(logger))),
		mcp.WithRecorder(openRecorder(st, logger)),
		mcp.WithProgress(coord.StderrProgress()),
		mcp.WithLogger(logger),
	}
	if d, _ := cmd.Flags().GetDuration("call-timeout"); d > 0 {
		opts = append(opts, mcp.WithCallTimeout(d))
	}

	return mcp.NewServer(agent, opts...).Serve(cmd.Context())
}

// manifestAgent adapts a manifest-defined command into an in-process
// agent descriptor whose primary handler runs the command once per call.
func manifestAgent(m *manifest.Manifest, pty bool) (*coord.Agent, error) {
	opts := []coord.AgentOption{
		coord.WithDescription(m.Description),
	}
	if m.Version != "" {
		opts = append(opts, coord.WithVersion(m.Version))
	}
	for _, in := range m.Inputs {
		opts = append(opts, coord.WithInput(in.Name, in.Type, in.Description, in.Required))
	}
	if m.TimeoutSeconds > 0 {
		opts = append(opts, coord.WithDefaultTimeout(time.Duration(m.TimeoutSeconds)*time.Second))
	}

	target := m.Target()
	inputs := m.Inputs
	opts = append(opts, coord.WithHandler(func(ctx context.Context, args json.RawMessage) (string, error) {
		stdin, argv, err := splitCallArgs(inputs, args)
		if err != nil {
			return "", err
		}
		res, err := invoke.Exec(ctx, target, invoke.ExecRequest{
			Stdin: stdin,
			Args:  argv,
			PTY:   pty,
		})
		if err != nil {
			return "", err
		}
		if res.ExitCode != 0 {
			return "", fmt.Errorf("agent %s exited %d: %s",
				target.Name, res.ExitCode, strings.TrimSpace(res.Stderr))
		}
		return res.Stdout, nil
	}))

	return coord.NewAgent(m.Name, opts...)
}

// splitCallArgs maps a call's arguments object onto the command
// contract: the context field feeds stdin; every other declared input
// present in the arguments becomes a --name value pair, in declaration
// order. Non-string values pass through as JSON.
func splitCallArgs(inputs []manifest.Input, raw json.RawMessage) (string, []string, error) {
	fields := map[string]json.RawMessage{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return "", nil, fmt.Errorf("decode arguments: %w", err)
		}
	}

	var stdin string
	if v, ok := fields["context"]; ok {
		if err := json.Unmarshal(v, &stdin); err != nil {
			stdin = string(v)
		}
	}

	var argv []string
	for _, in := range inputs {
		if in.Name == "context" {
			continue
		}
		v, ok := fields[in.Name]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			s = string(v)
		}
		argv = append(argv, "--"+in.Name, s)
	}
	return stdin, argv, nil
}
