package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	coord "github.com/karthala/agentline"
	"github.com/karthala/agentline/invoke"
	"github.com/karthala/agentline/manifest"
	"github.com/karthala/agentline/record"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <agent> [-- args...]",
		Short: "Run an agent once",
		Long: `Run a manifest-defined agent to completion. The process joins the
call tree as the agent itself: it inherits the coordination state,
refuses self-loops, applies the manifest's environment, and executes
the agent's command with the context text on stdin.

The agent's stdout and stderr pass through; the exit code is the
agent's own, with 124 reserved for timeouts.

Examples:
  agentline run summarizer --context "three paragraphs on otters"
  agentline run fetcher --timeout 30s -- --format rss`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRun,
	}

	cmd.Flags().String("context", "", "context text delivered to the agent on stdin")
	cmd.Flags().Duration("timeout", 0, "execution timeout (overrides the manifest)")
	cmd.Flags().Bool("pty", false, "run the agent under a pseudo-terminal")
	cmd.Flags().Bool("json", false, "print the structured result instead of passing output through")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
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

	// The scope owns process lifetime: SIGINT/SIGTERM cancel the child
	// and exit 130/143 after the cleanup window, sweeping stragglers.
	scope := coord.NewScope(context.Background(),
		coord.WithSignalExit(),
		coord.WithExitFunc(func(code int) {
			invoke.ShutdownAll()
			os.Exit(code)
		}))
	defer scope.Release()
	defer invoke.ShutdownAll()

	contextText, _ := cmd.Flags().GetString("context")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout == 0 {
		timeout = manifestTimeout(m)
	}
	pty, _ := cmd.Flags().GetBool("pty")

	runID := coord.NewRunID()
	logger.Info("running agent", "run_id", runID,
		"agent", m.Name, "depth", safety.Depth, "session_id", safety.SessionID)

	start := time.Now()
	res, err := invoke.Exec(scope.Context(), m.Target(), invoke.ExecRequest{
		Stdin:   contextText,
		Args:    args[1:],
		Timeout: timeout,
		PTY:     pty,
	})
	if err != nil {
		return err
	}

	recordRun(openRecorder(st, logger), logger, runID, m, safety, res, contextText, start)

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		if err := json.NewEncoder(os.Stdout).Encode(res); err != nil {
			return &exitError{code: coord.ExitInternal, msg: err.Error()}
		}
	} else {
		io.WriteString(os.Stdout, res.Stdout)
		io.WriteString(os.Stderr, res.Stderr)
	}

	if res.ExitCode != 0 {
		return &exitError{code: res.ExitCode}
	}
	return nil
}

// recordRun appends one execution record. Best effort.
func recordRun(rec record.Recorder, logger *slog.Logger, runID string, m *manifest.Manifest,
	safety *coord.SafetyState, res *coord.InvokeResult, input string, start time.Time,
) {
	entry := record.Entry{
		AgentName:     m.Name,
		Version:       m.Version,
		ExitCode:      res.ExitCode,
		StartTime:     start.UTC(),
		DurationMs:    time.Since(start).Milliseconds(),
		Depth:         safety.Depth,
		CallChain:     safety.CallChain,
		SessionID:     safety.SessionID,
		InputSummary:  record.Summarize(input),
		OutputSummary: record.Summarize(res.Stdout),
		Meta:          map[string]any{"mode": "run", "run_id": runID},
	}
	if err := rec.Record(context.Background(), entry); err != nil {
		logger.Warn("record failed", "error", err)
	}
}
