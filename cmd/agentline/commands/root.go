// Package commands implements the agentline CLI.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	coord "github.com/karthala/agentline"
	"github.com/karthala/agentline/invoke"
)

// NewRootCmd creates the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentline",
		Short: "Coordinate single-purpose agents into safe call trees",
		Long: `agentline runs manifest-defined agents, either once or as long-lived
tool servers speaking line-delimited JSON-RPC on stdin/stdout. Every
execution carries recursion guardrails, timeout escalation, and
execution records across process boundaries.

Examples:
  agentline agents
  agentline run summarizer --context "three paragraphs on otters"
  agentline run researcher --timeout 90s -- --depth shallow
  agentline serve summarizer`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newServeCmd(),
		newAgentsCmd(),
	)

	rootCmd.PersistentFlags().String("agents-dir", "./agents", "directory containing agent manifests")
	rootCmd.PersistentFlags().String("records-dir", "", "directory for execution records (empty disables recording)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text or json")
	rootCmd.PersistentFlags().Bool("debug", false, "shorthand for --log-level debug")
	return rootCmd
}

// Execute runs the CLI and maps the outcome onto the process exit-code
// contract.
func Execute(version string) int {
	err := NewRootCmd(version).Execute()
	if err == nil {
		return coord.ExitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.msg != "" {
			fmt.Fprintln(os.Stderr, "agentline:", ee.msg)
		}
		return ee.code
	}

	fmt.Fprintln(os.Stderr, "agentline:", err)
	return exitCodeFor(err)
}

// exitCodeFor classifies an error into a process exit code. Anything
// unclassified is treated as a usage problem: command errors that are
// real execution failures carry their own exitError.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, coord.ErrLoopDetected), errors.Is(err, coord.ErrDepthExceeded):
		return coord.ExitGuardrail
	case errors.Is(err, coord.ErrTimeout):
		return coord.ExitTimeout
	case errors.Is(err, coord.ErrSpawnFailed):
		return coord.ExitInternal
	case errors.Is(err, invoke.ErrUnknownTarget), errors.Is(err, coord.ErrInvalidName):
		return coord.ExitUsage
	case errors.Is(err, context.Canceled):
		// Shell convention for an interrupted run.
		return 130
	default:
		return coord.ExitUsage
	}
}

// exitError carries an explicit exit code out of a command, including a
// child's propagated code. An empty msg means the cause was already
// written to stderr.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return fmt.Sprintf("exit status %d", e.code)
}
