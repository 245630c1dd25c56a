// Package record appends execution records: one entry per completed agent
// execution or tool call, carrying identity, timing, outcome, and a
// snapshot of the safety state.
//
// Recording is best-effort by contract: callers log a failed Record and
// move on, and never put secret values into summaries or metadata.
package record

import (
	"context"
	"time"
	"unicode/utf8"
)

// MaxSummaryLen caps input/output summaries, in bytes.
const MaxSummaryLen = 2048

const truncationMarker = "... [truncated]"

// Entry is one execution record.
type Entry struct {
	AgentName     string         `json:"agent_name"`
	Version       string         `json:"version,omitempty"`
	ExitCode      int            `json:"exit_code"`
	StartTime     time.Time      `json:"start_time"`
	DurationMs    int64          `json:"duration_ms"`
	Depth         int            `json:"depth"`
	CallChain     []string       `json:"call_chain,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
	InputSummary  string         `json:"input_summary,omitempty"`
	OutputSummary string         `json:"output_summary,omitempty"`
	Meta          map[string]any `json:"meta,omitempty"`
}

// Recorder persists entries. Implementations must be safe for concurrent
// use.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// NopRecorder discards every entry.
type NopRecorder struct{}

var _ Recorder = NopRecorder{}

// Record implements [Recorder].
func (NopRecorder) Record(context.Context, Entry) error { return nil }

// Summarize caps s at [MaxSummaryLen] bytes without splitting a rune,
// marking the cut.
func Summarize(s string) string {
	if len(s) <= MaxSummaryLen {
		return s
	}
	cut := MaxSummaryLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker
}
