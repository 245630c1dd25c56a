package coord

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Progress delivers live status lines from a running agent to whoever
// launched it. Emission is fire-and-forget: a failed or discarded write
// never affects the execution's outcome.
type Progress interface {
	Emit(agentName, message string)
}

// NewWriterProgress returns a sink that writes one "[name] message" line
// per emission. Safe for concurrent use.
func NewWriterProgress(w io.Writer) Progress {
	return &writerProgress{w: w}
}

// StderrProgress returns the default sink: lines on standard error, keeping
// stdout reserved for results and protocol frames.
func StderrProgress() Progress {
	return NewWriterProgress(os.Stderr)
}

type writerProgress struct {
	mu sync.Mutex
	w  io.Writer
}

var _ Progress = (*writerProgress)(nil)

func (p *writerProgress) Emit(agentName, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "[%s] %s\n", agentName, message)
}

// NopProgress discards every emission.
type NopProgress struct{}

var _ Progress = NopProgress{}

// Emit implements [Progress].
func (NopProgress) Emit(string, string) {}

// CaptureProgress collects emissions in memory, for tests and embedding
// runtimes that surface progress their own way.
type CaptureProgress struct {
	mu    sync.Mutex
	lines []string
}

var _ Progress = (*CaptureProgress)(nil)

// Emit implements [Progress].
func (p *CaptureProgress) Emit(agentName, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = append(p.lines, fmt.Sprintf("[%s] %s", agentName, message))
}

// Lines returns a copy of everything emitted so far.
func (p *CaptureProgress) Lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.lines))
	copy(out, p.lines)
	return out
}
