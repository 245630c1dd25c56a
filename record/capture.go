package record

import (
	"context"
	"sync"
)

// CaptureRecorder keeps entries in memory. Useful for tests and embedding
// runtimes that ship records elsewhere.
type CaptureRecorder struct {
	mu      sync.Mutex
	entries []Entry
}

var _ Recorder = (*CaptureRecorder)(nil)

// NewCaptureRecorder creates an empty CaptureRecorder.
func NewCaptureRecorder() *CaptureRecorder {
	return &CaptureRecorder{}
}

// Record implements [Recorder].
func (c *CaptureRecorder) Record(_ context.Context, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return nil
}

// Entries returns a copy of everything recorded so far, oldest first.
func (c *CaptureRecorder) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of recorded entries.
func (c *CaptureRecorder) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
