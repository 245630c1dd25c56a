package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	coord "github.com/karthala/agentline"
	"github.com/karthala/agentline/record"
)

// maxFrameBytes bounds a single JSON-RPC line. Larger frames abort
// the read loop rather than growing without limit.
const maxFrameBytes = 8 << 20

// State is the lifecycle position of a Server.
type State int32

const (
	// StateIdle means Serve has not been called yet.
	StateIdle State = iota
	// StateServing means the read loop is accepting frames.
	StateServing
	// StateDraining means intake has stopped and the server is
	// waiting for in-flight calls to finish.
	StateDraining
	// StateTerminated means the server is done; nothing more will
	// be written to the output stream.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateServing:
		return "serving"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Server serves one agent over line-delimited JSON-RPC.
type Server struct {
	agent    *coord.Agent
	safety   *coord.SafetyState
	invoker  coord.Invoker
	recorder record.Recorder
	progress coord.Progress
	logger   *slog.Logger

	callTimeout time.Duration
	in          io.Reader
	out         io.Writer

	state    atomic.Int32
	inflight atomic.Int64
	wg       sync.WaitGroup

	// writeMu serializes frames on out and fences the terminated
	// state: once terminate holds it, no late response can slip out.
	writeMu sync.Mutex
}

// ServerOption configures a Server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	safety      *coord.SafetyState
	invoker     coord.Invoker
	recorder    record.Recorder
	progress    coord.Progress
	logger      *slog.Logger
	callTimeout time.Duration
	in          io.Reader
	out         io.Writer
}

func applyServerDefaults(a *coord.Agent, opts *serverOptions) {
	if opts.safety == nil {
		opts.safety = &coord.SafetyState{
			MaxDepth:  coord.DefaultMaxDepth,
			CallChain: []string{a.Name()},
			SessionID: coord.NewSessionID(),
		}
	}
	if opts.recorder == nil {
		opts.recorder = record.NopRecorder{}
	}
	if opts.progress == nil {
		opts.progress = coord.StderrProgress()
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.callTimeout <= 0 {
		opts.callTimeout = a.DefaultTimeout()
	}
	if opts.in == nil {
		opts.in = os.Stdin
	}
	if opts.out == nil {
		opts.out = os.Stdout
	}
}

// --- Wiring ---

// WithSafety supplies the coordination state shared by every call the
// server handles. Without it the server starts a fresh root state.
func WithSafety(s *coord.SafetyState) ServerOption {
	return func(o *serverOptions) { o.safety = s }
}

// WithInvoker lets tool handlers spawn other agents through the call
// context.
func WithInvoker(inv coord.Invoker) ServerOption {
	return func(o *serverOptions) { o.invoker = inv }
}

// WithRecorder appends one run record per tools/call.
func WithRecorder(r record.Recorder) ServerOption {
	return func(o *serverOptions) { o.recorder = r }
}

// WithProgress routes handler progress lines. Defaults to stderr,
// which keeps the output stream pure protocol.
func WithProgress(p coord.Progress) ServerOption {
	return func(o *serverOptions) { o.progress = p }
}

func WithLogger(l *slog.Logger) ServerOption {
	return func(o *serverOptions) { o.logger = l }
}

// --- Behavior ---

// WithCallTimeout caps each tools/call. Defaults to the agent's own
// default timeout.
func WithCallTimeout(d time.Duration) ServerOption {
	return func(o *serverOptions) { o.callTimeout = d }
}

// WithIO replaces stdin and stdout, mainly for tests and embedding.
func WithIO(in io.Reader, out io.Writer) ServerOption {
	return func(o *serverOptions) {
		o.in = in
		o.out = out
	}
}

// NewServer builds a server for the given agent.
func NewServer(a *coord.Agent, opts ...ServerOption) *Server {
	options := &serverOptions{}
	for _, opt := range opts {
		opt(options)
	}
	applyServerDefaults(a, options)

	return &Server{
		agent:       a,
		safety:      options.safety,
		invoker:     options.invoker,
		recorder:    options.recorder,
		progress:    options.progress,
		logger:      options.logger.With("component", "mcp"),
		callTimeout: options.callTimeout,
		in:          options.in,
		out:         options.out,
	}
}

// State returns the server's current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// InFlight returns the number of tools/call handlers still running.
func (s *Server) InFlight() int {
	return int(s.inflight.Load())
}

// Serve reads frames until the input closes, a termination signal
// arrives, or ctx is cancelled, then drains in-flight calls and
// terminates. It is a one-shot: a server cannot be reused.
func (s *Server) Serve(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateServing)) {
		return ErrAlreadyServing
	}
	s.logger.Info("serving", "agent", s.agent.Name(), "session_id", s.safety.SessionID, "depth", s.safety.Depth)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	quit := make(chan struct{})
	defer close(quit)
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go s.readLoop(lines, readErr, quit)

	reason := ""
	var scanErr error
loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				reason = "input closed"
				scanErr = <-readErr
				break loop
			}
			s.dispatch(line)
		case sig := <-sigCh:
			reason = "signal " + sig.String()
			break loop
		case <-ctx.Done():
			reason = "context cancelled"
			break loop
		}
	}

	s.drain(reason)
	return scanErr
}

// readLoop feeds whole lines to the dispatch loop. The scanner's
// buffer is copied per line because Scan reuses it.
func (s *Server) readLoop(lines chan<- []byte, readErr chan<- error, quit <-chan struct{}) {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 64*1024), maxFrameBytes)
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		select {
		case lines <- line:
		case <-quit:
			return
		}
	}
	readErr <- scanner.Err()
	close(lines)
}

// drain stops intake, waits up to the kill grace for in-flight calls,
// then terminates. Calls that finish during the drain still get their
// responses written.
func (s *Server) drain(reason string) {
	s.state.Store(int32(StateDraining))
	s.logger.Info("draining", "reason", reason, "in_flight", s.InFlight())

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(coord.KillGrace):
		s.logger.Warn("drain grace expired", "in_flight", s.InFlight())
	}
	s.terminate()
}

func (s *Server) terminate() {
	s.writeMu.Lock()
	s.state.Store(int32(StateTerminated))
	s.writeMu.Unlock()
	s.logger.Info("terminated")
}

// writeFrame marshals and writes one response line. Frames are
// dropped once the server is terminated.
func (s *Server) writeFrame(resp *response) {
	b, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal response", "error", err)
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if State(s.state.Load()) == StateTerminated {
		s.logger.Debug("dropping response after termination")
		return
	}
	if _, err := s.out.Write(append(b, '\n')); err != nil {
		s.logger.Warn("write response", "error", err)
	}
}
