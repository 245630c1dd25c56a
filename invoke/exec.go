package invoke

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	coord "github.com/karthala/agentline"
)

// errPTYUnavailable makes Exec fall back to pipes when no pseudo-terminal
// can be allocated.
var errPTYUnavailable = errors.New("invoke: pty unavailable")

// ExecRequest carries the launch parameters for one child process run.
type ExecRequest struct {
	// Stdin is delivered on the child's standard input, which then sees
	// end of input.
	Stdin string

	// Args are appended to the target's argv.
	Args []string

	// Env is the complete child environment; nil inherits this process's.
	Env []string

	// Timeout bounds the run; zero means unbounded. On expiry the child's
	// process group gets SIGTERM, then SIGKILL after the grace window, and
	// the result reports the timeout exit code with whatever output was
	// captured.
	Timeout time.Duration

	// PTY runs the child under a pseudo-terminal; output arrives merged
	// on Stdout.
	PTY bool
}

// Exec runs a target to completion. It is the engine Invoker builds on and
// applies no guardrails of its own. The child runs in its own process
// group and stays in the shutdown registry until it exits.
func Exec(ctx context.Context, t *Target, req ExecRequest) (*coord.InvokeResult, error) {
	if t == nil || len(t.Argv) == 0 || t.Argv[0] == "" {
		return nil, fmt.Errorf("%w: empty argv", coord.ErrSpawnFailed)
	}

	execCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	argv := make([]string, 0, len(t.Argv)+len(req.Args))
	argv = append(argv, t.Argv...)
	argv = append(argv, req.Args...)

	if req.PTY {
		res, err := runPTY(execCtx, argv, t, req)
		if !errors.Is(err, errPTYUnavailable) {
			return res, err
		}
	}
	return runPipes(execCtx, argv, t, req)
}

func runPipes(execCtx context.Context, argv []string, t *Target, req ExecRequest) (*coord.InvokeResult, error) {
	cmd := exec.CommandContext(execCtx, argv[0], argv[1:]...)
	cmd.Dir = t.Dir
	cmd.Env = req.Env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	release := attachKillEscalation(cmd)
	defer release()

	cmd.Stdin = strings.NewReader(req.Stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", coord.ErrSpawnFailed, t.Name, err)
	}
	track(cmd.Process)
	defer untrack(cmd.Process.Pid)

	waitErr := cmd.Wait()
	return finish(execCtx, cmd, stdout.String(), stderr.String(), waitErr)
}

func runPTY(execCtx context.Context, argv []string, t *Target, req ExecRequest) (*coord.InvokeResult, error) {
	cmd := exec.CommandContext(execCtx, argv[0], argv[1:]...)
	cmd.Dir = t.Dir
	cmd.Env = req.Env
	// pty.Start puts the child in a fresh session, which is also a fresh
	// process group, so the group escalation still applies.
	release := attachKillEscalation(cmd)
	defer release()

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errPTYUnavailable, err)
	}
	defer ptmx.Close()
	track(cmd.Process)
	defer untrack(cmd.Process.Pid)

	if req.Stdin != "" {
		_, _ = ptmx.WriteString(req.Stdin)
		_, _ = ptmx.Write([]byte{0x04}) // EOT, so line readers see end of input
	}

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, ptmx) // PTY read returns EIO on process exit, ignore

	waitErr := cmd.Wait()
	return finish(execCtx, cmd, buf.String(), "", waitErr)
}

// attachKillEscalation arranges the terminate-then-kill sequence for a
// cancelled or timed-out child: SIGTERM to the process group immediately,
// SIGKILL after the grace window. The returned release stops the pending
// kill once the child has exited.
func attachKillEscalation(cmd *exec.Cmd) (release func()) {
	var mu sync.Mutex
	var timer *time.Timer

	cmd.Cancel = func() error {
		pid := cmd.Process.Pid
		mu.Lock()
		timer = time.AfterFunc(coord.KillGrace, func() {
			_ = syscall.Kill(-pid, syscall.SIGKILL)
		})
		mu.Unlock()
		return syscall.Kill(-pid, syscall.SIGTERM)
	}
	// Backstop: Wait must return even if the child leaked its pipes to a
	// process that never exits.
	cmd.WaitDelay = coord.KillGrace + time.Second

	return func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}
}

// finish classifies a completed run. Cancellation observed on the context
// is authoritative: a result arriving after expiry still reports the
// timeout outcome.
func finish(execCtx context.Context, cmd *exec.Cmd, stdout, stderr string, waitErr error) (*coord.InvokeResult, error) {
	switch execCtx.Err() {
	case context.Canceled:
		return nil, fmt.Errorf("invoke cancelled: %w", execCtx.Err())
	case context.DeadlineExceeded:
		return &coord.InvokeResult{
			OK:       false,
			ExitCode: coord.ExitTimeout,
			Stdout:   stdout,
			Stderr:   stderr,
		}, nil
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(waitErr, &exitErr):
			return &coord.InvokeResult{
				OK:       false,
				ExitCode: exitErr.ExitCode(),
				Stdout:   stdout,
				Stderr:   stderr,
			}, nil
		case errors.Is(waitErr, exec.ErrWaitDelay):
			// The child exited but its pipes outlived it.
			code := cmd.ProcessState.ExitCode()
			return &coord.InvokeResult{
				OK:       code == 0,
				ExitCode: code,
				Stdout:   stdout,
				Stderr:   stderr,
			}, nil
		default:
			return nil, fmt.Errorf("wait for %s: %w", cmd.Path, waitErr)
		}
	}

	return &coord.InvokeResult{
		OK:       true,
		ExitCode: 0,
		Stdout:   stdout,
		Stderr:   stderr,
	}, nil
}
