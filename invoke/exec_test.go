package invoke

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coord "github.com/karthala/agentline"
)

// shTarget builds a target that runs a shell snippet.
func shTarget(script string) *Target {
	return &Target{Name: "sh-test", Argv: []string{"/bin/sh", "-c", script}}
}

func TestExec_CapturesOutput(t *testing.T) {
	res, err := Exec(context.Background(), shTarget("echo out; echo err 1>&2"), ExecRequest{})
	require.NoError(t, err)

	assert.True(t, res.OK)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
}

func TestExec_NonZeroExitIsAResult(t *testing.T) {
	res, err := Exec(context.Background(), shTarget("exit 7"), ExecRequest{})
	require.NoError(t, err, "a failed run is a result, not an error")

	assert.False(t, res.OK)
	assert.Equal(t, 7, res.ExitCode)
}

func TestExec_DeliversStdin(t *testing.T) {
	res, err := Exec(context.Background(), shTarget("cat"), ExecRequest{Stdin: "hello child"})
	require.NoError(t, err)

	assert.Equal(t, "hello child", res.Stdout)
}

func TestExec_AppendsArgs(t *testing.T) {
	target := &Target{Name: "echo-args", Argv: []string{"/bin/sh", "-c", `echo "$@"`, "argv0"}}
	res, err := Exec(context.Background(), target, ExecRequest{Args: []string{"one", "two"}})
	require.NoError(t, err)

	assert.Equal(t, "one two\n", res.Stdout)
}

func TestExec_SpawnFailure(t *testing.T) {
	target := &Target{Name: "ghost", Argv: []string{"/nonexistent/definitely-missing"}}

	_, err := Exec(context.Background(), target, ExecRequest{})
	assert.ErrorIs(t, err, coord.ErrSpawnFailed)
}

func TestExec_EmptyArgv(t *testing.T) {
	_, err := Exec(context.Background(), &Target{Name: "empty"}, ExecRequest{})
	assert.ErrorIs(t, err, coord.ErrSpawnFailed)
}

func TestExec_ExplicitEnvReplacesInherited(t *testing.T) {
	t.Setenv("EXEC_TEST_LEAK", "visible")

	res, err := Exec(context.Background(), shTarget(`echo "${EXEC_TEST_LEAK:-gone}:${EXEC_TEST_SET:-unset}"`),
		ExecRequest{Env: []string{"EXEC_TEST_SET=yes", "PATH=/usr/bin:/bin"}})
	require.NoError(t, err)

	assert.Equal(t, "gone:yes\n", res.Stdout)
}

func TestExec_TimeoutReportsSentinel(t *testing.T) {
	start := time.Now()
	res, err := Exec(context.Background(), shTarget("echo early; sleep 30"),
		ExecRequest{Timeout: 100 * time.Millisecond})
	require.NoError(t, err, "a timeout is a result, not an error")

	assert.False(t, res.OK)
	assert.Equal(t, coord.ExitTimeout, res.ExitCode)
	assert.Contains(t, res.Stdout, "early", "output captured before expiry is kept")
	assert.Less(t, time.Since(start), 5*time.Second, "SIGTERM should end the child well before the kill grace")
}

func TestExec_CancelPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := Exec(ctx, shTarget("sleep 30"), ExecRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExec_TrackedWhileRunning(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = Exec(context.Background(), shTarget("sleep 0.5"), ExecRequest{})
	}()

	// Give the child a moment to start.
	time.Sleep(150 * time.Millisecond)
	assert.Positive(t, Tracked(), "running child should be registered")

	<-done
	assert.Zero(t, Tracked(), "finished child should be deregistered")
}

func TestShutdownAll(t *testing.T) {
	results := make(chan *coord.InvokeResult, 1)
	go func() {
		res, err := Exec(context.Background(), shTarget("sleep 30"), ExecRequest{})
		if err == nil {
			results <- res
		}
		close(results)
	}()

	time.Sleep(150 * time.Millisecond)
	require.Positive(t, Tracked())

	ShutdownAll()

	select {
	case res, ok := <-results:
		if ok {
			assert.False(t, res.OK, "terminated child cannot report success")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("child survived ShutdownAll")
	}
}

func TestExec_PTYMergesOutput(t *testing.T) {
	res, err := Exec(context.Background(), shTarget("echo merged"), ExecRequest{PTY: true})
	if err != nil {
		t.Skipf("pty not available in this environment: %v", err)
	}

	assert.True(t, res.OK)
	assert.Contains(t, res.Stdout, "merged")
	assert.Empty(t, res.Stderr, "pty output arrives merged on stdout")
}

func TestExec_InheritsEnvWhenNil(t *testing.T) {
	t.Setenv("EXEC_TEST_INHERIT", "present")

	res, err := Exec(context.Background(), shTarget(`echo "${EXEC_TEST_INHERIT:-absent}"`), ExecRequest{})
	require.NoError(t, err)
	assert.Equal(t, "present\n", res.Stdout)
}

func TestExec_StderrSeparateFromStdout(t *testing.T) {
	res, err := Exec(context.Background(), shTarget("echo only-err 1>&2; exit 3"), ExecRequest{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.ExitCode)
	assert.Empty(t, res.Stdout)
	assert.True(t, strings.Contains(res.Stderr, "only-err"))
}
