package invoke

import (
	"os"
	"sync"
	"syscall"
)

// tracked holds every child process currently running, so process exit
// paths can terminate the whole brood. Children register on start and
// deregister on exit.
var tracked = struct {
	mu    sync.Mutex
	procs map[int]*os.Process
}{procs: make(map[int]*os.Process)}

func track(p *os.Process) {
	tracked.mu.Lock()
	tracked.procs[p.Pid] = p
	tracked.mu.Unlock()
}

func untrack(pid int) {
	tracked.mu.Lock()
	delete(tracked.procs, pid)
	tracked.mu.Unlock()
}

// Tracked returns the number of live child processes.
func Tracked() int {
	tracked.mu.Lock()
	defer tracked.mu.Unlock()
	return len(tracked.procs)
}

// ShutdownAll signals every live child's process group to terminate.
// Best-effort: a child that exited a moment ago is not an error. Call it
// from process exit paths; a normally completed invocation has already
// deregistered itself.
func ShutdownAll() {
	tracked.mu.Lock()
	procs := make([]*os.Process, 0, len(tracked.procs))
	for _, p := range tracked.procs {
		procs = append(procs, p)
	}
	tracked.mu.Unlock()

	for _, p := range procs {
		if err := syscall.Kill(-p.Pid, syscall.SIGTERM); err != nil {
			_ = p.Signal(syscall.SIGTERM)
		}
	}
}
