// Package exec provides an abstraction around package os' Process
// implementation for easier testing.
package exec

import (
	"os"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Process describes a capture process.
type Process interface {
	PID() int
	Signal(os.Signal) error
	Kill() error
	// Alive returns true if the process has not exited yet.
	Alive() bool
	// Done is closed once the process has exited and has been reaped.
	Done() <-chan struct{}
	// Status returns the exit status. It is only valid after Done is closed.
	Status() ExitStatus
}

// ExitStatus is a process' exit status.
type ExitStatus struct {
	PID   int
	Code  int // -1 if killed by a signal
	Error error
}

var subreaperOnce sync.Once

// SetSubreaper marks the current process as the child subreaper, so that
// anything the capture tool forks gets reparented to us instead of init.
func SetSubreaper() error {
	var err error
	subreaperOnce.Do(func() {
		err = unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0)
	})
	return errors.Wrap(err, "failed to set subreaper")
}

type process struct {
	*os.Process
	done   chan struct{}
	status ExitStatus
}

var _ Process = (*process)(nil)

// StartProcess starts argv as a new process. The child inherits stdout and
// stderr, and it receives SIGTERM once the OS thread that spawned it exits.
// Callers that care about the latter should lock the calling goroutine to its
// thread.
func StartProcess(argv []string) (Process, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty argv")
	}

	if err := SetSubreaper(); err != nil {
		return nil, err
	}

	p, err := os.StartProcess(argv[0], argv, &os.ProcAttr{
		Files: []*os.File{nil, os.Stdout, os.Stderr},
		Sys: &syscall.SysProcAttr{
			Pdeathsig: syscall.SIGTERM,
			// Keep terminal interrupts away from the child; we stop it
			// ourselves.
			Setpgid: true,
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to start %q", argv[0])
	}

	proc := &process{
		Process: p,
		done:    make(chan struct{}),
	}

	go proc.reap()

	return proc, nil
}

// reap waits for the process so that it doesn't linger as a zombie, which
// would still answer liveness probes.
func (proc *process) reap() {
	s, err := proc.Process.Wait()

	proc.status = ExitStatus{PID: proc.Pid, Code: -1, Error: err}
	if s != nil {
		proc.status.Code = s.ExitCode()
	}

	close(proc.done)
}

func (proc *process) PID() int { return proc.Pid }

func (proc *process) Done() <-chan struct{} { return proc.done }

func (proc *process) Alive() bool {
	select {
	case <-proc.done:
		return false
	default:
		return PIDAlive(proc.Pid)
	}
}

func (proc *process) Status() ExitStatus {
	<-proc.done
	return proc.status
}

// PIDAlive probes the given PID with signal 0. A process owned by another user
// is still considered alive.
func PIDAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
