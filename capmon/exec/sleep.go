package exec

import (
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

type sleepProcess struct {
	once  sync.Once
	done  chan struct{}
	timer *time.Timer
	delay time.Duration

	pid  int
	exit int32

	signals int32
}

// NewSleepProcess creates a process that only idles for a duration. It is used
// for testing. If delay is larger than 0, then the process will sleep for that
// delay before obeying SIGINT or SIGTERM. SIGKILL is always immediate.
func NewSleepProcess(dura, delay time.Duration, pid int) Process {
	mock := &sleepProcess{
		done:  make(chan struct{}),
		timer: time.NewTimer(dura),
		delay: delay,

		pid:  pid,
		exit: -2,
	}

	go func() {
		select {
		case <-mock.timer.C:
			mock.exitWith(0)
		case <-mock.done:
		}
	}()

	return mock
}

// SignalCount returns the number of signals a process made by NewSleepProcess
// has received. It returns -1 for other processes.
func SignalCount(p Process) int {
	mock, ok := p.(*sleepProcess)
	if !ok {
		return -1
	}
	return int(atomic.LoadInt32(&mock.signals))
}

func (mock *sleepProcess) exitWith(status int32) {
	// Ensure exit is still unset (-2), otherwise bail.
	if !atomic.CompareAndSwapInt32(&mock.exit, -2, status) {
		return
	}

	mock.once.Do(func() {
		mock.timer.Stop()
		close(mock.done)
	})
}

func (mock *sleepProcess) PID() int { return mock.pid }

func (mock *sleepProcess) Signal(sig os.Signal) error {
	var status int32

	switch sig {
	case syscall.SIGINT, syscall.SIGTERM: // catchable
		status = 0
	case syscall.SIGKILL:
		status = -1
	default:
		return errors.New("unknown signal")
	}

	select {
	case <-mock.done:
		return os.ErrProcessDone
	default:
	}

	atomic.AddInt32(&mock.signals, 1)

	if mock.delay <= 0 || sig == syscall.SIGKILL {
		mock.exitWith(status)
		return nil
	}

	go func() {
		select {
		case <-time.After(mock.delay):
			mock.exitWith(status)
		case <-mock.done:
		}
	}()

	return nil
}

func (mock *sleepProcess) Kill() error {
	return mock.Signal(syscall.SIGKILL)
}

func (mock *sleepProcess) Alive() bool {
	select {
	case <-mock.done:
		return false
	default:
		return true
	}
}

func (mock *sleepProcess) Done() <-chan struct{} { return mock.done }

func (mock *sleepProcess) Status() ExitStatus {
	<-mock.done
	return ExitStatus{
		PID:  mock.pid,
		Code: int(atomic.LoadInt32(&mock.exit)),
	}
}
