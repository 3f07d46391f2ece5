package capmon

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"syscall"
	"time"

	"git.unix.lgbt/diamondburned/capmon/capmon/exec"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Supervisor defaults.
var (
	DefaultTick         = time.Second
	DefaultCheckEvery   = 60
	DefaultTrimEvery    = 300
	DefaultRetryBackoff = 20 * time.Second
	DefaultStopTimeout  = 2 * time.Second
	DefaultStartGrace   = 500 * time.Millisecond
	DefaultOutputFlag   = "-output"
)

// tickWrap bounds the tick counter. A wrap only shifts the phase of the
// periodic checks.
const tickWrap = 1 << 30

// Options configures a Supervisor.
type Options struct {
	Naming Naming
	// Command is the capture tool followed by its fixed arguments.
	Command []string
	// OutputFlag is passed right before the output path.
	OutputFlag string

	RetentionDays int
	Limits        LogLimits
	// Log is trimmed according to Limits. It may be nil.
	Log    LogFile
	TmpDir string

	Tick       time.Duration
	CheckEvery int // in ticks
	TrimEvery  int // in ticks

	// RetryBackoff is the wait between failed starts.
	RetryBackoff time.Duration
	// StopTimeout is the time to wait for the capture process to exit on
	// SIGTERM before it is SIGKILLed.
	StopTimeout time.Duration
	// StartGrace is the time a freshly started capture process must survive to
	// count as started.
	StartGrace time.Duration

	// Watch enables watching the capture directory for the active capture
	// file being deleted.
	Watch bool
}

// DefaultOptions returns Options with every default filled in. Naming.Dir,
// Command and Log are left for the caller.
func DefaultOptions() Options {
	return Options{
		Naming:        Naming{DateLayout: DefaultDateLayout},
		OutputFlag:    DefaultOutputFlag,
		RetentionDays: DefaultRetentionDays,
		TmpDir:        os.TempDir(),
		Tick:          DefaultTick,
		CheckEvery:    DefaultCheckEvery,
		TrimEvery:     DefaultTrimEvery,
		RetryBackoff:  DefaultRetryBackoff,
		StopTimeout:   DefaultStopTimeout,
		StartGrace:    DefaultStartGrace,
		Watch:         true,
	}
}

// Validate returns an error if the options can't run a supervisor.
func (o Options) Validate() error {
	if err := o.Limits.Validate(); err != nil {
		return err
	}

	switch {
	case o.Naming.Dir == "":
		return errors.New("missing capture directory")
	case len(o.Command) == 0 || o.Command[0] == "":
		return errors.New("missing capture command")
	case o.RetentionDays <= 0:
		return errors.Errorf("retention days %d is not a positive integer", o.RetentionDays)
	case o.Tick <= 0:
		return errors.Errorf("tick %v is not positive", o.Tick)
	case o.CheckEvery <= 0:
		return errors.Errorf("check interval %d is not a positive integer", o.CheckEvery)
	case o.TrimEvery <= 0:
		return errors.Errorf("trim interval %d is not a positive integer", o.TrimEvery)
	case o.RetryBackoff < 0, o.StopTimeout < 0, o.StartGrace < 0:
		return errors.New("durations must not be negative")
	}

	return nil
}

// State is the lifecycle state of a Supervisor.
type State uint8

const (
	StateStarting State = iota
	StateRunning
	StateRestarting
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateRestarting:
		return "restarting"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Supervisor keeps one capture process running, restarts it on every new day,
// prunes old capture files and keeps the log file trimmed.
//
// All of the supervisor's state is owned by the goroutine calling Run. None of
// the methods are safe for concurrent use.
type Supervisor struct {
	Options

	j Journaler

	now         func() time.Time
	startProc   func(argv []string) (exec.Process, error)
	reapOrphans func(keep ...int) ([]int, error)

	signals <-chan os.Signal
	removed <-chan string

	// states
	state   State
	date    string   // date of the current session
	session *Session // nil if not running
	last    *Session // last started session, kept after it stops
	quit    bool
	ticks   int
}

// NewSupervisor creates a new supervisor. Nothing is started until Run is
// called.
func NewSupervisor(opts Options, j Journaler) *Supervisor {
	return &Supervisor{
		Options:     opts,
		j:           j,
		now:         time.Now,
		startProc:   exec.StartProcess,
		reapOrphans: exec.ReapOrphans,
	}
}

// State returns the supervisor's lifecycle state.
func (s *Supervisor) State() State { return s.state }

// Session returns the current capture session, or nil if none is running.
func (s *Supervisor) Session() *Session { return s.session }

// Run runs the supervisor until ctx is canceled or a signal arrives on sigs.
// The capture process is stopped before Run returns.
func (s *Supervisor) Run(ctx context.Context, sigs <-chan os.Signal) {
	// The capture process gets SIGTERM once the thread that spawned it dies,
	// so keep spawning from the same thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.signals = sigs
	s.state = StateStarting
	s.j.Write(&EventSupervisorStarted{PID: os.Getpid(), Dir: s.Naming.Dir})

	defer s.shutdown()

	if !s.StartCaptureLoop(ctx) {
		return
	}

	if s.Watch {
		s.removed = TryWatch(ctx, s.Naming.Dir, s.j).Removed
	}

	ticker := time.NewTicker(s.Tick)
	defer ticker.Stop()

	for !s.quit {
		select {
		case <-ctx.Done():
			s.quit = true

		case sig := <-s.signals:
			s.onSignal(sig)

		case path := <-s.removed:
			s.onRemoved(ctx, path)

		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Supervisor) tick(ctx context.Context) {
	s.ticks = (s.ticks + 1) % tickWrap

	if s.ticks%s.CheckEvery == 0 {
		s.checkCapture(ctx)
	}

	if s.ticks%s.TrimEvery == 0 {
		s.trimLog()
	}
}

// checkCapture restarts the capture on a new day and revives it if it died.
func (s *Supervisor) checkCapture(ctx context.Context) {
	s.reapLeftovers()

	today := s.Naming.Date(s.now())

	if today != s.date {
		s.pruneCaptures()
		s.RestartCapture(ctx)
		return
	}

	if s.session != nil && !s.CheckAlive() {
		s.reportExited()
	}

	if s.session == nil {
		s.StartCaptureLoop(ctx)
	}
}

func (s *Supervisor) onSignal(sig os.Signal) {
	name := sig.String()
	if sysSig, ok := sig.(syscall.Signal); ok {
		if n := unix.SignalName(sysSig); n != "" {
			name = n
		}
	}

	s.j.Write(&EventSignalReceived{Signal: name})
	s.quit = true
}

func (s *Supervisor) onRemoved(ctx context.Context, path string) {
	if s.session == nil || s.session.File != path {
		return
	}

	s.j.Write(&EventCaptureFileRemoved{File: path})
	s.RestartCapture(ctx)
}

// StartCapture starts a new capture session for today. It returns false if the
// capture tool could not be started; the failure is journaled.
func (s *Supervisor) StartCapture() bool {
	date := s.Naming.Date(s.now())

	if err := os.MkdirAll(s.Naming.Dir, 0750); err != nil {
		s.j.Write(&EventCaptureSpawnError{
			Reason: errors.Wrap(err, "failed to create capture dir").Error(),
		})
		return false
	}

	seq, err := s.Naming.NextSequence(date)
	if err != nil {
		s.j.Write(&EventCaptureSpawnError{Reason: err.Error()})
		return false
	}

	// The last session's file may not exist yet if the tool died early.
	if s.last != nil && s.last.Date == date && seq <= s.last.Sequence {
		seq = s.last.Sequence + 1
	}

	file := s.Naming.Path(date, seq)

	argv := make([]string, 0, len(s.Command)+2)
	argv = append(argv, s.Command...)
	argv = append(argv, s.OutputFlag, file)

	proc, err := s.startProc(argv)
	if err != nil {
		s.j.Write(&EventCaptureSpawnError{File: file, Reason: err.Error()})
		return false
	}

	if s.StartGrace > 0 {
		grace := time.NewTimer(s.StartGrace)
		defer grace.Stop()

		select {
		case <-proc.Done():
			status := proc.Status()
			s.j.Write(&EventCaptureSpawnError{
				File:   file,
				Reason: fmt.Sprintf("exited with code %d during start", status.Code),
			})
			return false
		case <-grace.C:
		}
	}

	s.session = &Session{
		Date:     date,
		Sequence: seq,
		File:     file,
		proc:     proc,
	}
	s.last = s.session
	s.date = date

	s.j.Write(&EventCaptureSpawned{
		PID:      proc.PID(),
		Date:     date,
		Sequence: seq,
		File:     file,
	})

	return true
}

// StartCaptureLoop calls StartCapture until it succeeds, waiting RetryBackoff
// between attempts. It returns false if the supervisor was told to quit first.
func (s *Supervisor) StartCaptureLoop(ctx context.Context) bool {
	for !s.quit {
		if s.StartCapture() {
			s.state = StateRunning
			return true
		}

		if !s.sleep(ctx, s.RetryBackoff) {
			break
		}
	}

	return false
}

// CheckAlive returns true if the capture process is still running.
func (s *Supervisor) CheckAlive() bool {
	return s.session != nil && s.session.proc.Alive()
}

// StopCapture stops the capture process: SIGTERM first, then SIGKILL if it is
// still alive after StopTimeout. The session is always cleared. Calling it
// without a running capture process does nothing.
func (s *Supervisor) StopCapture() {
	if !s.CheckAlive() {
		s.session = nil
		return
	}

	sess := s.session
	defer func() { s.session = nil }()

	sess.proc.Signal(syscall.SIGTERM)

	ev := EventCaptureStopped{PID: sess.PID()}

	if !waitDone(sess.proc, s.StopTimeout) && sess.proc.Alive() {
		sess.proc.Kill()
		ev.Killed = true
		waitDone(sess.proc, s.StopTimeout)
	}

	s.j.Write(&ev)
}

// RestartCapture stops the capture process if it's alive and starts a new
// session. It returns false if the supervisor was told to quit before a new
// session could start.
func (s *Supervisor) RestartCapture(ctx context.Context) bool {
	s.state = StateRestarting

	if s.CheckAlive() {
		s.StopCapture()
	} else if s.session != nil {
		s.reportExited()
	}

	return s.StartCaptureLoop(ctx)
}

// reportExited journals the death of the current session's process and
// clears the session.
func (s *Supervisor) reportExited() {
	status := s.session.proc.Status()

	ev := EventCaptureExited{
		PID:      s.session.PID(),
		File:     s.session.File,
		ExitCode: status.Code,
	}
	if status.Error != nil {
		ev.Error = status.Error.Error()
	}

	s.j.Write(&ev)
	s.session = nil
}

// reapLeftovers waits for zombies the capture tool left behind. As the child
// subreaper we inherit them, and only the capture process itself is waited
// for by the exec layer.
func (s *Supervisor) reapLeftovers() {
	var keep []int
	if s.session != nil {
		keep = append(keep, s.session.PID())
	}

	// A stopped process that outlived the stop timeout is still the exec
	// layer's to reap.
	if s.last != nil && s.last != s.session {
		select {
		case <-s.last.proc.Done():
		default:
			keep = append(keep, s.last.PID())
		}
	}

	pids, err := s.reapOrphans(keep...)
	if err != nil {
		s.j.Write(&EventWarning{Component: "reaper", Error: err.Error()})
		return
	}

	if len(pids) > 0 {
		s.j.Write(&EventOrphansReaped{PIDs: pids})
	}
}

func (s *Supervisor) pruneCaptures() {
	deleted, err := PruneCaptures(s.Naming, s.RetentionDays, s.now(), s.j)
	if err != nil {
		s.j.Write(&EventPruneError{File: s.Naming.Dir, Error: err.Error()})
		return
	}

	if len(deleted) > 0 {
		s.j.Write(&EventCapturesPruned{Files: deleted, Days: s.RetentionDays})
	}
}

func (s *Supervisor) trimLog() {
	if s.Log == nil {
		return
	}

	var res TrimResult

	err := s.Log.WithLock(func(path string) (err error) {
		res, err = TrimFile(path, s.TmpDir, s.Limits)
		return
	})
	if err != nil {
		s.j.Write(&EventLogTruncateError{Error: err.Error()})
		return
	}

	if res.Trimmed() {
		s.j.Write(&EventLogTruncated{
			OldSize:  res.OldSize,
			Skipped:  res.Skipped,
			Retained: res.Retained,
		})
	}
}

func (s *Supervisor) shutdown() {
	s.state = StateStopping
	s.StopCapture()
	s.j.Write(&EventSupervisorStopped{PID: os.Getpid()})
	s.state = StateStopped
}

// sleep waits for d. It returns false if the supervisor was told to quit in
// the meantime.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		s.quit = true
	case sig := <-s.signals:
		s.onSignal(sig)
	case <-timer.C:
	}

	return !s.quit
}

// waitDone waits up to d for p to exit. It returns true if p exited.
func waitDone(p exec.Process, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-p.Done():
		return true
	case <-timer.C:
		return false
	}
}
