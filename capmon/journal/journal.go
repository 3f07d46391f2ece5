// Package journal provides implementations of capmon's Journaler interface. The
// main one writes to the log file and holds a file lock on it so that only one
// capmon instance can run with the same log file.
package journal

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"git.unix.lgbt/diamondburned/capmon/capmon"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// multiWriter combines multiple journalers.
type multiWriter []capmon.Journaler

// MultiWriter creates a journaler that writes to multiple other journalers.
// Every journaler is written to; the first error is returned.
func MultiWriter(ws ...capmon.Journaler) capmon.Journaler {
	return multiWriter(ws)
}

func (w multiWriter) Write(event capmon.Event) error {
	var firstErr error
	for _, writer := range w {
		if err := writer.Write(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

type discard struct{}

// Discard is a journaler that drops every event.
var Discard capmon.Journaler = discard{}

func (discard) Write(capmon.Event) error { return nil }

// FileLockJournaler is a journaler that uses a file lock (flock) to lock the
// given file and writes to it. The FileLockJournaler instance must be closed by
// the caller or by the operating system when the application exits.
//
// # Reading the Journal
//
// The caller does not need to acquire a file lock in order to read the written
// journal, as each Write is a single append of one whole line. A trim may cut
// the oldest line in half; Reader skips such lines.
type FileLockJournaler struct {
	mu   sync.Mutex
	w    Writer
	f    *os.File
	l    *flock.Flock
	path string
}

var (
	_ capmon.Journaler = (*FileLockJournaler)(nil)
	_ capmon.LogFile   = (*FileLockJournaler)(nil)
)

// ErrLockedElsewhere is returned if NewFileLockJournaler can't acquire the file
// lock.
var ErrLockedElsewhere = errors.New("file already locked elsewhere")

// NewFileLockJournaler creates a new file journaler if it can acquire a flock
// on the path. It returns an error if it fails to acquire the lock.
func NewFileLockJournaler(path string) (*FileLockJournaler, error) {
	return newFileLockJournaler(nil, path)
}

// NewFileLockJournalerWait creates a new file journaler but waits until the
// lock can be acquired or until the context times out, in which case
// ErrLockedElsewhere is returned.
func NewFileLockJournalerWait(ctx context.Context, path string) (*FileLockJournaler, error) {
	return newFileLockJournaler(ctx, path)
}

func newFileLockJournaler(ctx context.Context, path string) (*FileLockJournaler, error) {
	// Ensure the directory exists.
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errors.Wrap(err, "failed to create log directory")
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE|os.O_SYNC, 0640)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}

	l := flock.New(path)

	var locked bool
	if ctx != nil {
		locked, err = l.TryLockContext(ctx, 25*time.Millisecond)
	} else {
		locked, err = l.TryLock()
	}

	if err != nil && ctx != nil && ctx.Err() != nil {
		// Still locked when the wait ran out.
		err, locked = nil, false
	}

	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to acquire lock")
	}

	if !locked {
		f.Close()
		return nil, ErrLockedElsewhere
	}

	return &FileLockJournaler{
		w:    NewWriter(f),
		f:    f,
		l:    l,
		path: path,
	}, nil
}

// Path returns the path of the journal file.
func (f *FileLockJournaler) Path() string { return f.path }

// Write writes the event as one line into the journal file.
func (f *FileLockJournaler) Write(ev capmon.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.w.Write(ev)
}

// WithLock calls fn with the journal's path while holding off all writes. It
// implements capmon.LogFile.
func (f *FileLockJournaler) WithLock(fn func(path string) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return fn(f.path)
}

// Close closes the file and releases the flock.
func (f *FileLockJournaler) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.f.Close()
	return f.l.Unlock()
}
