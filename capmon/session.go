package capmon

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"git.unix.lgbt/diamondburned/capmon/capmon/exec"
	"github.com/pkg/errors"
)

// DefaultDateLayout is the date layout used in capture file names if none is
// given.
const DefaultDateLayout = "20060102"

// Naming describes where capture files go and how they are named. A capture
// file is named
//
//	<Prefix><date><Suffix>.<sequence>.log
//
// The capture tool may append to the name past ".log", e.g. when it rotates
// files on its own.
type Naming struct {
	Dir        string
	Prefix     string
	Suffix     string
	DateLayout string
}

func (n Naming) layout() string {
	if n.DateLayout == "" {
		return DefaultDateLayout
	}
	return n.DateLayout
}

// Date formats t the way it appears in capture file names.
func (n Naming) Date(t time.Time) string {
	return t.Format(n.layout())
}

// Path returns the path of the capture file for the given session.
func (n Naming) Path(date string, seq int) string {
	return filepath.Join(n.Dir, n.Prefix+date+n.Suffix+"."+strconv.Itoa(seq)+".log")
}

// Parse splits a capture file name into its date and sequence number. False
// is returned if the name is not a capture file name. The date may have any
// width, so every "<Suffix>.<digits>.log" tail is tried in turn and the first
// one leaving a date that round-trips through the layout wins.
func (n Naming) Parse(name string) (date string, seq int, ok bool) {
	rest := strings.TrimPrefix(name, n.Prefix)
	if len(rest) == len(name) && n.Prefix != "" {
		return "", 0, false
	}

	tail := n.Suffix + "."

	for i := 1; i+len(tail) <= len(rest); i++ {
		if !strings.HasPrefix(rest[i:], tail) {
			continue
		}

		seq, ok := parseSequence(rest[i+len(tail):])
		if !ok {
			continue
		}

		date := rest[:i]
		if !n.validDate(date) {
			continue
		}

		return date, seq, true
	}

	return "", 0, false
}

// validDate reports whether date is exactly what the layout produces for the
// time it parses to.
func (n Naming) validDate(date string) bool {
	t, err := time.Parse(n.layout(), date)
	return err == nil && n.Date(t) == date
}

// parseSequence parses "<digits>.log..." into the number.
func parseSequence(s string) (int, bool) {
	digits := 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		digits++
	}
	if digits == 0 || !strings.HasPrefix(s[digits:], ".log") {
		return 0, false
	}

	seq, err := strconv.Atoi(s[:digits])
	if err != nil {
		return 0, false
	}

	return seq, true
}

// NextSequence scans the capture directory and returns the sequence number to
// use for a new session on the given date: one past the highest number on
// disk for that date, or 0 if there is none. A missing directory counts as
// empty.
func (n Naming) NextSequence(date string) (int, error) {
	entries, err := os.ReadDir(n.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "failed to read capture dir")
	}

	next := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		d, seq, ok := n.Parse(entry.Name())
		if ok && d == date && seq >= next {
			next = seq + 1
		}
	}

	return next, nil
}

// Session is one run of the capture process.
type Session struct {
	Date     string
	Sequence int
	File     string

	proc exec.Process
}

// PID returns the session's process ID.
func (s *Session) PID() int {
	return s.proc.PID()
}
