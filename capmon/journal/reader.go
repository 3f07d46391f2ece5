package journal

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"git.unix.lgbt/diamondburned/capmon/capmon"
	"git.unix.lgbt/diamondburned/capmon/capmon/journal/backwardio"
	"github.com/pkg/errors"
)

// ErrMalformed is wrapped by errors returned for lines that are not valid
// journal entries. A trimmed journal usually starts with one.
var ErrMalformed = errors.New("malformed journal entry")

// Entry is a decoded journal line.
type Entry struct {
	Time  time.Time
	Event capmon.Event
}

// Reader reads journals written by Writer from the newest entry to the oldest.
type Reader struct {
	s *backwardio.Scanner
}

// NewReader creates a new journal reader.
func NewReader(r io.ReadSeeker) *Reader {
	return &Reader{backwardio.NewScanner(r)}
}

// Read reads the entry before the last one read. An EOF error is returned once
// the start of the file has been reached.
func (r *Reader) Read() (Entry, error) {
	var line []byte
	var err error

	for {
		line, err = r.s.ReadUntil('\n')
		if err != nil {
			return Entry{}, err
		}
		if len(line) > 0 {
			break
		}
	}

	var rawEvent struct {
		Time time.Time       `json:"time"`
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(line, &rawEvent); err != nil {
		return Entry{}, errors.Wrapf(ErrMalformed, "failed to decode JSON: %v", err)
	}

	event := capmon.NewEvent(rawEvent.Type)
	if event == nil {
		return Entry{}, errors.Wrapf(ErrMalformed, "unknown event %q", rawEvent.Type)
	}

	if err := json.Unmarshal(rawEvent.Data, event); err != nil {
		return Entry{}, errors.Wrapf(ErrMalformed, "failed to decode event data: %v", err)
	}

	return Entry{Time: rawEvent.Time, Event: event}, nil
}

// ReadLast reads up to n of the newest entries from the journal file at path,
// newest first. Malformed lines are skipped.
func ReadLast(path string, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := NewReader(f)
	var entries []Entry

	for len(entries) < n {
		e, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, ErrMalformed) {
				continue
			}
			return entries, err
		}

		entries = append(entries, e)
	}

	return entries, nil
}
