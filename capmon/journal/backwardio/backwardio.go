// Package backwardio implements a scanner that reads delimited tokens
// backwards, from the end of a file towards its start.
package backwardio

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

var maxTok = bufio.MaxScanTokenSize

// Scanner reads tokens backwards, similar to bufio.Reader's ReadSlice except
// that the last token comes first.
type Scanner struct {
	r    io.ReadSeeker
	buf  []byte // unread data
	off  int64  // offset of buf[0] in r
	init bool
	done bool
}

// NewScanner creates a new backwards scanner.
func NewScanner(r io.ReadSeeker) *Scanner {
	return &Scanner{r: r}
}

// ReadUntil returns the token between the last unread delimiter and the end of
// the unread data. The delimiter is not part of the token. A file that ends
// with a delimiter yields an empty token first. io.EOF is returned once the
// first token in the file has been read. The returned slice is valid until the
// next call.
func (s *Scanner) ReadUntil(delim byte) ([]byte, error) {
	if !s.init {
		end, err := s.r.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, errors.Wrap(err, "failed to find end of file")
		}

		s.off = end
		s.init = true
		s.done = end == 0
	}

	for !s.done {
		if i := bytes.LastIndexByte(s.buf, delim); i >= 0 {
			tok := s.buf[i+1:]
			s.buf = s.buf[:i]
			return tok, nil
		}

		if s.off == 0 {
			// Nothing left before the buffer, so all of it is the first token.
			tok := s.buf
			s.buf = nil
			s.done = true
			return tok, nil
		}

		if len(s.buf) >= maxTok {
			return nil, bufio.ErrTooLong
		}

		if err := s.fill(); err != nil {
			return nil, err
		}
	}

	return nil, io.EOF
}

// fill prepends as much of the data before the buffer as fits in maxTok.
func (s *Scanner) fill() error {
	n := int64(maxTok - len(s.buf))
	if n > s.off {
		n = s.off
	}

	start := s.off - n

	if _, err := s.r.Seek(start, io.SeekStart); err != nil {
		return errors.Wrap(err, "failed to seek backwards")
	}

	chunk := make([]byte, int(n)+len(s.buf))

	if _, err := io.ReadFull(s.r, chunk[:n]); err != nil {
		return errors.Wrap(err, "failed to read seeked chunk")
	}

	copy(chunk[n:], s.buf)

	s.buf = chunk
	s.off = start

	return nil
}
