package capmon

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// LogLimits describes when and how far the log file is trimmed.
type LogLimits struct {
	MaxSize   int64 // trim once the file grows past this many bytes
	Allowance int64 // headroom kept below MaxSize after a trim
	BlockSize int64 // trim granularity
}

// Validate returns an error if the limits cannot be used for trimming.
func (l LogLimits) Validate() error {
	switch {
	case l.MaxSize <= 0:
		return errors.Errorf("max log size %d is not a positive integer", l.MaxSize)
	case l.Allowance <= 0:
		return errors.Errorf("allowance %d is not a positive integer", l.Allowance)
	case l.BlockSize <= 0:
		return errors.Errorf("block size %d is not a positive integer", l.BlockSize)
	case l.Allowance >= l.MaxSize:
		return errors.Errorf("allowance %d must be less than max log size %d", l.Allowance, l.MaxSize)
	case l.MaxSize <= l.BlockSize:
		return errors.Errorf("max log size %d must be larger than block size %d", l.MaxSize, l.BlockSize)
	}
	return nil
}

// SkipBlocks returns the number of blocks to cut off the front of a file of
// the given size. It is 0 if the file is not over MaxSize. The division
// rounds down, so the retained tail may be up to one block larger than
// MaxSize-Allowance.
func (l LogLimits) SkipBlocks(size int64) int64 {
	if size <= l.MaxSize {
		return 0
	}
	return (size - (l.MaxSize - l.Allowance)) / l.BlockSize
}

// TrimResult describes a finished trim.
type TrimResult struct {
	OldSize  int64
	Skipped  int64
	Retained int64
}

// Trimmed returns true if any bytes were cut off.
func (r TrimResult) Trimmed() bool { return r.Skipped > 0 }

// TrimFile cuts whole blocks off the front of the file at path if it is larger
// than l.MaxSize. The retained tail is first copied into a temporary file in
// tmpDir; only then is the file rewritten. The file is rewritten in place, so
// it keeps its inode and any lock held on it.
func TrimFile(path, tmpDir string, l LogLimits) (TrimResult, error) {
	s, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return TrimResult{}, nil
		}
		return TrimResult{}, errors.Wrap(err, "failed to stat log file")
	}

	res := TrimResult{OldSize: s.Size()}

	skip := l.SkipBlocks(res.OldSize)
	if skip == 0 {
		res.Retained = res.OldSize
		return res, nil
	}

	res.Skipped = skip * l.BlockSize

	tmp, err := copyTail(path, tmpDir, res.Skipped)
	if err != nil {
		return TrimResult{}, err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	n, err := overwrite(path, tmp)
	if err != nil {
		return TrimResult{}, err
	}

	res.Retained = n
	return res, nil
}

// copyTail copies everything after offset in path into a new temporary file.
// The returned file is rewound.
func copyTail(path, tmpDir string, offset int64) (*os.File, error) {
	src, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open log file")
	}
	defer src.Close()

	if _, err := src.Seek(offset, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "failed to seek log file")
	}

	tmp, err := os.CreateTemp(tmpDir, filepath.Base(path)+".trim-*")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create temporary file")
	}

	fail := func(err error, msg string) (*os.File, error) {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, errors.Wrap(err, msg)
	}

	if _, err := io.Copy(tmp, src); err != nil {
		return fail(err, "failed to copy log tail")
	}

	if err := tmp.Sync(); err != nil {
		return fail(err, "failed to sync temporary file")
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fail(err, "failed to rewind temporary file")
	}

	return tmp, nil
}

// overwrite writes r over the start of the file at path, then cuts the file
// down to what was written. The file never goes empty in between.
func overwrite(path string, r io.Reader) (int64, error) {
	dst, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return 0, errors.Wrap(err, "failed to open log file for writing")
	}
	defer dst.Close()

	n, err := io.Copy(dst, r)
	if err != nil {
		return n, errors.Wrap(err, "failed to write retained tail")
	}

	if err := dst.Truncate(n); err != nil {
		return n, errors.Wrap(err, "failed to truncate log file")
	}

	if err := dst.Sync(); err != nil {
		return n, errors.Wrap(err, "failed to sync log file")
	}

	return n, nil
}
