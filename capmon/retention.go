package capmon

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// DefaultRetentionDays is the number of days capture files are kept.
const DefaultRetentionDays = 14

// changeTime returns the file's status change time (ctime).
func changeTime(path string) (time.Time, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return time.Time{}, err
	}
	return time.Unix(st.Ctim.Unix()), nil
}

// PruneCaptures deletes the capture files in n.Dir whose change time is more
// than days before now. Files not named like capture files are never touched.
// A file that can't be inspected or deleted is journaled and skipped. The
// deleted paths are returned.
func PruneCaptures(n Naming, days int, now time.Time, j Journaler) ([]string, error) {
	entries, err := os.ReadDir(n.Dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read capture dir")
	}

	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)

	var deleted []string

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		if _, _, ok := n.Parse(entry.Name()); !ok {
			continue
		}

		path := filepath.Join(n.Dir, entry.Name())

		ctime, err := changeTime(path)
		if err != nil {
			j.Write(&EventPruneError{File: path, Error: err.Error()})
			continue
		}

		if !ctime.Before(cutoff) {
			continue
		}

		if err := os.Remove(path); err != nil {
			j.Write(&EventPruneError{File: path, Error: err.Error()})
			continue
		}

		deleted = append(deleted, path)
	}

	return deleted, nil
}
