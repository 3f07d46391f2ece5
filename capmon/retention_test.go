package capmon

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

func TestPruneCaptures(t *testing.T) {
	const day = 24 * time.Hour

	setup := func(t *testing.T) (Naming, []string) {
		dir := t.TempDir()
		n := Naming{Dir: dir, Prefix: "cap-", Suffix: "-eth0"}

		captures := []string{
			touch(t, dir, "cap-20261001-eth0.0.log"),
			touch(t, dir, "cap-20261001-eth0.1.log.gz"),
			touch(t, dir, "cap-20261016-eth0.0.log"),
		}
		sort.Strings(captures)

		touch(t, dir, "main.log")
		touch(t, dir, "cap-20261001-eth1.0.log")
		touch(t, dir, "notes.txt")

		if err := os.Mkdir(filepath.Join(dir, "cap-20261001-eth0.9.log"), 0750); err != nil {
			t.Fatal("failed to mkdir:", err)
		}

		return n, captures
	}

	t.Run("within retention", func(t *testing.T) {
		n, _ := setup(t)
		j := mockJournal{}

		deleted, err := PruneCaptures(n, 14, time.Now().Add(13*day), &j)
		if err != nil {
			t.Fatal("failed to prune:", err)
		}
		if len(deleted) != 0 {
			t.Errorf("deleted %q, expected nothing", deleted)
		}

		j.Verify(t, true, nil)
	})

	t.Run("past retention", func(t *testing.T) {
		n, captures := setup(t)
		j := mockJournal{}

		deleted, err := PruneCaptures(n, 14, time.Now().Add(15*day), &j)
		if err != nil {
			t.Fatal("failed to prune:", err)
		}

		sort.Strings(deleted)
		if !equalStrings(deleted, captures) {
			t.Errorf("deleted %q, expected %q", deleted, captures)
		}

		entries, err := os.ReadDir(n.Dir)
		if err != nil {
			t.Fatal("failed to read dir:", err)
		}

		var left []string
		for _, entry := range entries {
			left = append(left, entry.Name())
		}

		expect := []string{"cap-20261001-eth0.9.log", "cap-20261001-eth1.0.log", "main.log", "notes.txt"}
		if !equalStrings(left, expect) {
			t.Errorf("left %q, expected %q", left, expect)
		}

		j.Verify(t, true, nil)
	})

	t.Run("variable width date", func(t *testing.T) {
		dir := t.TempDir()
		n := Naming{Dir: dir, Prefix: "cap-", DateLayout: "2006-1-2"}

		expect := []string{
			touch(t, dir, "cap-2026-1-6.0.log"),
			touch(t, dir, "cap-2026-10-16.5.log"),
		}

		deleted, err := PruneCaptures(n, 14, time.Now().Add(15*day), &mockJournal{})
		if err != nil {
			t.Fatal("failed to prune:", err)
		}

		sort.Strings(deleted)
		if !equalStrings(deleted, expect) {
			t.Errorf("deleted %q, expected %q", deleted, expect)
		}
	})

	t.Run("missing dir", func(t *testing.T) {
		n := Naming{Dir: filepath.Join(t.TempDir(), "nope")}

		if _, err := PruneCaptures(n, 14, time.Now(), &mockJournal{}); err == nil {
			t.Fatal("expected error on missing dir")
		}
	})
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
