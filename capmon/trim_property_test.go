package capmon

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"pgregory.net/rapid"
)

func genLogLimits(t *rapid.T) LogLimits {
	block := rapid.Int64Range(1, 512).Draw(t, "block")
	max := rapid.Int64Range(block+1, 8192).Draw(t, "max")
	allowance := rapid.Int64Range(1, max-1).Draw(t, "allowance")

	return LogLimits{MaxSize: max, Allowance: allowance, BlockSize: block}
}

// TestPropertyTrimKeepsTail verifies that a trim keeps exactly the newest
// bytes, about max-allowance of them, and never empties the file.
func TestPropertyTrimKeepsTail(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l := genLogLimits(t)
		if err := l.Validate(); err != nil {
			t.Fatalf("generated invalid limits %+v: %v", l, err)
		}

		size := rapid.IntRange(0, int(l.MaxSize)*3).Draw(t, "size")
		data := rapid.SliceOfN(rapid.Byte(), size, size).Draw(t, "data")

		dir, err := os.MkdirTemp("", "capmon-trim-*")
		if err != nil {
			t.Fatal(err)
		}
		defer os.RemoveAll(dir)

		path := filepath.Join(dir, "main.log")
		if err := os.WriteFile(path, data, 0600); err != nil {
			t.Fatal(err)
		}

		res, err := TrimFile(path, dir, l)
		if err != nil {
			t.Fatal(err)
		}

		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}

		if int64(len(data)) <= l.MaxSize {
			if res.Trimmed() || !bytes.Equal(got, data) {
				t.Fatalf("file of %d bytes within max %d was trimmed", len(data), l.MaxSize)
			}
			return
		}

		if !bytes.HasSuffix(data, got) {
			t.Fatal("retained bytes are not the tail of the original")
		}

		if len(got) == 0 {
			t.Fatal("trim emptied the file")
		}

		want := l.MaxSize - l.Allowance
		retained := int64(len(got))
		if retained < want || retained >= want+l.BlockSize {
			t.Fatalf("retained %d bytes, expected [%d, %d)", retained, want, want+l.BlockSize)
		}

		if res.Retained != retained || res.Skipped+retained != int64(len(data)) {
			t.Fatalf("result %+v does not match file of %d bytes", res, retained)
		}
	})
}
