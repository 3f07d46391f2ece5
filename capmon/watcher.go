package capmon

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Watcher watches the capture directory for files that disappear.
type Watcher struct {
	// Removed receives the path of every file removed from the directory.
	Removed chan string

	w   *fsnotify.Watcher
	j   Journaler
	dir string
}

// TryWatch attempts to watch the given directory asynchronously, but it will
// log into the journaler if, for some reason, it fails to watch the directory.
func TryWatch(ctx context.Context, dir string, j Journaler) *Watcher {
	w := newWatcher(dir, j)

	go func() {
		if err := w.init(); err != nil {
			j.Write(&EventWarning{
				Component: "watcher",
				Error:     fmt.Sprintf("not watching dir because: %v", err),
			})
			return
		}

		w.watch(ctx)
	}()

	return w
}

// NewWatcher watches the given directory. The watcher is stopped once the
// given context is canceled.
func NewWatcher(ctx context.Context, dir string, j Journaler) (*Watcher, error) {
	w := newWatcher(dir, j)
	if err := w.init(); err != nil {
		return nil, err
	}

	go w.watch(ctx)
	return w, nil
}

func newWatcher(dir string, j Journaler) *Watcher {
	return &Watcher{
		Removed: make(chan string),
		j:       j,
		dir:     filepath.Clean(dir),
	}
}

func (w *Watcher) init() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}

	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return errors.Wrap(err, "failed to watch dir")
	}

	w.w = watcher
	return nil
}

func (w *Watcher) watch(ctx context.Context) {
	defer w.w.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}

			w.j.Write(&EventWarning{
				Component: "watcher",
				Error:     "inotify error: " + err.Error(),
			})

		case evt, ok := <-w.w.Events:
			if !ok {
				return
			}

			path, removed := w.translate(evt)
			if !removed {
				continue
			}

			select {
			case w.Removed <- path:
			case <-ctx.Done():
				return
			}
		}
	}
}

// translate returns the path of the removed file if evt is a removal of a
// direct child of the watched directory. Renames are not removals: the capture
// tool may rotate its own files.
func (w *Watcher) translate(evt fsnotify.Event) (string, bool) {
	if !evt.Has(fsnotify.Remove) {
		return "", false
	}

	path := filepath.Clean(evt.Name)
	if filepath.Dir(path) != w.dir {
		return "", false
	}

	return path, true
}
