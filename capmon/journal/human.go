package journal

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"strings"

	"git.unix.lgbt/diamondburned/capmon/capmon"
	"github.com/pkg/errors"
)

// HumanWriter is a journaler that writes events as logfmt-style lines meant
// for people, e.g. on stdout.
type HumanWriter struct {
	log *slog.Logger
}

var _ capmon.Journaler = (*HumanWriter)(nil)

// NewHumanWriter creates a new HumanWriter.
func NewHumanWriter(w io.Writer) *HumanWriter {
	return &HumanWriter{
		log: slog.New(slog.NewTextHandler(w, nil)),
	}
}

// Write writes the event as one line. Events about errors and warnings are
// logged at the warning level.
func (h *HumanWriter) Write(ev capmon.Event) error {
	attrs, err := eventAttrs(ev)
	if err != nil {
		return err
	}

	h.log.LogAttrs(context.Background(), eventLevel(ev), ev.Type(), attrs...)
	return nil
}

func eventLevel(ev capmon.Event) slog.Level {
	t := ev.Type()
	if strings.HasSuffix(t, "error") || t == "warning" {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// eventAttrs flattens the event's JSON fields into sorted attributes.
func eventAttrs(ev capmon.Event) ([]slog.Attr, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal event")
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal event")
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]slog.Attr, len(keys))
	for i, k := range keys {
		attrs[i] = slog.Any(k, fields[k])
	}

	return attrs, nil
}
