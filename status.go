package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"git.unix.lgbt/diamondburned/capmon/capmon"
	"git.unix.lgbt/diamondburned/capmon/capmon/exec"
	"git.unix.lgbt/diamondburned/capmon/capmon/journal"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// statusScan is the number of entries looked at to find the current capture
// session.
const statusScan = 500

var (
	timeStyle  = lipgloss.NewStyle().Faint(true)
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	labelStyle = lipgloss.NewStyle().Bold(true)
)

func newStatusCmd(load configLoader) *cobra.Command {
	var lines int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the capture session and the newest journal entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			n := lines
			if n < statusScan {
				n = statusScan
			}

			entries, err := journal.ReadLast(cfg.LogPath(), n)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Fprintln(cmd.OutOrStdout(), "no log at", cfg.LogPath())
					return nil
				}
				return errors.Wrap(err, "failed to read log")
			}

			renderStatus(cmd.OutOrStdout(), entries, lines, exec.PIDAlive)
			return nil
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "number of journal entries to show")

	return cmd
}

// currentSession returns the newest spawn event if nothing after it says the
// capture process is gone. entries must be newest first.
func currentSession(entries []journal.Entry) *capmon.EventCaptureSpawned {
	for _, e := range entries {
		switch ev := e.Event.(type) {
		case *capmon.EventCaptureSpawned:
			return ev
		case *capmon.EventCaptureStopped, *capmon.EventCaptureExited, *capmon.EventSupervisorStopped:
			return nil
		}
	}
	return nil
}

func renderStatus(w io.Writer, entries []journal.Entry, lines int, alive func(pid int) bool) {
	state := "not running"
	if sess := currentSession(entries); sess != nil {
		if alive(sess.PID) {
			state = fmt.Sprintf("running (pid %d, %s)", sess.PID, sess.File)
		} else {
			state = fmt.Sprintf("dead (pid %d gone without a journal entry)", sess.PID)
		}
	}

	fmt.Fprintln(w, labelStyle.Render("capture:"), state)

	if lines > len(entries) {
		lines = len(entries)
	}

	// Oldest first, like a log.
	for i := lines - 1; i >= 0; i-- {
		fmt.Fprintln(w, renderEntry(entries[i]))
	}
}

func renderEntry(e journal.Entry) string {
	typ := e.Event.Type()

	style := infoStyle
	if strings.HasSuffix(typ, "error") || typ == "warning" {
		style = warnStyle
	}

	data, err := json.Marshal(e.Event)
	if err != nil {
		data = []byte(err.Error())
	}

	return strings.Join([]string{
		timeStyle.Render(e.Time.Local().Format("2006-01-02 15:04:05")),
		style.Render(typ),
		string(data),
	}, "  ")
}
