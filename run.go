package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"git.unix.lgbt/diamondburned/capmon/capmon"
	"git.unix.lgbt/diamondburned/capmon/capmon/journal"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newRunCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Supervise the capture tool until signaled (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return start(cmd.Context(), load)
		},
	}
}

func start(ctx context.Context, load configLoader) error {
	cfg, err := load()
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}

	j, err := openJournal(ctx, cfg.LogPath(), cfg.Supervisor.LockWait)
	if err != nil {
		if errors.Is(err, journal.ErrLockedElsewhere) {
			// Non-fatal error.
			fmt.Println("capmon is already running")
			return nil
		}

		return errors.Wrap(err, "failed to acquire log lock")
	}
	defer j.Close()

	echo := journal.Discard
	if cfg.Log.Verbose {
		echo = journal.NewHumanWriter(os.Stdout)
	}

	opts := cfg.Options()
	opts.Log = j

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
	defer signal.Stop(sigs)

	s := capmon.NewSupervisor(opts, journal.MultiWriter(j, echo))
	s.Run(ctx, sigs)

	return nil
}

// openJournal locks the log file, waiting up to wait for a previous instance,
// e.g. one that cron is restarting, to let go of it.
func openJournal(ctx context.Context, path string, wait time.Duration) (*journal.FileLockJournaler, error) {
	if wait <= 0 {
		return journal.NewFileLockJournaler(path)
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	return journal.NewFileLockJournalerWait(ctx, path)
}
