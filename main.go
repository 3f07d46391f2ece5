package main

import (
	"fmt"
	"os"
	"path/filepath"

	"git.unix.lgbt/diamondburned/capmon/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// configLoader loads the configuration once flags are parsed.
type configLoader func() (*config.Config, error)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Errors go to stdout so that they end up next to the echoed journal.
		fmt.Fprintln(os.Stdout, filepath.Base(os.Args[0])+":", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	load := func() (*config.Config, error) {
		return config.Load(v, configFile)
	}

	run := newRunCmd(load)

	root := &cobra.Command{
		Use:   "capmon",
		Short: "Keep a packet capture tool running and its files tidy",
		Long: "capmon supervises a packet capture tool. It restarts the tool on every\n" +
			"new day, deletes old capture files and keeps its own log file small.",
		Args:          cobra.NoArgs,
		RunE:          run.RunE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "config file path (default: capmon.yaml in "+config.ConfigDir()+")")
	pf.BoolP("verbose", "v", false, "echo journal events to stdout")
	pf.StringP("log", "l", "", "log file path, joined with log.dir if a bare file name")
	pf.StringP("dir", "d", "", "capture directory")
	pf.DurationP("wait", "w", 0, "wait this long for a running instance to release the log file")

	v.BindPFlag("log.verbose", pf.Lookup("verbose"))
	v.BindPFlag("log.file", pf.Lookup("log"))
	v.BindPFlag("capture.dir", pf.Lookup("dir"))
	v.BindPFlag("supervisor.lock_wait", pf.Lookup("wait"))

	root.AddCommand(
		run,
		newStatusCmd(load),
		newConfigCmd(load),
		newCronCmd(&configFile),
	)

	return root
}
