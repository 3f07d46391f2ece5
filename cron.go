package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newCronCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cron",
		Short: "Print crontab lines that keep capmon running",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cron(cmd, *configFile)
		},
	}
}

func cron(cmd *cobra.Command, configFile string) {
	crontimes := [...]string{
		"# Start capmon immediately on startup.",
		"@reboot",
		"# Restart capmon within a minute if it dies. The log lock keeps it unique.",
		"* * * * *",
	}

	command := []string{strconv.Quote(os.Args[0]), "run"}
	if configFile != "" {
		command = append(command, "-c", strconv.Quote(configFile))
	}

	for _, crontime := range crontimes {
		if strings.HasPrefix(crontime, "#") {
			fmt.Fprintln(cmd.OutOrStdout(), crontime)
			continue
		}

		fmt.Fprintln(cmd.OutOrStdout(), crontime, strings.Join(command, " "))
	}
}
