package main

import (
	"github.com/spf13/cobra"

	"github.com/tracuuvn/tracuu/config"
	"github.com/tracuuvn/tracuu/log"
)

type rootOptions struct {
	configPath      string
	credentialsPath string
	debug           bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "tracuu",
		Short:         "Look up vehicle plates and title certificates on the registered portals",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.Debug = opts.debug
			log.InitializeDefaultLogger()
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yml", "path to the configuration file")
	cmd.PersistentFlags().StringVar(&opts.credentialsPath, "credentials", "credentials.yml", "path to the credentials file")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "print debug logs and save failure screenshots")

	cmd.AddCommand(
		newPlateCommand(opts),
		newTitleCommand(opts),
		newPersonCommand(opts),
		newUpdateCommand(opts),
		newHistoryCommand(opts),
		newVersionCommand(),
	)
	return cmd
}
