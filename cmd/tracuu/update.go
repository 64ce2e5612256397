package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tracuuvn/tracuu/config"
	"github.com/tracuuvn/tracuu/update"
)

func newUpdateCommand(opts *rootOptions) *cobra.Command {
	var checkOnly bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Check for a newer release and install it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig(opts.configPath)
			if err != nil {
				return err
			}
			if cfg.Update.ManifestURL == "" {
				return fmt.Errorf("update: no manifest_url configured")
			}
			mgr := update.NewManager(cfg.Update, cfg.LockFile)

			man, err := mgr.Check(cmd.Context())
			if err != nil {
				return err
			}
			if man == nil {
				fmt.Printf("Already up to date (version %s)\n", mgr.CurrentVersion())
				return nil
			}
			fmt.Printf("New version available: %s (installed: %s)\n", man.Version, mgr.CurrentVersion())
			if checkOnly {
				return nil
			}

			slog.Info("downloading release", slog.String("version", man.Version))
			staged, err := mgr.Download(cmd.Context(), man)
			if err != nil {
				return err
			}
			if err := mgr.Apply(cmd.Context(), staged); err != nil {
				return err
			}
			fmt.Printf("Updated to version %s\n", staged.Version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkOnly, "check-only", false, "report whether an update exists without installing it")
	return cmd
}
