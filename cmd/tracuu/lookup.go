package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/tracuuvn/tracuu/browser"
	"github.com/tracuuvn/tracuu/config"
	"github.com/tracuuvn/tracuu/history"
	"github.com/tracuuvn/tracuu/log"
	"github.com/tracuuvn/tracuu/lookup"
	"github.com/tracuuvn/tracuu/types"
)

func newPlateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plate <number>",
		Short: "Look up a vehicle license plate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := types.Request{
				Kind:   types.KindPlate,
				Fields: map[string]string{types.FieldPlateNumber: args[0]},
			}
			return runLookup(cmd.Context(), opts, req)
		},
	}
}

func newTitleCommand(opts *rootOptions) *cobra.Command {
	var parcel, mapSheet string
	cmd := &cobra.Command{
		Use:   "title <serial>",
		Short: "Look up a property-title certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := types.Request{
				Kind: types.KindTitle,
				Fields: map[string]string{
					types.FieldCertificateSerial: args[0],
					types.FieldParcelNumber:      parcel,
					types.FieldMapSheetNumber:    mapSheet,
				},
			}
			return runLookup(cmd.Context(), opts, req)
		},
	}
	cmd.Flags().StringVar(&parcel, "parcel", "", "parcel number, used by sites that search per parcel")
	cmd.Flags().StringVar(&mapSheet, "map-sheet", "", "map sheet number, used by sites that search per parcel")
	return cmd
}

func newPersonCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "person <citizen-id>",
		Short: "Look up an involved party by citizen id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := types.Request{
				Kind:   types.KindPerson,
				Fields: map[string]string{types.FieldCitizenID: args[0]},
			}
			return runLookup(cmd.Context(), opts, req)
		},
	}
}

func runLookup(ctx context.Context, opts *rootOptions, req types.Request) error {
	cfg, err := config.NewConfig(opts.configPath)
	if err != nil {
		return err
	}
	creds, err := config.LoadCredentials(opts.credentialsPath)
	if err != nil {
		return err
	}
	ctx = log.ContextWithLogger(ctx, slog.Default())

	// History is a convenience. A broken db file must not block a lookup.
	var hist *history.Store
	if store, err := history.Open(cfg.HistoryDB); err != nil {
		slog.Warn("history disabled", slog.String("err", err.Error()))
	} else {
		hist = store
		defer hist.Close()
	}

	orch := lookup.NewOrchestrator(cfg, creds, browser.NewManager(cfg.Browser), hist)
	results, final, err := orch.Run(ctx, req)
	printSummary(results)
	if err != nil {
		return err
	}
	if final.Status != types.StatusSuccess {
		return fmt.Errorf("lookup failed: %s", final.Message)
	}
	slog.Info(final.Message)
	if final.ResultVisible {
		slog.Info("the browser window stays open; close it when done")
	}
	return nil
}

func printSummary(results []lookup.SiteResult) {
	if len(results) == 0 {
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Site", "Status", "Attempts", "Message"})
	for _, r := range results {
		row := []string{r.SiteID, r.Outcome.Status.String(), strconv.Itoa(r.Attempts), r.Outcome.Message}
		if r.Outcome.Status == types.StatusSuccess {
			table.Append(row)
		} else {
			table.Rich(row, []tablewriter.Colors{
				{tablewriter.Normal, tablewriter.FgRedColor},
				{tablewriter.Normal, tablewriter.FgRedColor},
				{tablewriter.Normal, tablewriter.FgRedColor},
				{tablewriter.Normal, tablewriter.FgRedColor},
			})
		}
	}
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT})
	table.SetBorder(false)
	table.Render()
}
