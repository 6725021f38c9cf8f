package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newResyncCommand() *cobra.Command {
	var hours int

	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Poll platforms once for every publication not synced recently",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if hours <= 0 {
				hours = a.cfg.Publish.StaleHours
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Publish.SyncInterval)
			defer cancel()

			report, err := a.publisher.SyncStale(ctx, hours)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked %d, updated %d, failed %d\n",
				report.Checked, report.Updated, report.Failed)
			return nil
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 0, "Sync publications not synced for this many hours (defaults to publish.stale_hours)")

	return cmd
}
