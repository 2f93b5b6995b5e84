package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one poll cycle over tracked batches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.close()

		stats, err := app.poller.PollOnce(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("checked=%d completed=%d failed=%d in_flight=%d errors=%d\n",
			stats.Checked, stats.Completed, stats.Failed, stats.InFlight, stats.Errors)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pollCmd)
}
