package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileLimit int

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Adopt remote batches that have no local record",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.close()

		adopted, err := app.poller.Reconcile(cmd.Context(), reconcileLimit)
		if err != nil {
			return err
		}
		fmt.Printf("adopted %d orphan batches\n", adopted)
		return nil
	},
}

func init() {
	reconcileCmd.Flags().IntVar(&reconcileLimit, "limit", 100, "maximum remote batches to inspect")
	rootCmd.AddCommand(reconcileCmd)
}
