package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <batch-id>",
	Short: "Cancel a non-terminal batch and fail its in-flight items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.close()

		record, err := app.poller.Cancel(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("batch %s is now %s\n", record.ID, record.Status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
