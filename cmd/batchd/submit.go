package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/99-NinetyNine/cv-jd-matching/internal/domain"
)

var submitCmd = &cobra.Command{
	Use:   "submit <type>",
	Short: "Size and submit one batch for the given workload type",
	Long: "Size and submit one batch for the given workload type.\n" +
		"Types: " + joinBatchTypes(),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batchType, err := domain.ParseBatchType(args[0])
		if err != nil {
			return err
		}

		app, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.close()

		task, err := app.registry.Task(batchType)
		if err != nil {
			return err
		}

		record, err := app.submitter.Submit(cmd.Context(), task)
		if err != nil {
			return err
		}
		if record == nil {
			fmt.Println("nothing to submit")
			return nil
		}
		fmt.Printf("submitted batch %s (remote %s, %d requests)\n",
			record.ID, record.RemoteID, record.Counts.Total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(submitCmd)
}

func joinBatchTypes() string {
	types := make([]string, len(domain.AllBatchTypes))
	for i, t := range domain.AllBatchTypes {
		types[i] = string(t)
	}
	return strings.Join(types, ", ")
}
