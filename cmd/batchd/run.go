package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/99-NinetyNine/cv-jd-matching/internal/domain"
	"github.com/99-NinetyNine/cv-jd-matching/internal/logger"
)

var runInterval time.Duration

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the orchestration loop: submit every workload, then poll, until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer app.close()

		log := logger.GetDefault()
		log.WithField("interval", runInterval.String()).Info("Starting orchestration loop")

		ticker := time.NewTicker(runInterval)
		defer ticker.Stop()

		for {
			app.cycle(ctx)
			select {
			case <-ctx.Done():
				log.Info("Shutting down")
				return nil
			case <-ticker.C:
			}
		}
	},
}

func init() {
	runCmd.Flags().DurationVar(&runInterval, "interval", 30*time.Second, "delay between orchestration cycles")
	rootCmd.AddCommand(runCmd)
}

// cycle submits one batch per workload type and then polls. A failure in one
// step is logged and the cycle continues.
func (a *app) cycle(ctx context.Context) {
	log := logger.FromContext(ctx)

	for _, batchType := range domain.AllBatchTypes {
		task, err := a.registry.Task(batchType)
		if err != nil {
			log.WithError(err).Error("Missing task, skipping")
			continue
		}
		if _, err := a.submitter.Submit(ctx, task); err != nil {
			log.WithField(logger.FieldBatchType, string(batchType)).
				WithError(err).Error("Submission failed")
		}
		if ctx.Err() != nil {
			return
		}
	}

	if _, err := a.poller.PollOnce(ctx); err != nil {
		log.WithError(err).Error("Poll cycle failed")
	}
}
