package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/edgard/instabridge/internal/logger"
)

// Runner drives the orchestrator on the configured interval using a
// gocron duration job. Run blocks until the context is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.cfg.Enabled {
		o.logger.Info("Periodic sync disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLogger(logger.NewGocronLogger(o.logger)))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(o.cfg.Interval),
		gocron.NewTask(func() {
			start := time.Now()
			o.logger.Info("Running scheduled sync")
			if err := o.RunCycle(ctx); err != nil {
				o.logger.Error("Scheduled sync failed", "error", err)
			}
			o.logger.Info("Finished scheduled sync", "duration", time.Since(start))
		}),
		gocron.WithName("instagram_sync"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}

	scheduler.Start()
	o.setRunning(true)
	o.logger.Info("Sync scheduler started", "interval", o.cfg.Interval)

	<-ctx.Done()

	o.setRunning(false)
	if err := scheduler.Shutdown(); err != nil {
		o.logger.Error("Error during scheduler shutdown", "error", err)
	} else {
		o.logger.Info("Sync scheduler stopped")
	}
	return ctx.Err()
}
