package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Worker runs the sweeper on a ticker until the context ends.
type Worker struct {
	sweeper  *Sweeper
	logger   *slog.Logger
	interval time.Duration
}

func NewWorker(sweeper *Sweeper, logger *slog.Logger, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Worker{
		sweeper:  sweeper,
		logger:   logger,
		interval: interval,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := w.sweeper.Sweep(ctx, time.Now().UTC())
			if len(report.Errors) > 0 {
				w.logger.Error("sweep finished with errors", "processed", report.Processed, "errors", len(report.Errors))
			} else if report.Processed > 0 {
				w.logger.Info("sweep finished", "processed", report.Processed)
			}
		}
	}
}
