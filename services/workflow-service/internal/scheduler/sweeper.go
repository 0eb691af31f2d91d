package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bookwell-app/bookwell/services/workflow-service/internal/model"
	"github.com/bookwell-app/bookwell/services/workflow-service/internal/workflow"
)

// Store answers the two questions a sweep asks: which bookings sit inside a
// trigger's window, and which already got their notification.
type Store interface {
	DueBookings(ctx context.Context, trigger string, from, to time.Time) ([]string, error)
	HasDelivered(ctx context.Context, bookingID, trigger string) (bool, error)
}

type Report struct {
	Processed int
	Errors    []string
}

// Sweeper evaluates every offset trigger against the clock. It is safe to
// run from overlapping invocations: the notification ledger is the only
// dedup guard, and a rare double send is accepted over a missed one.
type Sweeper struct {
	store     Store
	exec      *workflow.Executor
	logger    *slog.Logger
	tolerance time.Duration
	lookback  time.Duration
}

type SweeperConfig struct {
	Tolerance time.Duration
	Lookback  time.Duration
}

func NewSweeper(store Store, exec *workflow.Executor, logger *slog.Logger, cfg SweeperConfig) *Sweeper {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 15 * time.Minute
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 2 * time.Hour
	}
	return &Sweeper{
		store:     store,
		exec:      exec,
		logger:    logger,
		tolerance: cfg.Tolerance,
		lookback:  cfg.Lookback,
	}
}

// sweepOrder fixes iteration over the offset triggers so runs are
// reproducible.
var sweepOrder = []string{
	model.TriggerHoursBefore48,
	model.TriggerHoursBefore24,
	model.TriggerHoursBefore1,
	model.TriggerMinutesBefore30,
	model.TriggerHoursAfter24,
}

// Sweep runs one pass over all offset triggers. A trigger targets bookings
// whose start time is now+offset; the window widens by the tolerance on both
// sides and stretches back by the lookback so triggers missed during
// downtime still fire.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) Report {
	var report Report
	for _, trigger := range sweepOrder {
		offset := model.OffsetTriggers[trigger]
		target := now.Add(offset)
		from := target.Add(-s.tolerance - s.lookback)
		to := target.Add(s.tolerance)

		if err := s.sweepTrigger(ctx, trigger, from, to, &report); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", trigger, err))
			s.logger.Error("sweep trigger failed", "trigger", trigger, "err", err)
		}
	}
	return report
}

func (s *Sweeper) sweepTrigger(ctx context.Context, trigger string, from, to time.Time, report *Report) error {
	ids, err := s.store.DueBookings(ctx, trigger, from, to)
	if err != nil {
		return err
	}
	for _, id := range ids {
		done, err := s.store.HasDelivered(ctx, id, trigger)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s %s: ledger check: %v", trigger, id, err))
			continue
		}
		if done {
			continue
		}
		res, err := s.exec.ExecuteForTrigger(ctx, trigger, id)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s %s: %v", trigger, id, err))
			continue
		}
		report.Processed++
		if !res.Success() {
			report.Errors = append(report.Errors, res.Errors...)
		}
	}
	return nil
}
