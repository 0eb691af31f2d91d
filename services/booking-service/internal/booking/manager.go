package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bookwell-app/bookwell/services/booking-service/internal/availability"
	"github.com/bookwell-app/bookwell/services/booking-service/internal/model"
	"github.com/bookwell-app/bookwell/services/booking-service/internal/policy"
)

// Manager owns booking admission and lifecycle transitions. All mutations run
// inside one store transaction so the availability check and the insert are
// atomic: two concurrent creates for the same slot cannot both commit.
type Manager struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewManager(store Store, logger *slog.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create admits one booking. The admission check runs inside the transaction
// after locking the service row, never trusting a prior read. On a commit
// conflict the whole check is retried once; a second conflict means the slot
// genuinely filled up and the caller gets ErrSlotUnavailable.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (model.Booking, error) {
	if req.StartTime.IsZero() {
		return model.Booking{}, fmt.Errorf("start time required")
	}
	// A slot in the past can never be admitted; treat it like any other
	// unavailable slot so the caller gets the alternate-slot flow.
	if req.StartTime.Before(m.now()) {
		return model.Booking{}, ErrSlotUnavailable
	}

	var out model.Booking
	attempt := func() error {
		return m.store.InTx(ctx, func(tx Tx) error {
			svc, err := tx.LockService(ctx, req.ProviderID, req.ServiceID)
			if err != nil {
				return err
			}

			start := req.StartTime.UTC()
			end := start.Add(time.Duration(svc.DurationMins) * time.Minute)
			window := availability.OccupiedWindow(svc, start)

			snap, err := tx.Snapshot(ctx, svc, window)
			if err != nil {
				return err
			}

			decision := availability.Admit(snap, start, end)
			if !decision.OK {
				return ErrSlotUnavailable
			}

			staffID := ""
			if svc.RequiresStaff {
				// Deterministic: first free staff in stable roster order.
				staffID = decision.AvailableStaff[0]
			}

			b := model.Booking{
				ID:               uuid.NewString(),
				ProviderID:       req.ProviderID,
				CustomerID:       req.CustomerID,
				ServiceID:        svc.ID,
				StaffID:          staffID,
				CustomerName:     req.CustomerName,
				CustomerEmail:    req.CustomerEmail,
				CustomerPhone:    req.CustomerPhone,
				StartTime:        start,
				EndTime:          end,
				Status:           model.StatusPending,
				TotalAmountCents: req.TotalAmountCents,
				PaymentRef:       req.PaymentRef,
				CreatedAt:        m.now(),
			}
			if err := tx.InsertBooking(ctx, &b); err != nil {
				return err
			}
			if err := m.appendLifecycleEvent(ctx, tx, EventCreated, b); err != nil {
				return err
			}
			out = b
			return nil
		})
	}

	err := attempt()
	if errors.Is(err, ErrTxConflict) {
		m.logger.Info("booking create conflict, retrying admission", "provider_id", req.ProviderID, "service_id", req.ServiceID)
		err = attempt()
	}
	if errors.Is(err, ErrTxConflict) {
		return model.Booking{}, ErrSlotUnavailable
	}
	if err != nil {
		return model.Booking{}, err
	}
	return out, nil
}

// Confirm moves a pending booking to confirmed.
func (m *Manager) Confirm(ctx context.Context, providerID, bookingID string) (model.Booking, error) {
	return m.transition(ctx, providerID, bookingID, model.StatusConfirmed, EventConfirmed, model.StatusPending)
}

// Complete moves a confirmed booking to completed.
func (m *Manager) Complete(ctx context.Context, providerID, bookingID string) (model.Booking, error) {
	return m.transition(ctx, providerID, bookingID, model.StatusCompleted, EventCompleted, model.StatusConfirmed)
}

// MarkNoShow records that the customer did not appear.
func (m *Manager) MarkNoShow(ctx context.Context, providerID, bookingID string) (model.Booking, error) {
	return m.transition(ctx, providerID, bookingID, model.StatusNoShow, EventNoShow, model.StatusPending, model.StatusConfirmed)
}

// Cancel moves a non-terminal booking to cancelled and computes the refund
// from the provider's tiered cancellation policy (flat 24-hour cutoff when no
// policy is configured). Cancelling an already-cancelled booking is a no-op
// returning the current state. The refund itself is executed by the caller
// after commit; failures there never undo the cancellation.
func (m *Manager) Cancel(ctx context.Context, providerID, bookingID, reason string) (model.Booking, error) {
	var out model.Booking
	err := m.store.InTx(ctx, func(tx Tx) error {
		b, err := tx.LockBooking(ctx, providerID, bookingID)
		if err != nil {
			return err
		}
		if b.Status == model.StatusCancelled {
			out = b
			return nil
		}
		if model.IsTerminal(b.Status) {
			return ErrInvalidTransition
		}

		pol, hasPolicy, err := tx.CancellationPolicy(ctx, providerID)
		if err != nil {
			return err
		}
		now := m.now()
		percent := policy.RefundPercent(pol, hasPolicy, b.StartTime, now)

		b.Status = model.StatusCancelled
		b.CancelReason = reason
		b.CancelledAt = &now
		b.RefundCents = b.TotalAmountCents * int64(percent) / 100
		if b.RefundCents > 0 {
			b.RefundStatus = "pending"
		} else {
			b.RefundStatus = "none"
		}

		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		if err := m.appendLifecycleEvent(ctx, tx, EventCancelled, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	return out, nil
}

// SlotStatus is one candidate slot with its current admission state, used to
// paint per-day availability on calendars.
type SlotStatus struct {
	Start               time.Time
	End                 time.Time
	Available           bool
	AvailableStaffCount int
}

// DayAvailability computes the slot grid for a date and decides each slot
// against a single snapshot covering the whole day. Slots whose start has
// already passed are dropped. It reads outside any transaction; slight
// staleness is fine because Create re-checks authoritatively.
func (m *Manager) DayAvailability(ctx context.Context, providerID, serviceID string, date time.Time) ([]SlotStatus, error) {
	svc, err := m.store.ReadService(ctx, providerID, serviceID)
	if err != nil {
		return nil, err
	}
	tz, err := m.store.ReadTimezone(ctx, providerID)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}

	localDate := date.In(loc)
	hours, err := m.store.ReadHours(ctx, providerID, localDate.Weekday())
	if err != nil {
		return nil, err
	}

	grid := availability.Grid(localDate, hours, loc, svc)
	if len(grid) == 0 {
		return nil, nil
	}

	window := availability.Interval{
		Start: availability.OccupiedWindow(svc, grid[0].Start).Start,
		End:   availability.OccupiedWindow(svc, grid[len(grid)-1].Start).End,
	}
	snap, err := m.store.ReadSnapshot(ctx, svc, window)
	if err != nil {
		return nil, err
	}

	now := m.now()
	out := make([]SlotStatus, 0, len(grid))
	for _, slot := range grid {
		if slot.Start.Before(now) {
			continue
		}
		d := availability.Admit(snap, slot.Start, slot.End)
		out = append(out, SlotStatus{
			Start:               slot.Start,
			End:                 slot.End,
			Available:           d.OK,
			AvailableStaffCount: len(d.AvailableStaff),
		})
	}
	return out, nil
}

func (m *Manager) transition(ctx context.Context, providerID, bookingID, toStatus, eventType string, fromStatuses ...string) (model.Booking, error) {
	var out model.Booking
	err := m.store.InTx(ctx, func(tx Tx) error {
		b, err := tx.LockBooking(ctx, providerID, bookingID)
		if err != nil {
			return err
		}
		allowed := false
		for _, s := range fromStatuses {
			if b.Status == s {
				allowed = true
				break
			}
		}
		if !allowed {
			return ErrInvalidTransition
		}
		b.Status = toStatus
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		if err := m.appendLifecycleEvent(ctx, tx, eventType, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	return out, nil
}

func (m *Manager) appendLifecycleEvent(ctx context.Context, tx Tx, eventType string, b model.Booking) error {
	payload, err := json.Marshal(map[string]any{
		"booking_id":         b.ID,
		"provider_id":        b.ProviderID,
		"customer_id":        b.CustomerID,
		"service_id":         b.ServiceID,
		"staff_id":           b.StaffID,
		"customer_email":     b.CustomerEmail,
		"start_time":         b.StartTime.UTC().Format(time.RFC3339),
		"end_time":           b.EndTime.UTC().Format(time.RFC3339),
		"status":             b.Status,
		"total_amount_cents": b.TotalAmountCents,
	})
	if err != nil {
		return err
	}
	return tx.AppendEvent(ctx, eventType, b.ID, payload)
}
