package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bookwell-app/bookwell/services/workflow-service/internal/model"
	"github.com/bookwell-app/bookwell/services/workflow-service/internal/webhook"
	"github.com/bookwell-app/bookwell/services/workflow-service/internal/workflow"
)

// memStore backs both the sweeper and the executor, with the ledger shared
// so a sweep's sends suppress the next sweep.
type memStore struct {
	bookings  map[string]model.BookingDetails
	workflows []model.Workflow
	ledger    []model.Notification
}

func (s *memStore) BookingDetails(_ context.Context, bookingID string) (model.BookingDetails, error) {
	b, ok := s.bookings[bookingID]
	if !ok {
		return model.BookingDetails{}, workflow.ErrBookingNotFound
	}
	return b, nil
}

func (s *memStore) ActiveWorkflows(_ context.Context, providerID, trigger string) ([]model.Workflow, error) {
	var out []model.Workflow
	for _, wf := range s.workflows {
		if wf.ProviderID == providerID && wf.Trigger == trigger && wf.IsActive {
			out = append(out, wf)
		}
	}
	return out, nil
}

func (s *memStore) RecordNotification(_ context.Context, n model.Notification) error {
	s.ledger = append(s.ledger, n)
	return nil
}

func (s *memStore) DueBookings(_ context.Context, trigger string, from, to time.Time) ([]string, error) {
	var ids []string
	for id, b := range s.bookings {
		hasWorkflow := false
		for _, wf := range s.workflows {
			if wf.ProviderID == b.ProviderID && wf.Trigger == trigger && wf.IsActive {
				hasWorkflow = true
				break
			}
		}
		if !hasWorkflow {
			continue
		}
		if !b.StartTime.Before(from) && b.StartTime.Before(to) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memStore) HasDelivered(_ context.Context, bookingID, trigger string) (bool, error) {
	for _, n := range s.ledger {
		if n.BookingID == bookingID && n.Trigger == trigger &&
			(n.Status == model.NotificationSent || n.Status == model.NotificationDelivered) {
			return true, nil
		}
	}
	return false, nil
}

type countingEmail struct{ sent int }

func (c *countingEmail) Send(string, string, string) error {
	c.sent++
	return nil
}

func reminderWorkflow(trigger string) model.Workflow {
	return model.Workflow{
		ID:         "wf-" + trigger,
		ProviderID: "p1",
		Trigger:    trigger,
		Actions: []model.Action{{
			Type:      model.ActionEmail,
			Recipient: model.RecipientCustomer,
			Subject:   "Reminder",
			Body:      "See you at {{booking_time}}",
		}},
		IsActive: true,
	}
}

func newSweeper(store *memStore, mail *countingEmail) *Sweeper {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exec := workflow.NewExecutor(store, mail, webhook.NewHTTPSender(), logger)
	return NewSweeper(store, exec, logger, SweeperConfig{})
}

func TestSweep_FiresReminderInsideWindow(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	store := &memStore{
		bookings: map[string]model.BookingDetails{
			"b1": {
				ID: "b1", ProviderID: "p1",
				CustomerEmail: "ada@example.com",
				StartTime:     now.Add(24 * time.Hour),
				EndTime:       now.Add(25 * time.Hour),
				Status:        "confirmed",
				Timezone:      "UTC",
			},
		},
		workflows: []model.Workflow{reminderWorkflow(model.TriggerHoursBefore24)},
	}
	mail := &countingEmail{}

	report := newSweeper(store, mail).Sweep(context.Background(), now)
	if len(report.Errors) != 0 {
		t.Fatalf("errors: %v", report.Errors)
	}
	if report.Processed != 1 || mail.sent != 1 {
		t.Fatalf("processed=%d sent=%d, want 1/1", report.Processed, mail.sent)
	}
}

func TestSweep_DoubleSweepIsIdempotent(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	store := &memStore{
		bookings: map[string]model.BookingDetails{
			"b1": {
				ID: "b1", ProviderID: "p1",
				CustomerEmail: "ada@example.com",
				StartTime:     now.Add(24 * time.Hour),
				EndTime:       now.Add(25 * time.Hour),
				Status:        "confirmed",
				Timezone:      "UTC",
			},
		},
		workflows: []model.Workflow{reminderWorkflow(model.TriggerHoursBefore24)},
	}
	mail := &countingEmail{}
	sweeper := newSweeper(store, mail)

	first := sweeper.Sweep(context.Background(), now)
	second := sweeper.Sweep(context.Background(), now.Add(5*time.Minute))
	if first.Processed != 1 {
		t.Fatalf("first sweep processed %d, want 1", first.Processed)
	}
	if second.Processed != 0 || mail.sent != 1 {
		t.Fatalf("second sweep resent: processed=%d sent=%d", second.Processed, mail.sent)
	}
}

func TestSweep_CatchUpLookbackCoversMissedTrigger(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	// The 24h-before moment passed 90 minutes ago; the lookback still
	// catches it.
	store := &memStore{
		bookings: map[string]model.BookingDetails{
			"b1": {
				ID: "b1", ProviderID: "p1",
				CustomerEmail: "ada@example.com",
				StartTime:     now.Add(24*time.Hour - 90*time.Minute),
				EndTime:       now.Add(25 * time.Hour),
				Status:        "confirmed",
				Timezone:      "UTC",
			},
		},
		workflows: []model.Workflow{reminderWorkflow(model.TriggerHoursBefore24)},
	}
	mail := &countingEmail{}

	report := newSweeper(store, mail).Sweep(context.Background(), now)
	if report.Processed != 1 || mail.sent != 1 {
		t.Fatalf("processed=%d sent=%d, want 1/1", report.Processed, mail.sent)
	}
}

func TestSweep_FollowUpAfterBooking(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	store := &memStore{
		bookings: map[string]model.BookingDetails{
			"b1": {
				ID: "b1", ProviderID: "p1",
				CustomerEmail: "ada@example.com",
				StartTime:     now.Add(-24 * time.Hour),
				EndTime:       now.Add(-23 * time.Hour),
				Status:        "completed",
				Timezone:      "UTC",
			},
		},
		workflows: []model.Workflow{reminderWorkflow(model.TriggerHoursAfter24)},
	}
	mail := &countingEmail{}

	report := newSweeper(store, mail).Sweep(context.Background(), now)
	if report.Processed != 1 || mail.sent != 1 {
		t.Fatalf("processed=%d sent=%d, want 1/1", report.Processed, mail.sent)
	}
}

func TestSweep_OutsideWindowDoesNothing(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	store := &memStore{
		bookings: map[string]model.BookingDetails{
			"b1": {
				ID: "b1", ProviderID: "p1",
				CustomerEmail: "ada@example.com",
				StartTime:     now.Add(72 * time.Hour),
				EndTime:       now.Add(73 * time.Hour),
				Status:        "confirmed",
				Timezone:      "UTC",
			},
		},
		workflows: []model.Workflow{reminderWorkflow(model.TriggerHoursBefore24)},
	}
	mail := &countingEmail{}

	report := newSweeper(store, mail).Sweep(context.Background(), now)
	if report.Processed != 0 || mail.sent != 0 {
		t.Fatalf("processed=%d sent=%d, want 0/0", report.Processed, mail.sent)
	}
}
