package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/bookwell-app/bookwell/services/workflow-service/internal/model"
	"github.com/bookwell-app/bookwell/services/workflow-service/internal/webhook"
)

type fakeStore struct {
	bookings  map[string]model.BookingDetails
	workflows []model.Workflow
	ledger    []model.Notification
}

func (s *fakeStore) BookingDetails(_ context.Context, bookingID string) (model.BookingDetails, error) {
	b, ok := s.bookings[bookingID]
	if !ok {
		return model.BookingDetails{}, ErrBookingNotFound
	}
	return b, nil
}

func (s *fakeStore) ActiveWorkflows(_ context.Context, providerID, trigger string) ([]model.Workflow, error) {
	var out []model.Workflow
	for _, wf := range s.workflows {
		if wf.ProviderID == providerID && wf.Trigger == trigger && wf.IsActive {
			out = append(out, wf)
		}
	}
	return out, nil
}

func (s *fakeStore) RecordNotification(_ context.Context, n model.Notification) error {
	s.ledger = append(s.ledger, n)
	return nil
}

type recordingEmail struct {
	sent []string
	fail bool
}

func (r *recordingEmail) Send(to, subject, body string) error {
	if r.fail {
		return errors.New("smtp connection refused")
	}
	r.sent = append(r.sent, to+"|"+subject+"|"+body)
	return nil
}

type recordingWebhook struct {
	urls []string
	fail bool
}

func (r *recordingWebhook) Send(_ context.Context, url string, _ webhook.Payload) error {
	if r.fail {
		return errors.New("webhook returned status 500")
	}
	r.urls = append(r.urls, url)
	return nil
}

func testBooking() model.BookingDetails {
	return model.BookingDetails{
		ID:               "b1",
		ProviderID:       "p1",
		ProviderEmail:    "owner@salon.test",
		ServiceID:        "svc1",
		ServiceName:      "Haircut",
		CustomerName:     "Ada",
		CustomerEmail:    "Ada@Example.com",
		StartTime:        time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC),
		EndTime:          time.Date(2026, 6, 15, 11, 0, 0, 0, time.UTC),
		Status:           "confirmed",
		TotalAmountCents: 5000,
		Timezone:         "UTC",
	}
}

func emailWorkflow(id, trigger string, cond model.Conditions) model.Workflow {
	return model.Workflow{
		ID:         id,
		ProviderID: "p1",
		Trigger:    trigger,
		Conditions: cond,
		Actions: []model.Action{{
			Type:      model.ActionEmail,
			Recipient: model.RecipientCustomer,
			Subject:   "Booking {{status}}",
			Body:      "Hi {{customer_name}}, your {{service_name}} is {{status}}.",
		}},
		IsActive: true,
	}
}

func newTestExecutor(store *fakeStore, mail *recordingEmail, hook *recordingWebhook) *Executor {
	return NewExecutor(store, mail, hook, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestExecuteForTrigger_SendsEmailAndRecordsLedger(t *testing.T) {
	store := &fakeStore{
		bookings:  map[string]model.BookingDetails{"b1": testBooking()},
		workflows: []model.Workflow{emailWorkflow("wf1", model.TriggerBookingConfirmed, model.Conditions{})},
	}
	mail := &recordingEmail{}
	exec := newTestExecutor(store, mail, &recordingWebhook{})

	res, err := exec.ExecuteForTrigger(context.Background(), model.TriggerBookingConfirmed, "b1")
	if err != nil {
		t.Fatalf("ExecuteForTrigger: %v", err)
	}
	if res.Executed != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v, want 1 executed", res)
	}
	if len(mail.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(mail.sent))
	}
	if want := "ada@example.com|Booking confirmed|Hi Ada, your Haircut is confirmed."; mail.sent[0] != want {
		t.Fatalf("email = %q, want %q", mail.sent[0], want)
	}
	if len(store.ledger) != 1 || store.ledger[0].Status != model.NotificationSent {
		t.Fatalf("ledger = %+v, want one sent row", store.ledger)
	}
	if store.ledger[0].Trigger != model.TriggerBookingConfirmed {
		t.Fatalf("ledger trigger = %q", store.ledger[0].Trigger)
	}
}

func TestExecuteForTrigger_MissingBooking(t *testing.T) {
	store := &fakeStore{bookings: map[string]model.BookingDetails{}}
	exec := newTestExecutor(store, &recordingEmail{}, &recordingWebhook{})

	_, err := exec.ExecuteForTrigger(context.Background(), model.TriggerBookingCreated, "missing")
	if !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("err = %v, want ErrBookingNotFound", err)
	}
}

func TestExecuteForTrigger_MinPriceConditionFilters(t *testing.T) {
	minPrice := int64(10000)
	store := &fakeStore{
		bookings: map[string]model.BookingDetails{"b1": testBooking()},
		workflows: []model.Workflow{
			emailWorkflow("wf-cheap", model.TriggerBookingCreated, model.Conditions{}),
			emailWorkflow("wf-premium", model.TriggerBookingCreated, model.Conditions{MinPriceCents: &minPrice}),
		},
	}
	mail := &recordingEmail{}
	exec := newTestExecutor(store, mail, &recordingWebhook{})

	res, err := exec.ExecuteForTrigger(context.Background(), model.TriggerBookingCreated, "b1")
	if err != nil {
		t.Fatalf("ExecuteForTrigger: %v", err)
	}
	// The 50.00 booking is below the premium workflow's 100.00 floor.
	if res.Executed != 1 {
		t.Fatalf("executed = %d, want 1", res.Executed)
	}
	if len(store.ledger) != 1 || store.ledger[0].WorkflowID != "wf-cheap" {
		t.Fatalf("ledger = %+v, want only wf-cheap", store.ledger)
	}
}

func TestExecuteForTrigger_FailureIsolation(t *testing.T) {
	wf := model.Workflow{
		ID:         "wf1",
		ProviderID: "p1",
		Trigger:    model.TriggerBookingCreated,
		Actions: []model.Action{
			{Type: model.ActionWebhook, URL: "https://hooks.example.com/bookings"},
			{Type: model.ActionSMS},
			{Type: model.ActionEmail, Recipient: model.RecipientCustomer, Subject: "s", Body: "b"},
		},
		IsActive: true,
	}
	store := &fakeStore{
		bookings:  map[string]model.BookingDetails{"b1": testBooking()},
		workflows: []model.Workflow{wf},
	}
	mail := &recordingEmail{}
	hook := &recordingWebhook{fail: true}
	exec := newTestExecutor(store, mail, hook)

	res, err := exec.ExecuteForTrigger(context.Background(), model.TriggerBookingCreated, "b1")
	if err != nil {
		t.Fatalf("ExecuteForTrigger: %v", err)
	}
	// Webhook and sms fail, the email still goes out.
	if res.Executed != 1 || res.Failed != 2 {
		t.Fatalf("result = %+v, want 1 executed 2 failed", res)
	}
	if res.Success() {
		t.Fatal("Success() should be false with failures")
	}
	if len(mail.sent) != 1 {
		t.Fatalf("email should still send, got %d", len(mail.sent))
	}
	if len(store.ledger) != 3 {
		t.Fatalf("every action gets a ledger row, got %d", len(store.ledger))
	}
	var smsReason string
	for _, n := range store.ledger {
		if n.Channel == model.ActionSMS {
			smsReason = n.Reason
		}
	}
	if !strings.Contains(smsReason, "sms channel not implemented") {
		t.Fatalf("sms reason = %q", smsReason)
	}
}

func TestExecuteForTrigger_RecipientResolution(t *testing.T) {
	wf := model.Workflow{
		ID:         "wf1",
		ProviderID: "p1",
		Trigger:    model.TriggerBookingCreated,
		Actions: []model.Action{
			{Type: model.ActionEmail, Recipient: model.RecipientProvider, Subject: "s", Body: "b"},
			{Type: model.ActionEmail, Recipient: model.RecipientCustom, CustomEmail: "ops@agency.test", Subject: "s", Body: "b"},
			{Type: model.ActionEmail, Recipient: model.RecipientStaff, Subject: "s", Body: "b"},
		},
		IsActive: true,
	}
	store := &fakeStore{
		bookings:  map[string]model.BookingDetails{"b1": testBooking()},
		workflows: []model.Workflow{wf},
	}
	mail := &recordingEmail{}
	exec := newTestExecutor(store, mail, &recordingWebhook{})

	res, err := exec.ExecuteForTrigger(context.Background(), model.TriggerBookingCreated, "b1")
	if err != nil {
		t.Fatalf("ExecuteForTrigger: %v", err)
	}
	// The booking has no assigned staff, so the staff email fails.
	if res.Executed != 2 || res.Failed != 1 {
		t.Fatalf("result = %+v, want 2 executed 1 failed", res)
	}
	if mail.sent[0][:strings.Index(mail.sent[0], "|")] != "owner@salon.test" {
		t.Fatalf("first email went to %q", mail.sent[0])
	}
	if mail.sent[1][:strings.Index(mail.sent[1], "|")] != "ops@agency.test" {
		t.Fatalf("second email went to %q", mail.sent[1])
	}
}
