package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bookwell-app/bookwell/services/workflow-service/internal/email"
	"github.com/bookwell-app/bookwell/services/workflow-service/internal/model"
	"github.com/bookwell-app/bookwell/services/workflow-service/internal/webhook"
)

var ErrBookingNotFound = errors.New("booking not found")

// Store is the persistence surface the executor needs. The pgx-backed
// repository implements it; tests use in-memory fakes.
type Store interface {
	BookingDetails(ctx context.Context, bookingID string) (model.BookingDetails, error)
	ActiveWorkflows(ctx context.Context, providerID, trigger string) ([]model.Workflow, error)
	RecordNotification(ctx context.Context, n model.Notification) error
}

// Result reports one trigger dispatch. A failed action never aborts its
// siblings, so Executed and Failed can both be nonzero.
type Result struct {
	Executed int
	Failed   int
	Errors   []string
}

func (r Result) Success() bool { return r.Failed == 0 }

type Executor struct {
	store   Store
	email   email.Sender
	webhook webhook.Sender
	logger  *slog.Logger
}

func NewExecutor(store Store, emailSender email.Sender, webhookSender webhook.Sender, logger *slog.Logger) *Executor {
	return &Executor{
		store:   store,
		email:   emailSender,
		webhook: webhookSender,
		logger:  logger,
	}
}

// ExecuteForTrigger runs every active workflow the booking's provider has for
// the trigger. Each action gets its own ledger row; dispatch failures are
// collected, never propagated.
func (e *Executor) ExecuteForTrigger(ctx context.Context, trigger, bookingID string) (Result, error) {
	b, err := e.store.BookingDetails(ctx, bookingID)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return Result{}, ErrBookingNotFound
		}
		return Result{}, fmt.Errorf("load booking: %w", err)
	}

	workflows, err := e.store.ActiveWorkflows(ctx, b.ProviderID, trigger)
	if err != nil {
		return Result{}, fmt.Errorf("load workflows: %w", err)
	}

	var res Result
	vars := TemplateVars(b)
	for _, wf := range workflows {
		if !ConditionsMatch(wf.Conditions, b) {
			continue
		}
		for _, action := range wf.Actions {
			e.dispatch(ctx, trigger, wf, action, b, vars, &res)
		}
	}
	return res, nil
}

func (e *Executor) dispatch(ctx context.Context, trigger string, wf model.Workflow, action model.Action, b model.BookingDetails, vars map[string]string, res *Result) {
	var recipient string
	var err error

	switch action.Type {
	case model.ActionEmail:
		recipient, err = resolveRecipient(action, b)
		if err == nil {
			subject := Render(action.Subject, vars)
			body := Render(action.Body, vars)
			err = e.email.Send(recipient, subject, body)
		}
	case model.ActionWebhook:
		recipient = action.URL
		err = e.webhook.Send(ctx, action.URL, webhook.Payload{
			BookingID:        b.ID,
			ProviderID:       b.ProviderID,
			ServiceName:      b.ServiceName,
			CustomerName:     b.CustomerName,
			CustomerEmail:    b.CustomerEmail,
			StaffName:        b.StaffName,
			StartTime:        b.StartTime.UTC().Format(time.RFC3339),
			EndTime:          b.EndTime.UTC().Format(time.RFC3339),
			Status:           b.Status,
			TotalAmountCents: b.TotalAmountCents,
			Trigger:          trigger,
		})
	case model.ActionSMS:
		recipient = b.CustomerPhone
		err = errors.New("sms channel not implemented")
	default:
		err = fmt.Errorf("unknown action type %q", action.Type)
	}

	status := model.NotificationSent
	reason := ""
	if err != nil {
		status = model.NotificationFailed
		reason = err.Error()
		res.Failed++
		res.Errors = append(res.Errors, fmt.Sprintf("workflow %s action %s: %v", wf.ID, action.Type, err))
		e.logger.Error("workflow action failed", "workflow_id", wf.ID, "booking_id", b.ID, "action", action.Type, "err", err)
	} else {
		res.Executed++
	}

	ledgerErr := e.store.RecordNotification(ctx, model.Notification{
		BookingID:  b.ID,
		ProviderID: b.ProviderID,
		WorkflowID: wf.ID,
		Trigger:    trigger,
		Channel:    action.Type,
		Recipient:  recipient,
		Status:     status,
		Reason:     reason,
	})
	if ledgerErr != nil {
		e.logger.Error("notification ledger write failed", "workflow_id", wf.ID, "booking_id", b.ID, "err", ledgerErr)
	}
}

func resolveRecipient(action model.Action, b model.BookingDetails) (string, error) {
	var addr string
	switch action.Recipient {
	case model.RecipientCustomer, "":
		addr = b.CustomerEmail
	case model.RecipientProvider:
		addr = b.ProviderEmail
	case model.RecipientStaff:
		addr = b.StaffEmail
	case model.RecipientCustom:
		addr = action.CustomEmail
	default:
		return "", fmt.Errorf("unknown recipient %q", action.Recipient)
	}
	addr = normalizeEmail(addr)
	if addr == "" || !strings.Contains(addr, "@") {
		return "", fmt.Errorf("no usable address for recipient %q", action.Recipient)
	}
	return addr, nil
}
