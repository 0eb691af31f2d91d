package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bookwell-app/bookwell/libs/db"
	"github.com/bookwell-app/bookwell/services/workflow-service/internal/model"
	"github.com/bookwell-app/bookwell/services/workflow-service/internal/outbox"
	"github.com/bookwell-app/bookwell/services/workflow-service/internal/workflow"
)

// Repository implements workflow.Store and scheduler.Store on Postgres.
type Repository struct {
	pool       *db.Pool
	outboxRepo *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outboxRepo: outboxRepo}
}

// BookingDetails denormalizes one booking with its provider, service, and
// staff so the executor can evaluate conditions and fill templates in a
// single read.
func (r *Repository) BookingDetails(ctx context.Context, bookingID string) (model.BookingDetails, error) {
	var b model.BookingDetails
	err := r.pool.QueryRow(ctx, `
		SELECT b.id::text, b.provider_id::text,
			p.name, COALESCE(p.email, ''), COALESCE(NULLIF(p.timezone, ''), 'UTC'),
			b.service_id::text, s.name,
			COALESCE(b.staff_id::text, ''), COALESCE(st.name, ''), COALESCE(st.email, ''),
			b.customer_name, b.customer_email, b.customer_phone,
			b.start_time, b.end_time, b.status, b.total_amount_cents,
			COALESCE(b.cancel_reason, '')
		FROM bookings b
		JOIN providers p ON p.id = b.provider_id
		JOIN services s ON s.id = b.service_id
		LEFT JOIN staff st ON st.id = b.staff_id
		WHERE b.id = $1
	`, bookingID).Scan(
		&b.ID, &b.ProviderID,
		&b.ProviderName, &b.ProviderEmail, &b.Timezone,
		&b.ServiceID, &b.ServiceName,
		&b.StaffID, &b.StaffName, &b.StaffEmail,
		&b.CustomerName, &b.CustomerEmail, &b.CustomerPhone,
		&b.StartTime, &b.EndTime, &b.Status, &b.TotalAmountCents,
		&b.CancelReason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.BookingDetails{}, workflow.ErrBookingNotFound
	}
	return b, err
}

func (r *Repository) ActiveWorkflows(ctx context.Context, providerID, trigger string) ([]model.Workflow, error) {
	rows, err := r.pool.Query(ctx, workflowSelect+`
		WHERE provider_id = $1 AND trigger = $2 AND is_active
		ORDER BY created_at, id
	`, providerID, trigger)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWorkflows(rows)
}

func (r *Repository) ListWorkflows(ctx context.Context, providerID string) ([]model.Workflow, error) {
	rows, err := r.pool.Query(ctx, workflowSelect+`
		WHERE provider_id = $1
		ORDER BY created_at, id
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWorkflows(rows)
}

func (r *Repository) CreateWorkflow(ctx context.Context, wf model.Workflow) (model.Workflow, error) {
	conditions, err := json.Marshal(wf.Conditions)
	if err != nil {
		return model.Workflow{}, err
	}
	actions, err := json.Marshal(wf.Actions)
	if err != nil {
		return model.Workflow{}, err
	}
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	wf.CreatedAt = now
	wf.UpdatedAt = now
	_, err = r.pool.Exec(ctx, `
		INSERT INTO workflows (id, provider_id, name, trigger, conditions, actions, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, wf.ID, wf.ProviderID, wf.Name, wf.Trigger, conditions, actions, wf.IsActive, now)
	return wf, err
}

func (r *Repository) SetWorkflowActive(ctx context.Context, providerID, workflowID string, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE workflows
		SET is_active = $3, updated_at = now()
		WHERE provider_id = $1 AND id = $2
	`, providerID, workflowID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("workflow %s not found", workflowID)
	}
	return nil
}

// RecordNotification writes the ledger row and its notification.sent/failed
// outbox event in one transaction, so the stream never reports a delivery
// the ledger does not show.
func (r *Repository) RecordNotification(ctx context.Context, n model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	evt, err := outbox.FromNotification(n)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO notifications (id, booking_id, provider_id, workflow_id, trigger, channel, recipient, status, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, n.ID, n.BookingID, n.ProviderID, n.WorkflowID, n.Trigger, n.Channel, n.Recipient, n.Status, n.Reason); err != nil {
		return err
	}
	if err := r.outboxRepo.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) HasDelivered(ctx context.Context, bookingID, trigger string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE booking_id = $1 AND trigger = $2 AND status IN ('sent', 'delivered')
		)
	`, bookingID, trigger).Scan(&exists)
	return exists, err
}

// DueBookings finds bookings starting inside the window whose provider has
// at least one active workflow for the trigger. Cancelled and no-show
// bookings never fire offset triggers.
func (r *Repository) DueBookings(ctx context.Context, trigger string, from, to time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT b.id::text
		FROM bookings b
		WHERE b.start_time >= $2 AND b.start_time < $3
			AND b.status NOT IN ('cancelled', 'no_show')
			AND EXISTS (
				SELECT 1 FROM workflows w
				WHERE w.provider_id = b.provider_id AND w.trigger = $1 AND w.is_active
			)
	`, trigger, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const workflowSelect = `
	SELECT id::text, provider_id::text, name, trigger, conditions, actions, is_active, created_at, updated_at
	FROM workflows`

func collectWorkflows(rows pgx.Rows) ([]model.Workflow, error) {
	var out []model.Workflow
	for rows.Next() {
		var wf model.Workflow
		var conditions, actions []byte
		if err := rows.Scan(&wf.ID, &wf.ProviderID, &wf.Name, &wf.Trigger, &conditions, &actions, &wf.IsActive, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
			return nil, err
		}
		if len(conditions) > 0 {
			if err := json.Unmarshal(conditions, &wf.Conditions); err != nil {
				return nil, err
			}
		}
		if len(actions) > 0 {
			if err := json.Unmarshal(actions, &wf.Actions); err != nil {
				return nil, err
			}
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}
