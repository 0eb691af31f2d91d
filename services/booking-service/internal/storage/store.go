package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bookwell-app/bookwell/libs/db"
	"github.com/bookwell-app/bookwell/services/booking-service/internal/availability"
	"github.com/bookwell-app/bookwell/services/booking-service/internal/booking"
	"github.com/bookwell-app/bookwell/services/booking-service/internal/model"
	"github.com/bookwell-app/bookwell/services/booking-service/internal/outbox"
)

// Store is the Postgres implementation of booking.Store. Concurrency control
// is row locking: LockService serializes admission per service, and the
// transactional snapshot locks the roster rows so two creates against
// different services sharing a staff member also serialize. Lock-wait losers
// re-read committed state; commit-time errors surface as booking.ErrTxConflict
// so the manager can retry.
type Store struct {
	pool       *db.Pool
	outboxRepo *outbox.Repository
}

func NewStore(pool *db.Pool, outboxRepo *outbox.Repository) *Store {
	return &Store{pool: pool, outboxRepo: outboxRepo}
}

// querier is the subset of pgx shared by the pool and a transaction, so the
// snapshot queries serve both the display path and the admission path.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *Store) InTx(ctx context.Context, fn func(tx booking.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx, outboxRepo: s.outboxRepo}); err != nil {
		if isConflict(err) {
			return fmt.Errorf("%w: %v", booking.ErrTxConflict, err)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if isConflict(err) {
			return fmt.Errorf("%w: %v", booking.ErrTxConflict, err)
		}
		return err
	}
	return nil
}

func (s *Store) ReadService(ctx context.Context, providerID, serviceID string) (model.Service, error) {
	return scanService(s.pool.QueryRow(ctx, serviceSelect+`
		WHERE provider_id = $1 AND id = $2
	`, providerID, serviceID))
}

func (s *Store) ReadHours(ctx context.Context, providerID string, weekday time.Weekday) (model.BusinessHours, error) {
	h := model.BusinessHours{ProviderID: providerID, Weekday: weekday}
	err := s.pool.QueryRow(ctx, `
		SELECT is_open, open_time, close_time
		FROM business_hours
		WHERE provider_id = $1 AND weekday = $2
	`, providerID, int(weekday)).Scan(&h.IsOpen, &h.OpenTime, &h.CloseTime)
	if errors.Is(err, pgx.ErrNoRows) {
		// No record means closed that day.
		return model.BusinessHours{ProviderID: providerID, Weekday: weekday}, nil
	}
	if err != nil {
		return model.BusinessHours{}, err
	}
	return h, nil
}

func (s *Store) ReadTimezone(ctx context.Context, providerID string) (string, error) {
	var tz string
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(NULLIF(timezone, ''), 'UTC')
		FROM providers
		WHERE id = $1
	`, providerID).Scan(&tz)
	if errors.Is(err, pgx.ErrNoRows) {
		return "UTC", nil
	}
	if err != nil {
		return "", err
	}
	return tz, nil
}

func (s *Store) ReadSnapshot(ctx context.Context, svc model.Service, window availability.Interval) (availability.Snapshot, error) {
	return fetchSnapshot(ctx, s.pool, svc, window, false)
}

// GetBooking loads one booking for the API read path.
func (s *Store) GetBooking(ctx context.Context, providerID, bookingID string) (model.Booking, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx, bookingSelect+`
		WHERE provider_id = $1 AND id = $2
	`, providerID, bookingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Booking{}, booking.ErrNotFound
	}
	return b, err
}

// ListByProvider returns recent bookings, newest start first.
func (s *Store) ListByProvider(ctx context.Context, providerID string, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, bookingSelect+`
		WHERE provider_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, providerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// MarkRefundStatus records the outcome of an attempted refund; it runs after
// the cancellation committed, so it deliberately does not join a transaction.
func (s *Store) MarkRefundStatus(ctx context.Context, bookingID, status string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE bookings
		SET refund_status = $2, updated_at = now()
		WHERE id = $1
	`, bookingID, status)
	return err
}

type pgTx struct {
	tx         pgx.Tx
	outboxRepo *outbox.Repository
}

func (t *pgTx) LockService(ctx context.Context, providerID, serviceID string) (model.Service, error) {
	svc, err := scanService(t.tx.QueryRow(ctx, serviceSelect+`
		WHERE provider_id = $1 AND id = $2
		FOR UPDATE
	`, providerID, serviceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Service{}, booking.ErrNotFound
	}
	return svc, err
}

func (t *pgTx) Snapshot(ctx context.Context, svc model.Service, window availability.Interval) (availability.Snapshot, error) {
	return fetchSnapshot(ctx, t.tx, svc, window, true)
}

func (t *pgTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO bookings
			(id, provider_id, customer_id, service_id, staff_id, customer_name, customer_email, customer_phone,
			 start_time, end_time, status, total_amount_cents, payment_ref, refund_cents, refund_status)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12, $13, 0, '')
	`, b.ID, b.ProviderID, b.CustomerID, b.ServiceID, b.StaffID, b.CustomerName, b.CustomerEmail, b.CustomerPhone,
		b.StartTime, b.EndTime, b.Status, b.TotalAmountCents, b.PaymentRef)
	return err
}

func (t *pgTx) LockBooking(ctx context.Context, providerID, bookingID string) (model.Booking, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx, bookingSelect+`
		WHERE provider_id = $1 AND id = $2
		FOR UPDATE
	`, providerID, bookingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Booking{}, booking.ErrNotFound
	}
	return b, err
}

func (t *pgTx) UpdateBooking(ctx context.Context, b model.Booking) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE bookings
		SET status = $3,
			cancel_reason = $4,
			cancelled_at = $5,
			refund_cents = $6,
			refund_status = $7,
			updated_at = now()
		WHERE provider_id = $1 AND id = $2
	`, b.ProviderID, b.ID, b.Status, b.CancelReason, b.CancelledAt, b.RefundCents, b.RefundStatus)
	return err
}

func (t *pgTx) CancellationPolicy(ctx context.Context, providerID string) (model.CancellationPolicy, bool, error) {
	var raw []byte
	err := t.tx.QueryRow(ctx, `
		SELECT tiers
		FROM cancellation_policies
		WHERE provider_id = $1
	`, providerID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CancellationPolicy{}, false, nil
	}
	if err != nil {
		return model.CancellationPolicy{}, false, err
	}

	pol := model.CancellationPolicy{ProviderID: providerID}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &pol.Tiers); err != nil {
			return model.CancellationPolicy{}, false, err
		}
	}
	return pol, len(pol.Tiers) > 0, nil
}

func (t *pgTx) AppendEvent(ctx context.Context, eventType, aggregateID string, payload []byte) error {
	return t.outboxRepo.Insert(ctx, t.tx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
	})
}

const serviceSelect = `
	SELECT id::text, provider_id::text, name, duration_mins, buffer_before_mins, buffer_after_mins,
		requires_staff, any_staff_member, max_concurrent, price_cents
	FROM services`

const bookingSelect = `
	SELECT id::text, provider_id::text, customer_id::text, service_id::text, COALESCE(staff_id::text, ''),
		customer_name, customer_email, customer_phone, start_time, end_time, status,
		total_amount_cents, COALESCE(payment_ref, ''), refund_cents, refund_status,
		COALESCE(cancel_reason, ''), cancelled_at, created_at
	FROM bookings`

func scanService(row pgx.Row) (model.Service, error) {
	var svc model.Service
	err := row.Scan(&svc.ID, &svc.ProviderID, &svc.Name, &svc.DurationMins, &svc.BufferBeforeMins,
		&svc.BufferAfterMins, &svc.RequiresStaff, &svc.AnyStaffMember, &svc.MaxConcurrent, &svc.PriceCents)
	return svc, err
}

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	err := row.Scan(&b.ID, &b.ProviderID, &b.CustomerID, &b.ServiceID, &b.StaffID,
		&b.CustomerName, &b.CustomerEmail, &b.CustomerPhone, &b.StartTime, &b.EndTime, &b.Status,
		&b.TotalAmountCents, &b.PaymentRef, &b.RefundCents, &b.RefundStatus,
		&b.CancelReason, &b.CancelledAt, &b.CreatedAt)
	return b, err
}

// fetchSnapshot pulls the roster, overlapping occupied windows, and blocks
// for one candidate window. Bookings are expanded by their own service's
// buffers in SQL so the resolver compares occupied windows directly.
//
// With forUpdate the roster rows are locked before the booking rows are read.
// The staff pool is shared across a provider's services, so the service-row
// lock alone does not serialize two admissions through different services;
// locking the roster does, and the common lock order (created_at, id) keeps
// concurrent admissions from deadlocking on each other.
func fetchSnapshot(ctx context.Context, q querier, svc model.Service, window availability.Interval, forUpdate bool) (availability.Snapshot, error) {
	snap := availability.Snapshot{Service: svc}

	if svc.RequiresStaff {
		roster, err := fetchRoster(ctx, q, svc, forUpdate)
		if err != nil {
			return availability.Snapshot{}, err
		}
		snap.Roster = roster
	}

	rows, err := q.Query(ctx, `
		SELECT COALESCE(b.staff_id::text, ''), b.service_id::text,
			b.start_time - make_interval(mins => s.buffer_before_mins),
			b.end_time + make_interval(mins => s.buffer_after_mins)
		FROM bookings b
		JOIN services s ON s.id = b.service_id
		WHERE b.provider_id = $1
			AND b.status NOT IN ('cancelled', 'no_show')
			AND b.start_time - make_interval(mins => s.buffer_before_mins) < $3
			AND b.end_time + make_interval(mins => s.buffer_after_mins) > $2
	`, svc.ProviderID, window.Start, window.End)
	if err != nil {
		return availability.Snapshot{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var staffID, serviceID string
		var iv availability.Interval
		if err := rows.Scan(&staffID, &serviceID, &iv.Start, &iv.End); err != nil {
			return availability.Snapshot{}, err
		}
		if serviceID == svc.ID {
			snap.ServiceBookings = append(snap.ServiceBookings, iv)
		}
		if staffID != "" {
			snap.StaffBookings = append(snap.StaffBookings, availability.StaffInterval{StaffID: staffID, Interval: iv})
		}
	}
	if rows.Err() != nil {
		return availability.Snapshot{}, rows.Err()
	}

	blockRows, err := q.Query(ctx, `
		SELECT id::text, provider_id::text, COALESCE(staff_id::text, ''), start_time, end_time, is_available, COALESCE(reason, '')
		FROM availability_blocks
		WHERE provider_id = $1
			AND is_available = false
			AND start_time < $3
			AND end_time > $2
	`, svc.ProviderID, window.Start, window.End)
	if err != nil {
		return availability.Snapshot{}, err
	}
	defer blockRows.Close()

	for blockRows.Next() {
		var blk model.AvailabilityBlock
		if err := blockRows.Scan(&blk.ID, &blk.ProviderID, &blk.StaffID, &blk.StartTime, &blk.EndTime, &blk.IsAvailable, &blk.Reason); err != nil {
			return availability.Snapshot{}, err
		}
		snap.Blocks = append(snap.Blocks, blk)
	}
	return snap, blockRows.Err()
}

func fetchRoster(ctx context.Context, q querier, svc model.Service, forUpdate bool) ([]model.StaffMember, error) {
	query := `
		SELECT st.id::text, st.provider_id::text, st.name, st.email, st.is_active
		FROM staff st
		WHERE st.provider_id = $1 AND st.is_active
		ORDER BY st.created_at, st.id`
	args := []any{svc.ProviderID}
	if !svc.AnyStaffMember {
		query = `
		SELECT st.id::text, st.provider_id::text, st.name, st.email, st.is_active
		FROM staff st
		JOIN staff_assignments sa ON sa.staff_id = st.id
		WHERE st.provider_id = $1 AND sa.service_id = $2 AND st.is_active
		ORDER BY st.created_at, st.id`
		args = append(args, svc.ID)
	}
	if forUpdate {
		query += `
		FOR UPDATE OF st`
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roster []model.StaffMember
	for rows.Next() {
		var st model.StaffMember
		if err := rows.Scan(&st.ID, &st.ProviderID, &st.Name, &st.Email, &st.IsActive); err != nil {
			return nil, err
		}
		roster = append(roster, st)
	}
	return roster, rows.Err()
}

// isConflict reports pg error codes that mean "another transaction won":
// serialization failure, exclusion-constraint violation, unique violation.
func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "23P01", "23505":
		return true
	}
	return false
}
