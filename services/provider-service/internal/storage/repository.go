package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bookwell-app/bookwell/libs/db"
)

// Repository owns the provider-side configuration tables the booking engine
// reads: providers, services, staff, business hours, availability blocks,
// and cancellation policies.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

type Provider struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Timezone string `json:"timezone"`
}

func (r *Repository) GetOrCreateProvider(ctx context.Context, providerID string) (Provider, error) {
	// Create a default row if missing so fresh tenants can configure
	// themselves without a separate signup step.
	_, err := r.pool.Exec(ctx, `
		INSERT INTO providers (id)
		VALUES ($1)
		ON CONFLICT (id) DO NOTHING
	`, providerID)
	if err != nil {
		return Provider{}, err
	}

	var p Provider
	err = r.pool.QueryRow(ctx, `
		SELECT id::text, COALESCE(name, ''), COALESCE(email, ''), COALESCE(NULLIF(timezone, ''), 'UTC')
		FROM providers
		WHERE id = $1
	`, providerID).Scan(&p.ID, &p.Name, &p.Email, &p.Timezone)
	return p, err
}

func (r *Repository) UpdateProvider(ctx context.Context, p Provider) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO providers (id, name, email, timezone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			email = EXCLUDED.email,
			timezone = EXCLUDED.timezone,
			updated_at = now()
	`, p.ID, p.Name, p.Email, p.Timezone)
	return err
}

type Service struct {
	ID               string    `json:"id"`
	ProviderID       string    `json:"provider_id"`
	Name             string    `json:"name"`
	DurationMins     int       `json:"duration_mins"`
	BufferBeforeMins int       `json:"buffer_before_mins"`
	BufferAfterMins  int       `json:"buffer_after_mins"`
	RequiresStaff    bool      `json:"requires_staff"`
	AnyStaffMember   bool      `json:"any_staff_member"`
	MaxConcurrent    int       `json:"max_concurrent"`
	PriceCents       int64     `json:"price_cents"`
	CreatedAt        time.Time `json:"created_at"`
}

func (r *Repository) CreateService(ctx context.Context, svc Service, staffIDs []string) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id := uuid.NewString()
	_, err = tx.Exec(ctx, `
		INSERT INTO services
			(id, provider_id, name, duration_mins, buffer_before_mins, buffer_after_mins,
			 requires_staff, any_staff_member, max_concurrent, price_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, id, svc.ProviderID, svc.Name, svc.DurationMins, svc.BufferBeforeMins, svc.BufferAfterMins,
		svc.RequiresStaff, svc.AnyStaffMember, svc.MaxConcurrent, svc.PriceCents)
	if err != nil {
		return "", err
	}

	for _, staffID := range staffIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO staff_assignments (service_id, staff_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, id, staffID); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListServices(ctx context.Context, providerID string, limit int) ([]Service, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, provider_id::text, name, duration_mins, buffer_before_mins, buffer_after_mins,
			requires_staff, any_staff_member, max_concurrent, price_cents, created_at
		FROM services
		WHERE provider_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, providerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.ProviderID, &s.Name, &s.DurationMins, &s.BufferBeforeMins, &s.BufferAfterMins,
			&s.RequiresStaff, &s.AnyStaffMember, &s.MaxConcurrent, &s.PriceCents, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) AssignStaff(ctx context.Context, providerID, serviceID, staffID string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM services s
			JOIN staff st ON st.provider_id = s.provider_id
			WHERE s.provider_id = $1 AND s.id = $2 AND st.id = $3
		)
	`, providerID, serviceID, staffID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return pgx.ErrNoRows
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO staff_assignments (service_id, staff_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, serviceID, staffID)
	return err
}

type StaffMember struct {
	ID         string `json:"id"`
	ProviderID string `json:"provider_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	IsActive   bool   `json:"is_active"`
}

func (r *Repository) CreateStaff(ctx context.Context, providerID, name, email string) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO staff (provider_id, name, email, is_active)
		VALUES ($1, $2, $3, true)
		RETURNING id::text
	`, providerID, name, email).Scan(&id)
	return id, err
}

func (r *Repository) SetStaffActive(ctx context.Context, providerID, staffID string, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE staff
		SET is_active = $3
		WHERE provider_id = $1 AND id = $2
	`, providerID, staffID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) ListStaff(ctx context.Context, providerID string, limit int) ([]StaffMember, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, provider_id::text, name, COALESCE(email, ''), is_active
		FROM staff
		WHERE provider_id = $1
		ORDER BY created_at, id
		LIMIT $2
	`, providerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StaffMember
	for rows.Next() {
		var s StaffMember
		if err := rows.Scan(&s.ID, &s.ProviderID, &s.Name, &s.Email, &s.IsActive); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type BusinessHours struct {
	Weekday   int    `json:"weekday"`
	IsOpen    bool   `json:"is_open"`
	OpenTime  string `json:"open_time"`
	CloseTime string `json:"close_time"`
}

func (r *Repository) UpsertHours(ctx context.Context, providerID string, h BusinessHours) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO business_hours (provider_id, weekday, is_open, open_time, close_time)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider_id, weekday) DO UPDATE
		SET is_open = EXCLUDED.is_open,
			open_time = EXCLUDED.open_time,
			close_time = EXCLUDED.close_time
	`, providerID, h.Weekday, h.IsOpen, h.OpenTime, h.CloseTime)
	return err
}

func (r *Repository) ListHours(ctx context.Context, providerID string) ([]BusinessHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, is_open, open_time, close_time
		FROM business_hours
		WHERE provider_id = $1
		ORDER BY weekday
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BusinessHours
	for rows.Next() {
		var h BusinessHours
		if err := rows.Scan(&h.Weekday, &h.IsOpen, &h.OpenTime, &h.CloseTime); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

type Block struct {
	ID          string    `json:"id"`
	ProviderID  string    `json:"provider_id"`
	StaffID     string    `json:"staff_id,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	IsAvailable bool      `json:"is_available"`
	Reason      string    `json:"reason,omitempty"`
}

func (r *Repository) CreateBlock(ctx context.Context, b Block) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_blocks (id, provider_id, staff_id, start_time, end_time, is_available, reason)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
	`, id, b.ProviderID, b.StaffID, b.StartTime, b.EndTime, b.IsAvailable, b.Reason)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListBlocks(ctx context.Context, providerID string, from, to time.Time, limit int) ([]Block, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, provider_id::text, COALESCE(staff_id::text, ''), start_time, end_time, is_available, COALESCE(reason, '')
		FROM availability_blocks
		WHERE provider_id = $1 AND end_time > $2 AND start_time < $3
		ORDER BY start_time
		LIMIT $4
	`, providerID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Block
	for rows.Next() {
		var b Block
		if err := rows.Scan(&b.ID, &b.ProviderID, &b.StaffID, &b.StartTime, &b.EndTime, &b.IsAvailable, &b.Reason); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteBlock(ctx context.Context, providerID, blockID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM availability_blocks
		WHERE provider_id = $1 AND id = $2
	`, providerID, blockID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type RefundTier struct {
	MinHoursBefore int `json:"min_hours_before"`
	RefundPercent  int `json:"refund_percent"`
}

func (r *Repository) UpsertCancellationPolicy(ctx context.Context, providerID string, tiers []RefundTier) error {
	raw, err := json.Marshal(tiers)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO cancellation_policies (provider_id, tiers)
		VALUES ($1, $2)
		ON CONFLICT (provider_id) DO UPDATE
		SET tiers = EXCLUDED.tiers,
			updated_at = now()
	`, providerID, raw)
	return err
}

func (r *Repository) GetCancellationPolicy(ctx context.Context, providerID string) ([]RefundTier, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `
		SELECT tiers
		FROM cancellation_policies
		WHERE provider_id = $1
	`, providerID).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var tiers []RefundTier
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &tiers); err != nil {
			return nil, err
		}
	}
	return tiers, nil
}
