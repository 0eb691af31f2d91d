package booking

import (
	"context"
	"time"

	"github.com/bookwell-app/bookwell/services/booking-service/internal/availability"
	"github.com/bookwell-app/bookwell/services/booking-service/internal/model"
)

// Store is the transactional store the manager runs against. The Postgres
// implementation lives in internal/storage; tests use an in-memory store.
type Store interface {
	// InTx runs fn inside one transaction. Returning an error rolls back.
	// Commit-time conflicts surface as (or wrap) ErrTxConflict.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// Read-only display path. Results may lag concurrent writes; the
	// authoritative admission check always re-runs inside InTx.
	ReadService(ctx context.Context, providerID, serviceID string) (model.Service, error)
	ReadHours(ctx context.Context, providerID string, weekday time.Weekday) (model.BusinessHours, error)
	ReadTimezone(ctx context.Context, providerID string) (string, error)
	ReadSnapshot(ctx context.Context, svc model.Service, window availability.Interval) (availability.Snapshot, error)
}

// Tx is the per-transaction surface.
type Tx interface {
	// LockService loads the service row under FOR UPDATE (or equivalent),
	// serializing concurrent admission checks for the same service.
	LockService(ctx context.Context, providerID, serviceID string) (model.Service, error)

	// Snapshot fetches the rows overlapping window needed by the resolver.
	Snapshot(ctx context.Context, svc model.Service, window availability.Interval) (availability.Snapshot, error)

	InsertBooking(ctx context.Context, b *model.Booking) error

	// LockBooking loads a booking under FOR UPDATE for a status transition.
	LockBooking(ctx context.Context, providerID, bookingID string) (model.Booking, error)
	UpdateBooking(ctx context.Context, b model.Booking) error

	CancellationPolicy(ctx context.Context, providerID string) (model.CancellationPolicy, bool, error)

	// AppendEvent writes one outbox row in the same transaction.
	AppendEvent(ctx context.Context, eventType, aggregateID string, payload []byte) error
}
