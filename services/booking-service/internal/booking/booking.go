package booking

import (
	"errors"
	"time"
)

// Booking lifecycle events emitted on the outbox in the same transaction as
// the state change. Topic names double as event types (one topic per type).
const (
	EventCreated   = "booking.created.v1"
	EventConfirmed = "booking.confirmed.v1"
	EventCancelled = "booking.cancelled.v1"
	EventCompleted = "booking.completed.v1"
	EventNoShow    = "booking.no_show.v1"
)

var (
	// ErrSlotUnavailable is the recoverable admission failure: the caller
	// should re-query availability and offer an alternate slot.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrNotFound is returned when the referenced booking or service does not
	// exist for the provider.
	ErrNotFound = errors.New("booking not found")

	// ErrInvalidTransition is returned for status changes the lifecycle does
	// not allow (e.g. completing a cancelled booking).
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrTxConflict is how stores report a commit-time conflict (another
	// transaction won the slot). The manager retries the full admission check
	// once and then degrades to ErrSlotUnavailable.
	ErrTxConflict = errors.New("transaction conflict")
)

// CreateRequest carries everything needed to admit one booking.
type CreateRequest struct {
	ProviderID       string
	ServiceID        string
	CustomerID       string
	CustomerName     string
	CustomerEmail    string
	CustomerPhone    string
	StartTime        time.Time
	TotalAmountCents int64
	PaymentRef       string
}
