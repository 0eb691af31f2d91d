package model

import "time"

// Booking statuses. Cancelled, no-show, and completed are terminal.
// For capacity purposes only cancelled and no-show free the slot: a completed
// booking still occupied its interval, it just cannot overlap a future query.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
	StatusCompleted = "completed"
)

// CountsTowardCapacity reports whether a booking in the given status still
// occupies its time interval.
func CountsTowardCapacity(status string) bool {
	return status != StatusCancelled && status != StatusNoShow
}

// IsTerminal reports whether no further status transitions are allowed.
func IsTerminal(status string) bool {
	switch status {
	case StatusCancelled, StatusNoShow, StatusCompleted:
		return true
	}
	return false
}

// Service is a bookable offering owned by a provider. Duration and buffers
// are minutes; changing a service never retroactively affects existing
// bookings (their start/end are copied at creation time).
type Service struct {
	ID               string
	ProviderID       string
	Name             string
	DurationMins     int
	BufferBeforeMins int
	BufferAfterMins  int
	RequiresStaff    bool
	AnyStaffMember   bool
	MaxConcurrent    int
	PriceCents       int64
}

type StaffMember struct {
	ID         string
	ProviderID string
	Name       string
	Email      string
	IsActive   bool
}

// BusinessHours is one weekday's opening window in the provider's local
// timezone. OpenTime/CloseTime are wall-clock "15:04" strings.
type BusinessHours struct {
	ProviderID string
	Weekday    time.Weekday
	IsOpen     bool
	OpenTime   string
	CloseTime  string
}

// AvailabilityBlock is an explicit unavailability interval. StaffID is empty
// for provider-level blocks, which veto any overlapping slot regardless of
// capacity.
type AvailabilityBlock struct {
	ID          string
	ProviderID  string
	StaffID     string
	StartTime   time.Time
	EndTime     time.Time
	IsAvailable bool
	Reason      string
}

// Booking is the atomic unit of demand. StaffID is assigned at creation and
// never reassigned; cancellation is a status change, not deletion.
type Booking struct {
	ID               string
	ProviderID       string
	CustomerID       string
	ServiceID        string
	StaffID          string
	CustomerName     string
	CustomerEmail    string
	CustomerPhone    string
	StartTime        time.Time
	EndTime          time.Time
	Status           string
	TotalAmountCents int64
	PaymentRef       string
	RefundCents      int64
	RefundStatus     string
	CancelReason     string
	CancelledAt      *time.Time
	CreatedAt        time.Time
}

// CancellationPolicy is a provider-configurable tiered refund schedule.
// Tiers are ordered most-generous-first: the first tier whose MinHoursBefore
// is satisfied determines the refund percent.
type CancellationPolicy struct {
	ProviderID string
	Tiers      []RefundTier
}

type RefundTier struct {
	MinHoursBefore int `json:"min_hours_before"`
	RefundPercent  int `json:"refund_percent"`
}
