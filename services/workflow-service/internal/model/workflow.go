package model

import "time"

// Event triggers fire when a booking changes state; offset triggers fire at a
// fixed distance from the booking's start time.
const (
	TriggerBookingCreated   = "booking_created"
	TriggerBookingConfirmed = "booking_confirmed"
	TriggerBookingCancelled = "booking_cancelled"
	TriggerBookingCompleted = "booking_completed"
	TriggerBookingNoShow    = "booking_no_show"

	TriggerHoursBefore24   = "hours_before_24"
	TriggerHoursBefore48   = "hours_before_48"
	TriggerHoursBefore1    = "hours_before_1"
	TriggerMinutesBefore30 = "minutes_before_30"
	TriggerHoursAfter24    = "hours_after_24"
)

// OffsetTriggers maps each offset trigger to the distance between "now" and
// the booking start it targets. A positive offset means the booking is still
// ahead (reminders); a negative one means it already started (follow-ups).
var OffsetTriggers = map[string]time.Duration{
	TriggerHoursBefore24:   24 * time.Hour,
	TriggerHoursBefore48:   48 * time.Hour,
	TriggerHoursBefore1:    time.Hour,
	TriggerMinutesBefore30: 30 * time.Minute,
	TriggerHoursAfter24:    -24 * time.Hour,
}

// TriggerForEvent translates a lifecycle event type from the booking stream
// into the workflow trigger it fires, if any.
func TriggerForEvent(eventType string) (string, bool) {
	switch eventType {
	case "booking.created.v1":
		return TriggerBookingCreated, true
	case "booking.confirmed.v1":
		return TriggerBookingConfirmed, true
	case "booking.cancelled.v1":
		return TriggerBookingCancelled, true
	case "booking.completed.v1":
		return TriggerBookingCompleted, true
	case "booking.no_show.v1":
		return TriggerBookingNoShow, true
	default:
		return "", false
	}
}

const (
	ActionEmail   = "email"
	ActionWebhook = "webhook"
	ActionSMS     = "sms"
)

const (
	RecipientCustomer = "customer"
	RecipientProvider = "provider"
	RecipientStaff    = "staff"
	RecipientCustom   = "custom"
)

// Conditions narrow which bookings a workflow applies to. Every set field
// must match; an unset field matches everything.
type Conditions struct {
	ServiceIDs    []string `json:"service_ids,omitempty"`
	MinPriceCents *int64   `json:"min_price_cents,omitempty"`
	MaxPriceCents *int64   `json:"max_price_cents,omitempty"`
	Statuses      []string `json:"statuses,omitempty"`
}

// Action is a tagged union keyed by Type. Email actions use Recipient plus
// the subject and body templates; webhook actions use URL; sms is reserved.
type Action struct {
	Type        string `json:"type"`
	Recipient   string `json:"recipient,omitempty"`
	CustomEmail string `json:"custom_email,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Body        string `json:"body,omitempty"`
	URL         string `json:"url,omitempty"`
}

type Workflow struct {
	ID         string     `json:"id"`
	ProviderID string     `json:"provider_id"`
	Name       string     `json:"name"`
	Trigger    string     `json:"trigger"`
	Conditions Conditions `json:"conditions"`
	Actions    []Action   `json:"actions"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

const (
	NotificationSent      = "sent"
	NotificationFailed    = "failed"
	NotificationDelivered = "delivered"
)

// Notification is one ledger row per attempted action dispatch. The ledger
// doubles as the idempotency guard for scheduler sweeps.
type Notification struct {
	ID         string
	BookingID  string
	ProviderID string
	WorkflowID string
	Trigger    string
	Channel    string
	Recipient  string
	Status     string
	Reason     string
	CreatedAt  time.Time
}

// BookingDetails is the denormalized view of a booking the executor needs to
// evaluate conditions and fill templates.
type BookingDetails struct {
	ID               string
	ProviderID       string
	ProviderName     string
	ProviderEmail    string
	ServiceID        string
	ServiceName      string
	StaffID          string
	StaffName        string
	StaffEmail       string
	CustomerName     string
	CustomerEmail    string
	CustomerPhone    string
	StartTime        time.Time
	EndTime          time.Time
	Status           string
	TotalAmountCents int64
	CancelReason     string
	Timezone         string
}
