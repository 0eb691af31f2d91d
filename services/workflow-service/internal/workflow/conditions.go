package workflow

import (
	"slices"

	"github.com/bookwell-app/bookwell/services/workflow-service/internal/model"
)

// ConditionsMatch reports whether a booking satisfies every set condition.
// Unset fields pass.
func ConditionsMatch(c model.Conditions, b model.BookingDetails) bool {
	if len(c.ServiceIDs) > 0 && !slices.Contains(c.ServiceIDs, b.ServiceID) {
		return false
	}
	if c.MinPriceCents != nil && b.TotalAmountCents < *c.MinPriceCents {
		return false
	}
	if c.MaxPriceCents != nil && b.TotalAmountCents > *c.MaxPriceCents {
		return false
	}
	if len(c.Statuses) > 0 && !slices.Contains(c.Statuses, b.Status) {
		return false
	}
	return true
}
