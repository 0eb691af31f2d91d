package policy

import (
	"sort"
	"time"

	"github.com/bookwell-app/bookwell/services/booking-service/internal/model"
)

// DefaultFullRefundCutoff is the flat fallback when a provider has not
// configured a tiered cancellation policy: full refund at 24 hours or more
// before start, nothing after that.
const DefaultFullRefundCutoff = 24 * time.Hour

// RefundPercent returns the refund percentage for cancelling at cancelledAt a
// booking starting at start. With a configured policy the most demanding tier
// the notice satisfies wins; tiers are evaluated largest MinHoursBefore
// first. Cancelling after start always refunds nothing.
func RefundPercent(pol model.CancellationPolicy, configured bool, start, cancelledAt time.Time) int {
	notice := start.Sub(cancelledAt)
	if notice <= 0 {
		return 0
	}

	if !configured || len(pol.Tiers) == 0 {
		if notice >= DefaultFullRefundCutoff {
			return 100
		}
		return 0
	}

	tiers := make([]model.RefundTier, len(pol.Tiers))
	copy(tiers, pol.Tiers)
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].MinHoursBefore > tiers[j].MinHoursBefore
	})

	for _, t := range tiers {
		if notice >= time.Duration(t.MinHoursBefore)*time.Hour {
			return clampPercent(t.RefundPercent)
		}
	}
	return 0
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
