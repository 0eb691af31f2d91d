package policy

import (
	"testing"
	"time"

	"github.com/bookwell-app/bookwell/services/booking-service/internal/model"
)

func TestRefundPercent_FlatFallback(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	if got := RefundPercent(model.CancellationPolicy{}, false, start, start.Add(-25*time.Hour)); got != 100 {
		t.Fatalf("expected 100%% at 25h notice, got %d", got)
	}
	if got := RefundPercent(model.CancellationPolicy{}, false, start, start.Add(-24*time.Hour)); got != 100 {
		t.Fatalf("expected 100%% at exactly 24h notice, got %d", got)
	}
	if got := RefundPercent(model.CancellationPolicy{}, false, start, start.Add(-2*time.Hour)); got != 0 {
		t.Fatalf("expected 0%% at 2h notice, got %d", got)
	}
}

func TestRefundPercent_TieredPolicy(t *testing.T) {
	pol := model.CancellationPolicy{
		ProviderID: "prov-1",
		Tiers: []model.RefundTier{
			{MinHoursBefore: 2, RefundPercent: 25},
			{MinHoursBefore: 48, RefundPercent: 100},
			{MinHoursBefore: 24, RefundPercent: 50},
		},
	}
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		notice time.Duration
		want   int
	}{
		{72 * time.Hour, 100},
		{30 * time.Hour, 50},
		{3 * time.Hour, 25},
		{30 * time.Minute, 0},
	}
	for _, tc := range cases {
		if got := RefundPercent(pol, true, start, start.Add(-tc.notice)); got != tc.want {
			t.Fatalf("notice %s: expected %d%%, got %d%%", tc.notice, tc.want, got)
		}
	}
}

func TestRefundPercent_AfterStart(t *testing.T) {
	pol := model.CancellationPolicy{Tiers: []model.RefundTier{{MinHoursBefore: 0, RefundPercent: 100}}}
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	if got := RefundPercent(pol, true, start, start.Add(time.Minute)); got != 0 {
		t.Fatalf("expected 0%% after start, got %d", got)
	}
}
