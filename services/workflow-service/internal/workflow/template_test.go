package workflow

import (
	"testing"
	"time"

	"github.com/bookwell-app/bookwell/services/workflow-service/internal/model"
)

func TestRender_SubstitutesVariables(t *testing.T) {
	out := Render("Hi {{customer_name}}, see you at {{booking_time}}!", map[string]string{
		"customer_name": "Ada",
		"booking_time":  "14:30",
	})
	if out != "Hi Ada, see you at 14:30!" {
		t.Fatalf("unexpected render: %q", out)
	}
}

func TestRender_StripsUnmatchedPlaceholders(t *testing.T) {
	out := Render("Hello {{customer_name}}{{unknown_var}}.", map[string]string{
		"customer_name": "Ada",
	})
	if out != "Hello Ada." {
		t.Fatalf("unmatched placeholder leaked: %q", out)
	}
}

func TestRender_ToleratesSpacesInsideBraces(t *testing.T) {
	out := Render("{{ service_name }} with {{ staff_name }}", map[string]string{
		"service_name": "Haircut",
		"staff_name":   "Sam",
	})
	if out != "Haircut with Sam" {
		t.Fatalf("unexpected render: %q", out)
	}
}

func TestTemplateVars_RendersInProviderTimezone(t *testing.T) {
	vars := TemplateVars(model.BookingDetails{
		ID:               "b1",
		CustomerName:     "Ada",
		ServiceName:      "Massage",
		StartTime:        time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC),
		EndTime:          time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC),
		Status:           "confirmed",
		TotalAmountCents: 12550,
		Timezone:         "Europe/Oslo",
	})
	// 08:00 UTC is 10:00 in Oslo during DST.
	if vars["booking_time"] != "10:00" {
		t.Fatalf("booking_time = %q, want 10:00", vars["booking_time"])
	}
	if vars["amount"] != "125.50" {
		t.Fatalf("amount = %q, want 125.50", vars["amount"])
	}
}
