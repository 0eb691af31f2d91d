package workflow

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bookwell-app/bookwell/services/workflow-service/internal/model"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Render substitutes {{name}} placeholders from vars. Placeholders with no
// matching variable are stripped so half-filled templates never leak raw
// markers to customers.
func Render(template string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		return vars[name]
	})
}

// TemplateVars flattens booking details into the variable set templates can
// reference. Times render in the provider's timezone.
func TemplateVars(b model.BookingDetails) map[string]string {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil || b.Timezone == "" {
		loc = time.UTC
	}
	start := b.StartTime.In(loc)
	end := b.EndTime.In(loc)

	return map[string]string{
		"booking_id":     b.ID,
		"customer_name":  b.CustomerName,
		"customer_email": b.CustomerEmail,
		"customer_phone": b.CustomerPhone,
		"provider_name":  b.ProviderName,
		"service_name":   b.ServiceName,
		"staff_name":     b.StaffName,
		"booking_date":   start.Format("Monday, January 2, 2006"),
		"booking_time":   start.Format("15:04"),
		"start_time":     start.Format(time.RFC3339),
		"end_time":       end.Format(time.RFC3339),
		"status":         b.Status,
		"amount":         formatAmount(b.TotalAmountCents),
		"cancel_reason":  b.CancelReason,
	}
}

func formatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// trim helper shared by recipient resolution.
func normalizeEmail(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}
