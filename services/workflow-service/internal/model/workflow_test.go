package model

import "testing"

func TestTriggerForEvent_CoversEveryLifecycleEvent(t *testing.T) {
	cases := []struct {
		eventType string
		trigger   string
	}{
		{"booking.created.v1", TriggerBookingCreated},
		{"booking.confirmed.v1", TriggerBookingConfirmed},
		{"booking.cancelled.v1", TriggerBookingCancelled},
		{"booking.completed.v1", TriggerBookingCompleted},
		{"booking.no_show.v1", TriggerBookingNoShow},
	}
	for _, tc := range cases {
		got, ok := TriggerForEvent(tc.eventType)
		if !ok || got != tc.trigger {
			t.Fatalf("TriggerForEvent(%q) = %q, %v; want %q", tc.eventType, got, ok, tc.trigger)
		}
	}

	if _, ok := TriggerForEvent("booking.rescheduled.v1"); ok {
		t.Fatal("unknown event types must not map to a trigger")
	}
}
