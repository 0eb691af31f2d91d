package availability

import (
	"testing"
	"time"

	"github.com/bookwell-app/bookwell/services/booking-service/internal/model"
)

func mondayHours(open, close string) model.BusinessHours {
	return model.BusinessHours{
		ProviderID: "prov-1",
		Weekday:    time.Monday,
		IsOpen:     true,
		OpenTime:   open,
		CloseTime:  close,
	}
}

func TestGrid_Basic(t *testing.T) {
	svc := model.Service{DurationMins: 60, MaxConcurrent: 1}
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday

	slots := Grid(date, mondayHours("09:00", "17:00"), time.UTC, svc)
	if len(slots) != 8 {
		t.Fatalf("expected 8 slots, got %d", len(slots))
	}
	if !slots[0].Start.Equal(date.Add(9 * time.Hour)) {
		t.Fatalf("expected first slot 09:00, got %s", slots[0].Start.Format(time.RFC3339))
	}
	if !slots[7].End.Equal(date.Add(17 * time.Hour)) {
		t.Fatalf("expected last slot to end 17:00, got %s", slots[7].End.Format(time.RFC3339))
	}
}

func TestGrid_BuffersNarrowTheWindow(t *testing.T) {
	svc := model.Service{DurationMins: 30, BufferBeforeMins: 10, BufferAfterMins: 15, MaxConcurrent: 1}
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	slots := Grid(date, mondayHours("09:00", "10:30"), time.UTC, svc)
	// First candidate starts at 09:10 (open + buffer-before). 09:10+30+15 and
	// 09:40+30+15 fit before 10:30; 10:10+30+15 would run past close.
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if !slots[0].Start.Equal(date.Add(9*time.Hour + 10*time.Minute)) {
		t.Fatalf("expected first slot 09:10, got %s", slots[0].Start.Format(time.RFC3339))
	}
	if !slots[1].Start.Equal(date.Add(9*time.Hour + 40*time.Minute)) {
		t.Fatalf("expected second slot 09:40, got %s", slots[1].Start.Format(time.RFC3339))
	}
}

func TestGrid_ClosedDay(t *testing.T) {
	svc := model.Service{DurationMins: 30, MaxConcurrent: 1}
	hours := model.BusinessHours{ProviderID: "prov-1", Weekday: time.Sunday, IsOpen: false}
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if slots := Grid(date, hours, time.UTC, svc); slots != nil {
		t.Fatalf("expected no slots on a closed day, got %d", len(slots))
	}
}

func TestGrid_TimezoneConversion(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Oslo")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	svc := model.Service{DurationMins: 60, MaxConcurrent: 1}
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, loc) // Monday, CET (UTC+1)

	slots := Grid(date, mondayHours("09:00", "11:00"), loc, svc)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	want := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	if !slots[0].Start.Equal(want) {
		t.Fatalf("expected 09:00 local = 08:00 UTC, got %s", slots[0].Start.Format(time.RFC3339))
	}
}

func TestGrid_DSTTransitionKeepsWallClock(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Oslo")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	svc := model.Service{DurationMins: 60, MaxConcurrent: 1}
	// 2026-03-29 is the CET->CEST switch (clocks jump 02:00 -> 03:00).
	date := time.Date(2026, 3, 29, 0, 0, 0, 0, loc)
	hours := model.BusinessHours{ProviderID: "prov-1", Weekday: time.Sunday, IsOpen: true, OpenTime: "09:00", CloseTime: "12:00"}

	slots := Grid(date, hours, loc, svc)
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	// 09:00 local is CEST (UTC+2) after the switch: 07:00 UTC, not 08:00.
	want := time.Date(2026, 3, 29, 7, 0, 0, 0, time.UTC)
	if !slots[0].Start.Equal(want) {
		t.Fatalf("expected 07:00 UTC, got %s", slots[0].Start.Format(time.RFC3339))
	}
}

func TestOverlaps_HalfOpen(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	booked := Interval{Start: base, End: base.Add(30 * time.Minute)}

	touching := Interval{Start: base.Add(30 * time.Minute), End: base.Add(60 * time.Minute)}
	if Overlaps(booked, touching) {
		t.Fatal("10:00-10:30 and 10:30-11:00 must not conflict")
	}

	straddling := Interval{Start: base.Add(15 * time.Minute), End: base.Add(45 * time.Minute)}
	if !Overlaps(booked, straddling) {
		t.Fatal("10:00-10:30 and 10:15-10:45 must conflict")
	}
}

func TestOccupiedWindow_IncludesBuffers(t *testing.T) {
	svc := model.Service{DurationMins: 30, BufferAfterMins: 15, MaxConcurrent: 1}
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	w := OccupiedWindow(svc, start)
	if !w.Start.Equal(start) {
		t.Fatalf("expected occupied start 10:00, got %s", w.Start.Format(time.RFC3339))
	}
	if !w.End.Equal(start.Add(45 * time.Minute)) {
		t.Fatalf("expected occupied end 10:45, got %s", w.End.Format(time.RFC3339))
	}
}
