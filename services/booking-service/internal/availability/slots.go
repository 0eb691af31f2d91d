package availability

import (
	"time"

	"github.com/bookwell-app/bookwell/services/booking-service/internal/model"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports half-open interval intersection: [a.Start,a.End) overlaps
// [b.Start,b.End) iff a.Start < b.End && b.Start < a.End. Touching endpoints
// do not conflict.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// OccupiedWindow is the interval a booking at start actually blocks for
// capacity purposes: the visible slot plus the service buffers.
func OccupiedWindow(svc model.Service, start time.Time) Interval {
	return Interval{
		Start: start.Add(-time.Duration(svc.BufferBeforeMins) * time.Minute),
		End:   start.Add(time.Duration(svc.DurationMins+svc.BufferAfterMins) * time.Minute),
	}
}

// Grid generates the candidate slots for one date from the provider's
// business hours for that weekday. Candidates are spaced by the service
// duration; buffers narrow the usable window at both ends so that every
// candidate's occupied window fits inside open..close. A closed day yields
// nil.
//
// Business hours are local wall-clock strings. All minute arithmetic happens
// on local wall-clock offsets first and each instant is converted to UTC
// exactly once, so the grid does not drift across DST transitions.
func Grid(date time.Time, hours model.BusinessHours, loc *time.Location, svc model.Service) []Interval {
	if !hours.IsOpen || svc.DurationMins <= 0 {
		return nil
	}
	openMin, ok := parseClock(hours.OpenTime)
	if !ok {
		return nil
	}
	closeMin, ok := parseClock(hours.CloseTime)
	if !ok || closeMin <= openMin {
		return nil
	}

	year, month, day := date.Date()
	at := func(minute int) time.Time {
		return time.Date(year, month, day, minute/60, minute%60, 0, 0, loc).UTC()
	}

	var slots []Interval
	for startMin := openMin + svc.BufferBeforeMins; startMin+svc.DurationMins+svc.BufferAfterMins <= closeMin; startMin += svc.DurationMins {
		slots = append(slots, Interval{
			Start: at(startMin),
			End:   at(startMin + svc.DurationMins),
		})
	}
	return slots
}

// parseClock converts "15:04" to minutes since local midnight.
func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
