package availability

import (
	"time"

	"github.com/bookwell-app/bookwell/services/booking-service/internal/model"
)

// Snapshot is everything the resolver needs to decide one candidate interval.
// The store fetches only rows overlapping the queried window, so decision
// cost stays proportional to local contention, not to the whole dataset.
type Snapshot struct {
	Service model.Service

	// Roster is the candidate staff in stable order: all active staff of the
	// provider when the service allows any staff member, otherwise only the
	// staff explicitly assigned to the service.
	Roster []model.StaffMember

	// ServiceBookings are the occupied windows (visible interval expanded by
	// the service buffers) of non-terminal bookings for this service.
	ServiceBookings []Interval

	// StaffBookings are the occupied windows of non-terminal bookings held by
	// roster staff, across all services of the provider.
	StaffBookings []StaffInterval

	// Blocks are the explicit unavailability intervals overlapping the
	// queried window, provider-level and staff-level.
	Blocks []model.AvailabilityBlock
}

type StaffInterval struct {
	StaffID string
	Interval
}

// Decision is the admission outcome for one candidate interval.
type Decision struct {
	OK             bool
	AvailableStaff []string
	OverlapCount   int
	Capacity       int
}

// AvailableStaff returns the roster members free during [start,end). A staff
// member is excluded if any of their non-terminal bookings' occupied windows
// intersect the candidate's occupied window, or if a staff-level block
// overlaps the visible slot. An empty result means no staff is free; for
// staff-requiring services the caller treats that as unavailable, not as an
// error. Services that do not require staff always yield nil.
func AvailableStaff(snap Snapshot, start, end time.Time) []string {
	if !snap.Service.RequiresStaff {
		return nil
	}
	slot := Interval{Start: start, End: end}
	occupied := OccupiedWindow(snap.Service, start)

	var free []string
	for _, staff := range snap.Roster {
		if !staff.IsActive {
			continue
		}
		if staffBusy(snap.StaffBookings, staff.ID, occupied) {
			continue
		}
		if staffBlocked(snap.Blocks, staff.ID, slot) {
			continue
		}
		free = append(free, staff.ID)
	}
	return free
}

// Admit decides whether one more booking fits in [start,end). Provider-level
// blocks veto regardless of capacity. For staff-requiring services capacity
// is min(free staff, maxConcurrent); otherwise maxConcurrent alone governs.
// Admit is read-only and safe to call repeatedly.
func Admit(snap Snapshot, start, end time.Time) Decision {
	slot := Interval{Start: start, End: end}
	for _, b := range snap.Blocks {
		if b.IsAvailable || b.StaffID != "" {
			continue
		}
		if Overlaps(slot, Interval{Start: b.StartTime, End: b.EndTime}) {
			return Decision{}
		}
	}

	occupied := OccupiedWindow(snap.Service, start)
	count := 0
	for _, iv := range snap.ServiceBookings {
		if Overlaps(occupied, iv) {
			count++
		}
	}

	capacity := snap.Service.MaxConcurrent
	var free []string
	if snap.Service.RequiresStaff {
		free = AvailableStaff(snap, start, end)
		if len(free) == 0 {
			return Decision{OverlapCount: count}
		}
		if len(free) < capacity {
			capacity = len(free)
		}
	}

	return Decision{
		OK:             count < capacity,
		AvailableStaff: free,
		OverlapCount:   count,
		Capacity:       capacity,
	}
}

func staffBusy(bookings []StaffInterval, staffID string, occupied Interval) bool {
	for _, b := range bookings {
		if b.StaffID == staffID && Overlaps(occupied, b.Interval) {
			return true
		}
	}
	return false
}

func staffBlocked(blocks []model.AvailabilityBlock, staffID string, slot Interval) bool {
	for _, b := range blocks {
		if b.IsAvailable || b.StaffID != staffID {
			continue
		}
		if Overlaps(slot, Interval{Start: b.StartTime, End: b.EndTime}) {
			return true
		}
	}
	return false
}
