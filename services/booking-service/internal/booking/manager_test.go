package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bookwell-app/bookwell/services/booking-service/internal/availability"
	"github.com/bookwell-app/bookwell/services/booking-service/internal/model"
)

// memStore is an in-memory Store. A single mutex serializes transactions,
// which is exactly the isolation contract the manager expects from Postgres
// row locking; writes are staged and applied only when the tx function
// returns nil.
type memStore struct {
	mu       sync.Mutex
	services map[string]model.Service
	hours    map[string]model.BusinessHours
	tz       map[string]string
	roster   map[string][]model.StaffMember
	blocks   []model.AvailabilityBlock
	policies map[string]model.CancellationPolicy
	bookings map[string]model.Booking
	events   []memEvent
}

type memEvent struct {
	eventType   string
	aggregateID string
	payload     []byte
}

type memTx struct {
	s        *memStore
	inserted []model.Booking
	updated  []model.Booking
	events   []memEvent
}

func newMemStore() *memStore {
	return &memStore{
		services: map[string]model.Service{},
		hours:    map[string]model.BusinessHours{},
		tz:       map[string]string{},
		roster:   map[string][]model.StaffMember{},
		policies: map[string]model.CancellationPolicy{},
		bookings: map[string]model.Booking{},
	}
}

func svcKey(providerID, serviceID string) string { return providerID + "|" + serviceID }

func (s *memStore) addService(svc model.Service, roster ...model.StaffMember) {
	s.services[svcKey(svc.ProviderID, svc.ID)] = svc
	s.roster[svcKey(svc.ProviderID, svc.ID)] = roster
}

func (s *memStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		return err
	}
	for _, b := range tx.inserted {
		s.bookings[b.ID] = b
	}
	for _, b := range tx.updated {
		s.bookings[b.ID] = b
	}
	s.events = append(s.events, tx.events...)
	return nil
}

func (s *memStore) ReadService(_ context.Context, providerID, serviceID string) (model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[svcKey(providerID, serviceID)]
	if !ok {
		return model.Service{}, ErrNotFound
	}
	return svc, nil
}

func (s *memStore) ReadHours(_ context.Context, providerID string, weekday time.Weekday) (model.BusinessHours, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hours[providerID+"|"+weekday.String()], nil
}

func (s *memStore) ReadTimezone(_ context.Context, providerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tz := s.tz[providerID]; tz != "" {
		return tz, nil
	}
	return "UTC", nil
}

func (s *memStore) ReadSnapshot(_ context.Context, svc model.Service, window availability.Interval) (availability.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(svc, window), nil
}

func (s *memStore) snapshot(svc model.Service, window availability.Interval) availability.Snapshot {
	snap := availability.Snapshot{
		Service: svc,
		Roster:  s.roster[svcKey(svc.ProviderID, svc.ID)],
	}
	for _, b := range s.bookings {
		if b.ProviderID != svc.ProviderID || !model.CountsTowardCapacity(b.Status) {
			continue
		}
		bSvc, ok := s.services[svcKey(b.ProviderID, b.ServiceID)]
		if !ok {
			bSvc = svc
		}
		occupied := availability.OccupiedWindow(bSvc, b.StartTime)
		if !availability.Overlaps(occupied, window) {
			continue
		}
		if b.ServiceID == svc.ID {
			snap.ServiceBookings = append(snap.ServiceBookings, occupied)
		}
		if b.StaffID != "" {
			snap.StaffBookings = append(snap.StaffBookings, availability.StaffInterval{StaffID: b.StaffID, Interval: occupied})
		}
	}
	for _, blk := range s.blocks {
		if blk.ProviderID != svc.ProviderID {
			continue
		}
		if availability.Overlaps(availability.Interval{Start: blk.StartTime, End: blk.EndTime}, window) {
			snap.Blocks = append(snap.Blocks, blk)
		}
	}
	return snap
}

func (tx *memTx) LockService(_ context.Context, providerID, serviceID string) (model.Service, error) {
	svc, ok := tx.s.services[svcKey(providerID, serviceID)]
	if !ok {
		return model.Service{}, ErrNotFound
	}
	return svc, nil
}

func (tx *memTx) Snapshot(_ context.Context, svc model.Service, window availability.Interval) (availability.Snapshot, error) {
	return tx.s.snapshot(svc, window), nil
}

func (tx *memTx) InsertBooking(_ context.Context, b *model.Booking) error {
	tx.inserted = append(tx.inserted, *b)
	return nil
}

func (tx *memTx) LockBooking(_ context.Context, providerID, bookingID string) (model.Booking, error) {
	b, ok := tx.s.bookings[bookingID]
	if !ok || b.ProviderID != providerID {
		return model.Booking{}, ErrNotFound
	}
	return b, nil
}

func (tx *memTx) UpdateBooking(_ context.Context, b model.Booking) error {
	tx.updated = append(tx.updated, b)
	return nil
}

func (tx *memTx) CancellationPolicy(_ context.Context, providerID string) (model.CancellationPolicy, bool, error) {
	pol, ok := tx.s.policies[providerID]
	return pol, ok, nil
}

func (tx *memTx) AppendEvent(_ context.Context, eventType, aggregateID string, payload []byte) error {
	tx.events = append(tx.events, memEvent{eventType: eventType, aggregateID: aggregateID, payload: payload})
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func monday(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

// testManager pins the clock to the Sunday before monday() so the fixed test
// dates always count as future.
func testManager(store *memStore) *Manager {
	mgr := NewManager(store, testLogger())
	mgr.now = func() time.Time { return monday(0, 0).Add(-24 * time.Hour) }
	return mgr
}

func TestCreate_ConcurrentSingleSlot(t *testing.T) {
	store := newMemStore()
	store.addService(model.Service{
		ID: "svc-1", ProviderID: "prov-1", DurationMins: 60, MaxConcurrent: 1,
	})
	mgr := testManager(store)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = mgr.Create(context.Background(), CreateRequest{
				ProviderID: "prov-1",
				ServiceID:  "svc-1",
				StartTime:  monday(10, 0),
			})
		}(i)
	}
	wg.Wait()

	won, lost := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrSlotUnavailable):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 || lost != n-1 {
		t.Fatalf("expected exactly 1 winner and %d ErrSlotUnavailable, got %d/%d", n-1, won, lost)
	}
}

func TestCreate_EndToEndScenario(t *testing.T) {
	store := newMemStore()
	store.addService(model.Service{
		ID: "svc-1", ProviderID: "prov-1", DurationMins: 60, MaxConcurrent: 1,
	})
	store.hours["prov-1|Monday"] = model.BusinessHours{
		ProviderID: "prov-1", Weekday: time.Monday, IsOpen: true, OpenTime: "09:00", CloseTime: "17:00",
	}
	mgr := testManager(store)
	ctx := context.Background()

	first, err := mgr.Create(ctx, CreateRequest{ProviderID: "prov-1", ServiceID: "svc-1", StartTime: monday(10, 0)})
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if first.Status != model.StatusPending {
		t.Fatalf("expected pending, got %s", first.Status)
	}
	if !first.EndTime.Equal(monday(11, 0)) {
		t.Fatalf("expected end 11:00, got %s", first.EndTime.Format(time.RFC3339))
	}

	_, err = mgr.Create(ctx, CreateRequest{ProviderID: "prov-1", ServiceID: "svc-1", StartTime: monday(10, 30)})
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable for overlapping 10:30, got %v", err)
	}

	third, err := mgr.Create(ctx, CreateRequest{ProviderID: "prov-1", ServiceID: "svc-1", StartTime: monday(11, 0)})
	if err != nil {
		t.Fatalf("touching 11:00 booking should succeed: %v", err)
	}
	if !third.EndTime.Equal(monday(12, 0)) {
		t.Fatalf("expected end 12:00, got %s", third.EndTime.Format(time.RFC3339))
	}
}

func TestCreate_DeterministicStaffAssignment(t *testing.T) {
	store := newMemStore()
	store.addService(
		model.Service{ID: "svc-1", ProviderID: "prov-1", DurationMins: 60, RequiresStaff: true, AnyStaffMember: true, MaxConcurrent: 5},
		model.StaffMember{ID: "staff-a", ProviderID: "prov-1", IsActive: true},
		model.StaffMember{ID: "staff-b", ProviderID: "prov-1", IsActive: true},
	)
	mgr := testManager(store)
	ctx := context.Background()

	b1, err := mgr.Create(ctx, CreateRequest{ProviderID: "prov-1", ServiceID: "svc-1", StartTime: monday(10, 0)})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if b1.StaffID != "staff-a" {
		t.Fatalf("expected staff-a first, got %s", b1.StaffID)
	}

	b2, err := mgr.Create(ctx, CreateRequest{ProviderID: "prov-1", ServiceID: "svc-1", StartTime: monday(10, 0)})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if b2.StaffID != "staff-b" {
		t.Fatalf("expected staff-b second, got %s", b2.StaffID)
	}

	if _, err := mgr.Create(ctx, CreateRequest{ProviderID: "prov-1", ServiceID: "svc-1", StartTime: monday(10, 0)}); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable with all staff taken, got %v", err)
	}
}

func TestCreate_StaffSharedAcrossServices(t *testing.T) {
	store := newMemStore()
	solo := model.StaffMember{ID: "staff-a", ProviderID: "prov-1", IsActive: true}
	store.addService(
		model.Service{ID: "svc-cut", ProviderID: "prov-1", DurationMins: 60, RequiresStaff: true, MaxConcurrent: 3},
		solo,
	)
	store.addService(
		model.Service{ID: "svc-color", ProviderID: "prov-1", DurationMins: 60, RequiresStaff: true, MaxConcurrent: 3},
		solo,
	)
	mgr := testManager(store)
	ctx := context.Background()

	if _, err := mgr.Create(ctx, CreateRequest{ProviderID: "prov-1", ServiceID: "svc-cut", StartTime: monday(10, 0)}); err != nil {
		t.Fatalf("first service: %v", err)
	}

	// The other service has no bookings of its own, but its only staff member
	// is already occupied.
	if _, err := mgr.Create(ctx, CreateRequest{ProviderID: "prov-1", ServiceID: "svc-color", StartTime: monday(10, 30)}); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable across services sharing staff, got %v", err)
	}

	if _, err := mgr.Create(ctx, CreateRequest{ProviderID: "prov-1", ServiceID: "svc-color", StartTime: monday(11, 0)}); err != nil {
		t.Fatalf("staff free again at 11:00: %v", err)
	}
}

func TestCreate_RejectsPastStart(t *testing.T) {
	store := newMemStore()
	store.addService(model.Service{ID: "svc-1", ProviderID: "prov-1", DurationMins: 60, MaxConcurrent: 1})
	mgr := testManager(store)
	mgr.now = func() time.Time { return monday(12, 0) }

	_, err := mgr.Create(context.Background(), CreateRequest{
		ProviderID: "prov-1", ServiceID: "svc-1", StartTime: monday(10, 0),
	})
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable for a past start, got %v", err)
	}
	if len(store.bookings) != 0 {
		t.Fatalf("past booking must not be stored, got %d", len(store.bookings))
	}
}

func TestCancel_AppliesRefundPolicy(t *testing.T) {
	store := newMemStore()
	store.addService(model.Service{ID: "svc-1", ProviderID: "prov-1", DurationMins: 60, MaxConcurrent: 1})
	store.policies["prov-1"] = model.CancellationPolicy{
		ProviderID: "prov-1",
		Tiers: []model.RefundTier{
			{MinHoursBefore: 48, RefundPercent: 100},
			{MinHoursBefore: 24, RefundPercent: 50},
		},
	}
	mgr := testManager(store)
	mgr.now = func() time.Time { return monday(10, 0).Add(-30 * time.Hour) }
	ctx := context.Background()

	b, err := mgr.Create(ctx, CreateRequest{
		ProviderID: "prov-1", ServiceID: "svc-1", StartTime: monday(10, 0), TotalAmountCents: 10000,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cancelled, err := mgr.Cancel(ctx, "prov-1", b.ID, "change of plans")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if cancelled.RefundCents != 5000 {
		t.Fatalf("expected 50%% refund (5000), got %d", cancelled.RefundCents)
	}
	if cancelled.RefundStatus != "pending" {
		t.Fatalf("expected refund pending, got %s", cancelled.RefundStatus)
	}

	// Cancelling again is a no-op returning current state.
	again, err := mgr.Cancel(ctx, "prov-1", b.ID, "dup")
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if again.CancelReason != "change of plans" {
		t.Fatalf("second cancel must not overwrite, got reason %q", again.CancelReason)
	}
}

func TestCancel_FreesTheSlot(t *testing.T) {
	store := newMemStore()
	store.addService(model.Service{ID: "svc-1", ProviderID: "prov-1", DurationMins: 60, MaxConcurrent: 1})
	mgr := testManager(store)
	ctx := context.Background()

	b, err := mgr.Create(ctx, CreateRequest{ProviderID: "prov-1", ServiceID: "svc-1", StartTime: monday(10, 0)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := mgr.Cancel(ctx, "prov-1", b.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := mgr.Create(ctx, CreateRequest{ProviderID: "prov-1", ServiceID: "svc-1", StartTime: monday(10, 0)}); err != nil {
		t.Fatalf("slot should be free after cancellation: %v", err)
	}
}

func TestTransitions(t *testing.T) {
	store := newMemStore()
	store.addService(model.Service{ID: "svc-1", ProviderID: "prov-1", DurationMins: 60, MaxConcurrent: 1})
	mgr := testManager(store)
	ctx := context.Background()

	b, err := mgr.Create(ctx, CreateRequest{ProviderID: "prov-1", ServiceID: "svc-1", StartTime: monday(10, 0)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := mgr.Complete(ctx, "prov-1", b.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("completing a pending booking must fail, got %v", err)
	}

	if _, err := mgr.Confirm(ctx, "prov-1", b.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := mgr.Complete(ctx, "prov-1", b.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := mgr.Cancel(ctx, "prov-1", b.ID, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancelling a completed booking must fail, got %v", err)
	}
}

func TestCreate_EmitsLifecycleEvents(t *testing.T) {
	store := newMemStore()
	store.addService(model.Service{ID: "svc-1", ProviderID: "prov-1", DurationMins: 60, MaxConcurrent: 1})
	mgr := testManager(store)
	ctx := context.Background()

	b, err := mgr.Create(ctx, CreateRequest{ProviderID: "prov-1", ServiceID: "svc-1", StartTime: monday(10, 0)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := mgr.Cancel(ctx, "prov-1", b.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if len(store.events) != 2 {
		t.Fatalf("expected 2 outbox events, got %d", len(store.events))
	}
	if store.events[0].eventType != EventCreated || store.events[1].eventType != EventCancelled {
		t.Fatalf("unexpected event types: %s, %s", store.events[0].eventType, store.events[1].eventType)
	}
}

func TestDayAvailability(t *testing.T) {
	store := newMemStore()
	store.addService(model.Service{ID: "svc-1", ProviderID: "prov-1", DurationMins: 60, MaxConcurrent: 1})
	store.hours["prov-1|Monday"] = model.BusinessHours{
		ProviderID: "prov-1", Weekday: time.Monday, IsOpen: true, OpenTime: "09:00", CloseTime: "12:00",
	}
	mgr := testManager(store)
	ctx := context.Background()

	if _, err := mgr.Create(ctx, CreateRequest{ProviderID: "prov-1", ServiceID: "svc-1", StartTime: monday(10, 0)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	slots, err := mgr.DayAvailability(ctx, "prov-1", "svc-1", monday(0, 0))
	if err != nil {
		t.Fatalf("day availability: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	if !slots[0].Available || !slots[2].Available {
		t.Fatalf("9:00 and 11:00 should be available: %+v", slots)
	}
	if slots[1].Available {
		t.Fatalf("10:00 should be taken: %+v", slots[1])
	}
}

func TestDayAvailability_DropsElapsedSlots(t *testing.T) {
	store := newMemStore()
	store.addService(model.Service{ID: "svc-1", ProviderID: "prov-1", DurationMins: 60, MaxConcurrent: 1})
	store.hours["prov-1|Monday"] = model.BusinessHours{
		ProviderID: "prov-1", Weekday: time.Monday, IsOpen: true, OpenTime: "09:00", CloseTime: "13:00",
	}
	mgr := testManager(store)
	mgr.now = func() time.Time { return monday(10, 30) }

	slots, err := mgr.DayAvailability(context.Background(), "prov-1", "svc-1", monday(0, 0))
	if err != nil {
		t.Fatalf("day availability: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected only the 11:00 and 12:00 slots mid-day, got %d: %+v", len(slots), slots)
	}
	if !slots[0].Start.Equal(monday(11, 0)) {
		t.Fatalf("first remaining slot should be 11:00, got %s", slots[0].Start.Format(time.RFC3339))
	}
}
