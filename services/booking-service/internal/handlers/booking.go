package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bookwell-app/bookwell/services/booking-service/internal/booking"
	"github.com/bookwell-app/bookwell/services/booking-service/internal/model"
	"github.com/bookwell-app/bookwell/services/booking-service/internal/payments"
	"github.com/bookwell-app/bookwell/services/booking-service/internal/storage"
)

type BookingHandler struct {
	manager  *booking.Manager
	store    *storage.Store
	refunder payments.Refunder
	logger   *slog.Logger
}

func NewBookingHandler(manager *booking.Manager, store *storage.Store, refunder payments.Refunder, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		manager:  manager,
		store:    store,
		refunder: refunder,
		logger:   logger,
	}
}

type createBookingRequest struct {
	ProviderID       string `json:"provider_id"`
	ServiceID        string `json:"service_id"`
	CustomerID       string `json:"customer_id"`
	CustomerName     string `json:"customer_name"`
	CustomerEmail    string `json:"customer_email"`
	CustomerPhone    string `json:"customer_phone"`
	StartTime        string `json:"start_time"`
	TotalAmountCents int64  `json:"total_amount_cents"`
	PaymentRef       string `json:"payment_ref"`
}

type bookingResponse struct {
	BookingID        string `json:"booking_id"`
	ServiceID        string `json:"service_id"`
	StaffID          string `json:"staff_id,omitempty"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	Status           string `json:"status"`
	TotalAmountCents int64  `json:"total_amount_cents"`
	RefundCents      int64  `json:"refund_cents,omitempty"`
	RefundStatus     string `json:"refund_status,omitempty"`
	CancelledAt      string `json:"cancelled_at,omitempty"`
}

type slotItem struct {
	StartTime           string `json:"start_time"`
	EndTime             string `json:"end_time"`
	Available           bool   `json:"available"`
	AvailableStaffCount int    `json:"available_staff_count"`
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.ProviderID == "" || req.ServiceID == "" || req.CustomerName == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}

	b, err := h.manager.Create(r.Context(), booking.CreateRequest{
		ProviderID:       req.ProviderID,
		ServiceID:        req.ServiceID,
		CustomerID:       strings.TrimSpace(req.CustomerID),
		CustomerName:     req.CustomerName,
		CustomerEmail:    strings.TrimSpace(req.CustomerEmail),
		CustomerPhone:    strings.TrimSpace(req.CustomerPhone),
		StartTime:        start,
		TotalAmountCents: req.TotalAmountCents,
		PaymentRef:       strings.TrimSpace(req.PaymentRef),
	})
	if err != nil {
		if errors.Is(err, booking.ErrSlotUnavailable) {
			h.writeSlotUnavailable(w, r, req.ProviderID, req.ServiceID, start)
			return
		}
		if errors.Is(err, booking.ErrNotFound) {
			http.Error(w, "service not found", http.StatusNotFound)
			return
		}
		h.logger.Error("booking create failed", "err", err)
		http.Error(w, "failed to create booking", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(b))
}

// writeSlotUnavailable rejects with 409 plus the day's remaining open slots,
// so clients can offer a retry-with-different-slot path instead of a generic
// error.
func (h *BookingHandler) writeSlotUnavailable(w http.ResponseWriter, r *http.Request, providerID, serviceID string, start time.Time) {
	var alternates []slotItem
	slots, err := h.manager.DayAvailability(r.Context(), providerID, serviceID, start)
	if err != nil {
		h.logger.Warn("alternate slot lookup failed", "err", err)
	} else {
		for _, s := range slots {
			if !s.Available {
				continue
			}
			alternates = append(alternates, slotItem{
				StartTime:           s.Start.UTC().Format(time.RFC3339),
				EndTime:             s.End.UTC().Format(time.RFC3339),
				Available:           true,
				AvailableStaffCount: s.AvailableStaffCount,
			})
			if len(alternates) >= 10 {
				break
			}
		}
	}
	writeJSON(w, http.StatusConflict, map[string]any{
		"error":           "slot unavailable",
		"alternate_slots": alternates,
	})
}

type transitionRequest struct {
	ProviderID string `json:"provider_id"`
	BookingID  string `json:"booking_id"`
	Reason     string `json:"reason"`
}

func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.manager.Confirm)
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.manager.Complete)
}

func (h *BookingHandler) NoShow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.manager.MarkNoShow)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, ok := decodeTransition(w, r)
	if !ok {
		return
	}

	b, err := h.manager.Cancel(r.Context(), req.ProviderID, req.BookingID, strings.TrimSpace(req.Reason))
	if err != nil {
		writeTransitionError(w, err)
		return
	}

	// Refund after commit. A gateway failure leaves refund_status pending for
	// reconciliation; it never un-cancels the booking.
	if b.RefundCents > 0 && h.refunder != nil {
		status := "refunded"
		if err := h.refunder.Refund(r.Context(), b.PaymentRef, b.RefundCents); err != nil {
			h.logger.Error("refund failed", "booking_id", b.ID, "err", err)
			status = "pending"
		}
		if err := h.store.MarkRefundStatus(r.Context(), b.ID, status); err != nil {
			h.logger.Error("refund status update failed", "booking_id", b.ID, "err", err)
		} else {
			b.RefundStatus = status
		}
	}

	writeJSON(w, http.StatusOK, toResponse(b))
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := requestProviderID(r)
	bookingID := strings.TrimSpace(r.URL.Query().Get("booking_id"))
	if providerID == "" || bookingID == "" {
		http.Error(w, "provider_id and booking_id required", http.StatusBadRequest)
		return
	}

	b, err := h.store.GetBooking(r.Context(), providerID, bookingID)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			http.Error(w, "booking not found", http.StatusNotFound)
			return
		}
		h.logger.Error("booking fetch failed", "err", err)
		http.Error(w, "failed to fetch booking", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(b))
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := requestProviderID(r)
	if providerID == "" {
		http.Error(w, "provider_id required", http.StatusBadRequest)
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	bookings, err := h.store.ListByProvider(r.Context(), providerID, limit)
	if err != nil {
		h.logger.Error("booking list failed", "err", err)
		http.Error(w, "failed to list bookings", http.StatusInternalServerError)
		return
	}

	items := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, toResponse(b))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if providerID == "" || serviceID == "" || dateStr == "" {
		http.Error(w, "provider_id, service_id, and date are required", http.StatusBadRequest)
		return
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	slots, err := h.manager.DayAvailability(r.Context(), providerID, serviceID, date)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			http.Error(w, "service not found", http.StatusNotFound)
			return
		}
		h.logger.Error("availability query failed", "err", err)
		http.Error(w, "failed to compute availability", http.StatusInternalServerError)
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			StartTime:           s.Start.UTC().Format(time.RFC3339),
			EndTime:             s.End.UTC().Format(time.RFC3339),
			Available:           s.Available,
			AvailableStaffCount: s.AvailableStaffCount,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, providerID, bookingID string) (model.Booking, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, ok := decodeTransition(w, r)
	if !ok {
		return
	}
	b, err := fn(r.Context(), req.ProviderID, req.BookingID)
	if err != nil {
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(b))
}

func decodeTransition(w http.ResponseWriter, r *http.Request) (transitionRequest, bool) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return req, false
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.ProviderID == "" || req.BookingID == "" {
		http.Error(w, "provider_id and booking_id required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		http.Error(w, "booking not found", http.StatusNotFound)
	case errors.Is(err, booking.ErrInvalidTransition):
		http.Error(w, "booking cannot change to that status", http.StatusConflict)
	default:
		http.Error(w, "failed to update booking", http.StatusInternalServerError)
	}
}

func requestProviderID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Provider-Id")); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("provider_id"))
}

func toResponse(b model.Booking) bookingResponse {
	resp := bookingResponse{
		BookingID:        b.ID,
		ServiceID:        b.ServiceID,
		StaffID:          b.StaffID,
		StartTime:        b.StartTime.UTC().Format(time.RFC3339),
		EndTime:          b.EndTime.UTC().Format(time.RFC3339),
		Status:           b.Status,
		TotalAmountCents: b.TotalAmountCents,
		RefundCents:      b.RefundCents,
		RefundStatus:     b.RefundStatus,
	}
	if b.CancelledAt != nil {
		resp.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
