package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bookwell-app/bookwell/services/provider-service/internal/storage"
)

type Handler struct {
	repo *storage.Repository
}

func New(repo *storage.Repository) *Handler {
	return &Handler{repo: repo}
}

func providerIDFromHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Provider-Id"))
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := providerIDFromHeader(r)
	if providerID == "" {
		http.Error(w, "missing X-Provider-Id", http.StatusBadRequest)
		return
	}

	p, err := h.repo.GetOrCreateProvider(r.Context(), providerID)
	if err != nil {
		http.Error(w, "failed to load provider", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := providerIDFromHeader(r)
	if providerID == "" {
		http.Error(w, "missing X-Provider-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Timezone string `json:"timezone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Timezone = strings.TrimSpace(req.Timezone)
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		http.Error(w, "invalid timezone", http.StatusBadRequest)
		return
	}

	err := h.repo.UpdateProvider(r.Context(), storage.Provider{
		ID:       providerID,
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.TrimSpace(req.Email),
		Timezone: req.Timezone,
	})
	if err != nil {
		http.Error(w, "failed to update provider", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := providerIDFromHeader(r)
	if providerID == "" {
		http.Error(w, "missing X-Provider-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		Name             string   `json:"name"`
		DurationMins     int      `json:"duration_mins"`
		BufferBeforeMins int      `json:"buffer_before_mins"`
		BufferAfterMins  int      `json:"buffer_after_mins"`
		RequiresStaff    bool     `json:"requires_staff"`
		AnyStaffMember   bool     `json:"any_staff_member"`
		MaxConcurrent    int      `json:"max_concurrent"`
		PriceCents       int64    `json:"price_cents"`
		StaffIDs         []string `json:"staff_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.DurationMins <= 0 {
		http.Error(w, "name and duration_mins required", http.StatusBadRequest)
		return
	}
	if req.BufferBeforeMins < 0 || req.BufferAfterMins < 0 || req.PriceCents < 0 {
		http.Error(w, "buffers and price must not be negative", http.StatusBadRequest)
		return
	}
	if req.MaxConcurrent <= 0 {
		req.MaxConcurrent = 1
	}

	id, err := h.repo.CreateService(r.Context(), storage.Service{
		ProviderID:       providerID,
		Name:             req.Name,
		DurationMins:     req.DurationMins,
		BufferBeforeMins: req.BufferBeforeMins,
		BufferAfterMins:  req.BufferAfterMins,
		RequiresStaff:    req.RequiresStaff,
		AnyStaffMember:   req.AnyStaffMember,
		MaxConcurrent:    req.MaxConcurrent,
		PriceCents:       req.PriceCents,
	}, req.StaffIDs)
	if err != nil {
		http.Error(w, "failed to create service", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := providerIDFromHeader(r)
	if providerID == "" {
		http.Error(w, "missing X-Provider-Id", http.StatusBadRequest)
		return
	}

	services, err := h.repo.ListServices(r.Context(), providerID, 100)
	if err != nil {
		http.Error(w, "failed to list services", http.StatusInternalServerError)
		return
	}
	if services == nil {
		services = []storage.Service{}
	}
	writeJSON(w, http.StatusOK, services)
}

func (h *Handler) AssignStaff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := providerIDFromHeader(r)
	if providerID == "" {
		http.Error(w, "missing X-Provider-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		ServiceID string `json:"service_id"`
		StaffID   string `json:"staff_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.StaffID = strings.TrimSpace(req.StaffID)
	if req.ServiceID == "" || req.StaffID == "" {
		http.Error(w, "service_id and staff_id required", http.StatusBadRequest)
		return
	}

	if err := h.repo.AssignStaff(r.Context(), providerID, req.ServiceID, req.StaffID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "service or staff not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to assign staff", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := providerIDFromHeader(r)
	if providerID == "" {
		http.Error(w, "missing X-Provider-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}

	id, err := h.repo.CreateStaff(r.Context(), providerID, req.Name, strings.TrimSpace(req.Email))
	if err != nil {
		http.Error(w, "failed to create staff", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) ListStaff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := providerIDFromHeader(r)
	if providerID == "" {
		http.Error(w, "missing X-Provider-Id", http.StatusBadRequest)
		return
	}

	staff, err := h.repo.ListStaff(r.Context(), providerID, 100)
	if err != nil {
		http.Error(w, "failed to list staff", http.StatusInternalServerError)
		return
	}
	if staff == nil {
		staff = []storage.StaffMember{}
	}
	writeJSON(w, http.StatusOK, staff)
}

func (h *Handler) SetStaffActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := providerIDFromHeader(r)
	if providerID == "" {
		http.Error(w, "missing X-Provider-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		StaffID  string `json:"staff_id"`
		IsActive bool   `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.StaffID = strings.TrimSpace(req.StaffID)
	if req.StaffID == "" {
		http.Error(w, "staff_id required", http.StatusBadRequest)
		return
	}

	if err := h.repo.SetStaffActive(r.Context(), providerID, req.StaffID, req.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "staff not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update staff", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpsertHours(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := providerIDFromHeader(r)
	if providerID == "" {
		http.Error(w, "missing X-Provider-Id", http.StatusBadRequest)
		return
	}

	var req []storage.BusinessHours
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	for _, h := range req {
		if h.Weekday < 0 || h.Weekday > 6 {
			http.Error(w, "weekday must be 0..6", http.StatusBadRequest)
			return
		}
		if h.IsOpen && !validClockRange(h.OpenTime, h.CloseTime) {
			http.Error(w, "open_time must precede close_time (HH:MM)", http.StatusBadRequest)
			return
		}
	}
	for _, hr := range req {
		if err := h.repo.UpsertHours(r.Context(), providerID, hr); err != nil {
			http.Error(w, "failed to save hours", http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListHours(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := providerIDFromHeader(r)
	if providerID == "" {
		http.Error(w, "missing X-Provider-Id", http.StatusBadRequest)
		return
	}

	hours, err := h.repo.ListHours(r.Context(), providerID)
	if err != nil {
		http.Error(w, "failed to list hours", http.StatusInternalServerError)
		return
	}
	if hours == nil {
		hours = []storage.BusinessHours{}
	}
	writeJSON(w, http.StatusOK, hours)
}

func (h *Handler) CreateBlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := providerIDFromHeader(r)
	if providerID == "" {
		http.Error(w, "missing X-Provider-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		StaffID   string `json:"staff_id"`
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
		Reason    string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil || !end.After(start) {
		http.Error(w, "end_time must follow start_time", http.StatusBadRequest)
		return
	}

	id, err := h.repo.CreateBlock(r.Context(), storage.Block{
		ProviderID:  providerID,
		StaffID:     strings.TrimSpace(req.StaffID),
		StartTime:   start,
		EndTime:     end,
		IsAvailable: false,
		Reason:      strings.TrimSpace(req.Reason),
	})
	if err != nil {
		http.Error(w, "failed to create block", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := providerIDFromHeader(r)
	if providerID == "" {
		http.Error(w, "missing X-Provider-Id", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	from, to := now, now.AddDate(0, 3, 0)
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			from = t
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			to = t
		}
	}

	blocks, err := h.repo.ListBlocks(r.Context(), providerID, from, to, 100)
	if err != nil {
		http.Error(w, "failed to list blocks", http.StatusInternalServerError)
		return
	}
	if blocks == nil {
		blocks = []storage.Block{}
	}
	writeJSON(w, http.StatusOK, blocks)
}

func (h *Handler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := providerIDFromHeader(r)
	blockID := strings.TrimSpace(r.URL.Query().Get("id"))
	if providerID == "" || blockID == "" {
		http.Error(w, "X-Provider-Id and id required", http.StatusBadRequest)
		return
	}

	if err := h.repo.DeleteBlock(r.Context(), providerID, blockID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "block not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to delete block", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetCancellationPolicy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := providerIDFromHeader(r)
	if providerID == "" {
		http.Error(w, "missing X-Provider-Id", http.StatusBadRequest)
		return
	}

	tiers, err := h.repo.GetCancellationPolicy(r.Context(), providerID)
	if err != nil {
		http.Error(w, "failed to load policy", http.StatusInternalServerError)
		return
	}
	if tiers == nil {
		tiers = []storage.RefundTier{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tiers": tiers})
}

func (h *Handler) UpsertCancellationPolicy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := providerIDFromHeader(r)
	if providerID == "" {
		http.Error(w, "missing X-Provider-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		Tiers []storage.RefundTier `json:"tiers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	for _, t := range req.Tiers {
		if t.MinHoursBefore < 0 || t.RefundPercent < 0 || t.RefundPercent > 100 {
			http.Error(w, "tiers must have non-negative hours and percent in 0..100", http.StatusBadRequest)
			return
		}
	}

	if err := h.repo.UpsertCancellationPolicy(r.Context(), providerID, req.Tiers); err != nil {
		http.Error(w, "failed to save policy", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func validClockRange(open, close string) bool {
	o, err := time.Parse("15:04", open)
	if err != nil {
		return false
	}
	c, err := time.Parse("15:04", close)
	if err != nil {
		return false
	}
	return c.After(o)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
