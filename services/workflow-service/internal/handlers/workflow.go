package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bookwell-app/bookwell/services/workflow-service/internal/model"
	"github.com/bookwell-app/bookwell/services/workflow-service/internal/scheduler"
	"github.com/bookwell-app/bookwell/services/workflow-service/internal/storage"
	"github.com/bookwell-app/bookwell/services/workflow-service/internal/workflow"
)

type WorkflowHandler struct {
	repo    *storage.Repository
	exec    *workflow.Executor
	sweeper *scheduler.Sweeper
	logger  *slog.Logger
}

func NewWorkflowHandler(repo *storage.Repository, exec *workflow.Executor, sweeper *scheduler.Sweeper, logger *slog.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		repo:    repo,
		exec:    exec,
		sweeper: sweeper,
		logger:  logger,
	}
}

type createWorkflowRequest struct {
	ProviderID string           `json:"provider_id"`
	Name       string           `json:"name"`
	Trigger    string           `json:"trigger"`
	Conditions model.Conditions `json:"conditions"`
	Actions    []model.Action   `json:"actions"`
	IsActive   *bool            `json:"is_active"`
}

func (h *WorkflowHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.Trigger = strings.TrimSpace(req.Trigger)
	if req.ProviderID == "" || req.Trigger == "" || len(req.Actions) == 0 {
		http.Error(w, "provider_id, trigger, and actions are required", http.StatusBadRequest)
		return
	}
	if !validTrigger(req.Trigger) {
		http.Error(w, "unknown trigger", http.StatusBadRequest)
		return
	}
	for _, a := range req.Actions {
		if a.Type != model.ActionEmail && a.Type != model.ActionWebhook && a.Type != model.ActionSMS {
			http.Error(w, "unknown action type", http.StatusBadRequest)
			return
		}
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	wf, err := h.repo.CreateWorkflow(r.Context(), model.Workflow{
		ProviderID: req.ProviderID,
		Name:       strings.TrimSpace(req.Name),
		Trigger:    req.Trigger,
		Conditions: req.Conditions,
		Actions:    req.Actions,
		IsActive:   active,
	})
	if err != nil {
		h.logger.Error("workflow create failed", "err", err)
		http.Error(w, "failed to create workflow", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, wf)
}

func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	if providerID == "" {
		http.Error(w, "provider_id required", http.StatusBadRequest)
		return
	}
	workflows, err := h.repo.ListWorkflows(r.Context(), providerID)
	if err != nil {
		h.logger.Error("workflow list failed", "err", err)
		http.Error(w, "failed to list workflows", http.StatusInternalServerError)
		return
	}
	if workflows == nil {
		workflows = []model.Workflow{}
	}
	writeJSON(w, http.StatusOK, workflows)
}

type setActiveRequest struct {
	ProviderID string `json:"provider_id"`
	WorkflowID string `json:"workflow_id"`
	IsActive   bool   `json:"is_active"`
}

func (h *WorkflowHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.WorkflowID = strings.TrimSpace(req.WorkflowID)
	if req.ProviderID == "" || req.WorkflowID == "" {
		http.Error(w, "provider_id and workflow_id required", http.StatusBadRequest)
		return
	}
	if err := h.repo.SetWorkflowActive(r.Context(), req.ProviderID, req.WorkflowID, req.IsActive); err != nil {
		http.Error(w, "workflow not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflow_id": req.WorkflowID, "is_active": req.IsActive})
}

type triggerRequest struct {
	Trigger   string `json:"trigger"`
	BookingID string `json:"booking_id"`
}

// Trigger runs workflows for one booking on demand, the same path the event
// consumer takes.
func (h *WorkflowHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Trigger = strings.TrimSpace(req.Trigger)
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.Trigger == "" || req.BookingID == "" {
		http.Error(w, "trigger and booking_id required", http.StatusBadRequest)
		return
	}
	if !validTrigger(req.Trigger) {
		http.Error(w, "unknown trigger", http.StatusBadRequest)
		return
	}

	res, err := h.exec.ExecuteForTrigger(r.Context(), req.Trigger, req.BookingID)
	if err != nil {
		if errors.Is(err, workflow.ErrBookingNotFound) {
			http.Error(w, "booking not found", http.StatusNotFound)
			return
		}
		h.logger.Error("trigger execution failed", "err", err)
		http.Error(w, "failed to execute workflows", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"executed": res.Executed,
		"failed":   res.Failed,
		"errors":   res.Errors,
		"success":  res.Success(),
	})
}

// Sweep is the external cron entry point; the internal worker runs the same
// sweep on its own ticker.
func (h *WorkflowHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	report := h.sweeper.Sweep(r.Context(), time.Now().UTC())
	writeJSON(w, http.StatusOK, map[string]any{
		"processed": report.Processed,
		"errors":    report.Errors,
	})
}

func validTrigger(trigger string) bool {
	switch trigger {
	case model.TriggerBookingCreated, model.TriggerBookingConfirmed,
		model.TriggerBookingCancelled, model.TriggerBookingCompleted,
		model.TriggerBookingNoShow:
		return true
	}
	_, ok := model.OffsetTriggers[trigger]
	return ok
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
