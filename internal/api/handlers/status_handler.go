// internal/api/handlers/status_handler.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"taskmill/internal/models"
	"taskmill/internal/orchestrator"
)

type StatusHandler struct {
	facade *orchestrator.Facade
}

func NewStatusHandler(facade *orchestrator.Facade) *StatusHandler {
	return &StatusHandler{
		facade: facade,
	}
}

func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.facade.GetStatus(r.Context())
	if err != nil {
		http.Error(w, "failed to get status", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(status)
}

func (h *StatusHandler) GetTaskSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.facade.GetTaskSummary(r.Context())
	if err != nil {
		http.Error(w, "failed to get task summary", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(summary)
}

func (h *StatusHandler) GetErrorTasks(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid hours parameter", http.StatusBadRequest)
			return
		}
		hours = parsed
	}

	runs, err := h.facade.GetErrorTasks(r.Context(), hours)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if runs == nil {
		runs = []models.TaskRun{}
	}

	json.NewEncoder(w).Encode(runs)
}
