// internal/api/handlers/run_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"taskmill/internal/orchestrator"
)

type RunHandler struct {
	facade *orchestrator.Facade
}

func NewRunHandler(facade *orchestrator.Facade) *RunHandler {
	return &RunHandler{
		facade: facade,
	}
}

// RunGroup triggers a group run immediately. Execution is asynchronous: the
// response acknowledges dispatch, and failures surface through status
// queries.
func (h *RunHandler) RunGroup(w http.ResponseWriter, r *http.Request) {
	groupName := chi.URLParam(r, "group")

	if err := h.facade.RunGroupNow(groupName); err != nil {
		if errors.Is(err, orchestrator.ErrUnknownGroup) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "failed to trigger group run", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"message": "group run triggered",
		"group":   groupName,
	})
}

// RunTask triggers a single task as a one-task ad-hoc group run.
func (h *RunHandler) RunTask(w http.ResponseWriter, r *http.Request) {
	groupName := chi.URLParam(r, "group")
	taskName := chi.URLParam(r, "task")

	if err := h.facade.RunTaskNow(groupName, taskName); err != nil {
		if errors.Is(err, orchestrator.ErrUnknownGroup) || errors.Is(err, orchestrator.ErrUnknownTask) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "failed to trigger task run", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"message": "task run triggered",
		"group":   groupName,
		"task":    taskName,
	})
}

// Cleanup deletes run records older than the retention window.
func (h *RunHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid days parameter", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	removed, err := h.facade.Cleanup(r.Context(), days)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "cleanup complete",
		"removed": removed,
	})
}
