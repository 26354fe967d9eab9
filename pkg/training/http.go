package training

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/organlink/platform/pkg/classifier"
	"github.com/organlink/platform/pkg/common/logger"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/training/runs", h.handleCreateRun).Methods(http.MethodPost)
	r.HandleFunc("/training/runs", h.handleListRuns).Methods(http.MethodGet)
	r.HandleFunc("/training/runs/{id}", h.handleGetRun).Methods(http.MethodGet)
}

type createRunRequest struct {
	CreateRunInput
	// Wait blocks until training finishes instead of returning the queued run.
	Wait bool `json:"wait"`
}

func (h *Handler) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	if req.Wait {
		run, err := h.service.Run(r.Context(), req.CreateRunInput)
		if err != nil && run.ID == "" {
			h.writeCreateError(w, err)
			return
		}
		status := http.StatusCreated
		if err != nil {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, map[string]interface{}{"run": run})
		return
	}

	run, err := h.service.Start(r.Context(), req.CreateRunInput)
	if err != nil {
		h.writeCreateError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"run": run})
}

func (h *Handler) writeCreateError(w http.ResponseWriter, err error) {
	switch {
	case IsValidationError(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, classifier.ErrTrainingInProgress), errors.Is(err, ErrSyntheticOverwrite):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		logger.Log.WithError(err).Error("failed to create training run")
		http.Error(w, "failed to create training run", http.StatusInternalServerError)
	}
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.service.List(r.Context(), parseLimit(r, 50))
	if err != nil {
		logger.Log.WithError(err).Error("failed to list training runs")
		http.Error(w, "failed to list training runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": runs})
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}
	run, err := h.service.Get(r.Context(), id)
	if errors.Is(err, ErrRunNotFound) {
		http.Error(w, "training run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to get training run")
		http.Error(w, "failed to get training run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"run": run})
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return v
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
