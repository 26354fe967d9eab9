package matching

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/organlink/platform/pkg/classifier"
	"github.com/organlink/platform/pkg/common/logger"
	"github.com/organlink/platform/pkg/common/models"
	"github.com/organlink/platform/pkg/lifecycle"
	"github.com/organlink/platform/pkg/records"
)

// Transitions is the part of *lifecycle.Manager the HTTP layer drives.
type Transitions interface {
	Get(ctx context.Context, id string) (models.Match, error)
	ListForPatient(ctx context.Context, patientID string) ([]models.Match, error)
	Accept(ctx context.Context, id string) (models.Match, error)
	Reject(ctx context.Context, id, reason string) (models.Match, error)
	Complete(ctx context.Context, id string) (models.Match, error)
	Cancel(ctx context.Context, id, reason string) (models.Match, error)
	ExpireStale(ctx context.Context, olderThan time.Duration) (int, error)
}

type Handler struct {
	engine    *Engine
	matches   Transitions
	model     ModelSource
	expiryTTL time.Duration
}

func NewHandler(engine *Engine, matches Transitions, model ModelSource, expiryTTL time.Duration) *Handler {
	return &Handler{engine: engine, matches: matches, model: model, expiryTTL: expiryTTL}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/patients/{id}/matches", h.handleFindMatches).Methods(http.MethodPost)
	r.HandleFunc("/patients/{id}/matches", h.handleListMatches).Methods(http.MethodGet)
	r.HandleFunc("/patients/{id}/matches/preview", h.handlePreview).Methods(http.MethodGet)
	r.HandleFunc("/matches/expire", h.handleExpire).Methods(http.MethodPost)
	r.HandleFunc("/matches/{id}", h.handleGetMatch).Methods(http.MethodGet)
	r.HandleFunc("/matches/{id}/{action:accept|reject|complete|cancel}", h.handleTransition).Methods(http.MethodPost)
	r.HandleFunc("/model", h.handleModel).Methods(http.MethodGet)
}

type findMatchesRequest struct {
	HospitalID string `json:"hospital_id"`
}

func (h *Handler) handleFindMatches(w http.ResponseWriter, r *http.Request) {
	var req findMatchesRequest
	if err := decodeOptional(r, &req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	result, err := h.engine.FindBestMatchesForPatient(r.Context(), mux.Vars(r)["id"], req.HospitalID)
	if err != nil {
		writeError(w, err, "failed to find matches")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	preview, err := h.engine.Preview(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err, "failed to preview matches")
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (h *Handler) handleListMatches(w http.ResponseWriter, r *http.Request) {
	items, err := h.matches.ListForPatient(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err, "failed to list matches")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	match, err := h.matches.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err, "failed to get match")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"match": match})
}

type transitionRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeOptional(r, &req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	vars := mux.Vars(r)
	id := vars["id"]

	var (
		match models.Match
		err   error
	)
	switch vars["action"] {
	case "accept":
		match, err = h.matches.Accept(r.Context(), id)
	case "reject":
		match, err = h.matches.Reject(r.Context(), id, req.Reason)
	case "complete":
		match, err = h.matches.Complete(r.Context(), id)
	case "cancel":
		match, err = h.matches.Cancel(r.Context(), id, req.Reason)
	default:
		http.Error(w, "unknown action", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, err, "failed to update match")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"match": match})
}

func (h *Handler) handleExpire(w http.ResponseWriter, r *http.Request) {
	expired, err := h.matches.ExpireStale(r.Context(), h.expiryTTL)
	if err != nil {
		writeError(w, err, "failed to expire matches")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"expired": expired})
}

func (h *Handler) handleModel(w http.ResponseWriter, r *http.Request) {
	model, err := h.model.Current(r.Context())
	if err != nil {
		writeError(w, err, "failed to load model")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"model": model.Info()})
}

// decodeOptional accepts an empty body.
func decodeOptional(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, records.ErrPatientNotFound), errors.Is(err, lifecycle.ErrMatchNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, classifier.ErrModelUnavailable), errors.Is(err, classifier.ErrSchemaMismatch):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		logger.Log.WithError(err).Error(fallback)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
