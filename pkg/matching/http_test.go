package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/organlink/platform/pkg/classifier"
	"github.com/organlink/platform/pkg/common/models"
	"github.com/organlink/platform/pkg/lifecycle"
)

type fakeTransitions struct {
	matches map[string]models.Match
	reason  string
	ttl     time.Duration
}

func (f *fakeTransitions) Get(_ context.Context, id string) (models.Match, error) {
	m, ok := f.matches[id]
	if !ok {
		return models.Match{}, fmt.Errorf("%w: %s", lifecycle.ErrMatchNotFound, id)
	}
	return m, nil
}

func (f *fakeTransitions) ListForPatient(_ context.Context, patientID string) ([]models.Match, error) {
	var out []models.Match
	for _, m := range f.matches {
		if m.PatientID == patientID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeTransitions) move(id string, to models.MatchStatus) (models.Match, error) {
	m, ok := f.matches[id]
	if !ok {
		return models.Match{}, lifecycle.ErrMatchNotFound
	}
	if !models.CanTransition(m.Status, to) {
		return models.Match{}, lifecycle.ErrInvalidTransition
	}
	m.Status = to
	f.matches[id] = m
	return m, nil
}

func (f *fakeTransitions) Accept(_ context.Context, id string) (models.Match, error) {
	return f.move(id, models.MatchAccepted)
}

func (f *fakeTransitions) Reject(_ context.Context, id, reason string) (models.Match, error) {
	f.reason = reason
	return f.move(id, models.MatchRejected)
}

func (f *fakeTransitions) Complete(_ context.Context, id string) (models.Match, error) {
	return f.move(id, models.MatchCompleted)
}

func (f *fakeTransitions) Cancel(_ context.Context, id, reason string) (models.Match, error) {
	f.reason = reason
	return f.move(id, models.MatchCancelled)
}

func (f *fakeTransitions) ExpireStale(_ context.Context, olderThan time.Duration) (int, error) {
	f.ttl = olderThan
	return 3, nil
}

func newTestRouter(model ModelSource) (*mux.Router, *fakeTransitions) {
	transitions := &fakeTransitions{matches: map[string]models.Match{
		"m-1": {ID: "m-1", PatientID: "patient-1", DonorID: "donor0", Status: models.MatchPending},
	}}
	engine := newTestEngine(fixture(), model, &fakeLifecycle{}, 0.6)
	router := mux.NewRouter()
	NewHandler(engine, transitions, model, 72*time.Hour).Register(router.PathPrefix("/api/v1").Subrouter())
	return router, transitions
}

func serve(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerFindMatches(t *testing.T) {
	router, _ := newTestRouter(staticModel{model: ageModel(classifier.SourceCSV)})

	rec := serve(router, http.MethodPost, "/api/v1/patients/patient-1/matches", `{"hospital_id":"hosp-a"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(result.Matches) != 2 || result.Matches[0].DonorID != "donor0" {
		t.Fatalf("unexpected matches %+v", result.Matches)
	}

	rec = serve(router, http.MethodPost, "/api/v1/patients/patient-1/matches", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected empty body to be accepted, got %d", rec.Code)
	}
}

func TestHandlerErrorMapping(t *testing.T) {
	router, _ := newTestRouter(staticModel{model: ageModel(classifier.SourceCSV)})
	if rec := serve(router, http.MethodPost, "/api/v1/patients/ghost/matches", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown patient, got %d", rec.Code)
	}
	if rec := serve(router, http.MethodGet, "/api/v1/matches/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown match, got %d", rec.Code)
	}
	if rec := serve(router, http.MethodPost, "/api/v1/matches/m-1/complete", ""); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for PENDING -> COMPLETED, got %d", rec.Code)
	}
	if rec := serve(router, http.MethodPost, "/api/v1/patients/patient-1/matches", "{broken"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}

	unavailable, _ := newTestRouter(staticModel{err: classifier.ErrModelUnavailable})
	if rec := serve(unavailable, http.MethodGet, "/api/v1/patients/patient-1/matches/preview", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a model, got %d", rec.Code)
	}
	if rec := serve(unavailable, http.MethodGet, "/api/v1/model", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for model info without a model, got %d", rec.Code)
	}
}

func TestHandlerTransitions(t *testing.T) {
	router, transitions := newTestRouter(staticModel{model: ageModel(classifier.SourceCSV)})

	rec := serve(router, http.MethodPost, "/api/v1/matches/m-1/reject", `{"reason":"crossmatch positive"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if transitions.matches["m-1"].Status != models.MatchRejected || transitions.reason != "crossmatch positive" {
		t.Fatalf("expected rejection with reason, got %+v reason=%q", transitions.matches["m-1"], transitions.reason)
	}
	if rec := serve(router, http.MethodPost, "/api/v1/matches/m-1/approve", ""); rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected unknown action to be unrouted, got %d", rec.Code)
	}
}

func TestHandlerExpireAndModel(t *testing.T) {
	router, transitions := newTestRouter(staticModel{model: ageModel(classifier.SourceCSV)})

	rec := serve(router, http.MethodPost, "/api/v1/matches/expire", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"expired":3`) {
		t.Fatalf("unexpected expire response %d %s", rec.Code, rec.Body.String())
	}
	if transitions.ttl != 72*time.Hour {
		t.Fatalf("expected configured TTL to be used, got %s", transitions.ttl)
	}

	rec = serve(router, http.MethodGet, "/api/v1/model", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"version":"test-model"`) {
		t.Fatalf("unexpected model response %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandlerPreview(t *testing.T) {
	router, _ := newTestRouter(staticModel{model: ageModel(classifier.SourceCSV)})
	rec := serve(router, http.MethodGet, "/api/v1/patients/patient-1/matches/preview", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var preview Preview
	if err := json.Unmarshal(rec.Body.Bytes(), &preview); err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if len(preview.Candidates) != 2 || len(preview.Candidates[0].Features.Values) != 6 {
		t.Fatalf("unexpected preview %+v", preview)
	}
}
