package training

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/organlink/platform/pkg/classifier"
	"github.com/organlink/platform/pkg/common/config"
	"github.com/organlink/platform/pkg/common/logger"
	"github.com/organlink/platform/pkg/features"
)

func init() {
	logger.Silence()
}

const header = "patient_age,donor_age,blood_type_match,urgency_level,waiting_days,policy_adjustment,success"

func writeCSV(t *testing.T, rows int, allSuccess bool) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(header + "\n")
	for i := 0; i < rows; i++ {
		match := i % 2
		label := "yes"
		if match == 0 && !allSuccess {
			label = "no"
		}
		fmt.Fprintf(&b, "%d,%d,%d,%d,%d,%d,%s\n", 10+i%50, 20+i%40, match, 1+i%5, i*3, 5*(i%4), label)
	}
	path := filepath.Join(t.TempDir(), "dataset.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestReadCSV(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(header + "\n9,40,1,4,30,15,Success\n60, 30, 0, 1, 0, 0, false\n"))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if ds.Source != classifier.SourceCSV || len(ds.Examples) != 2 {
		t.Fatalf("unexpected dataset %+v", ds)
	}
	if !ds.Examples[0].Success || ds.Examples[1].Success {
		t.Fatalf("labels parsed incorrectly: %+v", ds.Examples)
	}
	if ds.Examples[1].Features[1] != 30 {
		t.Fatalf("expected trimmed value 30, got %v", ds.Examples[1].Features[1])
	}
}

func TestReadCSVRejectsForeignHeader(t *testing.T) {
	reordered := "donor_age,patient_age,blood_type_match,urgency_level,waiting_days,policy_adjustment,success\n"
	if _, err := ReadCSV(strings.NewReader(reordered)); !errors.Is(err, classifier.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
	if _, err := ReadCSV(strings.NewReader("")); !errors.Is(err, ErrInvalidDataset) {
		t.Fatalf("expected ErrInvalidDataset for empty input, got %v", err)
	}
	if _, err := ReadCSV(strings.NewReader(header + "\n1,2,3,4,5,6,maybe\n")); !errors.Is(err, ErrInvalidDataset) {
		t.Fatalf("expected ErrInvalidDataset for bad label, got %v", err)
	}
	if _, err := ReadCSV(strings.NewReader(header + "\n1,x,3,4,5,6,1\n")); !errors.Is(err, ErrInvalidDataset) {
		t.Fatalf("expected ErrInvalidDataset for bad number, got %v", err)
	}
}

func TestParseLabel(t *testing.T) {
	for _, raw := range []string{"1", "TRUE", " yes ", "Success"} {
		if ok, err := ParseLabel(raw); err != nil || !ok {
			t.Fatalf("expected %q to parse as success", raw)
		}
	}
	for _, raw := range []string{"0", "False", "NO", "failure"} {
		if ok, err := ParseLabel(raw); err != nil || ok {
			t.Fatalf("expected %q to parse as failure", raw)
		}
	}
}

func TestBloodCompatible(t *testing.T) {
	cases := []struct {
		donor, patient string
		want           bool
	}{
		{"O-", "B+", true},
		{"A-", "AB+", true},
		{"A+", "A+", true},
		{"A+", "B+", false},
		{"O+", "O-", false},
	}
	for _, tc := range cases {
		if got := BloodCompatible(tc.donor, tc.patient); got != tc.want {
			t.Fatalf("BloodCompatible(%s, %s) = %v, want %v", tc.donor, tc.patient, got, tc.want)
		}
	}
}

func TestSuccessProbability(t *testing.T) {
	base := SyntheticPair{PatientAge: 10, DonorAge: 60, PatientBlood: "A+", DonorBlood: "B+", DistanceKm: 400, HLAScore: 2}
	if p := SuccessProbability(base); p != 0.5 {
		t.Fatalf("expected base probability 0.5, got %v", p)
	}
	best := SyntheticPair{PatientAge: 40, DonorAge: 45, PatientBlood: "A+", DonorBlood: "O-", DistanceKm: 10, HLAScore: 6}
	if p := SuccessProbability(best); p != 1 {
		t.Fatalf("expected probability capped at 1, got %v", p)
	}
}

func TestGeneratorProjectsOntoSchema(t *testing.T) {
	g := NewGenerator(42)
	for i := 0; i < 200; i++ {
		p := g.Pair()
		row := p.Features()
		if len(row) != len(features.Names) {
			t.Fatalf("expected %d features, got %d", len(features.Names), len(row))
		}
		want := 0.0
		if BloodCompatible(p.DonorBlood, p.PatientBlood) {
			want = 1
		}
		if row[2] != want {
			t.Fatalf("blood_type_match column should hold generator compatibility, got %v for %s->%s", row[2], p.DonorBlood, p.PatientBlood)
		}
		if p.PatientAge < 1 || p.PatientAge > 75 || p.DonorAge < 18 || p.DonorAge > 70 {
			t.Fatalf("ages out of range: %+v", p)
		}
		if p.HLAScore < 0 || p.HLAScore > 6 || p.Urgency < 1 || p.Urgency > 5 {
			t.Fatalf("scores out of range: %+v", p)
		}
	}

	a := GenerateSynthetic(300, 7)
	b := GenerateSynthetic(300, 7)
	for i := range a.Examples {
		if a.Examples[i].Success != b.Examples[i].Success || a.Examples[i].Features[4] != b.Examples[i].Features[4] {
			t.Fatal("expected seeded generator to be reproducible")
		}
	}
	pos, neg := a.Classes()
	if pos == 0 || neg == 0 {
		t.Fatalf("expected both outcome classes, got %d/%d", pos, neg)
	}
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	if _, err := Bootstrap("", false, 100, 1)(ctx); !errors.Is(err, classifier.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable when cold start disabled, got %v", err)
	}
	ds, err := Bootstrap("", true, 100, 1)(ctx)
	if err != nil || ds.Source != classifier.SourceSynthetic || len(ds.Examples) != 100 {
		t.Fatalf("expected synthetic dataset, got %d examples from %q (%v)", len(ds.Examples), ds.Source, err)
	}
	path := writeCSV(t, 20, false)
	ds, err = Bootstrap(path, true, 100, 1)(ctx)
	if err != nil || ds.Source != classifier.SourceCSV {
		t.Fatalf("expected configured dataset to win, got %q (%v)", ds.Source, err)
	}
}

type memRuns struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*RunModel
}

func newMemRuns() *memRuns {
	return &memRuns{runs: make(map[uuid.UUID]*RunModel)}
}

func (m *memRuns) Create(_ context.Context, run *RunModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *run
	m.runs[run.ID] = &copy
	return nil
}

func (m *memRuns) UpdateStatus(_ context.Context, id uuid.UUID, status string, result RunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	run.Status = status
	run.Samples = result.Samples
	run.ModelVersion = result.ModelVersion
	run.ArtifactPath = result.ArtifactPath
	run.ErrorMessage = result.ErrorMessage
	if result.Metrics != nil {
		run.Metrics = result.Metrics
	}
	return nil
}

func (m *memRuns) SetTimestamps(_ context.Context, id uuid.UUID, startedAt, completedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	if startedAt != nil {
		run.StartedAt = startedAt
	}
	if completedAt != nil {
		run.CompletedAt = completedAt
	}
	return nil
}

func (m *memRuns) Get(_ context.Context, id uuid.UUID) (*RunModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	copy := *run
	return &copy, nil
}

func (m *memRuns) List(_ context.Context, limit int) ([]RunModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RunModel
	for _, run := range m.runs {
		out = append(out, *run)
	}
	return out, nil
}

func newTestService(t *testing.T, datasetPath string) (*Service, *classifier.Handle) {
	t.Helper()
	store := classifier.NewFileStore(filepath.Join(t.TempDir(), "model.json"))
	opts := classifier.Options{Trees: 10, Seed: 1, TestRatio: 0.2}
	handle := classifier.NewHandle(store, opts)
	svc := NewService(newMemRuns(), handle, Settings{
		DatasetPath:      datasetPath,
		SyntheticSamples: 300,
		Seed:             3,
		ArtifactPath:     store.Path(),
		Options:          opts,
	})
	return svc, handle
}

func TestRunSyntheticInstallsModel(t *testing.T) {
	svc, handle := newTestService(t, "")
	run, err := svc.Run(context.Background(), CreateRunInput{Source: classifier.SourceSynthetic})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if run.Status != StatusCompleted || run.ModelVersion == "" || run.CompletedAt == nil {
		t.Fatalf("unexpected run %+v", run)
	}
	if _, ok := run.Metrics["accuracy"]; !ok {
		t.Fatalf("expected accuracy metric, got %v", run.Metrics)
	}
	if current := handle.Peek(); current == nil || current.Version != run.ModelVersion || !current.ColdStart() {
		t.Fatalf("expected run model to be installed as a cold-start model")
	}
}

func TestSyntheticDoesNotReplaceRealModel(t *testing.T) {
	path := writeCSV(t, 60, false)
	svc, handle := newTestService(t, path)
	ctx := context.Background()

	csvRun, err := svc.Run(ctx, CreateRunInput{})
	if err != nil {
		t.Fatalf("csv run failed: %v", err)
	}
	if csvRun.Source != classifier.SourceCSV {
		t.Fatalf("expected default source csv when a dataset is configured, got %s", csvRun.Source)
	}

	if _, err := svc.Run(ctx, CreateRunInput{Source: classifier.SourceSynthetic}); !errors.Is(err, ErrSyntheticOverwrite) {
		t.Fatalf("expected ErrSyntheticOverwrite, got %v", err)
	}
	if handle.Peek().Version != csvRun.ModelVersion {
		t.Fatal("csv model must stay installed")
	}

	forced, err := svc.Run(ctx, CreateRunInput{Source: classifier.SourceSynthetic, Force: true})
	if err != nil {
		t.Fatalf("forced run failed: %v", err)
	}
	if handle.Peek().Version != forced.ModelVersion {
		t.Fatal("forced synthetic model should be installed")
	}
}

func TestRunSingleClassDatasetFails(t *testing.T) {
	path := writeCSV(t, 30, true)
	svc, handle := newTestService(t, path)
	run, err := svc.Run(context.Background(), CreateRunInput{Source: classifier.SourceCSV})
	if !errors.Is(err, classifier.ErrSingleClass) {
		t.Fatalf("expected ErrSingleClass, got %v", err)
	}
	if run.Status != StatusFailed || run.ErrorMessage == "" {
		t.Fatalf("expected failed run with message, got %+v", run)
	}
	if handle.Peek() != nil {
		t.Fatal("no model should be installed after a failed run")
	}
}

func TestRunValidation(t *testing.T) {
	svc, _ := newTestService(t, "")
	if _, err := svc.Run(context.Background(), CreateRunInput{Source: classifier.SourceCSV}); !IsValidationError(err) {
		t.Fatalf("expected validation error for csv without path, got %v", err)
	}
	if _, err := svc.Run(context.Background(), CreateRunInput{Source: "parquet"}); !IsValidationError(err) {
		t.Fatalf("expected validation error for unknown source, got %v", err)
	}
	if _, err := svc.Run(context.Background(), CreateRunInput{Source: classifier.SourceSynthetic, Algorithm: "svm"}); !IsValidationError(err) {
		t.Fatalf("expected validation error for unknown algorithm, got %v", err)
	}
}

func TestRunRejectedWhileAnotherRunHoldsTheWorker(t *testing.T) {
	svc, _ := newTestService(t, "")
	svc.workerSem <- struct{}{}
	defer func() { <-svc.workerSem }()
	if _, err := svc.Run(context.Background(), CreateRunInput{Source: classifier.SourceSynthetic}); !errors.Is(err, classifier.ErrTrainingInProgress) {
		t.Fatalf("expected ErrTrainingInProgress, got %v", err)
	}
}

func TestHTTPHandler(t *testing.T) {
	svc, _ := newTestService(t, "")
	router := mux.NewRouter()
	NewHandler(svc).Register(router.PathPrefix("/api/v1").Subrouter())

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"source":"synthetic","samples":200,"wait":true}`)
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/training/runs", body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/training/runs/"+uuid.NewString(), nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/training/runs/not-a-uuid", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/training/runs", strings.NewReader(`{"source":"parquet"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/training/runs", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), StatusCompleted) {
		t.Fatalf("expected completed run in list, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := &config.Config{
		ModelPath:           "/tmp/model.json",
		ModelAlgorithm:      classifier.AlgorithmLogistic,
		ModelTrees:          7,
		ModelMaxDepth:       3,
		ModelSeed:           9,
		SyntheticSamples:    50,
		TrainingDatasetPath: "data.csv",
		TrainingTestRatio:   0.25,
	}
	s := SettingsFromConfig(cfg)
	if s.ArtifactPath != "/tmp/model.json" || s.DatasetPath != "data.csv" || s.SyntheticSamples != 50 || s.Seed != 9 {
		t.Fatalf("unexpected settings %+v", s)
	}
	if s.Options.Algorithm != classifier.AlgorithmLogistic || s.Options.Trees != 7 || s.Options.MaxDepth != 3 || s.Options.TestRatio != 0.25 {
		t.Fatalf("unexpected options %+v", s.Options)
	}
}
