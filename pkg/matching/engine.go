// Package matching runs the donor search for a patient: filter, score,
// rank and hand the winners to the lifecycle manager.
package matching

import (
	"context"
	"fmt"

	"github.com/organlink/platform/pkg/classifier"
	"github.com/organlink/platform/pkg/common/logger"
	"github.com/organlink/platform/pkg/common/models"
	"github.com/organlink/platform/pkg/features"
	"github.com/organlink/platform/pkg/lifecycle"
	"github.com/organlink/platform/pkg/observability/metrics"
	"github.com/organlink/platform/pkg/policy"
	"github.com/organlink/platform/pkg/ranking"
	"github.com/sirupsen/logrus"
)

// Records is the read side of the record store. *records.Repository
// satisfies it.
type Records interface {
	GetPatient(ctx context.Context, id string) (models.Patient, error)
	GetHospital(ctx context.Context, id string) (models.Hospital, error)
	AvailableDonors(ctx context.Context, organ string) ([]models.Donor, error)
	ImplementedPolicies(ctx context.Context, organ string) ([]models.Policy, error)
}

// ModelSource is satisfied by *classifier.Handle.
type ModelSource interface {
	Current(ctx context.Context) (*classifier.Model, error)
}

type Lifecycle interface {
	CreatePending(ctx context.Context, req lifecycle.PendingRequest) ([]models.Match, error)
}

type Settings struct {
	MinProbability float64
	Limit          int
}

type Engine struct {
	records    Records
	source     ModelSource
	lifecycle  Lifecycle
	vectorizer *features.Vectorizer
	settings   Settings
}

func NewEngine(records Records, source ModelSource, lc Lifecycle, vectorizer *features.Vectorizer, settings Settings) *Engine {
	if vectorizer == nil {
		vectorizer = features.NewVectorizer(nil)
	}
	if settings.Limit <= 0 || settings.Limit > ranking.MaxResults {
		settings.Limit = ranking.MaxResults
	}
	return &Engine{
		records:    records,
		source:     source,
		lifecycle:  lc,
		vectorizer: vectorizer,
		settings:   settings,
	}
}

// Preview is the ranked shortlist before anything is persisted.
type Preview struct {
	Patient      models.Patient      `json:"patient"`
	ModelVersion string              `json:"model_version"`
	ColdStart    bool                `json:"cold_start"`
	Evaluated    int                 `json:"evaluated"`
	Candidates   []ranking.Candidate `json:"candidates"`
}

type Result struct {
	PatientID    string         `json:"patient_id"`
	HospitalID   string         `json:"hospital_id"`
	ModelVersion string         `json:"model_version"`
	ColdStart    bool           `json:"cold_start"`
	Matches      []models.Match `json:"matches"`
}

// FindBestMatchesForPatient scores every eligible donor, keeps the best
// ones and opens a PENDING match for each. No eligible donor is not an
// error: the result simply has no matches. hospitalID defaults to the
// patient's own hospital.
func (e *Engine) FindBestMatchesForPatient(ctx context.Context, patientID, hospitalID string) (Result, error) {
	metrics.MatchRequested()
	preview, err := e.Preview(ctx, patientID)
	if err != nil {
		metrics.MatchRequestFailed()
		return Result{}, err
	}
	if hospitalID == "" {
		hospitalID = preview.Patient.HospitalID
	}
	result := Result{
		PatientID:    preview.Patient.ID,
		HospitalID:   hospitalID,
		ModelVersion: preview.ModelVersion,
		ColdStart:    preview.ColdStart,
		Matches:      []models.Match{},
	}
	if len(preview.Candidates) == 0 {
		return result, nil
	}

	matches, err := e.lifecycle.CreatePending(ctx, lifecycle.PendingRequest{
		Patient:      preview.Patient,
		HospitalID:   hospitalID,
		Candidates:   preview.Candidates,
		ModelVersion: preview.ModelVersion,
		ColdStart:    preview.ColdStart,
	})
	if matches != nil {
		result.Matches = matches
	}
	if err != nil {
		metrics.MatchRequestFailed()
		return result, err
	}

	logger.WithFields(logrus.Fields{
		"patient_id":    result.PatientID,
		"hospital_id":   hospitalID,
		"matches":       len(result.Matches),
		"model_version": result.ModelVersion,
	}).Info("Matching completed")
	return result, nil
}

// Preview scores and ranks donors for the patient without side effects.
func (e *Engine) Preview(ctx context.Context, patientID string) (Preview, error) {
	patient, err := e.records.GetPatient(ctx, patientID)
	if err != nil {
		return Preview{}, err
	}
	pool, err := e.records.AvailableDonors(ctx, patient.OrganNeeded)
	if err != nil {
		return Preview{}, fmt.Errorf("load donors: %w", err)
	}
	donors := FilterCandidates(pool, patient.OrganNeeded)
	preview := Preview{
		Patient:    patient,
		Evaluated:  len(donors),
		Candidates: []ranking.Candidate{},
	}
	// an empty pool needs no model
	if len(donors) == 0 {
		return preview, nil
	}

	model, err := e.source.Current(ctx)
	if err != nil {
		return Preview{}, err
	}
	preview.ModelVersion = model.Version
	preview.ColdStart = model.ColdStart()

	policies, err := e.records.ImplementedPolicies(ctx, patient.OrganNeeded)
	if err != nil {
		return Preview{}, fmt.Errorf("load policies: %w", err)
	}
	// evaluated once per patient; every donor shares the adjustment
	policyResult := policy.Evaluate(policies, patient.OrganNeeded, e.vectorizer.Subject(e.withCity(ctx, patient)))

	cands := make([]ranking.Candidate, 0, len(donors))
	for _, donor := range donors {
		vector := e.vectorizer.Assemble(patient, donor, policyResult.Adjustment)
		prob, err := model.Predict(vector)
		if err != nil {
			return Preview{}, fmt.Errorf("score donor %s: %w", donor.ID, err)
		}
		cands = append(cands, ranking.Candidate{
			Donor:       donor,
			Probability: prob,
			Features:    vector,
			Applied:     policyResult.Applied,
		})
	}
	metrics.PredictionsServed(len(cands))

	preview.Candidates = ranking.Select(cands, e.settings.MinProbability, e.settings.Limit)
	return preview, nil
}

// withCity falls back to the patient's hospital city for location
// clauses when the patient record has none.
func (e *Engine) withCity(ctx context.Context, patient models.Patient) models.Patient {
	if patient.City != "" || patient.HospitalID == "" {
		return patient
	}
	hospital, err := e.records.GetHospital(ctx, patient.HospitalID)
	if err != nil {
		logger.Log.WithError(err).WithField("patient_id", patient.ID).Warn("could not resolve patient hospital city")
		return patient
	}
	patient.City = hospital.City
	return patient
}
