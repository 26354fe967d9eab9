package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/organlink/platform/pkg/classifier"
	"github.com/organlink/platform/pkg/common/logger"
	"github.com/organlink/platform/pkg/common/models"
	"github.com/organlink/platform/pkg/observability/metrics"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

var ErrSyntheticOverwrite = errors.New("refusing to replace a model trained on real data with synthetic data")

type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

type Settings struct {
	DatasetPath      string
	SyntheticSamples int
	Seed             int64
	ArtifactPath     string
	Options          classifier.Options
}

type Service struct {
	repo      RunStore
	handle    *classifier.Handle
	settings  Settings
	workerSem chan struct{}
}

func NewService(repo RunStore, handle *classifier.Handle, settings Settings) *Service {
	if settings.SyntheticSamples <= 0 {
		settings.SyntheticSamples = 1000
	}
	return &Service{
		repo:      repo,
		handle:    handle,
		settings:  settings,
		workerSem: make(chan struct{}, 1),
	}
}

// Run trains synchronously and returns the finished run. A failed run is
// recorded and its error returned.
func (s *Service) Run(ctx context.Context, input CreateRunInput) (models.TrainingRun, error) {
	run, err := s.prepare(ctx, input)
	if err != nil {
		return models.TrainingRun{}, err
	}
	defer func() { <-s.workerSem }()

	execErr := s.execute(ctx, run.ID, input)
	stored, err := s.repo.Get(ctx, run.ID)
	if err != nil {
		return models.TrainingRun{}, err
	}
	return toDomain(stored), execErr
}

// Start records a queued run and trains in the background.
func (s *Service) Start(ctx context.Context, input CreateRunInput) (models.TrainingRun, error) {
	run, err := s.prepare(ctx, input)
	if err != nil {
		return models.TrainingRun{}, err
	}
	go func() {
		defer func() { <-s.workerSem }()
		_ = s.execute(context.Background(), run.ID, input)
	}()
	return toDomain(run), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (models.TrainingRun, error) {
	run, err := s.repo.Get(ctx, id)
	if err != nil {
		return models.TrainingRun{}, err
	}
	return toDomain(run), nil
}

func (s *Service) List(ctx context.Context, limit int) ([]models.TrainingRun, error) {
	runs, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	results := make([]models.TrainingRun, 0, len(runs))
	for i := range runs {
		results = append(results, toDomain(&runs[i]))
	}
	return results, nil
}

// Bootstrap is the cold-start dataset source for a classifier.Handle. A
// configured CSV dataset always wins; synthetic data is only produced
// when enabled.
func Bootstrap(datasetPath string, synthetic bool, samples int, seed int64) classifier.Bootstrapper {
	return func(ctx context.Context) (classifier.Dataset, error) {
		if datasetPath != "" {
			return LoadCSV(datasetPath)
		}
		if !synthetic {
			return classifier.Dataset{}, fmt.Errorf("%w: no training dataset configured and synthetic cold start disabled", classifier.ErrModelUnavailable)
		}
		logger.WithField("samples", samples).Warn("Cold start: generating synthetic training data")
		return GenerateSynthetic(samples, seed), nil
	}
}

func (s *Service) prepare(ctx context.Context, input CreateRunInput) (*RunModel, error) {
	if err := s.validate(&input); err != nil {
		return nil, err
	}
	if input.Source == classifier.SourceSynthetic && !input.Force {
		if err := s.guardSynthetic(ctx); err != nil {
			return nil, err
		}
	}

	select {
	case s.workerSem <- struct{}{}:
	default:
		return nil, classifier.ErrTrainingInProgress
	}

	now := time.Now().UTC()
	run := &RunModel{
		ID:        uuid.New(),
		Source:    input.Source,
		Algorithm: input.Algorithm,
		Config: datatypes.JSONMap{
			"dataset_path": input.DatasetPath,
			"samples":      input.Samples,
			"force":        input.Force,
		},
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, run); err != nil {
		<-s.workerSem
		return nil, err
	}
	return run, nil
}

func (s *Service) validate(input *CreateRunInput) error {
	if input.Source == "" {
		if input.DatasetPath != "" || s.settings.DatasetPath != "" {
			input.Source = classifier.SourceCSV
		} else {
			input.Source = classifier.SourceSynthetic
		}
	}
	switch input.Source {
	case classifier.SourceCSV:
		if input.DatasetPath == "" {
			input.DatasetPath = s.settings.DatasetPath
		}
		if input.DatasetPath == "" {
			return ValidationError{reason: errors.New("dataset_path required for csv training")}
		}
	case classifier.SourceSynthetic:
		if input.Samples <= 0 {
			input.Samples = s.settings.SyntheticSamples
		}
	default:
		return ValidationError{reason: fmt.Errorf("source %q not supported", input.Source)}
	}

	if input.Algorithm == "" {
		input.Algorithm = s.settings.Options.Algorithm
	}
	if input.Algorithm == "" {
		input.Algorithm = classifier.AlgorithmRandomForest
	}
	if input.Algorithm != classifier.AlgorithmRandomForest && input.Algorithm != classifier.AlgorithmLogistic {
		return ValidationError{reason: fmt.Errorf("algorithm %q not supported", input.Algorithm)}
	}
	return nil
}

func (s *Service) guardSynthetic(ctx context.Context) error {
	current := s.handle.Peek()
	if current == nil {
		m, err := s.handle.Current(ctx)
		if err != nil && !errors.Is(err, classifier.ErrModelUnavailable) {
			return err
		}
		current = m
	}
	if current != nil && !current.ColdStart() {
		return ErrSyntheticOverwrite
	}
	return nil
}

func (s *Service) execute(ctx context.Context, runID uuid.UUID, input CreateRunInput) error {
	log := logger.WithFields(logrus.Fields{
		"run_id":    runID,
		"source":    input.Source,
		"algorithm": input.Algorithm,
	})
	start := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, runID, StatusRunning, RunResult{}); err != nil {
		log.WithError(err).Error("failed to mark run running")
	}
	if err := s.repo.SetTimestamps(ctx, runID, &start, nil); err != nil {
		log.WithError(err).Error("failed to set start timestamp")
	}

	ds, err := s.dataset(input)
	if err != nil {
		return s.failRun(ctx, runID, fmt.Errorf("load dataset: %w", err))
	}

	opts := s.settings.Options
	opts.Algorithm = input.Algorithm
	model, err := s.handle.Retrain(ctx, ds, opts)
	if err != nil {
		return s.failRun(ctx, runID, err)
	}

	result := RunResult{
		Samples:      model.Samples,
		ModelVersion: model.Version,
		Metrics:      model.Metrics.AsMap(),
		ArtifactPath: s.settings.ArtifactPath,
	}
	if err := s.repo.UpdateStatus(ctx, runID, StatusCompleted, result); err != nil {
		log.WithError(err).Error("failed to mark run complete")
	}
	completed := time.Now().UTC()
	if err := s.repo.SetTimestamps(ctx, runID, nil, &completed); err != nil {
		log.WithError(err).Error("failed to set completion timestamp")
	}
	metrics.TrainingRunCompleted()
	log.WithFields(logrus.Fields{
		"model_version": model.Version,
		"samples":       model.Samples,
		"accuracy":      model.Metrics.Accuracy,
		"f1":            model.Metrics.F1,
	}).Info("Training run completed")
	return nil
}

func (s *Service) dataset(input CreateRunInput) (classifier.Dataset, error) {
	if input.Source == classifier.SourceSynthetic {
		return GenerateSynthetic(input.Samples, s.settings.Seed), nil
	}
	return LoadCSV(input.DatasetPath)
}

func (s *Service) failRun(ctx context.Context, runID uuid.UUID, err error) error {
	logger.Log.WithError(err).WithField("run_id", runID).Error("training run failed")
	metrics.TrainingRunFailed()
	_ = s.repo.UpdateStatus(ctx, runID, StatusFailed, RunResult{ErrorMessage: err.Error()})
	completed := time.Now().UTC()
	_ = s.repo.SetTimestamps(ctx, runID, nil, &completed)
	return err
}

func toDomain(run *RunModel) models.TrainingRun {
	result := models.TrainingRun{
		ID:           run.ID.String(),
		Source:       run.Source,
		Algorithm:    run.Algorithm,
		Status:       run.Status,
		Samples:      run.Samples,
		ModelVersion: run.ModelVersion,
		ArtifactPath: run.ArtifactPath,
		ErrorMessage: run.ErrorMessage,
		CreatedAt:    run.CreatedAt,
		StartedAt:    run.StartedAt,
		CompletedAt:  run.CompletedAt,
	}
	if run.Metrics != nil {
		result.Metrics = map[string]interface{}(run.Metrics)
	}
	return result
}
