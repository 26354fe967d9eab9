// Package classifier trains, persists and serves the donor/recipient
// compatibility model.
package classifier

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/organlink/platform/pkg/features"
	"github.com/organlink/platform/pkg/ml/forest"
	"github.com/organlink/platform/pkg/ml/linear"
)

const (
	AlgorithmRandomForest = "random_forest"
	AlgorithmLogistic     = "logistic"

	SourceCSV       = "csv"
	SourceSynthetic = "synthetic"
)

var (
	ErrEmptyDataset       = errors.New("classifier: dataset has no examples")
	ErrSingleClass        = errors.New("classifier: dataset contains a single outcome class")
	ErrSchemaMismatch     = errors.New("classifier: feature schema mismatch")
	ErrUnknownAlgorithm   = errors.New("classifier: unknown algorithm")
	ErrModelNotFound      = errors.New("classifier: no persisted model")
	ErrModelUnavailable   = errors.New("classifier: no model available")
	ErrTrainingInProgress = errors.New("classifier: training already in progress")
)

type Example struct {
	Features []float64
	Success  bool
}

type Dataset struct {
	FeatureNames []string
	Examples     []Example
	Source       string
}

// Classes counts positive and negative outcomes.
func (d Dataset) Classes() (positive, negative int) {
	for _, ex := range d.Examples {
		if ex.Success {
			positive++
		} else {
			negative++
		}
	}
	return positive, negative
}

type Options struct {
	Algorithm      string
	Trees          int
	MaxDepth       int
	MinSamplesLeaf int
	Seed           int64
	// TestRatio is the share of examples held out for evaluation.
	TestRatio float64
}

type Metrics struct {
	Accuracy    float64 `json:"accuracy"`
	Precision   float64 `json:"precision"`
	Recall      float64 `json:"recall"`
	F1          float64 `json:"f1"`
	LogLoss     float64 `json:"log_loss"`
	TestSamples int     `json:"test_samples"`
	// Holdout is false when the dataset was too small to split and the
	// metrics were computed on the training rows.
	Holdout bool `json:"holdout"`
}

// AsMap flattens the metrics for JSON columns.
func (m Metrics) AsMap() map[string]interface{} {
	return map[string]interface{}{
		"accuracy":     m.Accuracy,
		"precision":    m.Precision,
		"recall":       m.Recall,
		"f1":           m.F1,
		"log_loss":     m.LogLoss,
		"test_samples": m.TestSamples,
		"holdout":      m.Holdout,
	}
}

type Model struct {
	Version      string          `json:"version"`
	Algorithm    string          `json:"algorithm"`
	FeatureNames []string        `json:"feature_names"`
	Source       string          `json:"source"`
	TrainedAt    time.Time       `json:"trained_at"`
	Samples      int             `json:"samples"`
	Metrics      Metrics         `json:"metrics"`
	Forest       *forest.Forest  `json:"forest,omitempty"`
	Logistic     *linear.Weights `json:"logistic,omitempty"`
}

// ColdStart reports whether the model was trained on generated data.
func (m *Model) ColdStart() bool {
	return m.Source == SourceSynthetic
}

type Info struct {
	Version      string             `json:"version"`
	Algorithm    string             `json:"algorithm"`
	FeatureNames []string           `json:"feature_names"`
	Source       string             `json:"source"`
	ColdStart    bool               `json:"cold_start"`
	TrainedAt    time.Time          `json:"trained_at"`
	Samples      int                `json:"samples"`
	Metrics      Metrics            `json:"metrics"`
	Importances  map[string]float64 `json:"importances,omitempty"`
}

// Info describes the model without its weights.
func (m *Model) Info() Info {
	info := Info{
		Version:      m.Version,
		Algorithm:    m.Algorithm,
		FeatureNames: append([]string(nil), m.FeatureNames...),
		Source:       m.Source,
		ColdStart:    m.ColdStart(),
		TrainedAt:    m.TrainedAt,
		Samples:      m.Samples,
		Metrics:      m.Metrics,
	}
	if m.Forest != nil && len(m.Forest.Importances) == len(m.FeatureNames) {
		info.Importances = make(map[string]float64, len(m.FeatureNames))
		for i, name := range m.FeatureNames {
			info.Importances[name] = m.Forest.Importances[i]
		}
	}
	return info
}

// Train fits a model on ds. When the dataset is large enough a seeded
// holdout split is used for evaluation.
func Train(ds Dataset, opts Options) (*Model, error) {
	if len(ds.Examples) == 0 {
		return nil, ErrEmptyDataset
	}
	if len(ds.FeatureNames) == 0 {
		return nil, fmt.Errorf("%w: dataset has no feature names", ErrSchemaMismatch)
	}
	for i, ex := range ds.Examples {
		if len(ex.Features) != len(ds.FeatureNames) {
			return nil, fmt.Errorf("%w: example %d has %d features, want %d", ErrSchemaMismatch, i, len(ex.Features), len(ds.FeatureNames))
		}
	}
	positive, negative := ds.Classes()
	if positive == 0 || negative == 0 {
		return nil, fmt.Errorf("%w: %d successes, %d failures", ErrSingleClass, positive, negative)
	}
	if opts.Algorithm == "" {
		opts.Algorithm = AlgorithmRandomForest
	}

	train, test := split(ds.Examples, opts.TestRatio, opts.Seed)
	if p, n := (Dataset{Examples: train}).Classes(); p == 0 || n == 0 {
		// too few of one outcome to hold any out
		train, test = ds.Examples, nil
	}
	holdout := len(test) > 0
	if !holdout {
		test = train
	}

	model := &Model{
		Version:      uuid.NewString(),
		Algorithm:    opts.Algorithm,
		FeatureNames: append([]string(nil), ds.FeatureNames...),
		Source:       ds.Source,
		TrainedAt:    time.Now().UTC(),
		Samples:      len(train),
	}

	samples, labels := matrix(train)
	switch opts.Algorithm {
	case AlgorithmRandomForest:
		f, err := forest.Train(samples, labels, forest.Options{
			NumTrees:       opts.Trees,
			MaxDepth:       opts.MaxDepth,
			MinSamplesLeaf: opts.MinSamplesLeaf,
			Seed:           opts.Seed,
		})
		if err != nil {
			return nil, err
		}
		model.Forest = f
	case AlgorithmLogistic:
		w, _, err := linear.TrainLogistic(samples, labels, linear.Options{})
		if err != nil {
			return nil, err
		}
		model.Logistic = &w
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, opts.Algorithm)
	}

	metrics, err := Evaluate(model, test)
	if err != nil {
		return nil, err
	}
	metrics.Holdout = holdout
	model.Metrics = metrics
	return model, nil
}

// Predict returns the success probability for one vector. The vector's
// feature names must equal the names the model was trained with.
func (m *Model) Predict(v features.Vector) (float64, error) {
	if !sameNames(v.Names, m.FeatureNames) || len(v.Values) != len(m.FeatureNames) {
		return 0, fmt.Errorf("%w: model expects %v, got %v", ErrSchemaMismatch, m.FeatureNames, v.Names)
	}
	p, err := m.raw(v.Values)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(p) {
		return 0, fmt.Errorf("classifier: model produced NaN for %v", v.Values)
	}
	return math.Max(0, math.Min(1, p)), nil
}

func (m *Model) raw(values []float64) (float64, error) {
	switch m.Algorithm {
	case AlgorithmRandomForest:
		if m.Forest == nil {
			return 0, fmt.Errorf("classifier: random forest model has no trees")
		}
		return m.Forest.Predict(values)
	case AlgorithmLogistic:
		if m.Logistic == nil {
			return 0, fmt.Errorf("classifier: logistic model has no weights")
		}
		return linear.Predict(*m.Logistic, values)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, m.Algorithm)
	}
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func split(examples []Example, ratio float64, seed int64) (train, test []Example) {
	if ratio <= 0 || ratio >= 1 {
		return examples, nil
	}
	testSize := int(math.Round(float64(len(examples)) * ratio))
	if testSize == 0 || len(examples)-testSize < 2 {
		return examples, nil
	}
	order := rand.New(rand.NewSource(seed)).Perm(len(examples))
	for i, idx := range order {
		if i < testSize {
			test = append(test, examples[idx])
		} else {
			train = append(train, examples[idx])
		}
	}
	keepBothClasses(train, test)
	return train, test
}

// keepBothClasses swaps one example between the sets when the shuffle left
// the training set without one of the outcomes. Set sizes are unchanged.
func keepBothClasses(train, test []Example) {
	for _, missing := range []bool{true, false} {
		if indexOf(train, missing) >= 0 {
			continue
		}
		ti, tj := indexOf(test, missing), indexOf(train, !missing)
		if ti < 0 || tj < 0 {
			continue
		}
		train[tj], test[ti] = test[ti], train[tj]
	}
}

func indexOf(examples []Example, success bool) int {
	for i, ex := range examples {
		if ex.Success == success {
			return i
		}
	}
	return -1
}

func matrix(examples []Example) ([][]float64, []float64) {
	samples := make([][]float64, len(examples))
	labels := make([]float64, len(examples))
	for i, ex := range examples {
		samples[i] = ex.Features
		if ex.Success {
			labels[i] = 1
		}
	}
	return samples, labels
}
