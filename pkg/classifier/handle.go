package classifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/organlink/platform/pkg/common/logger"
	"github.com/organlink/platform/pkg/features"
	"github.com/organlink/platform/pkg/observability/metrics"
	"github.com/sirupsen/logrus"
)

// Bootstrapper supplies a dataset when no persisted model exists. It
// returns ErrModelUnavailable when cold start is not permitted.
type Bootstrapper func(ctx context.Context) (Dataset, error)

// Handle holds the model shared by all matching requests. Reads are
// lock-free; loads, cold starts and installs are serialized.
type Handle struct {
	store     Store
	opts      Options
	bootstrap Bootstrapper

	current atomic.Pointer[Model]

	loadMu  sync.Mutex
	version time.Time

	trainMu sync.Mutex
}

func NewHandle(store Store, opts Options) *Handle {
	return &Handle{store: store, opts: opts}
}

func (h *Handle) WithBootstrap(b Bootstrapper) *Handle {
	h.bootstrap = b
	return h
}

// Peek returns the loaded model without touching the store.
func (h *Handle) Peek() *Model {
	return h.current.Load()
}

// Current returns the loaded model, loading it from the store on first
// use. If nothing is persisted the bootstrapper is run once; concurrent
// callers wait for that run and share its result.
func (h *Handle) Current(ctx context.Context) (*Model, error) {
	if m := h.current.Load(); m != nil {
		return m, nil
	}

	h.loadMu.Lock()
	defer h.loadMu.Unlock()
	if m := h.current.Load(); m != nil {
		return m, nil
	}

	m, version, err := h.store.Load(ctx)
	if err == nil {
		if err := checkSchema(m); err != nil {
			return nil, err
		}
		h.swap(m, version)
		logger.WithFields(logrus.Fields{
			"model_version": m.Version,
			"algorithm":     m.Algorithm,
			"source":        m.Source,
		}).Info("Loaded compatibility model")
		return m, nil
	}
	if !errors.Is(err, ErrModelNotFound) {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if h.bootstrap == nil {
		return nil, ErrModelUnavailable
	}

	ds, err := h.bootstrap(ctx)
	if err != nil {
		if errors.Is(err, ErrModelUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: cold start: %w", ErrModelUnavailable, err)
	}
	m, err = Train(ds, h.opts)
	if err != nil {
		return nil, fmt.Errorf("cold start training: %w", err)
	}
	if err := h.saveLocked(ctx, m); err != nil {
		return nil, err
	}
	metrics.ColdStartTrained()
	entry := logger.WithFields(logrus.Fields{
		"model_version": m.Version,
		"source":        m.Source,
		"samples":       m.Samples,
		"accuracy":      m.Metrics.Accuracy,
	})
	if m.ColdStart() {
		entry.Warn("No persisted model; trained a cold-start model on synthetic data")
	} else {
		entry.Info("No persisted model; trained from configured dataset")
	}
	return m, nil
}

// Retrain fits a new model and installs it. Only one retrain runs at a
// time; a concurrent call fails fast with ErrTrainingInProgress.
func (h *Handle) Retrain(ctx context.Context, ds Dataset, opts Options) (*Model, error) {
	if !h.trainMu.TryLock() {
		return nil, ErrTrainingInProgress
	}
	defer h.trainMu.Unlock()

	m, err := Train(ds, opts)
	if err != nil {
		return nil, err
	}
	if err := h.Install(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Install persists m and makes it the current model.
func (h *Handle) Install(ctx context.Context, m *Model) error {
	if err := checkSchema(m); err != nil {
		return err
	}
	h.loadMu.Lock()
	defer h.loadMu.Unlock()
	return h.saveLocked(ctx, m)
}

// Refresh swaps in the persisted model if another process replaced it.
func (h *Handle) Refresh(ctx context.Context) (bool, error) {
	version, err := h.store.Version(ctx)
	if errors.Is(err, ErrModelNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	h.loadMu.Lock()
	defer h.loadMu.Unlock()
	if version.Equal(h.version) {
		return false, nil
	}
	m, loaded, err := h.store.Load(ctx)
	if err != nil {
		return false, err
	}
	if err := checkSchema(m); err != nil {
		return false, err
	}
	h.swap(m, loaded)
	metrics.ModelReloaded()
	logger.WithFields(logrus.Fields{
		"model_version": m.Version,
		"source":        m.Source,
	}).Info("Reloaded compatibility model")
	return true, nil
}

// Watch calls Refresh every interval until ctx is done.
func (h *Handle) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := h.Refresh(ctx); err != nil {
				logger.Log.WithError(err).Warn("Model refresh failed")
			}
		}
	}
}

func (h *Handle) saveLocked(ctx context.Context, m *Model) error {
	version, err := h.store.Save(ctx, m)
	if err != nil {
		return fmt.Errorf("persist model: %w", err)
	}
	h.swap(m, version)
	return nil
}

func (h *Handle) swap(m *Model, version time.Time) {
	h.version = version
	h.current.Store(m)
}

func checkSchema(m *Model) error {
	if !sameNames(m.FeatureNames, features.Names) {
		return fmt.Errorf("%w: model %s trained on %v, serving %v", ErrSchemaMismatch, m.Version, m.FeatureNames, features.Names)
	}
	return nil
}
