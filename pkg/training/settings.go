package training

import (
	"github.com/organlink/platform/pkg/classifier"
	"github.com/organlink/platform/pkg/common/config"
)

// ModelOptions maps the MODEL_* and TRAINING_* environment onto
// classifier options.
func ModelOptions(cfg *config.Config) classifier.Options {
	return classifier.Options{
		Algorithm: cfg.ModelAlgorithm,
		Trees:     cfg.ModelTrees,
		MaxDepth:  cfg.ModelMaxDepth,
		Seed:      cfg.ModelSeed,
		TestRatio: cfg.TrainingTestRatio,
	}
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		DatasetPath:      cfg.TrainingDatasetPath,
		SyntheticSamples: cfg.SyntheticSamples,
		Seed:             cfg.ModelSeed,
		ArtifactPath:     cfg.ModelPath,
		Options:          ModelOptions(cfg),
	}
}

// NewModelHandle opens the model artifact at MODEL_PATH with the cold
// start bootstrapper the environment asks for.
func NewModelHandle(cfg *config.Config) *classifier.Handle {
	return classifier.NewHandle(classifier.NewFileStore(cfg.ModelPath), ModelOptions(cfg)).
		WithBootstrap(Bootstrap(cfg.TrainingDatasetPath, cfg.ColdStartSynthetic, cfg.SyntheticSamples, cfg.ModelSeed))
}
