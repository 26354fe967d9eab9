package training

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type RunModel struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey;column:id"`
	Source       string            `gorm:"column:source"`
	Algorithm    string            `gorm:"column:algorithm"`
	Config       datatypes.JSONMap `gorm:"column:config"`
	Status       string            `gorm:"column:status;index"`
	Samples      int               `gorm:"column:samples"`
	Metrics      datatypes.JSONMap `gorm:"column:metrics"`
	ModelVersion string            `gorm:"column:model_version"`
	ArtifactPath string            `gorm:"column:artifact_path"`
	ErrorMessage string            `gorm:"column:error_message"`
	CreatedAt    time.Time         `gorm:"column:created_at"`
	UpdatedAt    time.Time         `gorm:"column:updated_at"`
	StartedAt    *time.Time        `gorm:"column:started_at"`
	CompletedAt  *time.Time        `gorm:"column:completed_at"`
}

func (RunModel) TableName() string {
	return "training_runs"
}

type CreateRunInput struct {
	Source      string `json:"source"`
	DatasetPath string `json:"dataset_path"`
	Samples     int    `json:"samples"`
	Algorithm   string `json:"algorithm"`
	// Force allows a synthetic model to replace one trained on real data.
	Force bool `json:"force"`
}

// RunResult is what a finished run records.
type RunResult struct {
	Samples      int
	ModelVersion string
	Metrics      map[string]interface{}
	ArtifactPath string
	ErrorMessage string
}
