package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/organlink/platform/pkg/common/models"
	"github.com/organlink/platform/pkg/notification"
	"github.com/organlink/platform/pkg/records"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MatchModel rows are never deleted. The partial unique index allows at
// most one PENDING match per (patient, donor) pair.
type MatchModel struct {
	ID           string     `gorm:"primaryKey;column:id"`
	PatientID    string     `gorm:"column:patient_id;index:idx_pending_pair,unique,where:status = 'PENDING'"`
	DonorID      string     `gorm:"column:donor_id;index:idx_pending_pair,unique,where:status = 'PENDING'"`
	HospitalID   string     `gorm:"column:hospital_id;index"`
	Score        float64    `gorm:"column:score"`
	Status       string     `gorm:"column:status;index"`
	Reason       string     `gorm:"column:reason"`
	ModelVersion string     `gorm:"column:model_version"`
	ColdStart    bool       `gorm:"column:cold_start"`
	CreatedAt    time.Time  `gorm:"column:created_at;index"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
	RespondedAt  *time.Time `gorm:"column:responded_at"`
}

func (MatchModel) TableName() string {
	return "matches"
}

// NotificationModel is the outbox row written with each match.
type NotificationModel struct {
	ID          string            `gorm:"primaryKey;column:id"`
	RecipientID string            `gorm:"column:recipient_id;index"`
	HospitalID  string            `gorm:"column:hospital_id"`
	MatchID     string            `gorm:"column:match_id;index"`
	Message     string            `gorm:"column:message"`
	Link        string            `gorm:"column:link"`
	Payload     datatypes.JSONMap `gorm:"column:payload"`
	CreatedAt   time.Time         `gorm:"column:created_at"`
	SentAt      *time.Time        `gorm:"column:sent_at;index"`
}

func (NotificationModel) TableName() string {
	return "match_notifications"
}

func (m MatchModel) toDomain() models.Match {
	return models.Match{
		ID:           m.ID,
		PatientID:    m.PatientID,
		DonorID:      m.DonorID,
		HospitalID:   m.HospitalID,
		Score:        m.Score,
		Status:       models.MatchStatus(m.Status),
		Reason:       m.Reason,
		ModelVersion: m.ModelVersion,
		ColdStart:    m.ColdStart,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		RespondedAt:  m.RespondedAt,
	}
}

func (n NotificationModel) toDomain() notification.Notification {
	return notification.Notification{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		HospitalID:  n.HospitalID,
		MatchID:     n.MatchID,
		Message:     n.Message,
		Link:        n.Link,
		CreatedAt:   n.CreatedAt,
	}
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&MatchModel{}, &NotificationModel{})
}

func (s *GormStore) FindPending(ctx context.Context, patientID, donorID string) (*models.Match, error) {
	var rows []MatchModel
	err := s.db.WithContext(ctx).
		Where("patient_id = ? AND donor_id = ? AND status = ?", patientID, donorID, string(models.MatchPending)).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	match := rows[0].toDomain()
	return &match, nil
}

func (s *GormStore) CreateWithOutbox(ctx context.Context, match models.Match, n notification.Notification) error {
	row := MatchModel{
		ID:           match.ID,
		PatientID:    match.PatientID,
		DonorID:      match.DonorID,
		HospitalID:   match.HospitalID,
		Score:        match.Score,
		Status:       string(match.Status),
		Reason:       match.Reason,
		ModelVersion: match.ModelVersion,
		ColdStart:    match.ColdStart,
		CreatedAt:    match.CreatedAt,
		UpdatedAt:    match.UpdatedAt,
	}
	outbox := NotificationModel{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		HospitalID:  n.HospitalID,
		MatchID:     n.MatchID,
		Message:     n.Message,
		Link:        n.Link,
		Payload:     datatypes.JSONMap(n.Payload()),
		CreatedAt:   n.CreatedAt,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Create(&outbox).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: patient %s donor %s", ErrDuplicatePending, match.PatientID, match.DonorID)
	}
	return err
}

func (s *GormStore) MarkNotificationSent(ctx context.Context, notificationID string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", notificationID).
		Update("sent_at", at).Error
}

func (s *GormStore) UnsentNotifications(ctx context.Context, limit int) ([]notification.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []NotificationModel
	err := s.db.WithContext(ctx).
		Where("sent_at IS NULL").
		Order("created_at").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]notification.Notification, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *GormStore) Get(ctx context.Context, id string) (models.Match, error) {
	var row MatchModel
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Match{}, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	if err != nil {
		return models.Match{}, err
	}
	return row.toDomain(), nil
}

func (s *GormStore) ListForPatient(ctx context.Context, patientID string) ([]models.Match, error) {
	var rows []MatchModel
	err := s.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("created_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.Match, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *GormStore) Apply(ctx context.Context, change Change) (models.Match, error) {
	var row MatchModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":     string(change.To),
			"updated_at": change.At,
		}
		if change.Reason != "" {
			updates["reason"] = change.Reason
		}
		if change.Respond {
			updates["responded_at"] = change.At
		}
		result := tx.Model(&MatchModel{}).
			Where("id = ? AND status = ?", change.MatchID, string(change.From)).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: match %s is no longer %s", ErrInvalidTransition, change.MatchID, change.From)
		}

		if change.Allocate {
			if err := tx.Model(&records.DonorModel{}).
				Where("id = ?", change.DonorID).
				Updates(map[string]interface{}{"availability": string(models.AvailabilityMatched), "updated_at": change.At}).Error; err != nil {
				return fmt.Errorf("allocate donor: %w", err)
			}
			if err := tx.Model(&records.PatientModel{}).
				Where("id = ?", change.PatientID).
				Updates(map[string]interface{}{"status": string(models.PatientMatched), "updated_at": change.At}).Error; err != nil {
				return fmt.Errorf("allocate patient: %w", err)
			}
		}
		return tx.First(&row, "id = ?", change.MatchID).Error
	})
	if err != nil {
		return models.Match{}, err
	}
	return row.toDomain(), nil
}

func (s *GormStore) ExpirePending(ctx context.Context, createdBefore, at time.Time) ([]models.Match, error) {
	var rows []MatchModel
	err := s.db.WithContext(ctx).
		Model(&rows).
		Clauses(clause.Returning{}).
		Where("status = ? AND created_at < ?", string(models.MatchPending), createdBefore).
		Updates(map[string]interface{}{"status": string(models.MatchExpired), "updated_at": at}).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.Match, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
