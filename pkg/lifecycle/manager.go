// Package lifecycle creates PENDING matches and moves them through their
// statuses.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/organlink/platform/pkg/common/logger"
	"github.com/organlink/platform/pkg/common/models"
	"github.com/organlink/platform/pkg/notification"
	"github.com/organlink/platform/pkg/observability/metrics"
	"github.com/organlink/platform/pkg/ranking"
	"github.com/sirupsen/logrus"
)

var (
	ErrMatchNotFound     = errors.New("match not found")
	ErrInvalidTransition = errors.New("invalid match status transition")
	// ErrDuplicatePending is returned by a Store when the pair already has
	// a PENDING match.
	ErrDuplicatePending = errors.New("pending match already exists for pair")
)

// Change is one status update. Allocate also marks the donor and patient
// MATCHED in the same transaction.
type Change struct {
	MatchID   string
	PatientID string
	DonorID   string
	From      models.MatchStatus
	To        models.MatchStatus
	Reason    string
	At        time.Time
	Respond   bool
	Allocate  bool
}

type Store interface {
	// FindPending returns nil when the pair has no PENDING match.
	FindPending(ctx context.Context, patientID, donorID string) (*models.Match, error)
	// CreateWithOutbox writes the match and its notification atomically.
	CreateWithOutbox(ctx context.Context, match models.Match, n notification.Notification) error
	MarkNotificationSent(ctx context.Context, notificationID string, at time.Time) error
	UnsentNotifications(ctx context.Context, limit int) ([]notification.Notification, error)
	Get(ctx context.Context, id string) (models.Match, error)
	ListForPatient(ctx context.Context, patientID string) ([]models.Match, error)
	// Apply performs the change only if the match is still in From.
	Apply(ctx context.Context, change Change) (models.Match, error)
	ExpirePending(ctx context.Context, createdBefore, at time.Time) ([]models.Match, error)
}

type HospitalDirectory interface {
	GetHospital(ctx context.Context, id string) (models.Hospital, error)
}

// PendingRequest carries the ranked candidates for one patient.
type PendingRequest struct {
	Patient      models.Patient
	HospitalID   string
	Candidates   []ranking.Candidate
	ModelVersion string
	ColdStart    bool
}

type Manager struct {
	store     Store
	hospitals HospitalDirectory
	sink      notification.Sink
	events    notification.Publisher
	now       func() time.Time
}

// NewManager wires the manager; events may be nil.
func NewManager(store Store, hospitals HospitalDirectory, sink notification.Sink, events notification.Publisher) *Manager {
	return &Manager{
		store:     store,
		hospitals: hospitals,
		sink:      sink,
		events:    events,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreatePending persists one PENDING match per candidate and notifies the
// donor hospital. A pair that already has a PENDING match yields the
// existing match and no new notification. On error the matches created so
// far are returned with it.
func (m *Manager) CreatePending(ctx context.Context, req PendingRequest) ([]models.Match, error) {
	matches := make([]models.Match, 0, len(req.Candidates))
	for _, cand := range req.Candidates {
		existing, err := m.store.FindPending(ctx, req.Patient.ID, cand.Donor.ID)
		if err != nil {
			return matches, fmt.Errorf("check pending match: %w", err)
		}
		if existing != nil {
			metrics.MatchDeduplicated()
			matches = append(matches, *existing)
			continue
		}

		hospital, err := m.hospitals.GetHospital(ctx, cand.Donor.HospitalID)
		if err != nil {
			return matches, fmt.Errorf("resolve donor hospital: %w", err)
		}

		now := m.now()
		match := models.Match{
			ID:           uuid.NewString(),
			PatientID:    req.Patient.ID,
			DonorID:      cand.Donor.ID,
			HospitalID:   req.HospitalID,
			Score:        math.Max(0, math.Min(1, cand.Probability)),
			Status:       models.MatchPending,
			ModelVersion: req.ModelVersion,
			ColdStart:    req.ColdStart,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		note := notification.ForMatch(match, req.Patient, cand.Donor, hospital)

		if err := m.store.CreateWithOutbox(ctx, match, note); err != nil {
			if errors.Is(err, ErrDuplicatePending) {
				// lost a race with a concurrent request for the same pair
				existing, findErr := m.store.FindPending(ctx, req.Patient.ID, cand.Donor.ID)
				if findErr == nil && existing != nil {
					metrics.MatchDeduplicated()
					matches = append(matches, *existing)
					continue
				}
			}
			return matches, fmt.Errorf("persist match: %w", err)
		}
		metrics.MatchCreated()
		matches = append(matches, match)

		if err := m.sink.Notify(ctx, note); err != nil {
			return matches, fmt.Errorf("notify donor hospital: %w", err)
		}
		if err := m.store.MarkNotificationSent(ctx, note.ID, m.now()); err != nil {
			logger.Log.WithError(err).WithField("notification_id", note.ID).Warn("failed to mark notification sent")
		}
		m.publish(ctx, match)
	}
	return matches, nil
}

func (m *Manager) Get(ctx context.Context, id string) (models.Match, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) ListForPatient(ctx context.Context, patientID string) ([]models.Match, error) {
	return m.store.ListForPatient(ctx, patientID)
}

// Accept also marks the donor and patient MATCHED.
func (m *Manager) Accept(ctx context.Context, id string) (models.Match, error) {
	return m.transition(ctx, id, models.MatchAccepted, "")
}

func (m *Manager) Reject(ctx context.Context, id, reason string) (models.Match, error) {
	return m.transition(ctx, id, models.MatchRejected, reason)
}

func (m *Manager) Complete(ctx context.Context, id string) (models.Match, error) {
	return m.transition(ctx, id, models.MatchCompleted, "")
}

func (m *Manager) Cancel(ctx context.Context, id, reason string) (models.Match, error) {
	return m.transition(ctx, id, models.MatchCancelled, reason)
}

func (m *Manager) transition(ctx context.Context, id string, to models.MatchStatus, reason string) (models.Match, error) {
	current, err := m.store.Get(ctx, id)
	if err != nil {
		return models.Match{}, err
	}
	if !models.CanTransition(current.Status, to) {
		return models.Match{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
	}

	updated, err := m.store.Apply(ctx, Change{
		MatchID:   current.ID,
		PatientID: current.PatientID,
		DonorID:   current.DonorID,
		From:      current.Status,
		To:        to,
		Reason:    reason,
		At:        m.now(),
		Respond:   current.Status == models.MatchPending,
		Allocate:  to == models.MatchAccepted,
	})
	if err != nil {
		return models.Match{}, err
	}
	metrics.MatchTransitioned()
	logger.WithFields(logrus.Fields{
		"match_id": updated.ID,
		"from":     current.Status,
		"to":       updated.Status,
	}).Info("Match transitioned")
	m.publish(ctx, updated)
	return updated, nil
}

// ExpireStale moves PENDING matches created more than olderThan ago to
// EXPIRED and returns how many were expired.
func (m *Manager) ExpireStale(ctx context.Context, olderThan time.Duration) (int, error) {
	now := m.now()
	expired, err := m.store.ExpirePending(ctx, now.Add(-olderThan), now)
	if err != nil {
		return 0, err
	}
	if len(expired) > 0 {
		metrics.MatchesExpired(len(expired))
		logger.WithField("count", len(expired)).Info("Expired stale pending matches")
	}
	for _, match := range expired {
		m.publish(ctx, match)
	}
	return len(expired), nil
}

// RelayOutbox resends notifications whose delivery failed earlier.
func (m *Manager) RelayOutbox(ctx context.Context, limit int) (int, error) {
	pending, err := m.store.UnsentNotifications(ctx, limit)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, note := range pending {
		if err := m.sink.Notify(ctx, note); err != nil {
			return sent, err
		}
		if err := m.store.MarkNotificationSent(ctx, note.ID, m.now()); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func (m *Manager) publish(ctx context.Context, match models.Match) {
	if m.events == nil {
		return
	}
	eventType := "match." + strings.ToLower(string(match.Status))
	data := map[string]interface{}{
		"match_id":      match.ID,
		"patient_id":    match.PatientID,
		"donor_id":      match.DonorID,
		"hospital_id":   match.HospitalID,
		"score":         match.Score,
		"status":        string(match.Status),
		"model_version": match.ModelVersion,
		"cold_start":    match.ColdStart,
	}
	if match.Reason != "" {
		data["reason"] = match.Reason
	}
	if err := m.events.PublishEvent(ctx, eventType, match.ID, data); err != nil {
		logger.Log.WithError(err).WithFields(logrus.Fields{
			"match_id":   match.ID,
			"event_type": eventType,
		}).Warn("failed to publish match event")
	}
}
