// Package notification hands match notifications for hospital
// administrators to the delivery pipeline. Delivery to end users happens
// downstream of the topic.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/organlink/platform/pkg/common/logger"
	"github.com/organlink/platform/pkg/common/models"
	"github.com/organlink/platform/pkg/common/retry"
	"github.com/organlink/platform/pkg/observability/metrics"
	"github.com/sirupsen/logrus"
)

const EventMatchProposed = "notification.match_proposed"

type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	HospitalID  string    `json:"hospital_id"`
	MatchID     string    `json:"match_id"`
	Message     string    `json:"message"`
	Link        string    `json:"link"`
	CreatedAt   time.Time `json:"created_at"`
}

// ForMatch addresses the admin of the donor's hospital.
func ForMatch(match models.Match, patient models.Patient, donor models.Donor, donorHospital models.Hospital) Notification {
	return Notification{
		ID:          uuid.NewString(),
		RecipientID: donorHospital.AdminUserID,
		HospitalID:  donorHospital.ID,
		MatchID:     match.ID,
		Message: fmt.Sprintf("Potential match: patient %s and donor %s (compatibility %.0f%%)",
			displayOr(patient.DisplayName(), patient.ID), displayOr(donor.DisplayName(), donor.ID), match.Score*100),
		Link:      "/matches/" + match.ID,
		CreatedAt: match.CreatedAt,
	}
}

func displayOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

// Payload is the event body published for the notification.
func (n Notification) Payload() map[string]interface{} {
	return map[string]interface{}{
		"notification_id": n.ID,
		"recipient_id":    n.RecipientID,
		"hospital_id":     n.HospitalID,
		"match_id":        n.MatchID,
		"message":         n.Message,
		"link":            n.Link,
		"created_at":      n.CreatedAt,
	}
}

type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// Publisher is satisfied by kafka.Producer.
type Publisher interface {
	PublishEvent(ctx context.Context, eventType, key string, data map[string]interface{}) error
}

type KafkaSink struct {
	publisher Publisher
	attempts  int
	baseDelay time.Duration
}

func NewKafkaSink(publisher Publisher, attempts int, baseDelay time.Duration) *KafkaSink {
	if attempts <= 0 {
		attempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	return &KafkaSink{publisher: publisher, attempts: attempts, baseDelay: baseDelay}
}

// Notify publishes keyed by recipient so one admin's notifications stay
// ordered.
func (s *KafkaSink) Notify(ctx context.Context, n Notification) error {
	err := retry.Do(ctx, s.attempts, s.baseDelay, func() error {
		return s.publisher.PublishEvent(ctx, EventMatchProposed, n.RecipientID, n.Payload())
	})
	if err != nil {
		metrics.NotificationDeliveryFailed()
		return fmt.Errorf("notify %s about match %s: %w", n.RecipientID, n.MatchID, err)
	}
	return nil
}

// LogSink only logs; used when no broker is configured.
type LogSink struct{}

func (LogSink) Notify(_ context.Context, n Notification) error {
	logger.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"recipient_id":    n.RecipientID,
		"match_id":        n.MatchID,
		"link":            n.Link,
	}).Info(n.Message)
	return nil
}
