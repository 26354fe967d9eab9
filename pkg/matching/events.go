package matching

import (
	"context"
	"errors"
	"fmt"

	"github.com/organlink/platform/pkg/classifier"
	"github.com/organlink/platform/pkg/common/kafka"
	"github.com/organlink/platform/pkg/common/logger"
	"github.com/organlink/platform/pkg/common/models"
	"github.com/organlink/platform/pkg/records"
	"github.com/sirupsen/logrus"
)

const EventPatientRegistered = "patient.registered"

// PatientRegisteredHandler runs matching when a patient joins the waiting
// list. Events of other types are acknowledged and ignored.
func (e *Engine) PatientRegisteredHandler() kafka.EventHandler {
	return func(ctx context.Context, event models.Event) error {
		if event.Type != EventPatientRegistered {
			return nil
		}
		patientID, _ := event.Data["patient_id"].(string)
		if patientID == "" {
			logger.Log.WithField("event_id", event.ID).Warn("patient.registered event without patient_id")
			return nil
		}
		hospitalID, _ := event.Data["hospital_id"].(string)

		result, err := e.FindBestMatchesForPatient(ctx, patientID, hospitalID)
		switch {
		case errors.Is(err, records.ErrPatientNotFound):
			logger.Log.WithError(err).WithField("event_id", event.ID).Warn("dropping event for unknown patient")
			return nil
		case errors.Is(err, classifier.ErrModelUnavailable), errors.Is(err, classifier.ErrSchemaMismatch):
			// retrying will not help until a compatible model is trained
			logger.Log.WithError(err).WithField("patient_id", patientID).Error("matching skipped, no usable model")
			return nil
		case err != nil:
			return fmt.Errorf("match patient %s: %w", patientID, err)
		}

		logger.WithFields(logrus.Fields{
			"event_id":   event.ID,
			"patient_id": patientID,
			"matches":    len(result.Matches),
		}).Info("Processed patient registration")
		return nil
	}
}
