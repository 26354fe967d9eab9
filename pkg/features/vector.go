package features

import (
	"time"

	"github.com/organlink/platform/pkg/common/models"
	"github.com/organlink/platform/pkg/policy"
)

const (
	PatientAge       = "patient_age"
	DonorAge         = "donor_age"
	BloodTypeMatch   = "blood_type_match"
	UrgencyLevel     = "urgency_level"
	WaitingDays      = "waiting_days"
	PolicyAdjustment = "policy_adjustment"
)

// Names is the training and serving schema. Changing it means retraining.
var Names = []string{PatientAge, DonorAge, BloodTypeMatch, UrgencyLevel, WaitingDays, PolicyAdjustment}

// Schema returns a copy of Names safe for callers to keep.
func Schema() []string {
	return append([]string(nil), Names...)
}

type Vector struct {
	Names  []string  `json:"names"`
	Values []float64 `json:"values"`
}

// Map keys the vector by feature name, for explanations and logs.
func (v Vector) Map() map[string]float64 {
	out := make(map[string]float64, len(v.Names))
	for i, name := range v.Names {
		if i < len(v.Values) {
			out[name] = v.Values[i]
		}
	}
	return out
}

type Vectorizer struct {
	now func() time.Time
}

func NewVectorizer(now func() time.Time) *Vectorizer {
	if now == nil {
		now = time.Now
	}
	return &Vectorizer{now: now}
}

// Vectorize builds the vector for one (patient, donor, policies) triple.
func (v *Vectorizer) Vectorize(patient models.Patient, donor models.Donor, policies []models.Policy) (Vector, policy.Result) {
	result := policy.Evaluate(policies, patient.OrganNeeded, v.Subject(patient))
	return v.Assemble(patient, donor, result.Adjustment), result
}

// Subject is the policy view of the patient at the vectorizer's clock.
func (v *Vectorizer) Subject(patient models.Patient) policy.Subject {
	return policy.Subject{Age: AgeAt(patient.DateOfBirth, v.now()), City: patient.City}
}

// Assemble builds the vector when the policy adjustment is already known,
// which lets the engine evaluate policies once per patient.
func (v *Vectorizer) Assemble(patient models.Patient, donor models.Donor, adjustment float64) Vector {
	now := v.now()
	return Vector{
		Names: Schema(),
		Values: []float64{
			float64(AgeAt(patient.DateOfBirth, now)),
			float64(AgeAt(donor.DateOfBirth, now)),
			BloodMatch(patient.BloodType, donor.BloodType),
			float64(patient.Urgency.Rank()),
			float64(DaysSince(patient.WaitingSince, now)),
			adjustment,
		},
	}
}

// BloodMatch is literal string equality, not ABO compatibility.
func BloodMatch(patientType, donorType string) float64 {
	if patientType == donorType {
		return 1
	}
	return 0
}

// AgeAt returns whole years lived at the given instant.
func AgeAt(birth, at time.Time) int {
	if birth.IsZero() || at.Before(birth) {
		return 0
	}
	years := at.Year() - birth.Year()
	if at.Month() < birth.Month() || (at.Month() == birth.Month() && at.Day() < birth.Day()) {
		years--
	}
	return years
}

// DaysSince returns whole days elapsed, never negative.
func DaysSince(start, at time.Time) int {
	if start.IsZero() || at.Before(start) {
		return 0
	}
	return int(at.Sub(start).Hours() / 24)
}
