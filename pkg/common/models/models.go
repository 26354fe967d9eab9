package models

import (
	"strings"
	"time"
)

// Event bus envelope
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // patient.registered, match.pending, match.accepted, ...
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

type Availability string

const (
	AvailabilityAvailable   Availability = "AVAILABLE"
	AvailabilityTemporary   Availability = "TEMPORARILY_UNAVAILABLE"
	AvailabilityMatched     Availability = "MATCHED"
	AvailabilityUnavailable Availability = "NOT_AVAILABLE"
)

type Urgency string

const (
	UrgencyLow       Urgency = "LOW"
	UrgencyMedium    Urgency = "MEDIUM"
	UrgencyHigh      Urgency = "HIGH"
	UrgencyCritical  Urgency = "CRITICAL"
	UrgencyEmergency Urgency = "EMERGENCY"
)

var urgencyRanks = map[Urgency]int{
	UrgencyLow:       1,
	UrgencyMedium:    2,
	UrgencyHigh:      3,
	UrgencyCritical:  4,
	UrgencyEmergency: 5,
}

// Rank is the ordinal position of the urgency level, LOW=1 through
// EMERGENCY=5. Unknown levels rank 0.
func (u Urgency) Rank() int {
	return urgencyRanks[Urgency(strings.ToUpper(strings.TrimSpace(string(u))))]
}

type PatientStatus string

const (
	PatientRegistered   PatientStatus = "REGISTERED"
	PatientWaiting      PatientStatus = "WAITING"
	PatientMatched      PatientStatus = "MATCHED"
	PatientTransplanted PatientStatus = "TRANSPLANTED"
	PatientInactive     PatientStatus = "INACTIVE"
)

type PolicyStatus string

const (
	PolicyDraft       PolicyStatus = "DRAFT"
	PolicyProposed    PolicyStatus = "PROPOSED"
	PolicyVoting      PolicyStatus = "VOTING"
	PolicyApproved    PolicyStatus = "APPROVED"
	PolicyImplemented PolicyStatus = "IMPLEMENTED"
	PolicyRejected    PolicyStatus = "REJECTED"
)

type MatchStatus string

const (
	MatchPending   MatchStatus = "PENDING"
	MatchAccepted  MatchStatus = "ACCEPTED"
	MatchRejected  MatchStatus = "REJECTED"
	MatchExpired   MatchStatus = "EXPIRED"
	MatchCompleted MatchStatus = "COMPLETED"
	MatchCancelled MatchStatus = "CANCELLED"
)

var matchTransitions = map[MatchStatus][]MatchStatus{
	MatchPending:  {MatchAccepted, MatchRejected, MatchExpired},
	MatchAccepted: {MatchCompleted, MatchCancelled},
}

// CanTransition reports whether a match may move from one status to another.
func CanTransition(from, to MatchStatus) bool {
	for _, next := range matchTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Hospital struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	City        string `json:"city" yaml:"city"`
	AdminUserID string `json:"admin_user_id" yaml:"admin_user_id"`
}

type Donor struct {
	ID           string       `json:"id" yaml:"id"`
	FirstName    string       `json:"first_name" yaml:"first_name"`
	LastName     string       `json:"last_name" yaml:"last_name"`
	BloodType    string       `json:"blood_type" yaml:"blood_type"`
	Organs       []string     `json:"organs" yaml:"organs"`
	Availability Availability `json:"availability" yaml:"availability"`
	HospitalID   string       `json:"hospital_id" yaml:"hospital_id"`
	City         string       `json:"city,omitempty" yaml:"city"`
	DateOfBirth  time.Time    `json:"date_of_birth" yaml:"date_of_birth"`
}

func (d Donor) DisplayName() string {
	return strings.TrimSpace(d.FirstName + " " + d.LastName)
}

// CanDonate is exact string membership; no organ-type equivalence is implied.
func (d Donor) CanDonate(organ string) bool {
	for _, o := range d.Organs {
		if o == organ {
			return true
		}
	}
	return false
}

type Patient struct {
	ID           string        `json:"id" yaml:"id"`
	FirstName    string        `json:"first_name" yaml:"first_name"`
	LastName     string        `json:"last_name" yaml:"last_name"`
	BloodType    string        `json:"blood_type" yaml:"blood_type"`
	OrganNeeded  string        `json:"organ_needed" yaml:"organ_needed"`
	Urgency      Urgency       `json:"urgency" yaml:"urgency"`
	WaitingSince time.Time     `json:"waiting_since" yaml:"waiting_since"`
	HospitalID   string        `json:"hospital_id" yaml:"hospital_id"`
	City         string        `json:"city,omitempty" yaml:"city"`
	Status       PatientStatus `json:"status" yaml:"status"`
	DateOfBirth  time.Time     `json:"date_of_birth" yaml:"date_of_birth"`
}

func (p Patient) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

type Policy struct {
	ID         string       `json:"id" yaml:"id"`
	Title      string       `json:"title" yaml:"title"`
	OrganType  string       `json:"organ_type" yaml:"organ_type"`
	Status     PolicyStatus `json:"status" yaml:"status"`
	Rules      string       `json:"rules" yaml:"rules"` // JSON rule document
	HospitalID string       `json:"hospital_id,omitempty" yaml:"hospital_id"`
}

type Match struct {
	ID           string      `json:"id"`
	PatientID    string      `json:"patient_id"`
	DonorID      string      `json:"donor_id"`
	HospitalID   string      `json:"hospital_id"`
	Score        float64     `json:"score"`
	Status       MatchStatus `json:"status"`
	Reason       string      `json:"reason,omitempty"`
	ModelVersion string      `json:"model_version,omitempty"`
	ColdStart    bool        `json:"cold_start"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	RespondedAt  *time.Time  `json:"responded_at,omitempty"`
}

// Model Training
type TrainingRun struct {
	ID           string                 `json:"id"`
	Source       string                 `json:"source"` // csv, synthetic
	Algorithm    string                 `json:"algorithm"`
	Status       string                 `json:"status"`
	Samples      int                    `json:"samples"`
	Metrics      map[string]interface{} `json:"metrics,omitempty"`
	ModelVersion string                 `json:"model_version,omitempty"`
	ArtifactPath string                 `json:"artifact_path,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
}
