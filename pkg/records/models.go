package records

import (
	"time"

	"github.com/organlink/platform/pkg/common/models"
	"gorm.io/datatypes"
)

type HospitalModel struct {
	ID          string    `gorm:"primaryKey;column:id"`
	Name        string    `gorm:"column:name"`
	City        string    `gorm:"column:city"`
	AdminUserID string    `gorm:"column:admin_user_id"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (HospitalModel) TableName() string {
	return "hospitals"
}

type DonorModel struct {
	ID           string                      `gorm:"primaryKey;column:id"`
	FirstName    string                      `gorm:"column:first_name"`
	LastName     string                      `gorm:"column:last_name"`
	BloodType    string                      `gorm:"column:blood_type"`
	Organs       datatypes.JSONSlice[string] `gorm:"column:organs;type:jsonb"`
	Availability string                      `gorm:"column:availability;index"`
	HospitalID   string                      `gorm:"column:hospital_id;index"`
	City         string                      `gorm:"column:city"`
	DateOfBirth  time.Time                   `gorm:"column:date_of_birth"`
	CreatedAt    time.Time                   `gorm:"column:created_at"`
	UpdatedAt    time.Time                   `gorm:"column:updated_at"`
}

func (DonorModel) TableName() string {
	return "donors"
}

type PatientModel struct {
	ID           string    `gorm:"primaryKey;column:id"`
	FirstName    string    `gorm:"column:first_name"`
	LastName     string    `gorm:"column:last_name"`
	BloodType    string    `gorm:"column:blood_type"`
	OrganNeeded  string    `gorm:"column:organ_needed;index"`
	Urgency      string    `gorm:"column:urgency"`
	WaitingSince time.Time `gorm:"column:waiting_since"`
	HospitalID   string    `gorm:"column:hospital_id;index"`
	City         string    `gorm:"column:city"`
	Status       string    `gorm:"column:status"`
	DateOfBirth  time.Time `gorm:"column:date_of_birth"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (PatientModel) TableName() string {
	return "patients"
}

type PolicyModel struct {
	ID         string    `gorm:"primaryKey;column:id"`
	Title      string    `gorm:"column:title"`
	OrganType  string    `gorm:"column:organ_type;index:idx_policy_organ_status"`
	Status     string    `gorm:"column:status;index:idx_policy_organ_status"`
	Rules      string    `gorm:"column:rules;type:text"`
	HospitalID string    `gorm:"column:hospital_id"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (PolicyModel) TableName() string {
	return "policies"
}

func (m HospitalModel) toDomain() models.Hospital {
	return models.Hospital{ID: m.ID, Name: m.Name, City: m.City, AdminUserID: m.AdminUserID}
}

func (m DonorModel) toDomain() models.Donor {
	return models.Donor{
		ID:           m.ID,
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		BloodType:    m.BloodType,
		Organs:       append([]string(nil), m.Organs...),
		Availability: models.Availability(m.Availability),
		HospitalID:   m.HospitalID,
		City:         m.City,
		DateOfBirth:  m.DateOfBirth,
	}
}

func (m PatientModel) toDomain() models.Patient {
	return models.Patient{
		ID:           m.ID,
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		BloodType:    m.BloodType,
		OrganNeeded:  m.OrganNeeded,
		Urgency:      models.Urgency(m.Urgency),
		WaitingSince: m.WaitingSince,
		HospitalID:   m.HospitalID,
		City:         m.City,
		Status:       models.PatientStatus(m.Status),
		DateOfBirth:  m.DateOfBirth,
	}
}

func (m PolicyModel) toDomain() models.Policy {
	return models.Policy{
		ID:         m.ID,
		Title:      m.Title,
		OrganType:  m.OrganType,
		Status:     models.PolicyStatus(m.Status),
		Rules:      m.Rules,
		HospitalID: m.HospitalID,
	}
}

func hospitalModel(h models.Hospital) HospitalModel {
	return HospitalModel{ID: h.ID, Name: h.Name, City: h.City, AdminUserID: h.AdminUserID}
}

func donorModel(d models.Donor) DonorModel {
	return DonorModel{
		ID:           d.ID,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		BloodType:    d.BloodType,
		Organs:       datatypes.JSONSlice[string](d.Organs),
		Availability: string(d.Availability),
		HospitalID:   d.HospitalID,
		City:         d.City,
		DateOfBirth:  d.DateOfBirth,
	}
}

func patientModel(p models.Patient) PatientModel {
	return PatientModel{
		ID:           p.ID,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		BloodType:    p.BloodType,
		OrganNeeded:  p.OrganNeeded,
		Urgency:      string(p.Urgency),
		WaitingSince: p.WaitingSince,
		HospitalID:   p.HospitalID,
		City:         p.City,
		Status:       string(p.Status),
		DateOfBirth:  p.DateOfBirth,
	}
}

func policyModel(p models.Policy) PolicyModel {
	return PolicyModel{
		ID:         p.ID,
		Title:      p.Title,
		OrganType:  p.OrganType,
		Status:     string(p.Status),
		Rules:      p.Rules,
		HospitalID: p.HospitalID,
	}
}
