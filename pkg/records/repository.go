// Package records reads and writes hospitals, donors, patients and
// allocation policies.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/organlink/platform/pkg/common/logger"
	"github.com/organlink/platform/pkg/common/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrPatientNotFound  = errors.New("patient not found")
	ErrDonorNotFound    = errors.New("donor not found")
	ErrHospitalNotFound = errors.New("hospital not found")
)

type Repository struct {
	db    *gorm.DB
	cache *PolicyCache
}

// NewRepository builds a repository; cache may be nil.
func NewRepository(db *gorm.DB, cache *PolicyCache) *Repository {
	return &Repository{db: db, cache: cache}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&HospitalModel{}, &DonorModel{}, &PatientModel{}, &PolicyModel{})
}

func (r *Repository) GetPatient(ctx context.Context, id string) (models.Patient, error) {
	var row PatientModel
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Patient{}, fmt.Errorf("%w: %s", ErrPatientNotFound, id)
	}
	if err != nil {
		return models.Patient{}, err
	}
	return row.toDomain(), nil
}

func (r *Repository) GetDonor(ctx context.Context, id string) (models.Donor, error) {
	var row DonorModel
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Donor{}, fmt.Errorf("%w: %s", ErrDonorNotFound, id)
	}
	if err != nil {
		return models.Donor{}, err
	}
	return row.toDomain(), nil
}

func (r *Repository) GetHospital(ctx context.Context, id string) (models.Hospital, error) {
	var row HospitalModel
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Hospital{}, fmt.Errorf("%w: %s", ErrHospitalNotFound, id)
	}
	if err != nil {
		return models.Hospital{}, err
	}
	return row.toDomain(), nil
}

// AvailableDonors returns AVAILABLE donors from every hospital whose organ
// list contains organ.
func (r *Repository) AvailableDonors(ctx context.Context, organ string) ([]models.Donor, error) {
	contains, err := json.Marshal([]string{organ})
	if err != nil {
		return nil, err
	}
	var rows []DonorModel
	err = r.db.WithContext(ctx).
		Where("availability = ?", string(models.AvailabilityAvailable)).
		Where("organs @> ?::jsonb", string(contains)).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	donors := make([]models.Donor, 0, len(rows))
	for _, row := range rows {
		donors = append(donors, row.toDomain())
	}
	return donors, nil
}

// ImplementedPolicies is read through the policy cache when one is set.
// Cache errors fall back to the database.
func (r *Repository) ImplementedPolicies(ctx context.Context, organ string) ([]models.Policy, error) {
	if r.cache != nil {
		policies, ok, err := r.cache.Get(ctx, organ)
		if err != nil {
			logger.Log.WithError(err).WithField("organ_type", organ).Warn("policy cache read failed")
		} else if ok {
			return policies, nil
		}
	}

	var rows []PolicyModel
	err := r.db.WithContext(ctx).
		Where("organ_type = ? AND status = ?", organ, string(models.PolicyImplemented)).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	policies := make([]models.Policy, 0, len(rows))
	for _, row := range rows {
		policies = append(policies, row.toDomain())
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, organ, policies); err != nil {
			logger.Log.WithError(err).WithField("organ_type", organ).Warn("policy cache write failed")
		}
	}
	return policies, nil
}

// Seed upserts fixtures in one transaction and drops cached policies for
// the organs it touched.
func (r *Repository) Seed(ctx context.Context, f Fixtures) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := tx.Clauses(clause.OnConflict{UpdateAll: true})
		for _, h := range f.Hospitals {
			row := hospitalModel(h)
			if err := upsert.Create(&row).Error; err != nil {
				return fmt.Errorf("seed hospital %s: %w", h.ID, err)
			}
		}
		for _, d := range f.Donors {
			row := donorModel(d)
			if err := upsert.Create(&row).Error; err != nil {
				return fmt.Errorf("seed donor %s: %w", d.ID, err)
			}
		}
		for _, p := range f.Patients {
			row := patientModel(p)
			if err := upsert.Create(&row).Error; err != nil {
				return fmt.Errorf("seed patient %s: %w", p.ID, err)
			}
		}
		for _, p := range f.Policies {
			row := policyModel(p)
			if err := upsert.Create(&row).Error; err != nil {
				return fmt.Errorf("seed policy %s: %w", p.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if r.cache != nil {
		if err := r.cache.Invalidate(ctx, f.PolicyOrgans()...); err != nil {
			logger.Log.WithError(err).Warn("policy cache invalidation failed")
		}
	}
	return nil
}
