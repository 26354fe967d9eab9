package matching

import "github.com/organlink/platform/pkg/common/models"

// FilterCandidates keeps AVAILABLE donors offering the organ. Donors from
// every hospital are eligible.
func FilterCandidates(pool []models.Donor, organ string) []models.Donor {
	out := make([]models.Donor, 0, len(pool))
	for _, donor := range pool {
		if donor.Availability != models.AvailabilityAvailable {
			continue
		}
		if !donor.CanDonate(organ) {
			continue
		}
		out = append(out, donor)
	}
	return out
}
