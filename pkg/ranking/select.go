// Package ranking orders scored donor candidates for a patient.
package ranking

import (
	"math"
	"sort"

	"github.com/organlink/platform/pkg/common/models"
	"github.com/organlink/platform/pkg/features"
	"github.com/organlink/platform/pkg/policy"
)

const MaxResults = 10

type Candidate struct {
	Donor       models.Donor           `json:"donor"`
	Probability float64                `json:"probability"`
	Features    features.Vector        `json:"features"`
	Applied     []policy.AppliedClause `json:"applied_policies,omitempty"`
}

// Select keeps candidates at or above threshold, best first, ties broken
// by donor ID, and returns at most limit of them. limit <= 0 or above
// MaxResults means MaxResults. The result is never nil.
func Select(cands []Candidate, threshold float64, limit int) []Candidate {
	if limit <= 0 || limit > MaxResults {
		limit = MaxResults
	}
	kept := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if math.IsNaN(c.Probability) || c.Probability < threshold {
			continue
		}
		kept = append(kept, c)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Probability != kept[j].Probability {
			return kept[i].Probability > kept[j].Probability
		}
		return kept[i].Donor.ID < kept[j].Donor.ID
	})
	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}
