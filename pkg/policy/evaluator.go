package policy

import (
	"github.com/organlink/platform/pkg/common/logger"
	"github.com/organlink/platform/pkg/common/models"
	"github.com/organlink/platform/pkg/observability/metrics"
)

type AppliedClause struct {
	PolicyID string  `json:"policy_id"`
	Clause   string  `json:"clause"`
	Bonus    float64 `json:"bonus"`
}

type Result struct {
	Adjustment float64         `json:"adjustment"`
	Applied    []AppliedClause `json:"applied,omitempty"`
	Skipped    []string        `json:"skipped,omitempty"`
}

// Evaluate sums clause bonuses over the active policies for the subject's
// organ. Policies that are not IMPLEMENTED or target another organ do not
// contribute; malformed documents are logged and skipped.
func Evaluate(policies []models.Policy, organ string, subject Subject) Result {
	var result Result
	for _, p := range policies {
		if p.Status != models.PolicyImplemented || p.OrganType != organ {
			continue
		}
		clauses, err := ParseDocument(p.Rules)
		if err != nil {
			logger.Log.WithError(err).WithFields(map[string]interface{}{
				"policy_id":  p.ID,
				"organ_type": p.OrganType,
			}).Warn("skipping unparseable policy document")
			metrics.PolicyDocumentSkipped()
			result.Skipped = append(result.Skipped, p.ID)
			continue
		}
		for _, clause := range clauses {
			bonus := clause.Bonus(subject)
			if bonus <= 0 {
				continue
			}
			result.Adjustment += bonus
			result.Applied = append(result.Applied, AppliedClause{
				PolicyID: p.ID,
				Clause:   clause.Name(),
				Bonus:    bonus,
			})
		}
	}
	return result
}
