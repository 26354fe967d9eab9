package policy

import (
	"errors"
	"testing"

	"github.com/organlink/platform/pkg/common/logger"
	"github.com/organlink/platform/pkg/common/models"
)

func implemented(id, rules string) models.Policy {
	return models.Policy{ID: id, OrganType: "kidney", Status: models.PolicyImplemented, Rules: rules}
}

func TestAgePriorityScenario(t *testing.T) {
	result := Evaluate([]models.Policy{implemented("p1", `{"age_priority": 18}`)}, "kidney", Subject{Age: 10})
	if result.Adjustment != 10 {
		t.Fatalf("expected +10, got %v", result.Adjustment)
	}
	if len(result.Applied) != 1 || result.Applied[0].Clause != AgePriorityKey {
		t.Fatalf("unexpected applied clauses %+v", result.Applied)
	}
}

func TestAgePriorityNotAppliedAtThreshold(t *testing.T) {
	result := Evaluate([]models.Policy{implemented("p1", `{"age_priority": 18}`)}, "kidney", Subject{Age: 18})
	if result.Adjustment != 0 {
		t.Fatalf("expected no bonus at threshold, got %v", result.Adjustment)
	}
}

func TestLocationBonusCaseInsensitive(t *testing.T) {
	result := Evaluate([]models.Policy{implemented("p1", `{"location_bonus": "chennai"}`)}, "kidney", Subject{Age: 40, City: "Chennai"})
	if result.Adjustment != 5 {
		t.Fatalf("expected +5, got %v", result.Adjustment)
	}
}

func TestMalformedDocumentSkipped(t *testing.T) {
	logger.Silence()
	policies := []models.Policy{
		implemented("broken", `{"age_priority": `),
		implemented("wrong-type", `{"location_bonus": 12}`),
		implemented("array", `[1,2,3]`),
		implemented("good", `{"age_priority": "30", "location_bonus": "Pune"}`),
	}
	result := Evaluate(policies, "kidney", Subject{Age: 20, City: "pune"})
	if result.Adjustment != 15 {
		t.Fatalf("expected +15 from the valid policy, got %v", result.Adjustment)
	}
	if len(result.Skipped) != 3 {
		t.Fatalf("expected 3 skipped policies, got %v", result.Skipped)
	}
}

func TestInactiveAndOtherOrganPoliciesIgnored(t *testing.T) {
	draft := implemented("draft", `{"age_priority": 99}`)
	draft.Status = models.PolicyApproved
	liver := implemented("liver", `{"age_priority": 99}`)
	liver.OrganType = "liver"

	result := Evaluate([]models.Policy{draft, liver}, "kidney", Subject{Age: 10})
	if result.Adjustment != 0 {
		t.Fatalf("expected no adjustment, got %v", result.Adjustment)
	}
}

func TestAdjustmentMonotoneAndOrderIndependent(t *testing.T) {
	subject := Subject{Age: 12, City: "Delhi"}
	all := []models.Policy{
		implemented("a", `{"age_priority": 16}`),
		implemented("b", `{"unknown_clause": true}`),
		implemented("c", `{"location_bonus": "delhi"}`),
		implemented("d", `{"age_priority": 10}`),
	}

	previous := 0.0
	for i := 1; i <= len(all); i++ {
		got := Evaluate(all[:i], "kidney", subject).Adjustment
		if got < previous || got < 0 {
			t.Fatalf("adjustment decreased from %v to %v after %d policies", previous, got, i)
		}
		previous = got
	}

	reversed := []models.Policy{all[3], all[2], all[1], all[0]}
	if Evaluate(reversed, "kidney", subject).Adjustment != previous {
		t.Fatal("expected evaluation to be order independent")
	}
}

func TestParseDocumentErrors(t *testing.T) {
	if _, err := ParseDocument(`null`); !errors.Is(err, ErrMalformedDocument) {
		t.Fatalf("expected malformed error for null, got %v", err)
	}
	if _, err := ParseDocument(`{"age_priority": "abc"}`); !errors.Is(err, ErrMalformedDocument) {
		t.Fatalf("expected malformed error for non-numeric threshold, got %v", err)
	}
	clauses, err := ParseDocument(`{"something_else": 1}`)
	if err != nil || len(clauses) != 0 {
		t.Fatalf("expected unknown clauses ignored, got %v %v", clauses, err)
	}
}

func TestFractionalThresholdIsMalformed(t *testing.T) {
	for _, doc := range []string{`{"age_priority": 18.7}`, `{"age_priority": "18.7"}`} {
		if _, err := ParseDocument(doc); !errors.Is(err, ErrMalformedDocument) {
			t.Fatalf("expected malformed error for %s, got %v", doc, err)
		}
	}
	clauses, err := ParseDocument(`{"age_priority": 18.0}`)
	if err != nil || len(clauses) != 1 || clauses[0].(AgePriority).Threshold != 18 {
		t.Fatalf("expected 18.0 to read as 18, got %v %v", clauses, err)
	}

	logger.Silence()
	result := Evaluate([]models.Policy{implemented("fractional", `{"age_priority": 18.7}`)}, "kidney", Subject{Age: 18})
	if result.Adjustment != 0 || len(result.Skipped) != 1 {
		t.Fatalf("expected fractional policy skipped, got %+v", result)
	}
}
