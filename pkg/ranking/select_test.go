package ranking

import (
	"fmt"
	"math"
	"testing"

	"github.com/organlink/platform/pkg/common/models"
)

func cand(id string, p float64) Candidate {
	return Candidate{Donor: models.Donor{ID: id}, Probability: p}
}

func TestSelectThresholdAndOrder(t *testing.T) {
	got := Select([]Candidate{cand("donor0", 0.9), cand("donor1", 0.3), cand("donor2", 0.7)}, 0.6, 10)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Donor.ID != "donor0" || got[1].Donor.ID != "donor2" {
		t.Fatalf("unexpected order %s, %s", got[0].Donor.ID, got[1].Donor.ID)
	}
}

func TestSelectKeepsThresholdBoundary(t *testing.T) {
	got := Select([]Candidate{cand("a", 0.5)}, 0.5, 10)
	if len(got) != 1 {
		t.Fatal("probability equal to threshold should be kept")
	}
}

func TestSelectTruncatesAndBreaksTies(t *testing.T) {
	var cands []Candidate
	for i := 14; i >= 0; i-- {
		cands = append(cands, cand(fmt.Sprintf("d%02d", i), 0.8))
	}
	cands = append(cands, cand("nan", math.NaN()))

	got := Select(cands, 0.1, 0)
	if len(got) != MaxResults {
		t.Fatalf("expected %d results, got %d", MaxResults, len(got))
	}
	for i, c := range got {
		if want := fmt.Sprintf("d%02d", i); c.Donor.ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, c.Donor.ID)
		}
	}
	if got := Select(cands, 0.1, 50); len(got) != MaxResults {
		t.Fatalf("limit above maximum should clamp, got %d", len(got))
	}
	if got := Select(cands, 0.1, 3); len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
}

func TestSelectSortedDescending(t *testing.T) {
	got := Select([]Candidate{cand("a", 0.61), cand("b", 0.99), cand("c", 0.75), cand("d", 0.6)}, 0.6, 10)
	for i := 1; i < len(got); i++ {
		if got[i-1].Probability < got[i].Probability {
			t.Fatalf("results not sorted: %v then %v", got[i-1].Probability, got[i].Probability)
		}
	}
}

func TestSelectEmpty(t *testing.T) {
	if got := Select(nil, 0.5, 10); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
	if got := Select([]Candidate{cand("a", 0.1)}, 0.5, 10); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}
