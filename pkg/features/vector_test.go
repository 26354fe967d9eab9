package features

import (
	"testing"
	"time"

	"github.com/organlink/platform/pkg/common/models"
)

var fixedNow = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func TestAssembleOrderAndValues(t *testing.T) {
	patient := models.Patient{
		BloodType:    "A+",
		Urgency:      models.UrgencyCritical,
		DateOfBirth:  time.Date(2014, time.June, 16, 0, 0, 0, 0, time.UTC),
		WaitingSince: fixedNow.Add(-30 * 24 * time.Hour),
	}
	donor := models.Donor{
		BloodType:   "A+",
		DateOfBirth: time.Date(1984, time.January, 1, 0, 0, 0, 0, time.UTC),
	}

	vector := NewVectorizer(clock).Assemble(patient, donor, 15)
	if len(vector.Names) != len(Names) || len(vector.Values) != len(Names) {
		t.Fatalf("unexpected vector width %d/%d", len(vector.Names), len(vector.Values))
	}
	want := []float64{9, 40, 1, 4, 30, 15}
	for i, value := range want {
		if vector.Values[i] != value {
			t.Fatalf("feature %s: expected %v, got %v", vector.Names[i], value, vector.Values[i])
		}
	}
}

func TestBloodMatchIsStringEquality(t *testing.T) {
	cases := []struct {
		patient, donor string
		want           float64
	}{
		{"O-", "O-", 1},
		{"AB+", "O-", 0}, // immunologically compatible, still 0
		{"A+", "a+", 0},
		{"B+", "B-", 0},
	}
	for _, tc := range cases {
		if got := BloodMatch(tc.patient, tc.donor); got != tc.want {
			t.Fatalf("BloodMatch(%q, %q) = %v, want %v", tc.patient, tc.donor, got, tc.want)
		}
	}
}

func TestVectorizeFoldsPolicyAdjustment(t *testing.T) {
	patient := models.Patient{
		OrganNeeded: "kidney",
		City:        "Chennai",
		DateOfBirth: time.Date(2014, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
	policies := []models.Policy{
		{ID: "p1", OrganType: "kidney", Status: models.PolicyImplemented, Rules: `{"age_priority": 18}`},
		{ID: "p2", OrganType: "kidney", Status: models.PolicyImplemented, Rules: `{"location_bonus": "chennai"}`},
	}

	vector, result := NewVectorizer(clock).Vectorize(patient, models.Donor{}, policies)
	if result.Adjustment != 15 {
		t.Fatalf("expected adjustment 15, got %v", result.Adjustment)
	}
	if vector.Map()[PolicyAdjustment] != 15 {
		t.Fatalf("expected adjustment folded into vector, got %v", vector.Map())
	}
}

func TestAgeAndDaysNeverNegative(t *testing.T) {
	future := fixedNow.Add(48 * time.Hour)
	if AgeAt(future, fixedNow) != 0 {
		t.Fatal("expected age 0 for future birth date")
	}
	if DaysSince(future, fixedNow) != 0 {
		t.Fatal("expected 0 waiting days for future start")
	}
	if AgeAt(time.Time{}, fixedNow) != 0 {
		t.Fatal("expected age 0 for missing birth date")
	}
}

func TestSchemaIsACopy(t *testing.T) {
	schema := Schema()
	schema[0] = "mutated"
	if Names[0] != PatientAge {
		t.Fatal("Schema must not alias Names")
	}
}
