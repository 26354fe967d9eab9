package training

import (
	"math"
	"math/rand"

	"github.com/organlink/platform/pkg/classifier"
	"github.com/organlink/platform/pkg/features"
)

var BloodTypes = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

var policyAdjustments = []float64{0, 5, 10, 15}

// SyntheticPair is one generated donor/patient outcome. Only some of its
// fields exist in the serving schema; the rest shape the label.
type SyntheticPair struct {
	PatientAge       int
	DonorAge         int
	PatientBMI       float64
	DonorBMI         float64
	PatientBlood     string
	DonorBlood       string
	DistanceKm       float64
	HLAScore         int
	Urgency          int
	WaitingDays      int
	PolicyAdjustment float64
	Success          bool
}

// BloodCompatible is the generator's ABO/Rh shortcut: O- gives to anyone,
// AB+ receives from anyone, otherwise types must match. Live matching
// does not use it.
func BloodCompatible(donor, patient string) bool {
	return donor == "O-" || patient == "AB+" || donor == patient
}

// SuccessProbability is the label heuristic, capped at 1.
func SuccessProbability(p SyntheticPair) float64 {
	prob := 0.5
	if BloodCompatible(p.DonorBlood, p.PatientBlood) {
		prob += 0.3
	}
	if math.Abs(float64(p.DonorAge-p.PatientAge)) < 10 {
		prob += 0.1
	}
	if p.DistanceKm < 100 {
		prob += 0.1
	}
	if p.HLAScore > 4 {
		prob += 0.1
	}
	return math.Min(prob, 1)
}

// Features projects the pair onto the serving schema.
func (p SyntheticPair) Features() []float64 {
	compatible := 0.0
	if BloodCompatible(p.DonorBlood, p.PatientBlood) {
		compatible = 1
	}
	return []float64{
		float64(p.PatientAge),
		float64(p.DonorAge),
		compatible,
		float64(p.Urgency),
		float64(p.WaitingDays),
		p.PolicyAdjustment,
	}
}

type Generator struct {
	rng *rand.Rand
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

func (g *Generator) between(lo, hi int) int {
	return lo + g.rng.Intn(hi-lo+1)
}

func (g *Generator) Pair() SyntheticPair {
	p := SyntheticPair{
		PatientAge:       g.between(1, 75),
		DonorAge:         g.between(18, 70),
		PatientBMI:       18 + g.rng.Float64()*17,
		DonorBMI:         18 + g.rng.Float64()*17,
		PatientBlood:     BloodTypes[g.rng.Intn(len(BloodTypes))],
		DonorBlood:       BloodTypes[g.rng.Intn(len(BloodTypes))],
		DistanceKm:       g.rng.Float64() * 500,
		HLAScore:         g.between(0, 6),
		Urgency:          g.between(1, 5),
		WaitingDays:      g.between(0, 1825),
		PolicyAdjustment: policyAdjustments[g.rng.Intn(len(policyAdjustments))],
	}
	p.Success = g.rng.Float64() < SuccessProbability(p)
	return p
}

// Dataset draws n pairs as a synthetic-sourced training set.
func (g *Generator) Dataset(n int) classifier.Dataset {
	ds := classifier.Dataset{FeatureNames: features.Schema(), Source: classifier.SourceSynthetic}
	for i := 0; i < n; i++ {
		p := g.Pair()
		ds.Examples = append(ds.Examples, classifier.Example{Features: p.Features(), Success: p.Success})
	}
	return ds
}

func GenerateSynthetic(n int, seed int64) classifier.Dataset {
	return NewGenerator(seed).Dataset(n)
}
