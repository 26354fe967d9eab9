package records

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/organlink/platform/pkg/common/models"
	"gopkg.in/yaml.v3"
)

var ErrInvalidFixtures = errors.New("invalid fixtures")

// Fixtures is the seed file layout.
type Fixtures struct {
	Hospitals []models.Hospital `yaml:"hospitals"`
	Donors    []models.Donor    `yaml:"donors"`
	Patients  []models.Patient  `yaml:"patients"`
	Policies  []models.Policy   `yaml:"policies"`
}

func LoadFixtures(path string) (Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixtures{}, fmt.Errorf("read fixtures %s: %w", path, err)
	}
	return ParseFixtures(data)
}

// ParseFixtures decodes, defaults and validates a fixture document.
func ParseFixtures(data []byte) (Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fixtures{}, fmt.Errorf("%w: %v", ErrInvalidFixtures, err)
	}
	f.applyDefaults()
	if err := f.Validate(); err != nil {
		return Fixtures{}, err
	}
	return f, nil
}

func (f *Fixtures) applyDefaults() {
	for i := range f.Donors {
		if f.Donors[i].Availability == "" {
			f.Donors[i].Availability = models.AvailabilityAvailable
		}
	}
	for i := range f.Patients {
		if f.Patients[i].Status == "" {
			f.Patients[i].Status = models.PatientWaiting
		}
	}
	for i := range f.Policies {
		if f.Policies[i].Status == "" {
			f.Policies[i].Status = models.PolicyDraft
		}
	}
}

// Validate checks identifiers and hospital references. Policy rule
// documents are not parsed here; malformed ones are skipped at match time.
func (f Fixtures) Validate() error {
	var problems []error
	hospitals := make(map[string]struct{}, len(f.Hospitals))
	for i, h := range f.Hospitals {
		if h.ID == "" {
			problems = append(problems, fmt.Errorf("hospital %d: id required", i))
			continue
		}
		if _, dup := hospitals[h.ID]; dup {
			problems = append(problems, fmt.Errorf("hospital %s: duplicate id", h.ID))
		}
		hospitals[h.ID] = struct{}{}
	}
	knownHospital := func(id string) bool {
		_, ok := hospitals[id]
		return ok
	}

	seen := make(map[string]struct{})
	for i, d := range f.Donors {
		switch {
		case d.ID == "":
			problems = append(problems, fmt.Errorf("donor %d: id required", i))
		case !knownHospital(d.HospitalID):
			problems = append(problems, fmt.Errorf("donor %s: unknown hospital %q", d.ID, d.HospitalID))
		case len(d.Organs) == 0:
			problems = append(problems, fmt.Errorf("donor %s: at least one organ required", d.ID))
		}
		if _, dup := seen["donor:"+d.ID]; dup && d.ID != "" {
			problems = append(problems, fmt.Errorf("donor %s: duplicate id", d.ID))
		}
		seen["donor:"+d.ID] = struct{}{}
	}
	for i, p := range f.Patients {
		switch {
		case p.ID == "":
			problems = append(problems, fmt.Errorf("patient %d: id required", i))
		case !knownHospital(p.HospitalID):
			problems = append(problems, fmt.Errorf("patient %s: unknown hospital %q", p.ID, p.HospitalID))
		case p.OrganNeeded == "":
			problems = append(problems, fmt.Errorf("patient %s: organ_needed required", p.ID))
		case p.Urgency.Rank() == 0:
			problems = append(problems, fmt.Errorf("patient %s: unknown urgency %q", p.ID, p.Urgency))
		}
		if _, dup := seen["patient:"+p.ID]; dup && p.ID != "" {
			problems = append(problems, fmt.Errorf("patient %s: duplicate id", p.ID))
		}
		seen["patient:"+p.ID] = struct{}{}
	}
	for i, p := range f.Policies {
		if p.ID == "" || p.OrganType == "" {
			problems = append(problems, fmt.Errorf("policy %d: id and organ_type required", i))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidFixtures, errors.Join(problems...))
	}
	return nil
}

// PolicyOrgans lists the distinct organ types the policies target.
func (f Fixtures) PolicyOrgans() []string {
	set := make(map[string]struct{})
	for _, p := range f.Policies {
		set[p.OrganType] = struct{}{}
	}
	organs := make([]string, 0, len(set))
	for organ := range set {
		organs = append(organs, organ)
	}
	sort.Strings(organs)
	return organs
}
