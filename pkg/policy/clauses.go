package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	AgePriorityKey   = "age_priority"
	LocationBonusKey = "location_bonus"

	AgePriorityBonus   = 10.0
	LocationBonusValue = 5.0
)

var ErrMalformedDocument = errors.New("malformed policy document")

// Subject is the part of a patient that clauses look at.
type Subject struct {
	Age  int
	City string
}

type Clause interface {
	Name() string
	Bonus(subject Subject) float64
}

// AgePriority favours patients younger than Threshold.
type AgePriority struct {
	Threshold int
}

func (AgePriority) Name() string { return AgePriorityKey }

func (c AgePriority) Bonus(subject Subject) float64 {
	if subject.Age < c.Threshold {
		return AgePriorityBonus
	}
	return 0
}

// LocationBonus favours patients living in City (case-insensitive).
type LocationBonus struct {
	City string
}

func (LocationBonus) Name() string { return LocationBonusKey }

func (c LocationBonus) Bonus(subject Subject) float64 {
	city := strings.TrimSpace(c.City)
	if city != "" && strings.EqualFold(city, strings.TrimSpace(subject.City)) {
		return LocationBonusValue
	}
	return 0
}

// ParseDocument decodes a rule document into typed clauses. Unknown keys
// are ignored. A document that is not a JSON object, or a known clause with
// a value of the wrong shape, fails the whole document.
func ParseDocument(raw string) ([]Clause, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document is null", ErrMalformedDocument)
	}

	var clauses []Clause
	if value, ok := doc[AgePriorityKey]; ok {
		threshold, err := parseThreshold(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedDocument, AgePriorityKey, err)
		}
		clauses = append(clauses, AgePriority{Threshold: threshold})
	}
	if value, ok := doc[LocationBonusKey]; ok {
		var city string
		if err := json.Unmarshal(value, &city); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedDocument, LocationBonusKey, err)
		}
		clauses = append(clauses, LocationBonus{City: city})
	}
	return clauses, nil
}

// parseThreshold accepts a JSON integer or a string holding one. Values
// with a fractional part are rejected; 18.0 reads as 18.
func parseThreshold(value json.RawMessage) (int, error) {
	var number json.Number
	decoder := json.NewDecoder(strings.NewReader(string(value)))
	decoder.UseNumber()
	var generic interface{}
	if err := decoder.Decode(&generic); err != nil {
		return 0, err
	}
	switch v := generic.(type) {
	case json.Number:
		number = v
	case string:
		number = json.Number(strings.TrimSpace(v))
	default:
		return 0, fmt.Errorf("unsupported type %T", generic)
	}
	if n, err := strconv.Atoi(number.String()); err == nil {
		return n, nil
	}
	f, err := number.Float64()
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("threshold %s is not a whole number", number)
	}
	if math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("threshold %s out of range", number)
	}
	return int(f), nil
}
