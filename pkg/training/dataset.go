package training

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/organlink/platform/pkg/classifier"
	"github.com/organlink/platform/pkg/features"
)

const LabelColumn = "success"

var ErrInvalidDataset = errors.New("invalid training dataset")

// LoadCSV reads a labelled dataset whose header is the feature schema
// followed by the success column.
func LoadCSV(path string) (classifier.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return classifier.Dataset{}, fmt.Errorf("open dataset %s: %w", path, err)
	}
	defer f.Close()
	return ReadCSV(f)
}

func ReadCSV(r io.Reader) (classifier.Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return classifier.Dataset{}, fmt.Errorf("%w: missing header", ErrInvalidDataset)
	}
	if err != nil {
		return classifier.Dataset{}, fmt.Errorf("%w: %v", ErrInvalidDataset, err)
	}
	expected := append(features.Schema(), LabelColumn)
	if len(header) != len(expected) {
		return classifier.Dataset{}, fmt.Errorf("%w: header has %d columns, want %v", classifier.ErrSchemaMismatch, len(header), expected)
	}
	for i, name := range header {
		if strings.TrimSpace(name) != expected[i] {
			return classifier.Dataset{}, fmt.Errorf("%w: column %d is %q, want %q", classifier.ErrSchemaMismatch, i, name, expected[i])
		}
	}

	ds := classifier.Dataset{FeatureNames: features.Schema(), Source: classifier.SourceCSV}
	width := len(expected) - 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return classifier.Dataset{}, fmt.Errorf("%w: %v", ErrInvalidDataset, err)
		}
		line, _ := reader.FieldPos(0)
		row := make([]float64, width)
		for i := 0; i < width; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
			if err != nil {
				return classifier.Dataset{}, fmt.Errorf("%w: line %d column %s: %v", ErrInvalidDataset, line, expected[i], err)
			}
			row[i] = v
		}
		success, err := ParseLabel(record[width])
		if err != nil {
			return classifier.Dataset{}, fmt.Errorf("%w: line %d: %v", ErrInvalidDataset, line, err)
		}
		ds.Examples = append(ds.Examples, classifier.Example{Features: row, Success: success})
	}
	return ds, nil
}

// ParseLabel accepts 1/0, true/false, yes/no and success/failure.
func ParseLabel(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "success", "1.0":
		return true, nil
	case "0", "false", "no", "failure", "0.0":
		return false, nil
	}
	return false, fmt.Errorf("unrecognised outcome label %q", raw)
}
