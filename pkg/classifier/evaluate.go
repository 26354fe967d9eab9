package classifier

import (
	"math"

	"github.com/organlink/platform/pkg/features"
)

// Evaluate scores the model on labelled examples at a 0.5 cut-off.
func Evaluate(m *Model, examples []Example) (Metrics, error) {
	var tp, fp, tn, fn int
	var loss float64
	for _, ex := range examples {
		p, err := m.Predict(features.Vector{Names: m.FeatureNames, Values: ex.Features})
		if err != nil {
			return Metrics{}, err
		}
		y := 0.0
		if ex.Success {
			y = 1
		}
		loss += -y*math.Log(p+1e-9) - (1-y)*math.Log(1-p+1e-9)
		switch {
		case p >= 0.5 && ex.Success:
			tp++
		case p >= 0.5 && !ex.Success:
			fp++
		case p < 0.5 && ex.Success:
			fn++
		default:
			tn++
		}
	}

	n := len(examples)
	metrics := Metrics{TestSamples: n}
	if n == 0 {
		return metrics, nil
	}
	metrics.Accuracy = float64(tp+tn) / float64(n)
	metrics.LogLoss = loss / float64(n)
	if tp+fp > 0 {
		metrics.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		metrics.Recall = float64(tp) / float64(tp+fn)
	}
	if metrics.Precision+metrics.Recall > 0 {
		metrics.F1 = 2 * metrics.Precision * metrics.Recall / (metrics.Precision + metrics.Recall)
	}
	return metrics, nil
}
