package linear

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrEmptyTrainingSet = errors.New("linear: empty training set")
	ErrFeatureWidth     = errors.New("linear: feature width mismatch")
)

type Options struct {
	Epochs       int
	LearningRate float64
	// L2 is the ridge penalty applied to coefficients, not the bias.
	L2 float64
}

// Weights are fitted on standardized inputs; Mean and Scale are kept so
// raw feature vectors can be scored directly.
type Weights struct {
	Bias         float64   `json:"bias"`
	Coefficients []float64 `json:"coefficients"`
	Mean         []float64 `json:"mean"`
	Scale        []float64 `json:"scale"`
}

type Metrics struct {
	Loss     float64
	Accuracy float64
}

func TrainLogistic(samples [][]float64, labels []float64, opts Options) (Weights, Metrics, error) {
	if opts.Epochs <= 0 {
		opts.Epochs = 500
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = 0.1
	}

	n := len(samples)
	if n == 0 {
		return Weights{}, Metrics{}, ErrEmptyTrainingSet
	}
	if len(labels) != n {
		return Weights{}, Metrics{}, fmt.Errorf("%w: %d samples, %d labels", ErrFeatureWidth, n, len(labels))
	}
	featureCount := len(samples[0])
	for i, sample := range samples {
		if len(sample) != featureCount {
			return Weights{}, Metrics{}, fmt.Errorf("%w: row %d has %d features, want %d", ErrFeatureWidth, i, len(sample), featureCount)
		}
	}

	mean, scale := standardization(samples)
	scaled := make([][]float64, n)
	for i, sample := range samples {
		scaled[i] = standardize(sample, mean, scale)
	}

	weights := make([]float64, featureCount)
	var bias float64
	grad := make([]float64, featureCount)

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		for j := range grad {
			grad[j] = 0
		}
		var biasGrad float64
		for i, sample := range scaled {
			residual := sigmoid(dot(weights, sample)+bias) - labels[i]
			for j := 0; j < featureCount; j++ {
				grad[j] += residual * sample[j]
			}
			biasGrad += residual
		}
		for j := 0; j < featureCount; j++ {
			weights[j] -= opts.LearningRate * (grad[j]/float64(n) + opts.L2*weights[j])
		}
		bias -= opts.LearningRate * biasGrad / float64(n)
	}

	w := Weights{Bias: bias, Coefficients: weights, Mean: mean, Scale: scale}
	loss, accuracy := evaluate(w, samples, labels)
	return w, Metrics{Loss: loss, Accuracy: accuracy}, nil
}

func Predict(weights Weights, sample []float64) (float64, error) {
	if len(sample) != len(weights.Coefficients) {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrFeatureWidth, len(sample), len(weights.Coefficients))
	}
	x := sample
	if len(weights.Mean) == len(sample) && len(weights.Scale) == len(sample) {
		x = standardize(sample, weights.Mean, weights.Scale)
	}
	return sigmoid(dot(weights.Coefficients, x) + weights.Bias), nil
}

func standardization(samples [][]float64) ([]float64, []float64) {
	featureCount := len(samples[0])
	mean := make([]float64, featureCount)
	scale := make([]float64, featureCount)
	n := float64(len(samples))
	for _, sample := range samples {
		for j, v := range sample {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= n
	}
	for _, sample := range samples {
		for j, v := range sample {
			d := v - mean[j]
			scale[j] += d * d
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / n)
		// constant columns pass through centred but unscaled
		if scale[j] == 0 {
			scale[j] = 1
		}
	}
	return mean, scale
}

func standardize(sample, mean, scale []float64) []float64 {
	out := make([]float64, len(sample))
	for j, v := range sample {
		out[j] = (v - mean[j]) / scale[j]
	}
	return out
}

func dot(weights []float64, sample []float64) float64 {
	var sum float64
	for i := 0; i < len(weights); i++ {
		sum += weights[i] * sample[i]
	}
	return sum
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func evaluate(w Weights, samples [][]float64, labels []float64) (float64, float64) {
	var loss float64
	var correct int
	for i, sample := range samples {
		prediction, _ := Predict(w, sample)
		loss += -labels[i]*math.Log(prediction+1e-9) - (1-labels[i])*math.Log(1-prediction+1e-9)
		if (prediction >= 0.5 && labels[i] == 1) || (prediction < 0.5 && labels[i] == 0) {
			correct++
		}
	}
	loss /= float64(len(samples))
	accuracy := float64(correct) / float64(len(samples))
	return loss, accuracy
}
