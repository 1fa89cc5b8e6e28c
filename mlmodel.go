package gridtune

import (
	"math"

	"github.com/gridtune/gridtune/internal/logger"
)

// MLModel predicts a kernel's runtime from its parameter values. Models
// train on a prefix of the result log and report their error on the rest;
// the engine then ranks every configuration of the valid set, measured or
// not, by predicted time.
type MLModel interface {
	Train(x [][]float64, y []float64)
	Validate(x [][]float64, y []float64) float64
	Predict(x []float64) float64
}

// modelBase carries the feature normalization shared by the models. Each
// feature is shifted to zero mean and scaled to unit variance using the
// statistics of the training set.
type modelBase struct {
	means []float64
	stds  []float64
	log   logger.Logger
}

// fitNormalization computes per-feature statistics from the training set.
func (m *modelBase) fitNormalization(x [][]float64) {
	if len(x) == 0 {
		return
	}
	features := len(x[0])
	m.means = make([]float64, features)
	m.stds = make([]float64, features)
	for f := 0; f < features; f++ {
		sum := 0.0
		for _, row := range x {
			sum += row[f]
		}
		mean := sum / float64(len(x))
		variance := 0.0
		for _, row := range x {
			variance += (row[f] - mean) * (row[f] - mean)
		}
		std := math.Sqrt(variance / float64(len(x)))
		if std == 0 {
			std = 1
		}
		m.means[f] = mean
		m.stds[f] = std
	}
}

// normalize maps one raw feature vector into normalized space.
func (m *modelBase) normalize(x []float64) []float64 {
	if m.means == nil {
		return x
	}
	out := make([]float64, len(x))
	for f := range x {
		out[f] = (x[f] - m.means[f]) / m.stds[f]
	}
	return out
}

// meanAbsoluteError is the validation metric shared by the models.
func meanAbsoluteError(predicted, actual []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	sum := 0.0
	for i := range actual {
		sum += math.Abs(predicted[i] - actual[i])
	}
	return sum / float64(len(actual))
}
