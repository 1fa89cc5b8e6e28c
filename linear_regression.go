package gridtune

import (
	"github.com/gridtune/gridtune/internal/logger"
)

// linearRegression fits runtimes with a linear model trained by batch
// gradient descent with L2 regularization.
type linearRegression struct {
	modelBase
	iterations int
	learnRate  float64
	lambda     float64
	theta      []float64
}

func newLinearRegression(iterations int, learnRate, lambda float64, log logger.Logger) *linearRegression {
	return &linearRegression{
		modelBase:  modelBase{log: log},
		iterations: iterations,
		learnRate:  learnRate,
		lambda:     lambda,
	}
}

// Train runs gradient descent over the full training set. The first theta
// coefficient is the bias and stays unregularized.
func (m *linearRegression) Train(x [][]float64, y []float64) {
	if len(x) == 0 {
		return
	}
	m.fitNormalization(x)
	normalized := make([][]float64, len(x))
	for i, row := range x {
		normalized[i] = m.normalize(row)
	}

	features := len(x[0])
	m.theta = make([]float64, features+1)
	samples := float64(len(x))

	for iteration := 0; iteration < m.iterations; iteration++ {
		gradients := make([]float64, features+1)
		for s, row := range normalized {
			residual := m.hypothesis(row) - y[s]
			gradients[0] += residual
			for f := 0; f < features; f++ {
				gradients[f+1] += residual * row[f]
			}
		}
		m.theta[0] -= m.learnRate * gradients[0] / samples
		for f := 0; f < features; f++ {
			m.theta[f+1] -= m.learnRate * (gradients[f+1] + m.lambda*m.theta[f+1]) / samples
		}
	}
}

// Validate reports the mean absolute error over a held-out set.
func (m *linearRegression) Validate(x [][]float64, y []float64) float64 {
	predicted := make([]float64, len(x))
	for i, row := range x {
		predicted[i] = m.Predict(row)
	}
	err := meanAbsoluteError(predicted, y)
	m.log.Info("linear regression validated", "samples", len(x), "mean_abs_error_ms", err)
	return err
}

// Predict evaluates the model on one raw feature vector.
func (m *linearRegression) Predict(x []float64) float64 {
	if m.theta == nil {
		return 0
	}
	return m.hypothesis(m.normalize(x))
}

func (m *linearRegression) hypothesis(normalized []float64) float64 {
	result := m.theta[0]
	for f, value := range normalized {
		result += m.theta[f+1] * value
	}
	return result
}
