package gridtune

import (
	"math"
	"math/rand"

	"github.com/gridtune/gridtune/internal/logger"
)

// neuralNetwork fits runtimes with a small feed-forward network: sigmoid
// hidden layers and a linear output unit, trained by backpropagation with
// L2 regularization.
type neuralNetwork struct {
	modelBase
	iterations int
	learnRate  float64
	lambda     float64
	layers     []int
	weights    [][][]float64
	biases     [][]float64
	rng        *rand.Rand
}

// newNeuralNetwork builds a network with the given layer sizes. The first
// entry must equal the feature count and the last must be 1.
func newNeuralNetwork(iterations int, learnRate, lambda float64, layers []int,
	log logger.Logger, seed int64) *neuralNetwork {
	return &neuralNetwork{
		modelBase:  modelBase{log: log},
		iterations: iterations,
		learnRate:  learnRate,
		lambda:     lambda,
		layers:     layers,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

func (m *neuralNetwork) initWeights() {
	m.weights = make([][][]float64, len(m.layers)-1)
	m.biases = make([][]float64, len(m.layers)-1)
	for l := 0; l < len(m.layers)-1; l++ {
		in, out := m.layers[l], m.layers[l+1]
		scale := math.Sqrt(2 / float64(in))
		m.weights[l] = make([][]float64, out)
		m.biases[l] = make([]float64, out)
		for j := 0; j < out; j++ {
			m.weights[l][j] = make([]float64, in)
			for i := 0; i < in; i++ {
				m.weights[l][j][i] = m.rng.NormFloat64() * scale
			}
		}
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// forward evaluates the network and returns every layer's activations.
// Hidden layers use the sigmoid; the single output unit is linear.
func (m *neuralNetwork) forward(x []float64) [][]float64 {
	activations := make([][]float64, len(m.layers))
	activations[0] = x
	for l := 0; l < len(m.layers)-1; l++ {
		out := make([]float64, m.layers[l+1])
		last := l == len(m.layers)-2
		for j := range out {
			sum := m.biases[l][j]
			for i, a := range activations[l] {
				sum += m.weights[l][j][i] * a
			}
			if last {
				out[j] = sum
			} else {
				out[j] = sigmoid(sum)
			}
		}
		activations[l+1] = out
	}
	return activations
}

// Train runs stochastic gradient descent with backpropagation.
func (m *neuralNetwork) Train(x [][]float64, y []float64) {
	if len(x) == 0 {
		return
	}
	m.fitNormalization(x)
	normalized := make([][]float64, len(x))
	for i, row := range x {
		normalized[i] = m.normalize(row)
	}
	m.initWeights()

	for iteration := 0; iteration < m.iterations; iteration++ {
		for s, row := range normalized {
			m.backpropagate(row, y[s], float64(len(x)))
		}
	}
}

func (m *neuralNetwork) backpropagate(x []float64, target, samples float64) {
	activations := m.forward(x)
	numWeightLayers := len(m.layers) - 1

	// Output delta for a linear unit under squared error.
	deltas := make([][]float64, numWeightLayers)
	output := activations[numWeightLayers][0]
	deltas[numWeightLayers-1] = []float64{output - target}

	for l := numWeightLayers - 2; l >= 0; l-- {
		deltas[l] = make([]float64, m.layers[l+1])
		for i := range deltas[l] {
			sum := 0.0
			for j, delta := range deltas[l+1] {
				sum += m.weights[l+1][j][i] * delta
			}
			a := activations[l+1][i]
			deltas[l][i] = sum * a * (1 - a)
		}
	}

	for l := 0; l < numWeightLayers; l++ {
		for j, delta := range deltas[l] {
			m.biases[l][j] -= m.learnRate * delta
			for i, a := range activations[l] {
				gradient := delta*a + m.lambda*m.weights[l][j][i]/samples
				m.weights[l][j][i] -= m.learnRate * gradient
			}
		}
	}
}

// Validate reports the mean absolute error over a held-out set.
func (m *neuralNetwork) Validate(x [][]float64, y []float64) float64 {
	predicted := make([]float64, len(x))
	for i, row := range x {
		predicted[i] = m.Predict(row)
	}
	err := meanAbsoluteError(predicted, y)
	m.log.Info("neural network validated", "samples", len(x), "mean_abs_error_ms", err)
	return err
}

// Predict evaluates the network on one raw feature vector.
func (m *neuralNetwork) Predict(x []float64) float64 {
	if m.weights == nil {
		return 0
	}
	activations := m.forward(m.normalize(x))
	return activations[len(activations)-1][0]
}
