package gridtune

import (
	"math"
	"testing"

	"github.com/gridtune/gridtune/internal/logger"
)

func linearSamples() (x [][]float64, y []float64) {
	// y = 2*x0 + 3*x1 + 5, an exactly learnable surface.
	for a := 1; a <= 6; a++ {
		for b := 1; b <= 6; b++ {
			x = append(x, []float64{float64(a), float64(b)})
			y = append(y, 2*float64(a)+3*float64(b)+5)
		}
	}
	return x, y
}

func TestLinearRegressionFitsLinearSurface(t *testing.T) {
	x, y := linearSamples()
	model := newLinearRegression(modelIterations, linRegLearnRate, linRegLambda,
		logger.Discard())
	model.Train(x, y)

	for i, row := range x {
		predicted := model.Predict(row)
		if math.Abs(predicted-y[i]) > 1.0 {
			t.Errorf("sample %d: predicted %v, want %v", i, predicted, y[i])
		}
	}
}

func TestLinearRegressionRanking(t *testing.T) {
	x, y := linearSamples()
	model := newLinearRegression(modelIterations, linRegLearnRate, linRegLambda,
		logger.Discard())
	model.Train(x, y)

	// The model must at least order a clearly cheap point below a clearly
	// expensive one.
	cheap := model.Predict([]float64{1, 1})
	expensive := model.Predict([]float64{6, 6})
	if cheap >= expensive {
		t.Errorf("ranking inverted: cheap %v >= expensive %v", cheap, expensive)
	}
}

func TestNeuralNetworkRanksSmoothSurface(t *testing.T) {
	x, y := linearSamples()
	layers := []int{2, networkHiddenSize, 1}
	model := newNeuralNetwork(2000, 0.01, networkLambda, layers, logger.Discard(), 1)
	model.Train(x, y)

	// The network only needs to rank, not to interpolate tightly.
	cheap := model.Predict([]float64{1, 1})
	expensive := model.Predict([]float64{6, 6})
	if cheap >= expensive {
		t.Errorf("ranking inverted: cheap %v >= expensive %v", cheap, expensive)
	}
}

func TestValidateReportsError(t *testing.T) {
	x, y := linearSamples()
	model := newLinearRegression(modelIterations, linRegLearnRate, linRegLambda,
		logger.Discard())
	model.Train(x, y)
	if err := model.Validate(x, y); err > 1.0 {
		t.Errorf("validation error %v too large on the training set", err)
	}
}

func TestNormalization(t *testing.T) {
	base := &modelBase{}
	base.fitNormalization([][]float64{{0, 10}, {2, 10}, {4, 10}})
	normalized := base.normalize([]float64{2, 10})
	if math.Abs(normalized[0]) > 1e-9 {
		t.Errorf("mean value did not normalize to 0: %v", normalized[0])
	}
	// A constant feature must not divide by zero.
	if math.IsNaN(normalized[1]) || math.IsInf(normalized[1], 0) {
		t.Errorf("constant feature normalized to %v", normalized[1])
	}
}

func TestModelPredictionValidation(t *testing.T) {
	tuner := newTestTuner(t)
	if err := tuner.ModelPrediction(LinearRegression, 0, 1); err == nil {
		t.Errorf("validation fraction 0 accepted")
	}
	if err := tuner.ModelPrediction(LinearRegression, 0.5, 1); err == nil {
		t.Errorf("prediction without results accepted")
	}
}
