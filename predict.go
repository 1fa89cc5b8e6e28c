package gridtune

import (
	"math"
	"sort"
)

// Model selects which machine learning model extrapolates untested
// configurations from the measured samples.
type Model int

const (
	LinearRegression Model = iota
	NeuralNetwork
)

// Hyperparameters of the model training runs.
const (
	modelIterations   = 800
	linRegLearnRate   = 0.05
	linRegLambda      = 0.2
	networkLearnRate  = 0.1
	networkLambda     = 0.005
	networkHiddenSize = 20
)

// ModelPrediction trains a model on the measured results, ranks every
// configuration in each kernel's valid set by predicted runtime, and
// actually executes the top predicted configurations on the device. Their
// true results are appended to the log, so the best prediction can be
// confirmed or refuted by measurement.
func (t *Tuner) ModelPrediction(modelType Model, validationFraction float64, testTopX int) error {
	if validationFraction <= 0 || validationFraction >= 1 {
		return NewConfigurationError("ModelPrediction",
			"validation fraction must be inside (0,1)")
	}

	// Failed runs carry an infinite time and cannot train a regression.
	samples := make([]TunerResult, 0, len(t.results))
	for _, result := range t.results {
		if !math.IsInf(result.Time, 1) && len(result.Configuration) > 0 {
			samples = append(samples, result)
		}
	}
	if len(samples) < 2 {
		return NewConfigurationError("ModelPrediction",
			"not enough measured results to train a model")
	}

	for _, kernel := range t.kernels {
		if len(kernel.parameters) == 0 {
			continue
		}

		validationSamples := int(float64(len(samples)) * validationFraction)
		trainingSamples := len(samples) - validationSamples
		features := len(samples[0].Configuration)

		xTrain := make([][]float64, trainingSamples)
		yTrain := make([]float64, trainingSamples)
		for s := 0; s < trainingSamples; s++ {
			xTrain[s] = featureVector(samples[s].Configuration)
			yTrain[s] = samples[s].Time
		}
		xValidation := make([][]float64, validationSamples)
		yValidation := make([]float64, validationSamples)
		for s := 0; s < validationSamples; s++ {
			xValidation[s] = featureVector(samples[s+trainingSamples].Configuration)
			yValidation[s] = samples[s+trainingSamples].Time
		}

		var model MLModel
		switch modelType {
		case LinearRegression:
			t.printHeader("Training a linear regression model")
			model = newLinearRegression(modelIterations, linRegLearnRate, linRegLambda, t.log)
		case NeuralNetwork:
			t.printHeader("Training a neural network model")
			layers := []int{features, networkHiddenSize, 1}
			model = newNeuralNetwork(modelIterations, networkLearnRate, networkLambda,
				layers, t.log, t.seed)
		default:
			return NewConfigurationError("ModelPrediction", "unknown machine learning model")
		}
		model.Train(xTrain, yTrain)
		model.Validate(xValidation, yValidation)

		t.printHeader("Predicting the remaining configurations using the model")
		if err := kernel.setConfigurations(); err != nil {
			return err
		}
		type prediction struct {
			index int
			time  float64
		}
		predictions := make([]prediction, len(kernel.configurations))
		for p, config := range kernel.configurations {
			predictions[p] = prediction{p, model.Predict(featureVector(config))}
		}
		sort.SliceStable(predictions, func(i, j int) bool {
			return predictions[i].time < predictions[j].time
		})

		t.printHeader("Testing the best-found configurations")
		for i := 0; i < testTopX && i < len(predictions); i++ {
			t.log.Info("model predicted", "time_ms", predictions[i].time)
			config := kernel.configurations[predictions[i].index]

			if err := kernel.computeRanges(config); err != nil {
				return err
			}
			if err := kernel.setNumCurrentIterations(config); err != nil {
				return err
			}
			result := t.runKernel(kernel.configuredSource(config), kernel,
				predictions[i].index, testTopX)
			result.Valid = !math.IsInf(result.Time, 1) && t.verifyOutput()
			result.Configuration = config
			if math.IsInf(result.Time, 1) {
				t.printResult(t.out, result, messageFailure)
			} else if !result.Valid {
				t.printResult(t.out, result, messageWarning)
			}
			t.results = append(t.results, result)
		}
	}
	return nil
}

// featureVector flattens a configuration into the model's input: the
// parameter values in declaration order.
func featureVector(config Configuration) []float64 {
	features := make([]float64, len(config))
	for i, setting := range config {
		features[i] = float64(setting.Value)
	}
	return features
}
