package gridtune

import (
	"io"
	"math"
	"math/rand"
)

// Searcher chooses which valid configuration to try next. The engine calls
// GetConfiguration before each launch, feeds the measured time back through
// PushExecutionTime, and steps the strategy with CalculateNextIndex. A
// strategy visits at most NumConfigurations configurations, all members of
// the enumerated valid set.
type Searcher interface {
	NumConfigurations() int
	GetConfiguration() Configuration
	PushExecutionTime(elapsedMs float64)
	CalculateNextIndex()
	PrintLog(w io.Writer) error
}

// newSearcher instantiates the kernel's selected strategy over its valid
// configuration set. The rng seed is fixed per session, so repeated calls
// produce identical visit sequences.
func newSearcher(k *kernelSpec, seed int64) (Searcher, error) {
	rng := rand.New(rand.NewSource(seed))
	switch k.searchMethod {
	case SearchFull:
		return newFullSearch(k.configurations), nil
	case SearchRandom:
		return newRandomSearch(k.configurations, k.searchArgs[0], rng)
	case SearchAnnealing:
		return newAnnealing(k.configurations, k.parameters, k.searchArgs[0], k.searchArgs[1], rng)
	case SearchPSO:
		return newPSO(k.configurations, k.parameters, k.searchArgs[0], int(k.searchArgs[1]),
			k.searchArgs[2], k.searchArgs[3], k.searchArgs[4], rng)
	}
	return nil, NewConfigurationError("Searcher", "unknown search method")
}

// searchBudget converts a sampling fraction into a number of launches.
func searchBudget(fraction float64, numConfigurations int) int {
	budget := int(math.Ceil(fraction * float64(numConfigurations)))
	if budget > numConfigurations {
		budget = numConfigurations
	}
	if budget < 1 && numConfigurations > 0 {
		budget = 1
	}
	return budget
}

// coordinates maps each configuration to its position vector: per
// parameter, the index of the assigned value within that parameter's value
// list. Strategies that walk the parameter lattice (annealing, PSO) operate
// on these vectors instead of raw values.
func coordinates(configurations []Configuration, parameters []Parameter) [][]int {
	coords := make([][]int, len(configurations))
	for i, config := range configurations {
		coord := make([]int, len(parameters))
		for dim, parameter := range parameters {
			value, _ := config.Lookup(parameter.Name)
			for pos, candidate := range parameter.Values {
				if candidate == value {
					coord[dim] = pos
					break
				}
			}
		}
		coords[i] = coord
	}
	return coords
}
