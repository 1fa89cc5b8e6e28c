package gridtune

import (
	"fmt"
	"io"
	"math/rand"
)

// randomSearch samples a fraction of the valid set uniformly without
// replacement. The visit order is a prefix of a seeded shuffle, so a fixed
// seed reproduces the exact sequence.
type randomSearch struct {
	configurations []Configuration
	order          []int
	executionTimes []float64
	budget         int
	step           int
}

func newRandomSearch(configurations []Configuration, fraction float64, rng *rand.Rand) (*randomSearch, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, NewConfigurationError("RandomSearch",
			fmt.Sprintf("fraction %g outside (0,1]", fraction))
	}
	order := rng.Perm(len(configurations))
	return &randomSearch{
		configurations: configurations,
		order:          order,
		budget:         searchBudget(fraction, len(configurations)),
	}, nil
}

func (s *randomSearch) NumConfigurations() int {
	return s.budget
}

func (s *randomSearch) GetConfiguration() Configuration {
	return s.configurations[s.order[s.step]]
}

func (s *randomSearch) PushExecutionTime(elapsedMs float64) {
	s.executionTimes = append(s.executionTimes, elapsedMs)
}

func (s *randomSearch) CalculateNextIndex() {
	s.step++
}

func (s *randomSearch) PrintLog(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "step;configuration;time_ms\n"); err != nil {
		return err
	}
	for step, elapsed := range s.executionTimes {
		if _, err := fmt.Fprintf(w, "%d;%d;%.3f\n", step, s.order[step], elapsed); err != nil {
			return err
		}
	}
	return nil
}
