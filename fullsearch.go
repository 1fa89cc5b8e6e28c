package gridtune

import (
	"fmt"
	"io"
)

// fullSearch visits every valid configuration exactly once, in the
// Cartesian-product order of the enumeration. This is the default strategy.
type fullSearch struct {
	configurations []Configuration
	executionTimes []float64
	index          int
}

func newFullSearch(configurations []Configuration) *fullSearch {
	return &fullSearch{configurations: configurations}
}

func (s *fullSearch) NumConfigurations() int {
	return len(s.configurations)
}

func (s *fullSearch) GetConfiguration() Configuration {
	return s.configurations[s.index]
}

func (s *fullSearch) PushExecutionTime(elapsedMs float64) {
	s.executionTimes = append(s.executionTimes, elapsedMs)
}

func (s *fullSearch) CalculateNextIndex() {
	s.index++
}

func (s *fullSearch) PrintLog(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "step;configuration;time_ms\n"); err != nil {
		return err
	}
	for step, elapsed := range s.executionTimes {
		if _, err := fmt.Fprintf(w, "%d;%d;%.3f\n", step, step, elapsed); err != nil {
			return err
		}
	}
	return nil
}
