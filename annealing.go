package gridtune

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"strings"
)

// annealing walks the parameter lattice by simulated annealing. Each step
// measures the current configuration, decides whether to accept it against
// the best time seen so far, and moves to an unvisited lattice neighbour of
// the accepted anchor. The temperature decays linearly from the configured
// maximum to zero over the launch budget. Visited configurations are never
// revisited.
type annealing struct {
	configurations []Configuration
	coords         [][]int
	parameters     []Parameter
	rng            *rand.Rand

	budget  int
	maxTemp float64

	current  int
	best     int
	bestTime float64
	visited  map[int]bool
	step     int

	logSteps []annealingStep
}

type annealingStep struct {
	index       int
	elapsedMs   float64
	temperature float64
	accepted    bool
}

func newAnnealing(configurations []Configuration, parameters []Parameter,
	fraction, maxTemperature float64, rng *rand.Rand) (*annealing, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, NewConfigurationError("Annealing",
			fmt.Sprintf("fraction %g outside (0,1]", fraction))
	}
	if maxTemperature <= 0 {
		return nil, NewConfigurationError("Annealing",
			fmt.Sprintf("maximum temperature %g must be positive", maxTemperature))
	}
	s := &annealing{
		configurations: configurations,
		coords:         coordinates(configurations, parameters),
		parameters:     parameters,
		rng:            rng,
		budget:         searchBudget(fraction, len(configurations)),
		maxTemp:        maxTemperature,
		bestTime:       math.Inf(1),
		visited:        map[int]bool{},
	}
	if len(configurations) > 0 {
		s.current = rng.Intn(len(configurations))
		s.best = s.current
		s.visited[s.current] = true
	}
	return s, nil
}

func (s *annealing) NumConfigurations() int {
	return s.budget
}

func (s *annealing) GetConfiguration() Configuration {
	return s.configurations[s.current]
}

func (s *annealing) PushExecutionTime(elapsedMs float64) {
	s.logSteps = append(s.logSteps, annealingStep{
		index:       s.current,
		elapsedMs:   elapsedMs,
		temperature: s.temperature(),
	})
	if elapsedMs < s.bestTime {
		s.bestTime = elapsedMs
		s.best = s.current
	}
}

// temperature decays linearly over the budget.
func (s *annealing) temperature() float64 {
	if s.budget <= 1 {
		return 0
	}
	return s.maxTemp * (1 - float64(s.step)/float64(s.budget-1))
}

func (s *annealing) CalculateNextIndex() {
	anchor := s.best
	if len(s.logSteps) > 0 {
		last := &s.logSteps[len(s.logSteps)-1]
		delta := last.elapsedMs - s.bestTime
		temp := last.temperature
		accept := delta <= 0
		if !accept && temp > 0 {
			accept = s.rng.Float64() < math.Exp(-delta/temp)
		}
		last.accepted = accept
		if accept {
			anchor = last.index
		}
	}
	s.step++

	next, ok := s.unvisitedNeighbour(anchor)
	if !ok {
		next, ok = s.unvisitedAny()
	}
	if !ok {
		return
	}
	s.current = next
	s.visited[next] = true
}

// unvisitedNeighbour draws among the valid configurations that differ from
// the anchor in exactly one parameter coordinate by one position.
func (s *annealing) unvisitedNeighbour(anchor int) (int, bool) {
	base := s.coords[anchor]
	var candidates []int
	for i, coord := range s.coords {
		if s.visited[i] {
			continue
		}
		diffs, lastDelta := 0, 0
		for dim := range coord {
			if d := coord[dim] - base[dim]; d != 0 {
				diffs++
				lastDelta = d
			}
		}
		if diffs == 1 && (lastDelta == 1 || lastDelta == -1) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}
	return candidates[s.rng.Intn(len(candidates))], true
}

func (s *annealing) unvisitedAny() (int, bool) {
	var candidates []int
	for i := range s.configurations {
		if !s.visited[i] {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}
	return candidates[s.rng.Intn(len(candidates))], true
}

func (s *annealing) PrintLog(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "step;configuration;time_ms;temperature;accepted;settings\n"); err != nil {
		return err
	}
	for step, entry := range s.logSteps {
		settings := make([]string, len(s.configurations[entry.index]))
		for i, setting := range s.configurations[entry.index] {
			settings[i] = setting.String()
		}
		if _, err := fmt.Fprintf(w, "%d;%d;%.3f;%.3f;%t;%s\n", step, entry.index,
			entry.elapsedMs, entry.temperature, entry.accepted,
			strings.Join(settings, ",")); err != nil {
			return err
		}
	}
	return nil
}
