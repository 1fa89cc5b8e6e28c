package gridtune

import (
	"fmt"
	"io"
	"math"
	"math/rand"
)

// pso runs particle swarm optimization over the parameter lattice. Each
// particle carries a continuous position and velocity per parameter
// dimension; measured positions are snapped to the nearest valid
// configuration. Particles take turns launching, sharing a global best and
// each remembering a local best.
type pso struct {
	configurations []Configuration
	coords         [][]int
	parameters     []Parameter
	rng            *rand.Rand

	budget          int
	influenceGlobal float64
	influenceLocal  float64
	influenceRandom float64

	positions  [][]float64
	velocities [][]float64
	localBest  []int
	localTime  []float64
	globalBest int
	globalTime float64

	particle int
	current  int

	logSteps []psoStep
}

type psoStep struct {
	particle  int
	index     int
	elapsedMs float64
}

func newPSO(configurations []Configuration, parameters []Parameter, fraction float64,
	swarmSize int, influenceGlobal, influenceLocal, influenceRandom float64,
	rng *rand.Rand) (*pso, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, NewConfigurationError("PSO",
			fmt.Sprintf("fraction %g outside (0,1]", fraction))
	}
	if swarmSize < 1 {
		return nil, NewConfigurationError("PSO",
			fmt.Sprintf("swarm size %d must be at least 1", swarmSize))
	}
	s := &pso{
		configurations:  configurations,
		coords:          coordinates(configurations, parameters),
		parameters:      parameters,
		rng:             rng,
		budget:          searchBudget(fraction, len(configurations)),
		influenceGlobal: influenceGlobal,
		influenceLocal:  influenceLocal,
		influenceRandom: influenceRandom,
		positions:       make([][]float64, swarmSize),
		velocities:      make([][]float64, swarmSize),
		localBest:       make([]int, swarmSize),
		localTime:       make([]float64, swarmSize),
		globalTime:      math.Inf(1),
	}
	if len(configurations) == 0 {
		return s, nil
	}
	for p := 0; p < swarmSize; p++ {
		start := rng.Intn(len(configurations))
		s.positions[p] = asFloats(s.coords[start])
		s.velocities[p] = make([]float64, len(parameters))
		s.localBest[p] = start
		s.localTime[p] = math.Inf(1)
	}
	s.current = s.snap(s.positions[0])
	return s, nil
}

func (s *pso) NumConfigurations() int {
	return s.budget
}

func (s *pso) GetConfiguration() Configuration {
	return s.configurations[s.current]
}

func (s *pso) PushExecutionTime(elapsedMs float64) {
	s.logSteps = append(s.logSteps, psoStep{
		particle:  s.particle,
		index:     s.current,
		elapsedMs: elapsedMs,
	})
	if elapsedMs < s.localTime[s.particle] {
		s.localTime[s.particle] = elapsedMs
		s.localBest[s.particle] = s.current
	}
	if elapsedMs < s.globalTime {
		s.globalTime = elapsedMs
		s.globalBest = s.current
	}
}

func (s *pso) CalculateNextIndex() {
	s.particle = (s.particle + 1) % len(s.positions)

	pos := s.positions[s.particle]
	vel := s.velocities[s.particle]
	global := s.coords[s.globalBest]
	local := s.coords[s.localBest[s.particle]]
	for dim := range pos {
		vel[dim] += s.influenceGlobal*(float64(global[dim])-pos[dim]) +
			s.influenceLocal*(float64(local[dim])-pos[dim]) +
			s.influenceRandom*(s.rng.Float64()*2-1)
		pos[dim] += math.Round(vel[dim])
		limit := float64(len(s.parameters[dim].Values) - 1)
		if pos[dim] < 0 {
			pos[dim] = 0
		}
		if pos[dim] > limit {
			pos[dim] = limit
		}
	}
	s.current = s.snap(pos)
}

// snap finds the valid configuration closest to the continuous position,
// by L1 distance over the lattice coordinates.
func (s *pso) snap(pos []float64) int {
	best, bestDist := 0, math.Inf(1)
	for i, coord := range s.coords {
		dist := 0.0
		for dim := range coord {
			dist += math.Abs(float64(coord[dim]) - pos[dim])
		}
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}

func asFloats(coord []int) []float64 {
	out := make([]float64, len(coord))
	for i, v := range coord {
		out[i] = float64(v)
	}
	return out
}

func (s *pso) PrintLog(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "step;particle;configuration;time_ms\n"); err != nil {
		return err
	}
	for step, entry := range s.logSteps {
		if _, err := fmt.Fprintf(w, "%d;%d;%d;%.3f\n", step, entry.particle,
			entry.index, entry.elapsedMs); err != nil {
			return err
		}
	}
	return nil
}
