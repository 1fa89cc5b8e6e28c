package gridtune

import (
	"bytes"
	"math/rand"
	"testing"
)

// spaceOf builds a valid set over two parameters with no constraints.
func spaceOf(t *testing.T) *kernelSpec {
	t.Helper()
	k := newTestSpec(t)
	if err := k.addParameter("A", []int64{1, 2, 3, 4}); err != nil {
		t.Fatalf("addParameter: %v", err)
	}
	if err := k.addParameter("B", []int64{10, 20, 30}); err != nil {
		t.Fatalf("addParameter: %v", err)
	}
	if err := k.setConfigurations(); err != nil {
		t.Fatalf("setConfigurations: %v", err)
	}
	return k
}

func configKey(config Configuration) string {
	out := ""
	for _, setting := range config {
		out += setting.String() + ";"
	}
	return out
}

func memberSet(configurations []Configuration) map[string]bool {
	members := make(map[string]bool, len(configurations))
	for _, config := range configurations {
		members[configKey(config)] = true
	}
	return members
}

// drive runs a searcher to exhaustion with synthetic times and returns the
// visited sequence.
func drive(s Searcher, times func(step int) float64) []string {
	var visited []string
	for p := 0; p < s.NumConfigurations(); p++ {
		visited = append(visited, configKey(s.GetConfiguration()))
		s.PushExecutionTime(times(p))
		s.CalculateNextIndex()
	}
	return visited
}

func TestFullSearchVisitsAllInOrder(t *testing.T) {
	k := spaceOf(t)
	s := newFullSearch(k.configurations)
	if s.NumConfigurations() != 12 {
		t.Fatalf("NumConfigurations = %d, want 12", s.NumConfigurations())
	}
	visited := drive(s, func(int) float64 { return 1 })
	for i, config := range k.configurations {
		if visited[i] != configKey(config) {
			t.Errorf("visit %d = %s, want %s", i, visited[i], configKey(config))
		}
	}
}

func TestRandomSearchBudgetAndMembership(t *testing.T) {
	k := spaceOf(t)
	s, err := newRandomSearch(k.configurations, 0.5, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("newRandomSearch: %v", err)
	}
	if s.NumConfigurations() != 6 {
		t.Fatalf("NumConfigurations = %d, want 6", s.NumConfigurations())
	}
	visited := drive(s, func(int) float64 { return 1 })
	members := memberSet(k.configurations)
	seen := map[string]bool{}
	for _, key := range visited {
		if !members[key] {
			t.Errorf("visited configuration %s not in the valid set", key)
		}
		if seen[key] {
			t.Errorf("configuration %s visited twice", key)
		}
		seen[key] = true
	}
}

func TestRandomSearchFractionValidation(t *testing.T) {
	k := spaceOf(t)
	if _, err := newRandomSearch(k.configurations, 0, rand.New(rand.NewSource(1))); err == nil {
		t.Errorf("fraction 0 accepted")
	}
	if _, err := newRandomSearch(k.configurations, 1.5, rand.New(rand.NewSource(1))); err == nil {
		t.Errorf("fraction 1.5 accepted")
	}
}

// With a fixed seed and fixed feedback, the stochastic strategies repeat
// their visit sequences exactly.
func TestSearcherDeterminism(t *testing.T) {
	k := spaceOf(t)
	times := func(step int) float64 { return float64((step*7)%5) + 1 }

	build := map[string]func() Searcher{
		"random": func() Searcher {
			s, err := newRandomSearch(k.configurations, 0.5, rand.New(rand.NewSource(3)))
			if err != nil {
				t.Fatalf("newRandomSearch: %v", err)
			}
			return s
		},
		"annealing": func() Searcher {
			s, err := newAnnealing(k.configurations, k.parameters, 0.5, 4.0,
				rand.New(rand.NewSource(3)))
			if err != nil {
				t.Fatalf("newAnnealing: %v", err)
			}
			return s
		},
		"pso": func() Searcher {
			s, err := newPSO(k.configurations, k.parameters, 0.5, 3, 0.4, 0.1, 0.1,
				rand.New(rand.NewSource(3)))
			if err != nil {
				t.Fatalf("newPSO: %v", err)
			}
			return s
		},
	}
	for name, factory := range build {
		first := drive(factory(), times)
		second := drive(factory(), times)
		if len(first) != len(second) {
			t.Errorf("%s: sequence lengths differ: %d vs %d", name, len(first), len(second))
			continue
		}
		for i := range first {
			if first[i] != second[i] {
				t.Errorf("%s: visit %d differs: %s vs %s", name, i, first[i], second[i])
			}
		}
	}
}

func TestAnnealingBudgetAndNoRevisit(t *testing.T) {
	k := spaceOf(t)
	s, err := newAnnealing(k.configurations, k.parameters, 0.5, 10.0,
		rand.New(rand.NewSource(11)))
	if err != nil {
		t.Fatalf("newAnnealing: %v", err)
	}
	if s.NumConfigurations() != 6 {
		t.Fatalf("NumConfigurations = %d, want 6", s.NumConfigurations())
	}
	visited := drive(s, func(step int) float64 { return float64(step%3) + 1 })
	members := memberSet(k.configurations)
	seen := map[string]bool{}
	for _, key := range visited {
		if !members[key] {
			t.Errorf("visited configuration %s not in the valid set", key)
		}
		if seen[key] {
			t.Errorf("configuration %s revisited", key)
		}
		seen[key] = true
	}
}

func TestAnnealingValidation(t *testing.T) {
	k := spaceOf(t)
	if _, err := newAnnealing(k.configurations, k.parameters, 0.5, 0,
		rand.New(rand.NewSource(1))); err == nil {
		t.Errorf("zero temperature accepted")
	}
	if _, err := newAnnealing(k.configurations, k.parameters, 2, 1,
		rand.New(rand.NewSource(1))); err == nil {
		t.Errorf("fraction 2 accepted")
	}
}

func TestPSOBudgetAndMembership(t *testing.T) {
	k := spaceOf(t)
	s, err := newPSO(k.configurations, k.parameters, 0.75, 4, 0.3, 0.2, 0.1,
		rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatalf("newPSO: %v", err)
	}
	if s.NumConfigurations() != 9 {
		t.Fatalf("NumConfigurations = %d, want 9", s.NumConfigurations())
	}
	visited := drive(s, func(step int) float64 { return float64(12 - step) })
	members := memberSet(k.configurations)
	for _, key := range visited {
		if !members[key] {
			t.Errorf("visited configuration %s not in the valid set", key)
		}
	}
}

func TestPSOValidation(t *testing.T) {
	k := spaceOf(t)
	if _, err := newPSO(k.configurations, k.parameters, 0.5, 0, 0.3, 0.2, 0.1,
		rand.New(rand.NewSource(1))); err == nil {
		t.Errorf("empty swarm accepted")
	}
}

func TestSearcherPrintLog(t *testing.T) {
	k := spaceOf(t)
	s := newFullSearch(k.configurations)
	drive(s, func(step int) float64 { return float64(step) })

	var buf bytes.Buffer
	if err := s.PrintLog(&buf); err != nil {
		t.Fatalf("PrintLog: %v", err)
	}
	if buf.Len() == 0 {
		t.Errorf("empty search log")
	}
}
