package gridtune

import (
	"strings"
	"testing"
)

func TestAddParameterValidation(t *testing.T) {
	k := newTestSpec(t)
	if err := k.addParameter("WG", []int64{32, 64}); err != nil {
		t.Fatalf("addParameter: %v", err)
	}
	if err := k.addParameter("WG", []int64{128}); err == nil {
		t.Errorf("duplicate parameter accepted")
	}
	if err := k.addParameter("EMPTY", nil); err == nil {
		t.Errorf("empty value list accepted")
	}
	if err := k.addParameter("NEG", []int64{-1}); err == nil {
		t.Errorf("negative value accepted")
	}
	if !k.parameterExists("WG") {
		t.Errorf("parameterExists(WG) = false")
	}
	if k.parameterExists("NOPE") {
		t.Errorf("parameterExists(NOPE) = true")
	}
}

// Modifiers compose in registration order, per dimension.
func TestComputeRangesComposition(t *testing.T) {
	k := newTestSpec(t)
	k.setGlobalBase([]int{1024, 8})
	k.setLocalBase([]int{2, 4})
	if err := k.addParameter("A", []int64{4}); err != nil {
		t.Fatalf("addParameter: %v", err)
	}
	if err := k.addParameter("B", []int64{2}); err != nil {
		t.Fatalf("addParameter: %v", err)
	}
	k.addModifier([]string{"A", ""}, GlobalDiv)  // global = (256, 8)
	k.addModifier([]string{"B", "B"}, GlobalMul) // global = (512, 16)
	k.addModifier([]string{"", "A"}, GlobalAdd)  // global = (512, 20)
	k.addModifier([]string{"B", ""}, LocalMul)   // local  = (4, 4)
	k.addModifier([]string{"", "B"}, LocalDiv)   // local  = (4, 2)

	config := Configuration{{Name: "A", Value: 4}, {Name: "B", Value: 2}}
	if err := k.computeRanges(config); err != nil {
		t.Fatalf("computeRanges: %v", err)
	}
	if k.global[0] != 512 || k.global[1] != 20 {
		t.Errorf("global = %v, want [512 20]", k.global)
	}
	if k.local[0] != 4 || k.local[1] != 2 {
		t.Errorf("local = %v, want [4 2]", k.local)
	}
}

func TestComputeRangesUnknownModifier(t *testing.T) {
	k := newTestSpec(t)
	k.addModifier([]string{"GHOST"}, GlobalMul)
	err := k.computeRanges(Configuration{})
	if err == nil {
		t.Fatalf("expected error for unmatched modifier name")
	}
}

func TestComputeRangesDimensionMismatch(t *testing.T) {
	k := newTestSpec(t)
	k.setGlobalBase([]int{64, 64})
	k.setLocalBase([]int{8})
	if err := k.computeRanges(Configuration{}); err == nil {
		t.Fatalf("expected error for mismatched dimension counts")
	}
}

func TestSetNumCurrentIterations(t *testing.T) {
	k := newTestSpec(t)
	if err := k.addParameter("ITERS", []int64{1, 2, 4}); err != nil {
		t.Fatalf("addParameter: %v", err)
	}
	k.setIterations([]int64{1, 2, 4}, "ITERS")

	config := Configuration{{Name: "ITERS", Value: 4}}
	if err := k.setNumCurrentIterations(config); err != nil {
		t.Fatalf("setNumCurrentIterations: %v", err)
	}
	if k.numCurrentIterations != 4 {
		t.Errorf("iterations = %d, want 4", k.numCurrentIterations)
	}

	// Without an iterations modifier the count defaults to 1.
	k2 := newTestSpec(t)
	if err := k2.setNumCurrentIterations(Configuration{}); err != nil {
		t.Fatalf("setNumCurrentIterations: %v", err)
	}
	if k2.numCurrentIterations != 1 {
		t.Errorf("iterations = %d, want 1", k2.numCurrentIterations)
	}

	// A configuration missing the named parameter is an error.
	if err := k.setNumCurrentIterations(Configuration{}); err == nil {
		t.Errorf("expected error for missing iterations parameter")
	}
}

// Per-configuration source prepends one #define per setting, in
// declaration order, before the original source.
func TestConfiguredSource(t *testing.T) {
	k := newTestSpec(t)
	config := Configuration{
		{Name: "WG", Value: 64},
		{Name: "VW", Value: 4},
	}
	source := k.configuredSource(config)
	want := "#define WG 64\n#define VW 4\n__kernel void k() {}"
	if source != want {
		t.Errorf("configuredSource = %q, want %q", source, want)
	}
}

func TestPrependSource(t *testing.T) {
	k := newTestSpec(t)
	k.prependSource("#define N 1024")
	if !strings.HasPrefix(k.source, "#define N 1024\n") {
		t.Errorf("prependSource did not prepend: %q", k.source)
	}
	if !strings.Contains(k.source, "__kernel void k()") {
		t.Errorf("prependSource lost the original source: %q", k.source)
	}
}

func TestLocalThreads(t *testing.T) {
	k := newTestSpec(t)
	k.local = []int{8, 4, 2}
	if threads := k.localThreads(); threads != 64 {
		t.Errorf("localThreads = %d, want 64", threads)
	}
}
