package gridtune

import (
	"testing"

	"github.com/gridtune/gridtune/device"
	"github.com/gridtune/gridtune/device/cpu"
)

func testDevice(t *testing.T) device.Device {
	t.Helper()
	dev, err := device.Open(0, 0)
	if err != nil {
		t.Fatalf("device.Open: %v", err)
	}
	return dev
}

func newTestSpec(t *testing.T) *kernelSpec {
	t.Helper()
	k := newKernelSpec("k", "__kernel void k() {}", testDevice(t))
	k.setGlobalBase([]int{1024})
	k.setLocalBase([]int{1})
	return k
}

// A constraint prunes the Cartesian product; survivors keep product order.
func TestConstraintFilter(t *testing.T) {
	k := newTestSpec(t)
	if err := k.addParameter("A", []int64{1, 2, 4}); err != nil {
		t.Fatalf("addParameter: %v", err)
	}
	if err := k.addParameter("B", []int64{1, 2, 4}); err != nil {
		t.Fatalf("addParameter: %v", err)
	}
	k.addConstraint(func(v []int64) bool { return v[0]*v[1] <= 4 }, []string{"A", "B"})

	if err := k.setConfigurations(); err != nil {
		t.Fatalf("setConfigurations: %v", err)
	}
	want := [][2]int64{{1, 1}, {1, 2}, {1, 4}, {2, 1}, {2, 2}, {4, 1}}
	if len(k.configurations) != len(want) {
		t.Fatalf("valid set size = %d, want %d", len(k.configurations), len(want))
	}
	for i, config := range k.configurations {
		a, _ := config.Lookup("A")
		b, _ := config.Lookup("B")
		if a != want[i][0] || b != want[i][1] {
			t.Errorf("config %d = (%d,%d), want (%d,%d)", i, a, b, want[i][0], want[i][1])
		}
	}
}

// Without constraints the valid set is the full product in
// declaration-lexicographic order.
func TestEnumerationOrder(t *testing.T) {
	k := newTestSpec(t)
	if err := k.addParameter("X", []int64{1, 2}); err != nil {
		t.Fatalf("addParameter: %v", err)
	}
	if err := k.addParameter("Y", []int64{3, 4, 5}); err != nil {
		t.Fatalf("addParameter: %v", err)
	}
	if err := k.setConfigurations(); err != nil {
		t.Fatalf("setConfigurations: %v", err)
	}
	if len(k.configurations) != 6 {
		t.Fatalf("valid set size = %d, want 6", len(k.configurations))
	}
	want := [][2]int64{{1, 3}, {1, 4}, {1, 5}, {2, 3}, {2, 4}, {2, 5}}
	for i, config := range k.configurations {
		if config[0].Value != want[i][0] || config[1].Value != want[i][1] {
			t.Errorf("config %d = (%d,%d), want %v", i, config[0].Value, config[1].Value, want[i])
		}
	}
}

// Local shapes beyond the device's work-group cap are filtered out.
func TestThreadConfigFilter(t *testing.T) {
	k := newTestSpec(t)
	if err := k.addParameter("WG", []int64{256, 1024, 2048}); err != nil {
		t.Fatalf("addParameter: %v", err)
	}
	k.addModifier([]string{"WG"}, LocalMul)

	if err := k.setConfigurations(); err != nil {
		t.Fatalf("setConfigurations: %v", err)
	}
	// The CPU device caps work groups at 1024 threads.
	if len(k.configurations) != 2 {
		t.Fatalf("valid set size = %d, want 2", len(k.configurations))
	}
	for _, config := range k.configurations {
		wg, _ := config.Lookup("WG")
		if wg > cpu.MaxWorkGroupSize {
			t.Errorf("configuration with WG=%d survived the thread cap", wg)
		}
	}
}

// Local-memory demand beyond the device limit filters a configuration.
func TestLocalMemoryFilter(t *testing.T) {
	k := newTestSpec(t)
	if err := k.addParameter("TILE", []int64{16, 64, 4096}); err != nil {
		t.Fatalf("addParameter: %v", err)
	}
	k.setLocalMemoryUsage(func(v []int64) int {
		return int(v[0] * v[0] * 4)
	}, []string{"TILE"})

	if err := k.setConfigurations(); err != nil {
		t.Fatalf("setConfigurations: %v", err)
	}
	// 4096^2 * 4 bytes exceeds the 48 KiB local memory budget.
	if len(k.configurations) != 2 {
		t.Fatalf("valid set size = %d, want 2", len(k.configurations))
	}
}

// A local-memory predicate over an unbound parameter is an error, not a
// silent skip.
func TestLocalMemoryUnboundParameter(t *testing.T) {
	k := newTestSpec(t)
	if err := k.addParameter("A", []int64{1, 2}); err != nil {
		t.Fatalf("addParameter: %v", err)
	}
	k.setLocalMemoryUsage(func(v []int64) int { return 0 }, []string{"MISSING"})

	if err := k.setConfigurations(); err == nil {
		t.Fatalf("expected error for unbound local memory parameter")
	}
}
