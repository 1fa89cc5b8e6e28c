package cpu

import (
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gridtune/gridtune/device"
)

func openContext(t *testing.T) device.Context {
	t.Helper()
	dev, err := device.Open(0, 0)
	if err != nil {
		t.Fatalf("device.Open: %v", err)
	}
	ctx, err := dev.NewContext()
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	t.Cleanup(ctx.Release)
	return ctx
}

func TestDeviceRegistration(t *testing.T) {
	platforms := device.Platforms()
	if len(platforms) == 0 {
		t.Fatalf("cpu platform not registered")
	}
	if _, err := device.Open(0, 1); err == nil {
		t.Errorf("nonexistent device opened")
	}
	if _, err := device.Open(99, 0); err == nil {
		t.Errorf("nonexistent platform opened")
	}
}

func TestThreadConfigValidation(t *testing.T) {
	dev, err := device.Open(0, 0)
	if err != nil {
		t.Fatalf("device.Open: %v", err)
	}
	cases := []struct {
		local []int
		want  bool
	}{
		{[]int{32}, true},
		{[]int{1024}, true},
		{[]int{2048}, false},
		{[]int{32, 32}, true},
		{[]int{64, 32}, false}, // 2048 threads total
		{[]int{8, 8, 8}, true},
		{[]int{1, 1, 128}, false}, // exceeds the Z cap
		{nil, false},
		{[]int{0}, false},
	}
	for _, tc := range cases {
		if got := dev.IsThreadConfigValid(tc.local); got != tc.want {
			t.Errorf("IsThreadConfigValid(%v) = %v, want %v", tc.local, got, tc.want)
		}
	}
	if !dev.IsLocalMemoryValid(LocalMemSize) {
		t.Errorf("full local memory budget rejected")
	}
	if dev.IsLocalMemoryValid(LocalMemSize + 1) {
		t.Errorf("oversized local memory accepted")
	}
}

func TestParseDefines(t *testing.T) {
	source := "#define WG 64\n#define VW 4\n#define NAME_ONLY\n#define EXPR (WG*2)\nkernel body\n"
	defines := parseDefines(source)
	if defines["WG"] != 64 || defines["VW"] != 4 {
		t.Errorf("defines = %v", defines)
	}
	if _, ok := defines["NAME_ONLY"]; ok {
		t.Errorf("valueless define parsed")
	}
	if _, ok := defines["EXPR"]; ok {
		t.Errorf("expression define parsed as integer")
	}
}

func TestCompileErrors(t *testing.T) {
	ctx := openContext(t)
	if _, err := ctx.Compile("  "); err == nil {
		t.Errorf("empty source compiled")
	}
	if _, err := ctx.Compile("#error broken\nkernel k\n"); err == nil {
		t.Errorf("#error source compiled")
	}
}

func TestKernelLookup(t *testing.T) {
	Register("cpu_test_lookup", Builder{
		Build: func(defines map[string]int64) KernelFunc {
			return func(tid ThreadID, args ...any) {}
		},
	})
	ctx := openContext(t)
	program, err := ctx.Compile("__kernel void cpu_test_lookup() {}")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := program.Kernel("cpu_test_lookup"); err != nil {
		t.Errorf("registered kernel not found: %v", err)
	}
	if _, err := program.Kernel("cpu_test_absent"); err == nil {
		t.Errorf("kernel missing from source instantiated")
	}
}

func TestBufferReadWrite(t *testing.T) {
	ctx := openContext(t)
	queue, err := ctx.NewQueue()
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	buf, err := ctx.AllocBuffer(16)
	if err != nil {
		t.Fatalf("AllocBuffer: %v", err)
	}

	payload := []byte{1, 2, 3, 4}
	if err := queue.Write(buf, 4, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := make([]byte, 4)
	if err := queue.Read(buf, 4, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Errorf("byte %d = %d, want %d", i, got[i], payload[i])
		}
	}

	if err := queue.Write(buf, 14, payload); err == nil {
		t.Errorf("out-of-bounds write accepted")
	}
	if err := queue.Read(buf, -1, got); err == nil {
		t.Errorf("negative offset read accepted")
	}

	other, err := ctx.AllocBuffer(16)
	if err != nil {
		t.Fatalf("AllocBuffer: %v", err)
	}
	if err := queue.Copy(other, buf, 16); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if err := queue.Read(other, 4, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got[0] != 1 {
		t.Errorf("copy did not carry data: %v", got)
	}

	if err := buf.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := buf.Release(); err == nil {
		t.Errorf("double release accepted")
	}
	if err := queue.Read(buf, 0, got); err == nil {
		t.Errorf("read from released buffer accepted")
	}
}

func TestLaunchExecutesEveryThread(t *testing.T) {
	var count int64
	Register("cpu_test_count", Builder{
		Build: func(defines map[string]int64) KernelFunc {
			return func(tid ThreadID, args ...any) {
				atomic.AddInt64(&count, 1)
			}
		},
	})
	ctx := openContext(t)
	queue, _ := ctx.NewQueue()
	program, err := ctx.Compile("__kernel void cpu_test_count() {}")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	kern, err := program.Kernel("cpu_test_count")
	if err != nil {
		t.Fatalf("Kernel: %v", err)
	}
	event, err := queue.Launch(kern, []int{256}, []int{32})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if got := atomic.LoadInt64(&count); got != 256 {
		t.Errorf("threads executed = %d, want 256", got)
	}
	if event.ElapsedMilliseconds() < 0 {
		t.Errorf("negative elapsed time")
	}
}

func TestLaunchBindsBufferWindow(t *testing.T) {
	Register("cpu_test_window", Builder{
		Build: func(defines map[string]int64) KernelFunc {
			return func(tid ThreadID, args ...any) {
				data := args[0].(Mem).Float32()
				if i := tid.Global(); i < len(data) {
					data[i] += 1
				}
			}
		},
	})
	ctx := openContext(t)
	queue, _ := ctx.NewQueue()
	program, err := ctx.Compile("__kernel void cpu_test_window() {}")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	buf, _ := ctx.AllocBuffer(8 * 4)
	zero := make([]byte, 8*4)
	if err := queue.Write(buf, 0, zero); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Bind only the second half: the first half must stay untouched.
	kern, _ := program.Kernel("cpu_test_window")
	if err := kern.SetBufferArg(0, buf, 16, 16); err != nil {
		t.Fatalf("SetBufferArg: %v", err)
	}
	if _, err := queue.Launch(kern, []int{4}, []int{4}); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	raw := make([]byte, 8*4)
	if err := queue.Read(buf, 0, raw); err != nil {
		t.Fatalf("Read: %v", err)
	}
	floats := Mem{bytes: raw}.Float32()
	for i := 0; i < 4; i++ {
		if floats[i] != 0 {
			t.Errorf("element %d outside the window was written: %v", i, floats[i])
		}
	}
	for i := 4; i < 8; i++ {
		if floats[i] != 1 {
			t.Errorf("element %d inside the window = %v, want 1", i, floats[i])
		}
	}
}

func TestLaunchShapeValidation(t *testing.T) {
	if _, _, err := launchShape([]int{100}, []int{32}); err == nil {
		t.Errorf("indivisible launch accepted")
	}
	if _, _, err := launchShape([]int{64}, []int{0}); err == nil {
		t.Errorf("zero local size accepted")
	}
	if _, _, err := launchShape([]int{64, 64}, []int{8}); err == nil {
		t.Errorf("dimension mismatch accepted")
	}
	grid, block, err := launchShape([]int{64, 8}, []int{8, 4})
	if err != nil {
		t.Fatalf("launchShape: %v", err)
	}
	if grid.X != 8 || grid.Y != 2 || grid.Z != 1 {
		t.Errorf("grid = %+v", grid)
	}
	if block.X != 8 || block.Y != 4 || block.Z != 1 {
		t.Errorf("block = %+v", block)
	}
}

func TestKernelPanicBecomesError(t *testing.T) {
	Register("cpu_test_panic", Builder{
		Build: func(defines map[string]int64) KernelFunc {
			return func(tid ThreadID, args ...any) {
				panic("deliberate")
			}
		},
	})
	ctx := openContext(t)
	queue, _ := ctx.NewQueue()
	program, err := ctx.Compile("__kernel void cpu_test_panic() {}")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	kern, _ := program.Kernel("cpu_test_panic")
	if _, err := queue.Launch(kern, []int{32}, []int{32}); err == nil {
		t.Errorf("panicking kernel did not fail the launch")
	}
}

func TestGatherArgsContiguity(t *testing.T) {
	Register("cpu_test_args", Builder{
		Build: func(defines map[string]int64) KernelFunc {
			return func(tid ThreadID, args ...any) {}
		},
	})
	ctx := openContext(t)
	queue, _ := ctx.NewQueue()
	program, err := ctx.Compile("__kernel void cpu_test_args() {}")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	kern, _ := program.Kernel("cpu_test_args")
	if err := kern.SetScalarArg(1, int32(5)); err != nil {
		t.Fatalf("SetScalarArg: %v", err)
	}
	// Index 0 is missing; the launch must refuse.
	if _, err := queue.Launch(kern, []int{32}, []int{32}); err == nil {
		t.Errorf("launch with a missing argument accepted")
	}
	if err := kern.SetScalarArg(0, struct{}{}); err == nil {
		t.Errorf("unsupported scalar type accepted")
	}
}

func TestDefinesReachBuilder(t *testing.T) {
	var got int64
	Register("cpu_test_defines", Builder{
		Build: func(defines map[string]int64) KernelFunc {
			got = defines["WG"]
			return func(tid ThreadID, args ...any) {}
		},
		LocalMem: func(defines map[string]int64) int {
			return int(defines["WG"]) * 4
		},
	})
	ctx := openContext(t)
	program, err := ctx.Compile("#define WG 64\n__kernel void cpu_test_defines() {}")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	kern, err := program.Kernel("cpu_test_defines")
	if err != nil {
		t.Fatalf("Kernel: %v", err)
	}
	if got != 64 {
		t.Errorf("builder saw WG = %d, want 64", got)
	}
	dev, _ := device.Open(0, 0)
	if usage := kern.LocalMemUsage(dev); usage != 256 {
		t.Errorf("LocalMemUsage = %d, want 256", usage)
	}
}

func TestDeviceName(t *testing.T) {
	if name := deviceName(); !strings.HasPrefix(name, "CPU ") {
		t.Errorf("device name = %q", name)
	}
}
