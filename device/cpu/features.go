package cpu

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/cpu"
)

// Features tracks available CPU instruction set extensions.
type Features struct {
	HasAVX     bool
	HasAVX2    bool
	HasAVX512F bool
	HasFMA     bool
	HasSSE4    bool
	HasNEON    bool
}

var features Features

func init() {
	features = Features{
		HasSSE4:    cpu.X86.HasSSE41 || cpu.X86.HasSSE42,
		HasAVX:     cpu.X86.HasAVX,
		HasAVX2:    cpu.X86.HasAVX2,
		HasAVX512F: cpu.X86.HasAVX512F,
		HasFMA:     cpu.X86.HasFMA,
		HasNEON:    cpu.ARM64.HasASIMD,
	}
}

// DetectedFeatures returns the instruction set extensions found at startup.
func DetectedFeatures() Features { return features }

// bestVectorExtension names the widest usable SIMD extension, for the
// device name reported to the engine.
func bestVectorExtension() string {
	switch {
	case features.HasAVX512F:
		return "AVX512"
	case features.HasAVX2 && features.HasFMA:
		return "AVX2"
	case features.HasAVX:
		return "AVX"
	case features.HasSSE4:
		return "SSE4"
	case features.HasNEON:
		return "NEON"
	default:
		return "scalar"
	}
}

func deviceName() string {
	return fmt.Sprintf("CPU %d-core (%s)", runtime.NumCPU(), bestVectorExtension())
}
