// Package cpu probes the host for the capabilities the load engine depends
// on: how many compute units may run concurrently and how much memory the
// allocator may claim. It also pins unit goroutines to cores where the
// platform allows it.
package cpu

import (
	"math"
	"runtime"
	"runtime/debug"
)

// Caps describes what the host can sustain.
type Caps struct {
	// Concurrency is the ceiling on simultaneously active compute units.
	// Zero means concurrent execution is unsupported.
	Concurrency int `json:"concurrency"`

	// Cores is the logical core count used for busy estimates.
	Cores int `json:"cores"`

	// AllocatableBytes bounds the memory allocator. Zero means unknown.
	AllocatableBytes uint64 `json:"allocatableBytes"`
}

// Detect probes the running host.
func Detect() Caps {
	return Caps{
		Concurrency:      runtime.GOMAXPROCS(0),
		Cores:            runtime.NumCPU(),
		AllocatableBytes: AllocatableBytes(),
	}
}

// GetNumCPU returns the number of logical CPUs available.
func GetNumCPU() int {
	return runtime.NumCPU()
}

// AllocatableBytes returns the smaller of the physical memory estimate and
// the Go runtime soft memory limit, or zero when neither is known.
func AllocatableBytes() uint64 {
	phys := physicalAvailable()

	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || limit == math.MaxInt64 {
		return phys
	}

	if phys == 0 || uint64(limit) < phys {
		return uint64(limit)
	}
	return phys
}
