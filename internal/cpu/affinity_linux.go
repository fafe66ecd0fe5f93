//go:build linux

package cpu

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinToCore pins the current OS thread to a specific CPU core.
// Must be called after runtime.LockOSThread().
func pinToCore(cpuID int) (uintptr, error) {
	numCPU := runtime.NumCPU()
	if cpuID < 0 || cpuID >= numCPU {
		cpuID = cpuID % numCPU
		if cpuID < 0 {
			cpuID += numCPU
		}
	}

	var mask unix.CPUSet
	mask.Zero()
	mask.Set(cpuID)

	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		return 0, err
	}

	return uintptr(cpuID), nil
}

// SetupUnitAffinity locks the calling goroutine to an OS thread and pins
// that thread to the core matching unitID. The returned func undoes the lock.
func SetupUnitAffinity(unitID int) func() {
	runtime.LockOSThread()
	_, _ = pinToCore(unitID)

	return func() {
		runtime.UnlockOSThread()
	}
}

// physicalAvailable reports free plus reclaimable buffer memory.
func physicalAvailable() uint64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	return (uint64(info.Freeram) + uint64(info.Bufferram)) * unit
}
