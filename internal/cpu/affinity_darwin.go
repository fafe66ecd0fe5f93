//go:build darwin

package cpu

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// SetupUnitAffinity locks the goroutine to an OS thread.
// CPU pinning is not available on macOS.
func SetupUnitAffinity(unitID int) func() {
	runtime.LockOSThread()

	return func() {
		runtime.UnlockOSThread()
	}
}

// physicalAvailable has no cheap free-memory query on darwin, so half of
// the installed memory is treated as allocatable.
func physicalAvailable() uint64 {
	total, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return 0
	}
	return total / 2
}
