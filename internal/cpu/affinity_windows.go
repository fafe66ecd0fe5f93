//go:build windows

package cpu

import (
	"runtime"
	"syscall"
)

var (
	kernel32              = syscall.NewLazyDLL("kernel32.dll")
	setThreadAffinityMask = kernel32.NewProc("SetThreadAffinityMask")
	getCurrentThread      = kernel32.NewProc("GetCurrentThread")
)

// pinToCore pins the current OS thread to a specific CPU core.
// Must be called after runtime.LockOSThread().
// Returns the previous affinity mask on success.
func pinToCore(cpuID int) (uintptr, error) {
	numCPU := runtime.NumCPU()
	if cpuID < 0 || cpuID >= numCPU {
		cpuID = cpuID % numCPU
		if cpuID < 0 {
			cpuID += numCPU
		}
	}

	handle, _, _ := getCurrentThread.Call()

	// Bit N = CPU N
	mask := uintptr(1 << cpuID)

	prevMask, _, err := setThreadAffinityMask.Call(handle, mask)
	if prevMask == 0 {
		return 0, err
	}

	return prevMask, nil
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

// physicalAvailable is unknown on windows without extra bindings; the Go
// runtime memory limit is the only bound applied there.
func physicalAvailable() uint64 {
	return 0
}
