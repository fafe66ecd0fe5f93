// Package gfx drives synthetic draw load. It owns at most one rendering
// surface and one compiled program, issues a number of draws per frame
// proportional to the configured graphics intensity, and disables itself
// when no surface or program can be obtained.
package gfx

import "errors"

var (
	// ErrNoSurface reports that the device cannot provide a surface.
	ErrNoSurface = errors.New("graphics surface unavailable")
	// ErrProgramBuild reports a shader program that failed to compile.
	ErrProgramBuild = errors.New("graphics program build failed")
	// ErrReleased is returned when a released surface is used.
	ErrReleased = errors.New("graphics surface released")
)

// Device creates rendering surfaces.
type Device interface {
	Name() string
	NewSurface() (Surface, error)
}

// Surface is one rendering target with its own command queue.
type Surface interface {
	// Compile builds a shader program from source.
	Compile(src string) (Program, error)
	// Submit queues draws of p and returns how many were accepted. It
	// never blocks.
	Submit(p Program, draws int) int
	// Busy returns the fraction of wall time spent rendering since the
	// previous call.
	Busy() float64
	// Release frees the surface. It is safe to call more than once.
	Release()
}

// Program is a compiled shader.
type Program interface {
	Source() string
}

// Unavailable is a Device for hosts without a rendering path.
type Unavailable struct{}

func (Unavailable) Name() string { return "unavailable" }

func (Unavailable) NewSurface() (Surface, error) { return nil, ErrNoSurface }
