package gfx

import (
	"fmt"
	"log/slog"
	"math"
	"time"
)

// Fault classifies a driver initialization outcome.
type Fault int

const (
	FaultNone Fault = iota
	// FaultUnavailable means the driver disabled itself.
	FaultUnavailable
)

// InitResult is the outcome of Driver.Init.
type InitResult struct {
	Fault Fault
	Err   error
}

// OK reports a live driver.
func (r InitResult) OK() bool { return r.Fault == FaultNone }

// Option configures a Driver.
type Option func(*Driver)

// WithShader replaces the shader source.
func WithShader(src string) Option {
	return func(d *Driver) {
		d.shader = src
	}
}

// WithDrawsAtFullIntensity sets the draw count per frame at graphics
// intensity 100.
func WithDrawsAtFullIntensity(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.drawsAtFull = n
		}
	}
}

// WithLogger sets the driver's logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// Driver issues per-frame draw load on one lazily created surface. It is
// not safe for concurrent use; the coordinating loop is its only caller.
type Driver struct {
	device      Device
	shader      string
	drawsAtFull int
	logger      *slog.Logger

	intensity int     // 0..100
	scale     float64 // live load scale, 0..1

	surface Surface
	program Program

	lastFrame time.Time
	fps       float64
	activity  float64
	draws     int64
}

// NewDriver creates a driver for graphics intensity gi (0..100). Nothing is
// allocated until Init.
func NewDriver(device Device, gi int, opts ...Option) *Driver {
	d := &Driver{
		device:      device,
		shader:      DefaultShader,
		drawsAtFull: 20,
		logger:      slog.Default(),
		intensity:   clampIntensity(gi),
		scale:       1,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.device == nil {
		d.device = Unavailable{}
	}
	return d
}

// Init obtains the surface and builds the program. On failure everything
// acquired is released and the driver stays dead; the caller decides how
// to degrade.
func (d *Driver) Init() InitResult {
	if d.surface != nil {
		return InitResult{}
	}

	surface, err := d.device.NewSurface()
	if err != nil {
		return d.fail(fmt.Errorf("%s device: %w", d.device.Name(), err))
	}
	program, err := surface.Compile(d.shader)
	if err != nil {
		surface.Release()
		return d.fail(err)
	}

	d.surface = surface
	d.program = program
	d.lastFrame = time.Time{}
	d.logger.Debug("graphics driver ready", "device", d.device.Name(), "intensity", d.intensity)
	return InitResult{}
}

func (d *Driver) fail(err error) InitResult {
	d.logger.Warn("graphics load unavailable", "err", err)
	return InitResult{Fault: FaultUnavailable, Err: err}
}

// Live reports whether a surface and program are held.
func (d *Driver) Live() bool { return d.surface != nil }

// SetScale propagates the session's live intensity to the draw count.
func (d *Driver) SetScale(v float64) {
	if math.IsNaN(v) || v < 0 {
		v = 0
	}
	d.scale = min(v, 1)
}

// DrawsPerFrame returns how many draws a frame issues.
func (d *Driver) DrawsPerFrame() int {
	n := math.Round(float64(d.intensity) / 100 * float64(d.drawsAtFull) * d.scale)
	return max(1, int(n))
}

// Frame runs one scheduled frame and returns the draws accepted.
func (d *Driver) Frame(now time.Time) int {
	if d.surface == nil {
		return 0
	}

	if !d.lastFrame.IsZero() {
		if dt := now.Sub(d.lastFrame).Seconds(); dt > 0 {
			d.fps = 1 / dt
		}
	}
	d.lastFrame = now

	accepted := d.surface.Submit(d.program, d.DrawsPerFrame())
	d.draws += int64(accepted)
	d.activity = d.surface.Busy()
	return accepted
}

// FPS returns the instantaneous frame rate of the last frame.
func (d *Driver) FPS() float64 { return d.fps }

// Activity returns the renderer busy fraction observed at the last frame.
func (d *Driver) Activity() float64 { return d.activity }

// Draws returns the total draws accepted since Init.
func (d *Driver) Draws() int64 { return d.draws }

// Destroy releases the surface and program. The driver can be re-initialised.
func (d *Driver) Destroy() {
	if d.surface != nil {
		d.surface.Release()
	}
	d.surface = nil
	d.program = nil
	d.fps = 0
	d.activity = 0
	d.lastFrame = time.Time{}
}

func clampIntensity(gi int) int {
	return min(max(gi, 0), 100)
}
