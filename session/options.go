package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/utkarsh5026/heatload/config"
	"github.com/utkarsh5026/heatload/gfx"
	"github.com/utkarsh5026/heatload/internal/cpu"
	"github.com/utkarsh5026/heatload/memory"
	"github.com/utkarsh5026/heatload/worker"
)

// Units is the compute unit pool a session drives. *worker.Pool satisfies
// it; a fresh Units is created for every session.
type Units interface {
	Start(ctx context.Context, n int, intensity float64) (int, error)
	Broadcast(m worker.Message) error
	Active() int
	Reports() <-chan worker.Report
	Faults() <-chan error
	Shutdown(timeout time.Duration) error
}

// Option configures a Controller.
type Option func(*options)

type options struct {
	tuning    config.Tuning
	logger    *slog.Logger
	probe     func() cpu.Caps
	device    gfx.Device
	allocFunc memory.AllocFunc
	newUnits  func(t config.Tuning, logger *slog.Logger) Units
	affinity  bool
}

func defaultOptions() *options {
	return &options{
		tuning: config.DefaultTuning(),
		logger: slog.Default(),
		probe:  cpu.Detect,
		device: gfx.NewSoftwareDevice(),
	}
}

// WithTuning replaces the default heuristic constants.
func WithTuning(t config.Tuning) Option {
	return func(o *options) {
		o.tuning = t
	}
}

// WithLogger sets the logger for the controller and every subsystem.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithProbe replaces host capability detection. It is called at every
// session start.
func WithProbe(fn func() cpu.Caps) Option {
	return func(o *options) {
		if fn != nil {
			o.probe = fn
		}
	}
}

// WithDevice sets the graphics device. A nil device means graphics load is
// unavailable.
func WithDevice(d gfx.Device) Option {
	return func(o *options) {
		if d == nil {
			d = gfx.Unavailable{}
		}
		o.device = d
	}
}

// WithAllocFunc replaces how the allocator obtains buffers.
func WithAllocFunc(fn memory.AllocFunc) Option {
	return func(o *options) {
		o.allocFunc = fn
	}
}

// WithUnits replaces the compute unit pool factory.
func WithUnits(fn func(t config.Tuning, logger *slog.Logger) Units) Option {
	return func(o *options) {
		o.newUnits = fn
	}
}

// WithAffinity pins each compute unit to a core where supported.
func WithAffinity(enabled bool) Option {
	return func(o *options) {
		o.affinity = enabled
	}
}

func (o *options) poolFactory() func(config.Tuning, *slog.Logger) Units {
	if o.newUnits != nil {
		return o.newUnits
	}
	affinity := o.affinity
	return func(t config.Tuning, logger *slog.Logger) Units {
		return worker.NewPool(
			worker.WithCycle(t.UnitCycle),
			worker.WithWorkPerCycle(t.WorkPerCycle),
			worker.WithAffinity(affinity),
			worker.WithLogger(logger),
		)
	}
}
