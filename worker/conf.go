package worker

import (
	"log/slog"
	"time"
)

// PoolOption is a functional option for configuring a Pool.
type PoolOption func(*poolConfig)

type poolConfig struct {
	cycle        time.Duration
	workPerCycle int
	inboxBuffer  int
	reportBuffer int
	affinity     bool
	logger       *slog.Logger

	beforeCycle func(unit int)
	onCycleEnd  func(Report)
	onMessage   func(unit int, m Message)
}

func defaultConfig() *poolConfig {
	return &poolConfig{
		cycle:        100 * time.Millisecond,
		workPerCycle: 4_000_000,
		inboxBuffer:  16,
		reportBuffer: 64,
		logger:       slog.Default(),
	}
}

// WithCycle sets the fixed duty-cycle window of every unit.
func WithCycle(d time.Duration) PoolOption {
	return func(cfg *poolConfig) {
		if d > 0 {
			cfg.cycle = d
		}
	}
}

// WithWorkPerCycle sets the iteration count a unit targets per cycle at
// intensity 1. The time budget intensity*cycle bounds it as well.
func WithWorkPerCycle(n int) PoolOption {
	return func(cfg *poolConfig) {
		if n > 0 {
			cfg.workPerCycle = n
		}
	}
}

// WithInboxBuffer sets each unit's inbox capacity.
func WithInboxBuffer(size int) PoolOption {
	return func(cfg *poolConfig) {
		if size > 0 {
			cfg.inboxBuffer = size
		}
	}
}

// WithReportBuffer sets the capacity of the shared report channel.
func WithReportBuffer(size int) PoolOption {
	return func(cfg *poolConfig) {
		if size >= 0 {
			cfg.reportBuffer = size
		}
	}
}

// WithAffinity pins each unit's goroutine to an OS thread and core.
func WithAffinity(enabled bool) PoolOption {
	return func(cfg *poolConfig) {
		cfg.affinity = enabled
	}
}

// WithLogger sets the logger used for unit lifecycle events.
func WithLogger(l *slog.Logger) PoolOption {
	return func(cfg *poolConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithBeforeCycle registers a hook run on the unit's goroutine before
// every cycle. A panic raised by the hook is treated as a unit fault.
func WithBeforeCycle(fn func(unit int)) PoolOption {
	return func(cfg *poolConfig) {
		cfg.beforeCycle = fn
	}
}

// WithOnCycleEnd registers a hook run on the unit's goroutine after each
// cycle, before the report is sent.
func WithOnCycleEnd(fn func(Report)) PoolOption {
	return func(cfg *poolConfig) {
		cfg.onCycleEnd = fn
	}
}

// WithOnMessage registers a hook observing every control message handed to
// a unit's inbox.
func WithOnMessage(fn func(unit int, m Message)) PoolOption {
	return func(cfg *poolConfig) {
		cfg.onMessage = fn
	}
}
