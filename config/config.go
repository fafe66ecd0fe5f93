// Package config defines the session configuration snapshot, the tuning
// constants that drive every periodic task, and preset records.
package config

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// MiB is one mebibyte.
const MiB = 1 << 20

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the immutable snapshot taken when a session starts. Only
// Intensity may change while the session is running.
type Config struct {
	UnitCount         int     `yaml:"units" json:"units"`
	Intensity         float64 `yaml:"intensity" json:"intensity"`
	MemoryTargetBytes int64   `yaml:"memory_bytes" json:"memoryBytes"`
	GraphicsIntensity int     `yaml:"graphics" json:"graphics"`
	DurationSeconds   int     `yaml:"duration_seconds" json:"durationSeconds"`
}

// Validate checks every field against its allowed range.
func (c Config) Validate() error {
	switch {
	case c.UnitCount < 0:
		return fmt.Errorf("%w: units must be >= 0, got %d", ErrInvalid, c.UnitCount)
	case math.IsNaN(c.Intensity) || c.Intensity < 0 || c.Intensity > 1:
		return fmt.Errorf("%w: intensity must be within [0,1], got %v", ErrInvalid, c.Intensity)
	case c.MemoryTargetBytes < 0:
		return fmt.Errorf("%w: memory target must be >= 0, got %d", ErrInvalid, c.MemoryTargetBytes)
	case c.GraphicsIntensity < 0 || c.GraphicsIntensity > 100:
		return fmt.Errorf("%w: graphics intensity must be within [0,100], got %d", ErrInvalid, c.GraphicsIntensity)
	case c.DurationSeconds <= 0:
		return fmt.Errorf("%w: duration must be > 0, got %d", ErrInvalid, c.DurationSeconds)
	}
	return nil
}

// Duration returns the configured session length.
func (c Config) Duration() time.Duration {
	return time.Duration(c.DurationSeconds) * time.Second
}

// ValidateIntensity checks a live intensity update.
func ValidateIntensity(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%w: intensity must be within [0,1], got %v", ErrInvalid, v)
	}
	return nil
}

// Tuning holds the heuristic constants. They are tuning values rather than
// invariants, and tests shrink them to keep runs short.
type Tuning struct {
	// Compute units
	UnitCycle    time.Duration `yaml:"unit_cycle"`
	WorkPerCycle int           `yaml:"work_per_cycle"`

	// Coordinating loop cadences
	AggregateInterval time.Duration `yaml:"aggregate_interval"`
	TimerInterval     time.Duration `yaml:"timer_interval"`
	WatchdogInterval  time.Duration `yaml:"watchdog_interval"`
	StallThreshold    time.Duration `yaml:"stall_threshold"`

	// Memory
	ChunkBytes    int64         `yaml:"chunk_bytes"`
	ScrubInterval time.Duration `yaml:"scrub_interval"`
	ScrubStride   int           `yaml:"scrub_stride"`
	ReverseEvery  int           `yaml:"reverse_every"`

	// Graphics
	FrameInterval        time.Duration `yaml:"frame_interval"`
	DrawsAtFullIntensity int           `yaml:"draws_at_full_intensity"`

	// Telemetry
	ChartCapacity          int     `yaml:"chart_capacity"`
	LowBusyThreshold       float64 `yaml:"low_busy_threshold"`
	LowBusyTicks           int     `yaml:"low_busy_ticks"`
	MinMeaningfulIntensity float64 `yaml:"min_meaningful_intensity"`

	// Guardrails
	MaxSafeIntensity float64       `yaml:"max_safe_intensity"`
	MaxDuration      time.Duration `yaml:"max_duration"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
}

// DefaultTuning returns the production cadence.
func DefaultTuning() Tuning {
	return Tuning{
		UnitCycle:              100 * time.Millisecond,
		WorkPerCycle:           4_000_000,
		AggregateInterval:      500 * time.Millisecond,
		TimerInterval:          500 * time.Millisecond,
		WatchdogInterval:       2 * time.Second,
		StallThreshold:         4 * time.Second,
		ChunkBytes:             16 * MiB,
		ScrubInterval:          250 * time.Millisecond,
		ScrubStride:            4096,
		ReverseEvery:           4,
		FrameInterval:          16 * time.Millisecond,
		DrawsAtFullIntensity:   20,
		ChartCapacity:          120,
		LowBusyThreshold:       0.05,
		LowBusyTicks:           4,
		MinMeaningfulIntensity: 0.05,
		MaxSafeIntensity:       1.0,
		MaxDuration:            2 * time.Hour,
		ShutdownTimeout:        2 * time.Second,
	}
}

// Validate rejects tunings that would make a periodic task spin or never fire.
func (t Tuning) Validate() error {
	positive := []struct {
		name string
		d    time.Duration
	}{
		{"unit_cycle", t.UnitCycle},
		{"aggregate_interval", t.AggregateInterval},
		{"timer_interval", t.TimerInterval},
		{"watchdog_interval", t.WatchdogInterval},
		{"stall_threshold", t.StallThreshold},
		{"scrub_interval", t.ScrubInterval},
		{"frame_interval", t.FrameInterval},
		{"max_duration", t.MaxDuration},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalid, p.name)
		}
	}

	switch {
	case t.WorkPerCycle <= 0:
		return fmt.Errorf("%w: work_per_cycle must be positive", ErrInvalid)
	case t.ChunkBytes < 8:
		return fmt.Errorf("%w: chunk_bytes must hold at least one element", ErrInvalid)
	case t.ScrubStride <= 0:
		return fmt.Errorf("%w: scrub_stride must be positive", ErrInvalid)
	case t.ChartCapacity <= 0:
		return fmt.Errorf("%w: chart_capacity must be positive", ErrInvalid)
	case t.DrawsAtFullIntensity <= 0:
		return fmt.Errorf("%w: draws_at_full_intensity must be positive", ErrInvalid)
	case t.MaxSafeIntensity <= 0 || t.MaxSafeIntensity > 1:
		return fmt.Errorf("%w: max_safe_intensity must be within (0,1]", ErrInvalid)
	}
	return nil
}

// Guard clamps c to the tuning's safety envelope. It returns the adjusted
// config and a note for every clamp applied.
func (t Tuning) Guard(c Config) (Config, []string) {
	var notes []string
	if c.Intensity > t.MaxSafeIntensity {
		c.Intensity = t.MaxSafeIntensity
		notes = append(notes, NoteIntensityCapped)
	}
	if limit := int(t.MaxDuration / time.Second); limit > 0 && c.DurationSeconds > limit {
		c.DurationSeconds = limit
		notes = append(notes, NoteDurationCapped)
	}
	return c, notes
}

// Guardrail notes raised by Guard.
const (
	NoteIntensityCapped = "intensity capped at safe maximum"
	NoteDurationCapped  = "duration capped at ceiling"
)
