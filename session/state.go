package session

import (
	"fmt"
	"strings"

	"github.com/utkarsh5026/heatload/config"
	"github.com/utkarsh5026/heatload/internal/cpu"
)

// State is the session lifecycle state.
type State int

const (
	Idle State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "idle":
		*s = Idle
	case "running":
		*s = Running
	case "paused":
		*s = Paused
	default:
		return fmt.Errorf("unknown session state %q", b)
	}
	return nil
}

// Flags raised by the controller itself. The aggregator raises the rest.
const (
	FlagStalled        = "stalled"
	FlagWorkerFault    = "worker fault"
	FlagMemoryDegraded = "memory target not reached"
	FlagUnsupported    = "concurrent execution unsupported"
	FlagUnitsStuck     = "compute unit did not stop"
)

// Warnings that are not flags.
const (
	WarnAutoStop = "auto-stop reached"
)

// Counters are lifetime debug counters for a controller.
type Counters struct {
	Starts         int64 `json:"starts"`
	Stops          int64 `json:"stops"`
	StallTrips     int64 `json:"stallTrips"`
	AutoStops      int64 `json:"autoStops"`
	WorkerFaults   int64 `json:"workerFaults"`
	GuardrailTrips int64 `json:"guardrailTrips"`
	Degradations   int64 `json:"degradations"`
	StuckShutdowns int64 `json:"stuckShutdowns"`
}

// Snapshot is a read-only copy of the session's observable state.
type Snapshot struct {
	ID     string        `json:"id,omitempty"`
	State  State         `json:"state"`
	Config config.Config `json:"config"`

	UnitsRequested int     `json:"unitsRequested"`
	UnitsActive    int     `json:"unitsActive"`
	Throughput     float64 `json:"throughput"`
	CPUBusy        float64 `json:"cpuBusy"`

	MemoryRequested int64   `json:"memoryRequested"`
	MemoryBytes     int64   `json:"memoryBytes"`
	MemoryChunks    int     `json:"memoryChunks"`
	TouchRate       float64 `json:"touchRate"`

	GraphicsLive     bool    `json:"graphicsLive"`
	GraphicsActivity float64 `json:"graphicsActivity"`
	FPS              float64 `json:"fps"`
	Draws            int64   `json:"draws"`

	ElapsedSeconds   float64 `json:"elapsedSeconds"`
	RemainingSeconds float64 `json:"remainingSeconds"`

	Warning  string    `json:"warning,omitempty"`
	Flags    []string  `json:"flags"`
	Chart    []float64 `json:"chart"`
	Counters Counters  `json:"counters"`
	Caps     cpu.Caps  `json:"caps"`
}

// Health is the liveness view.
type Health struct {
	Status   string   `json:"status"`
	State    State    `json:"state"`
	Warning  string   `json:"warning,omitempty"`
	Counters Counters `json:"counters"`
}

// Readiness is the readiness view. Status is "ready" or "degraded".
type Readiness struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Degraded reports whether the controller is not ready.
func (r Readiness) Degraded() bool { return r.Status != "ready" }
