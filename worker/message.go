package worker

import (
	"fmt"
	"time"
)

// Kind identifies a control message.
type Kind int

const (
	KindStart Kind = iota
	KindUpdate
	KindPause
	KindResume
	KindStop
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindUpdate:
		return "update"
	case KindPause:
		return "pause"
	case KindResume:
		return "resume"
	case KindStop:
		return "stop"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is a control message sent to a unit. Intensity is only
// meaningful for Start and Update.
type Message struct {
	Kind      Kind
	Intensity float64
}

// Start builds a start message.
func Start(intensity float64) Message { return Message{Kind: KindStart, Intensity: intensity} }

// Update builds an intensity update.
func Update(intensity float64) Message { return Message{Kind: KindUpdate, Intensity: intensity} }

// Pause, Resume and Stop carry no payload.
var (
	Pause  = Message{Kind: KindPause}
	Resume = Message{Kind: KindResume}
	Stop   = Message{Kind: KindStop}
)

// Report is the stats message a unit emits after every cycle.
type Report struct {
	Unit       int
	Iterations int64
	Elapsed    time.Duration
}

// ElapsedMs returns the cycle's busy time in milliseconds.
func (r Report) ElapsedMs() float64 {
	return float64(r.Elapsed) / float64(time.Millisecond)
}
