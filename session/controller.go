// Package session supervises one synthetic load session at a time. A
// Controller owns the session state machine and a coordinating loop that
// runs every periodic task (aggregation, auto-stop timer, watchdog, memory
// scrub, graphics frames) and consumes compute unit reports. Nothing in the
// loop ever blocks on a compute unit.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/utkarsh5026/heatload/config"
	"github.com/utkarsh5026/heatload/worker"
)

var (
	// ErrInvalidTransition is returned when an operation is not valid in
	// the current state.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrUnsupported is returned by Start when the host cannot run compute
	// units concurrently. Nothing is started.
	ErrUnsupported = errors.New("concurrent execution unsupported")

	// ErrClosed is returned once the controller has been closed.
	ErrClosed = errors.New("session controller closed")
)

// Controller is the public surface of the session engine. All methods are
// safe for concurrent use; they are serialised through the loop goroutine,
// which is the only owner of the Session.
type Controller struct {
	opts    *options
	session *Session

	ops    chan func(*Session)
	cancel context.CancelFunc
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once

	mu    sync.Mutex
	final Snapshot
}

// New validates the tuning and starts the coordinating loop.
func New(opts ...Option) (*Controller, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if err := o.tuning.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		opts:    o,
		session: newSession(ctx, o),
		ops:     make(chan func(*Session)),
		cancel:  cancel,
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.loop()
	return c, nil
}

func (c *Controller) loop() {
	defer close(c.done)
	s := c.session

	for {
		var (
			reports <-chan worker.Report
			faults  <-chan error
		)
		if s.units != nil {
			reports = s.units.Reports()
			faults = s.units.Faults()
		}

		select {
		case <-c.quit:
			now := time.Now()
			s.stop("controller closed", now)
			c.mu.Lock()
			c.final = s.snapshot(now)
			c.mu.Unlock()
			c.cancel()
			return

		case fn := <-c.ops:
			fn(s)

		case r := <-reports:
			s.report(r, time.Now())

		case err := <-faults:
			s.fault(err, time.Now())

		case now := <-tick(s.aggregateTicker):
			s.aggregate(now)

		case now := <-tick(s.timerTicker):
			s.timerTick(now)

		case now := <-tick(s.watchdogTicker):
			s.watchdogTick(now)

		case now := <-tick(s.scrubTicker):
			s.scrub(now)

		case now := <-tick(s.frameTicker):
			s.frame(now)
		}
	}
}

// do runs fn on the loop goroutine and waits for it to finish.
func (c *Controller) do(fn func(*Session)) error {
	ran := make(chan struct{})
	select {
	case c.ops <- func(s *Session) {
		defer close(ran)
		fn(s)
	}:
	case <-c.done:
		return ErrClosed
	}
	<-ran
	return nil
}

// Start begins a session with cfg. It is valid only from Idle. A start
// that fails leaves the controller Idle.
func (c *Controller) Start(cfg config.Config) error {
	var err error
	if doErr := c.do(func(s *Session) { err = s.start(cfg, time.Now()) }); doErr != nil {
		return doErr
	}
	return err
}

// Pause suspends compute units and tears down graphics and the scrub task.
// Memory stays allocated.
func (c *Controller) Pause() error {
	var err error
	if doErr := c.do(func(s *Session) { err = s.pause() }); doErr != nil {
		return doErr
	}
	return err
}

// Resume restarts a paused session from its live config.
func (c *Controller) Resume() error {
	var err error
	if doErr := c.do(func(s *Session) { err = s.resume(time.Now()) }); doErr != nil {
		return doErr
	}
	return err
}

// Stop tears the session down from any state. Stopping an idle controller
// is a no-op. When Stop returns, no unit, ticker, buffer or surface is
// left alive.
func (c *Controller) Stop() error {
	return c.do(func(s *Session) { s.stop("requested", time.Now()) })
}

// UpdateIntensity changes the compute intensity of a running session
// without restarting any unit.
func (c *Controller) UpdateIntensity(v float64) error {
	var err error
	if doErr := c.do(func(s *Session) { err = s.updateIntensity(v) }); doErr != nil {
		return doErr
	}
	return err
}

// Snapshot returns a copy of the observable session state. After Close it
// returns the final snapshot.
func (c *Controller) Snapshot() Snapshot {
	var snap Snapshot
	if err := c.do(func(s *Session) { snap = s.snapshot(time.Now()) }); err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.final
	}
	return snap
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return c.Snapshot().State
}

// Health returns the liveness view. The controller is healthy as long as
// its loop is running.
func (c *Controller) Health() Health {
	snap := c.Snapshot()
	status := "ok"
	if c.closed() {
		status = "closed"
	}
	return Health{
		Status:   status,
		State:    snap.State,
		Warning:  snap.Warning,
		Counters: snap.Counters,
	}
}

// Ready reports "degraded" while any flag is raised, with the first flag
// as the reason.
func (c *Controller) Ready() Readiness {
	if c.closed() {
		return Readiness{Status: "degraded", Reason: ErrClosed.Error()}
	}
	snap := c.Snapshot()
	if len(snap.Flags) > 0 {
		return Readiness{Status: "degraded", Reason: snap.Flags[0]}
	}
	return Readiness{Status: "ready"}
}

// Close stops any session and ends the loop. It is safe to call more than
// once.
func (c *Controller) Close() error {
	c.once.Do(func() { close(c.quit) })
	<-c.done
	return nil
}

// Done is closed once the loop has exited.
func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
