package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utkarsh5026/heatload/config"
	"github.com/utkarsh5026/heatload/gfx"
	"github.com/utkarsh5026/heatload/internal/cpu"
	"github.com/utkarsh5026/heatload/memory"
	"github.com/utkarsh5026/heatload/telemetry"
	"github.com/utkarsh5026/heatload/worker"
)

// Session is the single owned record of session state. Only the
// controller's loop goroutine touches it; every subsystem operation gets
// it passed in explicitly.
type Session struct {
	opts   *options
	tuning config.Tuning
	logger *slog.Logger
	ctx    context.Context

	id        string
	state     State
	cfg       config.Config
	requested int
	caps      cpu.Caps

	startedAt     time.Time
	stoppedAt     time.Time
	deadline      time.Time
	remaining     time.Duration
	lastHeartbeat time.Time
	lastAggregate time.Time
	watchUnits    bool

	warning  string
	counters Counters

	flags *telemetry.FlagSet
	agg   *telemetry.Aggregator

	units  Units
	alloc  *memory.Allocator
	driver *gfx.Driver

	aggregateTicker *time.Ticker
	timerTicker     *time.Ticker
	watchdogTicker  *time.Ticker
	scrubTicker     *time.Ticker
	frameTicker     *time.Ticker
}

func newSession(ctx context.Context, o *options) *Session {
	t := o.tuning
	return &Session{
		opts:   o,
		tuning: t,
		logger: o.logger,
		ctx:    ctx,
		flags:  telemetry.NewFlagSet(),
		agg: telemetry.NewAggregator(telemetry.Options{
			ChartCapacity:          t.ChartCapacity,
			LowBusyThreshold:       t.LowBusyThreshold,
			LowBusyTicks:           t.LowBusyTicks,
			MinMeaningfulIntensity: t.MinMeaningfulIntensity,
		}),
	}
}

func (s *Session) start(cfg config.Config, now time.Time) error {
	if s.state != Idle {
		return fmt.Errorf("%w: start while %s", ErrInvalidTransition, s.state)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.flags.Reset()
	s.agg.Reset()
	s.warning = ""

	cfg, capped := s.tuning.Guard(cfg)
	for _, msg := range capped {
		s.guardrail(msg)
	}

	s.caps = s.opts.probe()
	if s.caps.Concurrency <= 0 {
		s.flags.Add(FlagUnsupported)
		s.warning = "concurrent execution is not supported on this host; nothing started"
		s.logger.Warn("session not started", "flag", FlagUnsupported)
		return ErrUnsupported
	}

	s.id = uuid.NewString()
	s.cfg = cfg
	s.requested = cfg.UnitCount
	s.startedAt = now
	s.stoppedAt = time.Time{}
	s.deadline = now.Add(cfg.Duration())
	s.remaining = cfg.Duration()
	s.lastHeartbeat = now
	s.lastAggregate = now
	s.logger = s.opts.logger.With("session", s.id)

	if n := min(cfg.UnitCount, s.caps.Concurrency); n > 0 {
		units := s.opts.poolFactory()(s.tuning, s.logger)
		if _, err := units.Start(s.ctx, n, cfg.Intensity); err != nil {
			s.logger.Error("compute units failed to start", "err", err)
			_ = units.Shutdown(s.tuning.ShutdownTimeout)
			return fmt.Errorf("start compute units: %w", err)
		}
		s.units = units
		s.watchUnits = true
	}

	s.alloc = memory.New(
		memory.WithChunkBytes(s.tuning.ChunkBytes),
		memory.WithScrub(s.tuning.ScrubStride, s.tuning.ReverseEvery),
		memory.WithLimit(s.caps.AllocatableBytes),
		memory.WithAllocFunc(s.opts.allocFunc),
		memory.WithLogger(s.logger),
	)
	if res := s.alloc.Allocate(cfg.MemoryTargetBytes); res.Degraded() {
		s.degrade(FlagMemoryDegraded, fmt.Sprintf("memory target not reached: holding %d of %d bytes", res.Bytes, res.Requested))
	}

	s.state = Running
	s.counters.Starts++
	s.armRunning(now)
	arm(&s.aggregateTicker, s.tuning.AggregateInterval)
	arm(&s.timerTicker, s.tuning.TimerInterval)

	s.logger.Info("session started",
		"state", s.state,
		"units", s.requested,
		"intensity", cfg.Intensity,
		"bytes", s.alloc.Bytes(),
		"graphics", cfg.GraphicsIntensity,
		"duration", cfg.Duration(),
	)
	return nil
}

// armRunning brings up the subsystems that exist only while Running.
func (s *Session) armRunning(now time.Time) {
	if s.watchUnits {
		arm(&s.watchdogTicker, s.tuning.WatchdogInterval)
	}

	if s.alloc != nil && s.alloc.Bytes() > 0 {
		s.alloc.StartScrub(now)
		arm(&s.scrubTicker, s.tuning.ScrubInterval)
	}

	if s.cfg.GraphicsIntensity > 0 {
		s.startGraphics()
	}
}

func (s *Session) startGraphics() {
	d := gfx.NewDriver(s.opts.device, s.cfg.GraphicsIntensity,
		gfx.WithDrawsAtFullIntensity(s.tuning.DrawsAtFullIntensity),
		gfx.WithLogger(s.logger),
	)
	if res := d.Init(); !res.OK() {
		s.degrade(telemetry.FlagGraphicsUnavailable, telemetry.FlagGraphicsUnavailable)
		return
	}
	d.SetScale(s.cfg.Intensity)
	s.driver = d
	arm(&s.frameTicker, s.tuning.FrameInterval)
}

func (s *Session) stopGraphics() {
	disarm(&s.frameTicker)
	if s.driver != nil {
		s.driver.Destroy()
		s.driver = nil
	}
}

func (s *Session) pause() error {
	if s.state != Running {
		return fmt.Errorf("%w: pause while %s", ErrInvalidTransition, s.state)
	}
	if s.units != nil {
		if err := s.units.Broadcast(worker.Pause); err != nil {
			s.logger.Warn("pause not delivered to every unit", "err", err)
		}
	}
	disarm(&s.watchdogTicker)
	disarm(&s.scrubTicker)
	s.alloc.StopScrub()
	s.stopGraphics()

	s.state = Paused
	s.logger.Info("session paused", "state", s.state)
	return nil
}

func (s *Session) resume(now time.Time) error {
	if s.state != Paused {
		return fmt.Errorf("%w: resume while %s", ErrInvalidTransition, s.state)
	}
	if s.units != nil {
		if err := s.units.Broadcast(worker.Resume); err != nil {
			s.logger.Warn("resume not delivered to every unit", "err", err)
		}
	}
	s.lastHeartbeat = now
	s.state = Running
	s.armRunning(now)
	s.logger.Info("session resumed", "state", s.state)
	return nil
}

func (s *Session) updateIntensity(v float64) error {
	if err := config.ValidateIntensity(v); err != nil {
		return err
	}
	if s.state != Running {
		return fmt.Errorf("%w: update intensity while %s", ErrInvalidTransition, s.state)
	}
	if v > s.tuning.MaxSafeIntensity {
		v = s.tuning.MaxSafeIntensity
		s.guardrail(config.NoteIntensityCapped)
	}

	if s.units != nil {
		if err := s.units.Broadcast(worker.Update(v)); err != nil {
			s.logger.Warn("intensity update not delivered to every unit", "err", err)
		}
	}
	if s.driver != nil {
		s.driver.SetScale(v)
	}
	s.cfg.Intensity = v
	s.logger.Debug("intensity updated", "intensity", v)
	return nil
}

// stop tears everything down. It is idempotent and leaves no unit, ticker,
// buffer or surface alive.
func (s *Session) stop(reason string, now time.Time) {
	disarm(&s.aggregateTicker)
	disarm(&s.timerTicker)
	disarm(&s.watchdogTicker)
	disarm(&s.scrubTicker)
	s.stopGraphics()

	if s.units != nil {
		if err := s.units.Shutdown(s.tuning.ShutdownTimeout); err != nil && !errors.Is(err, worker.ErrPoolShutdown) {
			// The goroutines may outlive the session; say so instead of
			// reporting a clean stop.
			s.counters.StuckShutdowns++
			s.flags.Add(FlagUnitsStuck)
			s.warning = fmt.Sprintf("%s: %v", FlagUnitsStuck, err)
			s.logger.Error("compute units did not shut down", "flag", FlagUnitsStuck, "err", err)
		}
		s.units = nil
	}
	s.watchUnits = false

	if s.alloc != nil {
		s.alloc.StopScrub()
		s.alloc.Release()
		s.alloc = nil
	}

	if s.state == Idle {
		return
	}
	s.state = Idle
	s.stoppedAt = now
	s.counters.Stops++
	s.logger.Info("session stopped", "state", s.state, "reason", reason)
}

func (s *Session) report(r worker.Report, now time.Time) {
	s.lastHeartbeat = now
	s.agg.Add(r)
}

func (s *Session) fault(err error, now time.Time) {
	s.counters.WorkerFaults++
	s.flags.Add(FlagWorkerFault)
	s.warning = fmt.Sprintf("compute unit failed, session stopped: %v", err)
	s.logger.Error("compute unit fault", "flag", FlagWorkerFault, "err", err)
	s.stop("worker fault", now)
}

func (s *Session) aggregate(now time.Time) {
	window := now.Sub(s.lastAggregate)
	s.lastAggregate = now

	active := 0
	if s.units != nil {
		active = s.units.Active()
	}
	s.agg.Tick(telemetry.Tick{
		Window:            window,
		RequestedUnits:    s.requested,
		ActiveUnits:       active,
		Cores:             s.caps.Cores,
		Intensity:         s.cfg.Intensity,
		Paused:            s.state == Paused,
		GraphicsRequested: s.state == Running && s.cfg.GraphicsIntensity > 0,
		GraphicsLive:      s.driver != nil && s.driver.Live(),
	}, s.flags)
}

func (s *Session) timerTick(now time.Time) {
	s.remaining = max(0, s.deadline.Sub(now))
	if s.remaining > 0 {
		return
	}
	s.counters.AutoStops++
	s.warning = WarnAutoStop
	s.logger.Warn("auto-stop reached", "duration", s.cfg.Duration())
	s.stop("auto-stop", now)
}

func (s *Session) watchdogTick(now time.Time) {
	if s.state != Running || !s.watchUnits {
		return
	}
	age := now.Sub(s.lastHeartbeat)
	if age <= s.tuning.StallThreshold {
		return
	}
	s.counters.StallTrips++
	s.flags.Add(FlagStalled)
	s.warning = fmt.Sprintf("stalled: no compute unit reported for %s, session stopped", age.Round(time.Millisecond))
	s.logger.Error("compute units stalled", "flag", FlagStalled, "age", age)
	s.stop("stalled", now)
}

func (s *Session) scrub(now time.Time) {
	if s.alloc != nil {
		s.alloc.Scrub(now)
	}
}

func (s *Session) frame(now time.Time) {
	if s.driver != nil {
		s.driver.Frame(now)
	}
}

func (s *Session) degrade(flag, warning string) {
	if s.flags.Add(flag) {
		s.counters.Degradations++
	}
	s.warning = warning
	s.logger.Warn("subsystem degraded", "flag", flag)
}

func (s *Session) guardrail(msg string) {
	s.counters.GuardrailTrips++
	s.warning = msg
	s.logger.Warn("guardrail triggered", "reason", msg)
}

func (s *Session) snapshot(now time.Time) Snapshot {
	snap := Snapshot{
		ID:              s.id,
		State:           s.state,
		Config:          s.cfg,
		UnitsRequested:  s.requested,
		Throughput:      s.agg.Throughput(),
		CPUBusy:         s.agg.CPUBusy(),
		MemoryRequested: s.cfg.MemoryTargetBytes,
		Warning:         s.warning,
		Flags:           s.flags.List(),
		Chart:           s.agg.Chart(),
		Counters:        s.counters,
		Caps:            s.caps,
	}
	if s.units != nil {
		snap.UnitsActive = s.units.Active()
	}
	if s.alloc != nil {
		snap.MemoryBytes = s.alloc.Bytes()
		snap.MemoryChunks = s.alloc.Chunks()
		snap.TouchRate = s.alloc.TouchRate()
	}
	if s.driver != nil {
		snap.GraphicsLive = s.driver.Live()
		snap.GraphicsActivity = s.driver.Activity()
		snap.FPS = s.driver.FPS()
		snap.Draws = s.driver.Draws()
	}

	switch {
	case s.startedAt.IsZero():
	case s.state == Idle:
		snap.ElapsedSeconds = s.stoppedAt.Sub(s.startedAt).Seconds()
	default:
		snap.ElapsedSeconds = now.Sub(s.startedAt).Seconds()
		snap.RemainingSeconds = s.remaining.Seconds()
	}
	return snap
}

// live reports whether anything owned by the session is still running.
func (s *Session) live() bool {
	return s.units != nil || s.alloc != nil || s.driver != nil ||
		s.aggregateTicker != nil || s.timerTicker != nil || s.watchdogTicker != nil ||
		s.scrubTicker != nil || s.frameTicker != nil
}

func arm(t **time.Ticker, d time.Duration) {
	if *t != nil {
		(*t).Reset(d)
		return
	}
	*t = time.NewTicker(d)
}

func disarm(t **time.Ticker) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func tick(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
