package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	ErrPoolStarted    = errors.New("pool already started")
	ErrPoolNotStarted = errors.New("pool not started")
	ErrPoolShutdown   = errors.New("pool shut down")
	ErrInboxFull      = errors.New("unit inbox full")
	ErrUnknownUnit    = errors.New("unknown unit")
)

// Pool owns a set of compute units for one session. A Pool is started once
// and shut down once; sessions create a fresh Pool.
type Pool struct {
	config *poolConfig
	mu     sync.RWMutex
	state  *poolState

	reports chan Report
	faults  chan error
}

// poolState holds the runtime state of a started pool.
type poolState struct {
	cancel   context.CancelFunc
	started  atomic.Bool
	shutdown atomic.Bool
	active   atomic.Int64
	units    []*unit
	done     chan struct{} // closed when every unit goroutine has returned
}

// NewPool creates an unstarted pool.
func NewPool(opts ...PoolOption) *Pool {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Pool{
		config:  cfg,
		reports: make(chan Report, cfg.reportBuffer),
		faults:  make(chan error, 1),
	}
}

// Start spawns n units and sends each a start message at the given
// intensity. It returns how many units were spawned.
func (p *Pool) Start(ctx context.Context, n int, intensity float64) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != nil {
		return 0, ErrPoolStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	state := &poolState{
		cancel: cancel,
		done:   make(chan struct{}),
		units:  make([]*unit, 0, n),
	}
	p.state = state
	state.started.Store(true)

	var g errgroup.Group
	for i := range n {
		u := newUnit(i, p.reports, p.config)
		state.units = append(state.units, u)
		state.active.Add(1)

		g.Go(func() error {
			defer state.active.Add(-1)
			err := u.run(ctx)
			if err != nil {
				p.config.logger.Error("compute unit fault", "unit", u.id, "err", err)
				select {
				case p.faults <- err:
				default:
				}
			}
			return err
		})

		_ = p.deliver(u, Start(intensity))
	}

	go func() {
		_ = g.Wait()
		close(state.done)
	}()

	p.config.logger.Debug("compute units started", "units", n, "intensity", intensity)
	return n, nil
}

// Reports returns the channel every unit sends its stats on.
func (p *Pool) Reports() <-chan Report { return p.reports }

// Faults delivers the first unit fault. Later faults are logged only.
func (p *Pool) Faults() <-chan error { return p.faults }

// Active returns the number of unit goroutines still running.
func (p *Pool) Active() int {
	p.mu.RLock()
	state := p.state
	p.mu.RUnlock()
	if state == nil {
		return 0
	}
	return int(state.active.Load())
}

// Send delivers m to a single unit without blocking.
func (p *Pool) Send(unitID int, m Message) error {
	state, err := p.live()
	if err != nil {
		return err
	}
	if unitID < 0 || unitID >= len(state.units) {
		return fmt.Errorf("%w: %d", ErrUnknownUnit, unitID)
	}
	return p.deliver(state.units[unitID], m)
}

// Broadcast delivers m to every unit without blocking. It attempts every
// unit and returns the joined delivery errors.
func (p *Pool) Broadcast(m Message) error {
	state, err := p.live()
	if err != nil {
		return err
	}
	var errs []error
	for _, u := range state.units {
		if err := p.deliver(u, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown sends Stop to every unit, cancels their context and waits for
// all of them to return, bounded by timeout (0 waits forever).
func (p *Pool) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	state := p.state
	if state == nil || !state.started.Load() {
		p.mu.Unlock()
		return ErrPoolNotStarted
	}
	if !state.shutdown.CompareAndSwap(false, true) {
		p.mu.Unlock()
		return ErrPoolShutdown
	}
	p.mu.Unlock()

	for _, u := range state.units {
		_ = p.deliver(u, Stop)
	}
	state.cancel()

	return waitUntil(state.done, timeout)
}

func (p *Pool) live() (*poolState, error) {
	p.mu.RLock()
	state := p.state
	p.mu.RUnlock()

	if state == nil || !state.started.Load() {
		return nil, ErrPoolNotStarted
	}
	if state.shutdown.Load() {
		return nil, ErrPoolShutdown
	}
	return state, nil
}

func (p *Pool) deliver(u *unit, m Message) error {
	select {
	case u.inbox <- m:
		if p.config.onMessage != nil {
			p.config.onMessage(u.id, m)
		}
		return nil
	default:
		return fmt.Errorf("%w: unit %d dropped %s", ErrInboxFull, u.id, m.Kind)
	}
}
