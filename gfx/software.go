package gfx

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// DefaultShader paints a moving interference pattern. Its output is never
// displayed; it exists to keep the renderer busy.
const DefaultShader = `abs((x - w / 2) * (y - h / 2) - t * 60) * 0.25`

// shaderEnv is the per-pixel input of a program.
type shaderEnv struct {
	X float64 `expr:"x"`
	Y float64 `expr:"y"`
	T float64 `expr:"t"`
	W float64 `expr:"w"`
	H float64 `expr:"h"`
}

// SoftwareDevice renders on a dedicated goroutine per surface, standing in
// for an accelerator on hosts where none is reachable from Go.
type SoftwareDevice struct {
	Width, Height int
	// QueueDepth bounds pending draws per surface.
	QueueDepth int
}

// NewSoftwareDevice returns a device with a small framebuffer.
func NewSoftwareDevice() *SoftwareDevice {
	return &SoftwareDevice{Width: 64, Height: 64, QueueDepth: 64}
}

func (d *SoftwareDevice) Name() string { return "software" }

func (d *SoftwareDevice) NewSurface() (Surface, error) {
	if d.Width <= 0 || d.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d framebuffer", ErrNoSurface, d.Width, d.Height)
	}
	s := &softwareSurface{
		width:  d.Width,
		height: d.Height,
		pixels: make([]uint8, d.Width*d.Height),
		queue:  make(chan *softwareProgram, max(1, d.QueueDepth)),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		epoch:  time.Now(),
	}
	s.lastBusy.Store(time.Now().UnixNano())
	go s.render()
	return s, nil
}

type softwareProgram struct {
	src     string
	program *vm.Program
}

func (p *softwareProgram) Source() string { return p.src }

type softwareSurface struct {
	width, height int
	pixels        []uint8 // owned by the render goroutine
	epoch         time.Time

	queue chan *softwareProgram
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once

	released atomic.Bool
	busyNs   atomic.Int64
	lastBusy atomic.Int64
	frames   atomic.Int64
}

func (s *softwareSurface) Compile(src string) (Program, error) {
	if s.released.Load() {
		return nil, ErrReleased
	}
	program, err := expr.Compile(src, expr.Env(shaderEnv{}), expr.AsFloat64())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProgramBuild, err)
	}
	return &softwareProgram{src: src, program: program}, nil
}

func (s *softwareSurface) Submit(p Program, draws int) int {
	sp, ok := p.(*softwareProgram)
	if !ok || s.released.Load() {
		return 0
	}
	accepted := 0
	for range draws {
		select {
		case s.queue <- sp:
			accepted++
		default:
			return accepted
		}
	}
	return accepted
}

func (s *softwareSurface) Busy() float64 {
	now := time.Now().UnixNano()
	prev := s.lastBusy.Swap(now)
	busy := s.busyNs.Swap(0)
	if window := now - prev; window > 0 {
		return min(1, float64(busy)/float64(window))
	}
	return 0
}

func (s *softwareSurface) Release() {
	s.once.Do(func() {
		s.released.Store(true)
		close(s.quit)
		<-s.done
	})
}

// render is the surface's draw loop. A draw shades every pixel once.
func (s *softwareSurface) render() {
	defer close(s.done)

	var machine vm.VM
	env := shaderEnv{W: float64(s.width), H: float64(s.height)}

	for {
		select {
		case <-s.quit:
			return
		case p := <-s.queue:
			start := time.Now()
			env.T = start.Sub(s.epoch).Seconds()
			s.shade(&machine, p, &env)
			s.busyNs.Add(int64(time.Since(start)))
			s.frames.Add(1)
		}
	}
}

func (s *softwareSurface) shade(machine *vm.VM, p *softwareProgram, env *shaderEnv) {
	for y := 0; y < s.height; y++ {
		env.Y = float64(y)
		for x := 0; x < s.width; x++ {
			env.X = float64(x)
			out, err := machine.Run(p.program, *env)
			if err != nil {
				continue
			}
			if v, ok := out.(float64); ok {
				s.pixels[y*s.width+x] = uint8(int64(v) & 0xff)
			}
		}
	}
}
