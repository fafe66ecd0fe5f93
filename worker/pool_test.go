package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testPool(opts ...PoolOption) *Pool {
	base := []PoolOption{
		WithCycle(20 * time.Millisecond),
		WithWorkPerCycle(50_000),
	}
	return NewPool(append(base, opts...)...)
}

func waitReport(t *testing.T, p *Pool, timeout time.Duration) Report {
	t.Helper()
	select {
	case r := <-p.Reports():
		return r
	case <-time.After(timeout):
		t.Fatalf("no report within %v", timeout)
		return Report{}
	}
}

func TestPool_Start(t *testing.T) {
	t.Run("spawns units that report", func(t *testing.T) {
		p := testPool()
		n, err := p.Start(context.Background(), 3, 0.5)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		defer p.Shutdown(time.Second)

		if n != 3 {
			t.Fatalf("expected 3 units, got %d", n)
		}
		if p.Active() != 3 {
			t.Errorf("expected 3 active units, got %d", p.Active())
		}

		seen := map[int]bool{}
		deadline := time.After(2 * time.Second)
		for len(seen) < 3 {
			select {
			case r := <-p.Reports():
				if r.Iterations < 0 || r.Elapsed < 0 {
					t.Fatalf("negative report: %+v", r)
				}
				seen[r.Unit] = true
			case <-deadline:
				t.Fatalf("only %d units reported", len(seen))
			}
		}
	})

	t.Run("double start fails", func(t *testing.T) {
		p := testPool()
		if _, err := p.Start(context.Background(), 1, 0.1); err != nil {
			t.Fatalf("first start failed: %v", err)
		}
		defer p.Shutdown(time.Second)

		if _, err := p.Start(context.Background(), 1, 0.1); !errors.Is(err, ErrPoolStarted) {
			t.Errorf("expected ErrPoolStarted, got %v", err)
		}
	})

	t.Run("zero units", func(t *testing.T) {
		p := testPool()
		n, err := p.Start(context.Background(), 0, 1)
		if err != nil || n != 0 {
			t.Fatalf("expected 0 units and no error, got %d, %v", n, err)
		}
		if err := p.Shutdown(time.Second); err != nil {
			t.Errorf("shutdown failed: %v", err)
		}
	})

	t.Run("zero intensity still reports", func(t *testing.T) {
		p := testPool()
		if _, err := p.Start(context.Background(), 1, 0); err != nil {
			t.Fatal(err)
		}
		defer p.Shutdown(time.Second)

		r := waitReport(t, p, time.Second)
		if r.Iterations != 0 {
			t.Errorf("expected 0 iterations at zero intensity, got %d", r.Iterations)
		}
	})
}

func TestPool_Shutdown(t *testing.T) {
	t.Run("stops every unit", func(t *testing.T) {
		p := testPool()
		if _, err := p.Start(context.Background(), 4, 1); err != nil {
			t.Fatal(err)
		}
		waitReport(t, p, time.Second)

		if err := p.Shutdown(time.Second); err != nil {
			t.Fatalf("shutdown failed: %v", err)
		}
		if p.Active() != 0 {
			t.Errorf("expected 0 active units after shutdown, got %d", p.Active())
		}
	})

	t.Run("shutdown without start fails", func(t *testing.T) {
		p := testPool()
		if err := p.Shutdown(time.Second); !errors.Is(err, ErrPoolNotStarted) {
			t.Errorf("expected ErrPoolNotStarted, got %v", err)
		}
	})

	t.Run("double shutdown fails", func(t *testing.T) {
		p := testPool()
		if _, err := p.Start(context.Background(), 1, 0.1); err != nil {
			t.Fatal(err)
		}
		if err := p.Shutdown(time.Second); err != nil {
			t.Fatal(err)
		}
		if err := p.Shutdown(time.Second); !errors.Is(err, ErrPoolShutdown) {
			t.Errorf("expected ErrPoolShutdown, got %v", err)
		}
	})

	t.Run("broadcast after shutdown fails", func(t *testing.T) {
		p := testPool()
		if _, err := p.Start(context.Background(), 1, 0.1); err != nil {
			t.Fatal(err)
		}
		_ = p.Shutdown(time.Second)
		if err := p.Broadcast(Update(0.5)); !errors.Is(err, ErrPoolShutdown) {
			t.Errorf("expected ErrPoolShutdown, got %v", err)
		}
	})
}

func TestPool_PauseResume(t *testing.T) {
	var cycles atomic.Int64
	p := testPool(WithOnCycleEnd(func(Report) { cycles.Add(1) }))
	if _, err := p.Start(context.Background(), 2, 0.2); err != nil {
		t.Fatal(err)
	}
	defer p.Shutdown(time.Second)

	waitReport(t, p, time.Second)

	if err := p.Broadcast(Pause); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	// drain anything in flight, then expect silence
	time.Sleep(60 * time.Millisecond)
	for len(p.Reports()) > 0 {
		<-p.Reports()
	}
	before := cycles.Load()
	time.Sleep(100 * time.Millisecond)
	if after := cycles.Load(); after != before {
		t.Errorf("units kept cycling while paused: %d -> %d", before, after)
	}
	if p.Active() != 2 {
		t.Errorf("paused units must stay alive, got %d active", p.Active())
	}

	if err := p.Broadcast(Resume); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	waitReport(t, p, time.Second)
}

func TestPool_UpdateKeepsUnitsAlive(t *testing.T) {
	var mu sync.Mutex
	var kinds []Kind
	p := testPool(WithOnMessage(func(_ int, m Message) {
		mu.Lock()
		kinds = append(kinds, m.Kind)
		mu.Unlock()
	}))
	if _, err := p.Start(context.Background(), 2, 0.1); err != nil {
		t.Fatal(err)
	}
	defer p.Shutdown(time.Second)

	for _, v := range []float64{0.2, 0.9, 0} {
		if err := p.Broadcast(Update(v)); err != nil {
			t.Fatalf("update failed: %v", err)
		}
	}
	waitReport(t, p, time.Second)

	mu.Lock()
	defer mu.Unlock()
	starts, updates := 0, 0
	for _, k := range kinds {
		switch k {
		case KindStart:
			starts++
		case KindUpdate:
			updates++
		case KindStop:
			t.Errorf("update must not stop a unit")
		}
	}
	if starts != 2 || updates != 6 {
		t.Errorf("expected 2 starts and 6 updates, got %d and %d", starts, updates)
	}
}

func TestPool_FaultIsReported(t *testing.T) {
	p := testPool(WithBeforeCycle(func(unit int) {
		if unit == 1 {
			panic("boom")
		}
	}))
	if _, err := p.Start(context.Background(), 2, 0.1); err != nil {
		t.Fatal(err)
	}
	defer p.Shutdown(time.Second)

	select {
	case err := <-p.Faults():
		if !strings.Contains(err.Error(), "unit 1 panic: boom") {
			t.Errorf("unexpected fault: %v", err)
		}
		if !strings.Contains(err.Error(), "stack trace") {
			t.Errorf("fault should carry a stack trace")
		}
	case <-time.After(time.Second):
		t.Fatal("expected a fault")
	}

	deadline := time.Now().Add(time.Second)
	for p.Active() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.Active() != 1 {
		t.Errorf("expected the faulted unit to exit, %d active", p.Active())
	}
}

func TestPool_Send(t *testing.T) {
	p := testPool()
	if _, err := p.Start(context.Background(), 2, 0.1); err != nil {
		t.Fatal(err)
	}
	defer p.Shutdown(time.Second)

	if err := p.Send(0, Stop); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := p.Send(5, Stop); !errors.Is(err, ErrUnknownUnit) {
		t.Errorf("expected ErrUnknownUnit, got %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for p.Active() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.Active() != 1 {
		t.Errorf("expected one unit left after stop, got %d", p.Active())
	}
}

func TestUnitDutyCycle(t *testing.T) {
	cfg := defaultConfig()
	cfg.cycle = 50 * time.Millisecond
	cfg.workPerCycle = 1 << 40 // time budget always binds first

	u := newUnit(0, nil, cfg)
	u.intensity = 0.2
	r := u.cycle()

	// busy time tracks intensity*cycle, allowing for one clock-check batch
	if r.Elapsed < 9*time.Millisecond || r.Elapsed > 40*time.Millisecond {
		t.Errorf("expected ~10ms busy at intensity 0.2, got %v", r.Elapsed)
	}
	if r.Iterations <= 0 {
		t.Errorf("expected iterations, got %d", r.Iterations)
	}
}

func TestPool_DutyCycleHoldsAcrossIntensity(t *testing.T) {
	const (
		cycle   = 20 * time.Millisecond
		windows = 20
	)

	for _, intensity := range []float64{0.1, 0.9} {
		t.Run(fmt.Sprintf("intensity %.1f", intensity), func(t *testing.T) {
			var cycles atomic.Int64
			p := NewPool(
				WithCycle(cycle),
				WithWorkPerCycle(1<<40), // time budget always binds first
				WithReportBuffer(4*windows),
				WithOnCycleEnd(func(Report) { cycles.Add(1) }),
			)
			if _, err := p.Start(context.Background(), 1, intensity); err != nil {
				t.Fatal(err)
			}
			time.Sleep(windows * cycle)
			got := cycles.Load()
			_ = p.Shutdown(time.Second)

			// A fixed delay after each cycle would give about
			// windows/(1+intensity) cycles, 10 or fewer at 0.9.
			if got < windows*3/4 || got > windows+2 {
				t.Errorf("expected about %d cycles at intensity %.1f, got %d", windows, intensity, got)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	want := map[Kind]string{KindStart: "start", KindUpdate: "update", KindPause: "pause", KindResume: "resume", KindStop: "stop"}
	for k, s := range want {
		if k.String() != s {
			t.Errorf("expected %q, got %q", s, k.String())
		}
	}
}
