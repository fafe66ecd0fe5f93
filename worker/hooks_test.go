package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// TestHooksBasic checks that every cycle is bracketed by the before and
// end hooks, per unit.
func TestHooksBasic(t *testing.T) {
	var mu sync.Mutex
	events := map[int][]string{}

	p := testPool(
		WithBeforeCycle(func(unit int) {
			mu.Lock()
			events[unit] = append(events[unit], "before")
			mu.Unlock()
		}),
		WithOnCycleEnd(func(r Report) {
			mu.Lock()
			events[r.Unit] = append(events[r.Unit], fmt.Sprintf("end:%t", r.Iterations > 0))
			mu.Unlock()
		}),
	)
	if _, err := p.Start(context.Background(), 2, 0.2); err != nil {
		t.Fatal(err)
	}

	for range 4 {
		waitReport(t, p, time.Second)
	}
	if err := p.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()

	if len(events) == 0 {
		t.Fatal("no hook events recorded")
	}
	for unit, evs := range events {
		if len(evs) < 2 {
			t.Errorf("unit %d: expected at least one full cycle, got %v", unit, evs)
			continue
		}
		// A shutdown can land between the two hooks, so only check
		// complete pairs.
		for i := 0; i+1 < len(evs); i += 2 {
			if evs[i] != "before" || evs[i+1] != "end:true" {
				t.Errorf("unit %d: unexpected hook order %v", unit, evs)
				break
			}
		}
	}
}

// TestHooksOnMessage checks that every delivered control message is
// observed, in send order per unit.
func TestHooksOnMessage(t *testing.T) {
	var mu sync.Mutex
	seen := map[int][]Kind{}

	p := testPool(WithOnMessage(func(unit int, m Message) {
		mu.Lock()
		seen[unit] = append(seen[unit], m.Kind)
		mu.Unlock()
	}))
	if _, err := p.Start(context.Background(), 3, 0.1); err != nil {
		t.Fatal(err)
	}

	for _, m := range []Message{Update(0.3), Pause, Resume} {
		if err := p.Broadcast(m); err != nil {
			t.Fatalf("broadcast %s: %v", m.Kind, err)
		}
	}
	if err := p.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()

	want := []Kind{KindStart, KindUpdate, KindPause, KindResume, KindStop}
	for unit := range 3 {
		got := seen[unit]
		if len(got) != len(want) {
			t.Errorf("unit %d: expected %v, got %v", unit, want, got)
			continue
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("unit %d: expected %v, got %v", unit, want, got)
				break
			}
		}
	}
}

// TestHooksPanicInEndHook checks that a panicking hook is a unit fault and
// not a process crash.
func TestHooksPanicInEndHook(t *testing.T) {
	p := testPool(WithOnCycleEnd(func(r Report) {
		panic(fmt.Sprintf("end hook failed on unit %d", r.Unit))
	}))
	if _, err := p.Start(context.Background(), 1, 0.1); err != nil {
		t.Fatal(err)
	}
	defer p.Shutdown(time.Second)

	select {
	case err := <-p.Faults():
		if err == nil {
			t.Fatal("expected a fault error")
		}
	case <-time.After(time.Second):
		t.Fatal("expected a fault from the panicking hook")
	}
}
