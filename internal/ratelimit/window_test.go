package ratelimit

import (
	"fmt"
	"testing"
	"time"
)

// fakeClock is a settable time source for window tests.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestWindow(opts ...WindowOption) (*Window, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	defaults := []WindowOption{
		WithLimit(3, time.Minute),
		WithClock(clock.now),
	}
	all := append(defaults, opts...)
	return NewWindow(all...), clock
}

func TestWindowCheck_AdmitsUpToLimit(t *testing.T) {
	w, _ := newTestWindow()

	for i := 0; i < 3; i++ {
		res := w.Check("10.0.0.1")
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if want := 3 - (i + 1); res.Remaining != want {
			t.Fatalf("request %d: Remaining = %d, want %d", i+1, res.Remaining, want)
		}
	}

	res := w.Check("10.0.0.1")
	if res.Allowed {
		t.Fatal("request 4 should be denied")
	}
	if res.Remaining != 0 {
		t.Fatalf("denied Remaining = %d, want 0", res.Remaining)
	}
	if res.Limit != 3 {
		t.Fatalf("Limit = %d, want 3", res.Limit)
	}
}

func TestWindowCheck_ResetAtPointsToWindowEnd(t *testing.T) {
	w, clock := newTestWindow()
	start := clock.t

	res := w.Check("10.0.0.1")
	if want := start.Add(time.Minute); !res.ResetAt.Equal(want) {
		t.Fatalf("ResetAt = %v, want %v", res.ResetAt, want)
	}

	// the window is anchored at first sight, not per request
	clock.advance(20 * time.Second)
	res = w.Check("10.0.0.1")
	if want := start.Add(time.Minute); !res.ResetAt.Equal(want) {
		t.Fatalf("ResetAt after mid-window request = %v, want %v", res.ResetAt, want)
	}
}

func TestWindowCheck_ResetsAfterWindowElapses(t *testing.T) {
	w, clock := newTestWindow()

	for i := 0; i < 3; i++ {
		w.Check("10.0.0.1")
	}
	if w.Check("10.0.0.1").Allowed {
		t.Fatal("should be denied at limit")
	}

	clock.advance(time.Minute)

	res := w.Check("10.0.0.1")
	if !res.Allowed {
		t.Fatal("should be admitted in the new window")
	}
	if res.Remaining != 2 {
		t.Fatalf("Remaining = %d, want 2", res.Remaining)
	}
}

func TestWindowCheck_IdentitiesIndependent(t *testing.T) {
	w, _ := newTestWindow()

	for i := 0; i < 3; i++ {
		w.Check("10.0.0.1")
	}
	if w.Check("10.0.0.1").Allowed {
		t.Fatal("ip1 should be denied")
	}
	if !w.Check("10.0.0.2").Allowed {
		t.Fatal("ip2 should have its own window")
	}
}

func TestWindowCheck_EmptyIdentityIsAnonymous(t *testing.T) {
	w, _ := newTestWindow()

	// empty identities all share one bucket
	w.Check("")
	w.Check("")
	w.Check("")
	if w.Check("").Allowed {
		t.Fatal("anonymous bucket should be exhausted")
	}
	if !w.Check("10.0.0.1").Allowed {
		t.Fatal("named identity should be unaffected")
	}
}

func TestWindowOnDenied_CalledEveryDenial(t *testing.T) {
	var denied []string
	w, _ := newTestWindow(WithOnDenied(func(identity string) {
		denied = append(denied, identity)
	}))

	for i := 0; i < 3; i++ {
		w.Check("10.0.0.1")
	}
	w.Check("10.0.0.1")
	w.Check("10.0.0.1")

	if len(denied) != 2 {
		t.Fatalf("OnDenied called %d times, want 2", len(denied))
	}
	if denied[0] != "10.0.0.1" {
		t.Fatalf("OnDenied identity = %q", denied[0])
	}
}

func TestWindowEviction_OldestGoesFirst(t *testing.T) {
	var evicted []string
	w, clock := newTestWindow(
		WithMaxClients(3),
		WithOnEvicted(func(identity string) {
			evicted = append(evicted, identity)
		}),
	)

	// three identities, spaced so lastSeen ordering is unambiguous
	w.Check("10.0.0.1")
	clock.advance(time.Second)
	w.Check("10.0.0.2")
	clock.advance(time.Second)
	w.Check("10.0.0.3")
	clock.advance(time.Second)

	// a fourth identity forces the least-recently-seen out
	res := w.Check("10.0.0.4")
	if !res.Allowed {
		t.Fatal("new identity should be admitted after eviction")
	}
	if len(evicted) != 1 || evicted[0] != "10.0.0.1" {
		t.Fatalf("evicted = %v, want [10.0.0.1]", evicted)
	}

	// the evicted identity starts over with a fresh window
	res = w.Check("10.0.0.1")
	if !res.Allowed || res.Remaining != 2 {
		t.Fatalf("re-created identity: Allowed = %v, Remaining = %d", res.Allowed, res.Remaining)
	}
}

func TestWindowEviction_RefreshProtectsActive(t *testing.T) {
	var evicted []string
	w, clock := newTestWindow(
		WithMaxClients(2),
		WithOnEvicted(func(identity string) {
			evicted = append(evicted, identity)
		}),
	)

	w.Check("10.0.0.1")
	clock.advance(time.Second)
	w.Check("10.0.0.2")
	clock.advance(time.Second)
	w.Check("10.0.0.1") // refresh ip1, ip2 is now oldest
	clock.advance(time.Second)

	w.Check("10.0.0.3")
	if len(evicted) != 1 || evicted[0] != "10.0.0.2" {
		t.Fatalf("evicted = %v, want [10.0.0.2]", evicted)
	}
}

func TestWindowDefaults(t *testing.T) {
	w := NewWindow()

	if w.limit != 60 {
		t.Errorf("default limit = %d, want 60", w.limit)
	}
	if w.window != time.Minute {
		t.Errorf("default window = %v, want 1m", w.window)
	}
	if w.maxClients != 500 {
		t.Errorf("default maxClients = %d, want 500", w.maxClients)
	}
	if w.Limit() != 60 {
		t.Errorf("Limit() = %d, want 60", w.Limit())
	}
}

func TestWindow_ManyClientsStayBounded(t *testing.T) {
	w, _ := newTestWindow(WithMaxClients(10))

	for i := 0; i < 100; i++ {
		w.Check(fmt.Sprintf("10.0.0.%d", i))
	}

	w.mu.Lock()
	size := len(w.clients)
	w.mu.Unlock()
	if size != 10 {
		t.Fatalf("tracked clients = %d, want 10", size)
	}
}
