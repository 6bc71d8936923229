package ratelimit

import (
	"sync"
	"time"
)

// Result is the outcome of a window check. Denial is a first-class
// outcome, not an error: callers branch on Allowed.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the client's current window elapses. On denial
	// callers surface it as the retry-after hint.
	ResetAt time.Time
}

// client tracks one identity's counter inside its current window.
type client struct {
	count       int
	windowStart time.Time
	lastSeen    time.Time
}

// Window is a fixed-window request governor keyed by client identity.
type Window struct {
	mu      sync.Mutex
	clients map[string]*client

	limit      int
	window     time.Duration
	maxClients int

	now func() time.Time

	// OnDenied is called on every denied check, used for incrementing
	// prometheus counters.
	OnDenied func(identity string)

	// OnEvicted is called when a tracked identity is evicted to make
	// room for a new one.
	OnEvicted func(identity string)
}

type WindowOption func(*Window)

// WithLimit sets requests per window and the window duration.
func WithLimit(limit int, window time.Duration) WindowOption {
	return func(w *Window) {
		w.limit = limit
		w.window = window
	}
}

// WithMaxClients bounds how many identities are tracked at once.
func WithMaxClients(n int) WindowOption {
	return func(w *Window) { w.maxClients = n }
}

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) WindowOption {
	return func(w *Window) { w.now = now }
}

// WithOnDenied sets a callback for every denied check.
func WithOnDenied(fn func(identity string)) WindowOption {
	return func(w *Window) { w.OnDenied = fn }
}

// WithOnEvicted sets a callback for identity evictions.
func WithOnEvicted(fn func(identity string)) WindowOption {
	return func(w *Window) { w.OnEvicted = fn }
}

// NewWindow creates a governor allowing 60 requests per 60s window for
// up to 500 tracked identities unless configured otherwise.
func NewWindow(opts ...WindowOption) *Window {
	w := &Window{
		clients:    make(map[string]*client),
		limit:      60,
		window:     time.Minute,
		maxClients: 500,
		now:        time.Now,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Check records one request for identity and reports whether it is
// admitted. Counter increment and window reset are atomic across
// concurrent callers for the same identity.
func (w *Window) Check(identity string) Result {
	if identity == "" {
		identity = "anonymous"
	}
	now := w.now()

	w.mu.Lock()

	c, ok := w.clients[identity]
	if !ok {
		if len(w.clients) >= w.maxClients {
			w.evictOldestLocked()
		}
		c = &client{windowStart: now}
		w.clients[identity] = c
	} else if now.Sub(c.windowStart) >= w.window {
		// window elapsed, reset lazily
		c.count = 0
		c.windowStart = now
	}
	c.lastSeen = now

	resetAt := c.windowStart.Add(w.window)
	if c.count >= w.limit {
		w.mu.Unlock()
		if w.OnDenied != nil {
			w.OnDenied(identity)
		}
		return Result{Allowed: false, Limit: w.limit, Remaining: 0, ResetAt: resetAt}
	}

	c.count++
	remaining := w.limit - c.count
	w.mu.Unlock()

	return Result{Allowed: true, Limit: w.limit, Remaining: remaining, ResetAt: resetAt}
}

// Limit returns the per-window request limit.
func (w *Window) Limit() int { return w.limit }

// evictOldestLocked drops the least-recently-seen identity. Linear
// scan is fine at the default bound of 500.
func (w *Window) evictOldestLocked() {
	var oldest string
	var oldestSeen time.Time
	first := true
	for id, c := range w.clients {
		if first || c.lastSeen.Before(oldestSeen) {
			oldest = id
			oldestSeen = c.lastSeen
			first = false
		}
	}
	if first {
		return
	}
	delete(w.clients, oldest)
	if w.OnEvicted != nil {
		w.OnEvicted(oldest)
	}
}
