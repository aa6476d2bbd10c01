package ratelimit

import (
	"sync"
	"time"
)

const (
	DefaultCeiling = 5
	DefaultWindow  = 60 * time.Second
)

// windowState is one key's counter for the current window
type windowState struct {
	count   int
	resetAt time.Time
	// logged is reset with the window so OnFirstDenied fires once per window
	logged bool
}

// Window is a fixed-window counter. Each key may be allowed at most ceiling
// times between a window's start and its resetAt; the next call after resetAt
// opens a fresh window. A client can therefore land up to 2x ceiling requests
// around a window boundary.
type Window struct {
	mu      sync.Mutex
	entries map[string]*windowState

	ceiling int
	window  time.Duration
	now     func() time.Time

	// lastPurge bounds how often Allow sweeps expired keys
	lastPurge time.Time

	// OnFirstDenied is called once per key per window on the first denial
	OnFirstDenied func(key string)

	// OnDenied is called on every denial
	OnDenied func(key string)
}

type WindowOption func(*Window)

// WithLimit sets the ceiling and the window length.
func WithLimit(ceiling int, window time.Duration) WindowOption {
	return func(w *Window) {
		w.ceiling = ceiling
		w.window = window
	}
}

func WithWindowClock(now func() time.Time) WindowOption {
	return func(w *Window) { w.now = now }
}

func WithWindowOnFirstDenied(fn func(key string)) WindowOption {
	return func(w *Window) { w.OnFirstDenied = fn }
}

func WithWindowOnDenied(fn func(key string)) WindowOption {
	return func(w *Window) { w.OnDenied = fn }
}

func NewWindow(opts ...WindowOption) *Window {
	w := &Window{
		entries: make(map[string]*windowState),
		ceiling: DefaultCeiling,
		window:  DefaultWindow,
		now:     time.Now,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Key builds the limiter key for a client and an operation so that each
// operation is throttled independently.
func Key(clientIP, op string) string {
	return clientIP + "|" + op
}

// Allow records one attempt for key and reports whether it fits in the
// current window.
func (w *Window) Allow(key string) bool {
	now := w.now()

	w.mu.Lock()
	w.purgeLocked(now)

	st, ok := w.entries[key]
	if !ok {
		st = &windowState{resetAt: now.Add(w.window)}
		w.entries[key] = st
	} else if now.After(st.resetAt) {
		st.count = 0
		st.logged = false
		st.resetAt = now.Add(w.window)
	}

	if st.count >= w.ceiling {
		first := !st.logged
		st.logged = true
		// hooks may log or touch metrics, keep them outside the lock
		w.mu.Unlock()
		if first && w.OnFirstDenied != nil {
			w.OnFirstDenied(key)
		}
		if w.OnDenied != nil {
			w.OnDenied(key)
		}
		return false
	}

	st.count++
	w.mu.Unlock()
	return true
}

// Len returns the number of tracked keys.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// purgeLocked drops keys whose window has ended, at most once per window.
func (w *Window) purgeLocked(now time.Time) {
	if now.Sub(w.lastPurge) < w.window {
		return
	}
	w.lastPurge = now
	for k, st := range w.entries {
		if now.After(st.resetAt) {
			delete(w.entries, k)
		}
	}
}
