// Package nonce remembers recently used request nonces per credential so a
// captured authorization header cannot be replayed.
package nonce

import (
	"sync"
	"time"
)

const DefaultTTL = 60 * time.Second

// Cache is a time-bounded set of (credential id, nonce) pairs. Every call
// sweeps expired entries.
type Cache struct {
	mu      sync.Mutex
	entries map[string]time.Time

	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	// OnCapacity is called when a fresh nonce is refused because the cache
	// is full after the sweep
	OnCapacity func()
}

type Option func(*Cache)

func WithTTL(d time.Duration) Option {
	return func(c *Cache) { c.ttl = d }
}

// WithMaxEntries caps the cache. A full cache refuses new nonces rather than
// forgetting live ones. 0 means unbounded.
func WithMaxEntries(n int) Option {
	return func(c *Cache) { c.maxEntries = n }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithOnCapacity(fn func()) Option {
	return func(c *Cache) { c.OnCapacity = fn }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]time.Time),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func key(credentialID, nonce string) string {
	return credentialID + "\x00" + nonce
}

// CheckAndRecord reports whether nonce was already used by credentialID
// within the TTL. An unseen nonce is recorded and false is returned. A replay
// returns true and leaves the original expiry untouched.
func (c *Cache) CheckAndRecord(credentialID, nonce string) (replay bool) {
	return c.CheckAndRecordUntil(credentialID, nonce, time.Time{})
}

// CheckAndRecordUntil is CheckAndRecord with a floor on the expiry: the
// nonce is remembered for the TTL or until keepUntil, whichever is later.
// Callers pass the last instant at which the request carrying the nonce
// could still be accepted.
func (c *Cache) CheckAndRecordUntil(credentialID, nonce string, keepUntil time.Time) (replay bool) {
	now := c.now()
	k := key(credentialID, nonce)

	c.mu.Lock()
	for ek, exp := range c.entries {
		if !now.Before(exp) {
			delete(c.entries, ek)
		}
	}

	if _, seen := c.entries[k]; seen {
		c.mu.Unlock()
		return true
	}

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.mu.Unlock()
		if c.OnCapacity != nil {
			c.OnCapacity()
		}
		return true
	}

	exp := now.Add(c.ttl)
	if keepUntil.After(exp) {
		exp = keepUntil
	}
	c.entries[k] = exp
	c.mu.Unlock()
	return false
}

// Len returns the number of live entries as of the last sweep.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) TTL() time.Duration { return c.ttl }
