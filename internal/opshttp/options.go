package opshttp

import (
	"net/http"

	"github.com/1a11/billard/internal/health"
)

// Options configures the admin listener.
type Options struct {
	Port        int // default 9000
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe
	// OnPanic runs after a recovered panic, e.g. to bump a counter.
	OnPanic func()
}
