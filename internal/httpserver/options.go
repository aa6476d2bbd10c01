package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/1a11/billard/internal/health"
	"github.com/1a11/billard/internal/httpmw"
	"github.com/1a11/billard/internal/log"
)

type Options struct {
	Logger log.Logger
	Port   int

	Health    health.Probe
	Readiness health.Probe

	// APIRoutes mounts the read API and the admin mutation routes.
	APIRoutes func(chi.Router)
	// SiteHandler serves everything no route matched.
	SiteHandler http.Handler

	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions
	MaxBodyBytes int64 // default 1 MiB
}
