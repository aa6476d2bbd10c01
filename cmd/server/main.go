package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/1a11/billard/internal/cfg"
	"github.com/1a11/billard/internal/dirwatch"
	"github.com/1a11/billard/internal/hawk"
	"github.com/1a11/billard/internal/health"
	"github.com/1a11/billard/internal/httpmw"
	"github.com/1a11/billard/internal/httpserver"
	"github.com/1a11/billard/internal/log"
	"github.com/1a11/billard/internal/metrics"
	"github.com/1a11/billard/internal/mutation"
	"github.com/1a11/billard/internal/nonce"
	"github.com/1a11/billard/internal/opshttp"
	"github.com/1a11/billard/internal/otelx"
	"github.com/1a11/billard/internal/prof"
	"github.com/1a11/billard/internal/ratelimit"
	"github.com/1a11/billard/internal/sitehandler"
	"github.com/1a11/billard/internal/sitehttp"
	"github.com/1a11/billard/internal/store"
	v "github.com/1a11/billard/internal/version"
	"github.com/1a11/billard/internal/webassets"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	conf, showVersion, err := loadConfig(os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(2)
	}
	if showVersion {
		fmt.Printf("%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%s)\n",
			vi.AppName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion, vi.Dirty())
		os.Exit(0)
	}
	if err := resolveSecrets(ctx, &conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Validate already checked both levels
	lvl, _ := log.ParseLevel(conf.LogLevel)
	stackLvl, _ := log.ParseLevel(conf.StacktraceLevel)
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Version:           vi.Version,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JSON:              conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application", append(vi.LogFields(),
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"content_dir", conf.ContentDir,
		"static_dir", conf.StaticDir,
		"hawk_id", conf.HawkID,
		"hawk_algorithm", conf.HawkAlgorithm,
		"clock_skew", conf.ClockSkew.String(),
		"nonce_ttl", conf.NonceTTL.String(),
		"mutation_limit", conf.MutationLimit,
		"mutation_window", conf.MutationWindow.String(),
		"trusted_proxy_hops", conf.TrustedProxyHops,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
	)...)

	m := metrics.New()
	m.SetBuildInfo("server", vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
		},
		OnActive: m.SetProfilingActive,
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer stopProf()

	// the collector runs on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed, continuing without tracing")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	for _, dir := range []string{conf.ArticlesDir(), conf.BooksDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			L.Error(ctx, err, "failed to create content directory", "dir", dir)
			os.Exit(1)
		}
	}
	articles := store.New(conf.ArticlesDir())
	library := store.NewLibrary(conf.BooksDir())

	if conf.WatchDir {
		collections := []struct {
			name  string
			dir   string
			count func(context.Context) (int, error)
		}{
			{"articles", conf.ArticlesDir(), func(ctx context.Context) (int, error) {
				items, err := articles.List(ctx)
				return len(items), err
			}},
			{"books", conf.BooksDir(), func(ctx context.Context) (int, error) {
				books, err := library.Books(ctx)
				return len(books), err
			}},
		}
		for _, c := range collections {
			w, err := dirwatch.Start(ctx, dirwatch.Options{
				Dir:        c.dir,
				Collection: c.name,
				Logger:     L,
				Count:      c.count,
				OnCount:    m.SetContentFiles,
				OnEvent:    m.IncContentEvent,
			})
			if err != nil {
				// reads rescan the directory, so only the gauge goes stale
				L.Warn(ctx, "content watcher not started", "collection", c.name, "error", err.Error())
				continue
			}
			defer w.Close()
		}
	}

	nonces := nonce.New(
		nonce.WithTTL(conf.NonceTTL),
		nonce.WithMaxEntries(conf.NonceMax),
		nonce.WithOnCapacity(func() {
			m.IncNonceCapacity()
			L.Warn(ctx, "nonce cache full, refusing signed requests until entries expire")
		}),
	)
	auth := hawk.NewAuthenticator(
		hawk.StaticCredentials{conf.HawkID: {
			ID:        conf.HawkID,
			Key:       []byte(conf.HawkKey),
			Algorithm: conf.HawkAlgorithm,
		}},
		nonces,
		hawk.WithSkew(conf.ClockSkew),
	)
	mutationLimiter := ratelimit.NewWindow(
		ratelimit.WithLimit(conf.MutationLimit, conf.MutationWindow),
		ratelimit.WithWindowOnFirstDenied(func(key string) {
			L.Warn(ctx, "mutation rate limit triggered", "key", key)
		}),
	)
	mutationAPI, err := mutation.NewAPI(mutation.Options{
		Logger:       L,
		Auth:         auth,
		Limiter:      mutationLimiter,
		Store:        articles,
		Metrics:      m,
		NonceCount:   nonces.Len,
		ExternalPort: conf.ExternalPort,
		MaxBodyBytes: conf.MaxBodyBytes,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create mutation api")
		os.Exit(1)
	}
	readAPI := sitehttp.NewAPI(articles, library, L)

	siteHandler, err := sitehandler.New(&sitehandler.Options{
		Logger:     L,
		Site:       sitehandler.NewDirSource(conf.StaticDir),
		FallbackFS: webassets.FallbackFS(),
	})
	if err != nil {
		L.Error(ctx, err, "failed to create site handler")
		os.Exit(1)
	}

	var gate health.ShutdownGate
	readiness := health.All(
		gate.Probe(),
		health.DirReadable("articles", articles.Ready),
	)

	siteLimiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.SiteRateLimit, conf.SiteRateBurst),
		ratelimit.WithOnDenied(func(string) { m.IncRateLimitDenied() }),
		// once per visitor until it is evicted
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
		}),
	)

	siteHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:    L,
		Port:      conf.HTTPPort,
		Health:    health.Fixed(true, ""),
		Readiness: readiness,
		APIRoutes: func(r chi.Router) {
			readAPI.RegisterRoutes(r)
			mutationAPI.RegisterRoutes(r)
		},
		SiteHandler:  siteHandler,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  siteLimiter.Middleware,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedProxyHops},
		MaxBodyBytes: conf.MaxBodyBytes,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start site http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// metrics, probes and pprof; refuses public peers
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
		OnPanic:     m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err.Error())
	}

	<-ctx.Done()
	stop()
	bg := context.Background()
	L.Info(bg, "shutdown signal received")

	// fail readiness so the load balancer stops routing here
	gate.Set("draining")
	L.Info(bg, "draining", "delay", conf.DrainDelay.String())
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(conf.DrainDelay):
		L.Info(bg, "drain period complete")
	case <-forceCh:
		L.Warn(bg, "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(bg, 10*time.Second)
	defer cancel()
	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(bg, err, "site http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(bg, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(bg, err, "otel shutdown")
	}
	L.Info(bg, "shutdown complete")
}
