package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/1a11/billard/internal/cryptoutil"
	"github.com/1a11/billard/internal/log"
)

// EnvPrefix namespaces every flag's environment variable.
const EnvPrefix = "BILLARD_"

type App struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort         int
	AdminPort        int
	ExternalPort     int
	TrustedProxyHops int
	SiteRateLimit    float64
	SiteRateBurst    int
	MaxBodyBytes     int64

	ContentDir string
	StaticDir  string
	WatchDir   bool

	HawkID          string
	HawkKey         string
	HawkKeySSMParam string
	HawkAlgorithm   string
	ClockSkew       time.Duration
	NonceTTL        time.Duration
	NonceMax        int
	MutationLimit   int
	MutationWindow  time.Duration

	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64

	DrainDelay time.Duration
	EnvFile    string
}

// ArticlesDir is where published articles live.
func (c App) ArticlesDir() string { return c.ContentDir + "/articles" }

// BooksDir holds book entries and their manifest.
func (c App) BooksDir() string { return c.ContentDir + "/books" }

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.IntVar(&c.ExternalPort, "external-port", 0, "port clients sign Hawk requests against when Host carries none (0 = 443 for TLS, else 80)")
	fs.IntVar(&c.TrustedProxyHops, "trusted-proxy-hops", 1, "X-Forwarded-For hops to trust when finding the client IP (0..8)")
	fs.Float64Var(&c.SiteRateLimit, "site-rate-limit", 20, "site-wide requests per second per client IP")
	fs.IntVar(&c.SiteRateBurst, "site-rate-burst", 40, "site-wide burst per client IP")
	fs.Int64Var(&c.MaxBodyBytes, "max-body-bytes", 1<<20, "largest accepted mutation body in bytes")

	fs.StringVar(&c.ContentDir, "content-dir", "./content", "root holding articles/ and books/")
	fs.StringVar(&c.StaticDir, "static-dir", "./static", "directory with the built frontend")
	fs.BoolVar(&c.WatchDir, "watch-content", true, "watch the articles directory for out-of-band changes")

	fs.StringVar(&c.HawkID, "hawk-id", "billard", "Hawk credential id accepted for mutations")
	fs.StringVar(&c.HawkKey, "hawk-key", "", "Hawk credential key (prefer the BILLARD_HAWK_KEY env var)")
	fs.StringVar(&c.HawkKeySSMParam, "hawk-key-ssm-param", "", "SSM SecureString to read the Hawk key from when none is set")
	fs.StringVar(&c.HawkAlgorithm, "hawk-algorithm", cryptoutil.SHA256, "Hawk MAC algorithm (sha256|sha1)")
	fs.DurationVar(&c.ClockSkew, "clock-skew", 60*time.Second, "allowed Hawk timestamp skew in either direction")
	fs.DurationVar(&c.NonceTTL, "nonce-ttl", 60*time.Second, "how long a seen nonce is remembered (>= clock-skew)")
	fs.IntVar(&c.NonceMax, "nonce-max", 0, "nonce cache capacity, 0 for unbounded; a full cache refuses requests")
	fs.IntVar(&c.MutationLimit, "mutation-limit", 5, "mutations per client IP per operation per window")
	fs.DurationVar(&c.MutationWindow, "mutation-window", 60*time.Second, "fixed window length for mutation-limit")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.DurationVar(&c.DrainDelay, "drain-delay", 60*time.Second, "time between failing readiness and closing listeners on shutdown")
	fs.StringVar(&c.EnvFile, "env-file", "", "optional dotenv file; process environment wins over it")
}

// Lookup resolves an environment key.
type Lookup func(key string) (string, bool)

// FillFromEnv sets any flag not explicitly passed on the CLI from the
// environment. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default. lookup nil means os.LookupEnv.
func FillFromEnv(fs *flag.FlagSet, prefix string, lookup Lookup, logf func(string, ...any)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := EnvKey(prefix, f.Name)
		envVal, envSet := lookup(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				// never echo values, hawk-key flows through here
				logf("flag -%s: cli value overrides env %s", f.Name, key)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s: %v", f.Name, key, err)
			}
		}
	})
}

// EnvKey is the environment variable name for flag name.
func EnvKey(prefix, name string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(name), "-", "_")
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}
	if c.ExternalPort < 0 || c.ExternalPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid EXTERNAL_PORT %d (must be 0..65535)", c.ExternalPort))
	}
	if c.TrustedProxyHops < 0 || c.TrustedProxyHops > 8 {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXY_HOPS must be 0..8 (got %d)", c.TrustedProxyHops))
	}
	if c.SiteRateLimit <= 0 || c.SiteRateBurst < 1 {
		errs = append(errs, fmt.Errorf("SITE_RATE_LIMIT and SITE_RATE_BURST must be positive (got %.2f/%d)", c.SiteRateLimit, c.SiteRateBurst))
	}
	if c.MaxBodyBytes < 1 {
		errs = append(errs, fmt.Errorf("MAX_BODY_BYTES must be positive (got %d)", c.MaxBodyBytes))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
	}

	if c.ContentDir == "" {
		errs = append(errs, fmt.Errorf("CONTENT_DIR is required"))
	}

	// Hawk
	if c.HawkID == "" {
		errs = append(errs, fmt.Errorf("HAWK_ID is required"))
	}
	if c.HawkKey == "" {
		errs = append(errs, fmt.Errorf("HAWK_KEY is required (set %sHAWK_KEY or -hawk-key-ssm-param)", EnvPrefix))
	}
	if _, err := cryptoutil.HashFunc(c.HawkAlgorithm); err != nil {
		errs = append(errs, fmt.Errorf("invalid HAWK_ALGORITHM %q: %w", c.HawkAlgorithm, err))
	}
	if c.ClockSkew <= 0 {
		errs = append(errs, fmt.Errorf("CLOCK_SKEW must be positive (got %s)", c.ClockSkew))
	}
	// a nonce forgotten before its timestamp goes stale could be replayed
	if c.NonceTTL < c.ClockSkew {
		errs = append(errs, fmt.Errorf("NONCE_TTL %s must be >= CLOCK_SKEW %s", c.NonceTTL, c.ClockSkew))
	}
	if c.NonceMax < 0 {
		errs = append(errs, fmt.Errorf("NONCE_MAX must be >= 0 (got %d)", c.NonceMax))
	}
	if c.MutationLimit < 1 || c.MutationWindow <= 0 {
		errs = append(errs, fmt.Errorf("MUTATION_LIMIT and MUTATION_WINDOW must be positive (got %d per %s)", c.MutationLimit, c.MutationWindow))
	}

	if c.DrainDelay < 0 {
		errs = append(errs, fmt.Errorf("DRAIN_DELAY must be >= 0 (got %s)", c.DrainDelay))
	}
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}
	// grpc exporter wants host:port, no scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if !validHostPort(c.OTLPEndpoint) {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q)", c.OTLPEndpoint))
		}
	}

	return errors.Join(errs...)
}

func validHostPort(s string) bool {
	if strings.Contains(s, "://") {
		return false
	}
	host, port, err := net.SplitHostPort(s)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n > 0 && n <= 65535
}
