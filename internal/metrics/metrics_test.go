package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/1a11/billard/internal/version"
)

func gatherMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

// sample returns the metric in family name whose labels include want.
func sample(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) *dto.Metric {
	t.Helper()
	f := gatherMetric(t, reg, name)
	if f == nil {
		t.Fatalf("metric %q not found", name)
	}
	for _, m := range f.GetMetric() {
		got := make(map[string]string)
		for _, lp := range m.GetLabel() {
			got[lp.GetName()] = lp.GetValue()
		}
		match := true
		for k, v := range want {
			if got[k] != v {
				match = false
				break
			}
		}
		if match {
			return m
		}
	}
	t.Fatalf("metric %q has no sample with labels %v", name, want)
	return nil
}

func TestHandler_Scrape(t *testing.T) {
	m := New()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{
		"http_inflight_requests",
		"http_panic_total",
		"profiling_active",
		"billard_nonce_cache_entries",
		"billard_nonce_cache_full_total",
		"go_goroutines",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("scrape missing %q", name)
		}
	}
}

func TestNew_IsolatedRegistries(t *testing.T) {
	a, b := New(), New()
	a.IncHttpPanic()
	if v := sample(t, b.reg, "http_panic_total", nil).GetCounter().GetValue(); v != 0 {
		t.Fatalf("second registry saw %v panics", v)
	}
}

func TestSetBuildInfo(t *testing.T) {
	m := New()
	dirty := false
	m.SetBuildInfo("server", version.Info{
		AppName:   "billard",
		Version:   "1.0.0",
		Commit:    "abc123",
		GoVersion: "go1.24",
		VCSDirty:  &dirty,
	})

	s := sample(t, m.reg, "build_info", map[string]string{
		"app":       "billard",
		"component": "server",
		"version":   "1.0.0",
		"vcs_dirty": "false",
	})
	if s.GetGauge().GetValue() != 1 {
		t.Fatalf("build_info = %v, want 1", s.GetGauge().GetValue())
	}
}

func TestMutationMetrics(t *testing.T) {
	m := New()
	m.ObserveMutation("upload", "ok", 0.01)
	m.ObserveMutation("upload", "ok", 0.02)
	m.ObserveMutation("remove", "not_found", 0.001)
	m.IncAuthFailure("replay")
	m.IncMutationRateLimited("upload")
	m.IncSanitized("upload")

	if v := sample(t, m.reg, "billard_mutations_total", map[string]string{"op": "upload", "result": "ok"}).GetCounter().GetValue(); v != 2 {
		t.Fatalf("upload ok = %v, want 2", v)
	}
	if v := sample(t, m.reg, "billard_mutations_total", map[string]string{"op": "remove", "result": "not_found"}).GetCounter().GetValue(); v != 1 {
		t.Fatalf("remove not_found = %v, want 1", v)
	}
	if c := sample(t, m.reg, "billard_mutation_duration_seconds", map[string]string{"op": "upload"}).GetHistogram().GetSampleCount(); c != 2 {
		t.Fatalf("upload duration samples = %d, want 2", c)
	}
	if v := sample(t, m.reg, "billard_auth_failures_total", map[string]string{"reason": "replay"}).GetCounter().GetValue(); v != 1 {
		t.Fatalf("auth failures = %v", v)
	}
	if v := sample(t, m.reg, "billard_mutation_rate_limited_total", map[string]string{"op": "upload"}).GetCounter().GetValue(); v != 1 {
		t.Fatalf("rate limited = %v", v)
	}
	if v := sample(t, m.reg, "billard_sanitized_documents_total", map[string]string{"op": "upload"}).GetCounter().GetValue(); v != 1 {
		t.Fatalf("sanitized = %v", v)
	}
}

func TestGauges(t *testing.T) {
	m := New()
	m.SetNonceEntries(42)
	m.IncNonceCapacity()
	m.SetContentFiles("articles", 7)
	m.IncContentEvent("create")
	m.SetProfilingActive(true)

	if v := sample(t, m.reg, "billard_nonce_cache_entries", nil).GetGauge().GetValue(); v != 42 {
		t.Fatalf("nonce entries = %v", v)
	}
	if v := sample(t, m.reg, "billard_nonce_cache_full_total", nil).GetCounter().GetValue(); v != 1 {
		t.Fatalf("nonce full = %v", v)
	}
	if v := sample(t, m.reg, "billard_content_files", map[string]string{"collection": "articles"}).GetGauge().GetValue(); v != 7 {
		t.Fatalf("content files = %v", v)
	}
	if v := sample(t, m.reg, "billard_content_dir_events_total", map[string]string{"op": "create"}).GetCounter().GetValue(); v != 1 {
		t.Fatalf("events = %v", v)
	}
	if v := sample(t, m.reg, "profiling_active", nil).GetGauge().GetValue(); v != 1 {
		t.Fatalf("profiling_active = %v", v)
	}
	m.SetProfilingActive(false)
	if v := sample(t, m.reg, "profiling_active", nil).GetGauge().GetValue(); v != 0 {
		t.Fatalf("profiling_active = %v after disable", v)
	}
}

func TestSiteRateLimitCounters(t *testing.T) {
	m := New()
	m.IncRateLimitDenied()
	m.IncRateLimitDenied()
	m.IncRateLimitCapacity()

	if v := sample(t, m.reg, "http_requests_rate_limited_total", nil).GetCounter().GetValue(); v != 2 {
		t.Fatalf("denied = %v", v)
	}
	if v := sample(t, m.reg, "http_requests_rate_limited_capacity_total", nil).GetCounter().GetValue(); v != 1 {
		t.Fatalf("capacity = %v", v)
	}
}
