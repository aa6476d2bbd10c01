package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/1a11/billard/internal/hawk"
	"github.com/1a11/billard/internal/httpmw"
	"github.com/1a11/billard/internal/mutation"
	"github.com/1a11/billard/internal/nonce"
	"github.com/1a11/billard/internal/ratelimit"
	"github.com/1a11/billard/internal/store"
)

const testKey = "upload-test-key-0123456789abcdef"

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	cred := hawk.Credential{ID: "billard", Key: []byte(testKey), Algorithm: "sha256"}
	api, err := mutation.NewAPI(mutation.Options{
		Auth:    hawk.NewAuthenticator(hawk.StaticCredentials{cred.ID: cred}, nonce.New()),
		Limiter: ratelimit.NewWindow(ratelimit.WithLimit(10, time.Minute)),
		Store:   store.New(dir),
	})
	if err != nil {
		t.Fatal(err)
	}
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	srv := httptest.NewServer(httpmw.ClientIP(r))
	t.Cleanup(srv.Close)
	return srv, dir
}

func run(t *testing.T, env map[string]string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(func(k string) string { return env[k] })
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeDoc(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "doc.json")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPublishAndRemove(t *testing.T) {
	srv, dir := newTestServer(t)
	env := map[string]string{keyEnv: testKey, "BILLARD_URL": srv.URL}
	doc := writeDoc(t, `{"header":{"mainHeader":"My First Post","date":"December 24, 2024"},"body":[{"text":"<b>hi</b>"}]}`)

	out, err := run(t, env, "publish", doc)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if out != "published my_first_post_12-24.json (HTML was escaped)\n" {
		t.Fatalf("out = %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "my_first_post_12-24.json")); err != nil {
		t.Fatalf("stored file: %v", err)
	}

	out, err = run(t, env, "remove", "my_first_post_12-24.json")
	if err != nil || out != "removed my_first_post_12-24.json\n" {
		t.Fatalf("remove: out = %q err = %v", out, err)
	}

	_, err = run(t, env, "remove", "my_first_post_12-24.json")
	if err == nil || !strings.Contains(err.Error(), "404: not found") {
		t.Fatalf("second remove err = %v", err)
	}
}

func TestPublish_Failures(t *testing.T) {
	srv, _ := newTestServer(t)
	doc := writeDoc(t, `{"header":{"mainHeader":"x"}}`)

	tests := []struct {
		name string
		env  map[string]string
		args []string
		want string
	}{
		{"wrong key", map[string]string{keyEnv: "not-the-key"}, []string{"--url", srv.URL, "publish", doc}, "401: unauthorized"},
		{"wrong id", map[string]string{keyEnv: testKey}, []string{"--url", srv.URL, "--id", "intruder", "publish", doc}, "401: unauthorized"},
		{"no key", map[string]string{}, []string{"--url", srv.URL, "publish", doc}, keyEnv + " is not set"},
		{"not json", map[string]string{keyEnv: testKey}, []string{"--url", srv.URL, "publish", writeDoc(t, "{nope")}, "not valid JSON"},
		{"missing file", map[string]string{keyEnv: testKey}, []string{"--url", srv.URL, "publish", "/does/not/exist.json"}, "exist.json"},
		{"bad url", map[string]string{keyEnv: testKey}, []string{"--url", "ftp://example.com", "publish", doc}, "must be http(s)"},
		{"no args", map[string]string{keyEnv: testKey}, []string{"publish"}, "accepts 1 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.env, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestClient_SigningPort(t *testing.T) {
	tests := map[string]int{
		"http://example.com":        80,
		"https://example.com":       443,
		"https://example.com:8443/": 8443,
		"http://127.0.0.1:9999":     9999,
	}
	for raw, want := range tests {
		c, err := newClient(raw, hawk.Credential{}, http.DefaultClient)
		if err != nil {
			t.Fatalf("newClient(%q): %v", raw, err)
		}
		if got := c.signingPort(); got != want {
			t.Errorf("signingPort(%q) = %d, want %d", raw, got, want)
		}
	}
}

func TestClient_SignsRequestLine(t *testing.T) {
	cred := hawk.Credential{ID: "billard", Key: []byte(testKey), Algorithm: "sha256"}
	auth := hawk.NewAuthenticator(hawk.StaticCredentials{cred.ID: cred}, nonce.New())
	var (
		mu   sync.Mutex
		seen []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, r.URL.RequestURI())
		mu.Unlock()
		if _, err := auth.Authenticate(hawk.RequestFromHTTP(r, body, 0)); err != nil {
			http.Error(w, `{"error":"`+string(hawk.ReasonOf(err))+`"}`, http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)

	for _, base := range []string{srv.URL, srv.URL + "/"} {
		c, err := newClient(base, cred, srv.Client())
		if err != nil {
			t.Fatalf("newClient(%q): %v", base, err)
		}
		if err := c.post(context.Background(), "/admin/upload", []byte(`{}`), nil); err != nil {
			t.Fatalf("post via %q: %v", base, err)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("requests = %d, want 2", len(seen))
	}
	for _, uri := range seen {
		if uri != "/admin/upload" {
			t.Fatalf("request line = %q", uri)
		}
	}
}
