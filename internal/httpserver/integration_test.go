package httpserver_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/1a11/billard/internal/hawk"
	"github.com/1a11/billard/internal/health"
	"github.com/1a11/billard/internal/httpserver"
	"github.com/1a11/billard/internal/log"
	"github.com/1a11/billard/internal/mutation"
	"github.com/1a11/billard/internal/nonce"
	"github.com/1a11/billard/internal/ratelimit"
	"github.com/1a11/billard/internal/sitehandler"
	"github.com/1a11/billard/internal/sitehttp"
	"github.com/1a11/billard/internal/store"
	"github.com/1a11/billard/internal/webassets"
)

// TestIntegration_FullStack wires the public handler the way main does:
// read API, mutation API and the static site behind the shared middleware.
func TestIntegration_FullStack(t *testing.T) {
	siteDir := t.TempDir()
	articlesDir := t.TempDir()
	now := time.Now()
	cred := hawk.Credential{ID: "billard", Key: []byte("integration-key-0123456789abcdef"), Algorithm: "sha256"}

	articles := store.New(articlesDir)
	auth := hawk.NewAuthenticator(hawk.StaticCredentials{cred.ID: cred}, nonce.New())
	mut, err := mutation.NewAPI(mutation.Options{
		Auth:    auth,
		Limiter: ratelimit.NewWindow(ratelimit.WithLimit(5, time.Minute)),
		Store:   articles,
	})
	if err != nil {
		t.Fatalf("mutation.NewAPI: %v", err)
	}
	read := sitehttp.NewAPI(articles, nil, log.Nop())

	site, err := sitehandler.New(&sitehandler.Options{
		Logger:     log.Nop(),
		Site:       sitehandler.NewDirSource(siteDir),
		FallbackFS: webassets.FallbackFS(),
	})
	if err != nil {
		t.Fatalf("sitehandler.New: %v", err)
	}

	h := httpserver.NewHandler(&httpserver.Options{
		Logger:    log.Nop(),
		Health:    health.Fixed(true, ""),
		Readiness: health.All(health.DirReadable("articles", articles.Ready)),
		APIRoutes: func(r chi.Router) {
			read.RegisterRoutes(r)
			mut.RegisterRoutes(r)
		},
		SiteHandler:  site,
		UseRecoverMW: true,
	})

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	t.Run("maintenance page before the site is deployed", func(t *testing.T) {
		rec := get("/")
		if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "Back soon") {
			t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
		}
		if rec.Header().Get("Strict-Transport-Security") == "" {
			t.Fatal("security headers missing on maintenance page")
		}
	})

	if err := os.WriteFile(filepath.Join(siteDir, "index.html"), []byte("<html>Hello World</html>"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("site served once index.html exists", func(t *testing.T) {
		rec := get("/")
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Hello World") {
			t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
		}
		if rec := get("/missing/page"); rec.Code != http.StatusNotFound {
			t.Fatalf("missing page = %d", rec.Code)
		}
	})

	t.Run("ready while the article dir is readable", func(t *testing.T) {
		if rec := get("/-/ready"); rec.Code != http.StatusOK {
			t.Fatalf("ready = %d", rec.Code)
		}
	})

	t.Run("publish then read back", func(t *testing.T) {
		body := []byte(`{"header":{"mainHeader":"Hello Billard","date":"July 4, 2025"},"body":[]}`)
		n, _ := hawk.NewNonce()
		authz, err := hawk.Sign(cred, hawk.SignRequest{
			Method:      http.MethodPost,
			Host:        "example.com",
			Port:        80,
			Resource:    "/admin/upload",
			ContentType: "application/json",
			Body:        body,
		}, now, n)
		if err != nil {
			t.Fatal(err)
		}
		req := httptest.NewRequest(http.MethodPost, "/admin/upload", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", authz)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("publish = %d %s", rec.Code, rec.Body.String())
		}

		var list sitehttp.ArticlesResponse
		if err := json.Unmarshal(get("/api/articles").Body.Bytes(), &list); err != nil {
			t.Fatal(err)
		}
		if len(list.Articles) != 1 || list.Articles[0].Slug != "hello_billard" {
			t.Fatalf("articles = %+v", list.Articles)
		}
		if rec := get("/api/articles/hello_billard"); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Hello Billard") {
			t.Fatalf("article = %d %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("unsigned upload rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/upload", strings.NewReader(`{"header":{}}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}
