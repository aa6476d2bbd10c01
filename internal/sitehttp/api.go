// Package sitehttp serves the public read API over the article and book
// stores.
package sitehttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/1a11/billard/internal/cryptoutil"
	"github.com/1a11/billard/internal/httpmw"
	"github.com/1a11/billard/internal/log"
	"github.com/1a11/billard/internal/store"
)

// Articles is the read side of the article store.
type Articles interface {
	List(ctx context.Context) ([]store.Item, error)
	Latest(ctx context.Context) (store.Item, bool, error)
	Get(ctx context.Context, slug string) (store.Item, []byte, error)
}

// Books lists the reading list.
type Books interface {
	Books(ctx context.Context) ([]store.Book, error)
}

type API struct {
	articles Articles
	books    Books
	logger   log.Logger
}

// NewAPI builds the read API. books may be nil, in which case /api/books
// answers with an empty list.
func NewAPI(articles Articles, books Books, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{articles: articles, books: books, logger: logger}
}

func (api *API) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(httpmw.Scope("read_api"))
		r.Get("/articles", api.HandleArticles)
		r.Get("/articles/latest", api.HandleLatest)
		r.Get("/articles/{slug}", api.HandleArticle)
		r.Get("/work", api.HandleWork)
		r.Get("/books", api.HandleBooks)
	})
}

type ArticlesResponse struct {
	Articles []store.Item `json:"articles"`
}

type LatestResponse struct {
	Article *store.Item `json:"article"`
}

type WorkResponse struct {
	Years []store.YearGroup `json:"years"`
}

type BooksResponse struct {
	Books []store.Book `json:"books"`
}

func (api *API) HandleArticles(w http.ResponseWriter, r *http.Request) {
	items, err := api.articles.List(r.Context())
	if err != nil {
		api.fail(w, r, err, "list articles")
		return
	}
	api.writeJSON(w, r, ArticlesResponse{Articles: nonNil(items)})
}

// HandleLatest answers {"article":null} on an empty store so the home page
// can render without special-casing a 404.
func (api *API) HandleLatest(w http.ResponseWriter, r *http.Request) {
	it, ok, err := api.articles.Latest(r.Context())
	if err != nil {
		api.fail(w, r, err, "latest article")
		return
	}
	var resp LatestResponse
	if ok {
		resp.Article = &it
	}
	api.writeJSON(w, r, resp)
}

// HandleArticle returns the stored document verbatim.
func (api *API) HandleArticle(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	_, raw, err := api.articles.Get(r.Context(), slug)
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrInvalidFilename):
		writeError(w, http.StatusNotFound, "not found")
		return
	case err != nil:
		api.fail(w, r, err, "get article")
		return
	}
	api.writeBody(w, r, raw)
}

func (api *API) HandleWork(w http.ResponseWriter, r *http.Request) {
	items, err := api.articles.List(r.Context())
	if err != nil {
		api.fail(w, r, err, "list articles")
		return
	}
	api.writeJSON(w, r, WorkResponse{Years: nonNil(store.GroupByYear(items))})
}

func (api *API) HandleBooks(w http.ResponseWriter, r *http.Request) {
	var books []store.Book
	if api.books != nil {
		var err error
		if books, err = api.books.Books(r.Context()); err != nil {
			api.fail(w, r, err, "list books")
			return
		}
	}
	api.writeJSON(w, r, BooksResponse{Books: nonNil(books)})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (api *API) fail(w http.ResponseWriter, r *http.Request, err error, what string) {
	ctx := r.Context()
	log.FromContext(ctx).Error(ctx, err, what+" failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (api *API) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		api.fail(w, r, err, "encode response")
		return
	}
	api.writeBody(w, r, body)
}

// writeBody sends a 200 JSON body with a strong ETag, or 304 when the
// client already holds it.
func (api *API) writeBody(w http.ResponseWriter, r *http.Request, body []byte) {
	etag := `"` + cryptoutil.SHA256Hex(body)[:32] + `"`
	h := w.Header()
	h.Set("ETag", etag)
	h.Set("Cache-Control", "no-cache")
	if etagMatch(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	h.Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("\n"))
}

func etagMatch(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		c := strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if c == etag || c == "*" {
			return true
		}
	}
	return false
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
