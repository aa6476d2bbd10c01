package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/1a11/billard/internal/xerrors"
)

// ManifestName is the per-directory book metadata file. It may contain
// comments and trailing commas.
const ManifestName = "manifest.json"

// BookMeta is the manifest entry for one book slug.
type BookMeta struct {
	Author string  `json:"author,omitempty"`
	Rating float64 `json:"rating,omitempty"`
	Status string  `json:"status,omitempty"`
}

// Book is a listed book file joined with its manifest entry.
type Book struct {
	Item
	BookMeta
}

// Library is a read-only Store over the books directory plus its manifest.
type Library struct {
	*Store
}

func NewLibrary(dir string, opts ...Option) *Library {
	return &Library{Store: New(dir, opts...)}
}

// Manifest loads manifest.json. A missing manifest is empty.
func (l *Library) Manifest() (map[string]BookMeta, error) {
	p, err := l.guard.Resolve(ManifestName)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]BookMeta{}, nil
		}
		return nil, err
	}
	raw, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]BookMeta{}, nil
	}
	if err != nil {
		return nil, xerrors.Wrap(err, "read book manifest")
	}
	m := make(map[string]BookMeta)
	if err := json.Unmarshal(jsonc.ToJSON(raw), &m); err != nil {
		return nil, xerrors.Mark(xerrors.Wrap(err, "parse book manifest"), ErrInvalidDocument)
	}
	return m, nil
}

// Books lists every book, newest first, with manifest metadata attached.
func (l *Library) Books(ctx context.Context) ([]Book, error) {
	items, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	meta, err := l.Manifest()
	if err != nil {
		return nil, err
	}
	books := make([]Book, len(items))
	for i, it := range items {
		books[i] = Book{Item: it, BookMeta: meta[it.Slug]}
	}
	return books, nil
}
