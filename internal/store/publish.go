package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/1a11/billard/internal/xerrors"
)

// stampLayout is appended to header.date at publish time. The date prefix
// stays parseable by parseHeaderDate.
const stampLayout = "15:04:05"

// Draft is a validated document and the filename it will be written under.
type Draft struct {
	Filename string
	Slug     string
	Month    int
	Day      int
	Doc      map[string]any
}

// DecodeDocument parses raw JSON keeping numbers as json.Number so they are
// written back exactly as received.
func DecodeDocument(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, xerrors.Mark(xerrors.Wrap(err, "decode document"), ErrInvalidDocument)
	}
	if dec.More() {
		return nil, xerrors.Wrap(ErrInvalidDocument, "trailing data after document")
	}
	return v, nil
}

// Prepare validates doc and derives its filename. The slug comes from
// header.mainHeader, then header.name, then "untitled"; month and day come
// from header.date ("January 2, 2006"), defaulting to 1/1. A present
// header.date is stamped with the upload time of day in UTC.
func Prepare(doc any, now time.Time) (*Draft, error) {
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, xerrors.Wrap(ErrInvalidDocument, "document is not an object")
	}
	header, ok := obj["header"].(map[string]any)
	if !ok {
		return nil, xerrors.Wrap(ErrInvalidDocument, "missing header object")
	}

	title := fallbackSlug
	for _, k := range []string{"mainHeader", "name"} {
		if s, ok := header[k].(string); ok && strings.TrimSpace(s) != "" {
			title = s
			break
		}
	}
	slug := Slugify(title)

	month, day := 1, 1
	date, _ := header["date"].(string)
	if t, ok := parseHeaderDate(date); ok {
		month, day = int(t.Month()), t.Day()
		date = t.Format(headerDateLayout)
	}

	// copy so the caller's document is left alone
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	hdr := make(map[string]any, len(header)+1)
	for k, v := range header {
		hdr[k] = v
	}
	if date != "" {
		hdr["date"] = date + " " + now.UTC().Format(stampLayout)
	}
	out["header"] = hdr

	return &Draft{
		Filename: FormatFilename(slug, month, day),
		Slug:     slug,
		Month:    month,
		Day:      day,
		Doc:      out,
	}, nil
}

// Encode renders the draft document as stored on disk.
func (d *Draft) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d.Doc); err != nil {
		return nil, xerrors.Wrap(err, "encode document")
	}
	return buf.Bytes(), nil
}

// Commit writes the draft into the store, replacing any file of the same
// name.
func (s *Store) Commit(ctx context.Context, d *Draft) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, _, ok := ParseFilename(d.Filename); !ok {
		return xerrors.Wrapf(ErrInvalidFilename, "commit %q", d.Filename)
	}
	data, err := d.Encode()
	if err != nil {
		return err
	}
	p, err := s.guard.Resolve(d.Filename)
	if err != nil {
		return xerrors.Wrap(err, "resolve commit target")
	}
	return s.writer.Write(filepath.Dir(p), filepath.Base(p), data)
}

// CleanFilename applies the remove-time filename rules: names with path
// separators, "..", or NUL are refused outright; other characters outside
// [A-Za-z0-9_.-] are stripped; the result must be a well-formed store
// filename.
func CleanFilename(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/\\\x00") || strings.Contains(name, "..") {
		return "", ErrInvalidFilename
	}
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '_', r == '.', r == '-':
			return r
		}
		return -1
	}, name)
	if !strings.HasSuffix(cleaned, extJSON) {
		return "", ErrInvalidFilename
	}
	if _, _, _, ok := ParseFilename(cleaned); !ok {
		return "", ErrInvalidFilename
	}
	return cleaned, nil
}

// Remove deletes filename from the store.
func (s *Store) Remove(ctx context.Context, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := CleanFilename(filename)
	if err != nil {
		return err
	}
	p, err := s.guard.Resolve(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return xerrors.Wrapf(err, "remove %s", name)
	}
	return nil
}
