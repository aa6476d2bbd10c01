// Package store keeps articles as JSON files in a single flat directory.
//
// Each file is named {slug}_{month}-{day}.json. There is no index and no
// cache: every read scans the directory, so files added or removed out of
// band are picked up on the next request. All path construction goes
// through a pathutil.Guard rooted at the directory.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/1a11/billard/internal/atomicfile"
	"github.com/1a11/billard/internal/pathutil"
	"github.com/1a11/billard/internal/xerrors"
)

var (
	ErrInvalidDocument = errors.New("store: invalid document")
	ErrInvalidFilename = errors.New("store: invalid filename")
	ErrNotFound        = errors.New("store: not found")
)

const headerDateLayout = "January 2, 2006"

// headerDatePrefix pulls "Month D, YYYY" off the front of header.date, which
// may carry a trailing time of day.
var headerDatePrefix = regexp.MustCompile(`^([A-Za-z]+ \d{1,2}, \d{4})`)

// Item is one listed file.
type Item struct {
	Filename string `json:"filename"`
	Slug     string `json:"slug"`
	Month    int    `json:"month"`
	Day      int    `json:"day"`
	Year     int    `json:"year"`
	DateStr  string `json:"date_str"`
	Title    string `json:"title"`
}

// YearGroup is a run of items sharing a year.
type YearGroup struct {
	Year  int    `json:"year"`
	Items []Item `json:"items"`
}

// Store reads and writes JSON documents under one directory.
type Store struct {
	dir    string
	guard  *pathutil.Guard
	writer *atomicfile.Writer
	now    func() time.Time
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithWriter(w *atomicfile.Writer) Option {
	return func(s *Store) { s.writer = w }
}

func New(dir string, opts ...Option) *Store {
	s := &Store{
		dir:    dir,
		guard:  pathutil.NewGuard(dir),
		writer: atomicfile.New(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Dir() string { return s.dir }

// Ready reports whether the directory can be listed.
func (s *Store) Ready() error {
	_, err := os.ReadDir(s.dir)
	return err
}

// List returns every well-named file, newest first. A missing directory is
// an empty store.
func (s *Store) List(ctx context.Context) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.Wrap(err, "read store directory")
	}

	year := s.now().Year()
	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || atomicfile.IsTemp(e.Name()) {
			continue
		}
		slug, month, day, ok := ParseFilename(e.Name())
		if !ok {
			continue
		}
		it := Item{
			Filename: e.Name(),
			Slug:     slug,
			Month:    month,
			Day:      day,
			Year:     year,
			DateStr:  dateStr(month, day),
			Title:    placeholderTitle(slug),
		}
		s.readHeader(&it)
		items = append(items, it)
	}

	sortItems(items)
	return items, nil
}

// readHeader fills Title and Year from the file when it can be read.
// Failures keep the placeholders.
func (s *Store) readHeader(it *Item) {
	p, err := s.guard.Resolve(it.Filename)
	if err != nil {
		return
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		return
	}
	var doc struct {
		Header map[string]any `json:"header"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return
	}
	if t, ok := doc.Header["mainHeader"].(string); ok && t != "" {
		it.Title = t
	}
	if d, ok := doc.Header["date"].(string); ok {
		if t, ok := parseHeaderDate(d); ok {
			it.Year = t.Year()
		}
	}
}

func parseHeaderDate(s string) (time.Time, bool) {
	m := headerDatePrefix.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse(headerDateLayout, m[1])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func dateStr(month, day int) string {
	return fmt.Sprintf("%s, %02d", time.Month(month).String()[:3], day)
}

// placeholderTitle turns a slug into a readable title: underscores become
// spaces and each word is capitalized.
func placeholderTitle(slug string) string {
	words := strings.Fields(strings.ReplaceAll(slug, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Year != b.Year {
			return a.Year > b.Year
		}
		if a.Month != b.Month {
			return a.Month > b.Month
		}
		if a.Day != b.Day {
			return a.Day > b.Day
		}
		return a.Filename < b.Filename
	})
}

// GroupByYear splits sorted items into year groups, newest year first.
func GroupByYear(items []Item) []YearGroup {
	var groups []YearGroup
	idx := make(map[int]int)
	for _, it := range items {
		i, ok := idx[it.Year]
		if !ok {
			i = len(groups)
			idx[it.Year] = i
			groups = append(groups, YearGroup{Year: it.Year})
		}
		groups[i].Items = append(groups[i].Items, it)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Year > groups[j].Year })
	return groups
}

// Latest returns the newest item, if any.
func (s *Store) Latest(ctx context.Context) (Item, bool, error) {
	items, err := s.List(ctx)
	if err != nil || len(items) == 0 {
		return Item{}, false, err
	}
	return items[0], true, nil
}

// Get returns the newest item with the given slug and its raw JSON.
func (s *Store) Get(ctx context.Context, slug string) (Item, []byte, error) {
	if !ValidSlug(slug) {
		return Item{}, nil, ErrInvalidFilename
	}
	items, err := s.List(ctx)
	if err != nil {
		return Item{}, nil, err
	}
	for _, it := range items {
		if it.Slug != slug {
			continue
		}
		raw, err := s.readRaw(it.Filename)
		if err != nil {
			return Item{}, nil, err
		}
		return it, raw, nil
	}
	return Item{}, nil, ErrNotFound
}

func (s *Store) readRaw(name string) ([]byte, error) {
	p, err := s.guard.Resolve(name)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, xerrors.Wrapf(err, "read %s", name)
	}
	if !json.Valid(raw) {
		return nil, xerrors.Wrapf(ErrInvalidDocument, "read %s", name)
	}
	return bytes.TrimSpace(raw), nil
}
