package store

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	maxSlugLen   = 20
	fallbackSlug = "untitled"
	extJSON      = ".json"
)

var (
	filenameRe = regexp.MustCompile(`^([a-z0-9_-]{1,20})_(\d{1,2})-(\d{1,2})\.json$`)
	slugRe     = regexp.MustCompile(`^[a-z0-9_-]{1,20}$`)
)

// Slugify folds a title into the slug alphabet: lowercase, spaces become
// underscores, anything outside [a-z0-9_-] is dropped, runs of underscores
// collapse to one, and the result is capped at 20 characters.
func Slugify(title string) string {
	var b strings.Builder
	last := rune(0)
	for _, r := range strings.ToLower(title) {
		if r == ' ' {
			r = '_'
		}
		switch {
		case r == '_' && last == '_':
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			last = r
			b.WriteRune(r)
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}
	if b.Len() == 0 {
		return fallbackSlug
	}
	return b.String()
}

// FormatFilename encodes slug and date as {slug}_{month}-{day}.json.
func FormatFilename(slug string, month, day int) string {
	return fmt.Sprintf("%s_%d-%d%s", slug, month, day, extJSON)
}

// ParseFilename is the strict inverse of FormatFilename.
func ParseFilename(name string) (slug string, month, day int, ok bool) {
	m := filenameRe.FindStringSubmatch(name)
	if m == nil {
		return "", 0, 0, false
	}
	month, _ = strconv.Atoi(m[2])
	day, _ = strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", 0, 0, false
	}
	return m[1], month, day, true
}

// ValidSlug reports whether s is in the slug alphabet and length.
func ValidSlug(s string) bool { return slugRe.MatchString(s) }
