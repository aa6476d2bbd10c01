package pathutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsafeName is returned for names that could address anything other
	// than a direct child of the root. Checked before touching the filesystem.
	ErrUnsafeName = errors.New("pathutil: unsafe name")

	// ErrOutsideRoot is returned when the canonical candidate escapes the root,
	// e.g. through a symlink.
	ErrOutsideRoot = errors.New("pathutil: path escapes root")
)

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// CheckName rejects names that are not a single plain path element.
// It never touches the filesystem.
func CheckName(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrUnsafeName
	}
	if strings.ContainsAny(name, "/\\\x00") || strings.Contains(name, "..") {
		return ErrUnsafeName
	}
	if filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return ErrUnsafeName
	}
	return nil
}

// Guard resolves names inside a single root directory.
type Guard struct {
	root string
}

func NewGuard(root string) *Guard { return &Guard{root: root} }

// Root returns the directory the guard was created with, as given.
func (g *Guard) Root() string { return g.root }

// Resolve returns the canonical absolute path of name inside the root.
// The name is validated lexically first; the root and the candidate are then
// resolved through symlinks and the candidate must equal the root or sit
// beneath it. A candidate that does not exist yet resolves to the canonical
// root joined with name.
func (g *Guard) Resolve(name string) (string, error) {
	if err := CheckName(name); err != nil {
		return "", err
	}

	absRoot, err := filepath.Abs(g.root)
	if err != nil {
		return "", err
	}
	root, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", err
	}

	candidate := filepath.Join(root, name)
	resolved, err := filepath.EvalSymlinks(candidate)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		// a dangling symlink also lands here, so look at the entry itself
		if fi, lerr := os.Lstat(candidate); lerr == nil && fi.Mode()&os.ModeSymlink != 0 {
			return "", ErrOutsideRoot
		}
		resolved = candidate
	default:
		return "", err
	}

	if !Within(root, resolved) {
		return "", ErrOutsideRoot
	}
	return resolved, nil
}

// Within reports whether p is root itself or lies beneath it. Both paths
// must already be clean and absolute.
func Within(root, p string) bool {
	if p == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}
