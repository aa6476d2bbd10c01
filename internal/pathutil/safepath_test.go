package pathutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHasDotSegments(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/normal/path", false},
		{"/path/./here", true},
		{"/path/../up", true},
		{".", true},
		{"..", true},
		{"/...", false},
		{"/.hidden", false},
		{"/path/to/.", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := HasDotSegments(tt.path); got != tt.want {
				t.Errorf("HasDotSegments(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestCheckName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"my_first_post_12-24.json", true},
		{"a.json", true},
		{"", false},
		{".", false},
		{"..", false},
		{"../etc/passwd", false},
		{"sub/file.json", false},
		{`sub\file.json`, false},
		{"file..json", false},
		{"/abs.json", false},
		{"nul\x00.json", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckName(tt.name)
			if tt.ok && err != nil {
				t.Fatalf("CheckName(%q) = %v, want nil", tt.name, err)
			}
			if !tt.ok && !errors.Is(err, ErrUnsafeName) {
				t.Fatalf("CheckName(%q) = %v, want ErrUnsafeName", tt.name, err)
			}
		})
	}
}

func TestResolve_RejectsBeforeFilesystem(t *testing.T) {
	// root does not exist: any filesystem access would fail with ENOENT,
	// so getting ErrUnsafeName proves the name was rejected first
	g := NewGuard(filepath.Join(t.TempDir(), "does-not-exist"))

	for _, name := range []string{"..", "../x.json", "a/b.json", `a\b.json`, "x..json"} {
		_, err := g.Resolve(name)
		if !errors.Is(err, ErrUnsafeName) {
			t.Errorf("Resolve(%q) = %v, want ErrUnsafeName", name, err)
		}
	}
}

func TestResolve_ExistingAndNewFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "old_1-1.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	g := NewGuard(root)

	canonRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		t.Fatal(err)
	}

	got, err := g.Resolve("old_1-1.json")
	if err != nil {
		t.Fatalf("Resolve existing: %v", err)
	}
	if got != filepath.Join(canonRoot, "old_1-1.json") {
		t.Fatalf("Resolve existing = %q", got)
	}

	got, err = g.Resolve("new_2-2.json")
	if err != nil {
		t.Fatalf("Resolve new: %v", err)
	}
	if got != filepath.Join(canonRoot, "new_2-2.json") {
		t.Fatalf("Resolve new = %q", got)
	}
}

func TestResolve_SymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.json")
	if err := os.WriteFile(secret, []byte(`{"k":"v"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(secret, filepath.Join(root, "link_1-1.json")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	_, err := NewGuard(root).Resolve("link_1-1.json")
	if !errors.Is(err, ErrOutsideRoot) {
		t.Fatalf("Resolve symlink escape = %v, want ErrOutsideRoot", err)
	}
}

func TestResolve_DanglingSymlink(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(t.TempDir(), "gone.json")
	if err := os.Symlink(target, filepath.Join(root, "dangling_1-1.json")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	_, err := NewGuard(root).Resolve("dangling_1-1.json")
	if !errors.Is(err, ErrOutsideRoot) {
		t.Fatalf("Resolve dangling symlink = %v, want ErrOutsideRoot", err)
	}
}

func TestResolve_SymlinkedRootIsCanonicalized(t *testing.T) {
	target := t.TempDir()
	linkParent := t.TempDir()
	linkRoot := filepath.Join(linkParent, "articles")
	if err := os.Symlink(target, linkRoot); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	got, err := NewGuard(linkRoot).Resolve("a_1-1.json")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	canonReal, _ := filepath.EvalSymlinks(target)
	if !strings.HasPrefix(got, canonReal+string(filepath.Separator)) {
		t.Fatalf("Resolve = %q, want under %q", got, canonReal)
	}
}

func TestWithin(t *testing.T) {
	tests := []struct {
		root, p string
		want    bool
	}{
		{"/srv/articles", "/srv/articles", true},
		{"/srv/articles", "/srv/articles/a.json", true},
		{"/srv/articles", "/srv/articles-evil/a.json", false},
		{"/srv/articles", "/srv", false},
		{"/", "/anything", true},
	}
	for _, tt := range tests {
		if got := Within(tt.root, tt.p); got != tt.want {
			t.Errorf("Within(%q, %q) = %v, want %v", tt.root, tt.p, got, tt.want)
		}
	}
}

func FuzzCheckName(f *testing.F) {
	f.Add("post_1-2.json")
	f.Add("../x")
	f.Add("a/b")
	f.Add("..")
	f.Add("...")

	f.Fuzz(func(t *testing.T, name string) {
		if CheckName(name) != nil {
			return
		}
		// INVARIANT: an accepted name is one element that cannot climb out
		if strings.ContainsAny(name, "/\\\x00") || strings.Contains(name, "..") {
			t.Fatalf("CheckName accepted %q", name)
		}
		if filepath.Base(name) != name {
			t.Fatalf("accepted name %q is not a single element", name)
		}
	})
}
