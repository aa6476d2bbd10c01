package webassets

import (
	"io/fs"
	"strings"
	"testing"
)

func TestFallbackFS_Pages(t *testing.T) {
	fsys := FallbackFS()
	for name, want := range map[string]string{
		MaintenanceFile: "Back soon",
		NotFoundFile:    "Not found",
	} {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		s := string(data)
		if !strings.HasPrefix(s, "<!doctype html>") || !strings.Contains(s, want) {
			t.Fatalf("%s content unexpected:\n%s", name, s)
		}
	}
}

func TestFallbackFS_OnlyFallbackDir(t *testing.T) {
	entries, err := fs.ReadDir(FallbackFS(), ".")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			t.Fatalf("unexpected directory %q in fallback fs", e.Name())
		}
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
}
