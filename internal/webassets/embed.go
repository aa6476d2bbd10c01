// Package webassets embeds the pages served when the static frontend
// directory is missing or has no 404 page of its own.
package webassets

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed fallback
var embedded embed.FS

const (
	MaintenanceFile = "maintenance.html"
	NotFoundFile    = "404.html"
)

// FallbackFS is rooted at the fallback directory.
func FallbackFS() fs.FS {
	sub, err := fs.Sub(embedded, "fallback")
	if err != nil {
		panic(fmt.Errorf("webassets: fallback subfs: %w", err))
	}
	return sub
}
