package sitehandler

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/1a11/billard/internal/log"
)

var ErrInvalidOptions = errors.New("sitehandler: invalid options")

// Source yields the frontend file tree, or false while there is none to
// serve.
type Source interface {
	Get() (fs.FS, bool)
}

type Options struct {
	Logger log.Logger
	Site   Source
	// FallbackFS holds the maintenance page and a default 404.
	FallbackFS fs.FS

	MaintenanceFile string // in FallbackFS, default "maintenance.html"
	Fallback404File string // in FallbackFS, default "404.html"
	Site404File     string // in the site tree, default "404.html"

	HTMLCacheControl  string // default "no-cache"
	AssetCacheControl string // default "public, max-age=86400"
	OtherCacheControl string // default "public, max-age=3600"
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.MaintenanceFile == "" {
		o.MaintenanceFile = "maintenance.html"
	}
	if o.Fallback404File == "" {
		o.Fallback404File = "404.html"
	}
	if o.Site404File == "" {
		o.Site404File = "404.html"
	}
	if o.HTMLCacheControl == "" {
		o.HTMLCacheControl = "no-cache"
	}
	// frontend assets are not fingerprinted, so no immutable
	if o.AssetCacheControl == "" {
		o.AssetCacheControl = "public, max-age=86400"
	}
	if o.OtherCacheControl == "" {
		o.OtherCacheControl = "public, max-age=3600"
	}
}

func (o *Options) validate() error {
	if o.Site == nil {
		return fmt.Errorf("%w: Site is nil", ErrInvalidOptions)
	}
	if o.FallbackFS == nil {
		return fmt.Errorf("%w: FallbackFS is nil", ErrInvalidOptions)
	}
	if _, err := fs.Stat(o.FallbackFS, o.MaintenanceFile); err != nil {
		return fmt.Errorf("%w: missing %q in fallback fs: %v", ErrInvalidOptions, o.MaintenanceFile, err)
	}
	return nil
}
