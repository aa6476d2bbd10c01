package sitehandler

import (
	"io/fs"
	"path"
	"strings"

	"github.com/1a11/billard/internal/pathutil"
)

// resolvePath maps a URL path onto a file in fsys. A non-empty redirectTo
// asks the caller to redirect to the canonical trailing-slash URL.
func resolvePath(urlPath string, fsys fs.FS) (file, redirectTo string, ok bool) {
	p := urlPath
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if strings.ContainsAny(p, "\x00\\") || strings.Contains(p, "..") || pathutil.HasDotSegments(p) {
		return "", "", false
	}

	dir := strings.HasSuffix(p, "/")
	clean := path.Clean(p)

	var name string
	switch {
	case clean == "/":
		name = "index.html"
	case dir:
		name = strings.TrimPrefix(clean, "/") + "/index.html"
	case path.Ext(clean) != "":
		name = strings.TrimPrefix(clean, "/")
	default:
		// /about -> /about/ when about/index.html exists
		if existsFile(fsys, strings.TrimPrefix(clean, "/")+"/index.html") {
			return "", clean + "/", true
		}
		return "", "", false
	}
	if !existsFile(fsys, name) {
		return "", "", false
	}
	return name, "", true
}

func existsFile(fsys fs.FS, name string) bool {
	if name == "" || !fs.ValidPath(name) {
		return false
	}
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}
