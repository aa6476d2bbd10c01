package sitehandler

import (
	"io/fs"
	"os"
	"path/filepath"
)

// DirSource serves a directory on disk once it holds an index.html. It is
// checked per request so a frontend deployed after startup is picked up.
type DirSource struct {
	dir  string
	fsys fs.FS
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir, fsys: os.DirFS(dir)}
}

func (d *DirSource) Get() (fs.FS, bool) {
	info, err := os.Stat(filepath.Join(d.dir, "index.html"))
	if err != nil || info.IsDir() {
		return nil, false
	}
	return d.fsys, true
}
