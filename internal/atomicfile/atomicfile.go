// Package atomicfile replaces files so readers see either the old content or
// the new content, never a partial write.
package atomicfile

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/1a11/billard/internal/xerrors"
)

// TempPrefix marks in-flight temp files. Directory scanners skip them.
const TempPrefix = ".billard-tmp-"

const DefaultPerm os.FileMode = 0o644

// Writer writes files through a temp file in the target directory followed
// by a rename.
type Writer struct {
	Perm os.FileMode

	// rename is os.Rename outside tests
	rename func(oldpath, newpath string) error
}

func New() *Writer {
	return &Writer{Perm: DefaultPerm, rename: os.Rename}
}

// IsTemp reports whether name is one of this package's temp files.
func IsTemp(name string) bool {
	return strings.HasPrefix(filepath.Base(name), TempPrefix)
}

// Write replaces dir/name with data. On any failure before the rename the
// temp file is removed and dir/name is left as it was.
func (w *Writer) Write(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return xerrors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return xerrors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return xerrors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return xerrors.Wrap(err, "close temp file")
	}

	perm := w.Perm
	if perm == 0 {
		perm = DefaultPerm
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return xerrors.Wrap(err, "chmod temp file")
	}

	rename := w.rename
	if rename == nil {
		rename = os.Rename
	}
	if err := rename(tmpName, filepath.Join(dir, name)); err != nil {
		return xerrors.Wrapf(err, "rename temp file to %s", name)
	}
	committed = true

	// the rename itself is durable only once the directory entry is synced
	if err := syncDir(dir); err != nil {
		return xerrors.Wrap(err, "sync directory")
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
