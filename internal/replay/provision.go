package replay

import (
	"errors"
	"io/fs"
	"syscall"

	"github.com/banshee-data/bagtopcd/internal/fsutil"
	"github.com/banshee-data/bagtopcd/internal/monitoring"
)

// EnsureDir makes sure path exists as a directory, creating it and any
// missing parents. An existing non-directory at path is an error.
func EnsureDir(fsys fsutil.FileSystem, path string) error {
	info, err := fsys.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		return &DirectoryCreateError{Path: path, Err: syscall.ENOTDIR}
	case !errors.Is(err, fs.ErrNotExist):
		return &DirectoryCreateError{Path: path, Err: err}
	}

	if err := fsys.MkdirAll(path, 0755); err != nil {
		return &DirectoryCreateError{Path: path, Err: err}
	}
	monitoring.Logf("Creating directory %s", path)
	return nil
}
