package archive

import (
	"archive/zip"
	"fmt"
	"path"
	"strings"
)

// WalkFunc is the type of the function called for each entry in archive
// visited by Walk. The name argument is entry name (decoded using forced code
// page when requested), file is the zip.File structure for the entry. If an
// error is returned, processing stops.
type WalkFunc func(name string, file *zip.File) error

// Walk visits all entries in archive order, directories included, calling
// walkFn for each. Entries with path traversal components ("..") or absolute
// paths abort the walk: such archives are never repackaged.
func (a *Archive) Walk(walkFn WalkFunc) error {
	for _, f := range a.files {
		name := a.names[f]
		if !isSafePath(name) {
			return fmt.Errorf("zip entry %q: unsafe path (absolute or contains path traversal): %w", name, ErrPackaging)
		}
		if err := walkFn(name, f); err != nil {
			return err
		}
	}
	return nil
}

// isSafePath returns false for paths that could escape the archive root:
// absolute paths and those containing ".." components.
func isSafePath(name string) bool {
	if path.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}
