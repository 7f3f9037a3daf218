// Package archive reads produced books back: Walk abstraction on top of
// "archive/zip" and structural inspection of EPUB containers.
package archive

import (
	"archive/zip"
	"fmt"
	"path"
	"strings"
)

// WalkFunc is the type of the function called for each file in archive
// visited by Walk. If an error is returned, processing stops.
type WalkFunc func(file *zip.File) error

// Walk walks all files in the archive which names start with prefix in the
// order they are stored, calling walkFn for each item. Archives with absolute
// names or path traversal components are rejected.
func Walk(r *zip.Reader, prefix string, walkFn WalkFunc) error {
	for _, f := range r.File {
		name := f.FileHeader.Name
		if !isSafePath(name) {
			return fmt.Errorf("zip entry %q: unsafe path (absolute or contains path traversal)", name)
		}
		if !f.FileInfo().IsDir() && strings.HasPrefix(name, prefix) {
			if err := walkFn(f); err != nil {
				return err
			}
		}
	}
	return nil
}

// isSafePath returns false for absolute paths and those containing ".."
// components.
func isSafePath(name string) bool {
	if path.IsAbs(name) || strings.HasPrefix(name, `\`) {
		return false
	}
	for part := range strings.SplitSeq(name, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}
