package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// IsArchive reports whether p names a .zip file.
func IsArchive(p string) bool {
	return strings.EqualFold(filepath.Ext(p), ".zip")
}

// Archive gives read access to the regular files of a ZIP archive by name.
// A file can be opened by its full entry name or, when no other entry shares
// it, by its base name, so archives that wrap the data in a folder still resolve.
type Archive struct {
	rc    *zip.ReadCloser
	names map[string]*zip.File
	bases map[string]*zip.File // nil value marks an ambiguous base name
}

// Ensure Archive implements io.Closer
var _ io.Closer = (*Archive)(nil)

// OpenArchive reads the central directory of the archive at p.
func OpenArchive(p string) (*Archive, error) {
	rc, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip archive: %w", err)
	}

	a := &Archive{
		rc:    rc,
		names: make(map[string]*zip.File, len(rc.File)),
		bases: make(map[string]*zip.File, len(rc.File)),
	}
	for _, f := range rc.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := path.Clean(f.Name)
		a.names[name] = f

		base := path.Base(name)
		if _, dup := a.bases[base]; dup {
			a.bases[base] = nil
		} else {
			a.bases[base] = f
		}
	}
	return a, nil
}

// Open returns a reader for the named file. Missing and ambiguous names
// return an error wrapping fs.ErrNotExist.
func (a *Archive) Open(name string) (io.ReadCloser, error) {
	clean := path.Clean(filepath.ToSlash(name))
	f := a.names[clean]
	if f == nil && !strings.Contains(clean, "/") {
		f = a.bases[clean]
	}
	if f == nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	r, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s in zip archive: %w", f.Name, err)
	}
	return r, nil
}

// Names returns the sorted entry names of the regular files in the archive.
func (a *Archive) Names() []string {
	list := make([]string, 0, len(a.names))
	for name := range a.names {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}

// Close closes the underlying archive file.
func (a *Archive) Close() error {
	if a.rc != nil {
		return a.rc.Close()
	}
	return nil
}
