// Package fsutil provides the out-of-scope external collaborators named
// in spec §1 that the core treats only as interfaces: directory
// enumeration and the on-disk file reader/writer. Only the sample
// drivers (cmd/*) depend on this package; the core packages depend only
// on the session.FileSource/session.FileSink interfaces.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Entry pairs a source path discovered under a root with the target
// path it should be written to on the remote side.
type Entry struct {
	Source string
	Target string
}

// Enumerate walks sourceRoot and returns one Entry per regular file,
// with Target rewritten under targetRoot preserving the relative path.
// This is the default implementation of the directory-enumeration
// collaborator; core packages never call this directly.
func Enumerate(sourceRoot, targetRoot string) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(sourceRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(sourceRoot, path)
		if err != nil {
			return fmt.Errorf("fsutil: relativizing %q: %w", path, err)
		}
		entries = append(entries, Entry{
			Source: path,
			Target: filepath.Join(targetRoot, rel),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fsutil: enumerating %q: %w", sourceRoot, err)
	}
	return entries, nil
}

// OSFileStore implements session.FileSource and session.FileSink over
// the local filesystem, creating parent directories as needed on
// Create. It is the default on-disk file reader/writer collaborator.
type OSFileStore struct{}

func (OSFileStore) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fsutil: opening %q: %w", path, err)
	}
	return f, nil
}

func (OSFileStore) Create(path string) (io.WriteCloser, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("fsutil: creating directory for %q: %w", path, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("fsutil: creating %q: %w", path, err)
	}
	return f, nil
}
