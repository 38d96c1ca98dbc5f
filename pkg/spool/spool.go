// Package spool manages the on-disk spool directory where uploaded and
// converted documents live between acceptance and print dispatch.
package spool

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Spool is a directory holding files awaiting print dispatch. File
// names are prefixed with a UUID so concurrent uploads of the same
// document never collide.
type Spool struct {
	dir string
}

// New creates the spool directory if needed and returns a Spool.
func New(dir string) (*Spool, error) {
	if dir == "" {
		return nil, fmt.Errorf("spool directory not configured")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating spool directory %s: %w", dir, err)
	}
	return &Spool{dir: dir}, nil
}

// Dir returns the spool directory path.
func (s *Spool) Dir() string {
	return s.dir
}

// Path returns a fresh spool path for an upload with the given name.
// The base name is sanitized so a crafted file name cannot escape the
// spool directory.
func (s *Spool) Path(name string) string {
	base := sanitize(name)
	return filepath.Join(s.dir, uuid.NewString()+"_"+base)
}

// Contains reports whether path is a direct child of the spool
// directory. Paths from untrusted input must pass this check before
// being handed to a subprocess.
func (s *Spool) Contains(path string) bool {
	return filepath.Dir(path) == filepath.Clean(s.dir)
}

// Files returns the paths of all regular files currently in the spool.
func (s *Spool) Files() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading spool directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() {
			paths = append(paths, filepath.Join(s.dir, e.Name()))
		}
	}
	return paths, nil
}

// MatchesName reports whether path holds an upload originally named
// name. Spool names carry a random prefix, so only the sanitized
// suffix is compared.
func (s *Spool) MatchesName(path, name string) bool {
	return strings.HasSuffix(filepath.Base(path), "_"+sanitize(name))
}

// Remove deletes a spool file. Missing files are not an error; removal
// runs on every exit path and may race completed cleanup.
func (s *Spool) Remove(path string) error {
	if path == "" || !s.Contains(path) {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing spool file: %w", err)
	}
	return nil
}

func sanitize(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, "..", "")
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "upload"
	}
	return base
}
