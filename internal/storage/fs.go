package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/tiwaz/internal/apperr"
	"github.com/starford/tiwaz/internal/checksum"
)

// FS implements Provider backed by a flat uploads directory.
type FS struct {
	root string // absolute path to the uploads directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute uploads directory path.
func (f *FS) Root() string {
	return f.root
}

// safeName validates that name is a plain filename (no separators, no
// traversal) and returns the absolute path under the uploads root.
func (f *FS) safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("storage: empty name: %w", apperr.ErrValidation)
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("storage: invalid name %q: %w", name, apperr.ErrValidation)
	}
	abs := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: name escapes uploads root %q: %w", name, apperr.ErrValidation)
	}
	return abs, nil
}

// List returns metadata for every regular file in the uploads directory.
// Dotfiles and subdirectories are skipped.
func (f *FS) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %v: %w", err, apperr.ErrStorage)
	}
	var out []FileInfo
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("storage: stat %s: %v: %w", e.Name(), err, apperr.ErrStorage)
		}
		data, err := os.ReadFile(filepath.Join(f.root, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("storage: read %s: %v: %w", e.Name(), err, apperr.ErrStorage)
		}
		out = append(out, FileInfo{
			Name:      e.Name(),
			Checksum:  checksum.Sum(data),
			Size:      info.Size(),
			UpdatedAt: info.ModTime(),
		})
	}
	return out, nil
}

// Read returns the raw bytes of a stored upload.
func (f *FS) Read(name string) ([]byte, error) {
	abs, err := f.safeName(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage: read %s: %w", name, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: read %s: %v: %w", name, err, apperr.ErrStorage)
	}
	return data, nil
}

// Write atomically persists content: tmp file, fsync, rename.
func (f *FS) Write(name string, content []byte) error {
	abs, err := f.safeName(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.root, ".tiwaz-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %v: %w", err, apperr.ErrStorage)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %v: %w", err, apperr.ErrStorage)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %v: %w", err, apperr.ErrStorage)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %v: %w", err, apperr.ErrStorage)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %v: %w", err, apperr.ErrStorage)
	}
	success = true
	return nil
}

// Delete removes a stored upload.
func (f *FS) Delete(name string) error {
	abs, err := f.safeName(name)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("storage: delete %s: %w", name, apperr.ErrNotFound)
		}
		return fmt.Errorf("storage: delete %s: %v: %w", name, err, apperr.ErrStorage)
	}
	return nil
}

// Exists reports whether the named upload is present.
func (f *FS) Exists(name string) (bool, error) {
	abs, err := f.safeName(name)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("storage: stat %s: %v: %w", name, err, apperr.ErrStorage)
	}
	return true, nil
}
