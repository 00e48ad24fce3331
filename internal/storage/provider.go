// Package storage defines the uploads file-system abstraction.
package storage

import "time"

// FileInfo describes one stored upload.
type FileInfo struct {
	Name      string // base filename, doubles as the source name
	Checksum  string
	Size      int64
	UpdatedAt time.Time
}

// Provider is the interface for upload file operations. All names are plain
// base filenames; implementations reject anything resembling a path.
type Provider interface {
	// List returns metadata for every stored upload.
	List() ([]FileInfo, error)
	// Read returns the raw bytes of the named upload.
	Read(name string) ([]byte, error)
	// Write atomically persists content under name.
	Write(name string, content []byte) error
	// Delete removes the named upload.
	Delete(name string) error
	// Exists reports whether the named upload is present.
	Exists(name string) (bool, error)
}
