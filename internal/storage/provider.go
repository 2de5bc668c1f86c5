// Package storage defines the vault file-system abstraction used for note
// mirrors.
package storage

import "time"

// File describes a document file found in the vault.
type File struct {
	Path    string
	ModTime time.Time
}

// Provider is the interface for vault file operations. All paths are
// relative to the vault root.
type Provider interface {
	// List returns the files directly inside dir (no recursion) whose names
	// match pattern.
	List(dir, pattern string) ([]File, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Abs resolves path against the vault root.
	Abs(path string) (string, error)
}
