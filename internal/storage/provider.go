// Package storage reads and atomically replaces the managed target file.
package storage

// Provider is the interface for target file operations.
type Provider interface {
	// Read returns the raw bytes at path. A missing file yields apperr.ErrSourceMissing.
	Read(path string) ([]byte, error)
	// WriteAtomic validates content and replaces path so that readers observe
	// either the old bytes or the new bytes, never a mix.
	WriteAtomic(path string, content []byte) error
}
