// Package storage defines the vault file-system abstraction.
package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_provider.go -package=mocks github.com/starford/mocsync/internal/storage Provider

import "github.com/starford/mocsync/internal/models"

// Provider is the interface for vault file operations. All paths are
// slash-separated and relative to the vault root; "" denotes the root.
type Provider interface {
	// List returns metadata for every document under dir, recursively.
	List(dir string) ([]models.NoteMetadata, error)
	// Children returns the immediate, non-hidden children of dir in name order.
	Children(dir string) ([]models.Entry, error)
	// Exists reports whether a file or folder exists at path.
	Exists(path string) bool
	// IsDir reports whether path exists and is a folder.
	IsDir(path string) bool
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the content of the file at path.
	Write(path string, content []byte) error
	// Create writes a new file and fails if path already exists.
	Create(path string, content []byte) error
	// CreateFolder creates a folder and fails if path already exists.
	CreateFolder(path string) error
	// Same reports whether a and b name the same existing file or folder,
	// as they do for case variants on a case-insensitive volume.
	Same(a, b string) bool
	// Rename moves oldPath to newPath and fails if newPath already exists.
	Rename(oldPath, newPath string) error
	// Trash moves path out of the vault. With system set the system trash is
	// tried first, falling back to the vault-local trash folder.
	Trash(path string, system bool) error
	// Delete removes the file at path.
	Delete(path string) error
}
