package index

import "github.com/starford/mocsync/internal/models"

// NoteIndex defines the interface for metadata persistence.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type NoteIndex interface {
	UpsertNote(n NoteRow, links []models.Link) error
	DeleteNote(path string) error
	DeleteUnder(dir string) error
	HasUnder(dir string) (bool, error)
	GetNote(path string) (*NoteRow, error)
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	HubPaths() ([]string, error)
	Links(path string) ([]models.Link, error)
	PathsByName(name string) ([]string, error)
	GetSetting(key string) (string, bool, error)
	SetSetting(key, value string) error
	Close() error
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)
