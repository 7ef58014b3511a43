package index

import (
	"log/slog"
	"path"
	"time"

	"github.com/starford/mocsync/internal/checksum"
	"github.com/starford/mocsync/internal/parser"
	"github.com/starford/mocsync/internal/storage"
)

// Sync walks the vault and brings the index up to date:
//   - new/changed files are parsed and upserted
//   - files removed from disk are deleted from the index
func Sync(db *DB, store storage.Provider, marker string, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if _, err := indexFile(db, m.Path, data, marker); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteNote(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// indexFile parses data and upserts it into the DB.
func indexFile(db *DB, p string, data []byte, marker string) (*NoteRow, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	row := NoteRow{
		Path:      p,
		Name:      path.Base(p),
		Checksum:  checksum.Sum(data),
		IsHub:     res.HasFlag(marker),
		UpdatedAt: time.Now().UTC(),
	}
	if err := db.UpsertNote(row, res.Links); err != nil {
		return nil, err
	}
	return &row, nil
}
