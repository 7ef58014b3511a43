package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/mocsync/internal/apperr"
	"github.com/starford/mocsync/internal/models"
)

// NoteRow represents a row in the notes table.
type NoteRow struct {
	Path      string
	Name      string
	Checksum  string
	IsHub     bool
	UpdatedAt time.Time
}

// UpsertNote inserts or replaces a note and its links within a transaction.
func (db *DB) UpsertNote(n NoteRow, links []models.Link) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO notes (path, name, checksum, is_hub, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name       = excluded.name,
			checksum   = excluded.checksum,
			is_hub     = excluded.is_hub,
			updated_at = excluded.updated_at
	`, n.Path, n.Name, n.Checksum, n.IsHub, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	// Replace links: delete old then bulk insert.
	if _, err := tx.Exec(`DELETE FROM links WHERE source = ?`, n.Path); err != nil {
		return fmt.Errorf("index: clear links: %w", err)
	}
	if len(links) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO links (source, ord, original, target, display, kind, line, col)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for i, l := range links {
			if _, err := stmt.Exec(n.Path, i, l.Original, l.Target, l.Display, string(l.Kind), l.Line, l.Col); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteNote removes a note and its outgoing links.
func (db *DB) DeleteNote(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM links WHERE source = ?`, path); err != nil {
		return fmt.Errorf("index: delete links: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM notes WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete note: %w", err)
	}
	return tx.Commit()
}

// DeleteUnder removes every note stored below dir. The range bounds use '0',
// the byte after '/', so no LIKE escaping is needed.
func (db *DB) DeleteUnder(dir string) error {
	lo, hi := dir+"/", dir+"0"
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM links WHERE source > ? AND source < ?`, lo, hi); err != nil {
		return fmt.Errorf("index: delete links under %s: %w", dir, err)
	}
	if _, err := tx.Exec(`DELETE FROM notes WHERE path > ? AND path < ?`, lo, hi); err != nil {
		return fmt.Errorf("index: delete notes under %s: %w", dir, err)
	}
	return tx.Commit()
}

// HasUnder reports whether any note is stored below dir.
func (db *DB) HasUnder(dir string) (bool, error) {
	var n int
	err := db.conn.QueryRow(`SELECT count(*) FROM notes WHERE path > ? AND path < ?`, dir+"/", dir+"0").Scan(&n)
	if err != nil {
		return false, fmt.Errorf("index: has under: %w", err)
	}
	return n > 0, nil
}

// GetNote returns the stored row for path.
func (db *DB) GetNote(path string) (*NoteRow, error) {
	var n NoteRow
	err := db.conn.QueryRow(`SELECT path, name, checksum, is_hub, updated_at FROM notes WHERE path = ?`, path).
		Scan(&n.Path, &n.Name, &n.Checksum, &n.IsHub, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: note %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}
	return &n, nil
}

// GetChecksum returns the stored checksum for a note, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM notes WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// AllChecksums returns path → checksum for every indexed note.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// HubPaths returns the paths of every note flagged as a hub, in path order.
func (db *DB) HubPaths() ([]string, error) {
	rows, err := db.conn.Query(`SELECT path FROM notes WHERE is_hub = 1 ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("index: hub paths: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Links returns the links extracted from path, in document order.
func (db *DB) Links(path string) ([]models.Link, error) {
	rows, err := db.conn.Query(`
		SELECT original, target, display, kind, line, col
		FROM links WHERE source = ? ORDER BY ord`, path)
	if err != nil {
		return nil, fmt.Errorf("index: links: %w", err)
	}
	defer rows.Close()
	var out []models.Link
	for rows.Next() {
		var l models.Link
		var kind string
		if err := rows.Scan(&l.Original, &l.Target, &l.Display, &kind, &l.Line, &l.Col); err != nil {
			return nil, err
		}
		l.Kind = models.LinkKind(kind)
		out = append(out, l)
	}
	return out, rows.Err()
}

// PathsByName returns the paths of indexed notes with the given file name.
func (db *DB) PathsByName(name string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT path FROM notes WHERE name = ? ORDER BY path`, name)
	if err != nil {
		return nil, fmt.Errorf("index: paths by name: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("index: paths by name: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetSetting returns the stored value for key and whether it was present.
func (db *DB) GetSetting(key string) (string, bool, error) {
	var v string
	err := db.conn.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("index: get setting: %w", err)
	}
	return v, true, nil
}

// SetSetting stores value under key.
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("index: set setting: %w", err)
	}
	return nil
}
