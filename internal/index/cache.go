package index

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/starford/mocsync/internal/checksum"
	"github.com/starford/mocsync/internal/layout"
	"github.com/starford/mocsync/internal/models"
	"github.com/starford/mocsync/internal/storage"
)

// Metadata is the link and marker snapshot of one document.
type Metadata struct {
	Path     string
	Checksum string
	IsHub    bool
	Links    []models.Link
}

// Cache serves document metadata from the index, re-indexing a document on
// demand when its stored checksum no longer matches the file on disk.
type Cache struct {
	db     *DB
	store  storage.Provider
	marker string
	logger *slog.Logger
}

// NewCache creates a metadata cache over db for the documents in store.
// marker is the front-matter key that flags a hub.
func NewCache(db *DB, store storage.Provider, marker string, logger *slog.Logger) *Cache {
	return &Cache{db: db, store: store, marker: marker, logger: logger}
}

// DB returns the underlying index database.
func (c *Cache) DB() *DB {
	return c.db
}

// Sync brings the whole index up to date with the vault.
func (c *Cache) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return Sync(c.db, c.store, c.marker, c.logger)
}

// Metadata returns the snapshot for path. The returned checksum is that of
// the bytes the links were extracted from.
func (c *Cache) Metadata(ctx context.Context, p string) (*Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := c.store.Read(p)
	if err != nil {
		return nil, err
	}
	sum := checksum.Sum(data)

	row, err := c.db.GetNote(p)
	if err != nil || row.Checksum != sum {
		row, err = indexFile(c.db, p, data, c.marker)
		if err != nil {
			return nil, fmt.Errorf("index: metadata %s: %w", p, err)
		}
		c.logger.Debug("cache: refreshed", slog.String("path", p))
	}
	links, err := c.db.Links(p)
	if err != nil {
		return nil, err
	}
	return &Metadata{Path: p, Checksum: row.Checksum, IsHub: row.IsHub, Links: links}, nil
}

// Refresh re-indexes the given paths. Documents are indexed, folders are
// re-indexed recursively and paths that no longer exist are dropped.
func (c *Cache) Refresh(ctx context.Context, paths ...string) error {
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch {
		case c.store.IsDir(p):
			metas, err := c.store.List(p)
			if err != nil {
				return err
			}
			for _, m := range metas {
				if err := c.refreshFile(m.Path); err != nil {
					return err
				}
			}
		case c.store.Exists(p):
			if strings.HasSuffix(p, storage.DocumentExt) {
				if err := c.refreshFile(p); err != nil {
					return err
				}
			}
		default:
			if err := c.db.DeleteUnder(p); err != nil {
				return err
			}
			if err := c.db.DeleteNote(p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Cache) refreshFile(p string) error {
	data, err := c.store.Read(p)
	if err != nil {
		return err
	}
	_, err = indexFile(c.db, p, data, c.marker)
	return err
}

// HubPaths returns every indexed document flagged as a hub.
func (c *Cache) HubPaths(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.db.HubPaths()
}

// IsHub reports whether the indexed document at p carries the hub marker.
func (c *Cache) IsHub(ctx context.Context, p string) bool {
	m, err := c.Metadata(ctx, p)
	return err == nil && m.IsHub
}

// HasDocument reports whether target names an existing document. A target
// with a folder component must match exactly; a bare name matches any
// document with that file name except item pages of hubs.
func (c *Cache) HasDocument(ctx context.Context, target string) bool {
	if ctx.Err() != nil {
		return false
	}
	if strings.Contains(target, "/") {
		cs, _ := c.db.GetChecksum(target)
		return cs != "" || c.store.Exists(target)
	}
	paths, err := c.db.PathsByName(path.Base(target))
	if err != nil {
		return false
	}
	for _, p := range paths {
		if owner := layout.Dir(layout.Dir(p)); owner != "" && layout.IsColocated(p) && c.IsHub(ctx, layout.EntryPage(owner)) {
			continue
		}
		return true
	}
	return false
}
