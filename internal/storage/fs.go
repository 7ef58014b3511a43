package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/mocsync/internal/apperr"
	"github.com/starford/mocsync/internal/checksum"
	"github.com/starford/mocsync/internal/models"
)

// DocumentExt is the extension that marks a file as a document.
const DocumentExt = ".md"

// LocalTrashDir is the vault-local trash folder used when the system trash is
// unavailable. Hidden, so it is never treated as hub content.
const LocalTrashDir = ".trash"

// FS implements Provider backed by the local file system.
type FS struct {
	root        string // absolute path to vault directory
	systemTrash string // optional absolute path of the system trash "files" dir
}

// FSOption configures an FS provider.
type FSOption func(*FS)

// WithSystemTrash sets the directory used by Trash(path, true).
func WithSystemTrash(dir string) FSOption {
	return func(f *FS) {
		f.systemTrash = dir
	}
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string, opts ...FSOption) (*FS, error) {
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
	f := &FS{root: abs}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Root returns the absolute vault root.
func (f *FS) Root() string {
	return f.root
}

// safePath resolves a relative path against the vault root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" || rel == "." {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes vault root: %s", rel)
	}
	return abs, nil
}

func (f *FS) rel(abs string) string {
	r, err := filepath.Rel(f.root, abs)
	if err != nil || r == "." {
		return ""
	}
	return filepath.ToSlash(r)
}

// List walks dir and returns metadata for every document, skipping hidden
// folders such as the local trash.
func (f *FS) List(dir string) ([]models.NoteMetadata, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	var out []models.NoteMetadata
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if isHidden(d.Name()) && p != base {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), DocumentExt) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out = append(out, models.NoteMetadata{
			Path:      f.rel(p),
			Checksum:  checksum.Sum(data),
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// Children returns the immediate children of dir. os.ReadDir sorts by name,
// which gives the folder listing order used for item enumeration.
func (f *FS) Children(dir string) ([]models.Entry, error) {
	abs, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("storage: children %s: %w", dir, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: children %s: %w", dir, err)
	}
	out := make([]models.Entry, 0, len(entries))
	for _, e := range entries {
		if isHidden(e.Name()) {
			continue
		}
		out = append(out, models.Entry{
			Path:  path.Join(dir, e.Name()),
			Name:  e.Name(),
			IsDir: e.IsDir(),
		})
	}
	return out, nil
}

// Exists reports whether path exists.
func (f *FS) Exists(p string) bool {
	abs, err := f.safePath(p)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// IsDir reports whether path exists and is a directory.
func (f *FS) IsDir(p string) bool {
	abs, err := f.safePath(p)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && info.IsDir()
}

// Read returns the raw bytes of a vault file.
func (f *FS) Read(p string) ([]byte, error) {
	abs, err := f.safePath(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("storage: read %s: %w", p, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", p, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(p string, content []byte) error {
	abs, err := f.safePath(p)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".mocsync-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Create writes a new file; the parent folder must exist.
func (f *FS) Create(p string, content []byte) error {
	abs, err := f.safePath(p)
	if err != nil {
		return err
	}
	fh, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("storage: create %s: %w", p, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("storage: create %s: %w", p, err)
	}
	if _, err := fh.Write(content); err != nil {
		_ = fh.Close()
		return fmt.Errorf("storage: create %s: %w", p, err)
	}
	if err := fh.Close(); err != nil {
		return fmt.Errorf("storage: create %s: %w", p, err)
	}
	return nil
}

// CreateFolder creates a single folder; the parent must exist.
func (f *FS) CreateFolder(p string) error {
	abs, err := f.safePath(p)
	if err != nil {
		return err
	}
	if err := os.Mkdir(abs, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("storage: create folder %s: %w", p, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("storage: create folder %s: %w", p, err)
	}
	return nil
}

// Rename moves a file or folder. Unlike os.Rename it refuses to replace an
// existing destination.
func (f *FS) Rename(oldPath, newPath string) error {
	absOld, err := f.safePath(oldPath)
	if err != nil {
		return err
	}
	absNew, err := f.safePath(newPath)
	if err != nil {
		return err
	}
	if absOld == absNew {
		return nil
	}
	oldInfo, err := os.Stat(absOld)
	if err != nil {
		return fmt.Errorf("storage: rename %s: %w", oldPath, apperr.ErrNotFound)
	}
	// A case-only rename on a case-insensitive volume stats the source twice.
	if newInfo, err := os.Stat(absNew); err == nil && !os.SameFile(oldInfo, newInfo) {
		return fmt.Errorf("storage: rename %s -> %s: %w", oldPath, newPath, apperr.ErrAlreadyExists)
	}
	if err := os.Rename(absOld, absNew); err != nil {
		return fmt.Errorf("storage: rename %s -> %s: %w", oldPath, newPath, err)
	}
	return nil
}

// Same reports whether a and b both exist and name the same file or folder.
func (f *FS) Same(a, b string) bool {
	absA, err := f.safePath(a)
	if err != nil {
		return false
	}
	absB, err := f.safePath(b)
	if err != nil {
		return false
	}
	infoA, err := os.Stat(absA)
	if err != nil {
		return false
	}
	infoB, err := os.Stat(absB)
	if err != nil {
		return false
	}
	return os.SameFile(infoA, infoB)
}

// Trash moves path into the system trash when requested and available,
// otherwise into the vault-local trash folder.
func (f *FS) Trash(p string, system bool) error {
	abs, err := f.safePath(p)
	if err != nil {
		return err
	}
	if abs == f.root {
		return fmt.Errorf("storage: refusing to trash vault root")
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("storage: trash %s: %w", p, apperr.ErrNotFound)
	}
	if system && f.systemTrash != "" {
		if err := moveIntoDir(abs, f.systemTrash); err == nil {
			return nil
		}
	}
	if err := moveIntoDir(abs, filepath.Join(f.root, LocalTrashDir)); err != nil {
		return fmt.Errorf("storage: trash %s: %w", p, err)
	}
	return nil
}

// Delete removes a file from the vault.
func (f *FS) Delete(p string) error {
	abs, err := f.safePath(p)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w", p, err)
	}
	return nil
}

func moveIntoDir(abs, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(dir, filepath.Base(abs))
	if _, err := os.Stat(dst); err == nil {
		dst = filepath.Join(dir, filepath.Base(abs)+"."+uuid.NewString()[:8])
	}
	return os.Rename(abs, dst)
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
