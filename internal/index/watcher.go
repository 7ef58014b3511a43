package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/mocsync/internal/storage"
)

// EventKind classifies a vault change reported by Watch.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventRenamed EventKind = "renamed"
	EventDeleted EventKind = "deleted"
)

// Event is a structural vault change. OldPath is set for renames.
type Event struct {
	Kind    EventKind `json:"kind"`
	Path    string    `json:"path"`
	OldPath string    `json:"old_path,omitempty"`
	IsDir   bool      `json:"is_dir"`
}

// EventCallback is called after a watcher-driven index change.
type EventCallback func(Event)

const (
	// fsnotify reports a move as Rename(old) followed by Create(new); a
	// Rename left unpaired for this long moved out of the vault.
	renamePairWindow = 100 * time.Millisecond
	reconcileDelay   = 200 * time.Millisecond
)

type watcher struct {
	w      *fsnotify.Watcher
	db     *DB
	store  storage.Provider
	root   string
	marker string
	logger *slog.Logger
	cb     EventCallback
	dirs   map[string]struct{} // watched folders, vault-relative
}

// Watch starts an fsnotify watcher on the vault root and processes file
// change events until ctx is cancelled. Documents are re-indexed as they
// change and cb (if non-nil) receives created/renamed/deleted events.
//
// New directories created at runtime are automatically added to the watch
// list. Hidden paths are ignored, which covers temp files of atomic writes
// and the local trash.
func Watch(ctx context.Context, db *DB, store storage.Provider, vaultRoot, marker string, logger *slog.Logger, cb EventCallback) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	root, err := filepath.Abs(vaultRoot)
	if err != nil {
		return err
	}
	wt := &watcher{
		w: fw, db: db, store: store, root: root, marker: marker,
		logger: logger, cb: cb, dirs: make(map[string]struct{}),
	}
	if err := wt.addDirsRecursive(root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var (
		pending   *Event
		pairTimer = time.NewTimer(time.Hour)
		reconcile *time.Timer
		reconCh   <-chan time.Time
	)
	pairTimer.Stop()
	defer pairTimer.Stop()

	scheduleReconcile := func() {
		if reconcile == nil {
			reconcile = time.NewTimer(reconcileDelay)
			reconCh = reconcile.C
		} else {
			reconcile.Reset(reconcileDelay)
		}
	}
	flushPending := func() {
		if pending == nil {
			return
		}
		wt.forget(pending.Path, pending.IsDir)
		wt.emit(Event{Kind: EventDeleted, Path: pending.Path, IsDir: pending.IsDir})
		pending = nil
	}

	for {
		select {
		case <-ctx.Done():
			if reconcile != nil {
				reconcile.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-pairTimer.C:
			flushPending()

		case <-reconCh:
			wt.reconcile()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil || rel == "." {
				continue
			}
			rel = filepath.ToSlash(rel)
			if hiddenPath(rel) {
				continue
			}

			switch {
			case ev.Op&fsnotify.Create != 0:
				info, statErr := os.Stat(ev.Name)
				if statErr != nil {
					continue
				}
				if pending != nil && pending.Path != rel {
					pairTimer.Stop()
					old := *pending
					pending = nil
					wt.moved(old.Path, rel, info.IsDir())
					scheduleReconcile()
					continue
				}
				wt.created(rel, info.IsDir())

			case ev.Op&fsnotify.Write != 0:
				if strings.HasSuffix(rel, storage.DocumentExt) {
					wt.index(rel)
				}

			case ev.Op&fsnotify.Remove != 0:
				isDir := wt.isDir(rel)
				wt.forget(rel, isDir)
				wt.emit(Event{Kind: EventDeleted, Path: rel, IsDir: isDir})

			case ev.Op&fsnotify.Rename != 0:
				if pending != nil && pending.Path == rel {
					continue // self-move of a watched folder
				}
				flushPending()
				pending = &Event{Kind: EventRenamed, Path: rel, IsDir: wt.isDir(rel)}
				pairTimer.Reset(renamePairWindow)
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (wt *watcher) emit(ev Event) {
	wt.logger.Debug("watcher: event",
		slog.String("kind", string(ev.Kind)),
		slog.String("path", ev.Path),
		slog.String("old_path", ev.OldPath))
	if wt.cb != nil {
		wt.cb(ev)
	}
}

func (wt *watcher) created(rel string, isDir bool) {
	if isDir {
		if err := wt.addDirsRecursive(filepath.Join(wt.root, filepath.FromSlash(rel))); err != nil {
			wt.logger.Warn("watcher: add new dir failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
		wt.indexTree(rel)
		wt.emit(Event{Kind: EventCreated, Path: rel, IsDir: true})
		return
	}
	if strings.HasSuffix(rel, storage.DocumentExt) {
		// An atomic replace surfaces as Create on a path that is already
		// indexed; only a previously unknown path is a new document.
		known, _ := wt.db.GetChecksum(rel)
		wt.index(rel)
		if known != "" {
			return
		}
	}
	wt.emit(Event{Kind: EventCreated, Path: rel})
}

func (wt *watcher) moved(oldRel, newRel string, isDir bool) {
	if isDir {
		for d := range wt.dirs {
			if d == oldRel || strings.HasPrefix(d, oldRel+"/") {
				_ = wt.w.Remove(filepath.Join(wt.root, filepath.FromSlash(d)))
				delete(wt.dirs, d)
			}
		}
		if err := wt.addDirsRecursive(filepath.Join(wt.root, filepath.FromSlash(newRel))); err != nil {
			wt.logger.Warn("watcher: add moved dir failed", slog.String("path", newRel), slog.String("error", err.Error()))
		}
		_ = wt.db.DeleteUnder(oldRel)
		wt.indexTree(newRel)
	} else {
		_ = wt.db.DeleteNote(oldRel)
		if strings.HasSuffix(newRel, storage.DocumentExt) {
			wt.index(newRel)
		}
	}
	wt.emit(Event{Kind: EventRenamed, Path: newRel, OldPath: oldRel, IsDir: isDir})
}

func (wt *watcher) forget(rel string, isDir bool) {
	if isDir {
		for d := range wt.dirs {
			if d == rel || strings.HasPrefix(d, rel+"/") {
				delete(wt.dirs, d)
			}
		}
		if err := wt.db.DeleteUnder(rel); err != nil {
			wt.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
		return
	}
	if err := wt.db.DeleteNote(rel); err != nil {
		wt.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
	}
}

func (wt *watcher) isDir(rel string) bool {
	if _, ok := wt.dirs[rel]; ok {
		return true
	}
	under, _ := wt.db.HasUnder(rel)
	return under
}

func (wt *watcher) index(rel string) {
	data, err := wt.store.Read(rel)
	if err != nil {
		wt.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	if _, err := indexFile(wt.db, rel, data, wt.marker); err != nil {
		wt.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	wt.logger.Debug("watcher: indexed", slog.String("path", rel))
}

// indexTree indexes any documents found below a new or moved directory.
func (wt *watcher) indexTree(rel string) {
	metas, err := wt.store.List(rel)
	if err != nil {
		return
	}
	for _, m := range metas {
		wt.index(m.Path)
	}
}

// reconcile catches index entries left behind by moves that fsnotify
// reported incompletely.
func (wt *watcher) reconcile() {
	if err := Sync(wt.db, wt.store, wt.marker, wt.logger); err != nil {
		wt.logger.Warn("reconcile: sync failed", slog.String("error", err.Error()))
	}
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func (wt *watcher) addDirsRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != wt.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := wt.w.Add(p); err != nil {
			return err
		}
		if rel, err := filepath.Rel(wt.root, p); err == nil && rel != "." {
			wt.dirs[filepath.ToSlash(rel)] = struct{}{}
		}
		return nil
	})
}

func hiddenPath(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
