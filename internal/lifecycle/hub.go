package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/starford/mocsync/internal/apperr"
	"github.com/starford/mocsync/internal/layout"
	"github.com/starford/mocsync/internal/notice"
)

// CreateHub creates a hub folder and document named name inside dir, using
// the hub template.
func (c *Controller) CreateHub(ctx context.Context, dir, name string) (hub string, err error) {
	defer func(start time.Time) { c.observe("create_hub", start, err) }(time.Now())
	const op = "create hub"
	if err := layout.ValidateName(op, name); err != nil {
		return "", err
	}
	dir = strings.Trim(dir, "/")
	if dir != "" && !c.store.IsDir(dir) {
		return "", apperr.New(apperr.KindNotFound, op, dir, errors.New("no such folder"))
	}
	folder := layout.Join(dir, name)
	hub = layout.EntryPage(folder)

	unlock := c.locks.Lock(folder)
	defer unlock()

	if c.store.Exists(folder) || c.store.Exists(layout.Join(dir, name+layout.DocumentExt)) {
		return "", apperr.New(apperr.KindCollision, op, folder, nil)
	}
	if err := c.store.CreateFolder(folder); err != nil {
		return "", storageErr(op, folder, err)
	}
	if err := c.store.Create(hub, c.hubTemplate()); err != nil {
		return "", storageErr(op, hub, err)
	}
	if err := c.cache.Refresh(ctx, hub); err != nil {
		return "", err
	}
	if _, err := c.update(ctx, hub, nil); err != nil {
		return hub, err
	}
	c.logger.Info("lifecycle: hub created", slog.String("hub", hub))
	return hub, nil
}

// ConvertToHub turns an empty document into a hub by writing the hub
// template into it, then colocates it.
func (c *Controller) ConvertToHub(ctx context.Context, doc string) (hub string, err error) {
	defer func(start time.Time) { c.observe("convert_to_hub", start, err) }(time.Now())
	const op = "convert to hub"
	if !layout.IsDocument(doc) || !c.store.Exists(doc) || c.store.IsDir(doc) {
		return "", apperr.New(apperr.KindNotFound, op, doc, errors.New("no such document"))
	}

	unlock := c.lockHubs(doc)
	defer unlock()

	data, err := c.store.Read(doc)
	if err != nil {
		return "", storageErr(op, doc, err)
	}
	if strings.TrimSpace(string(data)) != "" {
		return "", fmt.Errorf("lifecycle: %s %s: document is not empty: %w", op, doc, apperr.ErrConflict)
	}
	if err := c.store.Write(doc, c.hubTemplate()); err != nil {
		return "", storageErr(op, doc, err)
	}
	if err := c.cache.Refresh(ctx, doc); err != nil {
		return "", err
	}
	rep, err := c.update(ctx, doc, nil)
	if err != nil {
		return rep.Hub, err
	}
	return rep.Hub, nil
}

// RenameHub renames a hub document together with its folder. A folder
// rename failure restores the document name.
func (c *Controller) RenameHub(ctx context.Context, hub, newName string) (newHub string, err error) {
	defer func(start time.Time) { c.observe("rename_hub", start, err) }(time.Now())
	const op = "rename hub"
	if err := layout.ValidateName(op, newName); err != nil {
		return "", err
	}
	if err := c.requireHub(ctx, op, hub); err != nil {
		return "", err
	}
	if newName == layout.Stem(hub) {
		return hub, nil
	}

	folder := layout.HubFolderFor(hub)
	newFolder := layout.Join(layout.Dir(folder), newName)
	unlock := c.locks.Lock(folder, newFolder)
	defer unlock()

	if !layout.IsColocated(hub) {
		rep, err := c.update(ctx, hub, nil)
		if err != nil {
			return "", err
		}
		hub = rep.Hub
	}
	if c.store.Exists(newFolder) && !c.store.Same(newFolder, folder) {
		return "", apperr.New(apperr.KindCollision, op, newFolder, nil)
	}

	renamedDoc := layout.Join(folder, newName+layout.DocumentExt)
	if err := c.renamePair(op, hub, renamedDoc, folder, newFolder); err != nil {
		return "", err
	}
	newHub = layout.EntryPage(newFolder)
	c.dropState(hub)

	if err := c.cache.Refresh(ctx, hub, folder, newFolder); err != nil {
		return newHub, err
	}
	if _, err := c.settings.FollowRename(folder, newFolder); err != nil {
		c.logger.Warn("lifecycle: settings follow rename", slog.String("error", err.Error()))
	}
	if _, err := c.update(ctx, newHub, nil); err != nil {
		return newHub, err
	}
	c.logger.Info("lifecycle: hub renamed", slog.String("from", hub), slog.String("to", newHub))
	return newHub, nil
}

// DeleteHub moves a hub and everything in its folder to the trash.
func (c *Controller) DeleteHub(ctx context.Context, hub, confirmation string) (err error) {
	defer func(start time.Time) { c.observe("delete_hub", start, err) }(time.Now())
	const op = "delete hub"
	if err := c.confirm(op, hub, confirmation); err != nil {
		return err
	}
	if err := c.requireHub(ctx, op, hub); err != nil {
		return err
	}

	unlock := c.lockHubs(hub)
	defer unlock()

	target := hub
	if layout.IsColocated(hub) {
		target = layout.Dir(hub)
	}
	if err := c.store.Trash(target, true); err != nil {
		return storageErr(op, target, err)
	}
	c.dropState(hub)
	if err := c.cache.Refresh(ctx, target); err != nil {
		return err
	}
	c.notifier.Notify(ctx, notice.New(notice.LevelInfo, hub, "deleted hub "+layout.Stem(hub)))
	return nil
}

// FixHubFolderName brings a hub document and its folder back in line after
// one of them was renamed: oldPath is where the document lived while the
// pair was colocated. The folder is renamed after the document; when that
// fails, the document is renamed after its folder instead.
func (c *Controller) FixHubFolderName(ctx context.Context, oldPath, hub string) (newHub string, err error) {
	const op = "fix hub folder name"
	folder := layout.Dir(hub)
	if folder == "" || !layout.IsColocated(oldPath) {
		return hub, nil
	}
	docRenamed := layout.Dir(oldPath) == folder
	folderRenamed := path.Base(oldPath) == path.Base(hub) && layout.Dir(layout.Dir(oldPath)) == layout.Dir(folder)
	if !docRenamed && !folderRenamed {
		return hub, nil
	}
	newFolder := layout.Join(layout.Dir(folder), layout.Stem(hub))
	unlock := c.locks.Lock(folder, newFolder)
	defer unlock()

	if layout.IsColocated(hub) || !c.store.Exists(hub) || !c.cache.IsHub(ctx, hub) {
		return hub, nil
	}
	defer func(start time.Time) { c.observe("fix_hub_folder", start, err) }(time.Now())

	fallback := layout.EntryPage(folder)
	if c.store.Exists(newFolder) && !c.store.Same(newFolder, folder) {
		return c.revertRename(ctx, hub, fallback), apperr.New(apperr.KindCollision, op, newFolder, nil)
	}
	if err := c.store.Rename(folder, newFolder); err != nil {
		return c.revertRename(ctx, hub, fallback), storageErr(op, newFolder, err)
	}
	newHub = layout.Join(newFolder, path.Base(hub))
	c.dropState(layout.EntryPage(folder))
	c.dropState(hub)

	if err := c.cache.Refresh(ctx, folder, newFolder); err != nil {
		return newHub, err
	}
	if _, err := c.settings.FollowRename(folder, newFolder); err != nil {
		c.logger.Warn("lifecycle: settings follow rename", slog.String("error", err.Error()))
	}
	if _, err := c.update(ctx, newHub, nil); err != nil {
		return newHub, err
	}
	c.logger.Info("lifecycle: hub folder renamed", slog.String("from", folder), slog.String("to", newFolder))
	return newHub, nil
}

// renamePair renames a document and then its folder, reverting the document
// rename when the folder rename fails.
func (c *Controller) renamePair(op, doc, newDoc, folder, newFolder string) error {
	if doc != newDoc {
		if err := c.store.Rename(doc, newDoc); err != nil {
			return storageErr(op, newDoc, err)
		}
	}
	if err := c.store.Rename(folder, newFolder); err != nil {
		if doc != newDoc {
			if rerr := c.store.Rename(newDoc, doc); rerr != nil {
				c.logger.Error("lifecycle: revert document rename",
					slog.String("path", newDoc), slog.String("error", rerr.Error()))
			}
		}
		return apperr.New(apperr.KindStorage, op, newFolder, err)
	}
	return nil
}

// revertRename renames doc to oldPath after its folder could not follow and
// returns the document's resulting path.
func (c *Controller) revertRename(ctx context.Context, doc, oldPath string) string {
	if err := c.store.Rename(doc, oldPath); err != nil {
		c.logger.Error("lifecycle: revert document rename",
			slog.String("path", doc), slog.String("error", err.Error()))
		return doc
	}
	if err := c.cache.Refresh(ctx, doc, oldPath); err != nil {
		c.logger.Warn("lifecycle: refresh reverted document", slog.String("path", oldPath), slog.String("error", err.Error()))
	}
	return oldPath
}

// storageErr classifies a provider error.
func storageErr(op, p string, err error) error {
	switch {
	case errors.Is(err, apperr.ErrAlreadyExists):
		return apperr.New(apperr.KindCollision, op, p, err)
	case errors.Is(err, apperr.ErrNotFound):
		return apperr.New(apperr.KindNotFound, op, p, err)
	}
	return apperr.New(apperr.KindStorage, op, p, err)
}
