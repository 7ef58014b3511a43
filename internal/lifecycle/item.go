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

// bind makes sure hub is colocated, repairing it when needed, and returns
// its current path. The caller holds the hub lock.
func (c *Controller) bind(ctx context.Context, hub string) (string, error) {
	if layout.IsColocated(hub) {
		return hub, nil
	}
	rep, err := c.update(ctx, hub, nil)
	return rep.Hub, err
}

func (c *Controller) itemDir(op, hub, name string) (string, error) {
	if name == c.opts.AttachmentsFolder {
		return "", apperr.New(apperr.KindCollision, op, name, errors.New("reserved for attachments"))
	}
	return layout.ItemFolderFor(hub, name), nil
}

// CreateItem creates an item folder with its entry document under hub,
// filled from the hub's item template.
func (c *Controller) CreateItem(ctx context.Context, hub, name string) (entry string, err error) {
	defer func(start time.Time) { c.observe("create_item", start, err) }(time.Now())
	const op = "create item"
	if err := layout.ValidateName(op, name); err != nil {
		return "", err
	}
	if err := c.requireHub(ctx, op, hub); err != nil {
		return "", err
	}

	unlock := c.lockHubs(hub)
	defer unlock()

	if hub, err = c.bind(ctx, hub); err != nil {
		return "", err
	}
	dir, err := c.itemDir(op, hub, name)
	if err != nil {
		return "", err
	}
	if c.store.Exists(dir) {
		return "", apperr.New(apperr.KindCollision, op, dir, nil)
	}
	entry = layout.EntryPage(dir)
	if err := c.store.CreateFolder(dir); err != nil {
		return "", storageErr(op, dir, err)
	}
	if err := c.store.Create(entry, c.itemTemplate(ctx, hub)); err != nil {
		return "", storageErr(op, entry, err)
	}
	if err := c.cache.Refresh(ctx, entry); err != nil {
		return entry, err
	}
	if _, err := c.update(ctx, hub, nil); err != nil {
		return entry, err
	}
	c.logger.Info("lifecycle: item created", slog.String("hub", hub), slog.String("item", name))
	return entry, nil
}

// RenameItem renames an item folder and its entry document, rewriting the
// hub's link to the item in place.
func (c *Controller) RenameItem(ctx context.Context, hub, oldName, newName string) (entry string, err error) {
	defer func(start time.Time) { c.observe("rename_item", start, err) }(time.Now())
	const op = "rename item"
	if err := layout.ValidateName(op, newName); err != nil {
		return "", err
	}
	if err := c.requireHub(ctx, op, hub); err != nil {
		return "", err
	}

	unlock := c.lockHubs(hub)
	defer unlock()

	if hub, err = c.bind(ctx, hub); err != nil {
		return "", err
	}
	oldDir := layout.ItemFolderFor(hub, oldName)
	if !c.store.IsDir(oldDir) {
		return "", apperr.New(apperr.KindNotFound, op, oldDir, errors.New("no such item"))
	}
	if oldName == newName {
		return layout.EntryPage(oldDir), nil
	}
	newDir, err := c.itemDir(op, hub, newName)
	if err != nil {
		return "", err
	}
	if c.store.Exists(newDir) && !c.store.Same(newDir, oldDir) {
		return "", apperr.New(apperr.KindCollision, op, newDir, nil)
	}

	oldEntry := layout.EntryPage(oldDir)
	renamedEntry := layout.Join(oldDir, newName+layout.DocumentExt)
	if !c.store.Exists(oldEntry) {
		oldEntry = renamedEntry
	}
	if err := c.renamePair(op, oldEntry, renamedEntry, oldDir, newDir); err != nil {
		return "", err
	}
	entry = layout.EntryPage(newDir)
	if err := c.cache.Refresh(ctx, oldDir, newDir); err != nil {
		return entry, err
	}
	if _, err := c.update(ctx, hub, map[string]string{oldName: newName}); err != nil {
		return entry, err
	}
	c.logger.Info("lifecycle: item renamed", slog.String("hub", hub), slog.String("from", oldName), slog.String("to", newName))
	return entry, nil
}

// DeleteItem moves an item folder to the trash and drops its hub link.
func (c *Controller) DeleteItem(ctx context.Context, hub, name, confirmation string) (err error) {
	defer func(start time.Time) { c.observe("delete_item", start, err) }(time.Now())
	const op = "delete item"
	if err := c.confirm(op, name, confirmation); err != nil {
		return err
	}
	if err := c.requireHub(ctx, op, hub); err != nil {
		return err
	}

	unlock := c.lockHubs(hub)
	defer unlock()

	if hub, err = c.bind(ctx, hub); err != nil {
		return err
	}
	dir := layout.ItemFolderFor(hub, name)
	if !c.store.IsDir(dir) {
		return apperr.New(apperr.KindNotFound, op, dir, errors.New("no such item"))
	}
	if err := c.store.Trash(dir, true); err != nil {
		return storageErr(op, dir, err)
	}
	if err := c.cache.Refresh(ctx, dir); err != nil {
		return err
	}
	if _, err := c.update(ctx, hub, nil); err != nil {
		return err
	}
	c.notifier.Notify(ctx, notice.New(notice.LevelInfo, hub, "deleted item "+name))
	return nil
}

// MoveItem moves an item, given by its entry document or folder, into the
// folder of targetHub. Both hubs are reconciled afterwards.
func (c *Controller) MoveItem(ctx context.Context, item, targetHub string) (entry string, err error) {
	defer func(start time.Time) { c.observe("move_item", start, err) }(time.Now())
	const op = "move item"

	dir := item
	if !c.store.IsDir(item) {
		dir = layout.Dir(item)
	}
	name := path.Base(dir)
	srcHub := layout.EntryPage(layout.Dir(dir))
	if dir == "" || layout.Dir(dir) == "" || !c.store.Exists(layout.EntryPage(dir)) ||
		c.cache.IsHub(ctx, layout.EntryPage(dir)) || !c.cache.IsHub(ctx, srcHub) {
		return "", apperr.New(apperr.KindNotFound, op, item, errors.New("not an item of a hub"))
	}
	if err := c.requireHub(ctx, op, targetHub); err != nil {
		return "", err
	}
	if !layout.IsColocated(targetHub) {
		return "", apperr.New(apperr.KindNotFound, op, targetHub, errors.New("target hub is not colocated"))
	}
	targetFolder := layout.Dir(targetHub)
	if targetFolder == layout.Dir(srcHub) {
		return "", fmt.Errorf("lifecycle: %s %s: already in %s: %w", op, name, targetHub, apperr.ErrConflict)
	}

	unlock := c.lockHubs(srcHub, targetHub)
	defer unlock()

	newDir, err := c.itemDir(op, targetHub, name)
	if err != nil {
		return "", err
	}
	if c.store.Exists(newDir) {
		return "", apperr.New(apperr.KindCollision, op, newDir, nil)
	}
	if err := c.store.Rename(dir, newDir); err != nil {
		return "", storageErr(op, newDir, err)
	}
	entry = layout.EntryPage(newDir)
	if err := c.cache.Refresh(ctx, dir, newDir); err != nil {
		return entry, err
	}

	var errs []error
	for _, h := range []string{srcHub, targetHub} {
		if _, err := c.update(ctx, h, nil); err != nil {
			errs = append(errs, err)
		}
	}
	c.logger.Info("lifecycle: item moved", slog.String("from", dir), slog.String("to", newDir))
	return entry, errors.Join(errs...)
}

// FixItemFolderName renames the folder of an item whose entry document was
// renamed from oldPath to item inside it, and rewrites the hub link.
func (c *Controller) FixItemFolderName(ctx context.Context, oldPath, item string) (entry string, err error) {
	const op = "fix item folder name"
	dir := layout.Dir(item)
	hubFolder := layout.Dir(dir)
	if dir == "" || hubFolder == "" || layout.Dir(oldPath) != dir || path.Base(dir) != layout.Stem(oldPath) {
		return item, nil
	}
	hub := layout.EntryPage(hubFolder)

	unlock := c.lockHubs(hub)
	defer unlock()

	if !c.store.Exists(item) || path.Base(dir) == layout.Stem(item) || !c.cache.IsHub(ctx, hub) || c.cache.IsHub(ctx, item) {
		return item, nil
	}
	defer func(start time.Time) { c.observe("fix_item_folder", start, err) }(time.Now())

	oldName, newName := path.Base(dir), layout.Stem(item)
	newDir, err := c.itemDir(op, hub, newName)
	if err != nil {
		return c.revertRename(ctx, item, oldPath), err
	}
	if c.store.Exists(newDir) && !c.store.Same(newDir, dir) {
		return c.revertRename(ctx, item, oldPath), apperr.New(apperr.KindCollision, op, newDir, nil)
	}
	if err := c.store.Rename(dir, newDir); err != nil {
		return c.revertRename(ctx, item, oldPath), storageErr(op, newDir, err)
	}
	entry = layout.EntryPage(newDir)
	if err := c.cache.Refresh(ctx, dir, newDir); err != nil {
		return entry, err
	}
	if _, err := c.update(ctx, hub, map[string]string{oldName: newName}); err != nil {
		return entry, err
	}
	return entry, nil
}

// AdoptDocument fills an empty document created directly in a hub folder
// with the hub's item template. Repair later moves it into its own folder.
func (c *Controller) AdoptDocument(ctx context.Context, doc string) (err error) {
	hubFolder := layout.Dir(doc)
	hub := layout.EntryPage(hubFolder)
	if hubFolder == "" || doc == hub || !layout.IsDocument(doc) {
		return nil
	}

	unlock := c.lockHubs(hub)
	defer unlock()

	if !c.store.Exists(doc) || !c.cache.IsHub(ctx, hub) {
		return nil
	}
	data, err := c.store.Read(doc)
	if err != nil || strings.TrimSpace(string(data)) != "" {
		return err
	}
	tpl := c.itemTemplate(ctx, hub)
	if len(tpl) == 0 {
		return nil
	}
	defer func(start time.Time) { c.observe("adopt_document", start, err) }(time.Now())
	if err := c.store.Write(doc, tpl); err != nil {
		return storageErr("adopt document", doc, err)
	}
	return c.cache.Refresh(ctx, doc)
}
