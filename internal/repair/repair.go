// Package repair restores the hub/item folder convention with a fixed set of
// corrective file operations.
package repair

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/starford/mocsync/internal/apperr"
	"github.com/starford/mocsync/internal/layout"
	"github.com/starford/mocsync/internal/metrics"
	"github.com/starford/mocsync/internal/notice"
	"github.com/starford/mocsync/internal/retry"
	"github.com/starford/mocsync/internal/storage"
)

// Action kinds reported in Result.Actions.
const (
	ActionRelocateHub    = "relocate_hub"
	ActionRenameFolder   = "rename_folder"
	ActionCreateFolder   = "create_folder"
	ActionMoveDocument   = "move_document"
	ActionKeepDuplicate  = "keep_duplicate"
	ActionCreateDocument = "create_document"
	ActionMoveAttachment = "move_attachment"
	ActionFlatten        = "flatten"
)

// Action is one corrective file operation that succeeded.
type Action struct {
	Kind string `json:"kind"`
	From string `json:"from,omitempty"`
	To   string `json:"to"`
}

// Result summarises a repair pass.
type Result struct {
	Changed  bool
	HubPath  string
	Actions  []Action
	Failures []error
}

// Options holds the conventions repair enforces.
type Options struct {
	AttachmentsFolder string
	DuplicateSuffix   string
	FlattenNested     bool
	// IsHub reports whether a document is a hub. Nil treats none as hubs.
	IsHub func(ctx context.Context, doc string) bool
}

// TemplateFunc returns the content for a new item entry document of hub.
type TemplateFunc func(ctx context.Context, hub string) []byte

// Engine runs repair passes against a storage provider.
type Engine struct {
	store     storage.Provider
	opts      Options
	templates TemplateFunc
	notifier  notice.Notifier
	logger    *slog.Logger
}

// NewEngine creates a repair engine. templates may be nil for empty entries.
func NewEngine(store storage.Provider, opts Options, templates TemplateFunc, notifier notice.Notifier, logger *slog.Logger) *Engine {
	if templates == nil {
		templates = func(context.Context, string) []byte { return nil }
	}
	if notifier == nil {
		notifier = notice.Discard
	}
	return &Engine{store: store, opts: opts, templates: templates, notifier: notifier, logger: logger}
}

type pass struct {
	e   *Engine
	ctx context.Context
	hub string
	res *Result
}

func (p *pass) done(kind, from, to string) {
	p.res.Changed = true
	p.res.Actions = append(p.res.Actions, Action{Kind: kind, From: from, To: to})
	metrics.RepairActions.WithLabelValues(kind).Inc()
	p.e.logger.Info("repair: "+kind, slog.String("hub", p.hub), slog.String("from", from), slog.String("to", to))
}

func (p *pass) fail(err error) {
	p.res.Failures = append(p.res.Failures, err)
	metrics.RepairFailures.WithLabelValues(apperr.KindOf(err).String()).Inc()
	p.e.logger.Warn("repair: failed", slog.String("hub", p.hub), slog.String("error", err.Error()))
	p.e.notifier.Notify(p.ctx, notice.FromError(p.hub, err))
}

// storageErr classifies a provider error: an occupied destination is a
// collision, anything else a storage failure.
func storageErr(op, p string, err error) error {
	if errors.Is(err, apperr.ErrAlreadyExists) {
		return apperr.New(apperr.KindCollision, op, p, err)
	}
	return apperr.New(apperr.KindStorage, op, p, err)
}

// Repair performs one pass over hub. A hub that cannot be colocated is an
// error; failures on individual children are collected in Result.Failures
// and do not stop the pass.
func (e *Engine) Repair(ctx context.Context, hub string) (Result, error) {
	res := Result{HubPath: hub}
	p := &pass{e: e, ctx: ctx, hub: hub, res: &res}

	if !e.store.Exists(hub) {
		return res, apperr.New(apperr.KindNotFound, "repair", hub, nil)
	}

	if !layout.IsColocated(hub) {
		moved, err := p.colocate()
		if err != nil {
			p.fail(err)
			return res, err
		}
		res.HubPath = moved
		p.hub = moved
	}

	folder := layout.Dir(res.HubPath)
	children, err := e.store.Children(folder)
	if err != nil {
		return res, apperr.New(apperr.KindStorage, "list hub folder", folder, err)
	}

	for _, c := range children {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if c.Path == res.HubPath || !e.store.Exists(c.Path) {
			continue
		}
		switch {
		case c.IsDir && c.Name == e.opts.AttachmentsFolder:
			continue
		case c.IsDir:
			p.completeItemFolder(folder, c.Name)
			if e.opts.FlattenNested {
				p.flatten(folder, c.Path)
			}
		case layout.IsDocument(c.Path):
			p.adoptDocument(folder, c.Path)
		default:
			p.moveAttachment(folder, c.Path)
		}
	}
	return res, nil
}

// colocate moves a hub document into a folder named after it. A folder that
// holds only the hub and its items is the hub folder under another name and
// is renamed after the hub instead.
func (p *pass) colocate() (string, error) {
	store := p.e.store
	folder := layout.HubFolderFor(p.hub)
	dest := layout.HubPageFor(p.hub)

	parent := layout.Dir(p.hub)
	renamed := layout.Join(layout.Dir(parent), layout.Stem(p.hub))
	if !store.Exists(renamed) && p.holdsOnlyItems(parent) {
		if err := store.Rename(parent, renamed); err != nil {
			return "", storageErr("rename hub folder", renamed, err)
		}
		p.done(ActionRenameFolder, parent, renamed)
		return layout.Join(renamed, path.Base(p.hub)), nil
	}

	if !store.IsDir(folder) {
		if store.Exists(folder) {
			return "", apperr.New(apperr.KindCollision, "colocate hub", folder, nil)
		}
		if err := store.CreateFolder(folder); err != nil {
			return "", storageErr("colocate hub", folder, err)
		}
		p.done(ActionCreateFolder, "", folder)
	}
	if err := store.Rename(p.hub, dest); err != nil {
		return "", storageErr("colocate hub", dest, err)
	}
	p.done(ActionRelocateHub, p.hub, dest)
	return dest, nil
}

// holdsOnlyItems reports whether folder contains the hub, at least one item
// folder and nothing else apart from the attachments folder.
func (p *pass) holdsOnlyItems(folder string) bool {
	if folder == "" {
		return false
	}
	children, err := p.e.store.Children(folder)
	if err != nil {
		return false
	}
	items := 0
	for _, c := range children {
		entry := layout.EntryPage(c.Path)
		switch {
		case c.Path == p.hub:
		case c.IsDir && c.Name == p.e.opts.AttachmentsFolder:
		case c.IsDir && p.e.store.Exists(entry) && !p.isHub(entry):
			items++
		default:
			return false
		}
	}
	return items > 0
}

func (p *pass) isHub(doc string) bool {
	return p.e.opts.IsHub != nil && p.e.opts.IsHub(p.ctx, doc)
}

// adoptDocument moves a stray hub-level document into its own item folder.
func (p *pass) adoptDocument(folder, doc string) {
	store := p.e.store
	name := layout.Stem(doc)
	itemDir := layout.Join(folder, name)
	entry := layout.EntryPage(itemDir)

	switch {
	case store.IsDir(itemDir) && store.Exists(entry):
		dup := layout.Join(itemDir, name+p.e.opts.DuplicateSuffix+layout.DocumentExt)
		if err := store.Rename(doc, dup); err != nil {
			p.fail(storageErr("keep duplicate", dup, err))
			return
		}
		p.done(ActionKeepDuplicate, doc, dup)
		p.e.notifier.Notify(p.ctx, notice.New(notice.LevelWarn, p.hub,
			fmt.Sprintf("%s already exists; kept the other copy as %s", entry, dup)))
	case store.IsDir(itemDir):
		if err := store.Rename(doc, entry); err != nil {
			p.fail(storageErr("move document", entry, err))
			return
		}
		p.done(ActionMoveDocument, doc, entry)
	case store.Exists(itemDir):
		p.fail(apperr.New(apperr.KindCollision, "create item folder", itemDir, nil))
	default:
		if err := store.CreateFolder(itemDir); err != nil {
			p.fail(storageErr("create item folder", itemDir, err))
			return
		}
		p.done(ActionCreateFolder, "", itemDir)
		if err := store.Rename(doc, entry); err != nil {
			p.fail(storageErr("move document", entry, err))
			return
		}
		p.done(ActionMoveDocument, doc, entry)
	}
}

// completeItemFolder gives a folder lacking its entry document one, either
// the same-named document waiting at hub level or a new one from the template.
func (p *pass) completeItemFolder(folder, name string) {
	store := p.e.store
	itemDir := layout.Join(folder, name)
	entry := layout.EntryPage(itemDir)
	if store.Exists(entry) {
		return
	}
	sibling := layout.Join(folder, name+layout.DocumentExt)
	if sibling != p.res.HubPath && store.Exists(sibling) && !store.IsDir(sibling) {
		if err := store.Rename(sibling, entry); err != nil {
			p.fail(storageErr("move document", entry, err))
			return
		}
		p.done(ActionMoveDocument, sibling, entry)
		return
	}
	if err := store.Create(entry, p.e.templates(p.ctx, p.res.HubPath)); err != nil {
		p.fail(storageErr("create item document", entry, err))
		return
	}
	p.done(ActionCreateDocument, "", entry)
}

// moveAttachment relocates a non-document file into the attachments folder.
func (p *pass) moveAttachment(folder, file string) {
	store := p.e.store
	att := layout.Join(folder, p.e.opts.AttachmentsFolder)
	if !store.IsDir(att) {
		if err := store.CreateFolder(att); err != nil {
			p.fail(storageErr("create attachments folder", att, err))
			return
		}
		p.done(ActionCreateFolder, "", att)
	}
	dest := layout.Join(att, path.Base(file))
	if err := store.Rename(file, dest); err != nil {
		p.fail(storageErr("move attachment", dest, err))
		return
	}
	p.done(ActionMoveAttachment, file, dest)
}

// flatten lifts same-name pairs nested inside an item folder up to hub level.
func (p *pass) flatten(folder, itemDir string) {
	store := p.e.store
	children, err := store.Children(itemDir)
	if err != nil {
		p.fail(apperr.New(apperr.KindStorage, "list item folder", itemDir, err))
		return
	}
	for _, c := range children {
		if !c.IsDir || c.Name == p.e.opts.AttachmentsFolder || !store.Exists(layout.EntryPage(c.Path)) {
			continue
		}
		dest := layout.Join(folder, c.Name)
		if err := store.Rename(c.Path, dest); err != nil {
			p.fail(storageErr("flatten nested item", dest, err))
			continue
		}
		p.done(ActionFlatten, c.Path, dest)
	}
}

// Stabilize reruns Repair until a pass makes no change. Exceeding the
// attempt budget is reported as a structural anomaly.
func (e *Engine) Stabilize(ctx context.Context, hub string, policy retry.Policy) (Result, error) {
	total := Result{HubPath: hub}
	err := policy.Do(ctx, func(int) (bool, error) {
		r, err := e.Repair(ctx, total.HubPath)
		total.HubPath = r.HubPath
		total.Actions = append(total.Actions, r.Actions...)
		total.Failures = append(total.Failures, r.Failures...)
		total.Changed = total.Changed || r.Changed
		if err != nil {
			return false, err
		}
		return !r.Changed, nil
	})
	if errors.Is(err, retry.ErrExhausted) {
		anomaly := apperr.New(apperr.KindAnomaly, "repair", hub, errors.New("did not converge"))
		e.notifier.Notify(ctx, notice.FromError(hub, anomaly))
		return total, anomaly
	}
	return total, err
}
