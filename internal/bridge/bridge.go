// Package bridge turns vault change events into corrective actions and
// debounced per-hub update passes.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/starford/mocsync/internal/apperr"
	"github.com/starford/mocsync/internal/index"
	"github.com/starford/mocsync/internal/layout"
	"github.com/starford/mocsync/internal/lifecycle"
	"github.com/starford/mocsync/internal/notice"
)

// Controller is the part of the lifecycle controller the bridge drives.
//
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_controller.go -package=mocks github.com/starford/mocsync/internal/bridge Controller
type Controller interface {
	Update(ctx context.Context, hub string) (lifecycle.Report, error)
	FixHubFolderName(ctx context.Context, oldPath, hub string) (string, error)
	FixItemFolderName(ctx context.Context, oldPath, item string) (string, error)
	AdoptDocument(ctx context.Context, doc string) error
	Touch(hub string)
}

// HubLookup lists the documents currently flagged as hubs.
type HubLookup interface {
	HubPaths(ctx context.Context) ([]string, error)
}

// SettingsFollower keeps folder settings pointing at renamed folders.
type SettingsFollower interface {
	FollowRename(oldPath, newPath string) (bool, error)
}

// ReportSink receives the report of every update pass that changed a hub.
type ReportSink interface {
	HubUpdated(rep lifecycle.Report)
}

type fixKind int

const (
	fixHubFolder fixKind = iota + 1
	fixItemFolder
	adoptDoc
)

// fix is a correction applied at the start of a hub's update pass.
type fix struct {
	kind    fixKind
	oldPath string
	path    string
}

// task is a hub to update and the fixes to apply first.
type task struct {
	hub   string
	fixes []fix
}

type firing struct {
	hub string
	gen uint64
}

type pending struct {
	timer *time.Timer
	gen   uint64
	fixes []fix
}

// Bridge routes index events. All scheduling state is owned by Run.
type Bridge struct {
	ctrl     Controller
	hubs     HubLookup
	settings SettingsFollower
	delay    time.Duration
	notifier notice.Notifier
	reports  ReportSink
	logger   *slog.Logger

	events chan index.Event
	fire   chan firing
	done   chan struct{}

	timers map[string]*pending
	gen    uint64
	wg     sync.WaitGroup
}

// New creates a bridge that settles events for delay before updating a hub.
func New(ctrl Controller, hubs HubLookup, settings SettingsFollower, delay time.Duration, notifier notice.Notifier, logger *slog.Logger) *Bridge {
	if notifier == nil {
		notifier = notice.Discard
	}
	return &Bridge{
		ctrl:     ctrl,
		hubs:     hubs,
		settings: settings,
		delay:    delay,
		notifier: notifier,
		logger:   logger,
		events:   make(chan index.Event, 256),
		fire:     make(chan firing),
		done:     make(chan struct{}),
		timers:   make(map[string]*pending),
	}
}

// SetReportSink routes the reports of changing update passes to sink. It
// must be called before Run.
func (b *Bridge) SetReportSink(sink ReportSink) {
	b.reports = sink
}

// Handle queues an event. It is an index.EventCallback and returns
// immediately once Run has stopped.
func (b *Bridge) Handle(ev index.Event) {
	select {
	case b.events <- ev:
	case <-b.done:
	}
}

// Run processes events until ctx is cancelled, then waits for in-flight
// updates to finish.
func (b *Bridge) Run(ctx context.Context) error {
	defer close(b.done)
	b.logger.Info("bridge: started", slog.Duration("settle_delay", b.delay))
	for {
		select {
		case <-ctx.Done():
			for _, p := range b.timers {
				p.timer.Stop()
			}
			b.wg.Wait()
			b.logger.Info("bridge: stopped")
			return nil

		case ev := <-b.events:
			for _, t := range b.route(ctx, ev) {
				b.schedule(t)
			}

		case f := <-b.fire:
			p, ok := b.timers[f.hub]
			if !ok || p.gen != f.gen {
				continue // superseded by a later event
			}
			delete(b.timers, f.hub)
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.process(ctx, f.hub, p.fixes)
			}()
		}
	}
}

// schedule (re)starts the settle timer of t.hub. Fixes queued by earlier
// events for the same hub are kept.
func (b *Bridge) schedule(t task) {
	b.ctrl.Touch(t.hub)
	var fixes []fix
	if p, ok := b.timers[t.hub]; ok {
		p.timer.Stop()
		fixes = p.fixes
	}
	b.gen++
	f := firing{hub: t.hub, gen: b.gen}
	timer := time.AfterFunc(b.delay, func() {
		select {
		case b.fire <- f:
		case <-b.done:
		}
	})
	b.timers[t.hub] = &pending{timer: timer, gen: f.gen, fixes: append(fixes, t.fixes...)}
}

// process applies the queued fixes of hub, then updates it.
func (b *Bridge) process(ctx context.Context, hub string, fixes []fix) {
	for _, f := range fixes {
		hub = b.apply(ctx, hub, f)
	}
	b.update(ctx, hub)
}

// apply runs one fix and returns the hub path the update pass should use.
func (b *Bridge) apply(ctx context.Context, hub string, f fix) string {
	var err error
	switch f.kind {
	case fixHubFolder:
		var fixed string
		if fixed, err = b.ctrl.FixHubFolderName(ctx, f.oldPath, f.path); fixed != "" {
			hub = fixed
		}
	case fixItemFolder:
		_, err = b.ctrl.FixItemFolderName(ctx, f.oldPath, f.path)
	case adoptDoc:
		err = b.ctrl.AdoptDocument(ctx, f.path)
	}
	if err != nil {
		b.notifier.Notify(ctx, notice.FromError(f.path, err))
	}
	return hub
}

func (b *Bridge) update(ctx context.Context, hub string) {
	rep, err := b.ctrl.Update(ctx, hub)
	switch {
	case err == nil:
		if rep.Changed {
			b.logger.Info("bridge: hub updated", slog.String("hub", rep.Hub), slog.Int("actions", len(rep.Actions)))
			if b.reports != nil {
				b.reports.HubUpdated(rep)
			}
		}
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, context.Canceled):
		b.logger.Debug("bridge: update skipped", slog.String("hub", hub), slog.String("error", err.Error()))
	default:
		b.notifier.Notify(ctx, notice.FromError(hub, err))
	}
}

// route returns the hubs ev affects, with the fixes to run before their
// update. It does not touch the vault.
func (b *Bridge) route(ctx context.Context, ev index.Event) []task {
	paths, err := b.hubs.HubPaths(ctx)
	if err != nil {
		b.logger.Warn("bridge: list hubs", slog.String("error", err.Error()))
		return nil
	}
	hubs := layout.NewHubSet(paths)
	var out []task
	add := func(hub string, fixes ...fix) {
		for i := range out {
			if out[i].hub == hub {
				out[i].fixes = append(out[i].fixes, fixes...)
				return
			}
		}
		out = append(out, task{hub: hub, fixes: fixes})
	}
	owner := func(p string, fixes ...fix) {
		if hub, ok := layout.OwningHub(p, hubs); ok {
			add(hub, fixes...)
		}
	}

	switch ev.Kind {
	case index.EventRenamed:
		if changed, err := b.settings.FollowRename(ev.OldPath, ev.Path); err != nil {
			b.logger.Warn("bridge: settings follow rename", slog.String("error", err.Error()))
		} else if changed {
			b.logger.Info("bridge: settings followed rename", slog.String("from", ev.OldPath), slog.String("to", ev.Path))
		}
		owner(ev.OldPath)
		if ev.IsDir {
			routeDir(ev, hubs, add)
			owner(ev.Path)
			break
		}
		switch {
		case !renamedInPlace(ev):
			owner(ev.Path)
			if hubs.Has(ev.Path) {
				add(ev.Path)
			}
		case hubs.Has(ev.Path):
			add(ev.Path, fix{kind: fixHubFolder, oldPath: ev.OldPath, path: ev.Path})
		case hubs.Has(layout.EntryPage(layout.Dir(layout.Dir(ev.Path)))):
			owner(ev.Path, fix{kind: fixItemFolder, oldPath: ev.OldPath, path: ev.Path})
		default:
			owner(ev.Path)
		}

	case index.EventCreated:
		if !ev.IsDir && layout.IsDocument(ev.Path) {
			if hub := layout.EntryPage(layout.Dir(ev.Path)); hub != ev.Path && hubs.Has(hub) {
				add(hub, fix{kind: adoptDoc, path: ev.Path})
			}
			if hubs.Has(ev.Path) {
				add(ev.Path)
			}
		}
		owner(ev.Path)

	case index.EventDeleted:
		owner(ev.Path)
	}
	return out
}

// routeDir handles a renamed folder. A hub document carried along with its
// folder no longer matches the folder name and gets a folder fix.
func routeDir(ev index.Event, hubs layout.HubSet, add func(string, ...fix)) {
	oldHub := layout.EntryPage(ev.OldPath)
	moved := layout.Join(ev.Path, path.Base(oldHub))
	switch {
	case hubs.Has(moved) && !layout.IsColocated(moved):
		add(moved, fix{kind: fixHubFolder, oldPath: oldHub, path: moved})
	case hubs.Has(layout.EntryPage(ev.Path)):
		add(layout.EntryPage(ev.Path))
	}
}

// renamedInPlace reports whether a colocated document was renamed within its
// folder, leaving the folder name stale.
func renamedInPlace(ev index.Event) bool {
	return layout.Dir(ev.OldPath) == layout.Dir(ev.Path) && layout.IsColocated(ev.OldPath) && !layout.IsColocated(ev.Path)
}
