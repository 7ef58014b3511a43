// Package lifecycle coordinates hub and item operations. Every operation on
// a hub runs under that hub's lock and ends with repair followed by link
// reconciliation.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/mocsync/internal/apperr"
	"github.com/starford/mocsync/internal/index"
	"github.com/starford/mocsync/internal/layout"
	"github.com/starford/mocsync/internal/metrics"
	"github.com/starford/mocsync/internal/models"
	"github.com/starford/mocsync/internal/notice"
	"github.com/starford/mocsync/internal/parser"
	"github.com/starford/mocsync/internal/reconcile"
	"github.com/starford/mocsync/internal/repair"
	"github.com/starford/mocsync/internal/retry"
	"github.com/starford/mocsync/internal/settings"
	"github.com/starford/mocsync/internal/storage"
)

// State is the maintenance state of one hub. An unbound hub is flagged but
// not yet colocated with its folder; a bound hub is colocated and has not
// been reconciled since startup.
type State string

const (
	StateUnbound    State = "unbound"
	StateBound      State = "bound"
	StateRepairing  State = "repairing"
	StateReconciled State = "reconciled"
)

// Options configures a Controller.
type Options struct {
	AttachmentsFolder string
	DuplicateSuffix   string
	FlattenNested     bool
	MarkerKey         string
	Heading           string
	ConfirmPhrase     string
	Policy            retry.Policy
	Concurrency       int
}

// Report describes the outcome of one repair and reconcile run.
type Report struct {
	Hub        string          `json:"hub"`
	Changed    bool            `json:"changed"`
	Actions    []repair.Action `json:"actions"`
	Failures   []string        `json:"failures,omitempty"`
	Added      []string        `json:"added,omitempty"`
	Removed    []string        `json:"removed,omitempty"`
	Normalized []string        `json:"normalized,omitempty"`
	Renamed    []string        `json:"renamed,omitempty"`
}

// Controller runs hub and item operations against the vault.
type Controller struct {
	store     storage.Provider
	cache     *index.Cache
	settings  *settings.Store
	repair    *repair.Engine
	reconcile *reconcile.Engine
	notifier  notice.Notifier
	opts      Options
	logger    *slog.Logger

	locks  *keyedMutex
	mu     sync.Mutex
	states map[string]State
}

// New creates a Controller. notifier may be nil.
func New(store storage.Provider, cache *index.Cache, st *settings.Store, opts Options, notifier notice.Notifier, logger *slog.Logger) *Controller {
	if notifier == nil {
		notifier = notice.Discard
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	c := &Controller{
		store:    store,
		cache:    cache,
		settings: st,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
		locks:    newKeyedMutex(),
		states:   make(map[string]State),
	}
	c.repair = repair.NewEngine(store, repair.Options{
		AttachmentsFolder: opts.AttachmentsFolder,
		DuplicateSuffix:   opts.DuplicateSuffix,
		FlattenNested:     opts.FlattenNested,
		IsHub:             cache.IsHub,
	}, c.itemTemplate, notifier, logger)
	c.reconcile = reconcile.NewEngine(store, cache, reconcile.Options{
		AttachmentsFolder: opts.AttachmentsFolder,
		Heading:           opts.Heading,
	}, logger)
	return c
}

// Settings returns the settings store the controller reads templates from.
func (c *Controller) Settings() *settings.Store {
	return c.settings
}

// lockHubs locks the folders of the given hubs.
func (c *Controller) lockHubs(hubs ...string) func() {
	keys := make([]string, len(hubs))
	for i, h := range hubs {
		keys[i] = layout.HubFolderFor(h)
	}
	return c.locks.Lock(keys...)
}

func (c *Controller) setState(hub string, s State) {
	c.mu.Lock()
	c.states[layout.HubFolderFor(hub)] = s
	c.mu.Unlock()
}

func (c *Controller) dropState(hub string) {
	c.mu.Lock()
	delete(c.states, layout.HubFolderFor(hub))
	c.mu.Unlock()
}

// State returns the maintenance state of hub.
func (c *Controller) State(hub string) State {
	if !layout.IsColocated(hub) {
		return StateUnbound
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[layout.HubFolderFor(hub)]; ok {
		return s
	}
	return StateBound
}

// Touch marks hub as needing repair after a vault change.
func (c *Controller) Touch(hub string) {
	c.setState(hub, StateRepairing)
}

// observe records the duration and failure of a public operation.
func (c *Controller) observe(op string, start time.Time, err error) {
	metrics.ObserveOperation(op, start)
	if err == nil {
		return
	}
	metrics.OperationErrors.WithLabelValues(op, apperr.KindOf(err).String()).Inc()
	c.logger.Warn("lifecycle: "+op+" failed", slog.String("error", err.Error()))
}

// discover returns the hubs subject to maintenance: flagged documents outside
// the templates folder and inside the container path, if one is set.
func (c *Controller) discover(ctx context.Context) ([]string, error) {
	paths, err := c.cache.HubPaths(ctx)
	if err != nil {
		return nil, err
	}
	st := c.settings.Get()
	out := paths[:0:0]
	for _, p := range paths {
		if st.InTemplates(p) || !st.InContainer(p) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// requireHub checks that hub exists and carries the marker.
func (c *Controller) requireHub(ctx context.Context, op, hub string) error {
	if !c.store.Exists(hub) || !c.cache.IsHub(ctx, hub) {
		return apperr.New(apperr.KindNotFound, op, hub, errors.New("no such hub"))
	}
	return nil
}

// Hubs lists the discovered hubs with their items and state.
func (c *Controller) Hubs(ctx context.Context) ([]models.HubInfo, error) {
	paths, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.HubInfo, 0, len(paths))
	for _, p := range paths {
		info := models.HubInfo{
			Path:   p,
			Name:   layout.Stem(p),
			Folder: layout.HubFolderFor(p),
			State:  string(c.State(p)),
			Items:  []string{},
		}
		if layout.IsColocated(p) {
			children, err := c.store.Children(info.Folder)
			if err == nil {
				snap := layout.Classify(p, children, c.opts.AttachmentsFolder, c.store.Exists)
				if snap.Items != nil {
					info.Items = snap.Items
				}
			}
		}
		out = append(out, info)
	}
	return out, nil
}

// Update repairs and reconciles one hub.
func (c *Controller) Update(ctx context.Context, hub string) (rep Report, err error) {
	defer func(start time.Time) { c.observe("update", start, err) }(time.Now())
	if err := c.requireHub(ctx, "update", hub); err != nil {
		return Report{}, err
	}
	unlock := c.lockHubs(hub)
	defer unlock()
	return c.update(ctx, hub, nil)
}

// UpdateAll refreshes the index, then updates every discovered hub with
// bounded concurrency. A failing hub does not stop the others.
func (c *Controller) UpdateAll(ctx context.Context) (reports []Report, err error) {
	defer func(start time.Time) { c.observe("update_all", start, err) }(time.Now())
	if err := c.cache.Sync(ctx); err != nil {
		return nil, err
	}
	hubs, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for _, hub := range hubs {
		g.Go(func() error {
			unlock := c.lockHubs(hub)
			defer unlock()
			rep, err := c.update(gctx, hub, nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.notifier.Notify(gctx, notice.FromError(hub, err))
				errs = append(errs, err)
				return nil
			}
			reports = append(reports, rep)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return reports, err
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Hub < reports[j].Hub })
	return reports, errors.Join(errs...)
}

// update runs repair to its fixed point, then reconciles. The caller holds
// the hub lock.
func (c *Controller) update(ctx context.Context, hub string, renamed map[string]string) (Report, error) {
	c.setState(hub, StateRepairing)

	res, err := c.repair.Stabilize(ctx, hub, c.opts.Policy)
	rep := Report{Hub: res.HubPath, Changed: res.Changed, Actions: res.Actions}
	for _, f := range res.Failures {
		rep.Failures = append(rep.Failures, f.Error())
	}
	if rep.Actions == nil {
		rep.Actions = []repair.Action{}
	}
	if err != nil {
		return rep, err
	}
	if err := c.refreshActions(ctx, res.Actions); err != nil {
		return rep, err
	}
	hub = res.HubPath

	var out reconcile.Output
	err = c.opts.Policy.Do(ctx, func(int) (bool, error) {
		var rerr error
		out, rerr = c.reconcile.Reconcile(ctx, hub, renamed)
		if errors.Is(rerr, apperr.ErrStale) {
			c.logger.Debug("lifecycle: stale metadata, retrying", slog.String("hub", hub))
			return false, c.cache.Refresh(ctx, hub)
		}
		return rerr == nil, rerr
	})
	if errors.Is(err, retry.ErrExhausted) {
		err = apperr.New(apperr.KindAnomaly, "reconcile", hub, errors.New("metadata did not settle"))
	}
	if err != nil {
		return rep, err
	}
	// The watcher also indexes the write; refreshing here keeps the next
	// pass independent of event timing.
	if out.Changed {
		if err := c.cache.Refresh(ctx, hub); err != nil {
			return rep, err
		}
	}

	rep.Changed = rep.Changed || out.Changed
	rep.Added = out.Added
	rep.Removed = out.Removed
	rep.Normalized = out.Normalized
	rep.Renamed = out.Renamed
	c.setState(hub, StateReconciled)
	return rep, nil
}

func (c *Controller) refreshActions(ctx context.Context, actions []repair.Action) error {
	var paths []string
	for _, a := range actions {
		if a.From != "" {
			paths = append(paths, a.From)
		}
		paths = append(paths, a.To)
	}
	if len(paths) == 0 {
		return nil
	}
	return c.cache.Refresh(ctx, paths...)
}

// itemTemplate returns the item template of hub, or nil when none exists.
func (c *Controller) itemTemplate(_ context.Context, hub string) []byte {
	p := c.settings.Get().ItemTemplate(hub)
	if !c.store.Exists(p) {
		return nil
	}
	data, err := c.store.Read(p)
	if err != nil {
		c.logger.Warn("lifecycle: read item template", slog.String("path", p), slog.String("error", err.Error()))
		return nil
	}
	return data
}

// hubTemplate returns the content for a new hub document. A template lacking
// the marker gets it injected.
func (c *Controller) hubTemplate() []byte {
	p := c.settings.Get().HubTemplate()
	if c.settings.Get().TemplatesFolder != "" && c.store.Exists(p) {
		data, err := c.store.Read(p)
		if err == nil {
			res, perr := parser.Parse(data)
			if perr == nil && res.HasFlag(c.opts.MarkerKey) {
				return data
			}
			return parser.SetFlag(data, c.opts.MarkerKey)
		}
		c.logger.Warn("lifecycle: read hub template", slog.String("path", p), slog.String("error", err.Error()))
	}
	return []byte(fmt.Sprintf("---\n%s: true\n---\n## %s\n", c.opts.MarkerKey, c.opts.Heading))
}

// confirm checks a destructive operation's confirmation phrase.
func (c *Controller) confirm(op, p, phrase string) error {
	if phrase != c.opts.ConfirmPhrase {
		return apperr.New(apperr.KindConfirmation, op, p, fmt.Errorf("type %q to confirm", c.opts.ConfirmPhrase))
	}
	return nil
}
