package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/mocsync/internal/apperr"
	"github.com/starford/mocsync/internal/checksum"
	"github.com/starford/mocsync/internal/index"
	"github.com/starford/mocsync/internal/layout"
	"github.com/starford/mocsync/internal/metrics"
	"github.com/starford/mocsync/internal/parser"
	"github.com/starford/mocsync/internal/storage"
)

// MetadataSource serves parsed link metadata for documents.
//
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_metadata.go -package=mocks github.com/starford/mocsync/internal/reconcile MetadataSource
type MetadataSource interface {
	Metadata(ctx context.Context, path string) (*index.Metadata, error)
	HasDocument(ctx context.Context, target string) bool
}

// Options holds the conventions reconciliation follows.
type Options struct {
	AttachmentsFolder string
	Heading           string
}

// Engine reconciles hub documents against their folders.
type Engine struct {
	store  storage.Provider
	meta   MetadataSource
	opts   Options
	logger *slog.Logger
}

// NewEngine creates a reconcile engine.
func NewEngine(store storage.Provider, meta MetadataSource, opts Options, logger *slog.Logger) *Engine {
	return &Engine{store: store, meta: meta, opts: opts, logger: logger}
}

// Reconcile brings the item links of a colocated hub in line with its item
// folders. renamed maps old item names to new ones so their links are
// rewritten rather than dropped. The hub is written only when its content
// changes.
func (e *Engine) Reconcile(ctx context.Context, hub string, renamed map[string]string) (Output, error) {
	start := time.Now()
	defer metrics.ObserveOperation("reconcile", start)

	content, err := e.store.Read(hub)
	if err != nil {
		return Output{}, err
	}
	meta, err := e.meta.Metadata(ctx, hub)
	if err != nil {
		return Output{}, err
	}
	if meta.Checksum != checksum.Sum(content) {
		return Output{}, fmt.Errorf("reconcile %s: %w", hub, apperr.ErrStale)
	}
	parsed, err := parser.Parse(content)
	if err != nil {
		return Output{}, fmt.Errorf("reconcile: parse %s: %w", hub, err)
	}

	folder := layout.Dir(hub)
	children, err := e.store.Children(folder)
	if err != nil {
		return Output{}, apperr.New(apperr.KindStorage, "list hub folder", folder, err)
	}
	snap := layout.Classify(hub, children, e.opts.AttachmentsFolder, e.store.Exists)

	out, err := Plan(Input{
		Content:        string(content),
		FrontmatterEnd: parsed.FrontmatterEnd,
		Links:          meta.Links,
		HubFolder:      folder,
		Items:          snap.Items,
		Renamed:        renamed,
		Exists:         func(target string) bool { return e.meta.HasDocument(ctx, target) },
		Heading:        e.opts.Heading,
	})
	if err != nil {
		return Output{}, err
	}
	if !out.Changed {
		return out, nil
	}
	if err := e.store.Write(hub, []byte(out.Content)); err != nil {
		return out, apperr.New(apperr.KindStorage, "write hub", hub, err)
	}

	count := func(change string, n int) {
		if n > 0 {
			metrics.LinkChanges.WithLabelValues(change).Add(float64(n))
		}
	}
	count("added", len(out.Added))
	count("removed", len(out.Removed))
	count("normalized", len(out.Normalized))
	count("renamed", len(out.Renamed))
	count("unlinked", len(out.Unlinked))

	e.logger.Info("reconcile: hub updated",
		slog.String("hub", hub),
		slog.Int("added", len(out.Added)),
		slog.Int("removed", len(out.Removed)),
		slog.Int("normalized", len(out.Normalized)),
		slog.Int("renamed", len(out.Renamed)),
	)
	return out, nil
}
