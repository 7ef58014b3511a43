package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/mocsync/internal/apperr"
	"github.com/starford/mocsync/internal/index"
	"github.com/starford/mocsync/internal/parser"
	"github.com/starford/mocsync/internal/retry"
	"github.com/starford/mocsync/internal/settings"
	"github.com/starford/mocsync/internal/storage"
)

const hubDoc = "---\nMOC-plugin: true\n---\n## Items\n"

type env struct {
	c        *Controller
	store    *storage.FS
	cache    *index.Cache
	settings *settings.Store
	opts     Options
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testOptions() Options {
	return Options{
		AttachmentsFolder: "attachments",
		DuplicateSuffix:   "-duplicate",
		MarkerKey:         "MOC-plugin",
		Heading:           "Items",
		ConfirmPhrase:     "confirm delete",
		Policy:            retry.Policy{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, MaxAttempts: 5},
		Concurrency:       2,
	}
}

func newEnv(t *testing.T, files map[string]string, defaults settings.Settings) *env {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for p, content := range files {
		if err := store.Write(p, []byte(content)); err != nil {
			t.Fatal(err)
		}
	}

	f, err := os.CreateTemp("", "mocsync-lifecycle-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })
	db, err := index.Open(f.Name())
	if err != nil {
		t.Fatalf("index.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := quietLogger()
	cache := index.NewCache(db, store, "MOC-plugin", logger)
	if err := cache.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	st, err := settings.Load(db, defaults, logger)
	if err != nil {
		t.Fatalf("settings.Load: %v", err)
	}
	opts := testOptions()
	return &env{
		c:        New(store, cache, st, opts, nil, logger),
		store:    store,
		cache:    cache,
		settings: st,
		opts:     opts,
	}
}

func (e *env) read(t *testing.T, p string) string {
	t.Helper()
	data, err := e.store.Read(p)
	if err != nil {
		t.Fatalf("read %s: %v", p, err)
	}
	return string(data)
}

func (e *env) exists(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if !e.store.Exists(p) {
			t.Errorf("expected %s to exist", p)
		}
	}
}

func (e *env) missing(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if e.store.Exists(p) {
			t.Errorf("expected %s to be gone", p)
		}
	}
}

var templates = settings.Settings{TemplatesFolder: "Templates"}

func TestUpdateAll(t *testing.T) {
	e := newEnv(t, map[string]string{
		"Projects.md":              hubDoc,
		"Projects/Alpha.md":        "alpha",
		"Projects/Beta/Beta.md":    "beta",
		"Projects/pic.png":         "png",
		"Templates/MOCTemplate.md": hubDoc,
	}, templates)
	ctx := context.Background()

	reports, err := e.c.UpdateAll(ctx)
	if err != nil {
		t.Fatalf("UpdateAll: %v", err)
	}
	if len(reports) != 1 || reports[0].Hub != "Projects/Projects.md" || !reports[0].Changed {
		t.Fatalf("reports = %+v", reports)
	}
	want := hubDoc + "- [ ] [Alpha](Alpha/Alpha.md)\n- [ ] [Beta](Beta/Beta.md)\n"
	if got := e.read(t, "Projects/Projects.md"); got != want {
		t.Errorf("hub =\n%q\nwant\n%q", got, want)
	}
	e.exists(t, "Projects/Alpha/Alpha.md", "Projects/attachments/pic.png")

	hubs, err := e.c.Hubs(ctx)
	if err != nil {
		t.Fatalf("Hubs: %v", err)
	}
	if len(hubs) != 1 {
		t.Fatalf("hubs = %+v", hubs)
	}
	h := hubs[0]
	if h.State != string(StateReconciled) || len(h.Items) != 2 || h.Items[0] != "Alpha" {
		t.Errorf("hub info = %+v", h)
	}

	again, err := e.c.UpdateAll(ctx)
	if err != nil {
		t.Fatalf("UpdateAll: %v", err)
	}
	if again[0].Changed {
		t.Errorf("second update changed the vault: %+v", again[0])
	}
}

func TestHubs_ContainerPath(t *testing.T) {
	e := newEnv(t, map[string]string{
		"Projects/Projects.md":  hubDoc,
		"Areas/Work/Work.md":    hubDoc,
		"Areas/Work/Tasks.md":   "",
		"Templates/Template.md": hubDoc,
	}, settings.Settings{TemplatesFolder: "Templates", ContainerPath: "Areas"})

	hubs, err := e.c.Hubs(context.Background())
	if err != nil {
		t.Fatalf("Hubs: %v", err)
	}
	if len(hubs) != 1 || hubs[0].Path != "Areas/Work/Work.md" || hubs[0].State != string(StateBound) {
		t.Errorf("hubs = %+v", hubs)
	}
}

func TestCreateItem(t *testing.T) {
	e := newEnv(t, map[string]string{
		"Projects/Projects.md":           hubDoc,
		"Templates/Projects-template.md": "# template\n",
	}, templates)
	ctx := context.Background()

	entry, err := e.c.CreateItem(ctx, "Projects/Projects.md", "Alpha")
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if entry != "Projects/Alpha/Alpha.md" || e.read(t, entry) != "# template\n" {
		t.Errorf("entry %s = %q", entry, e.read(t, entry))
	}
	if got := e.read(t, "Projects/Projects.md"); got != hubDoc+"- [ ] [Alpha](Alpha/Alpha.md)\n" {
		t.Errorf("hub = %q", got)
	}

	cases := []struct {
		name string
		want error
	}{
		{"Alpha", apperr.ErrCollision},
		{"attachments", apperr.ErrCollision},
		{"a/b", apperr.ErrNameFormat},
		{"", apperr.ErrNameFormat},
	}
	for _, tc := range cases {
		if _, err := e.c.CreateItem(ctx, "Projects/Projects.md", tc.name); !errors.Is(err, tc.want) {
			t.Errorf("CreateItem(%q) = %v, want %v", tc.name, err, tc.want)
		}
	}
	if _, err := e.c.CreateItem(ctx, "Nope/Nope.md", "X"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("CreateItem on missing hub = %v", err)
	}
}

func TestRenameItem(t *testing.T) {
	e := newEnv(t, map[string]string{
		"Projects/Projects.md":    hubDoc + "- [x] [Alpha](Alpha/Alpha.md) shipped\n",
		"Projects/Alpha/Alpha.md": "alpha",
		"Projects/Beta/Beta.md":   "beta",
	}, templates)
	ctx := context.Background()

	entry, err := e.c.RenameItem(ctx, "Projects/Projects.md", "Alpha", "Gamma")
	if err != nil {
		t.Fatalf("RenameItem: %v", err)
	}
	if entry != "Projects/Gamma/Gamma.md" || e.read(t, entry) != "alpha" {
		t.Errorf("entry = %s", entry)
	}
	e.missing(t, "Projects/Alpha")
	want := hubDoc + "- [ ] [Beta](Beta/Beta.md)\n- [x] [Gamma](Gamma/Gamma.md) shipped\n"
	if got := e.read(t, "Projects/Projects.md"); got != want {
		t.Errorf("hub =\n%q\nwant\n%q", got, want)
	}

	if _, err := e.c.RenameItem(ctx, "Projects/Projects.md", "Gamma", "Beta"); !errors.Is(err, apperr.ErrCollision) {
		t.Errorf("rename onto existing item = %v", err)
	}
	if _, err := e.c.RenameItem(ctx, "Projects/Projects.md", "Missing", "X"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("rename of missing item = %v", err)
	}
}

// busyFolderStore fails renames of one folder.
type busyFolderStore struct {
	*storage.FS
	folder string
}

func (s *busyFolderStore) Rename(oldPath, newPath string) error {
	if oldPath == s.folder {
		return errors.New("device busy")
	}
	return s.FS.Rename(oldPath, newPath)
}

func TestRenameItem_RevertsDocumentOnFolderFailure(t *testing.T) {
	e := newEnv(t, map[string]string{
		"Projects/Projects.md":    hubDoc,
		"Projects/Alpha/Alpha.md": "alpha",
	}, templates)
	store := &busyFolderStore{FS: e.store, folder: "Projects/Alpha"}
	c := New(store, e.cache, e.settings, e.opts, nil, quietLogger())

	_, err := c.RenameItem(context.Background(), "Projects/Projects.md", "Alpha", "Gamma")
	if !errors.Is(err, apperr.ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}
	e.exists(t, "Projects/Alpha/Alpha.md")
	e.missing(t, "Projects/Alpha/Gamma.md", "Projects/Gamma")
}

func TestDeleteItem(t *testing.T) {
	e := newEnv(t, map[string]string{
		"Projects/Projects.md":    hubDoc + "- [ ] [Alpha](Alpha/Alpha.md)\n",
		"Projects/Alpha/Alpha.md": "alpha",
	}, templates)
	ctx := context.Background()

	if err := e.c.DeleteItem(ctx, "Projects/Projects.md", "Alpha", "yes"); !errors.Is(err, apperr.ErrConfirmation) {
		t.Fatalf("err = %v, want ErrConfirmation", err)
	}
	e.exists(t, "Projects/Alpha/Alpha.md")

	if err := e.c.DeleteItem(ctx, "Projects/Projects.md", "Alpha", "confirm delete"); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	e.missing(t, "Projects/Alpha")
	if _, err := os.Stat(filepath.Join(e.store.Root(), storage.LocalTrashDir, "Alpha", "Alpha.md")); err != nil {
		t.Errorf("item not in trash: %v", err)
	}
	if got := e.read(t, "Projects/Projects.md"); got != hubDoc {
		t.Errorf("hub = %q", got)
	}
}

func TestMoveItem(t *testing.T) {
	e := newEnv(t, map[string]string{
		"Projects/Projects.md":    hubDoc + "- [ ] [Alpha](Alpha/Alpha.md)\n- [ ] [Beta](Beta/Beta.md)\n",
		"Projects/Alpha/Alpha.md": "alpha",
		"Projects/Beta/Beta.md":   "beta",
		"Areas/Areas.md":          hubDoc,
		"Areas/Beta/Beta.md":      "other beta",
	}, templates)
	ctx := context.Background()

	if _, err := e.c.MoveItem(ctx, "Projects/Alpha/Alpha.md", "Projects/Projects.md"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("move into same hub = %v", err)
	}
	if _, err := e.c.MoveItem(ctx, "Projects/Beta", "Areas/Areas.md"); !errors.Is(err, apperr.ErrCollision) {
		t.Errorf("move onto existing item = %v", err)
	}

	entry, err := e.c.MoveItem(ctx, "Projects/Alpha/Alpha.md", "Areas/Areas.md")
	if err != nil {
		t.Fatalf("MoveItem: %v", err)
	}
	if entry != "Areas/Alpha/Alpha.md" {
		t.Errorf("entry = %s", entry)
	}
	if got := e.read(t, "Projects/Projects.md"); got != hubDoc+"- [ ] [Beta](Beta/Beta.md)\n" {
		t.Errorf("source hub = %q", got)
	}
	if got := e.read(t, "Areas/Areas.md"); got != hubDoc+"- [ ] [Alpha](Alpha/Alpha.md)\n- [ ] [Beta](Beta/Beta.md)\n" {
		t.Errorf("target hub = %q", got)
	}
}

func TestUpdate_UnlinksBareLinkToOtherHubsItem(t *testing.T) {
	e := newEnv(t, map[string]string{
		"Projects/Projects.md":  hubDoc + "- [ ] [Beta](Beta/Beta.md)\nSee [[Delta]] and [[Notes]].\n",
		"Projects/Beta/Beta.md": "beta",
		"Areas/Areas.md":        hubDoc + "- [ ] [Delta](Delta/Delta.md)\n",
		"Areas/Delta/Delta.md":  "moved away",
		"Notes.md":              "loose note",
	}, templates)
	ctx := context.Background()

	if _, err := e.c.Update(ctx, "Projects/Projects.md"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := e.read(t, "Projects/Projects.md"); got != hubDoc+"- [ ] [Beta](Beta/Beta.md)\nSee Delta and [[Notes]].\n" {
		t.Errorf("hub = %q", got)
	}
}

func TestRenameHub(t *testing.T) {
	e := newEnv(t, map[string]string{
		"Areas/Projects/Projects.md":    hubDoc + "- [ ] [Alpha](Alpha/Alpha.md)\n",
		"Areas/Projects/Alpha/Alpha.md": "alpha",
		"Areas/Work/Work.md":            "taken",
	}, templates)
	ctx := context.Background()

	if _, err := e.c.RenameHub(ctx, "Areas/Projects/Projects.md", "Work"); !errors.Is(err, apperr.ErrCollision) {
		t.Errorf("rename onto existing folder = %v", err)
	}
	if _, err := e.c.RenameHub(ctx, "Areas/Projects/Projects.md", "bad:name"); !errors.Is(err, apperr.ErrNameFormat) {
		t.Errorf("rename with bad name = %v", err)
	}

	hub, err := e.c.RenameHub(ctx, "Areas/Projects/Projects.md", "Ventures")
	if err != nil {
		t.Fatalf("RenameHub: %v", err)
	}
	if hub != "Areas/Ventures/Ventures.md" {
		t.Errorf("hub = %s", hub)
	}
	e.exists(t, "Areas/Ventures/Ventures.md", "Areas/Ventures/Alpha/Alpha.md")
	e.missing(t, "Areas/Projects")

	hubs, _ := e.c.Hubs(ctx)
	if len(hubs) != 1 || hubs[0].Path != hub {
		t.Errorf("hubs = %+v", hubs)
	}
}

func TestDeleteHub(t *testing.T) {
	e := newEnv(t, map[string]string{
		"Projects/Projects.md":    hubDoc,
		"Projects/Alpha/Alpha.md": "alpha",
	}, templates)
	ctx := context.Background()

	if err := e.c.DeleteHub(ctx, "Projects/Projects.md", ""); !errors.Is(err, apperr.ErrConfirmation) {
		t.Fatalf("err = %v, want ErrConfirmation", err)
	}
	if err := e.c.DeleteHub(ctx, "Projects/Projects.md", "confirm delete"); err != nil {
		t.Fatalf("DeleteHub: %v", err)
	}
	e.missing(t, "Projects")
	hubs, _ := e.c.Hubs(ctx)
	if len(hubs) != 0 {
		t.Errorf("hubs = %+v", hubs)
	}
}

func TestCreateHub_InjectsMarkerIntoTemplate(t *testing.T) {
	e := newEnv(t, map[string]string{
		"Areas/readme.md":          "x",
		"Templates/MOCTemplate.md": "## Overview\n",
	}, templates)
	ctx := context.Background()

	hub, err := e.c.CreateHub(ctx, "Areas", "Ideas")
	if err != nil {
		t.Fatalf("CreateHub: %v", err)
	}
	if hub != "Areas/Ideas/Ideas.md" {
		t.Errorf("hub = %s", hub)
	}
	res, _ := parser.Parse([]byte(e.read(t, hub)))
	if !res.HasFlag("MOC-plugin") {
		t.Errorf("hub lacks marker: %q", e.read(t, hub))
	}
	if _, err := e.c.CreateHub(ctx, "Areas", "Ideas"); !errors.Is(err, apperr.ErrCollision) {
		t.Errorf("second CreateHub = %v", err)
	}
	if _, err := e.c.CreateHub(ctx, "Missing", "X"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("CreateHub in missing folder = %v", err)
	}
}

func TestConvertToHub(t *testing.T) {
	e := newEnv(t, map[string]string{
		"Notes/Idea.md": "",
		"Notes/Full.md": "content",
	}, templates)
	ctx := context.Background()

	if _, err := e.c.ConvertToHub(ctx, "Notes/Full.md"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("convert non-empty = %v", err)
	}
	hub, err := e.c.ConvertToHub(ctx, "Notes/Idea.md")
	if err != nil {
		t.Fatalf("ConvertToHub: %v", err)
	}
	if hub != "Notes/Idea/Idea.md" {
		t.Errorf("hub = %s", hub)
	}
	if got := e.read(t, hub); got != hubDoc {
		t.Errorf("hub content = %q", got)
	}
}

func TestFixHubFolderName(t *testing.T) {
	e := newEnv(t, map[string]string{
		"Projects/Projects.md":    hubDoc,
		"Projects/Alpha/Alpha.md": "alpha",
	}, templates)
	ctx := context.Background()
	if err := e.store.Rename("Projects/Projects.md", "Projects/Work.md"); err != nil {
		t.Fatal(err)
	}

	hub, err := e.c.FixHubFolderName(ctx, "Projects/Projects.md", "Projects/Work.md")
	if err != nil {
		t.Fatalf("FixHubFolderName: %v", err)
	}
	if hub != "Work/Work.md" {
		t.Errorf("hub = %s", hub)
	}
	e.exists(t, "Work/Work.md", "Work/Alpha/Alpha.md")
	if got := e.read(t, hub); got != hubDoc+"- [ ] [Alpha](Alpha/Alpha.md)\n" {
		t.Errorf("hub = %q", got)
	}

	// Already colocated: nothing to do.
	if again, err := e.c.FixHubFolderName(ctx, "Work/Old.md", hub); err != nil || again != hub {
		t.Errorf("second fix = %s, %v", again, err)
	}
}

func TestFixItemFolderName(t *testing.T) {
	e := newEnv(t, map[string]string{
		"Projects/Projects.md":    hubDoc + "- [ ] [Alpha](Alpha/Alpha.md)\n",
		"Projects/Alpha/Alpha.md": "alpha",
	}, templates)
	ctx := context.Background()
	if err := e.store.Rename("Projects/Alpha/Alpha.md", "Projects/Alpha/Gamma.md"); err != nil {
		t.Fatal(err)
	}

	entry, err := e.c.FixItemFolderName(ctx, "Projects/Alpha/Alpha.md", "Projects/Alpha/Gamma.md")
	if err != nil {
		t.Fatalf("FixItemFolderName: %v", err)
	}
	if entry != "Projects/Gamma/Gamma.md" {
		t.Errorf("entry = %s", entry)
	}
	if got := e.read(t, "Projects/Projects.md"); got != hubDoc+"- [ ] [Gamma](Gamma/Gamma.md)\n" {
		t.Errorf("hub = %q", got)
	}
}

func TestFixHubFolderName_CollisionRevertsDocument(t *testing.T) {
	e := newEnv(t, map[string]string{
		"Projects/Projects.md":    hubDoc + "- [ ] [Alpha](Alpha/Alpha.md)\n",
		"Projects/Alpha/Alpha.md": "alpha",
		"Work/notes.md":           "unrelated",
	}, templates)
	ctx := context.Background()
	if err := e.store.Rename("Projects/Projects.md", "Projects/Work.md"); err != nil {
		t.Fatal(err)
	}

	hub, err := e.c.FixHubFolderName(ctx, "Projects/Projects.md", "Projects/Work.md")
	if !errors.Is(err, apperr.ErrCollision) {
		t.Fatalf("err = %v, want ErrCollision", err)
	}
	if hub != "Projects/Projects.md" {
		t.Errorf("hub = %s", hub)
	}
	e.exists(t, "Projects/Projects.md", "Work/notes.md")
	e.missing(t, "Projects/Work.md", "Projects/Work")

	if _, err := e.c.Update(ctx, hub); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := e.read(t, hub); got != hubDoc+"- [ ] [Alpha](Alpha/Alpha.md)\n" {
		t.Errorf("hub = %q", got)
	}
}

func TestFixHubFolderName_RenamedFolder(t *testing.T) {
	e := newEnv(t, map[string]string{
		"Projects/Projects.md":    hubDoc + "- [ ] [Alpha](Alpha/Alpha.md)\n",
		"Projects/Alpha/Alpha.md": "alpha",
	}, templates)
	ctx := context.Background()
	if err := e.store.Rename("Projects", "Work"); err != nil {
		t.Fatal(err)
	}

	hub, err := e.c.FixHubFolderName(ctx, "Projects/Projects.md", "Work/Projects.md")
	if err != nil {
		t.Fatalf("FixHubFolderName: %v", err)
	}
	if hub != "Projects/Projects.md" {
		t.Errorf("hub = %s", hub)
	}
	e.exists(t, "Projects/Alpha/Alpha.md")
	e.missing(t, "Work")
	if got := e.read(t, hub); got != hubDoc+"- [ ] [Alpha](Alpha/Alpha.md)\n" {
		t.Errorf("hub = %q", got)
	}
}

func TestFixHubFolderName_RenamedFolderNameTaken(t *testing.T) {
	e := newEnv(t, map[string]string{
		"Projects/Projects.md":    hubDoc + "- [ ] [Alpha](Alpha/Alpha.md)\n",
		"Projects/Alpha/Alpha.md": "alpha",
	}, templates)
	ctx := context.Background()
	if err := e.store.Rename("Projects", "Work"); err != nil {
		t.Fatal(err)
	}
	if err := e.store.Write("Projects/other.md", []byte("new folder")); err != nil {
		t.Fatal(err)
	}

	hub, err := e.c.FixHubFolderName(ctx, "Projects/Projects.md", "Work/Projects.md")
	if !errors.Is(err, apperr.ErrCollision) {
		t.Fatalf("err = %v, want ErrCollision", err)
	}
	if hub != "Work/Work.md" {
		t.Errorf("hub = %s", hub)
	}
	if _, err := e.c.Update(ctx, hub); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := e.read(t, hub); got != hubDoc+"- [ ] [Alpha](Alpha/Alpha.md)\n" {
		t.Errorf("hub = %q", got)
	}
	e.exists(t, "Work/Alpha/Alpha.md", "Projects/other.md")
}

func TestUpdate_HubFolderRenamedOffline(t *testing.T) {
	e := newEnv(t, map[string]string{
		"Projects/Projects.md":    hubDoc + "- [ ] [Alpha](Alpha/Alpha.md)\n",
		"Projects/Alpha/Alpha.md": "alpha",
	}, templates)
	ctx := context.Background()
	if err := e.store.Rename("Projects", "Work"); err != nil {
		t.Fatal(err)
	}
	if err := e.cache.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	rep, err := e.c.Update(ctx, "Work/Projects.md")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if rep.Hub != "Projects/Projects.md" {
		t.Errorf("hub = %s", rep.Hub)
	}
	if got := e.read(t, rep.Hub); got != hubDoc+"- [ ] [Alpha](Alpha/Alpha.md)\n" {
		t.Errorf("hub = %q", got)
	}
}

func TestFixItemFolderName_CollisionRevertsDocument(t *testing.T) {
	e := newEnv(t, map[string]string{
		"Projects/Projects.md":    hubDoc + "- [ ] [Alpha](Alpha/Alpha.md)\n- [ ] [Gamma](Gamma/Gamma.md)\n",
		"Projects/Alpha/Alpha.md": "alpha",
		"Projects/Gamma/Gamma.md": "gamma",
	}, templates)
	ctx := context.Background()
	if err := e.store.Rename("Projects/Alpha/Alpha.md", "Projects/Alpha/Gamma.md"); err != nil {
		t.Fatal(err)
	}

	entry, err := e.c.FixItemFolderName(ctx, "Projects/Alpha/Alpha.md", "Projects/Alpha/Gamma.md")
	if !errors.Is(err, apperr.ErrCollision) {
		t.Fatalf("err = %v, want ErrCollision", err)
	}
	if entry != "Projects/Alpha/Alpha.md" {
		t.Errorf("entry = %s", entry)
	}
	e.exists(t, "Projects/Alpha/Alpha.md", "Projects/Gamma/Gamma.md")
	e.missing(t, "Projects/Alpha/Gamma.md")
}

func TestRenameItem_CaseVariantOfUserFile(t *testing.T) {
	e := newEnv(t, map[string]string{
		"Projects/Projects.md":    hubDoc + "- [ ] [Alpha](Alpha/Alpha.md)\n",
		"Projects/Alpha/Alpha.md": "old entry",
		"Projects/alpha/notes.md": "user notes",
	}, templates)
	if e.store.Same("Projects/Alpha", "Projects/alpha") {
		t.Skip("case-insensitive volume")
	}

	_, err := e.c.RenameItem(context.Background(), "Projects/Projects.md", "Alpha", "alpha")
	if !errors.Is(err, apperr.ErrCollision) {
		t.Fatalf("err = %v, want ErrCollision", err)
	}
	if got := e.read(t, "Projects/alpha/notes.md"); got != "user notes" {
		t.Errorf("notes = %q", got)
	}
	e.exists(t, "Projects/Alpha/Alpha.md")
}

func TestAdoptDocument(t *testing.T) {
	e := newEnv(t, map[string]string{
		"Projects/Projects.md":           hubDoc,
		"Projects/Untitled.md":           "",
		"Projects/Written.md":            "mine",
		"Templates/Projects-template.md": "# template\n",
	}, templates)
	ctx := context.Background()

	for _, p := range []string{"Projects/Untitled.md", "Projects/Written.md", "Projects/Projects.md"} {
		if err := e.c.AdoptDocument(ctx, p); err != nil {
			t.Fatalf("AdoptDocument(%s): %v", p, err)
		}
	}
	if got := e.read(t, "Projects/Untitled.md"); got != "# template\n" {
		t.Errorf("untitled = %q", got)
	}
	if got := e.read(t, "Projects/Written.md"); got != "mine" {
		t.Errorf("written = %q", got)
	}
	if got := e.read(t, "Projects/Projects.md"); got != hubDoc {
		t.Errorf("hub = %q", got)
	}
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("b", "a", "a")

	acquired := make(chan func())
	go func() { acquired <- k.Lock("a") }()

	select {
	case <-acquired:
		t.Fatal("lock acquired while held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()

	select {
	case release := <-acquired:
		release()
	case <-time.After(time.Second):
		t.Fatal("lock never released")
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.locks) != 0 {
		t.Errorf("%d lock entries leaked", len(k.locks))
	}
}
