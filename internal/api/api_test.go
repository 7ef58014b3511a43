package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/mocsync/internal/apperr"
	"github.com/starford/mocsync/internal/index"
	"github.com/starford/mocsync/internal/lifecycle"
	"github.com/starford/mocsync/internal/models"
	"github.com/starford/mocsync/internal/retry"
	"github.com/starford/mocsync/internal/settings"
	"github.com/starford/mocsync/internal/storage"
	"github.com/starford/mocsync/internal/testutil"
)

const (
	marker  = "MOC-plugin"
	confirm = "confirm delete"
	hubDoc  = "---\nMOC-plugin: true\n---\n## Items\n"
)

// testEnv sets up a temp vault, SQLite index, controller, and router.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, files map[string]string, authToken string) (http.Handler, *storage.FS) {
	t.Helper()
	router, store, _ := testEnvWithSSE(t, files, authToken != "", authToken, nil)
	return router, store
}

func testEnvWithSSE(t *testing.T, files map[string]string, authEnabled bool, token string, sseHandler http.Handler) (http.Handler, *storage.FS, *settings.Store) {
	t.Helper()
	_, store := testutil.TestVault(t, files)
	db := testutil.TestDB(t)
	logger := testutil.QuietLogger()

	cache := index.NewCache(db, store, marker, logger)
	if err := cache.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	st, err := settings.Load(db, settings.Settings{TemplatesFolder: "Templates"}, logger)
	if err != nil {
		t.Fatalf("settings.Load: %v", err)
	}
	ctrl := lifecycle.New(store, cache, st, lifecycle.Options{
		AttachmentsFolder: "attachments",
		DuplicateSuffix:   "-duplicate",
		MarkerKey:         marker,
		Heading:           "Items",
		ConfirmPhrase:     confirm,
		Policy:            retry.Policy{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, MaxAttempts: 5},
		Concurrency:       2,
	}, nil, logger)
	return NewRouter(ctrl, st, authEnabled, token, sseHandler), store, st
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListHubs(t *testing.T) {
	router, _ := testEnv(t, map[string]string{
		"Work/Work.md":          hubDoc,
		"Work/Report/Report.md": "report",
		"Notes/plain.md":        "plain",
	}, "")

	w := do(t, router, http.MethodGet, "/hubs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp HubListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Hubs) != 1 {
		t.Fatalf("hubs = %+v, want one", resp.Hubs)
	}
	got := resp.Hubs[0]
	if got.Path != "Work/Work.md" || got.Folder != "Work" || len(got.Items) != 1 || got.Items[0] != "Report" {
		t.Errorf("hub = %+v", got)
	}
}

func TestCreateHub(t *testing.T) {
	router, store := testEnv(t, nil, "")

	w := do(t, router, http.MethodPost, "/hubs", CreateHubRequest{Name: "Work"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp HubResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Hub != "Work/Work.md" || !store.Exists("Work/Work.md") {
		t.Errorf("hub = %q", resp.Hub)
	}

	// Second create should 409.
	w = do(t, router, http.MethodPost, "/hubs", CreateHubRequest{Name: "Work"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", w.Code)
	}
}

func TestCreateHub_InvalidName(t *testing.T) {
	router, _ := testEnv(t, nil, "")

	w := do(t, router, http.MethodPost, "/hubs", CreateHubRequest{Name: "a:b"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid name = %d, want 400", w.Code)
	}
}

func TestCreateHub_InvalidJSON(t *testing.T) {
	router, _ := testEnv(t, nil, "")

	req := httptest.NewRequest(http.MethodPost, "/hubs", strings.NewReader("{"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad body = %d, want 400", w.Code)
	}
}

func TestCreateItemLinksIt(t *testing.T) {
	router, store := testEnv(t, map[string]string{"Work/Work.md": hubDoc}, "")

	w := do(t, router, http.MethodPost, "/items", CreateItemRequest{Hub: "Work/Work.md", Name: "Report"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create item = %d, body = %s", w.Code, w.Body.String())
	}
	var resp ItemResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Entry != "Work/Report/Report.md" || !store.Exists(resp.Entry) {
		t.Errorf("entry = %q", resp.Entry)
	}
	data, err := store.Read("Work/Work.md")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "- [ ] [Report](Report/Report.md)") {
		t.Errorf("hub not linked:\n%s", data)
	}
}

func TestCreateItem_UnknownHub(t *testing.T) {
	router, _ := testEnv(t, nil, "")

	w := do(t, router, http.MethodPost, "/items", CreateItemRequest{Hub: "Ghost/Ghost.md", Name: "x"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown hub = %d, want 404", w.Code)
	}
}

func TestRenameItem(t *testing.T) {
	router, store := testEnv(t, map[string]string{
		"Work/Work.md":          hubDoc + "- [ ] [Report](Report/Report.md)\n",
		"Work/Report/Report.md": "report",
	}, "")

	w := do(t, router, http.MethodPost, "/items/rename", RenameItemRequest{Hub: "Work/Work.md", OldName: "Report", NewName: "Summary"})
	if w.Code != http.StatusOK {
		t.Fatalf("rename = %d, body = %s", w.Code, w.Body.String())
	}
	if !store.Exists("Work/Summary/Summary.md") || store.Exists("Work/Report") {
		t.Error("item folder not renamed")
	}
}

func TestDeleteItem_Confirmation(t *testing.T) {
	router, store := testEnv(t, map[string]string{
		"Work/Work.md":          hubDoc,
		"Work/Report/Report.md": "report",
	}, "")

	w := do(t, router, http.MethodPost, "/items/delete", DeleteItemRequest{Hub: "Work/Work.md", Name: "Report", Confirmation: "yes"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("wrong confirmation = %d, want 422", w.Code)
	}
	if !store.Exists("Work/Report/Report.md") {
		t.Fatal("item deleted without confirmation")
	}

	w = do(t, router, http.MethodPost, "/items/delete", DeleteItemRequest{Hub: "Work/Work.md", Name: "Report", Confirmation: confirm})
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d, body = %s", w.Code, w.Body.String())
	}
	if store.Exists("Work/Report") {
		t.Error("item still present")
	}
}

func TestMoveItem(t *testing.T) {
	router, store := testEnv(t, map[string]string{
		"Work/Work.md":          hubDoc,
		"Home/Home.md":          hubDoc,
		"Work/Report/Report.md": "report",
	}, "")

	w := do(t, router, http.MethodPost, "/items/move", MoveItemRequest{Item: "Work/Report/Report.md", TargetHub: "Work/Work.md"})
	if w.Code != http.StatusConflict {
		t.Errorf("move into same hub = %d, want 409", w.Code)
	}

	w = do(t, router, http.MethodPost, "/items/move", MoveItemRequest{Item: "Work/Report/Report.md", TargetHub: "Home/Home.md"})
	if w.Code != http.StatusOK {
		t.Fatalf("move = %d, body = %s", w.Code, w.Body.String())
	}
	if !store.Exists("Home/Report/Report.md") {
		t.Error("item not moved")
	}
}

func TestRenameAndDeleteHub(t *testing.T) {
	router, store := testEnv(t, map[string]string{"Work/Work.md": hubDoc}, "")

	w := do(t, router, http.MethodPost, "/hubs/rename", RenameHubRequest{Path: "Work/Work.md", Name: "Job"})
	if w.Code != http.StatusOK {
		t.Fatalf("rename hub = %d, body = %s", w.Code, w.Body.String())
	}
	var resp HubResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Hub != "Job/Job.md" {
		t.Fatalf("hub = %q", resp.Hub)
	}

	w = do(t, router, http.MethodPost, "/hubs/delete", DeleteHubRequest{Path: resp.Hub, Confirmation: confirm})
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete hub = %d, body = %s", w.Code, w.Body.String())
	}
	if store.Exists("Job") {
		t.Error("hub folder still present")
	}
}

func TestConvertToHub(t *testing.T) {
	router, _ := testEnv(t, map[string]string{
		"Ideas.md": "",
		"Full.md":  "already written",
	}, "")

	w := do(t, router, http.MethodPost, "/hubs/convert", HubPathRequest{Path: "Full.md"})
	if w.Code != http.StatusConflict {
		t.Errorf("convert non-empty = %d, want 409", w.Code)
	}

	w = do(t, router, http.MethodPost, "/hubs/convert", HubPathRequest{Path: "Ideas.md"})
	if w.Code != http.StatusOK {
		t.Fatalf("convert = %d, body = %s", w.Code, w.Body.String())
	}
	var resp HubResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Hub != "Ideas/Ideas.md" {
		t.Errorf("hub = %q, want Ideas/Ideas.md", resp.Hub)
	}
}

func TestUpdateHubs(t *testing.T) {
	router, store := testEnv(t, map[string]string{
		"Work.md":               hubDoc,
		"Home/Home.md":          hubDoc,
		"Home/Garden/Garden.md": "garden",
	}, "")

	w := do(t, router, http.MethodPost, "/hubs/update", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("update all = %d, body = %s", w.Code, w.Body.String())
	}
	var resp UpdateAllResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Reports) != 2 || len(resp.Errors) != 0 {
		t.Fatalf("response = %+v", resp)
	}
	if !store.Exists("Work/Work.md") {
		t.Error("uncolocated hub was not repaired")
	}

	w = do(t, router, http.MethodPost, "/hubs/update", HubPathRequest{Path: "Home/Home.md"})
	if w.Code != http.StatusOK {
		t.Fatalf("update one = %d, body = %s", w.Code, w.Body.String())
	}
	var rep Report
	_ = json.Unmarshal(w.Body.Bytes(), &rep)
	if rep.Hub != "Home/Home.md" || rep.Changed {
		t.Errorf("second update should be a no-op, got %+v", rep)
	}

	w = do(t, router, http.MethodPost, "/hubs/update", HubPathRequest{Path: "Ghost/Ghost.md"})
	if w.Code != http.StatusNotFound {
		t.Errorf("update unknown = %d, want 404", w.Code)
	}
}

func TestSettings(t *testing.T) {
	router, _, st := testEnvWithSSE(t, nil, false, "", nil)

	w := do(t, router, http.MethodGet, "/settings", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get settings = %d", w.Code)
	}
	var got Settings
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.TemplatesFolder != "Templates" {
		t.Errorf("templates folder = %q", got.TemplatesFolder)
	}

	w = do(t, router, http.MethodPut, "/settings", Settings{TemplatesFolder: "/Meta/Templates/", ContainerPath: "Maps"})
	if w.Code != http.StatusOK {
		t.Fatalf("put settings = %d, body = %s", w.Code, w.Body.String())
	}
	if cur := st.Get(); cur.TemplatesFolder != "Meta/Templates" || cur.ContainerPath != "Maps" {
		t.Errorf("stored settings = %+v", cur)
	}

	w = do(t, router, http.MethodPut, "/settings", Settings{TemplatesFolder: "bad:name"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid settings = %d, want 400", w.Code)
	}
}

// failingService answers every call with a storage failure.
type failingService struct{ Service }

func (failingService) Hubs(context.Context) ([]models.HubInfo, error) {
	return nil, apperr.New(apperr.KindStorage, "list hubs", "", errors.New("disk /secret/path unreadable"))
}

func TestInternalErrorsAreHidden(t *testing.T) {
	router := NewRouter(failingService{}, nil, false, "", nil)

	w := do(t, router, http.MethodGet, "/hubs", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "secret") {
		t.Errorf("internal detail leaked: %s", w.Body.String())
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.New(apperr.KindNameFormat, "op", "x", nil), http.StatusBadRequest},
		{apperr.New(apperr.KindCollision, "op", "x", nil), http.StatusConflict},
		{apperr.ErrAlreadyExists, http.StatusConflict},
		{apperr.ErrConflict, http.StatusConflict},
		{apperr.New(apperr.KindNotFound, "op", "x", nil), http.StatusNotFound},
		{apperr.New(apperr.KindConfirmation, "op", "x", nil), http.StatusUnprocessableEntity},
		{apperr.New(apperr.KindAnomaly, "op", "x", nil), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusOf(tt.err); got != tt.want {
			t.Errorf("statusOf(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	router, _ := testEnv(t, nil, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/hubs", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed list = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	router, _ := testEnv(t, nil, "secret123")

	w := do(t, router, http.MethodGet, "/hubs", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	router, _ := testEnv(t, nil, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/hubs", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	router, _ := testEnv(t, nil, "")

	w := do(t, router, http.MethodGet, "/hubs", nil)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	router, _, _ := testEnvWithSSE(t, nil, true, "secret", blockingSSE)

	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router, _, _ := testEnvWithSSE(t, nil, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
