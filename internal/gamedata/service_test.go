package gamedata

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/api"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/cache"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/config"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/database"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/db"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/repository"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	racesDoc     = `{"data":{"humans":[{"id":"R001"}],"orcs":[{"id":"R002"}]}}`
	ultimatesDoc = `{"data":{"spells":{"U001":[{"id":"U002"},{"id":"U003"}]}}}`
	humanDoc     = `{"data":{
		"id":"R001","key":"human",
		"auras":[{"id":"A001"}],"magic":[{"id":"Rm01"}],
		"t1spell":{"id":"S001"},"t2spell":{"id":"S002"},
		"baseUpgrades":{"melee":{"id":"Rb01"},"armor":{"id":"Rb02"},"range":{"id":"Rb03"},"wall":{"id":"Rb04"}},
		"bonuses":[{"id":"B001","units":[{"id":"hi01"}],"spells":[{"id":"hs01"}]},{"id":"B002"}],
		"towerUpgrades":[{"id":"Rt01"}],
		"units":{"melee":{"id":"hu01"},"range":{"id":"hu02"},"mage":{"id":"hu03"},"siege":{"id":"hu04"},"air":{"id":"hu05"},"catapult":{"id":"hu06"}},
		"heroes":[{"id":"Hh01"}],
		"bonusPickerId":"hpck",
		"buildings":{"tower":{"id":"ht01"},"fort":[{"id":"hf01"},{"id":"hf02"},{"id":"hf03"},{"id":"hf04"}],"barrack":[{"id":"hb01"},{"id":"hb02"}]}
	}}`
)

type fakeRepo struct {
	mu     sync.Mutex
	files  map[string]fakeFile // path -> file
	status map[string]int      // sha -> forced status
	blobs  int
	srv    *httptest.Server
}

type fakeFile struct {
	sha     string
	content string
}

func newFakeRepo(t *testing.T) *fakeRepo {
	t.Helper()
	r := &fakeRepo{
		files: map[string]fakeFile{
			"data/og/1.0/races.json":     {sha: "s-races", content: racesDoc},
			"data/og/1.0/ultimates.json": {sha: "s-ult", content: ultimatesDoc},
			"data/og/1.0/human.json":     {sha: "s-human", content: humanDoc},
			"data/og/1.0/misc.json":      {sha: "s-misc", content: `{"data":{}}`},
			"data/artifacts/1.0/a.json":  {sha: "s-art", content: `{"data":{}}`},
			"README.md":                  {sha: "s-readme", content: "hi"},
		},
		status: map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/owner/wiki/git/trees/master", func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		defer r.mu.Unlock()
		tree := api.GitTree{}
		for p, f := range r.files {
			tree.Tree = append(tree.Tree, api.GitTreeFile{Path: p, Type: "blob", Sha: f.sha, URL: r.srv.URL + "/blobs/" + f.sha})
		}
		_ = json.NewEncoder(w).Encode(tree)
	})
	mux.HandleFunc("/blobs/", func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.blobs++
		sha := strings.TrimPrefix(req.URL.Path, "/blobs/")
		if code, ok := r.status[sha]; ok {
			w.WriteHeader(code)
			return
		}
		for _, f := range r.files {
			if f.sha == sha {
				encoded := base64.StdEncoding.EncodeToString([]byte(f.content))
				// wrapped like the real API
				if len(encoded) > 60 {
					encoded = encoded[:60] + "\n" + encoded[60:]
				}
				_ = json.NewEncoder(w).Encode(api.GitBlob{Content: encoded, Encoding: "base64"})
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	})

	r.srv = httptest.NewServer(mux)
	t.Cleanup(r.srv.Close)
	return r
}

func (r *fakeRepo) set(path string, f fakeFile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[path] = f
}

func (r *fakeRepo) fail(sha string, code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[sha] = code
}

func (r *fakeRepo) blobRequests() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blobs
}

func newTestService(t *testing.T, remote *fakeRepo) *Service {
	t.Helper()
	sqlDB, err := database.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	c := cache.New(time.Hour, clockwork.NewFakeClock(), zerolog.Nop())
	t.Cleanup(c.Close)

	client := api.NewGitHubClient(&config.Config{GitHubAPIURL: remote.srv.URL, UserAgent: "test"})
	repo := repository.NewGameDataRepository(sqlDB, db.New(sqlDB), zerolog.Nop())
	return NewService(client, repo, c, &config.Config{WikiDataRepo: "owner/wiki"}, zerolog.Nop())
}

func TestSyncStoresAndAssemblesMapping(t *testing.T) {
	remote := newFakeRepo(t)
	svc := newTestService(t, remote)
	ctx := context.Background()

	if err := svc.Sync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if n := remote.blobRequests(); n != 3 {
		t.Errorf("Expected 3 blob requests, got %d", n)
	}

	m, err := svc.GetMapping(ctx, "og_1.0")
	if err != nil {
		t.Fatalf("GetMapping failed: %v", err)
	}

	if diff := cmp.Diff([]string{"R001", "R002"}, m.Races); diff != "" {
		t.Errorf("races mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string][]string{"U001": {"U002", "U003"}}, m.Ultimates); diff != "" {
		t.Errorf("ultimates mismatch (-want +got):\n%s", diff)
	}

	human, ok := m.RaceData["R001"]
	if !ok {
		t.Fatal("Expected race data of R001")
	}
	if diff := cmp.Diff([]string{"hf02", "hf03", "hf04"}, human.Buildings.Fort); diff != "" {
		t.Errorf("fort mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"hi01": "B001", "hs01": "B001"}, human.BonusByItemID); diff != "" {
		t.Errorf("bonus by item mismatch (-want +got):\n%s", diff)
	}
	if human.BonusPicker != "hpck" || human.Units.Catapult != "hu06" || human.T2Spell != "S002" {
		t.Errorf("unexpected race fields: %+v", human)
	}

	keys, err := svc.DataKeys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"og_1.0"}, keys); diff != "" {
		t.Errorf("data keys mismatch (-want +got):\n%s", diff)
	}
}

func TestSyncFetchesOnlyChangedDocuments(t *testing.T) {
	remote := newFakeRepo(t)
	svc := newTestService(t, remote)
	ctx := context.Background()

	if err := svc.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetMapping(ctx, "og_1.0"); err != nil {
		t.Fatal(err)
	}

	if err := svc.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	if n := remote.blobRequests(); n != 3 {
		t.Errorf("Expected unchanged documents to be skipped, got %d blob requests", n)
	}

	remote.set("data/og/1.0/races.json", fakeFile{sha: "s-races-2", content: `{"data":{"all":[{"id":"R003"}]}}`})
	if err := svc.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	if n := remote.blobRequests(); n != 4 {
		t.Errorf("Expected one more blob request, got %d", n)
	}

	m, err := svc.GetMapping(ctx, "og_1.0")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"R003"}, m.Races); diff != "" {
		t.Errorf("Expected cached mapping to be invalidated (-want +got):\n%s", diff)
	}
}

func TestSyncDeletesBrokenDataKey(t *testing.T) {
	remote := newFakeRepo(t)
	remote.set("data/oz/2.0/races.json", fakeFile{sha: "s-oz-races", content: racesDoc})
	remote.set("data/oz/2.0/elf.json", fakeFile{sha: "s-oz-elf", content: `{"data":{"key":"elf"}}`})
	svc := newTestService(t, remote)
	ctx := context.Background()

	if err := svc.Sync(ctx); err != nil {
		t.Fatalf("Expected a broken data key not to fail the sync, got %v", err)
	}

	if _, err := svc.GetMapping(ctx, "oz_2.0"); !errors.Is(err, ErrMappingNotFound) {
		t.Errorf("Expected ErrMappingNotFound for the broken key, got %v", err)
	}
	if _, err := svc.GetMapping(ctx, "og_1.0"); err != nil {
		t.Errorf("Expected the healthy key to be served, got %v", err)
	}
}

func TestSyncStopsOnRateLimit(t *testing.T) {
	remote := newFakeRepo(t)
	remote.fail("s-human", http.StatusTooManyRequests)
	svc := newTestService(t, remote)

	err := svc.Sync(context.Background())
	if !errors.Is(err, api.ErrRateLimited) {
		t.Fatalf("Expected ErrRateLimited, got %v", err)
	}
	// the partial first sync of the key is not kept
	if _, err := svc.GetMapping(context.Background(), "og_1.0"); !errors.Is(err, ErrMappingNotFound) {
		t.Errorf("Expected ErrMappingNotFound, got %v", err)
	}
}

func TestGetMappingUnknownKey(t *testing.T) {
	svc := newTestService(t, newFakeRepo(t))
	if _, err := svc.GetMapping(context.Background(), "nope_1"); !errors.Is(err, ErrMappingNotFound) {
		t.Errorf("Expected ErrMappingNotFound, got %v", err)
	}
}

func TestSyncWithoutRepository(t *testing.T) {
	remote := newFakeRepo(t)
	svc := newTestService(t, remote)
	svc.repo = ""

	if err := svc.Sync(context.Background()); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if n := remote.blobRequests(); n != 0 {
		t.Errorf("Expected no requests, got %d", n)
	}
}

func TestGroupTree(t *testing.T) {
	files := []api.GitTreeFile{
		{Path: "data/og/1.0/races.json", Sha: "a"},
		{Path: "data/og/1.0/misc.json", Sha: "b"},
		{Path: "data/changelogs/1.0/x.json", Sha: "c"},
		{Path: "data/og/races.json", Sha: "d"},
		{Path: "docs/og/1.0/races.json", Sha: "e"},
		{Path: "data/oz/2.1/orc.json", Sha: "f"},
	}

	got := groupTree(files)
	want := map[string]map[string]remoteFile{
		"og_1.0": {"races": {sha: "a"}},
		"oz_2.1": {"orc": {sha: "f"}},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(remoteFile{})); diff != "" {
		t.Errorf("groupTree mismatch (-want +got):\n%s", diff)
	}
}
