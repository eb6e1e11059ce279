package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/cache"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/config"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/domain"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/repository"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/service"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

type fakeAdmin struct {
	platform domain.Platform
	season   string
	files    []string
	updated  *domain.MapVersion
}

func (f *fakeAdmin) Summary(ctx context.Context) (*service.Summary, error) {
	return &service.Summary{
		External:  domain.ExternalMatchStatus{Found: 3, Downloaded: 2},
		Remaining: 42,
		DataKeys:  []string{"og_1.0"},
		Cache:     cache.Stats{Hits: 7, Misses: 2, Keys: 1},
	}, nil
}

func (f *fakeAdmin) ForceRedownload(ctx context.Context, platform domain.Platform, season string) (int, error) {
	f.platform, f.season = platform, season
	return 4, nil
}

func (f *fakeAdmin) ResetRecords(ctx context.Context, filePaths []string) (int, error) {
	f.files = filePaths
	return len(filePaths), nil
}

func (f *fakeAdmin) RemoveFiles(ctx context.Context, names []string) (int, error) {
	f.files = names
	return len(names), nil
}

func (f *fakeAdmin) ListMapVersions(ctx context.Context) ([]domain.MapVersion, error) {
	return []domain.MapVersion{{ID: 1, MapName: "sc.w3x"}}, nil
}

func (f *fakeAdmin) UpdateMapVersion(ctx context.Context, version *domain.MapVersion) (*domain.MapVersion, error) {
	if version.ID != 1 {
		return nil, repository.ErrMapVersionNotFound
	}
	f.updated = version
	return version, nil
}

func newTestServer(t *testing.T, token string) (*httptest.Server, *fakeAdmin) {
	t.Helper()
	admin := &fakeAdmin{}
	s := NewStatusServer(admin, &config.Config{AdminToken: token}, zerolog.Nop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, admin
}

func do(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("X-Admin-Token", token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStatus(t *testing.T) {
	srv, _ := newTestServer(t, "secret")

	resp := do(t, http.MethodGet, srv.URL+"/status", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("Expected a request id header")
	}

	var got service.Summary
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.External.Found != 3 || got.Remaining != 42 {
		t.Errorf("unexpected summary %+v", got)
	}
	if diff := cmp.Diff(cache.Stats{Hits: 7, Misses: 2, Keys: 1}, got.Cache); diff != "" {
		t.Errorf("cache stats mismatch (-want +got):\n%s", diff)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, "")

	for _, path := range []string{"/healthz", "/metrics"} {
		if resp := do(t, http.MethodGet, srv.URL+path, "", ""); resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestAdminRequiresToken(t *testing.T) {
	srv, admin := newTestServer(t, "secret")

	resp := do(t, http.MethodPost, srv.URL+"/admin/redownload", "wrong", `{"season":"8"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", resp.StatusCode)
	}
	if admin.season != "" {
		t.Error("Expected the admin operation not to run")
	}

	resp = do(t, http.MethodPost, srv.URL+"/admin/redownload", "secret", `{"season":"8"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var got countResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Count != 4 || admin.season != "8" || admin.platform != domain.PlatformW3Champions {
		t.Errorf("unexpected redownload %+v season=%q platform=%q", got, admin.season, admin.platform)
	}
}

func TestAdminValidation(t *testing.T) {
	srv, _ := newTestServer(t, "")

	tests := []struct {
		path string
		body string
	}{
		{"/admin/redownload", `{}`},
		{"/admin/redownload", `not json`},
		{"/admin/reset", `{"files":[]}`},
		{"/admin/files/remove", `{}`},
		{"/admin/map-versions/abc", `{}`},
	}
	for _, tt := range tests {
		if resp := do(t, http.MethodPost, srv.URL+tt.path, "", tt.body); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("POST %s %s: expected 400, got %d", tt.path, tt.body, resp.StatusCode)
		}
	}
}

func TestResetRecords(t *testing.T) {
	srv, admin := newTestServer(t, "")

	resp := do(t, http.MethodPost, srv.URL+"/admin/reset", "", `{"files":["a.w3g","b.w3g"]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if diff := cmp.Diff([]string{"a.w3g", "b.w3g"}, admin.files); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestMapVersions(t *testing.T) {
	srv, admin := newTestServer(t, "")

	resp := do(t, http.MethodGet, srv.URL+"/admin/map-versions", "", "")
	var versions []domain.MapVersion
	if err := json.NewDecoder(resp.Body).Decode(&versions); err != nil {
		t.Fatal(err)
	}
	if len(versions) != 1 || versions[0].MapName != "sc.w3x" {
		t.Errorf("unexpected versions %+v", versions)
	}

	resp = do(t, http.MethodPost, srv.URL+"/admin/map-versions/1", "", `{"mapType":"og","dataKey":"og_1.0"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	want := &domain.MapVersion{ID: 1, MapType: "og", DataKey: "og_1.0"}
	if diff := cmp.Diff(want, admin.updated); diff != "" {
		t.Errorf("update mismatch (-want +got):\n%s", diff)
	}

	resp = do(t, http.MethodPost, srv.URL+"/admin/map-versions/9", "", `{"mapType":"og"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}
