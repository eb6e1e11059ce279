package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/domain"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/ratelimit"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/repository"

	"github.com/rs/zerolog"
)

type staticKeys []string

func (k staticKeys) DataKeys(ctx context.Context) ([]string, error) {
	return k, nil
}

func newAdmin(env *testEnv) *AdminService {
	limiter := ratelimit.New(env.clock,
		ratelimit.Reservoir{Name: "hour", Capacity: 5, Refill: 5, Interval: time.Hour},
		ratelimit.Reservoir{Name: "day", Capacity: 50, Refill: 50, Interval: 24 * time.Hour},
	)
	return NewAdminService(env.processRepo, env.matchRepo, env.mapRepo, env.externalRepo, env.store, limiter, staticKeys{testDataKey}, env.cache, zerolog.Nop())
}

func TestForceRedownload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addExternal(t, external("m1", 3*time.Hour))

	status := 500
	if _, err := env.processRepo.Attach(ctx, "m1", "m1.w3g", domain.PlatformW3Champions, &status); err != nil {
		t.Fatal(err)
	}

	admin := newAdmin(env)

	n, err := admin.ForceRedownload(ctx, domain.PlatformW3Champions, "7")
	if err != nil || n != 0 {
		t.Fatalf("Expected no records for another season, got %d, %v", n, err)
	}

	n, err = admin.ForceRedownload(ctx, domain.PlatformW3Champions, "8")
	if err != nil || n != 1 {
		t.Fatalf("Expected one record queued, got %d, %v", n, err)
	}
	if rec := record(t, env, "m1.w3g"); rec != nil {
		t.Errorf("Expected the failed record to be dropped, got %+v", rec)
	}

	pending, err := env.externalRepo.DownloadCandidates(ctx, testStart, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Errorf("Expected the match to be eligible for download, got %d", len(pending))
	}
}

func TestResetRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.readyMap(t)
	processID := env.downloaded(t, "m1", true)

	decoder := &fakeDecoder{replays: map[string]fakeReplay{"m1.w3g": twoPlayerGame()}}
	parser := newParser(env, decoder, fakeMappings{testDataKey: testMapping()})
	if n, err := parser.ParsePending(ctx); err != nil || n != 1 {
		t.Fatalf("Expected one parsed replay, got %d, %v", n, err)
	}

	admin := newAdmin(env)
	n, err := admin.ResetRecords(ctx, []string{"m1.w3g", "unknown.w3g"})
	if err != nil || n != 1 {
		t.Fatalf("Expected one record reset, got %d, %v", n, err)
	}

	if _, _, err := env.matchRepo.GetByProcess(ctx, processID); !errors.Is(err, repository.ErrMatchNotFound) {
		t.Errorf("Expected the parsed match to be deleted, got %v", err)
	}
	rec := record(t, env, "m1.w3g")
	if rec.Processed || rec.MappingError != nil {
		t.Errorf("Expected a record back in the parse queue, got %+v", rec)
	}
}

func TestRemoveFiles(t *testing.T) {
	env := newTestEnv(t)
	env.downloaded(t, "m1", true)

	n, err := newAdmin(env).RemoveFiles(context.Background(), []string{"m1.w3g"})
	if err != nil || n != 1 {
		t.Fatalf("Expected one record removed, got %d, %v", n, err)
	}
	if env.fileExists(t, "m1.w3g") || record(t, env, "m1.w3g") != nil {
		t.Error("Expected both file and record to be gone")
	}
}

func TestUpdateMapVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := newAdmin(env)

	version, err := env.mapRepo.Ensure(ctx, "sc.w3x")
	if err != nil {
		t.Fatal(err)
	}

	updated, err := admin.UpdateMapVersion(ctx, &domain.MapVersion{ID: version.ID, MapType: "oz", DataKey: "oz_2.0", MapVersion: "2.0"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if updated.MapName != "sc.w3x" || updated.MapType != "oz" || updated.DataKey != "oz_2.0" {
		t.Errorf("unexpected map version %+v", updated)
	}

	versions, err := admin.ListMapVersions(ctx)
	if err != nil || len(versions) != 1 {
		t.Fatalf("Expected one map version, got %v, %v", versions, err)
	}

	_, err = admin.UpdateMapVersion(ctx, &domain.MapVersion{ID: version.ID + 100})
	if !errors.Is(err, repository.ErrMapVersionNotFound) {
		t.Errorf("Expected ErrMapVersionNotFound, got %v", err)
	}
}

func TestSummary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := newAdmin(env)
	env.downloaded(t, "m1", true)
	env.addExternal(t, external("m2", time.Hour))
	before := env.cache.Stats()

	summary, err := admin.Summary(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if summary.Cache.Misses != before.Misses+1 || summary.Cache.Keys < 1 {
		t.Errorf("Expected one cache miss and a stored key, got %+v", summary.Cache)
	}
	if summary.External.Found != 2 || summary.External.Downloaded != 1 {
		t.Errorf("unexpected external counts %+v", summary.External)
	}
	if summary.Processes.Total != 1 || summary.Processes.Pending != 1 {
		t.Errorf("unexpected processing counts %+v", summary.Processes)
	}
	if summary.Remaining != 5 || summary.Quota["day"] != 50 {
		t.Errorf("unexpected quota %d %v", summary.Remaining, summary.Quota)
	}
	if len(summary.DataKeys) != 1 || summary.DataKeys[0] != testDataKey {
		t.Errorf("unexpected data keys %v", summary.DataKeys)
	}

	// counts are cached until the status tag is invalidated
	env.addExternal(t, external("m3", time.Hour))
	if summary, _ = admin.Summary(ctx); summary.External.Found != 2 {
		t.Errorf("Expected cached counts, got %d found", summary.External.Found)
	}
	if summary.Cache.Hits != before.Hits+1 {
		t.Errorf("Expected one cache hit, got %+v", summary.Cache)
	}
	env.cache.Invalidate(TagStatus)
	if summary, _ = admin.Summary(ctx); summary.External.Found != 3 {
		t.Errorf("Expected fresh counts after invalidation, got %d found", summary.External.Found)
	}
}
