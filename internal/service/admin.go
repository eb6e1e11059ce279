package service

import (
	"context"
	"fmt"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/cache"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/domain"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/ratelimit"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/repository"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/storage"

	"github.com/rs/zerolog"
)

type DataKeyLister interface {
	DataKeys(ctx context.Context) ([]string, error)
}

type Summary struct {
	External  domain.ExternalMatchStatus `json:"external"`
	Processes domain.ProcessStatus       `json:"processes"`
	Matches   int64                      `json:"matches"`
	Quota     map[string]int             `json:"quota"`
	Remaining int                        `json:"remaining"`
	DataKeys  []string                   `json:"dataKeys"`
	Cache     cache.Stats                `json:"cache"`
}

// counts is the cached part of Summary.
type counts struct {
	external  *domain.ExternalMatchStatus
	processes *domain.ProcessStatus
	matches   int64
}

type AdminService struct {
	processRepo  *repository.ProcessRepository
	matchRepo    *repository.MatchRepository
	mapRepo      *repository.MapVersionRepository
	externalRepo *repository.ExternalMatchRepository
	store        *storage.ReplayStore
	limiter      *ratelimit.Limiter
	dataKeys     DataKeyLister
	cache        *cache.Cache
	logger       zerolog.Logger
}

func NewAdminService(
	processRepo *repository.ProcessRepository,
	matchRepo *repository.MatchRepository,
	mapRepo *repository.MapVersionRepository,
	externalRepo *repository.ExternalMatchRepository,
	store *storage.ReplayStore,
	limiter *ratelimit.Limiter,
	dataKeys DataKeyLister,
	c *cache.Cache,
	logger zerolog.Logger,
) *AdminService {
	return &AdminService{
		processRepo:  processRepo,
		matchRepo:    matchRepo,
		mapRepo:      mapRepo,
		externalRepo: externalRepo,
		store:        store,
		limiter:      limiter,
		dataKeys:     dataKeys,
		cache:        c,
		logger:       logger,
	}
}

// ForceRedownload drops the records of failed downloads of a season so the
// downloader picks their matches up again.
func (s *AdminService) ForceRedownload(ctx context.Context, platform domain.Platform, season string) (int, error) {
	ids, err := s.processRepo.FailedDownloads(ctx, platform, season)
	if err != nil {
		return 0, fmt.Errorf("failed to list failed downloads: %w", err)
	}
	if err := s.processRepo.Remove(ctx, ids...); err != nil {
		return 0, err
	}

	if len(ids) > 0 {
		s.cache.Invalidate(TagStatus)
	}
	s.logger.Info().
		Str("platform", string(platform)).
		Str("season", season).
		Int("records", len(ids)).
		Msg("failed downloads queued for redownload")
	return len(ids), nil
}

// ResetRecords drops parsed data of the given files and queues them for parsing.
func (s *AdminService) ResetRecords(ctx context.Context, filePaths []string) (int, error) {
	records, err := s.processRepo.ByFilePaths(ctx, filePaths)
	if err != nil {
		return 0, fmt.Errorf("failed to look up records: %w", err)
	}

	ids := make([]string, len(records))
	tags := []string{TagStatus}
	for i, rec := range records {
		ids[i] = rec.ID
		if rec.MapID != nil {
			tags = append(tags, MapVersionTag(*rec.MapID))
		}
	}
	if err := s.matchRepo.Reset(ctx, ids); err != nil {
		return 0, err
	}

	if len(ids) > 0 {
		s.cache.Invalidate(tags...)
	}
	s.logger.Info().Int("requested", len(filePaths)).Int("reset", len(ids)).Msg("records reset")
	return len(ids), nil
}

// RemoveFiles deletes local replays together with their records.
func (s *AdminService) RemoveFiles(ctx context.Context, names []string) (int, error) {
	records, err := s.processRepo.ByFilePaths(ctx, names)
	if err != nil {
		return 0, fmt.Errorf("failed to look up records: %w", err)
	}

	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	if err := s.processRepo.Remove(ctx, ids...); err != nil {
		return 0, err
	}

	for _, name := range names {
		if err := s.store.Remove(name); err != nil {
			s.logger.Warn().Err(err).Str("file", name).Msg("failed to remove replay file")
		}
	}

	s.cache.Invalidate(TagStatus)
	return len(ids), nil
}

func (s *AdminService) ListMapVersions(ctx context.Context) ([]domain.MapVersion, error) {
	return s.mapRepo.List(ctx)
}

// UpdateMapVersion stores operator edits of a map version. Setting a data key
// and map type makes its NO_MAPPING records eligible for parsing again.
func (s *AdminService) UpdateMapVersion(ctx context.Context, version *domain.MapVersion) (*domain.MapVersion, error) {
	if err := s.mapRepo.Update(ctx, version); err != nil {
		return nil, err
	}
	s.cache.Invalidate(MapVersionTag(version.ID), TagStatus)

	updated, err := s.mapRepo.Get(ctx, version.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Int64("map_id", updated.ID).
		Str("map_type", updated.MapType).
		Str("data_key", updated.DataKey).
		Bool("ignore", updated.Ignore).
		Msg("map version updated")
	return updated, nil
}

func (s *AdminService) Summary(ctx context.Context) (*Summary, error) {
	c, err := cache.Wrap(ctx, s.cache, "status:counts", []string{TagStatus}, s.loadCounts)
	if err != nil {
		return nil, err
	}

	keys, err := s.dataKeys.DataKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list data keys: %w", err)
	}

	return &Summary{
		External:  *c.external,
		Processes: *c.processes,
		Matches:   c.matches,
		Quota:     s.limiter.Snapshot(),
		Remaining: s.limiter.Remaining(),
		DataKeys:  keys,
		Cache:     s.cache.Stats(),
	}, nil
}

func (s *AdminService) loadCounts(ctx context.Context) (*counts, error) {
	external, err := s.externalRepo.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load external match status: %w", err)
	}
	processes, err := s.processRepo.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load processing status: %w", err)
	}
	matches, err := s.matchRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count matches: %w", err)
	}
	return &counts{external: external, processes: processes, matches: matches}, nil
}
