// Package gamedata keeps the versioned game data of the wiki repository in the
// database and serves assembled mappings per data key.
package gamedata

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/api"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/cache"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/config"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/constants"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/domain"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/lookup"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/metrics"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var (
	ErrMappingNotFound = errors.New("game data mapping not found")
	ErrTreeTruncated   = errors.New("game data tree is truncated")
)

var skipKeys = map[string]bool{
	"artifacts":  true,
	"misc":       true,
	"changelogs": true,
}

type treeSource interface {
	GetTree(ctx context.Context, repo, branch string) (*api.GitTree, error)
	GetBlobContent(ctx context.Context, blobURL string) ([]byte, error)
}

type store interface {
	List(ctx context.Context, dataKey string) ([]repository.GameDataRow, error)
	Shas(ctx context.Context, dataKey string) (map[string]string, error)
	Upsert(ctx context.Context, dataKey, key string, data []byte, sha string) error
	Delete(ctx context.Context, dataKey string) error
	DataKeys(ctx context.Context) ([]string, error)
}

type remoteFile struct {
	sha string
	url string
}

type Service struct {
	source treeSource
	store  store
	cache  *cache.Cache
	repo   string
	logger zerolog.Logger

	// held exclusively while syncing so readers never see a half-written data key
	mu    sync.RWMutex
	group singleflight.Group
}

func NewService(client *api.GitHubClient, repo *repository.GameDataRepository, c *cache.Cache, cfg *config.Config, logger zerolog.Logger) *Service {
	return newService(client, repo, c, cfg.WikiDataRepo, logger)
}

func newService(source treeSource, st store, c *cache.Cache, repo string, logger zerolog.Logger) *Service {
	return &Service{
		source: source,
		store:  st,
		cache:  c,
		repo:   repo,
		logger: logger,
	}
}

// Sync pulls changed documents of every data key. A data key that fails to
// sync is removed so it is never served incomplete.
func (s *Service) Sync(ctx context.Context) error {
	if s.repo == "" {
		s.logger.Warn().Msg("game data repository is not configured, skipping sync")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info().Str("repo", s.repo).Msg("updating game data")

	tree, err := s.source.GetTree(ctx, s.repo, constants.GameDataBranch)
	if err != nil {
		return fmt.Errorf("failed to fetch game data tree: %w", err)
	}
	if tree.Truncated {
		return ErrTreeTruncated
	}

	groups := groupTree(tree.Tree)
	dataKeys := make([]string, 0, len(groups))
	for k := range groups {
		dataKeys = append(dataKeys, k)
	}
	sort.Strings(dataKeys)

	var (
		updated []string
		syncErr error
	)
	for _, dataKey := range dataKeys {
		n, err := s.syncDataKey(ctx, dataKey, groups[dataKey])
		if n > 0 {
			updated = append(updated, dataKey)
		}
		if err == nil {
			continue
		}

		if errors.Is(err, api.ErrRateLimited) || ctx.Err() != nil {
			s.logger.Warn().Err(err).Str("data_key", dataKey).Msg("game data sync interrupted")
			syncErr = fmt.Errorf("game data sync interrupted at %s: %w", dataKey, err)
			break
		}

		s.logger.Error().Err(err).Str("data_key", dataKey).Msg("failed to sync data key, deleting it")
		if err := s.store.Delete(ctx, dataKey); err != nil {
			s.logger.Error().Err(err).Str("data_key", dataKey).Msg("failed to delete data key")
		}
		updated = append(updated, dataKey)
	}

	if len(updated) > 0 {
		s.cache.Invalidate(lookup.TagGameData)
		s.logger.Info().Strs("data_keys", updated).Msg("game data updated")
	} else {
		s.logger.Info().Msg("game data is up to date")
	}

	return syncErr
}

func (s *Service) syncDataKey(ctx context.Context, dataKey string, files map[string]remoteFile) (int, error) {
	stored, err := s.store.Shas(ctx, dataKey)
	if err != nil {
		return 0, fmt.Errorf("failed to read stored shas: %w", err)
	}

	keys := make([]string, 0, len(files))
	for k := range files {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	updated := 0
	for _, key := range keys {
		f := files[key]
		if stored[key] == f.sha {
			continue
		}

		raw, err := s.source.GetBlobContent(ctx, f.url)
		if err != nil {
			// a data key interrupted on its first sync holds partial data
			if len(stored) == 0 && updated > 0 {
				if delErr := s.store.Delete(ctx, dataKey); delErr != nil {
					s.logger.Error().Err(delErr).Str("data_key", dataKey).Msg("failed to delete partial data key")
				}
			}
			return updated, fmt.Errorf("failed to fetch %s: %w", key, err)
		}

		data, err := normalize(key, raw)
		if err != nil {
			return updated, err
		}

		if err := s.store.Upsert(ctx, dataKey, key, data, f.sha); err != nil {
			return updated, fmt.Errorf("failed to store %s: %w", key, err)
		}

		metrics.GameDataUpdates.Inc()
		s.logger.Debug().Str("data_key", dataKey).Str("key", key).Msg("game data document updated")
		updated++
	}

	return updated, nil
}

// groupTree picks data/<type>/<version>/<key>.json files and groups them by
// "<type>_<version>".
func groupTree(files []api.GitTreeFile) map[string]map[string]remoteFile {
	groups := make(map[string]map[string]remoteFile)

	for _, f := range files {
		if !strings.HasPrefix(f.Path, constants.GameDataRoot+"/") || path.Ext(f.Path) != ".json" {
			continue
		}

		parts := strings.Split(strings.TrimSuffix(f.Path, ".json"), "/")
		if len(parts) != 4 {
			continue
		}
		typ, version, key := parts[1], parts[2], parts[3]
		if skipKeys[typ] || skipKeys[key] {
			continue
		}

		dataKey := typ + "_" + version
		if groups[dataKey] == nil {
			groups[dataKey] = make(map[string]remoteFile)
		}
		groups[dataKey][key] = remoteFile{sha: f.Sha, url: f.URL}
	}

	return groups
}

// GetMapping returns the assembled mapping of dataKey, or ErrMappingNotFound.
func (s *Service) GetMapping(ctx context.Context, dataKey string) (*domain.GameDataMapping, error) {
	return cache.Wrap(ctx, s.cache, "gamedata:"+dataKey, []string{lookup.TagGameData, dataKey}, func(ctx context.Context) (*domain.GameDataMapping, error) {
		v, err, _ := s.group.Do(dataKey, func() (any, error) {
			return s.load(ctx, dataKey)
		})
		if err != nil {
			return nil, err
		}
		return v.(*domain.GameDataMapping), nil
	})
}

func (s *Service) load(ctx context.Context, dataKey string) (*domain.GameDataMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.store.List(ctx, dataKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load game data %s: %w", dataKey, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMappingNotFound, dataKey)
	}

	docs := make(map[string][]byte, len(rows))
	for _, row := range rows {
		docs[row.Key] = row.Data
	}
	return assemble(docs)
}

func (s *Service) DataKeys(ctx context.Context) ([]string, error) {
	return s.store.DataKeys(ctx)
}
