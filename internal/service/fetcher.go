package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/api"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/cache"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/constants"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/domain"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/metrics"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// TagStatus is invalidated whenever pipeline counters change.
const TagStatus = "status"

type MatchLister interface {
	ListMatches(ctx context.Context, gameMode, offset, limit int) (*api.MatchesResponse, error)
}

var gameModes = map[string]int{
	"og": constants.GameModeOG,
	"oz": constants.GameModeOZ,
}

type FetcherService struct {
	lister    MatchLister
	matchRepo *repository.ExternalMatchRepository
	cache     *cache.Cache
	logger    zerolog.Logger
}

func NewFetcherService(lister MatchLister, matchRepo *repository.ExternalMatchRepository, c *cache.Cache, logger zerolog.Logger) *FetcherService {
	return &FetcherService{lister: lister, matchRepo: matchRepo, cache: c, logger: logger}
}

// Run fetches both game modes concurrently and stores the new matches.
func (s *FetcherService) Run(ctx context.Context) (int, error) {
	g, gCtx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	inserted := make(map[string]int, len(gameModes))

	for mode, gameMode := range gameModes {
		g.Go(func() error {
			matches := s.FetchNewMatches(gCtx, gameMode)
			n, err := s.matchRepo.InsertBatch(gCtx, matches)

			mu.Lock()
			inserted[mode] = n
			mu.Unlock()
			metrics.ExternalMatchesFetched.WithLabelValues(mode).Add(float64(n))

			if err != nil {
				s.logger.Error().Err(err).Str("mode", mode).Msg("failed to store external matches")
				return fmt.Errorf("failed to store %s matches: %w", mode, err)
			}
			return nil
		})
	}

	err := g.Wait()

	total := inserted["og"] + inserted["oz"]
	if total > 0 {
		s.cache.Invalidate(TagStatus)
	}

	s.logger.Info().Int("og", inserted["og"]).Int("oz", inserted["oz"]).Msg("external matches fetched")
	return total, err
}

// FetchNewMatches pages the listing newest first and stops at the first page
// that holds already known matches. Transport errors end paging early and the
// matches collected so far are returned.
func (s *FetcherService) FetchNewMatches(ctx context.Context, gameMode int) []domain.ExternalMatch {
	var out []domain.ExternalMatch
	count := math.MaxInt

	for offset := 0; offset <= count; offset += constants.DirectoryPageSize {
		page, err := s.lister.ListMatches(ctx, gameMode, offset, constants.DirectoryPageSize)
		if err != nil {
			s.logger.Error().Err(err).Int("game_mode", gameMode).Int("offset", offset).Msg("failed to fetch match listing")
			return out
		}
		count = page.Count

		ids := make([]string, 0, len(page.Matches))
		for _, m := range page.Matches {
			ids = append(ids, m.ID)
			out = append(out, toExternalMatch(m, gameMode))
		}

		known, err := s.matchRepo.CountKnown(ctx, ids)
		if err != nil {
			s.logger.Error().Err(err).Int("game_mode", gameMode).Msg("failed to check known matches")
			return out
		}

		s.logger.Debug().
			Int("game_mode", gameMode).
			Int("offset", offset).
			Int("count", count).
			Int("known", known).
			Msg("listing page fetched")

		if known > 0 || len(page.Matches) == 0 {
			break
		}
	}

	return out
}

func toExternalMatch(m api.W3CMatch, gameMode int) domain.ExternalMatch {
	match := domain.ExternalMatch{
		ID:       m.ID,
		GameMode: gameMode,
		Season:   strconv.Itoa(m.Season),
		EndTime:  m.EndTime.UTC(),
		Players:  make([]domain.ExternalPlayer, 0, 4),
	}
	for _, team := range m.Teams {
		for _, p := range team.Players {
			match.Players = append(match.Players, domain.ExternalPlayer{
				Name:     p.BattleTag,
				MMR:      p.OldMmr,
				Quantile: math.Floor(p.OldMmrQuantile * 100),
			})
		}
	}
	return match
}
