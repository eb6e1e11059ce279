package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/api"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/cache"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/constants"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/domain"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/metrics"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/ratelimit"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/repository"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/storage"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

type ReplaySource interface {
	DownloadReplay(ctx context.Context, matchID string) ([]byte, error)
}

type DownloadReport struct {
	Succeeded      int  `json:"succeeded"`
	Failed         int  `json:"failed"`  // recorded with a download error
	Skipped        int  `json:"skipped"` // file already on disk
	QuotaExhausted bool `json:"quotaExhausted"`
	Remaining      int  `json:"remaining"`
}

type DownloaderService struct {
	source      ReplaySource
	limiter     *ratelimit.Limiter
	matchRepo   *repository.ExternalMatchRepository
	processRepo *repository.ProcessRepository
	store       *storage.ReplayStore
	cache       *cache.Cache
	clock       clockwork.Clock
	logger      zerolog.Logger
}

func NewDownloaderService(
	source ReplaySource,
	limiter *ratelimit.Limiter,
	matchRepo *repository.ExternalMatchRepository,
	processRepo *repository.ProcessRepository,
	store *storage.ReplayStore,
	c *cache.Cache,
	clock clockwork.Clock,
	logger zerolog.Logger,
) *DownloaderService {
	return &DownloaderService{
		source:      source,
		limiter:     limiter,
		matchRepo:   matchRepo,
		processRepo: processRepo,
		store:       store,
		cache:       c,
		clock:       clock,
		logger:      logger,
	}
}

var errTransient = errors.New("transient download failure")

// DownloadPending downloads replays of listed matches until the quota runs out
// or nothing is eligible. Only ErrUnauthorized and storage failures are returned.
func (s *DownloaderService) DownloadPending(ctx context.Context, platform domain.Platform) (*DownloadReport, error) {
	report := &DownloadReport{}
	defer func() {
		report.Remaining = s.limiter.Remaining()
		metrics.SetQuota(s.limiter.Snapshot())
		if report.Succeeded+report.Failed+report.Skipped > 0 {
			s.cache.Invalidate(TagStatus)
		}
		s.logger.Info().
			Int("succeeded", report.Succeeded).
			Int("failed", report.Failed).
			Int("skipped", report.Skipped).
			Bool("quota_exhausted", report.QuotaExhausted).
			Int("remaining", report.Remaining).
			Msg("replay download run finished")
	}()

	for {
		quota := s.limiter.Remaining()
		if quota <= 0 {
			report.QuotaExhausted = true
			return report, nil
		}

		endedBefore := s.clock.Now().Add(-constants.ReplayAvailabilityDelay)
		batch, err := s.matchRepo.DownloadCandidates(ctx, endedBefore, quota)
		if err != nil {
			return report, fmt.Errorf("failed to list download candidates: %w", err)
		}
		if len(batch) == 0 {
			return report, nil
		}

		s.logger.Debug().Int("batch", len(batch)).Int("quota", quota).Msg("downloading replays")

		retryLater := false
		for _, m := range batch {
			err := s.download(ctx, platform, m, report)
			switch {
			case err == nil:
			case errors.Is(err, api.ErrUnauthorized):
				s.logger.Error().Err(err).Str("match_id", m.ID).Msg("replay API rejected credentials, stopping run")
				return report, err
			case errors.Is(err, api.ErrRateLimited):
				s.logger.Warn().Str("match_id", m.ID).Msg("replay quota exceeded, stopping run")
				report.QuotaExhausted = true
				return report, nil
			case errors.Is(err, errTransient):
				if ctx.Err() != nil {
					return report, ctx.Err()
				}
				retryLater = true
			default:
				return report, err
			}
		}

		// transient failures stay eligible and would be picked again right away
		if retryLater {
			return report, nil
		}
	}
}

func (s *DownloaderService) download(ctx context.Context, platform domain.Platform, m domain.ExternalMatch, report *DownloadReport) error {
	name := storage.FileName(m.ID)
	log := s.logger.With().Str("match_id", m.ID).Str("file", name).Logger()

	exists, err := s.store.Exists(name)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", name, err)
	}
	if exists {
		if _, err := s.processRepo.Attach(ctx, m.ID, name, platform, nil); err != nil {
			return fmt.Errorf("failed to record %s: %w", name, err)
		}
		metrics.ReplayDownloads.WithLabelValues("cached").Inc()
		report.Skipped++
		return nil
	}

	var data []byte
	err = s.limiter.Schedule(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, constants.ReplayDownloadTimeout)
		defer cancel()

		var err error
		data, err = s.source.DownloadReplay(ctx, m.ID)
		return err
	})

	switch status := api.StatusCode(err); {
	case err == nil:
		if err := s.store.Write(name, data); err != nil {
			return fmt.Errorf("failed to save %s: %w", name, err)
		}
		if _, err := s.processRepo.Attach(ctx, m.ID, name, platform, nil); err != nil {
			return fmt.Errorf("failed to record %s: %w", name, err)
		}
		metrics.ReplayDownloads.WithLabelValues("ok").Inc()
		log.Debug().Int("bytes", len(data)).Msg("replay downloaded")
		report.Succeeded++
		return nil

	case errors.Is(err, api.ErrUnauthorized):
		metrics.ReplayDownloads.WithLabelValues("unauthorized").Inc()
		return err

	case errors.Is(err, api.ErrRateLimited):
		metrics.ReplayDownloads.WithLabelValues("rate_limited").Inc()
		return err

	case status != 0:
		if _, err := s.processRepo.Attach(ctx, m.ID, name, platform, &status); err != nil {
			return fmt.Errorf("failed to record download error of %s: %w", name, err)
		}
		metrics.ReplayDownloads.WithLabelValues("http_error").Inc()
		log.Error().Int("status", status).Msg("replay download failed")
		report.Failed++
		return nil

	default:
		metrics.ReplayDownloads.WithLabelValues("transport").Inc()
		log.Warn().Err(err).Msg("replay download interrupted, will retry")
		return fmt.Errorf("%w: %v", errTransient, err)
	}
}
