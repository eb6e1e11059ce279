// Package scheduler runs the pipeline stages on fixed intervals.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/constants"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/domain"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/gamedata"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/metrics"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/service"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

type Stage struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

type Scheduler struct {
	sched  gocron.Scheduler
	stages []Stage
	logger zerolog.Logger
}

func New(
	fetcher *service.FetcherService,
	downloader *service.DownloaderService,
	parser *service.ParserService,
	gameData *gamedata.Service,
	clock clockwork.Clock,
	logger zerolog.Logger,
) (*Scheduler, error) {
	stages := []Stage{
		{Name: "gamedata", Every: constants.GameDataInterval, Run: gameData.Sync},
		{Name: "fetch", Every: constants.FetchInterval, Run: func(ctx context.Context) error {
			_, err := fetcher.Run(ctx)
			return err
		}},
		{Name: "download", Every: constants.DownloadInterval, Run: func(ctx context.Context) error {
			_, err := downloader.DownloadPending(ctx, domain.PlatformW3Champions)
			return err
		}},
		{Name: "parse", Every: constants.ParseInterval, Run: func(ctx context.Context) error {
			_, err := parser.ParsePending(ctx)
			return err
		}},
	}
	return newScheduler(stages, clock, logger)
}

func newScheduler(stages []Stage, clock clockwork.Clock, logger zerolog.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	s := &Scheduler{sched: sched, stages: stages, logger: logger}

	for _, stage := range stages {
		_, err := sched.NewJob(
			gocron.DurationJob(stage.Every),
			gocron.NewTask(s.run, stage),
			gocron.WithName(stage.Name),
			gocron.WithStartAt(gocron.WithStartImmediately()),
			// a run still in progress pushes the next one back
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to schedule %s: %w", stage.Name, err)
		}
	}

	return s, nil
}

// run is the job body of one stage. The context is cancelled on shutdown.
func (s *Scheduler) run(ctx context.Context, stage Stage) {
	start := time.Now()
	log := s.logger.With().Str("stage", stage.Name).Logger()

	err := stage.Run(ctx)

	metrics.StageDuration.WithLabelValues(stage.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StageRuns.WithLabelValues(stage.Name, "error").Inc()
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("stage run failed")
		return
	}

	metrics.StageRuns.WithLabelValues(stage.Name, "ok").Inc()
	log.Debug().Dur("duration", time.Since(start)).Msg("stage run finished")
}

func (s *Scheduler) Start() {
	s.logger.Info().Int("jobs", len(s.stages)).Msg("scheduler starting")
	s.sched.Start()
}

// Stop waits for running stages to return.
func (s *Scheduler) Stop() error {
	s.logger.Info().Msg("stopping scheduler")
	return s.sched.Shutdown()
}
