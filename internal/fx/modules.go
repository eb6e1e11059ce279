package fx

import (
	"database/sql"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/api"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/cache"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/config"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/database"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/db"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/gamedata"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/logger"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/ratelimit"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/replay"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/repository"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/scheduler"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/server"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/service"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/storage"

	"github.com/jonboulle/clockwork"
	"go.uber.org/fx"
)

func ProvideQueries(sqlDB *sql.DB) *db.Queries {
	return db.New(sqlDB)
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(clockwork.NewRealClock),
	fx.Provide(database.New),
	fx.Provide(ProvideQueries),
	fx.Provide(cache.NewFromConfig),
	// repos
	fx.Provide(repository.NewExternalMatchRepository),
	fx.Provide(repository.NewProcessRepository),
	fx.Provide(repository.NewMapVersionRepository),
	fx.Provide(repository.NewMatchRepository),
	fx.Provide(repository.NewGameDataRepository),
	// storage
	fx.Provide(storage.NewReplayStore),
	fx.Provide(storage.NewArchive),
	// api clients
	fx.Provide(
		fx.Annotate(
			api.NewW3CClient,
			fx.As(new(service.MatchLister)),
			fx.As(new(service.ReplaySource)),
		),
	),
	fx.Provide(api.NewGitHubClient),
	fx.Provide(ratelimit.NewReplayLimiter),
	fx.Provide(fx.Annotate(replay.NewExecDecoder, fx.As(new(replay.Decoder)))),
	// svc
	fx.Provide(
		fx.Annotate(
			gamedata.NewService,
			fx.As(fx.Self()),
			fx.As(new(service.MappingSource)),
			fx.As(new(service.DataKeyLister)),
		),
	),
	fx.Provide(service.NewFetcherService),
	fx.Provide(service.NewDownloaderService),
	fx.Provide(service.NewParserService),
	fx.Provide(fx.Annotate(service.NewAdminService, fx.As(new(server.Admin)))),
	// scheduling and http
	fx.Provide(scheduler.New),
	fx.Provide(server.NewStatusServer),
)
