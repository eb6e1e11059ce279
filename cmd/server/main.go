package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/cache"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/config"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/constants"
	fxmodules "github.com/BogdanTretyakov/sc-statistic-backend/internal/fx"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/scheduler"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/server"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runServer),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	statusServer *server.StatusServer,
	sched *scheduler.Scheduler,
	c *cache.Cache,
	cfg *config.Config,
	db *sql.DB,
	logger zerolog.Logger,
) {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: statusServer.Handler(),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			sched.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := sched.Stop(); err != nil {
				logger.Warn().Err(err).Msg("scheduler did not stop cleanly")
			}

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
				return err
			}

			c.Close()
			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}

			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
