package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/db"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

var ErrMatchNotFound = errors.New("match not found")

type MatchRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
}

func NewMatchRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *MatchRepository {
	return &MatchRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

// Save replaces whatever match was stored for match.MapProcessID with the given
// one and marks the processing record parsed, all in one transaction.
func (r *MatchRepository) Save(ctx context.Context, match *domain.Match, players []domain.Player) error {
	if match.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
		match.ID = id
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)

	if err := qtx.DeleteMatchByProcess(ctx, match.MapProcessID); err != nil {
		return fmt.Errorf("failed to delete previous match of %s: %w", match.MapProcessID, err)
	}

	err = qtx.CreateMatch(ctx, db.CreateMatchParams{
		ID:           match.ID,
		MapProcessID: match.MapProcessID,
		MapID:        match.MapID,
		Platform:     string(match.Platform),
		Season:       match.Season,
		Duration:     match.Duration,
		EndAt:        match.EndAt.UTC(),
		AvgMmr:       match.AvgMMR,
		AvgQuantile:  match.AvgQuantile,
		HasLeavers:   match.HasLeavers,
	})
	if err != nil {
		return fmt.Errorf("failed to create match %s: %w", match.ID, err)
	}

	for i := range players {
		player := &players[i]
		player.MatchID = match.ID
		if player.ID == "" {
			if player.ID, err = gonanoid.New(); err != nil {
				return fmt.Errorf("failed to generate nanoid: %w", err)
			}
		}

		platformPlayerID, err := qtx.UpsertPlatformPlayer(ctx, db.UpsertPlatformPlayerParams{
			Name:       player.Name,
			Platform:   string(match.Platform),
			LastMmr:    player.MMR,
			LastSeenAt: match.EndAt.UTC(),
		})
		if err != nil {
			return fmt.Errorf("failed to upsert platform player %s: %w", player.Name, err)
		}

		err = qtx.CreatePlayer(ctx, db.CreatePlayerParams{
			ID:               player.ID,
			MatchID:          match.ID,
			PlatformPlayerID: platformPlayerID,
			RaceID:           player.RaceID,
			BonusID:          player.BonusID,
			AuraID:           player.AuraID,
			UltimateID:       player.UltimateID,
			Place:            int64(player.Place),
			TimeAlive:        player.TimeAlive,
			Mmr:              player.MMR,
			Quantile:         player.Quantile,
		})
		if err != nil {
			return fmt.Errorf("failed to create player %s: %w", player.Name, err)
		}

		for _, event := range player.Events {
			err := qtx.CreatePlayerEvent(ctx, db.CreatePlayerEventParams{
				PlayerID:  player.ID,
				EventType: string(event.EventType),
				EventID:   event.EventID,
				Time:      event.Time,
			})
			if err != nil {
				return fmt.Errorf("failed to create event %s/%s: %w", event.EventType, event.EventID, err)
			}
		}
	}

	if err := qtx.MarkMapProcessParsed(ctx, match.MapProcessID); err != nil {
		return fmt.Errorf("failed to mark %s parsed: %w", match.MapProcessID, err)
	}

	return tx.Commit()
}

// GetByProcess loads the match parsed from a processing record with its players and events.
func (r *MatchRepository) GetByProcess(ctx context.Context, processID string) (*domain.Match, []domain.Player, error) {
	row, err := r.queries.GetMatchByProcess(ctx, processID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	match := &domain.Match{
		ID:           row.ID,
		MapProcessID: row.MapProcessID,
		MapID:        row.MapID,
		Platform:     domain.Platform(row.Platform),
		Season:       row.Season,
		Duration:     row.Duration,
		EndAt:        row.EndAt,
		AvgMMR:       row.AvgMmr,
		AvgQuantile:  row.AvgQuantile,
		HasLeavers:   row.HasLeavers,
	}

	rows, err := r.queries.ListPlayersByMatch(ctx, match.ID)
	if err != nil {
		return nil, nil, err
	}

	players := make([]domain.Player, len(rows))
	for i, p := range rows {
		events, err := r.queries.ListPlayerEvents(ctx, p.ID)
		if err != nil {
			return nil, nil, err
		}

		players[i] = domain.Player{
			ID:         p.ID,
			MatchID:    p.MatchID,
			Name:       p.Name,
			RaceID:     p.RaceID,
			BonusID:    p.BonusID,
			AuraID:     p.AuraID,
			UltimateID: p.UltimateID,
			Place:      int(p.Place),
			TimeAlive:  p.TimeAlive,
			MMR:        p.Mmr,
			Quantile:   p.Quantile,
			Events:     make([]domain.PlayerEvent, len(events)),
		}
		for j, e := range events {
			players[i].Events[j] = domain.PlayerEvent{
				EventType: domain.EventType(e.EventType),
				EventID:   e.EventID,
				Time:      e.Time,
			}
		}
	}

	return match, players, nil
}

// Reset drops parsed matches of the given records and puts them back in the parse queue.
func (r *MatchRepository) Reset(ctx context.Context, processIDs []string) error {
	if len(processIDs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)

	for _, id := range processIDs {
		if err := qtx.DeleteMatchByProcess(ctx, id); err != nil {
			return fmt.Errorf("failed to delete match of %s: %w", id, err)
		}
		if err := qtx.ResetMapProcess(ctx, id); err != nil {
			return fmt.Errorf("failed to reset processing record %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func (r *MatchRepository) Count(ctx context.Context) (int64, error) {
	return r.queries.CountMatches(ctx)
}
