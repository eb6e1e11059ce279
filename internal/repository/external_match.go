package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/constants"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/db"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/domain"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

type ExternalMatchRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
}

func NewExternalMatchRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *ExternalMatchRepository {
	return &ExternalMatchRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

func toExternalMatch(row db.ExternalMatch) (domain.ExternalMatch, error) {
	match := domain.ExternalMatch{
		ID:           row.ID,
		GameMode:     int(row.GameMode),
		Season:       row.Season,
		EndTime:      row.EndTime,
		MapProcessID: row.MapProcessID,
	}
	if err := json.Unmarshal([]byte(row.Players), &match.Players); err != nil {
		return match, fmt.Errorf("failed to decode players of %s: %w", row.ID, err)
	}
	return match, nil
}

// InsertBatch stores new matches and ignores already known IDs. Returns how many were new.
func (r *ExternalMatchRepository) InsertBatch(ctx context.Context, matches []domain.ExternalMatch) (int, error) {
	inserted := 0

	for i := 0; i < len(matches); i += constants.DBBatchSize {
		end := i + constants.DBBatchSize
		if end > len(matches) {
			end = len(matches)
		}

		n, err := r.insertChunk(ctx, matches[i:end])
		if err != nil {
			return inserted, err
		}
		inserted += n
	}

	return inserted, nil
}

func (r *ExternalMatchRepository) insertChunk(ctx context.Context, matches []domain.ExternalMatch) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)

	inserted := 0
	for _, match := range matches {
		players := match.Players
		if players == nil {
			players = []domain.ExternalPlayer{}
		}
		payload, err := json.Marshal(players)
		if err != nil {
			return 0, fmt.Errorf("failed to encode players of %s: %w", match.ID, err)
		}

		n, err := qtx.InsertExternalMatch(ctx, db.InsertExternalMatchParams{
			ID:       match.ID,
			GameMode: int64(match.GameMode),
			Season:   match.Season,
			EndTime:  match.EndTime.UTC(),
			Players:  string(payload),
		})
		if err != nil {
			return 0, fmt.Errorf("failed to insert external match %s: %w", match.ID, err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *ExternalMatchRepository) CountKnown(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	count, err := r.queries.CountExternalMatchesByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// DownloadCandidates lists unlinked matches that ended at or before endedBefore, oldest first.
func (r *ExternalMatchRepository) DownloadCandidates(ctx context.Context, endedBefore time.Time, limit int) ([]domain.ExternalMatch, error) {
	rows, err := r.queries.ListDownloadCandidates(ctx, db.ListDownloadCandidatesParams{
		EndedBefore: endedBefore.UTC(),
		Limit:       int64(limit),
	})
	if err != nil {
		return nil, err
	}

	matches := make([]domain.ExternalMatch, 0, len(rows))
	for _, row := range rows {
		match, err := toExternalMatch(row)
		if err != nil {
			r.logger.Warn().Err(err).Str("match_id", row.ID).Msg("skipping malformed external match")
			continue
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// GetByProcess returns nil when no external match is linked to the record.
func (r *ExternalMatchRepository) GetByProcess(ctx context.Context, processID string) (*domain.ExternalMatch, error) {
	row, err := r.queries.GetExternalMatchByProcess(ctx, processID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	match, err := toExternalMatch(row)
	if err != nil {
		return nil, err
	}
	return &match, nil
}

func (r *ExternalMatchRepository) Status(ctx context.Context) (*domain.ExternalMatchStatus, error) {
	counts, err := r.queries.GetExternalMatchStatus(ctx)
	if err != nil {
		return nil, err
	}

	status := &domain.ExternalMatchStatus{
		Found:      counts.Found,
		Downloaded: counts.Downloaded,
	}

	row, err := r.queries.GetLatestExternalMatch(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return status, nil
	}
	if err != nil {
		return nil, err
	}

	latest, err := toExternalMatch(row)
	if err != nil {
		return nil, err
	}
	status.Latest = &latest
	return status, nil
}
