package repository

import (
	"context"
	"database/sql"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/db"

	"github.com/rs/zerolog"
)

// GameDataRow is one normalized JSON document of a data key.
type GameDataRow struct {
	Key  string
	Data []byte
}

type GameDataRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
}

func NewGameDataRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *GameDataRepository {
	return &GameDataRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

func (r *GameDataRepository) List(ctx context.Context, dataKey string) ([]GameDataRow, error) {
	rows, err := r.queries.ListGameData(ctx, dataKey)
	if err != nil {
		return nil, err
	}

	items := make([]GameDataRow, len(rows))
	for i, row := range rows {
		items[i] = GameDataRow{Key: row.Key, Data: []byte(row.Data)}
	}
	return items, nil
}

// Shas maps each stored key of dataKey to its blob sha.
func (r *GameDataRepository) Shas(ctx context.Context, dataKey string) (map[string]string, error) {
	rows, err := r.queries.ListGameDataShas(ctx, dataKey)
	if err != nil {
		return nil, err
	}

	shas := make(map[string]string, len(rows))
	for _, row := range rows {
		shas[row.Key] = row.Sha
	}
	return shas, nil
}

func (r *GameDataRepository) Upsert(ctx context.Context, dataKey, key string, data []byte, sha string) error {
	return r.queries.UpsertGameData(ctx, db.UpsertGameDataParams{
		DataKey: dataKey,
		Key:     key,
		Data:    string(data),
		Sha:     sha,
	})
}

func (r *GameDataRepository) Delete(ctx context.Context, dataKey string) error {
	return r.queries.DeleteGameData(ctx, dataKey)
}

func (r *GameDataRepository) DataKeys(ctx context.Context) ([]string, error) {
	keys, err := r.queries.ListDataKeys(ctx)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}
