package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/db"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/domain"

	"github.com/rs/zerolog"
)

var ErrMapVersionNotFound = errors.New("map version not found")

type MapVersionRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
}

func NewMapVersionRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *MapVersionRepository {
	return &MapVersionRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

func toMapVersion(row db.MapVersion) *domain.MapVersion {
	return &domain.MapVersion{
		ID:         row.ID,
		MapName:    row.MapName,
		MapType:    deref(row.MapType),
		MapVersion: deref(row.MapVersion),
		MapPatch:   deref(row.MapPatch),
		DataKey:    deref(row.DataKey),
		Ignore:     row.IsIgnored,
	}
}

// Ensure returns the map version named mapName, creating it on first sight.
func (r *MapVersionRepository) Ensure(ctx context.Context, mapName string) (*domain.MapVersion, error) {
	if err := r.queries.EnsureMapVersion(ctx, mapName); err != nil {
		return nil, fmt.Errorf("failed to create map version %s: %w", mapName, err)
	}

	row, err := r.queries.GetMapVersionByName(ctx, mapName)
	if err != nil {
		return nil, fmt.Errorf("failed to load map version %s: %w", mapName, err)
	}
	return toMapVersion(row), nil
}

func (r *MapVersionRepository) Get(ctx context.Context, id int64) (*domain.MapVersion, error) {
	row, err := r.queries.GetMapVersion(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMapVersionNotFound
	}
	if err != nil {
		return nil, err
	}
	return toMapVersion(row), nil
}

func (r *MapVersionRepository) List(ctx context.Context) ([]domain.MapVersion, error) {
	rows, err := r.queries.ListMapVersions(ctx)
	if err != nil {
		return nil, err
	}

	versions := make([]domain.MapVersion, len(rows))
	for i, row := range rows {
		versions[i] = *toMapVersion(row)
	}
	return versions, nil
}

// Update overwrites the editable columns of a map version; MapName is ignored.
func (r *MapVersionRepository) Update(ctx context.Context, version *domain.MapVersion) error {
	n, err := r.queries.UpdateMapVersion(ctx, db.UpdateMapVersionParams{
		MapType:    nullString(version.MapType),
		MapVersion: nullString(version.MapVersion),
		MapPatch:   nullString(version.MapPatch),
		DataKey:    nullString(version.DataKey),
		IsIgnored:  version.Ignore,
		ID:         version.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to update map version %d: %w", version.ID, err)
	}
	if n == 0 {
		return ErrMapVersionNotFound
	}
	return nil
}
