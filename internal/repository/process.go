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

var ErrProcessNotFound = errors.New("processing record not found")

type ProcessRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
}

func NewProcessRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *ProcessRepository {
	return &ProcessRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

func toProcessingRecord(row db.MapProcess) domain.ProcessingRecord {
	rec := domain.ProcessingRecord{
		ID:        row.ID,
		FilePath:  row.FilePath,
		Platform:  domain.Platform(row.Platform),
		Processed: row.Processed,
		MapID:     row.MapID,
	}
	if row.DownloadError != nil {
		status := int(*row.DownloadError)
		rec.DownloadError = &status
	}
	if row.MappingError != nil {
		mappingErr := domain.ProcessError(*row.MappingError)
		rec.MappingError = &mappingErr
	}
	return rec
}

// Attach upserts the record for filePath, stores the download outcome and links
// it to the external match in one transaction. A nil downloadError clears it.
func (r *ProcessRepository) Attach(ctx context.Context, externalID, filePath string, platform domain.Platform, downloadError *int) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to generate nanoid: %w", err)
	}

	var status *int64
	if downloadError != nil {
		v := int64(*downloadError)
		status = &v
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)

	id, err = qtx.UpsertMapProcess(ctx, db.UpsertMapProcessParams{
		ID:            id,
		FilePath:      filePath,
		Platform:      string(platform),
		DownloadError: status,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upsert processing record %s: %w", filePath, err)
	}

	if err := qtx.LinkExternalMatch(ctx, id, externalID); err != nil {
		return "", fmt.Errorf("failed to link external match %s: %w", externalID, err)
	}

	return id, tx.Commit()
}

func (r *ProcessRepository) Get(ctx context.Context, id string) (*domain.ProcessingRecord, error) {
	row, err := r.queries.GetMapProcess(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProcessNotFound
	}
	if err != nil {
		return nil, err
	}
	rec := toProcessingRecord(row)
	return &rec, nil
}

func (r *ProcessRepository) ParseCandidates(ctx context.Context, limit int) ([]domain.ProcessingRecord, error) {
	rows, err := r.queries.ListParseCandidates(ctx, int64(limit))
	if err != nil {
		return nil, err
	}

	records := make([]domain.ProcessingRecord, len(rows))
	for i, row := range rows {
		records[i] = toProcessingRecord(row)
	}
	return records, nil
}

func (r *ProcessRepository) SetMap(ctx context.Context, id string, mapID int64) error {
	return r.queries.SetMapProcessMap(ctx, mapID, id)
}

func (r *ProcessRepository) SetMappingError(ctx context.Context, id string, kind domain.ProcessError, mapID *int64) error {
	return r.queries.SetMapProcessError(ctx, db.SetMapProcessErrorParams{
		MappingError: string(kind),
		MapID:        mapID,
		ID:           id,
	})
}

// Remove unlinks the external matches of the given records and deletes them.
func (r *ProcessRepository) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)

	for _, id := range ids {
		if err := qtx.UnlinkExternalMatches(ctx, id); err != nil {
			return fmt.Errorf("failed to unlink external match of %s: %w", id, err)
		}
		if err := qtx.DeleteMapProcess(ctx, id); err != nil {
			return fmt.Errorf("failed to delete processing record %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func (r *ProcessRepository) FailedDownloads(ctx context.Context, platform domain.Platform, season string) ([]string, error) {
	return r.queries.ListFailedDownloadsBySeason(ctx, string(platform), season)
}

func (r *ProcessRepository) ByFilePaths(ctx context.Context, filePaths []string) ([]domain.ProcessingRecord, error) {
	if len(filePaths) == 0 {
		return nil, nil
	}

	rows, err := r.queries.ListMapProcessesByFilePaths(ctx, filePaths)
	if err != nil {
		return nil, err
	}

	records := make([]domain.ProcessingRecord, len(rows))
	for i, row := range rows {
		records[i] = toProcessingRecord(row)
	}
	return records, nil
}

func (r *ProcessRepository) Status(ctx context.Context) (*domain.ProcessStatus, error) {
	row, err := r.queries.GetMapProcessStatus(ctx)
	if err != nil {
		return nil, err
	}

	return &domain.ProcessStatus{
		Total:          row.Total,
		Pending:        row.Pending,
		Done:           row.Done,
		DownloadErrors: row.DownloadErrors,
		MappingErrors: map[domain.ProcessError]int64{
			domain.ProcessErrorBadMap:       row.BadMap,
			domain.ProcessErrorNoMapping:    row.NoMapping,
			domain.ProcessErrorParsingError: row.ParsingError,
		},
	}, nil
}
