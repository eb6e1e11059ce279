package db

import (
	"context"
)

const upsertMapProcess = `-- name: UpsertMapProcess :one
INSERT INTO map_processes (id, file_path, platform, download_error)
VALUES (?, ?, ?, ?)
ON CONFLICT (file_path) DO UPDATE SET
    download_error = excluded.download_error
RETURNING id
`

type UpsertMapProcessParams struct {
	ID            string
	FilePath      string
	Platform      string
	DownloadError *int64
}

func (q *Queries) UpsertMapProcess(ctx context.Context, arg UpsertMapProcessParams) (string, error) {
	row := q.db.QueryRowContext(ctx, upsertMapProcess,
		arg.ID,
		arg.FilePath,
		arg.Platform,
		arg.DownloadError,
	)
	var id string
	err := row.Scan(&id)
	return id, err
}

const getMapProcess = `-- name: GetMapProcess :one
SELECT id, file_path, platform, download_error, mapping_error, processed, map_id
FROM map_processes
WHERE id = ?
`

func (q *Queries) GetMapProcess(ctx context.Context, id string) (MapProcess, error) {
	row := q.db.QueryRowContext(ctx, getMapProcess, id)
	var i MapProcess
	err := row.Scan(
		&i.ID,
		&i.FilePath,
		&i.Platform,
		&i.DownloadError,
		&i.MappingError,
		&i.Processed,
		&i.MapID,
	)
	return i, err
}

const listParseCandidates = `-- name: ListParseCandidates :many
SELECT p.id, p.file_path, p.platform, p.download_error, p.mapping_error, p.processed, p.map_id
FROM map_processes p
LEFT JOIN map_versions v ON v.id = p.map_id
WHERE (p.download_error IS NULL AND p.mapping_error IS NULL AND p.processed = 0)
   OR (
        p.mapping_error = 'NO_MAPPING'
        AND v.data_key IS NOT NULL
        AND v.map_type IS NOT NULL
        AND v.is_ignored = 0
        AND EXISTS (SELECT 1 FROM game_data g WHERE g.data_key = v.data_key)
   )
ORDER BY p.rowid
LIMIT ?
`

func (q *Queries) ListParseCandidates(ctx context.Context, limit int64) ([]MapProcess, error) {
	rows, err := q.db.QueryContext(ctx, listParseCandidates, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MapProcess
	for rows.Next() {
		var i MapProcess
		if err := rows.Scan(
			&i.ID,
			&i.FilePath,
			&i.Platform,
			&i.DownloadError,
			&i.MappingError,
			&i.Processed,
			&i.MapID,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const setMapProcessMap = `-- name: SetMapProcessMap :exec
UPDATE map_processes SET map_id = ? WHERE id = ?
`

func (q *Queries) SetMapProcessMap(ctx context.Context, mapID int64, id string) error {
	_, err := q.db.ExecContext(ctx, setMapProcessMap, mapID, id)
	return err
}

const setMapProcessError = `-- name: SetMapProcessError :exec
UPDATE map_processes
SET mapping_error = ?, map_id = COALESCE(?, map_id)
WHERE id = ?
`

type SetMapProcessErrorParams struct {
	MappingError string
	MapID        *int64
	ID           string
}

func (q *Queries) SetMapProcessError(ctx context.Context, arg SetMapProcessErrorParams) error {
	_, err := q.db.ExecContext(ctx, setMapProcessError, arg.MappingError, arg.MapID, arg.ID)
	return err
}

const markMapProcessParsed = `-- name: MarkMapProcessParsed :exec
UPDATE map_processes SET processed = 1, mapping_error = NULL WHERE id = ?
`

func (q *Queries) MarkMapProcessParsed(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, markMapProcessParsed, id)
	return err
}

const deleteMapProcess = `-- name: DeleteMapProcess :exec
DELETE FROM map_processes WHERE id = ?
`

func (q *Queries) DeleteMapProcess(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deleteMapProcess, id)
	return err
}

const listMapProcessesByFilePaths = `-- name: ListMapProcessesByFilePaths :many
SELECT id, file_path, platform, download_error, mapping_error, processed, map_id
FROM map_processes
WHERE file_path IN (/*SLICE:file_paths*/?)
`

func (q *Queries) ListMapProcessesByFilePaths(ctx context.Context, filePaths []string) ([]MapProcess, error) {
	query := expandSlice(listMapProcessesByFilePaths, "file_paths", len(filePaths))
	args := make([]interface{}, 0, len(filePaths))
	for _, v := range filePaths {
		args = append(args, v)
	}
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MapProcess
	for rows.Next() {
		var i MapProcess
		if err := rows.Scan(
			&i.ID,
			&i.FilePath,
			&i.Platform,
			&i.DownloadError,
			&i.MappingError,
			&i.Processed,
			&i.MapID,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const resetMapProcess = `-- name: ResetMapProcess :exec
UPDATE map_processes
SET processed = 0, mapping_error = NULL, download_error = NULL
WHERE id = ?
`

func (q *Queries) ResetMapProcess(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, resetMapProcess, id)
	return err
}

const listFailedDownloadsBySeason = `-- name: ListFailedDownloadsBySeason :many
SELECT p.id
FROM map_processes p
JOIN external_matches e ON e.map_process_id = p.id
WHERE p.platform = ? AND e.season = ? AND p.download_error IS NOT NULL
`

func (q *Queries) ListFailedDownloadsBySeason(ctx context.Context, platform, season string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listFailedDownloadsBySeason, platform, season)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getMapProcessStatus = `-- name: GetMapProcessStatus :one
SELECT
    COUNT(*) AS total,
    COALESCE(SUM(processed = 0 AND download_error IS NULL AND mapping_error IS NULL), 0) AS pending,
    COALESCE(SUM(processed = 1), 0) AS done,
    COALESCE(SUM(download_error IS NOT NULL), 0) AS download_errors,
    COALESCE(SUM(mapping_error = 'BAD_MAP'), 0) AS bad_map,
    COALESCE(SUM(mapping_error = 'NO_MAPPING'), 0) AS no_mapping,
    COALESCE(SUM(mapping_error = 'PARSING_ERROR'), 0) AS parsing_error
FROM map_processes
`

type GetMapProcessStatusRow struct {
	Total          int64
	Pending        int64
	Done           int64
	DownloadErrors int64
	BadMap         int64
	NoMapping      int64
	ParsingError   int64
}

func (q *Queries) GetMapProcessStatus(ctx context.Context) (GetMapProcessStatusRow, error) {
	row := q.db.QueryRowContext(ctx, getMapProcessStatus)
	var i GetMapProcessStatusRow
	err := row.Scan(
		&i.Total,
		&i.Pending,
		&i.Done,
		&i.DownloadErrors,
		&i.BadMap,
		&i.NoMapping,
		&i.ParsingError,
	)
	return i, err
}
