package db

import (
	"context"
	"time"
)

const insertExternalMatch = `-- name: InsertExternalMatch :execrows
INSERT INTO external_matches (id, game_mode, season, end_time, players)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING
`

type InsertExternalMatchParams struct {
	ID       string
	GameMode int64
	Season   string
	EndTime  time.Time
	Players  string
}

func (q *Queries) InsertExternalMatch(ctx context.Context, arg InsertExternalMatchParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, insertExternalMatch,
		arg.ID,
		arg.GameMode,
		arg.Season,
		arg.EndTime,
		arg.Players,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const countExternalMatchesByIDs = `-- name: CountExternalMatchesByIDs :one
SELECT COUNT(*) FROM external_matches WHERE id IN (/*SLICE:ids*/?)
`

func (q *Queries) CountExternalMatchesByIDs(ctx context.Context, ids []string) (int64, error) {
	query := expandSlice(countExternalMatchesByIDs, "ids", len(ids))
	args := make([]interface{}, 0, len(ids))
	for _, v := range ids {
		args = append(args, v)
	}
	row := q.db.QueryRowContext(ctx, query, args...)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const listDownloadCandidates = `-- name: ListDownloadCandidates :many
SELECT id, game_mode, season, end_time, players, map_process_id
FROM external_matches
WHERE map_process_id IS NULL AND end_time <= ?
ORDER BY end_time ASC
LIMIT ?
`

type ListDownloadCandidatesParams struct {
	EndedBefore time.Time
	Limit       int64
}

func (q *Queries) ListDownloadCandidates(ctx context.Context, arg ListDownloadCandidatesParams) ([]ExternalMatch, error) {
	rows, err := q.db.QueryContext(ctx, listDownloadCandidates, arg.EndedBefore, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ExternalMatch
	for rows.Next() {
		var i ExternalMatch
		if err := rows.Scan(
			&i.ID,
			&i.GameMode,
			&i.Season,
			&i.EndTime,
			&i.Players,
			&i.MapProcessID,
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

const linkExternalMatch = `-- name: LinkExternalMatch :exec
UPDATE external_matches SET map_process_id = ? WHERE id = ?
`

func (q *Queries) LinkExternalMatch(ctx context.Context, mapProcessID string, id string) error {
	_, err := q.db.ExecContext(ctx, linkExternalMatch, mapProcessID, id)
	return err
}

const unlinkExternalMatches = `-- name: UnlinkExternalMatches :exec
UPDATE external_matches SET map_process_id = NULL WHERE map_process_id = ?
`

func (q *Queries) UnlinkExternalMatches(ctx context.Context, mapProcessID string) error {
	_, err := q.db.ExecContext(ctx, unlinkExternalMatches, mapProcessID)
	return err
}

const getExternalMatchByProcess = `-- name: GetExternalMatchByProcess :one
SELECT id, game_mode, season, end_time, players, map_process_id
FROM external_matches
WHERE map_process_id = ?
`

func (q *Queries) GetExternalMatchByProcess(ctx context.Context, mapProcessID string) (ExternalMatch, error) {
	row := q.db.QueryRowContext(ctx, getExternalMatchByProcess, mapProcessID)
	var i ExternalMatch
	err := row.Scan(
		&i.ID,
		&i.GameMode,
		&i.Season,
		&i.EndTime,
		&i.Players,
		&i.MapProcessID,
	)
	return i, err
}

const getExternalMatchStatus = `-- name: GetExternalMatchStatus :one
SELECT
    COUNT(*) AS found,
    COUNT(map_process_id) AS downloaded
FROM external_matches
`

type GetExternalMatchStatusRow struct {
	Found      int64
	Downloaded int64
}

func (q *Queries) GetExternalMatchStatus(ctx context.Context) (GetExternalMatchStatusRow, error) {
	row := q.db.QueryRowContext(ctx, getExternalMatchStatus)
	var i GetExternalMatchStatusRow
	err := row.Scan(&i.Found, &i.Downloaded)
	return i, err
}

const getLatestExternalMatch = `-- name: GetLatestExternalMatch :one
SELECT id, game_mode, season, end_time, players, map_process_id
FROM external_matches
ORDER BY end_time DESC
LIMIT 1
`

func (q *Queries) GetLatestExternalMatch(ctx context.Context) (ExternalMatch, error) {
	row := q.db.QueryRowContext(ctx, getLatestExternalMatch)
	var i ExternalMatch
	err := row.Scan(
		&i.ID,
		&i.GameMode,
		&i.Season,
		&i.EndTime,
		&i.Players,
		&i.MapProcessID,
	)
	return i, err
}
