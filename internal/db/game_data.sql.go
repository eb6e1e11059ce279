package db

import (
	"context"
)

const listGameData = `-- name: ListGameData :many
SELECT data_key, key, data, sha
FROM game_data
WHERE data_key = ?
ORDER BY key
`

func (q *Queries) ListGameData(ctx context.Context, dataKey string) ([]GameDatum, error) {
	rows, err := q.db.QueryContext(ctx, listGameData, dataKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GameDatum
	for rows.Next() {
		var i GameDatum
		if err := rows.Scan(
			&i.DataKey,
			&i.Key,
			&i.Data,
			&i.Sha,
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

const listGameDataShas = `-- name: ListGameDataShas :many
SELECT key, sha
FROM game_data
WHERE data_key = ?
`

type ListGameDataShasRow struct {
	Key string
	Sha string
}

func (q *Queries) ListGameDataShas(ctx context.Context, dataKey string) ([]ListGameDataShasRow, error) {
	rows, err := q.db.QueryContext(ctx, listGameDataShas, dataKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListGameDataShasRow
	for rows.Next() {
		var i ListGameDataShasRow
		if err := rows.Scan(&i.Key, &i.Sha); err != nil {
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

const upsertGameData = `-- name: UpsertGameData :exec
INSERT INTO game_data (data_key, key, data, sha)
VALUES (?, ?, ?, ?)
ON CONFLICT (data_key, key) DO UPDATE SET
    data = excluded.data,
    sha = excluded.sha
`

type UpsertGameDataParams struct {
	DataKey string
	Key     string
	Data    string
	Sha     string
}

func (q *Queries) UpsertGameData(ctx context.Context, arg UpsertGameDataParams) error {
	_, err := q.db.ExecContext(ctx, upsertGameData,
		arg.DataKey,
		arg.Key,
		arg.Data,
		arg.Sha,
	)
	return err
}

const deleteGameData = `-- name: DeleteGameData :exec
DELETE FROM game_data WHERE data_key = ?
`

func (q *Queries) DeleteGameData(ctx context.Context, dataKey string) error {
	_, err := q.db.ExecContext(ctx, deleteGameData, dataKey)
	return err
}

const listDataKeys = `-- name: ListDataKeys :many
SELECT DISTINCT data_key FROM game_data ORDER BY data_key
`

func (q *Queries) ListDataKeys(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listDataKeys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var dataKey string
		if err := rows.Scan(&dataKey); err != nil {
			return nil, err
		}
		items = append(items, dataKey)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
