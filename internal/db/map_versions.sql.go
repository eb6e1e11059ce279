package db

import (
	"context"
)

const ensureMapVersion = `-- name: EnsureMapVersion :exec
INSERT INTO map_versions (map_name) VALUES (?)
ON CONFLICT (map_name) DO NOTHING
`

func (q *Queries) EnsureMapVersion(ctx context.Context, mapName string) error {
	_, err := q.db.ExecContext(ctx, ensureMapVersion, mapName)
	return err
}

const getMapVersionByName = `-- name: GetMapVersionByName :one
SELECT id, map_name, map_type, map_version, map_patch, data_key, is_ignored
FROM map_versions
WHERE map_name = ?
`

func (q *Queries) GetMapVersionByName(ctx context.Context, mapName string) (MapVersion, error) {
	row := q.db.QueryRowContext(ctx, getMapVersionByName, mapName)
	var i MapVersion
	err := row.Scan(
		&i.ID,
		&i.MapName,
		&i.MapType,
		&i.MapVersion,
		&i.MapPatch,
		&i.DataKey,
		&i.IsIgnored,
	)
	return i, err
}

const getMapVersion = `-- name: GetMapVersion :one
SELECT id, map_name, map_type, map_version, map_patch, data_key, is_ignored
FROM map_versions
WHERE id = ?
`

func (q *Queries) GetMapVersion(ctx context.Context, id int64) (MapVersion, error) {
	row := q.db.QueryRowContext(ctx, getMapVersion, id)
	var i MapVersion
	err := row.Scan(
		&i.ID,
		&i.MapName,
		&i.MapType,
		&i.MapVersion,
		&i.MapPatch,
		&i.DataKey,
		&i.IsIgnored,
	)
	return i, err
}

const listMapVersions = `-- name: ListMapVersions :many
SELECT id, map_name, map_type, map_version, map_patch, data_key, is_ignored
FROM map_versions
ORDER BY map_type IS NOT NULL, map_type, map_version IS NOT NULL, map_version DESC
`

func (q *Queries) ListMapVersions(ctx context.Context) ([]MapVersion, error) {
	rows, err := q.db.QueryContext(ctx, listMapVersions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MapVersion
	for rows.Next() {
		var i MapVersion
		if err := rows.Scan(
			&i.ID,
			&i.MapName,
			&i.MapType,
			&i.MapVersion,
			&i.MapPatch,
			&i.DataKey,
			&i.IsIgnored,
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

const updateMapVersion = `-- name: UpdateMapVersion :execrows
UPDATE map_versions
SET map_type = ?, map_version = ?, map_patch = ?, data_key = ?, is_ignored = ?
WHERE id = ?
`

type UpdateMapVersionParams struct {
	MapType    *string
	MapVersion *string
	MapPatch   *string
	DataKey    *string
	IsIgnored  bool
	ID         int64
}

func (q *Queries) UpdateMapVersion(ctx context.Context, arg UpdateMapVersionParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateMapVersion,
		arg.MapType,
		arg.MapVersion,
		arg.MapPatch,
		arg.DataKey,
		arg.IsIgnored,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
