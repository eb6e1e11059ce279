package db

import (
	"context"
	"time"
)

const deleteMatchByProcess = `-- name: DeleteMatchByProcess :exec
DELETE FROM matches WHERE map_process_id = ?
`

// Players and events go with the match through ON DELETE CASCADE.
func (q *Queries) DeleteMatchByProcess(ctx context.Context, mapProcessID string) error {
	_, err := q.db.ExecContext(ctx, deleteMatchByProcess, mapProcessID)
	return err
}

const createMatch = `-- name: CreateMatch :exec
INSERT INTO matches (
    id, map_process_id, map_id, platform, season, duration, end_at, avg_mmr, avg_quantile, has_leavers
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateMatchParams struct {
	ID           string
	MapProcessID string
	MapID        int64
	Platform     string
	Season       string
	Duration     int64
	EndAt        time.Time
	AvgMmr       *float64
	AvgQuantile  *float64
	HasLeavers   bool
}

func (q *Queries) CreateMatch(ctx context.Context, arg CreateMatchParams) error {
	_, err := q.db.ExecContext(ctx, createMatch,
		arg.ID,
		arg.MapProcessID,
		arg.MapID,
		arg.Platform,
		arg.Season,
		arg.Duration,
		arg.EndAt,
		arg.AvgMmr,
		arg.AvgQuantile,
		arg.HasLeavers,
	)
	return err
}

const getMatchByProcess = `-- name: GetMatchByProcess :one
SELECT id, map_process_id, map_id, platform, season, duration, end_at, avg_mmr, avg_quantile, has_leavers
FROM matches
WHERE map_process_id = ?
`

func (q *Queries) GetMatchByProcess(ctx context.Context, mapProcessID string) (Match, error) {
	row := q.db.QueryRowContext(ctx, getMatchByProcess, mapProcessID)
	var i Match
	err := row.Scan(
		&i.ID,
		&i.MapProcessID,
		&i.MapID,
		&i.Platform,
		&i.Season,
		&i.Duration,
		&i.EndAt,
		&i.AvgMmr,
		&i.AvgQuantile,
		&i.HasLeavers,
	)
	return i, err
}

const countMatches = `-- name: CountMatches :one
SELECT COUNT(*) FROM matches
`

func (q *Queries) CountMatches(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countMatches)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const upsertPlatformPlayer = `-- name: UpsertPlatformPlayer :one
INSERT INTO platform_players (name, platform, last_mmr, last_seen_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (name, platform) DO UPDATE SET
    last_mmr = COALESCE(excluded.last_mmr, platform_players.last_mmr),
    last_seen_at = MAX(platform_players.last_seen_at, excluded.last_seen_at)
RETURNING id
`

type UpsertPlatformPlayerParams struct {
	Name       string
	Platform   string
	LastMmr    *float64
	LastSeenAt time.Time
}

func (q *Queries) UpsertPlatformPlayer(ctx context.Context, arg UpsertPlatformPlayerParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, upsertPlatformPlayer,
		arg.Name,
		arg.Platform,
		arg.LastMmr,
		arg.LastSeenAt,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const createPlayer = `-- name: CreatePlayer :exec
INSERT INTO players (
    id, match_id, platform_player_id, race_id, bonus_id, aura_id, ultimate_id, place, time_alive, mmr, quantile
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type CreatePlayerParams struct {
	ID               string
	MatchID          string
	PlatformPlayerID int64
	RaceID           string
	BonusID          *string
	AuraID           *string
	UltimateID       *string
	Place            int64
	TimeAlive        int64
	Mmr              *float64
	Quantile         *float64
}

func (q *Queries) CreatePlayer(ctx context.Context, arg CreatePlayerParams) error {
	_, err := q.db.ExecContext(ctx, createPlayer,
		arg.ID,
		arg.MatchID,
		arg.PlatformPlayerID,
		arg.RaceID,
		arg.BonusID,
		arg.AuraID,
		arg.UltimateID,
		arg.Place,
		arg.TimeAlive,
		arg.Mmr,
		arg.Quantile,
	)
	return err
}

const listPlayersByMatch = `-- name: ListPlayersByMatch :many
SELECT p.id, p.match_id, p.platform_player_id, p.race_id, p.bonus_id, p.aura_id, p.ultimate_id,
       p.place, p.time_alive, p.mmr, p.quantile, pp.name
FROM players p
JOIN platform_players pp ON pp.id = p.platform_player_id
WHERE p.match_id = ?
ORDER BY p.place
`

type ListPlayersByMatchRow struct {
	Player
	Name string
}

func (q *Queries) ListPlayersByMatch(ctx context.Context, matchID string) ([]ListPlayersByMatchRow, error) {
	rows, err := q.db.QueryContext(ctx, listPlayersByMatch, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListPlayersByMatchRow
	for rows.Next() {
		var i ListPlayersByMatchRow
		if err := rows.Scan(
			&i.ID,
			&i.MatchID,
			&i.PlatformPlayerID,
			&i.RaceID,
			&i.BonusID,
			&i.AuraID,
			&i.UltimateID,
			&i.Place,
			&i.TimeAlive,
			&i.Mmr,
			&i.Quantile,
			&i.Name,
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

const createPlayerEvent = `-- name: CreatePlayerEvent :exec
INSERT INTO player_events (player_id, event_type, event_id, time)
VALUES (?, ?, ?, ?)
ON CONFLICT DO NOTHING
`

type CreatePlayerEventParams struct {
	PlayerID  string
	EventType string
	EventID   string
	Time      int64
}

func (q *Queries) CreatePlayerEvent(ctx context.Context, arg CreatePlayerEventParams) error {
	_, err := q.db.ExecContext(ctx, createPlayerEvent,
		arg.PlayerID,
		arg.EventType,
		arg.EventID,
		arg.Time,
	)
	return err
}

const listPlayerEvents = `-- name: ListPlayerEvents :many
SELECT player_id, event_type, event_id, time
FROM player_events
WHERE player_id = ?
ORDER BY time, rowid
`

func (q *Queries) ListPlayerEvents(ctx context.Context, playerID string) ([]PlayerEvent, error) {
	rows, err := q.db.QueryContext(ctx, listPlayerEvents, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PlayerEvent
	for rows.Next() {
		var i PlayerEvent
		if err := rows.Scan(
			&i.PlayerID,
			&i.EventType,
			&i.EventID,
			&i.Time,
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
