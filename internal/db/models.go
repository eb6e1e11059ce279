package db

import (
	"time"
)

type ExternalMatch struct {
	ID           string
	GameMode     int64
	Season       string
	EndTime      time.Time
	Players      string
	MapProcessID *string
}

type GameDatum struct {
	DataKey string
	Key     string
	Data    string
	Sha     string
}

type MapProcess struct {
	ID            string
	FilePath      string
	Platform      string
	DownloadError *int64
	MappingError  *string
	Processed     bool
	MapID         *int64
}

type MapVersion struct {
	ID         int64
	MapName    string
	MapType    *string
	MapVersion *string
	MapPatch   *string
	DataKey    *string
	IsIgnored  bool
}

type Match struct {
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

type Player struct {
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

type PlayerEvent struct {
	PlayerID  string
	EventType string
	EventID   string
	Time      int64
}
