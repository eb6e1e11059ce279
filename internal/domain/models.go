package domain

import (
	"time"
)

type Platform string

const (
	PlatformW3Champions Platform = "W3Champions"
)

type ProcessError string

const (
	ProcessErrorBadMap       ProcessError = "BAD_MAP"
	ProcessErrorNoMapping    ProcessError = "NO_MAPPING"
	ProcessErrorParsingError ProcessError = "PARSING_ERROR"
)

type EventType string

const (
	EventInitialRace  EventType = "INITIAL_RACE"
	EventBanRace      EventType = "BAN_RACE"
	EventRepickRace   EventType = "REPICK_RACE"
	EventHeroBuy      EventType = "HERO_BUY"
	EventBaseUpgrade  EventType = "BASE_UPGRADE"
	EventTowerUpgrade EventType = "TOWER_UPGRADE"
	EventUpFort2      EventType = "UP_FORT2"
	EventUpFort3      EventType = "UP_FORT3"
	EventUpBarrack2   EventType = "UP_BARRACK2"
	EventUpBarrack3   EventType = "UP_BARRACK3"
	EventUpBarrack4   EventType = "UP_BARRACK4"
	EventUseUltimate  EventType = "USE_ULTIMATE"
)

// ProcessingRecord tracks one replay file through download and parse.
type ProcessingRecord struct {
	ID            string
	FilePath      string // file name inside the replay directory, unique
	Platform      Platform
	DownloadError *int // HTTP status of a failed download
	MappingError  *ProcessError
	Processed     bool
	MapID         *int64
}

// MapVersion is a map build seen in replays; empty strings stand for unset columns.
type MapVersion struct {
	ID         int64  `json:"id"`
	MapName    string `json:"mapName"`
	MapType    string `json:"mapType"` // map family key, "og" / "oz"
	MapVersion string `json:"mapVersion"`
	MapPatch   string `json:"mapPatch"`
	DataKey    string `json:"dataKey"`
	Ignore     bool   `json:"ignore"`
}

type ExternalPlayer struct {
	Name     string  `json:"name"`
	MMR      float64 `json:"mmr"`
	Quantile float64 `json:"quantile"`
}

type ExternalMatch struct {
	ID           string           `json:"id"`
	GameMode     int              `json:"gameMode"`
	Season       string           `json:"season"`
	EndTime      time.Time        `json:"endTime"`
	Players      []ExternalPlayer `json:"players"`
	MapProcessID *string          `json:"mapProcessId,omitempty"`
}

type Match struct {
	ID           string
	MapProcessID string
	MapID        int64
	Platform     Platform
	Season       string
	Duration     int64 // ms
	EndAt        time.Time
	AvgMMR       *float64
	AvgQuantile  *float64
	HasLeavers   bool
}

type Player struct {
	ID         string
	MatchID    string
	Name       string
	RaceID     string
	BonusID    *string
	AuraID     *string
	UltimateID *string
	Place      int
	TimeAlive  int64 // ms from match start
	MMR        *float64
	Quantile   *float64
	Events     []PlayerEvent
}

type PlayerEvent struct {
	EventType EventType
	EventID   string
	Time      int64 // ms from match start
}

type PlatformPlayer struct {
	ID         int64
	Name       string
	Platform   Platform
	LastMMR    *float64
	LastSeenAt time.Time
}

// ProcessStatus aggregates processing records for status reporting.
type ProcessStatus struct {
	Total          int64                  `json:"total"`
	Pending        int64                  `json:"pending"`
	Done           int64                  `json:"done"`
	DownloadErrors int64                  `json:"downloadErrors"`
	MappingErrors  map[ProcessError]int64 `json:"mappingErrors"`
}

type ExternalMatchStatus struct {
	Found      int64          `json:"found"`
	Downloaded int64          `json:"downloaded"`
	Latest     *ExternalMatch `json:"latest,omitempty"`
}
