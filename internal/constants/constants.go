package constants

import (
	"math"
	"time"
)

const (
	ExternalAPITimeout    = 30 * time.Second
	ReplayDownloadTimeout = 2 * time.Minute
	DatabaseTimeout       = 5 * time.Second
	ParseTimeout          = 2 * time.Minute
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 50
)

const (
	ShutdownTimeout = 5 * time.Second
)

// listing API
const (
	DirectoryPageSize     = 100
	DirectoryRequestEvery = 5 * time.Second
	GameModeOG            = 1001
	GameModeOZ            = 1002
)

// replay API quotas, one below the published limits
const (
	ReplaysPerHour = 299
	ReplaysPerDay  = 4999
)

const (
	// the listing service stores replays some time after the match ends
	ReplayAvailabilityDelay = 1 * time.Hour
	ParseBatchSize          = 10
	ParseRunLimit           = 1000
)

const (
	FetchInterval    = 30 * time.Minute
	DownloadInterval = 5 * time.Minute
	ParseInterval    = 1 * time.Minute
	GameDataInterval = 1 * time.Hour
)

// game data repository
const (
	GameDataBranch = "master"
	GameDataRoot   = "data"
)

const (
	CacheTTL             = 1 * time.Hour
	CacheCleanupInterval = 10 * time.Second
)

// interpreter tuning, empirically chosen
const (
	RaceFinalizeAfter   = 7 * 60 * 1000 // ms
	LeaverTimeThreshold = 18 * 60 * 1000
	ExpectedPlayers     = 4
)

const (
	DefaultEventLag      int64 = 1500 // ms
	BaseUpgradeEventLag  int64 = 18 * 1000
	TowerUpgradeEventLag int64 = 75 * 1000
	InfiniteEventLag     int64 = math.MaxInt64
)
