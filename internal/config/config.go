package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/constants"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type Config struct {
	W3CBaseURL       string
	W3CReplaysAPIKey string
	UserAgent        string

	DBPath       string
	ReplayDir    string
	DeleteParsed bool
	DecoderCmd   string

	WikiDataRepo      string
	WikiDataRepoToken string
	GitHubAPIURL      string

	ArchiveBucket    string
	ArchiveEndpoint  string
	ArchiveAccessKey string
	ArchiveSecretKey string

	ServerPort string
	AdminToken string
	LogLevel   string
	CacheTTL   time.Duration

	ReplaysPerHour int
	ReplaysPerDay  int
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		W3CBaseURL:       strings.TrimRight(getEnv("W3C_BASE_URL", "https://website-backend.w3champions.com"), "/"),
		W3CReplaysAPIKey: getEnv("W3C_REPLAYS_API_KEY", ""),
		UserAgent:        getEnv("USER_AGENT", "SC Stats Fetch Service"),

		DBPath:       getEnv("DB_PATH", "sc-statistic.db"),
		ReplayDir:    getEnv("REPLAY_DIR", "storage/replays"),
		DeleteParsed: getEnvBool("DELETE_PARSED", true),
		DecoderCmd:   getEnv("DECODER_CMD", "w3g-decode"),

		WikiDataRepo:      getEnv("WIKI_DATA_REPO", ""),
		WikiDataRepoToken: getEnv("WIKI_DATA_REPO_TOKEN", ""),
		GitHubAPIURL:      strings.TrimRight(getEnv("GITHUB_API_URL", "https://api.github.com"), "/"),

		ArchiveBucket:    getEnv("ARCHIVE_BUCKET", ""),
		ArchiveEndpoint:  getEnv("ARCHIVE_ENDPOINT", ""),
		ArchiveAccessKey: getEnv("ARCHIVE_ACCESS_KEY_ID", ""),
		ArchiveSecretKey: getEnv("ARCHIVE_SECRET_ACCESS_KEY", ""),

		ServerPort: getEnv("SERVER_PORT", "8080"),
		AdminToken: getEnv("ADMIN_TOKEN", ""),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		CacheTTL:   constants.CacheTTL,

		ReplaysPerHour: getEnvInt("REPLAYS_PER_HOUR", constants.ReplaysPerHour),
		ReplaysPerDay:  getEnvInt("REPLAYS_PER_DAY", constants.ReplaysPerDay),
	}

	if cfg.W3CReplaysAPIKey == "" {
		return nil, fmt.Errorf("W3C_REPLAYS_API_KEY is required")
	}
	if cfg.ReplaysPerHour <= 0 || cfg.ReplaysPerDay <= 0 {
		return nil, fmt.Errorf("replay quotas must be positive, got %d/h %d/day", cfg.ReplaysPerHour, cfg.ReplaysPerDay)
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("replay_dir", cfg.ReplayDir).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Bool("delete_parsed", cfg.DeleteParsed).
		Bool("archive_enabled", cfg.ArchiveBucket != "").
		Int("replays_per_hour", cfg.ReplaysPerHour).
		Int("replays_per_day", cfg.ReplaysPerDay).
		Dur("cache_ttl", cfg.CacheTTL).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
