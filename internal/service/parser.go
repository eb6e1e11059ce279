package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/cache"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/config"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/constants"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/domain"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/gamedata"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/interpreter"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/lookup"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/metrics"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/replay"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/repository"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/storage"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// ErrBadMap means the replay names no usable map.
var ErrBadMap = errors.New("bad map name")

// MappingError means the map version has no usable game data yet.
type MappingError struct {
	MapID   int64
	MapName string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("no game data mapping for map %s (%d)", e.MapName, e.MapID)
}

type MappingSource interface {
	GetMapping(ctx context.Context, dataKey string) (*domain.GameDataMapping, error)
}

// MapVersionTag tags cached data derived from one map version.
func MapVersionTag(id int64) string {
	return "mapversion:" + strconv.FormatInt(id, 10)
}

type ParserService struct {
	decoder      replay.Decoder
	mappings     MappingSource
	processRepo  *repository.ProcessRepository
	mapRepo      *repository.MapVersionRepository
	matchRepo    *repository.MatchRepository
	externalRepo *repository.ExternalMatchRepository
	store        *storage.ReplayStore
	archive      *storage.Archive
	cache        *cache.Cache
	clock        clockwork.Clock
	deleteParsed bool
	logger       zerolog.Logger
}

// ParserDeps collects the collaborators of ParserService.
type ParserDeps struct {
	fx.In

	Decoder      replay.Decoder
	Mappings     MappingSource
	ProcessRepo  *repository.ProcessRepository
	MapRepo      *repository.MapVersionRepository
	MatchRepo    *repository.MatchRepository
	ExternalRepo *repository.ExternalMatchRepository
	Store        *storage.ReplayStore
	Archive      *storage.Archive
	Cache        *cache.Cache
	Clock        clockwork.Clock
}

func NewParserService(deps ParserDeps, cfg *config.Config, logger zerolog.Logger) *ParserService {
	return &ParserService{
		decoder:      deps.Decoder,
		mappings:     deps.Mappings,
		processRepo:  deps.ProcessRepo,
		mapRepo:      deps.MapRepo,
		matchRepo:    deps.MatchRepo,
		externalRepo: deps.ExternalRepo,
		store:        deps.Store,
		archive:      deps.Archive,
		cache:        deps.Cache,
		clock:        deps.Clock,
		deleteParsed: cfg.DeleteParsed,
		logger:       logger,
	}
}

// ParsePending parses eligible records in batches until none are left or the
// per-run cap is reached. Returns how many replays produced a match.
func (s *ParserService) ParsePending(ctx context.Context) (int, error) {
	attempted := make(map[string]bool)
	parsed := 0

	for len(attempted) < constants.ParseRunLimit {
		batch, err := s.processRepo.ParseCandidates(ctx, constants.ParseBatchSize)
		if err != nil {
			return parsed, fmt.Errorf("failed to list parse candidates: %w", err)
		}

		fresh := 0
		for _, rec := range batch {
			if attempted[rec.ID] {
				continue
			}
			attempted[rec.ID] = true
			fresh++

			if s.processRecord(ctx, rec) {
				parsed++
			}
			if err := ctx.Err(); err != nil {
				return parsed, err
			}
		}

		// what is left failed unexpectedly this run and waits for the next one
		if fresh == 0 {
			break
		}
	}

	if parsed > 0 {
		s.logger.Info().Int("parsed", parsed).Int("attempted", len(attempted)).Msg("replays parsed")
	}
	return parsed, nil
}

// processRecord handles one record and classifies its failure. Reports whether
// a match was stored.
func (s *ParserService) processRecord(ctx context.Context, rec domain.ProcessingRecord) bool {
	log := s.logger.With().Str("process_id", rec.ID).Str("file", rec.FilePath).Logger()

	exists, err := s.store.Exists(rec.FilePath)
	if err != nil {
		log.Error().Err(err).Msg("failed to check replay file")
		metrics.ReplaysParsed.WithLabelValues("error").Inc()
		return false
	}
	if !exists {
		if err := s.processRepo.Remove(ctx, rec.ID); err != nil {
			log.Error().Err(err).Msg("failed to drop record of missing replay")
		} else {
			log.Warn().Msg("replay file is missing, record dropped")
			s.cache.Invalidate(TagStatus)
		}
		metrics.ReplaysParsed.WithLabelValues("missing_file").Inc()
		return false
	}

	parseCtx, cancel := context.WithTimeout(ctx, constants.ParseTimeout)
	defer cancel()

	season, err := s.parse(parseCtx, rec)

	var mappingErr *MappingError
	switch {
	case err == nil:
		metrics.ReplaysParsed.WithLabelValues("ok").Inc()
		log.Debug().Msg("replay parsed")
		s.finish(ctx, rec, season, log)
		return true

	case parseCtx.Err() != nil:
		log.Error().Err(err).Msg("replay parsing timed out")

	case errors.Is(err, ErrBadMap):
		log.Error().Msg("bad map")
		s.fail(ctx, rec, domain.ProcessErrorBadMap, nil, log)
		s.removeFile(rec.FilePath, log)
		return false

	case errors.As(err, &mappingErr):
		log.Warn().Str("map", mappingErr.MapName).Msg("missing mapping for map")
		s.fail(ctx, rec, domain.ProcessErrorNoMapping, &mappingErr.MapID, log)
		return false

	case errors.Is(err, interpreter.ErrParsing), errors.Is(err, replay.ErrMalformed):
		log.Error().Err(err).Msg("parsing error")
		s.fail(ctx, rec, domain.ProcessErrorParsingError, nil, log)
		s.removeFile(rec.FilePath, log)
		return false

	case errors.Is(err, replay.ErrDecoderFailed):
		log.Error().Err(err).Msg("replay decoder failed")

	default:
		log.Error().Err(err).Msg("unhandled parser error")
	}

	metrics.ReplaysParsed.WithLabelValues("error").Inc()
	return false
}

func (s *ParserService) fail(ctx context.Context, rec domain.ProcessingRecord, kind domain.ProcessError, mapID *int64, log zerolog.Logger) {
	metrics.ReplaysParsed.WithLabelValues(string(kind)).Inc()
	if err := s.processRepo.SetMappingError(ctx, rec.ID, kind, mapID); err != nil {
		log.Error().Err(err).Str("mapping_error", string(kind)).Msg("failed to record mapping error")
		return
	}
	s.cache.Invalidate(TagStatus)
}

// parse interprets the replay of rec and stores the match. Returns the season
// of the linked external match.
func (s *ParserService) parse(ctx context.Context, rec domain.ProcessingRecord) (string, error) {
	r, err := s.decoder.Decode(ctx, s.store.Path(rec.FilePath))
	if err != nil {
		return "", err
	}
	closeStream := func() {
		if err := r.Blocks.Close(); err != nil {
			s.logger.Debug().Err(err).Str("file", rec.FilePath).Msg("decoder stopped")
		}
	}

	mapName := r.Metadata.MapFileName()
	if mapName == "" {
		closeStream()
		return "", ErrBadMap
	}

	version, err := s.mapRepo.Ensure(ctx, mapName)
	if err != nil {
		closeStream()
		return "", err
	}
	if err := s.processRepo.SetMap(ctx, rec.ID, version.ID); err != nil {
		closeStream()
		return "", fmt.Errorf("failed to link map version: %w", err)
	}

	if version.DataKey == "" || version.MapType == "" {
		closeStream()
		return "", &MappingError{MapID: version.ID, MapName: mapName}
	}

	mapping, err := s.mappings.GetMapping(ctx, version.DataKey)
	if errors.Is(err, gamedata.ErrMappingNotFound) {
		closeStream()
		return "", &MappingError{MapID: version.ID, MapName: mapName}
	}
	if err != nil {
		closeStream()
		return "", err
	}

	idx, err := lookup.Cached(ctx, s.cache, version.DataKey, mapping)
	if err != nil {
		closeStream()
		return "", err
	}

	family := interpreter.ParseFamily(version.MapType)
	result, err := interpreter.New(family, mapping, idx, s.logger).Run(ctx, r)
	if err != nil {
		return "", err
	}

	external, err := s.externalRepo.GetByProcess(ctx, rec.ID)
	if err != nil {
		return "", fmt.Errorf("failed to load external match: %w", err)
	}

	match, players := s.buildMatch(rec, version, result, external)
	if err := s.matchRepo.Save(ctx, match, players); err != nil {
		return "", err
	}

	s.cache.Invalidate(MapVersionTag(version.ID), TagStatus)
	return match.Season, nil
}

func (s *ParserService) buildMatch(rec domain.ProcessingRecord, version *domain.MapVersion, result *interpreter.Result, external *domain.ExternalMatch) (*domain.Match, []domain.Player) {
	match := &domain.Match{
		MapProcessID: rec.ID,
		MapID:        version.ID,
		Platform:     rec.Platform,
		Duration:     result.Duration,
		EndAt:        s.clock.Now().UTC(),
	}

	enrichment := make(map[string]domain.ExternalPlayer)
	if external != nil {
		match.Season = external.Season
		match.EndAt = external.EndTime
		for _, p := range external.Players {
			enrichment[p.Name] = p
		}
	}

	players := make([]domain.Player, 0, len(result.Players))
	var sumMMR, sumQuantile float64
	enriched := 0

	for _, p := range result.Players {
		player := domain.Player{
			Name:       p.Name,
			RaceID:     p.Race,
			BonusID:    optional(p.Bonus),
			AuraID:     optional(p.Aura),
			UltimateID: optional(p.Ultimate),
			Place:      p.Place,
			TimeAlive:  p.Time,
			Events:     p.Events,
		}
		if ep, ok := enrichment[p.Name]; ok {
			mmr, quantile := ep.MMR, ep.Quantile
			player.MMR = &mmr
			player.Quantile = &quantile
			sumMMR += mmr
			sumQuantile += quantile
			enriched++
		}
		players = append(players, player)
	}

	if enriched > 0 {
		avgMMR := sumMMR / float64(enriched)
		avgQuantile := sumQuantile / float64(enriched)
		match.AvgMMR = &avgMMR
		match.AvgQuantile = &avgQuantile
	}
	match.HasLeavers = hasLeavers(result.Players)

	return match, players
}

// hasLeavers flags short-handed matches and players who dropped out before the
// late game or never reached the second fort tier.
func hasLeavers(players []interpreter.PlayerResult) bool {
	if len(players) < constants.ExpectedPlayers {
		return true
	}
	for _, p := range players {
		if p.Time < constants.LeaverTimeThreshold || !p.HasEvent(domain.EventUpFort2) {
			return true
		}
	}
	return false
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// finish archives and removes the local replay after a successful parse.
// Failures here are logged only, the match is already stored.
func (s *ParserService) finish(ctx context.Context, rec domain.ProcessingRecord, season string, log zerolog.Logger) {
	if s.archive.Enabled() {
		data, err := s.store.Read(rec.FilePath)
		if err == nil {
			err = s.archive.Put(ctx, storage.Key(season, rec.FilePath), data)
		}
		if err != nil {
			log.Warn().Err(err).Msg("failed to archive replay")
			return
		}
	}
	s.removeFile(rec.FilePath, log)
}

func (s *ParserService) removeFile(name string, log zerolog.Logger) {
	if !s.deleteParsed {
		return
	}
	if err := s.store.Remove(name); err != nil {
		log.Warn().Err(err).Msg("failed to remove replay file")
		return
	}
	log.Debug().Msg("replay file removed")
}
