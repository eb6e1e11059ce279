package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/config"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/constants"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/metrics"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

const listingBreakerName = "w3c-listing"

// W3CClient talks to the W3Champions website backend: the paced match listing
// and the quota-bound replay download endpoint.
type W3CClient struct {
	baseURL   string
	apiKey    string
	userAgent string

	listing *fasthttp.Client
	replays *fasthttp.Client
	pacer   *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*MatchesResponse]
	logger  zerolog.Logger
}

func NewW3CClient(cfg *config.Config, logger zerolog.Logger) *W3CClient {
	return newW3CClient(cfg.W3CBaseURL, cfg.W3CReplaysAPIKey, cfg.UserAgent, constants.DirectoryRequestEvery, logger)
}

func newW3CClient(baseURL, apiKey, userAgent string, every time.Duration, logger zerolog.Logger) *W3CClient {
	c := &W3CClient{
		baseURL:   baseURL,
		apiKey:    apiKey,
		userAgent: userAgent,
		listing:   newFastHTTPClient(constants.ExternalAPITimeout),
		replays:   newFastHTTPClient(constants.ReplayDownloadTimeout),
		pacer:     rate.NewLimiter(rate.Every(every), 1),
		logger:    logger,
	}

	metrics.CircuitBreakerState.WithLabelValues(listingBreakerName).Set(0)

	c.breaker = gobreaker.NewCircuitBreaker[*MatchesResponse](gobreaker.Settings{
		Name:        listingBreakerName,
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// a rejected page says nothing about the listing being down
			return err == nil || errors.Is(err, context.Canceled) || StatusCode(err) == fasthttp.StatusBadRequest
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return c
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// ListMatches returns one page of the listing, newest first.
func (c *W3CClient) ListMatches(ctx context.Context, gameMode, offset, limit int) (*MatchesResponse, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("gameMode", strconv.Itoa(gameMode))
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))
	u := fmt.Sprintf("%s/api/matches?%s", c.baseURL, query.Encode())

	return c.breaker.Execute(func() (*MatchesResponse, error) {
		return doRequest[MatchesResponse](ctx, c.listing, u, map[string]string{
			"User-Agent": c.userAgent,
		})
	})
}

// DownloadReplay fetches the raw replay file of a match. Quota is the caller's concern.
func (c *W3CClient) DownloadReplay(ctx context.Context, matchID string) ([]byte, error) {
	u := fmt.Sprintf("%s/api/replays/%s", c.baseURL, url.PathEscape(matchID))
	return doRaw(ctx, c.replays, u, map[string]string{
		"User-Agent":  c.userAgent,
		"X-API-Token": c.apiKey,
	})
}

type MatchesResponse struct {
	Count   int        `json:"count"`
	Matches []W3CMatch `json:"matches"`
}

type W3CMatch struct {
	ID       string    `json:"id"`
	EndTime  time.Time `json:"endTime"`
	Season   int       `json:"season"`
	GameMode int       `json:"gameMode"`
	Teams    []W3CTeam `json:"teams"`
}

type W3CTeam struct {
	Players []W3CPlayer `json:"players"`
}

type W3CPlayer struct {
	BattleTag      string  `json:"battleTag"`
	OldMmr         float64 `json:"oldMmr"`
	OldMmrQuantile float64 `json:"oldMmrQuantile"`
	CurrentMmr     float64 `json:"currentMmr"`
}
