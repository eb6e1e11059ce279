package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/config"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/domain"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/middleware"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/repository"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/service"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

type Admin interface {
	Summary(ctx context.Context) (*service.Summary, error)
	ForceRedownload(ctx context.Context, platform domain.Platform, season string) (int, error)
	ResetRecords(ctx context.Context, filePaths []string) (int, error)
	RemoveFiles(ctx context.Context, names []string) (int, error)
	ListMapVersions(ctx context.Context) ([]domain.MapVersion, error)
	UpdateMapVersion(ctx context.Context, version *domain.MapVersion) (*domain.MapVersion, error)
}

type StatusServer struct {
	admin      Admin
	adminToken string
	logger     zerolog.Logger
}

func NewStatusServer(admin Admin, cfg *config.Config, logger zerolog.Logger) *StatusServer {
	return &StatusServer{admin: admin, adminToken: cfg.AdminToken, logger: logger}
}

type redownloadRequest struct {
	Platform domain.Platform `json:"platform"`
	Season   string          `json:"season"`
}

type filesRequest struct {
	Files []string `json:"files"`
}

type countResponse struct {
	Count int `json:"count"`
}

func (s *StatusServer) Handler() http.Handler {
	mux := http.NewServeMux()
	admin := middleware.AdminToken(s.adminToken)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /status", s.status)

	mux.Handle("POST /admin/redownload", admin(http.HandlerFunc(s.redownload)))
	mux.Handle("POST /admin/reset", admin(http.HandlerFunc(s.reset)))
	mux.Handle("POST /admin/files/remove", admin(http.HandlerFunc(s.removeFiles)))
	mux.Handle("GET /admin/map-versions", admin(http.HandlerFunc(s.listMapVersions)))
	mux.Handle("POST /admin/map-versions/{id}", admin(http.HandlerFunc(s.updateMapVersion)))

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	return middleware.RequestID(s.logger)(c.Handler(mux))
}

func (s *StatusServer) status(w http.ResponseWriter, r *http.Request) {
	summary, err := s.admin.Summary(r.Context())
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *StatusServer) redownload(w http.ResponseWriter, r *http.Request) {
	var req redownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}
	if req.Season == "" {
		s.fail(w, r, http.StatusBadRequest, errors.New("season is required"))
		return
	}
	if req.Platform == "" {
		req.Platform = domain.PlatformW3Champions
	}

	n, err := s.admin.ForceRedownload(r.Context(), req.Platform, req.Season)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (s *StatusServer) reset(w http.ResponseWriter, r *http.Request) {
	s.withFiles(w, r, s.admin.ResetRecords)
}

func (s *StatusServer) removeFiles(w http.ResponseWriter, r *http.Request) {
	s.withFiles(w, r, s.admin.RemoveFiles)
}

func (s *StatusServer) withFiles(w http.ResponseWriter, r *http.Request, fn func(context.Context, []string) (int, error)) {
	var req filesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}
	if len(req.Files) == 0 {
		s.fail(w, r, http.StatusBadRequest, errors.New("files are required"))
		return
	}

	n, err := fn(r.Context(), req.Files)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (s *StatusServer) listMapVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.admin.ListMapVersions(r.Context())
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	if versions == nil {
		versions = []domain.MapVersion{}
	}
	s.writeJSON(w, http.StatusOK, versions)
}

func (s *StatusServer) updateMapVersion(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}

	var version domain.MapVersion
	if err := json.NewDecoder(r.Body).Decode(&version); err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}
	version.ID = id

	updated, err := s.admin.UpdateMapVersion(r.Context(), &version)
	if errors.Is(err, repository.ErrMapVersionNotFound) {
		s.fail(w, r, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *StatusServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("failed to write response")
	}
}

func (s *StatusServer) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	log := zerolog.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	} else {
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("bad request")
	}
	s.writeJSON(w, status, map[string]string{
		"error":     err.Error(),
		"requestId": middleware.GetRequestID(r.Context()),
	})
}
