// Package api serves read-only rankings and rating history over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MGMAppDev/soccerview-sub008/internal/cache"
	"github.com/MGMAppDev/soccerview-sub008/internal/metrics"
	"github.com/MGMAppDev/soccerview-sub008/internal/models"
	"github.com/MGMAppDev/soccerview-sub008/internal/recalc"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	defaultHistoryLimit = 30
	maxHistoryLimit     = 366
	requestTimeout      = 10 * time.Second
)

// RankingStore reads cohort leaderboards
type RankingStore interface {
	Leaderboard(ctx context.Context, q models.LeaderboardQuery) ([]models.LeaderboardEntry, error)
}

// HistoryStore reads the rank history ledger
type HistoryStore interface {
	History(ctx context.Context, teamID string, limit int) ([]models.RatingSnapshot, error)
}

// HealthChecker reports whether the backing store is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Cache is the optional read-through cache
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetStatus(ctx context.Context, job string, dest interface{}) error
}

// Deps are the collaborators of the HTTP handlers. Cache may be nil.
type Deps struct {
	Rankings RankingStore
	History  HistoryStore
	Health   HealthChecker
	Cache    Cache
	CacheTTL time.Duration
}

type handler struct {
	Deps
}

// Router builds the HTTP routes
func Router(deps Deps) http.Handler {
	h := &handler{Deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Get("/rankings/national", h.rankings(false))
		r.Get("/rankings/regional", h.rankings(true))
		r.Get("/teams/{id}/history", h.history)
		r.Get("/status", h.status)
	})

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.Health.Health(r.Context()); err != nil {
		log.Warn().Err(err).Msg("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

func (h *handler) rankings(regional bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseLeaderboardQuery(r, regional)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		ctx := r.Context()
		key := cache.LeaderboardPrefix + q.CacheKey()

		if h.Cache != nil {
			var cached []models.LeaderboardEntry
			err := h.Cache.GetJSON(ctx, key, &cached)
			if err == nil {
				writeJSON(w, http.StatusOK, leaderboardResponse(q, cached, true))
				return
			}
			if !errors.Is(err, cache.ErrMiss) {
				log.Warn().Err(err).Str("key", key).Msg("Leaderboard cache read failed")
			}
		}

		entries, err := h.Rankings.Leaderboard(ctx, q)
		if err != nil {
			log.Error().Err(err).Str("scope", q.Scope()).Msg("Failed to load leaderboard")
			metrics.RecordError("api", "leaderboard")
			writeError(w, http.StatusInternalServerError, errors.New("failed to load leaderboard"))
			return
		}

		if h.Cache != nil {
			if err := h.Cache.SetJSON(ctx, key, entries, h.CacheTTL); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("Leaderboard cache write failed")
			}
		}

		writeJSON(w, http.StatusOK, leaderboardResponse(q, entries, false))
	}
}

func leaderboardResponse(q models.LeaderboardQuery, entries []models.LeaderboardEntry, cached bool) map[string]any {
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}
	resp := map[string]any{
		"scope":      q.Scope(),
		"birth_year": q.BirthYear,
		"gender":     q.Gender,
		"cached":     cached,
		"rows":       entries,
	}
	if q.Regional() {
		resp["state"] = q.State
	}
	return resp
}

func parseLeaderboardQuery(r *http.Request, regional bool) (models.LeaderboardQuery, error) {
	v := r.URL.Query()
	q := models.LeaderboardQuery{}

	by, err := strconv.Atoi(v.Get("birth_year"))
	if err != nil || by <= 0 {
		return q, errors.New("birth_year must be a positive integer")
	}
	q.BirthYear = by

	q.Gender = strings.TrimSpace(v.Get("gender"))
	if q.Gender == "" {
		return q, errors.New("gender is required")
	}

	if regional {
		q.State = models.NormalizeState(v.Get("state"))
		if q.State == "" {
			return q, errors.New("state is required")
		}
	}

	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return q, errors.New("limit must be a positive integer")
		}
		q.Limit = n
	}
	q.Limit = q.EffectiveLimit()

	return q, nil
}

type historyRow struct {
	Date         string  `json:"date"`
	Rating       float64 `json:"rating"`
	NationalRank *int32  `json:"national_rank"`
	RegionalRank *int32  `json:"regional_rank"`
	ExternalRank *int32  `json:"external_rank"`
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("team id must be a UUID"))
		return
	}

	limit := defaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	snapshots, err := h.History.History(r.Context(), id, limit)
	if err != nil {
		log.Error().Err(err).Str("team_id", id).Msg("Failed to load rank history")
		metrics.RecordError("api", "history")
		writeError(w, http.StatusInternalServerError, errors.New("failed to load history"))
		return
	}

	rows := make([]historyRow, 0, len(snapshots))
	for _, s := range snapshots {
		rows = append(rows, historyRow{
			Date:         s.SnapshotDate.Format(time.DateOnly),
			Rating:       s.Rating,
			NationalRank: nullableRank(s.NationalRank.Int32, s.NationalRank.Valid),
			RegionalRank: nullableRank(s.RegionalRank.Int32, s.RegionalRank.Valid),
			ExternalRank: nullableRank(s.ExternalRank.Int32, s.ExternalRank.Valid),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"team_id": id, "rows": rows})
}

func nullableRank(v int32, ok bool) *int32 {
	if !ok {
		return nil
	}
	return &v
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	if h.Cache == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("status is unavailable without a cache"))
		return
	}

	resp := map[string]any{}
	for _, job := range []string{recalc.JobRecalc, recalc.JobSnapshot} {
		var raw json.RawMessage
		err := h.Cache.GetStatus(r.Context(), job, &raw)
		switch {
		case err == nil:
			resp[job] = raw
		case errors.Is(err, cache.ErrMiss):
			resp[job] = nil
		default:
			log.Warn().Err(err).Str("job", job).Msg("Failed to read job status")
			resp[job] = nil
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
