// Package recalc runs a full season recalculation against the durable store:
// load, replay, rank, flush and publish.
package recalc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MGMAppDev/soccerview-sub008/internal/batch"
	"github.com/MGMAppDev/soccerview-sub008/internal/cache"
	"github.com/MGMAppDev/soccerview-sub008/internal/metrics"
	"github.com/MGMAppDev/soccerview-sub008/internal/models"
	"github.com/MGMAppDev/soccerview-sub008/internal/rating"
	"github.com/MGMAppDev/soccerview-sub008/internal/snapshot"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// JobRecalc is the status and metrics name of a recalculation
	JobRecalc = "recalc"

	// JobSnapshot is the status and metrics name of a snapshot capture
	JobSnapshot = "snapshot"
)

// TeamSource provides the roster and cohort attributes
type TeamSource interface {
	ListIDs(ctx context.Context) ([]string, error)
	ListCohorts(ctx context.Context) (map[string]models.Cohort, error)
}

// MatchSource provides match history for a window of calendar days
type MatchSource interface {
	ListForWindow(ctx context.Context, start, end time.Time) ([]models.Match, error)
}

// StandingSource provides division standings for seeding
type StandingSource interface {
	List(ctx context.Context) ([]models.DivisionStanding, error)
}

// RatingWriter is an open destructive rewrite of persisted ratings
type RatingWriter interface {
	WritePage(ctx context.Context, page []models.TeamRating) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// RatingStore starts rating rewrites
type RatingStore interface {
	BeginReplace(ctx context.Context) (RatingWriter, error)
}

// Cache is the optional coordination and publication layer
type Cache interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, key, token string) error
	InvalidatePrefix(ctx context.Context, prefix string) (int, error)
	SetStatus(ctx context.Context, job string, status interface{}) error
}

// Stores groups the persistence collaborators of a Service
type Stores struct {
	Teams     TeamSource
	Matches   MatchSource
	Standings StandingSource
	Ratings   RatingStore
}

// Options tune a Service
type Options struct {
	Window   rating.Window
	PageSize int
	LockTTL  time.Duration

	// RequireComplete rolls back the whole flush when any page fails.
	// By default the successful pages are committed.
	RequireComplete bool
}

// WindowSummary is the season window as reported in a Summary
type WindowSummary struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Summary describes one recalculation run
type Summary struct {
	RunID            string             `json:"run_id"`
	Status           string             `json:"status"`
	Error            string             `json:"error,omitempty"`
	StartedAt        time.Time          `json:"started_at"`
	FinishedAt       time.Time          `json:"finished_at"`
	DurationMS       int64              `json:"duration_ms"`
	Window           WindowSummary      `json:"window"`
	Roster           int                `json:"roster"`
	Rated            int                `json:"rated"`
	NationallyRanked int                `json:"nationally_ranked"`
	RegionallyRanked int                `json:"regionally_ranked"`
	Replay           rating.ReplayStats `json:"replay"`
	Flush            batch.Report       `json:"flush"`
	Locked           bool               `json:"locked"`
}

// Service orchestrates recalculations and snapshot captures
type Service struct {
	stores   Stores
	cache    Cache
	recorder *snapshot.Recorder
	opts     Options
	now      func() time.Time
}

// NewService creates a recalculation service. c may be nil, in which case
// runs are not locked and nothing is published.
func NewService(stores Stores, c Cache, recorder *snapshot.Recorder, opts Options) *Service {
	if opts.PageSize <= 0 {
		opts.PageSize = batch.DefaultPageSize
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Minute
	}
	return &Service{
		stores:   stores,
		cache:    c,
		recorder: recorder,
		opts:     opts,
		now:      time.Now,
	}
}

// Recalculate rebuilds every team's rating and ranks from the match history
// of the configured season window.
//
// Previously persisted ratings stay visible until the final commit, so a
// failure before the flush leaves them untouched. Page failures during the
// flush are logged and reported; with RequireComplete they abort the run.
func (s *Service) Recalculate(ctx context.Context) (summary *Summary, err error) {
	started := s.now()
	summary = &Summary{
		RunID:     uuid.NewString(),
		StartedAt: started,
		Window: WindowSummary{
			Start: s.opts.Window.Start.Format(time.DateOnly),
			End:   s.opts.Window.End.Format(time.DateOnly),
		},
	}
	logger := log.With().Str("run_id", summary.RunID).Logger()

	defer func() {
		s.finish(ctx, &logger, summary, err)
	}()

	if err := s.opts.Window.Validate(); err != nil {
		return summary, err
	}

	if s.cache != nil {
		token, err := s.cache.AcquireLock(ctx, cache.RecalcLockKey, s.opts.LockTTL)
		switch {
		case errors.Is(err, cache.ErrLockHeld):
			return summary, err
		case err != nil:
			logger.Warn().Err(err).Msg("Could not take recalculation lock, continuing unlocked")
		default:
			summary.Locked = true
			defer func() {
				if err := s.cache.ReleaseLock(context.WithoutCancel(ctx), cache.RecalcLockKey, token); err != nil {
					logger.Warn().Err(err).Msg("Failed to release recalculation lock")
				}
			}()
		}
	}

	logger.Info().
		Str("season_start", summary.Window.Start).
		Str("season_end", summary.Window.End).
		Msg("Starting rating recalculation")

	// Load
	phase := time.Now()
	in, cohorts, err := s.load(ctx)
	if err != nil {
		return summary, err
	}
	summary.Roster = len(in.Roster)
	metrics.RecordPhase("load", time.Since(phase).Seconds())

	logger.Info().
		Int("teams", len(in.Roster)).
		Int("matches", len(in.Matches)).
		Int("standings", len(in.Standings)).
		Dur("took", time.Since(phase)).
		Msg("Loaded replay inputs")

	// Replay and rank
	phase = time.Now()
	result, err := rating.ReplaySeason(in)
	if err != nil {
		return summary, fmt.Errorf("replay failed: %w", err)
	}
	summary.Replay = result.Stats
	summary.Rated = len(result.Teams)

	rankInput := make(map[string]rating.RankInput, len(result.Teams))
	for id, tr := range result.Teams {
		rankInput[id] = rating.RankInput{
			Rating:        tr.Rating,
			MatchesPlayed: tr.MatchesPlayed,
			Cohort:        cohorts[id],
		}
	}
	ranks := rating.ComputeRanks(rankInput)
	for _, r := range ranks {
		if r.National > 0 {
			summary.NationallyRanked++
		}
		if r.Regional > 0 {
			summary.RegionallyRanked++
		}
	}
	rows := rating.BuildRatings(result.Teams, ranks)
	metrics.RecordPhase("replay", time.Since(phase).Seconds())
	metrics.RecordReplay(result.Stats.Applied, result.Stats.OutOfWindow, result.Stats.Skipped())

	logger.Info().
		Int("applied", result.Stats.Applied).
		Int("out_of_window", result.Stats.OutOfWindow).
		Int("skipped_missing_team", result.Stats.SkippedMissingTeam).
		Int("skipped_unknown_team", result.Stats.SkippedUnknownTeam).
		Int("skipped_missing_score", result.Stats.SkippedMissingScore).
		Int("skipped_self_match", result.Stats.SkippedSelfMatch).
		Int("seeded", result.Stats.Seeded).
		Int("rated", summary.Rated).
		Msg("Season replay complete")

	// Flush
	phase = time.Now()
	report, err := s.flush(ctx, rows)
	summary.Flush = report
	metrics.RecordPages("ratings", report.Pages-report.FailedPages, report.FailedPages)
	if err != nil {
		return summary, err
	}
	metrics.RecordPhase("flush", time.Since(phase).Seconds())
	metrics.UpdateRankingStats(summary.Rated, summary.NationallyRanked, summary.RegionallyRanked)

	if s.cache != nil {
		n, err := s.cache.InvalidatePrefix(ctx, cache.LeaderboardPrefix)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to invalidate cached leaderboards")
		} else {
			logger.Debug().Int("keys", n).Msg("Invalidated cached leaderboards")
		}
	}

	return summary, nil
}

func (s *Service) load(ctx context.Context) (rating.ReplayInput, map[string]models.Cohort, error) {
	in := rating.ReplayInput{Window: s.opts.Window}

	roster, err := s.stores.Teams.ListIDs(ctx)
	if err != nil {
		return in, nil, fmt.Errorf("failed to load roster: %w", err)
	}
	in.Roster = roster

	cohorts, err := s.stores.Teams.ListCohorts(ctx)
	if err != nil {
		return in, nil, fmt.Errorf("failed to load cohorts: %w", err)
	}

	matches, err := s.stores.Matches.ListForWindow(ctx, s.opts.Window.Start, s.opts.Window.End)
	if err != nil {
		return in, nil, fmt.Errorf("failed to load matches: %w", err)
	}
	in.Matches = matches

	standings, err := s.stores.Standings.List(ctx)
	if err != nil {
		return in, nil, fmt.Errorf("failed to load standings: %w", err)
	}
	in.Standings = standings

	return in, cohorts, nil
}

func (s *Service) flush(ctx context.Context, rows []models.TeamRating) (batch.Report, error) {
	writer, err := s.stores.Ratings.BeginReplace(ctx)
	if err != nil {
		return batch.Report{}, fmt.Errorf("failed to start rating flush: %w", err)
	}
	defer func() {
		if err := writer.Rollback(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("Failed to roll back rating flush")
		}
	}()

	report := batch.Write(ctx, "ratings", rows, s.opts.PageSize, writer.WritePage)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("rating flush interrupted: %w", err)
	}
	if !report.Complete() && s.opts.RequireComplete {
		return report, fmt.Errorf("rating flush incomplete, rolled back: %w", report.Err())
	}

	if err := writer.Commit(ctx); err != nil {
		return report, err
	}

	if !report.Complete() {
		return report, fmt.Errorf("rating flush partially committed: %w", report.Err())
	}
	return report, nil
}

// finish records the outcome of a run in logs, metrics and the status cache
func (s *Service) finish(ctx context.Context, logger *zerolog.Logger, summary *Summary, err error) {
	summary.FinishedAt = s.now()
	summary.DurationMS = summary.FinishedAt.Sub(summary.StartedAt).Milliseconds()

	status := "success"
	switch {
	case errors.Is(err, cache.ErrLockHeld):
		status = "skipped"
	case err != nil:
		status = "error"
	}
	summary.Status = status
	if err != nil {
		summary.Error = err.Error()
	}

	metrics.RecordRun(JobRecalc, status, summary.FinishedAt.Sub(summary.StartedAt).Seconds())

	event := logger.Info()
	if status == "error" {
		event = logger.Error().Err(err)
		metrics.RecordError(JobRecalc, "run_failed")
	}
	event.
		Str("status", status).
		Int("rated", summary.Rated).
		Int("written", summary.Flush.Written).
		Int("failed_pages", summary.Flush.FailedPages).
		Int64("duration_ms", summary.DurationMS).
		Msg("Rating recalculation finished")

	// A skipped run must not overwrite the status of the run holding the lock
	if s.cache != nil && status != "skipped" {
		if err := s.cache.SetStatus(context.WithoutCancel(ctx), JobRecalc, summary); err != nil {
			logger.Warn().Err(err).Msg("Failed to store recalculation status")
		}
	}
}

// CaptureSnapshot records the rank history ledger for the calendar day of asOf
func (s *Service) CaptureSnapshot(ctx context.Context, asOf time.Time) (*snapshot.Result, error) {
	if s.recorder == nil {
		return nil, errors.New("snapshot recorder is not configured")
	}

	started := time.Now()
	result, err := s.recorder.Capture(ctx, asOf)

	status := "success"
	if err != nil {
		status = "error"
		metrics.RecordError(JobSnapshot, "capture_failed")
	}
	metrics.RecordRun(JobSnapshot, status, time.Since(started).Seconds())
	if result != nil {
		metrics.RecordSnapshotRows(result.Report.Written)
		metrics.RecordPages("snapshots", result.Report.Pages-result.Report.FailedPages, result.Report.FailedPages)

		if s.cache != nil {
			if err := s.cache.SetStatus(context.WithoutCancel(ctx), JobSnapshot, result); err != nil {
				log.Warn().Err(err).Msg("Failed to store snapshot status")
			}
		}
	}

	return result, err
}
