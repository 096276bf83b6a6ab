package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/MGMAppDev/soccerview-sub008/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// RatingRepository owns the rating columns of the teams table
type RatingRepository struct {
	db *Database
}

// RatingReplace is an open destructive rewrite of every team's rating.
// Nothing it writes is visible to other sessions until Commit.
type RatingReplace struct {
	tx    pgx.Tx
	reset int64
}

// BeginReplace opens a transaction and resets every team's rating columns to
// their defaults inside it
func (r *RatingRepository) BeginReplace(ctx context.Context) (*RatingReplace, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin rating replace: %w", err)
	}

	query := `
		UPDATE teams SET
			elo_rating = $1,
			matches_played = 0,
			wins = 0,
			losses = 0,
			draws = 0,
			elo_national_rank = NULL,
			elo_state_rank = NULL,
			updated_at = NOW()
	`

	tag, err := tx.Exec(ctx, query, models.DefaultRating)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("failed to reset ratings: %w", err)
	}

	log.Debug().Int64("teams_reset", tag.RowsAffected()).Msg("Ratings reset inside replace transaction")

	return &RatingReplace{tx: tx, reset: tag.RowsAffected()}, nil
}

// Reset returns the number of team rows reset when the replace began
func (rr *RatingReplace) Reset() int64 {
	return rr.reset
}

// WritePage writes one page of ratings inside its own savepoint. On failure
// the page is rolled back to the savepoint and the outer transaction stays
// usable for the next page.
func (rr *RatingReplace) WritePage(ctx context.Context, page []models.TeamRating) error {
	sp, err := rr.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to open savepoint: %w", err)
	}

	query := `
		UPDATE teams SET
			elo_rating = $2,
			matches_played = $3,
			wins = $4,
			losses = $5,
			draws = $6,
			elo_national_rank = $7,
			elo_state_rank = $8,
			updated_at = NOW()
		WHERE id = $1::uuid
	`

	batch := &pgx.Batch{}
	for i := range page {
		row := &page[i]
		batch.Queue(query,
			row.TeamID, row.Rating, row.MatchesPlayed, row.Wins, row.Losses, row.Draws,
			row.NationalRank, row.RegionalRank,
		)
	}

	err = sendBatch(ctx, sp, batch)
	if err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return errors.Join(fmt.Errorf("failed to write rating page: %w", err), rbErr)
		}
		return fmt.Errorf("failed to write rating page: %w", err)
	}

	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}

	return nil
}

// Commit makes the replaced ratings visible
func (rr *RatingReplace) Commit(ctx context.Context) error {
	if err := rr.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit ratings: %w", err)
	}
	return nil
}

// Rollback discards the replace. Safe to call after Commit.
func (rr *RatingReplace) Rollback(ctx context.Context) error {
	err := rr.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to roll back ratings: %w", err)
	}
	return nil
}

// ListTeamsPage returns up to limit teams with IDs strictly after afterID,
// in ID order. An empty afterID starts from the beginning.
func (r *RatingRepository) ListTeamsPage(ctx context.Context, afterID string, limit int) ([]models.TeamWithRanks, error) {
	var (
		rows pgx.Rows
		err  error
	)

	if afterID == "" {
		rows, err = r.db.Pool.Query(ctx, `
			SELECT id::text, elo_rating, matches_played, elo_national_rank, elo_state_rank, external_national_rank
			FROM teams
			ORDER BY id
			LIMIT $1
		`, limit)
	} else {
		rows, err = r.db.Pool.Query(ctx, `
			SELECT id::text, elo_rating, matches_played, elo_national_rank, elo_state_rank, external_national_rank
			FROM teams
			WHERE id > $1::uuid
			ORDER BY id
			LIMIT $2
		`, afterID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list teams page: %w", err)
	}

	teams, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.TeamWithRanks, error) {
		var t models.TeamWithRanks
		err := row.Scan(&t.TeamID, &t.Rating, &t.MatchesPlayed, &t.NationalRank, &t.RegionalRank, &t.ExternalRank)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating teams page: %w", err)
	}

	return teams, nil
}

// Leaderboard returns the ranked teams of one national or regional cohort
func (r *RatingRepository) Leaderboard(ctx context.Context, q models.LeaderboardQuery) ([]models.LeaderboardEntry, error) {
	var (
		rows pgx.Rows
		err  error
	)

	if q.Regional() {
		rows, err = r.db.Pool.Query(ctx, `
			SELECT elo_state_rank, id::text, team_name, COALESCE(state, ''),
			       elo_rating, matches_played, wins, losses, draws
			FROM teams
			WHERE birth_year = $1 AND gender = $2 AND upper(btrim(state)) = $3
			  AND elo_state_rank IS NOT NULL
			ORDER BY elo_state_rank
			LIMIT $4
		`, q.BirthYear, q.Gender, models.NormalizeState(q.State), q.EffectiveLimit())
	} else {
		rows, err = r.db.Pool.Query(ctx, `
			SELECT elo_national_rank, id::text, team_name, COALESCE(state, ''),
			       elo_rating, matches_played, wins, losses, draws
			FROM teams
			WHERE birth_year = $1 AND gender = $2
			  AND elo_national_rank IS NOT NULL
			ORDER BY elo_national_rank
			LIMIT $3
		`, q.BirthYear, q.Gender, q.EffectiveLimit())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s leaderboard: %w", q.Scope(), err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.LeaderboardEntry, error) {
		var e models.LeaderboardEntry
		err := row.Scan(&e.Rank, &e.TeamID, &e.TeamName, &e.State,
			&e.Rating, &e.MatchesPlayed, &e.Wins, &e.Losses, &e.Draws)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}

	return entries, nil
}

// sendBatch runs every queued statement and surfaces the first failure
func sendBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("statement %d: %w", i, err)
		}
	}
	return br.Close()
}
