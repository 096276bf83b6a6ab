package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/MGMAppDev/soccerview-sub008/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// MatchRepository reads match history. Matches are immutable here.
type MatchRepository struct {
	db *Database
}

// Create inserts a match. Used by tests and backfills; production matches
// arrive through the ingestion pipeline.
func (r *MatchRepository) Create(ctx context.Context, match *models.Match) error {
	query := `
		INSERT INTO matches (home_team_id, away_team_id, home_score, away_score, match_date, league_id)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(
		ctx, query,
		match.HomeTeamID, match.AwayTeamID, match.HomeScore, match.AwayScore,
		match.MatchDate, match.LeagueID,
	).Scan(&match.ID)
	if err != nil {
		return fmt.Errorf("failed to create match: %w", err)
	}

	log.Debug().Int64("match_id", match.ID).Time("match_date", match.MatchDate).Msg("Match created")
	return nil
}

// ListForWindow returns every match played on a calendar day between start
// and end inclusive, ordered by date then ID. Rows with missing teams or
// scores are returned as they are.
func (r *MatchRepository) ListForWindow(ctx context.Context, start, end time.Time) ([]models.Match, error) {
	query := `
		SELECT id, home_team_id::text, away_team_id::text, home_score, away_score, match_date, league_id
		FROM matches
		WHERE match_date >= $1 AND match_date < $2
		ORDER BY match_date, id
	`

	from := models.DateOnly(start)
	until := models.DateOnly(end).AddDate(0, 0, 1)

	rows, err := r.db.Pool.Query(ctx, query, from, until)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}

	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Match, error) {
		var m models.Match
		err := row.Scan(&m.ID, &m.HomeTeamID, &m.AwayTeamID, &m.HomeScore, &m.AwayScore, &m.MatchDate, &m.LeagueID)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating matches: %w", err)
	}

	log.Debug().
		Str("from", from.Format(time.DateOnly)).
		Str("to", models.DateOnly(end).Format(time.DateOnly)).
		Int("count", len(matches)).
		Msg("Loaded matches for window")

	return matches, nil
}
