package repository

import (
	"context"
	"fmt"

	"github.com/MGMAppDev/soccerview-sub008/internal/models"

	"github.com/jackc/pgx/v5"
)

// StandingRepository handles division standings used for seeding
type StandingRepository struct {
	db *Database
}

// Upsert records a team's division label within a league
func (r *StandingRepository) Upsert(ctx context.Context, s *models.DivisionStanding) error {
	query := `
		INSERT INTO league_standings (team_id, league_id, division)
		VALUES ($1::uuid, $2, $3)
		ON CONFLICT (team_id, league_id) DO UPDATE SET
			division = EXCLUDED.division,
			updated_at = NOW()
	`

	if _, err := r.db.Pool.Exec(ctx, query, s.TeamID, s.LeagueID, s.DivisionLabel); err != nil {
		return fmt.Errorf("failed to upsert standing: %w", err)
	}

	return nil
}

// List returns every standing with a team reference
func (r *StandingRepository) List(ctx context.Context) ([]models.DivisionStanding, error) {
	query := `
		SELECT team_id::text, league_id, COALESCE(division, '')
		FROM league_standings
		WHERE team_id IS NOT NULL
		ORDER BY league_id, team_id
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list standings: %w", err)
	}

	standings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.DivisionStanding, error) {
		var s models.DivisionStanding
		err := row.Scan(&s.TeamID, &s.LeagueID, &s.DivisionLabel)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating standings: %w", err)
	}

	return standings, nil
}
