package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/MGMAppDev/soccerview-sub008/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// TeamRepository handles team database operations. Teams are created by the
// ingestion pipeline; this service only reads cohort attributes and owns the
// rating columns.
type TeamRepository struct {
	db *Database
}

const teamColumns = `
	id::text, team_name, birth_year, gender, state,
	elo_rating, matches_played, wins, losses, draws,
	elo_national_rank, elo_state_rank, external_national_rank,
	created_at, updated_at
`

func scanTeam(row pgx.Row, team *models.Team) error {
	return row.Scan(
		&team.ID, &team.Name, &team.BirthYear, &team.Gender, &team.State,
		&team.EloRating, &team.MatchesPlayed, &team.Wins, &team.Losses, &team.Draws,
		&team.NationalRank, &team.StateRank, &team.ExternalRank,
		&team.CreatedAt, &team.UpdatedAt,
	)
}

// Upsert inserts or updates a team's identity and cohort attributes.
// Rating columns are left untouched on conflict.
func (r *TeamRepository) Upsert(ctx context.Context, team *models.Team) error {
	query := `
		INSERT INTO teams (id, team_name, birth_year, gender, state, external_national_rank)
		VALUES ($1::uuid, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			team_name = EXCLUDED.team_name,
			birth_year = EXCLUDED.birth_year,
			gender = EXCLUDED.gender,
			state = EXCLUDED.state,
			external_national_rank = EXCLUDED.external_national_rank,
			updated_at = NOW()
		RETURNING elo_rating, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(
		ctx, query,
		team.ID, team.Name, team.BirthYear, team.Gender, team.State, team.ExternalRank,
	).Scan(&team.EloRating, &team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert team: %w", err)
	}

	log.Debug().Str("team_id", team.ID).Str("name", team.Name).Msg("Team upserted")
	return nil
}

// GetByID retrieves a team by its ID
func (r *TeamRepository) GetByID(ctx context.Context, id string) (*models.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = $1::uuid`

	var team models.Team
	err := scanTeam(r.db.Pool.QueryRow(ctx, query, id), &team)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("team %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}

	return &team, nil
}

// ListIDs returns the ID of every known team in ascending order
func (r *TeamRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id::text FROM teams ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list team ids: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("error iterating team ids: %w", err)
	}

	return ids, nil
}

// ListCohorts returns the cohort attributes of every team
func (r *TeamRepository) ListCohorts(ctx context.Context) (map[string]models.Cohort, error) {
	query := `SELECT id::text, birth_year, gender, state FROM teams`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list cohorts: %w", err)
	}
	defer rows.Close()

	cohorts := make(map[string]models.Cohort)
	for rows.Next() {
		var team models.Team
		if err := rows.Scan(&team.ID, &team.BirthYear, &team.Gender, &team.State); err != nil {
			return nil, fmt.Errorf("failed to scan cohort: %w", err)
		}
		cohorts[team.ID] = team.Cohort()
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cohorts: %w", err)
	}

	return cohorts, nil
}

// Count returns the total number of teams
func (r *TeamRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM teams`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count teams: %w", err)
	}

	return count, nil
}
