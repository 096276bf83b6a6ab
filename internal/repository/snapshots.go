package repository

import (
	"context"
	"fmt"

	"github.com/MGMAppDev/soccerview-sub008/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// SnapshotRepository handles the rank history ledger
type SnapshotRepository struct {
	db *Database
}

// UpsertSnapshots writes one page of snapshots in a single transaction.
// A second capture on the same day overwrites the earlier row.
func (r *SnapshotRepository) UpsertSnapshots(ctx context.Context, snapshots []models.RatingSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO rank_history (
			team_id, snapshot_date, elo_rating,
			elo_national_rank, elo_state_rank, external_national_rank
		) VALUES ($1::uuid, $2, $3, $4, $5, $6)
		ON CONFLICT (team_id, snapshot_date) DO UPDATE SET
			elo_rating = EXCLUDED.elo_rating,
			elo_national_rank = EXCLUDED.elo_national_rank,
			elo_state_rank = EXCLUDED.elo_state_rank,
			external_national_rank = EXCLUDED.external_national_rank
	`

	batch := &pgx.Batch{}
	for i := range snapshots {
		s := &snapshots[i]
		batch.Queue(query,
			s.TeamID, models.DateOnly(s.SnapshotDate), s.Rating,
			s.NationalRank, s.RegionalRank, s.ExternalRank,
		)
	}

	if err := sendBatch(ctx, tx, batch); err != nil {
		return fmt.Errorf("failed to upsert snapshots: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing snapshots: %w", err)
	}

	log.Debug().Int("count", len(snapshots)).Msg("Snapshot page upserted")
	return nil
}

// History returns a team's most recent snapshots, newest first
func (r *SnapshotRepository) History(ctx context.Context, teamID string, limit int) ([]models.RatingSnapshot, error) {
	query := `
		SELECT team_id::text, snapshot_date, elo_rating,
		       elo_national_rank, elo_state_rank, external_national_rank, created_at
		FROM rank_history
		WHERE team_id = $1::uuid
		ORDER BY snapshot_date DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, teamID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot history: %w", err)
	}

	history, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.RatingSnapshot, error) {
		var s models.RatingSnapshot
		err := row.Scan(&s.TeamID, &s.SnapshotDate, &s.Rating,
			&s.NationalRank, &s.RegionalRank, &s.ExternalRank, &s.CreatedAt)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating snapshot history: %w", err)
	}

	return history, nil
}
