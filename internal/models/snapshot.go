package models

import (
	"database/sql"
	"time"
)

// RatingSnapshot is a point-in-time entry of the rank history ledger.
// There is at most one snapshot per (TeamID, SnapshotDate).
type RatingSnapshot struct {
	TeamID       string        `db:"team_id"`
	SnapshotDate time.Time     `db:"snapshot_date"`
	Rating       float64       `db:"elo_rating"`
	NationalRank sql.NullInt32 `db:"elo_national_rank"`
	RegionalRank sql.NullInt32 `db:"elo_state_rank"`
	ExternalRank sql.NullInt32 `db:"external_national_rank"`
	CreatedAt    time.Time     `db:"created_at"`
}

// SnapshotFrom builds the ledger entry for a team on the given date.
// The date is truncated to a UTC calendar day.
func SnapshotFrom(t *TeamWithRanks, asOf time.Time) RatingSnapshot {
	return RatingSnapshot{
		TeamID:       t.TeamID,
		SnapshotDate: DateOnly(asOf),
		Rating:       t.Rating,
		NationalRank: t.NationalRank,
		RegionalRank: t.RegionalRank,
		ExternalRank: t.ExternalRank,
	}
}

// DateOnly truncates a timestamp to midnight UTC of its calendar day
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
