package models

import (
	"database/sql"
	"strings"
	"time"
)

// DefaultRating is the universal starting rating for every team without a
// division seed.
const DefaultRating = 1500.0

// Team represents a youth soccer team together with the rating fields owned
// by the recalculation engine
type Team struct {
	ID            string         `db:"id"`
	Name          string         `db:"team_name"`
	BirthYear     sql.NullInt32  `db:"birth_year"`
	Gender        sql.NullString `db:"gender"`
	State         sql.NullString `db:"state"`
	EloRating     float64        `db:"elo_rating"`
	MatchesPlayed int            `db:"matches_played"`
	Wins          int            `db:"wins"`
	Losses        int            `db:"losses"`
	Draws         int            `db:"draws"`
	NationalRank  sql.NullInt32  `db:"elo_national_rank"`
	StateRank     sql.NullInt32  `db:"elo_state_rank"`
	ExternalRank  sql.NullInt32  `db:"external_national_rank"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

// Cohort is the partition key that makes ranks comparable among like teams.
// A zero BirthYear or empty Gender means the team has no national cohort;
// an empty State means it has no regional cohort.
type Cohort struct {
	BirthYear int    `json:"birth_year"`
	Gender    string `json:"gender"`
	State     string `json:"state,omitempty"`
}

// Cohort extracts the team's cohort attributes
func (t *Team) Cohort() Cohort {
	c := Cohort{}
	if t.BirthYear.Valid {
		c.BirthYear = int(t.BirthYear.Int32)
	}
	if t.Gender.Valid {
		c.Gender = t.Gender.String
	}
	if t.State.Valid {
		c.State = NormalizeState(t.State.String)
	}
	return c
}

// NormalizeState canonicalizes a state code so regional partitions and
// regional lookups agree regardless of how the code was stored
func NormalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}

// HasNational reports whether the cohort can be placed in a national partition
func (c Cohort) HasNational() bool {
	return c.BirthYear > 0 && c.Gender != ""
}

// HasRegional reports whether the cohort can be placed in a regional partition
func (c Cohort) HasRegional() bool {
	return c.HasNational() && c.State != ""
}

// TeamRating is one row of persisted rating output written by a recalculation
type TeamRating struct {
	TeamID        string        `db:"id" json:"team_id"`
	Rating        float64       `db:"elo_rating" json:"rating"`
	Wins          int           `db:"wins" json:"wins"`
	Losses        int           `db:"losses" json:"losses"`
	Draws         int           `db:"draws" json:"draws"`
	MatchesPlayed int           `db:"matches_played" json:"matches_played"`
	NationalRank  sql.NullInt32 `db:"elo_national_rank" json:"-"`
	RegionalRank  sql.NullInt32 `db:"elo_state_rank" json:"-"`
}

// TeamWithRanks is the current rating state of a team as read back for
// snapshot capture
type TeamWithRanks struct {
	TeamID        string
	Rating        float64
	MatchesPlayed int
	NationalRank  sql.NullInt32
	RegionalRank  sql.NullInt32
	ExternalRank  sql.NullInt32
}

// Snapshottable reports whether the team belongs in the snapshot ledger:
// it either has a known external rank or has played at least one match.
func (t *TeamWithRanks) Snapshottable() bool {
	return t.ExternalRank.Valid || t.MatchesPlayed > 0
}
