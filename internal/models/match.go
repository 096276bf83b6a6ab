package models

import (
	"database/sql"
	"time"
)

// Match is an immutable historical result. ID is the ingestion sequence and
// breaks ties between matches played on the same date.
type Match struct {
	ID         int64          `db:"id"`
	HomeTeamID sql.NullString `db:"home_team_id"`
	AwayTeamID sql.NullString `db:"away_team_id"`
	HomeScore  sql.NullInt32  `db:"home_score"`
	AwayScore  sql.NullInt32  `db:"away_score"`
	MatchDate  time.Time      `db:"match_date"`
	LeagueID   sql.NullString `db:"league_id"`
}

// HasTeams returns true if both team references are present
func (m *Match) HasTeams() bool {
	return m.HomeTeamID.Valid && m.HomeTeamID.String != "" &&
		m.AwayTeamID.Valid && m.AwayTeamID.String != ""
}

// HasScores returns true if both scores are present
func (m *Match) HasScores() bool {
	return m.HomeScore.Valid && m.AwayScore.Valid
}

// DivisionStanding places a team in a free-text division of a league. It is
// only used to seed ratings before a replay.
type DivisionStanding struct {
	TeamID        string `db:"team_id"`
	LeagueID      string `db:"league_id"`
	DivisionLabel string `db:"division"`
}
