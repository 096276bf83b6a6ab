package models

import "fmt"

// DefaultLeaderboardLimit caps a leaderboard page when no limit is given
const DefaultLeaderboardLimit = 100

// MaxLeaderboardLimit is the largest page a caller may request
const MaxLeaderboardLimit = 500

// LeaderboardQuery selects one ranked cohort. A non-empty State selects the
// regional partition, otherwise the national one.
type LeaderboardQuery struct {
	BirthYear int
	Gender    string
	State     string
	Limit     int
}

// Regional reports whether the query targets a regional partition
func (q LeaderboardQuery) Regional() bool {
	return q.State != ""
}

// Scope returns "regional" or "national"
func (q LeaderboardQuery) Scope() string {
	if q.Regional() {
		return "regional"
	}
	return "national"
}

// EffectiveLimit clamps Limit to (0, MaxLeaderboardLimit]
func (q LeaderboardQuery) EffectiveLimit() int {
	switch {
	case q.Limit <= 0:
		return DefaultLeaderboardLimit
	case q.Limit > MaxLeaderboardLimit:
		return MaxLeaderboardLimit
	default:
		return q.Limit
	}
}

// CacheKey identifies the query result within the leaderboard cache namespace
func (q LeaderboardQuery) CacheKey() string {
	return fmt.Sprintf("%s:%d:%s:%s:%d", q.Scope(), q.BirthYear, q.Gender, q.State, q.EffectiveLimit())
}

// LeaderboardEntry is one ranked row of a cohort leaderboard
type LeaderboardEntry struct {
	Rank          int     `json:"rank"`
	TeamID        string  `json:"team_id"`
	TeamName      string  `json:"team_name"`
	State         string  `json:"state,omitempty"`
	Rating        float64 `json:"rating"`
	MatchesPlayed int     `json:"matches_played"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	Draws         int     `json:"draws"`
}
