package rating

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MGMAppDev/soccerview-sub008/internal/models"

	"github.com/rs/zerolog/log"
)

var (
	// ErrSeasonWindowMissing is returned when no season window was supplied
	ErrSeasonWindowMissing = errors.New("season window is not configured")

	// ErrSeasonWindowInvalid is returned when the window ends before it starts
	ErrSeasonWindowInvalid = errors.New("season window ends before it starts")
)

// Window bounds the matches that count toward a season. Both ends are
// inclusive calendar days in UTC.
type Window struct {
	Start time.Time
	End   time.Time
}

// Validate checks that both bounds are set and ordered
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return ErrSeasonWindowMissing
	}
	if models.DateOnly(w.End).Before(models.DateOnly(w.Start)) {
		return fmt.Errorf("%w: start=%s end=%s", ErrSeasonWindowInvalid,
			w.Start.Format(time.DateOnly), w.End.Format(time.DateOnly))
	}
	return nil
}

// Contains reports whether the calendar day of t falls inside the window
func (w Window) Contains(t time.Time) bool {
	day := models.DateOnly(t)
	return !day.Before(models.DateOnly(w.Start)) && !day.After(models.DateOnly(w.End))
}

// TeamResult is a team's rating and record after a replay
type TeamResult struct {
	Rating        float64 `json:"rating"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	Draws         int     `json:"draws"`
	MatchesPlayed int     `json:"matches_played"`
}

// ReplayStats counts what happened to each match record during a replay
type ReplayStats struct {
	Considered          int `json:"considered"`
	Applied             int `json:"applied"`
	OutOfWindow         int `json:"out_of_window"`
	SkippedMissingTeam  int `json:"skipped_missing_team"`
	SkippedUnknownTeam  int `json:"skipped_unknown_team"`
	SkippedMissingScore int `json:"skipped_missing_score"`
	SkippedSelfMatch    int `json:"skipped_self_match"`
	Seeded              int `json:"seeded"`
}

// Skipped returns the number of malformed records that were dropped
func (s ReplayStats) Skipped() int {
	return s.SkippedMissingTeam + s.SkippedUnknownTeam + s.SkippedMissingScore + s.SkippedSelfMatch
}

// ReplayInput is everything a season replay depends on.
//
// Roster lists the known teams. A match referencing a team outside the roster
// is skipped. When Roster is empty every referenced team is treated as known.
type ReplayInput struct {
	Roster    []string
	Matches   []models.Match
	Standings []models.DivisionStanding
	Window    Window
}

// ReplayResult holds the teams that played at least one eligible match
type ReplayResult struct {
	Teams map[string]TeamResult
	Stats ReplayStats
}

// replayState is the rating and record cache of a single replay. It is never
// shared between invocations.
type replayState struct {
	teams  map[string]*TeamResult
	strict bool
}

func newReplayState(roster []string) *replayState {
	s := &replayState{
		teams:  make(map[string]*TeamResult, len(roster)),
		strict: len(roster) > 0,
	}
	for _, id := range roster {
		s.teams[id] = &TeamResult{Rating: models.DefaultRating}
	}
	return s
}

func (s *replayState) known(id string) bool {
	if !s.strict {
		return true
	}
	_, ok := s.teams[id]
	return ok
}

func (s *replayState) team(id string) *TeamResult {
	tr, ok := s.teams[id]
	if !ok {
		tr = &TeamResult{Rating: models.DefaultRating}
		s.teams[id] = tr
	}
	return tr
}

// ReplaySeason recomputes every team's rating from scratch.
//
// All teams start at DefaultRating with zeroed records, division seeds are
// applied, and eligible matches inside the window are folded in ascending
// date order (ties by match ID, then input order). Malformed records are
// skipped and counted; they never abort the replay. Teams that played no
// eligible match are left out of the result.
func ReplaySeason(in ReplayInput) (*ReplayResult, error) {
	if err := in.Window.Validate(); err != nil {
		return nil, err
	}

	state := newReplayState(in.Roster)
	stats := ReplayStats{}

	for teamID, seed := range ComputeSeeds(in.Standings) {
		if !state.known(teamID) {
			continue
		}
		state.team(teamID).Rating = seed
		stats.Seeded++
	}

	eligible := make([]models.Match, 0, len(in.Matches))
	for _, m := range in.Matches {
		stats.Considered++

		if !in.Window.Contains(m.MatchDate) {
			stats.OutOfWindow++
			continue
		}
		if !m.HasTeams() {
			stats.SkippedMissingTeam++
			log.Debug().Int64("match_id", m.ID).Msg("Skipping match with missing team reference")
			continue
		}
		if m.HomeTeamID.String == m.AwayTeamID.String {
			stats.SkippedSelfMatch++
			log.Debug().Int64("match_id", m.ID).Str("team_id", m.HomeTeamID.String).Msg("Skipping match of a team against itself")
			continue
		}
		if !state.known(m.HomeTeamID.String) || !state.known(m.AwayTeamID.String) {
			stats.SkippedUnknownTeam++
			log.Debug().
				Int64("match_id", m.ID).
				Str("home_team_id", m.HomeTeamID.String).
				Str("away_team_id", m.AwayTeamID.String).
				Msg("Skipping match with unresolved team")
			continue
		}
		if !m.HasScores() || m.HomeScore.Int32 < 0 || m.AwayScore.Int32 < 0 {
			stats.SkippedMissingScore++
			log.Debug().Int64("match_id", m.ID).Msg("Skipping match without a valid score")
			continue
		}
		eligible = append(eligible, m)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if !a.MatchDate.Equal(b.MatchDate) {
			return a.MatchDate.Before(b.MatchDate)
		}
		return a.ID < b.ID
	})

	for i := range eligible {
		m := &eligible[i]
		home := state.team(m.HomeTeamID.String)
		away := state.team(m.AwayTeamID.String)

		newHome, newAway, outcome := ApplyMatch(home.Rating, away.Rating, int(m.HomeScore.Int32), int(m.AwayScore.Int32))
		home.Rating = newHome
		away.Rating = newAway
		home.MatchesPlayed++
		away.MatchesPlayed++

		switch outcome {
		case HomeWin:
			home.Wins++
			away.Losses++
		case AwayWin:
			home.Losses++
			away.Wins++
		default:
			home.Draws++
			away.Draws++
		}
		stats.Applied++
	}

	result := &ReplayResult{
		Teams: make(map[string]TeamResult),
		Stats: stats,
	}
	for id, tr := range state.teams {
		if tr.MatchesPlayed == 0 {
			continue
		}
		result.Teams[id] = *tr
	}

	return result, nil
}
