package rating

import "math"

// KFactor is the fixed learning rate of the update rule
const KFactor = 32.0

// Outcome is the result of a match from the home team's perspective
type Outcome int

const (
	HomeWin Outcome = iota
	AwayWin
	Draw
)

// String returns the outcome name used in logs
func (o Outcome) String() string {
	switch o {
	case HomeWin:
		return "home_win"
	case AwayWin:
		return "away_win"
	case Draw:
		return "draw"
	default:
		return "unknown"
	}
}

// OutcomeOf classifies a score line
func OutcomeOf(scoreHome, scoreAway int) Outcome {
	switch {
	case scoreHome > scoreAway:
		return HomeWin
	case scoreHome < scoreAway:
		return AwayWin
	default:
		return Draw
	}
}

// actual is the home team's actual score for the outcome
func (o Outcome) actual() float64 {
	switch o {
	case HomeWin:
		return 1.0
	case AwayWin:
		return 0.0
	default:
		return 0.5
	}
}

// ExpectedScore is the logistic expected score of a team rated r against an
// opponent rated opp
func ExpectedScore(r, opp float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (opp-r)/400.0))
}

// ApplyMatch computes both teams' new ratings after one match.
//
// There is no home advantage and no margin scaling: a 1-0 win moves ratings
// exactly as much as a 10-0 win. The away delta is the negated home delta so
// the exchange is exactly zero-sum.
func ApplyMatch(ratingHome, ratingAway float64, scoreHome, scoreAway int) (newHome, newAway float64, outcome Outcome) {
	outcome = OutcomeOf(scoreHome, scoreAway)
	expectedHome := ExpectedScore(ratingHome, ratingAway)

	delta := KFactor * (outcome.actual() - expectedHome)
	return ratingHome + delta, ratingAway - delta, outcome
}
