package rating

import (
	"database/sql"
	"sort"

	"github.com/MGMAppDev/soccerview-sub008/internal/models"
)

// RankInput is what the rank resolver needs to know about a team
type RankInput struct {
	Rating        float64
	MatchesPlayed int
	Cohort        models.Cohort
}

// Ranks holds a team's ordinal positions. Zero means unranked.
type Ranks struct {
	National int `json:"national_rank,omitempty"`
	Regional int `json:"regional_rank,omitempty"`
}

// NationalRank returns the national rank as a nullable column value
func (r Ranks) NationalRank() sql.NullInt32 {
	return nullRank(r.National)
}

// RegionalRank returns the regional rank as a nullable column value
func (r Ranks) RegionalRank() sql.NullInt32 {
	return nullRank(r.Regional)
}

func nullRank(rank int) sql.NullInt32 {
	if rank <= 0 {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(rank), Valid: true}
}

type nationalKey struct {
	birthYear int
	gender    string
}

type regionalKey struct {
	birthYear int
	gender    string
	state     string
}

type ranked struct {
	teamID string
	rating float64
}

// ComputeRanks assigns row-number ranks within national (birth year, gender)
// and regional (birth year, gender, state) partitions.
//
// Only teams that played at least one match take part. Rank 1 is the highest
// rating. Equal ratings get distinct consecutive ranks ordered by team ID, so
// the result is a pure function of the input. Teams without a national
// cohort are not ranked, and teams without a state get no regional rank.
// Every input team appears in the output, unranked teams with zero Ranks.
func ComputeRanks(teams map[string]RankInput) map[string]Ranks {
	national := make(map[nationalKey][]ranked)
	regional := make(map[regionalKey][]ranked)

	for id, t := range teams {
		if t.MatchesPlayed <= 0 || !t.Cohort.HasNational() {
			continue
		}
		entry := ranked{teamID: id, rating: t.Rating}
		nk := nationalKey{birthYear: t.Cohort.BirthYear, gender: t.Cohort.Gender}
		national[nk] = append(national[nk], entry)

		if t.Cohort.HasRegional() {
			rk := regionalKey{birthYear: t.Cohort.BirthYear, gender: t.Cohort.Gender, state: t.Cohort.State}
			regional[rk] = append(regional[rk], entry)
		}
	}

	out := make(map[string]Ranks, len(teams))
	for id := range teams {
		out[id] = Ranks{}
	}

	for _, partition := range national {
		orderPartition(partition)
		for i, e := range partition {
			r := out[e.teamID]
			r.National = i + 1
			out[e.teamID] = r
		}
	}
	for _, partition := range regional {
		orderPartition(partition)
		for i, e := range partition {
			r := out[e.teamID]
			r.Regional = i + 1
			out[e.teamID] = r
		}
	}

	return out
}

func orderPartition(p []ranked) {
	sort.Slice(p, func(i, j int) bool {
		if p[i].rating != p[j].rating {
			return p[i].rating > p[j].rating
		}
		return p[i].teamID < p[j].teamID
	})
}

// BuildRatings merges replay results and ranks into persisted rating rows,
// ordered by team ID
func BuildRatings(results map[string]TeamResult, ranks map[string]Ranks) []models.TeamRating {
	rows := make([]models.TeamRating, 0, len(results))
	for id, tr := range results {
		r := ranks[id]
		rows = append(rows, models.TeamRating{
			TeamID:        id,
			Rating:        tr.Rating,
			Wins:          tr.Wins,
			Losses:        tr.Losses,
			Draws:         tr.Draws,
			MatchesPlayed: tr.MatchesPlayed,
			NationalRank:  r.NationalRank(),
			RegionalRank:  r.RegionalRank(),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].TeamID < rows[j].TeamID })
	return rows
}
