package rating

import (
	"sort"

	"github.com/MGMAppDev/soccerview-sub008/internal/models"
)

// SeedStep is the rating offset per tier step away from a league's median tier
const SeedStep = 15.0

// ComputeSeeds derives starting ratings from division standings.
//
// Standings are grouped by league. Within a league the distinct parseable
// tiers are sorted and the element at index n/2 is the median tier. Each
// team seeds at DefaultRating + (median - tier) * SeedStep. Leagues without
// a parseable tier produce no seeds and unparseable labels are dropped.
//
// Leagues are processed in ascending league ID order and the first seed
// assigned to a team wins, so a team listed in several leagues or several
// times in one league gets a reproducible seed.
func ComputeSeeds(standings []models.DivisionStanding) map[string]float64 {
	type placement struct {
		teamID string
		tier   int
	}

	byLeague := make(map[string][]placement)
	for _, s := range standings {
		if s.TeamID == "" {
			continue
		}
		tier, ok := ExtractTier(s.DivisionLabel)
		if !ok {
			continue
		}
		byLeague[s.LeagueID] = append(byLeague[s.LeagueID], placement{teamID: s.TeamID, tier: tier})
	}

	leagues := make([]string, 0, len(byLeague))
	for league := range byLeague {
		leagues = append(leagues, league)
	}
	sort.Strings(leagues)

	seeds := make(map[string]float64)
	for _, league := range leagues {
		placements := byLeague[league]

		tiers := make([]int, 0, len(placements))
		for _, p := range placements {
			tiers = append(tiers, p.tier)
		}
		median, ok := MedianTier(tiers)
		if !ok {
			continue
		}

		for _, p := range placements {
			if _, seeded := seeds[p.teamID]; seeded {
				continue
			}
			seeds[p.teamID] = SeedFor(median, p.tier)
		}
	}

	return seeds
}

// MedianTier returns the element at index n/2 of the sorted distinct tiers.
// For an even number of tiers this is the upper of the two middle elements;
// values are never averaged.
func MedianTier(tiers []int) (int, bool) {
	seen := make(map[int]struct{}, len(tiers))
	distinct := make([]int, 0, len(tiers))
	for _, t := range tiers {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		distinct = append(distinct, t)
	}
	if len(distinct) == 0 {
		return 0, false
	}
	sort.Ints(distinct)
	return distinct[len(distinct)/2], true
}

// SeedFor returns the starting rating of a team in tier within a league
// whose median tier is median
func SeedFor(median, tier int) float64 {
	return models.DefaultRating + float64(median-tier)*SeedStep
}
