package rating

import (
	"regexp"
	"strconv"
	"strings"
)

// tierRule maps a label pattern to a tier ordinal. When ordinal is zero the
// tier is read from the first capture group instead.
type tierRule struct {
	name    string
	pattern *regexp.Regexp
	ordinal int
}

// tierRules are evaluated in order; the first match wins. Lower tier means a
// stronger competitive level.
var tierRules = []tierRule{
	// Named levels
	{name: "premier", pattern: regexp.MustCompile(`premier`), ordinal: 1},
	{name: "elite", pattern: regexp.MustCompile(`elite`), ordinal: 1},
	{name: "championship", pattern: regexp.MustCompile(`championship`), ordinal: 2},
	{name: "classic", pattern: regexp.MustCompile(`classic`), ordinal: 3},
	{name: "select", pattern: regexp.MustCompile(`select`), ordinal: 4},
	{name: "academy", pattern: regexp.MustCompile(`academy`), ordinal: 5},

	// Color ladder
	{name: "gold", pattern: regexp.MustCompile(`gold`), ordinal: 1},
	{name: "platinum", pattern: regexp.MustCompile(`platinum`), ordinal: 2},
	{name: "silver", pattern: regexp.MustCompile(`silver`), ordinal: 3},
	{name: "bronze", pattern: regexp.MustCompile(`bronze`), ordinal: 4},
	{name: "copper", pattern: regexp.MustCompile(`copper`), ordinal: 5},

	// Ordinal divisions sit one step below the named top level
	{name: "1st", pattern: regexp.MustCompile(`\b(1st|first)\b`), ordinal: 2},
	{name: "2nd", pattern: regexp.MustCompile(`\b(2nd|second)\b`), ordinal: 3},
	{name: "3rd", pattern: regexp.MustCompile(`\b(3rd|third)\b`), ordinal: 4},
	{name: "4th", pattern: regexp.MustCompile(`\b(4th|fourth)\b`), ordinal: 5},

	// Lettered flights
	{name: "flight a", pattern: regexp.MustCompile(`(^|\bflight\s*)a$|\bflight\s*a\b`), ordinal: 1},
	{name: "flight b", pattern: regexp.MustCompile(`(^|\bflight\s*)b$|\bflight\s*b\b`), ordinal: 2},
	{name: "flight c", pattern: regexp.MustCompile(`(^|\bflight\s*)c$|\bflight\s*c\b`), ordinal: 3},

	// "Division 7", "Subdivision 3", "Div. 2", "Tier 4"
	{name: "division number", pattern: regexp.MustCompile(`\b(?:subdivision|division|div|tier)\.?\s*[-#:]?\s*(\d+)`)},

	// "2a", "2 B": the letter is a sub-tier and sibling sub-tiers share a seed.
	// Only a whole label counts, so "U13 Girls 2a" stays unseeded.
	{name: "lettered sub-tier", pattern: regexp.MustCompile(`^(\d+)\s*[a-z]$`)},

	// A standalone flight letter anywhere in the label: "Division A", "U12 Boys B"
	{name: "letter a", pattern: regexp.MustCompile(`\ba\b`), ordinal: 1},
	{name: "letter b", pattern: regexp.MustCompile(`\bb\b`), ordinal: 2},
	{name: "letter c", pattern: regexp.MustCompile(`\bc\b`), ordinal: 3},

	// "7"
	{name: "bare number", pattern: regexp.MustCompile(`^(\d+)$`)},
}

// ExtractTier parses a free-text division label into a tier ordinal.
// The second return value is false when the label cannot be seeded.
func ExtractTier(label string) (int, bool) {
	normalized := strings.ToLower(strings.TrimSpace(label))
	if normalized == "" {
		return 0, false
	}

	for _, rule := range tierRules {
		m := rule.pattern.FindStringSubmatch(normalized)
		if m == nil {
			continue
		}
		if rule.ordinal > 0 {
			return rule.ordinal, true
		}
		tier, err := strconv.Atoi(m[len(m)-1])
		if err != nil {
			continue
		}
		return tier, true
	}

	return 0, false
}
