package searcher

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/KRuddra/codefourrag/pkg/types"
)

// Relevance adjustments applied after fusion
const (
	homeJurisdiction = "WI"

	jurisdictionBoost   = 0.05
	jurisdictionPenalty = 0.03
	currentBoost        = 0.03
	outdatedPenalty     = 0.05
	recentYearBoost     = 0.02
	oldYearPenalty      = 0.03
	departmentBoost     = 0.05

	recentYears = 2
	oldYears    = 10
)

// nowFunc is replaced in tests
var nowFunc = time.Now

// Boost adjusts a fused score for jurisdiction, currency and department
// and returns the reasons for each adjustment. The result is never negative.
func Boost(c *types.Chunk, base float64, filters types.Filters) (float64, []string) {
	score := base
	var reasons []string

	if c.Jurisdiction != "" {
		if strings.EqualFold(c.Jurisdiction, homeJurisdiction) {
			score += jurisdictionBoost
			reasons = append(reasons, "WI jurisdiction boost (+0.05)")
		} else {
			score -= jurisdictionPenalty
			reasons = append(reasons, "Non-WI jurisdiction penalty (-0.03)")
		}
	}

	switch {
	case c.IsCurrent != nil && *c.IsCurrent:
		score += currentBoost
		reasons = append(reasons, "Current document boost (+0.03)")
	case c.IsCurrent != nil:
		score -= outdatedPenalty
		reasons = append(reasons, "Outdated document penalty (-0.05)")
	default:
		if year, ok := parseYear(c.Date); ok {
			current := nowFunc().Year()
			if year >= current-recentYears {
				score += recentYearBoost
				reasons = append(reasons, fmt.Sprintf("Recent date (%s) boost (+0.02)", c.Date))
			} else if year < current-oldYears {
				score -= oldYearPenalty
				reasons = append(reasons, fmt.Sprintf("Old date (%s) penalty (-0.03)", c.Date))
			}
		}
	}

	if dept := filters["department"]; dept != "" && c.DocType == types.DocPolicy &&
		c.Department != "" && strings.EqualFold(c.Department, dept) {
		score += departmentBoost
		reasons = append(reasons, fmt.Sprintf("Department policy match (%s) boost (+0.05)", dept))
	}

	return max(0, score), reasons
}

// parseYear accepts only a bare four-digit year
func parseYear(date string) (int, bool) {
	if len(date) != 4 {
		return 0, false
	}
	for i := 0; i < len(date); i++ {
		if date[i] < '0' || date[i] > '9' {
			return 0, false
		}
	}
	year, err := strconv.Atoi(date)
	return year, err == nil
}
