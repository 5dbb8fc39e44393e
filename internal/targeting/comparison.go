package targeting

import (
	"fmt"
	"math"
)

// Comparison expresses an ordering test as an inclusive bound on the sign of a
// three-way comparison between an observed value and a target value.
type Comparison struct {
	min int
	max int
}

var (
	// LT matches when observed < target.
	LT = Comparison{min: math.MinInt, max: -1}
	// GT matches when observed > target.
	GT = Comparison{min: 1, max: math.MaxInt}
	// EQ matches when observed == target.
	EQ = Comparison{min: 0, max: 0}
)

// comparisonNames maps wire names to Comparison values. The set is closed.
var comparisonNames = map[string]Comparison{
	"LT": LT,
	"GT": GT,
	"EQ": EQ,
}

// ParseComparison resolves a stored comparison name. The boolean reports
// whether the name is recognized.
func ParseComparison(name string) (Comparison, bool) {
	c, ok := comparisonNames[name]
	return c, ok
}

// Matches reports whether the ordering of observed relative to target falls
// within the comparison's inclusive sign range.
func (c Comparison) Matches(observed, target int) bool {
	s := compareInts(observed, target)
	return s >= c.min && s <= c.max
}

// String returns the wire name for the comparison.
func (c Comparison) String() string {
	switch c {
	case LT:
		return "LT"
	case GT:
		return "GT"
	case EQ:
		return "EQ"
	default:
		return fmt.Sprintf("Comparison[%d,%d]", c.min, c.max)
	}
}

// compareInts is a three-way compare returning -1, 0 or 1. Subtraction is not
// used because observed-target can overflow.
func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
