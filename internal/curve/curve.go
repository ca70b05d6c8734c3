package curve

import "math"

// Formula selects how per-level XP increments grow.
type Formula string

const (
	FormulaDefault     Formula = "default"
	FormulaLinear      Formula = "linear"
	FormulaExponential Formula = "exponential"
	FormulaLogarithmic Formula = "logarithmic"
)

const (
	linearBase      = 100
	exponentialBase = 100
	exponentialRate = 1.1
	logarithmicBase = 500
)

func ParseFormula(value string) Formula {
	switch Formula(value) {
	case FormulaLinear, FormulaExponential, FormulaLogarithmic:
		return Formula(value)
	default:
		return FormulaDefault
	}
}

// Generate builds the cumulative XP threshold table, indexed by level.
// curve[0] is always 0 and the sequence is strictly increasing.
func Generate(maxLevel int, formula Formula) []int64 {
	if maxLevel < 1 {
		maxLevel = 1
	}
	table := make([]int64, 0, maxLevel+1)
	table = append(table, 0)

	switch formula {
	case FormulaLinear:
		for level := 1; level <= maxLevel; level++ {
			table = append(table, table[level-1]+linearBase)
		}
	case FormulaExponential:
		for level := 1; level <= maxLevel; level++ {
			step := int64(exponentialBase * math.Pow(exponentialRate, float64(level-1)))
			if step < 1 {
				step = 1
			}
			table = append(table, table[level-1]+step)
		}
	case FormulaLogarithmic:
		for level := 1; level <= maxLevel; level++ {
			step := int64(logarithmicBase * math.Log(float64(level+1)))
			if step < 1 {
				step = 1
			}
			table = append(table, table[level-1]+step)
		}
	default:
		for level := 1; level <= maxLevel; level++ {
			l := int64(level)
			table = append(table, 100*l+50*l*(l-1))
		}
	}
	return table
}

// LevelForXP returns the greatest level whose threshold is at or below xp.
func LevelForXP(xp int64, table []int64) int {
	for level, required := range table {
		if xp < required {
			if level == 0 {
				return 0
			}
			return level - 1
		}
	}
	return len(table) - 1
}

// XPForLevel returns the cumulative threshold for a level, clamping
// out-of-range levels to the last defined threshold.
func XPForLevel(level int, table []int64) int64 {
	if len(table) == 0 {
		return 0
	}
	if level < 0 {
		return 0
	}
	if level >= len(table) {
		return table[len(table)-1]
	}
	return table[level]
}

// Progress reports position within the current level band:
// XP still needed, XP earned inside the band, and the band size.
// All zero at or beyond the max level.
func Progress(xp int64, level int, table []int64) (needed, earned, span int64) {
	if level < 0 || level >= len(table)-1 {
		return 0, 0, 0
	}
	floor := table[level]
	ceil := table[level+1]
	earned = xp - floor
	span = ceil - floor
	needed = span - earned
	return needed, earned, span
}
