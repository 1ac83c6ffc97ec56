package shape

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
)

// Quality selects a vertex budget for imported boundaries. Some imported
// administrative boundaries carry tens of thousands of points; anything but
// QualityLossless runs them through SimplifyToBudget at import time.
type Quality string

const (
	QualityLossless Quality = "lossless"
	QualityHigh     Quality = "high"
	QualityMedium   Quality = "medium"
	QualityLow      Quality = "low"
	QualityMinimal  Quality = "minimal"
)

// DefaultBudgets maps each lossy quality tier to its vertex budget.
// Overridable via config.
var DefaultBudgets = map[Quality]int{
	QualityHigh:    8000,
	QualityMedium:  3000,
	QualityLow:     1000,
	QualityMinimal: 300,
}

const (
	// maxSimplifyTolerance bounds the Douglas-Peucker tolerance search.
	// One degree is heavy simplification for any real boundary.
	maxSimplifyTolerance = 1.0

	// simplifyIterations is the fixed binary-search budget. The search
	// terminates after this many iterations whether or not it converged.
	simplifyIterations = 20

	// simplifySkipFactor: inputs under skipFactor*budget points are left
	// alone, simplification would buy little there.
	simplifySkipFactor = 5
)

// SimplifyQuality simplifies geometry according to a quality tier.
// QualityLossless (or an unknown tier) returns the input untouched.
func SimplifyQuality(g orb.Geometry, q Quality, budgets map[Quality]int) (orb.Geometry, error) {
	if q == QualityLossless || q == "" {
		return g, nil
	}
	if budgets == nil {
		budgets = DefaultBudgets
	}
	budget, ok := budgets[q]
	if !ok {
		return g, nil
	}
	return SimplifyToBudget(g, budget)
}

// SimplifyToBudget reduces the total vertex count of g to roughly budget
// while minimizing visual distortion. It binary-searches the Douglas-Peucker
// tolerance in [0, maxSimplifyTolerance] for simplifyIterations rounds,
// keeping the candidate whose vertex count lands closest to the budget. The
// budget is a target, not a cap: Douglas-Peucker removes the vertices of a
// smooth boundary in coarse jumps, so the closest reachable count can sit on
// either side of it.
//
// The landing point is best-effort, not exact: non-convergence within the
// iteration budget degrades gracefully to the best tolerance found. The
// output always has the same geometry type and ring count as the input, and
// never more vertices. Inputs under simplifySkipFactor*budget points are
// returned as an untouched copy.
func SimplifyToBudget(g orb.Geometry, budget int) (orb.Geometry, error) {
	if err := CheckFinite(g); err != nil {
		return nil, fmt.Errorf("simplify: %w", err)
	}
	if budget <= 0 {
		return nil, fmt.Errorf("simplify: budget must be positive, got %d", budget)
	}
	if CountPoints(g) < simplifySkipFactor*budget {
		return orb.Clone(g), nil
	}

	lo, hi := 0.0, maxSimplifyTolerance
	var best orb.Geometry
	var bestDiff int

	for i := 0; i < simplifyIterations; i++ {
		mid := (lo + hi) / 2
		candidate := simplify.DouglasPeucker(mid).Simplify(orb.Clone(g))
		count := CountPoints(candidate)

		if count > budget {
			lo = mid
		} else {
			hi = mid
		}

		// Very large tolerances can collapse whole rings; those candidates
		// are never kept because the ring count contract would break.
		if !sameRingStructure(g, candidate) {
			continue
		}
		diff := count - budget
		if diff < 0 {
			diff = -diff
		}
		if best == nil || diff < bestDiff {
			best, bestDiff = candidate, diff
		}
	}

	if best == nil {
		// Every candidate the search visited collapsed a ring. Accept the
		// heaviest structure-preserving result rather than failing the
		// import.
		best = simplify.DouglasPeucker(lo).Simplify(orb.Clone(g))
		if !sameRingStructure(g, best) {
			best = orb.Clone(g)
		}
	}
	return best, nil
}

// sameRingStructure reports whether b kept a's geometry type and ring counts.
func sameRingStructure(a, b orb.Geometry) bool {
	switch ga := a.(type) {
	case orb.Polygon:
		gb, ok := b.(orb.Polygon)
		return ok && len(ga) == len(gb)
	case orb.MultiPolygon:
		gb, ok := b.(orb.MultiPolygon)
		if !ok || len(ga) != len(gb) {
			return false
		}
		for i := range ga {
			if len(ga[i]) != len(gb[i]) {
				return false
			}
		}
		return true
	default:
		return a.GeoJSONType() == b.GeoJSONType()
	}
}
