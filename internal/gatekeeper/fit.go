package gatekeeper

import (
	"math"
	"strings"

	"github.com/jonathan/job-evaluator/internal/types"
)

// FitPercentage aggregates classified gap items into a 0-100 score. Each item
// contributes its weight (1 when absent) times the weight of its
// classification; the sum is normalized over the total item weight. An item
// weighted 0 does not count. An empty or weightless requirement set scores 100.
func FitPercentage(w Weights, gaps []types.GapItem) float64 {
	var earned, total float64
	for _, g := range gaps {
		weight := itemWeight(g)
		if weight == 0 {
			continue
		}
		total += weight
		earned += weight * classWeight(w, g.Classification)
	}
	if total == 0 {
		return 100
	}
	pct := 100 * earned / total
	return clamp(roundTo(pct, 2), 0, 100)
}

// Band maps a fit percentage onto the configured thresholds
func Band(t Thresholds, fit float64) string {
	switch {
	case fit >= t.ExcellentFloor:
		return BandExcellent
	case fit >= t.GoodFloor:
		return BandGood
	case fit >= t.RejectCeiling:
		return BandFair
	default:
		return BandPoor
	}
}

func itemWeight(g types.GapItem) float64 {
	if g.Weight == nil {
		return 1
	}
	v := *g.Weight
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 1
	}
	return v
}

func classWeight(w Weights, classification string) float64 {
	switch strings.ToLower(strings.TrimSpace(classification)) {
	case types.ClassificationMet:
		return w.Met
	case types.ClassificationPartial:
		return w.Partial
	default:
		return w.Missing
	}
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
