package analysis

import "math"

// RatingCategory buckets titles by their site-wide average score. Expected
// baselines differ sharply between a 9.1-rated classic and a 7.6 mid-tier
// show, so every baseline lookup goes through the category first.
type RatingCategory string

const (
	CategoryElite     RatingCategory = "elite"
	CategoryExcellent RatingCategory = "excellent"
	CategoryGreat     RatingCategory = "great"
	CategoryGood      RatingCategory = "good"
	CategoryAverage   RatingCategory = "average"
)

// RatingCategoryFor maps an average score to its rating category.
func RatingCategoryFor(avgScore float64) RatingCategory {
	switch {
	case avgScore >= 9.0:
		return CategoryElite
	case avgScore >= 8.5:
		return CategoryExcellent
	case avgScore >= 8.0:
		return CategoryGreat
	case avgScore >= 7.5:
		return CategoryGood
	default:
		return CategoryAverage
	}
}

// expectedDistributions holds the empirical baseline histogram per rating
// category, derived from large samples of organically rated titles.
var expectedDistributions = map[RatingCategory]map[int]float64{
	CategoryElite: {
		1: 0.4, 2: 0.3, 3: 0.5, 4: 1.0, 5: 2.0,
		6: 5.0, 7: 12.0, 8: 25.0, 9: 30.0, 10: 23.8,
	},
	CategoryExcellent: {
		1: 0.7, 2: 0.5, 3: 0.8, 4: 1.5, 5: 3.0,
		6: 7.0, 7: 15.0, 8: 28.0, 9: 27.0, 10: 16.5,
	},
	CategoryGreat: {
		1: 1.2, 2: 0.8, 3: 1.2, 4: 2.5, 5: 5.0,
		6: 10.0, 7: 20.0, 8: 30.0, 9: 20.0, 10: 9.3,
	},
	CategoryGood: {
		1: 2.0, 2: 1.5, 3: 2.0, 4: 4.0, 5: 8.0,
		6: 15.0, 7: 25.0, 8: 25.0, 9: 12.0, 10: 5.5,
	},
	CategoryAverage: {
		1: 4.0, 2: 3.0, 3: 4.0, 4: 7.0, 5: 12.0,
		6: 20.0, 7: 25.0, 8: 15.0, 9: 7.0, 10: 3.0,
	},
}

// ExpectedDistribution returns a copy of the baseline histogram for the
// category an average score falls into.
func ExpectedDistribution(avgScore float64) map[int]float64 {
	src := expectedDistributions[RatingCategoryFor(avgScore)]
	out := make(map[int]float64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// ExpectedOnes is the per-category baseline for the share of 1-votes.
// MaxNatural is the ceiling plausibly reachable without coordination.
type ExpectedOnes struct {
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	MaxNatural float64 `json:"max_natural"`
}

// OnesZScore computes a one-sided z-score for the observed share of 1-votes
// against the category baseline. Shares at or below the baseline mean return
// 0; only the excess is anomalous. A zero std also returns 0.
func OnesZScore(onesPct, avgScore float64, baselines map[RatingCategory]ExpectedOnes) float64 {
	baseline, ok := baselines[RatingCategoryFor(avgScore)]
	if !ok {
		baseline = baselines[CategoryGood]
	}
	if baseline.Std == 0 {
		return 0
	}
	z := (onesPct - baseline.Mean) / baseline.Std
	if z < 0 {
		return 0
	}
	return z
}

// SpikeRatio is the ratio of 1-vote share to 2-vote share. Organic negative
// sentiment spreads across 1s and 2s; vote dumps pile on the 1 bucket alone.
// When the 2s share is negligible (< 0.1%) the ratio is taken as ones x 5,
// or 0 when there are no 1s either.
func SpikeRatio(dist map[int]float64) float64 {
	ones := dist[1]
	twos := dist[2]
	if twos < 0.1 {
		if ones > 0 {
			return ones * 5
		}
		return 0
	}
	return ones / twos
}

// EffectSize measures the overall deviation of an observed distribution from
// its expected shape: RMSE across the 10 buckets, scaled by the std of the
// expected distribution (Cohen's d analogue). Falls back to RMSE/10 when the
// expected distribution is degenerate.
func EffectSize(observed, expected map[int]float64) float64 {
	var sumSq float64
	for score := 1; score <= 10; score++ {
		d := observed[score] - expected[score]
		sumSq += d * d
	}
	rmse := math.Sqrt(sumSq / 10)

	expStd := Std(expected)
	if expStd == 0 {
		return rmse / 10
	}
	return rmse / expStd
}

// InterpretEffectSize maps an effect size onto the conventional Cohen's d
// labels.
func InterpretEffectSize(d float64) string {
	switch {
	case d >= 0.8:
		return "large"
	case d >= 0.5:
		return "medium"
	case d >= 0.2:
		return "small"
	default:
		return "negligible"
	}
}

// PValueForZ maps a z-score to an approximate one-sided p-value using fixed
// critical values. Coarse on purpose: downstream only needs significance
// buckets, not exact tail probabilities.
func PValueForZ(z float64) float64 {
	switch {
	case z >= 2.58:
		return 0.01
	case z >= 1.96:
		return 0.05
	case z >= 1.65:
		return 0.10
	default:
		return 0.50
	}
}

// SignificanceLabel names the significance bucket for a p-value.
func SignificanceLabel(p float64) string {
	switch {
	case p < 0.001:
		return "highly_significant"
	case p < 0.01:
		return "very_significant"
	case p < 0.05:
		return "significant"
	case p < 0.10:
		return "marginally_significant"
	default:
		return "not_significant"
	}
}
