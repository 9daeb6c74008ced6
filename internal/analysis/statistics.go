package analysis

import (
	"math"
	"sort"
)

// maxEntropy is the entropy of a uniform 10-bucket distribution, used to
// normalize Shannon entropy into [0, 1].
var maxEntropy = math.Log2(10)

// Mean computes the weighted mean score of a percentage distribution.
func Mean(dist map[int]float64) float64 {
	var total, weighted float64
	for score, pct := range dist {
		total += pct
		weighted += float64(score) * pct
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// Std computes the weighted standard deviation of a percentage distribution.
func Std(dist map[int]float64) float64 {
	var total float64
	for _, pct := range dist {
		total += pct
	}
	if total == 0 {
		return 0
	}
	mean := Mean(dist)
	var variance float64
	for score, pct := range dist {
		d := float64(score) - mean
		variance += pct * d * d
	}
	return math.Sqrt(variance / total)
}

// Median computes the weighted median score: the smallest score at which
// cumulative vote share reaches 50%. Distributions that never reach 50%
// (empty or partial) fall back to the scale midpoint.
func Median(dist map[int]float64) float64 {
	var cum float64
	for _, score := range sortedScores(dist) {
		cum += dist[score]
		if cum >= 50.0 {
			return float64(score)
		}
	}
	return 5.0
}

// Entropy computes the Shannon entropy (base 2) of a percentage distribution.
// Zero buckets contribute nothing.
func Entropy(dist map[int]float64) float64 {
	var total float64
	for _, pct := range dist {
		total += pct
	}
	if total == 0 {
		return 0
	}

	var h float64
	for _, pct := range dist {
		if pct <= 0 {
			continue
		}
		p := pct / total
		h -= p * math.Log2(p)
	}
	return h
}

// NormalizedEntropy maps entropy into [0, 1] against the uniform maximum.
func NormalizedEntropy(dist map[int]float64) float64 {
	return Entropy(dist) / maxEntropy
}

// EntropyDeficit measures how far below the expected normalized entropy a
// distribution sits. Healthy organic distributions land near the expected
// value; concentrated vote dumps push entropy down and the deficit up.
func EntropyDeficit(dist map[int]float64, expected float64) float64 {
	d := expected - NormalizedEntropy(dist)
	if d < 0 {
		return 0
	}
	return d
}

// Skewness computes the weighted third standardized moment.
func Skewness(dist map[int]float64) float64 {
	std := Std(dist)
	if std == 0 {
		return 0
	}
	var total float64
	for _, pct := range dist {
		total += pct
	}
	mean := Mean(dist)
	var m3 float64
	for score, pct := range dist {
		d := float64(score) - mean
		m3 += pct * d * d * d
	}
	m3 /= total
	return m3 / (std * std * std)
}

// Kurtosis computes the weighted excess kurtosis (fourth standardized moment
// minus 3).
func Kurtosis(dist map[int]float64) float64 {
	std := Std(dist)
	if std == 0 {
		return 0
	}
	var total float64
	for _, pct := range dist {
		total += pct
	}
	mean := Mean(dist)
	var m4 float64
	for score, pct := range dist {
		d := float64(score) - mean
		m4 += pct * d * d * d * d
	}
	m4 /= total
	return m4/(std*std*std*std) - 3
}

// BimodalityCoefficient computes Sarle's bimodality coefficient
// (skew^2 + 1) / (kurtosis + 3), clamped to [0, 1]. Values above ~0.555
// suggest a bimodal shape.
func BimodalityCoefficient(dist map[int]float64) float64 {
	skew := Skewness(dist)
	kurt := Kurtosis(dist)
	denom := kurt + 3
	if denom == 0 {
		return 0
	}
	bc := (skew*skew + 1) / denom
	return clamp(bc, 0, 1)
}

// DetectBimodality reports whether the distribution exceeds the bimodality
// threshold, along with the coefficient itself.
func DetectBimodality(dist map[int]float64, threshold float64) (bool, float64) {
	bc := BimodalityCoefficient(dist)
	return bc > threshold, bc
}

// PolarizationIndex measures the concentration of votes at the extremes
// (scores 1 and 10) against the middle (scores 4-7), on a 0-100 scale.
func PolarizationIndex(dist map[int]float64) float64 {
	extremes := dist[1] + dist[10]
	var middle float64
	for s := 4; s <= 7; s++ {
		middle += dist[s]
	}

	total := extremes + middle
	if total == 0 {
		return 0
	}
	return math.Min(100, extremes/total*100)
}

func sortedScores(dist map[int]float64) []int {
	scores := make([]int, 0, len(dist))
	for score := range dist {
		scores = append(scores, score)
	}
	sort.Ints(scores)
	return scores
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
