package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func uniformDist() map[int]float64 {
	dist := make(map[int]float64, 10)
	for s := 1; s <= 10; s++ {
		dist[s] = 10.0
	}
	return dist
}

func TestMean(t *testing.T) {
	tests := []struct {
		name     string
		dist     map[int]float64
		expected float64
	}{
		{"uniform distribution", uniformDist(), 5.5},
		{"single bucket", map[int]float64{10: 100}, 10},
		{"two buckets", map[int]float64{1: 50, 10: 50}, 5.5},
		{"empty distribution", map[int]float64{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Mean(tt.dist), 1e-9)
		})
	}
}

func TestStd(t *testing.T) {
	tests := []struct {
		name     string
		dist     map[int]float64
		expected float64
	}{
		{"single bucket has zero spread", map[int]float64{10: 100}, 0},
		{"uniform distribution", uniformDist(), math.Sqrt(8.25)},
		{"polarized extremes", map[int]float64{1: 50, 10: 50}, 4.5},
		{"empty distribution", map[int]float64{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Std(tt.dist), 1e-9)
		})
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name     string
		dist     map[int]float64
		expected float64
	}{
		{"single bucket", map[int]float64{7: 100}, 7},
		{"uniform reaches half at five", uniformDist(), 5},
		{"typical right-skewed", map[int]float64{
			1: 2.0, 2: 1.5, 3: 2.0, 4: 4.0, 5: 8.0,
			6: 15.0, 7: 25.0, 8: 25.0, 9: 12.0, 10: 5.5,
		}, 7},
		{"empty distribution falls back to midpoint", map[int]float64{}, 5},
		{"never reaches half falls back to midpoint", map[int]float64{8: 20, 9: 20}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Median(tt.dist), 1e-9)
		})
	}
}

func TestEntropy(t *testing.T) {
	t.Run("uniform distribution maximizes entropy", func(t *testing.T) {
		assert.InDelta(t, math.Log2(10), Entropy(uniformDist()), 1e-9)
		assert.InDelta(t, 1.0, NormalizedEntropy(uniformDist()), 1e-9)
	})

	t.Run("single bucket has zero entropy", func(t *testing.T) {
		assert.InDelta(t, 0, Entropy(map[int]float64{10: 100}), 1e-9)
	})

	t.Run("zero buckets contribute nothing", func(t *testing.T) {
		withZeros := map[int]float64{1: 50, 2: 0, 9: 0, 10: 50}
		withoutZeros := map[int]float64{1: 50, 10: 50}
		assert.InDelta(t, Entropy(withoutZeros), Entropy(withZeros), 1e-9)
	})

	t.Run("empty distribution", func(t *testing.T) {
		assert.Equal(t, 0.0, Entropy(map[int]float64{}))
	})
}

func TestEntropyDeficit(t *testing.T) {
	t.Run("high entropy clamps deficit to zero", func(t *testing.T) {
		assert.Equal(t, 0.0, EntropyDeficit(uniformDist(), 0.68))
	})

	t.Run("concentrated distribution shows full deficit", func(t *testing.T) {
		assert.InDelta(t, 0.68, EntropyDeficit(map[int]float64{10: 100}, 0.68), 1e-9)
	})
}

func TestSkewnessAndKurtosis(t *testing.T) {
	t.Run("symmetric distribution has zero skew", func(t *testing.T) {
		assert.InDelta(t, 0, Skewness(map[int]float64{1: 50, 10: 50}), 1e-9)
	})

	t.Run("left tail gives negative skew", func(t *testing.T) {
		dist := map[int]float64{1: 10, 9: 45, 10: 45}
		assert.Less(t, Skewness(dist), 0.0)
	})

	t.Run("degenerate distribution returns zeros", func(t *testing.T) {
		dist := map[int]float64{8: 100}
		assert.Equal(t, 0.0, Skewness(dist))
		assert.Equal(t, 0.0, Kurtosis(dist))
	})

	t.Run("two-point split has minimal kurtosis", func(t *testing.T) {
		assert.InDelta(t, -2.0, Kurtosis(map[int]float64{1: 50, 10: 50}), 1e-9)
	})
}

func TestBimodalityCoefficient(t *testing.T) {
	t.Run("polarized split is maximally bimodal", func(t *testing.T) {
		bc := BimodalityCoefficient(map[int]float64{1: 50, 10: 50})
		assert.InDelta(t, 1.0, bc, 1e-9)

		isBimodal, got := DetectBimodality(map[int]float64{1: 50, 10: 50}, 0.555)
		assert.True(t, isBimodal)
		assert.InDelta(t, bc, got, 1e-9)
	})

	t.Run("unimodal peak stays under threshold", func(t *testing.T) {
		dist := map[int]float64{6: 10, 7: 30, 8: 40, 9: 15, 10: 5}
		isBimodal, bc := DetectBimodality(dist, 0.555)
		assert.False(t, isBimodal)
		assert.LessOrEqual(t, bc, 1.0)
	})

	t.Run("coefficient is clamped to one", func(t *testing.T) {
		for _, dist := range []map[int]float64{
			{1: 50, 10: 50},
			{1: 90, 10: 10},
			uniformDist(),
		} {
			bc := BimodalityCoefficient(dist)
			assert.GreaterOrEqual(t, bc, 0.0)
			assert.LessOrEqual(t, bc, 1.0)
		}
	})
}

func TestPolarizationIndex(t *testing.T) {
	tests := []struct {
		name     string
		dist     map[int]float64
		expected float64
	}{
		{"fully polarized", map[int]float64{1: 50, 10: 50}, 100.0},
		{"no extremes", map[int]float64{5: 50, 6: 50}, 0.0},
		{"uniform", uniformDist(), 100.0 / 3},
		{"twos and nines are not extremes", map[int]float64{2: 50, 9: 50}, 0.0},
		{"empty", map[int]float64{}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, PolarizationIndex(tt.dist), 1e-9)
		})
	}
}
