package analysis

import (
	"errors"
	"math"
	"time"

	"github.com/animelytics/bombmeter/internal/types"
)

// ErrMissingDistribution is returned when a title has no score distribution
// to analyze.
var ErrMissingDistribution = errors.New("title has no score distribution")

// Metric breakdown keys, stable across the JSON contract.
const (
	MetricOnesZ   = "ONES_Z"
	MetricSpike   = "SPIKE"
	MetricEffect  = "EFFECT"
	MetricEntropy = "ENTROPY"
	MetricBimodal = "BIMODAL"
)

// Anomaly flag strings, emitted in fixed order.
const (
	FlagExtremeOnesAnomaly       = "EXTREME_ONES_ANOMALY"
	FlagSignificantOnesAnomaly   = "SIGNIFICANT_ONES_ANOMALY"
	FlagExtremeSpikePattern      = "EXTREME_SPIKE_PATTERN"
	FlagElevatedSpikePattern     = "ELEVATED_SPIKE_PATTERN"
	FlagConfirmedBimodality      = "CONFIRMED_BIMODALITY"
	FlagPossibleBimodality       = "POSSIBLE_BIMODALITY"
	FlagLargeDistributionEffect  = "LARGE_DISTRIBUTION_EFFECT"
	FlagMediumDistributionEffect = "MEDIUM_DISTRIBUTION_EFFECT"
	FlagLowEntropyWarning        = "LOW_ENTROPY_WARNING"
)

// Severity descriptions, one per level.
var severityDescriptions = map[types.SeverityLevel]string{
	types.SeverityExtreme:  "Statistically significant anomaly. High probability of organized attack.",
	types.SeveritySevere:   "Significant deviation from norm. Likely coordinated bombing.",
	types.SeverityModerate: "Notable deviation. Could be attack or natural polarization.",
	types.SeverityLight:    "Minor deviation within natural variation.",
	types.SeverityNone:     "Distribution matches expected pattern.",
}

// Calculator turns a TitleRecord into ReviewBombingMetrics. It is stateless
// apart from its injected config and safe for concurrent use.
type Calculator struct {
	cfg Config

	// nowYear is swappable in tests so age adjustments stay deterministic.
	nowYear func() int
}

// NewCalculator creates a calculator with the given calibration.
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{
		cfg:     cfg,
		nowYear: func() int { return time.Now().Year() },
	}
}

// Calculate computes the full metric set for one title. The title's
// distribution must be present; vote-count gating is the analyzer's job.
func (c *Calculator) Calculate(title *types.TitleRecord) (*types.ReviewBombingMetrics, error) {
	if title.Distribution == nil {
		return nil, ErrMissingDistribution
	}

	dist := title.Distribution.Percentages
	onesPct := title.Distribution.OnesPercentage()
	tensPct := title.Distribution.TensPercentage()

	onesZ := OnesZScore(onesPct, title.AverageScore, c.cfg.ExpectedOnesByRating)
	spike := SpikeRatio(dist)
	effect := c.effectSize(dist, title.AverageScore, onesPct, tensPct)
	entropyDef := EntropyDeficit(dist, c.cfg.ExpectedEntropy)
	isBimodal, bimodality := DetectBimodality(dist, c.cfg.BimodalityThreshold)

	breakdown := c.metricBreakdown(onesZ, spike, effect, entropyDef, bimodality, isBimodal, onesPct)

	var bombingScore float64
	for _, contribution := range breakdown {
		bombingScore += contribution
	}
	bombingScore = clamp(bombingScore, 0, 100)

	context := c.contextualFactors(title)
	adjusted := clamp(bombingScore*context.TotalAdjustment(), 0, 100)

	level := c.classifyLevel(bombingScore, onesZ, onesPct, spike)

	m := &types.ReviewBombingMetrics{
		ID:    title.ID,
		Title: title.Title,

		OnesZScore:             round2(onesZ),
		DistributionEffectSize: round3(effect),
		SpikeRatio:             round2(spike),
		EntropyDeficit:         round3(entropyDef),
		BimodalityCoefficient:  round3(bimodality),

		OnesPercentage: round2(onesPct),
		TensPercentage: round2(tensPct),

		BombingScore:  round2(bombingScore),
		AdjustedScore: round2(adjusted),

		SuspicionLevel:  level,
		MetricBreakdown: breakdown,
		AnomalyFlags:    c.anomalyFlags(onesZ, spike, effect, entropyDef, bimodality, isBimodal),

		PolarizationIndex: round2(PolarizationIndex(dist)),
		Skewness:          round3(Skewness(dist)),
		Kurtosis:          round3(Kurtosis(dist)),

		ContextualFactors: context,
		Severity:          c.severity(bombingScore, onesZ, onesPct, title),
	}

	return m, nil
}

// metricBreakdown returns the weighted contribution of each sub-score. Each
// raw sub-score is normalized to 0-100 before weighting.
func (c *Calculator) metricBreakdown(onesZ, spike, effect, entropyDef, bimodality float64, isBimodal bool, onesPct float64) map[string]float64 {
	zScore := math.Min(100, onesZ*25)

	spikeScore := math.Min(100, math.Max(0, (spike-1.5)*20))
	// A spike ratio over a negligible pool of 1-votes is noise. Zero it out
	// below the floor and ramp it linearly up to full weight.
	if onesPct < c.cfg.MinOnesToConsider {
		spikeScore = 0
	} else if onesPct < c.cfg.MinOnesForFullWeight {
		spikeScore *= onesPct / c.cfg.MinOnesForFullWeight
	}

	effectScore := math.Min(100, effect*80)
	entropyScore := math.Min(100, entropyDef*300)

	bimodalScore := math.Min(100, bimodality*30)
	if isBimodal {
		bimodalScore = math.Min(100, bimodality*100)
	}

	return map[string]float64{
		MetricOnesZ:   round2(zScore * c.cfg.Weights.OnesZScore),
		MetricSpike:   round2(spikeScore * c.cfg.Weights.SpikeAnomaly),
		MetricEffect:  round2(effectScore * c.cfg.Weights.DistributionEffect),
		MetricEntropy: round2(entropyScore * c.cfg.Weights.EntropyDeficit),
		MetricBimodal: round2(bimodalScore * c.cfg.Weights.Bimodality),
	}
}

// effectSize computes the distribution effect size with the top-heavy
// discount: beloved titles with a huge 10s share and almost no 1s deviate
// from the baseline for the opposite of bombing reasons.
func (c *Calculator) effectSize(dist map[int]float64, avgScore, onesPct, tensPct float64) float64 {
	d := EffectSize(dist, ExpectedDistribution(avgScore))
	if tensPct > c.cfg.TensDiscountThreshold && onesPct < c.cfg.OnesDiscountThreshold {
		d *= c.cfg.EffectDiscountFactor
	}
	return d
}

// classifyLevel maps a bombing score to a suspicion level. Extreme individual
// metrics override the score bands upward; insufficient 1-vote mass gates the
// top bands downward.
func (c *Calculator) classifyLevel(score, onesZ, onesPct, spike float64) types.SuspicionLevel {
	switch {
	case onesZ >= 15:
		return types.SuspicionCritical
	case onesZ >= 10:
		return types.SuspicionHigh
	case onesZ >= 6 && onesPct >= 3.0:
		return types.SuspicionHigh
	case spike >= 10:
		return types.SuspicionHigh
	case spike >= 6 && onesPct >= 1.5:
		return types.SuspicionMedium
	}

	switch {
	case score >= c.cfg.Suspicion.Critical:
		if onesPct >= c.cfg.MinOnesForCritical {
			return types.SuspicionCritical
		}
		if onesPct >= c.cfg.MinOnesForHigh {
			return types.SuspicionHigh
		}
		return types.SuspicionMedium
	case score >= c.cfg.Suspicion.High:
		if onesPct >= c.cfg.MinOnesForHigh {
			return types.SuspicionHigh
		}
		return types.SuspicionMedium
	case score >= c.cfg.Suspicion.Medium:
		return types.SuspicionMedium
	default:
		return types.SuspicionLow
	}
}

// contextualFactors derives the per-title adjustment context.
func (c *Calculator) contextualFactors(title *types.TitleRecord) *types.ContextualFactors {
	totalVotes := title.TotalVotes()

	var age float64
	if title.StartYear > 0 {
		age = float64(c.nowYear() - title.StartYear)
		if age < 0 {
			age = 0
		}
	}

	ageAdj := 1.0
	if age > c.cfg.AgeOldThresholdYears {
		ageAdj = c.cfg.AgeOldFactor
	}

	// Exclusive cascade: the format discount wins over the sequel discount,
	// they never stack.
	formatAdj := c.cfg.Format.Default
	switch {
	case title.ContentType == types.ContentMovie:
		formatAdj = c.cfg.Format.Movie
	case title.ContentType == types.ContentOVA:
		formatAdj = c.cfg.Format.OVA
	case title.ContentType == types.ContentSpecial:
		formatAdj = c.cfg.Format.Special
	case title.IsSequel:
		formatAdj = c.cfg.Format.Sequel
	}

	var ratio float64
	if title.MemberCount > 0 {
		ratio = float64(totalVotes) / float64(title.MemberCount)
	}

	return &types.ContextualFactors{
		AgeYears:            age,
		TotalMembers:        title.MemberCount,
		VotesToMembersRatio: round3(ratio),
		PopularityTier:      popularityTier(title.Rank),
		ContentType:         title.ContentType,
		IsSequel:            title.IsSequel,
		AgeAdjustment:       ageAdj,
		FormatAdjustment:    round3(formatAdj),
	}
}

func popularityTier(rank int) types.PopularityTier {
	switch {
	case rank <= 0:
		return types.TierUnknown
	case rank <= 50:
		return types.TierMegaPopular
	case rank <= 200:
		return types.TierVeryPopular
	case rank <= 500:
		return types.TierPopular
	default:
		return types.TierModerate
	}
}

// severity assesses the real-world impact of a detected anomaly.
func (c *Calculator) severity(score, onesZ, onesPct float64, title *types.TitleRecord) *types.BombingSeverity {
	var level types.SeverityLevel
	switch {
	case score >= 75:
		level = types.SeverityExtreme
	case score >= 55:
		level = types.SeveritySevere
	case score >= 35:
		level = types.SeverityModerate
	case score >= 20:
		level = types.SeverityLight
	default:
		level = types.SeverityNone
	}

	pValue := PValueForZ(onesZ)

	baseline, ok := c.cfg.ExpectedOnesByRating[RatingCategoryFor(title.AverageScore)]
	if !ok {
		baseline = c.cfg.ExpectedOnesByRating[CategoryGood]
	}

	totalVotes := title.TotalVotes()
	excessPct := math.Max(0, onesPct-baseline.MaxNatural)
	fakeVotes := int(excessPct / 100 * float64(totalVotes))

	var ratingImpact float64
	if totalVotes > 0 {
		ratingImpact = float64(fakeVotes) * (title.AverageScore - 1) / float64(totalVotes)
	}

	confidence := 0.3 + score/100
	if pValue < c.cfg.SeverityPValueCutoff {
		confidence += 0.2
	}

	return &types.BombingSeverity{
		Level:                   level,
		Confidence:              round2(math.Min(1, confidence)),
		ImpactScore:             round2(score),
		EstimatedFakeVotes:      fakeVotes,
		RatingImpact:            round3(ratingImpact),
		Description:             severityDescriptions[level],
		StatisticalSignificance: 1 - pValue,
	}
}

// anomalyFlags emits threshold flags in a fixed, stable order.
func (c *Calculator) anomalyFlags(onesZ, spike, effect, entropyDef, bimodality float64, isBimodal bool) []string {
	t := c.cfg.Statistical
	flags := make([]string, 0, 5)

	if onesZ >= t.OnesZExtreme {
		flags = append(flags, FlagExtremeOnesAnomaly)
	} else if onesZ >= t.OnesZSignificant {
		flags = append(flags, FlagSignificantOnesAnomaly)
	}

	if spike >= t.SpikeExtreme {
		flags = append(flags, FlagExtremeSpikePattern)
	} else if spike >= t.SpikeElevated {
		flags = append(flags, FlagElevatedSpikePattern)
	}

	// Confirmed needs the coefficient past the bimodal threshold, not just the
	// flag floor. A mid-range coefficient only warrants possible.
	if isBimodal && bimodality >= t.BimodalityConfirmed {
		flags = append(flags, FlagConfirmedBimodality)
	} else if bimodality >= t.BimodalityPossible {
		flags = append(flags, FlagPossibleBimodality)
	}

	if effect >= t.EffectLarge {
		flags = append(flags, FlagLargeDistributionEffect)
	} else if effect >= t.EffectMedium {
		flags = append(flags, FlagMediumDistributionEffect)
	}

	if entropyDef >= t.EntropyWarning {
		flags = append(flags, FlagLowEntropyWarning)
	}

	return flags
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
