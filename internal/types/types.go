package types

import (
	"fmt"
	"time"
)

// ContentType identifies the format of a title on the rating platform.
type ContentType string

const (
	ContentTV      ContentType = "tv"
	ContentMovie   ContentType = "movie"
	ContentOVA     ContentType = "ova"
	ContentSpecial ContentType = "special"
	ContentONA     ContentType = "ona"
	ContentMusic   ContentType = "music"
	ContentUnknown ContentType = "unknown"
)

// ParseContentType maps a platform string to a ContentType, defaulting to unknown.
func ParseContentType(s string) ContentType {
	switch ContentType(s) {
	case ContentTV, ContentMovie, ContentOVA, ContentSpecial, ContentONA, ContentMusic:
		return ContentType(s)
	default:
		return ContentUnknown
	}
}

// SuspicionLevel is the 4-tier classification of a bombing score.
// The string values are part of the JSON contract with exporters.
type SuspicionLevel string

const (
	SuspicionCritical SuspicionLevel = "critical"
	SuspicionHigh     SuspicionLevel = "high"
	SuspicionMedium   SuspicionLevel = "medium"
	SuspicionLow      SuspicionLevel = "low"
)

// SeverityLevel is the 5-tier impact assessment scale.
type SeverityLevel string

const (
	SeverityExtreme  SeverityLevel = "extreme"
	SeveritySevere   SeverityLevel = "severe"
	SeverityModerate SeverityLevel = "moderate"
	SeverityLight    SeverityLevel = "light"
	SeverityNone     SeverityLevel = "none"
)

// FailureStage identifies where in the pipeline a title failed.
type FailureStage string

const (
	StageFetch   FailureStage = "fetch"
	StageParse   FailureStage = "parse"
	StageAnalyze FailureStage = "analyze"
	StageExport  FailureStage = "export"
)

// PopularityTier buckets a title's ranking-list position.
type PopularityTier string

const (
	TierMegaPopular PopularityTier = "mega_popular"
	TierVeryPopular PopularityTier = "very_popular"
	TierPopular     PopularityTier = "popular"
	TierModerate    PopularityTier = "moderate"
	TierUnknown     PopularityTier = "unknown"
)

// ScoreDistribution holds the vote histogram for a title across the 1-10 scale.
// Percentages sum to ~100 when votes exist; missing keys are treated as 0%.
type ScoreDistribution struct {
	Percentages map[int]float64 `json:"percentages"`
	VoteCounts  map[int]int     `json:"vote_counts,omitempty"`
	TotalVotes  int             `json:"total_votes"`
}

// OnesPercentage returns the share of votes at score 1.
func (d *ScoreDistribution) OnesPercentage() float64 {
	return d.Percentages[1]
}

// TensPercentage returns the share of votes at score 10.
func (d *ScoreDistribution) TensPercentage() float64 {
	return d.Percentages[10]
}

// Percentage returns the vote share for a specific score.
func (d *ScoreDistribution) Percentage(score int) float64 {
	return d.Percentages[score]
}

// VoteCount returns the absolute vote count for a specific score.
func (d *ScoreDistribution) VoteCount(score int) int {
	return d.VoteCounts[score]
}

// TitleRecord is a normalized title as produced by the data-collection layer.
// The analysis core treats it as read-only.
type TitleRecord struct {
	ID           int64              `json:"id"`
	Title        string             `json:"title"`
	URL          string             `json:"url,omitempty"`
	Rank         int                `json:"rank"`
	AverageScore float64            `json:"average_score"`
	MemberCount  int                `json:"member_count"`
	Distribution *ScoreDistribution `json:"distribution,omitempty"`
	ContentType  ContentType        `json:"content_type"`
	IsSequel     bool               `json:"is_sequel"`
	StartYear    int                `json:"start_year"`
	FetchedAt    time.Time          `json:"fetched_at,omitempty"`
}

// TotalVotes returns the vote total from the distribution, 0 when absent.
func (t *TitleRecord) TotalVotes() int {
	if t.Distribution == nil {
		return 0
	}
	return t.Distribution.TotalVotes
}

// ContextualFactors capture per-title context used to adjust the bombing score.
type ContextualFactors struct {
	AgeYears            float64        `json:"anime_age_years"`
	TotalMembers        int            `json:"total_members"`
	VotesToMembersRatio float64        `json:"votes_to_members_ratio"`
	PopularityTier      PopularityTier `json:"popularity_tier"`
	ContentType         ContentType    `json:"content_type"`
	IsSequel            bool           `json:"is_sequel"`
	AgeAdjustment       float64        `json:"age_adjustment"`
	FormatAdjustment    float64        `json:"format_adjustment"`
}

// TotalAdjustment is the combined multiplicative adjustment factor.
func (c *ContextualFactors) TotalAdjustment() float64 {
	return c.AgeAdjustment * c.FormatAdjustment
}

// BombingSeverity is the impact assessment attached to analyzed titles.
type BombingSeverity struct {
	Level                   SeverityLevel `json:"level"`
	Confidence              float64       `json:"confidence"`
	ImpactScore             float64       `json:"impact_score"`
	EstimatedFakeVotes      int           `json:"estimated_fake_votes"`
	RatingImpact            float64       `json:"rating_impact"`
	Description             string        `json:"description"`
	StatisticalSignificance float64       `json:"statistical_significance"`
}

// ReviewBombingMetrics is the per-title output of the analysis core.
// All fields are plain numerics or strings so exporters can serialize it verbatim.
type ReviewBombingMetrics struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`

	OnesZScore             float64 `json:"ones_zscore"`
	DistributionEffectSize float64 `json:"distribution_effect_size"`
	SpikeRatio             float64 `json:"spike_ratio"`
	EntropyDeficit         float64 `json:"entropy_deficit"`
	BimodalityCoefficient  float64 `json:"bimodality_coefficient"`

	OnesPercentage float64 `json:"ones_percentage"`
	TensPercentage float64 `json:"tens_percentage"`

	BombingScore  float64 `json:"bombing_score"`
	AdjustedScore float64 `json:"adjusted_score"`

	SuspicionLevel SuspicionLevel `json:"suspicion_level"`
	BombingRank    int            `json:"bombing_rank"`

	MetricBreakdown map[string]float64 `json:"metric_breakdown"`
	AnomalyFlags    []string           `json:"anomaly_flags"`

	PolarizationIndex float64 `json:"polarization_index"`
	Skewness          float64 `json:"skewness"`
	Kurtosis          float64 `json:"kurtosis"`

	ContextualFactors *ContextualFactors `json:"context,omitempty"`
	Severity          *BombingSeverity   `json:"severity,omitempty"`
}

// FailureRecord tracks a title that failed at some pipeline stage.
// Failures are accumulated and surfaced in batch results, never dropped.
type FailureRecord struct {
	ID        int64        `json:"id"`
	Stage     FailureStage `json:"stage"`
	ErrorType string       `json:"error_type"`
	Message   string       `json:"message"`
	Title     string       `json:"title,omitempty"`
	URL       string       `json:"url,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewFailureRecord builds a failure record from an explicit error type and message.
func NewFailureRecord(id int64, stage FailureStage, errorType, message string) FailureRecord {
	return FailureRecord{
		ID:        id,
		Stage:     stage,
		ErrorType: errorType,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewFailureFromError builds a failure record from a Go error.
func NewFailureFromError(id int64, stage FailureStage, err error) FailureRecord {
	return NewFailureRecord(id, stage, fmt.Sprintf("%T", err), err.Error())
}

// AnalysisSummary aggregates a batch of per-title metrics.
//
// The level counts are re-bucketed from bombing_score against the suspicion
// thresholds rather than read from each item's possibly-overridden
// SuspicionLevel, so the tallies always reconcile to the threshold bands.
type AnalysisSummary struct {
	TotalRequested int `json:"total_requested"`
	TotalAnalyzed  int `json:"total_analyzed"`
	TotalFailed    int `json:"total_failed"`
	TotalSkipped   int `json:"total_skipped"`

	ScoreMean   float64 `json:"score_mean"`
	ScoreMedian float64 `json:"score_median"`
	ScoreStd    float64 `json:"score_std"`
	ScoreMin    float64 `json:"score_min"`
	ScoreMax    float64 `json:"score_max"`

	OnesMean   float64 `json:"ones_mean"`
	OnesMedian float64 `json:"ones_median"`
	OnesMax    float64 `json:"ones_max"`

	CriticalCount int `json:"critical_count"`
	HighCount     int `json:"high_count"`
	MediumCount   int `json:"medium_count"`
	LowCount      int `json:"low_count"`

	SuspiciousCount       int `json:"suspicious_count"`
	HighlySuspiciousCount int `json:"highly_suspicious_count"`
}

// CountByLevel returns the level distribution keyed by suspicion level string.
func (s *AnalysisSummary) CountByLevel() map[string]int {
	return map[string]int{
		"critical": s.CriticalCount,
		"high":     s.HighCount,
		"medium":   s.MediumCount,
		"low":      s.LowCount,
	}
}

// AnalysisResult is the full output of a batch analysis.
type AnalysisResult struct {
	Metrics  []*ReviewBombingMetrics `json:"metrics"`
	Summary  AnalysisSummary         `json:"summary"`
	Failures []FailureRecord         `json:"failures"`
}

// Critical returns the metrics classified critical.
func (r *AnalysisResult) Critical() []*ReviewBombingMetrics {
	return r.filterByLevel(SuspicionCritical)
}

// High returns the metrics classified high.
func (r *AnalysisResult) High() []*ReviewBombingMetrics {
	return r.filterByLevel(SuspicionHigh)
}

// Suspicious returns the metrics classified high or critical.
func (r *AnalysisResult) Suspicious() []*ReviewBombingMetrics {
	out := make([]*ReviewBombingMetrics, 0)
	for _, m := range r.Metrics {
		if m.SuspicionLevel == SuspicionCritical || m.SuspicionLevel == SuspicionHigh {
			out = append(out, m)
		}
	}
	return out
}

// Top returns the n highest-ranked metrics. Metrics are already rank-ordered.
func (r *AnalysisResult) Top(n int) []*ReviewBombingMetrics {
	if n > len(r.Metrics) {
		n = len(r.Metrics)
	}
	return r.Metrics[:n]
}

func (r *AnalysisResult) filterByLevel(level SuspicionLevel) []*ReviewBombingMetrics {
	out := make([]*ReviewBombingMetrics, 0)
	for _, m := range r.Metrics {
		if m.SuspicionLevel == level {
			out = append(out, m)
		}
	}
	return out
}

// AnalyzeBatchRequest is the request body for the batch analyze endpoint.
// FetchFailures lets collectors forward upstream failures so the summary
// accounts for every requested title.
type AnalyzeBatchRequest struct {
	Titles        []*TitleRecord  `json:"titles" binding:"required"`
	FetchFailures []FailureRecord `json:"fetch_failures,omitempty"`
}
