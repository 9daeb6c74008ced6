package analysis

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/animelytics/bombmeter/internal/types"
)

// Analyzer runs the full batch pipeline: gating, per-title metric
// calculation, failure isolation, ranking, and summary aggregation.
type Analyzer struct {
	cfg    Config
	calc   *Calculator
	logger *slog.Logger
}

// NewAnalyzer creates an analyzer with a validated config.
func NewAnalyzer(cfg Config, logger *slog.Logger) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		cfg:    cfg,
		calc:   NewCalculator(cfg),
		logger: logger,
	}, nil
}

// Calculator exposes the underlying per-title calculator.
func (a *Analyzer) Calculator() *Calculator {
	return a.calc
}

// AnalyzeSingle computes metrics for one title without batch gating, so
// callers can inspect low-volume titles explicitly.
func (a *Analyzer) AnalyzeSingle(title *types.TitleRecord) (*types.ReviewBombingMetrics, error) {
	return a.calc.Calculate(title)
}

// AnalyzeBatch analyzes a list of titles. Titles without a distribution or
// below the vote threshold are skipped, not failed. A title that errors
// produces a failure record and the batch continues. fetchFailures are
// upstream failures forwarded by the collector; they count into the summary
// totals alongside analysis failures.
func (a *Analyzer) AnalyzeBatch(titles []*types.TitleRecord, fetchFailures []types.FailureRecord) *types.AnalysisResult {
	metrics := make([]*types.ReviewBombingMetrics, 0, len(titles))
	failures := make([]types.FailureRecord, 0, len(fetchFailures))
	failures = append(failures, fetchFailures...)

	skipped := 0
	for _, title := range titles {
		if title.Distribution == nil || title.TotalVotes() < a.cfg.MinVotesThreshold {
			a.logger.Debug("skipping title below analysis threshold",
				"id", title.ID, "title", title.Title, "total_votes", title.TotalVotes())
			skipped++
			continue
		}

		m, err := a.analyzeOne(title)
		if err != nil {
			a.logger.Warn("title analysis failed",
				"id", title.ID, "title", title.Title, "error", err)
			failure := types.NewFailureFromError(title.ID, types.StageAnalyze, err)
			failure.Title = title.Title
			failure.URL = title.URL
			failures = append(failures, failure)
			continue
		}
		metrics = append(metrics, m)
	}

	RankByScore(metrics)

	result := &types.AnalysisResult{
		Metrics:  metrics,
		Summary:  a.buildSummary(metrics, len(titles)+len(fetchFailures), len(failures), skipped),
		Failures: failures,
	}

	a.logger.Info("batch analysis complete",
		"requested", result.Summary.TotalRequested,
		"analyzed", result.Summary.TotalAnalyzed,
		"failed", result.Summary.TotalFailed,
		"skipped", result.Summary.TotalSkipped,
		"suspicious", result.Summary.SuspiciousCount)

	return result
}

// analyzeOne wraps the calculator call so a panic on one title cannot take
// down the whole batch.
func (a *Analyzer) analyzeOne(title *types.TitleRecord) (m *types.ReviewBombingMetrics, err error) {
	defer func() {
		if r := recover(); r != nil {
			m = nil
			err = fmt.Errorf("panic during analysis: %v", r)
		}
	}()
	return a.calc.Calculate(title)
}

// RankByScore sorts metrics by bombing score descending (stable, so equal
// scores keep input order) and assigns 1-based ranks.
func RankByScore(metrics []*types.ReviewBombingMetrics) {
	sort.SliceStable(metrics, func(i, j int) bool {
		return metrics[i].BombingScore > metrics[j].BombingScore
	})
	for i, m := range metrics {
		m.BombingRank = i + 1
	}
}

// buildSummary aggregates batch statistics. Level counts are re-bucketed
// from raw bombing scores against the suspicion thresholds; they may differ
// from per-item levels when overrides fired, and that divergence is kept.
func (a *Analyzer) buildSummary(metrics []*types.ReviewBombingMetrics, requested, failed, skipped int) types.AnalysisSummary {
	s := types.AnalysisSummary{
		TotalRequested: requested,
		TotalAnalyzed:  len(metrics),
		TotalFailed:    failed,
		TotalSkipped:   skipped,
	}

	if len(metrics) == 0 {
		return s
	}

	scores := make([]float64, len(metrics))
	ones := make([]float64, len(metrics))
	for i, m := range metrics {
		scores[i] = m.BombingScore
		ones[i] = m.OnesPercentage

		switch {
		case m.BombingScore >= a.cfg.Suspicion.Critical:
			s.CriticalCount++
		case m.BombingScore >= a.cfg.Suspicion.High:
			s.HighCount++
		case m.BombingScore >= a.cfg.Suspicion.Medium:
			s.MediumCount++
		default:
			s.LowCount++
		}
	}

	s.ScoreMean = round2(meanOf(scores))
	s.ScoreMedian = round2(medianOf(scores))
	s.ScoreStd = round2(stdOf(scores))
	s.ScoreMin = round2(minOf(scores))
	s.ScoreMax = round2(maxOf(scores))

	s.OnesMean = round2(meanOf(ones))
	s.OnesMedian = round2(medianOf(ones))
	s.OnesMax = round2(maxOf(ones))

	s.SuspiciousCount = s.MediumCount + s.HighCount + s.CriticalCount
	s.HighlySuspiciousCount = s.HighCount + s.CriticalCount

	return s
}

func meanOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func medianOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func stdOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	mean := meanOf(vals)
	var variance float64
	for _, v := range vals {
		d := v - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(vals)))
}

func minOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
