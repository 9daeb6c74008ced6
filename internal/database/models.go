package database

import (
	"time"

	"github.com/google/uuid"

	"github.com/animelytics/bombmeter/internal/types"
)

// StoredRun is a persisted batch analysis recalled from the database.
type StoredRun struct {
	ID              string                        `json:"id"`
	TotalRequested  int                           `json:"total_requested"`
	TotalAnalyzed   int                           `json:"total_analyzed"`
	TotalFailed     int                           `json:"total_failed"`
	TotalSkipped    int                           `json:"total_skipped"`
	SuspiciousCount int                           `json:"suspicious_count"`
	Summary         types.AnalysisSummary         `json:"summary"`
	Metrics         []*types.ReviewBombingMetrics `json:"metrics"`
	Failures        []types.FailureRecord         `json:"failures"`
	CreatedAt       time.Time                     `json:"created_at"`
}

// RunListItem is a run header without the per-title payload.
type RunListItem struct {
	ID              string    `json:"id"`
	TotalRequested  int       `json:"total_requested"`
	TotalAnalyzed   int       `json:"total_analyzed"`
	TotalFailed     int       `json:"total_failed"`
	TotalSkipped    int       `json:"total_skipped"`
	SuspiciousCount int       `json:"suspicious_count"`
	CreatedAt       time.Time `json:"created_at"`
}

func newID() string {
	return uuid.New().String()
}
