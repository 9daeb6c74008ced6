package leaderboard

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animelytics/bombmeter/internal/database"
	"github.com/animelytics/bombmeter/internal/types"
)

func newTestService(t *testing.T) (*Service, *database.Repository) {
	t.Helper()

	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewService(db), database.NewRepository(db)
}

func metricsFor(id int64, title string, score float64, level types.SuspicionLevel) *types.ReviewBombingMetrics {
	return &types.ReviewBombingMetrics{
		ID:             id,
		Title:          title,
		BombingScore:   score,
		AdjustedScore:  score,
		SuspicionLevel: level,
	}
}

func saveRun(t *testing.T, repo *database.Repository, metrics ...*types.ReviewBombingMetrics) string {
	t.Helper()

	result := &types.AnalysisResult{
		Metrics: metrics,
		Summary: types.AnalysisSummary{
			TotalRequested: len(metrics),
			TotalAnalyzed:  len(metrics),
		},
	}
	runID, err := repo.SaveRun(result)
	require.NoError(t, err)
	return runID
}

func TestGetLeaderboardOrdersByScore(t *testing.T) {
	svc, repo := newTestService(t)

	saveRun(t, repo,
		metricsFor(1, "Mild Grumbling", 12.0, types.SuspicionLow),
		metricsFor(2, "Organized Attack", 88.5, types.SuspicionCritical),
		metricsFor(3, "Fan War Fallout", 61.0, types.SuspicionHigh),
	)

	response, err := svc.GetLeaderboard("all_time", 50)
	require.NoError(t, err)

	require.Len(t, response.Entries, 3)
	assert.Equal(t, "Organized Attack", response.Entries[0].Title)
	assert.Equal(t, 1, response.Entries[0].Rank)
	assert.Equal(t, "critical", response.Entries[0].SuspicionLevel)
	assert.Equal(t, "Fan War Fallout", response.Entries[1].Title)
	assert.Equal(t, "Mild Grumbling", response.Entries[2].Title)
	assert.Equal(t, 3, response.Entries[2].Rank)
}

func TestGetLeaderboardKeepsWorstScoreAcrossRuns(t *testing.T) {
	svc, repo := newTestService(t)

	saveRun(t, repo, metricsFor(7, "Season Finale", 40.0, types.SuspicionMedium))
	saveRun(t, repo, metricsFor(7, "Season Finale", 72.0, types.SuspicionHigh))

	response, err := svc.GetLeaderboard("all_time", 50)
	require.NoError(t, err)

	require.Len(t, response.Entries, 1)
	assert.Equal(t, 72.0, response.Entries[0].BombingScore)
	assert.Equal(t, "high", response.Entries[0].SuspicionLevel)
}

func TestGetLeaderboardRespectsLimit(t *testing.T) {
	svc, repo := newTestService(t)

	saveRun(t, repo,
		metricsFor(1, "A", 10, types.SuspicionLow),
		metricsFor(2, "B", 20, types.SuspicionLow),
		metricsFor(3, "C", 30, types.SuspicionLow),
	)

	response, err := svc.GetLeaderboard("all_time", 2)
	require.NoError(t, err)

	assert.Len(t, response.Entries, 2)
	assert.Equal(t, "C", response.Entries[0].Title)
}

func TestGetLeaderboardInvalidPeriod(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetLeaderboard("fortnightly", 10)
	assert.Error(t, err)
}

func TestGetLeaderboardUsesCache(t *testing.T) {
	svc, repo := newTestService(t)

	saveRun(t, repo, metricsFor(1, "Cached", 50, types.SuspicionMedium))

	first, err := svc.GetLeaderboard("all_time", 10)
	require.NoError(t, err)
	require.Len(t, first.Entries, 1)

	// a new run does not show up until the cache is invalidated
	saveRun(t, repo, metricsFor(2, "Fresh", 90, types.SuspicionCritical))

	cached, err := svc.GetLeaderboard("all_time", 10)
	require.NoError(t, err)
	assert.Len(t, cached.Entries, 1)

	svc.cache.InvalidateAll()

	fresh, err := svc.GetLeaderboard("all_time", 10)
	require.NoError(t, err)
	assert.Len(t, fresh.Entries, 2)
	assert.Equal(t, "Fresh", fresh.Entries[0].Title)
}

func TestGetTitleRank(t *testing.T) {
	svc, repo := newTestService(t)

	saveRun(t, repo,
		metricsFor(1, "Top Bombed", 90, types.SuspicionCritical),
		metricsFor(2, "Runner Up", 70, types.SuspicionHigh),
		metricsFor(3, "Quiet One", 5, types.SuspicionLow),
	)

	entry, err := svc.GetTitleRank(2, "all_time")
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Rank)
	assert.Equal(t, "Runner Up", entry.Title)

	_, err = svc.GetTitleRank(999, "all_time")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestPeriodCutoff(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		period  string
		want    time.Time
		wantErr bool
	}{
		{period: "daily", want: now.Add(-24 * time.Hour)},
		{period: "weekly", want: now.Add(-7 * 24 * time.Hour)},
		{period: "monthly", want: now.Add(-30 * 24 * time.Hour)},
		{period: "all_time", want: time.Time{}},
		{period: "hourly", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			got, err := periodCutoff(tt.period, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
