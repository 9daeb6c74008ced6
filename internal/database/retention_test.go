package database

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animelytics/bombmeter/internal/types"
)

func newRetentionFixture(t *testing.T) (*RetentionService, *Repository, *DB) {
	t.Helper()

	db, err := NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewRetentionService(db, 30), NewRepository(db), db
}

func storeRun(t *testing.T, repo *Repository, titleID int64, title string) string {
	t.Helper()

	result := &types.AnalysisResult{
		Metrics: []*types.ReviewBombingMetrics{
			{
				ID:             titleID,
				Title:          title,
				BombingScore:   42.0,
				AdjustedScore:  42.0,
				SuspicionLevel: types.SuspicionMedium,
			},
		},
		Summary: types.AnalysisSummary{TotalRequested: 2, TotalAnalyzed: 1, TotalFailed: 1},
		Failures: []types.FailureRecord{
			types.NewFailureRecord(titleID+1000, types.StageFetch, "HTTPError", "status 403"),
		},
	}
	runID, err := repo.SaveRun(result)
	require.NoError(t, err)
	return runID
}

func backdateRun(t *testing.T, db *DB, runID string, age time.Duration) {
	t.Helper()

	_, err := db.Exec(`UPDATE analysis_runs SET created_at = ? WHERE id = ?`,
		time.Now().Add(-age), runID)
	require.NoError(t, err)
}

func countRows(t *testing.T, db *DB, table, runID string) int {
	t.Helper()

	column := "run_id"
	if table == "analysis_runs" {
		column = "id"
	}

	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE `+column+` = ?`, runID).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestPurgeExpiredRuns(t *testing.T) {
	rs, repo, db := newRetentionFixture(t)

	oldRun := storeRun(t, repo, 1, "Forgotten Show")
	freshRun := storeRun(t, repo, 2, "Current Show")
	backdateRun(t, db, oldRun, 31*24*time.Hour)

	deleted, err := rs.PurgeExpiredRuns()
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	assert.Equal(t, 0, countRows(t, db, "analysis_runs", oldRun))
	assert.Equal(t, 0, countRows(t, db, "title_metrics", oldRun))
	assert.Equal(t, 0, countRows(t, db, "run_failures", oldRun))

	assert.Equal(t, 1, countRows(t, db, "analysis_runs", freshRun))
	assert.Equal(t, 1, countRows(t, db, "title_metrics", freshRun))
	assert.Equal(t, 1, countRows(t, db, "run_failures", freshRun))
}

func TestPurgeExpiredRunsNothingToDo(t *testing.T) {
	rs, repo, _ := newRetentionFixture(t)

	storeRun(t, repo, 3, "Recent Show")

	deleted, err := rs.PurgeExpiredRuns()
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestDeleteRunRemovesAllRows(t *testing.T) {
	rs, repo, db := newRetentionFixture(t)

	runID := storeRun(t, repo, 4, "Short Lived Show")
	require.NoError(t, rs.DeleteRun(runID))

	assert.Equal(t, 0, countRows(t, db, "analysis_runs", runID))
	assert.Equal(t, 0, countRows(t, db, "title_metrics", runID))
	assert.Equal(t, 0, countRows(t, db, "run_failures", runID))

	_, err := repo.GetRun(runID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRetentionDefaults(t *testing.T) {
	rs := NewRetentionService(nil, 0)
	info := rs.RetentionInfo()
	assert.Equal(t, 365, info["run_retention_days"])
}
