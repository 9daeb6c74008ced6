package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/animelytics/bombmeter/internal/encoding"
	"github.com/animelytics/bombmeter/internal/types"
)

// Repository persists and recalls batch analysis runs.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// SaveRun persists a full batch result and returns the generated run ID.
// The run header, per-title metrics and failures are written in one
// transaction so a crash never leaves a partial run behind.
func (r *Repository) SaveRun(result *types.AnalysisResult) (string, error) {
	runID := newID()
	now := time.Now()

	summaryJSON, err := encoding.MarshalJSON(result.Summary)
	if err != nil {
		return "", fmt.Errorf("failed to marshal run summary: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO analysis_runs (
			id, total_requested, total_analyzed, total_failed, total_skipped,
			suspicious_count, summary, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		result.Summary.TotalRequested,
		result.Summary.TotalAnalyzed,
		result.Summary.TotalFailed,
		result.Summary.TotalSkipped,
		result.Summary.SuspiciousCount,
		string(summaryJSON),
		now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	for _, m := range result.Metrics {
		metricsJSON, err := encoding.MarshalJSON(m)
		if err != nil {
			return "", fmt.Errorf("failed to marshal metrics for title %d: %w", m.ID, err)
		}

		_, err = tx.Exec(`INSERT INTO title_metrics (
				id, run_id, title_id, title, bombing_score, adjusted_score,
				suspicion_level, bombing_rank, metrics, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			newID(), runID, m.ID, m.Title,
			m.BombingScore, m.AdjustedScore,
			string(m.SuspicionLevel), m.BombingRank,
			string(metricsJSON), now,
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert metrics for title %d: %w", m.ID, err)
		}
	}

	for _, f := range result.Failures {
		_, err = tx.Exec(`INSERT INTO run_failures (
				id, run_id, title_id, stage, error_type, message, title, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			newID(), runID, f.ID, string(f.Stage), f.ErrorType, f.Message, f.Title, f.Timestamp,
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert failure for title %d: %w", f.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}

	return runID, nil
}

// GetRun recalls a persisted run with its full per-title payload.
// Returns sql.ErrNoRows when the run does not exist.
func (r *Repository) GetRun(runID string) (*StoredRun, error) {
	stmt, err := r.db.GetPreparedStatement("get_run")
	if err != nil {
		return nil, err
	}

	run := &StoredRun{}
	var summaryJSON string
	err = stmt.QueryRow(runID).Scan(
		&run.ID, &run.TotalRequested, &run.TotalAnalyzed, &run.TotalFailed,
		&run.TotalSkipped, &run.SuspiciousCount, &summaryJSON, &run.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to query run %s: %w", runID, err)
	}

	if err := encoding.UnmarshalJSON([]byte(summaryJSON), &run.Summary); err != nil {
		return nil, fmt.Errorf("failed to decode run summary: %w", err)
	}

	if run.Metrics, err = r.runMetrics(runID); err != nil {
		return nil, err
	}
	if run.Failures, err = r.runFailures(runID); err != nil {
		return nil, err
	}

	return run, nil
}

func (r *Repository) runMetrics(runID string) ([]*types.ReviewBombingMetrics, error) {
	stmt, err := r.db.GetPreparedStatement("get_run_metrics")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics for run %s: %w", runID, err)
	}
	defer rows.Close()

	metrics := make([]*types.ReviewBombingMetrics, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan metrics row: %w", err)
		}

		m := &types.ReviewBombingMetrics{}
		if err := encoding.UnmarshalJSON([]byte(payload), m); err != nil {
			return nil, fmt.Errorf("failed to decode metrics payload: %w", err)
		}
		metrics = append(metrics, m)
	}

	return metrics, rows.Err()
}

func (r *Repository) runFailures(runID string) ([]types.FailureRecord, error) {
	stmt, err := r.db.GetPreparedStatement("get_run_failures")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures for run %s: %w", runID, err)
	}
	defer rows.Close()

	failures := make([]types.FailureRecord, 0)
	for rows.Next() {
		var f types.FailureRecord
		var stage string
		var title sql.NullString
		if err := rows.Scan(&f.ID, &stage, &f.ErrorType, &f.Message, &title, &f.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan failure row: %w", err)
		}
		f.Stage = types.FailureStage(stage)
		f.Title = title.String
		failures = append(failures, f)
	}

	return failures, rows.Err()
}

// ListRuns returns the most recent run headers, newest first.
func (r *Repository) ListRuns(limit int) ([]RunListItem, error) {
	if limit <= 0 {
		limit = 20
	}

	stmt, err := r.db.GetPreparedStatement("list_runs")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]RunListItem, 0, limit)
	for rows.Next() {
		var item RunListItem
		if err := rows.Scan(
			&item.ID, &item.TotalRequested, &item.TotalAnalyzed,
			&item.TotalFailed, &item.TotalSkipped, &item.SuspiciousCount,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, item)
	}

	return runs, rows.Err()
}
