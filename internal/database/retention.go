package database

import (
	"fmt"
	"log/slog"
	"time"
)

// RetentionService prunes old analysis runs so the run history does not grow
// without bound.
type RetentionService struct {
	db            *DB
	retentionDays int
}

// NewRetentionService creates a retention service keeping runs for the given
// number of days.
func NewRetentionService(db *DB, retentionDays int) *RetentionService {
	if retentionDays <= 0 {
		retentionDays = 365
	}
	return &RetentionService{db: db, retentionDays: retentionDays}
}

// PurgeExpiredRuns deletes runs older than the retention window along with
// their metrics and failure rows. Returns the number of runs removed.
func (rs *RetentionService) PurgeExpiredRuns() (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -rs.retentionDays)

	tx, err := rs.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin retention transaction: %w", err)
	}
	defer tx.Rollback()

	// children first, the run header last
	if _, err := tx.Exec(
		`DELETE FROM run_failures WHERE run_id IN (SELECT id FROM analysis_runs WHERE created_at < ?)`,
		cutoff,
	); err != nil {
		return 0, fmt.Errorf("failed to delete expired failures: %w", err)
	}

	if _, err := tx.Exec(
		`DELETE FROM title_metrics WHERE run_id IN (SELECT id FROM analysis_runs WHERE created_at < ?)`,
		cutoff,
	); err != nil {
		return 0, fmt.Errorf("failed to delete expired metrics: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM analysis_runs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired runs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit retention cleanup: %w", err)
	}

	runs, _ := result.RowsAffected()
	if runs > 0 {
		slog.Info("Retention cleanup completed", "runs_deleted", runs, "cutoff", cutoff.Format(time.RFC3339))
	}

	return runs, nil
}

// DeleteRun removes a single run and its rows, regardless of age.
func (rs *RetentionService) DeleteRun(runID string) error {
	tx, err := rs.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM run_failures WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete run failures: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM title_metrics WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete run metrics: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM analysis_runs WHERE id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run deletion: %w", err)
	}

	slog.Info("Run deleted", "run_id", runID)
	return nil
}

// RetentionInfo describes the active retention policy.
func (rs *RetentionService) RetentionInfo() map[string]interface{} {
	return map[string]interface{}{
		"run_retention_days": rs.retentionDays,
		"cleanup_interval":   "24h",
	}
}

// Start runs the cleanup on the given interval until stop is closed.
func (rs *RetentionService) Start(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := rs.PurgeExpiredRuns(); err != nil {
					slog.Error("Retention cleanup failed", "error", err)
				}
			case <-stop:
				return
			}
		}
	}()
}
