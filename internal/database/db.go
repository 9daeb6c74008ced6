package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB represents the database connection with pooling
type DB struct {
	*sql.DB
	pool     *ConnectionPool
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// ConnectionPool manages database connection pooling
type ConnectionPool struct {
	db           *sql.DB
	maxOpenConns int
	maxIdleConns int
	maxLifetime  time.Duration
}

// NewConnectionPool creates a new database connection pool
func NewConnectionPool(db *sql.DB, maxOpen, maxIdle int, maxLifetime time.Duration) *ConnectionPool {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	return &ConnectionPool{
		db:           db,
		maxOpenConns: maxOpen,
		maxIdleConns: maxIdle,
		maxLifetime:  maxLifetime,
	}
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	stats := cp.db.Stats()

	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": cp.maxOpenConns,
		"max_idle_connections": cp.maxIdleConns,
		"max_lifetime_seconds": cp.maxLifetime.Seconds(),
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
		"max_idle_closed":      stats.MaxIdleClosed,
		"max_lifetime_closed":  stats.MaxLifetimeClosed,
	}
}

// NewDB creates a new database connection with optimized pooling
func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "bombmeter.db")

	connStr := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pool := NewConnectionPool(db, 25, 5, 5*time.Minute)

	database := &DB{
		DB:       db,
		pool:     pool,
		prepared: make(map[string]*sql.Stmt),
	}

	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := database.initPreparedStatements(); err != nil {
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("Database initialized with connection pooling",
		"max_open_conns", pool.maxOpenConns,
		"max_idle_conns", pool.maxIdleConns,
		"max_lifetime", pool.maxLifetime)

	return database, nil
}

// migrate creates the necessary tables
func (db *DB) migrate() error {
	queries := []string{
		// One row per persisted batch analysis
		`CREATE TABLE IF NOT EXISTS analysis_runs (
			id TEXT PRIMARY KEY,
			total_requested INTEGER NOT NULL,
			total_analyzed INTEGER NOT NULL,
			total_failed INTEGER NOT NULL,
			total_skipped INTEGER NOT NULL,
			suspicious_count INTEGER NOT NULL,
			summary TEXT NOT NULL, -- JSON summary
			created_at DATETIME NOT NULL
		)`,

		// Per-title metrics within a run
		`CREATE TABLE IF NOT EXISTS title_metrics (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			title_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			bombing_score REAL NOT NULL,
			adjusted_score REAL NOT NULL,
			suspicion_level TEXT NOT NULL,
			bombing_rank INTEGER NOT NULL,
			metrics TEXT NOT NULL, -- full JSON metrics payload
			created_at DATETIME NOT NULL,
			FOREIGN KEY (run_id) REFERENCES analysis_runs(id)
		)`,

		// Failures captured during a run
		`CREATE TABLE IF NOT EXISTS run_failures (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			title_id INTEGER NOT NULL,
			stage TEXT NOT NULL,
			error_type TEXT NOT NULL,
			message TEXT NOT NULL,
			title TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (run_id) REFERENCES analysis_runs(id)
		)`,

		// Indexes for performance
		`CREATE INDEX IF NOT EXISTS idx_analysis_runs_created ON analysis_runs(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_title_metrics_run ON title_metrics(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_title_metrics_score ON title_metrics(run_id, bombing_score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_title_metrics_level ON title_metrics(suspicion_level)`,
		`CREATE INDEX IF NOT EXISTS idx_title_metrics_title ON title_metrics(title_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_run_failures_run ON run_failures(run_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// initPreparedStatements initializes frequently used prepared statements
func (db *DB) initPreparedStatements() error {
	statements := map[string]string{
		"insert_run": `INSERT INTO analysis_runs (
			id, total_requested, total_analyzed, total_failed, total_skipped,
			suspicious_count, summary, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,

		"insert_title_metrics": `INSERT INTO title_metrics (
			id, run_id, title_id, title, bombing_score, adjusted_score,
			suspicion_level, bombing_rank, metrics, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,

		"insert_failure": `INSERT INTO run_failures (
			id, run_id, title_id, stage, error_type, message, title, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,

		"get_run": `SELECT id, total_requested, total_analyzed, total_failed, total_skipped,
			suspicious_count, summary, created_at
			FROM analysis_runs WHERE id = ?`,

		"get_run_metrics": `SELECT metrics FROM title_metrics
			WHERE run_id = ? ORDER BY bombing_rank ASC`,

		"get_run_failures": `SELECT title_id, stage, error_type, message, title, created_at
			FROM run_failures WHERE run_id = ? ORDER BY created_at ASC`,

		"list_runs": `SELECT id, total_requested, total_analyzed, total_failed, total_skipped,
			suspicious_count, created_at
			FROM analysis_runs ORDER BY created_at DESC LIMIT ?`,
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, query := range statements {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt

		slog.Debug("Prepared statement initialized", "name", name)
	}

	return nil
}

// GetPreparedStatement retrieves a prepared statement
func (db *DB) GetPreparedStatement(name string) (*sql.Stmt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	stmt, exists := db.prepared[name]
	if !exists {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}

	return stmt, nil
}

// GetPoolStats returns database connection pool statistics
func (db *DB) GetPoolStats() map[string]interface{} {
	return db.pool.GetStats()
}

// Close closes the database connection and prepared statements
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}

	db.prepared = make(map[string]*sql.Stmt)

	return db.DB.Close()
}
