package monitoring

import (
	"log/slog"
	"os"
	"time"
)

// Logger provides structured logging with domain-specific helpers
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new JSON logger
func NewLogger() *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     slog.LevelInfo,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// RequestLogger logs HTTP request details
func (l *Logger) RequestLogger(method, path, ip, userAgent string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		"method", method,
		"path", path,
		"ip", ip,
		"user_agent", userAgent,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// AnalysisLogger logs a single-title analysis
func (l *Logger) AnalysisLogger(titleID int64, title string, bombingScore float64, level string, duration time.Duration, cacheHit bool) {
	l.Info("Analysis Completed",
		"title_id", titleID,
		"title", title,
		"bombing_score", bombingScore,
		"suspicion_level", level,
		"duration_ms", duration.Milliseconds(),
		"cache_hit", cacheHit,
	)
}

// BatchLogger logs a batch analysis run
func (l *Logger) BatchLogger(runID string, requested, analyzed, failed, skipped, suspicious int, duration time.Duration) {
	l.Info("Batch Analysis Completed",
		"run_id", runID,
		"requested", requested,
		"analyzed", analyzed,
		"failed", failed,
		"skipped", skipped,
		"suspicious", suspicious,
		"duration_ms", duration.Milliseconds(),
	)
}

// StorageLogger logs persistence operations
func (l *Logger) StorageLogger(operation, runID string, rows int, err error) {
	if err != nil {
		l.Error("Storage Operation Failed",
			"operation", operation,
			"run_id", runID,
			"error", err.Error(),
		)
		return
	}
	l.Debug("Storage Operation",
		"operation", operation,
		"run_id", runID,
		"rows", rows,
	)
}

// APIErrorLogger logs API errors with context
func (l *Logger) APIErrorLogger(err error, method, path, ip string, statusCode int) {
	l.Error("API Error",
		"error", err.Error(),
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
	)
}

// CacheLogger logs cache operations
func (l *Logger) CacheLogger(operation, key string, hit bool, itemCount int) {
	keyHash := key
	if len(key) > 8 {
		keyHash = key[:8] + "..."
	}
	l.Debug("Cache Operation",
		"operation", operation,
		"key_hash", keyHash,
		"hit", hit,
		"cache_size", itemCount,
	)
}

// SystemLogger logs system-level events
func (l *Logger) SystemLogger(event, details string) {
	l.Info("System Event",
		"event", event,
		"details", details,
		"uptime", time.Since(startTime).String(),
	)
}

// PerformanceLogger logs performance metrics
func (l *Logger) PerformanceLogger(metric string, value float64, unit string) {
	l.Info("Performance Metric",
		"metric", metric,
		"value", value,
		"unit", unit,
		"timestamp", time.Now().Format(time.RFC3339),
	)
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level slog.Level) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	})
	l.Logger = slog.New(handler)
}

var startTime = time.Now()
