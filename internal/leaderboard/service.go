package leaderboard

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/animelytics/bombmeter/internal/database"
)

// Entry is one title on the most-bombed leaderboard. Scores are aggregated
// across all persisted runs in the period, so a title keeps its worst
// observed score.
type Entry struct {
	TitleID        int64     `json:"title_id"`
	Title          string    `json:"title"`
	BombingScore   float64   `json:"bombing_score"`
	AdjustedScore  float64   `json:"adjusted_score"`
	SuspicionLevel string    `json:"suspicion_level"`
	Rank           int       `json:"rank"`
	RunID          string    `json:"run_id"`
	LastSeen       time.Time `json:"last_seen"`
}

// Response represents the response for leaderboard queries
type Response struct {
	Entries     []Entry   `json:"entries"`
	Total       int       `json:"total"`
	Period      string    `json:"period"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Service ranks titles by bombing score across persisted analysis runs.
type Service struct {
	db    *database.DB
	cache *Cache
}

// NewService creates a new leaderboard service
func NewService(db *database.DB) *Service {
	return &Service{
		db:    db,
		cache: NewCache(15 * time.Minute),
	}
}

// NewServiceWithCache creates a new leaderboard service with custom cache
func NewServiceWithCache(db *database.DB, cache *Cache) *Service {
	return &Service{
		db:    db,
		cache: cache,
	}
}

// periodCutoff maps a period name to the earliest created_at it includes.
// A zero time means no cutoff.
func periodCutoff(period string, now time.Time) (time.Time, error) {
	switch period {
	case "daily":
		return now.Add(-24 * time.Hour), nil
	case "weekly":
		return now.Add(-7 * 24 * time.Hour), nil
	case "monthly":
		return now.Add(-30 * 24 * time.Hour), nil
	case "all_time":
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("invalid period: %s", period)
	}
}

// GetLeaderboard returns the most-bombed titles for a period, highest
// bombing score first.
func (s *Service) GetLeaderboard(period string, limit int) (*Response, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	if cached, found := s.cache.GetLeaderboard(period, limit); found {
		return cached, nil
	}

	now := time.Now()
	cutoff, err := periodCutoff(period, now)
	if err != nil {
		return nil, err
	}

	// SQLite resolves the bare columns to the row that supplied
	// MAX(bombing_score), so level and run line up with the score.
	query := `
		SELECT title_id, title, MAX(bombing_score), adjusted_score,
		       suspicion_level, run_id, MAX(created_at)
		FROM title_metrics
		WHERE created_at >= ?
		GROUP BY title_id
		ORDER BY MAX(bombing_score) DESC, title_id ASC
		LIMIT ?
	`

	rows, err := s.db.Query(query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	rank := 1
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.TitleID, &e.Title, &e.BombingScore, &e.AdjustedScore,
			&e.SuspicionLevel, &e.RunID, &e.LastSeen,
		); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		e.Rank = rank
		rank++
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	response := &Response{
		Entries:     entries,
		Total:       len(entries),
		Period:      period,
		GeneratedAt: now,
	}

	s.cache.SetLeaderboard(period, limit, response)

	return response, nil
}

// GetTitleRank returns a title's position on the leaderboard for a period.
// Returns sql.ErrNoRows when the title has no analyzed metrics in the period.
func (s *Service) GetTitleRank(titleID int64, period string) (*Entry, error) {
	if cached, found := s.cache.GetTitleRank(titleID, period); found {
		return cached, nil
	}

	now := time.Now()
	cutoff, err := periodCutoff(period, now)
	if err != nil {
		return nil, err
	}

	var e Entry
	err = s.db.QueryRow(`
		SELECT title_id, title, MAX(bombing_score), adjusted_score,
		       suspicion_level, run_id, MAX(created_at)
		FROM title_metrics
		WHERE title_id = ? AND created_at >= ?
		GROUP BY title_id
	`, titleID, cutoff).Scan(
		&e.TitleID, &e.Title, &e.BombingScore, &e.AdjustedScore,
		&e.SuspicionLevel, &e.RunID, &e.LastSeen,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get title rank: %w", err)
	}

	var better int
	err = s.db.QueryRow(`
		SELECT COUNT(*) FROM (
			SELECT title_id FROM title_metrics
			WHERE created_at >= ?
			GROUP BY title_id
			HAVING MAX(bombing_score) > ?
		)
	`, cutoff, e.BombingScore).Scan(&better)
	if err != nil {
		return nil, fmt.Errorf("failed to count higher-ranked titles: %w", err)
	}
	e.Rank = better + 1

	s.cache.SetTitleRank(titleID, period, &e)

	return &e, nil
}

// InvalidateCache drops cached rankings so the next query sees fresh runs.
func (s *Service) InvalidateCache() {
	s.cache.InvalidateAll()
}

// GetCacheStats returns leaderboard cache statistics
func (s *Service) GetCacheStats() map[string]interface{} {
	return s.cache.GetStats()
}

// WarmCache warms the leaderboard cache with the common query shapes
func (s *Service) WarmCache() {
	s.cache.WarmCache(s)
}

// StartAutoRefresh starts automatic cache refresh
func (s *Service) StartAutoRefresh(interval time.Duration) {
	s.cache.AutoRefresh(s, interval)
}

// Periods returns the supported leaderboard periods.
func Periods() []string {
	return []string{"daily", "weekly", "monthly", "all_time"}
}
