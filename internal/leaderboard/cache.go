package leaderboard

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/animelytics/bombmeter/internal/cache"
	"github.com/animelytics/bombmeter/internal/encoding"
)

// Cache provides caching for leaderboard data
type Cache struct {
	cache *cache.Cache
}

// NewCache creates a new leaderboard cache
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		cache: cache.NewCache(ttl),
	}
}

func (lc *Cache) leaderboardKey(period string, limit int) string {
	return fmt.Sprintf("leaderboard:%s:%d", period, limit)
}

func (lc *Cache) rankKey(titleID int64, period string) string {
	return fmt.Sprintf("rank:%d:%s", titleID, period)
}

// GetLeaderboard retrieves cached leaderboard data
func (lc *Cache) GetLeaderboard(period string, limit int) (*Response, bool) {
	data, found := lc.cache.Get(lc.leaderboardKey(period, limit))
	if !found {
		return nil, false
	}

	var response Response
	if err := encoding.UnmarshalJSON(data, &response); err != nil {
		slog.Error("Failed to unmarshal cached leaderboard data", "error", err, "period", period)
		return nil, false
	}

	slog.Debug("Leaderboard cache hit", "period", period, "limit", limit)
	return &response, true
}

// SetLeaderboard caches leaderboard data
func (lc *Cache) SetLeaderboard(period string, limit int, response *Response) {
	data, err := encoding.MarshalJSON(response)
	if err != nil {
		slog.Error("Failed to marshal leaderboard data for cache", "error", err, "period", period)
		return
	}

	lc.cache.Set(lc.leaderboardKey(period, limit), data)
	slog.Debug("Leaderboard cached", "period", period, "limit", limit, "entries", len(response.Entries))
}

// GetTitleRank retrieves cached rank data for a title
func (lc *Cache) GetTitleRank(titleID int64, period string) (*Entry, bool) {
	data, found := lc.cache.Get(lc.rankKey(titleID, period))
	if !found {
		return nil, false
	}

	var entry Entry
	if err := encoding.UnmarshalJSON(data, &entry); err != nil {
		slog.Error("Failed to unmarshal cached rank data", "error", err, "title_id", titleID)
		return nil, false
	}

	return &entry, true
}

// SetTitleRank caches rank data for a title
func (lc *Cache) SetTitleRank(titleID int64, period string, entry *Entry) {
	data, err := encoding.MarshalJSON(entry)
	if err != nil {
		slog.Error("Failed to marshal rank data for cache", "error", err, "title_id", titleID)
		return
	}

	lc.cache.Set(lc.rankKey(titleID, period), data)
}

// InvalidateAll drops all cached leaderboard entries, used after new runs
// are persisted so rankings pick up fresh scores immediately.
func (lc *Cache) InvalidateAll() {
	lc.cache.Clear()
	slog.Debug("Leaderboard cache cleared")
}

// GetStats returns cache statistics
func (lc *Cache) GetStats() map[string]interface{} {
	return lc.cache.Stats()
}

// WarmCache pre-populates the cache with the common query shapes
func (lc *Cache) WarmCache(service *Service) {
	slog.Info("Starting leaderboard cache warming")

	for _, period := range Periods() {
		for _, limit := range []int{25, 50} {
			if _, err := service.GetLeaderboard(period, limit); err != nil {
				slog.Error("Failed to warm leaderboard cache",
					"error", err, "period", period, "limit", limit)
			}
		}
	}

	slog.Info("Leaderboard cache warming completed")
}

// AutoRefresh sets up automatic cache refresh for leaderboard data
func (lc *Cache) AutoRefresh(service *Service, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			slog.Debug("Auto-refreshing leaderboard cache")
			lc.InvalidateAll()
			lc.WarmCache(service)
		}
	}()
}
