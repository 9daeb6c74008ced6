package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animelytics/bombmeter/internal/analysis"
	"github.com/animelytics/bombmeter/internal/cache"
	"github.com/animelytics/bombmeter/internal/database"
	"github.com/animelytics/bombmeter/internal/leaderboard"
	"github.com/animelytics/bombmeter/internal/monitoring"
	"github.com/animelytics/bombmeter/internal/ratelimit"
	"github.com/animelytics/bombmeter/internal/types"
)

func newTestApp(t *testing.T) *application {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := monitoring.NewLogger()

	analyzer, err := analysis.NewAnalyzer(analysis.DefaultConfig(), logger.Logger)
	require.NoError(t, err)

	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	metrics := monitoring.NewMetrics()
	redisClient, err := ratelimit.NewRedisClient("", "", 0)
	require.NoError(t, err)

	return &application{
		analyzer:    analyzer,
		repo:        database.NewRepository(db),
		db:          db,
		cache:       cache.NewCache(time.Minute),
		limiter:     ratelimit.NewRateLimiter(redisClient, ratelimit.DefaultConfig(), metrics),
		metrics:     metrics,
		logger:      logger,
		leaderboard: leaderboard.NewService(db),
		memory:      monitoring.NewMemoryMonitor(time.Minute, 512*1024*1024, logger),
		retention:   database.NewRetentionService(db, 365),
	}
}

func healthyTitle(id int64, name string) *types.TitleRecord {
	return &types.TitleRecord{
		ID:           id,
		Title:        name,
		Rank:         300,
		AverageScore: 7.8,
		MemberCount:  400000,
		ContentType:  types.ContentTV,
		StartYear:    2021,
		Distribution: &types.ScoreDistribution{
			Percentages: map[int]float64{
				1: 1.8, 2: 1.4, 3: 2.0, 4: 3.8, 5: 7.5,
				6: 14.0, 7: 24.0, 8: 26.0, 9: 13.5, 10: 6.0,
			},
			TotalVotes: 200000,
		},
	}
}

func bombedTitle(id int64, name string) *types.TitleRecord {
	return &types.TitleRecord{
		ID:           id,
		Title:        name,
		Rank:         40,
		AverageScore: 8.6,
		MemberCount:  900000,
		ContentType:  types.ContentTV,
		StartYear:    2023,
		Distribution: &types.ScoreDistribution{
			Percentages: map[int]float64{
				1: 12.0, 2: 1.0, 3: 1.0, 4: 1.5, 5: 3.0,
				6: 5.5, 7: 11.0, 8: 21.0, 9: 25.0, 10: 19.0,
			},
			TotalVotes: 450000,
		},
	}
}

func postJSON(t *testing.T, r *gin.Engine, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	r := setupRouter(newTestApp(t))

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{name: "GET /health returns OK status", method: "GET", expectedStatus: http.StatusOK},
		{name: "POST /health not routed", method: "POST", expectedStatus: http.StatusNotFound},
		{name: "DELETE /health not routed", method: "DELETE", expectedStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(tt.method, "/health", nil)
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				var response map[string]interface{}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
				assert.Equal(t, "ok", response["status"])
			}
		})
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	r := setupRouter(newTestApp(t))

	t.Run("healthy title scores low", func(t *testing.T) {
		w := postJSON(t, r, "/analyze", healthyTitle(1, "Quiet Slice of Life"))
		require.Equal(t, http.StatusOK, w.Code)

		var m types.ReviewBombingMetrics
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
		assert.GreaterOrEqual(t, m.BombingScore, 0.0)
		assert.Less(t, m.BombingScore, 35.0)
		assert.Equal(t, types.SuspicionLow, m.SuspicionLevel)
	})

	t.Run("bombed title scores high", func(t *testing.T) {
		w := postJSON(t, r, "/analyze", bombedTitle(2, "Controversial Finale"))
		require.Equal(t, http.StatusOK, w.Code)

		var m types.ReviewBombingMetrics
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
		assert.GreaterOrEqual(t, m.BombingScore, 55.0)
		assert.LessOrEqual(t, m.BombingScore, 100.0)
		assert.Contains(t, []types.SuspicionLevel{types.SuspicionHigh, types.SuspicionCritical}, m.SuspicionLevel)
		assert.NotEmpty(t, m.MetricBreakdown)
	})

	t.Run("missing distribution is a validation error", func(t *testing.T) {
		title := healthyTitle(3, "No Votes Yet")
		title.Distribution = nil
		w := postJSON(t, r, "/analyze", title)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed JSON is a validation error", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/analyze", bytes.NewReader([]byte("{not json")))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAnalyzeEndpoint_CachesIdenticalRequests(t *testing.T) {
	app := newTestApp(t)
	r := setupRouter(app)

	first := postJSON(t, r, "/analyze", bombedTitle(4, "Cached Title"))
	require.Equal(t, http.StatusOK, first.Code)

	second := postJSON(t, r, "/analyze", bombedTitle(4, "Cached Title"))
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int64(1), app.metrics.GetStats()["cache_hits"])
}

func TestBatchEndpointPersistsRun(t *testing.T) {
	r := setupRouter(newTestApp(t))

	req := types.AnalyzeBatchRequest{
		Titles: []*types.TitleRecord{
			bombedTitle(10, "Bombed Sequel"),
			healthyTitle(11, "Healthy Show"),
		},
		FetchFailures: []types.FailureRecord{
			types.NewFailureRecord(12, types.StageFetch, "HTTPError", "status 403"),
		},
	}

	w := postJSON(t, r, "/analyze/batch", req)
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		RunID  string               `json:"run_id"`
		Result types.AnalysisResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

	assert.NotEmpty(t, response.RunID)
	assert.Equal(t, 3, response.Result.Summary.TotalRequested)
	assert.Equal(t, 2, response.Result.Summary.TotalAnalyzed)
	assert.Equal(t, 1, response.Result.Summary.TotalFailed)
	require.Len(t, response.Result.Metrics, 2)
	assert.Equal(t, "Bombed Sequel", response.Result.Metrics[0].Title)
	assert.Equal(t, 1, response.Result.Metrics[0].BombingRank)

	// the persisted run is retrievable
	getW := httptest.NewRecorder()
	getReq, _ := http.NewRequest("GET", "/runs/"+response.RunID, nil)
	r.ServeHTTP(getW, getReq)
	require.Equal(t, http.StatusOK, getW.Code)

	var run database.StoredRun
	require.NoError(t, json.Unmarshal(getW.Body.Bytes(), &run))
	assert.Equal(t, response.RunID, run.ID)
	assert.Equal(t, 2, run.TotalAnalyzed)
	assert.Len(t, run.Metrics, 2)
	assert.Len(t, run.Failures, 1)
}

func TestBatchEndpoint_MissingTitlesRejected(t *testing.T) {
	r := setupRouter(newTestApp(t))

	w := postJSON(t, r, "/analyze/batch", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRunNotFound(t *testing.T) {
	r := setupRouter(newTestApp(t))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/runs/no-such-run", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteRun(t *testing.T) {
	r := setupRouter(newTestApp(t))

	req := types.AnalyzeBatchRequest{
		Titles: []*types.TitleRecord{healthyTitle(50, "Deletable Show")},
	}
	w := postJSON(t, r, "/analyze/batch", req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RunID)

	w = httptest.NewRecorder()
	delReq, _ := http.NewRequest("DELETE", "/runs/"+resp.RunID, nil)
	r.ServeHTTP(w, delReq)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	getReq, _ := http.NewRequest("GET", "/runs/"+resp.RunID, nil)
	r.ServeHTTP(w, getReq)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	delReq, _ = http.NewRequest("DELETE", "/runs/no-such-run", nil)
	r.ServeHTTP(w, delReq)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListRuns(t *testing.T) {
	r := setupRouter(newTestApp(t))

	for i := 0; i < 3; i++ {
		req := types.AnalyzeBatchRequest{
			Titles: []*types.TitleRecord{healthyTitle(int64(100+i), fmt.Sprintf("Show %d", i))},
		}
		w := postJSON(t, r, "/analyze/batch", req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/runs?limit=2", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Runs  []database.RunListItem `json:"runs"`
		Count int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 2, response.Count)
	assert.Len(t, response.Runs, 2)
}

func TestLeaderboardEndpoint(t *testing.T) {
	r := setupRouter(newTestApp(t))

	req := types.AnalyzeBatchRequest{
		Titles: []*types.TitleRecord{
			bombedTitle(20, "Bombed A"),
			healthyTitle(21, "Healthy B"),
		},
	}
	w := postJSON(t, r, "/analyze/batch", req)
	require.Equal(t, http.StatusOK, w.Code)

	lbW := httptest.NewRecorder()
	lbReq, _ := http.NewRequest("GET", "/leaderboard/all_time", nil)
	r.ServeHTTP(lbW, lbReq)
	require.Equal(t, http.StatusOK, lbW.Code)

	var response leaderboard.Response
	require.NoError(t, json.Unmarshal(lbW.Body.Bytes(), &response))
	require.Len(t, response.Entries, 2)
	assert.Equal(t, "Bombed A", response.Entries[0].Title)
	assert.Equal(t, 1, response.Entries[0].Rank)

	badW := httptest.NewRecorder()
	badReq, _ := http.NewRequest("GET", "/leaderboard/fortnightly", nil)
	r.ServeHTTP(badW, badReq)
	assert.Equal(t, http.StatusBadRequest, badW.Code)
}

func TestStatsEndpoints(t *testing.T) {
	r := setupRouter(newTestApp(t))

	paths := []string{"/metrics", "/cache/stats", "/pools/database", "/ratelimit/stats", "/pools/compression", "/memory", "/retention"}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", path, nil)
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}
