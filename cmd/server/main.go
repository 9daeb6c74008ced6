package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/animelytics/bombmeter/internal/analysis"
	"github.com/animelytics/bombmeter/internal/cache"
	"github.com/animelytics/bombmeter/internal/database"
	apperrors "github.com/animelytics/bombmeter/internal/errors"
	"github.com/animelytics/bombmeter/internal/leaderboard"
	"github.com/animelytics/bombmeter/internal/middleware"
	"github.com/animelytics/bombmeter/internal/monitoring"
	"github.com/animelytics/bombmeter/internal/ratelimit"
	"github.com/animelytics/bombmeter/internal/security"
	"github.com/animelytics/bombmeter/internal/types"
)

// application bundles the server dependencies so the router can be built the
// same way in main and in tests.
type application struct {
	analyzer    *analysis.Analyzer
	repo        *database.Repository
	db          *database.DB
	cache       *cache.Cache
	limiter     *ratelimit.RateLimiter
	metrics     *monitoring.Metrics
	logger      *monitoring.Logger
	leaderboard *leaderboard.Service
	memory      *monitoring.MemoryMonitor
	retention   *database.RetentionService
}

func main() {
	logger := monitoring.NewLogger()
	slog.SetDefault(logger.Logger)

	// Configuration from environment with defaults
	dataDir := getEnvOrDefault("DATA_DIR", "./data")
	port := getEnvOrDefault("PORT", "8080")
	redisURL := os.Getenv("REDIS_URL")
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB, _ := strconv.Atoi(getEnvOrDefault("REDIS_DB", "0"))
	profile := getEnvOrDefault("CALIBRATION_PROFILE", "default")

	calibration := analysis.NewCalibrationStore(dataDir)
	cfg, err := calibration.LoadConfig(profile)
	if err != nil {
		slog.Error("Failed to load calibration profile", "profile", profile, "error", err)
		os.Exit(1)
	}

	analyzer, err := analysis.NewAnalyzer(cfg, logger.Logger)
	if err != nil {
		slog.Error("Failed to initialize analyzer", "error", err)
		os.Exit(1)
	}

	db, err := database.NewDB(dataDir)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := database.NewRepository(db)

	appMetrics := monitoring.NewMetrics()

	redisClient, err := ratelimit.NewRedisClient(redisURL, redisPassword, redisDB)
	if err != nil {
		// the limiter degrades to its in-memory fallback
		slog.Warn("Redis unavailable", "error", err)
	}
	limiter := ratelimit.NewRateLimiter(redisClient, ratelimit.DefaultConfig(), appMetrics)
	defer redisClient.Close()

	memoryMonitor := monitoring.NewMemoryMonitor(5*time.Second, 50*1024*1024, logger)
	memoryMonitor.Start()
	defer memoryMonitor.Stop()

	retentionDays, _ := strconv.Atoi(getEnvOrDefault("RETENTION_DAYS", "365"))
	retention := database.NewRetentionService(db, retentionDays)
	retentionStop := make(chan struct{})
	retention.Start(24*time.Hour, retentionStop)
	defer close(retentionStop)

	leaderboardService := leaderboard.NewService(db)

	// Warm up leaderboard cache and start auto-refresh
	go func() {
		slog.Info("Warming up leaderboard cache")
		leaderboardService.WarmCache()
		leaderboardService.StartAutoRefresh(10 * time.Minute)
	}()

	app := &application{
		analyzer:    analyzer,
		repo:        repo,
		db:          db,
		cache:       cache.NewCache(15 * time.Minute),
		limiter:     limiter,
		metrics:     appMetrics,
		logger:      logger,
		leaderboard: leaderboardService,
		memory:      memoryMonitor,
		retention:   retention,
	}

	r := setupRouter(app)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		slog.Info("Starting server", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}

// setupRouter wires the middleware chain and routes.
func setupRouter(app *application) *gin.Engine {
	r := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	r.Use(cors.New(corsConfig))

	compression := middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig())
	r.Use(compression.Handler())

	r.Use(monitoring.MonitoringMiddleware(app.metrics, app.logger))
	r.Use(apperrors.ErrorHandler())
	r.Use(apperrors.RecoveryHandler())

	securityMiddleware := security.NewSecurityMiddleware(security.DefaultSecurityConfig())
	r.Use(securityMiddleware.SecurityHeaders)
	r.Use(securityMiddleware.RequestTimeout)
	r.Use(securityMiddleware.ValidateContentType)
	r.Use(securityMiddleware.LimitBodySize)

	r.Use(app.limiter.IPRateLimitMiddleware())

	// Identical distributions produce identical metrics, so single-title
	// analyses can be served from cache. Batch runs are persisted with a
	// fresh run ID each time and must not be cached.
	r.Use(app.cache.Middleware(app.metrics, "/analyze"))

	r.GET("/health", app.handleHealth)
	r.POST("/analyze", app.handleAnalyze)
	r.POST("/analyze/batch", app.limiter.BatchRateLimitMiddleware(), app.handleAnalyzeBatch)
	r.GET("/runs", app.handleListRuns)
	r.GET("/runs/:id", app.handleGetRun)
	r.DELETE("/runs/:id", app.handleDeleteRun)
	r.GET("/leaderboard/:period", app.handleLeaderboard)
	r.GET("/leaderboard/:period/rank/:titleID", app.handleTitleRank)

	r.GET("/leaderboard/cache/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, app.leaderboard.GetCacheStats())
	})

	r.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, app.metrics.GetStats())
	})

	r.GET("/cache/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, app.cache.Stats())
	})

	r.GET("/pools/database", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"pool":  "database",
			"stats": app.db.GetPoolStats(),
		})
	})

	r.GET("/ratelimit/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, app.limiter.GetStats())
	})

	r.GET("/memory", func(c *gin.Context) {
		c.JSON(http.StatusOK, app.memory.GetStats())
	})

	r.POST("/memory/gc", func(c *gin.Context) {
		app.memory.ForceGC()
		c.JSON(http.StatusOK, gin.H{"status": "gc completed"})
	})

	r.GET("/retention", func(c *gin.Context) {
		c.JSON(http.StatusOK, app.retention.RetentionInfo())
	})

	r.GET("/pools/compression", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"pool":  "compression",
			"stats": compression.GetStats(),
		})
	})

	// Swagger documentation routes
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Performance profiling endpoints (development only)
	if os.Getenv("ENABLE_PROFILING") == "true" {
		slog.Info("Enabling performance profiling endpoints")
		r.GET("/debug/pprof/*filepath", gin.WrapF(pprof.Index))
		r.GET("/debug/pprof/cmdline", gin.WrapF(pprof.Cmdline))
		r.GET("/debug/pprof/profile", gin.WrapF(pprof.Profile))
		r.GET("/debug/pprof/symbol", gin.WrapF(pprof.Symbol))
		r.GET("/debug/pprof/trace", gin.WrapF(pprof.Trace))
	}

	return r
}

func (app *application) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
	})
}

// handleAnalyze computes review-bombing metrics for a single title. The
// minimum-vote gate does not apply here so low-volume titles can still be
// inspected explicitly.
func (app *application) handleAnalyze(c *gin.Context) {
	start := time.Now()

	var title types.TitleRecord
	if err := c.BindJSON(&title); err != nil {
		appErr := apperrors.NewValidationError("invalid title payload", err.Error())
		apperrors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	metrics, err := app.analyzer.AnalyzeSingle(&title)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.Is(err, analysis.ErrMissingDistribution) {
			appErr = apperrors.NewValidationError("title has no score distribution to analyze")
		} else {
			appErr = apperrors.ToAppError(err)
		}
		apperrors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	app.metrics.IncrementSingleAnalysis()
	app.logger.AnalysisLogger(title.ID, title.Title, metrics.BombingScore,
		string(metrics.SuspicionLevel), time.Since(start), false)

	c.JSON(http.StatusOK, metrics)
}

// handleAnalyzeBatch analyzes a batch of titles, persists the run and returns
// the run ID alongside the full result. Persistence failures are logged but do
// not fail the request; the computed result is still returned.
func (app *application) handleAnalyzeBatch(c *gin.Context) {
	start := time.Now()

	var req types.AnalyzeBatchRequest
	if err := c.BindJSON(&req); err != nil {
		appErr := apperrors.NewValidationError("invalid batch payload", err.Error())
		apperrors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	result := app.analyzer.AnalyzeBatch(req.Titles, req.FetchFailures)

	runID, err := app.repo.SaveRun(result)
	if err != nil {
		app.logger.StorageLogger("save_run", runID, 0, err)
	} else {
		app.metrics.IncrementRunPersisted()
		app.logger.StorageLogger("save_run", runID, len(result.Metrics), nil)
		app.leaderboard.InvalidateCache()
	}

	app.metrics.RecordBatch(result.Summary.TotalAnalyzed, result.Summary.TotalSkipped,
		result.Summary.TotalFailed, result.Summary.SuspiciousCount)
	app.logger.BatchLogger(runID, result.Summary.TotalRequested, result.Summary.TotalAnalyzed,
		result.Summary.TotalFailed, result.Summary.TotalSkipped,
		result.Summary.SuspiciousCount, time.Since(start))

	c.JSON(http.StatusOK, gin.H{
		"run_id": runID,
		"result": result,
	})
}

func (app *application) handleGetRun(c *gin.Context) {
	runID := c.Param("id")

	run, err := app.repo.GetRun(runID)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.Is(err, sql.ErrNoRows) {
			appErr = apperrors.NewNotFoundError("analysis run", runID)
		} else {
			appErr = apperrors.NewStorageError("failed to load analysis run", err)
		}
		apperrors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, run)
}

// handleDeleteRun removes a stored run and its metric and failure rows.
func (app *application) handleDeleteRun(c *gin.Context) {
	runID := c.Param("id")

	if _, err := app.repo.GetRun(runID); err != nil {
		var appErr *apperrors.AppError
		if errors.Is(err, sql.ErrNoRows) {
			appErr = apperrors.NewNotFoundError("analysis run", runID)
		} else {
			appErr = apperrors.NewStorageError("failed to load analysis run", err)
		}
		apperrors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	if err := app.retention.DeleteRun(runID); err != nil {
		appErr := apperrors.NewStorageError("failed to delete analysis run", err)
		apperrors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	app.leaderboard.InvalidateCache()
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "run_id": runID})
}

// handleLeaderboard returns the most-bombed titles across stored runs.
func (app *application) handleLeaderboard(c *gin.Context) {
	period := c.Param("period")
	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	response, err := app.leaderboard.GetLeaderboard(period, limit)
	if err != nil {
		appErr := apperrors.NewValidationError(err.Error())
		apperrors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (app *application) handleTitleRank(c *gin.Context) {
	period := c.Param("period")
	titleID, err := strconv.ParseInt(c.Param("titleID"), 10, 64)
	if err != nil {
		appErr := apperrors.NewValidationError("title ID must be an integer")
		apperrors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	entry, err := app.leaderboard.GetTitleRank(titleID, period)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.Is(err, sql.ErrNoRows) {
			appErr = apperrors.NewNotFoundError("leaderboard entry", c.Param("titleID"))
		} else {
			appErr = apperrors.NewValidationError(err.Error())
		}
		apperrors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, entry)
}

func (app *application) handleListRuns(c *gin.Context) {
	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	runs, err := app.repo.ListRuns(limit)
	if err != nil {
		appErr := apperrors.NewStorageError("failed to list analysis runs", err)
		apperrors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
