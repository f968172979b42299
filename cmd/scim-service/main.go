// Package main is the entry point for SCIMTool
// SCIMTool serves a SCIM 2.0 provisioning endpoint with request logging,
// an admin API, and periodic database backups
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/scimtool/scimtool/internal/activity"
	"github.com/scimtool/scimtool/internal/admin"
	"github.com/scimtool/scimtool/internal/audit"
	"github.com/scimtool/scimtool/internal/backup"
	"github.com/scimtool/scimtool/internal/common/config"
	"github.com/scimtool/scimtool/internal/common/database"
	"github.com/scimtool/scimtool/internal/common/logger"
	"github.com/scimtool/scimtool/internal/common/middleware"
	"github.com/scimtool/scimtool/internal/common/tracing"
	"github.com/scimtool/scimtool/internal/oauth"
	"github.com/scimtool/scimtool/internal/scim"
	"github.com/scimtool/scimtool/internal/server"
	"github.com/scimtool/scimtool/pkg/storage"
)

var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "unknown"
)

func main() {
	log := logger.New()
	defer log.Sync()

	admin.Version = Version
	admin.BuildTime = BuildTime
	admin.CommitHash = CommitHash

	log.Info("Starting SCIMTool",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", CommitHash),
	)

	cfg, err := config.Load("scim-service")
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	cfg.LogSecurityWarnings(log)

	// Initialize tracing
	tracingCfg := tracing.ConfigFromEnv("scim-service", cfg.Environment)
	shutdownTracer, err := tracing.Init(context.Background(), tracingCfg, log)
	if err != nil {
		log.Warn("Failed to initialize tracing", zap.Error(err))
	}

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// Create tables on startup; the tool is meant to come up against an
	// empty database
	resourceStore := scim.NewPostgresStore(db.Pool)
	if err := resourceStore.EnsureSchema(context.Background()); err != nil {
		log.Fatal("Failed to create resource tables", zap.Error(err))
	}
	logStore := audit.NewPostgresStore(db.Pool)
	if err := logStore.EnsureSchema(context.Background()); err != nil {
		log.Fatal("Failed to create log table", zap.Error(err))
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("scim-service"))
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(logger.GinMiddleware(log))
	if cfg.EnableRateLimit {
		router.Use(middleware.DistributedRateLimit(redis.Client, middleware.RateLimitConfig{
			Requests:     cfg.RateLimitRequests,
			Window:       time.Duration(cfg.RateLimitWindow) * time.Second,
			AuthRequests: cfg.RateLimitAuthRequests,
			AuthWindow:   time.Duration(cfg.RateLimitAuthWindow) * time.Second,
		}, log))
	}
	router.Use(middleware.PrometheusMetrics("scim-service"))
	router.Use(audit.Middleware(logStore, log))

	// Metrics endpoint
	router.GET("/metrics", middleware.MetricsHandler())

	userService := scim.NewUserService(resourceStore, log)
	groupService := scim.NewGroupService(resourceStore, log)

	// Token endpoint is the only unauthenticated API surface
	var tokenService *oauth.TokenService
	if cfg.JWTSecret != "" {
		clients := make([]oauth.Client, 0, len(cfg.OAuthClients))
		for _, c := range cfg.OAuthClients {
			clients = append(clients, oauth.Client{
				ID:         c.ClientID,
				SecretHash: c.SecretHash,
				Scopes:     c.Scopes,
			})
		}
		tokenService = oauth.NewTokenService(
			oauth.NewStaticRegistry(clients), cfg.JWTSecret, "scimtool", 0, log)
		oauth.NewHandler(tokenService, log).RegisterRoutes(router)
	}

	authRequired := oauth.AuthMiddleware(tokenService, cfg.SharedSecret, log)

	// SCIM endpoint
	scimGroup := router.Group("")
	scimGroup.Use(authRequired)
	scim.NewHandler(userService, groupService, log, cfg.APIPrefix).RegisterRoutes(scimGroup)

	// Admin API
	adminGroup := router.Group("/admin")
	adminGroup.Use(authRequired)
	audit.NewHandler(logStore, log).RegisterRoutes(adminGroup)
	admin.NewHandler(resourceStore, userService, groupService, logStore, log, cfg.APIPrefix).RegisterRoutes(adminGroup)
	activityParser := activity.NewParser(resourceStore, log)
	activity.NewHandler(activityParser, logStore, log).RegisterRoutes(adminGroup)

	// Backup worker with an append-only run journal next to the snapshot
	var backupWorker *backup.Worker
	if cfg.EnableBackup {
		journal, err := storage.NewFileAppendOnlyStore(cfg.BackupPath + ".journal")
		if err != nil {
			log.Fatal("Failed to open backup journal", zap.Error(err))
		}
		interval := time.Duration(cfg.BackupIntervalMinutes) * time.Minute
		backupWorker = backup.NewWorker(resourceStore, journal, cfg.BackupPath, interval, log)
		backupWorker.Start(context.Background())
	}
	backup.NewHandler(backupWorker, log).RegisterRoutes(adminGroup)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "scim-service",
			"version": Version,
		})
	})

	// Readiness check endpoint
	router.GET("/ready", func(c *gin.Context) {
		status := gin.H{"status": "ready", "postgres": "ok", "redis": "ok"}
		if err := db.Ping(); err != nil {
			status["status"] = "not ready"
			status["postgres"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		if err := redis.Ping(); err != nil {
			status["redis"] = "unhealthy"
		}
		c.JSON(http.StatusOK, status)
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Components close in order: the backup worker stops before the pool
	// it snapshots from goes away
	shutdownables := []server.Shutdownable{}
	if backupWorker != nil {
		shutdownables = append(shutdownables, backupWorker)
	}
	shutdownables = append(shutdownables, server.CloseDB(db), server.CloseRedis(redis))
	if shutdownTracer != nil {
		shutdownables = append(shutdownables, server.CloseTracer(shutdownTracer))
	}

	graceful := server.New(server.Config{
		Server:          httpServer,
		Logger:          log,
		Shutdownables:   shutdownables,
		ShutdownTimeout: 30 * time.Second,
	})

	go func() {
		log.Info("Server listening", zap.Int("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	graceful.Start()

	log.Info("Server exited")
}
