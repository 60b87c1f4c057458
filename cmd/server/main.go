package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/formsheet/server/internal/config"
	"github.com/formsheet/server/internal/database"
	"github.com/formsheet/server/internal/handlers"
	"github.com/formsheet/server/internal/llm"
	"github.com/formsheet/server/internal/metrics"
	"github.com/formsheet/server/internal/middleware"
	"github.com/formsheet/server/internal/ratelimit"
	"github.com/formsheet/server/internal/services"
	"github.com/formsheet/server/internal/sheets"
	"github.com/formsheet/server/internal/storage"
	"github.com/formsheet/server/pkg/logger"
	"github.com/formsheet/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}
	if err := database.SeedAdminUser(db, cfg.Server.AdminUsername, cfg.Server.AdminPassword); err != nil {
		log.Fatalf("failed seeding admin user: %v", err)
	}
	if _, err := database.EnsureAppSettings(db); err != nil {
		log.Fatalf("failed creating app settings: %v", err)
	}

	ctx := context.Background()

	sheetsService := newSheetsService(ctx, cfg.Sheets)

	store, err := storage.New(ctx, cfg.Storage, cfg.MinIO)
	if err != nil {
		log.Fatalf("storage initialization failed: %v", err)
	}

	auditService := services.NewAuditService(db)
	exportService := services.NewExportService(db, sheetsService, cfg.Export)
	exportService.RecoverStaleJobs()

	deps := handlers.Dependencies{
		DB:                  db,
		Sheets:              sheetsService,
		Export:              exportService,
		Reports:             services.NewReportService(sheetsService),
		AIReport:            services.NewAIReportService(sheetsService, llm.New(cfg.LLM)),
		Audit:               auditService,
		Store:               store,
		Limiter:             newLimiter(ctx, cfg.RateLimit),
		AllowRegistration:   cfg.Server.AllowRegistration,
		UploadMaxBytes:      cfg.Upload.MaxBytes,
		UploadPublicBaseURL: cfg.Storage.PublicBaseURL,
	}

	app := fiber.New(fiber.Config{BodyLimit: cfg.Server.BodyLimitMB * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(cfg.Server.CORSOrigins))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())
	app.Use(middleware.Metrics())

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handlers.RegisterRoutes(app, deps)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":          cfg.Server.Port,
		"address":       listenAddr,
		"body_limit_mb": cfg.Server.BodyLimitMB,
		"sheets":        sheetsService.Configured(),
		"storage":       cfg.Storage.Driver,
		"version":       handlers.Version,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}

	exportService.Close()
	auditService.Close()
}

// newSheetsService picks the spreadsheet backend. A misconfigured Google client leaves the
// server running with spreadsheet endpoints answering 503.
func newSheetsService(ctx context.Context, cfg config.SheetsConfig) *sheets.Service {
	if cfg.Driver == "memory" {
		logger.Warn("sheets_memory_driver", map[string]interface{}{
			"message": "spreadsheet data is kept in process and lost on restart",
		})
		return sheets.NewService(sheets.NewMemoryClient())
	}

	client, err := sheets.NewGoogleClient(ctx, cfg)
	if err != nil {
		logger.Error("sheets_client_init_failed", err, map[string]interface{}{
			"spreadsheet_id": cfg.SpreadsheetID,
		})
		return sheets.NewService(nil)
	}
	return sheets.NewService(client)
}

// newLimiter shares counters through Redis when REDIS_URL is set and falls back to
// per-process counting otherwise.
func newLimiter(ctx context.Context, cfg config.RateLimitConfig) ratelimit.Limiter {
	if cfg.Requests <= 0 {
		return nil
	}
	if cfg.RedisURL != "" {
		client, err := ratelimit.Connect(ctx, cfg.RedisURL)
		if err == nil {
			return ratelimit.NewRedisLimiter(client, cfg.Requests, cfg.Window)
		}
		logger.Error("rate_limit_redis_unavailable", err, nil)
	}
	return ratelimit.NewMemoryLimiter(cfg.Requests, cfg.Window)
}
