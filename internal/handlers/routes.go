package handlers

import (
	"github.com/formsheet/server/internal/middleware"
	"github.com/formsheet/server/internal/models"
	"github.com/formsheet/server/internal/ratelimit"
	"github.com/formsheet/server/internal/services"
	"github.com/formsheet/server/internal/sheets"
	"github.com/formsheet/server/internal/storage"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Dependencies is everything the HTTP API needs. Limiter may be nil to disable rate limiting.
type Dependencies struct {
	DB       *gorm.DB
	Sheets   *sheets.Service
	Export   *services.ExportService
	Reports  *services.ReportService
	AIReport *services.AIReportService
	Audit    *services.AuditService
	Store    storage.ObjectStore
	Limiter  ratelimit.Limiter

	AllowRegistration   bool
	UploadMaxBytes      int64
	UploadPublicBaseURL string
}

// RegisterRoutes mounts the API under /api, uploads under /uploads and the health probe.
func RegisterRoutes(app *fiber.App, deps Dependencies) {
	authHandler := NewAuthHandler(deps.DB, deps.Audit, deps.AllowRegistration)
	usersHandler := NewUsersHandler(deps.DB, deps.Audit)
	formsHandler := NewFormsHandler(deps.DB, deps.Audit)
	submitHandler := NewSubmitHandler(deps.DB, deps.Export, deps.Audit)
	exportJobsHandler := NewExportJobsHandler(deps.DB, deps.Export, deps.Audit)
	lookupHandler := NewLookupHandler(deps.DB)
	lookupSourcesHandler := NewLookupSourcesHandler(deps.DB, deps.Audit)
	sheetsHandler := NewSheetsHandler(deps.Sheets)
	reportTemplatesHandler := NewReportTemplatesHandler(deps.DB, deps.Audit)
	reportsHandler := NewReportsHandler(deps.DB, deps.Reports)
	aiReportsHandler := NewAIReportsHandler(deps.DB, deps.AIReport, deps.Audit)
	appSettingsHandler := NewAppSettingsHandler(deps.DB, deps.Audit)
	uploadsHandler := NewUploadsHandler(deps.Store, deps.Audit, deps.UploadMaxBytes, deps.UploadPublicBaseURL)
	auditHandler := NewAuditHandler(deps.DB)
	authMiddleware := middleware.NewAuthMiddleware(deps.DB)

	requireAuth := authMiddleware.RequireAuth
	adminOnly := middleware.AdminOnly

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/uploads/*", uploadsHandler.Serve)

	api := app.Group("/api")
	if deps.Limiter != nil {
		api.Use(middleware.RateLimit(deps.Limiter))
	}
	api.Get("/version", GetVersion)

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/verify", requireAuth, authHandler.Verify)
	authRoutes.Get("/me", requireAuth, authHandler.Me)
	authRoutes.Put("/me", requireAuth, authHandler.UpdateMe)
	authRoutes.Put("/password", requireAuth, authHandler.ChangePassword)

	userRoutes := api.Group("/users", requireAuth, adminOnly)
	userRoutes.Get("/", usersHandler.List)
	userRoutes.Post("/", usersHandler.Create)
	userRoutes.Get("/:id", usersHandler.Get)
	userRoutes.Put("/:id", usersHandler.Update)
	userRoutes.Delete("/:id", usersHandler.Delete)

	formRoutes := api.Group("/forms", requireAuth)
	formRoutes.Get("/", formsHandler.List)
	formRoutes.Post("/", adminOnly, formsHandler.Create)
	formRoutes.Get("/:id", formsHandler.Get)
	formRoutes.Get("/:id/initial-values", formsHandler.InitialValues)
	formRoutes.Put("/:id", adminOnly, formsHandler.Update)
	formRoutes.Delete("/:id", adminOnly, formsHandler.Delete)

	api.Post("/submit-form", requireAuth, submitHandler.Submit)

	exportRoutes := api.Group("/export-jobs", requireAuth, adminOnly)
	exportRoutes.Get("/", exportJobsHandler.List)
	exportRoutes.Get("/:id", exportJobsHandler.Get)
	exportRoutes.Post("/:id/retry", exportJobsHandler.Retry)

	api.Post("/qr-lookup", requireAuth, lookupHandler.QRLookup)
	api.Get("/catalogs", requireAuth, lookupHandler.Catalogs)
	api.Get("/catalogs/:table/items", requireAuth, lookupHandler.CatalogItems)

	sourceRoutes := api.Group("/lookup-sources", requireAuth, adminOnly)
	sourceRoutes.Get("/", lookupSourcesHandler.List)
	sourceRoutes.Post("/", lookupSourcesHandler.Create)
	sourceRoutes.Put("/:id", lookupSourcesHandler.Update)
	sourceRoutes.Delete("/:id", lookupSourcesHandler.Delete)

	sheetRoutes := api.Group("/sheets", requireAuth, adminOnly)
	sheetRoutes.Get("/validate", sheetsHandler.Validate)
	sheetRoutes.Get("/data", sheetsHandler.Data)
	sheetRoutes.Get("/headers", sheetsHandler.Headers)
	sheetRoutes.Get("/titles", sheetsHandler.Titles)

	templateRoutes := api.Group("/report-templates", requireAuth)
	templateRoutes.Get("/", reportTemplatesHandler.List)
	templateRoutes.Post("/", adminOnly, reportTemplatesHandler.Create)
	templateRoutes.Get("/:id", reportTemplatesHandler.Get)
	templateRoutes.Put("/:id", adminOnly, reportTemplatesHandler.Update)
	templateRoutes.Delete("/:id", adminOnly, reportTemplatesHandler.Delete)

	api.Get("/report-data", requireAuth, reportsHandler.ReportData)
	api.Get("/report-data/export", requireAuth, reportsHandler.Export)

	api.Post("/ai-reports", requireAuth, middleware.RequireRole(models.UserRoleAdmin, models.UserRoleManager), aiReportsHandler.Generate)

	api.Get("/app-settings", appSettingsHandler.Get)
	api.Post("/app-settings", requireAuth, adminOnly, appSettingsHandler.Update)
	api.Put("/app-settings", requireAuth, adminOnly, appSettingsHandler.Update)

	api.Post("/uploads/:kind", requireAuth, adminOnly, uploadsHandler.Upload)

	auditRoutes := api.Group("/audit-log", requireAuth, adminOnly)
	auditRoutes.Get("/", auditHandler.List)
	auditRoutes.Get("/export", auditHandler.Export)
}
