package handlers

import (
	"strings"
	"unicode/utf8"

	"github.com/formsheet/server/internal/database"
	"github.com/formsheet/server/internal/services"
	"github.com/formsheet/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const maxAIPromptLength = 2000

type AIReportsHandler struct {
	DB       *gorm.DB
	AIReport *services.AIReportService
	Audit    *services.AuditService
}

func NewAIReportsHandler(db *gorm.DB, aiReport *services.AIReportService, audit *services.AuditService) *AIReportsHandler {
	return &AIReportsHandler{DB: db, AIReport: aiReport, Audit: audit}
}

type aiReportRequest struct {
	Prompt    string `json:"prompt"`
	SheetName string `json:"sheetName"`
}

// Generate answers POST /api/ai-reports. Without an explicit sheet the import tab from the
// app settings is used, then the export tab.
func (h *AIReportsHandler) Generate(c *fiber.Ctx) error {
	var req aiReportRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return utils.Error(c, fiber.StatusBadRequest, "prompt is required")
	}
	if utf8.RuneCountInString(prompt) > maxAIPromptLength {
		return utils.Error(c, fiber.StatusBadRequest, "prompt is too long")
	}

	sheet := strings.TrimSpace(req.SheetName)
	if sheet == "" {
		settings, err := database.EnsureAppSettings(h.DB)
		if err != nil {
			return internalError(c, "ai_report_settings_failed", err, "failed loading settings")
		}
		sheet = strings.TrimSpace(settings.ImportSheetName)
		if sheet == "" {
			sheet = strings.TrimSpace(settings.ExportSheetName)
		}
	}

	report, err := h.AIReport.Generate(c.UserContext(), prompt, sheet)
	if err != nil {
		return internalError(c, "ai_report_failed", err, "failed generating report")
	}

	recordAudit(c, h.Audit, services.AuditAIReport, "ai_report", nil, map[string]interface{}{
		"sheet":       sheet,
		"report_type": report.Intent.ReportType,
		"model":       report.Model,
	})

	return utils.Success(c, fiber.StatusOK, report)
}
