package handlers

import (
	"strings"

	"github.com/formsheet/server/internal/database"
	"github.com/formsheet/server/internal/models"
	"github.com/formsheet/server/internal/services"
	"github.com/formsheet/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AppSettingsHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewAppSettingsHandler(db *gorm.DB, audit *services.AuditService) *AppSettingsHandler {
	return &AppSettingsHandler{DB: db, Audit: audit}
}

// Get is public: the login page needs the logo and theme before anyone signs in.
func (h *AppSettingsHandler) Get(c *fiber.Ctx) error {
	settings, err := database.EnsureAppSettings(h.DB)
	if err != nil {
		return internalError(c, "app_settings_load_failed", err, "failed loading settings")
	}
	return utils.Success(c, fiber.StatusOK, settings)
}

type updateAppSettingsRequest struct {
	AppName         *string   `json:"appName" validate:"omitempty,min=1,max=255"`
	ExportSheetName *string   `json:"exportSheetName" validate:"omitempty,max=255"`
	ImportSheetName *string   `json:"importSheetName" validate:"omitempty,max=255"`
	LogoURL         *string   `json:"logoURL"`
	AppIconURL      *string   `json:"appIconURL"`
	Theme           *string   `json:"theme" validate:"omitempty,oneof=light dark system"`
	PrimaryColor    *string   `json:"primaryColor" validate:"omitempty,max=32"`
	LogoLocations   *[]string `json:"logoLocations" validate:"omitempty,dive,oneof=header login forms"`
}

// Update applies the fields present in the body and leaves the rest unchanged.
func (h *AppSettingsHandler) Update(c *fiber.Ctx) error {
	var req updateAppSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := models.ValidateStruct(req); err != nil {
		return validationFailed(c, err)
	}

	settings, err := database.EnsureAppSettings(h.DB)
	if err != nil {
		return internalError(c, "app_settings_load_failed", err, "failed loading settings")
	}

	changed := []string{}
	if req.AppName != nil {
		name := strings.TrimSpace(*req.AppName)
		if name == "" {
			return utils.Error(c, fiber.StatusBadRequest, "appName cannot be empty")
		}
		settings.AppName = name
		changed = append(changed, "appName")
	}
	if req.ExportSheetName != nil {
		settings.ExportSheetName = strings.TrimSpace(*req.ExportSheetName)
		changed = append(changed, "exportSheetName")
	}
	if req.ImportSheetName != nil {
		settings.ImportSheetName = strings.TrimSpace(*req.ImportSheetName)
		changed = append(changed, "importSheetName")
	}
	if req.LogoURL != nil {
		settings.LogoURL = nonEmpty(req.LogoURL)
		changed = append(changed, "logoURL")
	}
	if req.AppIconURL != nil {
		settings.AppIconURL = nonEmpty(req.AppIconURL)
		changed = append(changed, "appIconURL")
	}
	if req.Theme != nil {
		settings.Theme = *req.Theme
		changed = append(changed, "theme")
	}
	if req.PrimaryColor != nil {
		settings.PrimaryColor = strings.TrimSpace(*req.PrimaryColor)
		changed = append(changed, "primaryColor")
	}
	if req.LogoLocations != nil {
		settings.LogoLocations = datatypes.JSONSlice[string](dedupe(*req.LogoLocations))
		changed = append(changed, "logoLocations")
	}

	if len(changed) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Save(settings).Error; err != nil {
		return internalError(c, "app_settings_update_failed", err, "failed updating settings")
	}

	recordAudit(c, h.Audit, services.AuditSettingsUpdate, "app_settings", nil, map[string]interface{}{
		"fields": changed,
	})

	return utils.Success(c, fiber.StatusOK, settings)
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
