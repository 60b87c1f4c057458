package handlers

import (
	"strings"

	"github.com/formsheet/server/internal/middleware"
	"github.com/formsheet/server/internal/models"
	"github.com/formsheet/server/internal/services"
	"github.com/formsheet/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ReportTemplatesHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewReportTemplatesHandler(db *gorm.DB, audit *services.AuditService) *ReportTemplatesHandler {
	return &ReportTemplatesHandler{DB: db, Audit: audit}
}

type reportTemplateRequest struct {
	Name         string                   `json:"name"`
	Description  string                   `json:"description"`
	ThumbnailURL *string                  `json:"thumbnailURL"`
	SheetName    string                   `json:"sheetName"`
	Parameters   []models.ReportParameter `json:"parameters"`
	Sections     []models.ReportSection   `json:"sections"`
	AllowedUsers []string                 `json:"allowedUsers"`
}

func (r reportTemplateRequest) apply(template *models.ReportTemplate) {
	template.Name = strings.TrimSpace(r.Name)
	template.Description = strings.TrimSpace(r.Description)
	template.ThumbnailURL = nonEmpty(r.ThumbnailURL)
	template.SheetName = strings.TrimSpace(r.SheetName)
	template.Parameters = datatypes.JSONSlice[models.ReportParameter](r.Parameters)
	template.Sections = datatypes.JSONSlice[models.ReportSection](r.Sections)
	template.AllowedUsers = datatypes.JSONSlice[string](trimmedStrings(r.AllowedUsers))
}

func (h *ReportTemplatesHandler) List(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var templates []models.ReportTemplate
	query := utils.ApplySearch(h.DB.Order("name ASC"), c.Query("search"), "name", "description")
	if err := query.Find(&templates).Error; err != nil {
		return internalError(c, "report_templates_list_failed", err, "failed listing report templates")
	}

	visible := make([]models.ReportTemplate, 0, len(templates))
	for i := range templates {
		if templates[i].AllowsUser(user) {
			visible = append(visible, templates[i])
		}
	}
	return utils.Success(c, fiber.StatusOK, visible)
}

func (h *ReportTemplatesHandler) Get(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	template, status, err := findReportTemplate(h.DB, c.Params("id"), user)
	if err != nil {
		if status == fiber.StatusInternalServerError {
			return internalError(c, "report_template_fetch_failed", err, "failed fetching report template")
		}
		return utils.Error(c, status, err.Error())
	}
	return utils.Success(c, fiber.StatusOK, template)
}

func (h *ReportTemplatesHandler) Create(c *fiber.Ctx) error {
	var req reportTemplateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	var template models.ReportTemplate
	req.apply(&template)
	if err := models.ValidateReportTemplate(&template); err != nil {
		return validationFailed(c, err)
	}
	if user := middleware.GetCurrentUser(c); user != nil {
		template.CreatedByID = &user.ID
	}

	if err := h.DB.Create(&template).Error; err != nil {
		return internalError(c, "report_template_create_failed", err, "failed creating report template")
	}

	recordAudit(c, h.Audit, services.AuditReportCreate, "report_template", &template.ID, map[string]interface{}{
		"name":     template.Name,
		"sections": len(template.Sections),
	})

	return utils.Success(c, fiber.StatusCreated, template)
}

func (h *ReportTemplatesHandler) Update(c *fiber.Ctx) error {
	templateID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid report template id")
	}

	var template models.ReportTemplate
	if err := h.DB.First(&template, "id = ?", templateID).Error; err != nil {
		if isNotFound(err) {
			return utils.Error(c, fiber.StatusNotFound, "report template not found")
		}
		return internalError(c, "report_template_fetch_failed", err, "failed fetching report template")
	}

	var req reportTemplateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.apply(&template)
	if err := models.ValidateReportTemplate(&template); err != nil {
		return validationFailed(c, err)
	}

	if err := h.DB.Save(&template).Error; err != nil {
		return internalError(c, "report_template_update_failed", err, "failed updating report template")
	}

	recordAudit(c, h.Audit, services.AuditReportUpdate, "report_template", &template.ID, map[string]interface{}{
		"name":     template.Name,
		"sections": len(template.Sections),
	})

	return utils.Success(c, fiber.StatusOK, template)
}

func (h *ReportTemplatesHandler) Delete(c *fiber.Ctx) error {
	templateID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid report template id")
	}

	result := h.DB.Delete(&models.ReportTemplate{}, "id = ?", templateID)
	if result.Error != nil {
		return internalError(c, "report_template_delete_failed", result.Error, "failed deleting report template")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "report template not found")
	}

	recordAudit(c, h.Audit, services.AuditReportDelete, "report_template", &templateID, nil)

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "report template deleted"})
}

func findReportTemplate(db *gorm.DB, rawID string, user *models.User) (*models.ReportTemplate, int, error) {
	templateID, err := parseUUID(rawID)
	if err != nil {
		return nil, fiber.StatusBadRequest, errInvalidTemplateID
	}

	var template models.ReportTemplate
	if err := db.First(&template, "id = ?", templateID).Error; err != nil {
		if isNotFound(err) {
			return nil, fiber.StatusNotFound, errTemplateNotFound
		}
		return nil, fiber.StatusInternalServerError, err
	}
	if !template.AllowsUser(user) {
		return nil, fiber.StatusForbidden, errTemplateForbidden
	}
	return &template, 0, nil
}
