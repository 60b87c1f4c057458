package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/formsheet/server/internal/models"
	"github.com/formsheet/server/internal/services"
	"github.com/formsheet/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LookupSourcesHandler manages the allow-list of tables lookups and catalogs may read.
type LookupSourcesHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewLookupSourcesHandler(db *gorm.DB, audit *services.AuditService) *LookupSourcesHandler {
	return &LookupSourcesHandler{DB: db, Audit: audit}
}

type lookupSourceRequest struct {
	Table    string   `json:"table"`
	Label    string   `json:"label"`
	Columns  []string `json:"columns"`
	IsActive *bool    `json:"isActive"`
}

func (h *LookupSourcesHandler) List(c *fiber.Ctx) error {
	var sources []models.LookupSource
	if err := h.DB.Order("table_name ASC").Find(&sources).Error; err != nil {
		return internalError(c, "lookup_sources_list_failed", err, "failed listing lookup sources")
	}
	return utils.Success(c, fiber.StatusOK, sources)
}

func (h *LookupSourcesHandler) Create(c *fiber.Ctx) error {
	var req lookupSourceRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	source := models.LookupSource{
		Table:    strings.TrimSpace(req.Table),
		Label:    strings.TrimSpace(req.Label),
		Columns:  datatypes.JSONSlice[string](trimmedStrings(req.Columns)),
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	if status, err := h.checkSource(&source, uuid.Nil); err != nil {
		return rejectSource(c, status, err)
	}

	if err := h.DB.Create(&source).Error; err != nil {
		return internalError(c, "lookup_source_create_failed", err, "failed creating lookup source")
	}

	recordAudit(c, h.Audit, services.AuditLookupSourceWrite, "lookup_source", &source.ID, map[string]interface{}{
		"table":   source.Table,
		"columns": []string(source.Columns),
	})

	return utils.Success(c, fiber.StatusCreated, source)
}

func (h *LookupSourcesHandler) Update(c *fiber.Ctx) error {
	sourceID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid lookup source id")
	}

	var source models.LookupSource
	if err := h.DB.First(&source, "id = ?", sourceID).Error; err != nil {
		if isNotFound(err) {
			return utils.Error(c, fiber.StatusNotFound, "lookup source not found")
		}
		return internalError(c, "lookup_source_fetch_failed", err, "failed fetching lookup source")
	}

	var req lookupSourceRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if table := strings.TrimSpace(req.Table); table != "" {
		source.Table = table
	}
	if req.Label != "" {
		source.Label = strings.TrimSpace(req.Label)
	}
	if req.Columns != nil {
		source.Columns = datatypes.JSONSlice[string](trimmedStrings(req.Columns))
	}
	if req.IsActive != nil {
		source.IsActive = *req.IsActive
	}
	if status, err := h.checkSource(&source, source.ID); err != nil {
		return rejectSource(c, status, err)
	}

	if err := h.DB.Save(&source).Error; err != nil {
		return internalError(c, "lookup_source_update_failed", err, "failed updating lookup source")
	}

	recordAudit(c, h.Audit, services.AuditLookupSourceWrite, "lookup_source", &source.ID, map[string]interface{}{
		"table":   source.Table,
		"columns": []string(source.Columns),
	})

	return utils.Success(c, fiber.StatusOK, source)
}

func (h *LookupSourcesHandler) Delete(c *fiber.Ctx) error {
	sourceID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid lookup source id")
	}

	// hard delete so the table can be registered again
	result := h.DB.Unscoped().Delete(&models.LookupSource{}, "id = ?", sourceID)
	if result.Error != nil {
		return internalError(c, "lookup_source_delete_failed", result.Error, "failed deleting lookup source")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "lookup source not found")
	}

	recordAudit(c, h.Audit, services.AuditLookupSourceDrop, "lookup_source", &sourceID, nil)

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "lookup source deleted"})
}

// checkSource validates source and returns the status to answer with when it is rejected.
// The table and every column must exist in the database, and a table may be registered once.
func (h *LookupSourcesHandler) checkSource(source *models.LookupSource, except uuid.UUID) (int, error) {
	if err := source.Validate(); err != nil {
		return fiber.StatusBadRequest, err
	}

	migrator := h.DB.Migrator()
	if !migrator.HasTable(source.Table) {
		return fiber.StatusBadRequest, fmt.Errorf("table %q does not exist", source.Table)
	}
	for _, column := range source.Columns {
		if !migrator.HasColumn(source.Table, column) {
			return fiber.StatusBadRequest, fmt.Errorf("column %q does not exist in %q", column, source.Table)
		}
	}

	query := h.DB.Model(&models.LookupSource{}).Where("table_name = ?", source.Table)
	if except != uuid.Nil {
		query = query.Where("id <> ?", except)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return fiber.StatusInternalServerError, err
	}
	if count > 0 {
		return fiber.StatusConflict, errors.New("this table is already registered")
	}
	return 0, nil
}

func rejectSource(c *fiber.Ctx, status int, err error) error {
	if status == fiber.StatusInternalServerError {
		return internalError(c, "lookup_source_check_failed", err, "failed checking lookup source")
	}
	if verr, ok := models.AsValidationError(err); ok {
		return utils.ValidationFailed(c, verr)
	}
	return utils.Error(c, status, err.Error())
}
