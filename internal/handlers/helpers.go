package handlers

import (
	"errors"
	"strings"

	"github.com/formsheet/server/internal/middleware"
	"github.com/formsheet/server/internal/models"
	"github.com/formsheet/server/internal/services"
	"github.com/formsheet/server/internal/sheets"
	"github.com/formsheet/server/pkg/logger"
	"github.com/formsheet/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	errInvalidFormID     = errors.New("invalid form id")
	errFormNotFound      = errors.New("form not found")
	errFormForbidden     = errors.New("you do not have access to this form")
	errInvalidTemplateID = errors.New("invalid report template id")
	errTemplateNotFound  = errors.New("report template not found")
	errTemplateForbidden = errors.New("you do not have access to this report")
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

func getRequestID(c *fiber.Ctx) string {
	return middleware.GetRequestID(c)
}

func recordAudit(c *fiber.Ctx, audit *services.AuditService, action, resourceType string, resourceID *uuid.UUID, details map[string]interface{}) {
	var userID *uuid.UUID
	if user := middleware.GetCurrentUser(c); user != nil {
		id := user.ID
		userID = &id
	}
	audit.LogAsync(services.AuditEntry{
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})
}

// internalError logs err with the request context and answers with a generic message.
func internalError(c *fiber.Ctx, action string, err error, message string) error {
	details := map[string]interface{}{
		"path":       c.Path(),
		"request_id": getRequestID(c),
	}
	if user := middleware.GetCurrentUser(c); user != nil {
		logger.ErrorWithUser(user.ID.String(), action, err, details)
	} else {
		logger.Error(action, err, details)
	}
	return utils.Error(c, fiber.StatusInternalServerError, message)
}

// validationFailed answers 400 with per-field details. Any other error is an internal failure
// of the validation step itself.
func validationFailed(c *fiber.Ctx, err error) error {
	if verr, ok := models.AsValidationError(err); ok {
		return utils.ValidationFailed(c, verr)
	}
	return internalError(c, "request_validation_failed", err, "failed validating request")
}

// sheetError maps a spreadsheet adapter error to a response.
func sheetError(c *fiber.Ctx, action string, err error) error {
	switch {
	case errors.Is(err, sheets.ErrNotConfigured):
		return utils.Error(c, fiber.StatusServiceUnavailable, "spreadsheet is not configured")
	case errors.Is(err, sheets.ErrSheetNotFound):
		return utils.Error(c, fiber.StatusNotFound, "sheet not found")
	}
	logger.Error(action, err, map[string]interface{}{
		"path":       c.Path(),
		"request_id": getRequestID(c),
	})
	return utils.Error(c, fiber.StatusBadGateway, "spreadsheet request failed")
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// activeLookupSources returns the lookup allow-list used to validate field bindings.
func activeLookupSources(db *gorm.DB) ([]models.LookupSource, error) {
	var sources []models.LookupSource
	if err := db.Where("is_active = ?", true).Order("table_name ASC").Find(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

func trimmedStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
