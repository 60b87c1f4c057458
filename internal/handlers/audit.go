package handlers

import (
	"encoding/csv"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/formsheet/server/internal/models"
	"github.com/formsheet/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const auditExportLimit = 10000

type AuditHandler struct {
	DB *gorm.DB
}

func NewAuditHandler(db *gorm.DB) *AuditHandler {
	return &AuditHandler{DB: db}
}

// filtered narrows the audit log by the action, resourceType and userId query parameters.
func (h *AuditHandler) filtered(c *fiber.Ctx) (*gorm.DB, error) {
	query := h.DB.Model(&models.AuditLog{})
	if action := strings.TrimSpace(c.Query("action")); action != "" {
		query = query.Where("action = ?", action)
	}
	if resourceType := strings.TrimSpace(c.Query("resourceType")); resourceType != "" {
		query = query.Where("resource_type = ?", resourceType)
	}
	if rawUserID := strings.TrimSpace(c.Query("userId")); rawUserID != "" {
		userID, err := parseUUID(rawUserID)
		if err != nil {
			return nil, err
		}
		query = query.Where("user_id = ?", userID)
	}
	return query, nil
}

func (h *AuditHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query, err := h.filtered(c)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return internalError(c, "audit_log_count_failed", err, "failed counting audit logs")
	}

	var logs []models.AuditLog
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Find(&logs).Error; err != nil {
		return internalError(c, "audit_log_list_failed", err, "failed loading audit logs")
	}

	return utils.Paginated(c, logs, p.Page, p.Limit, total)
}

func (h *AuditHandler) Export(c *fiber.Ctx) error {
	format := strings.ToLower(strings.TrimSpace(c.Query("format", "csv")))
	if format != "csv" && format != "json" {
		return utils.Error(c, fiber.StatusBadRequest, "format must be csv or json")
	}

	query, err := h.filtered(c)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var logs []models.AuditLog
	if err := query.Order("created_at DESC").Limit(auditExportLimit).Find(&logs).Error; err != nil {
		return internalError(c, "audit_log_export_failed", err, "failed loading audit logs")
	}

	if format == "json" {
		c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "audit-log.json"))
		return utils.Success(c, fiber.StatusOK, logs)
	}

	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "audit-log.csv"))

	writer := csv.NewWriter(c.Response().BodyWriter())
	_ = writer.Write([]string{"Timestamp", "User ID", "Action", "Resource Type", "Resource ID", "IP Address", "Request ID", "Details"})

	for _, log := range logs {
		userID := ""
		if log.UserID != nil {
			userID = log.UserID.String()
		}
		resourceID := ""
		if log.ResourceID != nil {
			resourceID = log.ResourceID.String()
		}

		parts := make([]string, 0, len(log.Details))
		for k, v := range log.Details {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
		sort.Strings(parts)

		_ = writer.Write([]string{
			log.CreatedAt.Format(time.RFC3339),
			userID,
			log.Action,
			log.ResourceType,
			resourceID,
			log.IPAddress,
			log.RequestID,
			strings.Join(parts, "; "),
		})
	}

	writer.Flush()
	return writer.Error()
}
