package handlers

import (
	"errors"
	"strings"

	"github.com/formsheet/server/internal/models"
	"github.com/formsheet/server/internal/services"
	"github.com/formsheet/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ExportJobsHandler exposes the submission outbox to admins.
type ExportJobsHandler struct {
	DB     *gorm.DB
	Export *services.ExportService
	Audit  *services.AuditService
}

func NewExportJobsHandler(db *gorm.DB, export *services.ExportService, audit *services.AuditService) *ExportJobsHandler {
	return &ExportJobsHandler{DB: db, Export: export, Audit: audit}
}

var validSubmissionStatuses = map[models.SubmissionStatus]bool{
	models.SubmissionStatusPending:    true,
	models.SubmissionStatusProcessing: true,
	models.SubmissionStatusExported:   true,
	models.SubmissionStatusFailed:     true,
}

func (h *ExportJobsHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.FormSubmission{})
	if status := models.SubmissionStatus(strings.TrimSpace(c.Query("status"))); status != "" {
		if !validSubmissionStatuses[status] {
			return utils.Error(c, fiber.StatusBadRequest, "invalid status")
		}
		query = query.Where("status = ?", status)
	}
	if rawFormID := strings.TrimSpace(c.Query("formId")); rawFormID != "" {
		formID, err := parseUUID(rawFormID)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid form id")
		}
		query = query.Where("form_id = ?", formID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return internalError(c, "export_jobs_count_failed", err, "failed counting export jobs")
	}

	var jobs []models.FormSubmission
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Find(&jobs).Error; err != nil {
		return internalError(c, "export_jobs_list_failed", err, "failed listing export jobs")
	}

	return utils.Paginated(c, jobs, p.Page, p.Limit, total)
}

func (h *ExportJobsHandler) Get(c *fiber.Ctx) error {
	jobID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid export job id")
	}

	var job models.FormSubmission
	if err := h.DB.First(&job, "id = ?", jobID).Error; err != nil {
		if isNotFound(err) {
			return utils.Error(c, fiber.StatusNotFound, "export job not found")
		}
		return internalError(c, "export_job_fetch_failed", err, "failed fetching export job")
	}

	return utils.Success(c, fiber.StatusOK, job)
}

func (h *ExportJobsHandler) Retry(c *fiber.Ctx) error {
	jobID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid export job id")
	}

	job, err := h.Export.Retry(jobID)
	if err != nil {
		switch {
		case isNotFound(err):
			return utils.Error(c, fiber.StatusNotFound, "export job not found")
		case errors.Is(err, services.ErrAlreadyExported), errors.Is(err, services.ErrExportInProgress):
			return utils.Error(c, fiber.StatusConflict, err.Error())
		}
		return internalError(c, "export_job_retry_failed", err, "failed retrying export job")
	}

	recordAudit(c, h.Audit, services.AuditExportRetry, "form_submission", &job.ID, map[string]interface{}{
		"form_id": job.FormID.String(),
		"sheet":   job.SheetName,
	})

	return utils.Success(c, fiber.StatusAccepted, job)
}
