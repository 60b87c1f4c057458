package handlers

import (
	"fmt"
	"strings"

	"github.com/formsheet/server/internal/database"
	"github.com/formsheet/server/internal/middleware"
	"github.com/formsheet/server/internal/models"
	"github.com/formsheet/server/internal/services"
	"github.com/formsheet/server/internal/sheets"
	"github.com/formsheet/server/pkg/logger"
	"github.com/formsheet/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SubmitHandler struct {
	DB     *gorm.DB
	Export *services.ExportService
	Audit  *services.AuditService
}

func NewSubmitHandler(db *gorm.DB, export *services.ExportService, audit *services.AuditService) *SubmitHandler {
	return &SubmitHandler{DB: db, Export: export, Audit: audit}
}

type submitFormRequest struct {
	FormID string                 `json:"formId"`
	Values map[string]interface{} `json:"values"`
}

type submitFormResponse struct {
	SubmissionID string                  `json:"submissionId"`
	Status       models.SubmissionStatus `json:"status"`
	Row          *int                    `json:"row,omitempty"`
	SheetName    string                  `json:"sheetName"`
	Message      string                  `json:"message,omitempty"`
}

// Submit validates the values against the stored field list, persists the submission and
// writes it to the sheet. A failed sheet write still succeeds with 202: the submission stays
// queued and is retried in the background.
func (h *SubmitHandler) Submit(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req submitFormRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.FormID) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "formId is required")
	}

	form, status, err := findForm(h.DB, req.FormID, user)
	if err != nil {
		if status == fiber.StatusInternalServerError {
			return internalError(c, "submit_form_fetch_failed", err, "failed fetching form")
		}
		return utils.Error(c, status, err.Error())
	}

	values, err := services.PrepareValues(form.Fields, req.Values)
	if err != nil {
		return validationFailed(c, err)
	}

	tab, err := h.exportTab(form)
	if err != nil {
		return internalError(c, "submit_settings_failed", err, "failed loading settings")
	}
	if tab == "" {
		return utils.Error(c, fiber.StatusBadRequest, "no export sheet is configured for this form")
	}

	cells, err := sheets.BuildRow(form.Fields, values)
	if err != nil {
		return internalError(c, "submit_row_build_failed", err, "failed preparing the spreadsheet row")
	}
	row := make(datatypes.JSONSlice[string], len(cells))
	for i, cell := range cells {
		row[i] = fmt.Sprint(cell)
	}

	submission := &models.FormSubmission{
		FormID:        form.ID,
		SubmittedByID: user.ID,
		SheetName:     tab,
		Values:        datatypes.JSONMap(values),
		Row:           row,
	}
	submission, err = h.Export.Submit(c.UserContext(), submission)
	if err != nil {
		return internalError(c, "submit_persist_failed", err, "failed saving submission")
	}

	recordAudit(c, h.Audit, services.AuditFormSubmit, "form", &form.ID, map[string]interface{}{
		"submission_id": submission.ID.String(),
		"sheet":         tab,
		"status":        string(submission.Status),
	})

	resp := submitFormResponse{
		SubmissionID: submission.ID.String(),
		Status:       submission.Status,
		Row:          submission.ExportedRow,
		SheetName:    tab,
	}
	if submission.Status == models.SubmissionStatusExported {
		return utils.Success(c, fiber.StatusOK, resp)
	}

	logger.WarnWithUser(user.ID.String(), "submit_export_deferred", map[string]interface{}{
		"submission_id": submission.ID.String(),
		"form_id":       form.ID.String(),
		"status":        string(submission.Status),
	})
	resp.Message = "the submission was saved and will be written to the spreadsheet shortly"
	if submission.Status == models.SubmissionStatusFailed {
		resp.Message = "the submission was saved but the spreadsheet write failed; an admin can retry it from the export jobs list"
	}
	return utils.Success(c, fiber.StatusAccepted, resp)
}

// exportTab picks the form's own tab, falling back to the application-wide export tab.
func (h *SubmitHandler) exportTab(form *models.Form) (string, error) {
	if tab := strings.TrimSpace(form.SheetName); tab != "" {
		return tab, nil
	}
	settings, err := database.EnsureAppSettings(h.DB)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(settings.ExportSheetName), nil
}
