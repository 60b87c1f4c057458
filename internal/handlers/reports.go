package handlers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/formsheet/server/internal/middleware"
	"github.com/formsheet/server/internal/models"
	"github.com/formsheet/server/internal/services"
	"github.com/formsheet/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ReportsHandler runs report templates against the spreadsheet.
type ReportsHandler struct {
	DB      *gorm.DB
	Reports *services.ReportService
}

func NewReportsHandler(db *gorm.DB, reports *services.ReportService) *ReportsHandler {
	return &ReportsHandler{DB: db, Reports: reports}
}

// reportRequest is the resolved form of a report-data query string.
type reportRequest struct {
	title string
	query services.ReportQuery
}

// ReportData answers GET /api/report-data. With templateId the template's parameters become
// filters; a section id picks that section's sheet and grouping. Without a template, sheet=
// previews a raw tab for the report builder and is limited to report managers.
func (h *ReportsHandler) ReportData(c *fiber.Ctx) error {
	req, ok, err := h.resolve(c)
	if !ok {
		return err
	}

	result, err := h.Reports.Run(c.UserContext(), req.query)
	if err != nil {
		return sheetError(c, "report_data_failed", err)
	}
	return utils.Success(c, fiber.StatusOK, result)
}

// Export returns the same row set as ReportData as an XLSX download.
func (h *ReportsHandler) Export(c *fiber.Ctx) error {
	req, ok, err := h.resolve(c)
	if !ok {
		return err
	}

	result, err := h.Reports.Run(c.UserContext(), req.query)
	if err != nil {
		return sheetError(c, "report_export_failed", err)
	}

	buf, err := services.ExportXLSX(result, req.title)
	if err != nil {
		return internalError(c, "report_xlsx_failed", err, "failed building the spreadsheet file")
	}

	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.xlsx"`, reportFilename(req.title)))
	return c.Status(fiber.StatusOK).Send(buf.Bytes())
}

// resolve builds the report query from the request. When ok is false the error response has
// already been written and err is the result of writing it.
func (h *ReportsHandler) resolve(c *fiber.Ctx) (req reportRequest, ok bool, err error) {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return req, false, utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupBy := services.SplitColumns(c.Query("groupBy"))
	sumBy := strings.TrimSpace(c.Query("sumBy"))

	templateID := strings.TrimSpace(c.Query("templateId"))
	if templateID == "" {
		if !user.CanManageReports() {
			return req, false, utils.Error(c, fiber.StatusForbidden, "insufficient permissions")
		}
		sheet := strings.TrimSpace(c.Query("sheet"))
		if sheet == "" {
			return req, false, utils.Error(c, fiber.StatusBadRequest, "templateId or sheet is required")
		}
		req.title = sheet
		req.query = services.ReportQuery{Sheet: sheet, GroupBy: groupBy, SumBy: sumBy}
		return req, true, nil
	}

	template, status, findErr := findReportTemplate(h.DB, templateID, user)
	if findErr != nil {
		if status == fiber.StatusInternalServerError {
			return req, false, internalError(c, "report_template_fetch_failed", findErr, "failed fetching report template")
		}
		return req, false, utils.Error(c, status, findErr.Error())
	}

	values := c.Queries()
	for _, param := range template.Parameters {
		if param.Required && strings.TrimSpace(values[param.Name]) == "" {
			return req, false, utils.Error(c, fiber.StatusBadRequest, fmt.Sprintf("parameter %s is required", param.Name))
		}
	}

	req.title = template.Name
	req.query = services.QueryFromTemplate(template, values)

	if sectionID := strings.TrimSpace(c.Query("sectionId")); sectionID != "" {
		section := findSection(template, sectionID)
		if section == nil {
			return req, false, utils.Error(c, fiber.StatusNotFound, "report section not found")
		}
		if section.SheetName != "" {
			req.query.Sheet = section.SheetName
		}
		req.query.GroupBy = section.GroupBy
		req.query.SumBy = section.SumBy
		if section.Title != "" {
			req.title = section.Title
		}
	}
	if len(groupBy) > 0 {
		req.query.GroupBy = groupBy
	}
	if sumBy != "" {
		req.query.SumBy = sumBy
	}
	if sheet := strings.TrimSpace(c.Query("sheet")); sheet != "" && user.CanManageReports() {
		req.query.Sheet = sheet
	}

	if req.query.Sheet == "" {
		return req, false, utils.Error(c, fiber.StatusBadRequest, "the report has no sheet configured")
	}
	return req, true, nil
}

func findSection(template *models.ReportTemplate, id string) *models.ReportSection {
	for i := range template.Sections {
		if template.Sections[i].ID == id {
			return &template.Sections[i]
		}
	}
	return nil
}

func reportFilename(title string) string {
	name := strings.Trim(unsafeFilenameChars.ReplaceAllString(title, "_"), "_")
	if name == "" {
		return "report"
	}
	return name
}
