package handlers

import (
	"strings"

	"github.com/formsheet/server/internal/sheets"
	"github.com/formsheet/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// SheetsHandler gives admins direct read access to the spreadsheet for the builders.
type SheetsHandler struct {
	Sheets *sheets.Service
}

func NewSheetsHandler(sheetsService *sheets.Service) *SheetsHandler {
	return &SheetsHandler{Sheets: sheetsService}
}

func (h *SheetsHandler) Validate(c *fiber.Ctx) error {
	tab := strings.TrimSpace(c.Query("sheet"))
	if tab == "" {
		return utils.Error(c, fiber.StatusBadRequest, "sheet is required")
	}
	if err := h.Sheets.ValidateSheetAccess(c.UserContext(), tab); err != nil {
		return sheetError(c, "sheet_validate_failed", err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"sheet": tab, "accessible": true})
}

// Data returns the whole tab keyed by its header row, or the raw cells of range when given.
func (h *SheetsHandler) Data(c *fiber.Ctx) error {
	tab := strings.TrimSpace(c.Query("sheet"))
	if tab == "" {
		return utils.Error(c, fiber.StatusBadRequest, "sheet is required")
	}

	if rangeA1 := strings.TrimSpace(c.Query("range")); rangeA1 != "" {
		values, err := h.Sheets.ImportDataFromSheet(c.UserContext(), tab, rangeA1)
		if err != nil {
			return sheetError(c, "sheet_range_read_failed", err)
		}
		return utils.Success(c, fiber.StatusOK, fiber.Map{"sheet": tab, "range": rangeA1, "values": values})
	}

	table, err := h.Sheets.GetAllSheetData(c.UserContext(), tab)
	if err != nil {
		return sheetError(c, "sheet_read_failed", err)
	}
	return utils.Success(c, fiber.StatusOK, table)
}

func (h *SheetsHandler) Headers(c *fiber.Ctx) error {
	tab := strings.TrimSpace(c.Query("sheet"))
	if tab == "" {
		return utils.Error(c, fiber.StatusBadRequest, "sheet is required")
	}
	headers, err := h.Sheets.Headers(c.UserContext(), tab)
	if err != nil {
		return sheetError(c, "sheet_headers_failed", err)
	}
	return utils.Success(c, fiber.StatusOK, headers)
}

func (h *SheetsHandler) Titles(c *fiber.Ctx) error {
	titles, err := h.Sheets.SheetTitles(c.UserContext())
	if err != nil {
		return sheetError(c, "sheet_titles_failed", err)
	}
	return utils.Success(c, fiber.StatusOK, titles)
}
