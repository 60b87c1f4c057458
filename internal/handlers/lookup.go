package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/formsheet/server/internal/formula"
	"github.com/formsheet/server/internal/models"
	"github.com/formsheet/server/pkg/logger"
	"github.com/formsheet/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	lookupRowLimit      = 50
	catalogDefaultLimit = 500
	catalogMaximumLimit = 5000
	errSourceNotAllowed = "table is not an allowed lookup source"
	errColumnNotAllowed = "column is not allowed for this lookup source"
)

// LookupHandler reads allow-listed relational tables for QR/dynamic fields and dropdown catalogs.
type LookupHandler struct {
	DB *gorm.DB
}

func NewLookupHandler(db *gorm.DB) *LookupHandler {
	return &LookupHandler{DB: db}
}

type qrLookupRequest struct {
	Table    string                 `json:"table"`
	Column   string                 `json:"column"`
	Code     string                 `json:"code"`
	Formulas []models.LookupFormula `json:"formulas"`
}

type qrLookupResponse struct {
	Rows     []map[string]interface{} `json:"rows"`
	Computed []map[string]interface{} `json:"computed"`
}

// QRLookup returns the rows of an allow-listed table whose column equals the scanned code,
// plus the formulas evaluated against each row.
func (h *LookupHandler) QRLookup(c *fiber.Ctx) error {
	var req qrLookupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Table = strings.TrimSpace(req.Table)
	req.Column = strings.TrimSpace(req.Column)
	req.Code = strings.TrimSpace(req.Code)

	if req.Table == "" || req.Column == "" {
		return utils.Error(c, fiber.StatusBadRequest, "table and column are required")
	}
	if req.Code == "" {
		return utils.Error(c, fiber.StatusBadRequest, "code is required")
	}

	source, found, err := h.findSource(req.Table)
	if err != nil {
		return internalError(c, "lookup_source_fetch_failed", err, "failed loading lookup source")
	}
	if !found {
		return utils.Error(c, fiber.StatusBadRequest, errSourceNotAllowed)
	}
	if !source.HasColumn(req.Column) {
		return utils.Error(c, fiber.StatusBadRequest, errColumnNotAllowed)
	}

	expressions := make([]*formula.Expression, len(req.Formulas))
	for i, f := range req.Formulas {
		if strings.TrimSpace(f.Target) == "" {
			return utils.Error(c, fiber.StatusBadRequest, fmt.Sprintf("formulas[%d].target is required", i))
		}
		expr, err := formula.Parse(f.Expression)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, fmt.Sprintf("formulas[%d]: %v", i, err))
		}
		expressions[i] = expr
	}

	var raw []map[string]interface{}
	err = h.DB.WithContext(c.UserContext()).
		Table(source.Table).
		Where(clause.Eq{Column: clause.Column{Name: req.Column}, Value: req.Code}).
		Limit(lookupRowLimit).
		Find(&raw).Error
	if err != nil {
		return internalError(c, "qr_lookup_query_failed", err, "lookup failed")
	}

	resp := qrLookupResponse{
		Rows:     make([]map[string]interface{}, 0, len(raw)),
		Computed: make([]map[string]interface{}, 0, len(raw)),
	}
	for _, record := range raw {
		row := allowedRow(source, record)
		computed := make(map[string]interface{}, len(expressions))
		for i, expr := range expressions {
			value, err := expr.Eval(row)
			if err != nil {
				logger.Warn("qr_lookup_formula_failed", map[string]interface{}{
					"table":  source.Table,
					"target": req.Formulas[i].Target,
					"error":  err.Error(),
				})
				value = ""
			}
			computed[req.Formulas[i].Target] = value
		}
		resp.Rows = append(resp.Rows, row)
		resp.Computed = append(resp.Computed, computed)
	}

	return utils.Success(c, fiber.StatusOK, resp)
}

type catalogResponse struct {
	Table   string   `json:"table"`
	Label   string   `json:"label"`
	Columns []string `json:"columns"`
}

// Catalogs lists the active lookup sources a form field may bind to.
func (h *LookupHandler) Catalogs(c *fiber.Ctx) error {
	sources, err := activeLookupSources(h.DB)
	if err != nil {
		return internalError(c, "catalogs_list_failed", err, "failed listing catalogs")
	}

	catalogs := make([]catalogResponse, len(sources))
	for i, source := range sources {
		label := source.Label
		if label == "" {
			label = source.Table
		}
		catalogs[i] = catalogResponse{Table: source.Table, Label: label, Columns: source.Columns}
	}
	return utils.Success(c, fiber.StatusOK, catalogs)
}

type catalogItem struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// CatalogItems returns label/value pairs for a dropdown bound to a lookup source.
func (h *LookupHandler) CatalogItems(c *fiber.Ctx) error {
	source, found, err := h.findSource(c.Params("table"))
	if err != nil {
		return internalError(c, "catalog_source_fetch_failed", err, "failed loading catalog")
	}
	if !found {
		return utils.Error(c, fiber.StatusNotFound, "catalog not found")
	}

	labelColumn := strings.TrimSpace(c.Query("labelColumn"))
	if labelColumn == "" && len(source.Columns) > 0 {
		labelColumn = source.Columns[0]
	}
	valueColumn := strings.TrimSpace(c.Query("valueColumn"))
	if valueColumn == "" {
		valueColumn = labelColumn
	}
	if !source.HasColumn(labelColumn) || !source.HasColumn(valueColumn) {
		return utils.Error(c, fiber.StatusBadRequest, errColumnNotAllowed)
	}

	limit := c.QueryInt("limit", catalogDefaultLimit)
	if limit < 1 || limit > catalogMaximumLimit {
		limit = catalogDefaultLimit
	}

	var raw []map[string]interface{}
	err = h.DB.WithContext(c.UserContext()).
		Table(source.Table).
		Order(clause.OrderByColumn{Column: clause.Column{Name: labelColumn}}).
		Limit(limit).
		Find(&raw).Error
	if err != nil {
		return internalError(c, "catalog_items_query_failed", err, "failed loading catalog items")
	}

	items := make([]catalogItem, 0, len(raw))
	for _, record := range raw {
		items = append(items, catalogItem{
			Label: formula.ToString(normalizeCell(record[labelColumn])),
			Value: formula.ToString(normalizeCell(record[valueColumn])),
		})
	}
	return utils.Success(c, fiber.StatusOK, items)
}

func (h *LookupHandler) findSource(table string) (*models.LookupSource, bool, error) {
	table = strings.TrimSpace(table)
	if !models.ValidIdentifier(table) {
		return nil, false, nil
	}
	var source models.LookupSource
	err := h.DB.Where("table_name = ? AND is_active = ?", table, true).First(&source).Error
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &source, true, nil
}

// allowedRow keeps only the allow-listed columns of a scanned record.
func allowedRow(source *models.LookupSource, record map[string]interface{}) map[string]interface{} {
	row := make(map[string]interface{}, len(source.Columns))
	for _, column := range source.Columns {
		row[column] = normalizeCell(record[column])
	}
	return row
}

// normalizeCell turns driver-specific scan types into JSON-friendly values.
func normalizeCell(value interface{}) interface{} {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	case int:
		return float64(v)
	}
	return value
}
