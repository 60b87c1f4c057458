package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/formsheet/server/internal/formula"
	"github.com/formsheet/server/internal/models"
	"github.com/formsheet/server/internal/sheets"
	"github.com/xuri/excelize/v2"
)

// CountColumn is added to grouped rows when no sum column is requested.
const CountColumn = "count"

// ReportQuery describes one report-data request against a sheet tab.
type ReportQuery struct {
	Sheet string
	// Filters maps a column to the substring its cells must contain, ignoring case.
	Filters map[string]string
	GroupBy []string
	SumBy   string
}

// ReportResult is the row set returned to the report runtime.
type ReportResult struct {
	Sheet   string                   `json:"sheet"`
	Columns []string                 `json:"columns"`
	Rows    []map[string]interface{} `json:"rows"`
	Total   int                      `json:"total"`
}

type ReportService struct {
	Sheets *sheets.Service
}

func NewReportService(sheetsService *sheets.Service) *ReportService {
	return &ReportService{Sheets: sheetsService}
}

// QueryFromTemplate turns the request's parameter values into column filters using the
// template's parameter definitions. Parameters with an empty value are ignored.
func QueryFromTemplate(template *models.ReportTemplate, values map[string]string) ReportQuery {
	query := ReportQuery{Sheet: template.SheetName, Filters: map[string]string{}}
	for _, param := range template.Parameters {
		value := strings.TrimSpace(values[param.Name])
		if value == "" {
			continue
		}
		query.Filters[param.Column] = value
	}
	return query
}

// Run fetches the whole tab and applies the query to it.
func (s *ReportService) Run(ctx context.Context, query ReportQuery) (*ReportResult, error) {
	table, err := s.Sheets.GetAllSheetData(ctx, query.Sheet)
	if err != nil {
		return nil, err
	}

	rows := FilterRows(table.Rows, query.Filters)
	columns, result := GroupRows(table.Headers, rows, query.GroupBy, query.SumBy)
	return &ReportResult{
		Sheet:   query.Sheet,
		Columns: columns,
		Rows:    result,
		Total:   len(result),
	}, nil
}

// FilterRows keeps rows whose cell in every filtered column contains the filter value,
// compared case-insensitively.
func FilterRows(rows []map[string]string, filters map[string]string) []map[string]string {
	if len(filters) == 0 {
		return rows
	}

	needles := make(map[string]string, len(filters))
	for column, value := range filters {
		needles[column] = strings.ToLower(strings.TrimSpace(value))
	}

	filtered := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		matches := true
		for column, needle := range needles {
			if !strings.Contains(strings.ToLower(row[column]), needle) {
				matches = false
				break
			}
		}
		if matches {
			filtered = append(filtered, row)
		}
	}
	return filtered
}

// GroupRows collapses rows into one row per distinct combination of groupBy values, in order
// of first appearance. sumBy is summed per group with non-numeric cells counting as 0; without
// it each group carries a count instead. With sumBy alone the result is a single total row.
// Without either, rows are returned unchanged.
func GroupRows(headers []string, rows []map[string]string, groupBy []string, sumBy string) ([]string, []map[string]interface{}) {
	groupBy = cleanColumns(groupBy)
	sumBy = strings.TrimSpace(sumBy)

	if len(groupBy) == 0 && sumBy == "" {
		result := make([]map[string]interface{}, len(rows))
		for i, row := range rows {
			record := make(map[string]interface{}, len(row))
			for k, v := range row {
				record[k] = v
			}
			result[i] = record
		}
		return headers, result
	}

	valueColumn := sumBy
	if valueColumn == "" {
		valueColumn = CountColumn
	}
	columns := append(append([]string{}, groupBy...), valueColumn)

	type group struct {
		record map[string]interface{}
		total  float64
	}
	var order []*group
	index := make(map[string]*group)

	for _, row := range rows {
		keyParts := make([]string, len(groupBy))
		for i, column := range groupBy {
			keyParts[i] = row[column]
		}
		key := strings.Join(keyParts, "\x1f")

		g, ok := index[key]
		if !ok {
			record := make(map[string]interface{}, len(columns))
			for i, column := range groupBy {
				record[column] = keyParts[i]
			}
			g = &group{record: record}
			index[key] = g
			order = append(order, g)
		}

		if sumBy == "" {
			g.total++
			continue
		}
		if n, ok := formula.ParseNumber(row[sumBy]); ok {
			g.total += n
		}
	}

	result := make([]map[string]interface{}, len(order))
	for i, g := range order {
		g.record[valueColumn] = g.total
		result[i] = g.record
	}
	return columns, result
}

// ExportXLSX renders a report result as a single-sheet workbook.
func ExportXLSX(result *ReportResult, title string) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := xlsxSheetName(title)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("failed to name worksheet: %w", err)
	}

	header := make([]interface{}, len(result.Columns))
	for i, column := range result.Columns {
		header[i] = column
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range result.Rows {
		cells := make([]interface{}, len(result.Columns))
		for j, column := range result.Columns {
			cells[j] = row[column]
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to encode workbook: %w", err)
	}
	return buf, nil
}

func cleanColumns(columns []string) []string {
	cleaned := make([]string, 0, len(columns))
	for _, column := range columns {
		if column = strings.TrimSpace(column); column != "" {
			cleaned = append(cleaned, column)
		}
	}
	return cleaned
}

// SplitColumns parses a comma-separated column list such as "A,B".
func SplitColumns(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return cleanColumns(strings.Split(raw, ","))
}

func xlsxSheetName(title string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	if name == "" {
		name = "Report"
	}
	if runes := []rune(name); len(runes) > 31 {
		name = string(runes[:31])
	}
	return name
}
