package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/formsheet/server/internal/models"
	"github.com/formsheet/server/pkg/logger"
)

// Table is a tab read with its first row used as column headers.
type Table struct {
	Headers []string            `json:"headers"`
	Rows    []map[string]string `json:"rows"`
}

// Service is the spreadsheet adapter used for form exports and report reads.
type Service struct {
	client Client

	mu       sync.Mutex
	tabLocks map[string]*sync.Mutex
}

// NewService wraps client. A nil client yields a service whose every call fails with ErrNotConfigured.
func NewService(client Client) *Service {
	return &Service{client: client, tabLocks: make(map[string]*sync.Mutex)}
}

func (s *Service) Configured() bool {
	return s.client != nil
}

func (s *Service) tabLock(tab string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.tabLocks[tab]
	if !ok {
		lock = &sync.Mutex{}
		s.tabLocks[tab] = lock
	}
	return lock
}

// BuildRow lays submitted values out as one sparse row. A field lands in its configured sheet
// column, or otherwise at its position among the exportable fields. Unreferenced cells are "".
func BuildRow(fields []models.FieldDefinition, values map[string]interface{}) ([]interface{}, error) {
	cells := make(map[int]interface{})
	maxIndex := -1
	position := 0

	for _, field := range fields {
		if !field.Exportable() {
			continue
		}
		index := position
		position++
		if field.SheetColumn != "" {
			col, err := ColumnIndex(field.SheetColumn)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", field.Name, err)
			}
			index = col
		}
		cells[index] = CellValue(values[field.Name])
		if index > maxIndex {
			maxIndex = index
		}
	}

	row := make([]interface{}, maxIndex+1)
	for i := range row {
		if value, ok := cells[i]; ok {
			row[i] = value
		} else {
			row[i] = ""
		}
	}
	return row, nil
}

// CellValue renders a submitted value the way it should appear in a cell.
func CellValue(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int, int64, float32:
		return fmt.Sprint(v)
	case map[string]interface{}:
		// geolocation values arrive as {lat, lng}
		if lat, ok := v["lat"]; ok {
			if lng, ok := v["lng"]; ok {
				return fmt.Sprintf("%v,%v", lat, lng)
			}
		}
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(encoded)
}

// AppendRow writes row into the first wholly-empty row of tab and returns its 1-based number.
// Appends to the same tab are serialized within this process.
func (s *Service) AppendRow(ctx context.Context, tab string, row []interface{}) (int, error) {
	if s.client == nil {
		return 0, ErrNotConfigured
	}
	if len(row) == 0 {
		return 0, fmt.Errorf("cannot append an empty row to %s", tab)
	}

	lock := s.tabLock(tab)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.client.GetValues(ctx, QuoteTab(tab))
	if err != nil {
		return 0, err
	}

	target := len(existing) + 1
	for i, cells := range existing {
		if rowIsEmpty(cells) {
			target = i + 1
			break
		}
	}

	lastCol, err := ColumnName(len(row) - 1)
	if err != nil {
		return 0, err
	}
	rangeA1 := fmt.Sprintf("%s!A%d:%s%d", QuoteTab(tab), target, lastCol, target)
	if err := s.client.UpdateValues(ctx, rangeA1, [][]interface{}{row}); err != nil {
		return 0, err
	}

	logger.Info("sheet_row_appended", map[string]interface{}{
		"tab":   tab,
		"row":   target,
		"cells": len(row),
	})
	return target, nil
}

// ExportFormData builds the row for a submission and appends it.
func (s *Service) ExportFormData(ctx context.Context, tab string, fields []models.FieldDefinition, values map[string]interface{}) (int, error) {
	row, err := BuildRow(fields, values)
	if err != nil {
		return 0, err
	}
	return s.AppendRow(ctx, tab, row)
}

// ImportDataFromSheet reads a range of tab as strings. An empty rangeA1 reads the whole tab.
func (s *Service) ImportDataFromSheet(ctx context.Context, tab, rangeA1 string) ([][]string, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}
	target := QuoteTab(tab)
	if rangeA1 = strings.TrimSpace(rangeA1); rangeA1 != "" {
		target += "!" + rangeA1
	}
	values, err := s.client.GetValues(ctx, target)
	if err != nil {
		return nil, err
	}
	return stringRows(values), nil
}

// GetAllSheetData reads the whole tab, keying each data row by the header row.
// Blank header cells are skipped, as are wholly-empty data rows.
func (s *Service) GetAllSheetData(ctx context.Context, tab string) (*Table, error) {
	rows, err := s.ImportDataFromSheet(ctx, tab, "")
	if err != nil {
		return nil, err
	}

	table := &Table{Headers: []string{}, Rows: []map[string]string{}}
	if len(rows) == 0 {
		return table, nil
	}

	header := rows[0]
	for _, name := range header {
		if name = strings.TrimSpace(name); name != "" {
			table.Headers = append(table.Headers, name)
		}
	}

	for _, cells := range rows[1:] {
		if stringRowIsEmpty(cells) {
			continue
		}
		record := make(map[string]string, len(table.Headers))
		for i, name := range header {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if i < len(cells) {
				record[name] = cells[i]
			} else {
				record[name] = ""
			}
		}
		table.Rows = append(table.Rows, record)
	}
	return table, nil
}

// Headers returns the first row of tab.
func (s *Service) Headers(ctx context.Context, tab string) ([]string, error) {
	rows, err := s.ImportDataFromSheet(ctx, tab, "1:1")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []string{}, nil
	}
	return rows[0], nil
}

// ValidateSheetAccess confirms the tab exists and is readable with a single-cell read.
func (s *Service) ValidateSheetAccess(ctx context.Context, tab string) error {
	if strings.TrimSpace(tab) == "" {
		return fmt.Errorf("%w: empty tab name", ErrSheetNotFound)
	}
	_, err := s.ImportDataFromSheet(ctx, tab, "A1")
	return err
}

func (s *Service) SheetTitles(ctx context.Context) ([]string, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}
	return s.client.SheetTitles(ctx)
}

func cellString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func rowIsEmpty(cells []interface{}) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cellString(cell)) != "" {
			return false
		}
	}
	return true
}

func stringRowIsEmpty(cells []string) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func stringRows(values [][]interface{}) [][]string {
	rows := make([][]string, len(values))
	for i, cells := range values {
		row := make([]string, len(cells))
		for j, cell := range cells {
			row[j] = cellString(cell)
		}
		rows[i] = row
	}
	return rows
}
