package sheets

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
)

// MemoryClient keeps tabs in process. It backs SHEETS_DRIVER=memory and the test suites, and
// mirrors the API's habit of trimming trailing empty rows and cells from reads.
type MemoryClient struct {
	mu         sync.Mutex
	tabs       map[string][][]interface{}
	order      []string
	updates    int
	failUpdate error
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{tabs: make(map[string][][]interface{})}
}

// AddSheet creates (or replaces) a tab with the given rows.
func (m *MemoryClient) AddSheet(title string, rows ...[]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tabs[title]; !exists {
		m.order = append(m.order, title)
	}
	copied := make([][]interface{}, len(rows))
	for i, row := range rows {
		copied[i] = append([]interface{}(nil), row...)
	}
	m.tabs[title] = copied
}

// Rows returns a copy of every stored row of a tab, untrimmed.
func (m *MemoryClient) Rows(title string) [][]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.tabs[title]
	copied := make([][]interface{}, len(rows))
	for i, row := range rows {
		copied[i] = append([]interface{}(nil), row...)
	}
	return copied
}

// UpdateCount reports how many UpdateValues calls succeeded.
func (m *MemoryClient) UpdateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

// FailUpdates makes every following UpdateValues call return err. Pass nil to recover.
func (m *MemoryClient) FailUpdates(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failUpdate = err
}

func (m *MemoryClient) GetValues(_ context.Context, rangeA1 string) ([][]interface{}, error) {
	r, err := parseRange(rangeA1)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.tabs[r.tab]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, r.tab)
	}

	firstRow, lastRow := bounds(r.startRow, r.endRow, len(rows))
	firstCol := max(r.startCol, 1)

	var out [][]interface{}
	for i := firstRow; i <= lastRow; i++ {
		row := rows[i-1]
		var cells []interface{}
		for j := firstCol; j <= len(row) && (r.endCol == 0 || j <= r.endCol); j++ {
			cells = append(cells, row[j-1])
		}
		out = append(out, trimCells(cells))
	}

	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (m *MemoryClient) UpdateValues(_ context.Context, rangeA1 string, values [][]interface{}) error {
	r, err := parseRange(rangeA1)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failUpdate != nil {
		return m.failUpdate
	}
	rows, ok := m.tabs[r.tab]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSheetNotFound, r.tab)
	}

	startRow := max(r.startRow, 1)
	startCol := max(r.startCol, 1)
	for i, vals := range values {
		idx := startRow - 1 + i
		for len(rows) <= idx {
			rows = append(rows, nil)
		}
		row := rows[idx]
		for len(row) < startCol-1+len(vals) {
			row = append(row, "")
		}
		for j, v := range vals {
			row[startCol-1+j] = v
		}
		rows[idx] = row
	}

	m.tabs[r.tab] = rows
	m.updates++
	return nil
}

func (m *MemoryClient) SheetTitles(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...), nil
}

func bounds(start, end, length int) (int, int) {
	first := max(start, 1)
	last := length
	if end > 0 && end < length {
		last = end
	}
	return first, last
}

func trimCells(cells []interface{}) []interface{} {
	for len(cells) > 0 && cellString(cells[len(cells)-1]) == "" {
		cells = cells[:len(cells)-1]
	}
	if cells == nil {
		return []interface{}{}
	}
	return cells
}

type cellRange struct {
	tab      string
	startCol int // 1-based, 0 when unbounded
	startRow int
	endCol   int
	endRow   int
}

// parseRange understands Tab, 'Tab', 'Tab'!A1, 'Tab'!A1:C9, 'Tab'!A:C and 'Tab'!1:1.
func parseRange(a1 string) (cellRange, error) {
	var r cellRange
	rest := ""

	switch {
	case strings.HasPrefix(a1, "'"):
		var b strings.Builder
		i := 1
		for {
			if i >= len(a1) {
				return r, fmt.Errorf("unterminated tab name in range %q", a1)
			}
			if a1[i] == '\'' {
				if i+1 < len(a1) && a1[i+1] == '\'' {
					b.WriteByte('\'')
					i += 2
					continue
				}
				break
			}
			b.WriteByte(a1[i])
			i++
		}
		r.tab = b.String()
		rest = a1[i+1:]
		if rest != "" {
			if rest[0] != '!' {
				return r, fmt.Errorf("invalid range %q", a1)
			}
			rest = rest[1:]
		}
	case strings.Contains(a1, "!"):
		idx := strings.LastIndex(a1, "!")
		r.tab, rest = a1[:idx], a1[idx+1:]
	default:
		r.tab = a1
	}

	if rest == "" {
		return r, nil
	}

	start, end, hasEnd := strings.Cut(rest, ":")
	var err error
	if r.startCol, r.startRow, err = parseEndpoint(start); err != nil {
		return r, fmt.Errorf("invalid range %q: %w", a1, err)
	}
	if !hasEnd {
		r.endCol, r.endRow = r.startCol, r.startRow
		return r, nil
	}
	if r.endCol, r.endRow, err = parseEndpoint(end); err != nil {
		return r, fmt.Errorf("invalid range %q: %w", a1, err)
	}
	return r, nil
}

func parseEndpoint(s string) (col, row int, err error) {
	i := 0
	for i < len(s) && ((s[i] >= 'A' && s[i] <= 'Z') || (s[i] >= 'a' && s[i] <= 'z')) {
		i++
	}
	letters, digits := s[:i], s[i:]
	if letters == "" && digits == "" {
		return 0, 0, fmt.Errorf("empty cell reference")
	}
	if letters != "" {
		if col, err = excelize.ColumnNameToNumber(letters); err != nil {
			return 0, 0, err
		}
	}
	if digits != "" {
		if row, err = strconv.Atoi(digits); err != nil || row < 1 {
			return 0, 0, fmt.Errorf("invalid row %q", digits)
		}
	}
	return col, row, nil
}
