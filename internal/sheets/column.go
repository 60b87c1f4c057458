package sheets

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ColumnName converts a zero-based column index to its letter form: 0 -> A, 26 -> AA.
func ColumnName(index int) (string, error) {
	return excelize.ColumnNumberToName(index + 1)
}

// ColumnIndex converts column letters to a zero-based index. Case is ignored.
func ColumnIndex(name string) (int, error) {
	n, err := excelize.ColumnNameToNumber(strings.TrimSpace(name))
	if err != nil {
		return 0, fmt.Errorf("invalid column %q: %w", name, err)
	}
	return n - 1, nil
}

// QuoteTab renders a tab title for use in an A1 range, escaping embedded quotes.
func QuoteTab(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}
