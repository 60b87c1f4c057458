package sheets

import (
	"context"
	"errors"
)

var (
	ErrNotConfigured = errors.New("spreadsheet access is not configured")
	ErrSheetNotFound = errors.New("sheet tab not found")
)

// Client is the narrow slice of the spreadsheet API the adapter needs. Ranges are A1 notation
// including the quoted tab title, e.g. 'Orders'!A1:D10.
type Client interface {
	GetValues(ctx context.Context, rangeA1 string) ([][]interface{}, error)
	UpdateValues(ctx context.Context, rangeA1 string, values [][]interface{}) error
	SheetTitles(ctx context.Context) ([]string, error)
}
