package models

import (
	"fmt"
	"regexp"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidIdentifier reports whether name is a plain SQL identifier.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// LookupSource allow-lists a relational table, and the columns of it, that QR/dynamic lookups
// and dropdown catalogs may read. Nothing outside this registry is ever queried.
type LookupSource struct {
	BaseModel
	Table    string                      `json:"table" gorm:"column:table_name;type:varchar(63);not null;index"`
	Label    string                      `json:"label" gorm:"type:varchar(255)"`
	Columns  datatypes.JSONSlice[string] `json:"columns" gorm:"not null"`
	IsActive bool                        `json:"isActive" gorm:"not null"`
}

func (l *LookupSource) BeforeSave(_ *gorm.DB) error {
	if l.Columns == nil {
		l.Columns = datatypes.JSONSlice[string]{}
	}
	return nil
}

func (LookupSource) TableName() string {
	return "lookup_sources"
}

// HasColumn reports whether column is allow-listed. Matching is exact so the returned
// identifier is always the registered spelling.
func (l *LookupSource) HasColumn(column string) bool {
	column = strings.TrimSpace(column)
	for _, c := range l.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// Validate checks that the table and every column are plain identifiers and that columns are unique.
func (l *LookupSource) Validate() error {
	result := &ValidationError{}
	if !ValidIdentifier(l.Table) {
		result.add("table", "must be a plain table name (letters, digits, underscore)")
	}
	if len(l.Columns) == 0 {
		result.add("columns", "is required")
	}
	seen := map[string]bool{}
	for i, column := range l.Columns {
		path := fmt.Sprintf("columns[%d]", i)
		if !ValidIdentifier(column) {
			result.add(path, "must be a plain column name (letters, digits, underscore)")
			continue
		}
		if seen[column] {
			result.add(path, "duplicate column %q", column)
		}
		seen[column] = true
	}
	return result.orNil()
}
