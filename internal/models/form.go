package models

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type FieldType string

const (
	FieldTypeText        FieldType = "text"
	FieldTypeTextarea    FieldType = "textarea"
	FieldTypeNumber      FieldType = "number"
	FieldTypeEmail       FieldType = "email"
	FieldTypeDate        FieldType = "date"
	FieldTypeDateTime    FieldType = "datetime"
	FieldTypeDropdown    FieldType = "dropdown"
	FieldTypeCheckbox    FieldType = "checkbox"
	FieldTypeQRScan      FieldType = "qr-scan"
	FieldTypeGeolocation FieldType = "geolocation"
	FieldTypeDynamic     FieldType = "dinamicko-polje"
	FieldTypeFormula     FieldType = "formula"
	FieldTypeLabel       FieldType = "label"
)

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w" validate:"gte=0"`
	H int `json:"h" validate:"gte=0"`
}

type FieldOption struct {
	Label string `json:"label" validate:"required"`
	Value string `json:"value"`
}

// DataSourceBinding fills a dropdown from an allow-listed lookup table.
type DataSourceBinding struct {
	Table       string `json:"table" validate:"required"`
	LabelColumn string `json:"labelColumn" validate:"required"`
	ValueColumn string `json:"valueColumn" validate:"required"`
}

// LookupFormula is evaluated against a matched lookup row; its result lands in Target.
type LookupFormula struct {
	Target     string `json:"target" validate:"required"`
	Expression string `json:"expression" validate:"required"`
}

// LookupBinding drives a dinamicko-polje field: the value of SourceField is searched in
// Table.SearchColumn and ResultColumn of the first match becomes this field's value.
type LookupBinding struct {
	Table        string          `json:"table" validate:"required"`
	SearchColumn string          `json:"searchColumn" validate:"required"`
	ResultColumn string          `json:"resultColumn" validate:"required"`
	SourceField  string          `json:"sourceField,omitempty"`
	Formulas     []LookupFormula `json:"formulas,omitempty" validate:"dive"`
}

type FieldDefinition struct {
	ID           string             `json:"id" validate:"required,max=64"`
	Type         FieldType          `json:"type" validate:"required"`
	Name         string             `json:"name" validate:"required,max=100"`
	Label        string             `json:"label" validate:"max=255"`
	Placeholder  string             `json:"placeholder,omitempty"`
	Required     bool               `json:"required,omitempty"`
	Hidden       bool               `json:"hidden,omitempty"`
	DefaultValue interface{}        `json:"defaultValue,omitempty"`
	Options      []FieldOption      `json:"options,omitempty" validate:"dive"`
	DataSource   *DataSourceBinding `json:"dataSource,omitempty"`
	Min          *float64           `json:"min,omitempty"`
	Max          *float64           `json:"max,omitempty"`
	SheetColumn  string             `json:"sheetColumn,omitempty" validate:"omitempty,alpha,max=3"`
	Formula      string             `json:"formula,omitempty"`
	Lookup       *LookupBinding     `json:"lookup,omitempty"`
	Position     Position           `json:"position"`
	Style        map[string]string  `json:"style,omitempty"`
}

// Exportable reports whether the field produces a spreadsheet cell.
func (f FieldDefinition) Exportable() bool {
	return f.Type != FieldTypeLabel
}

type Form struct {
	BaseModel
	Name            string                               `json:"name" gorm:"type:varchar(255);not null;index"`
	Description     string                               `json:"description" gorm:"type:text"`
	BackgroundColor string                               `json:"backgroundColor" gorm:"type:varchar(32)"`
	SheetName       string                               `json:"sheetName,omitempty" gorm:"type:varchar(255)"`
	Fields          datatypes.JSONSlice[FieldDefinition] `json:"fields" gorm:"not null"`
	AllowedUsers    datatypes.JSONSlice[string]          `json:"allowedUsers" gorm:"not null"`
	ImageURL        *string                              `json:"imageURL,omitempty" gorm:"type:text"`
	IsActive        bool                                 `json:"isActive" gorm:"not null"`
	CreatedByID     *uuid.UUID                           `json:"createdByID,omitempty" gorm:"type:uuid;index"`
}

func (f *Form) BeforeSave(_ *gorm.DB) error {
	if f.Fields == nil {
		f.Fields = datatypes.JSONSlice[FieldDefinition]{}
	}
	if f.AllowedUsers == nil {
		f.AllowedUsers = datatypes.JSONSlice[string]{}
	}
	return nil
}

func (Form) TableName() string {
	return "forms"
}

// AllowsUser applies the allowed-users rule: admins and managers always pass,
// an empty list admits every authenticated user, otherwise the username must be listed.
func (f *Form) AllowsUser(user *User) bool {
	return allowedUsersInclude(f.AllowedUsers, user)
}

// FieldByName returns the definition whose Name matches, or nil.
func (f *Form) FieldByName(name string) *FieldDefinition {
	for i := range f.Fields {
		if f.Fields[i].Name == name {
			return &f.Fields[i]
		}
	}
	return nil
}

func allowedUsersInclude(allowed []string, user *User) bool {
	if user == nil {
		return false
	}
	if user.Role == UserRoleAdmin || user.Role == UserRoleManager {
		return true
	}
	if len(allowed) == 0 {
		return true
	}
	for _, name := range allowed {
		if strings.EqualFold(strings.TrimSpace(name), user.Username) {
			return true
		}
	}
	return false
}
