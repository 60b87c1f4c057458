package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SectionType string

const (
	SectionTypeTable SectionType = "table"
	SectionTypeChart SectionType = "chart"
	SectionTypeText  SectionType = "text"
)

type ChartType string

const (
	ChartTypeBar      ChartType = "bar"
	ChartTypeLine     ChartType = "line"
	ChartTypePie      ChartType = "pie"
	ChartTypeArea     ChartType = "area"
	ChartTypeDoughnut ChartType = "doughnut"
)

// ReportParameter is a filter the report runtime prompts for. Its value is matched as a
// case-insensitive substring against Column.
type ReportParameter struct {
	Name     string        `json:"name" validate:"required,max=100"`
	Label    string        `json:"label" validate:"max=255"`
	Column   string        `json:"column" validate:"required"`
	Type     string        `json:"type" validate:"omitempty,oneof=text select date number"`
	Options  []FieldOption `json:"options,omitempty" validate:"dive"`
	Required bool          `json:"required,omitempty"`
}

type ReportSection struct {
	ID          string            `json:"id" validate:"required,max=64"`
	Type        SectionType       `json:"type" validate:"required,oneof=table chart text"`
	Title       string            `json:"title" validate:"max=255"`
	SheetName   string            `json:"sheetName,omitempty"`
	Columns     []string          `json:"columns,omitempty"`
	GroupBy     []string          `json:"groupBy,omitempty"`
	SumBy       string            `json:"sumBy,omitempty"`
	ChartType   ChartType         `json:"chartType,omitempty" validate:"omitempty,oneof=bar line pie area doughnut"`
	LabelColumn string            `json:"labelColumn,omitempty"`
	ValueColumn string            `json:"valueColumn,omitempty"`
	Content     string            `json:"content,omitempty"`
	Position    Position          `json:"position"`
	Style       map[string]string `json:"style,omitempty"`
}

type ReportTemplate struct {
	BaseModel
	Name         string                               `json:"name" gorm:"type:varchar(255);not null;index"`
	Description  string                               `json:"description" gorm:"type:text"`
	ThumbnailURL *string                              `json:"thumbnailURL,omitempty" gorm:"type:text"`
	SheetName    string                               `json:"sheetName" gorm:"type:varchar(255)"`
	Parameters   datatypes.JSONSlice[ReportParameter] `json:"parameters" gorm:"not null"`
	Sections     datatypes.JSONSlice[ReportSection]   `json:"sections" gorm:"not null"`
	AllowedUsers datatypes.JSONSlice[string]          `json:"allowedUsers" gorm:"not null"`
	CreatedByID  *uuid.UUID                           `json:"createdByID,omitempty" gorm:"type:uuid;index"`
}

func (r *ReportTemplate) BeforeSave(_ *gorm.DB) error {
	if r.Parameters == nil {
		r.Parameters = datatypes.JSONSlice[ReportParameter]{}
	}
	if r.Sections == nil {
		r.Sections = datatypes.JSONSlice[ReportSection]{}
	}
	if r.AllowedUsers == nil {
		r.AllowedUsers = datatypes.JSONSlice[string]{}
	}
	return nil
}

func (ReportTemplate) TableName() string {
	return "report_templates"
}

// AllowsUser admits admins and managers; plain users must be listed by name.
// Unlike forms, an empty list keeps the template to managers and admins.
func (r *ReportTemplate) AllowsUser(user *User) bool {
	if user == nil {
		return false
	}
	if user.Role == UserRoleAdmin || user.Role == UserRoleManager {
		return true
	}
	return len(r.AllowedUsers) > 0 && allowedUsersInclude(r.AllowedUsers, user)
}

// Parameter looks a parameter up by name.
func (r *ReportTemplate) Parameter(name string) *ReportParameter {
	for i := range r.Parameters {
		if r.Parameters[i].Name == name {
			return &r.Parameters[i]
		}
	}
	return nil
}
