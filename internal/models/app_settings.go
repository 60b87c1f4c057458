package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AppSettingsID is the primary key of the only settings row.
const AppSettingsID = 1

// LogoLocation is a place in the UI where the logo is shown.
type LogoLocation string

const (
	LogoLocationHeader LogoLocation = "header"
	LogoLocationLogin  LogoLocation = "login"
	LogoLocationForms  LogoLocation = "forms"
)

type AppSettings struct {
	ID              uint                        `json:"id" gorm:"primaryKey"`
	AppName         string                      `json:"appName" gorm:"type:varchar(255);not null"`
	ExportSheetName string                      `json:"exportSheetName" gorm:"type:varchar(255)"`
	ImportSheetName string                      `json:"importSheetName" gorm:"type:varchar(255)"`
	LogoURL         *string                     `json:"logoURL,omitempty" gorm:"type:text"`
	AppIconURL      *string                     `json:"appIconURL,omitempty" gorm:"type:text"`
	Theme           string                      `json:"theme" gorm:"type:varchar(20);not null"`
	PrimaryColor    string                      `json:"primaryColor" gorm:"type:varchar(32)"`
	LogoLocations   datatypes.JSONSlice[string] `json:"logoLocations" gorm:"not null"`
	CreatedAt       time.Time                   `json:"createdAt"`
	UpdatedAt       time.Time                   `json:"updatedAt"`
}

func (s *AppSettings) BeforeSave(_ *gorm.DB) error {
	if s.LogoLocations == nil {
		s.LogoLocations = datatypes.JSONSlice[string]{}
	}
	return nil
}

func (AppSettings) TableName() string {
	return "app_settings"
}

// DefaultAppSettings is the row created on first read.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		ID:              AppSettingsID,
		AppName:         "Formsheet",
		ExportSheetName: "",
		ImportSheetName: "",
		Theme:           "light",
		PrimaryColor:    "#2563eb",
		LogoLocations:   datatypes.JSONSlice[string]{string(LogoLocationHeader), string(LogoLocationLogin)},
	}
}
