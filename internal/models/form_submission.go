package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SubmissionStatus is the outbox state of a spreadsheet export.
type SubmissionStatus string

const (
	SubmissionStatusPending    SubmissionStatus = "pending"
	SubmissionStatusProcessing SubmissionStatus = "processing"
	SubmissionStatusExported   SubmissionStatus = "exported"
	SubmissionStatusFailed     SubmissionStatus = "failed"
)

// FormSubmission is the durable record of one submitted form. The spreadsheet write is
// retried from this row until it succeeds or attempts run out.
type FormSubmission struct {
	ID            uuid.UUID                   `json:"id" gorm:"type:uuid;primaryKey"`
	FormID        uuid.UUID                   `json:"formID" gorm:"type:uuid;not null;index"`
	SubmittedByID uuid.UUID                   `json:"submittedByID" gorm:"type:uuid;not null;index"`
	SheetName     string                      `json:"sheetName" gorm:"type:varchar(255);not null"`
	Values        datatypes.JSONMap           `json:"values" gorm:"not null"`
	Row           datatypes.JSONSlice[string] `json:"row" gorm:"not null"`
	Status        SubmissionStatus            `json:"status" gorm:"type:varchar(20);not null;default:pending;index"`
	Attempts      int                         `json:"attempts" gorm:"not null;default:0"`
	MaxAttempts   int                         `json:"maxAttempts" gorm:"not null;default:5"`
	LastError     *string                     `json:"lastError,omitempty" gorm:"type:text"`
	NextRetryAt   *time.Time                  `json:"nextRetryAt,omitempty" gorm:"index"`
	ExportedRow   *int                        `json:"exportedRow,omitempty"`
	ExportedAt    *time.Time                  `json:"exportedAt,omitempty"`
	CreatedAt     time.Time                   `json:"createdAt" gorm:"not null"`
	UpdatedAt     time.Time                   `json:"updatedAt" gorm:"not null"`
}

func (s *FormSubmission) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}
	if s.Values == nil {
		s.Values = datatypes.JSONMap{}
	}
	if s.Row == nil {
		s.Row = datatypes.JSONSlice[string]{}
	}
	return nil
}

func (s *FormSubmission) BeforeUpdate(_ *gorm.DB) error {
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (FormSubmission) TableName() string {
	return "form_submissions"
}

// RowCells converts the stored row back to the cell slice the sheet client expects.
func (s *FormSubmission) RowCells() []interface{} {
	cells := make([]interface{}, len(s.Row))
	for i, v := range s.Row {
		cells[i] = v
	}
	return cells
}
