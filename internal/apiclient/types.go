package apiclient

import "time"

// User mirrors the server's user record.
type User struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"isActive"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Session is returned by POST /auth/login and GET /auth/verify.
type Session struct {
	Token       string   `json:"token,omitempty"`
	Valid       bool     `json:"valid,omitempty"`
	User        *User    `json:"user"`
	Permissions []string `json:"permissions"`
}

type FieldOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type Field struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	Name         string        `json:"name"`
	Label        string        `json:"label"`
	Required     bool          `json:"required,omitempty"`
	DefaultValue interface{}   `json:"defaultValue,omitempty"`
	Options      []FieldOption `json:"options,omitempty"`
	SheetColumn  string        `json:"sheetColumn,omitempty"`
	Formula      string        `json:"formula,omitempty"`
}

type Form struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	SheetName    string    `json:"sheetName,omitempty"`
	Fields       []Field   `json:"fields"`
	AllowedUsers []string  `json:"allowedUsers"`
	IsActive     bool      `json:"isActive"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SubmitRequest is the body of POST /submit-form.
type SubmitRequest struct {
	FormID string                 `json:"formId"`
	Values map[string]interface{} `json:"values"`
}

type SubmitResult struct {
	SubmissionID string `json:"submissionId"`
	Status       string `json:"status"`
	Row          *int   `json:"row,omitempty"`
	SheetName    string `json:"sheetName"`
	Message      string `json:"message,omitempty"`
}

// ExportJob mirrors a form submission in the export outbox.
type ExportJob struct {
	ID          string     `json:"id"`
	FormID      string     `json:"formID"`
	SheetName   string     `json:"sheetName"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"maxAttempts"`
	LastError   *string    `json:"lastError,omitempty"`
	NextRetryAt *time.Time `json:"nextRetryAt,omitempty"`
	ExportedRow *int       `json:"exportedRow,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type ReportParameter struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Column   string `json:"column"`
	Required bool   `json:"required,omitempty"`
}

type ReportSection struct {
	ID      string   `json:"id"`
	Type    string   `json:"type"`
	Title   string   `json:"title"`
	GroupBy []string `json:"groupBy,omitempty"`
	SumBy   string   `json:"sumBy,omitempty"`
}

type ReportTemplate struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	SheetName   string            `json:"sheetName"`
	Parameters  []ReportParameter `json:"parameters"`
	Sections    []ReportSection   `json:"sections"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// ReportResult is returned by GET /report-data.
type ReportResult struct {
	Sheet   string                   `json:"sheet"`
	Columns []string                 `json:"columns"`
	Rows    []map[string]interface{} `json:"rows"`
	Total   int                      `json:"total"`
}

type AppSettings struct {
	AppName         string   `json:"appName"`
	ExportSheetName string   `json:"exportSheetName"`
	ImportSheetName string   `json:"importSheetName"`
	LogoURL         *string  `json:"logoURL,omitempty"`
	Theme           string   `json:"theme"`
	PrimaryColor    string   `json:"primaryColor"`
	LogoLocations   []string `json:"logoLocations"`
}

type VersionInfo struct {
	Version    string `json:"version"`
	APIVersion string `json:"apiVersion"`
}
