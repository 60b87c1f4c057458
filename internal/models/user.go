package models

import "time"

type UserRole string

const (
	UserRoleAdmin   UserRole = "admin"
	UserRoleManager UserRole = "manager"
	UserRoleUser    UserRole = "user"
)

const (
	PermissionForms   = "forms"
	PermissionReports = "reports"
)

func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRoleManager, UserRoleUser:
		return true
	default:
		return false
	}
}

// Permissions derives the UI capability list from the role alone.
func (r UserRole) Permissions() []string {
	switch r {
	case UserRoleAdmin, UserRoleManager:
		return []string{PermissionForms, PermissionReports}
	default:
		return []string{PermissionForms}
	}
}

type User struct {
	BaseModel
	Username     string     `json:"username" gorm:"type:varchar(100);uniqueIndex;not null"`
	Email        string     `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string     `json:"-" gorm:"type:text;not null"`
	FirstName    string     `json:"firstName" gorm:"type:varchar(100);not null;default:''"`
	LastName     string     `json:"lastName" gorm:"type:varchar(100);not null;default:''"`
	Phone        string     `json:"phone,omitempty" gorm:"type:varchar(50)"`
	Position     string     `json:"position,omitempty" gorm:"type:varchar(100)"`
	AvatarURL    *string    `json:"avatarURL,omitempty" gorm:"type:text"`
	Role         UserRole   `json:"role" gorm:"type:varchar(20);not null;default:'user'"`
	IsActive     bool       `json:"isActive" gorm:"not null"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
}

func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

// CanManageReports is true for roles that may read every report template.
func (u *User) CanManageReports() bool {
	return u.Role == UserRoleAdmin || u.Role == UserRoleManager
}
