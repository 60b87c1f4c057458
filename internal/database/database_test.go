package database

import (
	"testing"

	"github.com/formsheet/server/internal/config"
	"github.com/formsheet/server/internal/models"
	"github.com/formsheet/server/pkg/utils"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Connect(config.DBConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestConnect(t *testing.T) {
	t.Run("rejects unknown driver", func(t *testing.T) {
		if _, err := Connect(config.DBConfig{Driver: "oracle"}); err == nil {
			t.Fatal("expected unsupported driver error")
		}
	})

	t.Run("migrates every table", func(t *testing.T) {
		db := openTestDB(t)
		for _, table := range []string{"users", "forms", "report_templates", "app_settings", "lookup_sources", "form_submissions", "audit_logs"} {
			if !db.Migrator().HasTable(table) {
				t.Errorf("expected table %s to exist", table)
			}
		}
	})
}

func TestSeedAdminUser(t *testing.T) {
	db := openTestDB(t)

	if err := SeedAdminUser(db, "admin", "admin-password"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := SeedAdminUser(db, "other", "other-password"); err != nil {
		t.Fatalf("second seed failed: %v", err)
	}

	var users []models.User
	if err := db.Find(&users).Error; err != nil {
		t.Fatalf("failed to list users: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected exactly one seeded user, got %d", len(users))
	}
	admin := users[0]
	if admin.Username != "admin" || admin.Role != models.UserRoleAdmin || !admin.IsActive {
		t.Fatalf("unexpected seeded admin %+v", admin)
	}
	if !utils.CheckPassword("admin-password", admin.PasswordHash) {
		t.Fatal("expected seeded password to verify")
	}
}

func TestEnsureAppSettings(t *testing.T) {
	db := openTestDB(t)

	first, err := EnsureAppSettings(db)
	if err != nil {
		t.Fatalf("first read failed: %v", err)
	}
	if first.ID != models.AppSettingsID || first.AppName == "" {
		t.Fatalf("expected default settings, got %+v", first)
	}

	if err := db.Model(&models.AppSettings{}).Where("id = ?", models.AppSettingsID).Update("theme", "dark").Error; err != nil {
		t.Fatalf("failed to update theme: %v", err)
	}

	second, err := EnsureAppSettings(db)
	if err != nil {
		t.Fatalf("second read failed: %v", err)
	}
	if second.Theme != "dark" {
		t.Fatalf("expected existing row to be returned untouched, got theme %s", second.Theme)
	}

	var count int64
	db.Model(&models.AppSettings{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected a single settings row, got %d", count)
	}
}
