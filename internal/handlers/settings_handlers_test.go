package handlers

import (
	"bytes"
	"io"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/formsheet/server/internal/models"
)

var pngSignature = []byte{
	0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n',
	0x00, 0x00, 0x00, 0x0d, 'I', 'H', 'D', 'R',
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89,
}

func countStoredFiles(t *testing.T, root string) int {
	t.Helper()
	count := 0
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed walking upload dir: %v", err)
	}
	return count
}

func TestAppSettingsCreatedOnce(t *testing.T) {
	env := setupTestEnv(t)

	for i := 0; i < 3; i++ {
		resp := performRequest(t, env.app, http.MethodGet, "/api/app-settings", nil, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)

		data := dataMap(t, body)
		if data["appName"] != "Formsheet" || data["theme"] != "light" {
			t.Fatalf("unexpected default settings: %+v", data)
		}
	}

	var count int64
	if err := env.db.Model(&models.AppSettings{}).Count(&count).Error; err != nil {
		t.Fatalf("failed counting settings: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one settings row, got %d", count)
	}
}

func TestUpdateAppSettings(t *testing.T) {
	env := setupTestEnv(t)
	_, adminToken := createTestUser(t, env.db, "admin", "Password123!", models.UserRoleAdmin)
	_, userToken := createTestUser(t, env.db, "ana", "Password123!", models.UserRoleUser)

	resp := performJSONRequest(t, env.app, http.MethodPut, "/api/app-settings", map[string]any{
		"theme":           "dark",
		"exportSheetName": " Unosi ",
		"logoLocations":   []string{"header", "forms", "header"},
	}, authHeaders(adminToken))
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusOK)

	data := dataMap(t, body)
	if data["theme"] != "dark" || data["exportSheetName"] != "Unosi" || data["appName"] != "Formsheet" {
		t.Fatalf("unexpected settings after update: %+v", data)
	}
	if locations, _ := data["logoLocations"].([]any); len(locations) != 2 {
		t.Fatalf("expected deduplicated logo locations, got %v", data["logoLocations"])
	}

	cases := []struct {
		name    string
		payload map[string]any
		error   string
	}{
		{name: "unknown theme", payload: map[string]any{"theme": "neon"}, error: "validation failed"},
		{name: "unknown logo location", payload: map[string]any{"logoLocations": []string{"footer"}}, error: "validation failed"},
		{name: "blank app name", payload: map[string]any{"appName": "   "}, error: "appName cannot be empty"},
		{name: "nothing to update", payload: map[string]any{"unknown": true}, error: "no valid fields to update"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := performJSONRequest(t, env.app, http.MethodPut, "/api/app-settings", tc.payload, authHeaders(adminToken))
			body := decodeJSONMap(t, resp)
			assertStatus(t, resp, http.StatusBadRequest)
			assertEnvelopeError(t, body, tc.error)
		})
	}

	t.Run("admin only", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/app-settings", map[string]any{"theme": "light"}, authHeaders(userToken))
		assertStatus(t, resp, http.StatusForbidden)
	})
}

func TestUploads(t *testing.T) {
	env := setupTestEnv(t)
	_, adminToken := createTestUser(t, env.db, "admin", "Password123!", models.UserRoleAdmin)

	t.Run("stores and serves an image", func(t *testing.T) {
		resp := performUpload(t, env.app, "/api/uploads/logo", "logo.png", pngSignature, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusCreated)

		data := dataMap(t, body)
		url, _ := data["url"].(string)
		if !strings.HasPrefix(url, "/uploads/logo/") || !strings.HasSuffix(url, ".png") {
			t.Fatalf("unexpected upload url %q", url)
		}
		if data["contentType"] != "image/png" {
			t.Fatalf("expected sniffed image/png, got %v", data["contentType"])
		}

		resp = performRequest(t, env.app, http.MethodGet, url, nil, nil)
		assertStatus(t, resp, http.StatusOK)
		defer resp.Body.Close()
		served, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("failed reading served upload: %v", err)
		}
		if !bytes.Equal(served, pngSignature) {
			t.Fatal("served bytes differ from the upload")
		}
	})

	before := countStoredFiles(t, env.uploadDir)

	t.Run("rejects a disallowed type", func(t *testing.T) {
		resp := performUpload(t, env.app, "/api/uploads/logo", "logo.png", []byte("#!/bin/sh\necho hi\n"), authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "file type is not allowed")
	})

	t.Run("rejects an oversized file", func(t *testing.T) {
		content := append(append([]byte{}, pngSignature...), bytes.Repeat([]byte{0}, testUploadLimit)...)
		resp := performUpload(t, env.app, "/api/uploads/form-image", "big.png", content, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusBadRequest)
	})

	t.Run("rejects an unknown kind", func(t *testing.T) {
		resp := performUpload(t, env.app, "/api/uploads/avatar", "a.png", pngSignature, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "unknown upload kind")
	})

	if after := countStoredFiles(t, env.uploadDir); after != before {
		t.Fatalf("rejected uploads must not be stored: %d files before, %d after", before, after)
	}

	t.Run("missing and traversing keys", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/uploads/logo/missing.png", nil, nil)
		assertStatus(t, resp, http.StatusNotFound)

		resp = performRequest(t, env.app, http.MethodGet, "/uploads/..%2F..%2Fetc%2Fpasswd", nil, nil)
		assertStatus(t, resp, http.StatusNotFound)
	})
}

func TestAuditLog(t *testing.T) {
	env := setupTestEnv(t)
	admin, adminToken := createTestUser(t, env.db, "admin", "Password123!", models.UserRoleAdmin)
	_, userToken := createTestUser(t, env.db, "ana", "Password123!", models.UserRoleUser)

	resp := performJSONRequest(t, env.app, http.MethodPut, "/api/app-settings", map[string]any{"theme": "dark"}, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusOK)

	// flush the async writer; nothing below records audit entries
	env.audit.Close()

	resp = performRequest(t, env.app, http.MethodGet, "/api/audit-log?action=settings.update&userId="+admin.ID.String(), nil, authHeaders(adminToken))
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusOK)
	entries := dataSlice(t, body)
	if len(entries) != 1 {
		t.Fatalf("expected one settings entry, got %d", len(entries))
	}
	entry, _ := entries[0].(map[string]any)
	if entry["resourceType"] != "app_settings" {
		t.Fatalf("unexpected audit entry: %v", entry)
	}

	resp = performRequest(t, env.app, http.MethodGet, "/api/audit-log/export?action=settings.update", nil, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusOK)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "Timestamp,") || !strings.Contains(lines[1], "settings.update") {
		t.Fatalf("unexpected csv export: %q", string(raw))
	}

	resp = performRequest(t, env.app, http.MethodGet, "/api/audit-log?userId=bad", nil, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusBadRequest)

	resp = performRequest(t, env.app, http.MethodGet, "/api/audit-log", nil, authHeaders(userToken))
	assertStatus(t, resp, http.StatusForbidden)
}
