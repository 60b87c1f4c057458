package apiclient

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestNewClient(t *testing.T) {
	t.Run("appends the api prefix", func(t *testing.T) {
		client := NewClient("http://localhost:8080/", "test-token")
		if client.BaseURL != "http://localhost:8080/api" {
			t.Errorf("expected BaseURL 'http://localhost:8080/api', got %s", client.BaseURL)
		}
		if client.Token != "test-token" {
			t.Errorf("expected Token 'test-token', got %s", client.Token)
		}
	})

	t.Run("sets a timeout", func(t *testing.T) {
		client := NewClient("http://localhost:8080", "")
		if client.HTTPClient == nil || client.HTTPClient.Timeout == 0 {
			t.Error("expected HTTPClient with a timeout")
		}
	})
}

func TestAPIError(t *testing.T) {
	t.Run("plain message", func(t *testing.T) {
		err := &APIError{Status: 404, Message: "form not found"}
		if err.Error() != "api: 404: form not found" {
			t.Errorf("unexpected message %q", err.Error())
		}
	})

	t.Run("with validation details", func(t *testing.T) {
		err := &APIError{Status: 400, Message: "validation failed", Details: []FieldError{
			{Field: "kupac", Message: "is required"},
			{Field: "kolicina", Message: "must be a number"},
		}}
		want := "api: 400: validation failed (kupac: is required; kolicina: must be a number)"
		if err.Error() != want {
			t.Errorf("expected %q, got %q", want, err.Error())
		}
	})
}

func TestClient_Get(t *testing.T) {
	t.Run("sends bearer token and decodes the envelope", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/forms" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if r.Header.Get("Authorization") != "Bearer test-token" {
				t.Errorf("expected bearer token, got %s", r.Header.Get("Authorization"))
			}
			if r.URL.Query().Get("status") != "failed" {
				t.Errorf("expected status=failed, got %s", r.URL.RawQuery)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"data":    []map[string]any{{"id": "f1", "name": "Narudzba"}},
			})
		}))
		defer server.Close()

		client := NewClient(server.URL, "test-token")
		var resp Response[[]Form]
		if err := client.Get("/forms", map[string][]string{"status": {"failed"}}, &resp); err != nil {
			t.Fatalf("Get() returned error: %v", err)
		}
		if len(resp.Data) != 1 || resp.Data[0].Name != "Narudzba" {
			t.Fatalf("unexpected data: %+v", resp.Data)
		}
	})

	t.Run("returns APIError with server message", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"error":   "validation failed",
				"details": []map[string]string{{"field": "kupac", "message": "is required"}},
			})
		}))
		defer server.Close()

		client := NewClient(server.URL, "")
		err := client.Get("/forms", nil, nil)

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %T", err)
		}
		if apiErr.Status != http.StatusBadRequest || apiErr.Message != "validation failed" {
			t.Errorf("unexpected error: %+v", apiErr)
		}
		if len(apiErr.Details) != 1 || apiErr.Details[0].Field != "kupac" {
			t.Errorf("unexpected details: %+v", apiErr.Details)
		}
	})

	t.Run("falls back to the raw body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		}))
		defer server.Close()

		err := NewClient(server.URL, "").Get("/version", nil, nil)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Message != "bad gateway" {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestClient_Post(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected JSON content type, got %s", r.Header.Get("Content-Type"))
		}
		var body SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed decoding body: %v", err)
		}
		if body.FormID != "f1" || body.Values["kupac"] != "Firma" {
			t.Errorf("unexpected body: %+v", body)
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"submissionId": "s1", "status": "exported", "row": 4, "sheetName": "Unosi"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "token")
	var resp Response[SubmitResult]
	err := client.Post("/submit-form", SubmitRequest{FormID: "f1", Values: map[string]interface{}{"kupac": "Firma"}}, &resp)
	if err != nil {
		t.Fatalf("Post() returned error: %v", err)
	}
	if resp.Data.Status != "exported" || resp.Data.Row == nil || *resp.Data.Row != 4 {
		t.Fatalf("unexpected result: %+v", resp.Data)
	}
}

func TestClient_PutAndDelete(t *testing.T) {
	var methods []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]any{}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "token")
	if err := client.Put("/app-settings", map[string]string{"theme": "dark"}, nil); err != nil {
		t.Fatalf("Put() returned error: %v", err)
	}
	if err := client.Delete("/forms/f1", nil); err != nil {
		t.Fatalf("Delete() returned error: %v", err)
	}
	if len(methods) != 2 || methods[0] != http.MethodPut || methods[1] != http.MethodDelete {
		t.Fatalf("unexpected methods: %v", methods)
	}
}

func TestClient_DownloadToFile(t *testing.T) {
	t.Run("writes the body to disk", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("templateId") != "t1" {
				t.Errorf("expected templateId query, got %s", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte("xlsx-bytes"))
		}))
		defer server.Close()

		dest := filepath.Join(t.TempDir(), "report.xlsx")
		err := NewClient(server.URL, "token").DownloadToFile("/report-data/export", map[string][]string{"templateId": {"t1"}}, dest)
		if err != nil {
			t.Fatalf("DownloadToFile() returned error: %v", err)
		}
		data, err := os.ReadFile(dest)
		if err != nil {
			t.Fatalf("failed reading download: %v", err)
		}
		if string(data) != "xlsx-bytes" {
			t.Errorf("unexpected file content %q", data)
		}
	})

	t.Run("does not create a file on error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "insufficient permissions"})
		}))
		defer server.Close()

		dest := filepath.Join(t.TempDir(), "report.xlsx")
		err := NewClient(server.URL, "token").DownloadToFile("/report-data/export", nil, dest)
		if err == nil {
			t.Fatal("expected an error")
		}
		if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
			t.Errorf("expected no file, stat returned %v", statErr)
		}
	})
}
