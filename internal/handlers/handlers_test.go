package handlers

import (
	"net/http"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	resp := performRequest(t, env.app, http.MethodGet, "/health", nil, nil)
	body := decodeJSONMap(t, resp)

	assertStatus(t, resp, http.StatusOK)
	if got, _ := body["status"].(string); got != "ok" {
		t.Fatalf("expected health status 'ok', got %q", got)
	}
}

func TestVersionEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	resp := performRequest(t, env.app, http.MethodGet, "/api/version", nil, nil)
	body := decodeJSONMap(t, resp)

	assertStatus(t, resp, http.StatusOK)
	if success, _ := body["success"].(bool); !success {
		t.Fatalf("expected success=true, got %+v", body)
	}
	data := dataMap(t, body)
	if data["apiVersion"] != "v1" {
		t.Fatalf("expected apiVersion v1, got %v", data["apiVersion"])
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := setupTestEnv(t)

	paths := []string{"/api/forms", "/api/catalogs", "/api/report-templates", "/api/auth/me"}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			resp := performRequest(t, env.app, http.MethodGet, path, nil, nil)
			body := decodeJSONMap(t, resp)
			assertStatus(t, resp, http.StatusUnauthorized)
			assertEnvelopeError(t, body, "missing authorization header")
		})
	}
}
