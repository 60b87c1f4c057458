package handlers

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/formsheet/server/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

func orderFields() datatypes.JSONSlice[models.FieldDefinition] {
	return datatypes.JSONSlice[models.FieldDefinition]{
		{ID: "f0", Type: models.FieldTypeLabel, Name: "naslov", Label: "Narudžba"},
		{ID: "f1", Type: models.FieldTypeText, Name: "kupac", Required: true},
		{ID: "f2", Type: models.FieldTypeNumber, Name: "kolicina", Required: true},
		{ID: "f3", Type: models.FieldTypeNumber, Name: "cijena", DefaultValue: 2.5},
		{ID: "f4", Type: models.FieldTypeFormula, Name: "ukupno", Formula: "=kolicina * cijena"},
	}
}

func TestCreateFormReturnsArrays(t *testing.T) {
	env := setupTestEnv(t)
	_, adminToken := createTestUser(t, env.db, "admin", "Password123!", models.UserRoleAdmin)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/forms", map[string]any{
		"name":        "Prazna forma",
		"description": "bez polja",
	}, authHeaders(adminToken))
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusCreated)

	data := dataMap(t, body)
	if fields, ok := data["fields"].([]any); !ok || len(fields) != 0 {
		t.Fatalf("expected fields to be an empty array, got %#v", data["fields"])
	}
	if allowed, ok := data["allowedUsers"].([]any); !ok || len(allowed) != 0 {
		t.Fatalf("expected allowedUsers to be an empty array, got %#v", data["allowedUsers"])
	}
	if data["isActive"] != true {
		t.Fatalf("expected new form to be active, got %v", data["isActive"])
	}

	t.Run("duplicate name ignoring case", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/forms", map[string]any{
			"name": "PRAZNA FORMA",
		}, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusConflict)
		assertEnvelopeError(t, body, "a form with this name already exists")
	})

	t.Run("invalid field definitions", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/forms", map[string]any{
			"name": "Neispravna",
			"fields": []map[string]any{
				{"id": "a", "type": "text", "name": "x"},
				{"id": "b", "type": "formula", "name": "y", "formula": "=missing + 1"},
			},
		}, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "validation failed")
		if details, _ := body["details"].([]any); len(details) == 0 {
			t.Fatalf("expected validation details, got %+v", body)
		}
	})
}

func TestFormWritesRequireAdmin(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "korisnik", "Password123!", models.UserRoleManager)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/forms", map[string]any{
		"name": "Forma",
	}, authHeaders(token))
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusForbidden)
	assertEnvelopeError(t, body, "admin access required")
}

func TestFormVisibility(t *testing.T) {
	env := setupTestEnv(t)
	_, adminToken := createTestUser(t, env.db, "admin", "Password123!", models.UserRoleAdmin)
	_, anaToken := createTestUser(t, env.db, "ana", "Password123!", models.UserRoleUser)
	_, bojanToken := createTestUser(t, env.db, "bojan", "Password123!", models.UserRoleUser)

	open := createTestForm(t, env.db, &models.Form{Name: "Otvorena", IsActive: true})
	restricted := createTestForm(t, env.db, &models.Form{
		Name:         "Samo Ana",
		IsActive:     true,
		AllowedUsers: datatypes.JSONSlice[string]{"Ana"},
	})
	inactive := createTestForm(t, env.db, &models.Form{Name: "Arhiva", IsActive: false})

	listNames := func(t *testing.T, token string) map[string]bool {
		t.Helper()
		resp := performRequest(t, env.app, http.MethodGet, "/api/forms", nil, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		names := map[string]bool{}
		for _, item := range dataSlice(t, body) {
			form, _ := item.(map[string]any)
			name, _ := form["name"].(string)
			names[name] = true
		}
		return names
	}

	t.Run("admin sees everything", func(t *testing.T) {
		names := listNames(t, adminToken)
		if len(names) != 3 {
			t.Fatalf("expected 3 forms, got %v", names)
		}
	})

	t.Run("allowed users match ignoring case", func(t *testing.T) {
		names := listNames(t, anaToken)
		if !names["Otvorena"] || !names["Samo Ana"] || names["Arhiva"] {
			t.Fatalf("unexpected forms for ana: %v", names)
		}
	})

	t.Run("other users do not see restricted forms", func(t *testing.T) {
		names := listNames(t, bojanToken)
		if !names["Otvorena"] || names["Samo Ana"] {
			t.Fatalf("unexpected forms for bojan: %v", names)
		}

		resp := performRequest(t, env.app, http.MethodGet, "/api/forms/"+restricted.ID.String(), nil, authHeaders(bojanToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusForbidden)
		assertEnvelopeError(t, body, errFormForbidden.Error())
	})

	t.Run("inactive forms are hidden from non-admins", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/forms/"+inactive.ID.String(), nil, authHeaders(anaToken))
		assertStatus(t, resp, http.StatusNotFound)

		resp = performRequest(t, env.app, http.MethodGet, "/api/forms/"+open.ID.String(), nil, authHeaders(anaToken))
		assertStatus(t, resp, http.StatusOK)
	})

	t.Run("invalid and unknown ids", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/forms/not-a-uuid", nil, authHeaders(anaToken))
		assertStatus(t, resp, http.StatusBadRequest)

		resp = performRequest(t, env.app, http.MethodGet, "/api/forms/"+uuid.NewString(), nil, authHeaders(anaToken))
		assertStatus(t, resp, http.StatusNotFound)
	})
}

func TestFormInitialValues(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "ana", "Password123!", models.UserRoleUser)
	form := createTestForm(t, env.db, &models.Form{Name: "Narudžba", IsActive: true, Fields: orderFields()})

	resp := performRequest(t, env.app, http.MethodGet, "/api/forms/"+form.ID.String()+"/initial-values", nil, authHeaders(token))
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusOK)

	data := dataMap(t, body)
	if data["cijena"] != 2.5 {
		t.Fatalf("expected default cijena 2.5, got %v", data["cijena"])
	}
	if data["kupac"] != "" {
		t.Fatalf("expected empty kupac, got %v", data["kupac"])
	}
	if _, ok := data["naslov"]; ok {
		t.Fatal("labels must not have an initial value")
	}
}

func TestUpdateAndDeleteForm(t *testing.T) {
	env := setupTestEnv(t)
	_, adminToken := createTestUser(t, env.db, "admin", "Password123!", models.UserRoleAdmin)
	form := createTestForm(t, env.db, &models.Form{Name: "Stara", IsActive: true})

	resp := performJSONRequest(t, env.app, http.MethodPut, "/api/forms/"+form.ID.String(), map[string]any{
		"name":      "Nova",
		"sheetName": "Unosi",
		"fields":    orderFields(),
	}, authHeaders(adminToken))
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusOK)

	data := dataMap(t, body)
	if data["name"] != "Nova" || data["sheetName"] != "Unosi" {
		t.Fatalf("unexpected updated form: %+v", data)
	}
	if fields, _ := data["fields"].([]any); len(fields) != 5 {
		t.Fatalf("expected 5 fields, got %d", len(fields))
	}

	resp = performRequest(t, env.app, http.MethodDelete, "/api/forms/"+form.ID.String(), nil, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusOK)

	resp = performRequest(t, env.app, http.MethodGet, "/api/forms/"+form.ID.String(), nil, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusNotFound)

	resp = performRequest(t, env.app, http.MethodDelete, "/api/forms/"+form.ID.String(), nil, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusNotFound)
}

func TestSubmitFormAppendsAtFirstEmptyRow(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env.db, "ana", "Password123!", models.UserRoleUser)
	form := createTestForm(t, env.db, &models.Form{
		Name:      "Narudžba",
		SheetName: "Narudzbe",
		IsActive:  true,
		Fields:    orderFields(),
	})

	env.sheets.AddSheet("Narudzbe",
		[]interface{}{"Kupac", "Količina", "Cijena", "Ukupno"},
		[]interface{}{},
		[]interface{}{"Prije", "1", "1", "1"},
	)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/submit-form", map[string]any{
		"formId": form.ID.String(),
		"values": map[string]any{
			"kupac":    "Firma d.o.o.",
			"kolicina": "4",
			"cijena":   2.5,
			"ukupno":   999,
			"unknown":  "dropped",
		},
	}, authHeaders(token))
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusOK)

	data := dataMap(t, body)
	if data["status"] != string(models.SubmissionStatusExported) {
		t.Fatalf("expected exported status, got %v", data["status"])
	}
	if data["row"] != float64(2) {
		t.Fatalf("expected row 2, got %v", data["row"])
	}

	rows := env.sheets.Rows("Narudzbe")
	want := []interface{}{"Firma d.o.o.", "4", "2.5", "10"}
	if len(rows) != 3 || len(rows[1]) != len(want) {
		t.Fatalf("unexpected sheet contents: %v", rows)
	}
	for i := range want {
		if rows[1][i] != want[i] {
			t.Fatalf("cell %d: expected %v, got %v", i, want[i], rows[1][i])
		}
	}

	var submission models.FormSubmission
	if err := env.db.First(&submission, "form_id = ?", form.ID).Error; err != nil {
		t.Fatalf("failed loading submission: %v", err)
	}
	if submission.SubmittedByID != user.ID || submission.Attempts != 1 {
		t.Fatalf("unexpected submission record: %+v", submission)
	}
	if _, kept := submission.Values["unknown"]; kept {
		t.Fatal("unknown keys must be dropped")
	}
}

func TestSubmitFormValidation(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "ana", "Password123!", models.UserRoleUser)
	form := createTestForm(t, env.db, &models.Form{Name: "Narudžba", IsActive: true, Fields: orderFields()})

	t.Run("invalid values", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/submit-form", map[string]any{
			"formId": form.ID.String(),
			"values": map[string]any{"kolicina": "mnogo"},
		}, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "validation failed")
		if details, _ := body["details"].([]any); len(details) != 2 {
			t.Fatalf("expected errors for kupac and kolicina, got %+v", body["details"])
		}
	})

	t.Run("NaN and infinity are not numbers", func(t *testing.T) {
		for _, raw := range []string{"NaN", "Inf", "-Infinity"} {
			resp := performJSONRequest(t, env.app, http.MethodPost, "/api/submit-form", map[string]any{
				"formId": form.ID.String(),
				"values": map[string]any{"kupac": "A", "kolicina": raw},
			}, authHeaders(token))
			body := decodeJSONMap(t, resp)
			assertStatus(t, resp, http.StatusBadRequest)
			assertEnvelopeError(t, body, "validation failed")
			details, _ := body["details"].([]any)
			if len(details) != 1 {
				t.Fatalf("expected one error for %s, got %+v", raw, body["details"])
			}
			if detail, _ := details[0].(map[string]any); detail["field"] != "values.kolicina" {
				t.Fatalf("expected kolicina to be rejected for %s, got %+v", raw, detail)
			}
		}
	})

	t.Run("no export sheet configured", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/submit-form", map[string]any{
			"formId": form.ID.String(),
			"values": map[string]any{"kupac": "A", "kolicina": 1},
		}, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "no export sheet is configured for this form")
	})

	t.Run("missing form id", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/submit-form", map[string]any{
			"values": map[string]any{},
		}, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "formId is required")
	})
}

func TestSubmitFormDefersFailedExportAndRetries(t *testing.T) {
	env := setupTestEnv(t)
	_, adminToken := createTestUser(t, env.db, "admin", "Password123!", models.UserRoleAdmin)
	_, token := createTestUser(t, env.db, "ana", "Password123!", models.UserRoleUser)
	form := createTestForm(t, env.db, &models.Form{Name: "Narudžba", IsActive: true, Fields: orderFields()})

	settings := models.DefaultAppSettings()
	settings.ExportSheetName = "Unosi"
	if err := env.db.Create(&settings).Error; err != nil {
		t.Fatalf("failed creating settings: %v", err)
	}
	env.sheets.AddSheet("Unosi", []interface{}{"Kupac", "Količina", "Cijena", "Ukupno"})
	env.sheets.FailUpdates(errors.New("quota exceeded"))

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/submit-form", map[string]any{
		"formId": form.ID.String(),
		"values": map[string]any{"kupac": "Kasni", "kolicina": 2},
	}, authHeaders(token))
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusAccepted)

	data := dataMap(t, body)
	if data["sheetName"] != "Unosi" {
		t.Fatalf("expected fallback to the settings export tab, got %v", data["sheetName"])
	}
	if data["status"] != string(models.SubmissionStatusFailed) {
		t.Fatalf("expected failed status with one attempt, got %v", data["status"])
	}
	if msg, _ := data["message"].(string); strings.Contains(msg, "shortly") || !strings.Contains(msg, "retry") {
		t.Fatalf("expected a failure message pointing at retry, got %q", msg)
	}
	submissionID, _ := data["submissionId"].(string)

	resp = performRequest(t, env.app, http.MethodGet, "/api/export-jobs?status=failed", nil, authHeaders(adminToken))
	body = decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusOK)
	if jobs := dataSlice(t, body); len(jobs) != 1 {
		t.Fatalf("expected one failed job, got %d", len(jobs))
	}

	env.sheets.FailUpdates(nil)
	resp = performRequest(t, env.app, http.MethodPost, "/api/export-jobs/"+submissionID+"/retry", nil, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusAccepted)

	deadline := time.Now().Add(5 * time.Second)
	var submission models.FormSubmission
	for {
		if err := env.db.First(&submission, "id = ?", submissionID).Error; err != nil {
			t.Fatalf("failed loading submission: %v", err)
		}
		if submission.Status == models.SubmissionStatusExported {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("submission was not exported after retry, status %s", submission.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if submission.ExportedRow == nil || *submission.ExportedRow != 2 {
		t.Fatalf("expected export to row 2, got %v", submission.ExportedRow)
	}

	resp = performRequest(t, env.app, http.MethodPost, "/api/export-jobs/"+submissionID+"/retry", nil, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusConflict)

	resp = performRequest(t, env.app, http.MethodPost, "/api/export-jobs/"+uuid.NewString()+"/retry", nil, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusNotFound)
}
