package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// runCLI executes the root command with fresh flag state and returns its output.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	flagJSON, flagServerURL = false, ""
	flagUsername, flagPassword, flagPasswordStdin, flagToken = "", "", false, ""
	flagSet, flagParams = nil, nil
	flagGroupBy, flagSumBy, flagSection, flagSheet, flagOutput = "", "", "", "", ""
	flagStatus, flagFormID, flagPage, flagLimit = "", "", 0, 0
	flagAppName, flagExportSheet, flagImportSheet, flagTheme, flagPrimaryColor = "", "", "", "", ""
	flagLogoLocations = nil

	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		c.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
		c.PersistentFlags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(cmd)
}

func useTempConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "formsheet", "config.json")
	t.Setenv(ConfigPathEnv, path)
	return path
}

func loggedIn(t *testing.T, serverURL string) {
	t.Helper()
	useTempConfig(t)
	if err := SaveConfig(&Config{ServerURL: serverURL, Token: "tok-1", Username: "ana"}); err != nil {
		t.Fatalf("failed saving config: %v", err)
	}
}

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": status < 400, "data": data})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": message})
}

func requireBearer(t *testing.T, r *http.Request) {
	t.Helper()
	if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
		t.Errorf("expected bearer token, got %q", got)
	}
}

func TestLoginWhoamiLogout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "ana" || body["password"] != "Password123!" {
			writeFailure(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeEnvelope(w, http.StatusOK, map[string]any{
			"token":       "tok-1",
			"user":        map[string]any{"id": "u1", "username": "ana", "role": "user"},
			"permissions": []string{"forms"},
		})
	})
	mux.HandleFunc("GET /api/auth/verify", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		writeEnvelope(w, http.StatusOK, map[string]any{
			"valid":       true,
			"user":        map[string]any{"id": "u1", "username": "ana", "email": "ana@example.com", "role": "user"},
			"permissions": []string{"forms"},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	path := useTempConfig(t)

	t.Run("wrong password", func(t *testing.T) {
		_, err := runCLI(t, "nope\n", "login", "-u", "ana", "--password-stdin", "--server", server.URL)
		if err == nil || err.Error() != "invalid credentials" {
			t.Fatalf("expected invalid credentials, got %v", err)
		}
		if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
			t.Fatal("config must not be written on a failed login")
		}
	})

	t.Run("login stores the token", func(t *testing.T) {
		out, err := runCLI(t, "Password123!\n", "login", "-u", "ana", "--password-stdin", "--server", server.URL)
		if err != nil {
			t.Fatalf("login failed: %v", err)
		}
		if !strings.Contains(out, "Logged in as ana (user)") {
			t.Errorf("unexpected output %q", out)
		}

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig() returned error: %v", err)
		}
		if cfg.Token != "tok-1" || cfg.ServerURL != server.URL || cfg.Username != "ana" {
			t.Errorf("unexpected config: %+v", cfg)
		}
	})

	t.Run("whoami", func(t *testing.T) {
		out, err := runCLI(t, "", "whoami")
		if err != nil {
			t.Fatalf("whoami failed: %v", err)
		}
		if !strings.Contains(out, "ana@example.com") || !strings.Contains(out, "forms") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("logout", func(t *testing.T) {
		if _, err := runCLI(t, "", "logout"); err != nil {
			t.Fatalf("logout failed: %v", err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected config removed, stat returned %v", err)
		}

		_, err := runCLI(t, "", "whoami")
		if err == nil || !strings.Contains(err.Error(), "not authenticated") {
			t.Fatalf("expected not authenticated error, got %v", err)
		}
	})
}

func TestLoginWithToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			writeFailure(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		writeEnvelope(w, http.StatusOK, map[string]any{"valid": true, "user": map[string]any{"username": "marko"}})
	}))
	defer server.Close()
	useTempConfig(t)

	if _, err := runCLI(t, "", "login", "--token", "bad", "--server", server.URL); err == nil {
		t.Fatal("expected an error for a rejected token")
	}

	out, err := runCLI(t, "", "login", "--token", "good", "--server", server.URL)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if !strings.Contains(out, "Logged in as marko") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestFormsSubmit(t *testing.T) {
	var submitted map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/forms/f1/initial-values", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		writeEnvelope(w, http.StatusOK, map[string]any{"kupac": "", "kolicina": "", "cijena": 2.5})
	})
	mux.HandleFunc("POST /api/submit-form", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		var body struct {
			FormID string         `json:"formId"`
			Values map[string]any `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.FormID != "f1" {
			t.Errorf("unexpected form id %q", body.FormID)
		}
		submitted = body.Values
		writeEnvelope(w, http.StatusOK, map[string]any{"submissionId": "s1", "status": "exported", "row": 2, "sheetName": "Narudzbe"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	loggedIn(t, server.URL)

	out, err := runCLI(t, "", "forms", "submit", "f1", "--set", "kupac=Firma d.o.o.", "--set", "kolicina=4")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !strings.Contains(out, "Exported to Narudzbe row 2") {
		t.Errorf("unexpected output %q", out)
	}
	if submitted["kupac"] != "Firma d.o.o." || submitted["kolicina"] != "4" || submitted["cijena"] != 2.5 {
		t.Errorf("unexpected submitted values: %v", submitted)
	}

	if _, err := runCLI(t, "", "forms", "submit", "f1", "--set", "bez-znaka"); err == nil {
		t.Fatal("expected an error for a malformed assignment")
	}
}

func TestFormsListJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, []map[string]any{{"id": "f1", "name": "Narudzba", "fields": []any{}, "isActive": true}})
	}))
	defer server.Close()
	loggedIn(t, server.URL)

	out, err := runCLI(t, "", "forms", "ls", "--json")
	if err != nil {
		t.Fatalf("forms ls failed: %v", err)
	}
	var forms []map[string]any
	if err := json.Unmarshal([]byte(out), &forms); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", out, err)
	}
	if len(forms) != 1 || forms[0]["name"] != "Narudzba" {
		t.Errorf("unexpected forms: %v", forms)
	}
}

func TestReportsRun(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/report-data", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("templateId") != "t1" || q.Get("grad") != "Sarajevo" || q.Get("groupBy") != "Proizvod" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		writeEnvelope(w, http.StatusOK, map[string]any{
			"sheet":   "Prodaja",
			"columns": []string{"Proizvod", "Iznos"},
			"rows":    []map[string]any{{"Proizvod": "Vijak", "Iznos": 12.5}, {"Proizvod": "Matica", "Iznos": 3}},
			"total":   2,
		})
	})
	mux.HandleFunc("GET /api/report-data/export", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("PK-xlsx"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	loggedIn(t, server.URL)

	t.Run("prints the table", func(t *testing.T) {
		out, err := runCLI(t, "", "reports", "run", "t1", "--param", "grad=Sarajevo", "--group-by", "Proizvod")
		if err != nil {
			t.Fatalf("reports run failed: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(out), "\n")
		if !strings.HasPrefix(lines[0], "Proizvod") || !strings.Contains(lines[1], "12.5") || !strings.Contains(lines[2], "3") {
			t.Errorf("unexpected output %q", out)
		}
		if !strings.Contains(out, "2 row(s) from Prodaja") {
			t.Errorf("missing summary in %q", out)
		}
	})

	t.Run("writes xlsx", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "prodaja.xlsx")
		if _, err := runCLI(t, "", "reports", "run", "t1", "--output", dest); err != nil {
			t.Fatalf("export failed: %v", err)
		}
		data, err := os.ReadFile(dest)
		if err != nil || string(data) != "PK-xlsx" {
			t.Fatalf("unexpected export file %q: %v", data, err)
		}
	})

	t.Run("needs a template or sheet", func(t *testing.T) {
		if _, err := runCLI(t, "", "reports", "run"); err == nil {
			t.Fatal("expected an error without template id or --sheet")
		}
	})
}

func TestSettingsSetSendsOnlyChangedFlags(t *testing.T) {
	var body map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/app-settings", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeEnvelope(w, http.StatusOK, map[string]any{"appName": "Formsheet", "theme": "dark", "exportSheetName": "Unosi"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	loggedIn(t, server.URL)

	out, err := runCLI(t, "", "settings", "set", "--theme", "DARK", "--export-sheet", "Unosi")
	if err != nil {
		t.Fatalf("settings set failed: %v", err)
	}
	if len(body) != 2 || body["theme"] != "dark" || body["exportSheetName"] != "Unosi" {
		t.Errorf("unexpected update body: %v", body)
	}
	if !strings.Contains(out, "Unosi") {
		t.Errorf("unexpected output %q", out)
	}

	if _, err := runCLI(t, "", "settings", "set"); err == nil {
		t.Fatal("expected an error when no flag is passed")
	}
}

func TestExportsRetryConflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusConflict, "submission is already exported")
	}))
	defer server.Close()
	loggedIn(t, server.URL)

	_, err := runCLI(t, "", "exports", "retry", "j1")
	if err == nil || !strings.Contains(err.Error(), "already exported") {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestExpiredSessionHint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusUnauthorized, "invalid or expired token")
	}))
	defer server.Close()
	loggedIn(t, server.URL)

	_, err := runCLI(t, "", "exports", "ls")
	if err == nil || !strings.Contains(err.Error(), "formsheet login") {
		t.Fatalf("expected login hint, got %v", err)
	}
}

func TestVersionWithoutServer(t *testing.T) {
	useTempConfig(t)

	out, err := runCLI(t, "", "version", "--server", "http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "CLI version:    dev") || !strings.Contains(out, "(unavailable)") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestParseAssignments(t *testing.T) {
	values, err := parseAssignments([]string{"kupac=Firma", "napomena=a=b", "prazno="})
	if err != nil {
		t.Fatalf("parseAssignments() returned error: %v", err)
	}
	if values["kupac"] != "Firma" || values["napomena"] != "a=b" || values["prazno"] != "" {
		t.Errorf("unexpected values: %v", values)
	}

	for _, bad := range []string{"bez", "=vrijednost"} {
		if _, err := parseAssignments([]string{bad}); err == nil {
			t.Errorf("expected an error for %q", bad)
		}
	}
}
