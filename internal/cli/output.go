package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/formsheet/server/internal/apiclient"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printUser(w io.Writer, u apiclient.User, permissions []string) {
	tw := newTable(w)
	fmt.Fprintf(tw, "Username:\t%s\n", u.Username)
	fmt.Fprintf(tw, "Name:\t%s\n", strings.TrimSpace(u.FirstName+" "+u.LastName))
	fmt.Fprintf(tw, "Email:\t%s\n", u.Email)
	fmt.Fprintf(tw, "Role:\t%s\n", u.Role)
	if len(permissions) > 0 {
		fmt.Fprintf(tw, "Permissions:\t%s\n", strings.Join(permissions, ", "))
	}
	fmt.Fprintf(tw, "ID:\t%s\n", u.ID)
	tw.Flush()
}

func printForms(w io.Writer, forms []apiclient.Form) {
	if len(forms) == 0 {
		fmt.Fprintln(w, "No forms found.")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNAME\tFIELDS\tSHEET\tACTIVE\tMODIFIED")
	for _, f := range forms {
		sheet := f.SheetName
		if sheet == "" {
			sheet = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n", f.ID, f.Name, len(f.Fields), sheet, yesNo(f.IsActive), relativeTime(f.UpdatedAt))
	}
	tw.Flush()
}

func printFormDetail(w io.Writer, f apiclient.Form) {
	tw := newTable(w)
	fmt.Fprintf(tw, "Name:\t%s\n", f.Name)
	fmt.Fprintf(tw, "ID:\t%s\n", f.ID)
	if f.Description != "" {
		fmt.Fprintf(tw, "Description:\t%s\n", f.Description)
	}
	if f.SheetName != "" {
		fmt.Fprintf(tw, "Sheet:\t%s\n", f.SheetName)
	}
	if len(f.AllowedUsers) > 0 {
		fmt.Fprintf(tw, "Allowed users:\t%s\n", strings.Join(f.AllowedUsers, ", "))
	}
	tw.Flush()

	if len(f.Fields) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw = newTable(w)
	fmt.Fprintln(tw, "FIELD\tTYPE\tLABEL\tREQUIRED\tCOLUMN")
	for _, field := range f.Fields {
		column := field.SheetColumn
		if column == "" {
			column = "-"
		}
		label := field.Label
		if field.Formula != "" {
			label = field.Formula
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", field.Name, field.Type, label, yesNo(field.Required), column)
	}
	tw.Flush()
}

func printSubmitResult(w io.Writer, r apiclient.SubmitResult) {
	switch {
	case r.Row != nil:
		fmt.Fprintf(w, "Exported to %s row %d (submission %s)\n", r.SheetName, *r.Row, r.SubmissionID)
	case r.Message != "":
		fmt.Fprintf(w, "Submission %s is %s: %s\n", r.SubmissionID, r.Status, r.Message)
	default:
		fmt.Fprintf(w, "Submission %s is %s\n", r.SubmissionID, r.Status)
	}
}

func printExportJobs(w io.Writer, jobs []apiclient.ExportJob) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No export jobs found.")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tSHEET\tSTATUS\tATTEMPTS\tROW\tCREATED\tLAST ERROR")
	for _, j := range jobs {
		row := "-"
		if j.ExportedRow != nil {
			row = strconv.Itoa(*j.ExportedRow)
		}
		lastErr := "-"
		if j.LastError != nil {
			lastErr = truncate(*j.LastError, 60)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\t%s\t%s\n", j.ID, j.SheetName, j.Status, j.Attempts, j.MaxAttempts, row, relativeTime(j.CreatedAt), lastErr)
	}
	tw.Flush()
}

func printTemplates(w io.Writer, templates []apiclient.ReportTemplate) {
	if len(templates) == 0 {
		fmt.Fprintln(w, "No report templates found.")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNAME\tSHEET\tPARAMETERS\tSECTIONS")
	for _, tpl := range templates {
		params := make([]string, len(tpl.Parameters))
		for i, p := range tpl.Parameters {
			params[i] = p.Name
			if p.Required {
				params[i] += "*"
			}
		}
		paramList := strings.Join(params, ",")
		if paramList == "" {
			paramList = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", tpl.ID, tpl.Name, tpl.SheetName, paramList, len(tpl.Sections))
	}
	tw.Flush()
}

// printReport renders a report row set in column order.
func printReport(w io.Writer, r apiclient.ReportResult) {
	if len(r.Rows) == 0 {
		fmt.Fprintln(w, "No rows.")
		return
	}
	columns := r.Columns
	if len(columns) == 0 {
		columns = rowKeys(r.Rows[0])
	}
	tw := newTable(w)
	fmt.Fprintln(tw, strings.Join(columns, "\t"))
	for _, row := range r.Rows {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = formatCell(row[col])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d row(s) from %s\n", r.Total, r.Sheet)
}

func printSettings(w io.Writer, s apiclient.AppSettings) {
	tw := newTable(w)
	fmt.Fprintf(tw, "App name:\t%s\n", s.AppName)
	fmt.Fprintf(tw, "Export sheet:\t%s\n", orDash(s.ExportSheetName))
	fmt.Fprintf(tw, "Import sheet:\t%s\n", orDash(s.ImportSheetName))
	fmt.Fprintf(tw, "Theme:\t%s\n", s.Theme)
	fmt.Fprintf(tw, "Primary color:\t%s\n", orDash(s.PrimaryColor))
	if s.LogoURL != nil {
		fmt.Fprintf(tw, "Logo:\t%s\n", *s.LogoURL)
	}
	fmt.Fprintf(tw, "Logo locations:\t%s\n", orDash(strings.Join(s.LogoLocations, ", ")))
	tw.Flush()
}

func printVersion(w io.Writer, cliVersion string, server *apiclient.VersionInfo) {
	fmt.Fprintf(w, "CLI version:    %s\n", cliVersion)
	if server != nil {
		fmt.Fprintf(w, "Server version: %s\n", server.Version)
		fmt.Fprintf(w, "API version:    %s\n", server.APIVersion)
	} else {
		fmt.Fprintln(w, "Server version: (unavailable)")
	}
}

// formatCell prints whole numbers without a fraction.
func formatCell(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// relativeTime formats a timestamp relative to now (e.g. "2h ago", "3d ago").
func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}

func rowKeys(row map[string]interface{}) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
