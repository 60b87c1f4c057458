package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/formsheet/server/internal/formula"
	"github.com/formsheet/server/internal/llm"
	"github.com/formsheet/server/internal/models"
	"github.com/formsheet/server/internal/sheets"
	"github.com/formsheet/server/pkg/logger"
)

// AIContextRows caps how many sheet rows are sent to the model.
const AIContextRows = 20

const aiSystemPrompt = "You are a business data analyst. Write a concise report based only on the " +
	"rows provided. Reply in the language the question was asked in. Use short paragraphs and " +
	"bullet points, and do not invent numbers that are not in the data."

const (
	ReportTypeSummary      = "summary"
	ReportTypeTrend        = "trend"
	ReportTypeComparison   = "comparison"
	ReportTypeDistribution = "distribution"

	TimeFilterAll   = "all"
	TimeFilterToday = "today"
	TimeFilterWeek  = "week"
	TimeFilterMonth = "month"
	TimeFilterYear  = "year"
)

// AIIntent is what the keyword heuristics read out of a free-text prompt.
type AIIntent struct {
	ReportType string           `json:"reportType"`
	TimeFilter string           `json:"timeFilter"`
	ChartType  models.ChartType `json:"chartType"`
}

type keywordRule struct {
	value    string
	keywords []string
}

// Rules are checked in order; the first rule with a matching keyword wins.
// Keywords cover Bosnian (with and without diacritics) and English.
var (
	reportTypeRules = []keywordRule{
		{ReportTypeTrend, []string{"trend", "kretanj", "rast", "over time", "kroz vrijeme"}},
		{ReportTypeComparison, []string{"uporedi", "usporedi", "poređenj", "poredjenj", "compar", " vs ", "versus"}},
		{ReportTypeDistribution, []string{"raspodjel", "raspodel", "distribu", "udio", "share", "procen"}},
		{ReportTypeSummary, []string{"sažetak", "sazetak", "pregled", "summary", "overview", "ukupno", "total"}},
	}
	timeFilterRules = []keywordRule{
		{TimeFilterToday, []string{"danas", "today"}},
		{TimeFilterWeek, []string{"sedmic", "sedmič", "tjedan", "week"}},
		{TimeFilterMonth, []string{"mjesec", "mesec", "month"}},
		{TimeFilterYear, []string{"godin", "year", "annual"}},
	}
	chartTypeRules = []keywordRule{
		{string(models.ChartTypeDoughnut), []string{"doughnut", "donut", "krof"}},
		{string(models.ChartTypePie), []string{"pie", "pita", "udio", "share"}},
		{string(models.ChartTypeArea), []string{"area", "površin", "povrsin"}},
		{string(models.ChartTypeLine), []string{"line", "linij", "trend", "kretanj"}},
		{string(models.ChartTypeBar), []string{"bar", "stubi"}},
	}
)

// DetectIntent derives report type, time filter and chart type from prompt keywords.
func DetectIntent(prompt string) AIIntent {
	text := " " + strings.ToLower(prompt) + " "
	return AIIntent{
		ReportType: matchRule(text, reportTypeRules, ReportTypeSummary),
		TimeFilter: matchRule(text, timeFilterRules, TimeFilterAll),
		ChartType:  models.ChartType(matchRule(text, chartTypeRules, string(models.ChartTypeBar))),
	}
}

func matchRule(text string, rules []keywordRule, fallback string) string {
	for _, rule := range rules {
		for _, keyword := range rule.keywords {
			if strings.Contains(text, keyword) {
				return rule.value
			}
		}
	}
	return fallback
}

// AISection is a report section together with the data it renders.
type AISection struct {
	models.ReportSection
	Rows []map[string]interface{} `json:"rows,omitempty"`
}

type AIReport struct {
	Title       string      `json:"title"`
	Prompt      string      `json:"prompt"`
	SheetName   string      `json:"sheetName"`
	Intent      AIIntent    `json:"intent"`
	Model       string      `json:"model,omitempty"`
	Sections    []AISection `json:"sections"`
	GeneratedAt time.Time   `json:"generatedAt"`
}

type AIReportService struct {
	Sheets *sheets.Service
	LLM    llm.Completer
}

func NewAIReportService(sheetsService *sheets.Service, completer llm.Completer) *AIReportService {
	return &AIReportService{Sheets: sheetsService, LLM: completer}
}

// Generate builds an AI report for prompt over the first rows of sheet. A model failure never
// fails the report: the text section then explains that no commentary could be produced.
func (s *AIReportService) Generate(ctx context.Context, prompt, sheet string) (*AIReport, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("prompt is required")
	}

	intent := DetectIntent(prompt)
	table := &sheets.Table{Headers: []string{}, Rows: []map[string]string{}}
	if sheet != "" {
		loaded, err := s.Sheets.GetAllSheetData(ctx, sheet)
		if err != nil {
			logger.Warn("ai_report_sheet_unavailable", map[string]interface{}{
				"sheet": sheet,
				"error": err.Error(),
			})
		} else {
			table = loaded
		}
	}
	if len(table.Rows) > AIContextRows {
		table.Rows = table.Rows[:AIContextRows]
	}

	report := &AIReport{
		Title:       reportTitle(prompt),
		Prompt:      prompt,
		SheetName:   sheet,
		Intent:      intent,
		GeneratedAt: time.Now().UTC(),
	}

	text, model := s.summarize(ctx, prompt, intent, table)
	report.Model = model

	report.Sections = append(report.Sections, AISection{
		ReportSection: models.ReportSection{
			ID:       "ai-text",
			Type:     models.SectionTypeText,
			Title:    "Analysis",
			Content:  text,
			Position: models.Position{X: 0, Y: 0, W: 12, H: 4},
		},
	})

	_, tableRows := GroupRows(table.Headers, table.Rows, nil, "")
	report.Sections = append(report.Sections, AISection{
		ReportSection: models.ReportSection{
			ID:        "ai-table",
			Type:      models.SectionTypeTable,
			Title:     "Data",
			SheetName: sheet,
			Columns:   table.Headers,
			Position:  models.Position{X: 0, Y: 4, W: 12, H: 6},
		},
		Rows: tableRows,
	})

	if chart, ok := buildChartSection(table, intent.ChartType, sheet); ok {
		report.Sections = append(report.Sections, chart)
	}
	return report, nil
}

func (s *AIReportService) summarize(ctx context.Context, prompt string, intent AIIntent, table *sheets.Table) (text, model string) {
	if s.LLM == nil {
		return "AI reporting is not configured on this server. The data is shown without commentary.", ""
	}

	completion, err := s.LLM.Complete(ctx, aiSystemPrompt, BuildAIPrompt(prompt, intent, table))
	if err != nil {
		logger.Error("ai_report_generation_failed", err, map[string]interface{}{
			"report_type": intent.ReportType,
		})
		if errors.Is(err, llm.ErrNotConfigured) {
			return "AI reporting is not configured on this server. The data is shown without commentary.", ""
		}
		return "The AI analysis could not be generated because every configured model failed to respond. " +
			"The data is shown without commentary; please try again later.", ""
	}
	return completion.Text, completion.Model
}

// BuildAIPrompt assembles the user message sent to the model.
func BuildAIPrompt(prompt string, intent AIIntent, table *sheets.Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request: %s\n", prompt)
	fmt.Fprintf(&b, "Report type: %s\n", intent.ReportType)
	fmt.Fprintf(&b, "Time period: %s\n", intent.TimeFilter)

	if len(table.Rows) == 0 {
		b.WriteString("\nNo spreadsheet rows are available. Say so and describe what data would be needed.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Columns: %s\n", strings.Join(table.Headers, ", "))
	fmt.Fprintf(&b, "\nFirst %d rows, one JSON object per line:\n", len(table.Rows))
	for _, row := range table.Rows {
		encoded, err := json.Marshal(row)
		if err != nil {
			continue
		}
		b.Write(encoded)
		b.WriteByte('\n')
	}
	return b.String()
}

// buildChartSection plots the first text column against the sum of the first numeric column,
// or against row counts when no column is numeric.
func buildChartSection(table *sheets.Table, chartType models.ChartType, sheet string) (AISection, bool) {
	if len(table.Rows) == 0 {
		return AISection{}, false
	}

	var labelColumn, valueColumn string
	for _, header := range table.Headers {
		numeric := columnIsNumeric(table.Rows, header)
		if numeric && valueColumn == "" {
			valueColumn = header
		}
		if !numeric && labelColumn == "" {
			labelColumn = header
		}
	}
	if labelColumn == "" {
		return AISection{}, false
	}

	sumBy := valueColumn
	_, rows := GroupRows(table.Headers, table.Rows, []string{labelColumn}, sumBy)
	if valueColumn == "" {
		valueColumn = CountColumn
	}

	return AISection{
		ReportSection: models.ReportSection{
			ID:          "ai-chart",
			Type:        models.SectionTypeChart,
			Title:       fmt.Sprintf("%s by %s", valueColumn, labelColumn),
			SheetName:   sheet,
			ChartType:   chartType,
			LabelColumn: labelColumn,
			ValueColumn: valueColumn,
			GroupBy:     []string{labelColumn},
			SumBy:       sumBy,
			Position:    models.Position{X: 0, Y: 10, W: 12, H: 6},
		},
		Rows: rows,
	}, true
}

func columnIsNumeric(rows []map[string]string, column string) bool {
	seen := false
	for _, row := range rows {
		value := strings.TrimSpace(row[column])
		if value == "" {
			continue
		}
		if _, ok := formula.ParseNumber(value); !ok {
			return false
		}
		seen = true
	}
	return seen
}

func reportTitle(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= 80 {
		return prompt
	}
	return strings.TrimSpace(string(runes[:77])) + "..."
}
