package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/formsheet/server/internal/llm"
	"github.com/formsheet/server/internal/models"
	"github.com/formsheet/server/internal/sheets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	text       string
	err        error
	lastPrompt string
}

func (f *fakeCompleter) Complete(_ context.Context, _, prompt string) (*llm.Completion, error) {
	f.lastPrompt = prompt
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Completion{Text: f.text, Model: "test-model"}, nil
}

func TestDetectIntent(t *testing.T) {
	tests := []struct {
		prompt string
		want   AIIntent
	}{
		{"Pokaži trend prodaje po mjesecima", AIIntent{ReportTypeTrend, TimeFilterMonth, models.ChartTypeLine}},
		{"Uporedi gradove za ovu godinu kao pita grafikon", AIIntent{ReportTypeComparison, TimeFilterYear, models.ChartTypePie}},
		{"Give me a summary of today's orders", AIIntent{ReportTypeSummary, TimeFilterToday, models.ChartTypeBar}},
		{"Raspodjela zahtjeva ove sedmice, doughnut", AIIntent{ReportTypeDistribution, TimeFilterWeek, models.ChartTypeDoughnut}},
		{"Šta ima novo?", AIIntent{ReportTypeSummary, TimeFilterAll, models.ChartTypeBar}},
	}
	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectIntent(tt.prompt))
		})
	}
}

func newAIReportTestSheets(rows int) *sheets.Service {
	client := sheets.NewMemoryClient()
	data := [][]interface{}{{"Grad", "Iznos", "Napomena"}}
	for i := 0; i < rows; i++ {
		city := "Sarajevo"
		if i%2 == 1 {
			city = "Mostar"
		}
		data = append(data, []interface{}{city, fmt.Sprint(i + 1), "ok"})
	}
	client.AddSheet("Prodaja", data...)
	return sheets.NewService(client)
}

func TestAIReportService_Generate(t *testing.T) {
	t.Run("builds text, table and chart sections", func(t *testing.T) {
		completer := &fakeCompleter{text: "Sarajevo vodi po prodaji."}
		svc := NewAIReportService(newAIReportTestSheets(4), completer)

		report, err := svc.Generate(context.Background(), "Uporedi prodaju po gradovima", "Prodaja")
		require.NoError(t, err)

		assert.Equal(t, "test-model", report.Model)
		assert.Equal(t, ReportTypeComparison, report.Intent.ReportType)
		require.Len(t, report.Sections, 3)

		text := report.Sections[0]
		assert.Equal(t, models.SectionTypeText, text.Type)
		assert.Equal(t, "Sarajevo vodi po prodaji.", text.Content)

		table := report.Sections[1]
		assert.Equal(t, models.SectionTypeTable, table.Type)
		assert.Equal(t, []string{"Grad", "Iznos", "Napomena"}, table.Columns)
		assert.Len(t, table.Rows, 4)

		chart := report.Sections[2]
		assert.Equal(t, models.SectionTypeChart, chart.Type)
		assert.Equal(t, "Grad", chart.LabelColumn)
		assert.Equal(t, "Iznos", chart.ValueColumn)
		assert.Equal(t, []map[string]interface{}{
			{"Grad": "Sarajevo", "Iznos": 4.0},
			{"Grad": "Mostar", "Iznos": 6.0},
		}, chart.Rows)

		assert.Contains(t, completer.lastPrompt, "Uporedi prodaju po gradovima")
		assert.Contains(t, completer.lastPrompt, `"Grad":"Mostar"`)
	})

	t.Run("sends at most twenty context rows", func(t *testing.T) {
		completer := &fakeCompleter{text: "ok"}
		svc := NewAIReportService(newAIReportTestSheets(35), completer)

		report, err := svc.Generate(context.Background(), "summary", "Prodaja")
		require.NoError(t, err)

		assert.Len(t, report.Sections[1].Rows, AIContextRows)
		assert.Equal(t, AIContextRows, strings.Count(completer.lastPrompt, `"Napomena":"ok"`))
	})

	t.Run("explains a model failure in the text section", func(t *testing.T) {
		completer := &fakeCompleter{err: fmt.Errorf("%w: timeout", llm.ErrAllModelsFailed)}
		svc := NewAIReportService(newAIReportTestSheets(2), completer)

		report, err := svc.Generate(context.Background(), "summary", "Prodaja")
		require.NoError(t, err)

		assert.Empty(t, report.Model)
		assert.Contains(t, report.Sections[0].Content, "could not be generated")
		assert.NotContains(t, report.Sections[0].Content, "timeout")
		assert.Len(t, report.Sections[1].Rows, 2)
	})

	t.Run("reports a missing API key", func(t *testing.T) {
		completer := &fakeCompleter{err: llm.ErrNotConfigured}
		svc := NewAIReportService(newAIReportTestSheets(1), completer)

		report, err := svc.Generate(context.Background(), "summary", "Prodaja")
		require.NoError(t, err)
		assert.Contains(t, report.Sections[0].Content, "not configured")
	})

	t.Run("continues without data when the sheet is unreadable", func(t *testing.T) {
		completer := &fakeCompleter{text: "no data"}
		svc := NewAIReportService(newAIReportTestSheets(1), completer)

		report, err := svc.Generate(context.Background(), "summary", "Nepostojeci")
		require.NoError(t, err)

		require.Len(t, report.Sections, 2)
		assert.Empty(t, report.Sections[1].Rows)
		assert.Contains(t, completer.lastPrompt, "No spreadsheet rows are available")
	})

	t.Run("rejects an empty prompt", func(t *testing.T) {
		svc := NewAIReportService(newAIReportTestSheets(1), &fakeCompleter{})
		_, err := svc.Generate(context.Background(), "   ", "Prodaja")
		assert.Error(t, err)
	})
}

func TestColumnIsNumeric(t *testing.T) {
	rows := []map[string]string{{"A": "1", "B": "x", "C": ""}, {"A": "2,5", "B": "3", "C": ""}}
	assert.True(t, columnIsNumeric(rows, "A"))
	assert.False(t, columnIsNumeric(rows, "B"))
	assert.False(t, columnIsNumeric(rows, "C"))
}
