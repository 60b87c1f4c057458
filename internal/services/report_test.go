package services

import (
	"context"
	"testing"

	"github.com/formsheet/server/internal/models"
	"github.com/formsheet/server/internal/sheets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/datatypes"
)

func TestGroupRows(t *testing.T) {
	headers := []string{"A", "B", "C"}

	t.Run("sums per distinct group pair", func(t *testing.T) {
		rows := []map[string]string{
			{"A": "x", "B": "y", "C": "2"},
			{"A": "x", "B": "y", "C": "3"},
		}
		columns, result := GroupRows(headers, rows, []string{"A", "B"}, "C")

		assert.Equal(t, []string{"A", "B", "C"}, columns)
		assert.Equal(t, []map[string]interface{}{{"A": "x", "B": "y", "C": 5.0}}, result)
	})

	t.Run("keeps first-appearance order and counts non-numeric cells as zero", func(t *testing.T) {
		rows := []map[string]string{
			{"A": "sarajevo", "C": "10"},
			{"A": "mostar", "C": "n/a"},
			{"A": "sarajevo", "C": "2,5"},
			{"A": "mostar", "C": "4"},
			{"A": "tuzla", "C": ""},
		}
		_, result := GroupRows(headers, rows, []string{"A"}, "C")

		require.Len(t, result, 3)
		assert.Equal(t, "sarajevo", result[0]["A"])
		assert.Equal(t, 12.5, result[0]["C"])
		assert.Equal(t, "mostar", result[1]["A"])
		assert.Equal(t, 4.0, result[1]["C"])
		assert.Equal(t, "tuzla", result[2]["A"])
		assert.Equal(t, 0.0, result[2]["C"])
	})

	t.Run("NaN and infinity cells count as zero", func(t *testing.T) {
		rows := []map[string]string{
			{"A": "x", "C": "NaN"},
			{"A": "x", "C": "3"},
			{"A": "y", "C": "Inf"},
			{"A": "y", "C": "-infinity"},
		}
		_, result := GroupRows(headers, rows, []string{"A"}, "C")

		require.Len(t, result, 2)
		assert.Equal(t, 3.0, result[0]["C"])
		assert.Equal(t, 0.0, result[1]["C"])
	})

	t.Run("counts rows when no sum column is given", func(t *testing.T) {
		rows := []map[string]string{{"A": "x"}, {"A": "y"}, {"A": "x"}}
		columns, result := GroupRows(headers, rows, []string{"A"}, "")

		assert.Equal(t, []string{"A", CountColumn}, columns)
		assert.Equal(t, []map[string]interface{}{
			{"A": "x", CountColumn: 2.0},
			{"A": "y", CountColumn: 1.0},
		}, result)
	})

	t.Run("sum without grouping yields one total row", func(t *testing.T) {
		rows := []map[string]string{{"C": "1"}, {"C": "2"}, {"C": "3"}}
		columns, result := GroupRows(headers, rows, nil, "C")

		assert.Equal(t, []string{"C"}, columns)
		assert.Equal(t, []map[string]interface{}{{"C": 6.0}}, result)
	})

	t.Run("no grouping returns rows unchanged", func(t *testing.T) {
		rows := []map[string]string{{"A": "x", "B": "y", "C": "1"}}
		columns, result := GroupRows(headers, rows, []string{" ", ""}, "")

		assert.Equal(t, headers, columns)
		assert.Equal(t, []map[string]interface{}{{"A": "x", "B": "y", "C": "1"}}, result)
	})
}

func TestFilterRows(t *testing.T) {
	rows := []map[string]string{
		{"Grad": "Sarajevo", "Status": "Završeno"},
		{"Grad": "Mostar", "Status": "U toku"},
		{"Grad": "Istočno Sarajevo", "Status": "U toku"},
	}

	tests := []struct {
		name    string
		filters map[string]string
		want    int
	}{
		{"no filters", nil, 3},
		{"case-insensitive substring", map[string]string{"Grad": "sarajevo"}, 2},
		{"every filter must match", map[string]string{"Grad": "SARAJ", "Status": "toku"}, 1},
		{"no match", map[string]string{"Grad": "Zenica"}, 0},
		{"unknown column matches nothing", map[string]string{"Regija": "x"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, FilterRows(rows, tt.filters), tt.want)
		})
	}
}

func TestQueryFromTemplate(t *testing.T) {
	template := &models.ReportTemplate{
		SheetName: "Prodaja",
		Parameters: datatypes.JSONSlice[models.ReportParameter]{
			{Name: "grad", Column: "Grad"},
			{Name: "status", Column: "Status"},
		},
	}

	query := QueryFromTemplate(template, map[string]string{"grad": "Mostar", "status": "  ", "other": "x"})
	assert.Equal(t, "Prodaja", query.Sheet)
	assert.Equal(t, map[string]string{"Grad": "Mostar"}, query.Filters)
}

func TestSplitColumns(t *testing.T) {
	assert.Nil(t, SplitColumns(""))
	assert.Equal(t, []string{"A", "B"}, SplitColumns(" A , ,B"))
}

func TestReportService_Run(t *testing.T) {
	client := sheets.NewMemoryClient()
	client.AddSheet("Prodaja",
		[]interface{}{"Grad", "Artikal", "Iznos"},
		[]interface{}{"Sarajevo", "Kafa", "2"},
		[]interface{}{"Sarajevo", "Kafa", "3"},
		[]interface{}{"Mostar", "Čaj", "7"},
		[]interface{}{"Sarajevo", "Čaj", "1"},
	)
	svc := NewReportService(sheets.NewService(client))

	result, err := svc.Run(context.Background(), ReportQuery{
		Sheet:   "Prodaja",
		Filters: map[string]string{"Grad": "sara"},
		GroupBy: []string{"Grad", "Artikal"},
		SumBy:   "Iznos",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Grad", "Artikal", "Iznos"}, result.Columns)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, []map[string]interface{}{
		{"Grad": "Sarajevo", "Artikal": "Kafa", "Iznos": 5.0},
		{"Grad": "Sarajevo", "Artikal": "Čaj", "Iznos": 1.0},
	}, result.Rows)

	_, err = svc.Run(context.Background(), ReportQuery{Sheet: "Nepostojeci"})
	assert.ErrorIs(t, err, sheets.ErrSheetNotFound)
}

func TestExportXLSX(t *testing.T) {
	result := &ReportResult{
		Columns: []string{"Grad", "Iznos"},
		Rows: []map[string]interface{}{
			{"Grad": "Sarajevo", "Iznos": 5.0},
			{"Grad": "Mostar", "Iznos": 7.0},
		},
	}

	buf, err := ExportXLSX(result, "Prodaja: mjesečno")
	require.NoError(t, err)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Prodaja_ mjesečno"}, f.GetSheetList())
	rows, err := f.GetRows("Prodaja_ mjesečno")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Grad", "Iznos"},
		{"Sarajevo", "5"},
		{"Mostar", "7"},
	}, rows)
}
