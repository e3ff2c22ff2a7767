package workbook

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"omicsreport/internal/geneinfo"
	"omicsreport/internal/genes"
	"omicsreport/internal/render"
	"omicsreport/internal/stats"
	"omicsreport/internal/table"
)

func reopen(t *testing.T, w *Workbook) *excelize.File {
	t.Helper()
	b, err := w.Bytes()
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestWorkbookSheets(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	defer w.Close()

	src := table.New("expression", table.KindValues)
	src.Append(table.Row{Gene: "ESR1", Sample: "S1", Value: 2.5})
	src.Append(table.Row{Gene: "ESR1", Sample: "S2", Value: table.Missing})
	src.Append(table.Row{Gene: "KDM5B", Sample: "S2", Value: 1})
	m, err := table.Pivot(src, table.AxisGene, table.AxisSample, table.ColValue, table.PivotOptions{})
	require.NoError(t, err)

	matrix, err := w.AddMatrix("expression", m)
	require.NoError(t, err)
	ct, err := w.AddCrosstab("subtype:status", table.Crosstab{
		RowField: "subtype", ColField: "status",
		Rows: []string{"HR+"}, Cols: []string{"Primary", "Metastasis"},
		Counts: [][]int{{2, 0}},
	})
	require.NoError(t, err)
	_, err = w.AddRanking("ranking", table.RankByMean(src))
	require.NoError(t, err)
	corr, err := w.AddCorrelations("correlation", []render.GeneCorrelation{
		{Gene: "ESR1", Rho: 0.5, N: 10, Fit: stats.Line{Intercept: 1, Slope: 2}, HasFit: true},
		{Gene: "KDM5B", Rho: table.Missing, N: 1},
	})
	require.NoError(t, err)
	set := genes.Curated()
	annotated, err := w.AddGenes("genes", set, set.ByCategory(genes.Erasing), geneinfo.Annotations{
		"FTO": {Symbol: "FTO", Name: "FTO alpha-ketoglutarate dependent dioxygenase", Chromosome: "16", Start: 53701692, End: 54158512, Strand: 1},
	})
	require.NoError(t, err)

	require.Equal(t, "subtype_status", ct)
	require.Equal(t, []string{"expression", "subtype_status", "ranking", "correlation", "genes"}, w.Sheets())

	f := reopen(t, w)
	require.Equal(t, w.Sheets(), f.GetSheetList())

	rows, err := f.GetRows(matrix)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"gene", "S1", "S2"}, {"ESR1", "2.5"}, {"KDM5B", "", "1"}}, rows)

	rows, err = f.GetRows(ct)
	require.NoError(t, err)
	require.Equal(t, []string{"HR+", "2", "0"}, rows[1])

	rows, err = f.GetRows(corr)
	require.NoError(t, err)
	require.Equal(t, []string{"ESR1", "0.5", "10", "1", "2"}, rows[1])
	require.Equal(t, []string{"KDM5B", "", "1"}, rows[2])

	rows, err = f.GetRows(annotated)
	require.NoError(t, err)
	require.Len(t, rows, len(set.ByCategory(genes.Erasing))+1)
	require.Equal(t, "FTO", rows[1][0])
	require.Equal(t, string(genes.Erasing), rows[1][1])
	require.Equal(t, "FTO alpha-ketoglutarate dependent dioxygenase", rows[1][2])
	require.Equal(t, "16", rows[1][3])
	for _, r := range rows[2:] {
		require.Len(t, r, 2, "unannotated %s keeps blank columns", r[0])
	}
}

func TestSheetNameIsValidAndUnique(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	defer w.Close()

	long := strings.Repeat("x", 40)
	first, err := w.AddRanking(long, nil)
	require.NoError(t, err)
	second, err := w.AddRanking(long, nil)
	require.NoError(t, err)
	require.Len(t, first, 31)
	require.Len(t, second, 31)
	require.NotEqual(t, first, second)
	require.Equal(t, "a_b", w.SheetName("a/b"))
}

func TestEmptyWorkbook(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	defer w.Close()
	_, err = w.Bytes()
	require.Error(t, err)
}
