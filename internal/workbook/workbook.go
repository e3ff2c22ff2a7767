// Package workbook collects the tables behind a report's figures into one
// xlsx file so readers can check the numbers a plot was drawn from.
package workbook

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"

	"omicsreport/internal/geneinfo"
	"omicsreport/internal/genes"
	"omicsreport/internal/render"
	"omicsreport/internal/table"
)

// ContentType of the encoded workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const maxSheetName = 31

// Workbook is an in-memory xlsx file. It is not safe for concurrent use.
type Workbook struct {
	f      *excelize.File
	sheets []string
	bold   int
}

// New creates an empty workbook.
func New() (*Workbook, error) {
	f := excelize.NewFile()
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("workbook: header style: %w", err)
	}
	return &Workbook{f: f, bold: bold}, nil
}

// Sheets returns the sheet names in insertion order.
func (w *Workbook) Sheets() []string { return append([]string(nil), w.sheets...) }

// SheetName makes name a valid, unique sheet name.
func (w *Workbook) SheetName(name string) string {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, name)
	if clean == "" {
		clean = "sheet"
	}
	if len(clean) > maxSheetName {
		clean = clean[:maxSheetName]
	}
	base, n := clean, 2
	for lo.Contains(w.sheets, clean) {
		suffix := fmt.Sprintf("~%d", n)
		cut := min(len(base), maxSheetName-len(suffix))
		clean = base[:cut] + suffix
		n++
	}
	return clean
}

func (w *Workbook) addSheet(name string, header []any) (string, error) {
	sheet := w.SheetName(name)
	if len(w.sheets) == 0 {
		if err := w.f.SetSheetName("Sheet1", sheet); err != nil {
			return "", fmt.Errorf("workbook: sheet %s: %w", sheet, err)
		}
	} else if _, err := w.f.NewSheet(sheet); err != nil {
		return "", fmt.Errorf("workbook: sheet %s: %w", sheet, err)
	}
	w.sheets = append(w.sheets, sheet)
	if err := w.f.SetSheetRow(sheet, "A1", &header); err != nil {
		return "", fmt.Errorf("workbook: sheet %s header: %w", sheet, err)
	}
	if err := w.f.SetRowStyle(sheet, 1, 1, w.bold); err != nil {
		return "", fmt.Errorf("workbook: sheet %s header: %w", sheet, err)
	}
	if err := w.f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return "", fmt.Errorf("workbook: sheet %s panes: %w", sheet, err)
	}
	return sheet, nil
}

func (w *Workbook) row(sheet string, i int, vals []any) error {
	cell, err := excelize.CoordinatesToCellName(1, i)
	if err != nil {
		return err
	}
	if err := w.f.SetSheetRow(sheet, cell, &vals); err != nil {
		return fmt.Errorf("workbook: sheet %s row %d: %w", sheet, i, err)
	}
	return nil
}

func cellValue(v float64, ok bool) any {
	if !ok {
		return nil
	}
	return v
}

// AddMatrix writes a wide matrix: one row per row key, missing cells blank.
func (w *Workbook) AddMatrix(name string, m *table.WideMatrix) (string, error) {
	header := []any{m.RowAxis.String()}
	for _, k := range m.ColKeys() {
		header = append(header, k)
	}
	sheet, err := w.addSheet(name, header)
	if err != nil {
		return "", err
	}
	nr, nc := m.Dims()
	keys := m.RowKeys()
	for r := 0; r < nr; r++ {
		vals := make([]any, 0, nc+1)
		vals = append(vals, keys[r])
		for c := 0; c < nc; c++ {
			vals = append(vals, cellValue(m.At(r, c)))
		}
		if err := w.row(sheet, r+2, vals); err != nil {
			return "", err
		}
	}
	return sheet, nil
}

// AddCrosstab writes a contingency table including zero cells.
func (w *Workbook) AddCrosstab(name string, ct table.Crosstab) (string, error) {
	header := []any{ct.RowField + " \\ " + ct.ColField}
	for _, c := range ct.Cols {
		header = append(header, c)
	}
	sheet, err := w.addSheet(name, header)
	if err != nil {
		return "", err
	}
	for i, r := range ct.Rows {
		vals := []any{r}
		for _, n := range ct.Counts[i] {
			vals = append(vals, n)
		}
		if err := w.row(sheet, i+2, vals); err != nil {
			return "", err
		}
	}
	return sheet, nil
}

// AddRanking writes genes with their mean and observation count in rank
// order.
func (w *Workbook) AddRanking(name string, ranked []table.GeneSummary) (string, error) {
	sheet, err := w.addSheet(name, []any{"rank", "gene", "mean", "n"})
	if err != nil {
		return "", err
	}
	for i, g := range ranked {
		if err := w.row(sheet, i+2, []any{i + 1, g.Gene, cellValue(g.Mean, !table.IsMissing(g.Mean)), g.N}); err != nil {
			return "", err
		}
	}
	return sheet, nil
}

// AddCorrelations writes per-gene Spearman rho, pair count and OLS fit.
func (w *Workbook) AddCorrelations(name string, rows []render.GeneCorrelation) (string, error) {
	sheet, err := w.addSheet(name, []any{"gene", "rho", "n", "intercept", "slope"})
	if err != nil {
		return "", err
	}
	for i, g := range rows {
		vals := []any{g.Gene, cellValue(g.Rho, !table.IsMissing(g.Rho)), g.N, nil, nil}
		if g.HasFit {
			vals[3], vals[4] = g.Fit.Intercept, g.Fit.Slope
		}
		if err := w.row(sheet, i+2, vals); err != nil {
			return "", err
		}
	}
	return sheet, nil
}

// AddGenes writes symbols with their category in set and whatever
// annotation the gene info service returned. Unannotated genes stay listed
// with blank annotation columns.
func (w *Workbook) AddGenes(name string, set *genes.Set, symbols []string, ann geneinfo.Annotations) (string, error) {
	sheet, err := w.addSheet(name, []any{"symbol", "category", "name", "chromosome", "start", "end", "strand"})
	if err != nil {
		return "", err
	}
	for i, sym := range symbols {
		cat, _ := set.Category(sym)
		vals := []any{sym, string(cat), nil, nil, nil, nil, nil}
		if a, ok := ann[sym]; ok {
			vals[2] = a.Name
			if a.Placed() {
				vals[3], vals[4], vals[5], vals[6] = a.Chromosome, a.Start, a.End, a.Strand
			}
		}
		if err := w.row(sheet, i+2, vals); err != nil {
			return "", err
		}
	}
	return sheet, nil
}

// Bytes encodes the workbook. An empty workbook is an error.
func (w *Workbook) Bytes() ([]byte, error) {
	if len(w.sheets) == 0 {
		return nil, errors.New("workbook: no sheets")
	}
	buf, err := w.f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("workbook: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Close releases the underlying file.
func (w *Workbook) Close() error { return w.f.Close() }
