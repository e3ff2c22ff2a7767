package dataset

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"strconv"
	"strings"

	"omicsreport/internal/samples"
	"omicsreport/internal/table"
)

// LocusAttr records the source label of a wide column when a gene has more
// than one.
const LocusAttr = "locus"

var naTokens = map[string]struct{}{"": {}, "na": {}, "nan": {}, "null": {}, "n/a": {}, "none": {}}

// ParseValue parses a numeric cell; NA tokens parse as missing.
func ParseValue(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if _, ok := naTokens[strings.ToLower(s)]; ok {
		return table.Missing, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not numeric", raw)
	}
	if math.IsInf(v, 0) {
		return table.Missing, nil
	}
	return v, nil
}

// newReader wraps r in gunzip when key ends in .gz and picks the delimiter
// from the remaining extension.
func newReader(key string, r io.Reader) (*csv.Reader, io.Closer, error) {
	var closer io.Closer = io.NopCloser(nil)
	name := strings.ToLower(key)
	if strings.HasSuffix(name, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gunzip %s: %w", key, err)
		}
		r, closer = gz, gz
		name = strings.TrimSuffix(name, ".gz")
	}
	cr := csv.NewReader(bufio.NewReader(r))
	switch path.Ext(name) {
	case ".tsv", ".txt", ".tab":
		cr.Comma = '\t'
	default:
		cr.Comma = ','
	}
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	return cr, closer, nil
}

func header(cr *csv.Reader, key string) ([]string, error) {
	rec, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: empty file", key)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", key, err)
	}
	out := make([]string, len(rec))
	for i, h := range rec {
		out[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return out, nil
}

func columnIndex(hdr []string) map[string]int {
	idx := make(map[string]int, len(hdr))
	for i, h := range hdr {
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	return idx
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// parseLong reads a long-format table.
func parseLong(spec TableSpec, cr *csv.Reader) (*table.Table, error) {
	hdr, err := header(cr, spec.Key)
	if err != nil {
		return nil, err
	}
	idx := columnIndex(hdr)
	gi, ok := idx[spec.geneColumn()]
	if !ok {
		return nil, fmt.Errorf("%s: missing gene column %q", spec.Key, spec.geneColumn())
	}
	si, ok := idx[spec.sampleColumn()]
	if !ok {
		return nil, fmt.Errorf("%s: missing sample column %q", spec.Key, spec.sampleColumn())
	}
	vi := -1
	if spec.Value != "" {
		if vi, ok = idx[spec.Value]; !ok {
			return nil, fmt.Errorf("%s: missing value column %q", spec.Key, spec.Value)
		}
	}
	type attrCol struct {
		name string
		i    int
	}
	var attrs []attrCol
	if len(spec.Attrs) > 0 {
		for _, a := range spec.Attrs {
			i, ok := idx[a]
			if !ok {
				return nil, fmt.Errorf("%s: missing attribute column %q", spec.Key, a)
			}
			attrs = append(attrs, attrCol{a, i})
		}
	} else {
		for i, h := range hdr {
			if i != gi && i != si && i != vi && h != "" {
				attrs = append(attrs, attrCol{h, i})
			}
		}
	}
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = a.name
	}

	t := table.New(spec.ID, spec.Kind(), names...)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", spec.Key, line, err)
		}
		row := table.Row{Gene: spec.Label.Symbol(cell(rec, gi)), Sample: cell(rec, si), Value: table.Missing}
		if vi >= 0 {
			if row.Value, err = ParseValue(cell(rec, vi)); err != nil {
				return nil, fmt.Errorf("%s line %d: %w", spec.Key, line, err)
			}
		}
		if len(attrs) > 0 {
			row.Attrs = make(map[string]string, len(attrs))
			for _, a := range attrs {
				row.Attrs[a.name] = cell(rec, a.i)
			}
		}
		t.Append(row)
	}
	return t, nil
}

// parseWide reads a sample x gene (or gene x sample) matrix. Rows carry
// the source label as LocusAttr whenever one gene maps to several labels.
func parseWide(spec TableSpec, cr *csv.Reader) (*table.Table, error) {
	hdr, err := header(cr, spec.Key)
	if err != nil {
		return nil, err
	}
	if len(hdr) < 2 {
		return nil, fmt.Errorf("%s: wide table needs at least two columns", spec.Key)
	}
	cols := hdr[1:]
	var symbols []string
	withLocus := spec.GenesInRows
	if !spec.GenesInRows {
		symbols = make([]string, len(cols))
		seen := make(map[string]struct{}, len(cols))
		for i, l := range cols {
			symbols[i] = spec.Label.Symbol(l)
			if _, dup := seen[symbols[i]]; dup {
				withLocus = true
			}
			seen[symbols[i]] = struct{}{}
		}
	}
	var t *table.Table
	if withLocus {
		t = table.New(spec.ID, table.KindValues, LocusAttr)
	} else {
		t = table.New(spec.ID, table.KindValues)
	}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", spec.Key, line, err)
		}
		label := cell(rec, 0)
		for i, col := range cols {
			v, err := ParseValue(cell(rec, i+1))
			if err != nil {
				return nil, fmt.Errorf("%s line %d column %s: %w", spec.Key, line, col, err)
			}
			row := table.Row{Value: v}
			locus := col
			if spec.GenesInRows {
				row.Gene, row.Sample, locus = spec.Label.Symbol(label), col, label
			} else {
				row.Gene, row.Sample = symbols[i], label
			}
			if withLocus {
				row.Attrs = map[string]string{LocusAttr: locus}
			}
			t.Append(row)
		}
	}
}

// parseMetadata reads the cell-line annotation table into an index.
func parseMetadata(spec TableSpec, cr *csv.Reader) (*samples.Index, error) {
	hdr, err := header(cr, spec.Key)
	if err != nil {
		return nil, err
	}
	cols := spec.Metadata.withDefaults()
	idx := columnIndex(hdr)
	id, ok := idx[cols.SampleID]
	if !ok {
		return nil, fmt.Errorf("%s: missing sample id column %q", spec.Key, cols.SampleID)
	}
	opt := func(name string) int {
		if i, ok := idx[name]; ok {
			return i
		}
		return -1
	}
	lin, met, sub, site, line := opt(cols.Lineage), opt(cols.MetastaticStatus), opt(cols.ReceptorSubtype), opt(cols.CollectionSite), opt(cols.CellLine)

	var records []samples.Record
	for n := 2; ; n++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", spec.Key, n, err)
		}
		records = append(records, samples.Record{
			SampleID:         cell(rec, id),
			CellLine:         cell(rec, line),
			Lineage:          cell(rec, lin),
			MetastaticStatus: samples.ParseMetastaticStatus(cell(rec, met)),
			ReceptorSubtype:  naToEmpty(cell(rec, sub)),
			CollectionSite:   naToEmpty(cell(rec, site)),
		})
	}
	return samples.NewIndex(records)
}

func naToEmpty(s string) string {
	if _, ok := naTokens[strings.ToLower(s)]; ok {
		return ""
	}
	return s
}
