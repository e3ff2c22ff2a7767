// Package annotate attaches categorical metadata to the axes of a pivoted
// matrix and to the rows of a long table.
package annotate

import (
	"strings"

	"github.com/samber/lo"

	"omicsreport/internal/table"
)

// Source resolves a field for a gene symbol or sample id. A miss reports
// false; the annotator then records table.Unknown.
type Source interface {
	Lookup(key, field string) (string, bool)
}

// Track is one annotation field along an axis, aligned with the axis keys.
type Track struct {
	Field  string
	Values []string
}

// Levels returns the distinct values of the track in first-appearance
// order.
func (t Track) Levels() []string {
	seen := make(map[string]struct{}, len(t.Values))
	var out []string
	for _, v := range t.Values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Annotated is a matrix with side tables for both axes. Every track has
// exactly one value per axis key.
type Annotated struct {
	Matrix *table.WideMatrix
	Rows   []Track
	Cols   []Track
}

// Annotate resolves rowFields against rowMeta for every row key and
// colFields against colMeta for every column key. Keys absent from a source
// get table.Unknown; no key is ever dropped. A nil source yields all
// unknown tracks.
func Annotate(m *table.WideMatrix, rowMeta, colMeta Source, rowFields, colFields []string) Annotated {
	return Annotated{
		Matrix: m,
		Rows:   Tracks(m.RowKeys(), rowMeta, rowFields),
		Cols:   Tracks(m.ColKeys(), colMeta, colFields),
	}
}

// Tracks builds one track per field over keys.
func Tracks(keys []string, src Source, fields []string) []Track {
	out := make([]Track, 0, len(fields))
	for _, f := range fields {
		tr := Track{Field: f, Values: make([]string, len(keys))}
		for i, k := range keys {
			tr.Values[i] = Value(src, k, f)
		}
		out = append(out, tr)
	}
	return out
}

// Value looks up a single field, substituting table.Unknown.
func Value(src Source, key, field string) string {
	if src == nil {
		return table.Unknown
	}
	v, ok := src.Lookup(key, field)
	if !ok || strings.TrimSpace(v) == "" {
		return table.Unknown
	}
	return v
}

// Reorder permutes tracks to follow a reordered axis.
func Reorder(tracks []Track, order []int) []Track {
	if order == nil {
		return tracks
	}
	out := make([]Track, len(tracks))
	for i, tr := range tracks {
		vals := make([]string, len(order))
		for j, k := range order {
			vals[j] = tr.Values[k]
		}
		out[i] = Track{Field: tr.Field, Values: vals}
	}
	return out
}

// JoinSampleAttrs returns a copy of t in which every row carries the
// requested sample fields as attributes. An existing attribute of the same
// name is overwritten.
func JoinSampleAttrs(t *table.Table, src Source, fields ...string) *table.Table {
	out := table.New(t.Name, t.Kind, lo.Uniq(append(t.Attrs(), fields...))...)
	t.Each(func(_ int, r table.Row) {
		attrs := make(map[string]string, len(r.Attrs)+len(fields))
		for k, v := range r.Attrs {
			attrs[k] = v
		}
		for _, f := range fields {
			attrs[f] = Value(src, r.Sample, f)
		}
		r.Attrs = attrs
		out.Append(r)
	})
	return out
}

// ForTable annotates the samples of a long table in first-appearance order,
// for plots that colour points by a sample attribute.
func ForTable(t *table.Table, src Source, fields ...string) map[string]map[string]string {
	out := make(map[string]map[string]string)
	for _, s := range t.Samples() {
		row := make(map[string]string, len(fields))
		for _, f := range fields {
			row[f] = Value(src, s, f)
		}
		out[s] = row
	}
	return out
}
