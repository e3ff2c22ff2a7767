// Package samples models cell-line metadata and the lineage predicates used
// to select the samples a report section looks at.
package samples

import (
	"fmt"
	"strings"

	"omicsreport/internal/table"
)

// MetastaticStatus is normalised to Primary, Metastasis or unknown.
type MetastaticStatus string

const (
	Primary    MetastaticStatus = "Primary"
	Metastasis MetastaticStatus = "Metastasis"
	Unknown    MetastaticStatus = table.Unknown
)

// ParseMetastaticStatus maps the spellings found in metadata releases onto
// the three statuses.
func ParseMetastaticStatus(raw string) MetastaticStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "primary", "primary tumor", "primary tumour":
		return Primary
	case "metastasis", "metastatic", "metastatic tumor", "metastatic tumour":
		return Metastasis
	}
	return Unknown
}

// Annotation fields exposed by Index.Lookup.
const (
	FieldLineage          = "lineage"
	FieldMetastaticStatus = "metastatic_status"
	FieldReceptorSubtype  = "receptor_subtype"
	FieldCollectionSite   = "collection_site"
	FieldCellLine         = "cell_line"
)

// Fields lists every annotation field in display order.
var Fields = []string{FieldMetastaticStatus, FieldReceptorSubtype, FieldCollectionSite, FieldLineage, FieldCellLine}

// Record is one cell line. Empty strings mean the value was not recorded.
type Record struct {
	SampleID         string
	CellLine         string
	Lineage          string
	MetastaticStatus MetastaticStatus
	ReceptorSubtype  string
	CollectionSite   string
}

func (r Record) field(name string) string {
	switch name {
	case FieldLineage:
		return r.Lineage
	case FieldMetastaticStatus:
		if r.MetastaticStatus == Unknown {
			return ""
		}
		return string(r.MetastaticStatus)
	case FieldReceptorSubtype:
		return r.ReceptorSubtype
	case FieldCollectionSite:
		return r.CollectionSite
	case FieldCellLine:
		return r.CellLine
	}
	return ""
}

// Index is the immutable, id-keyed view of the metadata table.
type Index struct {
	order   []string
	records map[string]Record
}

// NewIndex builds an index. Records without an id are skipped and a
// repeated id is an error.
func NewIndex(records []Record) (*Index, error) {
	idx := &Index{records: make(map[string]Record, len(records))}
	for _, r := range records {
		id := strings.TrimSpace(r.SampleID)
		if id == "" {
			continue
		}
		if _, dup := idx.records[id]; dup {
			return nil, fmt.Errorf("sample %s listed twice in metadata", id)
		}
		r.SampleID = id
		if r.MetastaticStatus == "" {
			r.MetastaticStatus = Unknown
		}
		idx.records[id] = r
		idx.order = append(idx.order, id)
	}
	return idx, nil
}

// Len returns the number of samples.
func (x *Index) Len() int { return len(x.order) }

// Get returns the record for id.
func (x *Index) Get(id string) (Record, bool) {
	r, ok := x.records[id]
	return r, ok
}

// Lookup returns a metadata field; a missing sample or an unrecorded value
// reports false so annotators substitute "unknown".
func (x *Index) Lookup(key, field string) (string, bool) {
	r, ok := x.records[key]
	if !ok {
		return "", false
	}
	v := strings.TrimSpace(r.field(field))
	return v, v != ""
}

// MatchMode selects how a lineage pattern is compared.
type MatchMode string

const (
	MatchExact    MatchMode = "exact"
	MatchContains MatchMode = "contains"
)

// LineagePredicate selects samples whose lineage matches pattern,
// ignoring case. Samples missing from the metadata never match. An empty
// pattern keeps every known sample.
func (x *Index) LineagePredicate(pattern string, mode MatchMode) (table.SamplePredicate, error) {
	p := strings.ToLower(strings.TrimSpace(pattern))
	var match func(string) bool
	switch mode {
	case MatchExact, "":
		match = func(l string) bool { return l == p }
	case MatchContains:
		match = func(l string) bool { return strings.Contains(l, p) }
	default:
		return nil, fmt.Errorf("unknown lineage match mode %q", mode)
	}
	return func(id string) bool {
		r, ok := x.records[id]
		if !ok {
			return false
		}
		if p == "" {
			return true
		}
		return match(strings.ToLower(strings.TrimSpace(r.Lineage)))
	}, nil
}

// Select returns the records that pass keep, in metadata order.
func (x *Index) Select(keep table.SamplePredicate) []Record {
	var out []Record
	for _, id := range x.order {
		if keep == nil || keep(id) {
			out = append(out, x.records[id])
		}
	}
	return out
}

// AsTable projects the metadata into a long table with one row per sample
// and every field as an attribute. The gene column is empty; it lets
// metadata-only sections reuse CrossTabulate.
func (x *Index) AsTable(keep table.SamplePredicate) *table.Table {
	t := table.New("metadata", table.KindEvents, Fields...)
	for _, r := range x.Select(keep) {
		attrs := make(map[string]string, len(Fields))
		for _, f := range Fields {
			attrs[f] = r.field(f)
		}
		t.Append(table.Row{Sample: r.SampleID, Value: table.Missing, Attrs: attrs})
	}
	return t
}
