package dataset

import (
	"fmt"
	"strings"

	"omicsreport/internal/table"
)

// Layout is the on-disk shape of a table file.
type Layout string

const (
	// LayoutLong has one observation per line with gene, sample and value
	// columns; any other column becomes an attribute.
	LayoutLong Layout = "long"
	// LayoutWide has one line per sample and one column per gene label.
	// With GenesInRows set the file is transposed: one line per gene label
	// and one column per sample.
	LayoutWide Layout = "wide"
	// LayoutMetadata is the cell-line annotation table.
	LayoutMetadata Layout = "metadata"
)

// LabelRule extracts a gene symbol from a column or row label.
type LabelRule string

const (
	LabelPlain  LabelRule = ""       // label is the symbol
	LabelParen  LabelRule = "paren"  // "METTL3 (56339)" -> METTL3
	LabelPrefix LabelRule = "prefix" // "METTL3_1_123" -> METTL3
)

// Symbol applies the rule to a label.
func (r LabelRule) Symbol(label string) string {
	label = strings.TrimSpace(label)
	switch r {
	case LabelParen:
		if i := strings.Index(label, " ("); i >= 0 {
			return strings.TrimSpace(label[:i])
		}
		if i := strings.IndexByte(label, '('); i > 0 {
			return strings.TrimSpace(label[:i])
		}
	case LabelPrefix:
		if i := strings.IndexByte(label, '_'); i >= 0 {
			return label[:i]
		}
	}
	return label
}

// MetadataColumns names the metadata columns. Defaults follow the DepMap
// Model.csv release.
type MetadataColumns struct {
	SampleID         string `yaml:"sample_id"`
	Lineage          string `yaml:"lineage"`
	MetastaticStatus string `yaml:"metastatic_status"`
	ReceptorSubtype  string `yaml:"receptor_subtype"`
	CollectionSite   string `yaml:"collection_site"`
	CellLine         string `yaml:"cell_line"`
}

func (c MetadataColumns) withDefaults() MetadataColumns {
	def := func(v, d string) string {
		if v == "" {
			return d
		}
		return v
	}
	return MetadataColumns{
		SampleID:         def(c.SampleID, "ModelID"),
		Lineage:          def(c.Lineage, "OncotreeLineage"),
		MetastaticStatus: def(c.MetastaticStatus, "PrimaryOrMetastasis"),
		ReceptorSubtype:  def(c.ReceptorSubtype, "OncotreeSubtype"),
		CollectionSite:   def(c.CollectionSite, "SampleCollectionSite"),
		CellLine:         def(c.CellLine, "CellLineName"),
	}
}

// TableSpec maps a table id to a blob key and describes how to parse it.
type TableSpec struct {
	ID          string          `yaml:"id"`
	Key         string          `yaml:"key"`
	Layout      Layout          `yaml:"layout"`
	Events      bool            `yaml:"events"` // rows may repeat a (gene, sample) pair
	Label       LabelRule       `yaml:"label"`
	GenesInRows bool            `yaml:"genes_in_rows"`
	Gene        string          `yaml:"gene_column"`
	Sample      string          `yaml:"sample_column"`
	Value       string          `yaml:"value_column"` // long layout; empty for event tables without a value
	Attrs       []string        `yaml:"attrs"`        // long layout; empty keeps every other column
	Metadata    MetadataColumns `yaml:"metadata_columns"`
}

// Kind returns the table kind implied by the spec.
func (s TableSpec) Kind() table.Kind {
	if s.Events {
		return table.KindEvents
	}
	return table.KindValues
}

// Validate checks the fields a layout needs.
func (s TableSpec) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("table spec: id required")
	}
	if strings.TrimSpace(s.Key) == "" {
		return fmt.Errorf("table %s: key required", s.ID)
	}
	switch s.Layout {
	case LayoutLong, LayoutWide, LayoutMetadata:
	default:
		return fmt.Errorf("table %s: unknown layout %q", s.ID, s.Layout)
	}
	switch s.Label {
	case LabelPlain, LabelParen, LabelPrefix:
	default:
		return fmt.Errorf("table %s: unknown label rule %q", s.ID, s.Label)
	}
	if s.Layout == LayoutWide && s.Events {
		return fmt.Errorf("table %s: wide tables cannot be event tables", s.ID)
	}
	return nil
}

func (s TableSpec) geneColumn() string {
	if s.Gene == "" {
		return "gene"
	}
	return s.Gene
}

func (s TableSpec) sampleColumn() string {
	if s.Sample == "" {
		return "sample"
	}
	return s.Sample
}
