// Package report runs the section catalog: every section acquires its own
// tables, filters them to the curated genes and the selected lineage,
// reshapes and annotates them, renders a figure and publishes it.
package report

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/samber/lo"

	"omicsreport/internal/cluster"
	"omicsreport/internal/genes"
	"omicsreport/internal/samples"
	"omicsreport/internal/table"
)

// Mode selects how a section is shaped and drawn.
type Mode string

const (
	ModeHeatmap     Mode = "heatmap"
	ModeRanked      Mode = "ranked"
	ModeViolin      Mode = "violin"
	ModeCorrelation Mode = "correlation"
	ModeBalloon     Mode = "balloon"
	// ModeGenes lists the curated genes with their annotation; it draws no
	// figure.
	ModeGenes Mode = "genes"
)

// Modes lists every mode.
var Modes = []Mode{ModeHeatmap, ModeRanked, ModeViolin, ModeCorrelation, ModeBalloon, ModeGenes}

// RowOrder selects heatmap row ordering.
type RowOrder string

const (
	OrderInput   RowOrder = "input"
	OrderCluster RowOrder = "cluster"
	// OrderGenome sorts genes by chromosome and start; genes without a
	// genomic position are left out of the figure.
	OrderGenome RowOrder = "genome"
)

// Section describes one report section. Build it with NewSection.
type Section struct {
	ID      string
	Title   string
	Caption string
	Mode    Mode

	// Table is the primary table id. A balloon section without a table
	// cross-tabulates the sample metadata.
	Table string
	// Against is the y-axis table of a correlation section.
	Against string

	// Categories restricts the curated genes; empty keeps all.
	Categories []genes.Category
	// AllLineages skips the run's lineage filter.
	AllLineages bool
	// Aggregate averages repeated (gene, sample) values, e.g. several
	// methylation loci of one gene, before pivoting.
	Aggregate bool

	RowOrder    RowOrder
	ClusterCols bool
	Metric      cluster.Metric
	RowFields   []string
	ColFields   []string

	ColorField    string
	Reference     float64
	ShowReference bool

	CrossRow  string
	CrossCol  string
	RowDomain []string
	ColDomain []string

	XLabel string
	YLabel string
}

// Tables returns the table ids the section reads.
func (s Section) Tables() []string {
	return lo.Compact([]string{s.Table, s.Against})
}

// SampleFields returns the metadata fields the section joins onto its
// rows.
func (s Section) SampleFields() []string {
	var out []string
	for _, f := range []string{s.CrossRow, s.CrossCol, s.ColorField} {
		if lo.Contains(samples.Fields, f) && !lo.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

// Builder assembles a Section.
type Builder struct {
	s Section
}

// NewSection starts a section with the given id.
func NewSection(id string) *Builder {
	return &Builder{s: Section{ID: id, Reference: math.NaN(), RowOrder: OrderInput, Metric: cluster.Euclidean}}
}

func (b *Builder) Title(t string) *Builder   { b.s.Title = t; return b }
func (b *Builder) Caption(c string) *Builder { b.s.Caption = c; return b }
func (b *Builder) Mode(m Mode) *Builder      { b.s.Mode = m; return b }
func (b *Builder) Table(id string) *Builder  { b.s.Table = id; return b }

// Against sets the y-axis table of a correlation.
func (b *Builder) Against(id string) *Builder { b.s.Against = id; return b }

func (b *Builder) Categories(c ...genes.Category) *Builder {
	b.s.Categories = append(b.s.Categories, c...)
	return b
}

func (b *Builder) AllLineages() *Builder { b.s.AllLineages = true; return b }
func (b *Builder) Aggregate() *Builder   { b.s.Aggregate = true; return b }

// Rows sets the heatmap row order.
func (b *Builder) Rows(o RowOrder) *Builder { b.s.RowOrder = o; return b }

// ClusterColumns clusters heatmap columns.
func (b *Builder) ClusterColumns() *Builder { b.s.ClusterCols = true; return b }

func (b *Builder) Metric(m cluster.Metric) *Builder { b.s.Metric = m; return b }

// RowTracks adds gene annotation strips.
func (b *Builder) RowTracks(fields ...string) *Builder {
	b.s.RowFields = append(b.s.RowFields, fields...)
	return b
}

// ColTracks adds sample annotation strips.
func (b *Builder) ColTracks(fields ...string) *Builder {
	b.s.ColFields = append(b.s.ColFields, fields...)
	return b
}

// ColorBy colours ranked strip points by a sample field.
func (b *Builder) ColorBy(field string) *Builder { b.s.ColorField = field; return b }

// Reference draws a horizontal reference line on violins.
func (b *Builder) Reference(v float64) *Builder {
	b.s.Reference, b.s.ShowReference = v, true
	return b
}

// Crosstab sets the balloon row and column fields.
func (b *Builder) Crosstab(row, col string) *Builder {
	b.s.CrossRow, b.s.CrossCol = row, col
	return b
}

// Domains fixes the balloon categories.
func (b *Builder) Domains(rows, cols []string) *Builder {
	b.s.RowDomain, b.s.ColDomain = rows, cols
	return b
}

func (b *Builder) Labels(x, y string) *Builder {
	b.s.XLabel, b.s.YLabel = x, y
	return b
}

// Build validates and returns the section.
func (b *Builder) Build() (Section, error) {
	s := b.s
	s.RowFields = append([]string(nil), s.RowFields...)
	s.ColFields = append([]string(nil), s.ColFields...)
	s.Categories = append([]genes.Category(nil), s.Categories...)
	return s, s.Validate()
}

// MustBuild is Build for static catalogs.
func (b *Builder) MustBuild() Section {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks that the section carries what its mode needs.
func (s Section) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("section: id required")
	}
	if strings.ContainsAny(s.ID, "/\\ ") {
		return fmt.Errorf("section %s: id must not contain spaces or slashes", s.ID)
	}
	for _, c := range s.Categories {
		if !c.Valid() {
			return fmt.Errorf("section %s: unknown gene category %q", s.ID, c)
		}
	}
	switch s.RowOrder {
	case OrderInput, OrderCluster, OrderGenome, "":
	default:
		return fmt.Errorf("section %s: unknown row order %q", s.ID, s.RowOrder)
	}
	switch s.Metric {
	case cluster.Euclidean, cluster.Correlation, "":
	default:
		return fmt.Errorf("section %s: unknown metric %q", s.ID, s.Metric)
	}
	switch s.Mode {
	case ModeHeatmap, ModeRanked, ModeViolin:
		if s.Table == "" {
			return fmt.Errorf("section %s: %s needs a table", s.ID, s.Mode)
		}
	case ModeCorrelation:
		if s.Table == "" || s.Against == "" {
			return fmt.Errorf("section %s: correlation needs two tables", s.ID)
		}
		if s.Table == s.Against {
			return fmt.Errorf("section %s: correlation tables must differ", s.ID)
		}
	case ModeBalloon:
		if s.CrossRow == "" || s.CrossCol == "" {
			return fmt.Errorf("section %s: balloon needs row and column fields", s.ID)
		}
		if s.Table == "" {
			for _, f := range []string{s.CrossRow, s.CrossCol} {
				if !lo.Contains(samples.Fields, f) {
					return fmt.Errorf("section %s: metadata balloon field %q is not a metadata field", s.ID, f)
				}
			}
		}
	case ModeGenes:
	default:
		return fmt.Errorf("section %s: unknown mode %q", s.ID, s.Mode)
	}
	return nil
}

// Select picks sections by id in the requested order. No ids keeps all.
func Select(all []Section, ids []string) ([]Section, error) {
	if len(ids) == 0 {
		return all, nil
	}
	byID := lo.KeyBy(all, func(s Section) string { return s.ID })
	out := make([]Section, 0, len(ids))
	for _, id := range lo.Uniq(ids) {
		s, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown section %q", id)
		}
		out = append(out, s)
	}
	return out, nil
}

var _ table.GeneSet = (*genes.Set)(nil)
