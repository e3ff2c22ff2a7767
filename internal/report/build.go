package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/samber/lo"

	"omicsreport/internal/annotate"
	"omicsreport/internal/dataset"
	"omicsreport/internal/geneinfo"
	"omicsreport/internal/genes"
	"omicsreport/internal/render"
	"omicsreport/internal/table"
)

// output is what one section hands to the publisher and the index.
type output struct {
	files []File
	rows  int
	index indexSection
}

// symbolSet is a gene subset, e.g. the writers only.
type symbolSet map[string]struct{}

func (s symbolSet) Contains(symbol string) bool {
	_, ok := s[symbol]
	return ok
}

// geneSource serves curated categories and gene info fields to annotation
// tracks.
type geneSource struct {
	set *genes.Set
	ann geneinfo.Annotations
}

func (g geneSource) Lookup(key, field string) (string, bool) {
	if v, ok := g.set.Lookup(key, field); ok {
		return v, true
	}
	return g.ann.Lookup(key, field)
}

// subset returns the genes a section looks at, in curated order.
func (r *Runner) subset(s Section) ([]string, table.GeneSet) {
	if len(s.Categories) == 0 {
		return r.genes.Symbols(), r.genes
	}
	var symbols []string
	for _, c := range s.Categories {
		symbols = append(symbols, r.genes.ByCategory(c)...)
	}
	symbols = lo.Filter(r.genes.Symbols(), func(g string, _ int) bool { return lo.Contains(symbols, g) })
	return symbols, symbolSet(lo.Keyify(symbols))
}

// prepare resolves aliases and applies the gene and sample filters. The
// lineage filter is skipped for AllLineages sections.
func (r *Runner) prepare(st *runState, s Section, t *table.Table) *table.Table {
	_, set := r.subset(s)
	keep := st.keep
	if s.AllLineages {
		keep = table.AllSamples
	}
	out := table.Filter(table.ResolveAliases(t, r.genes.Aliases()), set, keep)
	if s.Aggregate {
		out = table.CollapseMean(out)
	}
	return out
}

func (r *Runner) build(ctx context.Context, st *runState, s Section) (output, error) {
	idx := indexSection{ID: s.ID, Title: s.Title, Caption: s.Caption}
	switch {
	case s.Mode == ModeGenes:
		return r.buildGenes(st, s, idx)
	case s.Mode == ModeBalloon && s.Table == "":
		keep := st.keep
		if s.AllLineages {
			keep = table.AllSamples
		}
		return r.buildBalloon(st, s, st.meta.AsTable(keep), idx)
	}

	leases := make([]*dataset.Lease, 0, 2)
	defer func() {
		for _, l := range leases {
			l.Release()
		}
	}()
	var tables []*table.Table
	for _, id := range s.Tables() {
		l, err := r.provider.Acquire(ctx, id)
		if err != nil {
			return output{}, err
		}
		leases = append(leases, l)
		tables = append(tables, l.Table())
	}

	switch s.Mode {
	case ModeHeatmap:
		return r.buildHeatmap(st, s, tables[0], idx)
	case ModeRanked:
		return r.buildRanked(st, s, tables[0], idx)
	case ModeViolin:
		return r.buildViolin(st, s, tables[0], idx)
	case ModeCorrelation:
		return r.buildCorrelation(st, s, tables[0], tables[1], idx)
	case ModeBalloon:
		return r.buildBalloon(st, s, r.prepare(st, s, tables[0]), idx)
	}
	return output{}, fmt.Errorf("unknown mode %q", s.Mode)
}

func (r *Runner) options(s Section) render.Options {
	return render.Options{Title: s.Title, Format: r.format}
}

// figure turns a rendered figure into an upload and marks it in the index.
func figure(s Section, f render.Figure, idx *indexSection) File {
	idx.Figure = f.Filename()
	idx.Empty = f.Empty
	return File{Name: f.Filename(), Kind: KindFigure, Section: s.ID, ContentType: f.Format.ContentType(), Payload: f.Payload}
}

func (r *Runner) buildHeatmap(st *runState, s Section, raw *table.Table, idx indexSection) (output, error) {
	t := r.prepare(st, s, raw)
	present := lo.Keyify(t.Genes())
	symbols, _ := r.subset(s)
	rowKeys := lo.Filter(symbols, func(g string, _ int) bool { return lo.HasKey(present, g) })
	m, err := table.Pivot(t, table.AxisGene, table.AxisSample, table.ColValue, table.PivotOptions{RowKeys: rowKeys})
	if err != nil {
		return output{}, err
	}
	opts := render.HeatmapOptions{
		Options:     r.options(s),
		ClusterRows: s.RowOrder == OrderCluster,
		ClusterCols: s.ClusterCols,
		Metric:      s.Metric,
	}
	if s.RowOrder == OrderGenome {
		// A non-nil empty order drops every row when nothing is placed.
		m = m.Reorder(append([]int{}, geneinfo.GenomeOrder(m.RowKeys(), st.ann)...), nil)
	}
	a := annotate.Annotate(m, geneSource{set: r.genes, ann: st.ann}, st.meta, s.RowFields, s.ColFields)
	f, err := render.Heatmap(s.ID, a, opts)
	if err != nil {
		return output{}, err
	}
	if _, err := st.book.AddMatrix(s.ID, m); err != nil {
		return output{}, err
	}
	return output{files: []File{figure(s, f, &idx)}, rows: t.Len(), index: idx}, nil
}

func (r *Runner) buildRanked(st *runState, s Section, raw *table.Table, idx indexSection) (output, error) {
	t := r.prepare(st, s, raw)
	_, set := r.subset(s)
	population := table.Filter(table.ResolveAliases(raw, r.genes.Aliases()), set, table.AllSamples)
	f, err := render.RankedStrip(s.ID, t, st.meta, render.StripOptions{
		Options:        r.options(s),
		ColorField:     s.ColorField,
		PopulationMean: table.Mean(population),
		ShowPopulation: true,
		YLabel:         s.YLabel,
	})
	if err != nil {
		return output{}, err
	}
	if _, err := st.book.AddRanking(s.ID, table.RankByMean(t)); err != nil {
		return output{}, err
	}
	return output{files: []File{figure(s, f, &idx)}, rows: t.Len(), index: idx}, nil
}

func (r *Runner) buildViolin(st *runState, s Section, raw *table.Table, idx indexSection) (output, error) {
	t := r.prepare(st, s, raw)
	f, err := render.Violin(s.ID, t, render.ViolinOptions{
		Options:       r.options(s),
		Reference:     s.Reference,
		ShowReference: s.ShowReference,
		YLabel:        s.YLabel,
	})
	if err != nil {
		return output{}, err
	}
	if _, err := st.book.AddRanking(s.ID, table.RankByMean(t)); err != nil {
		return output{}, err
	}
	return output{files: []File{figure(s, f, &idx)}, rows: t.Len(), index: idx}, nil
}

func (r *Runner) buildCorrelation(st *runState, s Section, rawX, rawY *table.Table, idx indexSection) (output, error) {
	x, y := r.prepare(st, s, rawX), r.prepare(st, s, rawY)
	pairs, err := table.InnerJoin(x, y)
	if err != nil {
		return output{}, err
	}
	present := lo.Keyify(append(x.Genes(), y.Genes()...))
	symbols, _ := r.subset(s)
	panels := lo.Filter(symbols, func(g string, _ int) bool { return lo.HasKey(present, g) })
	corrs := render.Correlate(pairs, panels)
	f, err := render.CorrelationGrid(s.ID, corrs, render.CorrelationOptions{
		Options: r.options(s),
		XLabel:  s.XLabel,
		YLabel:  s.YLabel,
	})
	if err != nil {
		return output{}, err
	}
	if _, err := st.book.AddCorrelations(s.ID, corrs); err != nil {
		return output{}, err
	}
	return output{files: []File{figure(s, f, &idx)}, rows: len(pairs), index: idx}, nil
}

func (r *Runner) buildBalloon(st *runState, s Section, t *table.Table, idx indexSection) (output, error) {
	if fields := s.SampleFields(); len(fields) > 0 && s.Table != "" {
		t = annotate.JoinSampleAttrs(t, st.meta, fields...)
	}
	ct := table.CrossTabulate(t, s.CrossRow, s.CrossCol, table.CrosstabOptions{
		RowDomain: s.RowDomain,
		ColDomain: s.ColDomain,
		Sort:      true,
	})
	f, err := render.Balloon(s.ID, ct, render.BalloonOptions{Options: r.options(s), ShowCounts: true})
	if err != nil {
		return output{}, err
	}
	if _, err := st.book.AddCrosstab(s.ID, ct); err != nil {
		return output{}, err
	}
	return output{files: []File{figure(s, f, &idx)}, rows: t.Len(), index: idx}, nil
}

// buildGenes lists the curated genes as CSV, a workbook sheet and an index
// table.
func (r *Runner) buildGenes(st *runState, s Section, idx indexSection) (output, error) {
	symbols, _ := r.subset(s)
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"symbol", "category", "name", "chromosome", "start", "end", "location"}); err != nil {
		return output{}, err
	}
	for _, g := range symbols {
		cat, _ := r.genes.Category(g)
		a := st.ann[g]
		row := geneRow{Symbol: g, Category: string(cat), Name: a.Name, Location: a.Location()}
		rec := []string{g, string(cat), a.Name, a.Chromosome, "", "", row.Location}
		if a.Placed() {
			rec[4], rec[5] = strconv.FormatInt(a.Start, 10), strconv.FormatInt(a.End, 10)
		}
		if err := w.Write(rec); err != nil {
			return output{}, err
		}
		idx.Genes = append(idx.Genes, row)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return output{}, err
	}
	if _, err := st.book.AddGenes(s.ID, r.genes, symbols, st.ann); err != nil {
		return output{}, err
	}
	name := s.ID + ".csv"
	idx.Files = append(idx.Files, name)
	return output{
		files: []File{{Name: name, Kind: KindTable, Section: s.ID, ContentType: "text/csv", Payload: buf.Bytes()}},
		rows:  len(symbols),
		index: idx,
	}, nil
}
