package render

import (
	"fmt"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"omicsreport/internal/annotate"
	"omicsreport/internal/cluster"
	"omicsreport/internal/table"
)

// HeatmapOptions controls axis ordering of a heatmap.
type HeatmapOptions struct {
	Options
	ClusterRows bool
	ClusterCols bool
	Metric      cluster.Metric
	// RowOrder, when set, fixes the row order and wins over ClusterRows.
	// Rows not listed are dropped, which is how genome-ordered views leave
	// out unplaced genes.
	RowOrder []int
	// MaxColLabels hides sample labels on wide matrices.
	MaxColLabels int
}

// stripGap separates the side strips from the matrix, in cell units.
const stripGap = 0.25

type grid struct {
	m      *table.WideMatrix
	nr, nc int
}

func (g grid) Dims() (int, int) { return g.nc, g.nr }

// Z flips rows so the first matrix row is drawn at the top.
func (g grid) Z(c, r int) float64 {
	v, _ := g.m.At(g.nr-1-r, c)
	return v
}

func (g grid) X(c int) float64 { return float64(c) }
func (g grid) Y(r int) float64 { return float64(r) }

// Heatmap draws an annotated matrix with categorical side strips: column
// tracks above the matrix and row tracks to its left, each listed in the
// legend. Missing cells are painted grey.
func Heatmap(name string, a annotate.Annotated, opts HeatmapOptions) (Figure, error) {
	o := opts.Options.withDefaults(8*vg.Inch, 6*vg.Inch)
	if err := o.validate(); err != nil {
		return Figure{}, err
	}
	if a.Matrix == nil {
		return noData(name, o)
	}
	nr, nc := a.Matrix.Dims()
	if nr == 0 || nc == 0 {
		return noData(name, o)
	}

	rowOrder := opts.RowOrder
	if rowOrder == nil && opts.ClusterRows && nr > 1 {
		ord, err := cluster.Rows(a.Matrix, opts.Metric)
		if err != nil {
			return Figure{}, fmt.Errorf("heatmap %s: cluster rows: %w", name, err)
		}
		rowOrder = ord
	}
	var colOrder []int
	if opts.ClusterCols && nc > 1 {
		ord, err := cluster.Cols(a.Matrix, opts.Metric)
		if err != nil {
			return Figure{}, fmt.Errorf("heatmap %s: cluster columns: %w", name, err)
		}
		colOrder = ord
	}
	m := a.Matrix.Reorder(rowOrder, colOrder)
	rowTracks := annotate.Reorder(a.Rows, rowOrder)
	colTracks := annotate.Reorder(a.Cols, colOrder)
	nr, nc = m.Dims()
	if nr == 0 || nc == 0 {
		return noData(name, o)
	}

	var cells []float64
	for r := 0; r < nr; r++ {
		cells = append(cells, m.RowValues(r)...)
	}
	lo, hi, ok := finite(cells)
	if !ok {
		lo, hi = 0, 1
	}
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	// The colour map works on [0,1]; the heat map scales values onto it.
	cm := moreland.SmoothBlueRed()
	cm.SetMin(0)
	cm.SetMax(1)
	if lo < 0 && hi > 0 {
		cm.SetConvergePoint(-lo / (hi - lo))
	}
	pal := cm.Palette(255)

	p := plot.New()
	p.Title.Text = o.Title
	hm := plotter.NewHeatMap(grid{m: m, nr: nr, nc: nc}, pal)
	hm.Min, hm.Max = lo, hi
	hm.NaN = missingColor
	p.Add(hm)

	var yTicks, xTicks []plot.Tick
	rows := m.RowKeys()
	for r, k := range rows {
		yTicks = append(yTicks, plot.Tick{Value: float64(nr - 1 - r), Label: k})
	}
	maxLabels := opts.MaxColLabels
	if maxLabels <= 0 {
		maxLabels = 60
	}
	if nc <= maxLabels {
		for c, k := range m.ColKeys() {
			xTicks = append(xTicks, plot.Tick{Value: float64(c), Label: k})
		}
	}

	offset := 0
	for k, tr := range colTracks {
		y0 := float64(nr) - 0.5 + stripGap + float64(k)
		levels := newPalette(tr.Levels(), offset)
		offset += len(levels)
		for c, v := range tr.Values {
			cell, err := rect(float64(c)-0.5, float64(c)+0.5, y0, y0+1-stripGap/2, levels.color(v))
			if err != nil {
				return Figure{}, fmt.Errorf("heatmap %s: %w", name, err)
			}
			p.Add(cell)
		}
		yTicks = append(yTicks, plot.Tick{Value: y0 + 0.5, Label: tr.Field})
		addLegend(p, tr, levels)
	}
	for k, tr := range rowTracks {
		x1 := -0.5 - stripGap - float64(k)
		levels := newPalette(tr.Levels(), offset)
		offset += len(levels)
		for r, v := range tr.Values {
			y := float64(nr - 1 - r)
			cell, err := rect(x1-1+stripGap/2, x1, y-0.5, y+0.5, levels.color(v))
			if err != nil {
				return Figure{}, fmt.Errorf("heatmap %s: %w", name, err)
			}
			p.Add(cell)
		}
		xTicks = append(xTicks, plot.Tick{Value: x1 - 0.5, Label: tr.Field})
		addLegend(p, tr, levels)
	}
	p.Legend.Add("missing", swatch(missingColor))
	p.Legend.Add("min "+strconv.FormatFloat(lo, 'g', 3, 64), swatch(pal.Colors()[0]))
	p.Legend.Add("max "+strconv.FormatFloat(hi, 'g', 3, 64), swatch(pal.Colors()[len(pal.Colors())-1]))
	p.Legend.Top = true

	p.Y.Tick.Marker = plot.ConstantTicks(yTicks)
	p.X.Tick.Marker = plot.ConstantTicks(xTicks)
	rotateTicks(&p.X)
	p.X.Label.Text = m.ColAxis.String()
	p.Y.Label.Text = m.RowAxis.String()
	return encode(name, p, o)
}

func addLegend(p *plot.Plot, tr annotate.Track, levels palette) {
	for _, l := range tr.Levels() {
		p.Legend.Add(tr.Field+": "+l, swatch(levels.color(l)))
	}
}
