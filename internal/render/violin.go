package render

import (
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"omicsreport/internal/stats"
	"omicsreport/internal/table"
)

// ViolinOptions configures Violin.
type ViolinOptions struct {
	Options
	// Reference draws a dashed horizontal line, e.g. at 1 for diploid
	// relative copy number.
	Reference     float64
	ShowReference bool
	YLabel        string
	// Points is the KDE sample count per gene.
	Points int
}

const violinHalfWidth = 0.4

// Violin draws a kernel density violin with a box plot overlaid for every
// gene, in descending-mean order.
func Violin(name string, t *table.Table, opts ViolinOptions) (Figure, error) {
	o := opts.Options.withDefaults(10*vg.Inch, 5*vg.Inch)
	if err := o.validate(); err != nil {
		return Figure{}, err
	}
	ranked := table.RankByMean(t)
	if len(ranked) == 0 || len(t.Values()) == 0 {
		return noData(name, o)
	}
	points := opts.Points
	if points < 2 {
		points = 64
	}
	_, byGene := t.ValuesByGene()

	p := plot.New()
	p.Title.Text = o.Title
	p.Y.Label.Text = opts.YLabel
	names := make([]string, len(ranked))
	for i, g := range ranked {
		names[i] = g.Gene
		vals := stats.Clean(byGene[g.Gene])
		if len(vals) == 0 {
			continue
		}
		x := float64(i)
		d := stats.KDE(vals, points)
		if peak := d.Max(); peak > 0 {
			outline := make(plotter.XYs, 0, 2*len(d.X))
			for k := range d.X {
				outline = append(outline, plotter.XY{X: x - d.Y[k]/peak*violinHalfWidth, Y: d.X[k]})
			}
			for k := len(d.X) - 1; k >= 0; k-- {
				outline = append(outline, plotter.XY{X: x + d.Y[k]/peak*violinHalfWidth, Y: d.X[k]})
			}
			shape, err := plotter.NewPolygon(outline)
			if err != nil {
				return Figure{}, fmt.Errorf("violin %s: %s: %w", name, g.Gene, err)
			}
			shape.Color = plotutil.Color(i)
			shape.LineStyle.Width = vg.Points(0.5)
			p.Add(shape)
		}
		box, err := plotter.NewBoxPlot(vg.Points(6), x, plotter.Values(vals))
		if err != nil {
			return Figure{}, fmt.Errorf("violin %s: %s: %w", name, g.Gene, err)
		}
		box.FillColor = missingColor
		p.Add(box)
	}
	if opts.ShowReference && !math.IsNaN(opts.Reference) {
		ref, err := horizontal(opts.Reference, -0.5, float64(len(ranked))-0.5)
		if err != nil {
			return Figure{}, fmt.Errorf("violin %s: reference: %w", name, err)
		}
		dashed(ref, 4, 2)
		p.Add(ref)
	}
	p.NominalX(names...)
	rotateTicks(&p.X)
	return encode(name, p, o)
}
