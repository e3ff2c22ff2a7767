package render

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"omicsreport/internal/annotate"
	"omicsreport/internal/table"
)

// StripOptions configures RankedStrip.
type StripOptions struct {
	Options
	// ColorField is the sample annotation that colours the points.
	ColorField string
	// Jitter is the half width of the horizontal scatter, in gene units.
	Jitter float64
	// PopulationMean is drawn dotted when ShowPopulation is set and the
	// mean is not NaN.
	PopulationMean float64
	ShowPopulation bool
	YLabel         string
}

// RankedStrip draws one jittered column of points per gene, genes ordered
// by descending mean with ties in first-appearance order. The dashed line
// is the mean of the plotted subset and the dotted line the population
// mean.
func RankedStrip(name string, subset *table.Table, samples annotate.Source, opts StripOptions) (Figure, error) {
	o := opts.Options.withDefaults(10*vg.Inch, 5*vg.Inch)
	if err := o.validate(); err != nil {
		return Figure{}, err
	}
	ranked := table.RankedGenes(subset)
	if len(ranked) == 0 || len(subset.Values()) == 0 {
		return noData(name, o)
	}
	pos := make(map[string]float64, len(ranked))
	for i, g := range ranked {
		pos[g] = float64(i)
	}
	jitter := opts.Jitter
	if jitter <= 0 {
		jitter = 0.3
	}
	// Fixed seed keeps figures byte-stable across runs.
	rng := rand.New(rand.NewPCG(1, uint64(len(ranked))))

	byLevel := make(map[string]plotter.XYs)
	var levels []string
	subset.Each(func(_ int, r table.Row) {
		if table.IsMissing(r.Value) {
			return
		}
		level := table.Unknown
		if opts.ColorField != "" {
			level = annotate.Value(samples, r.Sample, opts.ColorField)
		}
		if _, ok := byLevel[level]; !ok {
			levels = append(levels, level)
		}
		x := pos[r.Gene] + (rng.Float64()*2-1)*jitter
		byLevel[level] = append(byLevel[level], plotter.XY{X: x, Y: r.Value})
	})

	p := plot.New()
	p.Title.Text = o.Title
	p.Y.Label.Text = opts.YLabel
	pal := newPalette(levels, 0)
	for _, l := range levels {
		s, err := plotter.NewScatter(byLevel[l])
		if err != nil {
			return Figure{}, fmt.Errorf("strip %s: %w", name, err)
		}
		s.GlyphStyle = draw.GlyphStyle{Color: pal.color(l), Radius: vg.Points(2), Shape: draw.CircleGlyph{}}
		p.Add(s)
		if opts.ColorField != "" {
			p.Legend.Add(l, s)
		}
	}

	x0, x1 := -0.5, float64(len(ranked))-0.5
	sub, err := horizontal(table.Mean(subset), x0, x1)
	if err != nil {
		return Figure{}, fmt.Errorf("strip %s: subset mean: %w", name, err)
	}
	dashed(sub, 5, 3)
	p.Add(sub)
	p.Legend.Add("subset mean", sub)
	if opts.ShowPopulation && !table.IsMissing(opts.PopulationMean) {
		pop, err := horizontal(opts.PopulationMean, x0, x1)
		if err != nil {
			return Figure{}, fmt.Errorf("strip %s: population mean: %w", name, err)
		}
		dashed(pop, 1, 2)
		p.Add(pop)
		p.Legend.Add("population mean", pop)
	}
	p.Legend.Top = true
	p.NominalX(ranked...)
	rotateTicks(&p.X)
	return encode(name, p, o)
}
