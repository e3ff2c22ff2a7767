package render

import (
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"omicsreport/internal/stats"
	"omicsreport/internal/table"
)

// GeneCorrelation summarises the joined pairs of one gene.
type GeneCorrelation struct {
	Gene   string
	Rho    float64
	N      int
	Fit    stats.Line
	HasFit bool
	Pairs  []table.Pair
}

// Label is the panel title, e.g. "TP53 rho=0.41 n=37".
func (g GeneCorrelation) Label() string {
	rho := "NA"
	if !math.IsNaN(g.Rho) {
		rho = strconv.FormatFloat(g.Rho, 'f', 2, 64)
	}
	return fmt.Sprintf("%s rho=%s n=%d", g.Gene, rho, g.N)
}

// Correlate computes Spearman rho and an OLS fit per gene over the joined
// pairs only. Genes lists the panel order; genes without pairs get n=0.
// When genes is empty the order of first appearance in pairs is used.
func Correlate(pairs []table.Pair, genes []string) []GeneCorrelation {
	order, byGene := table.PairsByGene(pairs)
	if len(genes) == 0 {
		genes = order
	}
	out := make([]GeneCorrelation, 0, len(genes))
	for _, g := range genes {
		ps := byGene[g]
		xs := make([]float64, len(ps))
		ys := make([]float64, len(ps))
		for i, p := range ps {
			xs[i], ys[i] = p.X, p.Y
		}
		rho, n := stats.Spearman(xs, ys)
		fit, ok := stats.OLS(xs, ys)
		out = append(out, GeneCorrelation{Gene: g, Rho: rho, N: n, Fit: fit, HasFit: ok, Pairs: ps})
	}
	return out
}

// CorrelationOptions configures CorrelationGrid.
type CorrelationOptions struct {
	Options
	Columns int
	XLabel  string
	YLabel  string
}

// CorrelationGrid draws one scatter panel per gene with its OLS line and
// Spearman rho in the title. The figure title is left to the caption.
func CorrelationGrid(name string, genes []GeneCorrelation, opts CorrelationOptions) (Figure, error) {
	o := opts.Options.withDefaults(10*vg.Inch, 10*vg.Inch)
	if err := o.validate(); err != nil {
		return Figure{}, err
	}
	if len(genes) == 0 {
		return noData(name, o)
	}
	cols := opts.Columns
	if cols <= 0 {
		cols = int(math.Ceil(math.Sqrt(float64(len(genes)))))
	}
	panels := make([]*plot.Plot, 0, len(genes))
	for _, g := range genes {
		p := plot.New()
		p.Title.Text = g.Label()
		p.X.Label.Text = opts.XLabel
		p.Y.Label.Text = opts.YLabel
		if len(g.Pairs) > 0 {
			xys := make(plotter.XYs, len(g.Pairs))
			for i, pr := range g.Pairs {
				xys[i] = plotter.XY{X: pr.X, Y: pr.Y}
			}
			s, err := plotter.NewScatter(xys)
			if err != nil {
				return Figure{}, fmt.Errorf("correlation %s: %s: %w", name, g.Gene, err)
			}
			s.GlyphStyle = draw.GlyphStyle{Color: missingColor, Radius: vg.Points(1.5), Shape: draw.CircleGlyph{}}
			p.Add(s)
			if g.HasFit {
				xmin, xmax, _, _ := plotter.XYRange(xys)
				fit := plotter.NewFunction(g.Fit.At)
				fit.XMin, fit.XMax = xmin, xmax
				fit.LineStyle.Width = vg.Points(1)
				p.Add(fit)
			}
		}
		panels = append(panels, p)
	}
	return encodeGrid(name, panels, cols, o)
}
