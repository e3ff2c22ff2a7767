package render

import (
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"omicsreport/internal/table"
)

// BalloonOptions configures Balloon.
type BalloonOptions struct {
	Options
	MinRadius vg.Length
	MaxRadius vg.Length
	// ShowCounts prints the count next to each non-empty balloon.
	ShowCounts bool
}

// Balloon draws a contingency table as a grid of circles whose area follows
// the count. Zero cells keep the minimum radius in grey so the m x n shape
// of the table is always visible.
func Balloon(name string, ct table.Crosstab, opts BalloonOptions) (Figure, error) {
	o := opts.Options.withDefaults(7*vg.Inch, 6*vg.Inch)
	if err := o.validate(); err != nil {
		return Figure{}, err
	}
	if ct.Cells() == 0 {
		return noData(name, o)
	}
	minR, maxR := opts.MinRadius, opts.MaxRadius
	if minR <= 0 {
		minR = vg.Points(1.5)
	}
	if maxR <= minR {
		maxR = minR + vg.Points(14)
	}
	peak := float64(ct.Max())
	nr := len(ct.Rows)

	xys := make(plotter.XYs, 0, ct.Cells())
	counts := make([]int, 0, ct.Cells())
	labels := make([]string, 0, ct.Cells())
	for i := range ct.Rows {
		for j := range ct.Cols {
			n := ct.Counts[i][j]
			xys = append(xys, plotter.XY{X: float64(j), Y: float64(nr - 1 - i)})
			counts = append(counts, n)
			if n > 0 {
				labels = append(labels, strconv.Itoa(n))
			} else {
				labels = append(labels, "")
			}
		}
	}
	s, err := plotter.NewScatter(xys)
	if err != nil {
		return Figure{}, fmt.Errorf("balloon %s: %w", name, err)
	}
	fill := plotutil.Color(0)
	s.GlyphStyleFunc = func(k int) draw.GlyphStyle {
		n := counts[k]
		if n == 0 || peak == 0 {
			return draw.GlyphStyle{Color: missingColor, Radius: minR, Shape: draw.CircleGlyph{}}
		}
		r := minR + (maxR-minR)*vg.Length(math.Sqrt(float64(n)/peak))
		return draw.GlyphStyle{Color: fill, Radius: r, Shape: draw.CircleGlyph{}}
	}

	p := plot.New()
	p.Title.Text = o.Title
	p.Add(s)
	if opts.ShowCounts {
		lbl, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: labels})
		if err != nil {
			return Figure{}, fmt.Errorf("balloon %s: %w", name, err)
		}
		lbl.Offset = vg.Point{X: maxR / 2, Y: maxR / 2}
		p.Add(lbl)
	}
	rows := make([]string, nr)
	for i, r := range ct.Rows {
		rows[nr-1-i] = r
	}
	p.NominalX(ct.Cols...)
	p.NominalY(rows...)
	p.X.Label.Text = ct.ColField
	p.Y.Label.Text = ct.RowField
	// Room for the outermost balloons.
	p.X.Min, p.X.Max = -0.6, float64(len(ct.Cols))-0.4
	p.Y.Min, p.Y.Max = -0.6, float64(nr)-0.4
	rotateTicks(&p.X)
	return encode(name, p, o)
}
