// Package stats holds the small amount of statistics the figures need, on
// top of gonum/stat. Every function ignores NaN inputs.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Clean returns the non-NaN values of xs.
func Clean(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

// Mean returns the mean of the non-NaN values, NaN when there are none.
func Mean(xs []float64) float64 {
	c := Clean(xs)
	if len(c) == 0 {
		return math.NaN()
	}
	return stat.Mean(c, nil)
}

// Pairs drops every index where x or y is NaN.
func Pairs(x, y []float64) ([]float64, []float64) {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	cx := make([]float64, 0, n)
	cy := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		cx = append(cx, x[i])
		cy = append(cy, y[i])
	}
	return cx, cy
}

// Ranks returns 1-based ranks with ties given their average rank.
func Ranks(xs []float64) []float64 {
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })
	ranks := make([]float64, len(xs))
	for i := 0; i < len(idx); {
		j := i + 1
		for j < len(idx) && xs[idx[j]] == xs[idx[i]] {
			j++
		}
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[idx[k]] = avg
		}
		i = j
	}
	return ranks
}

// Spearman returns the rank correlation over the complete pairs and the
// number of pairs used. rho is NaN with fewer than two pairs or when either
// side is constant.
func Spearman(x, y []float64) (rho float64, n int) {
	cx, cy := Pairs(x, y)
	n = len(cx)
	if n < 2 {
		return math.NaN(), n
	}
	rx, ry := Ranks(cx), Ranks(cy)
	if constant(rx) || constant(ry) {
		return math.NaN(), n
	}
	return stat.Correlation(rx, ry, nil), n
}

// Pearson is the linear correlation over the complete pairs.
func Pearson(x, y []float64) float64 {
	cx, cy := Pairs(x, y)
	if len(cx) < 2 || constant(cx) || constant(cy) {
		return math.NaN()
	}
	return stat.Correlation(cx, cy, nil)
}

// Line is y = Intercept + Slope*x.
type Line struct {
	Intercept float64
	Slope     float64
}

// At evaluates the line.
func (l Line) At(x float64) float64 { return l.Intercept + l.Slope*x }

// OLS fits an ordinary least squares line over the complete pairs. ok is
// false when the fit is undefined.
func OLS(x, y []float64) (Line, bool) {
	cx, cy := Pairs(x, y)
	if len(cx) < 2 || constant(cx) {
		return Line{}, false
	}
	a, b := stat.LinearRegression(cx, cy, nil, false)
	return Line{Intercept: a, Slope: b}, true
}

// Summary is the five-number summary drawn as a box.
type Summary struct {
	N              int
	Min, Max       float64
	Q1, Median, Q3 float64
	Mean           float64
}

// Summarize computes quartiles with the empirical quantile definition.
func Summarize(xs []float64) Summary {
	c := Clean(xs)
	if len(c) == 0 {
		nan := math.NaN()
		return Summary{Min: nan, Max: nan, Q1: nan, Median: nan, Q3: nan, Mean: nan}
	}
	sort.Float64s(c)
	return Summary{
		N:      len(c),
		Min:    c[0],
		Max:    c[len(c)-1],
		Q1:     stat.Quantile(0.25, stat.Empirical, c, nil),
		Median: stat.Quantile(0.5, stat.Empirical, c, nil),
		Q3:     stat.Quantile(0.75, stat.Empirical, c, nil),
		Mean:   stat.Mean(c, nil),
	}
}

// Bandwidth is Silverman's rule of thumb. Degenerate samples fall back to
// a unit-scale bandwidth so a constant gene still draws a thin violin.
func Bandwidth(xs []float64) float64 {
	c := Clean(xs)
	n := len(c)
	if n < 2 {
		return 1
	}
	sort.Float64s(c)
	sd := stat.StdDev(c, nil)
	iqr := stat.Quantile(0.75, stat.Empirical, c, nil) - stat.Quantile(0.25, stat.Empirical, c, nil)
	spread := sd
	if iqr > 0 && iqr/1.34 < spread {
		spread = iqr / 1.34
	}
	if spread <= 0 || math.IsNaN(spread) {
		spread = math.Max(math.Abs(c[0])*0.1, 0.1)
	}
	return 0.9 * spread * math.Pow(float64(n), -0.2)
}

// Density is a kernel density estimate sampled on a regular grid.
type Density struct {
	X []float64
	Y []float64
}

// Max returns the highest density value.
func (d Density) Max() float64 {
	if len(d.Y) == 0 {
		return 0
	}
	return floats.Max(d.Y)
}

// KDE evaluates a Gaussian kernel density at points evenly spaced over the
// data range padded by three bandwidths.
func KDE(xs []float64, points int) Density {
	c := Clean(xs)
	if len(c) == 0 || points < 2 {
		return Density{}
	}
	h := Bandwidth(c)
	lo, hi := floats.Min(c)-3*h, floats.Max(c)+3*h
	d := Density{X: make([]float64, points), Y: make([]float64, points)}
	floats.Span(d.X, lo, hi)
	norm := 1 / (float64(len(c)) * h * math.Sqrt(2*math.Pi))
	for i, x := range d.X {
		var s float64
		for _, v := range c {
			u := (x - v) / h
			s += math.Exp(-0.5 * u * u)
		}
		d.Y[i] = s * norm
	}
	return d
}

func constant(xs []float64) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}
