// Package render draws report figures with gonum/plot. Renderers are pure:
// they take reshaped, annotated data and return encoded bytes, and an empty
// input yields a labelled "no data" plot rather than an error.
package render

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"omicsreport/internal/table"
)

// Format is an output encoding.
type Format string

const (
	PNG Format = "png"
	SVG Format = "svg"
)

// Valid reports whether f is a supported format.
func (f Format) Valid() bool { return f == PNG || f == SVG }

// ContentType returns the MIME type of the encoding.
func (f Format) ContentType() string {
	if f == SVG {
		return "image/svg+xml"
	}
	return "image/png"
}

// Figure is an encoded plot.
type Figure struct {
	Name    string
	Format  Format
	Payload []byte
	Width   vg.Length
	Height  vg.Length
	// Empty is set when the figure was drawn from no data.
	Empty bool
}

// Filename returns the artifact file name of the figure.
func (f Figure) Filename() string { return f.Name + "." + string(f.Format) }

// Options are shared by every renderer.
type Options struct {
	Title  string
	Format Format
	Width  vg.Length
	Height vg.Length
}

func (o Options) withDefaults(w, h vg.Length) Options {
	if o.Format == "" {
		o.Format = PNG
	}
	if o.Width <= 0 {
		o.Width = w
	}
	if o.Height <= 0 {
		o.Height = h
	}
	return o
}

func (o Options) validate() error {
	if !o.Format.Valid() {
		return fmt.Errorf("render: unsupported format %q", o.Format)
	}
	return nil
}

var (
	missingColor = color.Gray{Y: 0xbb}
	unknownColor = color.Gray{Y: 0xdd}
)

func encode(name string, p *plot.Plot, o Options) (Figure, error) {
	wt, err := p.WriterTo(o.Width, o.Height, string(o.Format))
	if err != nil {
		return Figure{}, fmt.Errorf("render %s: %w", name, err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return Figure{}, fmt.Errorf("render %s: %w", name, err)
	}
	return Figure{Name: name, Format: o.Format, Payload: buf.Bytes(), Width: o.Width, Height: o.Height}, nil
}

// encodeGrid lays panels out row-major in cols columns on one canvas.
func encodeGrid(name string, panels []*plot.Plot, cols int, o Options) (Figure, error) {
	if cols < 1 {
		cols = 1
	}
	rows := (len(panels) + cols - 1) / cols
	grid := make([][]*plot.Plot, rows)
	for i := range grid {
		grid[i] = make([]*plot.Plot, cols)
		for j := range grid[i] {
			if k := i*cols + j; k < len(panels) {
				grid[i][j] = panels[k]
			}
		}
	}
	c, err := draw.NewFormattedCanvas(o.Width, o.Height, string(o.Format))
	if err != nil {
		return Figure{}, fmt.Errorf("render %s: %w", name, err)
	}
	tiles := draw.Tiles{
		Rows: rows, Cols: cols,
		PadX: vg.Millimeter, PadY: vg.Millimeter,
		PadTop: vg.Points(2), PadBottom: vg.Points(2), PadLeft: vg.Points(2), PadRight: vg.Points(2),
	}
	canvases := plot.Align(grid, tiles, draw.New(c))
	for i := range grid {
		for j, p := range grid[i] {
			if p != nil {
				p.Draw(canvases[i][j])
			}
		}
	}
	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return Figure{}, fmt.Errorf("render %s: %w", name, err)
	}
	return Figure{Name: name, Format: o.Format, Payload: buf.Bytes(), Width: o.Width, Height: o.Height}, nil
}

func noData(name string, o Options) (Figure, error) {
	p := plot.New()
	p.Title.Text = o.Title
	p.X.Label.Text = "no data"
	p.HideAxes()
	f, err := encode(name, p, o)
	f.Empty = true
	return f, err
}

// palette assigns a stable colour to each level of a categorical variable.
// Unknown is always light grey; other levels are coloured in sorted order so
// the same level set maps to the same colours across figures.
type palette map[string]color.Color

func newPalette(levels []string, offset int) palette {
	sorted := append([]string(nil), levels...)
	sort.Strings(sorted)
	pal := make(palette, len(sorted))
	i := offset
	for _, l := range sorted {
		if l == table.Unknown {
			pal[l] = unknownColor
			continue
		}
		pal[l] = plotutil.Color(i)
		i++
	}
	return pal
}

func (p palette) color(level string) color.Color {
	if c, ok := p[level]; ok {
		return c
	}
	return unknownColor
}

func rect(x0, x1, y0, y1 float64, fill color.Color) (*plotter.Polygon, error) {
	poly, err := plotter.NewPolygon(plotter.XYs{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}})
	if err != nil {
		return nil, err
	}
	poly.Color = fill
	poly.LineStyle.Width = 0
	return poly, nil
}

func swatch(fill color.Color) *plotter.Polygon {
	poly, _ := rect(0, 1, 0, 1, fill)
	return poly
}

func dashed(l *plotter.Line, on, off float64) {
	l.LineStyle.Dashes = []vg.Length{vg.Points(on), vg.Points(off)}
}

func horizontal(y, x0, x1 float64) (*plotter.Line, error) {
	return plotter.NewLine(plotter.XYs{{X: x0, Y: y}, {X: x1, Y: y}})
}

func rotateTicks(a *plot.Axis) {
	a.Tick.Label.Rotation = math.Pi / 2
	a.Tick.Label.XAlign = draw.XRight
	a.Tick.Label.YAlign = draw.YCenter
}

func finite(vals []float64) (lo, hi float64, ok bool) {
	for _, v := range vals {
		if table.IsMissing(v) {
			continue
		}
		if !ok {
			lo, hi, ok = v, v, true
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi, ok
}
