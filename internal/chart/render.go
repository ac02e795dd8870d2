// Package chart renders elevation profiles into raster images and drives
// the interactive hover layer on top of them. The full chart (axes, grade
// fills, line, extrema markers) is drawn once per profile; pointer movement
// only composites a thin overlay onto a copy of the cached raster.
package chart

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/cyclemaps/cyclemaps/internal/profile"
)

// Fixed chart layout. Padding leaves room for the elevation labels on the
// left and the distance labels underneath.
const (
	DefaultWidth  = 900
	DefaultHeight = 260

	padTop    = 16.0
	padRight  = 18.0
	padBottom = 36.0
	padLeft   = 54.0

	elevationTicks = 5
	maxKmTicks     = 5
)

var (
	colorBackground = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	colorGridline   = color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}
	colorAxis       = color.RGBA{R: 0x9e, G: 0x9e, B: 0x9e, A: 0xff}
	colorLabel      = color.RGBA{R: 0x61, G: 0x61, B: 0x61, A: 0xff}
	colorMarker     = color.RGBA{R: 0x21, G: 0x21, B: 0x21, A: 0xff}
)

// Mapping is the plot geometry a raster was produced with. The hover layer
// uses it to translate pointer positions to samples and back without
// re-running any chart drawing.
type Mapping struct {
	Width, Height  float64
	PlotW, PlotH   float64
	MinElevation   float64
	ElevationRange float64
	TotalKm        float64

	// Xs and Ys hold each sample's plotted point, index-aligned with the
	// profile the raster was rendered from.
	Xs []float64
	Ys []float64
}

// XForIndex returns sample i's plotted x position.
func (m *Mapping) XForIndex(i int) float64 { return m.Xs[i] }

// YForIndex returns sample i's plotted y position.
func (m *Mapping) YForIndex(i int) float64 { return m.Ys[i] }

// DistanceForX inverts the plot mapping, turning a pointer x position into a
// cumulative distance. The second return is false when the position falls
// outside [0, TotalKm].
func (m *Mapping) DistanceForX(x float64) (float64, bool) {
	if m.PlotW <= 0 {
		return 0, false
	}
	km := (x - padLeft) / m.PlotW * m.TotalKm
	if km < 0 || km > m.TotalKm {
		return 0, false
	}
	return km, true
}

// Contains reports whether a pointer position lies on the canvas.
func (m *Mapping) Contains(x, y float64) bool {
	return x >= 0 && x <= m.Width && y >= 0 && y <= m.Height
}

// Raster is a rendered chart: the pixel buffer plus the mapping that
// produced it. Treated as immutable once returned; the hover layer
// composites onto copies only.
type Raster struct {
	Img     *image.RGBA
	Mapping Mapping
}

// Options configures a Renderer. Zero values fall back to the defaults.
type Options struct {
	Width  int
	Height int
}

// Renderer draws profiles into rasters. Rendering is deterministic: the same
// profile and canvas size always produce the same mapping and pixels.
type Renderer struct {
	mu     sync.Mutex
	width  int
	height int

	labelFace   font.Face
	tooltipFace font.Face
}

// NewRenderer parses the embedded font and prepares label faces.
func NewRenderer(opts Options) (*Renderer, error) {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}

	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse chart font: %w", err)
	}

	return &Renderer{
		width:       opts.Width,
		height:      opts.Height,
		labelFace:   truetype.NewFace(f, &truetype.Options{Size: 11}),
		tooltipFace: truetype.NewFace(f, &truetype.Options{Size: 12}),
	}, nil
}

// Render draws the full chart for a profile: background, gridlines and tick
// labels, one fill+stroke band per segment colored by its grade, and local
// extremum markers. Returns the raster together with its point mapping.
func (r *Renderer) Render(p *profile.Profile) (*Raster, error) {
	return r.render(p, true)
}

// RenderWithoutExtrema draws the same chart minus the extremum markers.
// Deployments turn the markers off through the enable_chart_extrema flag.
func (r *Renderer) RenderWithoutExtrema(p *profile.Profile) (*Raster, error) {
	return r.render(p, false)
}

func (r *Renderer) render(p *profile.Profile, extrema bool) (*Raster, error) {
	if p == nil || p.Len() < 2 {
		return nil, profile.ErrInsufficientGeometry
	}

	// Glyph caches inside the font faces are not safe for concurrent use.
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.mapping(p)
	dc := gg.NewContext(r.width, r.height)

	dc.SetColor(colorBackground)
	dc.Clear()

	r.drawGrid(dc, &m)
	r.drawBands(dc, p, &m)
	if extrema {
		r.drawExtrema(dc, p, &m)
	}

	img, ok := dc.Image().(*image.RGBA)
	if !ok {
		return nil, fmt.Errorf("unexpected raster type %T", dc.Image())
	}
	return &Raster{Img: img, Mapping: m}, nil
}

// mapping derives the plot geometry for a profile. An all-flat profile gets
// a forced 1 m elevation span so the y mapping never divides by zero.
func (r *Renderer) mapping(p *profile.Profile) Mapping {
	minElev, maxElev := p.ElevationBounds()
	rng := maxElev - minElev
	if rng == 0 {
		rng = 1
	}

	m := Mapping{
		Width:          float64(r.width),
		Height:         float64(r.height),
		PlotW:          float64(r.width) - padLeft - padRight,
		PlotH:          float64(r.height) - padTop - padBottom,
		MinElevation:   minElev,
		ElevationRange: rng,
		TotalKm:        p.TotalKm(),
		Xs:             make([]float64, p.Len()),
		Ys:             make([]float64, p.Len()),
	}

	total := m.TotalKm
	for i := 0; i < p.Len(); i++ {
		frac := 0.0
		if total > 0 {
			frac = p.Distances[i] / total
		}
		m.Xs[i] = padLeft + frac*m.PlotW
		m.Ys[i] = padTop + m.PlotH - (p.Elevations[i]-minElev)/rng*m.PlotH
	}
	return m
}

func (r *Renderer) drawGrid(dc *gg.Context, m *Mapping) {
	dc.SetFontFace(r.labelFace)

	// Elevation gridlines: 5 evenly spaced ticks spanning [min, max].
	for k := 0; k < elevationTicks; k++ {
		frac := float64(k) / float64(elevationTicks-1)
		elev := m.MinElevation + frac*m.ElevationRange
		y := padTop + m.PlotH - frac*m.PlotH

		dc.SetColor(colorGridline)
		dc.SetLineWidth(1)
		dc.DrawLine(padLeft, y, padLeft+m.PlotW, y)
		dc.Stroke()

		dc.SetColor(colorLabel)
		dc.DrawStringAnchored(fmt.Sprintf("%.0f m", elev), padLeft-6, y, 1, 0.35)
	}

	// Distance ticks: at most 5 labels, at least 1, one per whole km on
	// short routes.
	ticks := int(math.Floor(m.TotalKm))
	if ticks < 1 {
		ticks = 1
	}
	if ticks > maxKmTicks {
		ticks = maxKmTicks
	}
	for k := 0; k <= ticks; k++ {
		frac := float64(k) / float64(ticks)
		x := padLeft + frac*m.PlotW

		dc.SetColor(colorGridline)
		dc.SetLineWidth(1)
		dc.DrawLine(x, padTop, x, padTop+m.PlotH)
		dc.Stroke()

		dc.SetColor(colorLabel)
		dc.DrawStringAnchored(fmt.Sprintf("%.1f km", frac*m.TotalKm), x, padTop+m.PlotH+14, 0.5, 0.5)
	}

	dc.SetColor(colorAxis)
	dc.SetLineWidth(1)
	dc.DrawLine(padLeft, padTop, padLeft, padTop+m.PlotH)
	dc.DrawLine(padLeft, padTop+m.PlotH, padLeft+m.PlotW, padTop+m.PlotH)
	dc.Stroke()
}

// drawBands fills and strokes one band per segment, colored by that
// segment's grade.
func (r *Renderer) drawBands(dc *gg.Context, p *profile.Profile, m *Mapping) {
	bottom := padTop + m.PlotH

	for i := 0; i < p.Len()-1; i++ {
		c := profile.GradeColor(p.Grade(i))

		dc.MoveTo(m.Xs[i], m.Ys[i])
		dc.LineTo(m.Xs[i+1], m.Ys[i+1])
		dc.LineTo(m.Xs[i+1], bottom)
		dc.LineTo(m.Xs[i], bottom)
		dc.ClosePath()
		dc.SetRGBA255(int(c.R), int(c.G), int(c.B), 0xb4)
		dc.Fill()

		dc.SetColor(c)
		dc.SetLineWidth(2)
		dc.DrawLine(m.Xs[i], m.Ys[i], m.Xs[i+1], m.Ys[i+1])
		dc.Stroke()
	}
}

func (r *Renderer) drawExtrema(dc *gg.Context, p *profile.Profile, m *Mapping) {
	dc.SetFontFace(r.labelFace)

	for _, ex := range profile.FindExtrema(p) {
		x, y := m.Xs[ex.Index], m.Ys[ex.Index]

		dc.SetColor(colorMarker)
		dc.DrawCircle(x, y, 3)
		dc.Fill()

		label := fmt.Sprintf("%.0f m", p.Elevations[ex.Index])
		lw, _ := dc.MeasureString(label)
		lx := clamp(x, padLeft+lw/2, padLeft+m.PlotW-lw/2)

		if ex.Kind == profile.Peak {
			dc.DrawStringAnchored(label, lx, y-7, 0.5, 0)
		} else {
			dc.DrawStringAnchored(label, lx, y+7, 0.5, 1)
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
