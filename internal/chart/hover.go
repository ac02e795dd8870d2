package chart

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"sync"

	"github.com/fogleman/gg"
	"github.com/paulmach/orb"

	"github.com/cyclemaps/cyclemaps/internal/profile"
)

// HoverInfo describes the sample under the pointer. Coordinate lets the map
// layer show a marker synchronized with the chart crosshair.
type HoverInfo struct {
	Index        int
	DistanceKm   float64
	ElevationM   float64
	GradePercent float64 // signed, toward the next sample
	Coordinate   orb.Point
}

// HoverController owns the cached base raster for the current profile and
// produces overlay composites on pointer movement. The base is rendered once
// per pipeline run; each Move restores a copy of it and draws only the
// crosshair, marker dot, and tooltip, so interaction cost is independent of
// chart complexity.
type HoverController struct {
	mu       sync.RWMutex
	renderer *Renderer
	base     *Raster
	prof     *profile.Profile
}

// NewHoverController returns a controller compositing with the renderer's
// fonts. It holds no chart until SetChart.
func NewHoverController(r *Renderer) *HoverController {
	return &HoverController{renderer: r}
}

// SetChart swaps in a freshly rendered raster and the profile it was built
// from. The previous cache is discarded whole.
func (h *HoverController) SetChart(base *Raster, p *profile.Profile) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.base = base
	h.prof = p
}

// Clear drops the cached chart, for pipeline runs that produced nothing.
func (h *HoverController) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.base = nil
	h.prof = nil
}

// Base returns the cached raster, or nil when no chart is held.
func (h *HoverController) Base() *Raster {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.base
}

// Move handles a pointer position over the chart. It returns the composited
// overlay image and the hover info, or ok=false when no chart is cached or
// the position maps outside [0, total distance]. The cached base raster is
// never written to; the composite is drawn onto a copy.
func (h *HoverController) Move(x, y float64) (*image.RGBA, HoverInfo, bool) {
	h.mu.RLock()
	base, prof := h.base, h.prof
	h.mu.RUnlock()

	if base == nil || prof == nil {
		return nil, HoverInfo{}, false
	}
	if !base.Mapping.Contains(x, y) {
		return nil, HoverInfo{}, false
	}
	targetKm, ok := base.Mapping.DistanceForX(x)
	if !ok {
		return nil, HoverInfo{}, false
	}

	idx := prof.NearestIndex(targetKm)
	info := HoverInfo{
		Index:      idx,
		DistanceKm: prof.Distances[idx],
		ElevationM: prof.Elevations[idx],
		Coordinate: prof.Coords[idx],
	}
	// The final sample has no next segment; show the grade arriving at it.
	if idx < prof.Len()-1 {
		info.GradePercent = prof.SignedGrade(idx)
	} else {
		info.GradePercent = prof.SignedGrade(idx - 1)
	}

	return h.composite(base, info), info, true
}

// Leave handles the pointer exiting the chart: the overlay disappears and
// the untouched base raster is current again. Returns nil when no chart is
// cached.
func (h *HoverController) Leave() *image.RGBA {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.base == nil {
		return nil
	}
	return h.base.Img
}

// composite restores a copy of the base raster and draws the crosshair,
// marker dot, and tooltip for the hovered sample.
func (h *HoverController) composite(base *Raster, info HoverInfo) *image.RGBA {
	m := &base.Mapping

	restored := image.NewRGBA(base.Img.Bounds())
	draw.Draw(restored, restored.Bounds(), base.Img, base.Img.Bounds().Min, draw.Src)

	// Face glyph caches are shared with the renderer.
	h.renderer.mu.Lock()
	defer h.renderer.mu.Unlock()

	dc := gg.NewContextForRGBA(restored)
	hx, hy := m.XForIndex(info.Index), m.YForIndex(info.Index)

	// Dashed vertical crosshair through the hovered sample.
	dc.SetRGBA255(0x42, 0x42, 0x42, 0xff)
	dc.SetLineWidth(1)
	dc.SetDash(4, 4)
	dc.DrawLine(hx, padTop, hx, padTop+m.PlotH)
	dc.Stroke()
	dc.SetDash()

	// Marker dot in the segment's grade color with a white rim.
	dc.SetRGBA255(0xff, 0xff, 0xff, 0xff)
	dc.DrawCircle(hx, hy, 5)
	dc.Fill()
	gradeForColor := math.Abs(info.GradePercent)
	c := profile.GradeColor(gradeForColor)
	dc.SetColor(c)
	dc.DrawCircle(hx, hy, 3.5)
	dc.Fill()

	h.drawTooltip(dc, m, hx, hy, info)
	return restored
}

func (h *HoverController) drawTooltip(dc *gg.Context, m *Mapping, hx, hy float64, info HoverInfo) {
	dc.SetFontFace(h.renderer.tooltipFace)

	lines := []string{
		fmt.Sprintf("%.0f m", info.ElevationM),
		fmt.Sprintf("%.1f km", info.DistanceKm),
		fmt.Sprintf("%+.1f%%", info.GradePercent),
	}

	var maxW float64
	lineH := 15.0
	for _, s := range lines {
		if w, _ := dc.MeasureString(s); w > maxW {
			maxW = w
		}
	}
	boxW := maxW + 16
	boxH := lineH*float64(len(lines)) + 10

	// Keep the tooltip inside the plot's horizontal bounds: prefer the
	// right side of the crosshair, flip left when it would overflow.
	tx := hx + 10
	if tx+boxW > padLeft+m.PlotW {
		tx = hx - 10 - boxW
	}
	tx = clamp(tx, padLeft, padLeft+m.PlotW-boxW)

	ty := clamp(hy-boxH-10, padTop, padTop+m.PlotH-boxH)

	dc.SetRGBA255(0x21, 0x21, 0x21, 0xe6)
	dc.DrawRoundedRectangle(tx, ty, boxW, boxH, 4)
	dc.Fill()

	dc.SetRGBA255(0xff, 0xff, 0xff, 0xff)
	for i, s := range lines {
		dc.DrawString(s, tx+8, ty+8+lineH*float64(i)+lineH*0.6)
	}
}
