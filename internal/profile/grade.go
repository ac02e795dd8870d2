package profile

import (
	"fmt"
	"image/color"
	"math"
)

// gradeStop anchors the grade color ramp at one breakpoint.
type gradeStop struct {
	grade float64
	c     color.RGBA
}

// gradeRamp maps grade percent to color, flat to steep. Colors between
// breakpoints are linearly interpolated; grades past the last breakpoint
// clamp to dark red.
var gradeRamp = []gradeStop{
	{0, color.RGBA{R: 0x4c, G: 0xaf, B: 0x50, A: 0xff}},  // green
	{3, color.RGBA{R: 0x9a, G: 0xcd, B: 0x32, A: 0xff}},  // yellow-green
	{5, color.RGBA{R: 0xff, G: 0xc1, B: 0x07, A: 0xff}},  // amber
	{8, color.RGBA{R: 0xff, G: 0x98, B: 0x00, A: 0xff}},  // orange
	{12, color.RGBA{R: 0xf4, G: 0x43, B: 0x36, A: 0xff}}, // red
	{18, color.RGBA{R: 0x8b, G: 0x00, B: 0x00, A: 0xff}}, // dark red
}

// GradeColor returns the ramp color for an unsigned grade percent.
func GradeColor(grade float64) color.RGBA {
	if math.IsNaN(grade) || grade <= gradeRamp[0].grade {
		return gradeRamp[0].c
	}
	last := gradeRamp[len(gradeRamp)-1]
	if grade >= last.grade {
		return last.c
	}

	for i := 1; i < len(gradeRamp); i++ {
		if grade <= gradeRamp[i].grade {
			lo, hi := gradeRamp[i-1], gradeRamp[i]
			t := (grade - lo.grade) / (hi.grade - lo.grade)
			return lerpColor(lo.c, hi.c, t)
		}
	}
	return last.c
}

// GradeColorHex returns the ramp color as a #rrggbb string for map overlays.
func GradeColorHex(grade float64) string {
	c := GradeColor(grade)
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func lerpColor(a, b color.RGBA, t float64) color.RGBA {
	return color.RGBA{
		R: lerpChannel(a.R, b.R, t),
		G: lerpChannel(a.G, b.G, t),
		B: lerpChannel(a.B, b.B, t),
		A: 0xff,
	}
}

func lerpChannel(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + t*(float64(b)-float64(a))))
}
