package route

import (
	"github.com/tkrajina/gpxgo/gpx"
)

// gpxCreator identifies generated files in the GPX header.
const gpxCreator = "cyclemaps"

// ToGPX renders the route geometry as a GPX 1.1 track. Elevations come from
// the cached profile when it is usable: each track point takes the elevation
// of the covering sample, a step fill rather than interpolation. Without a
// usable profile the points carry no elevation, which GPX allows.
func ToGPX(rt *Route) ([]byte, error) {
	doc := &gpx.GPX{
		Creator:     gpxCreator,
		Name:        rt.Name,
		Description: rt.Description,
	}

	var (
		elevs   []float64
		indices []int
		si      int
	)
	if rt.Profile.Valid() {
		elevs = rt.Profile.Elevations
		indices = rt.Profile.Indices
	}

	seg := gpx.GPXTrackSegment{Points: make([]gpx.GPXPoint, 0, len(rt.Geometry))}
	for i, c := range rt.Geometry {
		pt := gpx.GPXPoint{
			Point: gpx.Point{
				Latitude:  c[1],
				Longitude: c[0],
			},
		}
		if elevs != nil {
			for si+1 < len(indices) && indices[si+1] <= i {
				si++
			}
			pt.Elevation = *gpx.NewNullableFloat64(elevs[si])
		}
		seg.Points = append(seg.Points, pt)
	}

	doc.Tracks = append(doc.Tracks, gpx.GPXTrack{
		Name:     rt.Name,
		Segments: []gpx.GPXTrackSegment{seg},
	})

	return doc.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
}
