package surface

import (
	"errors"
	"sort"
	"time"
)

// Surface errors.
var (
	ErrProviderUnavailable = errors.New("surface provider unavailable")
	ErrNoSurfaceData       = errors.New("no surface data for route")
	ErrInvalidCoordinates  = errors.New("invalid coordinates")
	ErrTooFewWaypoints     = errors.New("at least two waypoints are required")
	ErrSurfaceDisabled     = errors.New("surface lookup disabled by feature flag")
)

// Type represents a road surface category.
type Type string

const (
	SurfaceUnknown         Type = "unknown"
	SurfacePaved           Type = "paved"
	SurfaceUnpaved         Type = "unpaved"
	SurfaceAsphalt         Type = "asphalt"
	SurfaceConcrete        Type = "concrete"
	SurfaceCobblestone     Type = "cobblestone"
	SurfaceMetal           Type = "metal"
	SurfaceWood            Type = "wood"
	SurfaceCompactedGravel Type = "compacted_gravel"
	SurfaceFineGravel      Type = "fine_gravel"
	SurfaceGravel          Type = "gravel"
	SurfaceDirt            Type = "dirt"
	SurfaceGround          Type = "ground"
	SurfaceIce             Type = "ice"
	SurfacePavingStones    Type = "paving_stones"
	SurfaceSand            Type = "sand"
	SurfaceWoodchips       Type = "woodchips"
	SurfaceGrass           Type = "grass"
	SurfaceGrassPaver      Type = "grass_paver"
)

// surfaceCodes maps OpenRouteService surface codes to surface types.
var surfaceCodes = map[int]Type{
	0:  SurfaceUnknown,
	1:  SurfacePaved,
	2:  SurfaceUnpaved,
	3:  SurfaceAsphalt,
	4:  SurfaceConcrete,
	5:  SurfaceCobblestone,
	6:  SurfaceMetal,
	7:  SurfaceWood,
	8:  SurfaceCompactedGravel,
	9:  SurfaceFineGravel,
	10: SurfaceGravel,
	11: SurfaceDirt,
	12: SurfaceGround,
	13: SurfaceIce,
	14: SurfacePavingStones,
	15: SurfaceSand,
	16: SurfaceWoodchips,
	17: SurfaceGrass,
	18: SurfaceGrassPaver,
}

// TypeFromCode converts an OpenRouteService surface code to a Type.
// Unrecognized codes map to SurfaceUnknown.
func TypeFromCode(code int) Type {
	if t, ok := surfaceCodes[code]; ok {
		return t
	}
	return SurfaceUnknown
}

// IsPaved returns true for sealed surfaces suitable for road bikes.
func (t Type) IsPaved() bool {
	switch t {
	case SurfacePaved, SurfaceAsphalt, SurfaceConcrete, SurfaceCobblestone,
		SurfaceMetal, SurfaceWood, SurfacePavingStones:
		return true
	default:
		return false
	}
}

// Share represents the portion of a route on a single surface type.
type Share struct {
	// Surface is the surface category.
	Surface Type

	// DistanceMeters is the length of route on this surface.
	DistanceMeters float64

	// Percent is the share of the total route distance (0-100).
	Percent float64
}

// Breakdown represents the surface composition of a route.
type Breakdown struct {
	// Shares by surface type, longest first.
	Shares []Share

	// Dominant is the surface covering the largest distance.
	Dominant Type

	// PavedPercent is the share on sealed surfaces (0-100).
	PavedPercent float64

	// UnpavedPercent is the share on unsealed surfaces (0-100).
	// Unknown segments count toward neither family.
	UnpavedPercent float64

	// DistanceMeters is the total distance covered by the shares.
	DistanceMeters float64

	// FetchedAt is when the data was retrieved.
	FetchedAt time.Time

	// Provider identifies the data source.
	Provider string
}

// NewBreakdown builds a Breakdown from raw shares. Shares are sorted
// longest first and the family percentages are derived from them.
func NewBreakdown(shares []Share, provider string) *Breakdown {
	b := &Breakdown{
		Shares:    make([]Share, len(shares)),
		Dominant:  SurfaceUnknown,
		FetchedAt: time.Now(),
		Provider:  provider,
	}
	copy(b.Shares, shares)

	sort.SliceStable(b.Shares, func(i, j int) bool {
		return b.Shares[i].DistanceMeters > b.Shares[j].DistanceMeters
	})

	for _, s := range b.Shares {
		b.DistanceMeters += s.DistanceMeters
		switch {
		case s.Surface == SurfaceUnknown:
		case s.Surface.IsPaved():
			b.PavedPercent += s.Percent
		default:
			b.UnpavedPercent += s.Percent
		}
	}

	if len(b.Shares) > 0 {
		b.Dominant = b.Shares[0].Surface
	}
	return b
}

// GetShare returns the share for a specific surface type, or nil.
func (b *Breakdown) GetShare(t Type) *Share {
	for i := range b.Shares {
		if b.Shares[i].Surface == t {
			return &b.Shares[i]
		}
	}
	return nil
}
