// Package tidepods samples areas of interest into tide query points and turns
// predicted tide values back into geographic surfaces.
package tidepods

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// CanonicalCRS is the spatial reference every Footprint is expressed in.
const CanonicalCRS = "EPSG:4326"

// DefaultBuffer is the AOI buffer, in degrees, applied by the sentinel2 and aoi
// modes. It matches the resolution of the tidal constituent grid.
const DefaultBuffer = 0.125

// JoinStyle selects how a footprint buffer treats polygon corners.
type JoinStyle int

const (
	// JoinRound rounds corners; used for vector AOIs.
	JoinRound JoinStyle = iota
	// JoinMitre keeps sharp corners, so a buffered rectangle stays a rectangle.
	JoinMitre
)

func (j JoinStyle) String() string {
	switch j {
	case JoinRound:
		return "round"
	case JoinMitre:
		return "mitre"
	default:
		return "invalid"
	}
}

// A Footprint is the normalized AOI: a simple polygon in geographic
// coordinates (CanonicalCRS), already buffered by Buffer degrees.
type Footprint struct {
	Polygon orb.Polygon
	Buffer  float64
	Join    JoinStyle
}

// BoxFootprint builds the footprint of a rectangular extent. A mitre buffer of
// a rectangle is the rectangle padded on every side, so no polygon offsetting
// is needed.
func BoxFootprint(b orb.Bound, buffer float64) (Footprint, error) {
	if buffer < 0 {
		return Footprint{}, fmt.Errorf("negative buffer %g", buffer)
	}
	fp := Footprint{
		Polygon: b.Pad(buffer).ToPolygon(),
		Buffer:  buffer,
		Join:    JoinMitre,
	}
	if err := fp.Validate(); err != nil {
		return Footprint{}, err
	}
	return fp, nil
}

// Bound returns the footprint's bounding box.
func (f Footprint) Bound() orb.Bound {
	return f.Polygon.Bound()
}

// Validate checks the footprint is a usable, non-degenerate polygon.
func (f Footprint) Validate() error {
	if len(f.Polygon) == 0 || len(f.Polygon[0]) < 4 {
		return fmt.Errorf("empty footprint")
	}
	if planar.Area(f.Polygon) == 0 {
		return fmt.Errorf("degenerate footprint with zero area")
	}
	b := f.Bound()
	if b.Min[0] < -180-f.Buffer || b.Max[0] > 180+f.Buffer ||
		b.Min[1] < -90-f.Buffer || b.Max[1] > 90+f.Buffer {
		return fmt.Errorf("footprint %v is outside geographic coordinates", b)
	}
	return nil
}

// Contains reports whether p lies strictly inside the footprint. Points on the
// outer ring or on a hole boundary are not contained.
func (f Footprint) Contains(p orb.Point) bool {
	return strictlyInside(f.Polygon, p)
}

func strictlyInside(poly orb.Polygon, p orb.Point) bool {
	for _, ring := range poly {
		if onRing(ring, p) {
			return false
		}
	}
	return planar.PolygonContains(poly, p)
}

func onRing(r orb.Ring, p orb.Point) bool {
	for i := 0; i+1 < len(r); i++ {
		if onSegment(r[i], r[i+1], p) {
			return true
		}
	}
	return false
}

func onSegment(a, b, p orb.Point) bool {
	cross := (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
	if cross != 0 {
		return false
	}
	return p[0] >= min(a[0], b[0]) && p[0] <= max(a[0], b[0]) &&
		p[1] >= min(a[1], b[1]) && p[1] <= max(a[1], b[1])
}
