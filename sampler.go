package tidepods

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// DefaultSpacing is the sample point spacing, in degrees.
const DefaultSpacing = 0.125

// ErrNoPoints is returned when sampling a footprint retains no point, which
// usually means the AOI is small relative to the spacing.
var ErrNoPoints = errors.New("no points generated")

// EdgePolicy selects where the first sample of each axis falls.
type EdgePolicy int

const (
	// EdgeAligned starts sampling on the bounding box edge.
	EdgeAligned EdgePolicy = iota
	// EdgeCentered offsets the first sample by half a spacing, so no sample
	// lies on the bounding box edge.
	EdgeCentered
)

func (e EdgePolicy) String() string {
	switch e {
	case EdgeAligned:
		return "aligned"
	case EdgeCentered:
		return "centered"
	default:
		return "invalid"
	}
}

// ParseEdgePolicy parses "aligned" or "centered".
func ParseEdgePolicy(s string) (EdgePolicy, error) {
	switch s {
	case "aligned":
		return EdgeAligned, nil
	case "centered":
		return EdgeCentered, nil
	}
	return 0, fmt.Errorf("invalid edge policy %q, expecting aligned or centered", s)
}

// A SamplePoint is a query location in the same reference as its footprint.
// ID is 1-based and follows generation order.
type SamplePoint struct {
	ID int
	X  float64
	Y  float64
}

func (p SamplePoint) Point() orb.Point {
	return orb.Point{p.X, p.Y}
}

// Sample covers the footprint with a regular grid of points spaced by spacing
// and keeps those strictly inside the footprint polygon. Points are ordered by
// ascending x, then ascending y, and numbered from 1 in that order.
//
// Grid coordinates are computed as start+i*spacing rather than accumulated, so
// the same footprint always yields the same points.
func Sample(fp Footprint, spacing float64, edge EdgePolicy) ([]SamplePoint, error) {
	if spacing <= 0 {
		return nil, fmt.Errorf("invalid spacing %g, must be > 0", spacing)
	}
	var offset float64
	switch edge {
	case EdgeAligned:
	case EdgeCentered:
		offset = spacing / 2
	default:
		return nil, fmt.Errorf("invalid edge policy %d", edge)
	}
	b := fp.Bound()
	x0, y0 := b.Min[0]+offset, b.Min[1]+offset

	points := []SamplePoint{}
	for i := 0; ; i++ {
		x := x0 + float64(i)*spacing
		if x >= b.Max[0] {
			break
		}
		for j := 0; ; j++ {
			y := y0 + float64(j)*spacing
			if y >= b.Max[1] {
				break
			}
			if !fp.Contains(orb.Point{x, y}) {
				continue
			}
			points = append(points, SamplePoint{ID: len(points) + 1, X: x, Y: y})
		}
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w within %v at spacing %g: is the AOI large enough?",
			ErrNoPoints, b, spacing)
	}
	return points, nil
}
