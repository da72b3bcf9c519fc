package tidepods

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// NoData marks surface cells that hold no tide value.
const NoData = -9999.0

// DefaultCellSize is the cell size, in degrees, of rasterized point surfaces.
const DefaultCellSize = 0.125

// GeoTransform is an affine pixel to coordinate transform, in GDAL order:
// x = gt[0] + col*gt[1] + row*gt[2], y = gt[3] + col*gt[4] + row*gt[5].
type GeoTransform [6]float64

// Apply maps pixel/line coordinates to georeferenced coordinates.
func (gt GeoTransform) Apply(col, row float64) (float64, float64) {
	return gt[0] + col*gt[1] + row*gt[2], gt[3] + col*gt[4] + row*gt[5]
}

// Invert returns the transform mapping coordinates back to pixel/line.
func (gt GeoTransform) Invert() (GeoTransform, error) {
	det := gt[1]*gt[5] - gt[2]*gt[4]
	if det == 0 {
		return GeoTransform{}, fmt.Errorf("geotransform %v is not invertible", gt)
	}
	inv := GeoTransform{}
	inv[1] = gt[5] / det
	inv[2] = -gt[2] / det
	inv[4] = -gt[4] / det
	inv[5] = gt[1] / det
	inv[0] = -(inv[1]*gt[0] + inv[2]*gt[3])
	inv[3] = -(inv[4]*gt[0] + inv[5]*gt[3])
	return inv, nil
}

// A GridDef defines a raster grid: its size, georeferencing and spatial
// reference (an "EPSG:<code>" string or a WKT definition).
type GridDef struct {
	Width     int
	Height    int
	Transform GeoTransform
	CRS       string
}

func (g GridDef) validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("invalid grid size %dx%d", g.Width, g.Height)
	}
	if _, err := g.Transform.Invert(); err != nil {
		return err
	}
	return nil
}

// Bound returns the grid extent in its own spatial reference.
func (g GridDef) Bound() orb.Bound {
	b := orb.Bound{Min: orb.Point{math.Inf(1), math.Inf(1)}, Max: orb.Point{math.Inf(-1), math.Inf(-1)}}
	for _, c := range [][2]float64{{0, 0}, {float64(g.Width), 0}, {0, float64(g.Height)}, {float64(g.Width), float64(g.Height)}} {
		x, y := g.Transform.Apply(c[0], c[1])
		b = b.Extend(orb.Point{x, y})
	}
	return b
}

// A Surface is a single band grid of tide values stored row major, at the
// Float32 precision of written rasters. Cells without a value hold NoData.
type Surface struct {
	GridDef
	Values []float32
}

// NewSurface allocates a surface filled with NoData.
func NewSurface(g GridDef) (*Surface, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}
	s := &Surface{GridDef: g, Values: make([]float32, g.Width*g.Height)}
	for i := range s.Values {
		s.Values[i] = NoData
	}
	return s, nil
}

// At returns the value of cell (col,row).
func (s *Surface) At(col, row int) float64 {
	return float64(s.Values[row*s.Width+col])
}

// Set assigns the value of cell (col,row).
func (s *Surface) Set(col, row int, v float64) {
	s.Values[row*s.Width+col] = float32(v)
}

// Valid counts the cells that hold a value.
func (s *Surface) Valid() int {
	n := 0
	for _, v := range s.Values {
		if v != NoData {
			n++
		}
	}
	return n
}

// Rasterize burns point values into a CanonicalCRS grid whose origin is the
// footprint's top-left corner and whose cells are cellSize degrees wide. The
// grid spans the footprint extent, floored to whole cells, and is extended by
// the cells needed to hold the last samples. Cells receiving no point hold
// NoData. values[i] belongs to points[i].
func Rasterize(fp Footprint, points []SamplePoint, values []float64, cellSize float64) (*Surface, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("rasterize: %w", ErrNoPoints)
	}
	if len(points) != len(values) {
		return nil, fmt.Errorf("rasterize: %d points for %d values", len(points), len(values))
	}
	if cellSize <= 0 {
		return nil, fmt.Errorf("invalid cell size %g, must be > 0", cellSize)
	}
	b := fp.Bound()
	g := GridDef{
		Width:     int(math.Floor((b.Max[0] - b.Min[0]) / cellSize)),
		Height:    int(math.Floor((b.Max[1] - b.Min[1]) / cellSize)),
		Transform: GeoTransform{b.Min[0], cellSize, 0, b.Max[1], 0, -cellSize},
		CRS:       CanonicalCRS,
	}
	cells := make([][2]int, len(points))
	for i, p := range points {
		if !b.Contains(p.Point()) {
			return nil, fmt.Errorf("rasterize: point %d (%g,%g) lies outside footprint %v", p.ID, p.X, p.Y, b)
		}
		col := int(math.Floor((p.X - b.Min[0]) / cellSize))
		row := int(math.Floor((b.Max[1] - p.Y) / cellSize))
		g.Width = max(g.Width, col+1)
		g.Height = max(g.Height, row+1)
		cells[i] = [2]int{col, row}
	}
	s, err := NewSurface(g)
	if err != nil {
		return nil, fmt.Errorf("rasterize footprint %v: %w", b, err)
	}
	for i, c := range cells {
		s.Set(c[0], c[1], values[i])
	}
	return s, nil
}

// A LandMask holds land polygons in CanonicalCRS.
type LandMask struct {
	Polygons []orb.Polygon
}

// Clip keeps the polygons whose extent intersects the footprint.
func (m LandMask) Clip(fp Footprint) LandMask {
	fb := fp.Bound()
	out := LandMask{}
	for _, p := range m.Polygons {
		if p.Bound().Intersects(fb) {
			out.Polygons = append(out.Polygons, p)
		}
	}
	return out
}

// Excludes reports whether p lies within land.
func (m LandMask) Excludes(p orb.Point) bool {
	for _, poly := range m.Polygons {
		if !poly.Bound().Contains(p) {
			continue
		}
		if planar.PolygonContains(poly, p) {
			return true
		}
	}
	return false
}

// Mask returns a copy of s where every cell whose center lies on land is set
// to NoData. Water cells are kept. Only land polygons intersecting fp are
// considered.
func Mask(s *Surface, land LandMask, fp Footprint) *Surface {
	land = land.Clip(fp)
	out := &Surface{GridDef: s.GridDef, Values: append([]float32(nil), s.Values...)}
	if len(land.Polygons) == 0 {
		return out
	}
	for row := 0; row < s.Height; row++ {
		for col := 0; col < s.Width; col++ {
			if out.At(col, row) == NoData {
				continue
			}
			x, y := s.Transform.Apply(float64(col)+0.5, float64(row)+0.5)
			if land.Excludes(orb.Point{x, y}) {
				out.Set(col, row, NoData)
			}
		}
	}
	return out
}

// A CoordTransformer converts coordinates, in place, from a destination grid's
// spatial reference into a source grid's one.
type CoordTransformer interface {
	Transform(xs, ys []float64) error
}

// ErrTransformNeeded is returned by Resample when grids have different
// spatial references and no transformer was supplied.
var ErrTransformNeeded = errors.New("grids have different spatial references")

// Resample samples src onto dst with nearest neighbour interpolation. The
// returned surface has dst's size and georeferencing. trn converts dst
// coordinates into src's spatial reference; it may be nil when both grids
// share the same reference. Destination cells falling outside src hold NoData.
func Resample(src *Surface, dst GridDef, trn CoordTransformer) (*Surface, error) {
	if trn == nil && src.CRS != dst.CRS {
		return nil, fmt.Errorf("resample %s onto %s: %w", src.CRS, dst.CRS, ErrTransformNeeded)
	}
	out, err := NewSurface(dst)
	if err != nil {
		return nil, fmt.Errorf("resample destination: %w", err)
	}
	inv, err := src.Transform.Invert()
	if err != nil {
		return nil, fmt.Errorf("resample source: %w", err)
	}
	xs := make([]float64, dst.Width)
	ys := make([]float64, dst.Width)
	for row := 0; row < dst.Height; row++ {
		for col := 0; col < dst.Width; col++ {
			xs[col], ys[col] = dst.Transform.Apply(float64(col)+0.5, float64(row)+0.5)
		}
		if trn != nil {
			if err := trn.Transform(xs, ys); err != nil {
				return nil, fmt.Errorf("transform row %d: %w", row, err)
			}
		}
		for col := 0; col < dst.Width; col++ {
			if math.IsNaN(xs[col]) || math.IsNaN(ys[col]) {
				continue
			}
			sc, sr := inv.Apply(xs[col], ys[col])
			c, r := int(math.Floor(sc)), int(math.Floor(sr))
			if c < 0 || c >= src.Width || r < 0 || r >= src.Height {
				continue
			}
			out.Set(col, row, src.At(c, r))
		}
	}
	return out, nil
}

// GeographicGrid returns a CanonicalCRS grid covering b with square cells of
// res degrees.
func GeographicGrid(b orb.Bound, res float64) (GridDef, error) {
	if res <= 0 {
		return GridDef{}, fmt.Errorf("invalid resolution %g, must be > 0", res)
	}
	g := GridDef{
		Width:     int(math.Ceil((b.Max[0] - b.Min[0]) / res)),
		Height:    int(math.Ceil((b.Max[1] - b.Min[1]) / res)),
		Transform: GeoTransform{b.Min[0], res, 0, b.Max[1], 0, -res},
		CRS:       CanonicalCRS,
	}
	return g, g.validate()
}
