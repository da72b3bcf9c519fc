package tidepods

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitSurface(t *testing.T) (*Surface, Footprint) {
	t.Helper()
	fp := square(0, 0, 1)
	pts, err := Sample(fp, 0.125, EdgeCentered)
	require.NoError(t, err)
	values := make([]float64, len(pts))
	for i, p := range pts {
		values[i] = p.X + 10*p.Y
	}
	s, err := Rasterize(fp, pts, values, DefaultCellSize)
	require.NoError(t, err)
	return s, fp
}

func TestRasterize(t *testing.T) {
	s, _ := unitSurface(t)
	assert.Equal(t, 8, s.Width)
	assert.Equal(t, 8, s.Height)
	assert.Equal(t, GeoTransform{0, 0.125, 0, 1, 0, -0.125}, s.Transform)
	assert.Equal(t, CanonicalCRS, s.CRS)
	assert.Equal(t, 64, s.Valid())
	// top-left cell holds the point at (0.0625, 0.9375)
	assert.InDelta(t, 0.0625+9.375, s.At(0, 0), 1e-12)
	// bottom-right cell holds the point at (0.9375, 0.0625)
	assert.InDelta(t, 0.9375+0.625, s.At(7, 7), 1e-12)
}

func TestRasterizeSparse(t *testing.T) {
	fp := square(0, 0, 1)
	pts := []SamplePoint{{ID: 1, X: 0.3, Y: 0.3}}
	s, err := Rasterize(fp, pts, []float64{4.5}, 0.25)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Valid())
	assert.Equal(t, 4.5, s.At(1, 2))
	assert.Equal(t, NoData, s.At(0, 0))
}

func TestRasterizeUnevenExtent(t *testing.T) {
	fp := Footprint{Polygon: orb.Bound{Min: orb.Point{12.3456, 55.1111}, Max: orb.Point{14.0789, 56.4321}}.ToPolygon()}
	pts, err := Sample(fp, 0.125, EdgeCentered)
	require.NoError(t, err)
	require.Len(t, pts, 14*11)
	values := make([]float64, len(pts))
	for i := range values {
		values[i] = float64(i)
	}
	s, err := Rasterize(fp, pts, values, 0.125)
	require.NoError(t, err)
	// the extent floors to 13x10 cells, the last samples need one more of each
	assert.Equal(t, 14, s.Width)
	assert.Equal(t, 11, s.Height)
	assert.Equal(t, GeoTransform{12.3456, 0.125, 0, 56.4321, 0, -0.125}, s.Transform)
	assert.Equal(t, len(pts), s.Valid())
	// points go up each column, the first one is the bottom left cell
	assert.Equal(t, 0.0, s.At(0, 10))
	assert.Equal(t, float64(len(pts)-1), s.At(13, 0))
}

func TestRasterizeOutside(t *testing.T) {
	_, err := Rasterize(square(0, 0, 1), []SamplePoint{{ID: 7, X: 1.5, Y: 0.5}}, []float64{1}, 0.25)
	assert.ErrorContains(t, err, "point 7")
}

func TestRasterizeEmpty(t *testing.T) {
	_, err := Rasterize(square(0, 0, 1), nil, nil, DefaultCellSize)
	assert.True(t, errors.Is(err, ErrNoPoints))

	_, err = Rasterize(square(0, 0, 1), []SamplePoint{{ID: 1}}, nil, DefaultCellSize)
	assert.Error(t, err)
}

func TestMaskPolarity(t *testing.T) {
	s, fp := unitSurface(t)

	covering := LandMask{Polygons: []orb.Polygon{
		orb.Bound{Min: orb.Point{-1, -1}, Max: orb.Point{2, 2}}.ToPolygon(),
	}}
	masked := Mask(s, covering, fp)
	assert.Equal(t, 0, masked.Valid())
	assert.Equal(t, 64, s.Valid(), "mask must not modify its input")

	disjoint := LandMask{Polygons: []orb.Polygon{
		orb.Bound{Min: orb.Point{5, 5}, Max: orb.Point{6, 6}}.ToPolygon(),
	}}
	assert.Equal(t, s.Values, Mask(s, disjoint, fp).Values)

	// land over the western half removes exactly the 4 western columns
	west := LandMask{Polygons: []orb.Polygon{
		orb.Bound{Min: orb.Point{-1, -1}, Max: orb.Point{0.5, 2}}.ToPolygon(),
	}}
	half := Mask(s, west, fp)
	assert.Equal(t, 32, half.Valid())
	assert.Equal(t, NoData, half.At(3, 0))
	assert.NotEqual(t, NoData, half.At(4, 0))
}

func TestLandMaskClip(t *testing.T) {
	fp := square(0, 0, 1)
	m := LandMask{Polygons: []orb.Polygon{
		orb.Bound{Min: orb.Point{0.5, 0.5}, Max: orb.Point{3, 3}}.ToPolygon(),
		orb.Bound{Min: orb.Point{5, 5}, Max: orb.Point{6, 6}}.ToPolygon(),
	}}
	assert.Len(t, m.Clip(fp).Polygons, 1)
	assert.True(t, m.Excludes(orb.Point{5.5, 5.5}))
	assert.False(t, m.Excludes(orb.Point{4, 4}))
}

func TestResampleSameCRS(t *testing.T) {
	s, _ := unitSurface(t)
	dst := GridDef{Width: 16, Height: 16, Transform: GeoTransform{0, 0.0625, 0, 1, 0, -0.0625}, CRS: CanonicalCRS}
	out, err := Resample(s, dst, nil)
	require.NoError(t, err)
	assert.Equal(t, dst, out.GridDef)
	assert.Equal(t, 256, out.Valid())
	for row := 0; row < 16; row++ {
		for col := 0; col < 16; col++ {
			assert.Equal(t, s.At(col/2, row/2), out.At(col, row))
		}
	}
}

func TestResampleOutside(t *testing.T) {
	s, _ := unitSurface(t)
	dst := GridDef{Width: 4, Height: 2, Transform: GeoTransform{0.5, 0.25, 0, 1, 0, -0.25}, CRS: CanonicalCRS}
	out, err := Resample(s, dst, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, out.Valid())
	assert.Equal(t, NoData, out.At(2, 0))
	assert.Equal(t, NoData, out.At(3, 1))
}

type shift struct{ dx, dy float64 }

func (sh shift) Transform(xs, ys []float64) error {
	for i := range xs {
		xs[i] += sh.dx
		ys[i] += sh.dy
	}
	return nil
}

func TestResampleTransformed(t *testing.T) {
	s, _ := unitSurface(t)
	dst := GridDef{Width: 8, Height: 8, Transform: GeoTransform{100, 0.125, 0, 51, 0, -0.125}, CRS: "EPSG:3857"}

	_, err := Resample(s, dst, nil)
	assert.True(t, errors.Is(err, ErrTransformNeeded))

	out, err := Resample(s, dst, shift{dx: -100, dy: -50})
	require.NoError(t, err)
	assert.Equal(t, s.Values, out.Values)
	assert.Equal(t, "EPSG:3857", out.CRS)
}

func TestGeoTransformInvert(t *testing.T) {
	gt := GeoTransform{300000, 10, 0, 5000000, 0, -10}
	inv, err := gt.Invert()
	require.NoError(t, err)
	c, r := inv.Apply(gt.Apply(12.5, 7.25))
	assert.InDelta(t, 12.5, c, 1e-9)
	assert.InDelta(t, 7.25, r, 1e-9)

	_, err = GeoTransform{0, 0, 0, 0, 0, 0}.Invert()
	assert.Error(t, err)
}

func TestGeographicGrid(t *testing.T) {
	g, err := GeographicGrid(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 0.3}}, 0.25)
	require.NoError(t, err)
	assert.Equal(t, 4, g.Width)
	assert.Equal(t, 2, g.Height)
	assert.Equal(t, orb.Bound{Min: orb.Point{0, -0.2}, Max: orb.Point{1, 0.3}}, g.Bound())
}
