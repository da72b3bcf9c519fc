package tidepods

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoxFootprint(t *testing.T) {
	fp, err := BoxFootprint(orb.Bound{Min: orb.Point{10, 55}, Max: orb.Point{11, 56}}, DefaultBuffer)
	require.NoError(t, err)
	assert.Equal(t, JoinMitre, fp.Join)
	assert.Equal(t, orb.Bound{Min: orb.Point{9.875, 54.875}, Max: orb.Point{11.125, 56.125}}, fp.Bound())

	_, err = BoxFootprint(orb.Bound{Min: orb.Point{10, 55}, Max: orb.Point{11, 56}}, -1)
	assert.Error(t, err)
	_, err = BoxFootprint(orb.Bound{Min: orb.Point{10, 55}, Max: orb.Point{10, 56}}, 0)
	assert.ErrorContains(t, err, "zero area")
}

func TestFootprintValidate(t *testing.T) {
	assert.ErrorContains(t, Footprint{}.Validate(), "empty")

	projected := Footprint{Polygon: orb.Bound{Min: orb.Point{500000, 6100000}, Max: orb.Point{600000, 6200000}}.ToPolygon()}
	assert.ErrorContains(t, projected.Validate(), "outside geographic coordinates")

	// a buffered footprint may cross the antimeridian by at most its buffer
	edge := Footprint{Polygon: orb.Bound{Min: orb.Point{179, 0}, Max: orb.Point{180.1, 1}}.ToPolygon(), Buffer: 0.125}
	assert.NoError(t, edge.Validate())
}

func TestFootprintContains(t *testing.T) {
	fp, err := BoxFootprint(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}, 0)
	require.NoError(t, err)
	assert.True(t, fp.Contains(orb.Point{0.5, 0.5}))
	assert.False(t, fp.Contains(orb.Point{0, 0.5}), "points on the boundary are outside")
	assert.False(t, fp.Contains(orb.Point{1, 1}))
	assert.False(t, fp.Contains(orb.Point{1.5, 0.5}))

	holed := Footprint{Polygon: orb.Polygon{
		{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}},
		{{1, 1}, {1, 3}, {3, 3}, {3, 1}, {1, 1}},
	}}
	assert.True(t, holed.Contains(orb.Point{0.5, 2}))
	assert.False(t, holed.Contains(orb.Point{2, 2}))
	assert.False(t, holed.Contains(orb.Point{1, 2}))
}

func TestJoinStyleString(t *testing.T) {
	assert.Equal(t, "mitre", JoinMitre.String())
	assert.Equal(t, "round", JoinRound.String())
}
