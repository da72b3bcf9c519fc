package gis

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/DHI-GRAS/tidepods"
	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
)

// Accepted AOI file extensions.
var (
	RasterExtensions = []string{".tif", ".tiff"}
	VectorExtensions = []string{".shp", ".geojson", ".json", ".gpkg"}
)

// ErrUnsupportedFormat classifies inputs whose format cannot be handled.
var ErrUnsupportedFormat = errors.New("unsupported input format")

// FormatError reports an input with an unsupported extension.
type FormatError struct {
	Path string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unsupported file %s: raster must be one of %v, vector one of %v",
		e.Path, RasterExtensions, VectorExtensions)
}

func (e *FormatError) Is(target error) bool {
	return target == ErrUnsupportedFormat
}

// GeometryTypeError reports a vector AOI that is not a single polygon.
type GeometryTypeError struct {
	Path   string
	Reason string
}

func (e *GeometryTypeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

func (e *GeometryTypeError) Is(target error) bool {
	return target == ErrUnsupportedFormat
}

func hasExt(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// Resolver turns AOI files into footprints. Buffers are in degrees and are
// applied after reprojection; zero disables buffering.
type Resolver struct {
	RasterBuffer float64
	VectorBuffer float64
	// Segments is the number of segments used to approximate a quarter
	// circle when buffering vector polygons.
	Segments int
}

// NewResolver returns a resolver buffering every input by buffer degrees.
func NewResolver(buffer float64) *Resolver {
	return &Resolver{RasterBuffer: buffer, VectorBuffer: buffer, Segments: 8}
}

// Resolve dispatches on the input extension.
func (r *Resolver) Resolve(path string) (tidepods.Footprint, error) {
	switch {
	case hasExt(path, RasterExtensions):
		return r.resolveRaster(path)
	case hasExt(path, VectorExtensions):
		return r.resolveVector(path)
	}
	return tidepods.Footprint{}, &FormatError{Path: path}
}

func (r *Resolver) resolveRaster(path string) (tidepods.Footprint, error) {
	grid, err := OpenGrid(path)
	if err != nil {
		return tidepods.Footprint{}, err
	}
	fp, err := FromGrid(grid, r.RasterBuffer)
	if err != nil {
		return tidepods.Footprint{}, fmt.Errorf("%s: %w", path, err)
	}
	return fp, nil
}

// RasterGrid returns the grid definition of an open raster.
func RasterGrid(ds *godal.Dataset) (tidepods.GridDef, error) {
	gt, err := ds.GeoTransform()
	if err != nil {
		return tidepods.GridDef{}, fmt.Errorf("no geotransform: %w", err)
	}
	sr := ds.SpatialRef()
	if sr == nil {
		return tidepods.GridDef{}, fmt.Errorf("no spatial reference")
	}
	wkt, err := sr.WKT()
	if err != nil {
		return tidepods.GridDef{}, fmt.Errorf("spatial reference wkt: %w", err)
	}
	st := ds.Structure()
	return tidepods.GridDef{
		Width:     st.SizeX,
		Height:    st.SizeY,
		Transform: tidepods.GeoTransform(gt),
		CRS:       wkt,
	}, nil
}

// FromGrid reprojects the four corners of a grid to geographic coordinates
// and returns their bounding rectangle padded by buffer degrees.
func FromGrid(g tidepods.GridDef, buffer float64) (tidepods.Footprint, error) {
	w, h := float64(g.Width), float64(g.Height)
	xs := make([]float64, 4)
	ys := make([]float64, 4)
	for i, c := range [][2]float64{{0, 0}, {w, 0}, {w, h}, {0, h}} {
		xs[i], ys[i] = g.Transform.Apply(c[0], c[1])
	}
	trn, err := NewTransformer(g.CRS, tidepods.CanonicalCRS)
	if err != nil {
		return tidepods.Footprint{}, err
	}
	defer trn.Close()
	if err := trn.Transform(xs, ys); err != nil {
		return tidepods.Footprint{}, fmt.Errorf("reproject grid corners: %w", err)
	}
	b := orb.Bound{Min: orb.Point{math.Inf(1), math.Inf(1)}, Max: orb.Point{math.Inf(-1), math.Inf(-1)}}
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			return tidepods.Footprint{}, fmt.Errorf("grid corner %d cannot be reprojected", i)
		}
		b = b.Extend(orb.Point{xs[i], ys[i]})
	}
	return tidepods.BoxFootprint(b, buffer)
}

func (r *Resolver) resolveVector(path string) (tidepods.Footprint, error) {
	ds, err := godal.Open(path, godal.VectorOnly())
	if err != nil {
		return tidepods.Footprint{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer ds.Close()
	layers := ds.Layers()
	if len(layers) != 1 {
		return tidepods.Footprint{}, &GeometryTypeError{Path: path,
			Reason: fmt.Sprintf("expecting a single layer, found %d", len(layers))}
	}
	layer := layers[0]
	feat := layer.NextFeature()
	if feat == nil {
		return tidepods.Footprint{}, &GeometryTypeError{Path: path, Reason: "no feature found"}
	}
	defer feat.Close()
	if extra := layer.NextFeature(); extra != nil {
		extra.Close()
		return tidepods.Footprint{}, &GeometryTypeError{Path: path,
			Reason: "expecting exactly one polygon feature, found several"}
	}
	geom := feat.Geometry()
	if geom == nil {
		return tidepods.Footprint{}, &GeometryTypeError{Path: path, Reason: "feature has no geometry"}
	}
	defer geom.Close()
	if geom.Type() != godal.GTPolygon {
		return tidepods.Footprint{}, &GeometryTypeError{Path: path,
			Reason: fmt.Sprintf("geometry type must be Polygon, not %s", geometryName(geom.Type()))}
	}

	dst, err := canonical()
	if err != nil {
		return tidepods.Footprint{}, err
	}
	defer dst.Close()
	if src := layer.SpatialRef(); src != nil && !src.IsSame(dst) {
		if err := geom.Reproject(dst); err != nil {
			return tidepods.Footprint{}, fmt.Errorf("reproject %s: %w", path, err)
		}
	}
	if r.VectorBuffer > 0 {
		buffered, err := geom.Buffer(r.VectorBuffer, r.Segments)
		if err != nil {
			return tidepods.Footprint{}, fmt.Errorf("buffer %s: %w", path, err)
		}
		defer buffered.Close()
		geom = buffered
	}
	g, err := fromGodal(geom)
	if err != nil {
		return tidepods.Footprint{}, fmt.Errorf("%s: %w", path, err)
	}
	poly, ok := g.(orb.Polygon)
	if !ok {
		return tidepods.Footprint{}, &GeometryTypeError{Path: path,
			Reason: fmt.Sprintf("buffered geometry is a %s, not a polygon", g.GeoJSONType())}
	}
	fp := tidepods.Footprint{Polygon: poly, Buffer: r.VectorBuffer, Join: tidepods.JoinRound}
	if err := fp.Validate(); err != nil {
		return tidepods.Footprint{}, fmt.Errorf("%s: %w", path, err)
	}
	return fp, nil
}

func geometryName(t godal.GeometryType) string {
	switch t {
	case godal.GTPoint:
		return "Point"
	case godal.GTLineString:
		return "LineString"
	case godal.GTPolygon:
		return "Polygon"
	case godal.GTMultiPoint:
		return "MultiPoint"
	case godal.GTMultiLineString:
		return "MultiLineString"
	case godal.GTMultiPolygon:
		return "MultiPolygon"
	case godal.GTGeometryCollection:
		return "GeometryCollection"
	}
	return fmt.Sprintf("geometry type %d", t)
}
