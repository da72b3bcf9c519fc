// Package gis is the GDAL boundary of tidepods: it opens raster and vector
// inputs, reprojects geometries and writes georeferenced surfaces.
package gis

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/DHI-GRAS/tidepods"
	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// SpatialRef builds a spatial reference from an "EPSG:<code>" string or any
// definition GDAL understands.
func SpatialRef(def string) (*godal.SpatialRef, error) {
	if code, ok := strings.CutPrefix(strings.ToUpper(def), "EPSG:"); ok {
		n, err := strconv.Atoi(code)
		if err != nil {
			return nil, fmt.Errorf("invalid epsg code %q", def)
		}
		sr, err := godal.NewSpatialRefFromEPSG(n)
		if err != nil {
			return nil, fmt.Errorf("epsg %d: %w", n, err)
		}
		return sr, nil
	}
	sr, err := godal.NewSpatialRef(def)
	if err != nil {
		return nil, fmt.Errorf("spatial reference %q: %w", def, err)
	}
	return sr, nil
}

func canonical() (*godal.SpatialRef, error) {
	return SpatialRef(tidepods.CanonicalCRS)
}

// toGodal converts an orb geometry, expressed in sr, to a GDAL geometry.
func toGodal(g orb.Geometry, sr *godal.SpatialRef) (*godal.Geometry, error) {
	b, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("wkb encode: %w", err)
	}
	geom, err := godal.NewGeometryFromWKB(b, sr)
	if err != nil {
		return nil, fmt.Errorf("wkb decode: %w", err)
	}
	return geom, nil
}

// fromGodal converts a GDAL geometry to its orb equivalent.
func fromGodal(geom *godal.Geometry) (orb.Geometry, error) {
	b, err := geom.WKB()
	if err != nil {
		return nil, fmt.Errorf("wkb encode: %w", err)
	}
	g, err := wkb.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("wkb decode: %w", err)
	}
	return g, nil
}

// Transformer converts coordinates between two spatial references. It
// implements tidepods.CoordTransformer.
type Transformer struct {
	src, dst *godal.SpatialRef
	same     bool
}

// NewTransformer returns a transformer from src to dst definitions.
func NewTransformer(src, dst string) (*Transformer, error) {
	s, err := SpatialRef(src)
	if err != nil {
		return nil, err
	}
	d, err := SpatialRef(dst)
	if err != nil {
		s.Close()
		return nil, err
	}
	return &Transformer{src: s, dst: d, same: s.IsSame(d)}, nil
}

// Close releases the spatial references.
func (t *Transformer) Close() {
	t.src.Close()
	t.dst.Close()
}

// Transform reprojects the coordinates in place. Coordinates that cannot be
// transformed are set to NaN.
func (t *Transformer) Transform(xs, ys []float64) error {
	if len(xs) != len(ys) {
		return fmt.Errorf("transform %d x for %d y", len(xs), len(ys))
	}
	if t.same || len(xs) == 0 {
		return nil
	}
	mp := make(orb.MultiPoint, len(xs))
	for i := range xs {
		mp[i] = orb.Point{xs[i], ys[i]}
	}
	geom, err := toGodal(mp, t.src)
	if err != nil {
		return err
	}
	defer geom.Close()
	if err := geom.Reproject(t.dst); err != nil {
		// fall back to point by point so a single bad coordinate does not
		// fail the whole row
		return t.transformEach(xs, ys)
	}
	g, err := fromGodal(geom)
	if err != nil {
		return err
	}
	out, ok := g.(orb.MultiPoint)
	if !ok || len(out) != len(xs) {
		return fmt.Errorf("reprojected %d points into %T", len(xs), g)
	}
	for i, p := range out {
		xs[i], ys[i] = p[0], p[1]
	}
	return nil
}

func (t *Transformer) transformEach(xs, ys []float64) error {
	for i := range xs {
		geom, err := toGodal(orb.Point{xs[i], ys[i]}, t.src)
		if err != nil {
			return err
		}
		if err := geom.Reproject(t.dst); err != nil {
			xs[i], ys[i] = math.NaN(), math.NaN()
			geom.Close()
			continue
		}
		g, err := fromGodal(geom)
		geom.Close()
		if err != nil {
			return err
		}
		p, ok := g.(orb.Point)
		if !ok {
			return fmt.Errorf("reprojected point into %T", g)
		}
		xs[i], ys[i] = p[0], p[1]
	}
	return nil
}
