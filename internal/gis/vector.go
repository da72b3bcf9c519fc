package gis

import (
	"fmt"

	"github.com/DHI-GRAS/tidepods"
	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
)

// LoadLandMask reads the land polygons of path that intersect fp. Polygons
// are reprojected to the canonical geographic reference. An unreadable file
// is an error.
func LoadLandMask(path string, fp tidepods.Footprint) (tidepods.LandMask, error) {
	ds, err := godal.Open(path, godal.VectorOnly())
	if err != nil {
		return tidepods.LandMask{}, fmt.Errorf("open land mask %s: %w", path, err)
	}
	defer ds.Close()
	dst, err := canonical()
	if err != nil {
		return tidepods.LandMask{}, err
	}
	defer dst.Close()

	fb := fp.Bound()
	mask := tidepods.LandMask{}
	for _, layer := range ds.Layers() {
		reproject := false
		if src := layer.SpatialRef(); src != nil && !src.IsSame(dst) {
			reproject = true
		}
		for {
			feat := layer.NextFeature()
			if feat == nil {
				break
			}
			polys, err := featurePolygons(feat, dst, reproject)
			feat.Close()
			if err != nil {
				return tidepods.LandMask{}, fmt.Errorf("land mask %s: %w", path, err)
			}
			for _, p := range polys {
				if p.Bound().Intersects(fb) {
					mask.Polygons = append(mask.Polygons, p)
				}
			}
		}
	}
	return mask, nil
}

func featurePolygons(feat *godal.Feature, dst *godal.SpatialRef, reproject bool) ([]orb.Polygon, error) {
	geom := feat.Geometry()
	if geom == nil {
		return nil, nil
	}
	defer geom.Close()
	if reproject {
		if err := geom.Reproject(dst); err != nil {
			return nil, fmt.Errorf("reproject: %w", err)
		}
	}
	g, err := fromGodal(geom)
	if err != nil {
		return nil, err
	}
	switch t := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{t}, nil
	case orb.MultiPolygon:
		return []orb.Polygon(t), nil
	}
	return nil, nil
}

// A PointFeature is a point read from a vector layer, with its attributes.
type PointFeature struct {
	// ID is 1-based and follows the layer's feature order.
	ID         int
	Point      orb.Point
	Properties map[string]interface{}
}

// ReadPoints reads every point feature of the first layer of path, reprojected
// to the canonical geographic reference.
func ReadPoints(path string) ([]PointFeature, error) {
	ds, err := godal.Open(path, godal.VectorOnly())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer ds.Close()
	layers := ds.Layers()
	if len(layers) == 0 {
		return nil, &GeometryTypeError{Path: path, Reason: "no layer found"}
	}
	layer := layers[0]
	dst, err := canonical()
	if err != nil {
		return nil, err
	}
	defer dst.Close()
	src := layer.SpatialRef()
	reproject := src != nil && !src.IsSame(dst)

	var points []PointFeature
	for {
		feat := layer.NextFeature()
		if feat == nil {
			break
		}
		pf, err := readPoint(feat, dst, reproject)
		feat.Close()
		if err != nil {
			return nil, fmt.Errorf("%s feature %d: %w", path, len(points)+1, err)
		}
		pf.ID = len(points) + 1
		points = append(points, pf)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%s: %w", path, tidepods.ErrNoPoints)
	}
	return points, nil
}

func readPoint(feat *godal.Feature, dst *godal.SpatialRef, reproject bool) (PointFeature, error) {
	geom := feat.Geometry()
	if geom == nil {
		return PointFeature{}, fmt.Errorf("no geometry")
	}
	defer geom.Close()
	if geom.Type() != godal.GTPoint {
		return PointFeature{}, fmt.Errorf("geometry type must be Point, not %s", geometryName(geom.Type()))
	}
	if reproject {
		if err := geom.Reproject(dst); err != nil {
			return PointFeature{}, fmt.Errorf("reproject: %w", err)
		}
	}
	g, err := fromGodal(geom)
	if err != nil {
		return PointFeature{}, err
	}
	p, ok := g.(orb.Point)
	if !ok {
		return PointFeature{}, fmt.Errorf("decoded %s, not a point", g.GeoJSONType())
	}
	props := map[string]interface{}{}
	for name, f := range feat.Fields() {
		switch f.Type() {
		case godal.FTInt, godal.FTInt64:
			props[name] = f.Int()
		case godal.FTReal:
			props[name] = f.Float()
		default:
			props[name] = f.String()
		}
	}
	return PointFeature{Point: p, Properties: props}, nil
}
