// Package output encodes tidepods results: point layers and series tables.
package output

import (
	"fmt"
	"os"

	"github.com/DHI-GRAS/tidepods"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Point layer attribute names.
const (
	IDField    = "p_ID"
	LevelField = "level"
	// TideField is added to annotated input points.
	TideField = "tide_level"
)

// SamplePoints builds the point layer of a sampled AOI. Each feature carries
// the point id, its value under a property named after the level, and the
// level tag.
func SamplePoints(points []tidepods.SamplePoint, values []tidepods.TideValue) (*geojson.FeatureCollection, error) {
	if len(points) != len(values) {
		return nil, fmt.Errorf("point layer: %d points for %d values", len(points), len(values))
	}
	fc := geojson.NewFeatureCollection()
	for i, p := range points {
		f := geojson.NewFeature(p.Point())
		f.Properties[IDField] = p.ID
		f.Properties[string(values[i].Level)] = values[i].Value
		f.Properties[LevelField] = string(values[i].Level)
		fc.Append(f)
	}
	return fc, nil
}

// AnnotatePoints copies input points and their attributes, adding the tide
// value under TideField.
func AnnotatePoints(points []orb.Point, props []map[string]interface{}, values []float64) (*geojson.FeatureCollection, error) {
	if len(points) != len(values) || len(points) != len(props) {
		return nil, fmt.Errorf("annotate: %d points, %d attribute sets, %d values", len(points), len(props), len(values))
	}
	fc := geojson.NewFeatureCollection()
	for i, p := range points {
		f := geojson.NewFeature(p)
		for k, v := range props[i] {
			f.Properties[k] = v
		}
		f.Properties[TideField] = values[i]
		fc.Append(f)
	}
	return fc, nil
}

// WriteGeoJSON writes fc to path.
func WriteGeoJSON(path string, fc *geojson.FeatureCollection) error {
	b, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
