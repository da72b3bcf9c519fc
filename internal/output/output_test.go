package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DHI-GRAS/tidepods"
	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSamplePoints(t *testing.T) {
	pts := []tidepods.SamplePoint{{ID: 1, X: 10.0625, Y: 55.0625}, {ID: 2, X: 10.0625, Y: 55.1875}}
	vals := []tidepods.TideValue{{Value: 1.25, Level: tidepods.LAT}, {Value: 0.5, Level: tidepods.LAT}}
	fc, err := SamplePoints(pts, vals)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	f := fc.Features[1]
	assert.Equal(t, orb.Point{10.0625, 55.1875}, f.Geometry)
	assert.Equal(t, geojson.Properties{"p_ID": 2, "LAT": 0.5, "level": "LAT"}, f.Properties)

	_, err = SamplePoints(pts, vals[:1])
	assert.Error(t, err)
}

func TestAnnotatePoints(t *testing.T) {
	props := []map[string]interface{}{{"time": "2020-07-14 10:30", "h": 2.0}}
	fc, err := AnnotatePoints([]orb.Point{{1, 2}}, props, []float64{0.75})
	require.NoError(t, err)
	assert.Equal(t, geojson.Properties{"time": "2020-07-14 10:30", "h": 2.0, "tide_level": 0.75}, fc.Features[0].Properties)
	assert.NotContains(t, props[0], TideField, "input attributes must not be modified")

	_, err = AnnotatePoints([]orb.Point{{1, 2}}, nil, []float64{0.75})
	assert.Error(t, err)
}

func TestWriteGeoJSON(t *testing.T) {
	fc, err := SamplePoints([]tidepods.SamplePoint{{ID: 7, X: 1, Y: 2}},
		[]tidepods.TideValue{{Value: -0.5, Level: tidepods.MSL}})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "tides.MSL.geojson")
	require.NoError(t, WriteGeoJSON(path, fc))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(b, &doc))
	feats := doc["features"].([]interface{})
	require.Len(t, feats, 1)
	props := feats[0].(map[string]interface{})["properties"]
	assert.Equal(t, map[string]interface{}{"p_ID": 7.0, "MSL": -0.5, "level": "MSL"}, props)
}

func TestSeriesCSV(t *testing.T) {
	start := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	tbl := &SeriesTable{
		Times:  []time.Time{start, start.Add(30 * time.Minute)},
		IDs:    []int{1, 2, 3},
		Values: [][]float64{{0, 1.5, -0.25}, {0.125, 1.75, 2}},
	}
	buf := bytes.Buffer{}
	require.NoError(t, tbl.WriteCSV(&buf))
	want := "time,p_1,p_2,p_3\n" +
		"2020-01-01T00:00:00Z,0.0000,1.5000,-0.2500\n" +
		"2020-01-01T00:30:00Z,0.1250,1.7500,2.0000\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}

	tbl.Values[1] = tbl.Values[1][:2]
	assert.Error(t, tbl.WriteCSV(&bytes.Buffer{}))
	tbl.Times = tbl.Times[:1]
	assert.Error(t, tbl.WriteCSV(&bytes.Buffer{}))
}

func TestSeriesWriteFile(t *testing.T) {
	tbl := &SeriesTable{Times: []time.Time{time.Unix(0, 0)}, IDs: []int{1}, Values: [][]float64{{1}}}
	path := filepath.Join(t.TempDir(), "series.csv")
	require.NoError(t, tbl.WriteFile(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "time,p_1\n1970-01-01T00:00:00Z,1.0000\n", string(b))
}
