package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/DHI-GRAS/tidepods"
	"github.com/DHI-GRAS/tidepods/internal/engine"
	"github.com/DHI-GRAS/tidepods/internal/gis"
	"github.com/DHI-GRAS/tidepods/internal/log"
	"github.com/DHI-GRAS/tidepods/internal/output"
	"github.com/DHI-GRAS/tidepods/internal/sentinel2"
	"github.com/paulmach/orb"
	"github.com/tbonfort/gobs"
	"go.uber.org/zap"
)

// TimeField is the point attribute holding the acquisition time in icesat2
// mode, formatted as TimeLayout.
const (
	TimeField  = "time"
	TimeLayout = "2006-01-02 15:04"
)

// timeLayouts also accepts the way GDAL formats date-time fields it detected.
var timeLayouts = []string{TimeLayout, "2006-01-02 15:04:05", "2006/01/02 15:04:05", "2006/01/02 15:04"}

// ErrNoAcquisitionTime is returned when no acquisition time can be derived
// for a point layer.
var ErrNoAcquisitionTime = errors.New("no acquisition time")

// aoi holds the sampled area of a run.
type aoi struct {
	footprint tidepods.Footprint
	points    []tidepods.SamplePoint
	land      *tidepods.LandMask
}

func (p *Pipeline) sampleFootprint(ctx context.Context, mode string, fp tidepods.Footprint, opts Options) (*aoi, error) {
	a := &aoi{footprint: fp}
	err := p.stage(ctx, mode, "sample", func() error {
		var err error
		a.points, err = tidepods.Sample(fp, opts.Spacing, opts.Edge)
		return err
	})
	if err != nil {
		return nil, err
	}
	if opts.LandMask != "" {
		err = p.stage(ctx, mode, "land_mask", func() error {
			land, err := gis.LoadLandMask(opts.LandMask, fp)
			a.land = &land
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	log.Logger(ctx).Debug("sampled footprint", zap.Int("points", len(a.points)),
		zap.Float64s("bound", []float64{fp.Bound().Min[0], fp.Bound().Min[1], fp.Bound().Max[0], fp.Bound().Max[1]}))
	return a, nil
}

func (p *Pipeline) resolve(ctx context.Context, mode, path string, opts Options) (*aoi, error) {
	var fp tidepods.Footprint
	err := p.stage(ctx, mode, "resolve", func() error {
		var err error
		fp, err = gis.NewResolver(opts.Buffer).Resolve(path)
		return err
	})
	if err != nil {
		return nil, err
	}
	a, err := p.sampleFootprint(ctx, mode, fp, opts)
	if err != nil {
		return nil, fmt.Errorf("aoi %s: %w", path, err)
	}
	return a, nil
}

func (p *Pipeline) values(ctx context.Context, mode, scratch, name string, at time.Time, points []tidepods.SamplePoint, level tidepods.Level) ([]tidepods.TideValue, error) {
	var series *engine.Series
	err := p.stage(ctx, mode, "engine", func() error {
		var err error
		series, err = p.predict(ctx, scratch, name, at, points)
		return err
	})
	if err != nil {
		return nil, err
	}
	var values []tidepods.TideValue
	err = p.stage(ctx, mode, "extract", func() error {
		var err error
		values, err = p.extract(series, at, level)
		return err
	})
	return values, err
}

// surface rasterizes the values of a, masks land and resamples onto target
// when it is not nil, then writes the result to path.
func (p *Pipeline) surface(ctx context.Context, mode string, a *aoi, values []tidepods.TideValue, target *tidepods.GridDef, opts Options, path string) error {
	return p.stage(ctx, mode, "surface", func() error {
		s, err := tidepods.Rasterize(a.footprint, a.points, scalars(values), opts.CellSize)
		if err != nil {
			return err
		}
		if a.land != nil {
			s = tidepods.Mask(s, *a.land, a.footprint)
		}
		if target != nil {
			var trn tidepods.CoordTransformer
			if target.CRS != s.CRS {
				t, err := gis.NewTransformer(target.CRS, s.CRS)
				if err != nil {
					return err
				}
				defer t.Close()
				trn = t
			}
			if s, err = tidepods.Resample(s, *target, trn); err != nil {
				return err
			}
		}
		if opts.COG {
			return gis.WriteCOG(path, s)
		}
		return gis.WriteGeoTIFF(path, s)
	})
}

func (p *Pipeline) writePoints(ctx context.Context, mode string, a *aoi, values []tidepods.TideValue, path string) error {
	return p.stage(ctx, mode, "write", func() error {
		fc, err := output.SamplePoints(a.points, values)
		if err != nil {
			return err
		}
		return output.WriteGeoJSON(path, fc)
	})
}

// RunAOI predicts tide values at the acquisition instant at over a raster or
// vector AOI. It writes a point layer and, when opts.Surface is set, a
// geographic surface.
func (p *Pipeline) RunAOI(ctx context.Context, path string, at time.Time, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	name := opts.Name
	if name == "" {
		name = stem(path)
	}
	return p.run(ctx, ModeAOI, func(ctx context.Context, scratch, outDir string) (int, []string, error) {
		a, err := p.resolve(ctx, ModeAOI, path, opts)
		if err != nil {
			return 0, nil, err
		}
		values, err := p.values(ctx, ModeAOI, scratch, name, at, a.points, opts.Level)
		if err != nil {
			return 0, nil, err
		}
		base := filepath.Join(outDir, fmt.Sprintf("%s.tides.%s", name, opts.Level))
		files := []string{base + ".geojson"}
		if err := p.writePoints(ctx, ModeAOI, a, values, files[0]); err != nil {
			return 0, nil, err
		}
		if opts.Surface {
			var target *tidepods.GridDef
			if opts.TargetRes > 0 {
				g, err := tidepods.GeographicGrid(a.footprint.Bound(), opts.TargetRes)
				if err != nil {
					return 0, nil, err
				}
				target = &g
			}
			files = append(files, base+".tif")
			if err := p.surface(ctx, ModeAOI, a, values, target, opts, files[1]); err != nil {
				return 0, nil, err
			}
		}
		return len(a.points), files, nil
	})
}

// RunSentinel2 predicts tide values at the sensing time of a Sentinel-2 SAFE
// product and writes a point layer and a surface on the product's 10m grid.
func (p *Pipeline) RunSentinel2(ctx context.Context, safe string, opts Options) (*Result, error) {
	opts.Surface = true
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	return p.run(ctx, ModeSentinel2, func(ctx context.Context, scratch, outDir string) (int, []string, error) {
		var md *sentinel2.Metadata
		err := p.stage(ctx, ModeSentinel2, "metadata", func() error {
			var err error
			md, err = p.Metadata.Load(ctx, safe)
			return err
		})
		if err != nil {
			return 0, nil, err
		}
		ctx = log.With(ctx, zap.String("tile_id", md.TileID))
		var fp tidepods.Footprint
		err = p.stage(ctx, ModeSentinel2, "resolve", func() error {
			var err error
			fp, err = gis.FromGrid(md.Grid, opts.Buffer)
			return err
		})
		if err != nil {
			return 0, nil, fmt.Errorf("tile %s: %w", md.TileID, err)
		}
		a, err := p.sampleFootprint(ctx, ModeSentinel2, fp, opts)
		if err != nil {
			return 0, nil, fmt.Errorf("tile %s: %w", md.TileID, err)
		}
		name := opts.Name
		if name == "" {
			name = safeName(md.TileID)
		}
		values, err := p.values(ctx, ModeSentinel2, scratch, name, md.SensingTime, a.points, opts.Level)
		if err != nil {
			return 0, nil, err
		}
		base := filepath.Join(outDir, fmt.Sprintf("%s.tides.%s", name, opts.Level))
		files := []string{base + ".geojson", base + ".tif"}
		if err := p.writePoints(ctx, ModeSentinel2, a, values, files[0]); err != nil {
			return 0, nil, err
		}
		if err := p.surface(ctx, ModeSentinel2, a, values, &md.Grid, opts, files[1]); err != nil {
			return 0, nil, err
		}
		return len(a.points), files, nil
	})
}

// acquisitionTime reads the acquisition time of the first feature.
func acquisitionTime(feats []gis.PointFeature) (time.Time, error) {
	v, ok := feats[0].Properties[TimeField]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: first point has no %q attribute", ErrNoAcquisitionTime, TimeField)
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: attribute %q is not a string", ErrNoAcquisitionTime, TimeField)
	}
	for _, layout := range timeLayouts {
		if at, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return at, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid %q value %q, expecting %s", ErrNoAcquisitionTime, TimeField, s, TimeLayout)
}

// RunPoints predicts tide values for every point of an existing point layer
// and writes the points back with their attributes and a tide_level
// attribute. All points share the acquisition time of the first one unless
// opts.At is set.
func (p *Pipeline) RunPoints(ctx context.Context, path string, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	name := opts.Name
	if name == "" {
		name = stem(path)
	}
	return p.run(ctx, ModePoints, func(ctx context.Context, scratch, outDir string) (int, []string, error) {
		var feats []gis.PointFeature
		err := p.stage(ctx, ModePoints, "read", func() error {
			var err error
			feats, err = gis.ReadPoints(path)
			return err
		})
		if err != nil {
			return 0, nil, err
		}
		at := opts.At
		if at.IsZero() {
			if at, err = acquisitionTime(feats); err != nil {
				return 0, nil, fmt.Errorf("%s: %w", path, err)
			}
		}
		points := make([]tidepods.SamplePoint, len(feats))
		locs := make([]orb.Point, len(feats))
		props := make([]map[string]interface{}, len(feats))
		for i, f := range feats {
			points[i] = tidepods.SamplePoint{ID: f.ID, X: f.Point[0], Y: f.Point[1]}
			locs[i] = f.Point
			props[i] = f.Properties
		}
		values, err := p.values(ctx, ModePoints, scratch, name, at, points, opts.Level)
		if err != nil {
			return 0, nil, err
		}
		out := filepath.Join(outDir, fmt.Sprintf("%s_%s_tides.geojson", name, opts.Level))
		err = p.stage(ctx, ModePoints, "write", func() error {
			fc, err := output.AnnotatePoints(locs, props, scalars(values))
			if err != nil {
				return err
			}
			return output.WriteGeoJSON(out, fc)
		})
		if err != nil {
			return 0, nil, err
		}
		return len(points), []string{out}, nil
	})
}

// RunSeries predicts the full year of tide values for every sample point of an
// AOI and writes them as a CSV table.
func (p *Pipeline) RunSeries(ctx context.Context, path string, year int, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if year < 1 || year > 9999 {
		return nil, fmt.Errorf("invalid year %d", year)
	}
	opts = opts.withDefaults()
	name := opts.Name
	if name == "" {
		name = stem(path)
	}
	return p.run(ctx, ModeSeries, func(ctx context.Context, scratch, outDir string) (int, []string, error) {
		a, err := p.resolve(ctx, ModeSeries, path, opts)
		if err != nil {
			return 0, nil, err
		}
		at := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		var series *engine.Series
		err = p.stage(ctx, ModeSeries, "engine", func() error {
			var err error
			series, err = p.predict(ctx, scratch, name, at, a.points)
			return err
		})
		if err != nil {
			return 0, nil, err
		}
		var tbl *output.SeriesTable
		err = p.stage(ctx, ModeSeries, "extract", func() error {
			var err error
			tbl, err = p.table(series, a.points, opts.Level)
			return err
		})
		if err != nil {
			return 0, nil, err
		}
		out := filepath.Join(outDir, fmt.Sprintf("%s.series.%s.csv", name, opts.Level))
		if err := p.stage(ctx, ModeSeries, "write", func() error { return tbl.WriteFile(out) }); err != nil {
			return 0, nil, err
		}
		return len(a.points), []string{out}, nil
	})
}

// table converts every step of s to the requested level.
func (p *Pipeline) table(s *engine.Series, points []tidepods.SamplePoint, level tidepods.Level) (*output.SeriesTable, error) {
	ix, err := tidepods.NewIndexer(s.Descriptor())
	if err != nil {
		return nil, err
	}
	steps := s.Steps()
	tbl := &output.SeriesTable{
		Times:  make([]time.Time, steps),
		IDs:    make([]int, len(points)),
		Values: make([][]float64, steps),
	}
	for i, pt := range points {
		tbl.IDs[i] = pt.ID
	}
	batch := gobs.NewPool(p.workers()).Batch()
	for step := 0; step < steps; step++ {
		batch.Submit(func() error {
			row := make([]float64, s.Items)
			for i := range row {
				v, err := tidepods.Extract(s.Value(step, i), s.Minimums[i], level)
				if err != nil {
					return err
				}
				row[i] = v.Value
			}
			tbl.Times[step] = ix.Step(step)
			tbl.Values[step] = row
			return nil
		})
	}
	if err := batch.Wait(); err != nil {
		return nil, err
	}
	return tbl, nil
}
