// Package pipeline sequences footprint resolution, sampling, engine
// prediction, value extraction and output writing for each tidepods mode.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DHI-GRAS/tidepods"
	"github.com/DHI-GRAS/tidepods/internal/engine"
	"github.com/DHI-GRAS/tidepods/internal/log"
	"github.com/DHI-GRAS/tidepods/internal/metrics"
	"github.com/DHI-GRAS/tidepods/internal/sentinel2"
	"github.com/DHI-GRAS/tidepods/internal/storage"
	"github.com/google/uuid"
	"github.com/tbonfort/gobs"
	"go.uber.org/zap"
)

// Modes.
const (
	ModeAOI       = "aoi"
	ModeSentinel2 = "s2"
	ModePoints    = "icesat2"
	ModeSeries    = "series"
)

// extractChunk is the number of points a single extraction job handles.
const extractChunk = 512

// A Pipeline runs tidepods modes. Every run owns a scratch directory under
// WorkDir which is removed when the run ends.
type Pipeline struct {
	Predictor *engine.Predictor
	Publisher *storage.Publisher
	// Metrics may be nil.
	Metrics *metrics.Recorder
	// Metadata reads Sentinel-2 products. A nil loader reads local ones only.
	Metadata *sentinel2.Loader
	WorkDir  string
	Workers  int
}

// Options tune a run. Zero numeric values are replaced by package defaults;
// the edge policy is taken as is, see DefaultOptions.
type Options struct {
	Level tidepods.Level
	// Buffer, in degrees, applied to the AOI footprint. Negative disables.
	Buffer  float64
	Spacing float64
	Edge    tidepods.EdgePolicy
	// CellSize of rasterized surfaces, in degrees.
	CellSize float64
	// LandMask is an optional vector file of land polygons.
	LandMask string
	// Surface requests a raster surface in aoi mode.
	Surface bool
	// TargetRes resamples aoi surfaces to a geographic grid of this resolution.
	TargetRes float64
	// COG writes surfaces as Cloud Optimized GeoTIFFs.
	COG bool
	// At overrides the acquisition instant in icesat2 mode.
	At time.Time
	// Name overrides the output file stem.
	Name string
}

// DefaultOptions returns the options a mode runs with, leaving only the level
// to be chosen.
func DefaultOptions(mode string) Options {
	o := Options{
		Buffer:   tidepods.DefaultBuffer,
		Spacing:  tidepods.DefaultSpacing,
		CellSize: tidepods.DefaultCellSize,
	}
	if mode == ModeSentinel2 {
		o.Edge = tidepods.EdgeCentered
	}
	return o
}

// NoBuffer disables footprint buffering.
const NoBuffer = -1.0

// Validate checks the options of a run.
func (o Options) Validate() error {
	if _, err := tidepods.ParseLevel(string(o.Level)); err != nil {
		return err
	}
	if o.Name != "" && !engine.ValidName(o.Name) {
		return fmt.Errorf("invalid name %q, expecting letters, digits, '_', '-' or '.'", o.Name)
	}
	// aligned samples never fall in the first column of a surface
	if o.Surface && o.Edge != tidepods.EdgeCentered {
		return fmt.Errorf("surfaces need the %s edge policy, got %s", tidepods.EdgeCentered, o.Edge)
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.Buffer == 0 {
		o.Buffer = tidepods.DefaultBuffer
	} else if o.Buffer < 0 {
		o.Buffer = 0
	}
	if o.Spacing == 0 {
		o.Spacing = tidepods.DefaultSpacing
	}
	if o.CellSize == 0 {
		o.CellSize = tidepods.DefaultCellSize
	}
	return o
}

// A Result describes a completed run.
type Result struct {
	RunID  string
	Points int
	// Files are the published output locations.
	Files []string
}

type runFunc func(ctx context.Context, scratch, outDir string) (points int, files []string, err error)

// run creates the scratch directory, calls fn and publishes the files it
// produced. Nothing is published if fn fails.
func (p *Pipeline) run(ctx context.Context, mode string, fn runFunc) (res *Result, err error) {
	id := uuid.New().String()
	ctx = log.With(ctx, zap.String("run_id", id), zap.String("mode", mode))
	defer func() { p.Metrics.Done(mode, err) }()

	if p.WorkDir != "" {
		if err := os.MkdirAll(p.WorkDir, 0o755); err != nil {
			return nil, fmt.Errorf("create work dir: %w", err)
		}
	}
	scratch, err := os.MkdirTemp(p.WorkDir, "tidepods-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)
	outDir := filepath.Join(scratch, "out")
	if err := os.Mkdir(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	st := time.Now()
	log.Logger(ctx).Debug("run start", zap.String("scratch", scratch))
	n, files, err := fn(ctx, scratch, outDir)
	if err != nil {
		return nil, err
	}
	p.Metrics.Points(mode, n)

	done := p.Metrics.Stage(mode, "publish")
	urls, err := p.Publisher.Publish(ctx, files)
	done()
	if err != nil {
		return nil, err
	}
	log.Logger(ctx).Info("run done", zap.Int("points", n), zap.Strings("files", urls),
		zap.Duration("elapsed", time.Since(st)))
	return &Result{RunID: id, Points: n, Files: urls}, nil
}

// stage wraps a pipeline step with timing and debug logging.
func (p *Pipeline) stage(ctx context.Context, mode, name string, fn func() error) error {
	l := log.Logger(ctx).With(zap.String("stage", name))
	l.Debug("stage start")
	done := p.Metrics.Stage(mode, name)
	err := fn()
	done()
	if err != nil {
		l.Debug("stage failed", zap.Error(err))
		return err
	}
	l.Debug("stage done")
	return nil
}

// predict runs the engine and records its outcome.
func (p *Pipeline) predict(ctx context.Context, dir, name string, at time.Time, points []tidepods.SamplePoint) (*engine.Series, error) {
	s, err := p.Predictor.Predict(ctx, dir, name, at, points)
	switch {
	case err == nil:
		p.Metrics.Engine(metrics.OutcomeSuccess)
	case errors.Is(err, engine.ErrEngineNotFound):
		p.Metrics.Engine(metrics.OutcomeNotFound)
	case errors.Is(err, engine.ErrNoOutput):
		p.Metrics.Engine(metrics.OutcomeNoOutput)
	}
	return s, err
}

func (p *Pipeline) workers() int {
	if p.Workers <= 0 {
		return 1
	}
	return p.Workers
}

// extract returns the value of every series item at the step of at. The
// series descriptor is indexed once for all items.
func (p *Pipeline) extract(s *engine.Series, at time.Time, level tidepods.Level) ([]tidepods.TideValue, error) {
	ix, err := tidepods.NewIndexer(s.Descriptor())
	if err != nil {
		return nil, err
	}
	step, err := ix.Index(at)
	if err != nil {
		return nil, err
	}
	values := make([]tidepods.TideValue, s.Items)
	batch := gobs.NewPool(p.workers()).Batch()
	for lo := 0; lo < s.Items; lo += extractChunk {
		hi := min(lo+extractChunk, s.Items)
		batch.Submit(func() error {
			for i := lo; i < hi; i++ {
				v, err := tidepods.Extract(s.Value(step, i), s.Minimums[i], level)
				if err != nil {
					return err
				}
				values[i] = v
			}
			return nil
		})
	}
	if err := batch.Wait(); err != nil {
		return nil, err
	}
	return values, nil
}

func scalars(values []tidepods.TideValue) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v.Value
	}
	return out
}

// stem returns the file name of path without its extension, usable as a
// request name.
func stem(path string) string {
	base := filepath.Base(filepath.Clean(path))
	return safeName(base[:len(base)-len(filepath.Ext(base))])
}

func safeName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			return r
		}
		return '_'
	}, s)
	if s == "" {
		return "tides"
	}
	return s
}
