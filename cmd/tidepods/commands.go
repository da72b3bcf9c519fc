package main

import (
	"fmt"
	"time"

	"github.com/DHI-GRAS/tidepods"
	"github.com/DHI-GRAS/tidepods/internal/pipeline"
	"github.com/DHI-GRAS/tidepods/internal/workflow"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// runFlags are shared by the commands running a pipeline.
type runFlags struct {
	level    string
	output   string
	landMask string
	cog      bool
	buffer   float64
	spacing  float64
	cellSize float64
	edge     string
	name     string
}

func (f *runFlags) register(fs *pflag.FlagSet, defaults pipeline.Options) {
	fs.StringVarP(&f.level, "level", "l", "", fmt.Sprintf("reference level, one of %v", tidepods.Levels))
	fs.StringVarP(&f.output, "output", "o", ".", "output directory, gs:// or s3:// location")
	fs.StringVarP(&f.landMask, "land-mask", "m", "", "vector file of land polygons masked out of surfaces")
	fs.BoolVar(&f.cog, "cog", false, "write surfaces as cloud optimized geotiffs")
	fs.Float64Var(&f.buffer, "buffer", defaults.Buffer, "footprint buffer in degrees, 0 or negative to disable")
	fs.Float64Var(&f.spacing, "spacing", defaults.Spacing, "sample point spacing in degrees")
	fs.Float64Var(&f.cellSize, "cell-size", defaults.CellSize, "surface cell size in degrees")
	fs.StringVar(&f.edge, "edge", defaults.Edge.String(), "sample grid edge policy, aligned or centered")
	fs.StringVar(&f.name, "name", "", "output file stem, defaults to the input name")
}

func (f *runFlags) options(mode string) (pipeline.Options, error) {
	o := pipeline.DefaultOptions(mode)
	var err error
	if o.Level, err = tidepods.ParseLevel(f.level); err != nil {
		return o, err
	}
	if o.Edge, err = tidepods.ParseEdgePolicy(f.edge); err != nil {
		return o, err
	}
	o.Buffer = f.buffer
	if o.Buffer == 0 {
		o.Buffer = pipeline.NoBuffer
	}
	o.Spacing = f.spacing
	o.CellSize = f.cellSize
	o.LandMask = f.landMask
	o.COG = f.cog
	o.Name = f.name
	return o, nil
}

func newRunCommand(mode string, rf *runFlags) *cobra.Command {
	cmd := &cobra.Command{}
	rf.register(cmd.Flags(), pipeline.DefaultOptions(mode))
	_ = cmd.MarkFlagRequired("level")
	return cmd
}

func newAOICommand(a *app) *cobra.Command {
	rf := &runFlags{}
	var date, clock string
	var surface bool
	var targetRes float64
	cmd := newRunCommand(pipeline.ModeAOI, rf)
	cmd.Use = "aoi <raster-or-vector>"
	cmd.Short = "tide heights over an area of interest at a given instant"
	cmd.Args = cobra.ExactArgs(1)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		at, err := time.ParseInLocation(pipeline.TimeLayout, date+" "+clock, time.UTC)
		if err != nil {
			return fmt.Errorf("invalid acquisition time %q %q, expecting YYYY-MM-DD and HH:MM: %w", date, clock, err)
		}
		opts, err := rf.options(pipeline.ModeAOI)
		if err != nil {
			return err
		}
		opts.Surface = surface
		opts.TargetRes = targetRes
		if surface && !cmd.Flags().Changed("edge") {
			opts.Edge = tidepods.EdgeCentered
		}
		if err := opts.Validate(); err != nil {
			return err
		}
		if err := a.remote(ctx, args[0], rf.landMask, rf.output); err != nil {
			return err
		}
		p, err := a.pipeline(ctx, rf.output)
		if err != nil {
			return err
		}
		res, err := p.RunAOI(ctx, args[0], at, opts)
		return a.report(cmd, res, err)
	}
	cmd.Flags().StringVar(&date, "date", "", "acquisition date, YYYY-MM-DD (UTC)")
	cmd.Flags().StringVar(&clock, "time", "00:00", "acquisition time of day, HH:MM (UTC)")
	cmd.Flags().BoolVar(&surface, "surface", false, "also write a raster surface, sampling with the centered edge policy")
	cmd.Flags().Float64Var(&targetRes, "target-res", 0, "resample the surface to this geographic resolution")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func newSentinel2Command(a *app) *cobra.Command {
	rf := &runFlags{}
	cmd := newRunCommand(pipeline.ModeSentinel2, rf)
	cmd.Use = "s2 <product.SAFE>"
	cmd.Short = "tide heights at the sensing time of a Sentinel-2 product, on its 10m grid"
	cmd.Args = cobra.ExactArgs(1)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		opts, err := rf.options(pipeline.ModeSentinel2)
		if err != nil {
			return err
		}
		if err := a.remote(ctx, args[0], rf.landMask, rf.output); err != nil {
			return err
		}
		p, err := a.pipeline(ctx, rf.output)
		if err != nil {
			return err
		}
		res, err := p.RunSentinel2(ctx, args[0], opts)
		return a.report(cmd, res, err)
	}
	return cmd
}

func newPointsCommand(a *app) *cobra.Command {
	rf := &runFlags{}
	var at string
	cmd := newRunCommand(pipeline.ModePoints, rf)
	cmd.Use = "icesat2 <points>"
	cmd.Short = "tide heights for every point of a point layer"
	cmd.Long = fmt.Sprintf("Annotates every point with a tide_level attribute. The acquisition time is "+
		"read from the %q attribute of the first point unless --at is given.", pipeline.TimeField)
	cmd.Args = cobra.ExactArgs(1)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		opts, err := rf.options(pipeline.ModePoints)
		if err != nil {
			return err
		}
		if at != "" {
			if opts.At, err = time.ParseInLocation(pipeline.TimeLayout, at, time.UTC); err != nil {
				return fmt.Errorf("invalid --at %q, expecting %q: %w", at, pipeline.TimeLayout, err)
			}
		}
		if err := a.remote(ctx, args[0], rf.output); err != nil {
			return err
		}
		p, err := a.pipeline(ctx, rf.output)
		if err != nil {
			return err
		}
		res, err := p.RunPoints(ctx, args[0], opts)
		return a.report(cmd, res, err)
	}
	cmd.Flags().StringVar(&at, "at", "", "acquisition time of every point, \"YYYY-MM-DD HH:MM\" (UTC)")
	return cmd
}

func newSeriesCommand(a *app) *cobra.Command {
	rf := &runFlags{}
	var year int
	cmd := newRunCommand(pipeline.ModeSeries, rf)
	cmd.Use = "series <raster-or-vector>"
	cmd.Short = "a full year of tide heights for the sample points of an area of interest"
	cmd.Args = cobra.ExactArgs(1)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		opts, err := rf.options(pipeline.ModeSeries)
		if err != nil {
			return err
		}
		if err := a.remote(ctx, args[0], rf.output); err != nil {
			return err
		}
		p, err := a.pipeline(ctx, rf.output)
		if err != nil {
			return err
		}
		res, err := p.RunSeries(ctx, args[0], year, opts)
		return a.report(cmd, res, err)
	}
	cmd.Flags().IntVar(&year, "year", 0, "calendar year to predict")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}

func newWorkflowCommand(a *app) *cobra.Command {
	c := workflow.DefaultConfig()
	var level string
	var shell bool
	cmd := &cobra.Command{
		Use:   "workflow <product.SAFE>...",
		Short: "print an argo workflow processing Sentinel-2 products in parallel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if c.Level, err = tidepods.ParseLevel(level); err != nil {
				return err
			}
			c.EngineHome = a.cfg.EngineHome
			if shell {
				fmt.Fprint(cmd.OutOrStdout(), workflow.Script(args, c))
				return nil
			}
			wf, err := workflow.Build(args, c)
			if err != nil {
				return err
			}
			yb, err := workflow.Marshal(wf)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(yb)
			return err
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&c.Image, "image", "", "tidepods container image")
	fs.StringVarP(&level, "level", "l", "", fmt.Sprintf("reference level, one of %v", tidepods.Levels))
	fs.StringVarP(&c.Output, "output", "o", "", "gs:// or s3:// output location")
	fs.StringVarP(&c.LandMask, "land-mask", "m", "", "land mask readable from the workflow pods")
	fs.BoolVar(&c.COG, "cog", false, "write surfaces as cloud optimized geotiffs")
	fs.BoolVar(&shell, "shell", false, "print one shell command per product instead of a workflow")
	fs.Int64Var(&c.Parallelism, "parallelism", 0, "maximum number of concurrent pods, 0 for unlimited")
	fs.IntVar(&c.Retries, "retries", c.Retries, "retries per product")
	fs.StringVar(&c.CPU, "cpu", c.CPU, "cpu request per pod")
	fs.StringVar(&c.Memory, "memory", c.Memory, "memory request per pod")
	fs.StringVar(&c.ScratchSize, "scratch-size", c.ScratchSize, "scratch volume size per pod")
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("level")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
