package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/DHI-GRAS/tidepods/internal/config"
	"github.com/DHI-GRAS/tidepods/internal/engine"
	"github.com/DHI-GRAS/tidepods/internal/gis"
	"github.com/DHI-GRAS/tidepods/internal/log"
	"github.com/DHI-GRAS/tidepods/internal/metrics"
	"github.com/DHI-GRAS/tidepods/internal/pipeline"
	"github.com/DHI-GRAS/tidepods/internal/sentinel2"
	"github.com/DHI-GRAS/tidepods/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds the state shared by every subcommand.
type app struct {
	cfg *config.Config

	verbose     bool
	logJSON     bool
	envFile     string
	metricsFile string

	// flag overrides of the environment
	engineHome string
	engineCmd  string
	workDir    string
	workers    int

	stcl    *gcs.Client
	metrics *metrics.Recorder
	start   time.Time
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "tidepods",
		Short: "generate tide height points and surfaces for an area of interest",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd, args)
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			log.Logger(cmd.Context()).Sugar().Debugf("command %s took %.1fs",
				cmd.Name(), time.Since(a.start).Seconds())
		},
	}
	pf := root.PersistentFlags()
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	pf.BoolVar(&a.logJSON, "log-json", false, "structured json logs")
	pf.StringVar(&a.envFile, "env-file", "", "dotenv file to load before reading "+config.Prefix+"_* variables")
	pf.StringVar(&a.metricsFile, "metrics-file", "", "write run metrics to this prometheus textfile")
	pf.StringVar(&a.engineHome, "engine-home", "", "tide predictor installation directory (overrides "+config.Prefix+"_ENGINE_HOME)")
	pf.StringVar(&a.engineCmd, "engine-cmd", "", "command prefixed to the engine invocation, e.g. wine")
	pf.StringVar(&a.workDir, "work-dir", "", "directory scratch directories are created in")
	pf.IntVar(&a.workers, "workers", 0, "value extraction parallelism")

	root.AddCommand(
		newAOICommand(a),
		newSentinel2Command(a),
		newPointsCommand(a),
		newSeriesCommand(a),
		newWorkflowCommand(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	a.start = time.Now()
	if a.logJSON {
		log.Structured()
	}
	if a.verbose {
		log.SetLevel(zap.DebugLevel)
	}
	var err error
	if a.envFile != "" {
		a.cfg, err = config.Load(a.envFile)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("engine-home") {
		a.cfg.EngineHome = a.engineHome
	}
	if flags.Changed("engine-cmd") {
		a.cfg.EngineCommand = a.engineCmd
	}
	if flags.Changed("work-dir") {
		a.cfg.WorkDir = a.workDir
	}
	if flags.Changed("workers") {
		a.cfg.Workers = a.workers
	}
	if a.metricsFile != "" {
		a.metrics = metrics.New()
	}
	gis.Register()
	return nil
}

// remote registers the gs:// handler when any of paths needs it.
func (a *app) remote(ctx context.Context, paths ...string) error {
	gs := false
	for _, p := range paths {
		if strings.HasPrefix(p, "gs://") {
			gs = true
		}
	}
	if !gs || a.stcl != nil {
		return nil
	}
	var err error
	if a.stcl, err = gcs.NewClient(ctx); err != nil {
		return fmt.Errorf("storage.newclient: %w", err)
	}
	return gis.RegisterGCS(ctx, a.stcl, a.cfg.GCSBlockSize, a.cfg.GCSNumBlocks)
}

// pipeline wires the engine, the publisher and the metrics of a run.
func (a *app) pipeline(ctx context.Context, output string) (*pipeline.Pipeline, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	inst, err := engine.Discover(a.cfg.EngineHome, engine.Installation{
		Executable:   a.cfg.EngineExecutable,
		Constituents: a.cfg.ConstituentsFile,
		Prepack:      a.cfg.PrepackFile,
	})
	if err != nil {
		return nil, err
	}
	proc, err := engine.NewProcess(inst.Executable, a.cfg.EngineCommand, a.cfg.EngineTimeout)
	if err != nil {
		return nil, err
	}
	loc, err := storage.ParseLocation(output)
	if err != nil {
		return nil, err
	}
	if loc.Scheme == storage.SchemeS3 {
		if err := a.cfg.ValidateS3(); err != nil {
			return nil, err
		}
	}
	pub, err := storage.Open(ctx, loc, storage.Clients{
		GCS: a.stcl,
		S3: storage.S3Config{
			Endpoint:  a.cfg.S3Endpoint,
			AccessKey: a.cfg.S3AccessKey,
			SecretKey: a.cfg.S3SecretKey,
			UseSSL:    a.cfg.S3UseSSL,
		},
	})
	if err != nil {
		return nil, err
	}
	log.Logger(ctx).Debug("engine installation", zap.String("executable", inst.Executable),
		zap.String("constituents", inst.Constituents), zap.String("prepack", inst.Prepack))
	return &pipeline.Pipeline{
		Predictor: &engine.Predictor{Installation: inst, Runner: proc},
		Publisher: pub,
		Metrics:   a.metrics,
		Metadata:  &sentinel2.Loader{GCS: a.stcl},
		WorkDir:   a.cfg.WorkDir,
		Workers:   a.cfg.Workers,
	}, nil
}

// report writes the metrics file and prints the published files.
func (a *app) report(cmd *cobra.Command, res *pipeline.Result, err error) error {
	ctx := cmd.Context()
	if a.metrics != nil {
		if merr := a.metrics.WriteFile(a.metricsFile); merr != nil {
			log.Logger(ctx).Warn("metrics not written", zap.Error(merr))
		}
	}
	if err != nil {
		return err
	}
	log.Logger(ctx).Info("run complete", zap.String("run_id", res.RunID), zap.Int("points", res.Points))
	for _, f := range res.Files {
		fmt.Fprintln(cmd.OutOrStdout(), f)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "tidepods:", err)
		stop()
		os.Exit(exitCode(err))
	}
}
