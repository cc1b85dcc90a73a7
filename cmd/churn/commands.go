// cmd/churn/commands.go
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/google/subcommands"
	"go.uber.org/zap"

	"github.com/David-Botos/churn-pipeline/pkg/cleaner"
	"github.com/David-Botos/churn-pipeline/pkg/config"
	"github.com/David-Botos/churn-pipeline/pkg/connector"
	"github.com/David-Botos/churn-pipeline/pkg/loader"
	"github.com/David-Botos/churn-pipeline/pkg/pipeline"
	"github.com/David-Botos/churn-pipeline/pkg/serving"
	"github.com/David-Botos/churn-pipeline/pkg/tracking"
)

// dataFlags are shared by the commands that read the training data
type dataFlags struct {
	input      string
	target     string
	threshold  float64
	testSize   float64
	experiment string
	tracking   string
	artifacts  string
}

func (d *dataFlags) register(f *flag.FlagSet) {
	f.StringVar(&d.input, "input", "", "path to the raw CSV; overrides DATA_PATH")
	f.StringVar(&d.target, "target", "", "target column; overrides TARGET_COLUMN")
	f.Float64Var(&d.threshold, "threshold", 0, "decision threshold in (0, 1); overrides THRESHOLD")
	f.Float64Var(&d.testSize, "test_size", 0, "held out fraction in (0, 1); overrides TEST_SIZE")
	f.StringVar(&d.experiment, "experiment", "", "experiment name; overrides EXPERIMENT_NAME")
	f.StringVar(&d.tracking, "tracking", "", "tracking directory for the file backend; overrides TRACKING_DIR")
	f.StringVar(&d.artifacts, "artifacts", "", "artifacts directory; overrides ARTIFACTS_DIR")
}

// apply copies the flags set on the command line over the configuration
func (d *dataFlags) apply(f *flag.FlagSet, cfg *config.Config) {
	f.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "input":
			cfg.Data.Source = config.SourceCSV
			cfg.Data.Path = d.input
		case "target":
			cfg.Training.Target = d.target
		case "threshold":
			cfg.Training.Threshold = d.threshold
		case "test_size":
			cfg.Training.TestSize = d.testSize
		case "experiment":
			cfg.Tracking.Experiment = d.experiment
		case "tracking":
			cfg.Tracking.Dir = d.tracking
		case "artifacts":
			cfg.ArtifactsDir = d.artifacts
		}
	})
}

func loggerFrom(args []interface{}) *zap.Logger {
	for _, a := range args {
		if l, ok := a.(*zap.Logger); ok {
			return l
		}
	}
	return zap.L()
}

// loadConfig reads the environment and applies the command flags
func loadConfig(f *flag.FlagSet, d *dataFlags) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if d != nil {
		d.apply(f, cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// setup opens the configured connections and builds a runner. The returned
// function closes the connections.
func setup(ctx context.Context, cfg *config.Config, opts pipeline.Options, logger *zap.Logger) (*pipeline.Runner, func(), error) {
	conns, err := connector.NewConnectorFactory(cfg, logger).CreateAllConnectors(ctx)
	if err != nil {
		return nil, nil, err
	}

	var pgDB, cleaningDB *sql.DB
	if conns.Postgres != nil {
		pgDB = conns.Postgres.DB()
	}
	if cfg.Cleaning.RecordOperations {
		cleaningDB = pgDB
	}

	dc, err := cleaner.NewDataCleaner(cleaningDB, logger, cleaner.Options{
		IdentifierColumns: cfg.Cleaning.IdentifierColumns,
		NumericColumns:    cfg.Cleaning.NumericColumns,
		ZeroFillColumns:   cfg.Cleaning.ZeroFillColumns,
	})
	if err != nil {
		conns.Close()
		return nil, nil, err
	}

	tracker, err := tracking.NewTracker(ctx, cfg.Tracking, pgDB, logger)
	if err != nil {
		conns.Close()
		return nil, nil, err
	}

	deps := pipeline.Dependencies{
		Cleaner:  dc,
		Tracker:  tracker,
		Loader:   loader.NewLoader(logger, cfg.ChunkSize),
		Source:   conns.Source,
		Postgres: conns.Postgres,
	}

	runner, err := pipeline.NewRunner(opts, deps, logger)
	if err != nil {
		conns.Close()
		return nil, nil, err
	}
	return runner, conns.Close, nil
}

func fail(logger *zap.Logger, msg string, err error) subcommands.ExitStatus {
	logger.Error(msg, zap.Error(err))
	return subcommands.ExitFailure
}

type prepareCmd struct {
	data   dataFlags
	output string
}

func (*prepareCmd) Name() string     { return "prepare" }
func (*prepareCmd) Synopsis() string { return "clean and encode the raw dataset" }
func (*prepareCmd) Usage() string {
	return `prepare [-input raw.csv] [-output processed.csv]:
  Load the raw dataset, clean it, one-hot encode it and write the processed file.
`
}

func (c *prepareCmd) SetFlags(f *flag.FlagSet) {
	c.data.register(f)
	f.StringVar(&c.output, "output", "", "processed CSV path; overrides PROCESSED_PATH")
}

func (c *prepareCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	logger := loggerFrom(args)
	cfg, err := loadConfig(f, &c.data)
	if err != nil {
		return fail(logger, "Invalid configuration", err)
	}
	if c.output != "" {
		cfg.Data.ProcessedPath = c.output
	}

	runner, closeConns, err := setup(ctx, cfg, pipeline.OptionsFromConfig(cfg), logger)
	if err != nil {
		return fail(logger, "Setup failed", err)
	}
	defer closeConns()

	res, err := runner.Prepare(ctx)
	fmt.Println(runner.Metrics().GenerateMetricsReport())
	if err != nil {
		return fail(logger, "Prepare failed", err)
	}
	fmt.Printf("Processed %d rows into %d features: %s\n", res.Matrix.Rows(), res.Matrix.Width(), res.Path)
	return subcommands.ExitSuccess
}

type trainCmd struct {
	data   dataFlags
	params string
}

func (*trainCmd) Name() string     { return "train" }
func (*trainCmd) Synopsis() string { return "train the churn model and save its artifacts" }
func (*trainCmd) Usage() string {
	return `train [-input raw.csv] [-threshold 0.35] [-params artifacts/best_params.json]:
  Validate, encode and split the data, fit the booster, evaluate it at the
  decision threshold and save the contract and the model.
`
}

func (c *trainCmd) SetFlags(f *flag.FlagSet) {
	c.data.register(f)
	f.StringVar(&c.params, "params", "", "booster parameters written by tune")
}

func (c *trainCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	logger := loggerFrom(args)
	cfg, err := loadConfig(f, &c.data)
	if err != nil {
		return fail(logger, "Invalid configuration", err)
	}

	opts := pipeline.OptionsFromConfig(cfg)
	if c.params != "" {
		if opts.Params, err = pipeline.LoadParams(c.params, opts.Params); err != nil {
			return fail(logger, "Failed to load parameters", err)
		}
		logger.Info("Using tuned parameters", zap.String("path", c.params))
	}

	runner, closeConns, err := setup(ctx, cfg, opts, logger)
	if err != nil {
		return fail(logger, "Setup failed", err)
	}
	defer closeConns()

	res, err := runner.Train(ctx)
	fmt.Println(runner.Metrics().GenerateMetricsReport())
	if err != nil {
		return fail(logger, "Training failed", err)
	}

	fmt.Printf("Run %s\n\n%s\n", res.RunID, res.Report)
	fmt.Printf("Contract: %s\nModel:    %s\n", res.ContractPath, res.ModelPath)
	return subcommands.ExitSuccess
}

type tuneCmd struct {
	data   dataFlags
	trials int
	folds  int
}

func (*tuneCmd) Name() string     { return "tune" }
func (*tuneCmd) Synopsis() string { return "search booster parameters by cross-validated recall" }
func (*tuneCmd) Usage() string {
	return `tune [-trials 20] [-folds 3]:
  Score random parameter sets with stratified k-fold recall on the training
  split and save the best set for train -params.
`
}

func (c *tuneCmd) SetFlags(f *flag.FlagSet) {
	c.data.register(f)
	f.IntVar(&c.trials, "trials", 0, "number of parameter sets; overrides TUNE_TRIALS")
	f.IntVar(&c.folds, "folds", 0, "cross-validation folds; overrides TUNE_FOLDS")
}

func (c *tuneCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	logger := loggerFrom(args)
	cfg, err := loadConfig(f, &c.data)
	if err != nil {
		return fail(logger, "Invalid configuration", err)
	}
	if c.trials > 0 {
		cfg.Tuning.Trials = c.trials
	}
	if c.folds > 0 {
		cfg.Tuning.Folds = c.folds
	}
	if err := cfg.Validate(); err != nil {
		return fail(logger, "Invalid configuration", err)
	}

	runner, closeConns, err := setup(ctx, cfg, pipeline.OptionsFromConfig(cfg), logger)
	if err != nil {
		return fail(logger, "Setup failed", err)
	}
	defer closeConns()

	summary, err := runner.Tune(ctx)
	fmt.Println(runner.Metrics().GenerateMetricsReport())
	if err != nil {
		return fail(logger, "Tuning failed", err)
	}

	fmt.Printf("Best recall %.3f after %d trials (%d failed)\n",
		summary.Best.Score, summary.Successful+summary.Failed, summary.Failed)
	fmt.Printf("Parameters: %s\n", filepath.Join(cfg.ArtifactsDir, pipeline.BestParamsFile))
	return subcommands.ExitSuccess
}

type serveCmd struct {
	addr      string
	artifacts string
	threshold float64
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve predictions over HTTP" }
func (*serveCmd) Usage() string {
	return `serve [-addr :8000] [-artifacts dir]:
  Load the contract and the model from the artifacts directory and serve
  /predict, /ui and /metrics until interrupted.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.addr, "addr", "", "listen address; overrides HTTP_ADDR")
	f.StringVar(&c.artifacts, "artifacts", "", "artifacts directory; overrides ARTIFACTS_DIR")
	f.Float64Var(&c.threshold, "threshold", 0, "decision threshold in (0, 1); overrides THRESHOLD")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	logger := loggerFrom(args)
	cfg, err := loadConfig(f, nil)
	if err != nil {
		return fail(logger, "Invalid configuration", err)
	}
	if c.addr != "" {
		cfg.Serving.Addr = c.addr
	}
	if c.artifacts != "" {
		cfg.ArtifactsDir = c.artifacts
	}
	if c.threshold != 0 {
		cfg.Training.Threshold = c.threshold
	}

	predictor, err := serving.LoadPredictor(
		filepath.Join(cfg.ArtifactsDir, pipeline.ContractFile),
		filepath.Join(cfg.ArtifactsDir, pipeline.ModelFile),
		cfg.Training.Threshold,
		logger,
	)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Error("Artifacts not found, run train first", zap.String("dir", cfg.ArtifactsDir))
		}
		return fail(logger, "Failed to load predictor", err)
	}

	server, err := serving.NewServer(cfg.Serving, predictor, logger)
	if err != nil {
		return fail(logger, "Failed to build server", err)
	}
	if err := server.ListenAndServe(ctx); err != nil {
		return fail(logger, "Server failed", err)
	}
	return subcommands.ExitSuccess
}
