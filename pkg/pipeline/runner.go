// pkg/pipeline/runner.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/David-Botos/churn-pipeline/pkg/boost"
	"github.com/David-Botos/churn-pipeline/pkg/cleaner"
	"github.com/David-Botos/churn-pipeline/pkg/config"
	"github.com/David-Botos/churn-pipeline/pkg/connector"
	"github.com/David-Botos/churn-pipeline/pkg/evaluate"
	"github.com/David-Botos/churn-pipeline/pkg/features"
	"github.com/David-Botos/churn-pipeline/pkg/loader"
	"github.com/David-Botos/churn-pipeline/pkg/model"
	"github.com/David-Botos/churn-pipeline/pkg/tracking"
	"github.com/David-Botos/churn-pipeline/pkg/tuning"
	"github.com/David-Botos/churn-pipeline/pkg/validation"
)

// Artifact file names inside the artifacts directory
const (
	ContractFile   = "preprocessing.json"
	ModelFile      = "model.json"
	BestParamsFile = "best_params.json"
)

// ModelName is logged as the model parameter of every run
const ModelName = "gradient_boosting"

const reportDigits = 3

// ErrVerificationFailed is returned when a written dataset does not read back
// as the encoded matrix
var ErrVerificationFailed = errors.New("written dataset does not match the encoded matrix")

// Options configures a Runner
type Options struct {
	Source         string
	DataPath       string
	DataTable      string
	ProcessedPath  string
	ProcessedTable string
	ArtifactsDir   string
	Experiment     string

	Target    string
	Threshold float64
	TestSize  float64
	Seed      int64
	Params    boost.Params

	Trials      int
	Folds       int
	Workers     int
	SearchSpace tuning.SearchSpace

	RetryAttempts int
	RetryDelay    time.Duration
}

// OptionsFromConfig maps the application configuration onto runner options
func OptionsFromConfig(cfg *config.Config) Options {
	t := cfg.Training
	params := boost.DefaultParams()
	params.NEstimators = t.NEstimators
	params.LearningRate = t.LearningRate
	params.MaxDepth = t.MaxDepth
	params.Subsample = t.Subsample
	params.ColSampleByTree = t.ColSampleByTree
	params.MinChildWeight = t.MinChildWeight
	params.Lambda = t.Lambda
	params.Seed = t.Seed

	return Options{
		Source:         cfg.Data.Source,
		DataPath:       cfg.Data.Path,
		DataTable:      cfg.Data.Table,
		ProcessedPath:  cfg.Data.ProcessedPath,
		ProcessedTable: cfg.Data.ProcessedTable,
		ArtifactsDir:   cfg.ArtifactsDir,
		Experiment:     cfg.Tracking.Experiment,
		Target:         t.Target,
		Threshold:      t.Threshold,
		TestSize:       t.TestSize,
		Seed:           t.Seed,
		Params:         params,
		Trials:         cfg.Tuning.Trials,
		Folds:          cfg.Tuning.Folds,
		Workers:        cfg.WorkerPoolSize,
		SearchSpace:    tuning.DefaultSearchSpace(),
		RetryAttempts:  cfg.RetryAttempts,
		RetryDelay:     cfg.RetryDelay,
	}
}

// Dependencies are the collaborators of a Runner. A nil Cleaner falls back to
// one that records nothing; Source is needed only for database sources and
// Postgres only for a processed table.
type Dependencies struct {
	Cleaner  *cleaner.DataCleaner
	Tracker  tracking.Tracker
	Loader   *loader.Loader
	Source   connector.DatabaseConnector
	Postgres *connector.PostgresConnector
}

// Runner executes the prepare, train and tune commands. A Runner runs one
// command at a time.
type Runner struct {
	opts         Options
	loader       *loader.Loader
	cleaner      *cleaner.DataCleaner
	encoder      *features.Encoder
	tracker      tracking.Tracker
	source       connector.DatabaseConnector
	postgres     *connector.PostgresConnector
	verifier     *Verifier
	errorHandler *ErrorHandler
	metrics      *RunMetrics
	logger       *zap.Logger
}

// NewRunner checks the options against the dependencies and creates a runner
func NewRunner(opts Options, deps Dependencies, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch {
	case opts.Target == "":
		return nil, fmt.Errorf("%w: target column is required", config.ErrInvalidConfig)
	case opts.Source == config.SourceCSV && opts.DataPath == "":
		return nil, fmt.Errorf("%w: csv source needs a data path", config.ErrInvalidConfig)
	case opts.Source != config.SourceCSV && (deps.Source == nil || opts.DataTable == ""):
		return nil, fmt.Errorf("%w: %s source needs a connector and a table", config.ErrInvalidConfig, opts.Source)
	case opts.ProcessedTable != "" && deps.Postgres == nil:
		return nil, fmt.Errorf("%w: processed table needs a PostgreSQL connector", config.ErrInvalidConfig)
	case opts.ArtifactsDir == "":
		return nil, fmt.Errorf("%w: artifacts directory is required", config.ErrInvalidConfig)
	}

	dc := deps.Cleaner
	if dc == nil {
		var err error
		if dc, err = cleaner.NewDataCleaner(nil, logger, cleaner.DefaultOptions()); err != nil {
			return nil, err
		}
	}
	ld := deps.Loader
	if ld == nil {
		ld = loader.NewLoader(logger, 0)
	}

	r := &Runner{
		opts:     opts,
		loader:   ld,
		cleaner:  dc,
		encoder:  features.NewEncoder(features.DefaultMappings(), logger),
		tracker:  deps.Tracker,
		source:   deps.Source,
		postgres: deps.Postgres,
		verifier: NewVerifier(logger),
		logger:   logger.Named("pipeline"),
	}
	r.reset()
	return r, nil
}

// Metrics returns the metrics of the last command
func (r *Runner) Metrics() *RunMetrics {
	return r.metrics
}

// Errors returns the error handler of the last command
func (r *Runner) Errors() *ErrorHandler {
	return r.errorHandler
}

func (r *Runner) reset() {
	r.metrics = NewRunMetrics(r.logger)
	r.errorHandler = NewErrorHandler(r.logger, r.opts.RetryAttempts)
}

// runStage executes fn as a named stage. Storage failures are retried after
// the configured delay; an optional stage that keeps failing is skipped.
func (r *Runner) runStage(ctx context.Context, name string, optional bool, fn func() (int, error)) error {
	r.metrics.StartStage(name)
	for attempt := 0; ; attempt++ {
		rows, err := fn()
		if err == nil {
			r.metrics.EndStage(name, rows, nil)
			return nil
		}

		record := NewErrorRecord(err, r.errorHandler.CategorizeError(err)).
			WithStage(name).
			WithRetry(attempt)
		if optional {
			record = record.WithOptional()
		}
		r.metrics.RecordError(record.Category)

		action := r.errorHandler.HandleError(record)
		if action == ActionRetry {
			if werr := r.wait(ctx); werr != nil {
				r.metrics.EndStage(name, 0, werr)
				return werr
			}
			continue
		}
		if optional && action != ActionAbort {
			r.metrics.SkipStage(name, err.Error())
			return nil
		}
		r.metrics.EndStage(name, 0, err)
		return fmt.Errorf("%s stage failed: %w", name, err)
	}
}

func (r *Runner) wait(ctx context.Context) error {
	if r.opts.RetryDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(r.opts.RetryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Runner) load(ctx context.Context) (*model.Dataset, error) {
	var ds *model.Dataset
	err := r.runStage(ctx, StageLoad, false, func() (int, error) {
		var err error
		if r.opts.Source == config.SourceCSV {
			ds, err = r.loader.LoadCSV(r.opts.DataPath)
		} else {
			ds, err = r.loader.LoadTable(ctx, r.source, r.opts.DataTable)
		}
		if err != nil {
			return 0, err
		}
		return ds.Len(), nil
	})
	return ds, err
}

func (r *Runner) validate(ctx context.Context, run *tracking.Run, ds *model.Dataset) (*validation.Report, error) {
	var report *validation.Report
	err := r.runStage(ctx, StageValidate, false, func() (int, error) {
		report = validation.ValidateDataset(ds, r.logger)
		pass := 0.0
		if report.Success {
			pass = 1
		}
		if err := run.LogMetric(ctx, "data_quality_pass", pass); err != nil {
			return 0, err
		}
		if report.Success {
			return ds.Len(), nil
		}
		if err := run.LogJSON(ctx, "failed_expectations.json", report); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %s", ErrQualityGate, strings.Join(report.Failed, ", "))
	})
	return report, err
}

func (r *Runner) preprocess(ctx context.Context, ds *model.Dataset) (*model.Dataset, []model.CleaningOperation, error) {
	var (
		out *model.Dataset
		ops []model.CleaningOperation
	)
	err := r.runStage(ctx, StagePreprocess, false, func() (int, error) {
		var err error
		out, ops, err = r.cleaner.Preprocess(ctx, ds, r.opts.Target)
		if err != nil && out != nil {
			// The data is usable, only recording the operations failed
			r.errorHandler.RecordError(NewErrorRecord(err, ErrorCategoryStorage).
				WithStage(StagePreprocess).
				WithOptional())
			r.logger.Warn("Cleaning operations were not recorded", zap.Error(err))
			err = nil
		}
		if err != nil {
			return 0, err
		}
		return out.Len(), nil
	})
	return out, ops, err
}

func (r *Runner) encode(ctx context.Context, ds *model.Dataset) (*features.Matrix, *features.Contract, error) {
	var (
		m        *features.Matrix
		contract *features.Contract
	)
	err := r.runStage(ctx, StageEncode, false, func() (int, error) {
		var err error
		m, contract, err = r.encoder.Fit(ds, r.opts.Target)
		if err != nil {
			return 0, err
		}
		return m.Rows(), nil
	})
	return m, contract, err
}

// prepared is the encoded training data with the contract that produced it
type prepared struct {
	matrix      *features.Matrix
	contract    *features.Contract
	quality     *validation.Report
	rowsLoaded  int
	cleaningOps int
}

// prepare loads, optionally validates, cleans and encodes the training data
func (r *Runner) prepare(ctx context.Context, run *tracking.Run) (*prepared, error) {
	ds, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	p := &prepared{rowsLoaded: ds.Len()}
	if run != nil {
		if p.quality, err = r.validate(ctx, run, ds); err != nil {
			return nil, err
		}
	}

	cleaned, ops, err := r.preprocess(ctx, ds)
	if err != nil {
		return nil, err
	}
	p.cleaningOps = len(ops)

	if p.matrix, p.contract, err = r.encode(ctx, cleaned); err != nil {
		return nil, err
	}
	r.metrics.RecordDataset(p.rowsLoaded, p.matrix.Rows(), p.matrix.Width(), p.cleaningOps)
	return p, nil
}

// PrepareResult describes a prepared dataset
type PrepareResult struct {
	Matrix            *features.Matrix
	Contract          *features.Contract
	RowsLoaded        int
	CleaningOps       int
	Path              string
	Table             string
	FileVerification  *VerificationReport
	TableVerification *VerificationReport
}

// Prepare cleans and encodes the raw dataset and writes the encoded rows to
// the processed file and, when configured, the processed table
func (r *Runner) Prepare(ctx context.Context) (*PrepareResult, error) {
	r.reset()
	defer r.metrics.Complete()

	p, err := r.prepare(ctx, nil)
	if err != nil {
		return nil, err
	}
	res := &PrepareResult{
		Matrix:      p.matrix,
		Contract:    p.contract,
		RowsLoaded:  p.rowsLoaded,
		CleaningOps: p.cleaningOps,
	}
	if err := r.persistDataset(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// persistDataset writes and verifies the encoded dataset. The table copy is
// optional: a failure there skips the stage.
func (r *Runner) persistDataset(ctx context.Context, res *PrepareResult) error {
	target := r.opts.Target
	if path := r.opts.ProcessedPath; path != "" {
		err := r.runStage(ctx, StagePersist, false, func() (int, error) {
			if err := loader.WriteMatrixCSV(path, res.Matrix, target); err != nil {
				return 0, err
			}
			report, err := r.verifier.VerifyCSV(path, res.Matrix, target)
			if err != nil {
				return 0, err
			}
			res.FileVerification = report
			if !report.OK() {
				return 0, fmt.Errorf("%w: %s", ErrVerificationFailed, path)
			}
			return res.Matrix.Rows(), nil
		})
		if err != nil {
			return err
		}
		res.Path = path
	}

	if table := r.opts.ProcessedTable; table != "" {
		return r.runStage(ctx, StageTable, true, func() (int, error) {
			written, err := r.loader.WriteMatrixTable(ctx, r.postgres, table, res.Matrix, target)
			if err != nil {
				return 0, err
			}
			report, err := r.verifier.VerifyTable(ctx, r.postgres, table, res.Matrix, target)
			if err != nil {
				return 0, err
			}
			res.TableVerification = report
			if !report.OK() {
				return 0, fmt.Errorf("%w: table %s", ErrVerificationFailed, table)
			}
			res.Table = table
			return int(written), nil
		})
	}
	return nil
}

// TrainResult is the outcome of a training run
type TrainResult struct {
	RunID          string
	Quality        *validation.Report
	Contract       *features.Contract
	Model          *boost.Model
	Metrics        *evaluate.Metrics
	Report         string
	ContractPath   string
	ModelPath      string
	TrainRows      int
	TestRows       int
	ScalePosWeight float64
	TrainTime      time.Duration
	PredTime       time.Duration
}

// Train runs the full training pipeline inside a tracked run: quality gate,
// preprocessing, encoding, a stratified split, boosting, evaluation at the
// decision threshold and persistence of the contract and the model.
func (r *Runner) Train(ctx context.Context) (res *TrainResult, err error) {
	r.reset()
	if r.tracker == nil {
		return nil, fmt.Errorf("%w: training needs a tracker", config.ErrInvalidConfig)
	}
	run, err := r.tracker.StartRun(ctx, r.opts.Experiment)
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}
	defer func() { err = r.endRun(ctx, run, err) }()

	err = run.LogParams(ctx, map[string]interface{}{
		"model":     ModelName,
		"threshold": r.opts.Threshold,
		"test_size": r.opts.TestSize,
	})
	if err != nil {
		return nil, err
	}

	p, err := r.prepare(ctx, run)
	if err != nil {
		return nil, err
	}
	if r.opts.ProcessedPath != "" || r.opts.ProcessedTable != "" {
		if err := r.persistDataset(ctx, &PrepareResult{Matrix: p.matrix, Contract: p.contract}); err != nil {
			return nil, err
		}
	}

	res = &TrainResult{RunID: run.ID(), Quality: p.quality, Contract: p.contract}
	if res.ContractPath, err = r.saveContract(ctx, run, p.contract); err != nil {
		return nil, err
	}

	xTrain, yTrain, xTest, yTest, err := r.split(ctx, p.matrix)
	if err != nil {
		return nil, err
	}
	res.TrainRows, res.TestRows = len(yTrain), len(yTest)

	params := r.opts.Params
	params.ScalePosWeight = scalePosWeight(yTrain)
	res.ScalePosWeight = params.ScalePosWeight
	if err := run.LogParams(ctx, paramMap(params)); err != nil {
		return nil, err
	}

	m := boost.New(params)
	m.FeatureNames = p.contract.FeatureColumns()
	err = r.runStage(ctx, StageTrain, false, func() (int, error) {
		start := time.Now()
		if err := m.Fit(xTrain, yTrain); err != nil {
			return 0, err
		}
		res.TrainTime = time.Since(start)
		return len(yTrain), run.LogMetric(ctx, "train_time", res.TrainTime.Seconds())
	})
	if err != nil {
		return nil, err
	}
	res.Model = m

	err = r.runStage(ctx, StageEvaluate, false, func() (int, error) {
		start := time.Now()
		proba, err := m.PredictProba(xTest)
		if err != nil {
			return 0, err
		}
		res.PredTime = time.Since(start)
		if err := run.LogMetric(ctx, "pred_time", res.PredTime.Seconds()); err != nil {
			return 0, err
		}

		if res.Metrics, err = evaluate.Evaluate(yTest, proba, r.opts.Threshold); err != nil {
			return 0, err
		}
		if err := run.LogMetrics(ctx, res.Metrics.Map()); err != nil {
			return 0, err
		}
		res.Report = evaluate.Report(yTest, boost.Threshold(proba, r.opts.Threshold), reportDigits)
		if err := run.LogText(ctx, "classification_report.txt", res.Report); err != nil {
			return 0, err
		}
		return len(yTest), nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Model evaluated",
		zap.Float64("threshold", r.opts.Threshold),
		zap.Float64("precision", res.Metrics.Precision),
		zap.Float64("recall", res.Metrics.Recall),
		zap.Float64("f1", res.Metrics.F1),
		zap.Float64("rocAUC", res.Metrics.ROCAUC))
	r.logger.Info("Classification report\n" + res.Report)

	if res.ModelPath, err = r.saveModel(ctx, run, m); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Runner) split(ctx context.Context, m *features.Matrix) (xTrain [][]float64, yTrain []float64, xTest [][]float64, yTest []float64, err error) {
	err = r.runStage(ctx, StageSplit, false, func() (int, error) {
		trainIdx, testIdx, err := tuning.StratifiedSplit(m.Labels, r.opts.TestSize, r.opts.Seed)
		if err != nil {
			return 0, err
		}
		xTrain, yTrain = tuning.Subset(m.X, m.Labels, trainIdx)
		xTest, yTest = tuning.Subset(m.X, m.Labels, testIdx)
		return len(trainIdx), nil
	})
	return xTrain, yTrain, xTest, yTest, err
}

func (r *Runner) saveContract(ctx context.Context, run *tracking.Run, contract *features.Contract) (string, error) {
	path := filepath.Join(r.opts.ArtifactsDir, ContractFile)
	err := r.runStage(ctx, StageTrack, false, func() (int, error) {
		if err := contract.Save(path); err != nil {
			return 0, err
		}
		if err := run.LogFeatureColumns(ctx, contract.FeatureColumns()); err != nil {
			return 0, err
		}
		return contract.NumFeatures(), run.LogArtifact(ctx, path)
	})
	return path, err
}

func (r *Runner) saveModel(ctx context.Context, run *tracking.Run, m *boost.Model) (string, error) {
	path := filepath.Join(r.opts.ArtifactsDir, ModelFile)
	err := r.runStage(ctx, StagePersist, false, func() (int, error) {
		if err := m.Save(path); err != nil {
			return 0, err
		}
		if err := run.LogArtifact(ctx, path); err != nil {
			return 0, err
		}

		importance := make(map[string]float64, m.NumFeatures)
		for i, v := range m.FeatureImportance() {
			importance[m.FeatureNames[i]] = v
		}
		return len(m.Trees), run.LogJSON(ctx, "feature_importance.json", importance)
	})
	return path, err
}

// endRun records the run metrics and closes the run with a status matching
// err. It returns err, or the close error when the run itself succeeded.
func (r *Runner) endRun(ctx context.Context, run *tracking.Run, err error) error {
	r.metrics.Complete()

	status := tracking.StatusFinished
	if err != nil {
		status = tracking.StatusFailed
	}
	if lerr := run.LogText(ctx, "run_metrics.txt", r.metrics.GenerateMetricsReport()); lerr != nil {
		r.logger.Warn("Failed to log run metrics", zap.Error(lerr))
	}
	if eerr := run.End(ctx, status); eerr != nil {
		r.logger.Error("Failed to end run", zap.String("runID", run.ID()), zap.Error(eerr))
		if err == nil {
			return eerr
		}
	}

	r.logger.Info("Run ended",
		zap.String("runID", run.ID()),
		zap.String("status", string(status)),
		zap.Duration("duration", r.metrics.Duration()))
	return err
}

// Tune searches the booster hyperparameters by cross-validated recall on the
// training part of the split and writes the best parameters to the artifacts
// directory
func (r *Runner) Tune(ctx context.Context) (summary *TuningSummary, err error) {
	r.reset()
	if r.tracker == nil {
		return nil, fmt.Errorf("%w: tuning needs a tracker", config.ErrInvalidConfig)
	}
	run, err := r.tracker.StartRun(ctx, r.opts.Experiment)
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}
	defer func() { err = r.endRun(ctx, run, err) }()

	err = run.LogParams(ctx, map[string]interface{}{
		"model":  ModelName,
		"mode":   "tune",
		"trials": r.opts.Trials,
		"folds":  r.opts.Folds,
		"seed":   r.opts.Seed,
	})
	if err != nil {
		return nil, err
	}

	p, err := r.prepare(ctx, run)
	if err != nil {
		return nil, err
	}
	xTrain, yTrain, _, _, err := r.split(ctx, p.matrix)
	if err != nil {
		return nil, err
	}

	base := r.opts.Params
	base.ScalePosWeight = scalePosWeight(yTrain)
	tuner := tuning.NewTuner(r.opts.SearchSpace, base, r.opts.Folds, r.opts.Seed, r.logger)
	pool := NewTrialPool(tuner, xTrain, yTrain, r.opts.Workers, r.errorHandler, r.metrics, r.logger).
		WithMaxRetries(r.opts.RetryAttempts)

	err = r.runStage(ctx, StageTune, false, func() (int, error) {
		var err error
		if summary, err = pool.Run(ctx, tuner.Candidates(r.opts.Trials)); err != nil {
			return 0, err
		}
		return summary.Successful, nil
	})
	if err != nil {
		return nil, err
	}

	for _, t := range summary.Trials {
		if t.Err != nil {
			continue
		}
		if err := run.LogMetric(ctx, "trial_recall", t.Score); err != nil {
			return nil, err
		}
	}
	if err := run.LogMetric(ctx, "best_recall", summary.Best.Score); err != nil {
		return nil, err
	}
	if err := run.LogParams(ctx, paramMap(summary.Best.Params)); err != nil {
		return nil, err
	}
	if err := run.LogJSON(ctx, "tuning_summary.json", summary); err != nil {
		return nil, err
	}

	path := filepath.Join(r.opts.ArtifactsDir, BestParamsFile)
	err = r.runStage(ctx, StagePersist, false, func() (int, error) {
		if err := SaveParams(path, summary.Best.Params); err != nil {
			return 0, err
		}
		return 1, run.LogArtifact(ctx, path)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Tuning finished",
		zap.Int("best", summary.Best.Index),
		zap.Float64("recall", summary.Best.Score),
		zap.Int("successful", summary.Successful),
		zap.Int("failed", summary.Failed),
		zap.String("params", path))
	return summary, nil
}

// scalePosWeight is the negative to positive ratio of the labels, or 1
// without positives
func scalePosWeight(y []float64) float64 {
	var pos, neg int
	for _, label := range y {
		if label == 1 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 1
	}
	return float64(neg) / float64(pos)
}

func paramMap(p boost.Params) map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":     p.NEstimators,
		"learning_rate":    p.LearningRate,
		"max_depth":        p.MaxDepth,
		"subsample":        p.Subsample,
		"colsample_bytree": p.ColSampleByTree,
		"min_child_weight": p.MinChildWeight,
		"reg_lambda":       p.Lambda,
		"scale_pos_weight": p.ScalePosWeight,
		"seed":             p.Seed,
	}
}

// SaveParams writes booster parameters as JSON
func SaveParams(path string, p boost.Params) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create params directory: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadParams reads parameters written by SaveParams over base. Keys missing
// from the file keep their base value.
func LoadParams(path string, base boost.Params) (boost.Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read params: %w", err)
	}
	p := base
	if err := json.Unmarshal(data, &p); err != nil {
		return base, fmt.Errorf("%w: %v", boost.ErrInvalidParams, err)
	}
	if err := p.Validate(); err != nil {
		return base, err
	}
	return p, nil
}
