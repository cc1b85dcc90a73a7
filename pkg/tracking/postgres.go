// pkg/tracking/postgres.go
package tracking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const trackingSchemaSQL = `
	CREATE TABLE IF NOT EXISTS public.tracking_runs (
		run_id TEXT PRIMARY KEY,
		experiment TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TIMESTAMP WITH TIME ZONE NOT NULL,
		ended_at TIMESTAMP WITH TIME ZONE,
		feature_columns TEXT[]
	);
	CREATE TABLE IF NOT EXISTS public.tracking_params (
		run_id TEXT NOT NULL REFERENCES public.tracking_runs(run_id),
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (run_id, key)
	);
	CREATE TABLE IF NOT EXISTS public.tracking_metrics (
		run_id TEXT NOT NULL REFERENCES public.tracking_runs(run_id),
		key TEXT NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		step INTEGER NOT NULL,
		logged_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, key, step)
	);
	CREATE TABLE IF NOT EXISTS public.tracking_artifacts (
		run_id TEXT NOT NULL REFERENCES public.tracking_runs(run_id),
		name TEXT NOT NULL,
		content BYTEA NOT NULL,
		size_bytes INTEGER NOT NULL,
		logged_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, name)
	)
`

// statementTimeout bounds every tracking statement
const statementTimeout = 10 * time.Second

// runRow is the tracking_runs row
type runRow struct {
	ID             string         `db:"run_id"`
	Experiment     string         `db:"experiment"`
	Status         string         `db:"status"`
	StartedAt      time.Time      `db:"started_at"`
	EndedAt        *time.Time     `db:"ended_at"`
	FeatureColumns pq.StringArray `db:"feature_columns"`
}

func newRunRow(info RunInfo) runRow {
	return runRow{
		ID:             info.ID,
		Experiment:     info.Experiment,
		Status:         string(info.Status),
		StartedAt:      info.StartedAt,
		EndedAt:        info.EndedAt,
		FeatureColumns: pq.StringArray(info.FeatureColumns),
	}
}

func (r runRow) info() RunInfo {
	return RunInfo{
		ID:             r.ID,
		Experiment:     r.Experiment,
		Status:         Status(r.Status),
		StartedAt:      r.StartedAt,
		EndedAt:        r.EndedAt,
		FeatureColumns: []string(r.FeatureColumns),
	}
}

type paramRow struct {
	RunID string `db:"run_id"`
	Key   string `db:"key"`
	Value string `db:"value"`
}

type metricRow struct {
	RunID string  `db:"run_id"`
	Key   string  `db:"key"`
	Value float64 `db:"value"`
	Step  int     `db:"step"`
}

// PostgresTracker stores runs in the tracking_* tables
type PostgresTracker struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewPostgresTracker wraps an open connection and creates the tracking
// tables when missing. driverName selects the bind style, e.g. "pgx".
func NewPostgresTracker(ctx context.Context, db *sql.DB, driverName string, logger *zap.Logger) (*PostgresTracker, error) {
	if db == nil {
		return nil, errors.New("database connection cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &PostgresTracker{
		db:     sqlx.NewDb(db, driverName),
		logger: logger.Named("postgres-tracker"),
	}

	ctx, cancel := context.WithTimeout(ctx, statementTimeout)
	defer cancel()
	if _, err := t.db.ExecContext(ctx, trackingSchemaSQL); err != nil {
		return nil, fmt.Errorf("failed to create tracking tables: %w", err)
	}
	t.logger.Info("Ensured tracking tables exist")
	return t, nil
}

// StartRun inserts a RUNNING run
func (t *PostgresTracker) StartRun(ctx context.Context, experiment string) (*Run, error) {
	run := newRun(experiment, t)

	ctx, cancel := context.WithTimeout(ctx, statementTimeout)
	defer cancel()
	_, err := t.db.NamedExecContext(ctx, `
		INSERT INTO public.tracking_runs
		(run_id, experiment, status, started_at, ended_at, feature_columns)
		VALUES (:run_id, :experiment, :status, :started_at, :ended_at, :feature_columns)
	`, newRunRow(run.info))
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	t.logger.Info("Started run",
		zap.String("experiment", experiment),
		zap.String("run_id", run.info.ID))
	return run, nil
}

// GetRun loads one run with its parameters and latest metrics
func (t *PostgresTracker) GetRun(ctx context.Context, runID string) (RunInfo, map[string]string, map[string]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, statementTimeout)
	defer cancel()

	var row runRow
	err := t.db.GetContext(ctx, &row, `SELECT * FROM public.tracking_runs WHERE run_id = $1`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return RunInfo{}, nil, nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return RunInfo{}, nil, nil, fmt.Errorf("failed to load run: %w", err)
	}

	var paramRows []paramRow
	if err := t.db.SelectContext(ctx, &paramRows,
		`SELECT run_id, key, value FROM public.tracking_params WHERE run_id = $1`, runID); err != nil {
		return RunInfo{}, nil, nil, fmt.Errorf("failed to load params: %w", err)
	}
	params := make(map[string]string, len(paramRows))
	for _, p := range paramRows {
		params[p.Key] = p.Value
	}

	var metricRows []metricRow
	if err := t.db.SelectContext(ctx, &metricRows, `
		SELECT run_id, key, value, step FROM public.tracking_metrics
		WHERE run_id = $1 ORDER BY key, step`, runID); err != nil {
		return RunInfo{}, nil, nil, fmt.Errorf("failed to load metrics: %w", err)
	}
	metrics := make(map[string]float64, len(metricRows))
	for _, m := range metricRows {
		metrics[m.Key] = m.Value
	}

	return row.info(), params, metrics, nil
}

// ListRuns returns an experiment's runs, oldest first
func (t *PostgresTracker) ListRuns(ctx context.Context, experiment string) ([]RunInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, statementTimeout)
	defer cancel()

	var rows []runRow
	if err := t.db.SelectContext(ctx, &rows, `
		SELECT * FROM public.tracking_runs
		WHERE experiment = $1 ORDER BY started_at`, experiment); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	out := make([]RunInfo, len(rows))
	for i, r := range rows {
		out[i] = r.info()
	}
	return out, nil
}

func (t *PostgresTracker) saveParam(ctx context.Context, run *Run, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, statementTimeout)
	defer cancel()
	_, err := t.db.NamedExecContext(ctx, `
		INSERT INTO public.tracking_params (run_id, key, value)
		VALUES (:run_id, :key, :value)
		ON CONFLICT (run_id, key) DO UPDATE SET value = EXCLUDED.value
	`, paramRow{RunID: run.info.ID, Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("failed to record param %s: %w", key, err)
	}
	return nil
}

func (t *PostgresTracker) saveMetric(ctx context.Context, run *Run, key string, value float64, step int) error {
	ctx, cancel := context.WithTimeout(ctx, statementTimeout)
	defer cancel()
	_, err := t.db.NamedExecContext(ctx, `
		INSERT INTO public.tracking_metrics (run_id, key, value, step)
		VALUES (:run_id, :key, :value, :step)
	`, metricRow{RunID: run.info.ID, Key: key, Value: value, Step: step})
	if err != nil {
		return fmt.Errorf("failed to record metric %s: %w", key, err)
	}
	return nil
}

func (t *PostgresTracker) saveArtifact(ctx context.Context, run *Run, name string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, statementTimeout)
	defer cancel()
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO public.tracking_artifacts (run_id, name, content, size_bytes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, name) DO UPDATE
		SET content = EXCLUDED.content, size_bytes = EXCLUDED.size_bytes, logged_at = CURRENT_TIMESTAMP
	`, run.info.ID, name, data, len(data))
	if err != nil {
		return fmt.Errorf("failed to record artifact %s: %w", name, err)
	}
	return nil
}

func (t *PostgresTracker) saveFeatureColumns(ctx context.Context, run *Run) error {
	ctx, cancel := context.WithTimeout(ctx, statementTimeout)
	defer cancel()
	_, err := t.db.ExecContext(ctx,
		`UPDATE public.tracking_runs SET feature_columns = $1 WHERE run_id = $2`,
		pq.Array(run.info.FeatureColumns), run.info.ID)
	if err != nil {
		return fmt.Errorf("failed to record feature columns: %w", err)
	}
	return nil
}

func (t *PostgresTracker) finish(ctx context.Context, run *Run) error {
	ctx, cancel := context.WithTimeout(ctx, statementTimeout)
	defer cancel()
	_, err := t.db.NamedExecContext(ctx, `
		UPDATE public.tracking_runs SET status = :status, ended_at = :ended_at
		WHERE run_id = :run_id
	`, newRunRow(run.info))
	if err != nil {
		return fmt.Errorf("failed to end run: %w", err)
	}
	t.logger.Info("Ended run",
		zap.String("run_id", run.info.ID),
		zap.String("status", string(run.info.Status)))
	return nil
}
