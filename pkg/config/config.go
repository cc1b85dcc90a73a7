// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidConfig is returned by Validate for unusable settings
var ErrInvalidConfig = errors.New("invalid configuration")

// Data source kinds
const (
	SourceCSV       = "csv"
	SourcePostgres  = "postgres"
	SourceSnowflake = "snowflake"
)

// Tracking backends
const (
	TrackingFile     = "file"
	TrackingPostgres = "postgres"
)

// Config represents the application configuration
type Config struct {
	// Database connections, nil unless configured
	Snowflake *SnowflakeConfig
	Postgres  *PostgresConfig

	Data     DataConfig
	Cleaning CleaningConfig
	Training TrainingConfig
	Tuning   TuningConfig
	Tracking TrackingConfig
	Serving  ServingConfig

	// Where the contract and model artifacts live
	ArtifactsDir string

	// Loading settings
	ChunkSize      int
	RetryAttempts  int
	RetryDelay     time.Duration
	WorkerPoolSize int

	// Logging
	LogLevel  string
	LogFormat string
}

// DataConfig selects the training data
type DataConfig struct {
	Source         string // csv, postgres or snowflake
	Path           string // CSV input
	Table          string // table for database sources
	ProcessedPath  string // where the encoded dataset is written by prepare
	ProcessedTable string // optional Postgres copy of the encoded dataset
}

// CleaningConfig selects column handling during preprocessing
type CleaningConfig struct {
	IdentifierColumns []string
	NumericColumns    []string
	ZeroFillColumns   []string
	// Record every cleaning operation in Postgres
	RecordOperations bool
}

// TrainingConfig holds the training run parameters and booster defaults
type TrainingConfig struct {
	Target          string
	Threshold       float64
	TestSize        float64
	Seed            int64
	NEstimators     int
	LearningRate    float64
	MaxDepth        int
	Subsample       float64
	ColSampleByTree float64
	MinChildWeight  float64
	Lambda          float64
}

// TuningConfig holds the hyperparameter search settings
type TuningConfig struct {
	Trials int
	Folds  int
}

// TrackingConfig selects where experiment runs are recorded
type TrackingConfig struct {
	Backend    string // file or postgres
	Dir        string
	Experiment string
}

// ServingConfig holds the HTTP server settings
type ServingConfig struct {
	Addr               string
	RateLimitPerMinute int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Data: DataConfig{
			Source:         getEnv("DATA_SOURCE", SourceCSV),
			Path:           getEnv("DATA_PATH", "data/raw/Telco-Customer-Churn.csv"),
			Table:          getEnv("DATA_TABLE", "telco_customer_churn"),
			ProcessedPath:  getEnv("PROCESSED_PATH", "data/processed/telco_churn_processed.csv"),
			ProcessedTable: getEnv("PROCESSED_TABLE", ""),
		},
		Cleaning: CleaningConfig{
			IdentifierColumns: getEnvAsStringSlice("IDENTIFIER_COLUMNS", []string{"customerID", "CustomerID", "customer_id"}),
			NumericColumns:    getEnvAsStringSlice("NUMERIC_COLUMNS", []string{"TotalCharges"}),
			ZeroFillColumns:   getEnvAsStringSlice("ZERO_FILL_COLUMNS", []string{"SeniorCitizen"}),
			RecordOperations:  getEnvAsBool("RECORD_CLEANING", false),
		},
		Training: TrainingConfig{
			Target:          getEnv("TARGET_COLUMN", "Churn"),
			Threshold:       getEnvAsFloat("THRESHOLD", 0.35),
			TestSize:        getEnvAsFloat("TEST_SIZE", 0.2),
			Seed:            int64(getEnvAsInt("RANDOM_SEED", 42)),
			NEstimators:     getEnvAsInt("N_ESTIMATORS", 301),
			LearningRate:    getEnvAsFloat("LEARNING_RATE", 0.034),
			MaxDepth:        getEnvAsInt("MAX_DEPTH", 7),
			Subsample:       getEnvAsFloat("SUBSAMPLE", 0.95),
			ColSampleByTree: getEnvAsFloat("COLSAMPLE_BYTREE", 0.98),
			MinChildWeight:  getEnvAsFloat("MIN_CHILD_WEIGHT", 1),
			Lambda:          getEnvAsFloat("REG_LAMBDA", 1),
		},
		Tuning: TuningConfig{
			Trials: getEnvAsInt("TUNE_TRIALS", 20),
			Folds:  getEnvAsInt("TUNE_FOLDS", 3),
		},
		Tracking: TrackingConfig{
			Backend:    getEnv("TRACKING_BACKEND", TrackingFile),
			Dir:        getEnv("TRACKING_DIR", "mlruns"),
			Experiment: getEnv("EXPERIMENT_NAME", "Telco Churn"),
		},
		Serving: ServingConfig{
			Addr:               getEnv("HTTP_ADDR", ":8000"),
			RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 600),
			ReadTimeout:        time.Duration(getEnvAsInt("HTTP_READ_TIMEOUT_SECONDS", 15)) * time.Second,
			WriteTimeout:       time.Duration(getEnvAsInt("HTTP_WRITE_TIMEOUT_SECONDS", 15)) * time.Second,
			ShutdownTimeout:    time.Duration(getEnvAsInt("HTTP_SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		ArtifactsDir: getEnv("ARTIFACTS_DIR", "artifacts"),

		ChunkSize:      getEnvAsInt("CHUNK_SIZE", 5000),
		RetryAttempts:  getEnvAsInt("RETRY_ATTEMPTS", 3),
		RetryDelay:     time.Duration(getEnvAsInt("RETRY_DELAY_MS", 1000)) * time.Millisecond,
		WorkerPoolSize: getEnvAsInt("WORKER_POOL_SIZE", 0), // 0 means use runtime.NumCPU()
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
	}

	// Database sections are loaded only when something needs them or their
	// credentials are present
	if cfg.NeedsSnowflake() || os.Getenv("SNOWFLAKE_USER") != "" {
		snowConfig, err := LoadSnowflakeConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load Snowflake configuration: %w", err)
		}
		cfg.Snowflake = snowConfig
	}

	if cfg.NeedsPostgres() || os.Getenv("POSTGRES_USER") != "" {
		pgConfig, err := LoadPostgresConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load PostgreSQL configuration: %w", err)
		}
		cfg.Postgres = pgConfig
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NeedsPostgres reports whether any configured component talks to Postgres
func (c *Config) NeedsPostgres() bool {
	return c.Data.Source == SourcePostgres ||
		c.Tracking.Backend == TrackingPostgres ||
		c.Cleaning.RecordOperations ||
		c.Data.ProcessedTable != ""
}

// NeedsSnowflake reports whether data is loaded from Snowflake
func (c *Config) NeedsSnowflake() bool {
	return c.Data.Source == SourceSnowflake
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	switch c.Data.Source {
	case SourceCSV:
		if c.Data.Path == "" {
			return fmt.Errorf("%w: DATA_PATH is required for csv source", ErrInvalidConfig)
		}
	case SourcePostgres, SourceSnowflake:
		if c.Data.Table == "" {
			return fmt.Errorf("%w: DATA_TABLE is required for %s source", ErrInvalidConfig, c.Data.Source)
		}
	default:
		return fmt.Errorf("%w: unknown data source %q", ErrInvalidConfig, c.Data.Source)
	}

	if c.NeedsSnowflake() && c.Snowflake == nil {
		return fmt.Errorf("%w: snowflake configuration is required", ErrInvalidConfig)
	}

	if c.NeedsPostgres() && c.Postgres == nil {
		return fmt.Errorf("%w: postgreSQL configuration is required", ErrInvalidConfig)
	}

	if c.Tracking.Backend != TrackingFile && c.Tracking.Backend != TrackingPostgres {
		return fmt.Errorf("%w: unknown tracking backend %q", ErrInvalidConfig, c.Tracking.Backend)
	}

	if strings.TrimSpace(c.Training.Target) == "" {
		return fmt.Errorf("%w: target column cannot be empty", ErrInvalidConfig)
	}

	if c.Training.Threshold <= 0 || c.Training.Threshold >= 1 {
		return fmt.Errorf("%w: threshold must be in (0, 1)", ErrInvalidConfig)
	}

	if c.Training.TestSize <= 0 || c.Training.TestSize >= 1 {
		return fmt.Errorf("%w: test size must be in (0, 1)", ErrInvalidConfig)
	}

	if c.Training.NEstimators <= 0 || c.Training.MaxDepth <= 0 || c.Training.LearningRate <= 0 {
		return fmt.Errorf("%w: booster parameters must be positive", ErrInvalidConfig)
	}

	if c.Tuning.Trials <= 0 {
		return fmt.Errorf("%w: tuning trials must be positive", ErrInvalidConfig)
	}

	if c.Tuning.Folds < 2 {
		return fmt.Errorf("%w: tuning needs at least 2 folds", ErrInvalidConfig)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidConfig)
	}

	if c.RetryAttempts < 0 {
		return fmt.Errorf("%w: retry attempts cannot be negative", ErrInvalidConfig)
	}

	return nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
