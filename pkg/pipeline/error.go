// pkg/pipeline/error.go
package pipeline

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/churn-pipeline/pkg/boost"
	"github.com/David-Botos/churn-pipeline/pkg/config"
	"github.com/David-Botos/churn-pipeline/pkg/features"
	"github.com/David-Botos/churn-pipeline/pkg/loader"
	"github.com/David-Botos/churn-pipeline/pkg/tracking"
	"github.com/David-Botos/churn-pipeline/pkg/tuning"
)

// ErrQualityGate is returned when the raw data fails validation
var ErrQualityGate = errors.New("data quality gate failed")

// Action defines the recommended action after an error
type Action int

const (
	// ActionContinue indicates processing should continue despite the error
	ActionContinue Action = iota
	// ActionRetry indicates the operation should be retried
	ActionRetry
	// ActionSkipStage indicates an optional stage should be skipped
	ActionSkipStage
	// ActionAbort indicates the whole run should stop
	ActionAbort
)

// String returns a string representation of the action
func (a Action) String() string {
	switch a {
	case ActionContinue:
		return "Continue"
	case ActionRetry:
		return "Retry"
	case ActionSkipStage:
		return "SkipStage"
	case ActionAbort:
		return "Abort"
	default:
		return fmt.Sprintf("Unknown(%d)", a)
	}
}

// ErrorCategory defines categories of errors during a pipeline run
type ErrorCategory int

const (
	// Error categories with increasing severity
	ErrorCategoryNone ErrorCategory = iota
	ErrorCategoryWarning
	ErrorCategoryDataConversion
	ErrorCategoryValidation
	ErrorCategorySchema
	ErrorCategoryContract
	ErrorCategoryConfiguration
	ErrorCategoryStorage
	ErrorCategoryCritical
)

// String returns a string representation of the error category
func (ec ErrorCategory) String() string {
	switch ec {
	case ErrorCategoryNone:
		return "None"
	case ErrorCategoryWarning:
		return "Warning"
	case ErrorCategoryDataConversion:
		return "DataConversion"
	case ErrorCategoryValidation:
		return "Validation"
	case ErrorCategorySchema:
		return "Schema"
	case ErrorCategoryContract:
		return "Contract"
	case ErrorCategoryConfiguration:
		return "Configuration"
	case ErrorCategoryStorage:
		return "Storage"
	case ErrorCategoryCritical:
		return "Critical"
	default:
		return fmt.Sprintf("Unknown(%d)", ec)
	}
}

// MarshalText lets categories key JSON maps by name
func (ec ErrorCategory) MarshalText() ([]byte, error) {
	return []byte(ec.String()), nil
}

// ErrorRecord represents a single error during a run
type ErrorRecord struct {
	Category    ErrorCategory `json:"category"`
	Stage       string        `json:"stage,omitempty"`
	Field       string        `json:"field,omitempty"`
	Error       error         `json:"-"`
	Message     string        `json:"message"` // Derived from Error but stored for serialization
	Timestamp   time.Time     `json:"timestamp"`
	RetryCount  int           `json:"retry_count,omitempty"`
	Optional    bool          `json:"optional,omitempty"`
	Recoverable bool          `json:"recoverable"`
}

// NewErrorRecord creates a new error record with current timestamp
func NewErrorRecord(err error, category ErrorCategory) ErrorRecord {
	record := ErrorRecord{
		Category:    category,
		Error:       err,
		Timestamp:   time.Now(),
		Recoverable: category < ErrorCategoryValidation || category == ErrorCategoryStorage,
	}

	if err != nil {
		record.Message = err.Error()
	}

	return record
}

// WithStage adds the failing stage to the error record
func (r ErrorRecord) WithStage(stage string) ErrorRecord {
	r.Stage = stage
	return r
}

// WithField adds the offending field to the error record
func (r ErrorRecord) WithField(field string) ErrorRecord {
	r.Field = field
	return r
}

// WithOptional marks the stage as one the run can do without
func (r ErrorRecord) WithOptional() ErrorRecord {
	r.Optional = true
	return r
}

// WithRetry sets retry information
func (r ErrorRecord) WithRetry(retryCount int) ErrorRecord {
	r.RetryCount = retryCount
	return r
}

// String returns a formatted error message
func (r ErrorRecord) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] ", r.Category))

	if r.Stage != "" {
		sb.WriteString(fmt.Sprintf("Stage: %s ", r.Stage))
	}

	if r.Field != "" {
		sb.WriteString(fmt.Sprintf("Field: %s ", r.Field))
	}

	if r.Error != nil {
		sb.WriteString(fmt.Sprintf("Error: %s", r.Error.Error()))
	} else if r.Message != "" {
		sb.WriteString(fmt.Sprintf("Error: %s", r.Message))
	}

	if r.RetryCount > 0 {
		sb.WriteString(fmt.Sprintf(" (Retry: %d)", r.RetryCount))
	}

	return sb.String()
}

// ErrorHandler categorizes run errors and decides what happens next
type ErrorHandler struct {
	logger       *zap.Logger
	errorCounts  map[ErrorCategory]int
	sampleErrors map[ErrorCategory][]ErrorRecord
	stageErrors  map[string]int
	mu           sync.Mutex
	maxSamples   int
	maxRetries   int
}

// NewErrorHandler creates a new error handler. Storage errors are retried up
// to maxRetries times.
func NewErrorHandler(logger *zap.Logger, maxRetries int) *ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorHandler{
		logger:       logger.Named("error-handler"),
		errorCounts:  make(map[ErrorCategory]int),
		sampleErrors: make(map[ErrorCategory][]ErrorRecord),
		stageErrors:  make(map[string]int),
		maxSamples:   5, // Store up to 5 sample errors per category
		maxRetries:   maxRetries,
	}
}

// CategorizeError determines the category of an error
func (eh *ErrorHandler) CategorizeError(err error) ErrorCategory {
	category := categorize(err)
	if err != nil {
		eh.logger.Debug("Categorized error",
			zap.String("error", err.Error()),
			zap.String("category", category.String()))
	}
	return category
}

func categorize(err error) ErrorCategory {
	var pathErr *os.PathError

	switch {
	case err == nil:
		return ErrorCategoryNone

	case errors.Is(err, tracking.ErrInvalidMetric):
		return ErrorCategoryWarning

	case errors.Is(err, features.ErrMissingField),
		errors.Is(err, features.ErrEmptyDataset),
		errors.Is(err, loader.ErrNoHeader):
		return ErrorCategorySchema

	case errors.Is(err, features.ErrContractInvalid),
		errors.Is(err, boost.ErrModelInvalid),
		errors.Is(err, boost.ErrFeatureMismatch):
		return ErrorCategoryContract

	case errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, features.ErrTargetMissing),
		errors.Is(err, boost.ErrInvalidParams),
		errors.Is(err, tuning.ErrInvalidSplit):
		return ErrorCategoryConfiguration

	case errors.Is(err, ErrQualityGate),
		errors.Is(err, features.ErrInvalidLabel),
		errors.Is(err, boost.ErrInvalidTrainingData):
		return ErrorCategoryValidation

	case errors.Is(err, context.Canceled):
		return ErrorCategoryCritical

	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, ErrVerificationFailed),
		errors.As(err, &pathErr):
		return ErrorCategoryStorage
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "refused"):
		return ErrorCategoryStorage

	case strings.Contains(msg, "convert") ||
		strings.Contains(msg, "parse"):
		return ErrorCategoryDataConversion

	default:
		return ErrorCategoryCritical
	}
}

// HandleError records an error and determines the action
func (eh *ErrorHandler) HandleError(record ErrorRecord) Action {
	eh.RecordError(record)

	switch record.Category {
	case ErrorCategoryNone, ErrorCategoryWarning, ErrorCategoryDataConversion:
		return ActionContinue

	case ErrorCategoryStorage:
		if record.RetryCount < eh.maxRetries {
			eh.logger.Warn("Retrying after storage error",
				zap.String("stage", record.Stage),
				zap.Int("retry", record.RetryCount+1),
				zap.String("error", record.Message))
			return ActionRetry
		}
		if record.Optional {
			return ActionSkipStage
		}
		return ActionAbort

	case ErrorCategoryValidation, ErrorCategorySchema, ErrorCategoryContract,
		ErrorCategoryConfiguration, ErrorCategoryCritical:
		if record.Optional && record.Category != ErrorCategoryCritical {
			return ActionSkipStage
		}
		eh.logger.Error("Aborting run",
			zap.String("category", record.Category.String()),
			zap.String("stage", record.Stage),
			zap.String("error", record.Message))
		return ActionAbort

	default:
		return ActionContinue
	}
}

// RecordError saves an error occurrence
func (eh *ErrorHandler) RecordError(record ErrorRecord) {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	eh.errorCounts[record.Category]++

	samples := eh.sampleErrors[record.Category]
	if len(samples) < eh.maxSamples {
		eh.sampleErrors[record.Category] = append(samples, record)
	}

	if record.Stage != "" {
		eh.stageErrors[record.Stage]++
	}

	var logLevel = zap.InfoLevel
	switch record.Category {
	case ErrorCategoryWarning, ErrorCategoryStorage:
		logLevel = zap.WarnLevel
	case ErrorCategoryValidation, ErrorCategorySchema, ErrorCategoryContract,
		ErrorCategoryConfiguration, ErrorCategoryCritical:
		logLevel = zap.ErrorLevel
	}

	eh.logger.Log(logLevel, "Pipeline error",
		zap.String("category", record.Category.String()),
		zap.String("stage", record.Stage),
		zap.String("field", record.Field),
		zap.String("error", record.Message),
		zap.Bool("recoverable", record.Recoverable),
		zap.Int("retryCount", record.RetryCount))
}

// GetErrorSummary returns error counts by category
func (eh *ErrorHandler) GetErrorSummary() map[ErrorCategory]int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	summary := make(map[ErrorCategory]int, len(eh.errorCounts))
	for category, count := range eh.errorCounts {
		summary[category] = count
	}
	return summary
}

// GetErrorSamples returns sample errors for each category
func (eh *ErrorHandler) GetErrorSamples() map[ErrorCategory][]ErrorRecord {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	samples := make(map[ErrorCategory][]ErrorRecord, len(eh.sampleErrors))
	for category, records := range eh.sampleErrors {
		samples[category] = append([]ErrorRecord(nil), records...)
	}
	return samples
}

// GetStageErrorCounts returns error counts by stage
func (eh *ErrorHandler) GetStageErrorCounts() map[string]int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	counts := make(map[string]int, len(eh.stageErrors))
	for stage, count := range eh.stageErrors {
		counts[stage] = count
	}
	return counts
}

// WrapError creates a new error with additional context
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsRetryableError reports whether an error is worth retrying
func IsRetryableError(err error) bool {
	return categorize(err) == ErrorCategoryStorage
}
