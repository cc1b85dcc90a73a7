// pkg/features/errors.go
package features

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTargetMissing is returned when the training data has no target column
	ErrTargetMissing = errors.New("target column not found")

	// ErrMissingField is returned when an inference record lacks a raw field
	// the contract requires
	ErrMissingField = errors.New("required field missing")

	// ErrContractInvalid is returned when a persisted contract is missing or corrupt
	ErrContractInvalid = errors.New("feature contract invalid")

	// ErrEmptyDataset is returned when there are no rows to encode
	ErrEmptyDataset = errors.New("dataset has no rows")

	// ErrInvalidLabel is returned when the target is not a clean 0/1 column
	ErrInvalidLabel = errors.New("invalid target label")
)

// SchemaError lists the raw fields missing from a record
type SchemaError struct {
	Fields []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingField, strings.Join(e.Fields, ", "))
}

// Unwrap lets errors.Is match ErrMissingField
func (e *SchemaError) Unwrap() error {
	return ErrMissingField
}
