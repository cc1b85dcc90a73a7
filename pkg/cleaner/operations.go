// pkg/cleaner/operations.go
package cleaner

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/David-Botos/churn-pipeline/pkg/model"
)

// ensureRowID returns the identifier of a row, generating a UUID when the
// row has none
func ensureRowID(
	value model.Value,
	exists bool,
	column, source string,
) (string, *model.CleaningOperation) {
	// If the identifier doesn't exist or is missing, generate a new UUID
	if !exists || value.Missing {
		newID := uuid.New().String()
		return newID, &model.CleaningOperation{
			Source:            source,
			ColumnName:        identifierColumnName(column),
			OriginalValue:     nil,
			NewValue:          newID,
			RowIdentifier:     newID, // The generated ID is the row identifier
			CleaningOperation: "uuid_generation",
			CleaningReason:    "missing_identifier",
		}
	}

	strValue := strings.TrimSpace(value.String())

	// Generate new UUID if empty string
	if strValue == "" {
		newID := uuid.New().String()
		return newID, &model.CleaningOperation{
			Source:            source,
			ColumnName:        identifierColumnName(column),
			OriginalValue:     value.String(),
			NewValue:          newID,
			RowIdentifier:     newID,
			CleaningOperation: "uuid_generation",
			CleaningReason:    "empty_identifier",
		}
	}

	return strValue, nil
}

func identifierColumnName(column string) string {
	if column == "" {
		return "customerID"
	}
	return column
}

// targetLabel reads a churn label: Yes/No text or an existing 0/1 number
func targetLabel(v model.Value) (int64, bool) {
	if v.Missing {
		return 0, false
	}
	if v.Kind != model.KindText {
		f, ok := v.Float64()
		if !ok || (f != 0 && f != 1) {
			return 0, false
		}
		return int64(f), true
	}

	switch strings.TrimSpace(v.Str) {
	case "Yes", "1":
		return 1, true
	case "No", "0":
		return 0, true
	default:
		return 0, false
	}
}

// fillZero replaces a missing numeric cell with 0
func fillZero(
	row model.Record,
	col *model.Column,
	rowID string,
	source, reason string,
) *model.CleaningOperation {
	v, ok := row[col.Name]
	if ok && !v.Missing {
		return nil
	}

	var filled model.Value
	switch col.Kind {
	case model.KindFloat:
		filled = model.Float(0)
	case model.KindBool:
		filled = model.Bool(false)
	default:
		filled = model.Int(0)
	}
	row[col.Name] = filled

	return &model.CleaningOperation{
		Source:            source,
		ColumnName:        col.Name,
		OriginalValue:     nil,
		NewValue:          filled.String(),
		RowIdentifier:     rowID,
		CleaningOperation: "zero_fill",
		CleaningReason:    reason,
	}
}

// Helper functions

// toNullableString safely converts an interface to a nullable string
func toNullableString(v interface{}) *string {
	if v == nil {
		return nil
	}
	var s string
	switch val := v.(type) {
	case *string:
		return val
	case string:
		s = val
	case model.Value:
		if val.Missing {
			return nil
		}
		s = val.String()
	default:
		s = fmt.Sprintf("%v", val)
	}
	return &s
}

// toSnakeCase turns a column name like SeniorCitizen into senior_citizen
func toSnakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func containsFold(list []string, name string) bool {
	for _, item := range list {
		if strings.EqualFold(item, name) {
			return true
		}
	}
	return false
}
