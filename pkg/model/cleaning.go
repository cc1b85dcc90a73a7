// pkg/model/cleaning.go
package model

import (
	"time"
)

// CleaningOperation represents a single data cleaning operation
type CleaningOperation struct {
	Source            string      // Dataset source (file path or table)
	ColumnName        string      // Column that was cleaned
	OriginalValue     interface{} // Original value (may be nil)
	NewValue          string      // New value after cleaning
	RowIdentifier     string      // Customer identifier of the row
	CleaningOperation string      // Type of cleaning performed (e.g., "numeric_coercion")
	CleaningReason    string      // Reason for cleaning (e.g., "invalid_numeric")
	CleanedAt         time.Time   // When the cleaning occurred
}

// CleaningSummary counts operations per kind, for logs and tracking
func CleaningSummary(ops []CleaningOperation) map[string]int {
	summary := make(map[string]int)
	for _, op := range ops {
		summary[op.CleaningOperation]++
	}
	return summary
}
