// pkg/pipeline/verifier.go
package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/churn-pipeline/pkg/connector"
	"github.com/David-Botos/churn-pipeline/pkg/features"
	"github.com/David-Botos/churn-pipeline/pkg/loader"
)

// RowDiscrepancy is one cell that differs between the matrix and its copy
type RowDiscrepancy struct {
	Row      int
	Column   string
	Expected string
	Actual   string
}

// VerificationReport contains the results of checking a written dataset
type VerificationReport struct {
	Target                 string
	VerificationTime       time.Time
	RowCountMatches        bool
	ExpectedRowCount       int64
	ActualRowCount         int64
	StructureMatches       bool
	StructureDiscrepancies []string
	SampleVerified         bool
	SampleSize             int
	SampleDiscrepancies    []RowDiscrepancy
	Duration               time.Duration
}

// OK reports whether every check passed
func (r *VerificationReport) OK() bool {
	return r.RowCountMatches && r.StructureMatches && r.SampleVerified
}

// Verifier checks that encoded datasets were written intact
type Verifier struct {
	logger  *zap.Logger
	timeout time.Duration
}

// NewVerifier creates a new verifier
func NewVerifier(logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		logger:  logger.Named("verifier"),
		timeout: time.Minute * 5, // Default 5-minute timeout
	}
}

// WithTimeout sets a custom timeout for verification queries
func (v *Verifier) WithTimeout(timeout time.Duration) *Verifier {
	v.timeout = timeout
	return v
}

// VerifyCSV reads back a processed CSV and compares it with the matrix it
// was written from: header, row count and a sample of rows
func (v *Verifier) VerifyCSV(path string, m *features.Matrix, target string) (*VerificationReport, error) {
	start := time.Now()
	report := &VerificationReport{
		Target:           path,
		VerificationTime: start,
		ExpectedRowCount: int64(m.Rows()),
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	written, err := loader.ReadCSV(f, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	header := append(append([]string(nil), m.Columns...), target)
	got := written.ColumnNames()
	report.StructureMatches = len(got) == len(header)
	for i := 0; i < max(len(got), len(header)); i++ {
		switch {
		case i >= len(got):
			report.StructureDiscrepancies = append(report.StructureDiscrepancies, "missing column "+header[i])
		case i >= len(header):
			report.StructureDiscrepancies = append(report.StructureDiscrepancies, "unexpected column "+got[i])
		case got[i] != header[i]:
			report.StructureDiscrepancies = append(report.StructureDiscrepancies,
				fmt.Sprintf("column %d is %q, want %q", i, got[i], header[i]))
		}
	}
	if len(report.StructureDiscrepancies) > 0 {
		report.StructureMatches = false
	}

	report.ActualRowCount = int64(written.Len())
	report.RowCountMatches = report.ActualRowCount == report.ExpectedRowCount

	if report.StructureMatches && report.RowCountMatches {
		rows := sampleRows(m.Rows())
		report.SampleSize = len(rows)
		for _, i := range rows {
			rec := written.Rows[i]
			for j, col := range m.Columns {
				if !sameNumber(rec[col].String(), m.X[i][j]) {
					report.SampleDiscrepancies = append(report.SampleDiscrepancies, RowDiscrepancy{
						Row:      i,
						Column:   col,
						Expected: strconv.FormatFloat(m.X[i][j], 'f', -1, 64),
						Actual:   rec[col].String(),
					})
				}
			}
			if m.Labels != nil && !sameNumber(rec[target].String(), m.Labels[i]) {
				report.SampleDiscrepancies = append(report.SampleDiscrepancies, RowDiscrepancy{
					Row:      i,
					Column:   target,
					Expected: strconv.FormatFloat(m.Labels[i], 'f', -1, 64),
					Actual:   rec[target].String(),
				})
			}
		}
		report.SampleVerified = len(report.SampleDiscrepancies) == 0
	}

	report.Duration = time.Since(start)
	v.log(report)
	return report, nil
}

// VerifyTable checks the row count and columns of a table written from m
func (v *Verifier) VerifyTable(ctx context.Context, conn connector.DatabaseConnector, table string, m *features.Matrix, target string) (*VerificationReport, error) {
	start := time.Now()
	qualified := conn.QualifiedTable(table)
	report := &VerificationReport{
		Target:           qualified,
		VerificationTime: start,
		ExpectedRowCount: int64(m.Rows()),
		// Row order is not kept in a table, so only shape is compared
		SampleVerified: true,
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s", qualified)
	err := conn.QueryWithTimeout(ctx, countQuery, v.timeout, func(rows *sql.Rows) error {
		return rows.Scan(&report.ActualRowCount)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count rows in %s: %w", qualified, err)
	}
	report.RowCountMatches = report.ActualRowCount == report.ExpectedRowCount

	var got []string
	err = conn.QueryWithTimeout(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 1", qualified), v.timeout, func(rows *sql.Rows) error {
		cols, err := rows.Columns()
		got = cols
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", qualified, err)
	}

	header := append(append([]string(nil), m.Columns...), target)
	// An empty table has no row to read the columns from
	report.StructureMatches = slices.Equal(got, header) || (got == nil && report.ActualRowCount == 0)
	if !report.StructureMatches {
		report.StructureDiscrepancies = append(report.StructureDiscrepancies,
			fmt.Sprintf("table has %d columns, want %d", len(got), len(header)))
	}

	report.Duration = time.Since(start)
	v.log(report)
	return report, nil
}

func (v *Verifier) log(report *VerificationReport) {
	if report.OK() {
		v.logger.Info("Verification successful",
			zap.String("target", report.Target),
			zap.Int64("rows", report.ActualRowCount),
			zap.Int("sampleSize", report.SampleSize))
		return
	}
	v.logger.Warn("Verification failed",
		zap.String("target", report.Target),
		zap.Int64("expectedRows", report.ExpectedRowCount),
		zap.Int64("actualRows", report.ActualRowCount),
		zap.Strings("structure", report.StructureDiscrepancies),
		zap.Int("sampleDiscrepancies", len(report.SampleDiscrepancies)))
}

// calculateSampleSize determines appropriate sample size based on row count
func calculateSampleSize(rowCount int) int {
	switch {
	case rowCount <= 0:
		return 0
	case rowCount < 100:
		return rowCount // Sample all rows for small datasets
	case rowCount < 1000:
		return 100
	case rowCount < 10000:
		return 500
	case rowCount < 100000:
		return 1000
	default:
		return 2000
	}
}

// sampleRows spreads the sample evenly over the rows
func sampleRows(rowCount int) []int {
	size := calculateSampleSize(rowCount)
	rows := make([]int, size)
	for k := range rows {
		rows[k] = k * rowCount / size
	}
	return rows
}

func sameNumber(text string, want float64) bool {
	got, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return false
	}
	return got == want || math.Abs(got-want) <= 1e-12*math.Max(1, math.Abs(want))
}
