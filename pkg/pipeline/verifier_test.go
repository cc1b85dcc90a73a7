// pkg/pipeline/verifier_test.go
package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/David-Botos/churn-pipeline/pkg/features"
	"github.com/David-Botos/churn-pipeline/pkg/loader"
)

func testMatrix() *features.Matrix {
	return &features.Matrix{
		Columns: []string{"tenure", "MonthlyCharges", "Contract_One year"},
		X: [][]float64{
			{1, 29.85, 0},
			{34, 56.95, 1},
			{2, 53.85, 0},
		},
		Labels: []float64{0, 0, 1},
	}
}

func TestVerifyCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.csv")
	m := testMatrix()
	if err := loader.WriteMatrixCSV(path, m, "Churn"); err != nil {
		t.Fatal(err)
	}

	report, err := NewVerifier(nil).VerifyCSV(path, m, "Churn")
	if err != nil {
		t.Fatalf("VerifyCSV() error = %v", err)
	}
	if !report.OK() {
		t.Fatalf("report not OK: %+v", report)
	}
	if report.SampleSize != 3 || report.ActualRowCount != 3 {
		t.Errorf("sample = %d, rows = %d", report.SampleSize, report.ActualRowCount)
	}
}

func TestVerifyCSVDetectsDifferences(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *features.Matrix)
		check  func(t *testing.T, r *VerificationReport)
	}{
		{
			name:   "value",
			mutate: func(m *features.Matrix) { m.X[1][1] = 57 },
			check: func(t *testing.T, r *VerificationReport) {
				if r.SampleVerified || len(r.SampleDiscrepancies) != 1 {
					t.Fatalf("discrepancies = %+v", r.SampleDiscrepancies)
				}
				d := r.SampleDiscrepancies[0]
				if d.Row != 1 || d.Column != "MonthlyCharges" || d.Actual != "56.95" {
					t.Errorf("discrepancy = %+v", d)
				}
			},
		},
		{
			name:   "label",
			mutate: func(m *features.Matrix) { m.Labels[2] = 0 },
			check: func(t *testing.T, r *VerificationReport) {
				if r.SampleVerified || r.SampleDiscrepancies[0].Column != "Churn" {
					t.Errorf("discrepancies = %+v", r.SampleDiscrepancies)
				}
			},
		},
		{
			name: "row count",
			mutate: func(m *features.Matrix) {
				m.X = append(m.X, []float64{5, 20, 0})
				m.Labels = append(m.Labels, 0)
			},
			check: func(t *testing.T, r *VerificationReport) {
				if r.RowCountMatches || r.ExpectedRowCount != 4 || r.ActualRowCount != 3 {
					t.Errorf("counts = %d/%d", r.ExpectedRowCount, r.ActualRowCount)
				}
			},
		},
		{
			name:   "header",
			mutate: func(m *features.Matrix) { m.Columns[2] = "Contract_Two year" },
			check: func(t *testing.T, r *VerificationReport) {
				if r.StructureMatches || len(r.StructureDiscrepancies) != 1 {
					t.Fatalf("structure = %v", r.StructureDiscrepancies)
				}
				if !strings.Contains(r.StructureDiscrepancies[0], "Contract_Two year") {
					t.Errorf("discrepancy = %q", r.StructureDiscrepancies[0])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "processed.csv")
			if err := loader.WriteMatrixCSV(path, testMatrix(), "Churn"); err != nil {
				t.Fatal(err)
			}
			m := testMatrix()
			tt.mutate(m)

			report, err := NewVerifier(nil).VerifyCSV(path, m, "Churn")
			if err != nil {
				t.Fatalf("VerifyCSV() error = %v", err)
			}
			if report.OK() {
				t.Fatal("report should not be OK")
			}
			tt.check(t, report)
		})
	}
}

func TestVerifyCSVMissingFile(t *testing.T) {
	_, err := NewVerifier(nil).VerifyCSV(filepath.Join(t.TempDir(), "nope.csv"), testMatrix(), "Churn")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("VerifyCSV() error = %v", err)
	}
}

func TestCalculateSampleSize(t *testing.T) {
	tests := []struct {
		rows int
		want int
	}{
		{0, 0},
		{42, 42},
		{100, 100},
		{999, 100},
		{1000, 500},
		{7043, 500},
		{50000, 1000},
		{2000000, 2000},
	}
	for _, tt := range tests {
		if got := calculateSampleSize(tt.rows); got != tt.want {
			t.Errorf("calculateSampleSize(%d) = %d, want %d", tt.rows, got, tt.want)
		}
	}

	spread := []struct {
		rows int
		size int
		last int
	}{
		{999, 100, 989},
		{1000, 500, 998},
	}
	for _, tt := range spread {
		rows := sampleRows(tt.rows)
		if len(rows) != tt.size || rows[0] != 0 || rows[len(rows)-1] != tt.last {
			t.Errorf("sampleRows(%d) = %d rows ending at %d, want %d ending at %d",
				tt.rows, len(rows), rows[len(rows)-1], tt.size, tt.last)
		}
	}
}

func TestVerifierWithTimeout(t *testing.T) {
	v := NewVerifier(nil).WithTimeout(time.Second)
	if v.timeout != time.Second {
		t.Errorf("timeout = %v", v.timeout)
	}
}
