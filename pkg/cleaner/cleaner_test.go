// pkg/cleaner/cleaner_test.go
package cleaner

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/David-Botos/churn-pipeline/pkg/features"
	"github.com/David-Botos/churn-pipeline/pkg/model"
)

func rawDataset(header []string, rows [][]string) *model.Dataset {
	cols := make([]model.Column, len(header))
	for i, name := range header {
		cols[i] = model.Column{Name: name, Kind: model.KindText}
	}
	ds := model.NewDataset("customers.csv", cols)
	for _, raw := range rows {
		rec := make(model.Record, len(header))
		for i, name := range header {
			rec[name] = model.Text(raw[i])
		}
		ds.Rows = append(ds.Rows, rec)
	}
	return ds
}

func newTestCleaner(t *testing.T) *DataCleaner {
	t.Helper()
	c, err := NewDataCleaner(nil, zap.NewNop(), DefaultOptions())
	if err != nil {
		t.Fatalf("NewDataCleaner() error = %v", err)
	}
	return c
}

func TestPreprocess(t *testing.T) {
	ds := rawDataset(
		[]string{" customerID", "gender ", "SeniorCitizen", "tenure", "MonthlyCharges", "TotalCharges", "Churn"},
		[][]string{
			{"7590-VHVEG", "Female", "0", "1", "29.85", "29.85", "No"},
			{"5575-GNVDE", "Male", "", "34", "56.95", "1889.5", "Yes"},
			{"", "Male", "1", "2", "53.85", " ", "Yes"},
			{"9237-HQITU", "Female", "0", "2", "70.70", "abc", "No"},
		},
	)

	out, ops, err := newTestCleaner(t).Preprocess(context.Background(), ds, "Churn")
	if err != nil {
		t.Fatalf("Preprocess() error = %v", err)
	}

	if out.HasColumn("customerID") || out.HasColumn(" customerID") {
		t.Error("identifier column should be dropped")
	}
	if !out.HasColumn("gender") {
		t.Errorf("column names should be trimmed: %v", out.ColumnNames())
	}

	wantKinds := map[string]model.Kind{
		"gender":         model.KindText,
		"SeniorCitizen":  model.KindInt,
		"tenure":         model.KindInt,
		"MonthlyCharges": model.KindFloat,
		"TotalCharges":   model.KindFloat,
		"Churn":          model.KindInt,
	}
	for name, kind := range wantKinds {
		if col := out.GetColumnByName(name); col == nil || col.Kind != kind {
			t.Errorf("column %s kind = %v, want %v", name, col, kind)
		}
	}

	labels := out.Values("Churn")
	for i, want := range []float64{0, 1, 1, 0} {
		if got, _ := labels[i].Float64(); got != want {
			t.Errorf("row %d label = %v, want %v", i, got, want)
		}
	}

	if v := out.Rows[1]["SeniorCitizen"]; v.Missing || v.Num != 0 {
		t.Errorf("missing SeniorCitizen should become 0, got %+v", v)
	}
	if v := out.Rows[2]["TotalCharges"]; v.Missing || v.Num != 0 {
		t.Errorf("blank TotalCharges should become 0, got %+v", v)
	}
	if v := out.Rows[3]["TotalCharges"]; v.Missing || v.Num != 0 {
		t.Errorf("invalid TotalCharges should become 0, got %+v", v)
	}

	summary := model.CleaningSummary(ops)
	if summary["uuid_generation"] != 1 {
		t.Errorf("expected one generated identifier, got %v", summary)
	}
	if summary["numeric_coercion"] != 1 {
		t.Errorf("expected one numeric coercion, got %v", summary)
	}
	if summary["zero_fill"] != 3 {
		t.Errorf("expected three zero fills, got %v", summary)
	}

	for _, op := range ops {
		if op.CleaningOperation == "numeric_coercion" && op.RowIdentifier != "9237-HQITU" {
			t.Errorf("coercion recorded against %q", op.RowIdentifier)
		}
		if op.CleanedAt.IsZero() {
			t.Error("operation without timestamp")
		}
	}

	// Input is untouched
	if ds.Rows[0]["Churn"].Kind != model.KindText {
		t.Error("Preprocess modified its input")
	}
}

func TestPreprocessInvalidTarget(t *testing.T) {
	ds := rawDataset(
		[]string{"tenure", "Churn"},
		[][]string{{"1", "Yes"}, {"2", "Maybe"}, {"3", ""}, {"4", "No"}},
	)

	out, ops, err := newTestCleaner(t).Preprocess(context.Background(), ds, "Churn")
	if err != nil {
		t.Fatalf("Preprocess() error = %v", err)
	}
	if out.Len() != 2 {
		t.Errorf("rows = %d, want 2", out.Len())
	}
	if got := model.CleaningSummary(ops)["row_removed"]; got != 2 {
		t.Errorf("row_removed = %d, want 2", got)
	}
}

func TestPreprocessTargetMissing(t *testing.T) {
	ds := rawDataset([]string{"tenure"}, [][]string{{"1"}})

	_, _, err := newTestCleaner(t).Preprocess(context.Background(), ds, "Churn")
	if !errors.Is(err, features.ErrTargetMissing) {
		t.Errorf("Preprocess() error = %v, want ErrTargetMissing", err)
	}
}

func TestNewDataCleanerRequiresLogger(t *testing.T) {
	if _, err := NewDataCleaner(nil, nil, DefaultOptions()); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := map[string]string{
		"SeniorCitizen": "senior_citizen",
		"tenure":        "tenure",
		"TotalCharges":  "total_charges",
	}
	for in, want := range tests {
		if got := toSnakeCase(in); got != want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}
