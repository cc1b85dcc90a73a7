// pkg/features/encoder_test.go
package features

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/David-Botos/churn-pipeline/pkg/model"
)

var trainingColumns = []model.Column{
	{Name: "gender", Kind: model.KindText},
	{Name: "SeniorCitizen", Kind: model.KindInt},
	{Name: "Partner", Kind: model.KindText},
	{Name: "tenure", Kind: model.KindInt},
	{Name: "InternetService", Kind: model.KindText},
	{Name: "Contract", Kind: model.KindText},
	{Name: "TechSupport", Kind: model.KindText},
	{Name: "MonthlyCharges", Kind: model.KindFloat},
	{Name: "Churn", Kind: model.KindInt},
}

var wantFeatureColumns = []string{
	"gender",
	"SeniorCitizen",
	"Partner",
	"tenure",
	"InternetService_Fiber optic",
	"InternetService_No",
	"Contract_One year",
	"Contract_Two year",
	"TechSupport_No internet service",
	"TechSupport_Yes",
	"MonthlyCharges",
}

func customer(gender string, senior int64, partner string, tenure int64, internet, contract, support string, charges float64, churn int64) model.Record {
	return model.Record{
		"gender":          model.Text(gender),
		"SeniorCitizen":   model.Int(senior),
		"Partner":         model.Text(partner),
		"tenure":          model.Int(tenure),
		"InternetService": model.Text(internet),
		"Contract":        model.Text(contract),
		"TechSupport":     model.Text(support),
		"MonthlyCharges":  model.Float(charges),
		"Churn":           model.Int(churn),
	}
}

func trainingDataset() *model.Dataset {
	ds := model.NewDataset("test", append([]model.Column(nil), trainingColumns...))
	ds.Rows = []model.Record{
		customer("Male", 0, "Yes", 1, "DSL", "Month-to-month", "No", 29.85, 1),
		customer("Female", 1, "No", 34, "Fiber optic", "One year", "Yes", 56.95, 0),
		customer("Male", 0, "No", 2, "No", "Month-to-month", "No internet service", 53.85, 1),
		customer("Female", 0, "Yes", 45, "DSL", "Two year", "Yes", 42.30, 0),
		customer("Male", 0, "No", 8, "Fiber optic", "Month-to-month", "No", 70.70, 1),
		customer("Female", 1, "Yes", 22, "Fiber optic", "One year", "No", 89.10, 0),
	}
	return ds
}

func fitTraining(t *testing.T) (*Encoder, *Matrix, *Contract) {
	t.Helper()
	enc := NewEncoder(DefaultMappings(), nil)
	matrix, contract, err := enc.Fit(trainingDataset(), "Churn")
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	return enc, matrix, contract
}

func TestFitColumnOrder(t *testing.T) {
	_, matrix, contract := fitTraining(t)

	if !reflect.DeepEqual(contract.FeatureColumns(), wantFeatureColumns) {
		t.Errorf("feature columns = %v\nwant %v", contract.FeatureColumns(), wantFeatureColumns)
	}
	if !reflect.DeepEqual(matrix.Columns, wantFeatureColumns) {
		t.Errorf("matrix columns differ from contract: %v", matrix.Columns)
	}
	if contract.Target() != "Churn" {
		t.Errorf("target = %q", contract.Target())
	}
	wantRaw := []string{"gender", "SeniorCitizen", "Partner", "tenure", "InternetService", "Contract", "TechSupport", "MonthlyCharges"}
	if !reflect.DeepEqual(contract.RawFields(), wantRaw) {
		t.Errorf("raw fields = %v", contract.RawFields())
	}
}

func TestFitMatrixValues(t *testing.T) {
	_, matrix, _ := fitTraining(t)

	wantRows := [][]float64{
		{1, 0, 1, 1, 0, 0, 0, 0, 0, 0, 29.85},
		{0, 1, 0, 34, 1, 0, 1, 0, 0, 1, 56.95},
		{1, 0, 0, 2, 0, 1, 0, 0, 1, 0, 53.85},
	}
	for i, want := range wantRows {
		if !reflect.DeepEqual(matrix.X[i], want) {
			t.Errorf("row %d = %v\nwant %v", i, matrix.X[i], want)
		}
	}

	wantLabels := []float64{1, 0, 1, 0, 1, 0}
	if !reflect.DeepEqual(matrix.Labels, wantLabels) {
		t.Errorf("labels = %v, want %v", matrix.Labels, wantLabels)
	}
}

func TestFitBinaryMappings(t *testing.T) {
	_, _, contract := fitTraining(t)

	gender, ok := contract.Binary("gender")
	if !ok || gender.Zero != "Female" || gender.One != "Male" {
		t.Errorf("gender mapping = %+v (ok=%v), want Female→0 Male→1", gender, ok)
	}
	partner, ok := contract.Binary("Partner")
	if !ok || partner.Zero != "No" || partner.One != "Yes" {
		t.Errorf("Partner mapping = %+v (ok=%v), want No→0 Yes→1", partner, ok)
	}
}

func TestFitIgnoresRowOrder(t *testing.T) {
	_, _, contract := fitTraining(t)

	reversed := trainingDataset()
	for i, j := 0, len(reversed.Rows)-1; i < j; i, j = i+1, j-1 {
		reversed.Rows[i], reversed.Rows[j] = reversed.Rows[j], reversed.Rows[i]
	}
	_, other, err := NewEncoder(DefaultMappings(), nil).Fit(reversed, "Churn")
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	if !reflect.DeepEqual(contract.FeatureColumns(), other.FeatureColumns()) {
		t.Errorf("column order depends on row order: %v vs %v", contract.FeatureColumns(), other.FeatureColumns())
	}
	a, _ := contract.Binary("gender")
	b, _ := other.Binary("gender")
	if a != b {
		t.Errorf("gender mapping depends on row order: %+v vs %+v", a, b)
	}
}

func TestFitLexicographicBinary(t *testing.T) {
	ds := model.NewDataset("test", []model.Column{
		{Name: "PaperlessBilling", Kind: model.KindText},
		{Name: "Churn", Kind: model.KindInt},
	})
	ds.Rows = []model.Record{
		{"PaperlessBilling": model.Text("Paper"), "Churn": model.Int(1)},
		{"PaperlessBilling": model.Text("Electronic"), "Churn": model.Int(0)},
		{"PaperlessBilling": model.Missing(model.KindText), "Churn": model.Int(0)},
	}

	matrix, contract, err := NewEncoder(DefaultMappings(), nil).Fit(ds, "Churn")
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	mapping, _ := contract.Binary("PaperlessBilling")
	if mapping.Zero != "Electronic" || mapping.One != "Paper" {
		t.Errorf("mapping = %+v, want Electronic→0 Paper→1", mapping)
	}
	want := [][]float64{{1}, {0}, {0}}
	if !reflect.DeepEqual(matrix.X, want) {
		t.Errorf("X = %v, want %v", matrix.X, want)
	}
}

func TestFitTargetMissing(t *testing.T) {
	ds := trainingDataset()
	ds.DropColumn("Churn")

	_, _, err := NewEncoder(DefaultMappings(), nil).Fit(ds, "Churn")
	if !errors.Is(err, ErrTargetMissing) {
		t.Errorf("Fit() error = %v, want ErrTargetMissing", err)
	}
}

func TestFitTextTarget(t *testing.T) {
	ds := model.NewDataset("test", []model.Column{
		{Name: "tenure", Kind: model.KindInt},
		{Name: "Churn", Kind: model.KindText},
	})
	ds.Rows = []model.Record{
		{"tenure": model.Int(1), "Churn": model.Text("Yes")},
		{"tenure": model.Int(2), "Churn": model.Text("No")},
	}

	matrix, _, err := NewEncoder(DefaultMappings(), nil).Fit(ds, "Churn")
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if !reflect.DeepEqual(matrix.Labels, []float64{1, 0}) {
		t.Errorf("labels = %v", matrix.Labels)
	}
}

func TestFitInvalidLabel(t *testing.T) {
	ds := trainingDataset()
	ds.Rows[2]["Churn"] = model.Missing(model.KindInt)

	_, _, err := NewEncoder(DefaultMappings(), nil).Fit(ds, "Churn")
	if !errors.Is(err, ErrInvalidLabel) {
		t.Errorf("Fit() error = %v, want ErrInvalidLabel", err)
	}
}

func TestFitDropsConstantColumns(t *testing.T) {
	ds := trainingDataset()
	ds.Columns = append(ds.Columns, model.Column{Name: "Country", Kind: model.KindText})
	for _, row := range ds.Rows {
		row["Country"] = model.Text("US")
	}

	_, contract, err := NewEncoder(DefaultMappings(), nil).Fit(ds, "Churn")
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if contract.HasColumn("Country") || contract.HasColumn("Country_US") {
		t.Error("constant column should not produce features")
	}
	for _, f := range contract.RawFields() {
		if f == "Country" {
			t.Error("constant column should not be required at inference")
		}
	}
}

func TestFitMissingNumericIsZero(t *testing.T) {
	ds := trainingDataset()
	ds.Rows[0]["MonthlyCharges"] = model.Missing(model.KindFloat)
	ds.Rows[0]["Partner"] = model.Missing(model.KindText)

	matrix, _, err := NewEncoder(DefaultMappings(), nil).Fit(ds, "Churn")
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if got := matrix.X[0][10]; got != 0 {
		t.Errorf("missing numeric = %v, want 0", got)
	}
	if got := matrix.X[0][2]; got != 0 {
		t.Errorf("missing binary = %v, want 0", got)
	}
}

func TestTransformContractScenario(t *testing.T) {
	enc, _, contract := fitTraining(t)

	rec := customer("Female", 0, "No", 5, "DSL", "Month-to-month", "Yes", 70, 0)
	delete(rec, "Churn")

	vec, err := enc.Transform(rec, contract)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if len(vec) != contract.NumFeatures() {
		t.Fatalf("len = %d, want %d", len(vec), contract.NumFeatures())
	}

	idx := func(name string) int {
		for i, col := range contract.FeatureColumns() {
			if col == name {
				return i
			}
		}
		t.Fatalf("column %q not in contract", name)
		return -1
	}
	if vec[idx("Contract_One year")] != 0 || vec[idx("Contract_Two year")] != 0 {
		t.Errorf("Month-to-month should encode to all-zero indicators: %v", vec)
	}
	if vec[idx("gender")] != 0 {
		t.Errorf("Female should encode to 0")
	}
	if vec[idx("TechSupport_Yes")] != 1 {
		t.Errorf("TechSupport_Yes should be 1")
	}
}

func TestTransformMissingField(t *testing.T) {
	enc, _, contract := fitTraining(t)

	rec := customer("Male", 0, "No", 5, "DSL", "One year", "Yes", 70, 0)
	delete(rec, "TechSupport")

	_, err := enc.Transform(rec, contract)
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("Transform() error = %v, want ErrMissingField", err)
	}
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("error should be a *SchemaError, got %T", err)
	}
	if !reflect.DeepEqual(schemaErr.Fields, []string{"TechSupport"}) {
		t.Errorf("fields = %v", schemaErr.Fields)
	}
}

func TestTransformUnseenCategory(t *testing.T) {
	enc, _, contract := fitTraining(t)

	rec := customer("Male", 0, "No", 5, "Satellite", "Three year", "Maybe", 70, 0)
	vec, err := enc.Transform(rec, contract)
	if err != nil {
		t.Fatalf("unseen categories must not fail: %v", err)
	}

	// Every indicator and the unseen binary value are zero.
	want := []float64{1, 0, 0, 5, 0, 0, 0, 0, 0, 0, 70}
	if !reflect.DeepEqual(vec, want) {
		t.Errorf("vec = %v\nwant %v", vec, want)
	}

	rec["Partner"] = model.Text("Sometimes")
	vec, _ = enc.Transform(rec, contract)
	if vec[2] != 0 {
		t.Errorf("unseen binary value = %v, want 0", vec[2])
	}
}

func TestTransformReconciliation(t *testing.T) {
	enc, _, contract := fitTraining(t)

	records := []model.Record{
		customer("Male", 1, "Yes", 70, "Fiber optic", "Two year", "No internet service", 100, 0),
		customer("Female", 0, "No", 0, "No", "Month-to-month", "No", 0, 1),
		customer("Male", 0, "Yes", 12, "DSL", "One year", "Yes", 18.25, 0),
	}
	records[0]["StreamingTV"] = model.Text("Yes")
	records[1]["PaymentMethod"] = model.Text("Electronic check")
	delete(records[2], "Churn")

	for i, rec := range records {
		vec, err := enc.Transform(rec, contract)
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if len(vec) != len(wantFeatureColumns) {
			t.Errorf("record %d: %d columns, want %d", i, len(vec), len(wantFeatureColumns))
		}
	}
}

func TestTransformNumericText(t *testing.T) {
	enc, _, contract := fitTraining(t)

	rec := customer("Male", 0, "No", 5, "DSL", "One year", "Yes", 0, 0)
	rec["MonthlyCharges"] = model.Text(" 42.5 ")
	vec, err := enc.Transform(rec, contract)
	if err != nil {
		t.Fatal(err)
	}
	if vec[10] != 42.5 {
		t.Errorf("numeric text = %v, want 42.5", vec[10])
	}

	rec["MonthlyCharges"] = model.Text("abc")
	vec, _ = enc.Transform(rec, contract)
	if vec[10] != 0 {
		t.Errorf("malformed numeric = %v, want 0", vec[10])
	}
}

func TestTransformBatchMatchesFit(t *testing.T) {
	enc, matrix, contract := fitTraining(t)

	again, err := enc.TransformBatch(trainingDataset(), contract)
	if err != nil {
		t.Fatalf("TransformBatch() error = %v", err)
	}
	if !reflect.DeepEqual(again.X, matrix.X) {
		t.Error("inference encoding differs from training encoding")
	}
	if !reflect.DeepEqual(again.Labels, matrix.Labels) {
		t.Errorf("labels = %v, want %v", again.Labels, matrix.Labels)
	}

	twice, _ := enc.TransformBatch(trainingDataset(), contract)
	if !reflect.DeepEqual(twice.X, again.X) {
		t.Error("encoding is not idempotent")
	}
}

func TestTransformBatchMissingField(t *testing.T) {
	enc, _, contract := fitTraining(t)

	ds := trainingDataset()
	delete(ds.Rows[3], "Contract")

	_, err := enc.TransformBatch(ds, contract)
	if !errors.Is(err, ErrMissingField) {
		t.Errorf("TransformBatch() error = %v, want ErrMissingField", err)
	}
}

func TestTransformConcurrent(t *testing.T) {
	enc, matrix, contract := fitTraining(t)
	ds := trainingDataset()

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for n := 0; n < 64; n++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vec, err := enc.Transform(ds.Clone().Rows[i], contract)
			if err != nil {
				errs <- err
				return
			}
			if !reflect.DeepEqual(vec, matrix.X[i]) {
				errs <- errors.New("concurrent transform mismatch")
			}
		}(n % ds.Len())
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestTransformMinimalContract(t *testing.T) {
	contract, err := NewContract(wantFeatureColumns, "Churn")
	if err != nil {
		t.Fatalf("NewContract() error = %v", err)
	}
	if !contract.IsMinimal() {
		t.Fatal("expected minimal contract")
	}
	wantRaw := []string{"gender", "SeniorCitizen", "Partner", "tenure", "InternetService", "Contract", "TechSupport", "MonthlyCharges"}
	if !reflect.DeepEqual(contract.RawFields(), wantRaw) {
		t.Errorf("derived raw fields = %v", contract.RawFields())
	}

	enc := NewEncoder(DefaultMappings(), nil)
	rec := customer("Male", 0, "Yes", 1, "DSL", "Month-to-month", "No", 29.85, 1)
	vec, err := enc.Transform(rec, contract)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	want := []float64{1, 0, 1, 1, 0, 0, 0, 0, 0, 0, 29.85}
	if !reflect.DeepEqual(vec, want) {
		t.Errorf("vec = %v\nwant %v", vec, want)
	}
}
