// pkg/pipeline/runner_test.go
package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/David-Botos/churn-pipeline/pkg/boost"
	"github.com/David-Botos/churn-pipeline/pkg/config"
	"github.com/David-Botos/churn-pipeline/pkg/features"
	"github.com/David-Botos/churn-pipeline/pkg/tracking"
	"github.com/David-Botos/churn-pipeline/pkg/tuning"
)

var telcoHeader = []string{
	"customerID", "gender", "SeniorCitizen", "Partner", "Dependents", "tenure",
	"PhoneService", "MultipleLines", "InternetService", "OnlineSecurity",
	"OnlineBackup", "DeviceProtection", "TechSupport", "StreamingTV",
	"StreamingMovies", "Contract", "PaperlessBilling", "PaymentMethod",
	"MonthlyCharges", "TotalCharges", "Churn",
}

// telcoRow builds a customer whose churn is decided by contract, internet
// service and tenure
func telcoRow(i int) []string {
	yesNo := func(b bool) string {
		if b {
			return "Yes"
		}
		return "No"
	}
	churn := i%4 == 0

	gender := "Female"
	if i%2 == 1 {
		gender = "Male"
	}
	tenure := 20 + i%50
	contract := []string{"One year", "Two year"}[i%2]
	internet := []string{"DSL", "No"}[i%2]
	payment := []string{"Mailed check", "Bank transfer (automatic)", "Credit card (automatic)"}[i%3]
	monthly := 20.0 + float64(i%40)
	if churn {
		tenure = 2 + i%4
		contract = "Month-to-month"
		internet = "Fiber optic"
		payment = "Electronic check"
		monthly = 80 + float64(i%15)
	}

	addon := func(on bool) string {
		if internet == "No" {
			return "No internet service"
		}
		return yesNo(on)
	}
	phone := i%5 != 0
	lines := "No phone service"
	if phone {
		lines = yesNo(i%3 == 0)
	}

	return []string{
		fmt.Sprintf("%04d-TEST", i),
		gender,
		fmt.Sprint(i % 7 / 6),
		yesNo(i%3 == 1),
		yesNo(i%5 == 2),
		fmt.Sprint(tenure),
		yesNo(phone),
		lines,
		internet,
		addon(i%2 == 0),
		addon(i%3 == 0),
		addon(i%4 == 1),
		addon(!churn),
		addon(i%3 == 2),
		addon(i%5 == 1),
		contract,
		yesNo(churn || i%3 == 0),
		payment,
		fmt.Sprintf("%.2f", monthly),
		fmt.Sprintf("%.2f", monthly*float64(tenure)),
		yesNo(churn),
	}
}

func writeTelcoCSV(t *testing.T, path string, rows int, mutate func(i int, row []string)) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(telcoHeader); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < rows; i++ {
		row := telcoRow(i)
		if mutate != nil {
			mutate(i, row)
		}
		if err := w.Write(row); err != nil {
			t.Fatal(err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		t.Fatal(err)
	}
}

func testOptions(dir string) Options {
	params := boost.DefaultParams()
	params.NEstimators = 30
	params.LearningRate = 0.3
	params.MaxDepth = 3

	return Options{
		Source:        config.SourceCSV,
		DataPath:      filepath.Join(dir, "telco.csv"),
		ProcessedPath: filepath.Join(dir, "processed", "telco_churn_processed.csv"),
		ArtifactsDir:  filepath.Join(dir, "artifacts"),
		Experiment:    "churn-test",
		Target:        "Churn",
		Threshold:     0.35,
		TestSize:      0.25,
		Seed:          42,
		Params:        params,
		Trials:        2,
		Folds:         3,
		Workers:       2,
		SearchSpace: tuning.SearchSpace{
			NEstimators:     tuning.IntRange{Min: 5, Max: 10},
			LearningRate:    tuning.FloatRange{Min: 0.1, Max: 0.3},
			MaxDepth:        tuning.IntRange{Min: 2, Max: 3},
			Subsample:       tuning.FloatRange{Min: 0.8, Max: 1},
			ColSampleByTree: tuning.FloatRange{Min: 0.8, Max: 1},
		},
	}
}

func newTestRunner(t *testing.T, opts Options) (*Runner, *tracking.FileTracker) {
	t.Helper()
	tracker, err := tracking.NewFileTracker(filepath.Join(filepath.Dir(opts.DataPath), "runs"), nil)
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewRunner(opts, Dependencies{Tracker: tracker}, nil)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	return r, tracker
}

func readRunJSON(t *testing.T, dir, name string, v interface{}) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatal(err)
	}
}

func TestRunnerPrepare(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	writeTelcoCSV(t, opts.DataPath, 80, nil)
	r, _ := newTestRunner(t, opts)

	res, err := r.Prepare(context.Background())
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if res.RowsLoaded != 80 || res.Matrix.Rows() != 80 {
		t.Errorf("rows loaded = %d, encoded = %d", res.RowsLoaded, res.Matrix.Rows())
	}
	if res.Path != opts.ProcessedPath || res.FileVerification == nil || !res.FileVerification.OK() {
		t.Fatalf("processed file not verified: %+v", res.FileVerification)
	}
	cols := res.Contract.FeatureColumns()
	if !slices.Contains(cols, "tenure") || slices.Contains(cols, "customerID") {
		t.Errorf("feature columns = %v", cols)
	}
	if res.Contract.Target() != "Churn" {
		t.Errorf("target = %q", res.Contract.Target())
	}

	positives := 0
	for _, label := range res.Matrix.Labels {
		positives += int(label)
	}
	if positives != 20 {
		t.Errorf("positives = %d, want 20", positives)
	}
	if r.Metrics().RowsEncoded != 80 {
		t.Errorf("metrics rows encoded = %d", r.Metrics().RowsEncoded)
	}
}

func TestRunnerTrain(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	writeTelcoCSV(t, opts.DataPath, 80, nil)
	r, tracker := newTestRunner(t, opts)

	res, err := r.Train(context.Background())
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if res.TrainRows != 60 || res.TestRows != 20 {
		t.Errorf("split = %d/%d, want 60/20", res.TrainRows, res.TestRows)
	}
	if res.ScalePosWeight != 3 {
		t.Errorf("scale_pos_weight = %v, want 3", res.ScalePosWeight)
	}
	if res.Metrics.Recall < 0.99 || res.Metrics.ROCAUC < 0.99 {
		t.Errorf("metrics = %+v", res.Metrics)
	}
	if !strings.Contains(res.Report, "weighted avg") {
		t.Errorf("report = %q", res.Report)
	}

	contract, err := features.LoadContract(res.ContractPath)
	if err != nil {
		t.Fatal(err)
	}
	model, err := boost.Load(res.ModelPath)
	if err != nil {
		t.Fatal(err)
	}
	if contract.NumFeatures() != model.NumFeatures ||
		!slices.Equal(contract.FeatureColumns(), model.FeatureNames) {
		t.Error("model and contract disagree on the feature columns")
	}

	runs, err := tracker.ListRuns(opts.Experiment)
	if err != nil || len(runs) != 1 {
		t.Fatalf("runs = %v, err = %v", runs, err)
	}
	if runs[0].Status != tracking.StatusFinished || runs[0].ID != res.RunID {
		t.Errorf("run = %+v", runs[0])
	}

	runDir := tracker.RunDir(opts.Experiment, res.RunID)
	var params map[string]string
	readRunJSON(t, runDir, "params.json", &params)
	if params["model"] != ModelName || params["threshold"] != "0.35" || params["scale_pos_weight"] != "3" {
		t.Errorf("params = %v", params)
	}
	var metrics map[string]float64
	readRunJSON(t, runDir, "metrics.json", &metrics)
	for _, key := range []string{"data_quality_pass", "train_time", "pred_time", "precision", "recall", "f1", "roc_auc"} {
		if _, ok := metrics[key]; !ok {
			t.Errorf("metric %s not logged", key)
		}
	}
	if metrics["data_quality_pass"] != 1 {
		t.Errorf("data_quality_pass = %v", metrics["data_quality_pass"])
	}
	for _, name := range []string{
		"feature_columns.txt", ContractFile, ModelFile, "classification_report.txt",
		"feature_importance.json", "run_metrics.txt",
	} {
		if _, err := os.Stat(filepath.Join(runDir, "artifacts", name)); err != nil {
			t.Errorf("artifact %s missing: %v", name, err)
		}
	}
}

func TestRunnerTrainQualityGate(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	writeTelcoCSV(t, opts.DataPath, 40, func(i int, row []string) {
		if i == 3 {
			row[15] = "Weekly"
		}
	})
	r, tracker := newTestRunner(t, opts)

	_, err := r.Train(context.Background())
	if !errors.Is(err, ErrQualityGate) {
		t.Fatalf("Train() error = %v, want ErrQualityGate", err)
	}

	runs, _ := tracker.ListRuns(opts.Experiment)
	if len(runs) != 1 || runs[0].Status != tracking.StatusFailed {
		t.Fatalf("runs = %+v", runs)
	}
	runDir := tracker.RunDir(opts.Experiment, runs[0].ID)

	var report struct {
		Failed []string `json:"failed_expectations"`
	}
	readRunJSON(t, filepath.Join(runDir, "artifacts"), "failed_expectations.json", &report)
	if !slices.Equal(report.Failed, []string{"expect_column_values_to_be_in_set(Contract)"}) {
		t.Errorf("failed expectations = %v", report.Failed)
	}
	var metrics map[string]float64
	readRunJSON(t, runDir, "metrics.json", &metrics)
	if metrics["data_quality_pass"] != 0 {
		t.Errorf("data_quality_pass = %v", metrics["data_quality_pass"])
	}
	if _, err := os.Stat(filepath.Join(opts.ArtifactsDir, ModelFile)); !errors.Is(err, os.ErrNotExist) {
		t.Error("no model should be written when the gate fails")
	}
}

func TestRunnerTune(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	writeTelcoCSV(t, opts.DataPath, 80, nil)
	r, _ := newTestRunner(t, opts)

	summary, err := r.Tune(context.Background())
	if err != nil {
		t.Fatalf("Tune() error = %v", err)
	}
	if summary.Successful != 2 || len(summary.Trials) != 2 {
		t.Errorf("summary = %+v", summary)
	}

	best, err := LoadParams(filepath.Join(opts.ArtifactsDir, BestParamsFile), boost.DefaultParams())
	if err != nil {
		t.Fatalf("LoadParams() error = %v", err)
	}
	if best != summary.Best.Params {
		t.Errorf("saved params %+v, want %+v", best, summary.Best.Params)
	}
	if best.NEstimators < 5 || best.NEstimators > 10 || best.ScalePosWeight != 3 {
		t.Errorf("best params outside the search: %+v", best)
	}
	if r.Metrics().SuccessfulTrials != 2 {
		t.Errorf("metrics trials = %d", r.Metrics().SuccessfulTrials)
	}
}

func TestRunnerRetriesMissingInput(t *testing.T) {
	opts := testOptions(t.TempDir())
	opts.RetryAttempts = 1
	r, _ := newTestRunner(t, opts)

	_, err := r.Prepare(context.Background())
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Prepare() error = %v", err)
	}
	if got := r.Errors().GetStageErrorCounts()[StageLoad]; got != 2 {
		t.Errorf("load errors = %d, want one per attempt", got)
	}
	if got := r.Errors().GetErrorSummary()[ErrorCategoryStorage]; got != 2 {
		t.Errorf("storage errors = %d", got)
	}
}

func TestNewRunnerRejectsIncompleteOptions(t *testing.T) {
	tests := []struct {
		name   string
		modify func(o *Options)
	}{
		{"no target", func(o *Options) { o.Target = "" }},
		{"no csv path", func(o *Options) { o.DataPath = "" }},
		{"database source without connector", func(o *Options) {
			o.Source = config.SourcePostgres
			o.DataTable = "telco"
		}},
		{"processed table without postgres", func(o *Options) { o.ProcessedTable = "telco_processed" }},
		{"no artifacts dir", func(o *Options) { o.ArtifactsDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(t.TempDir())
			tt.modify(&opts)
			if _, err := NewRunner(opts, Dependencies{}, nil); !errors.Is(err, config.ErrInvalidConfig) {
				t.Errorf("NewRunner() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestTrainWithoutTracker(t *testing.T) {
	opts := testOptions(t.TempDir())
	r, err := NewRunner(opts, Dependencies{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Train(context.Background()); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("Train() error = %v", err)
	}
}

func TestScalePosWeight(t *testing.T) {
	tests := []struct {
		y    []float64
		want float64
	}{
		{[]float64{0, 0, 0, 1}, 3},
		{[]float64{1, 1, 0, 0}, 1},
		{[]float64{0, 0}, 1},
		{nil, 1},
	}
	for _, tt := range tests {
		if got := scalePosWeight(tt.y); got != tt.want {
			t.Errorf("scalePosWeight(%v) = %v, want %v", tt.y, got, tt.want)
		}
	}
}

func TestLoadParams(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.json")
	if err := os.WriteFile(path, []byte(`{"max_depth": 4, "learning_rate": 0.1}`), 0o644); err != nil {
		t.Fatal(err)
	}

	base := boost.DefaultParams()
	p, err := LoadParams(path, base)
	if err != nil {
		t.Fatalf("LoadParams() error = %v", err)
	}
	if p.MaxDepth != 4 || p.LearningRate != 0.1 || p.NEstimators != base.NEstimators {
		t.Errorf("params = %+v", p)
	}

	if err := os.WriteFile(path, []byte(`{"max_depth": 0}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadParams(path, base); !errors.Is(err, boost.ErrInvalidParams) {
		t.Errorf("LoadParams() error = %v, want ErrInvalidParams", err)
	}
}
