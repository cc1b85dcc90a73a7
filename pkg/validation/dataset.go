// pkg/validation/dataset.go
package validation

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/David-Botos/churn-pipeline/pkg/model"
)

// Expectation types, named after the checks they perform
const (
	ExpectColumnToExist       = "expect_column_to_exist"
	ExpectValuesNotNull       = "expect_column_values_to_not_be_null"
	ExpectValuesInSet         = "expect_column_values_to_be_in_set"
	ExpectValuesBetween       = "expect_column_values_to_be_between"
	ExpectPairAGreaterThanB   = "expect_column_pair_values_A_to_be_greater_than_B"
	defaultPairMostlyFraction = 0.95
)

// Expectation is one data quality check over a dataset
type Expectation struct {
	Type    string
	Column  string
	ColumnB string  // Second column of pair checks
	Tag     string  // validator tag applied per value
	Mostly  float64 // Fraction of values that must pass, 1 when zero
}

// Name identifies the expectation in reports
func (e Expectation) Name() string {
	if e.ColumnB != "" {
		return fmt.Sprintf("%s(%s,%s)", e.Type, e.Column, e.ColumnB)
	}
	return fmt.Sprintf("%s(%s)", e.Type, e.Column)
}

// Result is the outcome of one expectation
type Result struct {
	Expectation string `json:"expectation"`
	Success     bool   `json:"success"`
	Checked     int    `json:"checked"`
	Unexpected  int    `json:"unexpected"`
}

// Report summarises a validation run
type Report struct {
	Success bool     `json:"success"`
	Passed  int      `json:"passed"`
	Total   int      `json:"total"`
	Failed  []string `json:"failed_expectations"`
	Results []Result `json:"results"`
}

// TelcoSuite returns the quality gate for telco customer churn data: schema,
// allowed values, numeric bounds and the charges consistency rule.
func TelcoSuite() []Expectation {
	var suite []Expectation

	for _, col := range []string{
		"customerID", "gender", "Partner", "Dependents",
		"PhoneService", "InternetService", "Contract",
		"tenure", "MonthlyCharges", "TotalCharges",
	} {
		suite = append(suite, Expectation{Type: ExpectColumnToExist, Column: col})
	}
	suite = append(suite, Expectation{Type: ExpectValuesNotNull, Column: "customerID"})

	suite = append(suite,
		Expectation{Type: ExpectValuesInSet, Column: "gender", Tag: "gender"},
		Expectation{Type: ExpectValuesInSet, Column: "Partner", Tag: "yesno"},
		Expectation{Type: ExpectValuesInSet, Column: "Dependents", Tag: "yesno"},
		Expectation{Type: ExpectValuesInSet, Column: "PhoneService", Tag: "yesno"},
		Expectation{Type: ExpectValuesInSet, Column: "Contract", Tag: "contractkind"},
		Expectation{Type: ExpectValuesInSet, Column: "InternetService", Tag: "internetkind"},
	)

	suite = append(suite,
		Expectation{Type: ExpectValuesBetween, Column: "tenure", Tag: "gte=0"},
		Expectation{Type: ExpectValuesBetween, Column: "MonthlyCharges", Tag: "gte=0"},
		Expectation{Type: ExpectValuesBetween, Column: "TotalCharges", Tag: "gte=0"},
		Expectation{Type: ExpectValuesBetween, Column: "tenure", Tag: "tenuremonths"},
		Expectation{Type: ExpectValuesBetween, Column: "MonthlyCharges", Tag: "monthlycharges"},
		Expectation{Type: ExpectValuesNotNull, Column: "tenure"},
		Expectation{Type: ExpectValuesNotNull, Column: "MonthlyCharges"},
	)

	suite = append(suite, Expectation{
		Type:    ExpectPairAGreaterThanB,
		Column:  "TotalCharges",
		ColumnB: "MonthlyCharges",
		Mostly:  defaultPairMostlyFraction,
	})
	return suite
}

// ValidateDataset runs the telco suite over a dataset
func ValidateDataset(ds *model.Dataset, logger *zap.Logger) *Report {
	return Validate(ds, TelcoSuite(), logger)
}

// Validate runs every expectation of a suite. A dataset passes only when all
// expectations pass.
func Validate(ds *model.Dataset, suite []Expectation, logger *zap.Logger) *Report {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("data-validation")
	logger.Info("Validating dataset",
		zap.String("source", ds.Source),
		zap.Int("rows", ds.Len()),
		zap.Int("expectations", len(suite)))

	report := &Report{Success: true, Total: len(suite)}
	for _, exp := range suite {
		res := evaluate(ds, exp)
		report.Results = append(report.Results, res)
		if res.Success {
			report.Passed++
			continue
		}
		report.Success = false
		report.Failed = append(report.Failed, res.Expectation)
		logger.Warn("Expectation failed",
			zap.String("expectation", res.Expectation),
			zap.Int("unexpected", res.Unexpected),
			zap.Int("checked", res.Checked))
	}

	if report.Success {
		logger.Info("Validation passed",
			zap.Int("passed", report.Passed),
			zap.Int("total", report.Total))
	} else {
		logger.Error("Validation failed",
			zap.Int("failed", len(report.Failed)),
			zap.Int("total", report.Total),
			zap.Strings("failed_expectations", report.Failed))
	}
	return report
}

func evaluate(ds *model.Dataset, exp Expectation) Result {
	res := Result{Expectation: exp.Name()}

	if exp.Type == ExpectColumnToExist {
		res.Checked = 1
		res.Success = ds.HasColumn(exp.Column)
		if !res.Success {
			res.Unexpected = 1
		}
		return res
	}

	// Every value check fails outright on a missing column
	if !ds.HasColumn(exp.Column) || (exp.ColumnB != "" && !ds.HasColumn(exp.ColumnB)) {
		return res
	}

	for _, row := range ds.Rows {
		v := row[exp.Column]
		switch exp.Type {
		case ExpectValuesNotNull:
			res.Checked++
			if isNull(v) {
				res.Unexpected++
			}

		case ExpectValuesInSet:
			if isNull(v) {
				continue
			}
			res.Checked++
			if !validateValue(strings.TrimSpace(v.String()), exp.Tag) {
				res.Unexpected++
			}

		case ExpectValuesBetween:
			if isNull(v) {
				continue
			}
			res.Checked++
			f, ok := numeric(v)
			if !ok || !validateValue(f, exp.Tag) {
				res.Unexpected++
			}

		case ExpectPairAGreaterThanB:
			a, okA := numeric(v)
			b, okB := numeric(row[exp.ColumnB])
			if !okA || !okB {
				continue
			}
			res.Checked++
			if a < b {
				res.Unexpected++
			}

		default:
			res.Checked++
			res.Unexpected++
		}
	}

	mostly := exp.Mostly
	if mostly <= 0 {
		mostly = 1
	}
	if res.Checked == 0 {
		res.Success = true
		return res
	}
	passed := float64(res.Checked-res.Unexpected) / float64(res.Checked)
	res.Success = passed >= mostly
	return res
}

// isNull treats missing values and blank text as null
func isNull(v model.Value) bool {
	return v.Missing || (v.Kind == model.KindText && strings.TrimSpace(v.Str) == "")
}

// numeric reads a value as a number, parsing text cells
func numeric(v model.Value) (float64, bool) {
	if isNull(v) {
		return 0, false
	}
	if f, ok := v.Float64(); ok {
		return f, true
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
