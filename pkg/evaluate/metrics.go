// pkg/evaluate/metrics.go

// Package evaluate scores binary classifier output against true labels.
package evaluate

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrLengthMismatch is returned when labels and scores differ in length
	ErrLengthMismatch = errors.New("labels and predictions differ in length")

	// ErrNoSamples is returned for empty inputs
	ErrNoSamples = errors.New("no samples to evaluate")
)

// ConfusionMatrix counts outcomes of a binary classifier
type ConfusionMatrix struct {
	TN int `json:"tn"`
	FP int `json:"fp"`
	FN int `json:"fn"`
	TP int `json:"tp"`
}

// String renders the matrix with true labels as rows
func (c ConfusionMatrix) String() string {
	return fmt.Sprintf("[[%d %d]\n [%d %d]]", c.TN, c.FP, c.FN, c.TP)
}

// Metrics is the evaluation of one model on one labelled set
type Metrics struct {
	Threshold float64         `json:"threshold"`
	Accuracy  float64         `json:"accuracy"`
	Precision float64         `json:"precision"`
	Recall    float64         `json:"recall"`
	F1        float64         `json:"f1"`
	ROCAUC    float64         `json:"roc_auc"` // NaN when only one class is present
	Confusion ConfusionMatrix `json:"confusion_matrix"`
}

// Evaluate thresholds positive class probabilities and scores the result.
// Labels are 0/1.
func Evaluate(yTrue, proba []float64, threshold float64) (*Metrics, error) {
	if len(yTrue) != len(proba) {
		return nil, fmt.Errorf("%w: %d labels, %d scores", ErrLengthMismatch, len(yTrue), len(proba))
	}
	if len(yTrue) == 0 {
		return nil, ErrNoSamples
	}

	yPred := make([]float64, len(proba))
	for i, p := range proba {
		if p >= threshold {
			yPred[i] = 1
		}
	}

	m := &Metrics{Threshold: threshold, Confusion: Confusion(yTrue, yPred)}
	m.Accuracy, m.Precision, m.Recall, m.F1 = m.Confusion.Scores()
	m.ROCAUC = ROCAUC(yTrue, proba)
	return m, nil
}

// Confusion counts predictions against labels
func Confusion(yTrue, yPred []float64) ConfusionMatrix {
	var c ConfusionMatrix
	for i := range yTrue {
		switch {
		case yTrue[i] == 1 && yPred[i] == 1:
			c.TP++
		case yTrue[i] == 1:
			c.FN++
		case yPred[i] == 1:
			c.FP++
		default:
			c.TN++
		}
	}
	return c
}

// Scores returns accuracy, precision, recall and F1 for the positive class.
// Undefined ratios are reported as 0.
func (c ConfusionMatrix) Scores() (accuracy, precision, recall, f1 float64) {
	total := c.TP + c.TN + c.FP + c.FN
	accuracy = ratio(c.TP+c.TN, total)
	precision = ratio(c.TP, c.TP+c.FP)
	recall = ratio(c.TP, c.TP+c.FN)
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return accuracy, precision, recall, f1
}

// ROCAUC returns the area under the ROC curve of scores against 0/1 labels,
// or NaN when the labels hold a single class.
func ROCAUC(yTrue, scores []float64) float64 {
	n := len(yTrue)
	if n == 0 || n != len(scores) {
		return math.NaN()
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	y := make([]float64, n)
	classes := make([]bool, n)
	positives := 0
	for k, i := range idx {
		y[k] = scores[i]
		classes[k] = yTrue[i] == 1
		if classes[k] {
			positives++
		}
	}
	if positives == 0 || positives == n {
		return math.NaN()
	}

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

// Map returns the scalar metrics keyed the way they are logged to runs
func (m *Metrics) Map() map[string]float64 {
	out := map[string]float64{
		"accuracy":  m.Accuracy,
		"precision": m.Precision,
		"recall":    m.Recall,
		"f1":        m.F1,
	}
	if !math.IsNaN(m.ROCAUC) {
		out["roc_auc"] = m.ROCAUC
	}
	return out
}

// Report renders a per-class classification report with macro and support
// weighted averages
func Report(yTrue, yPred []float64, digits int) string {
	c := Confusion(yTrue, yPred)

	// The negative class report is the positive report with labels swapped
	neg := ConfusionMatrix{TP: c.TN, TN: c.TP, FP: c.FN, FN: c.FP}
	_, p0, r0, f0 := neg.Scores()
	acc, p1, r1, f1 := c.Scores()
	s0, s1 := c.TN+c.FP, c.TP+c.FN
	total := s0 + s1

	row := func(label string, p, r, f float64, support int) string {
		return fmt.Sprintf("%12s %9.*f %9.*f %9.*f %9d\n", label, digits, p, digits, r, digits, f, support)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%12s %9s %9s %9s %9s\n\n", "", "precision", "recall", "f1-score", "support")
	b.WriteString(row("0", p0, r0, f0, s0))
	b.WriteString(row("1", p1, r1, f1, s1))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%12s %9s %9s %9.*f %9d\n", "accuracy", "", "", digits, acc, total)
	b.WriteString(row("macro avg", (p0+p1)/2, (r0+r1)/2, (f0+f1)/2, total))

	w0, w1 := ratio(s0, total), ratio(s1, total)
	b.WriteString(row("weighted avg", w0*p0+w1*p1, w0*r0+w1*r1, w0*f0+w1*f1, total))
	return b.String()
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
