package metrics

import (
	"math"

	"github.com/montanaflynn/stats"
)

// Task selects how Evaluation interprets scores.
type Task int

const (
	// TwoClass treats a score above zero as a positive prediction and a label
	// above zero as a positive example. One-class models use it too.
	TwoClass Task = iota
	// MultiClass expects the score to be the predicted label.
	MultiClass
	// Regression expects the score to estimate the label.
	Regression
)

// Evaluation compares scores against labels. The zero value evaluates a
// two-class model.
type Evaluation struct {
	Task Task

	tp, fp, tn, fn int
	correct        int
	sqErr          float64
	scores         stats.Float64Data
	maxDiff        float64
	compared       int
}

// Add records one scored example.
func (e *Evaluation) Add(label, score float64) {
	e.scores = append(e.scores, score)
	switch e.Task {
	case MultiClass:
		if score == label {
			e.correct++
		}
		return
	case Regression:
		e.sqErr += (score - label) * (score - label)
		return
	}
	pos := score > 0
	switch {
	case pos && label > 0:
		e.tp++
	case pos:
		e.fp++
	case label > 0:
		e.fn++
	default:
		e.tn++
	}
}

// Compare records the gap between two scores of the same example, typically
// the engine's and the exported model's.
func (e *Evaluation) Compare(a, b float64) {
	e.compared++
	if d := math.Abs(a - b); d > e.maxDiff {
		e.maxDiff = d
	}
}

// Report summarises the examples added so far.
//
// Accuracy is set for classification tasks; Precision, Recall and F1 for
// TwoClass only; MSE for Regression only.
type Report struct {
	Task      Task
	Count     int
	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
	MSE       float64

	ScoreMean   float64
	ScoreStdDev float64
	ScoreMin    float64
	ScoreMedian float64
	ScoreP90    float64
	ScoreMax    float64

	// MaxScoreDiff is the largest gap passed to Compare.
	MaxScoreDiff float64
	Compared     int
}

// Report computes the summary. Ratios with an empty denominator are zero.
func (e *Evaluation) Report() Report {
	r := Report{Task: e.Task, Count: len(e.scores), MaxScoreDiff: e.maxDiff, Compared: e.compared}
	if r.Count == 0 {
		return r
	}
	switch e.Task {
	case MultiClass:
		r.Accuracy = ratio(e.correct, r.Count)
	case Regression:
		r.MSE = e.sqErr / float64(r.Count)
	default:
		r.Accuracy = ratio(e.tp+e.tn, r.Count)
		r.Precision = ratio(e.tp, e.tp+e.fp)
		r.Recall = ratio(e.tp, e.tp+e.fn)
		if r.Precision+r.Recall > 0 {
			r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
		}
	}

	// stats only fails on empty input.
	r.ScoreMean, _ = stats.Mean(e.scores)
	r.ScoreStdDev, _ = stats.StandardDeviation(e.scores)
	r.ScoreMin, _ = stats.Min(e.scores)
	r.ScoreMax, _ = stats.Max(e.scores)
	r.ScoreMedian, _ = stats.Median(e.scores)
	r.ScoreP90, _ = stats.Percentile(e.scores, 90)
	return r
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
