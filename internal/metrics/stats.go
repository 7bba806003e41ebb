package metrics

import "time"

// Window accumulates per-vector costs between two log lines. Each vector
// passes through up to three timed stages: read (obtaining the vector), score
// (the primary scorer) and verify (re-scoring with a second scorer).
type Window struct {
	vectors   int
	positives int
	read      time.Duration
	score     time.Duration
	verify    time.Duration
	lastScore float64
}

// Record adds one scored vector.
func (w *Window) Record(read, score time.Duration, result float64) {
	w.vectors++
	if result > 0 {
		w.positives++
	}
	w.read += read
	w.score += score
	w.lastScore = result
}

// Verify adds the time spent re-scoring the most recent vector.
func (w *Window) Verify(d time.Duration) {
	w.verify += d
}

// Snapshot returns the aggregate since the previous Snapshot and resets the
// window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{Vectors: w.vectors, LastScore: w.lastScore}
	if total := w.read + w.score + w.verify; total > 0 {
		snap.VectorsPerSec = float64(w.vectors) / total.Seconds()
	}
	if w.vectors > 0 {
		n := float64(w.vectors)
		snap.AvgReadMS = w.read.Seconds() * 1000 / n
		snap.AvgScoreMS = w.score.Seconds() * 1000 / n
		snap.AvgVerifyMS = w.verify.Seconds() * 1000 / n
		snap.PositiveRate = float64(w.positives) / n
	}
	*w = Window{}
	return snap
}

// Snapshot represents loggable metrics.
type Snapshot struct {
	Vectors       int
	VectorsPerSec float64
	AvgReadMS     float64
	AvgScoreMS    float64
	AvgVerifyMS   float64
	PositiveRate  float64
	LastScore     float64
}
