// Package frametiming implements the one-shot screen-capture interference
// heuristic.
//
// Screen-capture tooling tends to perturb render scheduling. At session
// start the detector samples 30 consecutive rendered-frame interval deltas
// and computes their variance; an abnormally high variance is reported as a
// screenshot-attempt signal. The check runs once and is never repeated
// during the session.
package frametiming

import (
	"sync"
	"time"
)

const (
	// SampleCount is the number of interval deltas collected.
	SampleCount = 30

	// VarianceThreshold is the variance (in squared milliseconds) above
	// which frame timing counts as irregular.
	VarianceThreshold = 150.0
)

// Result is the outcome of the one-shot analysis.
type Result struct {
	Variance   float64 `json:"variance"`
	Suspicious bool    `json:"suspicious"`
}

// Detector accumulates frame timestamps until it has SampleCount deltas,
// then computes the variance exactly once.
type Detector struct {
	mu     sync.Mutex
	last   time.Time
	deltas []float64
	done   bool
	result Result
}

// NewDetector creates an idle detector.
func NewDetector() *Detector {
	return &Detector{deltas: make([]float64, 0, SampleCount)}
}

// Observe records one rendered-frame timestamp. When the sample window
// completes it returns the result with done=true, exactly once; every call
// after that reports done=false.
func (d *Detector) Observe(at time.Time) (Result, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.done {
		return Result{}, false
	}

	if !d.last.IsZero() {
		d.deltas = append(d.deltas, float64(at.Sub(d.last).Microseconds())/1000.0)
	}
	d.last = at

	if len(d.deltas) < SampleCount {
		return Result{}, false
	}

	v := Variance(d.deltas)
	d.result = Result{Variance: v, Suspicious: v > VarianceThreshold}
	d.done = true
	return d.result, true
}

// Done reports whether the one-shot analysis completed.
func (d *Detector) Done() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Result returns the computed result. Valid only after Done.
func (d *Detector) Result() Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.result
}

// Variance computes the population variance of the samples.
func Variance(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean := sum / float64(len(samples))

	var sq float64
	for _, s := range samples {
		diff := s - mean
		sq += diff * diff
	}
	return sq / float64(len(samples))
}
