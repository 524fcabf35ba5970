package logic

import "time"

// window is a fixed-capacity FIFO of the most recent valid values.
type window struct {
	buf   [WindowSize]float64
	head  int // next write position
	count int
}

func (w *window) push(v float64) {
	w.buf[w.head] = v
	w.head = (w.head + 1) % WindowSize
	if w.count < WindowSize {
		w.count++
	}
}

func (w *window) mean() float64 {
	if w.count == 0 {
		return 0
	}
	// Oldest item is at (head - count) mod capacity
	start := (w.head - w.count + WindowSize) % WindowSize
	sum := 0.0
	for i := 0; i < w.count; i++ {
		sum += w.buf[(start+i)%WindowSize]
	}
	return sum / float64(w.count)
}

// FallbackState is the last-known-good smoothed value for a metric.
type FallbackState struct {
	Value float64
	At    time.Time
}

// metricState tracks the window and fallback bookkeeping for one metric.
type metricState struct {
	win         window
	fallback    FallbackState
	lastInvalid bool
}

// Smoother keeps a moving-average window and fallback state per metric.
// Not safe for concurrent use; it is owned by the control loop.
type Smoother struct {
	metrics [numMetrics]metricState
}

// NewSmoother creates an empty Smoother.
func NewSmoother() *Smoother {
	return &Smoother{}
}

// Record folds a sample into the smoother. Invalid or out-of-range samples
// never enter the window; they only mark the metric as running on fallback.
func (s *Smoother) Record(sample Sample) {
	if sample.Metric < 0 || sample.Metric >= numMetrics {
		return
	}
	ms := &s.metrics[sample.Metric]

	if !sampleUsable(sample) {
		ms.lastInvalid = true
		return
	}

	ms.win.push(sample.Value)
	ms.fallback = FallbackState{Value: ms.win.mean(), At: sample.Time}
	ms.lastInvalid = false
}

// Smoothed returns the current smoothed value of a metric as seen at now.
func (s *Smoother) Smoothed(m Metric, now time.Time) SmoothedValue {
	sv := SmoothedValue{Metric: m}
	if m < 0 || m >= numMetrics {
		return sv
	}
	ms := &s.metrics[m]
	if ms.win.count == 0 {
		return sv
	}

	sv.Available = true
	sv.Value = ms.fallback.Value
	sv.Count = ms.win.count
	sv.Fallback = ms.lastInvalid
	sv.Age = now.Sub(ms.fallback.At)
	if sv.Age < 0 {
		sv.Age = 0
	}
	return sv
}

// Fallback returns the last-known-good state of a metric and whether one exists.
func (s *Smoother) Fallback(m Metric) (FallbackState, bool) {
	if m < 0 || m >= numMetrics {
		return FallbackState{}, false
	}
	ms := &s.metrics[m]
	return ms.fallback, ms.win.count > 0
}

// All returns the smoothed view of every metric at now.
func (s *Smoother) All(now time.Time) Metrics {
	var out Metrics
	for _, m := range AllMetrics {
		out[m] = s.Smoothed(m, now)
	}
	return out
}

// Metrics is the smoothed view of all metrics for one tick, indexed by Metric.
type Metrics [numMetrics]SmoothedValue

func sampleUsable(s Sample) bool {
	if !s.Valid {
		return false
	}
	lo, hi := s.Metric.ValidRange()
	// NaN fails both comparisons.
	return s.Value >= lo && s.Value <= hi
}
