package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Timer measures the duration of an operation for histogram observation
type Timer struct {
	start time.Time
}

// NewTimer creates a timer starting now
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time in the given histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed time in a histogram vec with labels
func (t *Timer) ObserveDurationVec(vec *prometheus.HistogramVec, labels ...string) {
	vec.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
