package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewTimer tests timer creation
func TestNewTimer(t *testing.T) {
	timer := NewTimer()

	if timer == nil {
		t.Fatal("NewTimer() returned nil")
	}

	if timer.start.IsZero() {
		t.Error("NewTimer() start time is zero")
	}

	if time.Since(timer.start) > time.Second {
		t.Error("NewTimer() start time is not recent")
	}
}

// TestTimerDuration tests duration measurement
func TestTimerDuration(t *testing.T) {
	timer := NewTimer()

	sleepDuration := 100 * time.Millisecond
	time.Sleep(sleepDuration)

	duration := timer.Duration()

	if duration < sleepDuration {
		t.Errorf("Timer.Duration() = %v, want >= %v", duration, sleepDuration)
	}
}

// TestTimerObserveDuration tests histogram observation
func TestTimerObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration histogram",
		Buckets: prometheus.DefBuckets,
	})

	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)

	// This should not panic
	timer.ObserveDuration(histogram)

	if timer.Duration() == 0 {
		t.Error("Timer.ObserveDuration() recorded zero duration")
	}
}

// TestTimerObserveDurationVec tests histogram vec observation
func TestTimerObserveDurationVec(t *testing.T) {
	histogramVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_duration_vec_seconds",
			Help:    "Test duration histogram vec",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)

	timer.ObserveDurationVec(histogramVec, "resync")

	if timer.Duration() == 0 {
		t.Error("Timer.ObserveDurationVec() recorded zero duration")
	}
}

// TestTimerMultipleCalls tests that Duration can be called multiple times
func TestTimerMultipleCalls(t *testing.T) {
	timer := NewTimer()

	time.Sleep(20 * time.Millisecond)
	duration1 := timer.Duration()

	time.Sleep(20 * time.Millisecond)
	duration2 := timer.Duration()

	if duration2 <= duration1 {
		t.Errorf("Second Duration() call should be longer: first=%v, second=%v", duration1, duration2)
	}
}
