package mock

import (
	"fmt"
	"time"
)

// RecordingStatter sums up counts and timings by name and keeps the last
// gauge value.
type RecordingStatter struct {
	Counts  map[string]int64
	Gauges  map[string]float64
	Timings map[string]time.Duration
}

func (r *RecordingStatter) Count(name string, value int64, rate float64, tags ...string) {
	if r.Counts == nil {
		r.Counts = make(map[string]int64)
	}
	r.Counts[name] += value
}

func (r *RecordingStatter) Gauge(name string, value float64, rate float64, tags ...string) {
	if r.Gauges == nil {
		r.Gauges = make(map[string]float64)
	}
	r.Gauges[name] = value
}

func (r *RecordingStatter) Timing(name string, value time.Duration, rate float64, tags ...string) {
	if r.Timings == nil {
		r.Timings = make(map[string]time.Duration)
	}
	r.Timings[name] += value
}

// RecordingLogger keeps every warning it is given.
type RecordingLogger struct {
	Warnings []string
	Lines    []string
}

func (r *RecordingLogger) Printf(format string, v ...interface{}) {
	r.Lines = append(r.Lines, fmt.Sprintf(format, v...))
}

func (r *RecordingLogger) Debugf(format string, v ...interface{}) {}

func (r *RecordingLogger) Warnf(format string, v ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, v...))
}
