// Package telemetry collects per-tick performance samples, aggregates them
// with gonum, exports CSV windows and streams transit records over the
// optional logger side channel.
package telemetry

import (
	"log/slog"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// PerfCollector records step durations in a fixed ring buffer. Writes happen
// only on the owning worker's tick loop; Stats copies the window out, so no
// locking is needed.
type PerfCollector struct {
	windowSize  int
	samples     []float64 // milliseconds
	writeIndex  int
	sampleCount int
	tickStart   time.Time
}

// NewPerfCollector creates a collector averaging over windowSize ticks.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 300
	}
	return &PerfCollector{
		windowSize: windowSize,
		samples:    make([]float64, windowSize),
	}
}

// StartTick marks the beginning of a step.
func (p *PerfCollector) StartTick() {
	p.tickStart = time.Now()
}

// EndTick records the step duration.
func (p *PerfCollector) EndTick() {
	p.Record(time.Since(p.tickStart))
}

// Record adds one step duration to the window.
func (p *PerfCollector) Record(d time.Duration) {
	p.samples[p.writeIndex] = float64(d) / float64(time.Millisecond)
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// Reset drops all samples.
func (p *PerfCollector) Reset() {
	p.writeIndex = 0
	p.sampleCount = 0
}

// PerfStats aggregates one window of step durations, all in milliseconds.
type PerfStats struct {
	AvgStepMs   float64
	MinStepMs   float64
	MaxStepMs   float64
	StdDev      float64
	CV          float64
	P50         float64
	P95         float64
	P99         float64
	SampleCount int
}

// Stats computes the window aggregate.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{}
	}

	window := make([]float64, p.sampleCount)
	copy(window, p.samples[:p.sampleCount])
	sort.Float64s(window)

	mean, std := stat.MeanStdDev(window, nil)
	if len(window) < 2 {
		std = 0
	}
	s := PerfStats{
		AvgStepMs:   mean,
		MinStepMs:   window[0],
		MaxStepMs:   window[len(window)-1],
		StdDev:      std,
		P50:         stat.Quantile(0.50, stat.Empirical, window, nil),
		P95:         stat.Quantile(0.95, stat.Empirical, window, nil),
		P99:         stat.Quantile(0.99, stat.Empirical, window, nil),
		SampleCount: p.sampleCount,
	}
	if mean > 0 {
		s.CV = std / mean
	}
	return s
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("avg_ms", s.AvgStepMs),
		slog.Float64("min_ms", s.MinStepMs),
		slog.Float64("max_ms", s.MaxStepMs),
		slog.Float64("std_dev", s.StdDev),
		slog.Float64("cv", s.CV),
		slog.Float64("p50", s.P50),
		slog.Float64("p95", s.P95),
		slog.Float64("p99", s.P99),
		slog.Int("samples", s.SampleCount),
	)
}
