package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// OutputManager appends perf windows to a per-worker CSV file.
type OutputManager struct {
	dir      string
	perfFile *os.File

	perfHeaderWritten bool
}

// NewOutputManager creates the output directory and perf file. Returns nil
// if dir is empty (output disabled); a nil manager is safe to call.
func NewOutputManager(dir string, workerID int) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	perfPath := filepath.Join(dir, fmt.Sprintf("perf_worker%d.csv", workerID))
	f, err := os.Create(perfPath)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", perfPath, err)
	}
	return &OutputManager{dir: dir, perfFile: f}, nil
}

// PerfStatsCSV is the flat CSV row for one perf window.
type PerfStatsCSV struct {
	SimTimeSec  float64 `csv:"sim_time"`
	Vehicles    int     `csv:"vehicles"`
	AvgStepMs   float64 `csv:"avg_step_ms"`
	MinStepMs   float64 `csv:"min_step_ms"`
	MaxStepMs   float64 `csv:"max_step_ms"`
	StdDev      float64 `csv:"std_dev"`
	CV          float64 `csv:"cv"`
	P50         float64 `csv:"p50"`
	P95         float64 `csv:"p95"`
	P99         float64 `csv:"p99"`
	SampleCount int     `csv:"samples"`
}

// WritePerf appends one window to the worker's perf_worker<N>.csv.
func (om *OutputManager) WritePerf(s PerfStats, simTime float64, vehicles int) error {
	if om == nil {
		return nil
	}

	records := []PerfStatsCSV{{
		SimTimeSec:  simTime,
		Vehicles:    vehicles,
		AvgStepMs:   s.AvgStepMs,
		MinStepMs:   s.MinStepMs,
		MaxStepMs:   s.MaxStepMs,
		StdDev:      s.StdDev,
		CV:          s.CV,
		P50:         s.P50,
		P95:         s.P95,
		P99:         s.P99,
		SampleCount: s.SampleCount,
	}}

	if !om.perfHeaderWritten {
		if err := gocsv.Marshal(records, om.perfFile); err != nil {
			return fmt.Errorf("writing perf: %w", err)
		}
		om.perfHeaderWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, om.perfFile); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes the output files.
func (om *OutputManager) Close() error {
	if om == nil || om.perfFile == nil {
		return nil
	}
	return om.perfFile.Close()
}
