package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("", 0)
	if err != nil {
		t.Fatalf("disabled manager: %v", err)
	}
	if om != nil {
		t.Fatal("empty dir should return a nil manager")
	}
	// A nil manager is safe to use.
	if err := om.WritePerf(PerfStats{}, 0, 0); err != nil {
		t.Fatalf("nil WritePerf: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}

func TestOutputManagerWritesCSV(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir, 3)
	if err != nil {
		t.Fatalf("creating manager: %v", err)
	}

	p := NewPerfCollector(16)
	p.Record(2 * time.Millisecond)
	p.Record(4 * time.Millisecond)

	if err := om.WritePerf(p.Stats(), 1.5, 40); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := om.WritePerf(p.Stats(), 6.5, 40); err != nil {
		t.Fatalf("second write: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "perf_worker3.csv"))
	if err != nil {
		t.Fatalf("reading csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows:\n%s", len(lines), data)
	}
	if !strings.HasPrefix(lines[0], "sim_time,vehicles,avg_step_ms") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "1.5,40,3") {
		t.Errorf("unexpected first row %q", lines[1])
	}
}
