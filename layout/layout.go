// Package layout carves the shared simulation buffers into per-fab regions,
// assigns fabs to workers and computes the renderer-facing continuous layout.
// All offsets are in element units (float32 or int32 slots, not bytes) and
// are stable for the lifetime of an initialization.
package layout

import (
	"errors"
	"fmt"
)

const (
	// VehicleDataSize is the per-vehicle stride of the vehicle buffer in
	// float32 slots. Field offsets are defined in the store package; spare
	// slots at the end keep the stride stable across field additions.
	VehicleDataSize = 22

	// SensorDataSize is the per-vehicle stride of the sensor buffer:
	// 3 zones x 6 points x 2 floats, plus the body front pair. The body
	// rear corners share zone 0's BL/BR slots.
	SensorDataSize = 40

	// CheckpointDataSize is the per-vehicle stride of the optional
	// checkpoint buffer in int32 slots: edge index, node index, kind, flag.
	CheckpointDataSize = 4
)

var (
	ErrNoFabs     = errors.New("layout: no fabs")
	ErrNoWorkers  = errors.New("layout: worker count must be positive")
	ErrBadFabSpec = errors.New("layout: invalid fab spec")
)

// FabSpec is the build-time sizing input for one fab.
type FabSpec struct {
	FabID       string
	MaxVehicles int
}

// Region is a contiguous slice of a shared buffer owned by one fab.
type Region struct {
	Offset      int
	Size        int
	MaxVehicles int
}

// End returns the exclusive end offset of the region.
func (r Region) End() int { return r.Offset + r.Size }

// FabAssignment holds the regions carved out for one fab.
type FabAssignment struct {
	FabID      string
	Vehicle    Region
	Sensor     Region
	Path       Region
	Checkpoint Region // zero Size when checkpoints are disabled
}

// WorkerAssignment maps a worker index to the fabs it owns.
type WorkerAssignment struct {
	WorkerID int
	FabIDs   []string
}

// Layout is the complete partitioning of the shared buffers.
type Layout struct {
	Fabs    []FabAssignment
	Workers []WorkerAssignment

	VehicleFloats    int
	SensorFloats     int
	PathInts         int
	CheckpointInts   int
	TotalMaxVehicles int

	byFab map[string]int
}

// Fab returns the assignment for a fab id.
func (l *Layout) Fab(fabID string) (FabAssignment, bool) {
	i, ok := l.byFab[fabID]
	if !ok {
		return FabAssignment{}, false
	}
	return l.Fabs[i], true
}

// Compute builds the deterministic layout: regions accumulate in fab-input
// order and never overlap; workers get ceil(fabs/workers) fabs each, trailing
// empty workers are omitted and the rest re-indexed consecutively.
func Compute(fabs []FabSpec, numWorkers, pathLen int, withCheckpoints bool) (*Layout, error) {
	if len(fabs) == 0 {
		return nil, ErrNoFabs
	}
	if numWorkers < 1 {
		return nil, ErrNoWorkers
	}
	if pathLen < 1 {
		return nil, fmt.Errorf("%w: path length %d", ErrBadFabSpec, pathLen)
	}

	l := &Layout{byFab: make(map[string]int, len(fabs))}

	var vehOff, senOff, pathOff, cpOff int
	for _, f := range fabs {
		if f.FabID == "" || f.MaxVehicles < 1 {
			return nil, fmt.Errorf("%w: %+v", ErrBadFabSpec, f)
		}
		if _, dup := l.byFab[f.FabID]; dup {
			return nil, fmt.Errorf("%w: duplicate fab id %q", ErrBadFabSpec, f.FabID)
		}

		a := FabAssignment{
			FabID:   f.FabID,
			Vehicle: Region{Offset: vehOff, Size: f.MaxVehicles * VehicleDataSize, MaxVehicles: f.MaxVehicles},
			Sensor:  Region{Offset: senOff, Size: f.MaxVehicles * SensorDataSize, MaxVehicles: f.MaxVehicles},
			Path:    Region{Offset: pathOff, Size: f.MaxVehicles * pathLen, MaxVehicles: f.MaxVehicles},
		}
		if withCheckpoints {
			a.Checkpoint = Region{Offset: cpOff, Size: f.MaxVehicles * CheckpointDataSize, MaxVehicles: f.MaxVehicles}
			cpOff = a.Checkpoint.End()
		}
		vehOff = a.Vehicle.End()
		senOff = a.Sensor.End()
		pathOff = a.Path.End()

		l.byFab[f.FabID] = len(l.Fabs)
		l.Fabs = append(l.Fabs, a)
		l.TotalMaxVehicles += f.MaxVehicles
	}
	l.VehicleFloats = vehOff
	l.SensorFloats = senOff
	l.PathInts = pathOff
	l.CheckpointInts = cpOff

	perWorker := (len(fabs) + numWorkers - 1) / numWorkers
	for w := 0; w < numWorkers; w++ {
		start := w * perWorker
		if start >= len(fabs) {
			break
		}
		end := start + perWorker
		if end > len(fabs) {
			end = len(fabs)
		}
		ids := make([]string, 0, end-start)
		for _, f := range fabs[start:end] {
			ids = append(ids, f.FabID)
		}
		l.Workers = append(l.Workers, WorkerAssignment{WorkerID: len(l.Workers), FabIDs: ids})
	}

	return l, nil
}
