package engine

import (
	"fmt"

	"github.com/pthm-cable/railsim/store"
)

// VehicleSpec is one configured initial placement.
type VehicleSpec struct {
	EdgeName string
	Ratio    float32
}

// placeFromConfig places vehicles at configured edge/ratio spots. Pose comes
// from the edge polyline at the given ratio.
func (f *FabContext) placeFromConfig(specs []VehicleSpec) (int, error) {
	for i, spec := range specs {
		edgeIdx, ok := f.graph.EdgeIndex[spec.EdgeName]
		if !ok {
			return i, fatalf(nil, "fab %s: placement references unknown edge %q", f.FabID, spec.EdgeName)
		}
		if err := f.placeVehicle(i, edgeIdx, spec.Ratio); err != nil {
			return i, err
		}
	}
	return len(specs), nil
}

// autoPlace generates spots on linear edges long enough to hold vehicles:
// every VehicleSpacing within [NodeMargin, distance-NodeMargin], first
// numVehicles spots taken. Returns the placed count and the map capacity.
func (f *FabContext) autoPlace(numVehicles int) (placed, maxCapacity int, err error) {
	spacing := float32(f.cfg.Placement.VehicleSpacing)
	margin := float32(f.cfg.Placement.NodeMargin)
	minLen := float32(f.cfg.Placement.EdgeMinLength)

	for edge := int32(1); int(edge) <= f.graph.NumEdges(); edge++ {
		e := f.graph.EdgeAt(edge)
		if e.IsCurve() || e.Distance < minLen {
			continue
		}
		for offset := margin; offset <= e.Distance-margin; offset += spacing {
			maxCapacity++
			if placed >= numVehicles {
				continue
			}
			if err := f.placeVehicle(placed, edge, offset/e.Distance); err != nil {
				return placed, maxCapacity, err
			}
			placed++
		}
	}

	if placed < numVehicles {
		f.log.Warn("placement overrequested",
			"requested", numVehicles, "placed", placed, "max_capacity", maxCapacity)
	}
	return placed, maxCapacity, nil
}

// placeVehicle writes one vehicle into the store with pose, preset and loop
// map derived from its starting edge.
func (f *FabContext) placeVehicle(v int, edgeIdx int32, ratio float32) error {
	e := f.graph.EdgeAt(edgeIdx)
	x, y, z, rot := e.SampleAt(ratio)
	z += float32(f.cfg.Vehicle.ZOffset)

	err := f.st.AddVehicle(v, store.Placement{
		X: x, Y: y, Z: z, Rotation: rot,
		EdgeIndex:    edgeIdx,
		EdgeRatio:    ratio,
		Velocity:     0,
		Acceleration: float32(f.cfg.Vehicle.Acceleration),
		Deceleration: float32(f.cfg.Vehicle.Deceleration),
		MovingStatus: store.Moving,
	})
	if err != nil {
		return fatalf(err, "fab %s: placing vehicle %d", f.FabID, v)
	}

	f.st.SetPresetIdx(v, f.presets.ForEdge(e))
	f.transfer.BuildLoopMap(v, edgeIdx, loopMapMaxHops)

	// Initial sensor record so tick 0 collision checks see real geometry.
	f.updatePose(v)
	return nil
}

// loopMapMaxHops bounds the loop walk; matches the path buffer capacity.
const loopMapMaxHops = 100

func (f *FabContext) String() string {
	return fmt.Sprintf("fab(%s, %d vehicles, %d edges)", f.FabID, f.numVehicles, f.graph.NumEdges())
}
