package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeRegions(t *testing.T) {
	fabs := []FabSpec{
		{FabID: "fab_0", MaxVehicles: 10},
		{FabID: "fab_1", MaxVehicles: 4},
		{FabID: "fab_2", MaxVehicles: 7},
	}

	l, err := Compute(fabs, 2, 100, true)
	require.NoError(t, err)

	require.Len(t, l.Fabs, 3)
	assert.Equal(t, 21, l.TotalMaxVehicles)

	// Regions accumulate in input order with no overlap.
	var prevVeh, prevSen, prevPath, prevCp int
	for i, f := range l.Fabs {
		assert.Equal(t, prevVeh, f.Vehicle.Offset, "fab %d vehicle offset", i)
		assert.Equal(t, prevSen, f.Sensor.Offset, "fab %d sensor offset", i)
		assert.Equal(t, prevPath, f.Path.Offset, "fab %d path offset", i)
		assert.Equal(t, prevCp, f.Checkpoint.Offset, "fab %d checkpoint offset", i)
		assert.Equal(t, f.Vehicle.MaxVehicles*VehicleDataSize, f.Vehicle.Size)
		assert.Equal(t, f.Sensor.MaxVehicles*SensorDataSize, f.Sensor.Size)
		prevVeh = f.Vehicle.End()
		prevSen = f.Sensor.End()
		prevPath = f.Path.End()
		prevCp = f.Checkpoint.End()
	}
	assert.Equal(t, prevVeh, l.VehicleFloats)
	assert.Equal(t, prevSen, l.SensorFloats)
	assert.Equal(t, prevPath, l.PathInts)
	assert.Equal(t, prevCp, l.CheckpointInts)

	fab1, ok := l.Fab("fab_1")
	require.True(t, ok)
	assert.Equal(t, 10*VehicleDataSize, fab1.Vehicle.Offset)
}

func TestComputeWorkerAssignment(t *testing.T) {
	fabs := []FabSpec{
		{FabID: "a", MaxVehicles: 1},
		{FabID: "b", MaxVehicles: 1},
		{FabID: "c", MaxVehicles: 1},
	}

	// ceil(3/2) = 2 fabs per worker.
	l, err := Compute(fabs, 2, 10, false)
	require.NoError(t, err)
	require.Len(t, l.Workers, 2)
	assert.Equal(t, []string{"a", "b"}, l.Workers[0].FabIDs)
	assert.Equal(t, []string{"c"}, l.Workers[1].FabIDs)

	// More workers than fabs: trailing empties omitted, re-indexed.
	l, err = Compute(fabs, 8, 10, false)
	require.NoError(t, err)
	require.Len(t, l.Workers, 3)
	for i, w := range l.Workers {
		assert.Equal(t, i, w.WorkerID)
		assert.Len(t, w.FabIDs, 1)
	}
}

func TestComputeRejectsBadInput(t *testing.T) {
	_, err := Compute(nil, 1, 10, false)
	assert.ErrorIs(t, err, ErrNoFabs)

	fabs := []FabSpec{{FabID: "a", MaxVehicles: 1}}
	_, err = Compute(fabs, 0, 10, false)
	assert.ErrorIs(t, err, ErrNoWorkers)

	_, err = Compute([]FabSpec{{FabID: "", MaxVehicles: 1}}, 1, 10, false)
	assert.ErrorIs(t, err, ErrBadFabSpec)

	_, err = Compute([]FabSpec{{FabID: "a", MaxVehicles: 1}, {FabID: "a", MaxVehicles: 1}}, 1, 10, false)
	assert.ErrorIs(t, err, ErrBadFabSpec)
}

func TestRenderLayoutContinuous(t *testing.T) {
	rl, err := ComputeRender([]RenderFabSlice{
		{FabID: "fab_0", NumVehicles: 3},
		{FabID: "fab_1", NumVehicles: 5},
	})
	require.NoError(t, err)

	assert.Equal(t, 8, rl.TotalVehicles)
	assert.Equal(t, NumRenderSections*8*FloatsPerSectionVehicle, rl.SensorFloats())
	assert.Equal(t, 8*VehicleRenderStride, rl.VehicleFloats())

	f0, ok := rl.Fab("fab_0")
	require.True(t, ok)
	f1, ok := rl.Fab("fab_1")
	require.True(t, ok)
	assert.Equal(t, 0, f0.VehicleStartIndex)
	assert.Equal(t, 3, f1.VehicleStartIndex)

	// Section bases step by totalVehicles*4; fab slices sit inside each section.
	assert.Equal(t, 0, rl.SectionBase(SectionZone0StartEnd))
	assert.Equal(t, 32, rl.SectionBase(SectionZone0Other))
	assert.Equal(t, 32+3*4, rl.FabSectionBase(SectionZone0Other, f1))
}
