package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/railsim/layout"
	"github.com/pthm-cable/railsim/rail"
	"github.com/pthm-cable/railsim/store"
)

func TestRenderEmissionAppliesOffset(t *testing.T) {
	cfg := testConfig(t)
	nodes, edges := straightChain(20)

	fab := newTestFab(t, cfg, InitParams{
		Nodes: nodes, Edges: edges,
		Vehicles: []VehicleSpec{{EdgeName: "E1", Ratio: 0.5}},
		OffsetX:  100,
		OffsetY:  -50,
	}, 1)

	rl, err := layout.ComputeRender([]layout.RenderFabSlice{
		{FabID: fab.FabID, NumVehicles: 1},
	})
	require.NoError(t, err)
	veh := make([]float32, rl.VehicleFloats())
	sen := make([]float32, rl.SensorFloats())
	require.NoError(t, fab.SetRenderBuffer(veh, sen, rl))

	fab.Step(0, 0)

	// Pose: world position plus the fab offset; sim state keeps raw coords.
	x, y, z := fab.Store().Position(0)
	assert.InDelta(t, 10.0, float64(x), 1e-4)
	assert.Equal(t, x+100, veh[0])
	assert.Equal(t, y-50, veh[1])
	assert.Equal(t, z, veh[2])
	assert.Equal(t, fab.Store().Rotation(0), veh[3])

	// Zone 0 front pair lands in the first section, offset applied.
	sr := fab.Store().SensorSlice(0)
	base := rl.SectionBase(layout.SectionZone0StartEnd)
	assert.Equal(t, sr[0]+100, sen[base])
	assert.Equal(t, sr[1]-50, sen[base+1])

	// Body rear pair lands in the final section.
	bodyBase := rl.SectionBase(layout.SectionBodyOther)
	assert.Equal(t, sr[8]+100, sen[bodyBase])
	assert.Equal(t, sr[9]-50, sen[bodyBase+1])
}

func TestRenderBufferMissingFabIsFatal(t *testing.T) {
	cfg := testConfig(t)
	nodes, edges := straightChain(20)
	fab := newTestFab(t, cfg, InitParams{Nodes: nodes, Edges: edges, NumVehicles: 1}, 1)

	rl, err := layout.ComputeRender([]layout.RenderFabSlice{{FabID: "someone_else", NumVehicles: 1}})
	require.NoError(t, err)
	assert.Error(t, fab.SetRenderBuffer(nil, nil, rl))
}

// TestCurveFollowingUsesSAT: on a curve edge the follower pair is resolved by
// the sensor quads rather than 1-D axis distance.
func TestCurveFollowingUsesSAT(t *testing.T) {
	cfg := testConfig(t)
	nodes := []rail.NodeDef{node("N1", 0, 0), node("N2", 10, 10)}
	curve := rail.EdgeDef{
		Name: "C1", From: "N1", To: "N2", RailType: "CURVE_90",
		RenderingPoints: []rail.Point{
			{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 8.5, Y: 1.5}, {X: 10, Y: 5}, {X: 10, Y: 10},
		},
	}

	fab := newTestFab(t, cfg, InitParams{
		Nodes: nodes, Edges: []rail.EdgeDef{curve},
		Vehicles: []VehicleSpec{
			{EdgeName: "C1", Ratio: 0.30},
			{EdgeName: "C1", Ratio: 0.38},
		},
	}, 2)
	st := fab.Store()

	// Curve preset selected from the edge's turn direction.
	left := int32(cfg.Derived.PresetIndex["curve_left"])
	assert.Equal(t, left, st.PresetIdx(0))

	fab.Step(tickDelta, 0)

	// ~1.4m of arc between them puts the follower's inner zones on the
	// leader's body.
	assert.Greater(t, st.HitZone(0), store.HitNone)
	assert.Equal(t, int32(1), st.CollisionTarget(0))

	// Curve speed cap holds while driving.
	for i := 0; i < 300; i++ {
		fab.Step(tickDelta, float64(i)*tickDelta)
		for v := 0; v < 2; v++ {
			require.LessOrEqual(t, st.Velocity(v), float32(cfg.Vehicle.CurveMaxSpeed))
		}
	}
	checkInvariants(t, fab)
}
