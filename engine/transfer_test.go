package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/railsim/rail"
	"github.com/pthm-cable/railsim/store"
)

func TestLoopMapFollowsCanonicalNext(t *testing.T) {
	cfg := testConfig(t)
	nodes, edges := straightChain(10, 10)
	fab := newTestFab(t, cfg, InitParams{
		Nodes: nodes, Edges: edges,
		Vehicles: []VehicleSpec{{EdgeName: "E1", Ratio: 0.1}},
	}, 1)

	next, ok := fab.transfer.ResolveNext(0)
	require.True(t, ok)
	assert.Equal(t, int32(2), next)
}

func TestResolveNextPrefersPathBuffer(t *testing.T) {
	cfg := testConfig(t)
	nodes, edges := straightChain(10, 10)
	fab := newTestFab(t, cfg, InitParams{
		Nodes: nodes, Edges: edges,
		Vehicles: []VehicleSpec{{EdgeName: "E1", Ratio: 0.1}},
	}, 1)
	st := fab.Store()

	require.NoError(t, st.SetPath(0, []int32{2}))
	next, ok := fab.transfer.ResolveNext(0)
	require.True(t, ok)
	assert.Equal(t, int32(2), next)
	assert.Zero(t, st.PathCount(0), "path head not consumed")
}

func TestResolveNextTerminalEdgeFails(t *testing.T) {
	cfg := testConfig(t)
	nodes, edges := straightChain(10)
	fab := newTestFab(t, cfg, InitParams{
		Nodes: nodes, Edges: edges,
		Vehicles: []VehicleSpec{{EdgeName: "E1", Ratio: 0.1}},
	}, 1)

	_, ok := fab.transfer.ResolveNext(0)
	assert.False(t, ok)
}

func TestProcessQueueMarksReady(t *testing.T) {
	cfg := testConfig(t)
	nodes, edges := straightChain(10, 10)
	fab := newTestFab(t, cfg, InitParams{
		Nodes: nodes, Edges: edges,
		Vehicles: []VehicleSpec{{EdgeName: "E1", Ratio: 0.1}},
	}, 1)
	st := fab.Store()

	st.SetNextEdgeState(0, store.NextEdgePending)
	fab.transfer.EnqueueVehicleTransfer(0)
	fab.transfer.EnqueueVehicleTransfer(0) // duplicate is ignored
	fab.transfer.ProcessQueue()

	assert.Equal(t, store.NextEdgeReady, st.NextEdgeState(0))
	assert.Equal(t, int32(2), st.NextEdge(0))
}

func TestRouterBFS(t *testing.T) {
	cfg := testConfig(t)
	// Two routes from E1 to E4: via E2 (one hop) or via E3->E5 (two hops).
	n := []rail.NodeDef{
		node("N1", 0, 0), node("N2", 10, 0), node("N3", 20, 0),
		node("N4", 10, 10), node("N5", 30, 0),
	}
	e := []rail.EdgeDef{
		linEdge("E1", "N1", "N2", rail.Point{}, rail.Point{X: 10}),
		linEdge("E2", "N2", "N3", rail.Point{X: 10}, rail.Point{X: 20}),
		linEdge("E3", "N2", "N4", rail.Point{X: 10}, rail.Point{X: 10, Y: 10}),
		linEdge("E4", "N3", "N5", rail.Point{X: 20}, rail.Point{X: 30}),
		linEdge("E5", "N4", "N3", rail.Point{X: 10, Y: 10}, rail.Point{X: 20}),
	}
	fab := newTestFab(t, cfg, InitParams{
		Nodes: n, Edges: e,
		Vehicles: []VehicleSpec{{EdgeName: "E1", Ratio: 0.5}},
	}, 1)

	path, ok := fab.auto.router.Route(1, 4)
	require.True(t, ok)
	assert.Equal(t, []int32{2, 4}, path, "expected the shortest route")

	// Unreachable target.
	_, ok = fab.auto.router.Route(4, 1)
	assert.False(t, ok)
}

func TestParseVehID(t *testing.T) {
	tests := []struct {
		in      any
		want    int
		wantErr bool
	}{
		{42, 42, false},
		{int64(7), 7, false},
		{float64(13), 13, false},
		{"VEH00042", 42, false},
		{"veh5", 5, false},
		{" VEH001 ", 1, false},
		{"3", 3, false},
		{"VEHX", 0, true},
		{"garbage", 0, true},
		{nil, 0, true},
		{3.5, 3, false}, // truncated like the wire format
	}
	for _, tc := range tests {
		got, err := ParseVehID(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %v", tc.in)
			continue
		}
		require.NoError(t, err, "input %v", tc.in)
		assert.Equal(t, tc.want, got, "input %v", tc.in)
	}
}
