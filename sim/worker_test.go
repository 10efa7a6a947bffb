package sim

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/railsim/config"
	"github.com/pthm-cable/railsim/engine"
	"github.com/pthm-cable/railsim/layout"
	"github.com/pthm-cable/railsim/rail"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ringMap() ([]rail.NodeDef, []rail.EdgeDef) {
	// Square ring of four 20m linear edges.
	nodes := []rail.NodeDef{
		{Name: "N1"}, {Name: "N2", X: 20}, {Name: "N3", X: 20, Y: 20}, {Name: "N4", Y: 20},
	}
	pt := func(x, y float32) rail.Point { return rail.Point{X: x, Y: y} }
	edges := []rail.EdgeDef{
		{Name: "E1", From: "N1", To: "N2", RailType: "LINEAR", Axis: "x", RenderingPoints: []rail.Point{pt(0, 0), pt(20, 0)}},
		{Name: "E2", From: "N2", To: "N3", RailType: "LINEAR", Axis: "y", RenderingPoints: []rail.Point{pt(20, 0), pt(20, 20)}},
		{Name: "E3", From: "N3", To: "N4", RailType: "LINEAR", Axis: "x", RenderingPoints: []rail.Point{pt(20, 20), pt(0, 20)}},
		{Name: "E4", From: "N4", To: "N1", RailType: "LINEAR", Axis: "y", RenderingPoints: []rail.Point{pt(0, 20), pt(0, 0)}},
	}
	return nodes, edges
}

func fabSetup(fabID string, maxVehicles, numVehicles int, pathLen int, offsetX float32) FabSetup {
	nodes, edges := ringMap()
	return FabSetup{
		Params: engine.InitParams{
			FabID:       fabID,
			Nodes:       nodes,
			Edges:       edges,
			NumVehicles: numVehicles,
			Seed:        42,
			OffsetX:     offsetX,
		},
		Buffers: engine.Buffers{
			Vehicle:     make([]float32, maxVehicles*layout.VehicleDataSize),
			Sensor:      make([]float32, maxVehicles*layout.SensorDataSize),
			Path:        make([]int32, maxVehicles*pathLen),
			MaxVehicles: maxVehicles,
		},
	}
}

// TestTwoFabsBitwiseIdentical drives two identically seeded fabs on one
// worker with fixed deltas: sim state must match bitwise, render output must
// differ only by the configured world offset.
func TestTwoFabsBitwiseIdentical(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	events := make(chan Event, 64)
	w, err := NewWorker(0, cfg, events, "", testLogger())
	require.NoError(t, err)

	a := fabSetup("fab_0", 4, 4, cfg.Transfer.MaxPathLength, 0)
	b := fabSetup("fab_1", 4, 4, cfg.Transfer.MaxPathLength, 100)
	w.handle(ControlMessage{Type: MsgInit, Fabs: []FabSetup{a, b}})

	ev := <-events
	require.Equal(t, EvInitialized, ev.Type)
	require.Equal(t, 4, ev.FabVehicleCounts["fab_0"])
	require.Equal(t, 4, ev.FabVehicleCounts["fab_1"])

	rl, err := layout.ComputeRender([]layout.RenderFabSlice{
		{FabID: "fab_0", NumVehicles: 4, OffsetX: 0},
		{FabID: "fab_1", NumVehicles: 4, OffsetX: 100},
	})
	require.NoError(t, err)
	renderVeh := make([]float32, rl.VehicleFloats())
	renderSen := make([]float32, rl.SensorFloats())
	w.handle(ControlMessage{
		Type:          MsgSetRenderBuffer,
		RenderVehicle: renderVeh,
		RenderSensor:  renderSen,
		RenderLayout:  rl,
	})

	for i := 0; i < 300; i++ {
		w.StepOnce(1.0 / 60.0)
	}

	// Worker-state buffers are bitwise identical.
	assert.Equal(t, a.Buffers.Vehicle, b.Buffers.Vehicle, "vehicle regions diverged")
	assert.Equal(t, a.Buffers.Sensor, b.Buffers.Sensor, "sensor regions diverged")
	assert.Equal(t, a.Buffers.Path, b.Buffers.Path, "path regions diverged")

	// Render poses differ exactly by the fab offset.
	for v := 0; v < 4; v++ {
		base0 := v * layout.VehicleRenderStride
		base1 := (4 + v) * layout.VehicleRenderStride
		assert.Equal(t, renderVeh[base0]+100, renderVeh[base1], "vehicle %d render x", v)
		assert.Equal(t, renderVeh[base0+1], renderVeh[base1+1], "vehicle %d render y", v)
		assert.Equal(t, renderVeh[base0+3], renderVeh[base1+3], "vehicle %d render rotation", v)
	}
}

func TestWorkerCommandRouting(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	events := make(chan Event, 64)
	w, err := NewWorker(0, cfg, events, "", testLogger())
	require.NoError(t, err)

	w.handle(ControlMessage{Type: MsgInit, Fabs: []FabSetup{
		fabSetup("fab_0", 4, 2, cfg.Transfer.MaxPathLength, 0),
	}})
	<-events

	// Unknown fab is dropped without an event.
	w.handle(ControlMessage{Type: MsgCommand, FabID: "nope", Command: engine.Command{VehID: 0, Action: "estop"}})
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %v", ev.Type)
	default:
	}

	// Valid estop freezes the vehicle.
	w.handle(ControlMessage{Type: MsgCommand, FabID: "fab_0", Command: engine.Command{VehID: 0, Action: "estop"}})
	before := w.byID["fab_0"].Store().EdgeRatio(0)
	for i := 0; i < 60; i++ {
		w.StepOnce(1.0 / 60.0)
	}
	assert.Equal(t, before, w.byID["fab_0"].Store().EdgeRatio(0))

	// Lock table request answers with the request id.
	w.handle(ControlMessage{Type: MsgGetLockTable, FabID: "fab_0", RequestID: 77})
	ev := <-events
	require.Equal(t, EvLockTable, ev.Type)
	assert.Equal(t, int64(77), ev.RequestID)
	assert.Equal(t, "fab_0", ev.LockTable.FabID)
}

func TestWorkerAddRemoveFab(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	events := make(chan Event, 64)
	w, err := NewWorker(0, cfg, events, "", testLogger())
	require.NoError(t, err)

	w.handle(ControlMessage{Type: MsgInit, Fabs: nil})
	<-events // INITIALIZED with no fabs

	add := fabSetup("fab_dyn", 4, 3, cfg.Transfer.MaxPathLength, 0)
	w.handle(ControlMessage{Type: MsgAddFab, AddFab: &add})
	ev := <-events
	require.Equal(t, EvFabAdded, ev.Type)
	assert.Equal(t, "fab_dyn", ev.FabID)
	assert.Equal(t, 3, ev.ActualNumVehicles)

	w.handle(ControlMessage{Type: MsgRemoveFab, FabID: "fab_dyn"})
	ev = <-events
	require.Equal(t, EvFabRemoved, ev.Type)
	assert.Empty(t, w.fabs)
}
