package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/railsim/config"
	"github.com/pthm-cable/railsim/engine"
	"github.com/pthm-cable/railsim/layout"
)

func controllerFabs(t *testing.T, n int) []FabInit {
	t.Helper()
	fabs := make([]FabInit, n)
	for i := 0; i < n; i++ {
		nodes, edges := ringMap()
		fabs[i] = FabInit{
			Params: engine.InitParams{
				FabID:       "fab_" + string(rune('0'+i)),
				Nodes:       nodes,
				Edges:       edges,
				NumVehicles: 3,
				Seed:        1,
				OffsetX:     float32(i) * 50,
			},
			MaxVehicles: 4,
		}
	}
	return fabs
}

func awaitEvent(t *testing.T, c *Controller, want EventType, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.Type == want && (match == nil || match(ev)) {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v", want)
		}
	}
}

func TestControllerLifecycle(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	c, err := NewController(cfg, controllerFabs(t, 2), 2, Options{Logger: testLogger()})
	require.NoError(t, err)
	defer c.Dispose()

	counts := c.FabVehicleCounts()
	assert.Equal(t, 3, counts["fab_0"])
	assert.Equal(t, 3, counts["fab_1"])

	veh, sen, rl := c.RenderBuffers()
	require.NotNil(t, rl)
	assert.Equal(t, 6, rl.TotalVehicles)
	assert.Len(t, veh, rl.VehicleFloats())
	assert.Len(t, sen, rl.SensorFloats())

	// Lock-table round trip through the event stream.
	c.RequestLockTable("fab_1", 9001)
	ev := awaitEvent(t, c, EvLockTable, func(ev Event) bool { return ev.RequestID == 9001 })
	assert.Equal(t, "fab_1", ev.LockTable.FabID)

	// Commands route by fab; unknown fabs are dropped without panicking.
	c.Command("fab_0", engine.Command{VehID: 0, Action: "estop"})
	c.Command("no_such_fab", engine.Command{VehID: 0, Action: "estop"})

	c.Pause()
	c.Resume()
}

func TestControllerDynamicFab(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	c, err := NewController(cfg, controllerFabs(t, 1), 1, Options{Logger: testLogger()})
	require.NoError(t, err)
	defer c.Dispose()

	nodes, edges := ringMap()
	require.NoError(t, c.AddFab(engine.InitParams{
		FabID:       "fab_dyn",
		Nodes:       nodes,
		Edges:       edges,
		NumVehicles: 2,
		Seed:        1,
		OffsetX:     200,
	}, 4))

	ev := awaitEvent(t, c, EvFabAdded, nil)
	assert.Equal(t, "fab_dyn", ev.FabID)
	assert.Equal(t, 2, ev.ActualNumVehicles)

	// Duplicate ids are rejected.
	assert.Error(t, c.AddFab(engine.InitParams{FabID: "fab_dyn"}, 4))

	// Render layout grows to include the new fab.
	deadline := time.Now().Add(3 * time.Second)
	for {
		_, _, rl := c.RenderBuffers()
		if _, ok := rl.Fab("fab_dyn"); ok {
			assert.Equal(t, 5, rl.TotalVehicles)
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("render layout never included dynamic fab")
		}
		time.Sleep(10 * time.Millisecond)
	}

	c.RemoveFab("fab_dyn")
	awaitEvent(t, c, EvFabRemoved, nil)
}

func TestControllerRejectsBadLayout(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	_, err = NewController(cfg, nil, 2, Options{})
	assert.ErrorIs(t, err, layout.ErrNoFabs)
}
