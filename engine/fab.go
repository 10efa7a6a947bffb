// Package engine implements the per-fab simulation core: the collision
// pipeline, merge-lock protocol, movement integration, edge transitions,
// routing managers and render emission. A FabContext owns all per-fab state;
// there is no package-level mutable state.
package engine

import (
	"log/slog"
	"math/rand"

	"github.com/pthm-cable/railsim/config"
	"github.com/pthm-cable/railsim/layout"
	"github.com/pthm-cable/railsim/rail"
	"github.com/pthm-cable/railsim/sensors"
	"github.com/pthm-cable/railsim/store"
)

// InitParams describes one fab to bring up.
type InitParams struct {
	FabID       string
	Nodes       []rail.NodeDef
	Edges       []rail.EdgeDef
	NumVehicles int           // auto placement count; ignored when Vehicles is set
	Vehicles    []VehicleSpec // explicit placements
	Stations    []Station
	Seed        int64
	OffsetX     float32 // render-space translation, never applied to sim state
	OffsetY     float32
}

// Buffers are the fab's carved regions of the shared arrays.
type Buffers struct {
	Vehicle    []float32
	Sensor     []float32
	Path       []int32
	Checkpoint []int32 // optional
	MaxVehicles int
}

// FabContext owns one fab's graph, store, managers and scratch buffers, and
// exposes the per-tick Step.
type FabContext struct {
	FabID string

	cfg     *config.Config
	graph   *rail.Graph
	st      *store.Store
	presets *sensors.Table
	lock    *LockMgr
	transfer *TransferMgr
	auto     *AutoMgr
	dispatch *DispatchMgr
	rng      *rand.Rand
	log      *slog.Logger

	numVehicles      int
	offsetX, offsetY float32
	simTime          float64

	// incoming maps each merge node to its incoming edges, precomputed at
	// init for the merge-zone check.
	incoming map[int32][]int32

	// Per-tick scratch, reused to keep the tick allocation-free.
	bestZone    []int32
	bestTarget  []int32
	visited     []uint64
	bfsQueue    []int32
	checkTimers []int8

	// Render bindings, set once via SetRenderBuffer.
	renderVeh    []float32
	renderSen    []float32
	renderLayout *layout.RenderLayout
	renderSlice  layout.RenderFabSlice

	unusualMoves  int
	onUnusualMove func(UnusualMove)
	onTransit     func(Transit)
}

// NewFabContext builds a fab over its buffer regions: graph build, deadlock
// detection, vehicle placement, loop maps. Fatal errors refuse the fab.
func NewFabContext(cfg *config.Config, p InitParams, buf Buffers, log *slog.Logger) (*FabContext, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("fab_id", p.FabID)

	graph, err := rail.Build(p.Nodes, p.Edges)
	if err != nil {
		return nil, fatalf(err, "fab %s: building rail graph", p.FabID)
	}

	st, err := store.New(buf.Vehicle, buf.Sensor, buf.Path, buf.Checkpoint,
		buf.MaxVehicles, cfg.Transfer.MaxPathLength, graph.NumEdges())
	if err != nil {
		return nil, fatalf(err, "fab %s: wiring store", p.FabID)
	}

	seed := p.Seed
	if seed == 0 {
		seed = 1
	}
	rng := rand.New(rand.NewSource(seed))

	f := &FabContext{
		FabID:       p.FabID,
		cfg:         cfg,
		graph:       graph,
		st:          st,
		presets:     sensors.BuildTable(cfg),
		rng:         rng,
		log:         log,
		offsetX:     p.OffsetX,
		offsetY:     p.OffsetY,
		incoming:    make(map[int32][]int32),
		bestZone:    make([]int32, buf.MaxVehicles),
		bestTarget:  make([]int32, buf.MaxVehicles),
		visited:     make([]uint64, (graph.NumEdges()+1+63)/64),
		checkTimers: make([]int8, buf.MaxVehicles),
	}
	f.lock = NewLockMgr(graph, cfg.Derived.GrantStrategy)
	f.transfer = NewTransferMgr(graph, st, cfg.Derived.TransferMode, rng, log)

	stations := p.Stations
	for i := range stations {
		if stations[i].Edge == 0 {
			return nil, fatalf(nil, "fab %s: station %q has no edge", p.FabID, stations[i].Name)
		}
	}
	f.auto = NewAutoMgr(graph, st, stations, nil, log)
	f.dispatch = NewDispatchMgr(graph, st, f.transfer, f.auto, log)

	for edge := int32(1); int(edge) <= graph.NumEdges(); edge++ {
		e := graph.EdgeAt(edge)
		if e.ToNodeIsMerge {
			f.incoming[e.ToNode] = append(f.incoming[e.ToNode], edge)
		}
	}

	if len(p.Vehicles) > 0 {
		if len(p.Vehicles) > buf.MaxVehicles {
			return nil, fatalf(nil, "fab %s: %d vehicles over capacity %d",
				p.FabID, len(p.Vehicles), buf.MaxVehicles)
		}
		placed, err := f.placeFromConfig(p.Vehicles)
		if err != nil {
			return nil, err
		}
		f.numVehicles = placed
	} else {
		want := p.NumVehicles
		if want > buf.MaxVehicles {
			want = buf.MaxVehicles
		}
		placed, _, err := f.autoPlace(want)
		if err != nil {
			return nil, err
		}
		f.numVehicles = placed
	}

	return f, nil
}

// NumVehicles returns the actual placed vehicle count.
func (f *FabContext) NumVehicles() int { return f.numVehicles }

// Store exposes the fab's store for hosts and tests.
func (f *FabContext) Store() *store.Store { return f.st }

// Graph exposes the fab's rail graph.
func (f *FabContext) Graph() *rail.Graph { return f.graph }

// UnusualMoveCount returns the running count of invalid transitions.
func (f *FabContext) UnusualMoveCount() int { return f.unusualMoves }

// OnUnusualMove registers the invariant-violation sink.
func (f *FabContext) OnUnusualMove(fn func(UnusualMove)) { f.onUnusualMove = fn }

// OnTransit registers the edge-transition sink.
func (f *FabContext) OnTransit(fn func(Transit)) { f.onTransit = fn }

// SetRenderBuffer binds the continuous render regions. Called once after the
// controller has computed the render layout from actual vehicle counts.
func (f *FabContext) SetRenderBuffer(veh, sen []float32, rl *layout.RenderLayout) error {
	slice, ok := rl.Fab(f.FabID)
	if !ok {
		return fatalf(nil, "fab %s: absent from render layout", f.FabID)
	}
	f.renderVeh = veh
	f.renderSen = sen
	f.renderLayout = rl
	f.renderSlice = slice
	return nil
}

// Step advances the fab by delta seconds of sim time: collision pipeline,
// transfer decisions, movement (with transitions and merge locks), auto
// routing, then render emission. All vehicles are written before returning.
func (f *FabContext) Step(delta, simTime float64) {
	f.simTime = simTime
	dt := float32(delta)

	f.runCollisionPipeline()
	f.transfer.ProcessQueue()

	for v := 0; v < f.st.MaxVehicles(); v++ {
		if !f.st.Active(v) {
			continue
		}
		f.integrateVehicle(v, dt)
	}

	f.auto.Update()
	f.emitRender()
}

// HandleCommand routes an external command to the dispatcher.
func (f *FabContext) HandleCommand(cmd Command) error {
	return f.dispatch.Handle(cmd)
}

// LockTableSnapshot returns the externally visible lock state.
func (f *FabContext) LockTableSnapshot() LockTable {
	return f.lock.Snapshot(f.FabID)
}
