package sim

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pthm-cable/railsim/config"
	"github.com/pthm-cable/railsim/engine"
	"github.com/pthm-cable/railsim/layout"
)

// disposeTimeout bounds how long Dispose waits, in total across all workers,
// before abandoning the workers that have not acknowledged.
const disposeTimeout = 500 * time.Millisecond

// FabInit sizes and describes one fab for the controller.
type FabInit struct {
	Params      engine.InitParams
	MaxVehicles int
}

// Controller owns the shared buffers, spawns the workers, distributes fabs
// and relays commands and render buffers. The renderer reads the render
// buffers without synchronization; one-frame-stale data is acceptable.
type Controller struct {
	cfg *config.Config
	log *slog.Logger

	workers    []*Worker
	events     chan Event
	out        chan Event
	disposeAck chan int

	vehicleBuf []float32
	sensorBuf  []float32
	pathBuf    []int32
	cpBuf      []int32

	mu           sync.Mutex
	fabWorker    map[string]int
	fabOrder     []string
	fabCounts    map[string]int
	renderVeh    []float32
	renderSen    []float32
	renderLayout *layout.RenderLayout
	disposed     bool
	unusualMoves int
}

// Options tune controller construction.
type Options struct {
	OutputDir       string
	WithCheckpoints bool
	Logger          *slog.Logger
}

// NewController allocates the shared buffers per the computed layout, starts
// the workers, initializes every fab and performs the render-buffer handshake.
// On return all workers are READY and ticking.
func NewController(cfg *config.Config, fabs []FabInit, numWorkers int, opts Options) (*Controller, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	specs := make([]layout.FabSpec, len(fabs))
	for i, f := range fabs {
		specs[i] = layout.FabSpec{FabID: f.Params.FabID, MaxVehicles: f.MaxVehicles}
	}
	lay, err := layout.Compute(specs, numWorkers, cfg.Transfer.MaxPathLength, opts.WithCheckpoints)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:        cfg,
		log:        log,
		events:     make(chan Event, 256),
		out:        make(chan Event, 256),
		disposeAck: make(chan int, numWorkers),
		vehicleBuf: make([]float32, lay.VehicleFloats),
		sensorBuf:  make([]float32, lay.SensorFloats),
		pathBuf:    make([]int32, lay.PathInts),
		fabWorker:  make(map[string]int),
		fabCounts:  make(map[string]int),
	}
	if opts.WithCheckpoints {
		c.cpBuf = make([]int32, lay.CheckpointInts)
	}

	byID := make(map[string]FabInit, len(fabs))
	for _, f := range fabs {
		byID[f.Params.FabID] = f
	}

	for _, wa := range lay.Workers {
		worker, err := NewWorker(wa.WorkerID, cfg, c.events, opts.OutputDir, log)
		if err != nil {
			return nil, err
		}
		c.workers = append(c.workers, worker)
		go worker.Run()

		setups := make([]FabSetup, 0, len(wa.FabIDs))
		for _, fabID := range wa.FabIDs {
			f := byID[fabID]
			assign, _ := lay.Fab(fabID)
			setups = append(setups, FabSetup{
				Params:  f.Params,
				Buffers: c.carve(assign),
			})
			c.fabWorker[fabID] = wa.WorkerID
			c.fabOrder = append(c.fabOrder, fabID)
		}
		worker.Control() <- ControlMessage{Type: MsgInit, Fabs: setups}
	}

	if err := c.awaitInit(); err != nil {
		return nil, err
	}
	if err := c.setupRender(); err != nil {
		return nil, err
	}
	c.broadcast(ControlMessage{Type: MsgStart})
	if err := c.await(EvReady, len(c.workers)); err != nil {
		return nil, err
	}

	go c.pump()
	return c, nil
}

// carve slices one fab's regions out of the shared buffers.
func (c *Controller) carve(a layout.FabAssignment) engine.Buffers {
	buf := engine.Buffers{
		Vehicle:     c.vehicleBuf[a.Vehicle.Offset:a.Vehicle.End():a.Vehicle.End()],
		Sensor:      c.sensorBuf[a.Sensor.Offset:a.Sensor.End():a.Sensor.End()],
		Path:        c.pathBuf[a.Path.Offset:a.Path.End():a.Path.End()],
		MaxVehicles: a.Vehicle.MaxVehicles,
	}
	if c.cpBuf != nil && a.Checkpoint.Size > 0 {
		buf.Checkpoint = c.cpBuf[a.Checkpoint.Offset:a.Checkpoint.End():a.Checkpoint.End()]
	}
	return buf
}

// awaitInit collects INITIALIZED from every worker, recording actual vehicle
// counts. Any ERROR aborts.
func (c *Controller) awaitInit() error {
	for seen := 0; seen < len(c.workers); {
		ev := <-c.events
		switch ev.Type {
		case EvInitialized:
			for fabID, n := range ev.FabVehicleCounts {
				c.fabCounts[fabID] = n
			}
			seen++
		case EvError:
			return fmt.Errorf("worker %d failed to initialize: %w", ev.WorkerID, ev.Err)
		default:
			c.forward(ev)
		}
	}
	return nil
}

// await consumes count events of the given type, forwarding the rest.
func (c *Controller) await(t EventType, count int) error {
	for seen := 0; seen < count; {
		ev := <-c.events
		switch ev.Type {
		case t:
			seen++
		case EvError:
			return fmt.Errorf("worker %d: %w", ev.WorkerID, ev.Err)
		default:
			c.forward(ev)
		}
	}
	return nil
}

// setupRender computes the continuous render layout from actual counts and
// broadcasts the buffers. Sent exactly once per (re)layout.
func (c *Controller) setupRender() error {
	slices := make([]layout.RenderFabSlice, 0, len(c.fabOrder))
	for _, fabID := range c.fabOrder {
		slices = append(slices, layout.RenderFabSlice{
			FabID:       fabID,
			NumVehicles: c.fabCounts[fabID],
		})
	}
	rl, err := layout.ComputeRender(slices)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.renderLayout = rl
	c.renderVeh = make([]float32, rl.VehicleFloats())
	c.renderSen = make([]float32, rl.SensorFloats())
	veh, sen := c.renderVeh, c.renderSen
	c.mu.Unlock()

	c.broadcast(ControlMessage{
		Type:          MsgSetRenderBuffer,
		RenderVehicle: veh,
		RenderSensor:  sen,
		RenderLayout:  rl,
	})
	return nil
}

func (c *Controller) broadcast(msg ControlMessage) {
	for _, w := range c.workers {
		w.Control() <- msg
	}
}

// pump distributes worker events: bookkeeping here, everything forwarded to
// the public channel.
func (c *Controller) pump() {
	for ev := range c.events {
		switch ev.Type {
		case EvFabAdded:
			c.mu.Lock()
			c.fabCounts[ev.FabID] = ev.ActualNumVehicles
			c.fabOrder = append(c.fabOrder, ev.FabID)
			c.mu.Unlock()
			if err := c.setupRender(); err != nil {
				c.log.Warn("render relayout failed", "err", err)
			}
		case EvFabRemoved:
			c.mu.Lock()
			delete(c.fabCounts, ev.FabID)
			delete(c.fabWorker, ev.FabID)
			for i, id := range c.fabOrder {
				if id == ev.FabID {
					c.fabOrder = append(c.fabOrder[:i], c.fabOrder[i+1:]...)
					break
				}
			}
			c.mu.Unlock()
			if err := c.setupRender(); err != nil {
				c.log.Warn("render relayout failed", "err", err)
			}
		case EvUnusualMove:
			c.mu.Lock()
			c.unusualMoves++
			c.mu.Unlock()
		case EvDisposed:
			c.disposeAck <- ev.WorkerID
		}
		c.forward(ev)
	}
}

// forward hands an event to the public channel, dropping when the consumer
// is not keeping up.
func (c *Controller) forward(ev Event) {
	select {
	case c.out <- ev:
	default:
	}
}

// Events is the public event stream (perf stats, unusual moves, lock
// tables, fab lifecycle).
func (c *Controller) Events() <-chan Event { return c.out }

// RenderBuffers returns the current render buffers and layout. The worker
// side writes them each tick; reads are unsynchronized by design.
func (c *Controller) RenderBuffers() (veh, sen []float32, rl *layout.RenderLayout) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renderVeh, c.renderSen, c.renderLayout
}

// UnusualMoveCount returns the running total across all fabs.
func (c *Controller) UnusualMoveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unusualMoves
}

// FabVehicleCounts returns the actual per-fab vehicle counts.
func (c *Controller) FabVehicleCounts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.fabCounts))
	for k, v := range c.fabCounts {
		out[k] = v
	}
	return out
}

// Pause halts all tick loops without touching memory.
func (c *Controller) Pause() { c.broadcast(ControlMessage{Type: MsgPause}) }

// Resume restarts paused tick loops.
func (c *Controller) Resume() { c.broadcast(ControlMessage{Type: MsgResume}) }

// Stop halts all tick loops.
func (c *Controller) Stop() { c.broadcast(ControlMessage{Type: MsgStop}) }

// Command relays a vehicle command to the fab's owning worker. Unknown fab
// ids are logged and dropped.
func (c *Controller) Command(fabID string, cmd engine.Command) {
	c.mu.Lock()
	workerID, ok := c.fabWorker[fabID]
	c.mu.Unlock()
	if !ok {
		c.log.Warn("command for unknown fab", "fab_id", fabID)
		return
	}
	c.workers[workerID].Control() <- ControlMessage{Type: MsgCommand, FabID: fabID, Command: cmd}
}

// RequestLockTable asks for a fab's lock-table snapshot; the reply arrives
// on Events with the same request id.
func (c *Controller) RequestLockTable(fabID string, requestID int64) {
	c.mu.Lock()
	workerID, ok := c.fabWorker[fabID]
	c.mu.Unlock()
	if !ok {
		c.log.Warn("lock table for unknown fab", "fab_id", fabID)
		return
	}
	c.workers[workerID].Control() <- ControlMessage{Type: MsgGetLockTable, FabID: fabID, RequestID: requestID}
}

// SetLoggerPort points every worker's transit logger at a local port.
func (c *Controller) SetLoggerPort(port int) {
	c.broadcast(ControlMessage{Type: MsgSetLoggerPort, LoggerPort: port})
}

// AddFab brings up a fab at runtime on the least-loaded worker. Dynamic fabs
// get dedicated buffers; the render layout is recomputed when FAB_ADDED
// arrives.
func (c *Controller) AddFab(params engine.InitParams, maxVehicles int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.fabWorker[params.FabID]; dup {
		return fmt.Errorf("sim: fab %q already exists", params.FabID)
	}

	loadPerWorker := make([]int, len(c.workers))
	for _, wid := range c.fabWorker {
		loadPerWorker[wid]++
	}
	target := 0
	for i, n := range loadPerWorker {
		if n < loadPerWorker[target] {
			target = i
		}
	}

	buf := engine.Buffers{
		Vehicle:     make([]float32, maxVehicles*layout.VehicleDataSize),
		Sensor:      make([]float32, maxVehicles*layout.SensorDataSize),
		Path:        make([]int32, maxVehicles*c.cfg.Transfer.MaxPathLength),
		MaxVehicles: maxVehicles,
	}
	if c.cpBuf != nil {
		buf.Checkpoint = make([]int32, maxVehicles*layout.CheckpointDataSize)
	}

	c.fabWorker[params.FabID] = target
	c.workers[target].Control() <- ControlMessage{
		Type:   MsgAddFab,
		AddFab: &FabSetup{Params: params, Buffers: buf},
	}
	return nil
}

// RemoveFab tears down a fab at runtime.
func (c *Controller) RemoveFab(fabID string) {
	c.mu.Lock()
	workerID, ok := c.fabWorker[fabID]
	c.mu.Unlock()
	if !ok {
		c.log.Warn("remove for unknown fab", "fab_id", fabID)
		return
	}
	c.workers[workerID].Control() <- ControlMessage{Type: MsgRemoveFab, FabID: fabID}
}

// Dispose shuts every worker down cooperatively: each finishes its current
// tick and acknowledges; workers that miss the timeout are abandoned.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.mu.Unlock()

	c.broadcast(ControlMessage{Type: MsgDispose})

	pending := len(c.workers)
	deadline := time.After(disposeTimeout)
	for pending > 0 {
		select {
		case <-c.disposeAck:
			pending--
		case <-deadline:
			c.log.Warn("dispose timed out, abandoning workers", "pending", pending)
			return
		}
	}
}
