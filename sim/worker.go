package sim

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pthm-cable/railsim/config"
	"github.com/pthm-cable/railsim/engine"
	"github.com/pthm-cable/railsim/telemetry"
)

// Worker steps a disjoint set of fabs on one goroutine. Between ticks it
// drains its control channel; within a tick it never blocks.
type Worker struct {
	id     int
	cfg    *config.Config
	ctrl   chan ControlMessage
	events chan<- Event
	log    *slog.Logger

	fabs    []*engine.FabContext // deterministic step order
	byID    map[string]*engine.FabContext
	perf    *telemetry.PerfCollector
	output  *telemetry.OutputManager
	transit *telemetry.TransitLogger

	running  bool
	simTime  float64
	lastTick time.Time
	lastPerf time.Time
}

// NewWorker creates a worker; call Run on its own goroutine. outputDir may
// be empty to disable CSV output.
func NewWorker(id int, cfg *config.Config, events chan<- Event, outputDir string, log *slog.Logger) (*Worker, error) {
	if log == nil {
		log = slog.Default()
	}
	output, err := telemetry.NewOutputManager(outputDir, id)
	if err != nil {
		return nil, err
	}
	return &Worker{
		id:     id,
		cfg:    cfg,
		ctrl:   make(chan ControlMessage, 32),
		events: events,
		log:    log.With("worker_id", id),
		byID:   make(map[string]*engine.FabContext),
		perf:   telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		output: output,
	}, nil
}

// Control returns the worker's message channel.
func (w *Worker) Control() chan<- ControlMessage { return w.ctrl }

// Run is the worker loop: blocked on the control channel while idle, paced
// by the tick interval while running. DISPOSE exits after the current tick.
func (w *Worker) Run() {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("worker fault", "panic", r)
			w.send(Event{Type: EvError, WorkerID: w.id, Err: fmt.Errorf("worker %d fault: %v", w.id, r)})
		}
		w.output.Close()
		w.transit.Close()
	}()

	interval := time.Duration(float64(time.Second) / float64(w.cfg.Simulation.TargetFPS))

	for {
		if !w.running {
			msg, ok := <-w.ctrl
			if !ok || w.handle(msg) {
				return
			}
			continue
		}

		wait := interval - time.Since(w.lastTick)
		if wait > 0 {
			select {
			case msg := <-w.ctrl:
				if w.handle(msg) {
					return
				}
				continue
			case <-time.After(wait):
			}
		} else {
			// Overrun: drain pending control without blocking, then tick
			// immediately with the actual elapsed delta.
			select {
			case msg := <-w.ctrl:
				if w.handle(msg) {
					return
				}
				continue
			default:
			}
		}
		w.step()
	}
}

// step runs one tick over all owned fabs.
func (w *Worker) step() {
	now := time.Now()
	delta := now.Sub(w.lastTick).Seconds()
	w.lastTick = now
	if max := w.cfg.Simulation.MaxDelta; delta > max {
		delta = max
	}

	w.perf.StartTick()
	for _, fab := range w.fabs {
		fab.Step(delta, w.simTime)
	}
	w.perf.EndTick()
	w.simTime += delta

	if since := now.Sub(w.lastPerf).Seconds(); since >= w.cfg.Simulation.PerfReportInterval {
		w.lastPerf = now
		w.reportPerf()
	}
}

// StepOnce advances all fabs by a fixed delta outside the paced loop. Hosts
// and tests drive deterministic runs with it.
func (w *Worker) StepOnce(delta float64) {
	for _, fab := range w.fabs {
		fab.Step(delta, w.simTime)
	}
	w.simTime += delta
}

func (w *Worker) reportPerf() {
	stats := w.perf.Stats()
	counts := make(map[string]int, len(w.fabs))
	total := 0
	for _, fab := range w.fabs {
		counts[fab.FabID] = fab.NumVehicles()
		total += fab.NumVehicles()
	}
	w.send(Event{Type: EvPerfStats, WorkerID: w.id, Perf: stats, FabVehicleCounts: counts})
	if err := w.output.WritePerf(stats, w.simTime, total); err != nil {
		w.log.Warn("perf output failed", "err", err)
	}
}

// handle processes one control message; true means exit the loop.
func (w *Worker) handle(msg ControlMessage) (exit bool) {
	switch msg.Type {
	case MsgInit:
		w.handleInit(msg)
	case MsgSetRenderBuffer:
		for _, fab := range w.fabs {
			if err := fab.SetRenderBuffer(msg.RenderVehicle, msg.RenderSensor, msg.RenderLayout); err != nil {
				w.send(Event{Type: EvError, WorkerID: w.id, Err: err})
			}
		}
	case MsgStart:
		w.running = true
		w.lastTick = time.Now()
		w.lastPerf = w.lastTick
		w.send(Event{Type: EvReady, WorkerID: w.id})
	case MsgStop, MsgPause:
		// Both halt the loop; neither touches fab memory.
		w.running = false
	case MsgResume:
		w.running = true
		w.lastTick = time.Now()
	case MsgDispose:
		w.send(Event{Type: EvDisposed, WorkerID: w.id})
		return true
	case MsgCommand:
		w.handleCommand(msg)
	case MsgAddFab:
		w.handleAddFab(msg)
	case MsgRemoveFab:
		w.handleRemoveFab(msg)
	case MsgSetLoggerPort:
		w.handleSetLoggerPort(msg)
	case MsgGetLockTable:
		w.handleGetLockTable(msg)
	default:
		w.log.Warn("unknown control message", "type", int(msg.Type))
	}
	return false
}

func (w *Worker) handleInit(msg ControlMessage) {
	counts := make(map[string]int, len(msg.Fabs))
	for _, setup := range msg.Fabs {
		fab, err := w.createFab(setup)
		if err != nil {
			w.send(Event{Type: EvError, WorkerID: w.id, Err: err})
			return
		}
		counts[fab.FabID] = fab.NumVehicles()
	}
	w.send(Event{Type: EvInitialized, WorkerID: w.id, FabVehicleCounts: counts})
}

func (w *Worker) createFab(setup FabSetup) (*engine.FabContext, error) {
	fab, err := engine.NewFabContext(w.cfg, setup.Params, setup.Buffers, w.log)
	if err != nil {
		return nil, err
	}
	fabIdx := int32(len(w.fabs))
	fab.OnUnusualMove(func(m engine.UnusualMove) {
		w.send(Event{Type: EvUnusualMove, WorkerID: w.id, UnusualMove: m})
	})
	fab.OnTransit(func(tr engine.Transit) {
		w.transit.Log(telemetry.TransitRecord{
			VehicleIndex: tr.VehicleIndex,
			FabIndex:     fabIdx,
			PrevEdge:     tr.PrevEdge,
			NextEdge:     tr.NextEdge,
			SimTime:      tr.SimTime,
		})
	})
	w.fabs = append(w.fabs, fab)
	w.byID[fab.FabID] = fab
	return fab, nil
}

func (w *Worker) handleCommand(msg ControlMessage) {
	fab, ok := w.byID[msg.FabID]
	if !ok {
		w.log.Warn("command for unknown fab", "fab_id", msg.FabID)
		return
	}
	if err := fab.HandleCommand(msg.Command); err != nil {
		// Already logged by the dispatcher; command errors are dropped.
		_ = err
	}
}

func (w *Worker) handleAddFab(msg ControlMessage) {
	if msg.AddFab == nil {
		return
	}
	fab, err := w.createFab(*msg.AddFab)
	if err != nil {
		w.send(Event{Type: EvError, WorkerID: w.id, Err: err})
		return
	}
	w.send(Event{Type: EvFabAdded, WorkerID: w.id, FabID: fab.FabID, ActualNumVehicles: fab.NumVehicles()})
}

func (w *Worker) handleRemoveFab(msg ControlMessage) {
	fab, ok := w.byID[msg.FabID]
	if !ok {
		w.log.Warn("remove for unknown fab", "fab_id", msg.FabID)
		return
	}
	delete(w.byID, msg.FabID)
	for i, f := range w.fabs {
		if f == fab {
			w.fabs = append(w.fabs[:i], w.fabs[i+1:]...)
			break
		}
	}
	w.send(Event{Type: EvFabRemoved, WorkerID: w.id, FabID: msg.FabID})
}

func (w *Worker) handleSetLoggerPort(msg ControlMessage) {
	t, err := telemetry.DialTransitLogger(msg.LoggerPort, w.cfg.Telemetry.TransitBuffer, w.log)
	if err != nil {
		w.log.Warn("transit logger unavailable", "port", msg.LoggerPort, "err", err)
		return
	}
	w.transit.Close()
	w.transit = t
}

func (w *Worker) handleGetLockTable(msg ControlMessage) {
	fab, ok := w.byID[msg.FabID]
	if !ok {
		w.log.Warn("lock table for unknown fab", "fab_id", msg.FabID)
		return
	}
	w.send(Event{
		Type:      EvLockTable,
		WorkerID:  w.id,
		FabID:     msg.FabID,
		RequestID: msg.RequestID,
		LockTable: fab.LockTableSnapshot(),
	})
}

func (w *Worker) send(ev Event) {
	w.events <- ev
}
