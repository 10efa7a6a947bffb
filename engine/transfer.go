package engine

import (
	"log/slog"
	"math/rand"

	"github.com/pthm-cable/railsim/config"
	"github.com/pthm-cable/railsim/rail"
	"github.com/pthm-cable/railsim/store"
)

// TransferMgr decides each vehicle's next edge: path buffer first, then the
// loop map (LOOP mode) or a uniform pick (RANDOM mode).
type TransferMgr struct {
	graph *rail.Graph
	st    *store.Store
	mode  config.TransferMode
	rng   *rand.Rand
	log   *slog.Logger

	queue  []int32
	queued []bool

	// loopNext caches, per vehicle, the edge->next mapping of its
	// precomputed loop sequence.
	loopNext []map[int32]int32
}

// NewTransferMgr wires the manager over a fab's store and graph.
func NewTransferMgr(g *rail.Graph, st *store.Store, mode config.TransferMode, rng *rand.Rand, log *slog.Logger) *TransferMgr {
	return &TransferMgr{
		graph:    g,
		st:       st,
		mode:     mode,
		rng:      rng,
		log:      log,
		queued:   make([]bool, st.MaxVehicles()),
		loopNext: make([]map[int32]int32, st.MaxVehicles()),
	}
}

// BuildLoopMap precomputes a vehicle's loop sequence: follow each edge's
// canonical next (index 0) from the starting edge until a revisit or the hop
// cap, and store the edge->next mapping.
func (t *TransferMgr) BuildLoopMap(veh int, startEdge int32, maxHops int) {
	m := make(map[int32]int32)
	cur := startEdge
	for hop := 0; hop < maxHops; hop++ {
		e := t.graph.EdgeAt(cur)
		if e == nil || len(e.NextEdgeIndices) == 0 {
			break
		}
		next := e.NextEdgeIndices[0]
		if _, seen := m[cur]; seen {
			break
		}
		m[cur] = next
		cur = next
	}
	t.loopNext[veh] = m
}

// EnqueueVehicleTransfer queues a vehicle for a next-edge decision. Duplicate
// enqueues are ignored.
func (t *TransferMgr) EnqueueVehicleTransfer(veh int32) {
	if int(veh) >= len(t.queued) || t.queued[veh] {
		return
	}
	t.queued[veh] = true
	t.queue = append(t.queue, veh)
}

// ProcessQueue resolves all queued decisions. Vehicles whose decision fails
// (terminal edge, missing references) fall back to EMPTY and retry next tick.
func (t *TransferMgr) ProcessQueue() {
	for _, veh := range t.queue {
		t.queued[veh] = false
		next, ok := t.ResolveNext(int(veh))
		if !ok {
			t.st.SetNextEdgeState(int(veh), store.NextEdgeEmpty)
			continue
		}
		t.st.SetNextEdge(int(veh), next)
		t.st.SetNextEdgeState(int(veh), store.NextEdgeReady)
	}
	t.queue = t.queue[:0]
}

// ResolveNext picks a vehicle's next edge without touching the queue. Used
// both by ProcessQueue and by the transition loop for multi-hop traversal of
// short edges within one tick.
func (t *TransferMgr) ResolveNext(veh int) (int32, bool) {
	if next, ok := t.st.PopPathEdge(veh); ok {
		if !t.st.ValidEdge(next) {
			t.log.Warn("path buffer held invalid edge", "vehicle", veh, "edge", next)
			return store.InvalidEdge, false
		}
		return next, true
	}

	cur := t.st.CurrentEdge(veh)
	e := t.graph.EdgeAt(cur)
	if e == nil || len(e.NextEdgeIndices) == 0 {
		return store.InvalidEdge, false
	}

	switch t.mode {
	case config.TransferRandom:
		return e.NextEdgeIndices[t.rng.Intn(len(e.NextEdgeIndices))], true
	default: // LOOP
		if m := t.loopNext[veh]; m != nil {
			if next, ok := m[cur]; ok {
				return next, true
			}
		}
		// Off the precomputed loop (e.g. after a dispatch detour): follow
		// the canonical next edge.
		return e.NextEdgeIndices[0], true
	}
}
