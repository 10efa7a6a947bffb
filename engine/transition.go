package engine

import (
	"github.com/pthm-cable/railsim/rail"
	"github.com/pthm-cable/railsim/store"
)

// transitionEdges consumes ratio overflow across one or more edges. Short
// edges can be traversed multiple hops in a single tick; when no next-edge
// decision is available and none can be resolved inline, the vehicle clamps
// at the edge end with zero velocity.
func (f *FabContext) transitionEdges(v int) {
	for f.st.EdgeRatio(v) >= 1 {
		if f.st.NextEdgeState(v) != store.NextEdgeReady {
			// Mid-tick hop: the queued decision has not run yet, so
			// resolve inline; terminal edges fail and clamp.
			next, ok := f.transfer.ResolveNext(v)
			if !ok {
				f.clampAtEdgeEnd(v)
				return
			}
			f.st.SetNextEdge(v, next)
			f.st.SetNextEdgeState(v, store.NextEdgeReady)
		}

		next := f.st.NextEdge(v)
		nextEdge := f.graph.EdgeAt(next)
		if nextEdge == nil {
			f.clampAtEdgeEnd(v)
			return
		}

		cur := f.st.CurrentEdge(v)
		curEdge := f.graph.EdgeAt(cur)

		if curEdge.ToNode != nextEdge.FromNode {
			f.reportUnusualMove(v, curEdge, nextEdge)
		}

		overflow := (f.st.EdgeRatio(v) - 1) * curEdge.Distance
		if err := f.st.MoveVehicleToEdge(v, next, overflow/nextEdge.Distance); err != nil {
			f.log.Warn("edge transition rejected", "vehicle", v, "edge", next, "err", err)
			f.clampAtEdgeEnd(v)
			return
		}

		// New edge, new merge decision.
		if curEdge.ToNodeIsMerge {
			f.lock.ReleaseLock(curEdge.ToNode, int32(v))
		}
		f.st.ClearStopReason(v, store.StopLocked)
		f.st.SetTrafficState(v, store.TrafficFree)
		f.st.SetNextEdgeState(v, store.NextEdgeEmpty)
		f.st.SetNextEdge(v, store.InvalidEdge)
		f.st.SetPresetIdx(v, f.presets.ForEdge(nextEdge))
		f.checkTimers[v] = 0

		if f.onTransit != nil {
			f.onTransit(Transit{
				VehicleIndex: int32(v),
				PrevEdge:     cur,
				NextEdge:     next,
				SimTime:      float32(f.simTime),
			})
		}
	}
}

// clampAtEdgeEnd parks the vehicle exactly at ratio 1 with no residual
// velocity, so no overflow energy survives to the next tick.
func (f *FabContext) clampAtEdgeEnd(v int) {
	f.st.SetEdgeRatio(v, 1)
	f.st.SetVelocity(v, 0)
}

// reportUnusualMove emits the invariant-violation event without touching
// topology. The vehicle still moves; the orchestrator decides what to do.
func (f *FabContext) reportUnusualMove(v int, prev, next *rail.Edge) {
	f.unusualMoves++
	x, y, _ := f.st.Position(v)
	f.log.Warn("unusual move",
		"vehicle", v,
		"prev_edge", prev.Name,
		"next_edge", next.Name,
	)
	if f.onUnusualMove == nil {
		return
	}
	f.onUnusualMove(UnusualMove{
		VehicleIndex: v,
		FabID:        f.FabID,
		PrevEdgeName: prev.Name,
		PrevToNode:   f.graph.NodeAt(prev.ToNode).Name,
		NextEdgeName: next.Name,
		NextFromNode: f.graph.NodeAt(next.FromNode).Name,
		X:            x,
		Y:            y,
		Timestamp:    f.simTime,
	})
}
