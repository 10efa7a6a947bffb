package engine

import (
	"github.com/pthm-cable/railsim/rail"
	"github.com/pthm-cable/railsim/sensors"
	"github.com/pthm-cable/railsim/store"
)

// runCollisionPipeline scans every edge for following, merge-zone and
// next-path conflicts. Each source raises a candidate hit zone per vehicle;
// the highest zone from any source wins for the tick and is applied once.
func (f *FabContext) runCollisionPipeline() {
	for i := range f.bestZone {
		f.bestZone[i] = -1
		f.bestTarget[i] = -1
	}

	for edge := int32(1); int(edge) <= f.graph.NumEdges(); edge++ {
		f.checkFollowing(edge)
		f.checkMergeZone(edge)
		f.checkNextPath(edge)
	}

	for v := 0; v < f.st.MaxVehicles(); v++ {
		if !f.st.Active(v) {
			continue
		}
		f.applyCollisionZoneLogic(v, f.bestZone[v], f.bestTarget[v])
	}
}

// raise records a candidate hit zone, keeping the worst seen this tick.
func (f *FabContext) raise(veh int, zone int32, target int32) {
	if zone > f.bestZone[veh] {
		f.bestZone[veh] = zone
		f.bestTarget[veh] = target
	}
}

// checkFollowing resolves same-edge front/back pairs. Linear edges reduce to
// a 1-D bumper distance along the travel axis; curves run the SAT check.
func (f *FabContext) checkFollowing(edge int32) {
	q := f.st.Queues().At(edge)
	if len(q) < 2 {
		return
	}
	e := f.graph.EdgeAt(edge)

	for i := 0; i+1 < len(q); i++ {
		front := int(q[i])
		back := int(q[i+1])

		var zone int32
		if !e.IsCurve() {
			dist := f.axisDistance(e, front, back)
			p := f.presets.At(f.st.PresetIdx(back))
			body := p.BodyLength
			zone = sensors.DetermineLinearHitZone(dist,
				p.Zones[sensors.ZoneStop].LeftLength+body,
				p.Zones[sensors.ZoneBrake].LeftLength+body,
				p.Zones[sensors.ZoneApproach].LeftLength+body)
		} else {
			zone = sensors.CheckCollision(f.st.SensorSlice(back), f.st.SensorSlice(front))
		}
		f.raise(back, zone, int32(front))
	}
}

// axisDistance is the 1-D separation of two vehicles along a linear edge's
// dominant axis.
func (f *FabContext) axisDistance(e *rail.Edge, front, back int) float32 {
	fx, fy, _ := f.st.Position(front)
	bx, by, _ := f.st.Position(back)
	var d float32
	if e.Axis == rail.AxisY {
		d = fy - by
	} else {
		d = fx - bx
	}
	if d < 0 {
		d = -d
	}
	return d
}

// checkMergeZone resolves cross-edge conflicts near a merge node: vehicles
// inside the danger zone of this edge SAT-check against vehicles near the
// node on every competing incoming edge.
func (f *FabContext) checkMergeZone(edge int32) {
	e := f.graph.EdgeAt(edge)
	if !e.ToNodeIsMerge {
		return
	}
	competitors := f.incoming[e.ToNode]
	if len(competitors) < 2 {
		return
	}

	dangerLen := float32(f.cfg.Lock.CurveTailLength) + 2*float32(f.cfg.Vehicle.BodyLength)
	dangerStart := e.Distance - dangerLen
	if e.IsCurve() {
		dangerStart = 0
	}
	rough := float32(f.cfg.Collision.RoughDistance)

	for _, vi := range f.st.Queues().At(edge) {
		v := int(vi)
		if f.st.EdgeRatio(v)*e.Distance < dangerStart {
			continue
		}
		self := f.st.SensorSlice(v)

		best := f.bestZone[v]
		var bestTarget int32 = -1
		for _, comp := range competitors {
			if comp == edge {
				continue
			}
			ce := f.graph.EdgeAt(comp)
			compStart := ce.Distance - dangerLen
			if ce.IsCurve() {
				compStart = 0
			}
			for _, wi := range f.st.Queues().At(comp) {
				w := int(wi)
				if f.st.EdgeRatio(w)*ce.Distance < compStart {
					continue
				}
				other := f.st.SensorSlice(w)
				if !sensors.RoughDistanceCheck(self, other, rough) {
					continue
				}
				if zone := sensors.CheckCollision(self, other); zone > best {
					best = zone
					bestTarget = wi
				}
				if best == int32(sensors.ZoneStop) {
					break
				}
			}
			if best == int32(sensors.ZoneStop) {
				break
			}
		}
		if bestTarget >= 0 {
			f.raise(v, best, bestTarget)
		}
	}
}

// checkNextPath projects the edge's lead vehicle onto upcoming edges: BFS
// over next-edge adjacency, looking through short linear edges, stopping as
// soon as a STOP hit is found.
func (f *FabContext) checkNextPath(edge int32) {
	lead32, ok := f.st.Queues().Lead(edge)
	if !ok {
		return
	}
	lead := int(lead32)
	self := f.st.SensorSlice(lead)
	e := f.graph.EdgeAt(edge)

	f.clearVisited()
	f.markVisited(edge)
	f.bfsQueue = f.bfsQueue[:0]
	for _, next := range e.NextEdgeIndices {
		if f.visit(next) {
			f.bfsQueue = append(f.bfsQueue, next)
		}
	}

	lookthrough := float32(f.cfg.Collision.ShortEdgeLookthrough)

	for head := 0; head < len(f.bfsQueue); head++ {
		cur := f.bfsQueue[head]
		ce := f.graph.EdgeAt(cur)

		if tail, ok := f.st.Queues().Tail(cur); ok {
			zone := sensors.CheckCollision(self, f.st.SensorSlice(int(tail)))
			f.raise(lead, zone, tail)
			if zone == int32(sensors.ZoneStop) {
				return
			}
		}

		if !ce.IsCurve() && ce.Distance < lookthrough {
			for _, next := range ce.NextEdgeIndices {
				if f.visit(next) {
					f.bfsQueue = append(f.bfsQueue, next)
				}
			}
		}
	}
}

// visit marks an edge in the BFS bitset; false when already seen.
func (f *FabContext) visit(edge int32) bool {
	word, bit := edge/64, uint(edge%64)
	if f.visited[word]&(1<<bit) != 0 {
		return false
	}
	f.visited[word] |= 1 << bit
	return true
}

func (f *FabContext) markVisited(edge int32) {
	f.visited[edge/64] |= 1 << uint(edge%64)
}

func (f *FabContext) clearVisited() {
	for i := range f.visited {
		f.visited[i] = 0
	}
}

// applyCollisionZoneLogic writes the tick's final hit zone and its side
// effects on motion state.
func (f *FabContext) applyCollisionZoneLogic(v int, zone int32, target int32) {
	f.st.SetHitZone(v, store.HitZone(zone))
	f.st.SetCollisionTarget(v, target)

	switch store.HitZone(zone) {
	case store.HitNone:
		f.st.SetDeceleration(v, 0)
		if f.st.MovingStatus(v) == store.Stopped && f.st.StopReason(v)&store.StopEStop == 0 {
			f.st.SetMovingStatus(v, store.Moving)
		}
	case store.HitStop:
		f.st.SetMovingStatus(v, store.Stopped)
		f.st.SetVelocity(v, 0)
		f.st.SetDeceleration(v, 0)
	default: // brake or approach
		p := f.presets.At(f.st.PresetIdx(v))
		zn := &p.Zones[zone]
		if f.st.Velocity(v) > zn.MinSpeed {
			f.st.SetDeceleration(v, zn.Dec)
		} else {
			f.st.SetDeceleration(v, 0)
		}
		if f.st.MovingStatus(v) == store.Stopped && f.st.StopReason(v)&store.StopEStop == 0 {
			f.st.SetMovingStatus(v, store.Moving)
		}
	}
}
