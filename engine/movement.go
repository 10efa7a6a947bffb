package engine

import (
	"math"

	"github.com/pthm-cable/railsim/sensors"
	"github.com/pthm-cable/railsim/store"
)

// integrateVehicle advances one vehicle through speed update, ratio update,
// transfer trigger, edge transition, merge lock and pose/sensor rewrite.
func (f *FabContext) integrateVehicle(v int, dt float32) {
	if f.st.MovingStatus(v) == store.Paused {
		return
	}

	// Sensor-stop latch.
	if f.st.HitZone(v) == store.HitStop {
		f.st.SetVelocity(v, 0)
		f.st.SetDeceleration(v, 0)
		f.st.AddStopReason(v, store.StopSensored)
		return
	}
	f.st.ClearStopReason(v, store.StopSensored)

	if f.st.MovingStatus(v) == store.Stopped || f.st.StopReason(v)&store.StopEStop != 0 {
		f.st.SetVelocity(v, 0)
		return
	}

	edge := f.graph.EdgeAt(f.st.CurrentEdge(v))
	if edge == nil {
		f.st.SetVelocity(v, 0)
		return
	}

	// Accel/decel selection: curves hold speed at the curve cap; an active
	// hit zone replaces thrust with the zone's deceleration.
	appliedAccel := f.st.Acceleration(v)
	curveMax := float32(f.cfg.Vehicle.CurveMaxSpeed)
	if edge.IsCurve() && f.st.Velocity(v) >= curveMax {
		appliedAccel = 0
	}
	var appliedDecel float32
	if f.st.HitZone(v) >= 0 {
		appliedAccel = 0
		appliedDecel = f.st.Deceleration(v)
	}

	speed := f.calculateNextSpeed(v, edge.IsCurve(), appliedAccel, appliedDecel, dt)
	f.st.SetVelocity(v, speed)

	ratio := f.st.EdgeRatio(v) + speed*dt/edge.Distance
	f.st.SetEdgeRatio(v, ratio)

	// Transfer trigger: ask for a next-edge decision as soon as none is in
	// flight.
	if f.st.NextEdgeState(v) == store.NextEdgeEmpty {
		f.st.SetNextEdgeState(v, store.NextEdgePending)
		f.transfer.EnqueueVehicleTransfer(int32(v))
	}

	f.transitionEdges(v)
	f.updateMergeLock(v)
	f.updatePose(v)
}

// calculateNextSpeed clamps v + a*dt into [0, maxSpeed(edge)].
// A deceleration of -Inf is a hard stop.
func (f *FabContext) calculateNextSpeed(v int, curve bool, accel, decel, dt float32) float32 {
	if math.IsInf(float64(decel), -1) {
		return 0
	}
	maxSpeed := float32(f.cfg.Vehicle.LinearMaxSpeed)
	if curve {
		maxSpeed = float32(f.cfg.Vehicle.CurveMaxSpeed)
	}
	speed := f.st.Velocity(v) + (accel+decel)*dt
	if speed < 0 {
		return 0
	}
	if speed > maxSpeed {
		return maxSpeed
	}
	return speed
}

// updateMergeLock runs the merge-lock protocol for the vehicle's active edge.
func (f *FabContext) updateMergeLock(v int) {
	edge := f.graph.EdgeAt(f.st.CurrentEdge(v))
	if edge == nil {
		return
	}
	if !edge.ToNodeIsMerge {
		if f.st.TrafficState(v) != store.TrafficFree {
			f.st.SetTrafficState(v, store.TrafficFree)
		}
		f.st.ClearStopReason(v, store.StopLocked)
		return
	}

	if f.st.TrafficState(v) == store.TrafficFree {
		f.lock.RequestLock(edge.ToNode, f.st.CurrentEdge(v), int32(v), f.simTime)
		f.st.SetTrafficState(v, store.TrafficWaiting)
	}

	// Parked waiters re-poll the grant on a short timer instead of every
	// tick; a moving vehicle always checks.
	if f.st.StopReason(v)&store.StopLocked != 0 && f.checkTimers[v] > 0 {
		f.checkTimers[v]--
		f.st.SetVelocity(v, 0)
		return
	}

	if f.lock.CheckGrant(edge.ToNode, int32(v)) {
		f.st.ClearStopReason(v, store.StopLocked)
		f.st.SetTrafficState(v, store.TrafficAcquired)
		return
	}

	f.st.SetTrafficState(v, store.TrafficWaiting)
	waitFrom := f.cfg.Lock.WaitDistanceFromMergingStr
	if edge.IsCurve() {
		waitFrom = f.cfg.Lock.WaitDistanceFromMergingCurve
	}
	waitDist := edge.Distance - float32(waitFrom)
	if waitDist < 0 {
		waitDist = 0
	}
	if f.st.EdgeRatio(v)*edge.Distance >= waitDist {
		f.st.AddStopReason(v, store.StopLocked)
		f.st.SetEdgeRatio(v, waitDist/edge.Distance)
		f.st.SetVelocity(v, 0)
		f.checkTimers[v] = int8(f.cfg.Lock.RecheckTicks)
	} else {
		f.st.ClearStopReason(v, store.StopLocked)
	}
}

// updatePose interpolates world pose from the active edge polyline and
// rewrites the sensor record.
func (f *FabContext) updatePose(v int) {
	edge := f.graph.EdgeAt(f.st.CurrentEdge(v))
	if edge == nil {
		return
	}
	x, y, z, rot := edge.SampleAt(f.st.EdgeRatio(v))
	z += float32(f.cfg.Vehicle.ZOffset)
	f.st.SetPosition(v, x, y, z)
	f.st.SetRotation(v, rot)

	sensors.UpdatePoints(f.st.SensorSlice(v), x, y, rot, f.presets.At(f.st.PresetIdx(v)))
}
