package store

// Per-vehicle field offsets inside the vehicle buffer stride. The layout is
// contractual: the renderer and external hosts read these slots byte-exact.
const (
	OffX = iota
	OffY
	OffZ
	OffRotation
	OffVelocity
	OffAcceleration
	OffDeceleration
	OffEdgeRatio
	OffCurrentEdge
	OffNextEdge
	OffNextEdgeState
	OffMovingStatus
	OffPresetIdx
	OffHitZone
	OffCollisionTarget
	OffTrafficState
	OffStopReason
	OffJobState
	// Slots 18..21 are reserved.
)

// MovingStatus is the coarse motion state of a vehicle.
type MovingStatus int32

const (
	Moving MovingStatus = iota
	Stopped
	Paused
)

// NextEdgeState tracks the next-edge decision lifecycle.
type NextEdgeState int32

const (
	NextEdgeEmpty NextEdgeState = iota
	NextEdgePending
	NextEdgeReady
)

// HitZone is the worst sensor zone currently intersected by another vehicle.
type HitZone int32

const (
	HitNone     HitZone = -1
	HitApproach HitZone = 0
	HitBrake    HitZone = 1
	HitStop     HitZone = 2
)

// TrafficState is the merge-lock state of a vehicle.
type TrafficState int32

const (
	TrafficFree TrafficState = iota
	TrafficWaiting
	TrafficAcquired
)

// StopReason is a bitflag set explaining why a vehicle is held.
type StopReason int32

const (
	StopLocked StopReason = 1 << iota
	StopSensored
	StopEStop
)

// InvalidEdge is the reserved sentinel for "no edge".
const InvalidEdge int32 = 0
