// Package store provides typed, index-checked accessors over one fab's
// regions of the shared vehicle, sensor and path buffers. The buffers are
// structure-of-arrays float32/int32 slices with fixed strides; the stride
// constants live in the layout package, the field offsets in this one.
package store

import (
	"errors"
	"fmt"

	"github.com/pthm-cable/railsim/layout"
)

var (
	ErrVehicleIndex = errors.New("store: vehicle index out of range")
	ErrEdgeIndex    = errors.New("store: edge index out of range")
	ErrBufferSize   = errors.New("store: buffer size mismatch")
	ErrSlotInUse    = errors.New("store: vehicle slot already in use")
	ErrPathTooLong  = errors.New("store: path exceeds buffer capacity")
)

// Store is one fab's view into the shared buffers plus its edge queues.
type Store struct {
	veh  []float32
	sen  []float32
	path []int32
	cp   []int32 // optional checkpoint region, may be nil

	maxVehicles int
	pathLen     int
	numEdges    int

	active []bool
	queues *EdgeQueues
}

// New wires a store over pre-carved regions. Slice lengths must match the
// strides exactly; mismatches are fatal init errors.
func New(veh, sen []float32, path, cp []int32, maxVehicles, pathLen, numEdges int) (*Store, error) {
	if len(veh) != maxVehicles*layout.VehicleDataSize {
		return nil, fmt.Errorf("%w: vehicle region %d, want %d", ErrBufferSize, len(veh), maxVehicles*layout.VehicleDataSize)
	}
	if len(sen) != maxVehicles*layout.SensorDataSize {
		return nil, fmt.Errorf("%w: sensor region %d, want %d", ErrBufferSize, len(sen), maxVehicles*layout.SensorDataSize)
	}
	if len(path) != maxVehicles*pathLen {
		return nil, fmt.Errorf("%w: path region %d, want %d", ErrBufferSize, len(path), maxVehicles*pathLen)
	}
	if cp != nil && len(cp) != maxVehicles*layout.CheckpointDataSize {
		return nil, fmt.Errorf("%w: checkpoint region %d, want %d", ErrBufferSize, len(cp), maxVehicles*layout.CheckpointDataSize)
	}
	if numEdges < 1 {
		return nil, fmt.Errorf("%w: %d edges", ErrEdgeIndex, numEdges)
	}
	s := &Store{
		veh:         veh,
		sen:         sen,
		path:        path,
		cp:          cp,
		maxVehicles: maxVehicles,
		pathLen:     pathLen,
		numEdges:    numEdges,
		active:      make([]bool, maxVehicles),
		queues:      NewEdgeQueues(numEdges),
	}
	for i := 0; i < maxVehicles; i++ {
		s.setI32(i, OffCurrentEdge, InvalidEdge)
		s.setI32(i, OffNextEdge, InvalidEdge)
		s.set(i, OffHitZone, float32(HitNone))
		s.set(i, OffCollisionTarget, -1)
	}
	return s, nil
}

// MaxVehicles returns the fab's vehicle capacity.
func (s *Store) MaxVehicles() int { return s.maxVehicles }

// NumEdges returns the edge count the store validates against.
func (s *Store) NumEdges() int { return s.numEdges }

// PathLen returns the per-vehicle path buffer capacity (including the length
// slot).
func (s *Store) PathLen() int { return s.pathLen }

// Queues exposes the edge-queue table.
func (s *Store) Queues() *EdgeQueues { return s.queues }

// Active reports whether a vehicle slot is populated.
func (s *Store) Active(v int) bool {
	return v >= 0 && v < s.maxVehicles && s.active[v]
}

// ValidVehicle reports whether v is inside the slot range.
func (s *Store) ValidVehicle(v int) bool { return v >= 0 && v < s.maxVehicles }

// ValidEdge reports whether edge is a usable 1-based index.
func (s *Store) ValidEdge(edge int32) bool { return edge >= 1 && int(edge) <= s.numEdges }

func (s *Store) get(v, off int) float32  { return s.veh[v*layout.VehicleDataSize+off] }
func (s *Store) set(v, off int, x float32) { s.veh[v*layout.VehicleDataSize+off] = x }
func (s *Store) getI32(v, off int) int32 { return int32(s.veh[v*layout.VehicleDataSize+off]) }
func (s *Store) setI32(v, off int, x int32) { s.veh[v*layout.VehicleDataSize+off] = float32(x) }

// Position returns (x, y, z).
func (s *Store) Position(v int) (float32, float32, float32) {
	return s.get(v, OffX), s.get(v, OffY), s.get(v, OffZ)
}

// SetPosition writes (x, y, z).
func (s *Store) SetPosition(v int, x, y, z float32) {
	s.set(v, OffX, x)
	s.set(v, OffY, y)
	s.set(v, OffZ, z)
}

func (s *Store) Rotation(v int) float32          { return s.get(v, OffRotation) }
func (s *Store) SetRotation(v int, r float32)    { s.set(v, OffRotation, r) }
func (s *Store) Velocity(v int) float32          { return s.get(v, OffVelocity) }
func (s *Store) SetVelocity(v int, x float32)    { s.set(v, OffVelocity, x) }
func (s *Store) Acceleration(v int) float32      { return s.get(v, OffAcceleration) }
func (s *Store) SetAcceleration(v int, x float32) { s.set(v, OffAcceleration, x) }
func (s *Store) Deceleration(v int) float32      { return s.get(v, OffDeceleration) }
func (s *Store) SetDeceleration(v int, x float32) { s.set(v, OffDeceleration, x) }
func (s *Store) EdgeRatio(v int) float32         { return s.get(v, OffEdgeRatio) }
func (s *Store) SetEdgeRatio(v int, x float32)   { s.set(v, OffEdgeRatio, x) }

func (s *Store) CurrentEdge(v int) int32       { return s.getI32(v, OffCurrentEdge) }
func (s *Store) NextEdge(v int) int32          { return s.getI32(v, OffNextEdge) }
func (s *Store) SetNextEdge(v int, e int32)    { s.setI32(v, OffNextEdge, e) }

func (s *Store) NextEdgeState(v int) NextEdgeState {
	return NextEdgeState(s.getI32(v, OffNextEdgeState))
}
func (s *Store) SetNextEdgeState(v int, st NextEdgeState) { s.setI32(v, OffNextEdgeState, int32(st)) }

func (s *Store) MovingStatus(v int) MovingStatus { return MovingStatus(s.getI32(v, OffMovingStatus)) }
func (s *Store) SetMovingStatus(v int, st MovingStatus) { s.setI32(v, OffMovingStatus, int32(st)) }

func (s *Store) PresetIdx(v int) int32        { return s.getI32(v, OffPresetIdx) }
func (s *Store) SetPresetIdx(v int, p int32)  { s.setI32(v, OffPresetIdx, p) }

func (s *Store) HitZone(v int) HitZone        { return HitZone(s.getI32(v, OffHitZone)) }
func (s *Store) SetHitZone(v int, z HitZone)  { s.setI32(v, OffHitZone, int32(z)) }

func (s *Store) CollisionTarget(v int) int32       { return s.getI32(v, OffCollisionTarget) }
func (s *Store) SetCollisionTarget(v int, t int32) { s.setI32(v, OffCollisionTarget, t) }

func (s *Store) TrafficState(v int) TrafficState { return TrafficState(s.getI32(v, OffTrafficState)) }
func (s *Store) SetTrafficState(v int, st TrafficState) { s.setI32(v, OffTrafficState, int32(st)) }

func (s *Store) StopReason(v int) StopReason { return StopReason(s.getI32(v, OffStopReason)) }
func (s *Store) SetStopReason(v int, r StopReason) { s.setI32(v, OffStopReason, int32(r)) }

// AddStopReason sets flag bits.
func (s *Store) AddStopReason(v int, r StopReason) {
	s.SetStopReason(v, s.StopReason(v)|r)
}

// ClearStopReason clears flag bits.
func (s *Store) ClearStopReason(v int, r StopReason) {
	s.SetStopReason(v, s.StopReason(v)&^r)
}

func (s *Store) JobState(v int) int32       { return s.getI32(v, OffJobState) }
func (s *Store) SetJobState(v int, j int32) { s.setI32(v, OffJobState, j) }

// SensorSlice returns the vehicle's sensor record.
func (s *Store) SensorSlice(v int) []float32 {
	base := v * layout.SensorDataSize
	return s.sen[base : base+layout.SensorDataSize]
}

// Placement is the initial state written by AddVehicle.
type Placement struct {
	X, Y, Z      float32
	Rotation     float32
	EdgeIndex    int32
	EdgeRatio    float32
	Velocity     float32
	Acceleration float32
	Deceleration float32
	MovingStatus MovingStatus
}

// AddVehicle populates a slot and inserts it into the target edge queue,
// keeping the queue sorted lead-first by descending ratio.
func (s *Store) AddVehicle(v int, p Placement) error {
	if !s.ValidVehicle(v) {
		return fmt.Errorf("%w: %d (max %d)", ErrVehicleIndex, v, s.maxVehicles)
	}
	if s.active[v] {
		return fmt.Errorf("%w: %d", ErrSlotInUse, v)
	}
	if !s.ValidEdge(p.EdgeIndex) {
		return fmt.Errorf("%w: %d (edges 1..%d)", ErrEdgeIndex, p.EdgeIndex, s.numEdges)
	}

	s.SetPosition(v, p.X, p.Y, p.Z)
	s.SetRotation(v, p.Rotation)
	s.SetVelocity(v, p.Velocity)
	s.SetAcceleration(v, p.Acceleration)
	s.SetDeceleration(v, p.Deceleration)
	s.SetEdgeRatio(v, p.EdgeRatio)
	s.setI32(v, OffCurrentEdge, p.EdgeIndex)
	s.SetNextEdge(v, InvalidEdge)
	s.SetNextEdgeState(v, NextEdgeEmpty)
	s.SetMovingStatus(v, p.MovingStatus)
	s.SetHitZone(v, HitNone)
	s.SetCollisionTarget(v, -1)
	s.SetTrafficState(v, TrafficFree)
	s.SetStopReason(v, 0)

	s.insertSorted(p.EdgeIndex, v, p.EdgeRatio)
	s.active[v] = true
	return nil
}

// insertSorted places v into the edge queue so that ratios stay descending
// from the lead.
func (s *Store) insertSorted(edge int32, v int, ratio float32) {
	q := s.queues.At(edge)
	pos := len(q)
	for i, other := range q {
		if s.EdgeRatio(int(other)) < ratio {
			pos = i
			break
		}
	}
	s.queues.InsertAt(edge, pos, int32(v))
}

// RemoveVehicle clears a slot and its queue membership.
func (s *Store) RemoveVehicle(v int) error {
	if !s.ValidVehicle(v) {
		return fmt.Errorf("%w: %d", ErrVehicleIndex, v)
	}
	if !s.active[v] {
		return nil
	}
	s.queues.Remove(s.CurrentEdge(v), int32(v))
	base := v * layout.VehicleDataSize
	for i := 0; i < layout.VehicleDataSize; i++ {
		s.veh[base+i] = 0
	}
	s.setI32(v, OffCurrentEdge, InvalidEdge)
	s.setI32(v, OffNextEdge, InvalidEdge)
	s.set(v, OffHitZone, float32(HitNone))
	s.set(v, OffCollisionTarget, -1)
	s.ClearPath(v)
	s.active[v] = false
	return nil
}

// MoveVehicleToEdge atomically moves a vehicle from its current queue to the
// tail of the new edge's queue and writes the edge fields.
func (s *Store) MoveVehicleToEdge(v int, newEdge int32, ratio float32) error {
	if !s.ValidVehicle(v) || !s.active[v] {
		return fmt.Errorf("%w: %d", ErrVehicleIndex, v)
	}
	if !s.ValidEdge(newEdge) {
		return fmt.Errorf("%w: %d (edges 1..%d)", ErrEdgeIndex, newEdge, s.numEdges)
	}
	s.queues.Remove(s.CurrentEdge(v), int32(v))
	s.queues.Append(newEdge, int32(v))
	s.setI32(v, OffCurrentEdge, newEdge)
	s.SetEdgeRatio(v, ratio)
	return nil
}
