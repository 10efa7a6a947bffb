package store

import (
	"fmt"

	"github.com/pthm-cable/railsim/layout"
)

// Path buffer layout: per vehicle, pathLen int32 slots; slot 0 is the number
// of remaining edges, slots 1..len hold 1-based edge indices in travel order.

func (s *Store) pathBase(v int) int { return v * s.pathLen }

// PathCount returns the number of edges left in a vehicle's path.
func (s *Store) PathCount(v int) int {
	return int(s.path[s.pathBase(v)])
}

// SetPath overwrites a vehicle's path buffer.
func (s *Store) SetPath(v int, edges []int32) error {
	if len(edges) > s.pathLen-1 {
		return fmt.Errorf("%w: %d edges, capacity %d", ErrPathTooLong, len(edges), s.pathLen-1)
	}
	for _, e := range edges {
		if !s.ValidEdge(e) {
			return fmt.Errorf("%w: %d in path", ErrEdgeIndex, e)
		}
	}
	base := s.pathBase(v)
	s.path[base] = int32(len(edges))
	copy(s.path[base+1:base+1+len(edges)], edges)
	return nil
}

// PopPathEdge removes and returns the first edge of a vehicle's path.
func (s *Store) PopPathEdge(v int) (int32, bool) {
	base := s.pathBase(v)
	n := s.path[base]
	if n <= 0 {
		return InvalidEdge, false
	}
	head := s.path[base+1]
	copy(s.path[base+1:base+int(n)], s.path[base+2:base+1+int(n)])
	s.path[base] = n - 1
	return head, true
}

// ClearPath empties a vehicle's path buffer.
func (s *Store) ClearPath(v int) {
	s.path[s.pathBase(v)] = 0
}

// PathEdges returns a copy of the remaining path.
func (s *Store) PathEdges(v int) []int32 {
	base := s.pathBase(v)
	n := int(s.path[base])
	out := make([]int32, n)
	copy(out, s.path[base+1:base+1+n])
	return out
}

// Checkpoint layout: per vehicle, CheckpointDataSize int32 slots written by
// the auto router for lock decisions.

// SetCheckpoint records the routing checkpoint for a vehicle. No-op when the
// checkpoint region is absent.
func (s *Store) SetCheckpoint(v int, edge, node, kind, flag int32) {
	if s.cp == nil {
		return
	}
	base := v * layout.CheckpointDataSize
	s.cp[base] = edge
	s.cp[base+1] = node
	s.cp[base+2] = kind
	s.cp[base+3] = flag
}

// Checkpoint returns the recorded checkpoint, or ok=false when the region is
// absent.
func (s *Store) Checkpoint(v int) (edge, node, kind, flag int32, ok bool) {
	if s.cp == nil {
		return 0, 0, 0, 0, false
	}
	base := v * layout.CheckpointDataSize
	return s.cp[base], s.cp[base+1], s.cp[base+2], s.cp[base+3], true
}
