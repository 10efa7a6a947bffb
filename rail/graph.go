// Package rail models the immutable rail graph a fab runs on: 1-based node
// and edge tables, derived merge/diverge topology, deadlock-zone tagging and
// polyline sampling. Index 0 is the invalid sentinel everywhere.
package rail

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrUnknownEdgeKind = errors.New("rail: unknown edge kind")
	ErrEmptyGraph      = errors.New("rail: edge set is empty")
	ErrMissingNode     = errors.New("rail: edge references unknown node")
	ErrNoPolyline      = errors.New("rail: edge has no rendering points")
)

// Point is a 3-D polyline vertex.
type Point struct {
	X, Y, Z float32
}

// Node is a rail graph vertex with derived topology flags.
type Node struct {
	Name    string
	X, Y, Z float32
	Barcode string

	InDegree  int
	OutDegree int

	IsMerge    bool // in-degree >= 2
	IsDiverge  bool // out-degree >= 2
	IsTerminal bool // in-degree or out-degree == 0

	IsDeadlockBranchNode bool
	IsDeadlockMergeNode  bool
	DeadlockZoneID       int32 // 0 when not in a zone
}

// Edge is a directed rail segment between two nodes.
type Edge struct {
	Name     string
	FromNode int32 // 1-based node index
	ToNode   int32
	Kind     Kind
	CurveDir CurveDir
	Axis     Axis
	Distance float32
	Radius   float32
	Rotation float32

	Waypoints       []string
	RenderingPoints []Point
	cumLength       []float32 // cumulative polyline length, same len as RenderingPoints

	NextEdgeIndices []int32 // 1-based, definition order; [0] is canonical
	PrevEdgeIndices []int32

	FromNodeIsMerge   bool
	FromNodeIsDiverge bool
	ToNodeIsMerge     bool
	ToNodeIsDiverge   bool

	IsDeadlockZoneInside bool
	IsDeadlockZoneEntry  bool
	DeadlockZoneID       int32
}

// IsCurve reports whether the edge is any curve kind.
func (e *Edge) IsCurve() bool { return e.Kind.IsCurve() }

// NodeDef is the build-time description of a node.
type NodeDef struct {
	Name    string
	X, Y, Z float32
	Barcode string
}

// EdgeDef is the build-time description of an edge. RenderingPoints are the
// precomputed polyline; the graph consumes them, it does not generate them.
type EdgeDef struct {
	Name            string
	From            string
	To              string
	RailType        string
	Axis            string
	Distance        float32
	Radius          float32
	Rotation        float32
	Waypoints       []string
	RenderingPoints []Point
}

// Graph is the immutable rail topology of one fab. Nodes and Edges are
// 1-based: slot 0 holds a zero value and is never a valid reference.
type Graph struct {
	Nodes []Node
	Edges []Edge

	NodeIndex map[string]int32
	EdgeIndex map[string]int32
}

// NumEdges returns the count of real edges (excluding the sentinel slot).
func (g *Graph) NumEdges() int { return len(g.Edges) - 1 }

// NumNodes returns the count of real nodes (excluding the sentinel slot).
func (g *Graph) NumNodes() int { return len(g.Nodes) - 1 }

// EdgeAt returns the edge at a 1-based index, or nil if out of range.
func (g *Graph) EdgeAt(idx int32) *Edge {
	if idx < 1 || int(idx) >= len(g.Edges) {
		return nil
	}
	return &g.Edges[idx]
}

// NodeAt returns the node at a 1-based index, or nil if out of range.
func (g *Graph) NodeAt(idx int32) *Node {
	if idx < 1 || int(idx) >= len(g.Nodes) {
		return nil
	}
	return &g.Nodes[idx]
}

// Build constructs a Graph from definitions, derives node topology flags,
// next/prev edge indices and deadlock zones. Topology is immutable afterwards.
func Build(nodes []NodeDef, edges []EdgeDef) (*Graph, error) {
	if len(edges) == 0 {
		return nil, ErrEmptyGraph
	}

	g := &Graph{
		Nodes:     make([]Node, len(nodes)+1),
		Edges:     make([]Edge, len(edges)+1),
		NodeIndex: make(map[string]int32, len(nodes)),
		EdgeIndex: make(map[string]int32, len(edges)),
	}

	for i, nd := range nodes {
		idx := int32(i + 1)
		if _, dup := g.NodeIndex[nd.Name]; dup {
			return nil, fmt.Errorf("rail: duplicate node name %q", nd.Name)
		}
		g.Nodes[idx] = Node{Name: nd.Name, X: nd.X, Y: nd.Y, Z: nd.Z, Barcode: nd.Barcode}
		g.NodeIndex[nd.Name] = idx
	}

	for i, ed := range edges {
		idx := int32(i + 1)
		if _, dup := g.EdgeIndex[ed.Name]; dup {
			return nil, fmt.Errorf("rail: duplicate edge name %q", ed.Name)
		}
		from, ok := g.NodeIndex[ed.From]
		if !ok {
			return nil, fmt.Errorf("%w: edge %q from %q", ErrMissingNode, ed.Name, ed.From)
		}
		to, ok := g.NodeIndex[ed.To]
		if !ok {
			return nil, fmt.Errorf("%w: edge %q to %q", ErrMissingNode, ed.Name, ed.To)
		}
		kind, err := ParseKind(ed.RailType)
		if err != nil {
			return nil, fmt.Errorf("edge %q: %w", ed.Name, err)
		}
		axis, err := ParseAxis(ed.Axis)
		if err != nil {
			return nil, fmt.Errorf("edge %q: %w", ed.Name, err)
		}
		if len(ed.RenderingPoints) < 2 {
			return nil, fmt.Errorf("%w: edge %q", ErrNoPolyline, ed.Name)
		}

		e := Edge{
			Name:            ed.Name,
			FromNode:        from,
			ToNode:          to,
			Kind:            kind,
			Axis:            axis,
			Distance:        ed.Distance,
			Radius:          ed.Radius,
			Rotation:        ed.Rotation,
			Waypoints:       ed.Waypoints,
			RenderingPoints: ed.RenderingPoints,
		}
		e.cumLength = cumulativeLength(e.RenderingPoints)
		if e.Distance <= 0 {
			e.Distance = e.cumLength[len(e.cumLength)-1]
		}
		if e.Distance <= 0 {
			return nil, fmt.Errorf("rail: edge %q has zero length", ed.Name)
		}
		if kind.IsCurve() {
			e.CurveDir = curveDirection(e.RenderingPoints)
		}

		g.Edges[idx] = e
		g.EdgeIndex[ed.Name] = idx

		g.Nodes[from].OutDegree++
		g.Nodes[to].InDegree++
	}

	for i := 1; i < len(g.Nodes); i++ {
		n := &g.Nodes[i]
		n.IsMerge = n.InDegree >= 2
		n.IsDiverge = n.OutDegree >= 2
		n.IsTerminal = n.InDegree == 0 || n.OutDegree == 0
	}

	// next/prev adjacency in edge-definition order; [0] is canonical.
	for i := 1; i < len(g.Edges); i++ {
		e := &g.Edges[i]
		for j := 1; j < len(g.Edges); j++ {
			if i == j {
				continue
			}
			if g.Edges[j].FromNode == e.ToNode {
				e.NextEdgeIndices = append(e.NextEdgeIndices, int32(j))
			}
			if g.Edges[j].ToNode == e.FromNode {
				e.PrevEdgeIndices = append(e.PrevEdgeIndices, int32(j))
			}
		}
		e.FromNodeIsMerge = g.Nodes[e.FromNode].IsMerge
		e.FromNodeIsDiverge = g.Nodes[e.FromNode].IsDiverge
		e.ToNodeIsMerge = g.Nodes[e.ToNode].IsMerge
		e.ToNodeIsDiverge = g.Nodes[e.ToNode].IsDiverge
	}

	g.detectDeadlockZones()

	return g, nil
}

// cumulativeLength returns the running arc length of a polyline.
func cumulativeLength(pts []Point) []float32 {
	cum := make([]float32, len(pts))
	for i := 1; i < len(pts); i++ {
		dx := float64(pts[i].X - pts[i-1].X)
		dy := float64(pts[i].Y - pts[i-1].Y)
		dz := float64(pts[i].Z - pts[i-1].Z)
		cum[i] = cum[i-1] + float32(math.Sqrt(dx*dx+dy*dy+dz*dz))
	}
	return cum
}

// curveDirection derives the turn direction from the polyline's start and end
// tangents via their cross product.
func curveDirection(pts []Point) CurveDir {
	n := len(pts)
	if n < 3 {
		return DirNone
	}
	sx := pts[1].X - pts[0].X
	sy := pts[1].Y - pts[0].Y
	ex := pts[n-1].X - pts[n-2].X
	ey := pts[n-1].Y - pts[n-2].Y
	cross := sx*ey - sy*ex
	switch {
	case cross > 0:
		return DirLeft
	case cross < 0:
		return DirRight
	default:
		return DirNone
	}
}

// SampleAt interpolates pose along the edge polyline at ratio in [0,1].
// Rotation is the tangent angle of the containing segment.
func (e *Edge) SampleAt(ratio float32) (x, y, z, rotation float32) {
	pts := e.RenderingPoints
	cum := e.cumLength
	total := cum[len(cum)-1]
	if ratio <= 0 {
		return pointPose(pts, 0)
	}
	if ratio >= 1 {
		return pointPose(pts, len(pts)-1)
	}
	target := ratio * total

	// Binary search for the containing segment.
	lo, hi := 0, len(cum)-1
	for lo+1 < hi {
		mid := (lo + hi) / 2
		if cum[mid] <= target {
			lo = mid
		} else {
			hi = mid
		}
	}
	segLen := cum[hi] - cum[lo]
	t := float32(0)
	if segLen > 0 {
		t = (target - cum[lo]) / segLen
	}
	a, b := pts[lo], pts[hi]
	x = a.X + (b.X-a.X)*t
	y = a.Y + (b.Y-a.Y)*t
	z = a.Z + (b.Z-a.Z)*t
	rotation = float32(math.Atan2(float64(b.Y-a.Y), float64(b.X-a.X)))
	return x, y, z, rotation
}

// pointPose returns the pose at a polyline vertex, using the adjacent segment
// for the tangent.
func pointPose(pts []Point, i int) (x, y, z, rotation float32) {
	if i >= len(pts)-1 {
		i = len(pts) - 1
		a, b := pts[i-1], pts[i]
		return b.X, b.Y, b.Z, float32(math.Atan2(float64(b.Y-a.Y), float64(b.X-a.X)))
	}
	a, b := pts[i], pts[i+1]
	return a.X, a.Y, a.Z, float32(math.Atan2(float64(b.Y-a.Y), float64(b.X-a.X)))
}
