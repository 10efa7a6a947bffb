package rail

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(name string, x, y float32) NodeDef {
	return NodeDef{Name: name, X: x, Y: y}
}

func linearEdge(name, from, to string, a, b Point) EdgeDef {
	return EdgeDef{
		Name:            name,
		From:            from,
		To:              to,
		RailType:        "LINEAR",
		RenderingPoints: []Point{a, b},
	}
}

func TestBuildTopologyFlags(t *testing.T) {
	nodes := []NodeDef{
		node("N1", 0, 0), node("N2", 10, 0), node("N3", 10, 10), node("N4", 20, 0),
	}
	edges := []EdgeDef{
		linearEdge("E1", "N1", "N2", Point{0, 0, 0}, Point{10, 0, 0}),
		linearEdge("E2", "N3", "N2", Point{10, 10, 0}, Point{10, 0, 0}),
		linearEdge("E3", "N2", "N4", Point{10, 0, 0}, Point{20, 0, 0}),
	}

	g, err := Build(nodes, edges)
	require.NoError(t, err)

	require.Equal(t, 3, g.NumEdges())
	n2 := g.NodeAt(g.NodeIndex["N2"])
	assert.True(t, n2.IsMerge)
	assert.False(t, n2.IsDiverge)

	assert.True(t, g.NodeAt(g.NodeIndex["N1"]).IsTerminal)
	assert.True(t, g.NodeAt(g.NodeIndex["N4"]).IsTerminal)

	e1 := g.EdgeAt(g.EdgeIndex["E1"])
	assert.True(t, e1.ToNodeIsMerge)
	require.Len(t, e1.NextEdgeIndices, 1)
	assert.Equal(t, g.EdgeIndex["E3"], e1.NextEdgeIndices[0])

	e3 := g.EdgeAt(g.EdgeIndex["E3"])
	assert.ElementsMatch(t, []int32{g.EdgeIndex["E1"], g.EdgeIndex["E2"]}, e3.PrevEdgeIndices)
}

func TestBuildRejectsBadInput(t *testing.T) {
	_, err := Build(nil, nil)
	assert.ErrorIs(t, err, ErrEmptyGraph)

	nodes := []NodeDef{node("N1", 0, 0), node("N2", 10, 0)}

	bad := linearEdge("E1", "N1", "NX", Point{0, 0, 0}, Point{10, 0, 0})
	_, err = Build(nodes, []EdgeDef{bad})
	assert.ErrorIs(t, err, ErrMissingNode)

	unknown := linearEdge("E1", "N1", "N2", Point{0, 0, 0}, Point{10, 0, 0})
	unknown.RailType = "BEZIER"
	_, err = Build(nodes, []EdgeDef{unknown})
	assert.ErrorIs(t, err, ErrUnknownEdgeKind)

	unset := linearEdge("E1", "N1", "N2", Point{0, 0, 0}, Point{10, 0, 0})
	unset.RailType = ""
	_, err = Build(nodes, []EdgeDef{unset})
	assert.ErrorIs(t, err, ErrUnknownEdgeKind)

	noPoly := linearEdge("E1", "N1", "N2", Point{0, 0, 0}, Point{10, 0, 0})
	noPoly.RenderingPoints = nil
	_, err = Build(nodes, []EdgeDef{noPoly})
	assert.ErrorIs(t, err, ErrNoPolyline)
}

func TestSampleAt(t *testing.T) {
	nodes := []NodeDef{node("N1", 0, 0), node("N2", 10, 0)}
	e := linearEdge("E1", "N1", "N2", Point{0, 0, 0}, Point{10, 0, 0})
	g, err := Build(nodes, []EdgeDef{e})
	require.NoError(t, err)

	edge := g.EdgeAt(1)
	assert.InDelta(t, 10.0, float64(edge.Distance), 1e-6)

	x, y, _, rot := edge.SampleAt(0.5)
	assert.InDelta(t, 5.0, float64(x), 1e-5)
	assert.InDelta(t, 0.0, float64(y), 1e-5)
	assert.InDelta(t, 0.0, float64(rot), 1e-5)

	x, _, _, _ = edge.SampleAt(0)
	assert.InDelta(t, 0.0, float64(x), 1e-5)
	x, _, _, _ = edge.SampleAt(1)
	assert.InDelta(t, 10.0, float64(x), 1e-5)
}

func TestSampleAtMultiSegment(t *testing.T) {
	nodes := []NodeDef{node("N1", 0, 0), node("N2", 10, 10)}
	def := EdgeDef{
		Name:     "E1",
		From:     "N1",
		To:       "N2",
		RailType: "CURVE_90",
		RenderingPoints: []Point{
			{0, 0, 0}, {10, 0, 0}, {10, 10, 0},
		},
	}
	g, err := Build(nodes, []EdgeDef{def})
	require.NoError(t, err)

	edge := g.EdgeAt(1)
	assert.InDelta(t, 20.0, float64(edge.Distance), 1e-5)
	assert.Equal(t, DirLeft, edge.CurveDir)

	// Three quarters along: 15 of 20, i.e. 5 into the second segment.
	x, y, _, rot := edge.SampleAt(0.75)
	assert.InDelta(t, 10.0, float64(x), 1e-5)
	assert.InDelta(t, 5.0, float64(y), 1e-5)
	assert.InDelta(t, math.Pi/2, float64(rot), 1e-5)
}

func TestDeadlockZoneDiamond(t *testing.T) {
	// A and D each branch to merges B and C.
	nodes := []NodeDef{
		node("A", 0, 0), node("B", 10, 5), node("C", 10, -5), node("D", 20, 0),
		node("IN_A", -10, 0), node("IN_D", 30, 0),
	}
	edges := []EdgeDef{
		linearEdge("AB", "A", "B", Point{0, 0, 0}, Point{10, 5, 0}),
		linearEdge("AC", "A", "C", Point{0, 0, 0}, Point{10, -5, 0}),
		linearEdge("DB", "D", "B", Point{20, 0, 0}, Point{10, 5, 0}),
		linearEdge("DC", "D", "C", Point{20, 0, 0}, Point{10, -5, 0}),
		linearEdge("ENTRY_A", "IN_A", "A", Point{-10, 0, 0}, Point{0, 0, 0}),
		linearEdge("ENTRY_D", "IN_D", "D", Point{30, 0, 0}, Point{20, 0, 0}),
	}

	g, err := Build(nodes, edges)
	require.NoError(t, err)

	a := g.NodeAt(g.NodeIndex["A"])
	d := g.NodeAt(g.NodeIndex["D"])
	b := g.NodeAt(g.NodeIndex["B"])
	c := g.NodeAt(g.NodeIndex["C"])

	assert.True(t, a.IsDeadlockBranchNode)
	assert.True(t, d.IsDeadlockBranchNode)
	assert.True(t, b.IsDeadlockMergeNode)
	assert.True(t, c.IsDeadlockMergeNode)

	zone := a.DeadlockZoneID
	require.NotZero(t, zone)
	assert.Equal(t, zone, d.DeadlockZoneID)
	assert.Equal(t, zone, b.DeadlockZoneID)
	assert.Equal(t, zone, c.DeadlockZoneID)

	for _, name := range []string{"AB", "AC", "DB", "DC"} {
		e := g.EdgeAt(g.EdgeIndex[name])
		assert.True(t, e.IsDeadlockZoneInside, "edge %s", name)
		assert.Equal(t, zone, e.DeadlockZoneID, "edge %s", name)
	}
	for _, name := range []string{"ENTRY_A", "ENTRY_D"} {
		e := g.EdgeAt(g.EdgeIndex[name])
		assert.True(t, e.IsDeadlockZoneEntry, "edge %s", name)
		assert.False(t, e.IsDeadlockZoneInside, "edge %s", name)
	}
}

func TestNoDeadlockZoneOnSingleSharedMerge(t *testing.T) {
	nodes := []NodeDef{
		node("A", 0, 0), node("B", 10, 0), node("D", 20, 0),
		node("X", 5, 5), node("Y", 15, 5),
	}
	// A and D share only one merge node B.
	edges := []EdgeDef{
		linearEdge("AB", "A", "B", Point{0, 0, 0}, Point{10, 0, 0}),
		linearEdge("AX", "A", "X", Point{0, 0, 0}, Point{5, 5, 0}),
		linearEdge("DB", "D", "B", Point{20, 0, 0}, Point{10, 0, 0}),
		linearEdge("DY", "D", "Y", Point{20, 0, 0}, Point{15, 5, 0}),
	}

	g, err := Build(nodes, edges)
	require.NoError(t, err)

	for i := 1; i <= g.NumNodes(); i++ {
		n := g.NodeAt(int32(i))
		assert.False(t, n.IsDeadlockBranchNode, "node %s", n.Name)
		assert.False(t, n.IsDeadlockMergeNode, "node %s", n.Name)
	}
}
