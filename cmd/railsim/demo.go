package main

import "github.com/pthm-cable/railsim/rail"

// Demo map: two stacked rectangular loops sharing a middle rail, which gives
// the engine a real merge (N2) and diverge (N1) to chew on. With a single
// diverge node the map has no deadlock diamond.
//
//	N4 ---E3--- N3
//	|            |
//	E4          E2
//	|            |
//	N1 ---E1--- N2        (shared middle rail)
//	|            |
//	E5          E8
//	|            |
//	N5 ---E7--- N6        (lower loop via E5, E7, E8)
//
// The middle rail E1 carries both loops, so N1 diverges and N2 merges.

func demoNodes() []rail.NodeDef {
	return []rail.NodeDef{
		{Name: "N1", X: 0, Y: 0},
		{Name: "N2", X: 60, Y: 0},
		{Name: "N3", X: 60, Y: 30},
		{Name: "N4", X: 0, Y: 30},
		{Name: "N5", X: 0, Y: -30},
		{Name: "N6", X: 60, Y: -30},
	}
}

func demoEdges() []rail.EdgeDef {
	pt := func(x, y float32) rail.Point { return rail.Point{X: x, Y: y} }
	lin := func(name, from, to string, axis string, a, b rail.Point) rail.EdgeDef {
		return rail.EdgeDef{
			Name: name, From: from, To: to, RailType: "LINEAR", Axis: axis,
			RenderingPoints: []rail.Point{a, b},
		}
	}
	return []rail.EdgeDef{
		lin("E1", "N1", "N2", "x", pt(0, 0), pt(60, 0)),
		lin("E2", "N2", "N3", "y", pt(60, 0), pt(60, 30)),
		lin("E3", "N3", "N4", "x", pt(60, 30), pt(0, 30)),
		lin("E4", "N4", "N1", "y", pt(0, 30), pt(0, 0)),
		lin("E5", "N1", "N5", "y", pt(0, 0), pt(0, -30)),
		lin("E7", "N5", "N6", "x", pt(0, -30), pt(60, -30)),
		lin("E8", "N6", "N2", "y", pt(60, -30), pt(60, 0)),
	}
}
