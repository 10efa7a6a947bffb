package rail

// detectDeadlockZones tags diamond patterns: a pair of diverge nodes {A, D}
// whose outgoing-neighbor sets intersect in exactly two merge nodes {B, C}.
// A and D become branch nodes, B and C merge nodes, all four share a zone id.
// Runs once at build; edge flags are propagated afterwards.
func (g *Graph) detectDeadlockZones() {
	// Outgoing-neighbor node sets per diverge node.
	type divergeInfo struct {
		node int32
		out  map[int32]bool
	}
	var diverges []divergeInfo
	for i := int32(1); int(i) < len(g.Nodes); i++ {
		if !g.Nodes[i].IsDiverge {
			continue
		}
		out := make(map[int32]bool)
		for j := 1; j < len(g.Edges); j++ {
			if g.Edges[j].FromNode == i {
				out[g.Edges[j].ToNode] = true
			}
		}
		diverges = append(diverges, divergeInfo{node: i, out: out})
	}

	var zoneID int32
	for a := 0; a < len(diverges); a++ {
		for d := a + 1; d < len(diverges); d++ {
			var shared []int32
			for n := range diverges[a].out {
				if diverges[d].out[n] && g.Nodes[n].IsMerge {
					shared = append(shared, n)
				}
			}
			if len(shared) != 2 {
				continue
			}

			zoneID++
			branchA, branchD := diverges[a].node, diverges[d].node
			g.Nodes[branchA].IsDeadlockBranchNode = true
			g.Nodes[branchA].DeadlockZoneID = zoneID
			g.Nodes[branchD].IsDeadlockBranchNode = true
			g.Nodes[branchD].DeadlockZoneID = zoneID
			for _, m := range shared {
				g.Nodes[m].IsDeadlockMergeNode = true
				g.Nodes[m].DeadlockZoneID = zoneID
			}
		}
	}

	for i := 1; i < len(g.Edges); i++ {
		e := &g.Edges[i]
		from := &g.Nodes[e.FromNode]
		to := &g.Nodes[e.ToNode]

		if from.IsDeadlockBranchNode && to.IsDeadlockMergeNode {
			e.IsDeadlockZoneInside = true
			e.DeadlockZoneID = from.DeadlockZoneID
		}
		if to.IsDeadlockBranchNode && !from.IsDeadlockMergeNode {
			e.IsDeadlockZoneEntry = true
			e.DeadlockZoneID = to.DeadlockZoneID
		}
	}
}
