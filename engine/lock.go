package engine

import (
	"sort"

	"github.com/pthm-cable/railsim/config"
	"github.com/pthm-cable/railsim/rail"
)

// lockRequest is one waiter at a merge node.
type lockRequest struct {
	veh         int32
	edge        int32
	requestTime float64
	seq         uint64 // FIFO tie-breaker for equal request times
}

// nodeLock is the per-merge-node arbitration state: a FIFO of pending
// requests and at most one grant.
type nodeLock struct {
	queue     []lockRequest
	grantVeh  int32
	grantEdge int32
}

// LockMgr arbitrates merge-node entry for one fab. It is fab-local and never
// crosses workers.
type LockMgr struct {
	graph    *rail.Graph
	strategy config.GrantStrategy
	locks    map[int32]*nodeLock
	seq      uint64
}

// NewLockMgr creates the lock table for a fab's merge nodes.
func NewLockMgr(g *rail.Graph, strategy config.GrantStrategy) *LockMgr {
	return &LockMgr{
		graph:    g,
		strategy: strategy,
		locks:    make(map[int32]*nodeLock),
	}
}

func (m *LockMgr) node(nodeIdx int32) *nodeLock {
	nl, ok := m.locks[nodeIdx]
	if !ok {
		nl = &nodeLock{grantVeh: -1}
		m.locks[nodeIdx] = nl
	}
	return nl
}

// RequestLock appends a waiter to the node's FIFO. Duplicate requests from
// the same vehicle are ignored.
func (m *LockMgr) RequestLock(nodeIdx, edge, veh int32, simTime float64) {
	nl := m.node(nodeIdx)
	if nl.grantVeh == veh {
		return
	}
	for _, r := range nl.queue {
		if r.veh == veh {
			return
		}
	}
	m.seq++
	nl.queue = append(nl.queue, lockRequest{veh: veh, edge: edge, requestTime: simTime, seq: m.seq})
}

// CheckGrant promotes a waiter if the node is free and reports whether veh
// currently holds the grant. At most one grant exists per node.
func (m *LockMgr) CheckGrant(nodeIdx, veh int32) bool {
	nl := m.node(nodeIdx)
	if nl.grantVeh == -1 && len(nl.queue) > 0 {
		m.promote(nl)
	}
	return nl.grantVeh == veh
}

// promote pops the winning waiter into the grant slot.
func (m *LockMgr) promote(nl *nodeLock) {
	win := 0
	switch m.strategy {
	case config.GrantBranchFIFO:
		win = m.pickBranchFIFO(nl.queue)
	default:
		win = pickFIFO(nl.queue)
	}
	r := nl.queue[win]
	nl.queue = append(nl.queue[:win], nl.queue[win+1:]...)
	nl.grantVeh = r.veh
	nl.grantEdge = r.edge
}

// pickFIFO selects the earliest request; ties break by sequence.
func pickFIFO(q []lockRequest) int {
	win := 0
	for i := 1; i < len(q); i++ {
		if less(q[i], q[win]) {
			win = i
		}
	}
	return win
}

// pickBranchFIFO prefers waiters whose request edge enters a deadlock zone,
// FIFO within each class.
func (m *LockMgr) pickBranchFIFO(q []lockRequest) int {
	win := -1
	winEntry := false
	for i := range q {
		e := m.graph.EdgeAt(q[i].edge)
		entry := e != nil && e.IsDeadlockZoneEntry
		switch {
		case win == -1:
			win = i
			winEntry = entry
		case entry && !winEntry:
			win = i
			winEntry = true
		case entry == winEntry && less(q[i], q[win]):
			win = i
		}
	}
	return win
}

func less(a, b lockRequest) bool {
	if a.requestTime != b.requestTime {
		return a.requestTime < b.requestTime
	}
	return a.seq < b.seq
}

// ReleaseLock drops veh's grant and any queued request at the node, then
// advances the FIFO per the configured strategy.
func (m *LockMgr) ReleaseLock(nodeIdx, veh int32) {
	nl, ok := m.locks[nodeIdx]
	if !ok {
		return
	}
	if nl.grantVeh == veh {
		nl.grantVeh = -1
		nl.grantEdge = 0
	}
	for i, r := range nl.queue {
		if r.veh == veh {
			nl.queue = append(nl.queue[:i], nl.queue[i+1:]...)
			break
		}
	}
	if nl.grantVeh == -1 && len(nl.queue) > 0 {
		m.promote(nl)
	}
}

// GrantHolder returns the vehicle holding the node's grant, or -1.
func (m *LockMgr) GrantHolder(nodeIdx int32) int32 {
	if nl, ok := m.locks[nodeIdx]; ok {
		return nl.grantVeh
	}
	return -1
}

// Snapshot builds the externally visible lock table, nodes sorted by name.
func (m *LockMgr) Snapshot(fabID string) LockTable {
	table := LockTable{FabID: fabID}
	for nodeIdx, nl := range m.locks {
		node := m.graph.NodeAt(nodeIdx)
		if node == nil {
			continue
		}
		view := LockNodeView{
			NodeName:     node.Name,
			GrantVehicle: nl.grantVeh,
		}
		if e := m.graph.EdgeAt(nl.grantEdge); e != nil {
			view.GrantEdge = e.Name
		}
		for _, r := range nl.queue {
			rv := LockRequestView{VehicleIndex: r.veh, RequestTime: r.requestTime}
			if e := m.graph.EdgeAt(r.edge); e != nil {
				rv.EdgeName = e.Name
			}
			view.Queue = append(view.Queue, rv)
		}
		table.Nodes = append(table.Nodes, view)
	}
	sort.Slice(table.Nodes, func(i, j int) bool {
		return table.Nodes[i].NodeName < table.Nodes[j].NodeName
	})
	return table
}
