package engine

import (
	"log/slog"

	"github.com/pthm-cable/railsim/rail"
	"github.com/pthm-cable/railsim/store"
)

// Station is a routing destination on the rail graph.
type Station struct {
	Name  string
	Edge  int32
	Ratio float32
}

// StationPicker selects a destination station for a vehicle. cursor is the
// manager's rotating counter; implementations return an index into stations.
type StationPicker func(veh int, stations []Station, cursor int) int

// RoundRobinPicker is the default station policy.
func RoundRobinPicker(_ int, stations []Station, cursor int) int {
	return cursor % len(stations)
}

// AutoMgr assigns destinations to vehicles whose path buffer is exhausted and
// writes BFS routes into the shared path buffer.
type AutoMgr struct {
	graph    *rail.Graph
	st       *store.Store
	stations []Station
	picker   StationPicker
	log      *slog.Logger

	cursor int
	router *router
}

// NewAutoMgr builds the manager; with no stations it is inert.
func NewAutoMgr(g *rail.Graph, st *store.Store, stations []Station, picker StationPicker, log *slog.Logger) *AutoMgr {
	if picker == nil {
		picker = RoundRobinPicker
	}
	return &AutoMgr{
		graph:    g,
		st:       st,
		stations: stations,
		picker:   picker,
		log:      log,
		router:   newRouter(g),
	}
}

// Update scans vehicles with exhausted paths and assigns the next
// destination. Runs after movement each tick.
func (a *AutoMgr) Update() {
	if len(a.stations) == 0 {
		return
	}
	for v := 0; v < a.st.MaxVehicles(); v++ {
		if !a.st.Active(v) || a.st.PathCount(v) > 0 {
			continue
		}
		pick := a.picker(v, a.stations, a.cursor)
		a.cursor++
		if pick < 0 || pick >= len(a.stations) {
			continue
		}
		dst := a.stations[pick]

		cur := a.st.CurrentEdge(v)
		if cur == dst.Edge {
			continue
		}
		path, ok := a.router.Route(cur, dst.Edge)
		if !ok {
			a.log.Warn("no route to station", "vehicle", v, "station", dst.Name)
			continue
		}
		if err := a.st.SetPath(v, path); err != nil {
			a.log.Warn("route rejected", "vehicle", v, "station", dst.Name, "err", err)
			continue
		}
		e := a.graph.EdgeAt(dst.Edge)
		a.st.SetCheckpoint(v, dst.Edge, e.ToNode, int32(e.Kind), 1)
		a.st.SetJobState(v, int32(pick)+1)
	}
}

// router runs hop-count BFS over next-edge adjacency. prev/visited buffers
// are reused across calls.
type router struct {
	graph   *rail.Graph
	prev    []int32
	visited []bool
	queue   []int32
}

func newRouter(g *rail.Graph) *router {
	n := g.NumEdges() + 1
	return &router{
		graph:   g,
		prev:    make([]int32, n),
		visited: make([]bool, n),
	}
}

// Route returns the edge sequence from (exclusive) src to (inclusive) dst,
// following nextEdgeIndices in definition order so the canonical edge [0]
// wins ties at equal depth.
func (r *router) Route(src, dst int32) ([]int32, bool) {
	if r.graph.EdgeAt(src) == nil || r.graph.EdgeAt(dst) == nil {
		return nil, false
	}
	for i := range r.visited {
		r.visited[i] = false
		r.prev[i] = 0
	}
	r.queue = r.queue[:0]
	r.queue = append(r.queue, src)
	r.visited[src] = true

	found := false
	for head := 0; head < len(r.queue); head++ {
		cur := r.queue[head]
		if cur == dst {
			found = true
			break
		}
		for _, next := range r.graph.EdgeAt(cur).NextEdgeIndices {
			if r.visited[next] {
				continue
			}
			r.visited[next] = true
			r.prev[next] = cur
			r.queue = append(r.queue, next)
		}
	}
	if !found {
		return nil, false
	}

	var path []int32
	for cur := dst; cur != src; cur = r.prev[cur] {
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, true
}
