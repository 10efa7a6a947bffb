package engine

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pthm-cable/railsim/rail"
	"github.com/pthm-cable/railsim/store"
)

// Command is an external vehicle command. VehID accepts a number or a
// "VEHnnnnn" string. Exactly one of Dest, Path or Action should be set.
type Command struct {
	VehID  any      `json:"vehId"`
	Dest   string   `json:"dest,omitempty"`   // station or edge name
	Path   []string `json:"path,omitempty"`   // explicit edge name sequence
	Action string   `json:"action,omitempty"` // pause | resume | estop | clear_estop
}

// DispatchMgr parses external commands and applies them to the fab.
type DispatchMgr struct {
	graph    *rail.Graph
	st       *store.Store
	transfer *TransferMgr
	auto     *AutoMgr
	log      *slog.Logger
}

// NewDispatchMgr wires the manager.
func NewDispatchMgr(g *rail.Graph, st *store.Store, transfer *TransferMgr, auto *AutoMgr, log *slog.Logger) *DispatchMgr {
	return &DispatchMgr{graph: g, st: st, transfer: transfer, auto: auto, log: log}
}

// ParseVehID resolves the command's vehicle reference: an integer index or a
// "VEHnnnnn" string.
func ParseVehID(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		s := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(v)), "VEH")
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("bad vehicle id %q", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("bad vehicle id type %T", raw)
	}
}

// Handle validates and applies a command. Invalid commands are logged and
// dropped with a CommandRejected error.
func (d *DispatchMgr) Handle(cmd Command) error {
	veh, err := ParseVehID(cmd.VehID)
	if err != nil {
		d.log.Warn("command dropped", "err", err)
		return rejectedf("%v", err)
	}
	if !d.st.Active(veh) {
		d.log.Warn("command dropped", "vehicle", veh, "err", "unknown vehicle")
		return rejectedf("unknown vehicle %d", veh)
	}

	switch {
	case cmd.Action != "":
		return d.applyAction(veh, cmd.Action)
	case len(cmd.Path) > 0:
		return d.assignPath(veh, cmd.Path)
	case cmd.Dest != "":
		return d.assignDest(veh, cmd.Dest)
	default:
		d.log.Warn("command dropped", "vehicle", veh, "err", "empty command")
		return rejectedf("empty command for vehicle %d", veh)
	}
}

func (d *DispatchMgr) applyAction(veh int, action string) error {
	switch strings.ToLower(action) {
	case "pause":
		d.st.SetMovingStatus(veh, store.Paused)
	case "resume":
		if d.st.MovingStatus(veh) == store.Paused {
			d.st.SetMovingStatus(veh, store.Moving)
		}
	case "estop":
		d.st.AddStopReason(veh, store.StopEStop)
		d.st.SetMovingStatus(veh, store.Stopped)
		d.st.SetVelocity(veh, 0)
	case "clear_estop":
		d.st.ClearStopReason(veh, store.StopEStop)
	default:
		d.log.Warn("command dropped", "vehicle", veh, "action", action)
		return rejectedf("unknown action %q", action)
	}
	return nil
}

func (d *DispatchMgr) assignPath(veh int, names []string) error {
	edges := make([]int32, 0, len(names))
	for _, name := range names {
		idx, ok := d.graph.EdgeIndex[name]
		if !ok {
			d.log.Warn("command dropped", "vehicle", veh, "edge", name)
			return rejectedf("unknown edge %q", name)
		}
		edges = append(edges, idx)
	}
	if err := d.st.SetPath(veh, edges); err != nil {
		d.log.Warn("command dropped", "vehicle", veh, "err", err)
		return rejectedf("path rejected: %v", err)
	}
	return nil
}

func (d *DispatchMgr) assignDest(veh int, dest string) error {
	target, ok := d.resolveDest(dest)
	if !ok {
		d.log.Warn("command dropped", "vehicle", veh, "dest", dest)
		return rejectedf("unknown destination %q", dest)
	}
	path, ok := d.auto.router.Route(d.st.CurrentEdge(veh), target)
	if !ok {
		d.log.Warn("command dropped", "vehicle", veh, "dest", dest, "err", "no route")
		return rejectedf("no route to %q", dest)
	}
	if err := d.st.SetPath(veh, path); err != nil {
		d.log.Warn("command dropped", "vehicle", veh, "dest", dest, "err", err)
		return rejectedf("path rejected: %v", err)
	}
	return nil
}

// resolveDest maps a destination name to an edge index: stations first, then
// raw edge names.
func (d *DispatchMgr) resolveDest(dest string) (int32, bool) {
	for _, s := range d.auto.stations {
		if s.Name == dest {
			return s.Edge, true
		}
	}
	idx, ok := d.graph.EdgeIndex[dest]
	return idx, ok
}
