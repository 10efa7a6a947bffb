// Package sim hosts the worker tick loops and the multi-worker controller:
// fabs are partitioned across workers, each worker steps its fabs against
// its own regions of the shared buffers, and the controller relays commands
// and render buffers. Channels are the only cross-task communication.
package sim

import (
	"fmt"

	"github.com/pthm-cable/railsim/engine"
	"github.com/pthm-cable/railsim/layout"
	"github.com/pthm-cable/railsim/telemetry"
)

// MsgType enumerates orchestrator -> worker control messages.
type MsgType int

const (
	MsgInit MsgType = iota
	MsgSetRenderBuffer
	MsgStart
	MsgStop
	MsgPause
	MsgResume
	MsgDispose
	MsgCommand
	MsgAddFab
	MsgRemoveFab
	MsgSetLoggerPort
	MsgGetLockTable
)

func (t MsgType) String() string {
	switch t {
	case MsgInit:
		return "INIT"
	case MsgSetRenderBuffer:
		return "SET_RENDER_BUFFER"
	case MsgStart:
		return "START"
	case MsgStop:
		return "STOP"
	case MsgPause:
		return "PAUSE"
	case MsgResume:
		return "RESUME"
	case MsgDispose:
		return "DISPOSE"
	case MsgCommand:
		return "COMMAND"
	case MsgAddFab:
		return "ADD_FAB"
	case MsgRemoveFab:
		return "REMOVE_FAB"
	case MsgSetLoggerPort:
		return "SET_LOGGER_PORT"
	case MsgGetLockTable:
		return "GET_LOCK_TABLE"
	default:
		return fmt.Sprintf("MsgType(%d)", int(t))
	}
}

// FabSetup pairs a fab's init params with its buffer regions.
type FabSetup struct {
	Params  engine.InitParams
	Buffers engine.Buffers
}

// ControlMessage is one orchestrator -> worker message. Only the fields for
// the given type are read.
type ControlMessage struct {
	Type MsgType

	Fabs []FabSetup // INIT

	RenderVehicle []float32            // SET_RENDER_BUFFER
	RenderSensor  []float32            //
	RenderLayout  *layout.RenderLayout //

	FabID   string         // COMMAND, REMOVE_FAB, GET_LOCK_TABLE
	Command engine.Command // COMMAND

	AddFab *FabSetup // ADD_FAB

	LoggerPort int // SET_LOGGER_PORT

	RequestID int64 // GET_LOCK_TABLE
}

// EventType enumerates worker -> orchestrator events.
type EventType int

const (
	EvReady EventType = iota
	EvInitialized
	EvDisposed
	EvError
	EvPerfStats
	EvFabAdded
	EvFabRemoved
	EvLockTable
	EvUnusualMove
)

func (t EventType) String() string {
	switch t {
	case EvReady:
		return "READY"
	case EvInitialized:
		return "INITIALIZED"
	case EvDisposed:
		return "DISPOSED"
	case EvError:
		return "ERROR"
	case EvPerfStats:
		return "PERF_STATS"
	case EvFabAdded:
		return "FAB_ADDED"
	case EvFabRemoved:
		return "FAB_REMOVED"
	case EvLockTable:
		return "LOCK_TABLE"
	case EvUnusualMove:
		return "UNUSUAL_MOVE"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is one worker -> orchestrator message.
type Event struct {
	Type     EventType
	WorkerID int

	Err error // ERROR

	FabVehicleCounts map[string]int // INITIALIZED, PERF_STATS

	Perf telemetry.PerfStats // PERF_STATS

	FabID             string // FAB_ADDED, FAB_REMOVED, LOCK_TABLE
	ActualNumVehicles int    // FAB_ADDED

	RequestID int64            // LOCK_TABLE
	LockTable engine.LockTable // LOCK_TABLE

	UnusualMove engine.UnusualMove // UNUSUAL_MOVE
}
