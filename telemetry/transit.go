package telemetry

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/gorilla/websocket"
)

// TransitRecord is one edge transition on the wire: little-endian, 20 bytes.
type TransitRecord struct {
	VehicleIndex int32
	FabIndex     int32
	PrevEdge     int32
	NextEdge     int32
	SimTime      float32
}

// TransitLogger streams binary transit records to a local websocket
// endpoint. Logging is best-effort: a full buffer drops records and a dead
// connection disables the logger; the tick loop never blocks on it.
type TransitLogger struct {
	conn *websocket.Conn
	ch   chan TransitRecord
	done chan struct{}
	log  *slog.Logger
}

// DialTransitLogger connects to ws://127.0.0.1:<port>/transit and starts the
// writer. A dial failure is returned to the caller to log and ignore.
func DialTransitLogger(port, buffer int, log *slog.Logger) (*TransitLogger, error) {
	if log == nil {
		log = slog.Default()
	}
	if buffer < 1 {
		buffer = 256
	}

	url := fmt.Sprintf("ws://127.0.0.1:%d/transit", port)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing transit logger: %w", err)
	}

	t := &TransitLogger{
		conn: conn,
		ch:   make(chan TransitRecord, buffer),
		done: make(chan struct{}),
		log:  log,
	}
	go t.writeLoop()
	return t, nil
}

// Log enqueues a record; drops it when the buffer is full.
func (t *TransitLogger) Log(r TransitRecord) {
	if t == nil {
		return
	}
	select {
	case t.ch <- r:
	default:
	}
}

func (t *TransitLogger) writeLoop() {
	defer close(t.done)
	var buf bytes.Buffer
	for r := range t.ch {
		buf.Reset()
		binary.Write(&buf, binary.LittleEndian, r)
		if err := t.conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
			t.log.Warn("transit logger write failed, disabling", "err", err)
			for range t.ch {
				// Drain until Close.
			}
			return
		}
	}
	t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Close stops the writer and closes the connection.
func (t *TransitLogger) Close() {
	if t == nil {
		return
	}
	close(t.ch)
	<-t.done
	t.conn.Close()
}
