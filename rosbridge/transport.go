package rosbridge

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// wireTransport is the session actor's view of a connection: read one
// frame, write one frame, tear it down. It exists so tests can exercise the
// actor's dispatch, reference-counting and reconnect logic against an
// in-memory fake instead of a real socket.
type wireTransport interface {
	readFrame() ([]byte, error)
	writeFrame(data []byte) error
	close() error
}

// wsTransport wraps a single gorilla/websocket connection to a rosbridge
// server. It owns no state beyond the connection itself; reconnection,
// resubscription and backoff all live in the session actor, which replaces
// the transport wholesale on every redial (spec.md §4.6).
type wsTransport struct {
	conn *websocket.Conn
}

// dialTransport opens a new WebSocket connection to url. It is a thin
// wrapper over websocket.DefaultDialer.Dial, grounded in the same
// connect-then-spawn-a-reader pattern the wider corpus uses for long-lived
// client sockets.
func dialTransport(url string) (wireTransport, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing rosbridge at %q", url)
	}
	return &wsTransport{conn: conn}, nil
}

// readFrame blocks until the next text frame arrives, the connection is
// closed, or a read error occurs.
func (t *wsTransport) readFrame() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, errors.Wrap(err, "reading rosbridge frame")
	}
	return data, nil
}

// writeFrame sends a single already-encoded envelope as a text frame.
func (t *wsTransport) writeFrame(data []byte) error {
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(err, "writing rosbridge frame")
	}
	return nil
}

// close sends a best-effort close frame and tears down the socket. Errors
// writing the close frame are not reported: the connection is going away
// either way.
func (t *wsTransport) close() error {
	_ = t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return t.conn.Close()
}
