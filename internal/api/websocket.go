package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/cellgate-core/internal/infrastructure/config"
)

// WebSocket defaults applied when the configuration leaves a value at zero.
const (
	defaultMaxMessageSize = 8192
	defaultPingInterval   = 30
	defaultPongTimeout    = 10
	defaultClientBuffer   = 256
	defaultDeviceBuffer   = 64

	// closeGracePeriod bounds the write of a close frame.
	closeGracePeriod = time.Second
)

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

func withWSDefaults(cfg config.WebSocketConfig) config.WebSocketConfig {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = defaultClientBuffer
	}
	if cfg.DeviceBuffer <= 0 {
		cfg.DeviceBuffer = defaultDeviceBuffer
	}
	return cfg
}

// wsTimings holds the keepalive durations derived from the configuration.
type wsTimings struct {
	pingInterval time.Duration
	pongWait     time.Duration
	maxMessage   int64
}

func timingsFrom(cfg config.WebSocketConfig) wsTimings {
	return wsTimings{
		pingInterval: time.Duration(cfg.PingInterval) * time.Second,
		pongWait:     time.Duration(cfg.PongTimeout) * time.Second,
		maxMessage:   int64(cfg.MaxMessageSize),
	}
}

// readDeadline is how long a connection may stay silent, pongs included.
func (t wsTimings) readDeadline() time.Time {
	return time.Now().Add(t.pingInterval + t.pongWait)
}

// prepareRead applies the read limit and keeps the read deadline moving
// with every pong.
func (t wsTimings) prepareRead(conn *websocket.Conn) {
	conn.SetReadLimit(t.maxMessage)
	//nolint:errcheck // Best-effort deadline on connection setup
	conn.SetReadDeadline(t.readDeadline())
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(t.readDeadline())
	})
}

// writeFrame writes one frame under the write deadline.
func (t wsTimings) writeFrame(conn *websocket.Conn, messageType int, data []byte) error {
	//nolint:errcheck // Best-effort deadline; write error caught below
	conn.SetWriteDeadline(time.Now().Add(t.pongWait))
	return conn.WriteMessage(messageType, data)
}

// closeFrame sends a close frame with code and reason. Errors are ignored;
// the connection is closed right after.
func closeFrame(conn *websocket.Conn, code int, reason string) {
	//nolint:errcheck // Best-effort close message
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(closeGracePeriod))
}

// connTracker remembers open WebSocket connections so shutdown can close
// them; hijacked connections are invisible to http.Server.Shutdown.
type connTracker struct {
	mu      sync.Mutex
	conns   map[*websocket.Conn]string
	closing bool
}

func newConnTracker() *connTracker {
	return &connTracker{conns: make(map[*websocket.Conn]string)}
}

// add registers conn under kind ("device" or "client"). It reports false
// once shutdown has started.
func (t *connTracker) add(conn *websocket.Conn, kind string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closing {
		return false
	}
	t.conns[conn] = kind
	return true
}

func (t *connTracker) remove(conn *websocket.Conn) {
	t.mu.Lock()
	delete(t.conns, conn)
	t.mu.Unlock()
}

// count returns the number of open connections of kind.
func (t *connTracker) count(kind string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, k := range t.conns {
		if k == kind {
			n++
		}
	}
	return n
}

// closeAll closes every tracked connection and refuses new ones.
func (t *connTracker) closeAll() int {
	t.mu.Lock()
	t.closing = true
	conns := make([]*websocket.Conn, 0, len(t.conns))
	for c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	for _, c := range conns {
		closeFrame(c, websocket.CloseGoingAway, "server shutting down")
		c.Close()
	}
	return len(conns)
}
