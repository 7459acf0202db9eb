package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/cellgate-core/internal/hub"
	"github.com/nerrad567/cellgate-core/internal/infrastructure/logging"
	"github.com/nerrad567/cellgate-core/internal/protocol"
)

var (
	errDeviceConnClosed = errors.New("device connection closed")
	errDeviceBufferFull = errors.New("device send buffer full")
)

// deviceConn adapts a WebSocket connection to hub.Conn. Frames queue on a
// bounded buffer drained by writePump; a full buffer fails the send so the
// router can fail the command instead of blocking.
type deviceConn struct {
	conn    *websocket.Conn
	timings wsTimings
	logger  *logging.Logger
	send    chan []byte
	done    chan struct{}
	once    sync.Once
}

func newDeviceConn(conn *websocket.Conn, timings wsTimings, buffer int, logger *logging.Logger) *deviceConn {
	return &deviceConn{
		conn:    conn,
		timings: timings,
		logger:  logger,
		send:    make(chan []byte, buffer),
		done:    make(chan struct{}),
	}
}

// Send encodes msg and queues it for the device.
func (c *deviceConn) Send(msg protocol.HubMessage) error {
	data, err := protocol.EncodeHubMessage(msg)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return errDeviceConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errDeviceConnClosed
	default:
		return errDeviceBufferFull
	}
}

// Close stops the write pump, which then closes the socket. Safe to call
// more than once.
func (c *deviceConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// writePump writes queued frames and keepalive pings until the connection
// is closed.
func (c *deviceConn) writePump() {
	ticker := time.NewTicker(c.timings.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.timings.writeFrame(c.conn, websocket.TextMessage, data); err != nil {
				c.logger.Debug("device write failed", "error", err)
				c.Close() //nolint:errcheck // always nil
				return
			}
		case <-ticker.C:
			if err := c.timings.writeFrame(c.conn, websocket.PingMessage, nil); err != nil {
				c.Close() //nolint:errcheck // always nil
				return
			}
		case <-c.done:
			closeFrame(c.conn, websocket.CloseNormalClosure, "")
			return
		}
	}
}

// handleDeviceWebSocket upgrades a device connection and runs its session
// until the socket drops, authentication fails or the hub closes it.
func (s *Server) handleDeviceWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("device websocket upgrade failed", "error", err)
		return
	}
	if !s.conns.add(conn, connKindDevice) {
		closeFrame(conn, websocket.CloseGoingAway, "server shutting down")
		conn.Close()
		return
	}
	defer s.conns.remove(conn)

	timings := timingsFrom(s.wsCfg)
	dc := newDeviceConn(conn, timings, s.wsCfg.DeviceBuffer, s.logger)
	session := s.hub.NewDeviceSession(dc)
	log := s.logger.With("remote_addr", r.RemoteAddr)

	go dc.writePump()

	// The request context outlives the handler only until it returns, so the
	// read loop runs here rather than in its own goroutine.
	ctx := r.Context()
	defer func() {
		session.Close(ctx)
		dc.Close() //nolint:errcheck // always nil
	}()

	timings.prepareRead(conn)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("device websocket read error", "device_id", session.DeviceID(), "error", err)
			} else {
				log.Debug("device websocket closed", "device_id", session.DeviceID(), "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		conn.SetReadDeadline(timings.readDeadline())

		err = session.HandleFrame(ctx, data)
		switch {
		case err == nil:
		case errors.Is(err, hub.ErrAuthFailed):
			log.Warn("device authentication failed", "error", err)
			closeFrame(conn, websocket.ClosePolicyViolation, "authentication failed")
			return
		case errors.Is(err, hub.ErrSessionClosed):
			return
		default:
			log.Debug("device frame rejected", "device_id", session.DeviceID(), "error", err)
		}
	}
}

const (
	connKindDevice = "device"
	connKindClient = "client"
)
