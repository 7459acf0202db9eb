package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/cellgate-core/internal/auth"
	"github.com/nerrad567/cellgate-core/internal/hub"
	"github.com/nerrad567/cellgate-core/internal/infrastructure/logging"
	"github.com/nerrad567/cellgate-core/internal/protocol"
)

// replyBufferSize is the per-client queue of pending replies.
const replyBufferSize = 32

// wsClient is a connected dashboard. Replies and bus events are written by
// writePump only; gorilla connections allow a single concurrent writer.
type wsClient struct {
	conn    *websocket.Conn
	session *hub.ClientSession
	role    auth.Role
	audit   func(ctx context.Context, req, reply protocol.Envelope)
	timings wsTimings
	logger  *logging.Logger
	replies chan []byte
}

// handleClientWebSocket upgrades a dashboard connection. Authentication has
// already happened in authMiddleware.
func (s *Server) handleClientWebSocket(w http.ResponseWriter, r *http.Request) {
	role := roleFromContext(r.Context())

	// Subscribe before the handshake completes so the client sees every
	// event published after its connection is accepted.
	session := s.hub.NewClientSession(s.wsCfg.ClientBuffer)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		session.Close()
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	if !s.conns.add(conn, connKindClient) {
		session.Close()
		closeFrame(conn, websocket.CloseGoingAway, "server shutting down")
		conn.Close()
		return
	}
	defer s.conns.remove(conn)

	c := &wsClient{
		conn:    conn,
		session: session,
		role:    role,
		audit:   s.recordEnvelope,
		timings: timingsFrom(s.wsCfg),
		logger:  s.logger.With("remote_addr", r.RemoteAddr, "role", string(role)),
		replies: make(chan []byte, replyBufferSize),
	}
	c.logger.Debug("websocket client connected")

	go c.writePump()
	c.readPump(r)
}

// readPump serves client frames until the socket drops, then closes the
// session, which ends writePump.
func (c *wsClient) readPump(r *http.Request) {
	defer func() {
		c.session.Close()
		if n := c.session.Dropped(); n > 0 {
			c.logger.Warn("websocket client missed events", "dropped", n)
		}
		c.logger.Debug("websocket client disconnected")
	}()

	ctx := r.Context()
	c.timings.prepareRead(c.conn)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Any client message resets the read deadline (keeps connection alive
		// even if browser doesn't respond to protocol-level pings).
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(c.timings.readDeadline())

		reply, err := c.reply(ctx, data)
		if err != nil {
			c.logger.Error("building websocket reply", "error", err)
			continue
		}
		c.queue(reply)
	}
}

// reply answers one frame. Viewers may watch but not issue requests.
func (c *wsClient) reply(ctx context.Context, data []byte) (protocol.Envelope, error) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return errorEnvelope("", hub.CodeInvalidRequest, "invalid JSON message")
	}
	if env.Type == protocol.TypeRequest && !auth.HasPermission(c.role, auth.PermDeviceOperate) {
		return errorEnvelope(env.ID, hub.CodeForbidden, "insufficient permissions")
	}
	reply, err := c.session.HandleEnvelope(ctx, env)
	if err == nil {
		c.audit(ctx, env, reply)
	}
	return reply, err
}

func errorEnvelope(id, code, message string) (protocol.Envelope, error) {
	return protocol.NewReply(protocol.TypeError, id, protocol.ErrorPayload{
		Code:    code,
		Message: message,
	}, time.Now())
}

// queue hands an envelope to writePump. A client that stops reading loses
// replies rather than stalling its read loop.
func (c *wsClient) queue(env protocol.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		c.logger.Error("marshalling websocket reply", "error", err)
		return
	}
	select {
	case c.replies <- data:
	default:
		c.logger.Warn("websocket reply buffer full, reply dropped", "id", env.ID)
	}
}

// writePump writes replies, bus events and keepalive pings. It ends when the
// session's event stream closes or a write fails.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(c.timings.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.replies:
			if err := c.timings.writeFrame(c.conn, websocket.TextMessage, data); err != nil {
				return
			}
		case ev, ok := <-c.session.Events():
			if !ok {
				closeFrame(c.conn, websocket.CloseNormalClosure, "")
				return
			}
			env, err := protocol.NewEventEnvelope(ev, time.Now())
			if err != nil {
				c.logger.Error("building event envelope", "error", err)
				continue
			}
			data, err := json.Marshal(env)
			if err != nil {
				c.logger.Error("marshalling event envelope", "error", err)
				continue
			}
			if err := c.timings.writeFrame(c.conn, websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.timings.writeFrame(c.conn, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
