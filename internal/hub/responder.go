package hub

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/cellgate-core/internal/protocol"
)

// Error codes carried in client error envelopes.
const (
	CodeInvalidRequest  = "invalid_request"
	CodeNoDevice        = "no_device"
	CodeAmbiguousDevice = "ambiguous_device"
	CodeNotFound        = "not_found"
	CodeDeliveryFailed  = "delivery_failed"
	CodeSessionClosed   = "session_closed"
	CodeForbidden       = "forbidden"
	CodeInternal        = "internal_error"
)

// Responder turns request envelopes into response or error envelopes.
// It is shared by every request transport.
type Responder struct {
	handler protocol.RequestHandler
	logger  Logger
	now     func() time.Time
}

// NewResponder creates a responder serving requests with handler.
func NewResponder(handler protocol.RequestHandler) *Responder {
	return &Responder{handler: handler, logger: noopLogger{}, now: time.Now}
}

// SetLogger sets the logger for internal errors.
func (r *Responder) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Reply answers env. Requests get a response carrying the command id or an
// error with a code from ErrorCode, correlated by the request id. Pings get
// a pong.
func (r *Responder) Reply(ctx context.Context, env protocol.Envelope) (protocol.Envelope, error) {
	switch env.Type {
	case protocol.TypePing:
		return protocol.NewReply(protocol.TypePong, env.ID, nil, r.now())
	case protocol.TypeRequest:
	default:
		return r.errorReply(env.ID, CodeInvalidRequest, "unsupported message type: "+env.Type, "")
	}

	req, err := protocol.DecodeRequest(env.Action, env.Payload)
	if err != nil {
		return r.errorReply(env.ID, CodeInvalidRequest, err.Error(), "")
	}

	id, err := protocol.Serve(ctx, req, r.handler)
	if err != nil {
		code := ErrorCode(err)
		if code == CodeInternal {
			r.logger.Error("request failed", "action", env.Action, "error", err)
			return r.errorReply(env.ID, code, "internal error", id)
		}
		return r.errorReply(env.ID, code, err.Error(), id)
	}
	return protocol.NewReply(protocol.TypeResponse, env.ID, protocol.CommandResponse{CommandID: id}, r.now())
}

func (r *Responder) errorReply(id, code, msg, commandID string) (protocol.Envelope, error) {
	return protocol.NewReply(protocol.TypeError, id, protocol.ErrorPayload{
		Code:      code,
		Message:   msg,
		CommandID: commandID,
	}, r.now())
}

// ErrorCode maps a hub or protocol error onto a client error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrAmbiguousDevice):
		return CodeAmbiguousDevice
	case errors.Is(err, ErrNoDeviceAvailable):
		return CodeNoDevice
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, protocol.ErrMalformed),
		errors.Is(err, protocol.ErrUnknownType):
		return CodeInvalidRequest
	case errors.Is(err, ErrCommandNotFound):
		return CodeNotFound
	case errors.Is(err, ErrDeliveryFailed):
		return CodeDeliveryFailed
	case errors.Is(err, ErrSessionClosed):
		return CodeSessionClosed
	default:
		return CodeInternal
	}
}
