package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/nerrad567/cellgate-core/internal/audit"
	"github.com/nerrad567/cellgate-core/internal/protocol"
)

// auditActions maps client request actions to their audit action and entity.
var auditActions = map[string][2]string{
	protocol.ActionSendMessage:  {audit.ActionSendMessage, audit.EntityCommand},
	protocol.ActionInitiateCall: {audit.ActionInitiateCall, audit.EntityCall},
	protocol.ActionHangupCall:   {audit.ActionHangupCall, audit.EntityCall},
	protocol.ActionAnswerCall:   {audit.ActionAnswerCall, audit.EntityCall},
	protocol.ActionExecuteCode:  {audit.ActionExecuteCode, audit.EntityCommand},
}

// record writes an audit entry. It is a no-op without an audit repository,
// and a failed write is logged rather than failing the request.
func (s *Server) record(ctx context.Context, source, action, entityType, entityID string, details map[string]any) {
	if s.audit == nil {
		return
	}
	e := &audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      subjectFromContext(ctx),
		Source:     source,
		Details:    details,
	}
	// The request context may already be cancelled once the reply is out.
	if err := s.audit.Record(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Warn("failed to record audit entry", "action", action, "error", err)
	}
}

// recordRequest audits a client request that the hub accepted.
func (s *Server) recordRequest(ctx context.Context, source, action, commandID string, details map[string]any) {
	m, ok := auditActions[action]
	if !ok || commandID == "" {
		return
	}
	s.record(ctx, source, m[0], m[1], commandID, details)
}

// recordEnvelope audits a websocket request whose reply was a response.
func (s *Server) recordEnvelope(ctx context.Context, req, reply protocol.Envelope) {
	if req.Type != protocol.TypeRequest || reply.Type != protocol.TypeResponse {
		return
	}
	var resp protocol.CommandResponse
	if err := json.Unmarshal(reply.Payload, &resp); err != nil {
		return
	}
	s.recordRequest(ctx, audit.SourceWebSocket, req.Action, resp.CommandID, nil)
}

// handleListAudit returns the action trail, newest first.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSON(w, http.StatusOK, audit.Page{Entries: []audit.Entry{}})
		return
	}

	q := r.URL.Query()
	f := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Actor:      q.Get("actor"),
	}
	limit, offset, err := parsePaging(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	f.Limit, f.Offset = limit, offset

	page, err := s.audit.List(r.Context(), f)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, page)
}
