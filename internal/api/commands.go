package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/cellgate-core/internal/audit"
	"github.com/nerrad567/cellgate-core/internal/protocol"
)

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// writeAccepted answers a routed command and audits it. The device reports
// the outcome later as an event.
func (s *Server) writeAccepted(w http.ResponseWriter, r *http.Request, action, id string, details map[string]any, err error) {
	if err != nil {
		s.writeHubError(w, err, id)
		return
	}
	s.recordRequest(r.Context(), audit.SourceREST, action, id, details)
	writeJSON(w, http.StatusAccepted, protocol.CommandResponse{CommandID: id})
}

// handleSendMessage routes an SMS to a device.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req protocol.SendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := s.hub.Router().SendMessage(r.Context(), req)
	s.writeAccepted(w, r, protocol.ActionSendMessage, id, map[string]any{"phone": req.Phone}, err)
}

// handleInitiateCall places an outgoing call.
func (s *Server) handleInitiateCall(w http.ResponseWriter, r *http.Request) {
	var req protocol.InitiateCallRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := s.hub.Router().InitiateCall(r.Context(), req)
	s.writeAccepted(w, r, protocol.ActionInitiateCall, id, map[string]any{"phone": req.Phone}, err)
}

// handleHangupCall ends the call in the URL.
func (s *Server) handleHangupCall(w http.ResponseWriter, r *http.Request) {
	req := protocol.HangupCallRequest{CommandID: chi.URLParam(r, "id")}
	id, err := s.hub.Router().HangupCall(r.Context(), req)
	s.writeAccepted(w, r, protocol.ActionHangupCall, id, nil, err)
}

// handleAnswerCall picks up the call in the URL.
func (s *Server) handleAnswerCall(w http.ResponseWriter, r *http.Request) {
	req := protocol.AnswerCallRequest{CommandID: chi.URLParam(r, "id")}
	id, err := s.hub.Router().AnswerCall(r.Context(), req)
	s.writeAccepted(w, r, protocol.ActionAnswerCall, id, nil, err)
}

// handleExecuteCode runs a USSD code.
func (s *Server) handleExecuteCode(w http.ResponseWriter, r *http.Request) {
	var req protocol.ExecuteCodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := s.hub.Router().ExecuteCode(r.Context(), req)
	s.writeAccepted(w, r, protocol.ActionExecuteCode, id, map[string]any{"code": req.Code}, err)
}
