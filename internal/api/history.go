package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/cellgate-core/internal/command"
)

// parseFilter reads limit, offset and state query parameters.
func parseFilter(r *http.Request, kind command.Kind) (command.Filter, error) {
	q := r.URL.Query()
	f := command.Filter{Kind: kind}

	limit, offset, err := parsePaging(q)
	if err != nil {
		return f, err
	}
	f.Limit, f.Offset = limit, offset
	if v := q.Get("state"); v != "" {
		st := command.State(v)
		switch st {
		case command.StatePending, command.StateSucceeded, command.StateFailed:
			f.State = st
		default:
			return f, errors.New("state must be pending, succeeded or failed")
		}
	}
	return f, nil
}

// parsePaging reads the optional limit and offset query parameters.
func parsePaging(q url.Values) (limit, offset int, err error) {
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, errors.New("limit must be a non-negative integer")
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

// listCommands serves a command history listing of one kind.
func (s *Server) listCommands(kind command.Kind, key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseFilter(r, kind)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		cmds, err := s.commands.ListCommands(r.Context(), f)
		if err != nil {
			s.logger.Error("listing commands", "kind", kind, "error", err)
			writeInternalError(w, "failed to list "+key)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{key: cmds, "count": len(cmds)})
	}
}

// handleListMessages returns sent messages, newest first.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	s.listCommands(command.KindSendMessage, "messages")(w, r)
}

// handleListCodes returns USSD codes run, newest first.
func (s *Server) handleListCodes(w http.ResponseWriter, r *http.Request) {
	s.listCommands(command.KindRunCode, "codes")(w, r)
}

// handleGetCommand returns one command of the given kind.
func (s *Server) handleGetCommand(kind command.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		c, err := s.commands.GetCommand(r.Context(), id)
		if err != nil {
			if errors.Is(err, command.ErrCommandNotFound) {
				writeNotFound(w, "command not found")
				return
			}
			s.logger.Error("getting command", "command_id", id, "error", err)
			writeInternalError(w, "failed to get command")
			return
		}
		if c.Kind != kind {
			writeNotFound(w, "command not found")
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

// handleListInbound returns received messages, newest first.
func (s *Server) handleListInbound(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r, "")
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	msgs, err := s.commands.ListInbound(r.Context(), f)
	if err != nil {
		s.logger.Error("listing inbound messages", "error", err)
		writeInternalError(w, "failed to list inbound messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs, "count": len(msgs)})
}

// handleListCalls returns calls, newest first.
func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r, command.KindPlaceCall)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	calls, err := s.commands.ListCalls(r.Context(), f)
	if err != nil {
		s.logger.Error("listing calls", "error", err)
		writeInternalError(w, "failed to list calls")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": calls, "count": len(calls)})
}

// handleGetCall returns one call.
func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := s.commands.GetCall(r.Context(), id)
	if err != nil {
		if errors.Is(err, command.ErrCallNotFound) {
			writeNotFound(w, "call not found")
			return
		}
		s.logger.Error("getting call", "call_id", id, "error", err)
		writeInternalError(w, "failed to get call")
		return
	}
	writeJSON(w, http.StatusOK, c)
}
