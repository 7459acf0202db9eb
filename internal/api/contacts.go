package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/cellgate-core/internal/audit"
	"github.com/nerrad567/cellgate-core/internal/contact"
)

// contactRequest is the body for creating or replacing a contact.
type contactRequest struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Notes       string `json:"notes"`
}

// handleListContacts returns contacts, optionally filtered by ?search=.
func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.contacts.List(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		s.logger.Error("listing contacts", "error", err)
		writeInternalError(w, "failed to list contacts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contacts": contacts, "count": len(contacts)})
}

// handleGetContact returns one contact.
func (s *Server) handleGetContact(w http.ResponseWriter, r *http.Request) {
	c, err := s.contacts.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeContactError(w, err, "get")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleCreateContact adds a contact.
func (s *Server) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c := &contact.Contact{Name: req.Name, PhoneNumber: req.PhoneNumber, Notes: req.Notes}
	if err := s.contacts.Create(r.Context(), c); err != nil {
		s.writeContactError(w, err, "create")
		return
	}
	s.record(r.Context(), audit.SourceREST, audit.ActionContactCreate, audit.EntityContact, c.ID, nil)
	writeJSON(w, http.StatusCreated, c)
}

// handleUpdateContact replaces a contact's fields.
func (s *Server) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ctx := r.Context()
	c, err := s.contacts.GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.writeContactError(w, err, "update")
		return
	}
	c.Name, c.PhoneNumber, c.Notes = req.Name, req.PhoneNumber, req.Notes
	if err := s.contacts.Update(ctx, c); err != nil {
		s.writeContactError(w, err, "update")
		return
	}
	s.record(ctx, audit.SourceREST, audit.ActionContactUpdate, audit.EntityContact, c.ID, nil)
	writeJSON(w, http.StatusOK, c)
}

// handleDeleteContact removes a contact.
func (s *Server) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.contacts.Delete(r.Context(), id); err != nil {
		s.writeContactError(w, err, "delete")
		return
	}
	s.record(r.Context(), audit.SourceREST, audit.ActionContactDelete, audit.EntityContact, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeContactError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, contact.ErrContactNotFound):
		writeNotFound(w, "contact not found")
	case errors.Is(err, contact.ErrInvalidContact):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		s.logger.Error("contact operation failed", "op", op, "error", err)
		writeInternalError(w, "failed to "+op+" contact")
	}
}
