package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/cellgate-core/internal/command"
	"github.com/nerrad567/cellgate-core/internal/device"
)

// deviceStats is the fleet summary returned with the device list.
type deviceStats struct {
	device.Stats
	Connected       int             `json:"connected"`
	PendingCommands int             `json:"pending_commands"`
	Totals          *command.Totals `json:"totals,omitempty"`
}

// handleListDevices returns all devices with a fleet summary.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.List(r.Context())
	if err != nil {
		s.logger.Error("listing devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}
	stats, err := s.stats(r, devices, false)
	if err != nil {
		s.logger.Error("loading command totals", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
		"stats":   stats,
	})
}

// handleDeviceStats returns the fleet summary with history totals.
func (s *Server) handleDeviceStats(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.List(r.Context())
	if err != nil {
		s.logger.Error("listing devices", "error", err)
		writeInternalError(w, "failed to load device stats")
		return
	}
	stats, err := s.stats(r, devices, true)
	if err != nil {
		s.logger.Error("loading command totals", "error", err)
		writeInternalError(w, "failed to load device stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) stats(r *http.Request, devices []device.Device, withTotals bool) (deviceStats, error) {
	totals, err := s.commands.Totals(r.Context())
	if err != nil {
		return deviceStats{}, err
	}
	st := deviceStats{
		Stats:           device.Summarise(devices),
		Connected:       s.hub.Registry().Count(),
		PendingCommands: totals.PendingCommands,
	}
	if withTotals {
		st.Totals = &totals
	}
	return st, nil
}

// handleGetDevice returns a single device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := s.devices.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("getting device", "device_id", id, "error", err)
		writeInternalError(w, "failed to get device")
		return
	}
	_, connected := s.hub.Registry().Lookup(d.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"device":    d,
		"connected": connected,
	})
}
