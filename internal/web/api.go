package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sweeney/gpio-monitor/internal/config"
	"github.com/sweeney/gpio-monitor/internal/gpio"
)

// pinParam parses the {pin} path value. On failure it writes a 400 and
// returns false.
func pinParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	pin, err := strconv.Atoi(r.PathValue("pin"))
	if err != nil || pin < 0 {
		writeError(w, http.StatusBadRequest, "Invalid pin number")
		return 0, false
	}
	return pin, true
}

func (s *Server) handleListPins(w http.ResponseWriter, r *http.Request) {
	cfg := s.mon.Config()
	inv := s.mon.Inventory()
	options := make(map[int]config.LineOptions, len(cfg.Options))
	for _, line := range cfg.Lines {
		if o, ok := cfg.Options[line]; ok {
			options[line] = o
		}
	}
	reserved := inv.Reserved
	if reserved == nil {
		reserved = map[int]string{}
	}
	writeJSON(w, http.StatusOK, PinsJSON{
		Monitored: nonNil(cfg.Lines),
		Available: nonNil(inv.Available),
		Reserved:  reserved,
		States:    s.mon.States(),
		Config:    options,
	})
}

func (s *Server) handlePinState(w http.ResponseWriter, r *http.Request) {
	pin, ok := pinParam(w, r)
	if !ok {
		return
	}
	state, ok := s.mon.VirtualState(pin)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Pin %d not monitored", pin))
		return
	}
	writeJSON(w, http.StatusOK, PinStateJSON{Pin: pin, State: state})
}

func (s *Server) handleAddPin(w http.ResponseWriter, r *http.Request) {
	pin, ok := pinParam(w, r)
	if !ok {
		return
	}
	confirm, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	if err := s.mon.AddLine(pin, confirm); err != nil {
		writeMonitorError(w, err)
		return
	}
	resp := MessageJSON{
		Message:   fmt.Sprintf("Added GPIO %d to monitoring", pin),
		Monitored: nonNil(s.mon.Config().Lines),
	}
	if fn, ok := s.mon.Inventory().Reserved[pin]; ok {
		resp.Warning = fmt.Sprintf("GPIO %d has special function: %s", pin, fn)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRemovePin(w http.ResponseWriter, r *http.Request) {
	pin, ok := pinParam(w, r)
	if !ok {
		return
	}
	if err := s.mon.RemoveLine(pin); err != nil {
		writeMonitorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageJSON{
		Message:   fmt.Sprintf("Removed GPIO %d from monitoring", pin),
		Monitored: nonNil(s.mon.Config().Lines),
	})
}

func (s *Server) handleClearPins(w http.ResponseWriter, r *http.Request) {
	if err := s.mon.ClearLines(); err != nil {
		writeMonitorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageJSON{Message: "Cleared all monitored pins"})
}

func (s *Server) handleSetPull(w http.ResponseWriter, r *http.Request) {
	pin, ok := pinParam(w, r)
	if !ok {
		return
	}
	var req pullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.mon.SetBias(pin, req.Mode); err != nil {
		writeMonitorError(w, err)
		return
	}
	msg := fmt.Sprintf("Set GPIO %d to pull-%s", pin, req.Mode)
	if b, _ := gpio.ParseBias(req.Mode); b == gpio.BiasNone {
		msg = fmt.Sprintf("Removed pull resistor for GPIO %d", pin)
	}
	writeJSON(w, http.StatusOK, MessageJSON{Message: msg})
}

func (s *Server) handleSetDebounce(w http.ResponseWriter, r *http.Request) {
	pin, ok := pinParam(w, r)
	if !ok {
		return
	}
	var req debounceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Low == nil || req.High == nil {
		writeError(w, http.StatusBadRequest, "Both 'low' and 'high' must be integers")
		return
	}
	if err := s.mon.SetDebounce(pin, *req.Low, *req.High); err != nil {
		writeMonitorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageJSON{
		Message: fmt.Sprintf("Set GPIO %d debouncing: LOW=%d/10, HIGH=%d/10", pin, *req.Low, *req.High),
	})
}

func (s *Server) handleClearDebounce(w http.ResponseWriter, r *http.Request) {
	pin, ok := pinParam(w, r)
	if !ok {
		return
	}
	had, err := s.mon.ClearDebounce(pin)
	if err != nil {
		writeMonitorError(w, err)
		return
	}
	msg := fmt.Sprintf("Removed debouncing from GPIO %d", pin)
	if !had {
		msg = fmt.Sprintf("GPIO %d does not have debouncing configured", pin)
	}
	writeJSON(w, http.StatusOK, MessageJSON{Message: msg})
}

func (s *Server) handleSetInverted(w http.ResponseWriter, r *http.Request) {
	pin, ok := pinParam(w, r)
	if !ok {
		return
	}
	if err := s.mon.SetInverted(pin); err != nil {
		writeMonitorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageJSON{Message: fmt.Sprintf("Set GPIO %d to inverted logic", pin)})
}

func (s *Server) handleClearInverted(w http.ResponseWriter, r *http.Request) {
	pin, ok := pinParam(w, r)
	if !ok {
		return
	}
	had, err := s.mon.ClearInverted(pin)
	if err != nil {
		writeMonitorError(w, err)
		return
	}
	msg := fmt.Sprintf("Removed inverted logic from GPIO %d", pin)
	if !had {
		msg = fmt.Sprintf("GPIO %d does not have inverted logic configured", pin)
	}
	writeJSON(w, http.StatusOK, MessageJSON{Message: msg})
}
