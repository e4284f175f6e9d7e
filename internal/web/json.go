package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/sweeney/gpio-monitor/internal/config"
	"github.com/sweeney/gpio-monitor/internal/monitor"
)

// PinsJSON is the response of GET /api/pins.
type PinsJSON struct {
	Monitored []int                      `json:"monitored"`
	Available []int                      `json:"available"`
	Reserved  map[int]string             `json:"reserved"`
	States    map[int]int                `json:"states"`
	Config    map[int]config.LineOptions `json:"config"`
}

// PinStateJSON is the response of GET /api/pins/{pin}/state.
type PinStateJSON struct {
	Pin   int `json:"pin"`
	State int `json:"state"`
}

// MessageJSON is the response of a successful mutation.
type MessageJSON struct {
	Message   string `json:"message"`
	Monitored []int  `json:"monitored,omitempty"`
	Warning   string `json:"warning,omitempty"`
}

// ErrorJSON is the body of every error response.
type ErrorJSON struct {
	Error string `json:"error"`
}

// InitJSON is the payload of the SSE init event.
type InitJSON struct {
	Pins      map[int]int `json:"pins"`
	Monitored []int       `json:"monitored"`
	Available []int       `json:"available"`
	Timestamp int64       `json:"timestamp"`
}

type pullRequest struct {
	Mode string `json:"mode"`
}

type debounceRequest struct {
	Low  *int `json:"low"`
	High *int `json:"high"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorJSON{Error: msg})
}

// statusFor maps monitor and config errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, config.ErrNotMonitored):
		return http.StatusNotFound
	case errors.Is(err, config.ErrAlreadyMonitored):
		return http.StatusConflict
	case errors.Is(err, monitor.ErrReserved):
		return http.StatusPreconditionRequired
	case errors.Is(err, monitor.ErrUnavailable),
		errors.Is(err, config.ErrInvalidLine),
		errors.Is(err, config.ErrInvalidThreshold),
		errors.Is(err, config.ErrInvalidBias):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeMonitorError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Printf("http: %v", err)
	}
	writeError(w, code, err.Error())
}

func nonNil(lines []int) []int {
	if lines == nil {
		return []int{}
	}
	return lines
}
