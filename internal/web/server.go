// Package web provides the HTTP server of the gpio-monitor daemon: the
// dashboard page, the REST API used to change the monitored lines, the
// Server-Sent-Events stream and the status endpoint.
package web

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sweeney/gpio-monitor/internal/config"
	"github.com/sweeney/gpio-monitor/internal/gpio"
	"github.com/sweeney/gpio-monitor/internal/sse"
	"github.com/sweeney/gpio-monitor/internal/status"
)

// DefaultKeepAlive is the interval between SSE heartbeat comments.
const DefaultKeepAlive = time.Second

// Controller is the monitor surface the server needs.
type Controller interface {
	States() map[int]int
	VirtualState(line int) (int, bool)
	Config() config.Config
	Inventory() gpio.Inventory

	AddLine(line int, confirm bool) error
	RemoveLine(line int) error
	ClearLines() error
	SetBias(line int, mode string) error
	SetDebounce(line, low, high int) error
	ClearDebounce(line int) (bool, error)
	SetInverted(line int) error
	ClearInverted(line int) (bool, error)
}

// Server serves the dashboard, API and event stream over HTTP.
type Server struct {
	httpServer *http.Server
	mon        Controller
	broker     *sse.Broker
	tracker    *status.Tracker
	keepAlive  time.Duration
	now        func() time.Time

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a Server. The tracker may be nil, in which case the status
// endpoint is not registered.
func New(addr string, mon Controller, broker *sse.Broker, tracker *status.Tracker) *Server {
	s := &Server{
		mon:       mon,
		broker:    broker,
		tracker:   tracker,
		keepAlive: DefaultKeepAlive,
		now:       time.Now,
		done:      make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /index.html", s.handleIndex)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /api/pins", s.handleListPins)
	mux.HandleFunc("DELETE /api/pins", s.handleClearPins)
	mux.HandleFunc("GET /api/pins/{pin}/state", s.handlePinState)
	mux.HandleFunc("POST /api/pins/{pin}", s.handleAddPin)
	mux.HandleFunc("DELETE /api/pins/{pin}", s.handleRemovePin)
	mux.HandleFunc("PUT /api/pins/{pin}/pull", s.handleSetPull)
	mux.HandleFunc("PUT /api/pins/{pin}/debounce", s.handleSetDebounce)
	mux.HandleFunc("DELETE /api/pins/{pin}/debounce", s.handleClearDebounce)
	mux.HandleFunc("PUT /api/pins/{pin}/inverted", s.handleSetInverted)
	mux.HandleFunc("DELETE /api/pins/{pin}/inverted", s.handleClearInverted)
	if tracker != nil {
		mux.HandleFunc("GET /api/status", s.handleStatus)
		mux.HandleFunc("GET /index.json", s.handleStatus)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           cors(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown ends open event streams and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.doneOnce.Do(func() { close(s.done) })
	return s.httpServer.Shutdown(ctx)
}

// cors allows any origin and answers preflight requests.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.pageData())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.mon.Config()
	s.tracker.Update(s.mon.States(), cfg.Lines)
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}
