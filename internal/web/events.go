package web

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/sweeney/gpio-monitor/internal/sse"
)

// handleEvents streams transitions to the client. The stream opens with an
// init event carrying the current states and then relays every confirmed
// change, with a heartbeat comment between them.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Subscribe before taking the snapshot so no change falls in between.
	sub := s.broker.Subscribe()
	defer s.broker.Unsubscribe(sub)

	payload, err := json.Marshal(InitJSON{
		Pins:      s.mon.States(),
		Monitored: nonNil(s.mon.Config().Lines),
		Available: nonNil(s.mon.Inventory().Available),
		Timestamp: s.now().UnixMilli(),
	})
	if err != nil {
		log.Printf("sse: marshal init: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := sse.WriteEvent(w, "init", payload); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		case <-sub.Ready():
			for _, e := range sub.Drain() {
				data, err := json.Marshal(e)
				if err != nil {
					log.Printf("sse: marshal event: %v", err)
					continue
				}
				if err := sse.WriteEvent(w, e.Type, data); err != nil {
					return
				}
			}
			flusher.Flush()
		case <-ticker.C:
			if err := sse.WriteComment(w, "heartbeat"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
