package server

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/voxlabs/voxd/events"
)

// Idle window before a synthetic ping keeps the transport alive.
const ssePingPeriod = 25 * time.Second

// handleEvents serves the server-sent-event stream. The subscriber queue is
// the only thing this handler blocks on; a slow client here never delays
// publishers or other subscribers.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported.")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)

	if !writeSSE(w, flusher, events.Connected()) {
		return
	}

	ping := time.NewTicker(ssePingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			slog.Debug("Event stream client disconnected")
			return
		case env := <-sub.C:
			if !writeSSE(w, flusher, env) {
				return
			}
			ping.Reset(ssePingPeriod)
		case <-ping.C:
			if !writeSSE(w, flusher, events.Ping()) {
				return
			}
		}
	}
}

func writeSSE(w io.Writer, flusher http.Flusher, env events.Envelope) bool {
	if _, err := io.WriteString(w, env.SSE()); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
