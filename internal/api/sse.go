package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// handleEvents streams engine events as server-sent events. The client
// may narrow the stream with ?topic= query parameters; no topic means
// everything.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// The stream outlives the server's write timeout; clear the
	// per-connection deadline before the first write.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Warn("could not clear write deadline for event stream", "error", err)
	}

	topics := r.URL.Query()["topic"]
	ch := s.bus.Subscribe(topics...)
	defer s.bus.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(msg.Payload)
			if err != nil {
				s.logger.Warn("dropping unencodable event", "topic", msg.Topic, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Topic, data)
			flusher.Flush()
		}
	}
}
