package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"readalong/pkg/types"
)

// sseSink writes relay events as server-sent `data:` frames. A mutex
// serializes writes; the relay goroutine and nothing else should be
// writing, but the lock keeps that a local invariant instead of a
// cross-package assumption.
type sseSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Send(event *types.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// subscribeSession serves GET /sessions/{id}/subscribe: a long-lived
// event stream opening with `connected`, then the roster replay, then
// live events. The handler parks until the client goes away; the
// browser closing the tab is the normal detach path, not an error.
func (s *Server) subscribeSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.jsonHeader(w)
		s.sendError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Resolve before committing to stream headers so a missing
	// session still gets a proper 404 body.
	if _, err := s.registry.Get(sessionID); err != nil {
		s.jsonHeader(w)
		s.sendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := &sseSink{w: w, flusher: flusher}
	sub, err := s.relay.Attach(r.Context(), sessionID, sink)
	if err != nil {
		log.Printf("Subscribe attach failed: session=%s err=%v", sessionID, err)
		return
	}
	defer sub.Detach()

	select {
	case <-r.Context().Done():
		log.Printf("Subscriber disconnected: session=%s", sessionID)
	case <-sub.Done():
		// Consumer stopped on its own (session ended); close the
		// response so the client sees a clean end of stream.
		log.Printf("Stream ended: session=%s", sessionID)
	}
}
