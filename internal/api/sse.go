package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hugo-lorenzo-mato/toolflow/internal/events"
)

// handleRunEvents streams one run's events as Server-Sent Events. The
// stream opens with a snapshot of the run and ends after run_finished.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	if s.eventBus == nil {
		s.respondError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	runID := chi.URLParam(r, "runID")
	// Subscribe before reading the snapshot so no transition falls between.
	// Progress events may be dropped under backpressure; run_finished
	// arrives on the priority channel and is never lost.
	eventCh := s.eventBus.SubscribeRun(runID)
	defer s.eventBus.Unsubscribe(eventCh)
	finishedCh := s.eventBus.SubscribePriority(runID)
	defer s.eventBus.Unsubscribe(finishedCh)

	snapshot, err := s.runs.Get(runID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s.sendSSEEvent(w, flusher, "snapshot", snapshot)
	if snapshot.Status.IsTerminal() {
		return
	}

	ctx := r.Context()
	logger := s.logger.WithRun(runID)
	logger.Debug("SSE client connected", "remote_addr", r.RemoteAddr)
	for {
		select {
		case <-ctx.Done():
			logger.Debug("SSE client disconnected", "remote_addr", r.RemoteAddr)
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			s.forwardProgress(w, flusher, event)
		case event, ok := <-finishedCh:
			if !ok {
				return
			}
			// Everything published before run_finished is already buffered.
		drain:
			for {
				select {
				case e, ok := <-eventCh:
					if !ok {
						break drain
					}
					s.forwardProgress(w, flusher, e)
				default:
					break drain
				}
			}
			s.sendSSEEvent(w, flusher, event.EventType(), event)
			return
		}
	}
}

// forwardProgress writes a progress event. The regular copy of run_finished
// is skipped; the priority copy ends the stream.
func (s *Server) forwardProgress(w http.ResponseWriter, flusher http.Flusher, event events.Event) {
	if event.EventType() == events.TypeRunFinished {
		return
	}
	s.sendSSEEvent(w, flusher, event.EventType(), event)
}

// sendSSEEvent writes an event to the SSE stream.
func (s *Server) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	// SSE format: event: type\ndata: json\n\n
	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}
