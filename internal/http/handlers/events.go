package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aura-studio/aura/internal/events"
	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/service"
)

// EventsHandler streams per-job events over SSE.
//
// Huma does not support streaming responses, so this endpoint is registered
// directly on the chi router.
type EventsHandler struct {
	jobService *service.JobService
	bus        *events.Bus
	logger     *slog.Logger
}

// NewEventsHandler creates a new SSE events handler.
func NewEventsHandler(jobService *service.JobService, bus *events.Bus, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{
		jobService: jobService,
		bus:        bus,
		logger:     logger,
	}
}

// RegisterSSE registers the SSE endpoint on a chi router.
func (h *EventsHandler) RegisterSSE(router chi.Router) {
	router.Get("/api/v1/jobs/{id}/events", h.handleEvents)
}

// handleEvents streams a job's event stream. Reconnecting clients send the
// Last-Event-ID header (or last_event_id query parameter) and receive every
// buffered event after that ID before live delivery; heartbeats and the
// terminal event come from the bus. Clients attaching to a finished job
// without a cursor receive only the terminal event. The stream closes after
// the terminal event is delivered.
func (h *EventsHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if _, ok := h.jobService.Get(jobID); !ok {
		http.Error(w, fmt.Sprintf("job %s not found", jobID), http.StatusNotFound)
		return
	}

	lastEventID, err := parseLastEventID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	sub := h.bus.Subscribe(r.Context(), jobID, lastEventID)
	defer sub.Close()

	rc := http.NewResponseController(w)

	// Initial comment establishes the connection and triggers onopen in
	// browsers before the first event arrives.
	fmt.Fprintf(w, ":connected\n\n")
	if err := rc.Flush(); err != nil {
		h.logger.Debug("initial SSE flush failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := h.writeEvent(w, event); err != nil {
				h.logger.Debug("SSE write failed, client likely disconnected",
					slog.String("job_id", jobID),
					slog.String("kind", string(event.Kind)),
					slog.String("error", err.Error()),
				)
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// parseLastEventID reads the reconnection cursor from the request. The
// Last-Event-ID header wins; the query parameter exists for clients that
// cannot set headers.
func parseLastEventID(r *http.Request) (models.EventID, error) {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("last_event_id")
	}
	if raw == "" {
		return models.EventID{}, nil
	}
	id, err := models.ParseEventID(raw)
	if err != nil {
		return models.EventID{}, fmt.Errorf("invalid Last-Event-ID: %w", err)
	}
	return id, nil
}

// writeEvent writes one event as an SSE frame. The whole frame goes out in
// a single Write for atomicity.
func (h *EventsHandler) writeEvent(w http.ResponseWriter, event models.JobEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	frame := fmt.Sprintf("id: %s\nevent: %s\ndata: %s\n\n", event.EventID, event.Kind, data)
	n, err := w.Write([]byte(frame))
	if err != nil {
		return err
	}
	if n < len(frame) {
		return fmt.Errorf("short write: wrote %d of %d bytes", n, len(frame))
	}
	return nil
}
