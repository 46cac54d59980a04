package handler

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/ragdesk/ragdesk/internal/events"
	"github.com/ragdesk/ragdesk/internal/ingest"
)

type EventsHandler struct {
	bus *events.Bus
}

func NewEventsHandler(bus *events.Bus) *EventsHandler {
	return &EventsHandler{bus: bus}
}

// FileProgress streams ingestion progress events to the client until it
// disconnects. All files share one event name; clients filter by file_id.
func (h *EventsHandler) FileProgress(c *gin.Context) {
	ch, cancel := h.bus.Subscribe(ingest.EventFileProgress)
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case event := <-ch:
			writeSSE(w, "progress", event.Payload)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
