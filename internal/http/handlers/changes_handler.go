package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aforo/aforo/internal/broadcast"
	"github.com/aforo/aforo/internal/http/middleware"
	"github.com/aforo/aforo/internal/http/response"
	"github.com/aforo/aforo/pkg/events"
	"github.com/aforo/aforo/pkg/logger"
)

// ChangesHandler bridges the change bus onto a Server-Sent Events stream.
// Delivery is at most once: events published while a device is offline are
// gone, and the device is expected to refetch current state on reconnect.
type ChangesHandler struct {
	Broadcaster *broadcast.Broadcaster

	// KeepAlive is the comment-ping interval that holds idle connections
	// open through proxies.
	KeepAlive time.Duration
}

func NewChangesHandler(b *broadcast.Broadcaster) *ChangesHandler {
	return &ChangesHandler{Broadcaster: b, KeepAlive: 25 * time.Second}
}

func (h *ChangesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.stream)
	return r
}

func (h *ChangesHandler) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		response.InternalError(w, "streaming unsupported")
		return
	}

	// The stream outlives the server's write timeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		logger.Warn("Failed to clear write deadline for change feed", "error", err)
	}

	tenantID := middleware.TenantFrom(r.Context())

	// Buffered so a slow write never blocks the bus callback; a full
	// buffer drops the event, which the reconnect resync covers.
	ch := make(chan events.ChangeEvent, 64)
	sub, err := h.Broadcaster.Subscribe(tenantID, func(ev events.ChangeEvent) {
		select {
		case ch <- ev:
		default:
			logger.Warn("Dropping change event for slow subscriber", "tenant_id", tenantID)
		}
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to subscribe to change feed", "error", err)
		response.InternalError(w, "failed to open change feed")
		return
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			logger.Error("Failed to unsubscribe change feed", "error", err)
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Tells the client the stream is live and it can start its resync.
	fmt.Fprintf(w, "event: ready\ndata: {}\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Error("Failed to marshal change event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: change\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
