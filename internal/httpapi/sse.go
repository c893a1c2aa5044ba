package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/evhagen/sitmon/internal/timeiso"
)

const heartbeatInterval = 15 * time.Second

// handleSSE streams bus events to the browser. The first frame is an
// immediate heartbeat so the client can confirm the stream is live
// before any incident activity happens.
func (a *API) handleSSE(w http.ResponseWriter, r *http.Request) {
	fl, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, "event: heartbeat\ndata: {}\n\n")
	fl.Flush()

	ch := a.bus.Subscribe()
	defer a.bus.Unsubscribe(ch)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprintf(w, "event: heartbeat\ndata: {\"ts\": %q}\n\n", timeiso.Now())
			fl.Flush()
		case ev := <-ch:
			data, err := json.Marshal(ev.Data)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			fl.Flush()
		}
	}
}
