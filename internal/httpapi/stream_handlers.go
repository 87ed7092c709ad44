package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"commonpool.org/internal/stream"
)

// publishEvent pushes an activity item onto the pool feed when one is wired.
func (a *API) publishEvent(evt stream.Event) {
	if a.events == nil {
		return
	}
	a.events.Publish(evt)
}

// poolEvents serves the pool activity feed as server-sent events.
func (a *API) poolEvents(w http.ResponseWriter, r *http.Request, poolID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.events == nil {
		writeError(w, r, http.StatusNotFound, "event feed not enabled")
		return
	}
	if _, err := a.pools.GetPool(r.Context(), poolID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := a.events.Subscribe(r.Context(), poolID)
	for evt := range events {
		data, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
		flusher.Flush()
	}
}
