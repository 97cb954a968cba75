package stream

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/grabarr/grabarr/internal/events"
)

// EventsHandler streams broker messages to the client as server-sent events.
// One subscription per connection, dropped on disconnect.
func EventsHandler(broker *events.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		messages, unsubscribe := broker.Subscribe()
		defer unsubscribe()

		for {
			select {
			case msg, open := <-messages:
				if !open {
					return
				}
				payload, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "data: %s\n\n", payload)
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	}
}
