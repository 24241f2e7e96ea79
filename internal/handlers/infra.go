package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/arecko/backend/internal/events"
	"github.com/arecko/backend/internal/media"
)

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

// HandleHealth reports "healthy" when every check passes and "degraded"
// with 503 otherwise.
func HandleHealth(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status, code := "healthy", http.StatusOK
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				deps[name] = "error"
				status, code = "degraded", http.StatusServiceUnavailable
				logger.Printf("⚠️ Health check %s failed: %v", name, err)
				continue
			}
			deps[name] = "connected"
		}
		writeJSON(w, code, map[string]interface{}{
			"status":       status,
			"service":      "arecko-api",
			"dependencies": deps,
		})
	}
}

// HandleMediaRedirect redirects a stored media name to its delivery URL.
func HandleMediaRedirect(resolver *media.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url, ok := resolver.BuildDeliveryURL(mux.Vars(r)["name"])
		if !ok {
			writeError(w, http.StatusNotFound, "media not found")
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
	}
}

// HandleMediaFile serves blobs from the media store at the delivery path
// /{resource type}/upload/{name}.
func HandleMediaFile(store media.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		rc, err := store.Open(r.Context(), name)
		if errors.Is(err, media.ErrNotFound) || errors.Is(err, media.ErrInvalidName) {
			writeError(w, http.StatusNotFound, "media not found")
			return
		}
		if err != nil {
			fail(w, r, err)
			return
		}
		defer rc.Close()

		if ct := mime.TypeByExtension(strings.ToLower(path.Ext(name))); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		if _, err := io.Copy(w, rc); err != nil {
			logger.Printf("⚠️ Media copy %s interrupted: %v", name, err)
		}
	}
}

// HandleEventStream streams bus events as Server-Sent Events. The optional
// ?events= query filters by comma-separated type.
func HandleEventStream(bus *events.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		var eventTypes []string
		if filter := r.URL.Query().Get("events"); filter != "" {
			eventTypes = strings.Split(filter, ",")
		}
		ch := bus.Subscribe(eventTypes...)
		defer bus.Unsubscribe(ch)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\"}\n\n")
		flusher.Flush()

		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				data, err := ev.JSON()
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data)
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	}
}
