// Package websocket streams Recko activity to browsers over WebSocket.
package websocket

import (
	"context"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arecko/backend/internal/events"
)

const writeWait = 10 * time.Second

// Subscriber is the part of the event bus the streamer needs.
type Subscriber interface {
	Subscribe(eventTypes ...string) chan *events.CloudEvent
	Unsubscribe(ch chan *events.CloudEvent)
}

// FeedStreamer pushes every bus event to connected feed clients.
type FeedStreamer struct {
	bus        Subscriber
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	count      atomic.Int64
	upgrader   websocket.Upgrader
	logger     *log.Logger
}

// NewFeedStreamer creates a streamer. Run must be started for clients to
// receive anything.
func NewFeedStreamer(bus Subscriber, allowedOrigins []string) *FeedStreamer {
	return &FeedStreamer{
		bus:        bus,
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
		logger: log.New(log.Writer(), "[FEED] ", log.LstdFlags),
	}
}

// originChecker allows any origin when the list is empty or contains "*".
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// Run owns the client set until ctx is cancelled, then closes every
// connection.
func (fs *FeedStreamer) Run(ctx context.Context) {
	sub := fs.bus.Subscribe()
	defer fs.bus.Unsubscribe(sub)
	defer close(fs.done)

	for {
		select {
		case <-ctx.Done():
			for client := range fs.clients {
				fs.drop(client)
			}
			return

		case client := <-fs.register:
			fs.clients[client] = true
			fs.count.Store(int64(len(fs.clients)))
			fs.logger.Printf("📡 Client connected (total: %d)", len(fs.clients))

		case client := <-fs.unregister:
			if fs.clients[client] {
				fs.drop(client)
				fs.logger.Printf("📡 Client disconnected (total: %d)", len(fs.clients))
			}

		case event, ok := <-sub:
			if !ok {
				return
			}
			for client := range fs.clients {
				client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteJSON(event); err != nil {
					fs.logger.Printf("Write error: %v", err)
					fs.drop(client)
				}
			}
		}
	}
}

func (fs *FeedStreamer) drop(client *websocket.Conn) {
	delete(fs.clients, client)
	fs.count.Store(int64(len(fs.clients)))
	client.Close()
}

// ClientCount returns the number of connected clients.
func (fs *FeedStreamer) ClientCount() int {
	return int(fs.count.Load())
}

// HandleWebSocket upgrades the request and registers the connection. The
// feed is read-only; inbound messages are discarded.
func (fs *FeedStreamer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := fs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		fs.logger.Printf("Upgrade error: %v", err)
		return
	}

	select {
	case fs.register <- conn:
	case <-fs.done:
		conn.Close()
		return
	}

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		select {
		case fs.unregister <- conn:
		case <-fs.done:
		}
	}()
}
