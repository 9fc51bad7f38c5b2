package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"aura-transcribe/internal/jobs"
)

const (
	writeWait      = 10 * time.Second
	clientSendSize = 256
)

// wsClient is one connected progress subscriber.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans orchestrator events out to connected websocket clients. It is
// registered on the event bus as a sink; slow clients drop messages rather
// than stall delivery.
type Hub struct {
	upgrader   websocket.Upgrader
	clients    map[*wsClient]struct{}
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte
	done       chan struct{}
	stopped    bool
	mu         sync.Mutex
	log        zerolog.Logger
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local single-user tool; the UI connects from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients:    make(map[*wsClient]struct{}),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		log:        log.With().Str("component", "ws").Logger(),
	}
}

// Run is the hub's main loop. It blocks until Stop is called; run it on its
// own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAllClients()
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case data := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					h.log.Warn().Msg("client send buffer full, dropping event")
				}
			}
		}
	}
}

// Stop shuts the hub down and disconnects all clients. Safe to call twice.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.stopped {
		h.stopped = true
		close(h.done)
	}
}

func (h *Hub) closeAllClients() {
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// Sink returns the event bus subscriber that feeds this hub.
func (h *Hub) Sink() jobs.Sink {
	return func(event jobs.Event) error {
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		select {
		case h.broadcast <- data:
		case <-h.done:
		}
		return nil
	}
}

// handleWS upgrades the connection and pumps events until the client leaves.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, clientSendSize)}
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go h.writePump(client)
	h.readPump(client)
}

// writePump forwards queued events to the connection. A closed send channel
// means the hub dropped the client.
func (h *Hub) writePump(client *wsClient) {
	defer client.conn.Close()

	for data := range client.send {
		_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump discards inbound frames and unregisters on disconnect.
func (h *Hub) readPump(client *wsClient) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
		_ = client.conn.Close()
	}()

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
