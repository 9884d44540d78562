// internal/websocket/hub.go
package websocket

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/elcruzo/light-sensor-circuit/internal/data"
)

const broadcastBuffer = 256

// Hub maintains the set of active clients and broadcasts messages.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte  // Channel for messages to broadcast
	register   chan *Client // Channel for registering clients
	unregister chan *Client // Channel for unregistering clients
	done       chan struct{}
	log        *logrus.Entry
	onCount    func(int)
}

// NewHub creates a hub. onCount, if set, is called from Run with the
// number of connected clients whenever it changes.
func NewHub(log *logrus.Entry, onCount func(int)) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		log:        log,
		onCount:    onCount,
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for client := range h.clients {
			h.drop(client)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = true
			h.log.WithField("remote", client.remote()).Info("websocket client registered")
			h.counted()

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.log.WithField("remote", client.remote()).Info("websocket client unregistered")
				h.counted()
			}

		case message := <-h.broadcast:
			dropped := false
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// Assume client is blocked or gone, unregister
					h.log.WithField("remote", client.remote()).Warn("websocket send buffer full, removing client")
					h.drop(client)
					dropped = true
				}
			}
			if dropped {
				h.counted()
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.Send)
}

func (h *Hub) counted() {
	if h.onCount != nil {
		h.onCount(len(h.clients))
	}
}

// RegisterClient registers a new client with the hub. The client is sent
// initial before any broadcast that follows registration.
func (h *Hub) RegisterClient(client *Client, initial ...data.Envelope) {
	for _, env := range initial {
		if msg, err := json.Marshal(env); err == nil {
			client.Send <- msg
		}
	}
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastRecord sends a processed record to all clients
func (h *Hub) BroadcastRecord(rec *data.Record) {
	h.send(data.Envelope{Type: "record", Payload: rec})
}

// BroadcastAlert sends an alert message to all clients
func (h *Hub) BroadcastAlert(alert data.Alert) {
	h.send(data.Envelope{Type: "alert", Payload: alert})
}

func (h *Hub) send(env data.Envelope) {
	messageBytes, err := json.Marshal(env)
	if err != nil {
		h.log.WithError(err).WithField("type", env.Type).Error("marshal broadcast")
		return
	}
	select {
	case h.broadcast <- messageBytes:
	default:
		h.log.WithField("type", env.Type).Warn("broadcast queue full, message dropped")
	}
}
