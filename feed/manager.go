package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cloudx-io/auctionhouse/auctionapi"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
	sendBuffer   = 256
	maxReadBytes = 4096
)

// Manager tracks the WebSocket watchers of each item and fans bid events out
// to them.
type Manager struct {
	// itemID -> *sync.Map of *Client -> struct{}
	subscribers sync.Map

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage
	done       chan struct{}
}

// Client is one WebSocket connection watching a single item
type Client struct {
	ID     string
	ItemID string
	Conn   *websocket.Conn
	Send   chan []byte
}

type broadcastMessage struct {
	itemID  string
	payload []byte
}

// NewManager creates a Manager. Run must be started before clients connect.
func NewManager() *Manager {
	return &Manager{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMessage, sendBuffer),
		done:       make(chan struct{}),
	}
}

// Run serializes registrations and broadcasts until ctx is cancelled.
// This is a blocking operation - run in a goroutine.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case client := <-m.register:
			m.registerClient(client)
		case client := <-m.unregister:
			m.unregisterClient(client)
		case message := <-m.broadcast:
			m.broadcastToItem(message.itemID, message.payload)
		}
	}
}

// Broadcast queues a raw payload for every client watching itemID
func (m *Manager) Broadcast(itemID string, payload []byte) {
	select {
	case m.broadcast <- &broadcastMessage{itemID: itemID, payload: payload}:
	case <-m.done:
	}
}

// Register hands a connected client to the Run loop. It reports false once
// the Manager has stopped.
func (m *Manager) Register(client *Client) bool {
	select {
	case m.register <- client:
		return true
	case <-m.done:
		return false
	}
}

// PublishBidEvent makes the Manager usable as an in-process Publisher when no
// Redis fan-out is configured.
func (m *Manager) PublishBidEvent(_ context.Context, event auctionapi.BidEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal bid event: %w", err)
	}
	m.Broadcast(event.ItemID, payload)
	return nil
}

// Close is a no-op; connections are closed when Run's context ends
func (*Manager) Close() error {
	return nil
}

// SubscriberCount returns the number of clients watching an item
func (m *Manager) SubscriberCount(itemID string) int {
	subscribers, ok := m.subscribers.Load(itemID)
	if !ok {
		return 0
	}

	count := 0
	subscribers.(*sync.Map).Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func (m *Manager) registerClient(client *Client) {
	subscribers, _ := m.subscribers.LoadOrStore(client.ItemID, &sync.Map{})
	subscribers.(*sync.Map).Store(client, struct{}{})

	log.Printf("INFO: Client %s watching item %s", client.ID, client.ItemID)

	go client.writePump()
}

// unregisterClient is safe to call twice for the same client: a slow client
// dropped by broadcastToItem is unregistered again when its readPump exits.
func (m *Manager) unregisterClient(client *Client) {
	subscribers, ok := m.subscribers.Load(client.ItemID)
	if !ok {
		return
	}
	if _, loaded := subscribers.(*sync.Map).LoadAndDelete(client); !loaded {
		return
	}

	close(client.Send)
	log.Printf("INFO: Client %s stopped watching item %s", client.ID, client.ItemID)
}

func (m *Manager) broadcastToItem(itemID string, payload []byte) {
	subscribers, ok := m.subscribers.Load(itemID)
	if !ok {
		return
	}

	var slow []*Client
	subscribers.(*sync.Map).Range(func(key, _ any) bool {
		client := key.(*Client)
		select {
		case client.Send <- payload:
		default:
			slow = append(slow, client)
		}
		return true
	})

	// A full send buffer means the client is not keeping up; drop it rather
	// than stall every other watcher
	for _, client := range slow {
		log.Printf("WARNING: Dropping slow client %s on item %s", client.ID, itemID)
		m.unregisterClient(client)
	}
}

func (m *Manager) closeAll() {
	m.subscribers.Range(func(_, subscribers any) bool {
		subscribers.(*sync.Map).Range(func(key, _ any) bool {
			m.unregisterClient(key.(*Client))
			return true
		})
		return true
	})
}

// writePump pumps messages from Send to the connection and keeps it alive
// with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client input and unregisters the client once the
// connection closes. Watchers never send anything meaningful.
func (c *Client) readPump(m *Manager) {
	defer func() {
		select {
		case m.unregister <- c:
		case <-m.done:
		}
	}()

	c.Conn.SetReadLimit(maxReadBytes)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WARNING: WebSocket error for client %s: %v", c.ID, err)
			}
			return
		}
	}
}
