package feed

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ConnectedMessage is the first frame a watcher receives
type ConnectedMessage struct {
	Type     string `json:"type"`
	ItemID   string `json:"item_id"`
	ClientID string `json:"client_id"`
}

// Handler upgrades watcher connections for /ws/items/{id}
type Handler struct {
	manager *Manager
}

func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// RegisterRoutes mounts the feed endpoints on router
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws/items/{id}", h.HandleWebSocket)
	router.HandleFunc("/ws/items/{id}/stats", h.HandleStats).Methods(http.MethodGet)
}

// HandleWebSocket upgrades the connection and registers the client with the
// manager
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]
	if itemID == "" {
		http.Error(w, "item ID is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ERROR: Failed to upgrade feed connection: %v", err)
		return
	}

	client := &Client{
		ID:     uuid.New().String(),
		ItemID: itemID,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
	}

	// Queued before registration so it is always the first frame
	welcome, _ := json.Marshal(ConnectedMessage{Type: "connected", ItemID: itemID, ClientID: client.ID})
	client.Send <- welcome

	if !h.manager.Register(client) {
		conn.Close()
		return
	}
	go client.readPump(h.manager)
}

// HandleStats reports how many clients watch an item
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"item_id":     itemID,
		"subscribers": h.manager.SubscriberCount(itemID),
	}); err != nil {
		log.Printf("ERROR: Failed to encode stats for item %s: %v", itemID, err)
	}
}
