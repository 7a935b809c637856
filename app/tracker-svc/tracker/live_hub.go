package tracker

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const liveWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

//liveHub holds the websocket clients following each trip and pushes position updates to them
type liveHub struct {
	log     *log.Logger
	mu      sync.Mutex
	clients map[int64]map[*websocket.Conn]struct{}
}

func makeLiveHub(log *log.Logger) *liveHub {
	return &liveHub{
		log:     log,
		clients: make(map[int64]map[*websocket.Conn]struct{}),
	}
}

//ServeHTTP upgrades requests for /trips/{tripId}/live and follows the trip until the client goes away
func (h *liveHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tripId, err := strconv.ParseInt(mux.Vars(r)["tripId"], 10, 64)
	if err != nil {
		http.Error(w, "invalid trip id", http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Printf("websocket upgrade for trip %d failed, error: %v", tripId, err)
		return
	}
	h.add(tripId, conn)
	go h.readPump(tripId, conn)
}

func (h *liveHub) add(tripId int64, c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	tripClients, present := h.clients[tripId]
	if !present {
		tripClients = make(map[*websocket.Conn]struct{})
		h.clients[tripId] = tripClients
	}
	tripClients[c] = struct{}{}
}

func (h *liveHub) remove(tripId int64, c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(tripId, c)
}

func (h *liveHub) removeLocked(tripId int64, c *websocket.Conn) {
	tripClients, present := h.clients[tripId]
	if !present {
		return
	}
	delete(tripClients, c)
	if len(tripClients) == 0 {
		delete(h.clients, tripId)
	}
}

//broadcast sends update to every client following its trip, dropping clients that can't be written to
func (h *liveHub) broadcast(update *PositionUpdate) {
	data, err := json.Marshal(update)
	if err != nil {
		h.log.Printf("failed to marshal PositionUpdate for trip %d, error: %v", update.TripId, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[update.TripId] {
		_ = c.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		if err = c.WriteMessage(websocket.TextMessage, data); err != nil {
			_ = c.Close()
			h.removeLocked(update.TripId, c)
		}
	}
}

//readPump discards client messages until the connection fails, then removes the client
func (h *liveHub) readPump(tripId int64, c *websocket.Conn) {
	defer func() {
		h.remove(tripId, c)
		_ = c.Close()
	}()
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

//clientCount returns the number of connected clients across all trips
func (h *liveHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	count := 0
	for _, tripClients := range h.clients {
		count += len(tripClients)
	}
	return count
}

//closeAll disconnects every client
func (h *liveHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for tripId, tripClients := range h.clients {
		for c := range tripClients {
			_ = c.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			_ = c.Close()
		}
		delete(h.clients, tripId)
	}
}
