package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/citytransit/tracking-service/internal/metrics"
)

// Client actions on the push channel.
const (
	actionSubscribe   = "subscribe:route"
	actionUnsubscribe = "unsubscribe:route"
)

// eventVehicleUpdate is the server-to-client event carrying a composite
// vehicle update.
const eventVehicleUpdate = "bus:update"

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ClientMessage is a subscription request from a connected client.
type ClientMessage struct {
	Action  string `json:"action"`
	RouteID string `json:"routeId"`
}

// Event is the server-to-client frame. Data carries the composite payload
// verbatim, byte-equal to the HTTP response body.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Hub maintains the set of active clients and their per-route room
// membership, and fans vehicle updates out to room members.
type Hub struct {
	clients map[*Client]bool

	// rooms maps route:<routeId> to its current members
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	mutex sync.RWMutex
}

// Client is a middleman between a websocket connection and the hub.
type Client struct {
	hub *Hub

	conn *websocket.Conn

	// Buffered channel of outbound frames
	send chan []byte

	// Connection ID for logging
	id string

	// Rooms this client has joined
	rooms map[string]bool
}

// NewHub creates a new hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run processes client registration. Call in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			logrus.Infof("Subscriber connected: %s", client.id)

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for room := range client.rooms {
		h.leaveRoomLocked(room, client)
	}
	close(client.send)
	logrus.Infof("Subscriber disconnected: %s", client.id)
}

func roomName(routeID string) string {
	return "route:" + routeID
}

// Join adds a client to a route's room. Joining twice is a no-op.
func (h *Hub) Join(routeID string, client *Client) {
	room := roomName(routeID)
	h.mutex.Lock()
	defer h.mutex.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[client] = true
	client.rooms[room] = true
}

// Leave removes a client from a route's room.
func (h *Hub) Leave(routeID string, client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.leaveRoomLocked(roomName(routeID), client)
}

func (h *Hub) leaveRoomLocked(room string, client *Client) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(client.rooms, room)
}

// RoomSize returns the number of current members of a route's room.
func (h *Hub) RoomSize(routeID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.rooms[roomName(routeID)])
}

// EmitVehicleUpdate delivers a bus:update frame to every member of the
// route's room. Delivery is at-most-once: a member whose send queue is
// full is dropped.
func (h *Hub) EmitVehicleUpdate(routeID string, payload []byte) {
	frame, err := json.Marshal(Event{Event: eventVehicleUpdate, Data: payload})
	if err != nil {
		logrus.Errorf("Failed to marshal vehicle update frame: %v", err)
		return
	}

	var dropped []*Client
	h.mutex.RLock()
	for client := range h.rooms[roomName(routeID)] {
		select {
		case client.send <- frame:
		default:
			dropped = append(dropped, client)
		}
	}
	h.mutex.RUnlock()

	for _, client := range dropped {
		h.removeClient(client)
	}

	metrics.BroadcastsSent.Inc()
}

// HandleWebSocket upgrades the connection and starts the client pumps.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Errorf("Failed to upgrade connection: %v", err)
		return
	}

	client := &Client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, 256),
		id:    uuid.NewString(),
		rooms: make(map[string]bool),
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump pumps subscription messages from the websocket connection to
// the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Errorf("WebSocket error: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logrus.Errorf("Error unmarshaling subscription message: %v", err)
			continue
		}
		if msg.RouteID == "" {
			continue
		}

		switch msg.Action {
		case actionSubscribe:
			c.hub.Join(msg.RouteID, c)
		case actionUnsubscribe:
			c.hub.Leave(msg.RouteID, c)
		}
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
