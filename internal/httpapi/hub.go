package httpapi

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"matchbot/internal/eventbus"
	"matchbot/pkg/logx"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxInbound = 4096
	sendBuffer = 64
)

// clientMessage is what a websocket client may send. {"type":"subscribe",
// "types":["match.event"]} narrows the stream; "unsubscribe" clears it.
type clientMessage struct {
	Type  string   `json:"type"`
	Types []string `json:"types,omitempty"`
}

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu      sync.Mutex
	filters map[string]bool
}

func (c *client) wants(typ string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.filters) == 0 || c.filters[typ]
}

func (c *client) setFilters(types []string) {
	f := make(map[string]bool, len(types))
	for _, t := range types {
		f[t] = true
	}
	c.mu.Lock()
	c.filters = f
	c.mu.Unlock()
}

// Hub streams bus events to websocket clients. A client that cannot keep up
// is disconnected.
type Hub struct {
	log logx.Logger
	bus eventbus.Bus

	register   chan *client
	unregister chan *client

	mu      sync.RWMutex
	clients map[*client]struct{}
	done    chan struct{}
}

func NewHub(bus eventbus.Bus, log logx.Logger) *Hub {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Hub{
		log:        log,
		bus:        bus,
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    map[*client]struct{}{},
		done:       make(chan struct{}),
	}
}

// Clients is the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run pumps bus events until ctx ends, then drops every client.
func (h *Hub) Run(ctx context.Context) error {
	var events <-chan eventbus.Event
	if h.bus != nil {
		ch, unsubscribe := h.bus.Subscribe(256)
		defer unsubscribe()
		events = ch
	}
	defer func() {
		h.mu.Lock()
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("ws client connected", logx.String("client", c.id), logx.Int("clients", n))
		case c := <-h.unregister:
			h.drop(c)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			h.broadcast(ev)
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.log.Debug("ws client disconnected", logx.String("client", c.id), logx.Int("clients", n))
	}
}

func (h *Hub) broadcast(ev eventbus.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn("ws event encode failed", logx.String("type", ev.Type), logx.Err(err))
		return
	}
	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		if !c.wants(ev.Type) {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range slow {
		h.log.Warn("ws client too slow, disconnecting", logx.String("client", c.id))
		h.drop(c)
	}
}

// attach registers conn and starts its pumps. It returns false once the hub
// has stopped.
func (h *Hub) attach(conn *websocket.Conn) bool {
	c := &client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	hello, _ := json.Marshal(eventbus.Event{Type: "connected", Time: time.Now(), Data: map[string]string{"client": c.id}})
	c.send <- hello
	select {
	case h.register <- c:
	case <-h.done:
		return false
	}
	go c.writePump()
	go c.readPump()
	return true
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxInbound)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("ws read failed", logx.String("client", c.id), logx.Err(err))
			}
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "subscribe":
			c.setFilters(msg.Types)
		case "unsubscribe":
			c.setFilters(nil)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
