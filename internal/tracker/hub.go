// Package tracker relays delivery agent locations to everyone watching an
// order over WebSocket. Delivery is best effort: nothing is stored and a
// slow client loses frames instead of stalling the room.
package tracker

import (
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 16
)

// Metrics observes the hub.
type Metrics struct {
	Connections prometheus.Gauge
	Rooms       prometheus.Gauge
	Relayed     prometheus.Counter
	Dropped     prometheus.Counter
}

// NewMetrics creates hub metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "emart", Subsystem: "tracker", Name: "connections",
			Help: "Open tracking connections.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "emart", Subsystem: "tracker", Name: "rooms",
			Help: "Orders with at least one watcher.",
		}),
		Relayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emart", Subsystem: "tracker", Name: "locations_total",
			Help: "Location updates received from agents.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emart", Subsystem: "tracker", Name: "dropped_frames_total",
			Help: "Frames dropped because a client's send buffer was full.",
		}),
	}
	reg.MustRegister(m.Connections, m.Rooms, m.Relayed, m.Dropped)
	return m
}

// Config controls which browser origins may connect. An empty list allows
// any origin.
type Config struct {
	AllowOrigins []string
}

// Hub groups connections into rooms keyed by order id.
type Hub struct {
	upgrader websocket.Upgrader
	metrics  *Metrics
	lg       *zap.Logger

	mu      sync.RWMutex
	rooms   map[string]map[*client]struct{}
	clients map[*client]struct{}
}

// NewHub creates an empty Hub.
func NewHub(cfg Config, metrics *Metrics, lg *zap.Logger) *Hub {
	h := &Hub{
		metrics: metrics,
		lg:      lg,
		rooms:   make(map[string]map[*client]struct{}),
		clients: make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(cfg.AllowOrigins) == 0 || origin == "" ||
				slices.Contains(cfg.AllowOrigins, "*") || slices.Contains(cfg.AllowOrigins, origin)
		},
	}
	return h
}

type client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	rooms map[string]struct{}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		h.lg.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		rooms: make(map[string]struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.metrics.Connections.Inc()

	go c.writePump()
	c.readPump()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c.conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
}

func (h *Hub) join(c *client, orderID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[orderID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[orderID] = room
		h.metrics.Rooms.Inc()
	}
	room[c] = struct{}{}
	c.rooms[orderID] = struct{}{}
}

func (h *Hub) leave(c *client, orderID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, orderID)
}

func (h *Hub) leaveLocked(c *client, orderID string) {
	room, ok := h.rooms[orderID]
	if !ok {
		return
	}
	delete(room, c)
	delete(c.rooms, orderID)
	if len(room) == 0 {
		delete(h.rooms, orderID)
		h.metrics.Rooms.Dec()
	}
}

// unregister removes c from every room and stops its writer.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	for orderID := range c.rooms {
		h.leaveLocked(c, orderID)
	}
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.metrics.Connections.Dec()
	}
	h.mu.Unlock()
}

// broadcast queues frame for every member of the room except sender.
func (h *Hub) broadcast(orderID string, sender *client, frames ...[]byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[orderID] {
		if c == sender {
			continue
		}
		for _, f := range frames {
			select {
			case c.send <- f:
			default:
				h.metrics.Dropped.Inc()
			}
		}
	}
}

// reply queues a frame for c alone. It must only be called from c's read
// loop, which is the only path that closes c.send.
func (c *client) reply(frame []byte) {
	select {
	case c.send <- frame:
	default:
		c.hub.metrics.Dropped.Inc()
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.lg.Debug("Tracking connection closed", zap.Error(err))
			}
			return
		}
		c.handle(msg)
	}
}

func (c *client) handle(msg []byte) {
	in, err := decodeInbound(msg)
	if err == nil {
		err = in.validate()
	}
	if err != nil {
		c.reply(encodeError(err.Error()))
		return
	}

	switch in.Event {
	case EventJoin:
		c.hub.join(c, in.OrderID)
		c.reply(encodeJoined(in.OrderID))
	case EventLeave:
		c.hub.leave(c, in.OrderID)
	case EventLocation:
		c.hub.metrics.Relayed.Inc()
		c.hub.broadcast(in.OrderID, c,
			encodeLocation(EventShareWithUser, in.Latitude, in.Longitude),
			encodeLocation(EventUpdateShipment, in.Latitude, in.Longitude),
		)
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
