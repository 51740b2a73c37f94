package websocket

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/raaihank/prompt-shield/internal/config"
	"github.com/raaihank/prompt-shield/internal/logger"
	"go.uber.org/zap"
)

const sendBuffer = 256

type subscription struct {
	client *Client
	events []EventType
}

type directMessage struct {
	client *Client
	event  Event
}

// Hub maintains the set of active clients and broadcasts events to them.
// All client bookkeeping happens on the Run goroutine.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	subscribe  chan subscription
	direct     chan directMessage
	statsReq   chan chan HubStats
	done       chan struct{}

	config   config.WebSocketConfig
	upgrader websocket.Upgrader
	logger   *logger.Logger
	stats    HubStats
}

// NewHub creates a new WebSocket hub
func NewHub(cfg config.WebSocketConfig, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subscribe:  make(chan subscription),
		direct:     make(chan directMessage),
		statsReq:   make(chan chan HubStats),
		done:       make(chan struct{}),
		config:     cfg,
		logger:     log.WithComponent("websocket"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Run handles client registration and broadcasting until ctx is done
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("Starting WebSocket hub")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			h.logger.Info("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			if h.clients[client] {
				h.drop(client)
				h.logger.Info("Client disconnected",
					zap.String("client_id", client.ID),
					zap.Int64("active_connections", h.stats.ActiveConnections),
				)
				h.fanOut(connectionEvent("disconnected", client), nil)
			}

		case sub := <-h.subscribe:
			if h.clients[sub.client] {
				sub.client.subscribed = make(map[EventType]bool, len(sub.events))
				for _, e := range sub.events {
					sub.client.subscribed[e] = true
				}
			}

		case msg := <-h.direct:
			if h.clients[msg.client] {
				select {
				case msg.client.send <- msg.event:
				default:
				}
			}

		case event := <-h.broadcast:
			h.stats.TotalBroadcasts++
			h.stats.LastBroadcastTime = time.Now()
			h.fanOut(event, nil)

		case reply := <-h.statsReq:
			reply <- h.stats
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	if limit := h.config.MaxConnections; limit > 0 && len(h.clients) >= limit {
		h.logger.Warn("Connection limit reached, rejecting client", zap.Int("max_connections", limit))
		close(client.send)
		return
	}

	h.clients[client] = true
	h.stats.TotalConnections++
	h.stats.ActiveConnections++
	h.stats.LastConnectionTime = time.Now()

	h.logger.Info("Client connected",
		zap.String("client_id", client.ID),
		zap.String("client_ip", client.IP),
		zap.Int64("active_connections", h.stats.ActiveConnections),
	)

	h.fanOut(connectionEvent("connected", client), client)
}

// drop removes a client and closes its send channel, which ends its writer
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.stats.ActiveConnections--
}

// fanOut queues event for every subscribed client except skip. Clients
// that cannot keep up are disconnected.
func (h *Hub) fanOut(event Event, skip *Client) {
	if event.Type == EventTypeConnection && !h.config.Events.BroadcastConnections {
		return
	}
	for client := range h.clients {
		if client == skip || !client.wants(event.Type) {
			continue
		}
		select {
		case client.send <- event:
			h.stats.TotalMessages++
		default:
			h.logger.Warn("Client send channel full, closing connection", zap.String("client_id", client.ID))
			h.drop(client)
		}
	}
}

func (c *Client) wants(t EventType) bool {
	return c.subscribed == nil || c.subscribed[t]
}

func connectionEvent(action string, client *Client) Event {
	return Event{
		Type:      EventTypeConnection,
		Timestamp: time.Now(),
		Data: ConnectionEvent{
			Action:   action,
			ClientID: client.ID,
			Message:  fmt.Sprintf("Client %s %s", client.ID, action),
		},
	}
}

// PublishDetection broadcasts a detection event when enabled in config
func (h *Hub) PublishDetection(ev DetectionEvent) {
	if !h.config.Events.BroadcastDetections {
		return
	}
	h.BroadcastEvent(Event{
		Type:      EventTypeDetection,
		Timestamp: time.Now(),
		RequestID: ev.RequestID,
		Data:      ev,
	})
}

// BroadcastEvent queues an event without blocking; it is dropped when the
// hub is saturated or stopped
func (h *Hub) BroadcastEvent(event Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("Broadcast channel full, dropping event", zap.String("event_type", string(event.Type)))
	}
}

// Stats returns current hub statistics
func (h *Hub) Stats() HubStats {
	reply := make(chan HubStats, 1)
	select {
	case h.statsReq <- reply:
		return <-reply
	case <-h.done:
		return HubStats{}
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (h *Hub) authorized(r *http.Request) bool {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(h.config.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(h.config.Password)) == 1
	return userOK && passOK
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="prompt-shield"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// RequireAuth protects next with the hub's basic auth credentials, so the
// browser has them cached when the dashboard opens the websocket
func (h *Hub) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.authorized(r) {
			unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandleWebSocket authenticates with HTTP basic auth and upgrades the
// connection
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		unauthorized(w)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.NewString(),
		conn:        conn,
		send:        make(chan Event, sendBuffer),
		ConnectedAt: time.Now(),
		IP:          r.RemoteAddr,
		UserAgent:   r.UserAgent(),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Hub) writeWait() time.Duration {
	if h.config.WriteTimeout > 0 {
		return h.config.WriteTimeout
	}
	return 10 * time.Second
}

func (h *Hub) pongWait() time.Duration {
	if h.config.PongTimeout > 0 {
		return h.config.PongTimeout
	}
	return 60 * time.Second
}

func (h *Hub) pingPeriod() time.Duration {
	if p := h.config.PingInterval; p > 0 && p < h.pongWait() {
		return p
	}
	return h.pongWait() * 9 / 10
}

// writePump sends queued events and keepalive pings
func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(h.pingPeriod())
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(h.writeWait()))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(event); err != nil {
				h.logger.Debug("Failed to write WebSocket message",
					zap.String("client_id", client.ID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(h.writeWait()))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump processes client messages until the connection fails
func (h *Hub) readPump(client *Client) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
		client.conn.Close()
	}()

	if h.config.MaxMessageSize > 0 {
		client.conn.SetReadLimit(h.config.MaxMessageSize)
	}
	client.conn.SetReadDeadline(time.Now().Add(h.pongWait()))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(h.pongWait()))
	})

	for {
		var msg ClientMessage
		if err := client.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("WebSocket read error", zap.String("client_id", client.ID), zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "subscribe":
			select {
			case h.subscribe <- subscription{client: client, events: msg.Events}:
			case <-h.done:
				return
			}
		case "ping":
			h.sendDirect(client, Event{Type: EventTypePong, Timestamp: time.Now()})
		}
	}
}

// sendDirect replies to a single client through the hub so that sends
// never race with the hub closing the channel
func (h *Hub) sendDirect(client *Client, event Event) {
	select {
	case h.direct <- directMessage{client: client, event: event}:
	case <-h.done:
	}
}
