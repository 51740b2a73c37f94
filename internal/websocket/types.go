package websocket

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/raaihank/prompt-shield/internal/privacy"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeDetection is sent when the privacy layer masked a request
	EventTypeDetection EventType = "detection"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// DetectionEvent describes what was redacted from one request. It carries
// categories and counts only, never the matched values.
type DetectionEvent struct {
	RequestID      string            `json:"request_id"`
	Method         string            `json:"method"`
	Path           string            `json:"path"`
	Findings       []privacy.Finding `json:"findings"`
	TotalFindings  int               `json:"total_findings"`
	EntityDetected bool              `json:"entity_detected"`
	ProcessingMS   float64           `json:"processing_ms"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	Message  string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type   string      `json:"type"`
	Events []EventType `json:"events,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	conn        *websocket.Conn
	send        chan Event
	ConnectedAt time.Time
	IP          string
	UserAgent   string

	// subscribed is nil until the client sends a subscribe message; nil
	// means every event. Only touched by the hub goroutine.
	subscribed map[EventType]bool
}

// HubStats tracks WebSocket hub statistics
type HubStats struct {
	TotalConnections   int64     `json:"total_connections"`
	ActiveConnections  int64     `json:"active_connections"`
	TotalMessages      int64     `json:"total_messages"`
	TotalBroadcasts    int64     `json:"total_broadcasts"`
	LastConnectionTime time.Time `json:"last_connection_time"`
	LastBroadcastTime  time.Time `json:"last_broadcast_time"`
}
