// FILE: internal/service/monitor/hub.go
package monitor

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sandboxdemo/internal/shared/logger"
)

// maxRecentRequests bounds the in-memory request log served by the API.
const maxRecentRequests = 20

// RequestLogEntry describes one served connection.
type RequestLogEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	TraceID       string    `json:"trace_id"`
	ClientIP      string    `json:"client_ip"`
	Route         string    `json:"route"`
	RequestBytes  int       `json:"request_bytes"`
	ResponseBytes int       `json:"response_bytes"`
}

// DashboardStats carries the realtime counters pushed to the dashboard.
type DashboardStats struct {
	Timestamp        time.Time `json:"timestamp"`
	TotalConnections int64     `json:"total_connections"`
	BytesInRate      uint64    `json:"bytes_in_rate"`  // bytes per second
	BytesOutRate     uint64    `json:"bytes_out_rate"` // bytes per second
}

// WebSocketMessage is the generic envelope for pushed messages.
type WebSocketMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active clients and broadcasts messages to the
// clients. It also keeps the bounded log of recent requests.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.Mutex

	recentMu sync.Mutex
	recent   []*RequestLogEntry
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		clients:    make(map[*websocket.Conn]bool),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
			logger.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("WebSocket client registered.")
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				logger.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("WebSocket client unregistered.")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				err := conn.WriteMessage(websocket.TextMessage, message)
				if err != nil {
					logger.Warn().Err(err).Str("remote_addr", conn.RemoteAddr().String()).Msg("Error writing to websocket client.")
					// Assume client is disconnected, let the read pump handle unregistering
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastStatusUpdate tells clients to refetch /api/status.
func (h *Hub) BroadcastStatusUpdate() {
	logger.Debug().Msg("Hub: Broadcasting status update to all clients.")
	msg := WebSocketMessage{Type: "status_update", Data: nil}
	jsonMsg, _ := json.Marshal(msg)

	select {
	case h.broadcast <- jsonMsg:
	default:
		logger.Warn().Msg("Hub: Broadcast channel is full, skipping status update.")
	}
}

// BroadcastRequestLog records one served request and pushes it to the
// connected clients.
func (h *Hub) BroadcastRequestLog(entry *RequestLogEntry) {
	h.recentMu.Lock()
	h.recent = append(h.recent, entry)
	if len(h.recent) > maxRecentRequests {
		h.recent = h.recent[len(h.recent)-maxRecentRequests:]
	}
	h.recentMu.Unlock()

	msg := WebSocketMessage{Type: "request_log", Data: entry}
	jsonMsg, err := json.Marshal(msg)
	if err != nil {
		logger.Error().Err(err).Msg("Hub: Failed to marshal request log entry")
		return
	}

	select {
	case h.broadcast <- jsonMsg:
	default:
		// Do not log warning for full channel here to avoid log spam
	}
}

// BroadcastDashboardUpdate pushes the realtime counters.
func (h *Hub) BroadcastDashboardUpdate(stats *DashboardStats) {
	msg := WebSocketMessage{Type: "dashboard_update", Data: stats}
	jsonMsg, err := json.Marshal(msg)
	if err != nil {
		logger.Error().Err(err).Msg("Hub: Failed to marshal dashboard stats")
		return
	}

	select {
	case h.broadcast <- jsonMsg:
	default:
		// Do not log warning for full channel to avoid log spam
	}
}

// RecentRequests returns the bounded request log, newest last.
func (h *Hub) RecentRequests() []*RequestLogEntry {
	h.recentMu.Lock()
	defer h.recentMu.Unlock()
	out := make([]*RequestLogEntry, len(h.recent))
	copy(out, h.recent)
	return out
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // Allow all origins
}

// ServeWs handles websocket requests from the peer.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to upgrade websocket")
		return
	}
	hub.register <- conn

	// This is a read pump. It's needed to detect when a client closes the connection.
	go func() {
		defer func() {
			hub.unregister <- conn
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn().Err(err).Msg("Unexpected websocket close error")
				}
				break
			}
		}
	}()
}
