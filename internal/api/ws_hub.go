package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atmx/classroom-exchange/internal/metrics"
	"github.com/atmx/classroom-exchange/internal/model"
	"github.com/atmx/classroom-exchange/internal/report"
	"github.com/atmx/classroom-exchange/internal/tick"
)

// WebSocket message types.
const (
	MsgTick        = "tick"
	MsgOrderQueued = "order_queued"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// WSMessage is a JSON message sent to WebSocket clients.
type WSMessage struct {
	Type        string            `json:"type"`
	Timestamp   *time.Time        `json:"timestamp,omitempty"`
	Regime      model.Regime      `json:"regime,omitempty"`
	Prices      []report.PriceRow `json:"prices,omitempty"`
	News        []model.NewsEvent `json:"news,omitempty"`
	Leaderboard []report.PnLRow   `json:"leaderboard,omitempty"`
	Trades      int               `json:"trades,omitempty"`
	Team        string            `json:"team,omitempty"`
	Pending     int               `json:"pending,omitempty"`
}

// TickMessage summarizes a completed tick for dashboards.
func TickMessage(res *tick.Result) WSMessage {
	ts := res.Timestamp
	return WSMessage{
		Type:        MsgTick,
		Timestamp:   &ts,
		Regime:      res.Regime,
		Prices:      res.Prices.Rows,
		News:        res.News,
		Leaderboard: res.PnL,
		Trades:      len(res.Trades),
	}
}

// WSHub manages WebSocket connections and pushes every tick to all
// connected dashboards.
type WSHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

// NewWSHub creates a hub. checkOrigin may be nil to accept any origin.
func NewWSHub(checkOrigin func(*http.Request) bool) *WSHub {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &WSHub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Run is the hub's event loop. It returns when ctx is done, closing every
// client connection. Run must be called at most once.
func (h *WSHub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			metrics.WebSocketClients.Set(0)
			h.mu.Unlock()
			return nil

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))
			slog.Info("ws client connected", "total", n)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))
		}
	}
}

// Clients is the number of connected clients.
func (h *WSHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a message to all connected clients. It never blocks; a
// message is dropped when the buffer is full.
func (h *WSHub) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		slog.Warn("ws broadcast dropped", "type", msg.Type)
	}
}

// BroadcastTick pushes a completed tick.
func (h *WSHub) BroadcastTick(res *tick.Result) {
	h.Broadcast(TickMessage(res))
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	// Read pump: detects disconnects.
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Pings keep the connection alive through proxies.
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			var perr error
			if ok {
				perr = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			}
			h.mu.RUnlock()
			if !ok || perr != nil {
				return
			}
		}
	}()
}
