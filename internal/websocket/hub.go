package websocket

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/vmkdxailabs/chatwidget/domain/repositories"
	"github.com/vmkdxailabs/chatwidget/internal/observability"
	"github.com/vmkdxailabs/chatwidget/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for capture fragments

	sendBuffer = 256
)

// SessionConfig is what every widget connection is built from
type SessionConfig struct {
	Assistant           repositories.Assistant
	Notifier            repositories.LeadNotifier
	Capture             usecase.CaptureOptions
	CaptureStartTimeout time.Duration
	Conversation        usecase.ConversationOptions
	// AllowedOrigins lists the page origins allowed to connect. Empty or "*"
	// allows every origin.
	AllowedOrigins []string
}

// Hub maintains the set of active widget connections.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	quit     chan struct{}
	done     chan struct{}
	quitOnce sync.Once

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	// sessions tracks client teardown, including detached lead notifications
	sessions sync.WaitGroup

	config   SessionConfig
	upgrader websocket.Upgrader
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(config SessionConfig, metrics *observability.Metrics, logger *zap.Logger) *Hub {
	h := &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		config:     config,
		metrics:    metrics,
		logger:     logger,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:     h.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return h
}

// Run starts the hub's main loop. It returns after Close.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.metrics.ConnectionOpened()
			h.logger.Info("Client registered", zap.String("connectionID", client.id))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				h.metrics.ConnectionClosed()
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("connectionID", client.id))

		case <-h.quit:
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				h.metrics.ConnectionClosed()
				client.conn.Close()
			}
			h.mu.Unlock()
			h.logger.Info("Hub stopped")
			close(h.done)
			return
		}
	}
}

// Close disconnects every client and stops Run
func (h *Hub) Close() {
	h.quitOnce.Do(func() { close(h.quit) })
}

// Wait blocks until every client has been torn down and its lead
// notifications have finished.
func (h *Hub) Wait() {
	h.sessions.Wait()
}

// ActiveClients returns the number of registered connections
func (h *Hub) ActiveClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeIdle disconnects clients without activity since cutoff
func (h *Hub) closeIdle(cutoff time.Time) int {
	h.mu.RLock()
	var idle []*Client
	for _, client := range h.clients {
		if client.lastActivity().Before(cutoff) {
			idle = append(idle, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range idle {
		client.logger.Info("Closing idle connection")
		client.conn.Close()
	}
	return len(idle)
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.config.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
			return true
		}
	}
	h.logger.Warn("WebSocket connection rejected: origin not allowed", zap.String("origin", origin))
	return false
}

// HandleWebSocket handles websocket requests from the widget page.
func HandleWebSocket(hub *Hub, c echo.Context, logger *zap.Logger) error {
	conn, err := hub.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := newClient(hub, conn, logger)

	hub.sessions.Add(1)
	select {
	case hub.register <- client:
	case <-hub.done:
		client.widget.Close()
		conn.Close()
		hub.sessions.Done()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	client.publish()
	return nil
}

func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
