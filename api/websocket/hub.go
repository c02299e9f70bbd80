// Package websocket streams the control loop's event feed to browser
// and CLI clients. Clients may filter to a single service; cluster
// level events reach everyone.
package websocket

import (
	"sync"
	"time"

	"github.com/OldStager01/service-autoscaler/internal/logger"
	"github.com/OldStager01/service-autoscaler/pkg/config"
)

const (
	defaultBroadcastBuffer = 256
	defaultClientBuffer    = 256
	defaultWriteWait       = 10 * time.Second
	defaultPongWait        = 60 * time.Second
	defaultMaxMessageSize  = 512
)

// settings carries the websocket tuning knobs with defaults filled in.
type settings struct {
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	maxMessageSize int64
	clientBuffer   int
	maxConnections int
	readBuffer     int
	writeBuffer    int
}

func newSettings(cfg config.WebSocketConfig) settings {
	s := settings{
		writeWait:      cfg.WriteTimeout,
		pongWait:       cfg.PongTimeout,
		maxMessageSize: cfg.MaxMessageSize,
		clientBuffer:   cfg.ClientBuffer,
		maxConnections: cfg.MaxConnections,
		readBuffer:     cfg.ReadBufferSize,
		writeBuffer:    cfg.WriteBufferSize,
	}
	if s.writeWait <= 0 {
		s.writeWait = defaultWriteWait
	}
	if s.pongWait <= 0 {
		s.pongWait = defaultPongWait
	}
	if s.maxMessageSize <= 0 {
		s.maxMessageSize = defaultMaxMessageSize
	}
	if s.clientBuffer <= 0 {
		s.clientBuffer = defaultClientBuffer
	}
	s.pingPeriod = s.pongWait * 9 / 10
	return s
}

// frame is one serialized event with its routing key.
type frame struct {
	service string
	data    []byte
}

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan frame
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	settings   settings
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	buffer := cfg.BroadcastBuffer
	if buffer <= 0 {
		buffer = defaultBroadcastBuffer
	}

	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan frame, buffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		settings:   newSettings(cfg),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.Infof("WebSocket client connected (total: %d)", h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			logger.Infof("WebSocket client disconnected (total: %d)", h.ClientCount())

		case f := <-h.broadcast:
			h.deliver(f)
		}
	}
}

// deliver fans one frame out to every matching client. A client whose
// send buffer is full is evicted; a stalled consumer must never stall
// the feed.
func (h *Hub) deliver(f frame) {
	var evicted []*Client

	h.mu.RLock()
	for client := range h.clients {
		if !client.wants(f.service) {
			continue
		}
		select {
		case client.send <- f.data:
		default:
			evicted = append(evicted, client)
		}
	}
	h.mu.RUnlock()

	if len(evicted) == 0 {
		return
	}
	h.mu.Lock()
	for _, client := range evicted {
		if _, ok := h.clients[client]; ok {
			delete(h.clients, client)
			close(client.send)
			logger.Warn("Evicting slow WebSocket client")
		}
	}
	h.mu.Unlock()
}

// Broadcast queues one event frame. service is the routing key; empty
// reaches every client regardless of filter.
func (h *Hub) Broadcast(service string, data []byte) {
	select {
	case h.broadcast <- frame{service: service, data: data}:
	default:
		logger.Warn("Broadcast channel full, dropping message")
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}
