package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/OldStager01/service-autoscaler/internal/logger"
)

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu      sync.Mutex
	service string
}

func newClient(hub *Hub, conn *websocket.Conn, service string) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, hub.settings.clientBuffer),
		service: service,
	}
}

// wants reports whether this client's filter matches a frame routed to
// service. Cluster level frames (empty service) match everyone.
func (c *Client) wants(service string) bool {
	if service == "" {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.service == "" || c.service == service
}

func (c *Client) setService(service string) {
	c.mu.Lock()
	c.service = service
	c.mu.Unlock()
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	s := c.hub.settings
	c.conn.SetReadLimit(s.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(s.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(s.pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Errorf("WebSocket error: %v", err)
			}
			break
		}

		var msg IncomingMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			c.handleMessage(&msg)
		}
	}
}

func (c *Client) WritePump() {
	s := c.hub.settings
	ticker := time.NewTicker(s.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Flush whatever else is queued into the same frame.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *IncomingMessage) {
	switch msg.Type {
	case "subscribe":
		c.setService(msg.Service)
		logger.Infof("WebSocket client subscribed to service: %s", msg.Service)
		c.sendAck("subscribed", msg.Service)
	case "unsubscribe":
		c.setService("")
		logger.Info("WebSocket client dropped its service filter")
		c.sendAck("unsubscribed", "")
	}
}

func (c *Client) sendAck(action, service string) {
	data, err := json.Marshal(newSubscriptionUpdate(action, service))
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// ServeWebSocket upgrades the connection and starts the pumps. The
// service query parameter pre-sets the client's filter.
func ServeWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  hub.settings.readBuffer,
		WriteBufferSize: hub.settings.writeBuffer,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return func(c *gin.Context) {
		if max := hub.settings.maxConnections; max > 0 && hub.ClientCount() >= max {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "websocket connection limit reached",
			})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Errorf("WebSocket upgrade failed: %v", err)
			return
		}

		client := newClient(hub, conn, c.Query("service"))
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()
	}
}
