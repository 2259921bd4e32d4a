package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 * 1024
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Browser origin enforcement lives in the CORS layer; the socket
		// carries no authority beyond the identity the client declares.
		return true
	},
}

// wsConn adapts one websocket connection to the gateway's Conn interface.
type wsConn struct {
	id     string
	sock   *websocket.Conn
	send   chan []byte
	logger *zap.Logger

	closeOnce sync.Once
}

// ServeWS returns the gin handler that upgrades requests into gateway
// connections. Each connection gets an opaque identifier for its lifetime.
func ServeWS(g *Gateway, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		conn := &wsConn{
			id:     uuid.NewString(),
			sock:   sock,
			send:   make(chan []byte, sendBuffer),
			logger: logger,
		}

		go conn.writePump()
		go conn.readPump(g)
	}
}

func (c *wsConn) ID() string {
	return c.id
}

// Send marshals and enqueues an event without blocking. A full buffer means
// the consumer stopped draining; the connection is closed so the client
// reconnects with a fresh join snapshot instead of silently missing chat
// frames.
func (c *wsConn) Send(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Warn("event marshal failed",
			zap.String("event", event), zap.String("conn_id", c.id), zap.Error(err))
		return
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		c.logger.Warn("envelope marshal failed",
			zap.String("event", event), zap.String("conn_id", c.id), zap.Error(err))
		return
	}
	select {
	case c.send <- frame:
	default:
		c.logger.Warn("send buffer full, closing slow consumer",
			zap.String("event", event), zap.String("conn_id", c.id))
		_ = c.sock.Close()
	}
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

func (c *wsConn) readPump(g *Gateway) {
	defer func() {
		g.HandleDisconnect(c)
		c.close()
		_ = c.sock.Close()
	}()

	c.sock.SetReadLimit(maxMessageSize)
	_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}

		var envelope Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			c.logger.Warn("undecodable frame dropped", zap.String("conn_id", c.id), zap.Error(err))
			continue
		}
		g.HandleEvent(context.Background(), c, envelope)
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.sock.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.sock.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
