package notifications

import (
	"log/slog"
	"sync"
	"time"

	"chatgraph/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 16384

	sendBuffer = 256
)

// SessionRegistry is implemented by whatever tracks live clients.
type SessionRegistry interface {
	UnregisterClient(c *Client)
	Name() string
}

// Client is the middleman between one websocket connection and the broker.
type Client struct {
	Registry SessionRegistry

	// The websocket connection. Nil in tests that only exercise the send path.
	Conn *websocket.Conn

	// Buffered channel of outbound frames.
	Send chan []byte

	UserID string

	// Called for every frame the peer sends.
	IncomingHandler func(*Client, []byte)

	closeOnce  sync.Once
	closeFrame []byte
}

// NewClient creates a Client with a bounded send buffer.
func NewClient(registry SessionRegistry, conn *websocket.Conn, userID string) *Client {
	return &Client{
		Registry: registry,
		Conn:     conn,
		UserID:   userID,
		Send:     make(chan []byte, sendBuffer),
	}
}

// ReadPump reads frames from the connection until it fails, then unregisters
// the client.
func (c *Client) ReadPump() {
	defer func() {
		c.Registry.UnregisterClient(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { _ = c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read failed", slog.String("user_id", c.UserID), slog.String("error", err.Error()))
			}
			break
		}

		if c.IncomingHandler != nil {
			c.IncomingHandler(c, message)
		}
	}
}

// WritePump writes queued frames and keepalive pings to the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				frame := c.closeFrame
				if frame == nil {
					frame = []byte{}
				}
				_ = c.Conn.WriteMessage(websocket.CloseMessage, frame)
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close ends the send side. WritePump writes a normal close frame and exits.
// Safe to call more than once.
func (c *Client) Close() {
	c.CloseWith(websocket.CloseNormalClosure, "")
}

// CloseWith is Close with an explicit close code. Only the first call takes
// effect, and only WritePump ever writes the frame.
func (c *Client) CloseWith(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeFrame = websocket.FormatCloseMessage(code, text)
		close(c.Send)
	})
}

// TrySend queues message without blocking. A slow consumer loses the frame
// and is told so, which lets the client re-fetch.
func (c *Client) TrySend(message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			observability.WebSocketBackpressureDrops.WithLabelValues(c.Registry.Name(), "closed").Inc()
		}
	}()

	select {
	case c.Send <- message:
		return true
	default:
		observability.WebSocketBackpressureDrops.WithLabelValues(c.Registry.Name(), "full").Inc()
		slog.Warn("websocket send buffer full, dropped frame", slog.String("user_id", c.UserID), slog.String("gateway", c.Registry.Name()))

		dropNotice := []byte(`{"type":"messages_dropped","payload":{"reason":"buffer_full"}}`)
		select {
		case c.Send <- dropNotice:
		default:
		}
		return false
	}
}
