package notifications

import (
	"context"
	"errors"
	"sync"

	"chatgraph/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	maxConnsPerUser = 12
	maxTotalConns   = 10000
)

var (
	ErrGatewayClosed   = errors.New("gateway is shutting down")
	ErrServerConnLimit = errors.New("server connection limit reached")
	ErrUserConnLimit   = errors.New("user connection limit reached")
)

// Gateway tracks live websocket sessions. Event routing goes through each
// session's broker subscription; the gateway only enforces connection limits
// and closes everything on shutdown.
type Gateway struct {
	mu         sync.RWMutex
	conns      map[string]map[*Client]struct{}
	totalConns int
	closed     bool
	log        *observability.WSLogger
}

// NewGateway creates an empty Gateway.
func NewGateway() *Gateway {
	return &Gateway{
		conns: make(map[string]map[*Client]struct{}),
		log:   observability.NewWSLogger("events", nil),
	}
}

// Name returns a human-readable identifier for this gateway.
func (g *Gateway) Name() string { return "event gateway" }

// Register adds a connection for userID.
func (g *Gateway) Register(userID string, conn *websocket.Conn) (*Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, ErrGatewayClosed
	}
	if g.totalConns >= maxTotalConns {
		return nil, ErrServerConnLimit
	}
	m, ok := g.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		g.conns[userID] = m
	}
	if len(m) >= maxConnsPerUser {
		return nil, ErrUserConnLimit
	}

	client := NewClient(g, conn, userID)
	m[client] = struct{}{}
	g.totalConns++
	observability.WebSocketConnectionsTotal.Inc()
	g.log.LogConnect(context.Background(), userID)
	return client, nil
}

// UnregisterClient removes client. Unknown clients are ignored.
func (g *Gateway) UnregisterClient(client *Client) {
	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.conns[client.UserID]
	if !ok {
		return
	}
	if _, exists := m[client]; !exists {
		return
	}
	delete(m, client)
	if len(m) == 0 {
		delete(g.conns, client.UserID)
	}
	g.totalConns--
	observability.WebSocketConnectionsTotal.Dec()
	g.log.LogDisconnect(context.Background(), client.UserID, "closed")
}

// Sessions returns the number of live connections.
func (g *Gateway) Sessions() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.totalConns
}

// UserSessions returns the number of live connections for userID.
func (g *Gateway) UserSessions(userID string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns[userID])
}

// Shutdown asks every connection to close with a going-away frame and
// rejects further registrations. The frame is queued through each client's
// send channel so WritePump stays the connection's only writer.
func (g *Gateway) Shutdown(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.closed = true
	for _, userConns := range g.conns {
		for client := range userConns {
			observability.WebSocketConnectionsTotal.Dec()
			client.CloseWith(websocket.CloseGoingAway, "Server shutting down")
		}
	}
	g.conns = make(map[string]map[*Client]struct{})
	g.totalConns = 0
	return nil
}
