package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const (
	// Events are low-rate (one per dispatch or scan pass); a small buffer
	// absorbs a sync burst without letting a dead agent pin memory.
	sendBufferSize = 8
	// Agents sit behind home NAT; pings keep the mapping alive and surface
	// dead connections before the next event is lost.
	pingInterval = 30 * time.Second
)

// Client is one connection, either a panel tab or a desktop agent, bound to
// the reseller account it authenticated as.
type Client struct {
	hub    *Hub
	conn   *ws.Conn
	userID int64
	send   chan []byte
}

func NewClient(hub *Hub, conn *ws.Conn, userID int64) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
	}
}

// Run registers the connection, starts the write pump, and blocks reading
// until the peer goes away, then unregisters.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx)
}

// readPump discards inbound frames. The event stream is one-way; agents
// talk to the panel over the HTTP API, not the socket.
func (c *Client) readPump(ctx context.Context) {
	for {
		_, _, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				// Hub closed the channel on unregister.
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
