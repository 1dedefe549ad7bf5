package bus

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The proxied page is served from our own origin but carries the
		// target site's base URL, so origin checks cannot be strict here.
		return true
	},
}

// Conn is a websocket connection with serialized writes. Both the bus relay
// and out-of-band frames (host commands, panel renders) write through it.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// Upgrade upgrades an HTTP request to a websocket Conn.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &Conn{ws: ws}, nil
}

// WriteFrame sends one JSON frame to the peer.
func (c *Conn) WriteFrame(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

func (c *Conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// Close closes the underlying websocket.
func (c *Conn) Close() error { return c.ws.Close() }

// Hub bridges remote page shims onto a Bus. Each attached connection plays
// one role; vocabulary messages published on the bus by the opposite role are
// relayed out, and every inbound frame is handed to the sink with its source
// forced to the connection's role.
type Hub struct {
	log *zap.Logger
}

// NewHub creates a hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{log: log}
}

// Relay pumps conn against b until the peer disconnects or ctx is cancelled.
// Inbound frames may use types outside the bus vocabulary (shim events); the
// sink sees all of them and decides which reach the bus.
func (h *Hub) Relay(ctx context.Context, conn *Conn, b *Bus, role Source, sink Handler) error {
	unsub := b.Endpoint(role).On(Wildcard, func(msg Message) {
		if err := conn.WriteFrame(msg); err != nil {
			h.log.Debug("relay write failed", zap.String("role", string(role)), zap.Error(err))
		}
	})
	defer unsub()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			var frame Message
			if err := conn.ws.ReadJSON(&frame); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.log.Debug("relay read failed", zap.String("role", string(role)), zap.Error(err))
				}
				return err
			}
			frame.Source = role
			sink(frame)
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return ctx.Err()
			case <-ticker.C:
				if err := conn.ping(); err != nil {
					return err
				}
			}
		}
	})

	return g.Wait()
}
