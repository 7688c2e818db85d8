// Package signal is the WebSocket boundary: it upgrades connections,
// assigns the per-connection handle, and dispatches decoded frames to the
// presence coordinator and the relay.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/roomcast/roomcast/internal/config"
	"github.com/roomcast/roomcast/internal/core"
	"github.com/roomcast/roomcast/internal/domain"
	"github.com/roomcast/roomcast/internal/metrics"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Presence *core.Presence
	Relay    *core.Relay
	Registry *core.Registry
	Cfg      *config.Config
}

func NewController(presence *core.Presence, relay *core.Relay, reg *core.Registry, cfg *config.Config) *Controller {
	return &Controller{Presence: presence, Relay: relay, Registry: reg, Cfg: cfg}
}

type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the request and runs the connection's pumps. The handle is
// minted fresh per connection; it dies on disconnect and is never reused.
func (ctl *Controller) Handle(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	id := domain.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").Str("conn", string(id)).Msg("new WS connection")

	buf := ctl.Cfg.SendBuffer
	if buf <= 0 {
		buf = 32
	}
	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, buf),
	}
	if ctl.Cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.Cfg.ReadLimit)
	}

	ctl.Registry.Register(id, conn)
	metrics.ConnectionsActive.Inc()

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, id, conn)
}
