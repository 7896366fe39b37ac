package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"peercall/internal/app"
	"peercall/internal/config"
	"peercall/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

// Controller owns the websocket side of the relay: upgrade, pumps, and the
// per-connection lifecycle. Routing decisions live in app.Router.
type Controller struct {
	Router  *app.Router
	Cfg     *config.Config
	limiter *FrameRateLimiter
}

func NewController(rt *app.Router, cfg *config.Config) *Controller {
	return &Controller{
		Router:  rt,
		Cfg:     cfg,
		limiter: NewFrameRateLimiter(cfg.FrameLimit, cfg.FrameWindow),
	}
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

// Close is idempotent; eviction and the read loop's own teardown may both
// call it.
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

// HandleSignal upgrades the request and starts the connection's pumps. The
// read pump owns teardown: it releases the identifier binding exactly once.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	log.Info().Str("module", "signal").Str("client", token).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, ctl.Cfg.SendBuffer),
	}
	sess := app.NewSession(conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, token, sess, conn)
}
