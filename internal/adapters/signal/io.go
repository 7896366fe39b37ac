package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"peercall/internal/app"
)

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Cfg.WriteTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Info().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Cfg.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump processes this connection's frames strictly in arrival order. On
// exit it tears the connection down and releases the identifier binding;
// the identity check in Registry.Release keeps a late teardown from an
// evicted connection away from its successor's binding.
func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, token string, sess *app.Session, c *wsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("client", token).Msg("readPump closing")
		cancel()
		c.Close()
		if id, ok := sess.Peer(); ok {
			ctl.Router.Registry.Release(id, c)
		}
		ctl.limiter.Forget(token)
	}()

	pongWait := ctl.Cfg.PingPeriod * 10 / 9
	c.conn.SetReadLimit(ctl.Cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("client", token).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("client", token).Msg("readPump read error")
				return
			}
			if !ctl.limiter.Allow(token) {
				log.Warn().Str("module", "signal").Str("client", token).Msg("frame rate limit exceeded, dropping")
				continue
			}
			ctl.Router.HandleFrame(sess, data)
		}
	}
}
