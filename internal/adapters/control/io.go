package control

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"droidview/internal/app"
	"droidview/internal/core"
)

const writeWait = 5 * time.Second

func (ctl *ControlWSController) writePump(ctx context.Context, c *wsControlConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "control").Msg("writePump ctx done")
			return
		case f, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "control").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "control").Msg("writePump set deadline")
				return
			}
			mt := websocket.TextMessage
			if f.binary {
				mt = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(mt, f.data); err != nil {
				log.Error().Err(err).Str("module", "control").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *ControlWSController) readPump(ctx context.Context, sid core.SessionID, c *wsControlConn, entry *app.Entry) {
	defer func() {
		log.Info().Str("module", "control").Str("sid", string(sid)).Msg("readPump closing")
		entry.Controller.Stop()
		if entry.RTC != nil {
			entry.RTC.Close()
		}
		ctl.Registry.Unbind(sid)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "control").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "control").Str("sid", string(sid)).Msg("readPump read error")
				return
			}
			ctl.handleMessage(ctx, sid, c, entry, data)
		}
	}
}

func (ctl *ControlWSController) sendJSON(c *wsControlConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "control").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
