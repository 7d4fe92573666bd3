// Package control is the browser-facing WebSocket adapter: it upgrades the
// control connection, routes JSON messages to the device session, and carries
// video records back as binary frames.
package control

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"droidview/internal/app"
	"droidview/internal/app/fanout"
	"droidview/internal/app/session"
	"droidview/internal/config"
	"droidview/internal/core"
	"droidview/internal/observability"
)

type ControlWSController struct {
	Cfg      *config.Config
	Registry *app.Registry
	Keys     core.CredentialStore
	Metrics  *observability.Metrics
}

func NewControlWSController(cfg *config.Config, reg *app.Registry, keys core.CredentialStore, m *observability.Metrics) *ControlWSController {
	return &ControlWSController{Cfg: cfg, Registry: reg, Keys: keys, Metrics: m}
}

// outFrame distinguishes text (JSON) from binary (video) on the send queue.
type outFrame struct {
	binary bool
	data   core.Frame
}

type wsControlConn struct {
	conn *websocket.Conn
	send chan outFrame

	mu     sync.RWMutex
	closed bool
}

func (c *wsControlConn) trySend(f outFrame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return fanout.ErrBackpressure
	}
	return nil
}

func (c *wsControlConn) TrySend(f core.Frame) error {
	return c.trySend(outFrame{data: f})
}

func (c *wsControlConn) TrySendBinary(f core.Frame) error {
	return c.trySend(outFrame{binary: true, data: f})
}

func (c *wsControlConn) Close() {
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

// wsFrameSink adapts the control connection into a core.FrameSink. Each
// record travels as one binary message with a 1-byte kind prefix.
type wsFrameSink struct {
	conn *wsControlConn
}

func (s *wsFrameSink) WriteFrame(kind core.FrameKind, payload core.Frame) error {
	buf := make([]byte, 1+len(payload))
	buf[0] = byte(kind)
	copy(buf[1:], payload)
	return s.conn.TrySendBinary(buf)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleControl upgrades a browser connection and binds a fresh device
// session controller to it. The "url" (or legacy "ws") query parameter
// pre-fills the endpoint and auto-starts the session.
func (ctl *ControlWSController) HandleControl(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(c.GetString("client_token"))
	log.Info().Str("module", "control").Str("sid", string(sid)).Msg("new control connection")

	autoURL := c.Query("url")
	if autoURL == "" {
		autoURL = c.Query("ws")
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "control").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.Cfg.ReadLimit)

	conn := &wsControlConn{
		conn: ws,
		send: make(chan outFrame, 64),
	}

	ctx, cancel := context.WithCancel(ctx)

	fo := fanout.New(fanout.DropPolicy{}, ctl.Metrics)
	fo.Attach("ws", &wsFrameSink{conn: conn})

	sess := session.New(sid, ctl.hooks(),
		func(state session.State, msg string) { ctl.sendStatus(conn, state, msg) },
		func(g core.Geometry) { ctl.sendSize(conn, g) },
		ctl.Metrics,
	)
	// Delivery faults detach the sink but the session keeps running; the
	// browser still gets told.
	fo.OnFault(func(err error) {
		ctl.sendStatus(conn, sess.State(), "video delivery: "+err.Error())
	})

	entry := &app.Entry{
		Controller: sess,
		Signal:     conn,
		Fanout:     fo,
		Cancel:     cancel,
	}
	ctl.Registry.Bind(sid, entry)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sid, conn, entry)

	if autoURL != "" {
		ctl.startSession(ctx, sid, conn, entry, autoURL, nil)
	}
}
