// Package transport adapts a single WebSocket connection into a duplex stream
// of device-protocol packets. Pure I/O adaptation: framing is delegated to the
// protocol codec, and no protocol semantics live here.
package transport

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"droidview/internal/adb"
	"droidview/internal/core"
	"droidview/internal/domain"
)

// Bridge owns exactly one WebSocket and exposes it as an adb.PacketConn.
// The inbound packet sequence is forward-only: the channel closes when the
// socket closes, and Err reports a mid-stream decode or socket failure.
type Bridge struct {
	conn    *websocket.Conn
	packets chan adb.Packet
	done    chan struct{}

	wmu   sync.Mutex
	codec adb.Codec // outbound encoder; the read loop owns its own

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

// Dial opens the socket and resolves only once it is open-ready. A dial
// failure is a *core.TransportError.
func Dial(ctx context.Context, endpoint domain.Endpoint) (*Bridge, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, &core.TransportError{Op: "dial", Err: err}
	}

	b := &Bridge{
		conn:    conn,
		packets: make(chan adb.Packet, 32),
		done:    make(chan struct{}),
	}
	go b.readLoop()
	log.Info().Str("module", "transport").Str("endpoint", endpoint.String()).Msg("connected")
	return b, nil
}

// Packets returns the inbound decoded packet sequence. Frame order is
// preserved; frames are never merged or reordered by the bridge.
func (b *Bridge) Packets() <-chan adb.Packet { return b.packets }

// Send encodes one packet and writes it to the socket. Back-pressure is the
// socket's own buffering; no extra queue is introduced.
func (b *Bridge) Send(p adb.Packet) error {
	b.wmu.Lock()
	defer b.wmu.Unlock()
	if err := b.conn.WriteMessage(websocket.BinaryMessage, b.codec.Encode(p)); err != nil {
		return &core.TransportError{Op: "send", Err: err}
	}
	return nil
}

// Err reports the failure that terminated the inbound sequence, if any.
// A clean remote close leaves it nil.
func (b *Bridge) Err() error {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	return b.err
}

// Close closes the socket. Idempotent; never fails. A read loop parked on
// packet delivery is released even when the consumer abandoned the channel.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
		b.wmu.Lock()
		_ = b.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		b.wmu.Unlock()
		_ = b.conn.Close()
		log.Info().Str("module", "transport").Msg("closed")
	})
}

func (b *Bridge) setErr(err error) {
	b.errMu.Lock()
	if b.err == nil {
		b.err = err
	}
	b.errMu.Unlock()
}

func (b *Bridge) readLoop() {
	defer close(b.packets)
	var codec adb.Codec
	for {
		mt, data, err := b.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.setErr(&core.TransportError{Op: "read", Err: err})
			}
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		pkts, err := codec.Decode(data)
		// Packets completed before the bad frame are still delivered. The
		// consumer may have abandoned the channel; Close unparks the send.
		for _, p := range pkts {
			select {
			case b.packets <- p:
			case <-b.done:
				return
			}
		}
		if err != nil {
			b.setErr(&core.TransportError{Op: "decode", Err: err})
			_ = b.conn.Close()
			return
		}
	}
}
