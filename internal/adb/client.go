package adb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"

	"droidview/internal/core"
	"droidview/internal/domain"
)

// PacketConn is the duplex packet transport the client runs over. The
// transport bridge implements it; tests substitute in-memory fakes.
type PacketConn interface {
	// Packets is the inbound packet sequence. It is closed when the
	// underlying socket closes; Err reports a mid-stream failure, if any.
	Packets() <-chan Packet
	Send(Packet) error
	Err() error
	Close()
}

// Client is an authenticated device-protocol connection multiplexing streams
// over a PacketConn. It implements core.DeviceClient.
type Client struct {
	conn       PacketConn
	device     domain.DeviceInfo
	maxPayload uint32

	mu      sync.Mutex
	streams map[uint32]*Stream
	nextID  uint32

	done      chan struct{}
	closeOnce sync.Once
}

const hostBanner = "host::features=shell_v2,cmd"

// Connect runs the authentication handshake and returns a ready client.
// The token-signing exchange is delegated to creds; a daemon that does not
// trust the key gets the public key for user confirmation on the device.
func Connect(ctx context.Context, conn PacketConn, creds core.CredentialStore) (*Client, error) {
	c := &Client{
		conn:       conn,
		maxPayload: 256 * 1024,
		streams:    make(map[uint32]*Stream),
		done:       make(chan struct{}),
	}

	err := conn.Send(Packet{
		Command: cmdConnect,
		Arg0:    protocolVersion,
		Arg1:    MaxPayload,
		Payload: []byte(hostBanner),
	})
	if err != nil {
		return nil, &core.AuthError{Err: err}
	}

	signed := false
	for {
		select {
		case <-ctx.Done():
			return nil, &core.AuthError{Err: ctx.Err()}
		case p, ok := <-conn.Packets():
			if !ok {
				err := conn.Err()
				if err == nil {
					err = errors.New("connection closed during handshake")
				}
				return nil, &core.AuthError{Err: err}
			}
			switch p.Command {
			case cmdAuth:
				if p.Arg0 != authToken {
					return nil, &core.AuthError{Err: fmt.Errorf("unexpected auth subtype %d", p.Arg0)}
				}
				if err := c.answerChallenge(creds, p.Payload, &signed); err != nil {
					return nil, &core.AuthError{Err: err}
				}
			case cmdConnect:
				if p.Arg1 > 0 && p.Arg1 < c.maxPayload {
					c.maxPayload = p.Arg1
				}
				c.device = parseBanner(p.Payload)
				go c.demux()
				log.Info().Str("module", "adb").
					Str("kind", c.device.Kind).Str("model", c.device.Model).
					Msg("authenticated")
				return c, nil
			default:
				// Stray packets before the handshake completes are ignored.
			}
		}
	}
}

// answerChallenge signs the daemon token on the first round and falls back to
// sending the public key when the daemon challenges again.
func (c *Client) answerChallenge(creds core.CredentialStore, token []byte, signed *bool) error {
	if !*signed {
		sig, err := creds.Sign(token)
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}
		*signed = true
		return c.conn.Send(Packet{Command: cmdAuth, Arg0: authSignature, Payload: sig})
	}
	pub, err := creds.PublicKey()
	if err != nil {
		return fmt.Errorf("public key: %w", err)
	}
	return c.conn.Send(Packet{Command: cmdAuth, Arg0: authRSAPublicKey, Payload: append(pub, 0)})
}

// Device returns metadata parsed from the daemon's connection banner.
func (c *Client) Device() domain.DeviceInfo { return c.device }

// OpenShell starts a shell subprocess on the device.
func (c *Client) OpenShell(ctx context.Context, cmd string) (io.ReadWriteCloser, error) {
	return c.OpenStream(ctx, "shell:"+cmd)
}

// OpenSocket connects to a device-local abstract socket.
func (c *Client) OpenSocket(ctx context.Context, name string) (io.ReadWriteCloser, error) {
	return c.OpenStream(ctx, "localabstract:"+name)
}

// OpenStream opens a protocol stream to the given destination and waits for
// the daemon to accept or reject it.
func (c *Client) OpenStream(ctx context.Context, dest string) (*Stream, error) {
	c.mu.Lock()
	c.nextID++
	s := newStream(c, c.nextID)
	c.streams[s.localID] = s
	c.mu.Unlock()

	err := c.conn.Send(Packet{
		Command: cmdOpen,
		Arg0:    s.localID,
		Payload: append([]byte(dest), 0),
	})
	if err != nil {
		c.unregister(s.localID)
		return nil, err
	}

	select {
	case <-s.ready:
		return s, nil
	case <-s.closed:
		c.unregister(s.localID)
		return nil, fmt.Errorf("stream %q rejected by device", dest)
	case <-c.done:
		c.unregister(s.localID)
		return nil, errors.New("client closed")
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}
}

// Close tears down every stream and the underlying transport. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		streams := make([]*Stream, 0, len(c.streams))
		for _, s := range c.streams {
			streams = append(streams, s)
		}
		c.streams = make(map[uint32]*Stream)
		c.mu.Unlock()
		for _, s := range streams {
			s.markClosed()
		}
		c.conn.Close()
		log.Info().Str("module", "adb").Msg("client closed")
	})
}

func (c *Client) lookup(localID uint32) *Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streams[localID]
}

func (c *Client) unregister(localID uint32) {
	c.mu.Lock()
	delete(c.streams, localID)
	c.mu.Unlock()
}

// demux routes inbound packets to streams by our local stream id (arg1).
func (c *Client) demux() {
	defer func() {
		c.mu.Lock()
		streams := make([]*Stream, 0, len(c.streams))
		for _, s := range c.streams {
			streams = append(streams, s)
		}
		c.mu.Unlock()
		for _, s := range streams {
			s.markClosed()
		}
	}()

	for {
		select {
		case <-c.done:
			return
		case p, ok := <-c.conn.Packets():
			if !ok {
				return
			}
			c.dispatch(p)
		}
	}
}

func (c *Client) dispatch(p Packet) {
	switch p.Command {
	case cmdOkay:
		if s := c.lookup(p.Arg1); s != nil {
			s.onOkay(p.Arg0)
		}
	case cmdWrite:
		s := c.lookup(p.Arg1)
		if s == nil {
			_ = c.conn.Send(Packet{Command: cmdClose, Arg1: p.Arg0})
			return
		}
		s.deliver(p.Payload)
		_ = c.conn.Send(Packet{Command: cmdOkay, Arg0: s.localID, Arg1: s.remoteID})
	case cmdClose:
		if s := c.lookup(p.Arg1); s != nil {
			c.unregister(s.localID)
			s.markClosed()
		}
	default:
		log.Debug().Str("module", "adb").Uint32("command", p.Command).Msg("unexpected packet")
	}
}
