package adb

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// fakeConn is an in-memory PacketConn driven by a scripted responder.
type fakeConn struct {
	in     chan Packet
	onSend func(p Packet)

	mu     sync.Mutex
	sent   []Packet
	closed bool

	closeOnce sync.Once
}

func newFakeConn(onSend func(p Packet)) *fakeConn {
	return &fakeConn{in: make(chan Packet, 32), onSend: onSend}
}

func (f *fakeConn) Packets() <-chan Packet { return f.in }

func (f *fakeConn) Send(p Packet) error {
	f.mu.Lock()
	f.sent = append(f.sent, p)
	f.mu.Unlock()
	if f.onSend != nil {
		f.onSend(p)
	}
	return nil
}

func (f *fakeConn) Err() error { return nil }

func (f *fakeConn) Close() {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.in)
	})
}

func (f *fakeConn) sentCommands() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint32, len(f.sent))
	for i, p := range f.sent {
		out[i] = p.Command
	}
	return out
}

type fakeCreds struct{ signs int }

func (c *fakeCreds) Sign(token []byte) ([]byte, error) {
	c.signs++
	return append([]byte("sig:"), token...), nil
}

func (c *fakeCreds) PublicKey() ([]byte, error) { return []byte("pubkey"), nil }

const testBanner = "device::ro.product.name=sdk;ro.product.model=Pixel 7;features=shell_v2"

func TestConnectTrustedKey(t *testing.T) {
	var fc *fakeConn
	fc = newFakeConn(func(p Packet) {
		switch p.Command {
		case cmdConnect:
			fc.in <- Packet{Command: cmdAuth, Arg0: authToken, Payload: []byte("nonce")}
		case cmdAuth:
			if p.Arg0 != authSignature {
				t.Errorf("auth reply subtype = %d, want signature", p.Arg0)
			}
			fc.in <- Packet{Command: cmdConnect, Arg0: protocolVersion, Arg1: MaxPayload, Payload: []byte(testBanner)}
		}
	})

	creds := &fakeCreds{}
	c, err := Connect(context.Background(), fc, creds)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	if creds.signs != 1 {
		t.Errorf("token signed %d times, want 1", creds.signs)
	}
	d := c.Device()
	if d.Kind != "device" || d.Model != "Pixel 7" || d.Product != "sdk" {
		t.Errorf("device info = %+v", d)
	}
}

func TestConnectFallsBackToPublicKey(t *testing.T) {
	challenges := 0
	var fc *fakeConn
	fc = newFakeConn(func(p Packet) {
		switch p.Command {
		case cmdConnect:
			fc.in <- Packet{Command: cmdAuth, Arg0: authToken, Payload: []byte("nonce")}
		case cmdAuth:
			switch p.Arg0 {
			case authSignature:
				// The daemon does not trust this key; challenge again.
				challenges++
				fc.in <- Packet{Command: cmdAuth, Arg0: authToken, Payload: []byte("nonce2")}
			case authRSAPublicKey:
				if len(p.Payload) == 0 || p.Payload[len(p.Payload)-1] != 0 {
					t.Error("public key payload is not zero-terminated")
				}
				fc.in <- Packet{Command: cmdConnect, Payload: []byte(testBanner)}
			}
		}
	})

	c, err := Connect(context.Background(), fc, &fakeCreds{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()
	if challenges != 1 {
		t.Errorf("signature challenged %d times, want 1", challenges)
	}
}

func TestConnectCanceled(t *testing.T) {
	fc := newFakeConn(nil) // daemon never answers
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Connect(ctx, fc, &fakeCreds{}); err == nil {
		t.Fatal("expected a handshake error")
	}
}

// connectReady wires a fake daemon that accepts the handshake immediately.
func connectReady(t *testing.T, onSend func(fc *fakeConn, p Packet)) (*Client, *fakeConn) {
	t.Helper()
	var fc *fakeConn
	fc = newFakeConn(func(p Packet) {
		if p.Command == cmdConnect {
			fc.in <- Packet{Command: cmdConnect, Payload: []byte(testBanner)}
			return
		}
		if onSend != nil {
			onSend(fc, p)
		}
	})
	c, err := Connect(context.Background(), fc, &fakeCreds{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(c.Close)
	return c, fc
}

func TestStreamOpenWriteRead(t *testing.T) {
	const remoteID = 99
	c, fc := connectReady(t, func(fc *fakeConn, p Packet) {
		switch p.Command {
		case cmdOpen:
			fc.in <- Packet{Command: cmdOkay, Arg0: remoteID, Arg1: p.Arg0}
		case cmdWrite:
			if p.Arg1 != remoteID {
				t.Errorf("write addressed to %d, want %d", p.Arg1, remoteID)
			}
			// Ack, then echo back on the same stream.
			fc.in <- Packet{Command: cmdOkay, Arg0: remoteID, Arg1: p.Arg0}
			fc.in <- Packet{Command: cmdWrite, Arg0: remoteID, Arg1: p.Arg0, Payload: []byte("pong")}
		}
	})

	s, err := c.OpenShell(context.Background(), "echo hi")
	if err != nil {
		t.Fatalf("OpenShell: %v", err)
	}

	if _, err := s.Write([]byte("ping")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 16)
	n, err := s.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "pong" {
		t.Errorf("read %q, want %q", buf[:n], "pong")
	}

	// The inbound write must have been acknowledged back to the daemon.
	deadline := time.Now().Add(time.Second)
	for {
		acked := 0
		for _, cmd := range fc.sentCommands() {
			if cmd == cmdOkay {
				acked++
			}
		}
		if acked >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("inbound write never acknowledged")
		}
		time.Sleep(2 * time.Millisecond)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestStreamRejectedByDaemon(t *testing.T) {
	c, _ := connectReady(t, func(fc *fakeConn, p Packet) {
		if p.Command == cmdOpen {
			fc.in <- Packet{Command: cmdClose, Arg0: 0, Arg1: p.Arg0}
		}
	})

	if _, err := c.OpenStream(context.Background(), "localabstract:missing"); err == nil {
		t.Fatal("expected the open to be rejected")
	}
}

func TestClientCloseUnblocksReaders(t *testing.T) {
	const remoteID = 7
	c, _ := connectReady(t, func(fc *fakeConn, p Packet) {
		if p.Command == cmdOpen {
			fc.in <- Packet{Command: cmdOkay, Arg0: remoteID, Arg1: p.Arg0}
		}
	})

	s, err := c.OpenStream(context.Background(), "sync:")
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}

	readErr := make(chan error, 1)
	go func() {
		_, err := s.Read(make([]byte, 8))
		readErr <- err
	}()

	c.Close()
	select {
	case err := <-readErr:
		if !errors.Is(err, io.EOF) {
			t.Errorf("Read after close: %v, want io.EOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Read still blocked after client close")
	}
}
