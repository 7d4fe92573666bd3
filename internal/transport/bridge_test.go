package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"droidview/internal/adb"
	"droidview/internal/core"
	"droidview/internal/domain"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newWSServer runs handler against every upgraded connection and returns the
// endpoint a bridge can dial.
func newWSServer(t *testing.T, handler func(*websocket.Conn)) domain.Endpoint {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		handler(conn)
	}))
	t.Cleanup(srv.Close)

	ep, err := domain.ParseEndpoint("ws" + strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("ParseEndpoint: %v", err)
	}
	return ep
}

func closeNormally(conn *websocket.Conn) {
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
}

func TestBridgeDeliversSplitPacketsInOrder(t *testing.T) {
	want := []adb.Packet{
		{Command: 0x4e45504f, Arg0: 1, Payload: []byte("shell:\x00")},
		{Command: 0x45545257, Arg0: 1, Arg1: 2, Payload: []byte("abcdef")},
		{Command: 0x59414b4f, Arg0: 1, Arg1: 2},
	}

	ep := newWSServer(t, func(conn *websocket.Conn) {
		var enc adb.Codec
		var wire []byte
		for _, p := range want {
			wire = append(wire, enc.Encode(p)...)
		}
		// Re-frame arbitrarily: packet boundaries must not matter.
		for _, cut := range [][2]int{{0, 10}, {10, 31}, {31, len(wire)}} {
			if err := conn.WriteMessage(websocket.BinaryMessage, wire[cut[0]:cut[1]]); err != nil {
				return
			}
		}
		closeNormally(conn)
	})

	b, err := Dial(context.Background(), ep)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer b.Close()

	var got []adb.Packet
	for p := range b.Packets() {
		got = append(got, p)
	}
	if b.Err() != nil {
		t.Fatalf("Err() = %v after a clean close", b.Err())
	}
	if len(got) != len(want) {
		t.Fatalf("got %d packets, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Command != want[i].Command || string(got[i].Payload) != string(want[i].Payload) {
			t.Errorf("packet %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestBridgeDialFailureIsTransportError(t *testing.T) {
	ep, err := domain.ParseEndpoint("ws://127.0.0.1:1/ws/1")
	if err != nil {
		t.Fatalf("ParseEndpoint: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = Dial(ctx, ep)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	var te *core.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error type = %T, want *core.TransportError", err)
	}
}

func TestBridgeDecodeFailureTerminatesSequence(t *testing.T) {
	ep := newWSServer(t, func(conn *websocket.Conn) {
		var enc adb.Codec
		good := enc.Encode(adb.Packet{Command: 0x59414b4f, Arg0: 1, Arg1: 2})
		bad := enc.Encode(adb.Packet{Command: 0x59414b4f, Arg0: 1, Arg1: 2})
		binary.LittleEndian.PutUint32(bad[20:], 0) // breaks the magic check
		_ = conn.WriteMessage(websocket.BinaryMessage, append(good, bad...))
		// Keep the socket open; the bridge itself must tear down.
		time.Sleep(100 * time.Millisecond)
		_ = conn.Close()
	})

	b, err := Dial(context.Background(), ep)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer b.Close()

	var got []adb.Packet
	for p := range b.Packets() {
		got = append(got, p)
	}
	if len(got) != 1 {
		t.Fatalf("got %d packets before the bad frame, want 1", len(got))
	}
	var te *core.TransportError
	if !errors.As(b.Err(), &te) {
		t.Fatalf("Err() = %v, want *core.TransportError", b.Err())
	}
}

func TestBridgeCloseReleasesAbandonedReadLoop(t *testing.T) {
	var enc adb.Codec
	wire := enc.Encode(adb.Packet{Command: 0x59414b4f, Arg0: 1, Arg1: 2})

	ep := newWSServer(t, func(conn *websocket.Conn) {
		// Far more packets than the inbound buffer holds, then keep the
		// socket open so only Close can end the read loop.
		for i := 0; i < 100; i++ {
			if err := conn.WriteMessage(websocket.BinaryMessage, wire); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	before := runtime.NumGoroutine()
	b, err := Dial(context.Background(), ep)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	// Never consume Packets: the buffer fills and delivery parks.
	time.Sleep(50 * time.Millisecond)
	b.Close()

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before {
		if time.Now().After(deadline) {
			t.Fatal("read loop still running after Close with an abandoned packet channel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBridgeCloseIsIdempotent(t *testing.T) {
	ep := newWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	b, err := Dial(context.Background(), ep)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	b.Close()
	b.Close()

	for range b.Packets() {
	}
}
