package control

import (
	"errors"
	"testing"

	"droidview/internal/app/fanout"
	"droidview/internal/core"
)

func TestTrySendBackpressure(t *testing.T) {
	conn := &wsControlConn{send: make(chan outFrame, 1)}

	if err := conn.TrySend(core.Frame(`{"type":"status"}`)); err != nil {
		t.Fatalf("TrySend with room: %v", err)
	}
	err := conn.TrySendBinary(core.Frame("frame"))
	if !errors.Is(err, fanout.ErrBackpressure) {
		t.Fatalf("TrySend on a full queue: %v, want backpressure", err)
	}

	// A full queue never blocks and never closes the connection.
	<-conn.send
	if err := conn.TrySendBinary(core.Frame("frame")); err != nil {
		t.Fatalf("TrySend after drain: %v", err)
	}
}

func TestFrameSinkPrefixesKind(t *testing.T) {
	conn := &wsControlConn{send: make(chan outFrame, 4)}
	sink := &wsFrameSink{conn: conn}

	if err := sink.WriteFrame(core.FrameAudio, core.Frame("pcm")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	f := <-conn.send
	if !f.binary {
		t.Error("video record sent as a text frame")
	}
	if string(f.data) != "\x02pcm" {
		t.Errorf("wire frame = %q", f.data)
	}
}
