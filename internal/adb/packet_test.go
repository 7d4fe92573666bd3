package adb

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestCodecPreservesOrderAcrossSplitFrames(t *testing.T) {
	want := []Packet{
		{Command: cmdOpen, Arg0: 1, Payload: []byte("shell:id\x00")},
		{Command: cmdWrite, Arg0: 1, Arg1: 2, Payload: []byte("hello world")},
		{Command: cmdOkay, Arg0: 1, Arg1: 2},
	}

	var enc Codec
	var wire []byte
	for _, p := range want {
		wire = append(wire, enc.Encode(p)...)
	}

	// Feed the stream in 7-byte frames so every packet is split and frames
	// carry pieces of adjacent packets.
	var dec Codec
	var got []Packet
	for len(wire) > 0 {
		n := 7
		if n > len(wire) {
			n = len(wire)
		}
		pkts, err := dec.Decode(wire[:n])
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		got = append(got, pkts...)
		wire = wire[n:]
	}

	if len(got) != len(want) {
		t.Fatalf("got %d packets, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Command != want[i].Command || got[i].Arg0 != want[i].Arg0 || got[i].Arg1 != want[i].Arg1 {
			t.Errorf("packet %d header = %+v, want %+v", i, got[i], want[i])
		}
		if !bytes.Equal(got[i].Payload, want[i].Payload) {
			t.Errorf("packet %d payload = %q, want %q", i, got[i].Payload, want[i].Payload)
		}
	}
}

func TestCodecKeepsPacketsBeforeBadFrame(t *testing.T) {
	var enc Codec
	good := enc.Encode(Packet{Command: cmdOkay, Arg0: 1, Arg1: 2})

	bad := enc.Encode(Packet{Command: cmdWrite, Arg0: 1, Arg1: 2, Payload: []byte("x")})
	binary.LittleEndian.PutUint32(bad[20:], 0xdeadbeef) // corrupt the magic

	var dec Codec
	pkts, err := dec.Decode(append(append([]byte{}, good...), bad...))
	if err == nil {
		t.Fatal("expected a decode error")
	}
	if _, ok := err.(*DecodeError); !ok {
		t.Fatalf("error type = %T, want *DecodeError", err)
	}
	if len(pkts) != 1 || pkts[0].Command != cmdOkay {
		t.Fatalf("packets before the bad frame were lost: %+v", pkts)
	}
}

func TestCodecChecksumMismatch(t *testing.T) {
	var enc Codec
	wire := enc.Encode(Packet{Command: cmdWrite, Arg0: 1, Arg1: 2, Payload: []byte("payload")})
	wire[headerLen] ^= 0xff // corrupt the payload, not the header

	var dec Codec
	if _, err := dec.Decode(wire); err == nil {
		t.Fatal("expected a checksum error")
	}
}
