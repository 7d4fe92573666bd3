package adb

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// DecodeError is a framing violation on the inbound byte stream.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return "decode: " + e.Reason }

// Codec converts between raw byte frames and Packets. Inbound framing is
// stateful: a single transport frame may carry a partial packet or several
// packets, so the codec buffers and re-frames. Frame order is preserved.
//
// The zero value is ready to use. A Codec is not safe for concurrent use;
// the transport bridge owns one per direction.
type Codec struct {
	buf bytes.Buffer
}

// Encode serializes one outbound packet into a single byte frame.
func (c *Codec) Encode(p Packet) []byte {
	return encodePacket(p)
}

// Decode appends frame to the inbound buffer and extracts every complete
// packet, in order. Partial trailing data is kept for the next call.
func (c *Codec) Decode(frame []byte) ([]Packet, error) {
	c.buf.Write(frame)

	var out []Packet
	for {
		data := c.buf.Bytes()
		if len(data) < headerLen {
			return out, nil
		}
		length := binary.LittleEndian.Uint32(data[12:])
		if length > MaxPayload {
			return out, &DecodeError{Reason: fmt.Sprintf("payload length %d exceeds limit", length)}
		}
		magic := binary.LittleEndian.Uint32(data[20:])
		command := binary.LittleEndian.Uint32(data[0:])
		if magic != ^command {
			return out, &DecodeError{Reason: fmt.Sprintf("bad magic %#x for command %#x", magic, command)}
		}
		if len(data) < headerLen+int(length) {
			return out, nil
		}

		p := Packet{
			Command: command,
			Arg0:    binary.LittleEndian.Uint32(data[4:]),
			Arg1:    binary.LittleEndian.Uint32(data[8:]),
		}
		want := binary.LittleEndian.Uint32(data[16:])
		if length > 0 {
			p.Payload = make([]byte, length)
			copy(p.Payload, data[headerLen:headerLen+length])
		}
		if got := checksum(p.Payload); got != want {
			return out, &DecodeError{Reason: fmt.Sprintf("checksum mismatch: got %#x want %#x", got, want)}
		}
		c.buf.Next(headerLen + int(length))
		out = append(out, p)
	}
}
