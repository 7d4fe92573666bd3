package mirror

import (
	"encoding/binary"
	"math"

	"droidview/internal/core"
)

// Control socket message types.
const (
	ctrlMsgKey   byte = 0
	ctrlMsgTouch byte = 2
)

// encodeTouch serializes one touch injection. The screen size the coordinates
// refer to travels with the event so the agent can reject stale geometry.
func encodeTouch(ev core.TouchEvent, g core.Geometry) []byte {
	buf := make([]byte, 32)
	buf[0] = ctrlMsgTouch
	buf[1] = byte(ev.Action)
	binary.BigEndian.PutUint64(buf[2:], uint64(ev.PointerID))
	binary.BigEndian.PutUint32(buf[10:], uint32(ev.X))
	binary.BigEndian.PutUint32(buf[14:], uint32(ev.Y))
	binary.BigEndian.PutUint16(buf[18:], uint16(g.Width))
	binary.BigEndian.PutUint16(buf[20:], uint16(g.Height))
	binary.BigEndian.PutUint16(buf[22:], pressureFixedPoint(ev.Pressure))
	binary.BigEndian.PutUint32(buf[24:], ev.ActionButton)
	binary.BigEndian.PutUint32(buf[28:], ev.Buttons)
	return buf
}

// encodeKey serializes one key injection.
func encodeKey(ev core.KeyEvent) []byte {
	buf := make([]byte, 14)
	buf[0] = ctrlMsgKey
	buf[1] = byte(ev.Action)
	binary.BigEndian.PutUint32(buf[2:], ev.Keycode)
	binary.BigEndian.PutUint32(buf[6:], ev.Repeat)
	binary.BigEndian.PutUint32(buf[10:], ev.MetaState)
	return buf
}

// pressureFixedPoint maps 0..1 to an unsigned 16-bit fixed-point value.
func pressureFixedPoint(p float64) uint16 {
	if p <= 0 {
		return 0
	}
	if p >= 1 {
		return 0xffff
	}
	return uint16(math.Round(p * 0xffff))
}
