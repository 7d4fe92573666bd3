package core

// Device-native input events, as accepted by the mirroring agent's control socket.
// Values follow Android MotionEvent/KeyEvent action codes.

type TouchAction uint8

const (
	TouchDown TouchAction = 0
	TouchUp   TouchAction = 1
	TouchMove TouchAction = 2
)

// MousePointerID is the reserved pointer identifier for mouse-origin events,
// so the mouse always looks like the same single finger to the device.
const MousePointerID int64 = 0

// TouchEvent is a single pointer injection. X/Y are device pixels.
type TouchEvent struct {
	Action       TouchAction
	PointerID    int64
	X            int32
	Y            int32
	Pressure     float64 // 0..1
	ActionButton uint32  // button that caused Down/Up; always 0 on Move
	Buttons      uint32  // live pressed-buttons bitmask
}

type KeyAction uint8

const (
	KeyDown KeyAction = 0
	KeyUp   KeyAction = 1
)

// KeyEvent is a single key injection.
type KeyEvent struct {
	Action    KeyAction
	Keycode   uint32
	Repeat    uint32
	MetaState uint32
}
