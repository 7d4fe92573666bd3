// Package input translates browser pointer/key events into device-native
// input events. Pure functions: no state, no I/O.
package input

import (
	"math"

	"droidview/internal/core"
)

// PointerEvent is a browser pointer event plus the canvas layout metrics it
// was measured against.
type PointerEvent struct {
	Kind      string  `json:"kind"` // down, move, up, leave
	PointerID int64   `json:"pointerId"`
	Mouse     bool    `json:"mouse"`
	Button    int     `json:"button"`
	Buttons   uint32  `json:"buttons"`
	OffsetX   float64 `json:"x"`
	OffsetY   float64 `json:"y"`
	Width     float64 `json:"width"`  // canvas CSS width
	Height    float64 `json:"height"` // canvas CSS height
	Pressure  float64 `json:"pressure"`
}

// KeyPress is a navigation key request from the browser.
type KeyPress struct {
	Keycode uint32 `json:"keycode"`
}

// Pointer converts one pointer event against the current video geometry.
// The second return is false when the event produces no injection: unknown
// kinds, hover moves with no button held, or unusable geometry/metrics.
func Pointer(ev PointerEvent, g core.Geometry) (core.TouchEvent, bool) {
	if !g.Known() || ev.Width <= 0 || ev.Height <= 0 {
		return core.TouchEvent{}, false
	}

	var action core.TouchAction
	switch ev.Kind {
	case "down":
		action = core.TouchDown
	case "move":
		// Hover is not modeled by the device protocol; without a held
		// button there is nothing to inject.
		if ev.Buttons == 0 {
			return core.TouchEvent{}, false
		}
		action = core.TouchMove
	case "up":
		action = core.TouchUp
	case "leave":
		// An off-canvas leave is the only safe place to force the Up that
		// pairs every Down.
		action = core.TouchUp
	default:
		return core.TouchEvent{}, false
	}

	out := core.TouchEvent{
		Action:    action,
		PointerID: ev.PointerID,
		X:         scale(ev.OffsetX, ev.Width, g.Width),
		Y:         scale(ev.OffsetY, ev.Height, g.Height),
		Buttons:   ev.Buttons,
	}
	if ev.Mouse {
		out.PointerID = core.MousePointerID
	}

	if action == core.TouchDown || action == core.TouchUp {
		out.ActionButton = actionButton(ev.Button)
	}
	if action != core.TouchUp {
		out.Pressure = 1
		if ev.Pressure > 0 {
			out.Pressure = ev.Pressure
		}
	}
	return out, true
}

// Key synthesizes the Down/Up pair for a navigation key, both with zero
// meta-state and repeat.
func Key(k KeyPress) [2]core.KeyEvent {
	return [2]core.KeyEvent{
		{Action: core.KeyDown, Keycode: k.Keycode},
		{Action: core.KeyUp, Keycode: k.Keycode},
	}
}

func scale(offset, client float64, device int) int32 {
	return int32(math.Round(offset / client * float64(device)))
}

// actionButton maps the browser button index to the device button bit:
// left 0 to 1, middle 1 to 4, right 2 to 2. Anything else carries no button.
func actionButton(button int) uint32 {
	switch button {
	case 0:
		return 1
	case 1:
		return 4
	case 2:
		return 2
	default:
		return 0
	}
}
