package session

import (
	"sync/atomic"

	"droidview/internal/core"
)

// geometryHolder tracks the latest video geometry. Updates are atomic
// replacements pushed by the mirror stream; readers (input translation)
// always see the most recent committed value.
type geometryHolder struct {
	v atomic.Value
}

func (h *geometryHolder) Store(g core.Geometry) {
	h.v.Store(g)
}

func (h *geometryHolder) Load() core.Geometry {
	g, _ := h.v.Load().(core.Geometry)
	return g
}

func (h *geometryHolder) Clear() {
	h.v.Store(core.Geometry{})
}
