package core

// Geometry is the current size of the mirrored video stream, in device pixels.
// The zero value means "unknown"; input translation refuses to run against it.
type Geometry struct {
	Width  int
	Height int
}

// Known reports whether the geometry carries a usable size.
func (g Geometry) Known() bool {
	return g.Width > 0 && g.Height > 0
}
