package core

import "context"

// FrameKind distinguishes record types on the mirror stream.
type FrameKind uint8

const (
	FrameVideo FrameKind = 0
	FrameAudio FrameKind = 2
)

// VideoMeta is what the agent reports before the first frame.
type VideoMeta struct {
	Codec    string
	Geometry Geometry
}

// FrameSink accepts demuxed mirror records. Writable sink semantics: a sink
// error is the sink's problem, it never terminates the producing stream.
type FrameSink interface {
	WriteFrame(kind FrameKind, payload Frame) error
}

// MirrorClient is a started mirroring agent with live video and control sockets.
// Owned by the session controller; the controller must Close() it.
type MirrorClient interface {
	// Meta returns the agent-reported codec and initial video geometry.
	Meta() VideoMeta
	// Demux pumps the video socket into sink and invokes onResize for each
	// size-change record. It returns when ctx is done or the socket fails.
	Demux(ctx context.Context, sink FrameSink, onResize func(Geometry)) error
	// Inject delivers one touch event. The current geometry is required because
	// the wire format carries the screen size the coordinates refer to.
	Inject(ev TouchEvent, g Geometry) error
	// InjectKey delivers one key event.
	InjectKey(ev KeyEvent) error
	Close()
}
