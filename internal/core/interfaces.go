package core

// Frame is a raw binary payload (e.g., a video frame or an encoded control message).
type Frame []byte

// SessionID identifies one browser control connection and the device session bound to it.
type SessionID string

// SignalConnection abstracts the browser-facing messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues a text (JSON) message without blocking.
	TrySend(Frame) error
	// TrySendBinary queues a binary message (video/audio records) without blocking.
	TrySendBinary(Frame) error
	Close()
}
