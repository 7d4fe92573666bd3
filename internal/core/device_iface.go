package core

import (
	"context"
	"io"

	"droidview/internal/domain"
)

// DeviceClient is an authenticated device-protocol client.
// Owned by the session controller; the controller must Close() it.
type DeviceClient interface {
	// Device returns metadata parsed from the daemon's connection banner.
	Device() domain.DeviceInfo
	// Push streams payload to devicePath through a file-transfer session.
	// The file-transfer session is released whether the write succeeds or fails.
	Push(ctx context.Context, devicePath string, payload []byte) error
	// OpenShell starts a shell subprocess on the device and returns its stream.
	OpenShell(ctx context.Context, cmd string) (io.ReadWriteCloser, error)
	// OpenSocket connects to a device-local abstract socket.
	OpenSocket(ctx context.Context, name string) (io.ReadWriteCloser, error)
	Close()
}

// CredentialStore signs device-protocol authentication tokens.
// Key management and signature internals are the store's concern.
type CredentialStore interface {
	Sign(token []byte) ([]byte, error)
	PublicKey() ([]byte, error)
}
