package adb

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"droidview/internal/core"
)

// File-transfer service over a "sync:" stream. Requests and replies are
// 4-byte ASCII ids followed by a little-endian uint32 length/value.

const syncChunk = 64 * 1024

// Push streams payload to devicePath through a file-transfer session.
// Scoped acquisition: the session is released (QUIT + stream close) whether
// the write succeeds or fails.
func (c *Client) Push(ctx context.Context, devicePath string, payload []byte) error {
	s, err := c.OpenStream(ctx, "sync:")
	if err != nil {
		return &core.PushError{Op: "open", Err: err}
	}
	defer func() {
		_ = writeSyncReq(s, "QUIT", 0, nil)
		_ = s.Close()
	}()

	if err := runSyncPush(s, devicePath, payload, time.Now()); err != nil {
		return &core.PushError{Op: "write", Err: err}
	}
	return nil
}

// runSyncPush performs the SEND/DATA/DONE exchange on an already-open sync
// stream. Split out so tests can drive it over an in-memory pipe.
func runSyncPush(rw io.ReadWriter, devicePath string, payload []byte, mtime time.Time) error {
	spec := fmt.Sprintf("%s,%d", devicePath, 0o755)
	if err := writeSyncReq(rw, "SEND", uint32(len(spec)), []byte(spec)); err != nil {
		return err
	}

	for len(payload) > 0 {
		chunk := payload
		if len(chunk) > syncChunk {
			chunk = chunk[:syncChunk]
		}
		if err := writeSyncReq(rw, "DATA", uint32(len(chunk)), chunk); err != nil {
			return err
		}
		payload = payload[len(chunk):]
	}

	if err := writeSyncReq(rw, "DONE", uint32(mtime.Unix()), nil); err != nil {
		return err
	}

	var reply [8]byte
	if _, err := io.ReadFull(rw, reply[:]); err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	id := string(reply[:4])
	n := binary.LittleEndian.Uint32(reply[4:])
	switch id {
	case "OKAY":
		return nil
	case "FAIL":
		msg := make([]byte, n)
		if _, err := io.ReadFull(rw, msg); err != nil {
			return fmt.Errorf("device rejected push")
		}
		return fmt.Errorf("device rejected push: %s", msg)
	default:
		return fmt.Errorf("unexpected sync reply %q", id)
	}
}

func writeSyncReq(w io.Writer, id string, arg uint32, data []byte) error {
	buf := make([]byte, 8+len(data))
	copy(buf, id)
	binary.LittleEndian.PutUint32(buf[4:], arg)
	copy(buf[8:], data)
	_, err := w.Write(buf)
	return err
}
