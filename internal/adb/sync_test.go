package adb

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

// devicePushPeer speaks the device side of a file-transfer session, collecting
// the path spec and payload, then answering with the given reply.
func devicePushPeer(t *testing.T, conn net.Conn, replyID string, replyMsg string) (spec chan string, data chan []byte) {
	t.Helper()
	spec = make(chan string, 1)
	data = make(chan []byte, 1)
	go func() {
		defer conn.Close()
		readReq := func() (string, uint32, []byte, error) {
			var hdr [8]byte
			if _, err := io.ReadFull(conn, hdr[:]); err != nil {
				return "", 0, nil, err
			}
			id := string(hdr[:4])
			n := binary.LittleEndian.Uint32(hdr[4:])
			var body []byte
			if id == "SEND" || id == "DATA" {
				body = make([]byte, n)
				if _, err := io.ReadFull(conn, body); err != nil {
					return "", 0, nil, err
				}
			}
			return id, n, body, nil
		}

		var payload []byte
		for {
			id, n, body, err := readReq()
			if err != nil {
				t.Errorf("device peer read: %v", err)
				return
			}
			switch id {
			case "SEND":
				spec <- string(body)
			case "DATA":
				payload = append(payload, body...)
			case "DONE":
				_ = n
				data <- payload
				reply := make([]byte, 8+len(replyMsg))
				copy(reply, replyID)
				binary.LittleEndian.PutUint32(reply[4:], uint32(len(replyMsg)))
				copy(reply[8:], replyMsg)
				if _, err := conn.Write(reply); err != nil {
					t.Errorf("device peer write: %v", err)
				}
				return
			default:
				t.Errorf("device peer: unexpected request %q", id)
				return
			}
		}
	}()
	return spec, data
}

func TestRunSyncPushChunksAndCompletes(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	payload := bytes.Repeat([]byte{0xab}, syncChunk+1000) // forces two DATA chunks
	spec, data := devicePushPeer(t, server, "OKAY", "")

	if err := runSyncPush(client, "/data/local/tmp/agent.jar", payload, time.Unix(1234, 0)); err != nil {
		t.Fatalf("runSyncPush: %v", err)
	}

	if got := <-spec; got != "/data/local/tmp/agent.jar,493" {
		t.Errorf("path spec = %q", got)
	}
	if got := <-data; !bytes.Equal(got, payload) {
		t.Errorf("device received %d bytes, want %d", len(got), len(payload))
	}
}

func TestRunSyncPushDeviceFailure(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	devicePushPeer(t, server, "FAIL", "read-only file system")

	err := runSyncPush(client, "/system/agent.jar", []byte("x"), time.Unix(0, 0))
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "read-only file system") {
		t.Errorf("error %q does not carry the device message", err)
	}
}
