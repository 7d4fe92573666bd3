package adb

import (
	"io"
	"sync"
)

// Stream is one multiplexed protocol stream. It implements io.ReadWriteCloser.
// Writes observe the protocol's per-packet acknowledgement flow control.
type Stream struct {
	c        *Client
	localID  uint32
	remoteID uint32

	ready     chan struct{} // closed by the first OKAY (open accepted)
	readyOnce sync.Once
	ack       chan struct{} // write acknowledgements

	in   chan []byte
	rbuf []byte

	closed    chan struct{}
	closeOnce sync.Once
}

func newStream(c *Client, localID uint32) *Stream {
	return &Stream{
		c:       c,
		localID: localID,
		ready:   make(chan struct{}),
		ack:     make(chan struct{}, 1),
		in:      make(chan []byte, 32),
		closed:  make(chan struct{}),
	}
}

// onOkay handles an OKAY from the daemon: the first one accepts the open,
// later ones acknowledge writes.
func (s *Stream) onOkay(remoteID uint32) {
	accepted := false
	s.readyOnce.Do(func() {
		s.remoteID = remoteID
		close(s.ready)
		accepted = true
	})
	if accepted {
		return
	}
	select {
	case s.ack <- struct{}{}:
	default:
	}
}

func (s *Stream) deliver(payload []byte) {
	select {
	case s.in <- payload:
	case <-s.closed:
	}
}

func (s *Stream) Read(p []byte) (int, error) {
	for len(s.rbuf) == 0 {
		// Drain anything already delivered before reporting EOF.
		select {
		case d := <-s.in:
			s.rbuf = d
			continue
		default:
		}
		select {
		case d := <-s.in:
			s.rbuf = d
		case <-s.closed:
			return 0, io.EOF
		}
	}
	n := copy(p, s.rbuf)
	s.rbuf = s.rbuf[n:]
	return n, nil
}

func (s *Stream) Write(p []byte) (int, error) {
	total := 0
	max := int(s.c.maxPayload)
	for len(p) > 0 {
		chunk := p
		if len(chunk) > max {
			chunk = chunk[:max]
		}
		select {
		case <-s.closed:
			return total, io.ErrClosedPipe
		default:
		}
		err := s.c.conn.Send(Packet{
			Command: cmdWrite,
			Arg0:    s.localID,
			Arg1:    s.remoteID,
			Payload: chunk,
		})
		if err != nil {
			return total, err
		}
		select {
		case <-s.ack:
		case <-s.closed:
			return total, io.ErrClosedPipe
		}
		total += len(chunk)
		p = p[len(chunk):]
	}
	return total, nil
}

// Close sends CLSE to the daemon and releases the stream. Idempotent.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		_ = s.c.conn.Send(Packet{Command: cmdClose, Arg0: s.localID, Arg1: s.remoteID})
		s.c.unregister(s.localID)
		close(s.closed)
	})
	return nil
}

// markClosed releases the stream without notifying the daemon, for when the
// whole connection is already gone.
func (s *Stream) markClosed() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
}
