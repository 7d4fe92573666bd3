// Package rtc delivers mirror video to the browser over a WebRTC track, for
// clients that negotiate hardware decoding instead of the WebSocket path.
package rtc

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"

	"droidview/internal/core"
)

type Connection struct {
	pc    *webrtc.PeerConnection
	sid   core.SessionID
	track *webrtc.TrackLocalStaticSample
	onICE func(webrtc.ICECandidateInit)
	stop  func() bool

	onClosed func()
}

func DefaultConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// New creates a peer connection carrying one outbound video track in the
// session's negotiated codec.
func New(cfg webrtc.Configuration, sid core.SessionID, codec string) (*Connection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mimeType(codec)},
		"video", "droidview",
	)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	if _, err := pc.AddTrack(track); err != nil {
		_ = pc.Close()
		return nil, err
	}
	return &Connection{pc: pc, sid: sid, track: track}, nil
}

func mimeType(codec string) string {
	switch codec {
	case "h265":
		return webrtc.MimeTypeH265
	case "av1":
		return webrtc.MimeTypeAV1
	default:
		return webrtc.MimeTypeH264
	}
}

// Start configures internal callbacks and binds the connection lifetime to
// ctx: cancelling the control connection closes the peer connection.
func (c *Connection) Start(ctx context.Context) error {
	c.stop = context.AfterFunc(ctx, c.Close)

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("sid", string(c.sid)).Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateDisconnected ||
			s == webrtc.ICEConnectionStateFailed {
			// Peer-connection close fires the closed state, which is what
			// detaches this sink from the fan-out.
			_ = c.pc.Close()
		}
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("sid", string(c.sid)).Str("peer_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			if c.onClosed != nil {
				c.onClosed()
			}
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	return nil
}

// ApplyOfferAndCreateAnswer answers a browser offer, waiting for gathering to
// complete so the answer carries the full candidate set.
func (c *Connection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gatherComplete

	return c.pc.LocalDescription(), nil
}

// WriteFrame implements core.FrameSink: video records become track samples,
// audio records are ignored on this path.
func (c *Connection) WriteFrame(kind core.FrameKind, payload core.Frame) error {
	if kind != core.FrameVideo {
		return nil
	}
	if err := c.track.WriteSample(media.Sample{Data: payload, Duration: time.Second / 60}); err != nil {
		return fmt.Errorf("write sample: %w", err)
	}
	return nil
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

// OnICECandidate sets a callback for newly gathered local ICE candidates.
func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.onICE = fn
}

// OnClosed sets a callback for peer-connection teardown.
func (c *Connection) OnClosed(fn func()) { c.onClosed = fn }

func (c *Connection) Close() {
	if c.stop != nil {
		c.stop()
	}
	if c.pc != nil {
		if err := c.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("sid", string(c.sid)).Msg("close error")
		}
	}
}
