package mirror

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"droidview/internal/config"
	"droidview/internal/core"
)

// Video socket record types.
const (
	recVideo  byte = 0
	recResize byte = 1
	recAudio  byte = 2
)

const maxRecord = 8 * 1024 * 1024

// The agent needs a moment to boot before its socket accepts connections.
const (
	socketRetries = 50
	socketBackoff = 100 * time.Millisecond
)

// Client is a started mirroring agent. It implements core.MirrorClient.
type Client struct {
	shell   io.ReadWriteCloser
	video   io.ReadWriteCloser
	control io.ReadWriteCloser
	meta    core.VideoMeta

	wmu       sync.Mutex
	closeOnce sync.Once
}

// Start launches the agent over a device shell with the given settings
// snapshot, then accepts its video and control sockets. A missing or
// malformed video socket is reported as "no video stream".
func Start(ctx context.Context, device core.DeviceClient, settings config.SessionSettings) (*Client, error) {
	cmd := agentCommand(settings)
	shell, err := device.OpenShell(ctx, cmd)
	if err != nil {
		return nil, &core.AgentStartError{Reason: "agent launch failed", Err: err}
	}
	go drainAgentLog(shell)

	video, err := openAgentSocket(ctx, device)
	if err != nil {
		_ = shell.Close()
		return nil, &core.AgentStartError{Reason: "no video stream", Err: err}
	}

	meta, err := readVideoMeta(video)
	if err != nil {
		_ = video.Close()
		_ = shell.Close()
		return nil, &core.AgentStartError{Reason: "no video stream", Err: err}
	}

	control, err := device.OpenSocket(ctx, SocketName)
	if err != nil {
		_ = video.Close()
		_ = shell.Close()
		return nil, &core.AgentStartError{Reason: "control socket failed", Err: err}
	}

	log.Info().Str("module", "mirror").
		Str("codec", meta.Codec).
		Int("width", meta.Geometry.Width).Int("height", meta.Geometry.Height).
		Msg("agent started")

	return &Client{shell: shell, video: video, control: control, meta: meta}, nil
}

func agentCommand(s config.SessionSettings) string {
	return fmt.Sprintf(
		"CLASSPATH=%s app_process / app.droidview.Agent"+
			" max_size=%d bit_rate=%d max_fps=%d audio=%t codec=%s",
		DevicePath, s.MaxSize, s.VideoBitRate, s.MaxFPS, s.Audio, s.VideoCodec,
	)
}

// openAgentSocket retries while the agent boots; the device refuses the
// abstract socket until the agent is listening.
func openAgentSocket(ctx context.Context, device core.DeviceClient) (io.ReadWriteCloser, error) {
	var lastErr error
	for i := 0; i < socketRetries; i++ {
		conn, err := device.OpenSocket(ctx, SocketName)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(socketBackoff):
		}
	}
	return nil, lastErr
}

// readVideoMeta reads the 12-byte preamble: codec id, width, height.
func readVideoMeta(r io.Reader) (core.VideoMeta, error) {
	var pre [12]byte
	if _, err := io.ReadFull(r, pre[:]); err != nil {
		return core.VideoMeta{}, err
	}
	meta := core.VideoMeta{
		Codec: codecName(binary.BigEndian.Uint32(pre[0:])),
		Geometry: core.Geometry{
			Width:  int(binary.BigEndian.Uint32(pre[4:])),
			Height: int(binary.BigEndian.Uint32(pre[8:])),
		},
	}
	if !meta.Geometry.Known() {
		return core.VideoMeta{}, fmt.Errorf("agent reported empty geometry")
	}
	return meta, nil
}

func codecName(id uint32) string {
	switch id {
	case 0:
		return "h264"
	case 1:
		return "h265"
	case 2:
		return "av1"
	default:
		return fmt.Sprintf("unknown(%d)", id)
	}
}

// Meta returns the agent-reported codec and initial video geometry.
func (c *Client) Meta() core.VideoMeta { return c.meta }

// Demux pumps the video socket until ctx is done or the socket fails.
// Sink errors are logged and skipped: pipeline faults never terminate the
// stream from this side.
func (c *Client) Demux(ctx context.Context, sink core.FrameSink, onResize func(core.Geometry)) error {
	stop := context.AfterFunc(ctx, func() { _ = c.video.Close() })
	defer stop()

	br := bufio.NewReaderSize(c.video, 64*1024)
	var hdr [5]byte
	for {
		if _, err := io.ReadFull(br, hdr[:]); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("video stream: %w", err)
		}
		length := binary.BigEndian.Uint32(hdr[1:])
		if length > maxRecord {
			return fmt.Errorf("video stream: record length %d exceeds limit", length)
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(br, payload); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("video stream: %w", err)
		}

		switch hdr[0] {
		case recVideo:
			if err := sink.WriteFrame(core.FrameVideo, payload); err != nil {
				log.Debug().Err(err).Str("module", "mirror").Msg("video sink error")
			}
		case recResize:
			if length < 8 {
				return fmt.Errorf("video stream: short resize record")
			}
			g := core.Geometry{
				Width:  int(binary.BigEndian.Uint32(payload[0:])),
				Height: int(binary.BigEndian.Uint32(payload[4:])),
			}
			log.Info().Str("module", "mirror").Int("width", g.Width).Int("height", g.Height).Msg("resize")
			onResize(g)
		case recAudio:
			if err := sink.WriteFrame(core.FrameAudio, payload); err != nil {
				log.Debug().Err(err).Str("module", "mirror").Msg("audio sink error")
			}
		default:
			// Unknown record types from newer agents are skipped.
		}
	}
}

// Inject delivers one touch event to the agent's control socket.
func (c *Client) Inject(ev core.TouchEvent, g core.Geometry) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.control.Write(encodeTouch(ev, g)); err != nil {
		return &core.InjectionError{Err: err}
	}
	return nil
}

// InjectKey delivers one key event to the agent's control socket.
func (c *Client) InjectKey(ev core.KeyEvent) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.control.Write(encodeKey(ev)); err != nil {
		return &core.InjectionError{Err: err}
	}
	return nil
}

// Close releases the control, video and shell streams. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.control.Close()
		_ = c.video.Close()
		_ = c.shell.Close()
		log.Info().Str("module", "mirror").Msg("agent client closed")
	})
}

// drainAgentLog surfaces the agent's stdout/stderr lines in our log.
func drainAgentLog(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		log.Debug().Str("module", "mirror").Str("agent", sc.Text()).Msg("agent output")
	}
}
