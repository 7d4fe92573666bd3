package control

import (
	"context"
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"droidview/internal/adapters/rtc"
	"droidview/internal/app"
	"droidview/internal/app/session"
	"droidview/internal/core"
	"droidview/internal/domain"
	"droidview/internal/input"
)

func (ctl *ControlWSController) handleMessage(ctx context.Context, sid core.SessionID, c *wsControlConn, entry *app.Entry, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "control").Msg("bad json")
		return
	}

	switch env.Type {
	case "start":
		ctl.handleStart(ctx, sid, c, entry, data)
	case "stop":
		entry.Controller.Stop()
	case "pointer":
		ctl.handlePointer(entry, data)
	case "key":
		ctl.handleKey(entry, data)
	case "offer":
		ctl.handleOffer(ctx, sid, c, entry, data)
	case "candidate":
		ctl.handleCandidate(entry, data)
	case "ping":
		ctl.sendJSON(c, map[string]string{"type": "pong"})
	default:
		log.Warn().Str("module", "control").Str("type", env.Type).Msg("unknown message")
	}
}

func (ctl *ControlWSController) handleStart(ctx context.Context, sid core.SessionID, c *wsControlConn, entry *app.Entry, data []byte) {
	var p struct {
		Type     string          `json:"type"`
		URL      string          `json:"url"`
		Settings json.RawMessage `json:"settings"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "control").Msg("bad start payload")
		return
	}
	ctl.startSession(ctx, sid, c, entry, p.URL, p.Settings)
}

func (ctl *ControlWSController) startSession(ctx context.Context, sid core.SessionID, c *wsControlConn, entry *app.Entry, rawURL string, rawSettings json.RawMessage) {
	endpoint, err := domain.ParseEndpoint(rawURL)
	if err != nil {
		ctl.sendStatus(c, session.StateIdle, "invalid endpoint: "+err.Error())
		return
	}

	// Settings present in the message override the server defaults; the
	// merged value is the session's immutable snapshot.
	settings := ctl.Cfg.Snapshot()
	if len(rawSettings) > 0 {
		if err := json.Unmarshal(rawSettings, &settings); err != nil {
			ctl.sendStatus(c, session.StateIdle, "invalid settings: "+err.Error())
			return
		}
	}

	log.Info().Str("module", "control").Str("sid", string(sid)).
		Str("endpoint", endpoint.String()).Msg("session start requested")
	if !entry.Controller.Start(ctx, endpoint, settings, entry.Fanout) {
		ctl.sendStatus(c, entry.Controller.State(), "session already in flight")
	}
}

func (ctl *ControlWSController) handlePointer(entry *app.Entry, data []byte) {
	var p struct {
		Type string `json:"type"`
		input.PointerEvent
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "control").Msg("bad pointer payload")
		return
	}
	entry.Controller.InjectPointer(p.PointerEvent)
}

func (ctl *ControlWSController) handleKey(entry *app.Entry, data []byte) {
	var p struct {
		Type    string `json:"type"`
		Keycode uint32 `json:"keycode"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "control").Msg("bad key payload")
		return
	}
	entry.Controller.InjectKey(p.Keycode)
}

// handleOffer switches video delivery to a WebRTC track: the browser decodes
// in hardware instead of the WASM path fed over the WebSocket.
func (ctl *ControlWSController) handleOffer(ctx context.Context, sid core.SessionID, c *wsControlConn, entry *app.Entry, data []byte) {
	var p struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "control").Msg("bad offer payload")
		return
	}

	rc, err := rtc.New(rtc.DefaultConfig(), sid, entry.Controller.Settings().VideoCodec)
	if err != nil {
		log.Error().Err(err).Str("module", "control").Msg("rtc new")
		return
	}

	rc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		ctl.sendCandidate(c, ci)
	})
	rc.OnClosed(func() {
		entry.Fanout.Detach("rtc")
		entry.Fanout.Mute("ws", false)
	})

	if err := rc.Start(ctx); err != nil {
		log.Error().Err(err).Str("module", "control").Msg("rtc start")
		rc.Close()
		return
	}

	answer, err := rc.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  p.SDP,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "control").Msg("rtc apply offer")
		rc.Close()
		return
	}

	if entry.RTC != nil {
		entry.RTC.Close()
	}
	entry.RTC = rc
	entry.Fanout.Attach("rtc", rc)
	entry.Fanout.Mute("ws", true)

	ctl.sendJSON(c, map[string]string{"type": "answer", "sdp": answer.SDP})
}

func (ctl *ControlWSController) handleCandidate(entry *app.Entry, data []byte) {
	var p struct {
		Type          string `json:"type"`
		Candidate     string `json:"candidate"`
		SDPMid        string `json:"sdpMid"`
		SDPMLineIndex uint16 `json:"sdpMLineIndex"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "control").Msg("bad candidate payload")
		return
	}
	if entry.RTC == nil {
		log.Warn().Str("module", "control").Msg("candidate without peer connection")
		return
	}

	cand := webrtc.ICECandidateInit{Candidate: p.Candidate}
	if p.SDPMid != "" {
		cand.SDPMid = &p.SDPMid
	}
	cand.SDPMLineIndex = &p.SDPMLineIndex
	if err := entry.RTC.AddICECandidate(cand); err != nil {
		log.Error().Err(err).Str("module", "control").Msg("add ice candidate")
	}
}

func (ctl *ControlWSController) sendStatus(c *wsControlConn, state session.State, msg string) {
	resp := struct {
		Type    string `json:"type"`
		State   string `json:"state"`
		Message string `json:"message"`
	}{
		Type:    "status",
		State:   state.String(),
		Message: msg,
	}
	ctl.sendJSON(c, resp)
}

func (ctl *ControlWSController) sendSize(c *wsControlConn, g core.Geometry) {
	resp := struct {
		Type   string `json:"type"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	}{
		Type:   "size",
		Width:  g.Width,
		Height: g.Height,
	}
	ctl.sendJSON(c, resp)
}

func (ctl *ControlWSController) sendCandidate(c *wsControlConn, ci webrtc.ICECandidateInit) {
	resp := struct {
		Type          string `json:"type"`
		Candidate     string `json:"candidate"`
		SDPMid        string `json:"sdpMid,omitempty"`
		SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
	}{
		Type:      "candidate",
		Candidate: ci.Candidate,
	}
	if ci.SDPMid != nil {
		resp.SDPMid = *ci.SDPMid
	}
	if ci.SDPMLineIndex != nil {
		resp.SDPMLineIndex = *ci.SDPMLineIndex
	}
	ctl.sendJSON(c, resp)
}
