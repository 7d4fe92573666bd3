package control

import (
	"context"
	"fmt"

	"droidview/internal/adb"
	"droidview/internal/app/session"
	"droidview/internal/config"
	"droidview/internal/core"
	"droidview/internal/domain"
	"droidview/internal/mirror"
	"droidview/internal/transport"
)

// hooks wires the session controller to the production collaborators.
func (ctl *ControlWSController) hooks() session.Hooks {
	return session.Hooks{
		Dial: func(ctx context.Context, endpoint domain.Endpoint) (session.Transport, error) {
			b, err := transport.Dial(ctx, endpoint)
			if err != nil {
				return nil, err
			}
			return b, nil
		},
		Authenticate: func(ctx context.Context, t session.Transport) (core.DeviceClient, error) {
			bridge, ok := t.(*transport.Bridge)
			if !ok {
				return nil, &core.AuthError{Err: fmt.Errorf("unexpected transport %T", t)}
			}
			return adb.Connect(ctx, bridge, ctl.Keys)
		},
		FetchPayload: func(ctx context.Context) ([]byte, error) {
			return mirror.FetchPayload(ctx, ctl.Cfg.AgentURL)
		},
		StartAgent: func(ctx context.Context, device core.DeviceClient, settings config.SessionSettings) (core.MirrorClient, error) {
			return mirror.Start(ctx, device, settings)
		},
	}
}
