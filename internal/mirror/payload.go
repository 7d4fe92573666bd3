// Package mirror is the client side of the device-resident mirroring agent:
// payload delivery, agent launch, the video/control sockets, and the binary
// input-injection encoding.
package mirror

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"droidview/internal/core"
)

// DevicePath is the well-known location the agent is pushed to and started
// from. Shared constant between the push and start steps.
const DevicePath = "/data/local/tmp/droidview-agent.jar"

// SocketName is the device-local abstract socket the agent listens on.
// The first accepted connection carries video, the second carries control.
const SocketName = "droidview"

// FetchPayload downloads the agent binary. Any non-2xx response is a fatal
// startup error.
func FetchPayload(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &core.PushError{Op: "fetch", Err: err}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, &core.PushError{Op: "fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &core.PushError{Op: "fetch", Err: fmt.Errorf("%s returned %s", url, resp.Status)}
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.PushError{Op: "fetch", Err: err}
	}
	if len(payload) == 0 {
		return nil, &core.PushError{Op: "fetch", Err: fmt.Errorf("%s returned an empty body", url)}
	}
	return payload, nil
}
