// Package domain contains entities without logic, just meta-data.
package domain

import (
	"errors"
	"net/url"
)

var (
	ErrEndpointEmpty  = errors.New("endpoint empty")
	ErrEndpointScheme = errors.New("endpoint must be a ws:// or wss:// URL")
)

// Endpoint is the WebSocket URL of a device tunnel, e.g. "ws://host:port/ws/1".
// Immutable once a session starts.
type Endpoint string

// ParseEndpoint validates raw and avoids ad-hoc string handling in adapters.
func ParseEndpoint(raw string) (Endpoint, error) {
	if raw == "" {
		return "", ErrEndpointEmpty
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", ErrEndpointScheme
	}
	if u.Host == "" {
		return "", ErrEndpointEmpty
	}
	return Endpoint(raw), nil
}

func (e Endpoint) String() string { return string(e) }
