package domain

import (
	"errors"
	"testing"
)

func TestParseEndpoint(t *testing.T) {
	for _, raw := range []string{"ws://farm:7000/ws/1", "wss://farm/ws/1"} {
		ep, err := ParseEndpoint(raw)
		if err != nil {
			t.Errorf("ParseEndpoint(%q): %v", raw, err)
		}
		if ep.String() != raw {
			t.Errorf("ParseEndpoint(%q) = %q", raw, ep)
		}
	}

	if _, err := ParseEndpoint(""); !errors.Is(err, ErrEndpointEmpty) {
		t.Errorf("empty endpoint: %v", err)
	}
	for _, raw := range []string{"http://farm/ws", "farm:7000", "://bad"} {
		if _, err := ParseEndpoint(raw); err == nil {
			t.Errorf("ParseEndpoint(%q) accepted", raw)
		}
	}
}
