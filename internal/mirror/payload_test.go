package mirror

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"droidview/internal/core"
)

func TestFetchPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/agent.jar":
			w.Write([]byte("agent-bytes"))
		case "/empty.jar":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()

	payload, err := FetchPayload(ctx, srv.URL+"/agent.jar")
	if err != nil {
		t.Fatalf("FetchPayload: %v", err)
	}
	if string(payload) != "agent-bytes" {
		t.Errorf("payload = %q", payload)
	}

	var pe *core.PushError
	if _, err := FetchPayload(ctx, srv.URL+"/missing.jar"); !errors.As(err, &pe) {
		t.Errorf("missing payload: error = %v, want *core.PushError", err)
	}
	if _, err := FetchPayload(ctx, srv.URL+"/empty.jar"); !errors.As(err, &pe) {
		t.Errorf("empty payload: error = %v, want *core.PushError", err)
	}
}
