// Package app binds browser control connections to their device sessions.
package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"droidview/internal/adapters/rtc"
	"droidview/internal/app/fanout"
	"droidview/internal/app/session"
	"droidview/internal/core"
)

// Entry is everything bound to one browser control connection. The invariant
// "at most one device session per UI instance" holds because the controller
// is the entry's single session owner and rejects start outside StateIdle.
type Entry struct {
	Controller *session.Controller
	Signal     core.SignalConnection
	Fanout     *fanout.Fanout
	RTC        *rtc.Connection
	Cancel     context.CancelFunc
}

type Registry struct {
	mu      sync.RWMutex
	entries map[core.SessionID]*Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[core.SessionID]*Entry)}
}

// Bind associates sid with its entry, replacing any previous binding.
func (r *Registry) Bind(sid core.SessionID, e *Entry) {
	r.mu.Lock()
	old := r.entries[sid]
	r.entries[sid] = e
	r.mu.Unlock()
	if old != nil && old.Cancel != nil {
		old.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound control connection")
}

func (r *Registry) Get(sid core.SessionID) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[sid]
	return e, ok
}

// Unbind removes the binding, cancels its connection context and closes the
// signal connection.
func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	e := r.entries[sid]
	delete(r.entries, sid)
	r.mu.Unlock()
	if e == nil {
		return
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	if e.Signal != nil {
		e.Signal.Close()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbound control connection")
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
