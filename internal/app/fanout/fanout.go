// Package fanout forwards mirror stream records to the sinks subscribed to a
// session: the browser WebSocket and, when negotiated, a WebRTC track.
package fanout

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"droidview/internal/core"
	"droidview/internal/observability"
)

// ErrBackpressure is returned by sinks that refuse a frame without failing.
var ErrBackpressure = errors.New("backpressure")

type sinkState int32

const (
	sinkOk sinkState = iota
	sinkMuted
	sinkDelete
)

// outSink pairs a sink with its delivery state.
type outSink struct {
	sink  core.FrameSink
	state atomic.Int32
}

func (o *outSink) getState() sinkState { return sinkState(o.state.Load()) }
func (o *outSink) set(s sinkState)     { o.state.Store(int32(s)) }
func (o *outSink) markDelete()         { o.set(sinkDelete) }

// Fanout implements core.FrameSink by replicating records to every attached
// sink. A failing sink is detached; delivery faults never propagate to the
// producing stream (WriteFrame always returns nil).
type Fanout struct {
	policy  Policy
	metrics *observability.Metrics
	onFault func(error)

	mu    sync.RWMutex
	sinks map[string]*outSink
}

func New(policy Policy, metrics *observability.Metrics) *Fanout {
	if policy == nil {
		policy = DropPolicy{}
	}
	return &Fanout{
		policy:  policy,
		metrics: metrics,
		sinks:   make(map[string]*outSink),
	}
}

// OnFault sets the observer for sink delivery failures. Must be set before
// the stream starts; faults arrive as *core.PipelineError.
func (f *Fanout) OnFault(fn func(error)) {
	f.onFault = fn
}

// Attach adds (or replaces) a named sink.
func (f *Fanout) Attach(name string, sink core.FrameSink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks[name] = &outSink{sink: sink}
	log.Info().Str("module", "fanout").Str("sink", name).Msg("sink attached")
}

// Detach removes a named sink.
func (f *Fanout) Detach(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sinks, name)
}

// Mute keeps the sink attached but skips delivery to it.
func (f *Fanout) Mute(name string, muted bool) {
	f.mu.RLock()
	o, ok := f.sinks[name]
	f.mu.RUnlock()
	if !ok {
		return
	}
	if muted {
		o.set(sinkMuted)
	} else {
		o.set(sinkOk)
	}
}

// WriteFrame replicates one record to all live sinks.
func (f *Fanout) WriteFrame(kind core.FrameKind, payload core.Frame) error {
	snapshot := make(map[string]*outSink)
	f.mu.RLock()
	for name, o := range f.sinks {
		snapshot[name] = o
	}
	f.mu.RUnlock()

	var dirty []string
	for name, o := range snapshot {
		switch o.getState() {
		case sinkDelete:
			dirty = append(dirty, name)
		case sinkMuted:
		case sinkOk:
			err := o.sink.WriteFrame(kind, payload)
			switch {
			case err == nil:
			case errors.Is(err, ErrBackpressure):
				if f.policy.OnBackPressure(name) == DetachSink {
					o.markDelete()
					dirty = append(dirty, name)
				}
				// DropFrame: this record is shed for this sink only.
			default:
				fault := &core.PipelineError{Sink: name, Err: err}
				log.Warn().Err(fault).Str("module", "fanout").Str("sink", name).
					Msg("sink write failed, detaching")
				o.markDelete()
				dirty = append(dirty, name)
				if f.onFault != nil {
					f.onFault(fault)
				}
			}
		}
	}

	// Cleanup outside the read lock.
	if len(dirty) > 0 {
		f.mu.Lock()
		for _, name := range dirty {
			delete(f.sinks, name)
		}
		f.mu.Unlock()
	}
	if f.metrics != nil {
		f.metrics.FramesRelayed.Inc()
	}
	return nil
}
