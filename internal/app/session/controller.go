// Package session owns the device control session: the lifecycle state
// machine driving transport connect, protocol authentication, agent push and
// start, stream wiring, and teardown ordering under partial failure.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"droidview/internal/config"
	"droidview/internal/core"
	"droidview/internal/domain"
	"droidview/internal/input"
	"droidview/internal/mirror"
	"droidview/internal/observability"
)

// Transport is the handle the controller keeps for teardown. The concrete
// bridge is only seen by the Authenticate hook.
type Transport interface {
	Close()
}

// Hooks are the session's external collaborators. Production wiring lives in
// the control adapter; tests substitute fakes.
type Hooks struct {
	Dial         func(ctx context.Context, endpoint domain.Endpoint) (Transport, error)
	Authenticate func(ctx context.Context, t Transport) (core.DeviceClient, error)
	FetchPayload func(ctx context.Context) ([]byte, error)
	StartAgent   func(ctx context.Context, device core.DeviceClient, settings config.SessionSettings) (core.MirrorClient, error)
}

// StatusFunc observes state transitions with a human-readable message.
type StatusFunc func(state State, msg string)

const ringCapacity = 5

// Controller runs at most one device session at a time. It returns to
// StateIdle after every stop or failure and can then be started again.
type Controller struct {
	id       core.SessionID
	hooks    Hooks
	onStatus StatusFunc
	onSize   func(core.Geometry)
	metrics  *observability.Metrics

	mu       sync.Mutex
	state    State
	endpoint domain.Endpoint
	settings config.SessionSettings
	sink     core.FrameSink
	bridge   Transport
	device   core.DeviceClient
	agent    core.MirrorClient
	cancel   context.CancelFunc

	geometry geometryHolder
	recent   *Ring
}

// New creates an idle controller. onStatus and onSize may be nil; metrics may
// be nil in tests.
func New(id core.SessionID, hooks Hooks, onStatus StatusFunc, onSize func(core.Geometry), metrics *observability.Metrics) *Controller {
	return &Controller{
		id:       id,
		hooks:    hooks,
		onStatus: onStatus,
		onSize:   onSize,
		metrics:  metrics,
		recent:   NewRing(ringCapacity),
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Geometry returns the latest committed video geometry.
func (c *Controller) Geometry() core.Geometry {
	return c.geometry.Load()
}

// Settings returns the snapshot taken at the last start.
func (c *Controller) Settings() config.SessionSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// RecentLog returns the retained status lines, oldest first.
func (c *Controller) RecentLog() []string {
	return c.recent.Snapshot()
}

// Start begins the session lifecycle. A start while a session is in flight is
// an idempotent no-op (returns false); it is neither queued nor an error.
// Settings are snapshotted here: later edits never affect this session.
func (c *Controller) Start(ctx context.Context, endpoint domain.Endpoint, settings config.SessionSettings, sink core.FrameSink) bool {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		log.Warn().Str("module", "session").Str("sid", string(c.id)).Msg("start ignored: session in flight")
		return false
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.state = StateConnecting
	c.endpoint = endpoint
	c.settings = settings
	c.sink = sink
	c.cancel = cancel
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SessionsStarted.Inc()
		c.metrics.ActiveSessions.Inc()
	}
	c.status(StateConnecting, "connecting to "+endpoint.String())
	go c.run(runCtx)
	return true
}

// Stop requests teardown. There is no mid-step cancellation beyond context
// cancellation: the in-flight step fails or completes, then the full teardown
// sequence runs.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	c.mu.Unlock()
	log.Info().Str("module", "session").Str("sid", string(c.id)).Msg("stop requested")
	if cancel != nil {
		cancel()
	}
}

// InjectPointer translates and delivers one pointer event. Failures are
// surfaced as transient status, never fatal to the session.
func (c *Controller) InjectPointer(ev input.PointerEvent) {
	c.mu.Lock()
	agent := c.agent
	running := c.state == StateRunning
	c.mu.Unlock()
	if !running || agent == nil {
		return
	}
	g := c.geometry.Load()
	tev, ok := input.Pointer(ev, g)
	if !ok {
		return
	}
	if err := agent.Inject(tev, g); err != nil {
		c.injectionFault(err)
	}
}

// InjectKey synthesizes and delivers the Down/Up pair for a navigation key.
func (c *Controller) InjectKey(keycode uint32) {
	c.mu.Lock()
	agent := c.agent
	running := c.state == StateRunning
	c.mu.Unlock()
	if !running || agent == nil {
		return
	}
	for _, ev := range input.Key(input.KeyPress{Keycode: keycode}) {
		if err := agent.InjectKey(ev); err != nil {
			c.injectionFault(err)
			return
		}
	}
}

func (c *Controller) injectionFault(err error) {
	if c.metrics != nil {
		c.metrics.InjectionErrors.Inc()
	}
	log.Warn().Err(err).Str("module", "session").Str("sid", string(c.id)).Msg("injection failed")
	c.status(StateRunning, "input error: "+err.Error())
}

// run drives the five startup transitions strictly in order, then pumps the
// mirror stream until stop or failure. Teardown always runs.
func (c *Controller) run(ctx context.Context) {
	defer c.teardown()

	bridge, err := c.hooks.Dial(ctx, c.endpoint)
	if err != nil {
		c.fail(err)
		return
	}
	c.mu.Lock()
	c.bridge = bridge
	c.mu.Unlock()

	c.transition(StateAuthenticating, "authenticating")
	device, err := c.hooks.Authenticate(ctx, bridge)
	if err != nil {
		c.fail(err)
		return
	}
	c.mu.Lock()
	c.device = device
	c.mu.Unlock()

	c.transition(StatePushingAgent, "pushing agent to "+mirror.DevicePath)
	payload, err := c.hooks.FetchPayload(ctx)
	if err != nil {
		c.fail(err)
		return
	}
	if err := device.Push(ctx, mirror.DevicePath, payload); err != nil {
		c.fail(err)
		return
	}

	c.transition(StateStartingAgent, "starting mirroring agent")
	agent, err := c.hooks.StartAgent(ctx, device, c.settings)
	if err != nil {
		c.fail(err)
		return
	}
	c.mu.Lock()
	c.agent = agent
	sink := c.sink
	c.mu.Unlock()

	meta := agent.Meta()
	c.geometry.Store(meta.Geometry)
	c.notifySize(meta.Geometry)
	c.transition(StateRunning, fmt.Sprintf("running %s %dx%d", meta.Codec, meta.Geometry.Width, meta.Geometry.Height))

	err = agent.Demux(ctx, sink, func(g core.Geometry) {
		c.geometry.Store(g)
		c.notifySize(g)
	})
	if err != nil && ctx.Err() == nil {
		c.fail(err)
	}
}

func (c *Controller) fail(err error) {
	if c.metrics != nil {
		c.metrics.SessionFailures.Inc()
	}
	c.mu.Lock()
	c.state = StateFailed
	c.mu.Unlock()
	log.Error().Err(err).Str("module", "session").Str("sid", string(c.id)).Msg("session failed")
	c.status(StateFailed, "failed: "+err.Error())
}

// teardown releases in reverse acquisition order: agent client, protocol
// client, transport. Every release is independently recovered so one failing
// step never blocks the rest. Always ends in StateIdle with the guard
// released and geometry cleared.
func (c *Controller) teardown() {
	c.mu.Lock()
	agent, device, bridge := c.agent, c.device, c.bridge
	cancel := c.cancel
	c.agent, c.device, c.bridge, c.cancel = nil, nil, nil, nil
	c.sink = nil
	c.state = StateStopping
	c.mu.Unlock()
	c.status(StateStopping, "stopping")

	if agent != nil {
		c.release("agent", agent.Close)
	}
	if device != nil {
		c.release("device", device.Close)
	}
	if bridge != nil {
		c.release("transport", bridge.Close)
	}
	if cancel != nil {
		cancel()
	}

	c.geometry.Clear()
	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.ActiveSessions.Dec()
	}
	c.status(StateIdle, "idle")
}

func (c *Controller) release(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "session").Str("sid", string(c.id)).
				Str("resource", name).Interface("panic", r).Msg("release failed")
			c.recent.Add(fmt.Sprintf("release %s failed: %v", name, r))
		}
	}()
	fn()
}

func (c *Controller) transition(st State, msg string) {
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()
	c.status(st, msg)
}

func (c *Controller) status(st State, msg string) {
	c.recent.Add(msg)
	log.Info().Str("module", "session").Str("sid", string(c.id)).
		Str("state", st.String()).Msg(msg)
	if c.onStatus != nil {
		c.onStatus(st, msg)
	}
}

func (c *Controller) notifySize(g core.Geometry) {
	if c.onSize != nil {
		c.onSize(g)
	}
}
